package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/andeshealth/clinic-scheduling/internal/metrics"
	redisclient "github.com/andeshealth/clinic-scheduling/internal/redis"
	"github.com/andeshealth/clinic-scheduling/internal/scheduling"
)

func getAvailableSlotsHandler(svc *scheduling.Service, m *metrics.EngineMetrics) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()

		providerID, err := uuid.Parse(q.Get("provider_id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_provider_id", "provider_id must be a valid UUID")
			return
		}
		attentionTypeID, err := uuid.Parse(q.Get("attention_type_id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_attention_type_id", "attention_type_id must be a valid UUID")
			return
		}
		date := q.Get("date")
		if date == "" {
			writeError(w, http.StatusBadRequest, "missing_date", "date is required (YYYY-MM-DD)")
			return
		}

		var excludeID *uuid.UUID
		if raw := q.Get("exclude_appointment_id"); raw != "" {
			id, err := uuid.Parse(raw)
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid_exclude_appointment_id", "exclude_appointment_id must be a valid UUID")
				return
			}
			excludeID = &id
		}

		slots, err := svc.ComputeAvailableSlots(r.Context(), providerID, date, attentionTypeID, excludeID)
		if err != nil {
			handleDomainError(w, err)
			return
		}

		m.ObserveSlotsReturned(len(slots))
		writeJSON(w, http.StatusOK, toSlotResponses(slots))
	}
}

func createAppointmentHandler(svc *scheduling.Service, m *metrics.EngineMetrics) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req CreateAppointmentRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		patientID, err := uuid.Parse(req.PatientID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_patient_id", "patient_id must be a valid UUID")
			return
		}
		providerID, err := uuid.Parse(req.ProviderID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_provider_id", "provider_id must be a valid UUID")
			return
		}
		attentionTypeID, err := uuid.Parse(req.AttentionTypeID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_attention_type_id", "attention_type_id must be a valid UUID")
			return
		}
		start, err := time.Parse(time.RFC3339, req.StartDatetime)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_start_datetime", "start_datetime must be RFC 3339")
			return
		}

		appt, err := svc.BookAppointment(r.Context(), patientID, providerID, attentionTypeID, start, req.Notes)
		if err != nil {
			m.ObserveBooking(bookingOutcome(err))
			handleDomainError(w, err)
			return
		}

		m.ObserveBooking(metrics.OutcomeBooked)
		writeJSON(w, http.StatusCreated, toAppointmentResponse(appt))
	}
}

func listAppointmentsHandler(svc *scheduling.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		var f scheduling.AppointmentFilter

		for param, dst := range map[string]**uuid.UUID{
			"patient_id":  &f.PatientID,
			"provider_id": &f.ProviderID,
		} {
			if raw := q.Get(param); raw != "" {
				id, err := uuid.Parse(raw)
				if err != nil {
					writeError(w, http.StatusBadRequest, "invalid_"+param, param+" must be a valid UUID")
					return
				}
				*dst = &id
			}
		}

		if raw := q.Get("status"); raw != "" {
			status := scheduling.AppointmentStatus(raw)
			if !status.Valid() {
				writeError(w, http.StatusBadRequest, "invalid_status", "unknown appointment status")
				return
			}
			f.Status = &status
		}

		for param, dst := range map[string]**time.Time{
			"from": &f.From,
			"to":   &f.To,
		} {
			if raw := q.Get(param); raw != "" {
				t, err := time.Parse(time.RFC3339, raw)
				if err != nil {
					writeError(w, http.StatusBadRequest, "invalid_"+param, param+" must be RFC 3339")
					return
				}
				*dst = &t
			}
		}

		appts, err := svc.ListAppointments(r.Context(), f)
		if err != nil {
			handleDomainError(w, err)
			return
		}

		out := make([]AppointmentResponse, 0, len(appts))
		for i := range appts {
			out = append(out, toAppointmentResponse(&appts[i]))
		}
		writeJSON(w, http.StatusOK, out)
	}
}

func getAppointmentHandler(svc *scheduling.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := parseIDParam(w, r)
		if !ok {
			return
		}

		appt, err := svc.GetAppointment(r.Context(), id)
		if err != nil {
			handleDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
	}
}

func updateAppointmentHandler(svc *scheduling.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := parseIDParam(w, r)
		if !ok {
			return
		}

		var req UpdateAppointmentRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		var upd scheduling.AppointmentUpdate
		for param, pair := range map[string]struct {
			raw *string
			dst **uuid.UUID
		}{
			"patient_id":        {req.PatientID, &upd.PatientID},
			"provider_id":       {req.ProviderID, &upd.ProviderID},
			"attention_type_id": {req.AttentionTypeID, &upd.AttentionTypeID},
		} {
			if pair.raw == nil {
				continue
			}
			parsed, err := uuid.Parse(*pair.raw)
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid_"+param, param+" must be a valid UUID")
				return
			}
			*pair.dst = &parsed
		}

		if req.StartDatetime != nil {
			start, err := time.Parse(time.RFC3339, *req.StartDatetime)
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid_start_datetime", "start_datetime must be RFC 3339")
				return
			}
			upd.StartTime = &start
		}
		upd.Notes = req.Notes

		appt, err := svc.UpdateAppointment(r.Context(), id, upd)
		if err != nil {
			handleDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
	}
}

func setAppointmentStatusHandler(svc *scheduling.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := parseIDParam(w, r)
		if !ok {
			return
		}

		var req AppointmentStatusRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		appt, err := svc.SetAppointmentStatus(r.Context(), id, scheduling.AppointmentStatus(req.Status))
		if err != nil {
			handleDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
	}
}

func deleteAppointmentHandler(svc *scheduling.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := parseIDParam(w, r)
		if !ok {
			return
		}

		if err := svc.DeleteAppointment(r.Context(), id); err != nil {
			handleDomainError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func parseIDParam(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_id", "id must be a valid UUID")
		return uuid.UUID{}, false
	}
	return id, true
}

func bookingOutcome(err error) string {
	switch {
	case errors.Is(err, scheduling.ErrProviderConflict):
		return metrics.OutcomeProviderConflict
	case errors.Is(err, scheduling.ErrPatientConflict):
		return metrics.OutcomePatientConflict
	case errors.Is(err, scheduling.ErrBookingContended):
		return metrics.OutcomeContended
	default:
		return metrics.OutcomeError
	}
}

// handleDomainError maps engine errors onto the HTTP taxonomy: validation
// 400, missing references 404, double-booking and contention 409.
func handleDomainError(w http.ResponseWriter, err error) {
	var validation *scheduling.ValidationError
	var missing *scheduling.MissingEntitiesError

	switch {
	case errors.As(err, &validation):
		writeError(w, http.StatusBadRequest, "validation_error", validation.Msg)
	case errors.As(err, &missing):
		writeError(w, http.StatusNotFound, "not_found", missing.Error())
	case errors.Is(err, scheduling.ErrPatientNotFound):
		writeError(w, http.StatusNotFound, "patient_not_found", err.Error())
	case errors.Is(err, scheduling.ErrProviderNotFound):
		writeError(w, http.StatusNotFound, "provider_not_found", err.Error())
	case errors.Is(err, scheduling.ErrAttentionTypeNotFound):
		writeError(w, http.StatusNotFound, "attention_type_not_found", err.Error())
	case errors.Is(err, scheduling.ErrAppointmentNotFound):
		writeError(w, http.StatusNotFound, "appointment_not_found", err.Error())
	case errors.Is(err, scheduling.ErrScheduleNotFound):
		writeError(w, http.StatusNotFound, "schedule_not_found", err.Error())
	case errors.Is(err, scheduling.ErrExceptionNotFound):
		writeError(w, http.StatusNotFound, "exception_not_found", err.Error())
	case errors.Is(err, scheduling.ErrProviderConflict):
		writeError(w, http.StatusConflict, "provider_conflict", err.Error())
	case errors.Is(err, scheduling.ErrPatientConflict):
		writeError(w, http.StatusConflict, "patient_conflict", err.Error())
	case errors.Is(err, scheduling.ErrBookingContended),
		errors.Is(err, redisclient.ErrLockNotAcquired):
		writeError(w, http.StatusConflict, "booking_contended", "another booking for this provider and day is in flight, please retry shortly")
	case errors.Is(err, scheduling.ErrScheduleOverlap):
		writeError(w, http.StatusConflict, "schedule_overlap", err.Error())
	case errors.Is(err, scheduling.ErrDuplicateSchedule):
		writeError(w, http.StatusConflict, "duplicate_schedule", err.Error())
	case errors.Is(err, scheduling.ErrDuplicateException):
		writeError(w, http.StatusConflict, "duplicate_exception", err.Error())
	case errors.Is(err, scheduling.ErrDuplicateAttentionType):
		writeError(w, http.StatusConflict, "duplicate_attention_type", err.Error())
	case errors.Is(err, scheduling.ErrInvalidStatusTransition):
		writeError(w, http.StatusConflict, "invalid_status_transition", err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
	}
}
