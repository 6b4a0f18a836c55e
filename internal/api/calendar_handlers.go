package api

import (
	"encoding/json"
	"net/http"

	"github.com/google/uuid"

	"github.com/andeshealth/clinic-scheduling/internal/scheduling"
)

// Weekly schedules

func createScheduleHandler(svc *scheduling.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req CreateScheduleRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		providerID, err := uuid.Parse(req.ProviderID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_provider_id", "provider_id must be a valid UUID")
			return
		}

		ws, err := svc.CreateWeeklySchedule(r.Context(), providerID, req.Weekday, req.StartTime, req.EndTime)
		if err != nil {
			handleDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, toScheduleResponse(ws))
	}
}

func listSchedulesHandler(svc *scheduling.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var providerID *uuid.UUID
		if raw := r.URL.Query().Get("provider_id"); raw != "" {
			id, err := uuid.Parse(raw)
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid_provider_id", "provider_id must be a valid UUID")
				return
			}
			providerID = &id
		}

		schedules, err := svc.ListSchedules(r.Context(), providerID)
		if err != nil {
			handleDomainError(w, err)
			return
		}

		out := make([]ScheduleResponse, 0, len(schedules))
		for i := range schedules {
			out = append(out, toScheduleResponse(&schedules[i]))
		}
		writeJSON(w, http.StatusOK, out)
	}
}

func updateScheduleHandler(svc *scheduling.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := parseIDParam(w, r)
		if !ok {
			return
		}

		var req UpdateScheduleRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		ws, err := svc.UpdateWeeklySchedule(r.Context(), id, scheduling.WeeklyScheduleUpdate{
			Weekday:   req.Weekday,
			StartTime: req.StartTime,
			EndTime:   req.EndTime,
		})
		if err != nil {
			handleDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, toScheduleResponse(ws))
	}
}

func deleteScheduleHandler(svc *scheduling.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := parseIDParam(w, r)
		if !ok {
			return
		}

		if err := svc.DeleteWeeklySchedule(r.Context(), id); err != nil {
			handleDomainError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// Availability exceptions

func createExceptionHandler(svc *scheduling.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req CreateExceptionRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		providerID, err := uuid.Parse(req.ProviderID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_provider_id", "provider_id must be a valid UUID")
			return
		}

		ex, err := svc.CreateException(r.Context(), providerID, req.Date, req.IsFullDay, req.BlockStart, req.BlockEnd, req.Description)
		if err != nil {
			handleDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, toExceptionResponse(ex))
	}
}

func listExceptionsHandler(svc *scheduling.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()

		var providerID *uuid.UUID
		if raw := q.Get("provider_id"); raw != "" {
			id, err := uuid.Parse(raw)
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid_provider_id", "provider_id must be a valid UUID")
				return
			}
			providerID = &id
		}

		var from, to *string
		if raw := q.Get("from"); raw != "" {
			from = &raw
		}
		if raw := q.Get("to"); raw != "" {
			to = &raw
		}

		exceptions, err := svc.ListExceptions(r.Context(), providerID, from, to)
		if err != nil {
			handleDomainError(w, err)
			return
		}

		out := make([]ExceptionResponse, 0, len(exceptions))
		for i := range exceptions {
			out = append(out, toExceptionResponse(&exceptions[i]))
		}
		writeJSON(w, http.StatusOK, out)
	}
}

func deleteExceptionHandler(svc *scheduling.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := parseIDParam(w, r)
		if !ok {
			return
		}

		if err := svc.DeleteException(r.Context(), id); err != nil {
			handleDomainError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// Attention types

func createAttentionTypeHandler(svc *scheduling.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req CreateAttentionTypeRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		at, err := svc.CreateAttentionType(r.Context(), req.Name, req.DurationMinutes, req.BufferMinutes)
		if err != nil {
			handleDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, toAttentionTypeResponse(at))
	}
}

func listAttentionTypesHandler(svc *scheduling.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		types, err := svc.ListAttentionTypes(r.Context())
		if err != nil {
			handleDomainError(w, err)
			return
		}

		out := make([]AttentionTypeResponse, 0, len(types))
		for i := range types {
			out = append(out, toAttentionTypeResponse(&types[i]))
		}
		writeJSON(w, http.StatusOK, out)
	}
}

func getAttentionTypeHandler(svc *scheduling.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := parseIDParam(w, r)
		if !ok {
			return
		}

		at, err := svc.GetAttentionType(r.Context(), id)
		if err != nil {
			handleDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, toAttentionTypeResponse(at))
	}
}

func updateAttentionTypeHandler(svc *scheduling.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := parseIDParam(w, r)
		if !ok {
			return
		}

		var req UpdateAttentionTypeRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		at, err := svc.UpdateAttentionType(r.Context(), id, scheduling.AttentionTypeUpdate{
			Name:            req.Name,
			DurationMinutes: req.DurationMinutes,
			BufferMinutes:   req.BufferMinutes,
		})
		if err != nil {
			handleDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, toAttentionTypeResponse(at))
	}
}

func deleteAttentionTypeHandler(svc *scheduling.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := parseIDParam(w, r)
		if !ok {
			return
		}

		if err := svc.DeleteAttentionType(r.Context(), id); err != nil {
			handleDomainError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}
