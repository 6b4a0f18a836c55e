// simulate hammers the booking endpoint with concurrent requests racing for
// the same slots, then audits the ledger: if any two non-cancelled
// appointments for one provider overlap, the conflict resolver is broken.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"

	"github.com/andeshealth/clinic-scheduling/internal/db"
)

type simConfig struct {
	apiBaseURL string
	date       string
	workers    int
}

type slot struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)

	_ = godotenv.Load()

	cfg := simConfig{
		apiBaseURL: envOr("API_BASE_URL", "http://127.0.0.1:8080"),
		date:       envOr("SIM_DATE", time.Now().AddDate(0, 0, 7).Format("2006-01-02")),
		workers:    16,
	}

	dsn := os.Getenv("POSTGRES_DSN")
	if dsn == "" {
		log.Fatal("POSTGRES_DSN is required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	pool, err := db.ConnectPostgres(ctx, dsn)
	cancel()
	if err != nil {
		log.Fatalf("connect postgres: %v", err)
	}
	defer pool.Close()

	providerID, attentionTypeID, patientIDs, err := loadFixtures(context.Background(), pool, cfg.workers)
	if err != nil {
		log.Fatalf("load fixtures: %v", err)
	}

	slots, err := fetchSlots(cfg, providerID, attentionTypeID)
	if err != nil {
		log.Fatalf("fetch slots: %v", err)
	}
	if len(slots) == 0 {
		log.Fatalf("no available slots for provider %s on %s", providerID, cfg.date)
	}

	target := slots[0]
	log.Printf("racing %d workers for slot %s", cfg.workers, target.Start.Format(time.RFC3339))

	var booked, conflicts, contended, failures atomic.Int64
	var wg sync.WaitGroup

	for i := 0; i < cfg.workers; i++ {
		wg.Add(1)
		go func(patientID uuid.UUID) {
			defer wg.Done()

			status, err := bookSlot(cfg, patientID, providerID, attentionTypeID, target.Start)
			switch {
			case err != nil:
				failures.Add(1)
			case status == http.StatusCreated:
				booked.Add(1)
			case status == http.StatusConflict:
				// provider_conflict or booking_contended, both are correct
				// outcomes for the losers
				conflicts.Add(1)
			default:
				contended.Add(1)
				log.Printf("unexpected status %d", status)
			}
		}(patientIDs[i])
	}

	wg.Wait()

	log.Printf("results: booked=%d conflicts=%d unexpected=%d errors=%d",
		booked.Load(), conflicts.Load(), contended.Load(), failures.Load())

	if booked.Load() != 1 {
		log.Fatalf("INVARIANT VIOLATED: expected exactly 1 booking to win, got %d", booked.Load())
	}

	overlaps, err := countOverlaps(context.Background(), pool)
	if err != nil {
		log.Fatalf("overlap audit: %v", err)
	}
	if overlaps > 0 {
		log.Fatalf("INVARIANT VIOLATED: %d overlapping occupancy windows in the ledger", overlaps)
	}

	log.Println("simulation passed: one winner, ledger consistent")
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func loadFixtures(ctx context.Context, pool *pgxpool.Pool, patients int) (uuid.UUID, uuid.UUID, []uuid.UUID, error) {
	var providerID uuid.UUID
	err := pool.QueryRow(ctx, `SELECT id FROM providers ORDER BY created_at LIMIT 1`).Scan(&providerID)
	if err != nil {
		return uuid.UUID{}, uuid.UUID{}, nil, fmt.Errorf("pick provider: %w", err)
	}

	var attentionTypeID uuid.UUID
	err = pool.QueryRow(ctx, `SELECT id FROM attention_types ORDER BY name LIMIT 1`).Scan(&attentionTypeID)
	if err != nil {
		return uuid.UUID{}, uuid.UUID{}, nil, fmt.Errorf("pick attention type: %w", err)
	}

	rows, err := pool.Query(ctx, `SELECT id FROM patients LIMIT $1`, patients)
	if err != nil {
		return uuid.UUID{}, uuid.UUID{}, nil, fmt.Errorf("pick patients: %w", err)
	}
	defer rows.Close()

	var patientIDs []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return uuid.UUID{}, uuid.UUID{}, nil, err
		}
		patientIDs = append(patientIDs, id)
	}
	if len(patientIDs) < patients {
		return uuid.UUID{}, uuid.UUID{}, nil, fmt.Errorf("need %d patients, run cmd/seed first", patients)
	}

	return providerID, attentionTypeID, patientIDs, rows.Err()
}

func fetchSlots(cfg simConfig, providerID, attentionTypeID uuid.UUID) ([]slot, error) {
	url := fmt.Sprintf("%s/availability/slots?provider_id=%s&date=%s&attention_type_id=%s",
		cfg.apiBaseURL, providerID, cfg.date, attentionTypeID)

	resp, err := http.Get(url)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("slots request failed: %d %s", resp.StatusCode, body)
	}

	var slots []slot
	if err := json.NewDecoder(resp.Body).Decode(&slots); err != nil {
		return nil, err
	}
	return slots, nil
}

func bookSlot(cfg simConfig, patientID, providerID, attentionTypeID uuid.UUID, start time.Time) (int, error) {
	payload, err := json.Marshal(map[string]string{
		"patient_id":        patientID.String(),
		"provider_id":       providerID.String(),
		"attention_type_id": attentionTypeID.String(),
		"start_datetime":    start.Format(time.RFC3339),
	})
	if err != nil {
		return 0, err
	}

	resp, err := http.Post(cfg.apiBaseURL+"/appointments", "application/json", bytes.NewReader(payload))
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	return resp.StatusCode, nil
}

func countOverlaps(ctx context.Context, pool *pgxpool.Pool) (int, error) {
	var count int
	err := pool.QueryRow(ctx, `
		SELECT count(*)
		FROM appointments a
		JOIN appointments b
		  ON a.provider_id = b.provider_id
		 AND a.id < b.id
		 AND a.status <> 'cancelled'
		 AND b.status <> 'cancelled'
		 AND a.start_datetime < b.start_datetime + make_interval(mins => b.duration_minutes + b.buffer_minutes)
		 AND b.start_datetime < a.start_datetime + make_interval(mins => a.duration_minutes + a.buffer_minutes)
	`).Scan(&count)
	return count, err
}
