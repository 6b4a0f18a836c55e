package main

import (
	"context"
	"log"
	"os"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"

	"github.com/andeshealth/clinic-scheduling/internal/db"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Println("seed starting")

	_ = godotenv.Load()

	dsn := os.Getenv("POSTGRES_DSN")
	if dsn == "" {
		log.Fatal("POSTGRES_DSN is required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := db.ConnectPostgres(ctx, dsn)
	if err != nil {
		log.Fatalf("connect postgres: %v", err)
	}
	defer pool.Close()

	gofakeit.Seed(time.Now().UnixNano())

	if err := seedAttentionTypes(context.Background(), pool); err != nil {
		log.Fatalf("seed attention types: %v", err)
	}

	providerIDs, err := seedProviders(context.Background(), pool, 20)
	if err != nil {
		log.Fatalf("seed providers: %v", err)
	}
	if err := seedPatients(context.Background(), pool, 500); err != nil {
		log.Fatalf("seed patients: %v", err)
	}
	if err := seedWeeklySchedules(context.Background(), pool, providerIDs); err != nil {
		log.Fatalf("seed weekly schedules: %v", err)
	}

	log.Println("seed complete")
}

func seedAttentionTypes(ctx context.Context, pool *pgxpool.Pool) error {
	types := []struct {
		name     string
		duration int
		buffer   int
	}{
		{"General Consultation", 60, 30},
		{"Follow-up Visit", 30, 15},
		{"First Evaluation", 90, 30},
		{"Quick Check", 15, 5},
	}

	log.Printf("seeding %d attention types", len(types))

	tx, err := pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	for _, at := range types {
		_, err := tx.Exec(ctx, `
			INSERT INTO attention_types (id, name, duration_minutes, buffer_minutes, created_at, updated_at)
			VALUES ($1, $2, $3, $4, now(), now())
			ON CONFLICT (name) DO NOTHING
		`, uuid.New(), at.name, at.duration, at.buffer)
		if err != nil {
			return err
		}
	}

	return tx.Commit(ctx)
}

func seedProviders(ctx context.Context, pool *pgxpool.Pool, count int) ([]uuid.UUID, error) {
	log.Printf("seeding %d providers", count)

	specialties := []string{
		"Dermatology",
		"Cardiology",
		"General Practice",
		"Orthopedics",
		"Endocrinology",
		"Neurology",
		"Pediatrics",
		"Psychiatry",
		"Ophthalmology",
		"ENT",
	}

	tx, err := pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	ids := make([]uuid.UUID, 0, count)
	for i := 0; i < count; i++ {
		id := uuid.New()
		name := gofakeit.Name()
		specialty := specialties[gofakeit.Number(0, len(specialties)-1)]

		_, err := tx.Exec(ctx, `
			INSERT INTO providers (id, name, specialty, created_at, updated_at)
			VALUES ($1, $2, $3, now(), now())
		`, id, name, specialty)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}

	return ids, tx.Commit(ctx)
}

func seedPatients(ctx context.Context, pool *pgxpool.Pool, count int) error {
	log.Printf("seeding %d patients", count)

	tx, err := pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	for i := 0; i < count; i++ {
		id := uuid.New()
		name := gofakeit.Name()
		email := gofakeit.Email()

		_, err := tx.Exec(ctx, `
			INSERT INTO patients (id, name, email, created_at, updated_at)
			VALUES ($1, $2, $3, now(), now())
		`, id, name, email)
		if err != nil {
			return err
		}
	}

	return tx.Commit(ctx)
}

// seedWeeklySchedules gives every provider a morning and an afternoon window
// on Monday through Friday.
func seedWeeklySchedules(ctx context.Context, pool *pgxpool.Pool, providerIDs []uuid.UUID) error {
	log.Printf("seeding weekly schedules for %d providers", len(providerIDs))

	windows := []struct {
		start string
		end   string
	}{
		{"09:00", "12:00"},
		{"14:00", "18:00"},
	}

	tx, err := pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	for _, providerID := range providerIDs {
		for weekday := 1; weekday <= 5; weekday++ {
			for _, w := range windows {
				_, err := tx.Exec(ctx, `
					INSERT INTO weekly_schedules (id, provider_id, weekday, start_time, end_time, created_at, updated_at)
					VALUES ($1, $2, $3, $4::time, $5::time, now(), now())
				`, uuid.New(), providerID, weekday, w.start, w.end)
				if err != nil {
					return err
				}
			}
		}
	}

	return tx.Commit(ctx)
}
