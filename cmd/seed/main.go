package main

import (
	"context"
	"log"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hackgods/clinic-appointment-scheduling/internal/config"
	"github.com/hackgods/clinic-appointment-scheduling/internal/db"
	"github.com/hackgods/clinic-appointment-scheduling/internal/schedule"
)

var (
	timezones     = []string{"UTC", "Europe/London", "America/New_York", "Asia/Tehran", "Australia/Sydney"}
	slotDurations = []int{10, 15, 20, 30}

	weekdayHours = []schedule.Interval{
		{Start: schedule.Clock(8, 0), End: schedule.Clock(12, 0)},
		{Start: schedule.Clock(14, 0), End: schedule.Clock(18, 0)},
	}
	saturdayHours = []schedule.Interval{
		{Start: schedule.Clock(9, 0), End: schedule.Clock(13, 0)},
	}
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Println("seed starting")

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config load error: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := db.ConnectPostgres(ctx, cfg.PostgresDSN, db.PoolOptions{MaxConns: cfg.DBMaxConns, AppName: "clinic-seed"})
	if err != nil {
		log.Fatalf("connect postgres: %v", err)
	}
	defer pool.Close()

	faker := gofakeit.New(uint64(time.Now().UnixNano()))

	if err := seedClinics(context.Background(), pool, faker, 20); err != nil {
		log.Fatalf("seed clinics: %v", err)
	}
	if err := seedPatients(context.Background(), pool, faker, 5000); err != nil {
		log.Fatalf("seed patients: %v", err)
	}

	log.Println("seed complete")
}

// seedClinics creates clinics open Monday to Friday in two shifts, Saturday mornings,
// and closed on Sunday.
func seedClinics(ctx context.Context, pool *pgxpool.Pool, faker *gofakeit.Faker, count int) error {
	log.Printf("seeding %d clinics", count)

	tx, err := pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	for i := 0; i < count; i++ {
		clinicID := uuid.New()
		name := faker.Company() + " Clinic"
		tz := timezones[faker.Number(0, len(timezones)-1)]
		duration := slotDurations[faker.Number(0, len(slotDurations)-1)]

		_, err := tx.Exec(ctx, `
			INSERT INTO clinics (id, name, slot_duration_minutes, timezone, created_at, updated_at)
			VALUES ($1, $2, $3, $4, now(), now())
		`, clinicID, name, duration, tz)
		if err != nil {
			return err
		}

		for wd := time.Sunday; wd <= time.Saturday; wd++ {
			var hours []schedule.Interval
			switch wd {
			case time.Sunday:
			case time.Saturday:
				hours = saturdayHours
			default:
				hours = weekdayHours
			}
			if err := insertWeekday(ctx, tx, clinicID, wd, hours); err != nil {
				return err
			}
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return err
	}

	log.Println("clinics seeded")
	return nil
}

func insertWeekday(ctx context.Context, tx pgx.Tx, clinicID uuid.UUID, wd time.Weekday, hours []schedule.Interval) error {
	scheduleID := uuid.New()
	_, err := tx.Exec(ctx, `
		INSERT INTO weekly_schedules (id, clinic_id, weekday, is_available, updated_at)
		VALUES ($1, $2, $3, $4, now())
	`, scheduleID, clinicID, int16(wd), len(hours) > 0)
	if err != nil {
		return err
	}

	for _, iv := range hours {
		_, err := tx.Exec(ctx, `
			INSERT INTO open_intervals (weekly_schedule_id, start_time, end_time)
			VALUES ($1, $2, $3)
		`, scheduleID, iv.Start.String(), iv.End.String())
		if err != nil {
			return err
		}
	}
	return nil
}

func seedPatients(ctx context.Context, pool *pgxpool.Pool, faker *gofakeit.Faker, count int) error {
	log.Printf("seeding %d patients", count)

	const batchSize = 500

	for offset := 0; offset < count; offset += batchSize {
		end := offset + batchSize
		if end > count {
			end = count
		}

		rows := make([][]any, 0, end-offset)
		for i := offset; i < end; i++ {
			rows = append(rows, []any{uuid.New(), faker.Name(), faker.Email(), faker.Phone()})
		}

		_, err := pool.CopyFrom(ctx,
			pgx.Identifier{"patients"},
			[]string{"id", "name", "email", "phone"},
			pgx.CopyFromRows(rows),
		)
		if err != nil {
			return err
		}

		log.Printf("patients seeded: %d/%d", end, count)
	}

	log.Println("patients seeded")
	return nil
}
