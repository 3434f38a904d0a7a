package directory

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/hackgods/clinic-appointment-scheduling/internal/notify"
)

var (
	ErrClinicNotFound  = errors.New("clinic not found")
	ErrPatientNotFound = errors.New("patient not found")
)

type Clinic struct {
	ID           uuid.UUID
	Name         string
	SlotDuration time.Duration
	Location     *time.Location
}

// Now returns the current time in the clinic's timezone.
func (c Clinic) Now(now time.Time) time.Time {
	return now.In(c.Location)
}

type rowQuerier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PgDirectory reads clinics and patient contacts owned by the surrounding application.
type PgDirectory struct {
	db rowQuerier
}

func NewPgDirectory(db rowQuerier) *PgDirectory {
	if db == nil {
		panic("directory: db required")
	}
	return &PgDirectory{db: db}
}

func (d *PgDirectory) GetClinic(ctx context.Context, id uuid.UUID) (Clinic, error) {
	var (
		c       Clinic
		minutes int
		tz      string
	)
	err := d.db.QueryRow(ctx, `
		SELECT id, name, slot_duration_minutes, timezone
		FROM clinics
		WHERE id = $1
	`, id).Scan(&c.ID, &c.Name, &minutes, &tz)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Clinic{}, ErrClinicNotFound
		}
		return Clinic{}, fmt.Errorf("load clinic: %w", err)
	}

	c.SlotDuration = time.Duration(minutes) * time.Minute
	c.Location = time.UTC
	if tz != "" {
		loc, err := time.LoadLocation(tz)
		if err != nil {
			return Clinic{}, fmt.Errorf("clinic %s timezone %q: %w", id, tz, err)
		}
		c.Location = loc
	}
	return c, nil
}

func (d *PgDirectory) PatientContact(ctx context.Context, id uuid.UUID) (notify.Recipient, error) {
	var (
		r            notify.Recipient
		phone, email *string
	)
	err := d.db.QueryRow(ctx, `
		SELECT id, name, phone, email
		FROM patients
		WHERE id = $1
	`, id).Scan(&r.PatientID, &r.Name, &phone, &email)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return notify.Recipient{}, ErrPatientNotFound
		}
		return notify.Recipient{}, fmt.Errorf("load patient contact: %w", err)
	}
	if phone != nil {
		r.Phone = *phone
	}
	if email != nil {
		r.Email = *email
	}
	return r, nil
}
