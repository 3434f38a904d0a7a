package appointment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/hackgods/clinic-appointment-scheduling/internal/schedule"
)

// querier is satisfied by *pgxpool.Pool, pgx.Tx and pgxmock.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type beginner interface {
	querier
	Begin(ctx context.Context) (pgx.Tx, error)
}

// PgStore implements Store on Postgres.
type PgStore struct {
	queries
	pool beginner
}

func NewPgStore(pool beginner) *PgStore {
	return &PgStore{queries: queries{db: pool}, pool: pool}
}

func (s *PgStore) InTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", mapPgError(err))
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := fn(ctx, &queries{db: tx}); err != nil {
		return mapPgError(err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", mapPgError(err))
	}
	return nil
}

// queries holds every statement; it runs against the pool or an open transaction.
type queries struct {
	db querier
}

const (
	pgUniqueViolation      = "23505"
	pgSerializationFailure = "40001"
	pgDeadlockDetected     = "40P01"
)

func mapPgError(err error) error {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}
	switch pgErr.Code {
	case pgUniqueViolation:
		return fmt.Errorf("%w: %s", ErrSlotTaken, pgErr.ConstraintName)
	case pgSerializationFailure, pgDeadlockDetected:
		return fmt.Errorf("%w: %s", ErrTransient, pgErr.Message)
	}
	return err
}

func pgTime(t schedule.TimeOfDay) pgtype.Time {
	return pgtype.Time{Microseconds: t.Duration().Microseconds(), Valid: true}
}

func timeOfDay(t pgtype.Time) schedule.TimeOfDay {
	return schedule.TimeOfDay(time.Duration(t.Microseconds) * time.Microsecond)
}

// Schedules

func (q *queries) WeeklySchedule(ctx context.Context, clinicID uuid.UUID, weekday time.Weekday) (*schedule.Schedule, error) {
	return q.loadWeekly(ctx, clinicID, weekday, "")
}

func (q *queries) SpecialDateSchedule(ctx context.Context, clinicID uuid.UUID, date time.Time) (*schedule.Schedule, error) {
	return q.loadSpecial(ctx, clinicID, date, "")
}

func (q *queries) loadWeekly(ctx context.Context, clinicID uuid.UUID, weekday time.Weekday, lock string) (*schedule.Schedule, error) {
	s := schedule.Schedule{Kind: schedule.KindWeekly}
	var wd int16
	err := q.db.QueryRow(ctx, `
		SELECT id, clinic_id, weekday, is_available
		FROM weekly_schedules
		WHERE clinic_id = $1 AND weekday = $2
	`+lock, clinicID, int16(weekday)).Scan(&s.ID, &s.ClinicID, &wd, &s.IsAvailable)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, schedule.ErrScheduleNotFound
		}
		return nil, fmt.Errorf("load weekly schedule: %w", err)
	}
	s.Weekday = time.Weekday(wd)

	s.Intervals, err = q.intervals(ctx, "weekly_schedule_id", s.ID)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func (q *queries) loadSpecial(ctx context.Context, clinicID uuid.UUID, date time.Time, lock string) (*schedule.Schedule, error) {
	s := schedule.Schedule{Kind: schedule.KindSpecialDate}
	err := q.db.QueryRow(ctx, `
		SELECT id, clinic_id, date, is_available
		FROM special_date_schedules
		WHERE clinic_id = $1 AND date = $2
	`+lock, clinicID, date).Scan(&s.ID, &s.ClinicID, &s.Date, &s.IsAvailable)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, schedule.ErrScheduleNotFound
		}
		return nil, fmt.Errorf("load special date schedule: %w", err)
	}
	s.Weekday = s.Date.Weekday()

	s.Intervals, err = q.intervals(ctx, "special_schedule_id", s.ID)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func (q *queries) intervals(ctx context.Context, ownerColumn string, scheduleID uuid.UUID) ([]schedule.Interval, error) {
	rows, err := q.db.Query(ctx, `
		SELECT start_time, end_time
		FROM open_intervals
		WHERE `+ownerColumn+` = $1
		ORDER BY start_time
	`, scheduleID)
	if err != nil {
		return nil, fmt.Errorf("load intervals: %w", err)
	}
	defer rows.Close()

	var result []schedule.Interval
	for rows.Next() {
		var start, end pgtype.Time
		if err := rows.Scan(&start, &end); err != nil {
			return nil, fmt.Errorf("scan interval: %w", err)
		}
		result = append(result, schedule.Interval{Start: timeOfDay(start), End: timeOfDay(end)})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (q *queries) LockWeeklySchedule(ctx context.Context, clinicID uuid.UUID, weekday time.Weekday) (*schedule.Schedule, error) {
	_, err := q.db.Exec(ctx, `
		INSERT INTO weekly_schedules (id, clinic_id, weekday, is_available)
		VALUES ($1, $2, $3, false)
		ON CONFLICT (clinic_id, weekday) DO NOTHING
	`, uuid.New(), clinicID, int16(weekday))
	if err != nil {
		return nil, fmt.Errorf("ensure weekly schedule: %w", err)
	}
	return q.loadWeekly(ctx, clinicID, weekday, " FOR UPDATE")
}

// ResolveForShare takes the weekday row before the override row, the same order the
// schedule editors lock them in.
func (q *queries) ResolveForShare(ctx context.Context, clinicID uuid.UUID, date time.Time) (schedule.Schedule, error) {
	weekly, err := q.loadWeekly(ctx, clinicID, date.Weekday(), " FOR SHARE")
	if err != nil && !errors.Is(err, schedule.ErrScheduleNotFound) {
		return schedule.Schedule{}, err
	}
	special, err := q.loadSpecial(ctx, clinicID, date, " FOR SHARE")
	switch {
	case err == nil:
		return *special, nil
	case !errors.Is(err, schedule.ErrScheduleNotFound):
		return schedule.Schedule{}, err
	}
	if weekly == nil {
		return schedule.Schedule{ClinicID: clinicID, Kind: schedule.KindWeekly, Weekday: date.Weekday()}, nil
	}
	return *weekly, nil
}

func (q *queries) lockWeekdayRow(ctx context.Context, clinicID uuid.UUID, weekday time.Weekday) error {
	var id uuid.UUID
	err := q.db.QueryRow(ctx, `
		SELECT id
		FROM weekly_schedules
		WHERE clinic_id = $1 AND weekday = $2
		FOR UPDATE
	`, clinicID, int16(weekday)).Scan(&id)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("lock weekly schedule: %w", err)
	}
	return nil
}

func (q *queries) LockSpecialDateSchedule(ctx context.Context, clinicID uuid.UUID, date time.Time) (*schedule.Schedule, bool, error) {
	// A booking that saw no override holds the weekday row; a new override must wait for it.
	if err := q.lockWeekdayRow(ctx, clinicID, date.Weekday()); err != nil {
		return nil, false, err
	}
	tag, err := q.db.Exec(ctx, `
		INSERT INTO special_date_schedules (id, clinic_id, date, is_available)
		VALUES ($1, $2, $3, true)
		ON CONFLICT (clinic_id, date) DO NOTHING
	`, uuid.New(), clinicID, date)
	if err != nil {
		return nil, false, fmt.Errorf("ensure special date schedule: %w", err)
	}
	s, err := q.loadSpecial(ctx, clinicID, date, " FOR UPDATE")
	if err != nil {
		return nil, false, err
	}
	return s, tag.RowsAffected() == 1, nil
}

func (q *queries) ReplaceIntervals(ctx context.Context, sched *schedule.Schedule, intervals []schedule.Interval, isAvailable bool) error {
	table, ownerColumn := "weekly_schedules", "weekly_schedule_id"
	if sched.Kind == schedule.KindSpecialDate {
		table, ownerColumn = "special_date_schedules", "special_schedule_id"
	}

	if _, err := q.db.Exec(ctx, `DELETE FROM open_intervals WHERE `+ownerColumn+` = $1`, sched.ID); err != nil {
		return fmt.Errorf("delete intervals: %w", err)
	}
	for _, iv := range intervals {
		_, err := q.db.Exec(ctx, `
			INSERT INTO open_intervals (`+ownerColumn+`, start_time, end_time)
			VALUES ($1, $2, $3)
		`, sched.ID, pgTime(iv.Start), pgTime(iv.End))
		if err != nil {
			return fmt.Errorf("insert interval %s: %w", iv, err)
		}
	}
	if _, err := q.db.Exec(ctx, `
		UPDATE `+table+`
		SET is_available = $2, updated_at = now()
		WHERE id = $1
	`, sched.ID, isAvailable); err != nil {
		return fmt.Errorf("update schedule availability: %w", err)
	}
	return nil
}

// Appointments

const appointmentColumns = `id, patient_id, clinic_id, visit_date, visit_time, status,
	actual_start_time, actual_end_time, notes, cancelled_at, cancelled_by, cancel_reason,
	created_at, updated_at`

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var (
		a         Appointment
		visitTime pgtype.Time
		status    string
		reason    *string
	)
	err := row.Scan(
		&a.ID,
		&a.PatientID,
		&a.ClinicID,
		&a.VisitDate,
		&visitTime,
		&status,
		&a.ActualStartTime,
		&a.ActualEndTime,
		&a.Notes,
		&a.CancelledAt,
		&a.CancelledBy,
		&reason,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAppointmentNotFound
		}
		return nil, err
	}

	a.VisitTime = timeOfDay(visitTime)
	a.Status = Status(status)
	if reason != nil {
		a.CancelReason = CancelReason(*reason)
	}
	return &a, nil
}

func collectAppointments(rows pgx.Rows, err error) ([]Appointment, error) {
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *a)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func nullableReason(r CancelReason) *string {
	if r == "" {
		return nil
	}
	s := string(r)
	return &s
}

func (q *queries) GetAppointment(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	row := q.db.QueryRow(ctx, `SELECT `+appointmentColumns+` FROM appointments WHERE id = $1`, id)
	return scanAppointment(row)
}

func (q *queries) GetAppointmentForUpdate(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	row := q.db.QueryRow(ctx, `SELECT `+appointmentColumns+` FROM appointments WHERE id = $1 FOR UPDATE`, id)
	return scanAppointment(row)
}

func (q *queries) ListDay(ctx context.Context, clinicID uuid.UUID, date time.Time) ([]Appointment, error) {
	result, err := collectAppointments(q.db.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE clinic_id = $1 AND visit_date = $2
		ORDER BY visit_time, created_at
	`, clinicID, date))
	if err != nil {
		return nil, fmt.Errorf("list day appointments: %w", err)
	}
	return result, nil
}

func (q *queries) BookedTimes(ctx context.Context, clinicID uuid.UUID, date time.Time) ([]schedule.TimeOfDay, error) {
	rows, err := q.db.Query(ctx, `
		SELECT visit_time
		FROM appointments
		WHERE clinic_id = $1 AND visit_date = $2 AND status <> 'cancelled'
	`, clinicID, date)
	if err != nil {
		return nil, fmt.Errorf("list booked times: %w", err)
	}
	defer rows.Close()

	var result []schedule.TimeOfDay
	for rows.Next() {
		var t pgtype.Time
		if err := rows.Scan(&t); err != nil {
			return nil, err
		}
		result = append(result, timeOfDay(t))
	}
	return result, rows.Err()
}

func (q *queries) InsertAppointment(ctx context.Context, a *Appointment) error {
	_, err := q.db.Exec(ctx, `
		INSERT INTO appointments (id, patient_id, clinic_id, visit_date, visit_time, status, notes, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $8)
	`, a.ID, a.PatientID, a.ClinicID, a.VisitDate, pgTime(a.VisitTime), string(a.Status), a.Notes, a.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert appointment: %w", mapPgError(err))
	}
	return nil
}

func (q *queries) UpdateAppointment(ctx context.Context, a *Appointment) error {
	tag, err := q.db.Exec(ctx, `
		UPDATE appointments
		SET status = $2,
		    actual_start_time = $3,
		    actual_end_time = $4,
		    cancelled_at = $5,
		    cancelled_by = $6,
		    cancel_reason = $7,
		    updated_at = $8
		WHERE id = $1
	`, a.ID, string(a.Status), a.ActualStartTime, a.ActualEndTime, a.CancelledAt, a.CancelledBy, nullableReason(a.CancelReason), a.UpdatedAt)
	if err != nil {
		return fmt.Errorf("update appointment: %w", mapPgError(err))
	}
	if tag.RowsAffected() == 0 {
		return ErrAppointmentNotFound
	}
	return nil
}

func (q *queries) SlotOccupied(ctx context.Context, clinicID uuid.UUID, date time.Time, at schedule.TimeOfDay, exclude uuid.UUID) (bool, error) {
	var taken bool
	err := q.db.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM appointments
			WHERE clinic_id = $1 AND visit_date = $2 AND visit_time = $3
			  AND status <> 'cancelled' AND id <> $4
		)
	`, clinicID, date, pgTime(at), exclude).Scan(&taken)
	if err != nil {
		return false, fmt.Errorf("check slot: %w", err)
	}
	return taken, nil
}

func (q *queries) ListWaitingForWeekday(ctx context.Context, clinicID uuid.UUID, weekday time.Weekday, fromDate time.Time) ([]Appointment, error) {
	result, err := collectAppointments(q.db.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments a
		WHERE a.clinic_id = $1
		  AND a.status = 'waiting'
		  AND a.visit_date >= $3
		  AND EXTRACT(DOW FROM a.visit_date) = $2
		  AND NOT EXISTS (
		      SELECT 1 FROM special_date_schedules s
		      WHERE s.clinic_id = a.clinic_id AND s.date = a.visit_date
		  )
		ORDER BY a.visit_date, a.visit_time
		FOR UPDATE OF a
	`, clinicID, int(weekday), fromDate))
	if err != nil {
		return nil, fmt.Errorf("list waiting for weekday: %w", err)
	}
	return result, nil
}

func (q *queries) ListWaitingOnDate(ctx context.Context, clinicID uuid.UUID, date time.Time) ([]Appointment, error) {
	result, err := collectAppointments(q.db.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE clinic_id = $1 AND visit_date = $2 AND status = 'waiting'
		ORDER BY visit_time
		FOR UPDATE
	`, clinicID, date))
	if err != nil {
		return nil, fmt.Errorf("list waiting on date: %w", err)
	}
	return result, nil
}

func (q *queries) CancelAppointments(ctx context.Context, ids []uuid.UUID, at time.Time, by uuid.UUID, reason CancelReason) ([]Appointment, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	result, err := collectAppointments(q.db.Query(ctx, `
		UPDATE appointments
		SET status = 'cancelled',
		    cancelled_at = $2,
		    cancelled_by = $3,
		    cancel_reason = $4,
		    updated_at = $2
		WHERE id = ANY($1) AND status = 'waiting'
		RETURNING `+appointmentColumns, ids, at, by, string(reason)))
	if err != nil {
		return nil, fmt.Errorf("cancel appointments: %w", err)
	}
	return result, nil
}

func (q *queries) InsertEvent(ctx context.Context, ev EventLog) error {
	_, err := q.db.Exec(ctx, `
		INSERT INTO event_logs (event_type, appointment_id, payload, created_at)
		VALUES ($1, $2, $3, COALESCE($4, now()))
	`, ev.EventType, ev.AppointmentID, ev.Payload, nullableTime(ev.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert event log: %w", err)
	}
	return nil
}

func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
