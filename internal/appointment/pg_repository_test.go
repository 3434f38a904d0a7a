package appointment

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hackgods/clinic-appointment-scheduling/internal/schedule"
)

func newMockStore(t *testing.T) (pgxmock.PgxPoolIface, *PgStore) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	return mock, NewPgStore(mock)
}

var appointmentCols = []string{
	"id", "patient_id", "clinic_id", "visit_date", "visit_time", "status",
	"actual_start_time", "actual_end_time", "notes", "cancelled_at", "cancelled_by", "cancel_reason",
	"created_at", "updated_at",
}

func TestPgStoreGetAppointment(t *testing.T) {
	mock, store := newMockStore(t)
	id, patient, clinic := uuid.New(), uuid.New(), uuid.New()
	created := time.Date(2026, 11, 2, 9, 0, 0, 0, time.UTC)
	reason := "patient"

	mock.ExpectQuery(`SELECT .+ FROM appointments WHERE id = \$1`).
		WithArgs(id).
		WillReturnRows(pgxmock.NewRows(appointmentCols).AddRow(
			id, patient, clinic, wednesday, pgTime(schedule.Clock(10, 15)), "cancelled",
			nil, nil, nil, &created, &patient, &reason,
			created, created,
		))

	a, err := store.GetAppointment(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, a.Status)
	assert.Equal(t, schedule.Clock(10, 15), a.VisitTime)
	assert.Equal(t, ReasonPatient, a.CancelReason)
	assert.Equal(t, patient, *a.CancelledBy)
	assert.Nil(t, a.ActualStartTime)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPgStoreGetAppointmentNotFound(t *testing.T) {
	mock, store := newMockStore(t)
	id := uuid.New()

	mock.ExpectQuery(`SELECT .+ FROM appointments WHERE id = \$1`).
		WithArgs(id).
		WillReturnRows(pgxmock.NewRows(appointmentCols))

	_, err := store.GetAppointment(context.Background(), id)
	assert.ErrorIs(t, err, ErrAppointmentNotFound)
}

func TestPgStoreInsertMapsUniqueViolation(t *testing.T) {
	mock, store := newMockStore(t)
	a := &Appointment{
		ID: uuid.New(), PatientID: uuid.New(), ClinicID: uuid.New(),
		VisitDate: wednesday, VisitTime: schedule.Clock(10, 0), Status: StatusWaiting,
		CreatedAt: start,
	}

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO appointments`).
		WithArgs(a.ID, a.PatientID, a.ClinicID, a.VisitDate, pgTime(a.VisitTime), "waiting", a.Notes, a.CreatedAt).
		WillReturnError(&pgconn.PgError{Code: "23505", ConstraintName: "appointments_active_slot_uidx"})
	mock.ExpectRollback()

	err := store.InTx(context.Background(), func(ctx context.Context, tx Tx) error {
		return tx.InsertAppointment(ctx, a)
	})
	assert.ErrorIs(t, err, ErrSlotTaken)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPgStoreInTxMarksSerializationFailureTransient(t *testing.T) {
	mock, store := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectCommit().WillReturnError(&pgconn.PgError{Code: "40001", Message: "could not serialize access"})
	mock.ExpectRollback()

	err := store.InTx(context.Background(), func(context.Context, Tx) error { return nil })
	assert.ErrorIs(t, err, ErrTransient)
}

func TestPgStoreWeeklySchedule(t *testing.T) {
	mock, store := newMockStore(t)
	clinicID, schedID := uuid.New(), uuid.New()

	mock.ExpectQuery(`FROM weekly_schedules`).
		WithArgs(clinicID, int16(time.Wednesday)).
		WillReturnRows(pgxmock.NewRows([]string{"id", "clinic_id", "weekday", "is_available"}).
			AddRow(schedID, clinicID, int16(3), true))
	mock.ExpectQuery(`FROM open_intervals\s+WHERE weekly_schedule_id = \$1`).
		WithArgs(schedID).
		WillReturnRows(pgxmock.NewRows([]string{"start_time", "end_time"}).
			AddRow(pgTime(schedule.Clock(8, 0)), pgTime(schedule.Clock(12, 0))).
			AddRow(pgTime(schedule.Clock(14, 0)), pgTime(schedule.Clock(18, 0))))

	s, err := store.WeeklySchedule(context.Background(), clinicID, time.Wednesday)
	require.NoError(t, err)
	assert.Equal(t, time.Wednesday, s.Weekday)
	assert.Equal(t, []schedule.Interval{
		{Start: schedule.Clock(8, 0), End: schedule.Clock(12, 0)},
		{Start: schedule.Clock(14, 0), End: schedule.Clock(18, 0)},
	}, s.Intervals)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPgStoreSpecialDateScheduleMissing(t *testing.T) {
	mock, store := newMockStore(t)
	clinicID := uuid.New()

	mock.ExpectQuery(`FROM special_date_schedules`).
		WithArgs(clinicID, wednesday).
		WillReturnRows(pgxmock.NewRows([]string{"id", "clinic_id", "date", "is_available"}))

	_, err := store.SpecialDateSchedule(context.Background(), clinicID, wednesday)
	assert.ErrorIs(t, err, schedule.ErrScheduleNotFound)
}

func TestPgStoreLockSpecialDateScheduleReportsCreation(t *testing.T) {
	mock, store := newMockStore(t)
	clinicID, schedID := uuid.New(), uuid.New()

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT id\s+FROM weekly_schedules[\s\S]+FOR UPDATE`).
		WithArgs(clinicID, int16(time.Wednesday)).
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow(uuid.New()))
	mock.ExpectExec(`INSERT INTO special_date_schedules`).
		WithArgs(pgxmock.AnyArg(), clinicID, wednesday).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectQuery(`FROM special_date_schedules[\s\S]+FOR UPDATE`).
		WithArgs(clinicID, wednesday).
		WillReturnRows(pgxmock.NewRows([]string{"id", "clinic_id", "date", "is_available"}).
			AddRow(schedID, clinicID, wednesday, true))
	mock.ExpectQuery(`FROM open_intervals`).
		WithArgs(schedID).
		WillReturnRows(pgxmock.NewRows([]string{"start_time", "end_time"}))
	mock.ExpectExec(`DELETE FROM open_intervals WHERE special_schedule_id = \$1`).
		WithArgs(schedID).
		WillReturnResult(pgxmock.NewResult("DELETE", 0))
	mock.ExpectExec(`INSERT INTO open_intervals \(special_schedule_id`).
		WithArgs(schedID, pgTime(schedule.Clock(9, 0)), pgTime(schedule.Clock(11, 0))).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec(`UPDATE special_date_schedules`).
		WithArgs(schedID, true).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectCommit()

	err := store.InTx(context.Background(), func(ctx context.Context, tx Tx) error {
		s, created, err := tx.LockSpecialDateSchedule(ctx, clinicID, wednesday)
		if err != nil {
			return err
		}
		if !created {
			return errors.New("expected a new override")
		}
		return tx.ReplaceIntervals(ctx, s, []schedule.Interval{{Start: schedule.Clock(9, 0), End: schedule.Clock(11, 0)}}, true)
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPgStoreResolveForShareFallsBackToWeekly(t *testing.T) {
	mock, store := newMockStore(t)
	clinicID, weeklyID := uuid.New(), uuid.New()

	mock.ExpectBegin()
	mock.ExpectQuery(`FROM weekly_schedules[\s\S]+FOR SHARE`).
		WithArgs(clinicID, int16(time.Wednesday)).
		WillReturnRows(pgxmock.NewRows([]string{"id", "clinic_id", "weekday", "is_available"}).
			AddRow(weeklyID, clinicID, int16(time.Wednesday), true))
	mock.ExpectQuery(`FROM open_intervals`).
		WithArgs(weeklyID).
		WillReturnRows(pgxmock.NewRows([]string{"start_time", "end_time"}).
			AddRow(pgTime(schedule.Clock(8, 0)), pgTime(schedule.Clock(12, 0))))
	mock.ExpectQuery(`FROM special_date_schedules[\s\S]+FOR SHARE`).
		WithArgs(clinicID, wednesday).
		WillReturnRows(pgxmock.NewRows([]string{"id", "clinic_id", "date", "is_available"}))
	mock.ExpectCommit()

	var got schedule.Schedule
	err := store.InTx(context.Background(), func(ctx context.Context, tx Tx) error {
		var err error
		got, err = tx.ResolveForShare(ctx, clinicID, wednesday)
		return err
	})
	require.NoError(t, err)
	assert.Equal(t, schedule.KindWeekly, got.Kind)
	assert.Equal(t, weeklyID, got.ID)
	assert.Equal(t, []schedule.Interval{{Start: schedule.Clock(8, 0), End: schedule.Clock(12, 0)}}, got.Intervals)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPgStoreResolveForSharePrefersOverride(t *testing.T) {
	mock, store := newMockStore(t)
	clinicID, specialID := uuid.New(), uuid.New()

	mock.ExpectBegin()
	mock.ExpectQuery(`FROM weekly_schedules[\s\S]+FOR SHARE`).
		WithArgs(clinicID, int16(time.Wednesday)).
		WillReturnRows(pgxmock.NewRows([]string{"id", "clinic_id", "weekday", "is_available"}))
	mock.ExpectQuery(`FROM special_date_schedules[\s\S]+FOR SHARE`).
		WithArgs(clinicID, wednesday).
		WillReturnRows(pgxmock.NewRows([]string{"id", "clinic_id", "date", "is_available"}).
			AddRow(specialID, clinicID, wednesday, false))
	mock.ExpectQuery(`FROM open_intervals`).
		WithArgs(specialID).
		WillReturnRows(pgxmock.NewRows([]string{"start_time", "end_time"}))
	mock.ExpectCommit()

	var got schedule.Schedule
	err := store.InTx(context.Background(), func(ctx context.Context, tx Tx) error {
		var err error
		got, err = tx.ResolveForShare(ctx, clinicID, wednesday)
		return err
	})
	require.NoError(t, err)
	assert.Equal(t, schedule.KindSpecialDate, got.Kind)
	assert.Equal(t, specialID, got.ID)
	assert.False(t, got.IsAvailable)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPgStoreCancelAppointmentsSkipsEmpty(t *testing.T) {
	mock, store := newMockStore(t)

	got, err := store.CancelAppointments(context.Background(), nil, start, uuid.New(), ReasonDayClosed)
	require.NoError(t, err)
	assert.Empty(t, got)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPgTimeRoundTrip(t *testing.T) {
	for _, tod := range []schedule.TimeOfDay{0, schedule.Clock(8, 30), schedule.EndOfDay} {
		assert.Equal(t, tod, timeOfDay(pgTime(tod)))
	}
	assert.Equal(t, pgtype.Time{Microseconds: int64(9 * time.Hour / time.Microsecond), Valid: true}, pgTime(schedule.Clock(9, 0)))
}
