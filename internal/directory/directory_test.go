package directory

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	pgxmock "github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetClinic(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	dir := NewPgDirectory(mock)
	id := uuid.New()

	mock.ExpectQuery("SELECT id, name, slot_duration_minutes, timezone").
		WithArgs(id).
		WillReturnRows(pgxmock.NewRows([]string{"id", "name", "slot_duration_minutes", "timezone"}).
			AddRow(id, "Northside Clinic", 15, "UTC"))

	c, err := dir.GetClinic(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, "Northside Clinic", c.Name)
	assert.Equal(t, 15*time.Minute, c.SlotDuration)
	assert.Equal(t, time.UTC, c.Location)

	mock.ExpectQuery("SELECT id, name, slot_duration_minutes, timezone").
		WithArgs(id).
		WillReturnError(pgx.ErrNoRows)

	_, err = dir.GetClinic(context.Background(), id)
	assert.ErrorIs(t, err, ErrClinicNotFound)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPatientContact(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	dir := NewPgDirectory(mock)
	id := uuid.New()
	phone := "+15550100"

	mock.ExpectQuery("SELECT id, name, phone, email").
		WithArgs(id).
		WillReturnRows(pgxmock.NewRows([]string{"id", "name", "phone", "email"}).
			AddRow(id, "Dana", &phone, (*string)(nil)))

	r, err := dir.PatientContact(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, "+15550100", r.Phone)
	assert.Empty(t, r.Email)
	assert.True(t, r.Reachable())

	mock.ExpectQuery("SELECT id, name, phone, email").
		WithArgs(id).
		WillReturnError(pgx.ErrNoRows)

	_, err = dir.PatientContact(context.Background(), id)
	assert.ErrorIs(t, err, ErrPatientNotFound)

	require.NoError(t, mock.ExpectationsWereMet())
}
