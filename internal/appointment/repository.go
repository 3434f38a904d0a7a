package appointment

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/clinic-appointment-scheduling/internal/schedule"
)

var (
	ErrAppointmentNotFound = errors.New("appointment not found")
	// ErrSlotTaken reports a write that hit the live-slot unique index.
	ErrSlotTaken = errors.New("slot already taken")
	// ErrTransient marks serialization failures and deadlocks worth one retry.
	ErrTransient = errors.New("transient storage failure")
)

// Store is the read side plus the transaction boundary for all writes.
type Store interface {
	schedule.Source

	// InTx runs fn in one transaction. fn's error rolls everything back.
	InTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error

	GetAppointment(ctx context.Context, id uuid.UUID) (*Appointment, error)
	// ListDay returns every appointment of clinicID on date ordered by visit time.
	ListDay(ctx context.Context, clinicID uuid.UUID, date time.Time) ([]Appointment, error)
	// BookedTimes returns the visit times of live appointments of clinicID on date.
	BookedTimes(ctx context.Context, clinicID uuid.UUID, date time.Time) ([]schedule.TimeOfDay, error)
}

// Tx is the transactional view handed to InTx callbacks.
type Tx interface {
	schedule.Source

	// LockWeeklySchedule returns the weekday template of clinicID, creating a closed one
	// when missing, and holds a row lock on it until the transaction ends.
	LockWeeklySchedule(ctx context.Context, clinicID uuid.UUID, weekday time.Weekday) (*schedule.Schedule, error)
	// LockSpecialDateSchedule does the same for a date override, after locking the weekday
	// template row of date when there is one. created reports whether the override did not
	// exist before this call.
	LockSpecialDateSchedule(ctx context.Context, clinicID uuid.UUID, date time.Time) (sched *schedule.Schedule, created bool, err error)
	// ResolveForShare resolves date like schedule.Resolve but share-locks the rows it read,
	// so a schedule edit of that date waits until this transaction ends.
	ResolveForShare(ctx context.Context, clinicID uuid.UUID, date time.Time) (schedule.Schedule, error)
	// ReplaceIntervals rewrites the schedule's intervals and availability flag.
	ReplaceIntervals(ctx context.Context, sched *schedule.Schedule, intervals []schedule.Interval, isAvailable bool) error

	GetAppointmentForUpdate(ctx context.Context, id uuid.UUID) (*Appointment, error)
	InsertAppointment(ctx context.Context, a *Appointment) error
	UpdateAppointment(ctx context.Context, a *Appointment) error
	// SlotOccupied reports whether a live appointment other than exclude holds the slot.
	SlotOccupied(ctx context.Context, clinicID uuid.UUID, date time.Time, at schedule.TimeOfDay, exclude uuid.UUID) (bool, error)
	// ListWaitingForWeekday returns waiting appointments of clinicID on weekday from fromDate
	// on, skipping dates that carry a date override.
	ListWaitingForWeekday(ctx context.Context, clinicID uuid.UUID, weekday time.Weekday, fromDate time.Time) ([]Appointment, error)
	ListWaitingOnDate(ctx context.Context, clinicID uuid.UUID, date time.Time) ([]Appointment, error)
	// CancelAppointments cancels those of ids still waiting and returns them as updated.
	CancelAppointments(ctx context.Context, ids []uuid.UUID, at time.Time, by uuid.UUID, reason CancelReason) ([]Appointment, error)
	InsertEvent(ctx context.Context, ev EventLog) error
}
