package appointment

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/clinic-appointment-scheduling/internal/directory"
	"github.com/hackgods/clinic-appointment-scheduling/internal/notify"
	"github.com/hackgods/clinic-appointment-scheduling/internal/schedule"
)

// memStore is an in-memory Store. Transactions run one at a time on a copy of the state
// that replaces the original only on success.
type memStore struct {
	mu    sync.Mutex
	state *memState

	// transientFailures makes the next n transactions fail with ErrTransient.
	transientFailures int
	failEvents        bool
}

func newMemStore() *memStore {
	return &memStore{state: &memState{
		appts:   map[uuid.UUID]Appointment{},
		weekly:  map[string]*schedule.Schedule{},
		special: map[string]*schedule.Schedule{},
	}}
}

func (m *memStore) InTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.transientFailures > 0 {
		m.transientFailures--
		return fmt.Errorf("commit tx: %w", ErrTransient)
	}

	work := m.state.clone()
	work.failEvents = m.failEvents
	if err := fn(ctx, work); err != nil {
		return err
	}
	m.state = work
	return nil
}

func (m *memStore) read() *memState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.clone()
}

func (m *memStore) SpecialDateSchedule(ctx context.Context, clinicID uuid.UUID, date time.Time) (*schedule.Schedule, error) {
	return m.read().SpecialDateSchedule(ctx, clinicID, date)
}

func (m *memStore) WeeklySchedule(ctx context.Context, clinicID uuid.UUID, weekday time.Weekday) (*schedule.Schedule, error) {
	return m.read().WeeklySchedule(ctx, clinicID, weekday)
}

func (m *memStore) GetAppointment(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	return m.read().GetAppointmentForUpdate(ctx, id)
}

func (m *memStore) ListDay(_ context.Context, clinicID uuid.UUID, date time.Time) ([]Appointment, error) {
	st := m.read()
	return st.filter(func(a Appointment) bool {
		return a.ClinicID == clinicID && a.VisitDate.Equal(date)
	}), nil
}

func (m *memStore) BookedTimes(_ context.Context, clinicID uuid.UUID, date time.Time) ([]schedule.TimeOfDay, error) {
	st := m.read()
	var result []schedule.TimeOfDay
	for _, a := range st.appts {
		if a.ClinicID == clinicID && a.VisitDate.Equal(date) && a.Status != StatusCancelled {
			result = append(result, a.VisitTime)
		}
	}
	return result, nil
}

// putWeekly and putAppointment seed state directly, bypassing the service.
func (m *memStore) putWeekly(clinicID uuid.UUID, weekday time.Weekday, intervals ...schedule.Interval) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state.weekly[weeklyKey(clinicID, weekday)] = &schedule.Schedule{
		ID:          uuid.New(),
		ClinicID:    clinicID,
		Kind:        schedule.KindWeekly,
		Weekday:     weekday,
		IsAvailable: true,
		Intervals:   intervals,
	}
}

func (m *memStore) putAppointment(a Appointment) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state.appts[a.ID] = a
}

func (m *memStore) sharedResolves() int {
	return m.read().sharedResolves
}

func (m *memStore) events() []EventLog {
	return m.read().events
}

type memState struct {
	appts      map[uuid.UUID]Appointment
	weekly     map[string]*schedule.Schedule
	special    map[string]*schedule.Schedule
	events     []EventLog
	failEvents bool
	// sharedResolves counts ResolveForShare calls that committed.
	sharedResolves int
}

func weeklyKey(clinicID uuid.UUID, weekday time.Weekday) string {
	return fmt.Sprintf("%s/%d", clinicID, weekday)
}

func specialKey(clinicID uuid.UUID, date time.Time) string {
	return clinicID.String() + "/" + schedule.FormatDate(date)
}

func cloneSchedule(s *schedule.Schedule) *schedule.Schedule {
	c := *s
	c.Intervals = append([]schedule.Interval(nil), s.Intervals...)
	return &c
}

func (s *memState) clone() *memState {
	c := &memState{
		appts:   make(map[uuid.UUID]Appointment, len(s.appts)),
		weekly:  make(map[string]*schedule.Schedule, len(s.weekly)),
		special: make(map[string]*schedule.Schedule, len(s.special)),
		events:  append([]EventLog(nil), s.events...),

		sharedResolves: s.sharedResolves,
	}
	for k, v := range s.appts {
		c.appts[k] = v
	}
	for k, v := range s.weekly {
		c.weekly[k] = cloneSchedule(v)
	}
	for k, v := range s.special {
		c.special[k] = cloneSchedule(v)
	}
	return c
}

func (s *memState) filter(keep func(Appointment) bool) []Appointment {
	var result []Appointment
	for _, a := range s.appts {
		if keep(a) {
			result = append(result, a)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if !result[i].VisitDate.Equal(result[j].VisitDate) {
			return result[i].VisitDate.Before(result[j].VisitDate)
		}
		return result[i].VisitTime < result[j].VisitTime
	})
	return result
}

func (s *memState) SpecialDateSchedule(_ context.Context, clinicID uuid.UUID, date time.Time) (*schedule.Schedule, error) {
	if sch, ok := s.special[specialKey(clinicID, date)]; ok {
		return cloneSchedule(sch), nil
	}
	return nil, schedule.ErrScheduleNotFound
}

func (s *memState) WeeklySchedule(_ context.Context, clinicID uuid.UUID, weekday time.Weekday) (*schedule.Schedule, error) {
	if sch, ok := s.weekly[weeklyKey(clinicID, weekday)]; ok {
		return cloneSchedule(sch), nil
	}
	return nil, schedule.ErrScheduleNotFound
}

func (s *memState) ResolveForShare(ctx context.Context, clinicID uuid.UUID, date time.Time) (schedule.Schedule, error) {
	s.sharedResolves++
	return schedule.Resolve(ctx, s, clinicID, date)
}

func (s *memState) LockWeeklySchedule(_ context.Context, clinicID uuid.UUID, weekday time.Weekday) (*schedule.Schedule, error) {
	key := weeklyKey(clinicID, weekday)
	if _, ok := s.weekly[key]; !ok {
		s.weekly[key] = &schedule.Schedule{ID: uuid.New(), ClinicID: clinicID, Kind: schedule.KindWeekly, Weekday: weekday}
	}
	return cloneSchedule(s.weekly[key]), nil
}

func (s *memState) LockSpecialDateSchedule(_ context.Context, clinicID uuid.UUID, date time.Time) (*schedule.Schedule, bool, error) {
	key := specialKey(clinicID, date)
	_, exists := s.special[key]
	if !exists {
		s.special[key] = &schedule.Schedule{
			ID:          uuid.New(),
			ClinicID:    clinicID,
			Kind:        schedule.KindSpecialDate,
			Weekday:     date.Weekday(),
			Date:        date,
			IsAvailable: true,
		}
	}
	return cloneSchedule(s.special[key]), !exists, nil
}

func (s *memState) ReplaceIntervals(_ context.Context, sched *schedule.Schedule, intervals []schedule.Interval, isAvailable bool) error {
	var stored *schedule.Schedule
	if sched.Kind == schedule.KindSpecialDate {
		stored = s.special[specialKey(sched.ClinicID, sched.Date)]
	} else {
		stored = s.weekly[weeklyKey(sched.ClinicID, sched.Weekday)]
	}
	if stored == nil {
		return errors.New("schedule not locked")
	}
	stored.Intervals = append([]schedule.Interval(nil), intervals...)
	stored.IsAvailable = isAvailable
	return nil
}

func (s *memState) GetAppointmentForUpdate(_ context.Context, id uuid.UUID) (*Appointment, error) {
	a, ok := s.appts[id]
	if !ok {
		return nil, ErrAppointmentNotFound
	}
	return &a, nil
}

func (s *memState) liveAt(clinicID uuid.UUID, date time.Time, at schedule.TimeOfDay, exclude uuid.UUID) bool {
	for _, a := range s.appts {
		if a.ID != exclude && a.ClinicID == clinicID && a.VisitDate.Equal(date) && a.VisitTime == at && a.Status != StatusCancelled {
			return true
		}
	}
	return false
}

func (s *memState) InsertAppointment(_ context.Context, a *Appointment) error {
	if s.liveAt(a.ClinicID, a.VisitDate, a.VisitTime, a.ID) {
		return fmt.Errorf("insert appointment: %w", ErrSlotTaken)
	}
	s.appts[a.ID] = *a
	return nil
}

func (s *memState) UpdateAppointment(_ context.Context, a *Appointment) error {
	if _, ok := s.appts[a.ID]; !ok {
		return ErrAppointmentNotFound
	}
	if a.Status != StatusCancelled && s.liveAt(a.ClinicID, a.VisitDate, a.VisitTime, a.ID) {
		return fmt.Errorf("update appointment: %w", ErrSlotTaken)
	}
	s.appts[a.ID] = *a
	return nil
}

func (s *memState) SlotOccupied(_ context.Context, clinicID uuid.UUID, date time.Time, at schedule.TimeOfDay, exclude uuid.UUID) (bool, error) {
	return s.liveAt(clinicID, date, at, exclude), nil
}

func (s *memState) ListWaitingForWeekday(_ context.Context, clinicID uuid.UUID, weekday time.Weekday, fromDate time.Time) ([]Appointment, error) {
	return s.filter(func(a Appointment) bool {
		_, overridden := s.special[specialKey(clinicID, a.VisitDate)]
		return a.ClinicID == clinicID && a.Status == StatusWaiting && a.VisitDate.Weekday() == weekday &&
			!a.VisitDate.Before(fromDate) && !overridden
	}), nil
}

func (s *memState) ListWaitingOnDate(_ context.Context, clinicID uuid.UUID, date time.Time) ([]Appointment, error) {
	return s.filter(func(a Appointment) bool {
		return a.ClinicID == clinicID && a.Status == StatusWaiting && a.VisitDate.Equal(date)
	}), nil
}

func (s *memState) CancelAppointments(_ context.Context, ids []uuid.UUID, at time.Time, by uuid.UUID, reason CancelReason) ([]Appointment, error) {
	var result []Appointment
	for _, id := range ids {
		a, ok := s.appts[id]
		if !ok || a.Status != StatusWaiting {
			continue
		}
		a.Status = StatusCancelled
		a.CancelledAt = &at
		a.CancelledBy = &by
		a.CancelReason = reason
		a.UpdatedAt = at
		s.appts[id] = a
		result = append(result, a)
	}
	return result, nil
}

func (s *memState) InsertEvent(_ context.Context, ev EventLog) error {
	if s.failEvents {
		return errors.New("insert event log: connection reset")
	}
	s.events = append(s.events, ev)
	return nil
}

type fakeClinics map[uuid.UUID]directory.Clinic

func (f fakeClinics) GetClinic(_ context.Context, id uuid.UUID) (directory.Clinic, error) {
	c, ok := f[id]
	if !ok {
		return directory.Clinic{}, directory.ErrClinicNotFound
	}
	return c, nil
}

type fakePatients map[uuid.UUID]notify.Recipient

func (f fakePatients) PatientContact(_ context.Context, id uuid.UUID) (notify.Recipient, error) {
	r, ok := f[id]
	if !ok {
		return notify.Recipient{}, directory.ErrPatientNotFound
	}
	return r, nil
}

type scheduledJob struct {
	JobID  string
	FireAt time.Time
}

type recordingReminders struct {
	mu   sync.Mutex
	jobs []scheduledJob
}

func (r *recordingReminders) ScheduleOnce(_ context.Context, jobID string, fireAt time.Time, _ uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.jobs = append(r.jobs, scheduledJob{JobID: jobID, FireAt: fireAt})
	return nil
}

type sentMessage struct {
	PatientID uuid.UUID
	Message   notify.Message
}

type recordingNotifier struct {
	mu   sync.Mutex
	sent []sentMessage
}

func (r *recordingNotifier) Dispatch(patientID uuid.UUID, msg notify.Message) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, sentMessage{PatientID: patientID, Message: msg})
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}
