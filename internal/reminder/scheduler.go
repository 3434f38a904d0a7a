package reminder

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/hackgods/clinic-appointment-scheduling/internal/metrics"
)

const DefaultQueueKey = "reminders:due"

// Job is a fire-once reminder for one appointment.
type Job struct {
	JobID         string    `json:"job_id"`
	AppointmentID uuid.UUID `json:"appointment_id"`
	FireAt        time.Time `json:"fire_at"`
}

// Scheduler keeps reminder jobs in a Redis sorted set scored by fire time.
type Scheduler struct {
	client  *redis.Client
	key     string
	now     func() time.Time
	metrics *metrics.Collector
}

func NewScheduler(client *redis.Client, m *metrics.Collector) *Scheduler {
	return &Scheduler{
		client:  client,
		key:     DefaultQueueKey,
		now:     time.Now,
		metrics: m,
	}
}

// ScheduleOnce registers a job. A fireAt that is not in the future is silently skipped.
// Registering the same job again replaces nothing and is not an error.
func (s *Scheduler) ScheduleOnce(ctx context.Context, jobID string, fireAt time.Time, appointmentID uuid.UUID) error {
	if !fireAt.After(s.now()) {
		return nil
	}

	member, err := json.Marshal(Job{JobID: jobID, AppointmentID: appointmentID, FireAt: fireAt.UTC()})
	if err != nil {
		return fmt.Errorf("reminder: marshal job: %w", err)
	}

	err = s.client.ZAdd(ctx, s.key, redis.Z{
		Score:  float64(fireAt.UnixMilli()),
		Member: string(member),
	}).Err()
	if err != nil {
		return fmt.Errorf("reminder: schedule %s: %w", jobID, err)
	}
	s.metrics.ReminderScheduled()
	return nil
}

var claimScript = redis.NewScript(`
local items = redis.call("ZRANGEBYSCORE", KEYS[1], "-inf", ARGV[1], "LIMIT", 0, ARGV[2])
if #items > 0 then
  redis.call("ZREM", KEYS[1], unpack(items))
end
return items
`)

// Claim atomically removes and returns up to limit jobs due at now. Members that do not
// decode as a Job are dropped from the queue and counted as "malformed"; the rest of the
// batch is still returned.
func (s *Scheduler) Claim(ctx context.Context, now time.Time, limit int64) ([]Job, error) {
	res, err := claimScript.Run(ctx, s.client, []string{s.key},
		strconv.FormatInt(now.UnixMilli(), 10), limit).StringSlice()
	if err != nil {
		return nil, fmt.Errorf("reminder: claim due jobs: %w", err)
	}

	jobs := make([]Job, 0, len(res))
	for _, raw := range res {
		var j Job
		if err := json.Unmarshal([]byte(raw), &j); err != nil {
			s.metrics.ReminderDispatched("malformed")
			continue
		}
		jobs = append(jobs, j)
	}
	return jobs, nil
}

// Pending returns the number of jobs still queued.
func (s *Scheduler) Pending(ctx context.Context) (int64, error) {
	return s.client.ZCard(ctx, s.key).Result()
}
