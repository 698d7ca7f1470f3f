package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

const (
	trackerKeySuffix = ":scheduler:job:" // Redis key segment
	// Full key pattern: {prefix}:scheduler:job:{jobID}
	// Example: geofetch:scheduler:job:osisaf-north
)

// Tracker records when each job last ran
type Tracker interface {
	// GetLastRun returns zero time if the job has never run
	GetLastRun(ctx context.Context, jobID string) (time.Time, error)

	// SetLastRun persists with no TTL
	SetLastRun(ctx context.Context, jobID string, timestamp time.Time) error

	// DeleteLastRun removes the timestamp for a job dropped from config
	DeleteLastRun(ctx context.Context, jobID string) error

	// GetAllJobIDs returns all job IDs currently tracked
	GetAllJobIDs(ctx context.Context) ([]string, error)
}

type redisTracker struct {
	log       logrus.FieldLogger
	redis     *redis.Client
	keyPrefix string
}

// NewRedisTracker creates a Redis-backed tracker so restarts and other
// watchers see the same history
func NewRedisTracker(log logrus.FieldLogger, redisClient *redis.Client, prefix string) Tracker {
	return &redisTracker{
		log:       log.WithField("component", "schedule_tracker"),
		redis:     redisClient,
		keyPrefix: prefix + trackerKeySuffix,
	}
}

func (r *redisTracker) GetLastRun(ctx context.Context, jobID string) (time.Time, error) {
	key := r.keyPrefix + jobID
	val, err := r.redis.Get(ctx, key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			r.log.WithField("job_id", jobID).Debug("No last run found for job")
			return time.Time{}, nil
		}
		r.log.WithError(err).WithField("job_id", jobID).Error("Failed to get last run from Redis")
		return time.Time{}, fmt.Errorf("failed to get last run for job %s: %w", jobID, err)
	}

	timestamp, err := time.Parse(time.RFC3339, val)
	if err != nil {
		r.log.WithError(err).
			WithFields(logrus.Fields{
				"job_id":    jobID,
				"raw_value": val,
			}).
			Error("Failed to parse timestamp")
		return time.Time{}, fmt.Errorf("failed to parse timestamp for job %s: %w", jobID, err)
	}

	return timestamp, nil
}

func (r *redisTracker) SetLastRun(ctx context.Context, jobID string, timestamp time.Time) error {
	key := r.keyPrefix + jobID
	val := timestamp.UTC().Format(time.RFC3339)

	if err := r.redis.Set(ctx, key, val, 0).Err(); err != nil {
		r.log.WithError(err).
			WithFields(logrus.Fields{
				"job_id":    jobID,
				"timestamp": timestamp,
			}).
			Error("Failed to set last run in Redis")
		return fmt.Errorf("failed to set last run for job %s: %w", jobID, err)
	}

	r.log.WithFields(logrus.Fields{
		"job_id":    jobID,
		"timestamp": timestamp,
	}).Debug("Updated last run for job")

	return nil
}

func (r *redisTracker) DeleteLastRun(ctx context.Context, jobID string) error {
	if err := r.redis.Del(ctx, r.keyPrefix+jobID).Err(); err != nil {
		return fmt.Errorf("failed to delete last run for job %s: %w", jobID, err)
	}

	return nil
}

func (r *redisTracker) GetAllJobIDs(ctx context.Context) ([]string, error) {
	// SCAN rather than KEYS; the count hint is per iteration, not a limit
	const scanBatchSize = 100

	var jobIDs []string

	iter := r.redis.Scan(ctx, 0, r.keyPrefix+"*", scanBatchSize).Iterator()
	for iter.Next(ctx) {
		jobIDs = append(jobIDs, iter.Val()[len(r.keyPrefix):])
	}

	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("failed to scan job IDs: %w", err)
	}

	return jobIDs, nil
}

type memoryTracker struct {
	mu       sync.Mutex
	lastRuns map[string]time.Time
}

// NewMemoryTracker creates a tracker that forgets everything on restart
func NewMemoryTracker() Tracker {
	return &memoryTracker{lastRuns: make(map[string]time.Time)}
}

func (m *memoryTracker) GetLastRun(_ context.Context, jobID string) (time.Time, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.lastRuns[jobID], nil
}

func (m *memoryTracker) SetLastRun(_ context.Context, jobID string, timestamp time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.lastRuns[jobID] = timestamp

	return nil
}

func (m *memoryTracker) DeleteLastRun(_ context.Context, jobID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.lastRuns, jobID)

	return nil
}

func (m *memoryTracker) GetAllJobIDs(_ context.Context) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	ids := make([]string, 0, len(m.lastRuns))
	for id := range m.lastRuns {
		ids = append(ids, id)
	}

	return ids, nil
}

// Verify interface compliance at compile time
var (
	_ Tracker = (*redisTracker)(nil)
	_ Tracker = (*memoryTracker)(nil)
)
