package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"
)

// MatchJobsChannel is where matching requests are published.
const MatchJobsChannel = "CMD_MATCH_JOBS"

// MatchTrigger asks the external matching engine to run over newly
// ingested jobs. Implementations must not block for long; callers invoke
// them detached from the request.
type MatchTrigger interface {
	Trigger(ctx context.Context, newJobs int) error
}

// MatchFunc adapts a plain function to MatchTrigger.
type MatchFunc func(ctx context.Context, newJobs int) error

func (f MatchFunc) Trigger(ctx context.Context, newJobs int) error {
	return f(ctx, newJobs)
}

// NewRedisClient creates and verifies a Redis client connection.
func NewRedisClient(ctx context.Context, redisURL string) (*redis.Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("redis.ParseURL: %w", err)
	}

	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return rdb, nil
}

// RedisMatchTrigger publishes a CMD_MATCH_JOBS event for the matcher.
type RedisMatchTrigger struct {
	rdb     redis.UniversalClient
	channel string
}

func NewRedisMatchTrigger(rdb redis.UniversalClient) *RedisMatchTrigger {
	return &RedisMatchTrigger{rdb: rdb, channel: MatchJobsChannel}
}

type matchEvent struct {
	Type        string    `json:"type"`
	NewJobs     int       `json:"newJobs"`
	TriggeredAt time.Time `json:"triggeredAt"`
}

func (t *RedisMatchTrigger) Trigger(ctx context.Context, newJobs int) error {
	event, err := json.Marshal(matchEvent{
		Type:        MatchJobsChannel,
		NewJobs:     newJobs,
		TriggeredAt: time.Now().UTC(),
	})
	if err != nil {
		return err
	}
	if err := t.rdb.Publish(ctx, t.channel, event).Err(); err != nil {
		return fmt.Errorf("publish %s: %w", t.channel, err)
	}
	return nil
}

// LogMatchTrigger only logs; used when no broker is configured.
type LogMatchTrigger struct{}

func (LogMatchTrigger) Trigger(_ context.Context, newJobs int) error {
	log.Printf("Matching requested for %d new jobs (no broker configured)", newJobs)
	return nil
}
