package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// ErrEmpty is returned by Dequeue when no job arrived within the block window.
var ErrEmpty = errors.New("queue is empty")

type Config struct {
	URL          string
	MaxRetries   int
	RetryBackoff time.Duration
	PoolSize     int
	MinIdleConns int
}

// Queue is a Redis list-backed job queue. Producers RPUSH JSON payloads,
// the single consumer BLPOPs them. Job progress lives in a companion hash
// keyed by job ID so API pollers can read it without touching the list.
type Queue struct {
	client *redis.Client
	key    string
	logger *zerolog.Logger
}

func New(config Config, key string, logger *zerolog.Logger) (*Queue, error) {
	opts, err := redis.ParseURL(config.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	opts.MaxRetries = config.MaxRetries
	opts.MinRetryBackoff = config.RetryBackoff
	opts.PoolSize = config.PoolSize
	opts.MinIdleConns = config.MinIdleConns

	client := redis.NewClient(opts)

	// Test connection
	if err := client.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &Queue{
		client: client,
		key:    key,
		logger: logger,
	}, nil
}

func (q *Queue) Enqueue(ctx context.Context, payload interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal job: %w", err)
	}
	return q.client.RPush(ctx, q.key, data).Err()
}

// Dequeue blocks up to the given duration for the next job. ErrEmpty is
// returned on timeout so the consumer loop can re-check its context.
func (q *Queue) Dequeue(ctx context.Context, block time.Duration) ([]byte, error) {
	res, err := q.client.BLPop(ctx, block, q.key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrEmpty
		}
		return nil, err
	}
	// BLPOP returns [key, value]
	if len(res) != 2 {
		return nil, fmt.Errorf("unexpected BLPOP reply of length %d", len(res))
	}
	return []byte(res[1]), nil
}

// Length returns the number of pending jobs.
func (q *Queue) Length(ctx context.Context) (int64, error) {
	return q.client.LLen(ctx, q.key).Result()
}

type Progress struct {
	Processed int64 `json:"processed"`
	Total     int64 `json:"total"`
}

func (q *Queue) progressKey(jobID string) string {
	return q.key + ":progress:" + jobID
}

// SetProgress records fractional job progress with a TTL so abandoned
// entries age out on their own.
func (q *Queue) SetProgress(ctx context.Context, jobID string, p Progress) error {
	data, err := json.Marshal(p)
	if err != nil {
		return err
	}
	return q.client.Set(ctx, q.progressKey(jobID), data, 24*time.Hour).Err()
}

func (q *Queue) GetProgress(ctx context.Context, jobID string) (Progress, error) {
	var p Progress
	data, err := q.client.Get(ctx, q.progressKey(jobID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return p, ErrEmpty
		}
		return p, err
	}
	if err := json.Unmarshal(data, &p); err != nil {
		return p, err
	}
	return p, nil
}

func (q *Queue) Close() error {
	return q.client.Close()
}
