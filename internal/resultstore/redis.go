package resultstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"
)

// Redis keeps one hash per run: field = node id, value = JSON record.
type Redis struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// RedisOptions configures the Redis backend.
type RedisOptions struct {
	Addr     string
	Password string
	DB       int
	Prefix   string
	// TTL bounds how long a run's results are kept. Zero keeps them forever.
	TTL time.Duration
}

// NewRedis connects to Redis and verifies the connection.
func NewRedis(ctx context.Context, opts RedisOptions) (*Redis, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connecting to redis at %s: %w", opts.Addr, err)
	}
	return NewRedisWithClient(client, opts.Prefix, opts.TTL), nil
}

// NewRedisWithClient wraps an existing client.
func NewRedisWithClient(client *redis.Client, prefix string, ttl time.Duration) *Redis {
	if prefix == "" {
		prefix = "flowbridge"
	}
	return &Redis{client: client, prefix: prefix, ttl: ttl}
}

func (r *Redis) key(runID string) string {
	return fmt.Sprintf("%s:run:%s:results", r.prefix, runID)
}

// Save writes a record into the run's hash.
func (r *Redis) Save(ctx context.Context, rec Record) error {
	b, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encoding record: %w", err)
	}
	key := r.key(rec.RunID)
	pipe := r.client.TxPipeline()
	pipe.HSet(ctx, key, rec.NodeID, b)
	if r.ttl > 0 {
		pipe.Expire(ctx, key, r.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("saving %s/%s: %w", rec.RunID, rec.NodeID, err)
	}
	return nil
}

// Get reads one record.
func (r *Redis) Get(ctx context.Context, runID, nodeID string) (*Record, error) {
	b, err := r.client.HGet(ctx, r.key(runID), nodeID).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("reading %s/%s: %w", runID, nodeID, err)
	}
	var rec Record
	if err := json.Unmarshal(b, &rec); err != nil {
		return nil, fmt.Errorf("decoding %s/%s: %w", runID, nodeID, err)
	}
	return &rec, nil
}

// List reads every record of a run, ordered by node id.
func (r *Redis) List(ctx context.Context, runID string) ([]Record, error) {
	all, err := r.client.HGetAll(ctx, r.key(runID)).Result()
	if err != nil {
		return nil, fmt.Errorf("listing %s: %w", runID, err)
	}
	out := make([]Record, 0, len(all))
	for nodeID, raw := range all {
		var rec Record
		if err := json.Unmarshal([]byte(raw), &rec); err != nil {
			return nil, fmt.Errorf("decoding %s/%s: %w", runID, nodeID, err)
		}
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].NodeID < out[j].NodeID })
	return out, nil
}

// Close closes the client.
func (r *Redis) Close() error { return r.client.Close() }
