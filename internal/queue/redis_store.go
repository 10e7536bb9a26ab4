package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/nerrad567/telemetry-core/internal/infrastructure/config"
)

// Key layout per queue, under <prefix>:<queue>:
//
//	jobs       hash   id -> job JSON
//	wait       zset   id scored by waitScore
//	delayed    zset   id scored by ready time (ms)
//	active     zset   id scored by lease deadline (ms)
//	completed  list   ids, newest first
//	failed     list   ids, newest first

// reserveScript promotes due delayed jobs, pops the best waiting job,
// bumps its stored attempt count and leases it. Returns the job JSON or nil.
//
// The count is rewritten in place rather than through cjson.encode, which
// would round large numbers and turn empty arrays into objects. Go encodes
// attempts right before maxAttempts and after data, so the last match is
// the envelope field.
var reserveScript = redis.NewScript(`
local function bump(raw)
  local s, e, n
  local from = 1
  while true do
    local a, b, c = string.find(raw, '"attempts":(%d+),"maxAttempts":', from)
    if not a then
      break
    end
    s, e, n = a, b, c
    from = b + 1
  end
  if not s then
    return raw
  end
  return string.sub(raw, 1, s - 1) .. '"attempts":' .. (tonumber(n) + 1) ..
    ',"maxAttempts":' .. string.sub(raw, e + 1)
end
local ready = redis.call('ZRANGEBYSCORE', KEYS[2], '-inf', ARGV[1], 'LIMIT', 0, 100)
for _, id in ipairs(ready) do
  redis.call('ZREM', KEYS[2], id)
  local raw = redis.call('HGET', KEYS[4], id)
  if raw then
    local prio = cjson.decode(raw).priority or 0
    redis.call('ZADD', KEYS[1], prio * tonumber(ARGV[3]) + tonumber(ARGV[1]), id)
  end
end
while true do
  local popped = redis.call('ZPOPMIN', KEYS[1])
  if #popped == 0 then
    return false
  end
  local id = popped[1]
  local raw = redis.call('HGET', KEYS[4], id)
  if raw then
    raw = bump(raw)
    redis.call('HSET', KEYS[4], id, raw)
    redis.call('ZADD', KEYS[3], ARGV[2], id)
    return raw
  end
end
`)

// finishScript moves an active job into a bounded terminal list.
// ARGV: id, job JSON, keep.
var finishScript = redis.NewScript(`
redis.call('ZREM', KEYS[1], ARGV[1])
local keep = tonumber(ARGV[3])
if keep <= 0 then
  redis.call('HDEL', KEYS[3], ARGV[1])
  return 0
end
redis.call('HSET', KEYS[3], ARGV[1], ARGV[2])
redis.call('LPUSH', KEYS[2], ARGV[1])
local stale = redis.call('LRANGE', KEYS[2], keep, -1)
for _, old in ipairs(stale) do
  redis.call('HDEL', KEYS[3], old)
end
redis.call('LTRIM', KEYS[2], 0, keep - 1)
return #stale
`)

// recoverScript returns expired leases to the wait set.
var recoverScript = redis.NewScript(`
local expired = redis.call('ZRANGEBYSCORE', KEYS[1], '-inf', ARGV[1])
for _, id in ipairs(expired) do
  redis.call('ZREM', KEYS[1], id)
  local raw = redis.call('HGET', KEYS[3], id)
  if raw then
    local prio = cjson.decode(raw).priority or 0
    redis.call('ZADD', KEYS[2], prio * tonumber(ARGV[2]) + tonumber(ARGV[1]), id)
  end
end
return #expired
`)

// requeueScript moves a failed job back to waiting. Returns 0 if the id
// was not in the failed list.
var requeueScript = redis.NewScript(`
local removed = redis.call('LREM', KEYS[1], 0, ARGV[1])
if removed == 0 then
  return 0
end
redis.call('HSET', KEYS[3], ARGV[1], ARGV[2])
redis.call('ZADD', KEYS[2], ARGV[3], ARGV[1])
return 1
`)

// RedisStore is a durable Store backed by Redis sorted sets and lists.
type RedisStore struct {
	rdb    *redis.Client
	prefix string
	now    func() time.Time
}

// NewRedisStore connects to Redis and verifies the connection.
func NewRedisStore(ctx context.Context, cfg config.RedisConfig) (*RedisStore, error) {
	timeout := time.Duration(cfg.Timeout) * time.Second
	rdb := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  timeout,
		ReadTimeout:  timeout,
		WriteTimeout: timeout,
	})

	prefix := cfg.KeyPrefix
	if prefix == "" {
		prefix = "telemetry"
	}
	s := &RedisStore{rdb: rdb, prefix: prefix, now: time.Now}

	pingCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := s.Ping(pingCtx); err != nil {
		rdb.Close() //nolint:errcheck // already failing
		return nil, err
	}
	return s, nil
}

func (s *RedisStore) key(queue, part string) string {
	return fmt.Sprintf("%s:%s:%s", s.prefix, queue, part)
}

// Add implements Store.
func (s *RedisStore) Add(ctx context.Context, job *Job) error {
	raw, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("encoding job %s: %w", job.ID, err)
	}
	_, err = s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, s.key(job.Queue, "jobs"), job.ID, raw)
		pipe.ZAdd(ctx, s.key(job.Queue, "wait"), redis.Z{
			Score:  waitScore(job.Priority, job.EnqueuedAt.UnixMilli()),
			Member: job.ID,
		})
		return nil
	})
	if err != nil {
		return fmt.Errorf("adding job %s: %w", job.ID, err)
	}
	return nil
}

// Reserve implements Store.
func (s *RedisStore) Reserve(ctx context.Context, queue string, lease time.Duration) (*Job, error) {
	now := s.now()
	keys := []string{
		s.key(queue, "wait"),
		s.key(queue, "delayed"),
		s.key(queue, "active"),
		s.key(queue, "jobs"),
	}
	raw, err := reserveScript.Run(ctx, s.rdb, keys,
		now.UnixMilli(), now.Add(lease).UnixMilli(), int64(priorityScale)).Text()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reserving from %s: %w", queue, err)
	}

	var job Job
	if err := json.Unmarshal([]byte(raw), &job); err != nil {
		return nil, fmt.Errorf("decoding job from %s: %w", queue, err)
	}
	job.State = StateActive
	job.ReadyAt = nil
	return &job, nil
}

// Complete implements Store.
func (s *RedisStore) Complete(ctx context.Context, job *Job, keep int) error {
	return s.finish(ctx, job, "completed", keep)
}

// Fail implements Store.
func (s *RedisStore) Fail(ctx context.Context, job *Job, keep int) error {
	return s.finish(ctx, job, "failed", keep)
}

func (s *RedisStore) finish(ctx context.Context, job *Job, list string, keep int) error {
	raw, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("encoding job %s: %w", job.ID, err)
	}
	keys := []string{s.key(job.Queue, "active"), s.key(job.Queue, list), s.key(job.Queue, "jobs")}
	if err := finishScript.Run(ctx, s.rdb, keys, job.ID, raw, keep).Err(); err != nil {
		return fmt.Errorf("moving job %s to %s: %w", job.ID, list, err)
	}
	return nil
}

// Retry implements Store.
func (s *RedisStore) Retry(ctx context.Context, job *Job, delay time.Duration) error {
	raw, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("encoding job %s: %w", job.ID, err)
	}
	readyAt := s.now().Add(delay)
	_, err = s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.ZRem(ctx, s.key(job.Queue, "active"), job.ID)
		pipe.HSet(ctx, s.key(job.Queue, "jobs"), job.ID, raw)
		pipe.ZAdd(ctx, s.key(job.Queue, "delayed"), redis.Z{
			Score:  float64(readyAt.UnixMilli()),
			Member: job.ID,
		})
		return nil
	})
	if err != nil {
		return fmt.Errorf("scheduling retry of job %s: %w", job.ID, err)
	}
	return nil
}

// RecoverStalled implements Store.
func (s *RedisStore) RecoverStalled(ctx context.Context, queue string) (int, error) {
	keys := []string{s.key(queue, "active"), s.key(queue, "wait"), s.key(queue, "jobs")}
	n, err := recoverScript.Run(ctx, s.rdb, keys, s.now().UnixMilli(), int64(priorityScale)).Int()
	if err != nil {
		return 0, fmt.Errorf("recovering stalled jobs in %s: %w", queue, err)
	}
	return n, nil
}

// Counts implements Store.
func (s *RedisStore) Counts(ctx context.Context, queue string) (Counts, error) {
	var (
		waiting, active, delayed *redis.IntCmd
		completed, failed        *redis.IntCmd
	)
	_, err := s.rdb.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		waiting = pipe.ZCard(ctx, s.key(queue, "wait"))
		active = pipe.ZCard(ctx, s.key(queue, "active"))
		delayed = pipe.ZCard(ctx, s.key(queue, "delayed"))
		completed = pipe.LLen(ctx, s.key(queue, "completed"))
		failed = pipe.LLen(ctx, s.key(queue, "failed"))
		return nil
	})
	if err != nil {
		return Counts{}, fmt.Errorf("counting jobs in %s: %w", queue, err)
	}
	return Counts{
		Waiting:   waiting.Val(),
		Active:    active.Val(),
		Delayed:   delayed.Val(),
		Completed: completed.Val(),
		Failed:    failed.Val(),
	}, nil
}

// Failed implements Store.
func (s *RedisStore) Failed(ctx context.Context, queue string, limit int) ([]Job, error) {
	stop := int64(-1)
	if limit > 0 {
		stop = int64(limit - 1)
	}
	ids, err := s.rdb.LRange(ctx, s.key(queue, "failed"), 0, stop).Result()
	if err != nil {
		return nil, fmt.Errorf("listing failed jobs in %s: %w", queue, err)
	}
	if len(ids) == 0 {
		return []Job{}, nil
	}

	vals, err := s.rdb.HMGet(ctx, s.key(queue, "jobs"), ids...).Result()
	if err != nil {
		return nil, fmt.Errorf("loading failed jobs in %s: %w", queue, err)
	}

	jobs := make([]Job, 0, len(vals))
	for _, v := range vals {
		raw, ok := v.(string)
		if !ok {
			continue // trimmed between LRANGE and HMGET
		}
		var job Job
		if err := json.Unmarshal([]byte(raw), &job); err != nil {
			return nil, fmt.Errorf("decoding failed job: %w", err)
		}
		jobs = append(jobs, job)
	}
	return jobs, nil
}

// Requeue implements Store.
func (s *RedisStore) Requeue(ctx context.Context, queue, id string) (*Job, error) {
	raw, err := s.rdb.HGet(ctx, s.key(queue, "jobs"), id).Result()
	if errors.Is(err, redis.Nil) {
		return nil, ErrJobNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("loading job %s: %w", id, err)
	}

	var job Job
	if err := json.Unmarshal([]byte(raw), &job); err != nil {
		return nil, fmt.Errorf("decoding job %s: %w", id, err)
	}
	job.State = StateWaiting
	job.Attempts = 0
	job.FinishedAt = nil

	updated, err := json.Marshal(&job)
	if err != nil {
		return nil, fmt.Errorf("encoding job %s: %w", id, err)
	}

	keys := []string{s.key(queue, "failed"), s.key(queue, "wait"), s.key(queue, "jobs")}
	score := waitScore(job.Priority, s.now().UnixMilli())
	moved, err := requeueScript.Run(ctx, s.rdb, keys, id, updated, score).Int()
	if err != nil {
		return nil, fmt.Errorf("requeueing job %s: %w", id, err)
	}
	if moved == 0 {
		return nil, ErrNotFailed
	}
	return &job, nil
}

// Ping implements Store.
func (s *RedisStore) Ping(ctx context.Context) error {
	if err := s.rdb.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("pinging redis: %w", err)
	}
	return nil
}

// Close implements Store.
func (s *RedisStore) Close() error {
	return s.rdb.Close()
}
