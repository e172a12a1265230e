package triggercache

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"

	"equipment-reminders/internal/clock"
	"equipment-reminders/internal/leadtime"
	"equipment-reminders/internal/model"
)

const keyPrefix = "toast:"

// RedisStore keeps display records in Redis so that every process serving a
// session sees the same record. Each (session, reminder) pair is a sorted set
// of display instants scored in unix milliseconds.
type RedisStore struct {
	client *redis.Client
	clock  clock.Clock
	loc    *time.Location
}

func NewRedisStore(client *redis.Client, clk clock.Clock, loc *time.Location) *RedisStore {
	if loc == nil {
		loc = time.UTC
	}
	return &RedisStore{client: client, clock: clk, loc: loc}
}

func (s *RedisStore) Session(id string) Cache {
	return &redisSession{store: s, session: id}
}

type redisSession struct {
	store   *RedisStore
	session string
}

func (r *redisSession) key(reminderID string) string {
	return fmt.Sprintf("%s%s:%s", keyPrefix, r.session, reminderID)
}

func (r *redisSession) ShouldDisplay(ctx context.Context, reminderID string, due time.Time, t model.ObligationType, today time.Time) (bool, error) {
	key := r.key(reminderID)
	cutoff := r.store.clock.Now().Add(-Retention).UnixMilli()
	if err := r.store.client.ZRemRangeByScore(ctx, key, "-inf", "("+strconv.FormatInt(cutoff, 10)).Err(); err != nil {
		return false, fmt.Errorf("purge displays: %w", err)
	}
	if !leadtime.IsEligibleDay(t, due, today) {
		return false, nil
	}

	start, end := dayBounds(today, r.store.loc)
	n, err := r.store.client.ZCount(ctx, key, strconv.FormatInt(start.UnixMilli(), 10), "("+strconv.FormatInt(end.UnixMilli(), 10)).Result()
	if err != nil {
		return false, fmt.Errorf("count displays: %w", err)
	}
	return n == 0, nil
}

func (r *redisSession) RecordDisplay(ctx context.Context, reminderID string) error {
	key := r.key(reminderID)
	now := r.store.clock.Now()
	pipe := r.store.client.TxPipeline()
	pipe.ZAdd(ctx, key, &redis.Z{Score: float64(now.UnixMilli()), Member: strconv.FormatInt(now.UnixNano(), 10)})
	pipe.Expire(ctx, key, Retention)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("record display: %w", err)
	}
	return nil
}

// NewRedisClient connects to Redis and pings it once.
func NewRedisClient(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("connect to redis %s: %w", addr, err)
	}
	return client, nil
}
