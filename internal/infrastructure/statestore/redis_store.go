package statestore

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// opTimeout bounds every Redis round-trip so a slow cache never blocks the
// transaction path.
const opTimeout = 2 * time.Second

// RedisConfig holds connection settings for the shared tier.
type RedisConfig struct {
	Host         string
	Port         int
	Password     string
	DB           int
	PoolSize     int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// RedisStore implements Store on a shared Redis instance.
type RedisStore struct {
	rdb    *redis.Client
	logger *zap.Logger

	available atomic.Bool

	subMu   sync.Mutex
	subs    map[string]*subscription
	closed  chan struct{}
	closeMu sync.Once
}

type subscription struct {
	pubsub *redis.PubSub

	mu      sync.RWMutex
	handler Handler
}

// NewRedisStore connects to Redis and starts the availability probe.
// A failed initial ping is not fatal: the store starts unavailable and
// recovers when Redis comes back.
func NewRedisStore(cfg RedisConfig, logger *zap.Logger) *RedisStore {
	rdb := redis.NewClient(&redis.Options{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})

	s := &RedisStore{
		rdb:    rdb,
		logger: logger,
		subs:   make(map[string]*subscription),
		closed: make(chan struct{}),
	}

	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		logger.Warn("shared state store unreachable at startup", zap.Error(err))
	} else {
		s.available.Store(true)
	}

	go s.probe()
	return s
}

// probe re-checks connectivity so availability recovers after an outage.
func (s *RedisStore) probe() {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-s.closed:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
			err := s.rdb.Ping(ctx).Err()
			cancel()
			was := s.available.Swap(err == nil)
			if err != nil && was {
				s.logger.Warn("shared state store became unavailable", zap.Error(err))
			} else if err == nil && !was {
				s.logger.Info("shared state store recovered")
			}
		}
	}
}

// Available reports the last observed connectivity.
func (s *RedisStore) Available() bool {
	return s.available.Load()
}

// fail records an operation failure and degrades availability.
func (s *RedisStore) fail(op string, err error) {
	s.available.Store(false)
	s.logger.Warn("shared state store operation failed", zap.String("op", op), zap.Error(err))
}

func (s *RedisStore) Get(ctx context.Context, key string) (string, bool) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	val, err := s.rdb.Get(ctx, key).Result()
	if err == redis.Nil {
		return "", false
	}
	if err != nil {
		s.fail("get", err)
		return "", false
	}
	return val, true
}

func (s *RedisStore) Set(ctx context.Context, key, value string, ttl time.Duration) bool {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	if err := s.rdb.Set(ctx, key, value, ttl).Err(); err != nil {
		s.fail("set", err)
		return false
	}
	return true
}

func (s *RedisStore) IncrWithTTL(ctx context.Context, key string, ttl time.Duration) (int64, bool) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	pipe := s.rdb.Pipeline()
	incr := pipe.Incr(ctx, key)
	pipe.ExpireNX(ctx, key, ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		s.fail("incr", err)
		return 0, false
	}
	return incr.Val(), true
}

func (s *RedisStore) AcquireLock(ctx context.Context, key, value string, ttl time.Duration) bool {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	ok, err := s.rdb.SetNX(ctx, key, value, ttl).Result()
	if err != nil {
		s.fail("setnx", err)
		return false
	}
	return ok
}

func (s *RedisStore) PushList(ctx context.Context, key, value string, ttl time.Duration) bool {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	pipe := s.rdb.Pipeline()
	pipe.LPush(ctx, key, value)
	pipe.Expire(ctx, key, ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		s.fail("lpush", err)
		return false
	}
	return true
}

func (s *RedisStore) Publish(ctx context.Context, channel string, payload []byte) bool {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	if err := s.rdb.Publish(ctx, channel, payload).Err(); err != nil {
		s.fail("publish", err)
		return false
	}
	return true
}

// Subscribe registers a handler for a channel. A second Subscribe for the
// same channel swaps the handler in place instead of opening a second
// Redis subscription.
func (s *RedisStore) Subscribe(channel string, h Handler) {
	s.subMu.Lock()
	defer s.subMu.Unlock()

	if sub, ok := s.subs[channel]; ok {
		sub.mu.Lock()
		sub.handler = h
		sub.mu.Unlock()
		return
	}

	pubsub := s.rdb.Subscribe(context.Background(), channel)
	sub := &subscription{pubsub: pubsub, handler: h}
	s.subs[channel] = sub

	go func() {
		ch := pubsub.Channel()
		for {
			select {
			case <-s.closed:
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				sub.mu.RLock()
				handler := sub.handler
				sub.mu.RUnlock()
				handler([]byte(msg.Payload))
			}
		}
	}()
}

func (s *RedisStore) Close() error {
	s.closeMu.Do(func() { close(s.closed) })

	s.subMu.Lock()
	for _, sub := range s.subs {
		_ = sub.pubsub.Close()
	}
	s.subMu.Unlock()

	return s.rdb.Close()
}

var _ Store = (*RedisStore)(nil)
