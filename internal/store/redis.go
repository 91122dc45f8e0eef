package store

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"strings"

	"github.com/redis/go-redis/v9"
)

const scanBatchSize = 100

// RedisConfig holds connection settings for RedisStore.
type RedisConfig struct {
	Addr      string
	DB        int
	Password  string
	Namespace string
}

// RedisStore implements KeyValueStore on Redis. Keys are prefixed with the
// configured namespace so several clients can share one database.
type RedisStore struct {
	rdb       *redis.Client
	namespace string
	logger    *log.Logger
}

func NewRedisStore(cfg RedisConfig, logger *log.Logger) *RedisStore {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		DB:       cfg.DB,
		Password: cfg.Password,
	})
	return &RedisStore{rdb: rdb, namespace: cfg.Namespace, logger: logger}
}

func (s *RedisStore) key(k string) string {
	return s.namespace + k
}

func (s *RedisStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	b, err := s.rdb.Get(ctx, s.key(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		s.logger.Printf("WARN: redis GET %q failed: %v", key, err)
		return nil, false, fmt.Errorf("store: redis GET %q: %w", key, err)
	}
	return b, true, nil
}

func (s *RedisStore) Set(ctx context.Context, key string, value []byte) error {
	if key == "" {
		return ErrEmptyKey
	}
	if err := s.rdb.Set(ctx, s.key(key), value, 0).Err(); err != nil {
		s.logger.Printf("WARN: redis SET %q failed: %v", key, err)
		return fmt.Errorf("store: redis SET %q: %w", key, err)
	}
	return nil
}

func (s *RedisStore) Remove(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	full := make([]string, len(keys))
	for i, k := range keys {
		full[i] = s.key(k)
	}
	if err := s.rdb.Del(ctx, full...).Err(); err != nil {
		return fmt.Errorf("store: redis DEL %v: %w", keys, err)
	}
	return nil
}

func (s *RedisStore) RemovePrefix(ctx context.Context, prefix string) error {
	pattern := escapeGlob(s.key(prefix)) + "*"
	iter := s.rdb.Scan(ctx, 0, pattern, scanBatchSize).Iterator()

	batch := make([]string, 0, scanBatchSize)
	for iter.Next(ctx) {
		batch = append(batch, iter.Val())
		if len(batch) == scanBatchSize {
			if err := s.rdb.Del(ctx, batch...).Err(); err != nil {
				return fmt.Errorf("store: redis DEL prefix %q: %w", prefix, err)
			}
			batch = batch[:0]
		}
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("store: redis SCAN %q: %w", prefix, err)
	}
	if len(batch) > 0 {
		if err := s.rdb.Del(ctx, batch...).Err(); err != nil {
			return fmt.Errorf("store: redis DEL prefix %q: %w", prefix, err)
		}
	}
	return nil
}

func (s *RedisStore) Ping(ctx context.Context) error {
	return s.rdb.Ping(ctx).Err()
}

func (s *RedisStore) Close() error {
	if err := s.rdb.Close(); err != nil {
		s.logger.Printf("WARN: error while closing redis client: %v", err)
		return err
	}
	s.logger.Println("INFO: redis client closed.")
	return nil
}

var globEscaper = strings.NewReplacer(`\`, `\\`, `*`, `\*`, `?`, `\?`, `[`, `\[`, `]`, `\]`)

// escapeGlob quotes SCAN MATCH metacharacters.
func escapeGlob(s string) string {
	return globEscaper.Replace(s)
}
