package breakers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/kirillm/rijin-bot/internal/config"
)

const defaultRedisPrefix = "rijin:corr"

// RedisStore хранит историю стопов и блокировки в Redis, чтобы несколько процессов
// видели общий тормоз корреляции
type RedisStore struct {
	client redis.Cmdable
	prefix string
}

// NewRedisClient подключается к Redis и проверяет соединение
func NewRedisClient(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return client, nil
}

// NewRedisStore создает хранилище поверх клиента Redis
func NewRedisStore(client redis.Cmdable, prefix string) *RedisStore {
	if prefix == "" {
		prefix = defaultRedisPrefix
	}
	return &RedisStore{client: client, prefix: prefix}
}

func (s *RedisStore) lossKey(instrument string) string {
	return s.prefix + ":sl:" + instrument
}

func (s *RedisStore) blockKey(instrument string) string {
	return s.prefix + ":block:" + instrument
}

func (s *RedisStore) AppendLoss(ctx context.Context, instrument string, rec LossRecord, keep int) ([]LossRecord, error) {
	data, err := json.Marshal(rec)
	if err != nil {
		return nil, fmt.Errorf("marshal loss record: %w", err)
	}

	key := s.lossKey(instrument)
	if err := s.client.LPush(ctx, key, string(data)).Err(); err != nil {
		return nil, fmt.Errorf("lpush %s: %w", key, err)
	}

	stop := int64(-1)
	if keep > 0 {
		stop = int64(keep - 1)
		if err := s.client.LTrim(ctx, key, 0, stop).Err(); err != nil {
			return nil, fmt.Errorf("ltrim %s: %w", key, err)
		}
	}

	items, err := s.client.LRange(ctx, key, 0, stop).Result()
	if err != nil {
		return nil, fmt.Errorf("lrange %s: %w", key, err)
	}

	// LPUSH хранит новые записи первыми
	history := make([]LossRecord, 0, len(items))
	for i := len(items) - 1; i >= 0; i-- {
		var r LossRecord
		if err := json.Unmarshal([]byte(items[i]), &r); err != nil {
			return nil, fmt.Errorf("unmarshal loss record: %w", err)
		}
		history = append(history, r)
	}
	return history, nil
}

func (s *RedisStore) Block(ctx context.Context, instrument string, until, now time.Time) error {
	ttl := until.Sub(now)
	if ttl <= 0 {
		return nil
	}
	return s.client.Set(ctx, s.blockKey(instrument), until.UTC().Format(time.RFC3339Nano), ttl).Err()
}

func (s *RedisStore) BlockedUntil(ctx context.Context, instrument string) (time.Time, bool, error) {
	val, err := s.client.Get(ctx, s.blockKey(instrument)).Result()
	if errors.Is(err, redis.Nil) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, err
	}

	until, err := time.Parse(time.RFC3339Nano, val)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("parse block deadline %q: %w", val, err)
	}
	return until, true, nil
}

func (s *RedisStore) ClearBlock(ctx context.Context, instrument string) error {
	return s.client.Del(ctx, s.blockKey(instrument)).Err()
}
