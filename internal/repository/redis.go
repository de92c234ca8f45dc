package repository

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	redis "github.com/redis/go-redis/v9"

	"github.com/mmeshcher/stars-paywall/internal/model"
)

const entitlementKeyPrefix = "paywall:entitlement:"

// markPaidScript записывает время выдачи только при отсутствии ключа и возвращает сохранённое значение.
const markPaidScript = `
redis.call("SET", KEYS[1], ARGV[1], "NX")
return redis.call("GET", KEYS[1])
`

// RedisStore хранит права доступа в Redis. Ключи не имеют TTL.
type RedisStore struct {
	client *redis.Client
	script *redis.Script
	now    func() time.Time
}

// NewRedisStore подключается к Redis по адресу и проверяет соединение.
func NewRedisStore(ctx context.Context, addr string) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{Addr: addr})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	return NewRedisStoreFromClient(client), nil
}

// NewRedisStoreFromClient оборачивает готовый клиент Redis.
func NewRedisStoreFromClient(client *redis.Client) *RedisStore {
	return &RedisStore{
		client: client,
		script: redis.NewScript(markPaidScript),
		now:    time.Now,
	}
}

// Get возвращает право доступа пользователя.
func (s *RedisStore) Get(ctx context.Context, id model.Identity) (*model.Entitlement, error) {
	raw, err := s.client.Get(ctx, entitlementKey(id)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrEntitlementNotFound
		}
		return nil, fmt.Errorf("get entitlement: %w", err)
	}
	return decodeEntitlement(id, raw)
}

// MarkPaid атомарно создаёт запись о праве доступа, если её ещё нет.
func (s *RedisStore) MarkPaid(ctx context.Context, id model.Identity) (*model.Entitlement, error) {
	grantedAt := strconv.FormatInt(s.now().UTC().UnixNano(), 10)

	raw, err := s.script.Run(ctx, s.client, []string{entitlementKey(id)}, grantedAt).Text()
	if err != nil {
		return nil, fmt.Errorf("mark paid: %w", err)
	}
	return decodeEntitlement(id, raw)
}

// Close закрывает соединение с Redis.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

func entitlementKey(id model.Identity) string {
	return entitlementKeyPrefix + string(id)
}

func decodeEntitlement(id model.Identity, raw string) (*model.Entitlement, error) {
	nanos, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("decode entitlement %s: %w", id, err)
	}
	return &model.Entitlement{
		Identity:  id,
		Paid:      true,
		GrantedAt: time.Unix(0, nanos).UTC(),
	}, nil
}
