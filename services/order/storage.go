package order

import (
	"context"
	"time"

	"giftvoucher/pkg/rediskey"

	"github.com/redis/go-redis/v9"
)

// codeStorageTTL bounds how long an abandoned cart keeps its applied codes.
const codeStorageTTL = 7 * 24 * time.Hour

// CodeStorage tracks which code keys a customer has applied to an
// in-progress order. Entries are transient: settlement clears them once the
// order completes.
type CodeStorage interface {
	Add(ctx context.Context, orderID, codeKey string) error
	Remove(ctx context.Context, orderID, codeKey string) error
	Keys(ctx context.Context, orderID string) ([]string, error)
	Clear(ctx context.Context, orderID string) error
}

type redisCodeStorage struct {
	client *redis.Client
}

func NewCodeStorage(client *redis.Client) CodeStorage {
	return &redisCodeStorage{client: client}
}

func (s *redisCodeStorage) Add(ctx context.Context, orderID, codeKey string) error {
	key := rediskey.BuildOrderCodesKey(orderID)
	pipe := s.client.TxPipeline()
	pipe.SAdd(ctx, key, codeKey)
	pipe.Expire(ctx, key, codeStorageTTL)
	_, err := pipe.Exec(ctx)
	return err
}

func (s *redisCodeStorage) Remove(ctx context.Context, orderID, codeKey string) error {
	return s.client.SRem(ctx, rediskey.BuildOrderCodesKey(orderID), codeKey).Err()
}

func (s *redisCodeStorage) Keys(ctx context.Context, orderID string) ([]string, error) {
	return s.client.SMembers(ctx, rediskey.BuildOrderCodesKey(orderID)).Result()
}

func (s *redisCodeStorage) Clear(ctx context.Context, orderID string) error {
	return s.client.Del(ctx, rediskey.BuildOrderCodesKey(orderID)).Err()
}
