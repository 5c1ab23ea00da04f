package store

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/sprintdeck/sprintdeck/internal/gateway"
	"github.com/sprintdeck/sprintdeck/pkg/errors"
)

// CircuitStateStore persists circuit state in Redis under namespaced keys
// so multiple deployments can share one Redis without colliding. It
// implements gateway.CircuitStateStore.
type CircuitStateStore struct {
	redis     *RedisClient
	namespace string
}

// NewCircuitStateStore creates a circuit state store with the given namespace
func NewCircuitStateStore(redis *RedisClient, namespace string) *CircuitStateStore {
	if namespace == "" {
		namespace = "sprintdeck"
	}
	return &CircuitStateStore{
		redis:     redis,
		namespace: namespace,
	}
}

// key builds the namespaced Redis key for a breaker name
func (s *CircuitStateStore) key(name string) string {
	return fmt.Sprintf("%s:circuit:%s", s.namespace, name)
}

// Get reads the persisted state value for a breaker name. Absence of the
// key is reported as gateway.ErrStateNotFound, meaning CLOSED/unknown.
func (s *CircuitStateStore) Get(ctx context.Context, name string) (string, error) {
	value, err := s.redis.Client().Get(ctx, s.key(name)).Result()
	if err != nil {
		if err == redis.Nil {
			return "", gateway.ErrStateNotFound
		}
		return "", errors.NewExternalError("redis", "failed to read circuit state").WithCause(err)
	}
	return value, nil
}

// SetWithTTL writes the state value with a failsafe expiry so a crashed
// process cannot leave a permanently open circuit behind.
func (s *CircuitStateStore) SetWithTTL(ctx context.Context, name, value string, ttl time.Duration) error {
	if err := s.redis.Client().Set(ctx, s.key(name), value, ttl).Err(); err != nil {
		return errors.NewExternalError("redis", "failed to write circuit state").WithCause(err)
	}
	return nil
}

// Delete removes the persisted state for a breaker name
func (s *CircuitStateStore) Delete(ctx context.Context, name string) error {
	if err := s.redis.Client().Del(ctx, s.key(name)).Err(); err != nil {
		return errors.NewExternalError("redis", "failed to delete circuit state").WithCause(err)
	}
	return nil
}
