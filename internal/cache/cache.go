package cache

import (
	"context"
	"time"

	"tokopos/internal/domain"
)

// SessionCache fronts the durable session store so park/resume round trips
// do not hit the database. It is write-through: the durable store is always
// the source of truth and a miss here is never an error.
type SessionCache interface {
	Get(ctx context.Context, cashierID string, key string) (*domain.Session, bool, error)
	Set(ctx context.Context, session domain.Session, ttl time.Duration) error
	Delete(ctx context.Context, cashierID string, key string) error
}

type NoopSessionCache struct{}

func (NoopSessionCache) Get(_ context.Context, _ string, _ string) (*domain.Session, bool, error) {
	return nil, false, nil
}

func (NoopSessionCache) Set(_ context.Context, _ domain.Session, _ time.Duration) error {
	return nil
}

func (NoopSessionCache) Delete(_ context.Context, _ string, _ string) error {
	return nil
}
