package cache

import (
	"context"
	"time"

	"tokoledger/backend/internal/domain"
)

type ReportCache interface {
	Get(ctx context.Context, key string) (*domain.SessionReport, bool, error)
	Set(ctx context.Context, key string, value *domain.SessionReport, ttl time.Duration) error
}

type NoopReportCache struct{}

func (NoopReportCache) Get(_ context.Context, _ string) (*domain.SessionReport, bool, error) {
	return nil, false, nil
}

func (NoopReportCache) Set(_ context.Context, _ string, _ *domain.SessionReport, _ time.Duration) error {
	return nil
}
