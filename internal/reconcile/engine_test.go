package reconcile

import (
	"context"
	"testing"
	"time"

	"tokoledger/backend/internal/cache"
	"tokoledger/backend/internal/domain"
)

func openSession(opening int64) domain.RegisterSession {
	return domain.RegisterSession{
		ID:           "ses-test-1",
		OpenedBy:     "kasir",
		OpeningCents: opening,
		Status:       domain.SessionStatusOpen,
		OpenedAt:     time.Now().UTC(),
	}
}

func TestSessionReportTotalsAndCategories(t *testing.T) {
	engine := NewEngine(cache.NoopReportCache{}, time.Second)
	session := openSession(100000)
	session.CashSalesCents = 50000

	entries := []domain.MoneyTransaction{
		{ID: "mtx-1", Type: domain.EntryTypeIn, AmountCents: 50000, Category: domain.CategorySale},
		{ID: "mtx-2", Type: domain.EntryTypeOut, AmountCents: 10000, Category: domain.CategoryExpense},
	}

	report := engine.SessionReport(context.Background(), session, entries)

	if report.CashInCents != 50000 || report.CashOutCents != 10000 {
		t.Fatalf("unexpected in/out totals: %d / %d", report.CashInCents, report.CashOutCents)
	}
	if report.ExpectedCents != 140000 {
		t.Fatalf("expected 140000, got %d", report.ExpectedCents)
	}
	if report.CounterDriftCents != 0 {
		t.Fatalf("expected zero drift without reversals, got %d", report.CounterDriftCents)
	}
	if len(report.ByCategory) != 2 {
		t.Fatalf("expected 2 categories, got %d", len(report.ByCategory))
	}
	// Categories are sorted alphabetically.
	if report.ByCategory[0].Category != domain.CategoryExpense || report.ByCategory[1].Category != domain.CategorySale {
		t.Fatalf("unexpected category order: %+v", report.ByCategory)
	}
}

func TestSessionReportDriftAfterReversal(t *testing.T) {
	engine := NewEngine(cache.NoopReportCache{}, time.Second)
	session := openSession(100000)
	// The cached counter kept the original sale amount; the reversal below
	// never decrements it.
	session.CashSalesCents = 50000

	entries := []domain.MoneyTransaction{
		{ID: "mtx-1", Type: domain.EntryTypeIn, AmountCents: 50000, Category: domain.CategorySale},
		{ID: "mtx-2", Type: domain.EntryTypeOut, AmountCents: 50000, Category: domain.CategoryReversal, ReversalOf: "mtx-1"},
	}

	report := engine.SessionReport(context.Background(), session, entries)

	if report.ExpectedCents != 100000 {
		t.Fatalf("expected cash back at opening 100000, got %d", report.ExpectedCents)
	}
	if report.CounterDriftCents != 50000 {
		t.Fatalf("expected drift 50000, got %d", report.CounterDriftCents)
	}
}

func TestSessionReportClosedSessionCarriesVariance(t *testing.T) {
	engine := NewEngine(cache.NoopReportCache{}, time.Second)
	closedAt := time.Now().UTC()
	session := domain.RegisterSession{
		ID:           "ses-test-2",
		OpenedBy:     "kasir",
		ClosedBy:     "kasir",
		OpeningCents: 100000,
		ActualCents:  124000,
		Status:       domain.SessionStatusClosed,
		OpenedAt:     closedAt.Add(-8 * time.Hour),
		ClosedAt:     &closedAt,
	}

	entries := []domain.MoneyTransaction{
		{ID: "mtx-1", Type: domain.EntryTypeIn, AmountCents: 25000, Category: domain.CategorySale},
	}

	report := engine.SessionReport(context.Background(), session, entries)

	if report.ExpectedCents != 125000 {
		t.Fatalf("expected 125000, got %d", report.ExpectedCents)
	}
	if report.ActualCents != 124000 {
		t.Fatalf("expected actual 124000, got %d", report.ActualCents)
	}
	if report.VarianceCents != -1000 {
		t.Fatalf("expected variance -1000, got %d", report.VarianceCents)
	}
}

type countingCache struct {
	stored map[string]*domain.SessionReport
	hits   int
}

func (c *countingCache) Get(_ context.Context, key string) (*domain.SessionReport, bool, error) {
	if report, ok := c.stored[key]; ok {
		c.hits++
		return report, true, nil
	}
	return nil, false, nil
}

func (c *countingCache) Set(_ context.Context, key string, value *domain.SessionReport, _ time.Duration) error {
	if c.stored == nil {
		c.stored = make(map[string]*domain.SessionReport)
	}
	c.stored[key] = value
	return nil
}

func TestSessionReportUsesCacheOnRepeat(t *testing.T) {
	store := &countingCache{}
	engine := NewEngine(store, time.Minute)
	session := openSession(100000)
	entries := []domain.MoneyTransaction{
		{ID: "mtx-1", Type: domain.EntryTypeIn, AmountCents: 25000, Category: domain.CategorySale},
	}

	first := engine.SessionReport(context.Background(), session, entries)
	second := engine.SessionReport(context.Background(), session, entries)

	if store.hits != 1 {
		t.Fatalf("expected one cache hit, got %d", store.hits)
	}
	if first.ExpectedCents != second.ExpectedCents {
		t.Fatalf("cached report diverged: %d vs %d", first.ExpectedCents, second.ExpectedCents)
	}

	// An extra entry changes the key, so the report is rebuilt.
	entries = append(entries, domain.MoneyTransaction{ID: "mtx-2", Type: domain.EntryTypeIn, AmountCents: 5000, Category: domain.CategorySale})
	third := engine.SessionReport(context.Background(), session, entries)
	if third.ExpectedCents != 130000 {
		t.Fatalf("expected rebuilt report 130000, got %d", third.ExpectedCents)
	}
}
