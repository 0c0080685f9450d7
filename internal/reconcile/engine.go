package reconcile

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
	"time"

	"tokoledger/backend/internal/cache"
	"tokoledger/backend/internal/domain"
)

// Engine builds reconciliation reports for register sessions. Reports for
// closed sessions are immutable until an approved edit lands, so they cache
// well; the cache key carries the ledger entry count to invalidate naturally
// when new entries arrive.
type Engine struct {
	cache    cache.ReportCache
	cacheTTL time.Duration
}

func NewEngine(cacheStore cache.ReportCache, cacheTTL time.Duration) *Engine {
	if cacheStore == nil {
		cacheStore = cache.NoopReportCache{}
	}
	if cacheTTL <= 0 {
		cacheTTL = 30 * time.Second
	}

	return &Engine{
		cache:    cacheStore,
		cacheTTL: cacheTTL,
	}
}

func (e *Engine) SessionReport(
	ctx context.Context,
	session domain.RegisterSession,
	entries []domain.MoneyTransaction,
) domain.SessionReport {
	cacheKey := buildCacheKey(session, len(entries))
	if cached, ok, err := e.cache.Get(ctx, cacheKey); err == nil && ok {
		return *cached
	}

	byID := make(map[string]domain.MoneyTransaction, len(entries))
	for _, entry := range entries {
		byID[entry.ID] = entry
	}

	var in, out int64
	byCategory := make(map[string]*domain.CategoryTotal, 8)
	netSalesCents := int64(0)
	netRepaidCents := int64(0)
	for _, entry := range entries {
		total, exists := byCategory[entry.Category]
		if !exists {
			total = &domain.CategoryTotal{Category: entry.Category}
			byCategory[entry.Category] = total
		}
		switch entry.Type {
		case domain.EntryTypeIn:
			in += entry.AmountCents
			total.InCents += entry.AmountCents
			switch entry.Category {
			case domain.CategorySale:
				netSalesCents += entry.AmountCents
			case domain.CategoryDebtRepayment:
				netRepaidCents += entry.AmountCents
			}
		case domain.EntryTypeOut:
			out += entry.AmountCents
			total.OutCents += entry.AmountCents
			// A reversal of a counted entry undoes its contribution to
			// the net totals, which is exactly what the cached counters
			// never do.
			if entry.ReversalOf != "" {
				if original, found := byID[entry.ReversalOf]; found {
					switch original.Category {
					case domain.CategorySale:
						netSalesCents -= entry.AmountCents
					case domain.CategoryDebtRepayment:
						netRepaidCents -= entry.AmountCents
					}
				}
			}
		}
	}

	categories := make([]domain.CategoryTotal, 0, len(byCategory))
	for _, total := range byCategory {
		categories = append(categories, *total)
	}
	sort.Slice(categories, func(i, j int) bool {
		return categories[i].Category < categories[j].Category
	})

	report := domain.SessionReport{
		SessionID:     session.ID,
		Status:        session.Status,
		OpeningCents:  session.OpeningCents,
		CashInCents:   in,
		CashOutCents:  out,
		ExpectedCents: session.OpeningCents + in - out,
		EntryCount:    len(entries),
		ByCategory:    categories,
		GeneratedAt:   time.Now().UTC(),
	}

	// Counter drift is how far the session's cached running totals sit from
	// the ledger-derived truth. Non-zero drift is expected after reversals;
	// drift without any reversal points at a missed counter bump.
	report.CounterDriftCents = (session.CashSalesCents - netSalesCents) + (session.DebtRepaidCents - netRepaidCents)

	if session.Status == domain.SessionStatusClosed {
		report.ActualCents = session.ActualCents
		report.VarianceCents = session.ActualCents - report.ExpectedCents
	}

	_ = e.cache.Set(ctx, cacheKey, &report, e.cacheTTL)
	return report
}

func buildCacheKey(session domain.RegisterSession, entryCount int) string {
	parts := []string{
		session.ID,
		session.Status,
		fmt.Sprintf("o:%d", session.OpeningCents),
		fmt.Sprintf("a:%d", session.ActualCents),
		fmt.Sprintf("n:%d", entryCount),
	}
	hash := sha1.Sum([]byte(strings.Join(parts, "|")))
	return "ledger:session-report:" + hex.EncodeToString(hash[:])
}
