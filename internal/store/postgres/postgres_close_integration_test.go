package postgres

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"tokoledger/backend/internal/domain"
)

func TestCloseSessionRecomputesExpectedFromLedger(t *testing.T) {
	databaseURL := os.Getenv("TOKOLEDGER_TEST_DATABASE_URL")
	if databaseURL == "" {
		t.Skip("set TOKOLEDGER_TEST_DATABASE_URL to run postgres integration test")
	}

	ctx := context.Background()
	s, err := New(ctx, databaseURL, 3*time.Second)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	t.Cleanup(func() {
		_ = s.Close()
	})

	stamp := time.Now().UnixNano()
	sessionID := fmt.Sprintf("ses-close-it-%d", stamp)

	t.Cleanup(func() {
		_, _ = s.db.ExecContext(ctx, `DELETE FROM money_transactions WHERE session_id = $1`, sessionID)
		_, _ = s.db.ExecContext(ctx, `DELETE FROM register_sessions WHERE id = $1`, sessionID)
	})

	opened, err := s.CreateSession(ctx, domain.RegisterSession{
		ID:           sessionID,
		OpenedBy:     "it-cashier",
		OpeningCents: 100000,
	})
	if err != nil {
		t.Fatalf("create session: %v", err)
	}

	if _, err := s.AppendMoneyTransaction(ctx, domain.MoneyTransaction{
		Type:        domain.EntryTypeIn,
		AmountCents: 50000,
		SourceType:  domain.SourceCashRegister,
		SessionID:   opened.ID,
		Category:    domain.CategorySale,
		UserID:      "it-cashier",
	}); err != nil {
		t.Fatalf("append sale entry: %v", err)
	}
	if _, err := s.AppendMoneyTransaction(ctx, domain.MoneyTransaction{
		Type:        domain.EntryTypeIn,
		AmountCents: 20000,
		SourceType:  domain.SourceCashRegister,
		SessionID:   opened.ID,
		Category:    domain.CategoryDebtRepayment,
		UserID:      "it-cashier",
	}); err != nil {
		t.Fatalf("append repayment entry: %v", err)
	}

	closed, err := s.CloseSession(ctx, opened.ID, 169000, "drawer short", "it-supervisor", time.Now().UTC())
	if err != nil {
		t.Fatalf("close session: %v", err)
	}
	if closed.ExpectedCents != 170000 {
		t.Fatalf("expected 170000 expected cents, got %d", closed.ExpectedCents)
	}
	if closed.VarianceCents != -1000 {
		t.Fatalf("expected -1000 variance cents, got %d", closed.VarianceCents)
	}
	if closed.Status != domain.SessionStatusClosed {
		t.Fatalf("expected closed status, got %s", closed.Status)
	}

	var status string
	if err := s.db.QueryRowContext(ctx, `
		SELECT status
		FROM register_sessions
		WHERE id = $1
	`, sessionID).Scan(&status); err != nil {
		t.Fatalf("query session status: %v", err)
	}
	if status != domain.SessionStatusClosed {
		t.Fatalf("expected persisted status closed, got %s", status)
	}
}
