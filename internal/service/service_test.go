package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"tokoledger/backend/internal/cache"
	"tokoledger/backend/internal/domain"
	"tokoledger/backend/internal/reconcile"
	"tokoledger/backend/internal/store"
	"tokoledger/backend/internal/store/memory"
)

func newTestService() *Service {
	repo := memory.NewSeeded()
	reconciler := reconcile.NewEngine(cache.NoopReportCache{}, 5*time.Second)
	return New(repo, reconciler)
}

func cashierCtx() context.Context {
	return WithActor(context.Background(), domain.Actor{Username: "kasir", Role: "cashier"})
}

func supervisorCtx(username string) context.Context {
	return WithActor(context.Background(), domain.Actor{Username: username, Role: "supervisor"})
}

func adminCtx() context.Context {
	return WithActor(context.Background(), domain.Actor{Username: "admin", Role: "admin"})
}

func TestOpenRegisterRejectsSecondOpen(t *testing.T) {
	svc := newTestService()
	ctx := cashierCtx()

	if _, err := svc.OpenRegister(ctx, domain.RegisterOpenRequest{OpeningCents: 100000}); err != nil {
		t.Fatalf("open register failed: %v", err)
	}

	_, err := svc.OpenRegister(ctx, domain.RegisterOpenRequest{OpeningCents: 50000})
	if !errors.Is(err, store.ErrSessionAlreadyOpen) {
		t.Fatalf("expected ErrSessionAlreadyOpen, got %v", err)
	}
}

func TestCloseRegisterComputesVarianceFromLedger(t *testing.T) {
	svc := newTestService()
	ctx := cashierCtx()

	opened, err := svc.OpenRegister(ctx, domain.RegisterOpenRequest{OpeningCents: 100000})
	if err != nil {
		t.Fatalf("open register failed: %v", err)
	}

	if _, err := svc.RecordCashIn(ctx, domain.CashEntryRequest{
		AmountCents: 50000,
		Category:    domain.CategorySale,
		Description: "walk-in sale",
	}); err != nil {
		t.Fatalf("cash in sale failed: %v", err)
	}
	if _, err := svc.RecordCashIn(ctx, domain.CashEntryRequest{
		AmountCents: 20000,
		Category:    domain.CategoryDebtRepayment,
		Description: "warung installment",
	}); err != nil {
		t.Fatalf("cash in repayment failed: %v", err)
	}

	closed, err := svc.CloseRegister(ctx, opened.Session.ID, domain.RegisterCloseRequest{
		ActualCents: 169000,
		Notes:       "drawer short 1000",
	})
	if err != nil {
		t.Fatalf("close register failed: %v", err)
	}
	if closed.Session.ExpectedCents != 170000 {
		t.Fatalf("expected 170000 expected cents, got %d", closed.Session.ExpectedCents)
	}
	if closed.Session.VarianceCents != -1000 {
		t.Fatalf("expected -1000 variance, got %d", closed.Session.VarianceCents)
	}

	_, err = svc.CloseRegister(ctx, opened.Session.ID, domain.RegisterCloseRequest{ActualCents: 169000})
	if !errors.Is(err, store.ErrInvalidState) {
		t.Fatalf("expected ErrInvalidState on double close, got %v", err)
	}
}

func TestRecordCashEntryRequiresOpenSession(t *testing.T) {
	svc := newTestService()

	_, err := svc.RecordCashIn(cashierCtx(), domain.CashEntryRequest{
		AmountCents: 10000,
		Category:    domain.CategorySale,
	})
	if !errors.Is(err, store.ErrInvalidState) {
		t.Fatalf("expected ErrInvalidState without open session, got %v", err)
	}
}

func TestReverseTransactionOnlyOnce(t *testing.T) {
	svc := newTestService()
	ctx := cashierCtx()

	if _, err := svc.OpenRegister(ctx, domain.RegisterOpenRequest{OpeningCents: 100000}); err != nil {
		t.Fatalf("open register failed: %v", err)
	}
	entry, err := svc.RecordCashIn(ctx, domain.CashEntryRequest{
		AmountCents: 30000,
		Category:    domain.CategorySale,
	})
	if err != nil {
		t.Fatalf("cash in failed: %v", err)
	}

	reversal, err := svc.ReverseTransaction(ctx, domain.ReverseEntryRequest{
		TransactionID: entry.Transaction.ID,
		Reason:        "mistyped amount",
	})
	if err != nil {
		t.Fatalf("reverse failed: %v", err)
	}
	if reversal.Transaction.Type != domain.EntryTypeOut {
		t.Fatalf("expected out entry, got %s", reversal.Transaction.Type)
	}
	if reversal.Transaction.ReversalOf != entry.Transaction.ID {
		t.Fatalf("expected reversal_of %s, got %s", entry.Transaction.ID, reversal.Transaction.ReversalOf)
	}

	_, err = svc.ReverseTransaction(ctx, domain.ReverseEntryRequest{
		TransactionID: entry.Transaction.ID,
		Reason:        "double reverse",
	})
	if !errors.Is(err, store.ErrInvalidState) {
		t.Fatalf("expected ErrInvalidState on second reverse, got %v", err)
	}

	_, err = svc.ReverseTransaction(ctx, domain.ReverseEntryRequest{
		TransactionID: reversal.Transaction.ID,
		Reason:        "reverse the reversal",
	})
	if !errors.Is(err, store.ErrInvalidState) {
		t.Fatalf("expected ErrInvalidState when reversing a reversal, got %v", err)
	}
}

func TestBankLedgerBalance(t *testing.T) {
	svc := newTestService()
	ctx := cashierCtx()

	if _, err := svc.RecordBankIn(ctx, domain.BankEntryRequest{
		BankAccountID: "bank-bca-01",
		AmountCents:   200000,
		Category:      domain.CategoryIncome,
		Description:   "transfer in",
	}); err != nil {
		t.Fatalf("bank in failed: %v", err)
	}
	if _, err := svc.RecordBankOut(ctx, domain.BankEntryRequest{
		BankAccountID: "bank-bca-01",
		AmountCents:   50000,
		Category:      domain.CategoryExpense,
		Description:   "bank admin fee",
	}); err != nil {
		t.Fatalf("bank out failed: %v", err)
	}

	balance, err := svc.LedgerBalance(ctx, domain.SourceBankAccount, "bank-bca-01", nil)
	if err != nil {
		t.Fatalf("balance failed: %v", err)
	}
	if balance.BalanceCents != 150000 {
		t.Fatalf("expected ledger balance 150000, got %d", balance.BalanceCents)
	}
}

func TestAccessRequestLifecycle(t *testing.T) {
	svc := newTestService()
	cashier := cashierCtx()

	opened, err := svc.OpenRegister(cashier, domain.RegisterOpenRequest{OpeningCents: 80000})
	if err != nil {
		t.Fatalf("open register failed: %v", err)
	}

	_, err = svc.RequestHistoricalAccess(cashier, domain.AccessRequestCreate{
		SessionID: opened.Session.ID,
		Reason:    "fix opening float",
	})
	if !errors.Is(err, store.ErrSessionNotClosed) {
		t.Fatalf("expected ErrSessionNotClosed for open session, got %v", err)
	}

	if _, err := svc.CloseRegister(cashier, opened.Session.ID, domain.RegisterCloseRequest{ActualCents: 80000}); err != nil {
		t.Fatalf("close register failed: %v", err)
	}

	supervisorA := supervisorCtx("spv-ani")
	req, err := svc.RequestHistoricalAccess(supervisorA, domain.AccessRequestCreate{
		SessionID: opened.Session.ID,
		Reason:    "fix opening float",
	})
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}

	_, err = svc.RequestHistoricalAccess(supervisorA, domain.AccessRequestCreate{
		SessionID: opened.Session.ID,
		Reason:    "second request while pending",
	})
	if !errors.Is(err, store.ErrDuplicatePendingRequest) {
		t.Fatalf("expected ErrDuplicatePendingRequest, got %v", err)
	}

	_, err = svc.ApproveAccessRequest(supervisorA, req.Request.ID)
	if !errors.Is(err, store.ErrSelfApproval) {
		t.Fatalf("expected ErrSelfApproval, got %v", err)
	}

	approved, err := svc.ApproveAccessRequest(supervisorCtx("spv-budi"), req.Request.ID)
	if err != nil {
		t.Fatalf("approve failed: %v", err)
	}
	if approved.Request.Status != domain.RequestStatusApproved {
		t.Fatalf("expected approved status, got %s", approved.Request.Status)
	}

	_, err = svc.DenyAccessRequest(supervisorCtx("spv-budi"), req.Request.ID, domain.AccessRequestDeny{Reason: "late deny"})
	if !errors.Is(err, store.ErrInvalidState) {
		t.Fatalf("expected ErrInvalidState denying resolved request, got %v", err)
	}
}

func TestEditClosedSessionConsumesApproval(t *testing.T) {
	svc := newTestService()
	cashier := cashierCtx()

	opened, err := svc.OpenRegister(cashier, domain.RegisterOpenRequest{OpeningCents: 100000})
	if err != nil {
		t.Fatalf("open register failed: %v", err)
	}
	if _, err := svc.RecordCashIn(cashier, domain.CashEntryRequest{
		AmountCents: 40000,
		Category:    domain.CategorySale,
	}); err != nil {
		t.Fatalf("cash in failed: %v", err)
	}
	if _, err := svc.CloseRegister(cashier, opened.Session.ID, domain.RegisterCloseRequest{ActualCents: 140000}); err != nil {
		t.Fatalf("close register failed: %v", err)
	}

	supervisorA := supervisorCtx("spv-ani")
	req, err := svc.RequestHistoricalAccess(supervisorA, domain.AccessRequestCreate{
		SessionID: opened.Session.ID,
		Reason:    "recount found extra note",
	})
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}

	newActual := int64(141000)
	_, err = svc.EditClosedSession(supervisorA, domain.SessionEditRequest{
		RequestID:   req.Request.ID,
		Reason:      "recount",
		ActualCents: &newActual,
	})
	if !errors.Is(err, store.ErrRequestNotApproved) {
		t.Fatalf("expected ErrRequestNotApproved before approval, got %v", err)
	}

	if _, err := svc.ApproveAccessRequest(supervisorCtx("spv-budi"), req.Request.ID); err != nil {
		t.Fatalf("approve failed: %v", err)
	}

	audit, err := svc.EditClosedSession(supervisorA, domain.SessionEditRequest{
		RequestID:   req.Request.ID,
		Reason:      "recount",
		ActualCents: &newActual,
	})
	if err != nil {
		t.Fatalf("edit failed: %v", err)
	}
	if audit.Old.ActualCents != 140000 || audit.New.ActualCents != 141000 {
		t.Fatalf("expected audit snapshots 140000 -> 141000, got %d -> %d", audit.Old.ActualCents, audit.New.ActualCents)
	}
	if audit.New.VarianceCents != 1000 {
		t.Fatalf("expected recomputed variance 1000, got %d", audit.New.VarianceCents)
	}
	if audit.ApprovedBy != "spv-budi" {
		t.Fatalf("expected approver spv-budi, got %s", audit.ApprovedBy)
	}

	_, err = svc.EditClosedSession(supervisorA, domain.SessionEditRequest{
		RequestID:   req.Request.ID,
		Reason:      "second edit",
		ActualCents: &newActual,
	})
	if !errors.Is(err, store.ErrRequestAlreadyUsed) {
		t.Fatalf("expected ErrRequestAlreadyUsed on reuse, got %v", err)
	}

	audits, err := svc.ListSessionAudits(supervisorA, opened.Session.ID)
	if err != nil {
		t.Fatalf("list audits failed: %v", err)
	}
	if len(audits) != 1 {
		t.Fatalf("expected exactly one audit row, got %d", len(audits))
	}
}

func TestStockMovementNegativeGuard(t *testing.T) {
	svc := newTestService()
	ctx := adminCtx()

	// SKU-HEADSET-01 seeds with 10 units.
	_, err := svc.ApplyStockMovement(ctx, domain.StockMovementRequest{
		SKU:       "SKU-HEADSET-01",
		Type:      domain.MovementAdjustment,
		QtyChange: -11,
	})
	if !errors.Is(err, store.ErrNegativeStock) {
		t.Fatalf("expected ErrNegativeStock, got %v", err)
	}

	moved, err := svc.ApplyStockMovement(ctx, domain.StockMovementRequest{
		SKU:           "SKU-HEADSET-01",
		Type:          domain.MovementAdjustment,
		QtyChange:     -11,
		AllowNegative: true,
		Description:   "count correction",
	})
	if err != nil {
		t.Fatalf("allow-negative adjustment failed: %v", err)
	}
	if moved.Log.OldStock != 10 || moved.Log.NewStock != -1 {
		t.Fatalf("expected stock 10 -> -1, got %d -> %d", moved.Log.OldStock, moved.Log.NewStock)
	}

	restored, err := svc.ReverseStockMovement(ctx, domain.ReverseMovementRequest{
		LogID:  moved.Log.ID,
		Reason: "correction was wrong",
	})
	if err != nil {
		t.Fatalf("reverse movement failed: %v", err)
	}
	if restored.Log.NewStock != 10 {
		t.Fatalf("expected stock restored to 10, got %d", restored.Log.NewStock)
	}

	_, err = svc.ReverseStockMovement(ctx, domain.ReverseMovementRequest{
		LogID:  restored.Log.ID,
		Reason: "reverse the reversal",
	})
	if !errors.Is(err, store.ErrInvalidState) {
		t.Fatalf("expected ErrInvalidState reversing a reversal, got %v", err)
	}
}

func TestConcurrentStockMovementsSingleWinner(t *testing.T) {
	svc := newTestService()
	ctx := adminCtx()

	// SKU-FLASHDISK-01 seeds with 50 units; only one -50 can land.
	var wg sync.WaitGroup
	results := make(chan error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.ApplyStockMovement(ctx, domain.StockMovementRequest{
				SKU:       "SKU-FLASHDISK-01",
				Type:      domain.MovementAdjustment,
				QtyChange: -50,
			})
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	succeeded, failed := 0, 0
	for err := range results {
		if err == nil {
			succeeded++
		} else if errors.Is(err, store.ErrNegativeStock) {
			failed++
		} else {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if succeeded != 1 || failed != 1 {
		t.Fatalf("expected exactly one winner, got %d winners and %d negative-stock errors", succeeded, failed)
	}

	item, err := svc.GetItem(ctx, "SKU-FLASHDISK-01")
	if err != nil {
		t.Fatalf("get item failed: %v", err)
	}
	if item.Stock != 0 {
		t.Fatalf("expected final stock 0, got %d", item.Stock)
	}
}

func TestRecordCashSaleCreatesWarrantyAndLedgerEntry(t *testing.T) {
	svc := newTestService()
	ctx := cashierCtx()

	opened, err := svc.OpenRegister(ctx, domain.RegisterOpenRequest{OpeningCents: 100000})
	if err != nil {
		t.Fatalf("open register failed: %v", err)
	}

	sale, err := svc.RecordSale(ctx, domain.SaleRequest{
		PaymentMethod: domain.PaymentCash,
		Items:         []domain.SaleLineInput{{SKU: "SKU-MOUSE-01", Qty: 1}},
	})
	if err != nil {
		t.Fatalf("sale failed: %v", err)
	}
	if sale.Sale.TotalCents != 8900000 {
		t.Fatalf("expected total 8900000, got %d", sale.Sale.TotalCents)
	}
	if sale.Sale.SessionID != opened.Session.ID {
		t.Fatalf("expected sale bound to open session")
	}

	item, err := svc.GetItem(ctx, "SKU-MOUSE-01")
	if err != nil {
		t.Fatalf("get item failed: %v", err)
	}
	if item.Stock != 24 {
		t.Fatalf("expected stock 24 after sale, got %d", item.Stock)
	}

	warranties, err := svc.ListWarranties(ctx, sale.Sale.ID, 10)
	if err != nil {
		t.Fatalf("list warranties failed: %v", err)
	}
	if len(warranties.Warranties) != 1 {
		t.Fatalf("expected one warranty for a 6-month item, got %d", len(warranties.Warranties))
	}

	ledger, err := svc.ListLedger(ctx, domain.LedgerFilter{SessionID: opened.Session.ID, Category: domain.CategorySale})
	if err != nil {
		t.Fatalf("list ledger failed: %v", err)
	}
	if len(ledger.Transactions) != 1 || ledger.Transactions[0].AmountCents != 8900000 {
		t.Fatalf("expected one sale ledger entry of 8900000")
	}
}

func TestReverseSaleRefundsOpenDrawer(t *testing.T) {
	svc := newTestService()
	cashier := cashierCtx()

	opened, err := svc.OpenRegister(cashier, domain.RegisterOpenRequest{OpeningCents: 100000})
	if err != nil {
		t.Fatalf("open register failed: %v", err)
	}
	sale, err := svc.RecordSale(cashier, domain.SaleRequest{
		PaymentMethod: domain.PaymentCash,
		Items:         []domain.SaleLineInput{{SKU: "SKU-KABEL-01", Qty: 2}},
	})
	if err != nil {
		t.Fatalf("sale failed: %v", err)
	}

	reversed, err := svc.ReverseSale(supervisorCtx("spv-ani"), domain.ReverseSaleRequest{
		SaleID: sale.Sale.ID,
		Reason: "customer cancelled",
	})
	if err != nil {
		t.Fatalf("reverse sale failed: %v", err)
	}
	if reversed.Sale.Status != domain.SaleStatusReversed {
		t.Fatalf("expected reversed status, got %s", reversed.Sale.Status)
	}

	item, err := svc.GetItem(cashier, "SKU-KABEL-01")
	if err != nil {
		t.Fatalf("get item failed: %v", err)
	}
	if item.Stock != 40 {
		t.Fatalf("expected stock restored to 40, got %d", item.Stock)
	}

	refunds, err := svc.ListLedger(cashier, domain.LedgerFilter{SessionID: opened.Session.ID, Category: domain.CategoryRefund})
	if err != nil {
		t.Fatalf("list ledger failed: %v", err)
	}
	if len(refunds.Transactions) != 1 || refunds.Transactions[0].AmountCents != sale.Sale.TotalCents {
		t.Fatalf("expected one refund entry matching sale total")
	}

	_, err = svc.ReverseSale(supervisorCtx("spv-ani"), domain.ReverseSaleRequest{SaleID: sale.Sale.ID, Reason: "again"})
	if !errors.Is(err, store.ErrInvalidState) {
		t.Fatalf("expected ErrInvalidState on second reversal, got %v", err)
	}
}

func TestDebtSaleAndRepayment(t *testing.T) {
	svc := newTestService()
	ctx := cashierCtx()

	sale, err := svc.RecordSale(ctx, domain.SaleRequest{
		PaymentMethod: domain.PaymentDebt,
		CustomerID:    "cust-warung-01",
		Items:         []domain.SaleLineInput{{SKU: "SKU-CASING-01", Qty: 2}},
	})
	if err != nil {
		t.Fatalf("debt sale failed: %v", err)
	}

	customer, err := svc.GetCustomer(ctx, "cust-warung-01")
	if err != nil {
		t.Fatalf("get customer failed: %v", err)
	}
	if customer.DebtCents != sale.Sale.TotalCents {
		t.Fatalf("expected debt %d, got %d", sale.Sale.TotalCents, customer.DebtCents)
	}

	if _, err := svc.OpenRegister(ctx, domain.RegisterOpenRequest{OpeningCents: 0}); err != nil {
		t.Fatalf("open register failed: %v", err)
	}

	_, err = svc.RecordDebtRepayment(ctx, domain.DebtRepaymentRequest{
		CustomerID:  "cust-warung-01",
		AmountCents: sale.Sale.TotalCents + 1,
	})
	if !errors.Is(err, store.ErrInvalidAmount) {
		t.Fatalf("expected ErrInvalidAmount on overpayment, got %v", err)
	}

	if _, err := svc.RecordDebtRepayment(ctx, domain.DebtRepaymentRequest{
		CustomerID:  "cust-warung-01",
		AmountCents: sale.Sale.TotalCents,
	}); err != nil {
		t.Fatalf("repayment failed: %v", err)
	}

	customer, err = svc.GetCustomer(ctx, "cust-warung-01")
	if err != nil {
		t.Fatalf("get customer failed: %v", err)
	}
	if customer.DebtCents != 0 {
		t.Fatalf("expected debt cleared, got %d", customer.DebtCents)
	}
}

func TestPurchaseOrderReceiveFlow(t *testing.T) {
	svc := newTestService()
	ctx := adminCtx()

	po, err := svc.CreatePurchaseOrder(ctx, domain.PurchaseOrderCreateRequest{
		SupplierID: "sup-grosir-01",
		Items:      []domain.PurchaseOrderItem{{SKU: "SKU-KABEL-01", Qty: 10, CostCents: 3000000}},
	})
	if err != nil {
		t.Fatalf("create po failed: %v", err)
	}
	if po.PurchaseOrder.TotalCents != 30000000 {
		t.Fatalf("expected po total 30000000, got %d", po.PurchaseOrder.TotalCents)
	}

	received, err := svc.ReceivePurchaseOrder(ctx, po.PurchaseOrder.ID, domain.PurchaseOrderReceiveRequest{
		SourceType: domain.SourceBankAccount,
		SourceID:   "bank-bca-01",
	})
	if err != nil {
		t.Fatalf("receive po failed: %v", err)
	}
	if received.PurchaseOrder.Status != domain.POStatusReceived {
		t.Fatalf("expected received status, got %s", received.PurchaseOrder.Status)
	}

	item, err := svc.GetItem(ctx, "SKU-KABEL-01")
	if err != nil {
		t.Fatalf("get item failed: %v", err)
	}
	if item.Stock != 50 {
		t.Fatalf("expected stock 50 after receipt, got %d", item.Stock)
	}

	purchases, err := svc.ListLedger(ctx, domain.LedgerFilter{
		SourceType: domain.SourceBankAccount,
		SourceID:   "bank-bca-01",
		Category:   domain.CategoryPurchase,
	})
	if err != nil {
		t.Fatalf("list ledger failed: %v", err)
	}
	if len(purchases.Transactions) != 1 || purchases.Transactions[0].AmountCents != 30000000 {
		t.Fatalf("expected one purchase entry of 30000000")
	}

	_, err = svc.ReceivePurchaseOrder(ctx, po.PurchaseOrder.ID, domain.PurchaseOrderReceiveRequest{
		SourceType: domain.SourceBankAccount,
		SourceID:   "bank-bca-01",
	})
	if !errors.Is(err, store.ErrInvalidState) {
		t.Fatalf("expected ErrInvalidState on second receive, got %v", err)
	}
}

func TestWarrantyClaimMovesStockOnce(t *testing.T) {
	svc := newTestService()
	cashier := cashierCtx()

	if _, err := svc.OpenRegister(cashier, domain.RegisterOpenRequest{OpeningCents: 0}); err != nil {
		t.Fatalf("open register failed: %v", err)
	}
	sale, err := svc.RecordSale(cashier, domain.SaleRequest{
		PaymentMethod: domain.PaymentCash,
		Items:         []domain.SaleLineInput{{SKU: "SKU-KEYBOARD-01", Qty: 1}},
	})
	if err != nil {
		t.Fatalf("sale failed: %v", err)
	}

	warranties, err := svc.ListWarranties(cashier, sale.Sale.ID, 10)
	if err != nil || len(warranties.Warranties) != 1 {
		t.Fatalf("expected one warranty, got %d (err=%v)", len(warranties.Warranties), err)
	}

	claimed, err := svc.ClaimWarranty(cashier, warranties.Warranties[0].ID, domain.WarrantyClaimRequest{
		Reason: "dead switch",
	})
	if err != nil {
		t.Fatalf("claim failed: %v", err)
	}
	if claimed.Warranty.Status != domain.WarrantyStatusClaimed {
		t.Fatalf("expected claimed status, got %s", claimed.Warranty.Status)
	}

	// Stock drops once for the sale and once for the replacement unit.
	item, err := svc.GetItem(cashier, "SKU-KEYBOARD-01")
	if err != nil {
		t.Fatalf("get item failed: %v", err)
	}
	if item.Stock != 10 {
		t.Fatalf("expected stock 10, got %d", item.Stock)
	}

	_, err = svc.ClaimWarranty(cashier, warranties.Warranties[0].ID, domain.WarrantyClaimRequest{Reason: "again"})
	if !errors.Is(err, store.ErrInvalidState) {
		t.Fatalf("expected ErrInvalidState on second claim, got %v", err)
	}
}

func TestReverseSaleWithClosedDrawerLeavesSaleIntact(t *testing.T) {
	svc := newTestService()
	cashier := cashierCtx()

	opened, err := svc.OpenRegister(cashier, domain.RegisterOpenRequest{OpeningCents: 100000})
	if err != nil {
		t.Fatalf("open register failed: %v", err)
	}
	sale, err := svc.RecordSale(cashier, domain.SaleRequest{
		PaymentMethod: domain.PaymentCash,
		Items:         []domain.SaleLineInput{{SKU: "SKU-KABEL-01", Qty: 2}},
	})
	if err != nil {
		t.Fatalf("sale failed: %v", err)
	}
	if _, err := svc.CloseRegister(cashier, opened.Session.ID, domain.RegisterCloseRequest{
		ActualCents: 100000 + sale.Sale.TotalCents,
	}); err != nil {
		t.Fatalf("close register failed: %v", err)
	}

	// No open drawer to refund into: the reversal must fail without
	// restocking anything or touching the sale.
	_, err = svc.ReverseSale(supervisorCtx("spv-ani"), domain.ReverseSaleRequest{
		SaleID: sale.Sale.ID,
		Reason: "customer cancelled after close",
	})
	if !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound without open drawer, got %v", err)
	}

	item, err := svc.GetItem(cashier, "SKU-KABEL-01")
	if err != nil {
		t.Fatalf("get item failed: %v", err)
	}
	if item.Stock != 38 {
		t.Fatalf("expected stock to stay at 38 after failed reversal, got %d", item.Stock)
	}
	got, err := svc.GetSale(cashier, sale.Sale.ID)
	if err != nil {
		t.Fatalf("get sale failed: %v", err)
	}
	if got.Sale.Status != domain.SaleStatusCompleted {
		t.Fatalf("expected sale to stay completed, got %s", got.Sale.Status)
	}

	// A fresh drawer makes the same reversal succeed exactly once.
	if _, err := svc.OpenRegister(cashier, domain.RegisterOpenRequest{OpeningCents: 50000}); err != nil {
		t.Fatalf("reopen register failed: %v", err)
	}
	reversed, err := svc.ReverseSale(supervisorCtx("spv-ani"), domain.ReverseSaleRequest{
		SaleID: sale.Sale.ID,
		Reason: "customer cancelled after close",
	})
	if err != nil {
		t.Fatalf("reverse sale failed: %v", err)
	}
	if reversed.Sale.Status != domain.SaleStatusReversed {
		t.Fatalf("expected reversed status, got %s", reversed.Sale.Status)
	}
	item, err = svc.GetItem(cashier, "SKU-KABEL-01")
	if err != nil {
		t.Fatalf("get item failed: %v", err)
	}
	if item.Stock != 40 {
		t.Fatalf("expected stock restored to 40, got %d", item.Stock)
	}
}

func TestBankEntryBindsToSession(t *testing.T) {
	svc := newTestService()
	ctx := cashierCtx()

	opened, err := svc.OpenRegister(ctx, domain.RegisterOpenRequest{OpeningCents: 100000})
	if err != nil {
		t.Fatalf("open register failed: %v", err)
	}

	entry, err := svc.RecordBankIn(ctx, domain.BankEntryRequest{
		BankAccountID: "bank-bca-01",
		AmountCents:   75000,
		Category:      domain.CategoryIncome,
		Description:   "drawer cash deposited to bank",
		SessionID:     opened.Session.ID,
	})
	if err != nil {
		t.Fatalf("bank in failed: %v", err)
	}
	if entry.Transaction.SessionID != opened.Session.ID {
		t.Fatalf("expected entry bound to session %s, got %q", opened.Session.ID, entry.Transaction.SessionID)
	}

	_, err = svc.RecordBankIn(ctx, domain.BankEntryRequest{
		BankAccountID: "bank-bca-01",
		AmountCents:   10000,
		Category:      domain.CategoryIncome,
		SessionID:     "ses-missing",
	})
	if !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for unknown session, got %v", err)
	}
}

func TestRegisterWarrantyOutsideSaleFlow(t *testing.T) {
	svc := newTestService()
	ctx := cashierCtx()

	// Catalog default: SKU-MOUSE-01 carries 6 months.
	resp, err := svc.RegisterWarranty(ctx, domain.WarrantyCreateRequest{
		SKU:        "sku-mouse-01",
		CustomerID: "cust-warung-01",
	})
	if err != nil {
		t.Fatalf("register warranty failed: %v", err)
	}
	if resp.Warranty.Status != domain.WarrantyStatusActive {
		t.Fatalf("expected active status, got %s", resp.Warranty.Status)
	}
	if got := resp.Warranty.IssuedAt.AddDate(0, 6, 0); !resp.Warranty.ExpiresAt.Equal(got) {
		t.Fatalf("expected 6-month coverage, got expiry %s", resp.Warranty.ExpiresAt)
	}

	claimed, err := svc.ClaimWarranty(ctx, resp.Warranty.ID, domain.WarrantyClaimRequest{
		Reason: "scroll wheel broken",
	})
	if err != nil {
		t.Fatalf("claim failed: %v", err)
	}
	if claimed.Warranty.Status != domain.WarrantyStatusClaimed {
		t.Fatalf("expected claimed status, got %s", claimed.Warranty.Status)
	}

	// An item without catalog coverage needs explicit months.
	_, err = svc.RegisterWarranty(ctx, domain.WarrantyCreateRequest{SKU: "SKU-FLASHDISK-01"})
	if !errors.Is(err, store.ErrInvalidState) {
		t.Fatalf("expected ErrInvalidState without coverage months, got %v", err)
	}
	if _, err := svc.RegisterWarranty(ctx, domain.WarrantyCreateRequest{
		SKU:    "SKU-FLASHDISK-01",
		Months: 3,
	}); err != nil {
		t.Fatalf("register with explicit months failed: %v", err)
	}

	_, err = svc.RegisterWarranty(ctx, domain.WarrantyCreateRequest{SKU: "SKU-UNKNOWN", Months: 3})
	if !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for unknown sku, got %v", err)
	}
}

func TestSessionReportSurfacesCounterDrift(t *testing.T) {
	svc := newTestService()
	ctx := cashierCtx()

	opened, err := svc.OpenRegister(ctx, domain.RegisterOpenRequest{OpeningCents: 100000})
	if err != nil {
		t.Fatalf("open register failed: %v", err)
	}
	entry, err := svc.RecordCashIn(ctx, domain.CashEntryRequest{
		AmountCents: 50000,
		Category:    domain.CategorySale,
	})
	if err != nil {
		t.Fatalf("cash in failed: %v", err)
	}
	if _, err := svc.ReverseTransaction(ctx, domain.ReverseEntryRequest{
		TransactionID: entry.Transaction.ID,
		Reason:        "wrong amount",
	}); err != nil {
		t.Fatalf("reverse failed: %v", err)
	}

	report, err := svc.SessionReport(ctx, opened.Session.ID)
	if err != nil {
		t.Fatalf("report failed: %v", err)
	}
	if report.ExpectedCents != 100000 {
		t.Fatalf("expected 100000 expected cents after reversal, got %d", report.ExpectedCents)
	}
	// The cached sales counter keeps the reversed 50000; the ledger nets
	// it out, so the report shows the drift.
	if report.CounterDriftCents != 50000 {
		t.Fatalf("expected counter drift 50000, got %d", report.CounterDriftCents)
	}
	if report.EntryCount != 2 {
		t.Fatalf("expected 2 ledger entries, got %d", report.EntryCount)
	}
}
