package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"tokoledger/backend/internal/domain"
	"tokoledger/backend/internal/reconcile"
	"tokoledger/backend/internal/store"
	"tokoledger/backend/internal/xid"
)

type actorContextKey struct{}

func WithActor(ctx context.Context, actor domain.Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

func ActorFromContext(ctx context.Context) (domain.Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(domain.Actor)
	return actor, ok
}

type Service struct {
	repo       store.Repository
	reconciler *reconcile.Engine
}

func New(repo store.Repository, reconciler *reconcile.Engine) *Service {
	if reconciler == nil {
		reconciler = reconcile.NewEngine(nil, 0)
	}

	return &Service{
		repo:       repo,
		reconciler: reconciler,
	}
}

func (s *Service) OpenRegister(ctx context.Context, req domain.RegisterOpenRequest) (domain.SessionResponse, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok {
		return domain.SessionResponse{}, fmt.Errorf("authenticated actor required")
	}
	if req.OpeningCents < 0 {
		return domain.SessionResponse{}, store.ErrInvalidAmount
	}

	session := domain.RegisterSession{
		ID:           xid.New("ses"),
		OpenedBy:     actor.Username,
		OpeningCents: req.OpeningCents,
		OpenedAt:     time.Now().UTC(),
	}
	saved, err := s.repo.CreateSession(ctx, session)
	if err != nil {
		return domain.SessionResponse{}, err
	}

	log.Printf("[service] register opened session=%s by=%s opening=%d", saved.ID, actor.Username, saved.OpeningCents)
	return domain.SessionResponse{Session: *saved}, nil
}

func (s *Service) CloseRegister(ctx context.Context, sessionID string, req domain.RegisterCloseRequest) (domain.SessionResponse, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok {
		return domain.SessionResponse{}, fmt.Errorf("authenticated actor required")
	}
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return domain.SessionResponse{}, store.ErrInvalidState
	}
	if req.ActualCents < 0 {
		return domain.SessionResponse{}, store.ErrInvalidAmount
	}

	closed, err := s.repo.CloseSession(ctx, sessionID, req.ActualCents, strings.TrimSpace(req.Notes), actor.Username, time.Now().UTC())
	if err != nil {
		return domain.SessionResponse{}, err
	}

	if closed.VarianceCents != 0 {
		log.Printf("[service] register closed session=%s by=%s variance=%d", closed.ID, actor.Username, closed.VarianceCents)
	}
	return domain.SessionResponse{Session: *closed}, nil
}

func (s *Service) GetActiveSession(ctx context.Context) (domain.SessionResponse, error) {
	session, err := s.repo.GetOpenSession(ctx)
	if err != nil {
		return domain.SessionResponse{}, err
	}
	return domain.SessionResponse{Session: *session}, nil
}

func (s *Service) GetSession(ctx context.Context, sessionID string) (domain.SessionResponse, error) {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return domain.SessionResponse{}, store.ErrInvalidState
	}
	session, err := s.repo.GetSession(ctx, sessionID)
	if err != nil {
		return domain.SessionResponse{}, err
	}
	return domain.SessionResponse{Session: *session}, nil
}

func (s *Service) ListSessions(ctx context.Context, limit int) (domain.SessionListResponse, error) {
	sessions, err := s.repo.ListSessions(ctx, limit)
	if err != nil {
		return domain.SessionListResponse{}, err
	}
	return domain.SessionListResponse{Sessions: sessions}, nil
}

func (s *Service) SessionReport(ctx context.Context, sessionID string) (domain.SessionReport, error) {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return domain.SessionReport{}, store.ErrInvalidState
	}

	session, err := s.repo.GetSession(ctx, sessionID)
	if err != nil {
		return domain.SessionReport{}, err
	}
	entries, err := s.repo.ListMoneyTransactions(ctx, domain.LedgerFilter{
		SourceType: domain.SourceCashRegister,
		SessionID:  sessionID,
		Limit:      10000,
	})
	if err != nil {
		return domain.SessionReport{}, err
	}

	return s.reconciler.SessionReport(ctx, *session, entries), nil
}

func (s *Service) RecordCashIn(ctx context.Context, req domain.CashEntryRequest) (domain.TransactionResponse, error) {
	return s.recordCashEntry(ctx, domain.EntryTypeIn, req)
}

func (s *Service) RecordCashOut(ctx context.Context, req domain.CashEntryRequest) (domain.TransactionResponse, error) {
	return s.recordCashEntry(ctx, domain.EntryTypeOut, req)
}

func (s *Service) recordCashEntry(ctx context.Context, entryType string, req domain.CashEntryRequest) (domain.TransactionResponse, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok {
		return domain.TransactionResponse{}, fmt.Errorf("authenticated actor required")
	}
	if req.AmountCents < 1 {
		return domain.TransactionResponse{}, store.ErrInvalidAmount
	}
	req.Category = strings.ToLower(strings.TrimSpace(req.Category))
	if !isSupportedCategory(entryType, req.Category) {
		return domain.TransactionResponse{}, store.ErrInvalidState
	}

	// Cash entries always target the currently open drawer.
	open, err := s.repo.GetOpenSession(ctx)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.TransactionResponse{}, fmt.Errorf("%w: no open register session", store.ErrInvalidState)
		}
		return domain.TransactionResponse{}, err
	}

	entry := domain.MoneyTransaction{
		Type:        entryType,
		AmountCents: req.AmountCents,
		SourceType:  domain.SourceCashRegister,
		SourceID:    open.ID,
		SessionID:   open.ID,
		Category:    req.Category,
		Description: strings.TrimSpace(req.Description),
		Reference:   req.Reference,
		UserID:      actor.Username,
		CreatedAt:   time.Now().UTC(),
	}
	saved, err := s.repo.AppendMoneyTransaction(ctx, entry)
	if err != nil {
		return domain.TransactionResponse{}, err
	}
	return domain.TransactionResponse{Transaction: *saved}, nil
}

func (s *Service) RecordBankIn(ctx context.Context, req domain.BankEntryRequest) (domain.TransactionResponse, error) {
	return s.recordBankEntry(ctx, domain.EntryTypeIn, req)
}

func (s *Service) RecordBankOut(ctx context.Context, req domain.BankEntryRequest) (domain.TransactionResponse, error) {
	return s.recordBankEntry(ctx, domain.EntryTypeOut, req)
}

func (s *Service) recordBankEntry(ctx context.Context, entryType string, req domain.BankEntryRequest) (domain.TransactionResponse, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok {
		return domain.TransactionResponse{}, fmt.Errorf("authenticated actor required")
	}
	if req.AmountCents < 1 {
		return domain.TransactionResponse{}, store.ErrInvalidAmount
	}
	req.BankAccountID = strings.TrimSpace(req.BankAccountID)
	if req.BankAccountID == "" {
		return domain.TransactionResponse{}, store.ErrInvalidState
	}
	req.Category = strings.ToLower(strings.TrimSpace(req.Category))
	if !isSupportedCategory(entryType, req.Category) {
		return domain.TransactionResponse{}, store.ErrInvalidState
	}
	// A bank entry may optionally be tied to a register session (e.g. a bank
	// deposit of the drawer's cash); the session must exist.
	req.SessionID = strings.TrimSpace(req.SessionID)
	if req.SessionID != "" {
		if _, err := s.repo.GetSession(ctx, req.SessionID); err != nil {
			return domain.TransactionResponse{}, err
		}
	}

	entry := domain.MoneyTransaction{
		Type:        entryType,
		AmountCents: req.AmountCents,
		SourceType:  domain.SourceBankAccount,
		SourceID:    req.BankAccountID,
		SessionID:   req.SessionID,
		Category:    req.Category,
		Description: strings.TrimSpace(req.Description),
		Reference:   req.Reference,
		UserID:      actor.Username,
		CreatedAt:   time.Now().UTC(),
	}
	saved, err := s.repo.AppendMoneyTransaction(ctx, entry)
	if err != nil {
		return domain.TransactionResponse{}, err
	}
	return domain.TransactionResponse{Transaction: *saved}, nil
}

func (s *Service) ReverseTransaction(ctx context.Context, req domain.ReverseEntryRequest) (domain.TransactionResponse, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok {
		return domain.TransactionResponse{}, fmt.Errorf("authenticated actor required")
	}
	req.TransactionID = strings.TrimSpace(req.TransactionID)
	if req.TransactionID == "" {
		return domain.TransactionResponse{}, store.ErrInvalidState
	}
	if strings.TrimSpace(req.Reason) == "" {
		return domain.TransactionResponse{}, store.ErrInvalidState
	}

	original, err := s.repo.GetMoneyTransaction(ctx, req.TransactionID)
	if err != nil {
		return domain.TransactionResponse{}, err
	}
	if original.ReversalOf != "" {
		return domain.TransactionResponse{}, fmt.Errorf("%w: cannot reverse a reversal", store.ErrInvalidState)
	}
	reversed, err := s.repo.HasReversal(ctx, original.ID)
	if err != nil {
		return domain.TransactionResponse{}, err
	}
	if reversed {
		return domain.TransactionResponse{}, fmt.Errorf("%w: transaction already reversed", store.ErrInvalidState)
	}

	opposite := domain.EntryTypeOut
	if original.Type == domain.EntryTypeOut {
		opposite = domain.EntryTypeIn
	}

	entry := domain.MoneyTransaction{
		Type:        opposite,
		AmountCents: original.AmountCents,
		SourceType:  original.SourceType,
		SourceID:    original.SourceID,
		Category:    domain.CategoryReversal,
		Description: strings.TrimSpace(req.Reason),
		Reference:   original.Reference,
		ReversalOf:  original.ID,
		UserID:      actor.Username,
		CreatedAt:   time.Now().UTC(),
	}
	if original.SourceType == domain.SourceCashRegister {
		// The offsetting cash moves through whatever drawer is open now.
		open, err := s.repo.GetOpenSession(ctx)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return domain.TransactionResponse{}, fmt.Errorf("%w: no open register session for cash reversal", store.ErrInvalidState)
			}
			return domain.TransactionResponse{}, err
		}
		entry.SourceID = open.ID
		entry.SessionID = open.ID
	}

	saved, err := s.repo.AppendMoneyTransaction(ctx, entry)
	if err != nil {
		return domain.TransactionResponse{}, err
	}

	log.Printf("[service] transaction reversed original=%s reversal=%s by=%s", original.ID, saved.ID, actor.Username)
	return domain.TransactionResponse{Transaction: *saved}, nil
}

func (s *Service) GetTransaction(ctx context.Context, txID string) (domain.TransactionResponse, error) {
	txID = strings.TrimSpace(txID)
	if txID == "" {
		return domain.TransactionResponse{}, store.ErrInvalidState
	}
	entry, err := s.repo.GetMoneyTransaction(ctx, txID)
	if err != nil {
		return domain.TransactionResponse{}, err
	}
	return domain.TransactionResponse{Transaction: *entry}, nil
}

func (s *Service) ListLedger(ctx context.Context, filter domain.LedgerFilter) (domain.TransactionListResponse, error) {
	entries, err := s.repo.ListMoneyTransactions(ctx, filter)
	if err != nil {
		return domain.TransactionListResponse{}, err
	}
	return domain.TransactionListResponse{Transactions: entries}, nil
}

// LedgerBalance sums ledger entries for the source, optionally up to asOf.
// Cached balances elsewhere are optimizations; this sum is the truth.
func (s *Service) LedgerBalance(ctx context.Context, sourceType string, sourceID string, asOf *time.Time) (domain.BalanceResponse, error) {
	sourceType = strings.TrimSpace(sourceType)
	sourceID = strings.TrimSpace(sourceID)
	if sourceType == "" {
		return domain.BalanceResponse{}, store.ErrInvalidState
	}

	opening := int64(0)
	switch sourceType {
	case domain.SourceCashRegister:
		if sourceID == "" {
			return domain.BalanceResponse{}, store.ErrInvalidState
		}
		session, err := s.repo.GetSession(ctx, sourceID)
		if err != nil {
			return domain.BalanceResponse{}, err
		}
		opening = session.OpeningCents
	case domain.SourceBankAccount:
		if sourceID == "" {
			return domain.BalanceResponse{}, store.ErrInvalidState
		}
		if _, err := s.repo.GetBankAccount(ctx, sourceID); err != nil {
			return domain.BalanceResponse{}, err
		}
	default:
		return domain.BalanceResponse{}, store.ErrInvalidState
	}

	sum, err := s.repo.SumLedger(ctx, domain.LedgerFilter{SourceType: sourceType, SourceID: sourceID, To: asOf})
	if err != nil {
		return domain.BalanceResponse{}, err
	}

	at := time.Now().UTC()
	if asOf != nil {
		at = asOf.UTC()
	}
	return domain.BalanceResponse{
		SourceType:   sourceType,
		SourceID:     sourceID,
		BalanceCents: opening + sum.InCents - sum.OutCents,
		AsOf:         at,
	}, nil
}

func (s *Service) RecordIncome(ctx context.Context, req domain.CashEntryRequest) (domain.TransactionResponse, error) {
	req.Category = domain.CategoryIncome
	return s.recordCashEntry(ctx, domain.EntryTypeIn, req)
}

func (s *Service) RecordExpense(ctx context.Context, req domain.CashEntryRequest) (domain.TransactionResponse, error) {
	req.Category = domain.CategoryExpense
	return s.recordCashEntry(ctx, domain.EntryTypeOut, req)
}

func (s *Service) RequestHistoricalAccess(ctx context.Context, req domain.AccessRequestCreate) (domain.AccessRequestResponse, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok {
		return domain.AccessRequestResponse{}, fmt.Errorf("authenticated actor required")
	}
	req.SessionID = strings.TrimSpace(req.SessionID)
	req.Reason = strings.TrimSpace(req.Reason)
	if req.SessionID == "" || req.Reason == "" {
		return domain.AccessRequestResponse{}, store.ErrInvalidState
	}

	saved, err := s.repo.CreateAccessRequest(ctx, domain.SessionAccessRequest{
		ID:          xid.New("req"),
		SessionID:   req.SessionID,
		RequestedBy: actor.Username,
		Reason:      req.Reason,
		CreatedAt:   time.Now().UTC(),
	})
	if err != nil {
		return domain.AccessRequestResponse{}, err
	}
	return domain.AccessRequestResponse{Request: *saved}, nil
}

func (s *Service) ApproveAccessRequest(ctx context.Context, requestID string) (domain.AccessRequestResponse, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok || (actor.Role != "admin" && actor.Role != "supervisor") {
		return domain.AccessRequestResponse{}, fmt.Errorf("supervisor role required")
	}
	requestID = strings.TrimSpace(requestID)
	if requestID == "" {
		return domain.AccessRequestResponse{}, store.ErrInvalidState
	}

	resolved, err := s.repo.ResolveAccessRequest(ctx, requestID, domain.RequestStatusApproved, actor.Username, "", time.Now().UTC())
	if err != nil {
		return domain.AccessRequestResponse{}, err
	}

	log.Printf("[service] access request approved request=%s session=%s by=%s", resolved.ID, resolved.SessionID, actor.Username)
	return domain.AccessRequestResponse{Request: *resolved}, nil
}

func (s *Service) DenyAccessRequest(ctx context.Context, requestID string, req domain.AccessRequestDeny) (domain.AccessRequestResponse, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok || (actor.Role != "admin" && actor.Role != "supervisor") {
		return domain.AccessRequestResponse{}, fmt.Errorf("supervisor role required")
	}
	requestID = strings.TrimSpace(requestID)
	if requestID == "" {
		return domain.AccessRequestResponse{}, store.ErrInvalidState
	}
	reason := strings.TrimSpace(req.Reason)
	if reason == "" {
		reason = "unspecified"
	}

	resolved, err := s.repo.ResolveAccessRequest(ctx, requestID, domain.RequestStatusDenied, actor.Username, reason, time.Now().UTC())
	if err != nil {
		return domain.AccessRequestResponse{}, err
	}
	return domain.AccessRequestResponse{Request: *resolved}, nil
}

func (s *Service) ListAccessRequests(ctx context.Context, sessionID string, status string, limit int) (domain.AccessRequestListResponse, error) {
	requests, err := s.repo.ListAccessRequests(ctx, strings.TrimSpace(sessionID), strings.ToLower(strings.TrimSpace(status)), limit)
	if err != nil {
		return domain.AccessRequestListResponse{}, err
	}
	return domain.AccessRequestListResponse{Requests: requests}, nil
}

func (s *Service) EditClosedSession(ctx context.Context, edit domain.SessionEditRequest) (domain.SessionAudit, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok {
		return domain.SessionAudit{}, fmt.Errorf("authenticated actor required")
	}
	edit.RequestID = strings.TrimSpace(edit.RequestID)
	edit.Reason = strings.TrimSpace(edit.Reason)
	if edit.RequestID == "" || edit.Reason == "" {
		return domain.SessionAudit{}, store.ErrInvalidState
	}
	if edit.OpeningCents == nil && edit.ActualCents == nil && edit.Notes == nil {
		return domain.SessionAudit{}, store.ErrInvalidState
	}

	request, err := s.repo.GetAccessRequest(ctx, edit.RequestID)
	if err != nil {
		return domain.SessionAudit{}, err
	}
	if request.RequestedBy != actor.Username {
		return domain.SessionAudit{}, fmt.Errorf("%w: approval belongs to another user", store.ErrRequestNotApproved)
	}

	audit, err := s.repo.ApplySessionEdit(ctx, edit, actor.Username, time.Now().UTC())
	if err != nil {
		return domain.SessionAudit{}, err
	}

	log.Printf("[service] closed session edited session=%s request=%s by=%s", audit.SessionID, audit.RequestID, actor.Username)
	return *audit, nil
}

func (s *Service) ListSessionAudits(ctx context.Context, sessionID string) ([]domain.SessionAudit, error) {
	return s.repo.ListSessionAudits(ctx, strings.TrimSpace(sessionID))
}

func (s *Service) CreateItem(ctx context.Context, req domain.ItemCreateRequest) (domain.Item, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Role != "admin" {
		return domain.Item{}, fmt.Errorf("admin role required")
	}

	req.SKU = strings.ToUpper(strings.TrimSpace(req.SKU))
	req.Name = strings.TrimSpace(req.Name)
	req.Category = strings.TrimSpace(req.Category)
	if req.SKU == "" || req.Name == "" || req.Category == "" {
		return domain.Item{}, store.ErrInvalidState
	}
	if req.PriceCents < 1 || req.InitialStock < 0 || req.WarrantyMonths < 0 {
		return domain.Item{}, store.ErrInvalidState
	}

	item := domain.Item{
		SKU:            req.SKU,
		Name:           req.Name,
		Category:       req.Category,
		PriceCents:     req.PriceCents,
		WarrantyMonths: req.WarrantyMonths,
		Active:         true,
	}
	created, err := s.repo.CreateItem(ctx, item)
	if err != nil {
		return domain.Item{}, err
	}

	if req.InitialStock > 0 {
		if _, err := s.repo.ApplyStockMovement(ctx, domain.ItemLog{
			SKU:         created.SKU,
			Type:        domain.MovementReceived,
			QtyChange:   req.InitialStock,
			Description: "initial stock",
			UserID:      actor.Username,
			CreatedAt:   time.Now().UTC(),
		}, false); err != nil {
			return domain.Item{}, err
		}
		created.Stock = req.InitialStock
	}

	return *created, nil
}

func (s *Service) UpdateItem(ctx context.Context, sku string, req domain.ItemUpdateRequest) (domain.Item, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Role != "admin" {
		return domain.Item{}, fmt.Errorf("admin role required")
	}

	sku = strings.ToUpper(strings.TrimSpace(sku))
	if sku == "" {
		return domain.Item{}, store.ErrInvalidState
	}

	existing, err := s.repo.GetItemBySKU(ctx, sku)
	if err != nil {
		return domain.Item{}, err
	}

	updated := *existing
	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			return domain.Item{}, store.ErrInvalidState
		}
		updated.Name = name
	}
	if req.Category != nil {
		category := strings.TrimSpace(*req.Category)
		if category == "" {
			return domain.Item{}, store.ErrInvalidState
		}
		updated.Category = category
	}
	if req.PriceCents != nil {
		if *req.PriceCents < 1 {
			return domain.Item{}, store.ErrInvalidState
		}
		updated.PriceCents = *req.PriceCents
	}
	if req.WarrantyMonths != nil {
		if *req.WarrantyMonths < 0 {
			return domain.Item{}, store.ErrInvalidState
		}
		updated.WarrantyMonths = *req.WarrantyMonths
	}
	if req.Active != nil {
		updated.Active = *req.Active
	}

	saved, err := s.repo.UpdateItem(ctx, updated)
	if err != nil {
		return domain.Item{}, err
	}
	return *saved, nil
}

func (s *Service) GetItem(ctx context.Context, sku string) (domain.Item, error) {
	sku = strings.ToUpper(strings.TrimSpace(sku))
	if sku == "" {
		return domain.Item{}, store.ErrInvalidState
	}
	item, err := s.repo.GetItemBySKU(ctx, sku)
	if err != nil {
		return domain.Item{}, err
	}
	return *item, nil
}

func (s *Service) ListItems(ctx context.Context) ([]domain.Item, error) {
	return s.repo.ListItems(ctx)
}

func (s *Service) ApplyStockMovement(ctx context.Context, req domain.StockMovementRequest) (domain.ItemLogResponse, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok {
		return domain.ItemLogResponse{}, fmt.Errorf("authenticated actor required")
	}

	req.SKU = strings.ToUpper(strings.TrimSpace(req.SKU))
	req.Type = strings.ToLower(strings.TrimSpace(req.Type))
	if req.SKU == "" || req.QtyChange == 0 {
		return domain.ItemLogResponse{}, store.ErrInvalidState
	}
	if !isSupportedMovement(req.Type) {
		return domain.ItemLogResponse{}, store.ErrInvalidState
	}

	// Negative stock is only ever allowed on explicit adjustments, where a
	// physical count can legitimately land below zero on paper.
	allowNegative := req.AllowNegative && req.Type == domain.MovementAdjustment

	entry := domain.ItemLog{
		SKU:         req.SKU,
		Type:        req.Type,
		QtyChange:   req.QtyChange,
		Description: strings.TrimSpace(req.Description),
		Reference:   req.Reference,
		UserID:      actor.Username,
		CreatedAt:   time.Now().UTC(),
	}
	saved, err := s.repo.ApplyStockMovement(ctx, entry, allowNegative)
	if err != nil {
		return domain.ItemLogResponse{}, err
	}
	return domain.ItemLogResponse{Log: *saved}, nil
}

func (s *Service) ReverseStockMovement(ctx context.Context, req domain.ReverseMovementRequest) (domain.ItemLogResponse, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok {
		return domain.ItemLogResponse{}, fmt.Errorf("authenticated actor required")
	}
	req.LogID = strings.TrimSpace(req.LogID)
	if req.LogID == "" {
		return domain.ItemLogResponse{}, store.ErrInvalidState
	}
	if strings.TrimSpace(req.Reason) == "" {
		return domain.ItemLogResponse{}, store.ErrInvalidState
	}

	original, err := s.repo.GetItemLog(ctx, req.LogID)
	if err != nil {
		return domain.ItemLogResponse{}, err
	}
	if original.Type == domain.MovementReversed || original.ReversalOf != "" {
		return domain.ItemLogResponse{}, fmt.Errorf("%w: cannot reverse a reversal", store.ErrInvalidState)
	}

	entry := domain.ItemLog{
		SKU:         original.SKU,
		Type:        domain.MovementReversed,
		QtyChange:   -original.QtyChange,
		Description: strings.TrimSpace(req.Reason),
		Reference:   original.Reference,
		ReversalOf:  original.ID,
		UserID:      actor.Username,
		CreatedAt:   time.Now().UTC(),
	}
	saved, err := s.repo.ApplyStockMovement(ctx, entry, false)
	if err != nil {
		return domain.ItemLogResponse{}, err
	}
	return domain.ItemLogResponse{Log: *saved}, nil
}

func (s *Service) ListItemLogs(ctx context.Context, sku string, limit int) (domain.ItemLogListResponse, error) {
	logs, err := s.repo.ListItemLogs(ctx, strings.ToUpper(strings.TrimSpace(sku)), limit)
	if err != nil {
		return domain.ItemLogListResponse{}, err
	}
	return domain.ItemLogListResponse{Logs: logs}, nil
}

func (s *Service) RecordSale(ctx context.Context, req domain.SaleRequest) (domain.SaleResponse, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok {
		return domain.SaleResponse{}, fmt.Errorf("authenticated actor required")
	}

	req.PaymentMethod = strings.ToLower(strings.TrimSpace(req.PaymentMethod))
	if req.PaymentMethod == "" {
		req.PaymentMethod = domain.PaymentCash
	}
	if !isSupportedPayment(req.PaymentMethod) {
		return domain.SaleResponse{}, store.ErrInvalidState
	}

	normalized := normalizeSaleLines(req.Items)
	if len(normalized) == 0 {
		return domain.SaleResponse{}, store.ErrInvalidState
	}

	sale := domain.Sale{
		ID:            xid.New("sale"),
		CustomerID:    strings.TrimSpace(req.CustomerID),
		PaymentMethod: req.PaymentMethod,
		BankAccountID: strings.TrimSpace(req.BankAccountID),
		SoldBy:        actor.Username,
		CreatedAt:     time.Now().UTC(),
	}
	for _, line := range normalized {
		sale.Items = append(sale.Items, domain.SaleLine{SKU: line.SKU, Qty: line.Qty})
	}

	switch req.PaymentMethod {
	case domain.PaymentCash:
		open, err := s.repo.GetOpenSession(ctx)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return domain.SaleResponse{}, fmt.Errorf("%w: no open register session", store.ErrInvalidState)
			}
			return domain.SaleResponse{}, err
		}
		sale.SessionID = open.ID
	case domain.PaymentBank:
		if sale.BankAccountID == "" {
			return domain.SaleResponse{}, store.ErrInvalidState
		}
	case domain.PaymentDebt:
		if sale.CustomerID == "" {
			return domain.SaleResponse{}, store.ErrInvalidState
		}
	}

	saved, err := s.repo.CreateSale(ctx, sale)
	if err != nil {
		return domain.SaleResponse{}, err
	}

	log.Printf("[service] sale recorded sale=%s total=%d payment=%s by=%s", saved.ID, saved.TotalCents, saved.PaymentMethod, actor.Username)
	return domain.SaleResponse{Sale: *saved}, nil
}

func (s *Service) ReverseSale(ctx context.Context, req domain.ReverseSaleRequest) (domain.SaleResponse, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok || (actor.Role != "admin" && actor.Role != "supervisor") {
		return domain.SaleResponse{}, fmt.Errorf("supervisor role required")
	}
	req.SaleID = strings.TrimSpace(req.SaleID)
	if req.SaleID == "" {
		return domain.SaleResponse{}, store.ErrInvalidState
	}
	reason := strings.TrimSpace(req.Reason)
	if reason == "" {
		reason = "unspecified"
	}

	reversed, err := s.repo.ReverseSale(ctx, req.SaleID, reason, actor.Username, time.Now().UTC())
	if err != nil {
		return domain.SaleResponse{}, err
	}

	log.Printf("[service] sale reversed sale=%s total=%d by=%s", reversed.ID, reversed.TotalCents, actor.Username)
	return domain.SaleResponse{Sale: *reversed}, nil
}

func (s *Service) GetSale(ctx context.Context, saleID string) (domain.SaleResponse, error) {
	saleID = strings.TrimSpace(saleID)
	if saleID == "" {
		return domain.SaleResponse{}, store.ErrInvalidState
	}
	sale, err := s.repo.GetSale(ctx, saleID)
	if err != nil {
		return domain.SaleResponse{}, err
	}
	return domain.SaleResponse{Sale: *sale}, nil
}

func (s *Service) ListSales(ctx context.Context, sessionID string, limit int) (domain.SaleListResponse, error) {
	sales, err := s.repo.ListSales(ctx, strings.TrimSpace(sessionID), limit)
	if err != nil {
		return domain.SaleListResponse{}, err
	}
	return domain.SaleListResponse{Sales: sales}, nil
}

func (s *Service) RecordDebtRepayment(ctx context.Context, req domain.DebtRepaymentRequest) (domain.TransactionResponse, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok {
		return domain.TransactionResponse{}, fmt.Errorf("authenticated actor required")
	}
	req.CustomerID = strings.TrimSpace(req.CustomerID)
	if req.CustomerID == "" {
		return domain.TransactionResponse{}, store.ErrInvalidState
	}
	if req.AmountCents < 1 {
		return domain.TransactionResponse{}, store.ErrInvalidAmount
	}

	entry := domain.MoneyTransaction{
		Type:        domain.EntryTypeIn,
		AmountCents: req.AmountCents,
		Category:    domain.CategoryDebtRepayment,
		Description: "debt repayment",
		Reference:   domain.Reference{Kind: "customer", ID: req.CustomerID},
		UserID:      actor.Username,
		CreatedAt:   time.Now().UTC(),
	}

	req.BankAccountID = strings.TrimSpace(req.BankAccountID)
	if strings.ToLower(strings.TrimSpace(req.Method)) == domain.PaymentBank {
		if req.BankAccountID == "" {
			return domain.TransactionResponse{}, store.ErrInvalidState
		}
		entry.SourceType = domain.SourceBankAccount
		entry.SourceID = req.BankAccountID
	} else {
		open, err := s.repo.GetOpenSession(ctx)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return domain.TransactionResponse{}, fmt.Errorf("%w: no open register session", store.ErrInvalidState)
			}
			return domain.TransactionResponse{}, err
		}
		entry.SourceType = domain.SourceCashRegister
		entry.SourceID = open.ID
		entry.SessionID = open.ID
	}

	saved, err := s.repo.RecordDebtRepayment(ctx, entry, req.CustomerID)
	if err != nil {
		return domain.TransactionResponse{}, err
	}
	return domain.TransactionResponse{Transaction: *saved}, nil
}

func (s *Service) CreateBankAccount(ctx context.Context, req domain.BankAccountCreateRequest) (domain.BankAccount, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Role != "admin" {
		return domain.BankAccount{}, fmt.Errorf("admin role required")
	}
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" || req.OpeningCents < 0 {
		return domain.BankAccount{}, store.ErrInvalidState
	}

	saved, err := s.repo.CreateBankAccount(ctx, domain.BankAccount{
		ID:           xid.New("bank"),
		Name:         req.Name,
		Number:       strings.TrimSpace(req.Number),
		BalanceCents: req.OpeningCents,
		CreatedAt:    time.Now().UTC(),
	})
	if err != nil {
		return domain.BankAccount{}, err
	}
	return *saved, nil
}

func (s *Service) ListBankAccounts(ctx context.Context) ([]domain.BankAccount, error) {
	return s.repo.ListBankAccounts(ctx)
}

func (s *Service) CreateCustomer(ctx context.Context, req domain.CustomerCreateRequest) (domain.Customer, error) {
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		return domain.Customer{}, store.ErrInvalidState
	}

	saved, err := s.repo.CreateCustomer(ctx, domain.Customer{
		ID:        xid.New("cust"),
		Name:      req.Name,
		Phone:     strings.TrimSpace(req.Phone),
		CreatedAt: time.Now().UTC(),
	})
	if err != nil {
		return domain.Customer{}, err
	}
	return *saved, nil
}

func (s *Service) GetCustomer(ctx context.Context, customerID string) (domain.Customer, error) {
	customerID = strings.TrimSpace(customerID)
	if customerID == "" {
		return domain.Customer{}, store.ErrInvalidState
	}
	customer, err := s.repo.GetCustomer(ctx, customerID)
	if err != nil {
		return domain.Customer{}, err
	}
	return *customer, nil
}

func (s *Service) ListCustomers(ctx context.Context) ([]domain.Customer, error) {
	return s.repo.ListCustomers(ctx)
}

func (s *Service) CreateSupplier(ctx context.Context, req domain.SupplierCreateRequest) (domain.Supplier, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Role != "admin" {
		return domain.Supplier{}, fmt.Errorf("admin role required")
	}
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		return domain.Supplier{}, store.ErrInvalidState
	}

	saved, err := s.repo.CreateSupplier(ctx, domain.Supplier{
		ID:        xid.New("sup"),
		Name:      req.Name,
		Phone:     strings.TrimSpace(req.Phone),
		CreatedAt: time.Now().UTC(),
	})
	if err != nil {
		return domain.Supplier{}, err
	}
	return *saved, nil
}

func (s *Service) ListSuppliers(ctx context.Context) ([]domain.Supplier, error) {
	return s.repo.ListSuppliers(ctx)
}

func (s *Service) CreatePurchaseOrder(ctx context.Context, req domain.PurchaseOrderCreateRequest) (domain.PurchaseOrderResponse, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Role != "admin" {
		return domain.PurchaseOrderResponse{}, fmt.Errorf("admin role required")
	}
	req.SupplierID = strings.TrimSpace(req.SupplierID)
	if req.SupplierID == "" || len(req.Items) == 0 {
		return domain.PurchaseOrderResponse{}, store.ErrInvalidState
	}

	normalized := make([]domain.PurchaseOrderItem, 0, len(req.Items))
	for _, item := range req.Items {
		item.SKU = strings.ToUpper(strings.TrimSpace(item.SKU))
		if item.SKU == "" || item.Qty < 1 || item.CostCents < 1 {
			return domain.PurchaseOrderResponse{}, store.ErrInvalidState
		}
		normalized = append(normalized, item)
	}

	saved, err := s.repo.CreatePurchaseOrder(ctx, domain.PurchaseOrder{
		ID:         xid.New("po"),
		SupplierID: req.SupplierID,
		CreatedAt:  time.Now().UTC(),
		Items:      normalized,
	})
	if err != nil {
		return domain.PurchaseOrderResponse{}, err
	}
	return domain.PurchaseOrderResponse{PurchaseOrder: *saved}, nil
}

func (s *Service) ListPurchaseOrders(ctx context.Context, status string) (domain.PurchaseOrderListResponse, error) {
	orders, err := s.repo.ListPurchaseOrders(ctx, strings.ToLower(strings.TrimSpace(status)), 200)
	if err != nil {
		return domain.PurchaseOrderListResponse{}, err
	}
	return domain.PurchaseOrderListResponse{PurchaseOrders: orders}, nil
}

func (s *Service) ReceivePurchaseOrder(ctx context.Context, purchaseOrderID string, req domain.PurchaseOrderReceiveRequest) (domain.PurchaseOrderResponse, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Role != "admin" {
		return domain.PurchaseOrderResponse{}, fmt.Errorf("admin role required")
	}
	purchaseOrderID = strings.TrimSpace(purchaseOrderID)
	if purchaseOrderID == "" {
		return domain.PurchaseOrderResponse{}, store.ErrInvalidState
	}

	payment := domain.MoneyTransaction{
		Description: "purchase order received",
		UserID:      actor.Username,
	}
	req.SourceType = strings.TrimSpace(req.SourceType)
	switch req.SourceType {
	case domain.SourceBankAccount:
		req.SourceID = strings.TrimSpace(req.SourceID)
		if req.SourceID == "" {
			return domain.PurchaseOrderResponse{}, store.ErrInvalidState
		}
		payment.SourceType = domain.SourceBankAccount
		payment.SourceID = req.SourceID
	case domain.SourceCashRegister, "":
		open, err := s.repo.GetOpenSession(ctx)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return domain.PurchaseOrderResponse{}, fmt.Errorf("%w: no open register session", store.ErrInvalidState)
			}
			return domain.PurchaseOrderResponse{}, err
		}
		payment.SourceType = domain.SourceCashRegister
		payment.SourceID = open.ID
		payment.SessionID = open.ID
	default:
		return domain.PurchaseOrderResponse{}, store.ErrInvalidState
	}

	received, err := s.repo.ReceivePurchaseOrder(ctx, purchaseOrderID, payment, actor.Username, time.Now().UTC())
	if err != nil {
		return domain.PurchaseOrderResponse{}, err
	}

	log.Printf("[service] purchase order received po=%s total=%d by=%s", received.ID, received.TotalCents, actor.Username)
	return domain.PurchaseOrderResponse{PurchaseOrder: *received}, nil
}

// RegisterWarranty issues a warranty card outside the sale flow, e.g. for a
// unit sold before warranty tracking existed. Coverage months come from the
// request, falling back to the catalog default for the item.
func (s *Service) RegisterWarranty(ctx context.Context, req domain.WarrantyCreateRequest) (domain.WarrantyResponse, error) {
	if _, ok := ActorFromContext(ctx); !ok {
		return domain.WarrantyResponse{}, fmt.Errorf("authenticated actor required")
	}
	if req.Months < 0 {
		return domain.WarrantyResponse{}, store.ErrInvalidState
	}

	sku := strings.ToUpper(strings.TrimSpace(req.SKU))
	if sku == "" {
		return domain.WarrantyResponse{}, store.ErrInvalidState
	}
	item, err := s.repo.GetItemBySKU(ctx, sku)
	if err != nil {
		return domain.WarrantyResponse{}, err
	}

	months := req.Months
	if months == 0 {
		months = item.WarrantyMonths
	}
	if months < 1 {
		return domain.WarrantyResponse{}, store.ErrInvalidState
	}

	saleID := strings.TrimSpace(req.SaleID)
	if saleID != "" {
		if _, err := s.repo.GetSale(ctx, saleID); err != nil {
			return domain.WarrantyResponse{}, err
		}
	}
	customerID := strings.TrimSpace(req.CustomerID)
	if customerID != "" {
		if _, err := s.repo.GetCustomer(ctx, customerID); err != nil {
			return domain.WarrantyResponse{}, err
		}
	}

	now := time.Now().UTC()
	created, err := s.repo.CreateWarranty(ctx, domain.Warranty{
		ID:         xid.New("war"),
		SaleID:     saleID,
		SKU:        sku,
		CustomerID: customerID,
		Status:     domain.WarrantyStatusActive,
		IssuedAt:   now,
		ExpiresAt:  now.AddDate(0, months, 0),
	})
	if err != nil {
		return domain.WarrantyResponse{}, err
	}
	return domain.WarrantyResponse{Warranty: *created}, nil
}

func (s *Service) GetWarranty(ctx context.Context, warrantyID string) (domain.WarrantyResponse, error) {
	warrantyID = strings.TrimSpace(warrantyID)
	if warrantyID == "" {
		return domain.WarrantyResponse{}, store.ErrInvalidState
	}
	warranty, err := s.repo.GetWarranty(ctx, warrantyID)
	if err != nil {
		return domain.WarrantyResponse{}, err
	}
	return domain.WarrantyResponse{Warranty: *warranty}, nil
}

func (s *Service) ListWarranties(ctx context.Context, saleID string, limit int) (domain.WarrantyListResponse, error) {
	warranties, err := s.repo.ListWarranties(ctx, strings.TrimSpace(saleID), limit)
	if err != nil {
		return domain.WarrantyListResponse{}, err
	}
	return domain.WarrantyListResponse{Warranties: warranties}, nil
}

func (s *Service) ClaimWarranty(ctx context.Context, warrantyID string, req domain.WarrantyClaimRequest) (domain.WarrantyResponse, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok {
		return domain.WarrantyResponse{}, fmt.Errorf("authenticated actor required")
	}
	warrantyID = strings.TrimSpace(warrantyID)
	if warrantyID == "" {
		return domain.WarrantyResponse{}, store.ErrInvalidState
	}
	reason := strings.TrimSpace(req.Reason)
	if reason == "" {
		return domain.WarrantyResponse{}, store.ErrInvalidState
	}

	claimed, err := s.repo.ClaimWarranty(ctx, warrantyID, reason, actor.Username, time.Now().UTC())
	if err != nil {
		return domain.WarrantyResponse{}, err
	}
	return domain.WarrantyResponse{Warranty: *claimed}, nil
}

func normalizeSaleLines(items []domain.SaleLineInput) []domain.SaleLineInput {
	agg := make(map[string]int, len(items))
	order := make([]string, 0, len(items))
	for _, item := range items {
		sku := strings.ToUpper(strings.TrimSpace(item.SKU))
		if sku == "" || item.Qty < 1 {
			continue
		}
		if _, seen := agg[sku]; !seen {
			order = append(order, sku)
		}
		agg[sku] += item.Qty
	}

	normalized := make([]domain.SaleLineInput, 0, len(agg))
	for _, sku := range order {
		normalized = append(normalized, domain.SaleLineInput{SKU: sku, Qty: agg[sku]})
	}
	return normalized
}

func isSupportedCategory(entryType string, category string) bool {
	switch entryType {
	case domain.EntryTypeIn:
		switch category {
		case domain.CategorySale, domain.CategoryDebtRepayment, domain.CategoryIncome:
			return true
		}
	case domain.EntryTypeOut:
		switch category {
		case domain.CategoryRefund, domain.CategoryPurchase, domain.CategoryExpense:
			return true
		}
	}
	return false
}

func isSupportedMovement(movementType string) bool {
	switch movementType {
	case domain.MovementReceived, domain.MovementAdjustment, domain.MovementAssembly:
		return true
	default:
		return false
	}
}

func isSupportedPayment(method string) bool {
	switch method {
	case domain.PaymentCash, domain.PaymentBank, domain.PaymentDebt:
		return true
	default:
		return false
	}
}
