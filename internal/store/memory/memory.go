package memory

import (
	"context"
	"log"
	"os"
	"slices"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/bcrypt"

	"tokoledger/backend/internal/domain"
	"tokoledger/backend/internal/store"
	"tokoledger/backend/internal/xid"
)

type Store struct {
	mu              sync.RWMutex
	items           map[string]domain.Item
	itemLogsByID    map[string]domain.ItemLog
	sessionsByID    map[string]domain.RegisterSession
	openSessionID   string
	entriesByID     map[string]domain.MoneyTransaction
	reversalByTxID  map[string]string
	requestsByID    map[string]domain.SessionAccessRequest
	audits          []domain.SessionAudit
	salesByID       map[string]domain.Sale
	bankAccounts    map[string]domain.BankAccount
	customersByID   map[string]domain.Customer
	suppliersByID   map[string]domain.Supplier
	purchaseOrders  map[string]domain.PurchaseOrder
	warrantiesByID  map[string]domain.Warranty
	usersByUsername map[string]domain.UserAccount
}

// seedUsers builds the initial in-memory user accounts for dev/demo mode.
// Credentials are read from SEED_ADMIN_PASSWORD, SEED_SUPERVISOR_PASSWORD and
// SEED_CASHIER_PASSWORD environment variables. If unset, hardcoded dev
// defaults are used with a warning printed to stdout. These credentials are
// never used in production (the backend uses PostgreSQL when DATABASE_URL is
// set).
func seedUsers() map[string]domain.UserAccount {
	adminPwd := envOr("SEED_ADMIN_PASSWORD", "admin123")
	supervisorPwd := envOr("SEED_SUPERVISOR_PASSWORD", "supervisor123")
	cashierPwd := envOr("SEED_CASHIER_PASSWORD", "cashier123")
	if os.Getenv("SEED_ADMIN_PASSWORD") == "" || os.Getenv("SEED_SUPERVISOR_PASSWORD") == "" || os.Getenv("SEED_CASHIER_PASSWORD") == "" {
		log.Println("[memory-store] WARNING: using default dev credentials. Set SEED_ADMIN_PASSWORD, SEED_SUPERVISOR_PASSWORD and SEED_CASHIER_PASSWORD to override.")
	}

	now := time.Now().UTC()
	users := map[string]domain.UserAccount{}
	for _, u := range []struct {
		username string
		password string
		role     string
	}{
		{"admin", adminPwd, "admin"},
		{"supervisor", supervisorPwd, "supervisor"},
		{"cashier", cashierPwd, "cashier"},
	} {
		hash, err := bcrypt.GenerateFromPassword([]byte(u.password), bcrypt.DefaultCost)
		if err != nil {
			log.Fatalf("[memory-store] failed to hash seed password for %s: %v", u.username, err)
		}
		users[u.username] = domain.UserAccount{
			Username:  u.username,
			Password:  string(hash),
			Role:      u.role,
			Active:    true,
			CreatedAt: now,
		}
	}
	return users
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func NewSeeded() *Store {
	items := []domain.Item{
		{SKU: "SKU-KABEL-01", Name: "Kabel HDMI 2m", Category: "accessory", PriceCents: 4500000, Stock: 40, Active: true},
		{SKU: "SKU-MOUSE-01", Name: "Mouse Wireless", Category: "accessory", PriceCents: 8900000, Stock: 25, WarrantyMonths: 6, Active: true},
		{SKU: "SKU-KEYBOARD-01", Name: "Keyboard Mekanik", Category: "accessory", PriceCents: 35000000, Stock: 12, WarrantyMonths: 12, Active: true},
		{SKU: "SKU-POWERBANK-01", Name: "Powerbank 10000mAh", Category: "electronics", PriceCents: 19900000, Stock: 18, WarrantyMonths: 6, Active: true},
		{SKU: "SKU-CHARGER-01", Name: "Charger USB-C 30W", Category: "electronics", PriceCents: 12500000, Stock: 30, WarrantyMonths: 3, Active: true},
		{SKU: "SKU-HEADSET-01", Name: "Headset Gaming", Category: "audio", PriceCents: 27500000, Stock: 10, WarrantyMonths: 12, Active: true},
		{SKU: "SKU-FLASHDISK-01", Name: "Flashdisk 64GB", Category: "storage", PriceCents: 6800000, Stock: 50, Active: true},
		{SKU: "SKU-CASING-01", Name: "Casing HP Universal", Category: "accessory", PriceCents: 2500000, Stock: 80, Active: true},
	}

	itemMap := make(map[string]domain.Item, len(items))
	for _, it := range items {
		itemMap[it.SKU] = it
	}

	now := time.Now().UTC()
	bankAccounts := map[string]domain.BankAccount{
		"bank-bca-01": {ID: "bank-bca-01", Name: "BCA Toko", Number: "8830012345", BalanceCents: 500000000, CreatedAt: now},
	}
	customers := map[string]domain.Customer{
		"cust-warung-01": {ID: "cust-warung-01", Name: "Warung Pak Dedi", Phone: "0812000111", CreatedAt: now},
	}
	suppliers := map[string]domain.Supplier{
		"sup-grosir-01": {ID: "sup-grosir-01", Name: "Grosir Elektronik Glodok", Phone: "0215550123", CreatedAt: now},
	}

	return &Store{
		items:           itemMap,
		itemLogsByID:    make(map[string]domain.ItemLog),
		sessionsByID:    make(map[string]domain.RegisterSession),
		entriesByID:     make(map[string]domain.MoneyTransaction),
		reversalByTxID:  make(map[string]string),
		requestsByID:    make(map[string]domain.SessionAccessRequest),
		audits:          make([]domain.SessionAudit, 0, 32),
		salesByID:       make(map[string]domain.Sale),
		bankAccounts:    bankAccounts,
		customersByID:   customers,
		suppliersByID:   suppliers,
		purchaseOrders:  make(map[string]domain.PurchaseOrder),
		warrantiesByID:  make(map[string]domain.Warranty),
		usersByUsername: seedUsers(),
	}
}

func (s *Store) CreateSession(_ context.Context, session domain.RegisterSession) (*domain.RegisterSession, error) {
	if session.OpeningCents < 0 {
		return nil, store.ErrInvalidAmount
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.openSessionID != "" {
		return nil, store.ErrSessionAlreadyOpen
	}
	if session.ID == "" {
		session.ID = xid.New("ses")
	}
	if session.OpenedAt.IsZero() {
		session.OpenedAt = time.Now().UTC()
	}
	session.Status = domain.SessionStatusOpen
	session.CashSalesCents = 0
	session.DebtRepaidCents = 0
	session.ClosedAt = nil

	s.sessionsByID[session.ID] = session
	s.openSessionID = session.ID
	created := session
	return &created, nil
}

func (s *Store) GetSession(_ context.Context, sessionID string) (*domain.RegisterSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	session, exists := s.sessionsByID[sessionID]
	if !exists {
		return nil, store.ErrNotFound
	}
	copySession := session
	return &copySession, nil
}

func (s *Store) GetOpenSession(_ context.Context) (*domain.RegisterSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.openSessionID == "" {
		return nil, store.ErrNotFound
	}
	session, exists := s.sessionsByID[s.openSessionID]
	if !exists || session.Status != domain.SessionStatusOpen {
		return nil, store.ErrNotFound
	}
	copySession := session
	return &copySession, nil
}

func (s *Store) CloseSession(_ context.Context, sessionID string, actualCents int64, notes, closedBy string, closedAt time.Time) (*domain.RegisterSession, error) {
	if actualCents < 0 {
		return nil, store.ErrInvalidAmount
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	session, exists := s.sessionsByID[sessionID]
	if !exists {
		return nil, store.ErrNotFound
	}
	if session.Status != domain.SessionStatusOpen {
		return nil, store.ErrInvalidState
	}
	if closedAt.IsZero() {
		closedAt = time.Now().UTC()
	}

	// Expected cash comes from the ledger, not the cached counters.
	in, out := s.sumSessionCashLocked(sessionID)
	session.ExpectedCents = session.OpeningCents + in - out
	session.ActualCents = actualCents
	session.VarianceCents = actualCents - session.ExpectedCents
	session.Notes = notes
	session.Status = domain.SessionStatusClosed
	session.ClosedBy = closedBy
	session.ClosedAt = &closedAt

	s.sessionsByID[sessionID] = session
	if s.openSessionID == sessionID {
		s.openSessionID = ""
	}
	closed := session
	return &closed, nil
}

func (s *Store) ListSessions(_ context.Context, limit int) ([]domain.RegisterSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sessions := make([]domain.RegisterSession, 0, len(s.sessionsByID))
	for _, session := range s.sessionsByID {
		sessions = append(sessions, session)
	}
	slices.SortFunc(sessions, func(a, b domain.RegisterSession) int {
		if a.OpenedAt.Equal(b.OpenedAt) {
			return cmpString(b.ID, a.ID)
		}
		if a.OpenedAt.After(b.OpenedAt) {
			return -1
		}
		return 1
	})
	if limit > 0 && len(sessions) > limit {
		sessions = sessions[:limit]
	}
	return sessions, nil
}

func (s *Store) AppendMoneyTransaction(_ context.Context, entry domain.MoneyTransaction) (*domain.MoneyTransaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.appendEntryLocked(entry)
}

// appendEntryLocked validates and stores one ledger entry and bumps the
// owning aggregate (session counters or bank balance) in the same critical
// section. Callers must hold the write lock.
func (s *Store) appendEntryLocked(entry domain.MoneyTransaction) (*domain.MoneyTransaction, error) {
	if entry.AmountCents < 1 {
		return nil, store.ErrInvalidAmount
	}
	if entry.Type != domain.EntryTypeIn && entry.Type != domain.EntryTypeOut {
		return nil, store.ErrInvalidState
	}

	switch entry.SourceType {
	case domain.SourceCashRegister:
		session, exists := s.sessionsByID[entry.SessionID]
		if !exists {
			return nil, store.ErrNotFound
		}
		if session.Status != domain.SessionStatusOpen {
			return nil, store.ErrInvalidState
		}
		entry.SourceID = session.ID
		if entry.Type == domain.EntryTypeIn {
			switch entry.Category {
			case domain.CategorySale:
				session.CashSalesCents += entry.AmountCents
			case domain.CategoryDebtRepayment:
				session.DebtRepaidCents += entry.AmountCents
			}
		}
		s.sessionsByID[session.ID] = session
	case domain.SourceBankAccount:
		account, exists := s.bankAccounts[entry.SourceID]
		if !exists {
			return nil, store.ErrNotFound
		}
		if entry.Type == domain.EntryTypeIn {
			account.BalanceCents += entry.AmountCents
		} else {
			account.BalanceCents -= entry.AmountCents
		}
		s.bankAccounts[account.ID] = account
	default:
		return nil, store.ErrInvalidState
	}

	if entry.ID == "" {
		entry.ID = xid.New("mtx")
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	s.entriesByID[entry.ID] = entry
	if entry.ReversalOf != "" {
		s.reversalByTxID[entry.ReversalOf] = entry.ID
	}
	created := entry
	return &created, nil
}

func (s *Store) GetMoneyTransaction(_ context.Context, txID string) (*domain.MoneyTransaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entry, exists := s.entriesByID[txID]
	if !exists {
		return nil, store.ErrNotFound
	}
	copyEntry := entry
	return &copyEntry, nil
}

func (s *Store) ListMoneyTransactions(_ context.Context, filter domain.LedgerFilter) ([]domain.MoneyTransaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.MoneyTransaction, 0, 64)
	for _, entry := range s.entriesByID {
		if !matchEntry(entry, filter) {
			continue
		}
		result = append(result, entry)
	}
	slices.SortFunc(result, func(a, b domain.MoneyTransaction) int {
		if a.CreatedAt.Equal(b.CreatedAt) {
			return cmpString(b.ID, a.ID)
		}
		if a.CreatedAt.After(b.CreatedAt) {
			return -1
		}
		return 1
	})
	limit := filter.Limit
	if limit < 1 {
		limit = 200
	}
	if len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (s *Store) SumLedger(_ context.Context, filter domain.LedgerFilter) (domain.LedgerSum, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sum := domain.LedgerSum{}
	for _, entry := range s.entriesByID {
		if !matchEntry(entry, filter) {
			continue
		}
		if entry.Type == domain.EntryTypeIn {
			sum.InCents += entry.AmountCents
		} else {
			sum.OutCents += entry.AmountCents
		}
		sum.Entries++
	}
	return sum, nil
}

func (s *Store) HasReversal(_ context.Context, txID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, exists := s.reversalByTxID[txID]
	return exists, nil
}

func (s *Store) CreateAccessRequest(_ context.Context, req domain.SessionAccessRequest) (*domain.SessionAccessRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, exists := s.sessionsByID[req.SessionID]
	if !exists {
		return nil, store.ErrNotFound
	}
	if session.Status != domain.SessionStatusClosed {
		return nil, store.ErrSessionNotClosed
	}
	for _, existing := range s.requestsByID {
		if existing.SessionID == req.SessionID && existing.RequestedBy == req.RequestedBy && existing.Status == domain.RequestStatusPending {
			return nil, store.ErrDuplicatePendingRequest
		}
	}
	if req.ID == "" {
		req.ID = xid.New("req")
	}
	if req.CreatedAt.IsZero() {
		req.CreatedAt = time.Now().UTC()
	}
	req.Status = domain.RequestStatusPending
	req.UsedAt = nil

	s.requestsByID[req.ID] = req
	created := req
	return &created, nil
}

func (s *Store) GetAccessRequest(_ context.Context, requestID string) (*domain.SessionAccessRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	req, exists := s.requestsByID[requestID]
	if !exists {
		return nil, store.ErrNotFound
	}
	copyReq := req
	return &copyReq, nil
}

func (s *Store) ResolveAccessRequest(_ context.Context, requestID, status, resolvedBy, denialReason string, at time.Time) (*domain.SessionAccessRequest, error) {
	if status != domain.RequestStatusApproved && status != domain.RequestStatusDenied {
		return nil, store.ErrInvalidState
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	req, exists := s.requestsByID[requestID]
	if !exists {
		return nil, store.ErrNotFound
	}
	if req.Status != domain.RequestStatusPending {
		return nil, store.ErrInvalidState
	}
	if status == domain.RequestStatusApproved && req.RequestedBy == resolvedBy {
		return nil, store.ErrSelfApproval
	}
	if at.IsZero() {
		at = time.Now().UTC()
	}
	req.Status = status
	req.ResolvedBy = resolvedBy
	req.ResolvedAt = &at
	req.DenialReason = denialReason

	s.requestsByID[requestID] = req
	resolved := req
	return &resolved, nil
}

func (s *Store) ListAccessRequests(_ context.Context, sessionID string, status string, limit int) ([]domain.SessionAccessRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.SessionAccessRequest, 0, len(s.requestsByID))
	for _, req := range s.requestsByID {
		if sessionID != "" && req.SessionID != sessionID {
			continue
		}
		if status != "" && req.Status != status {
			continue
		}
		result = append(result, req)
	}
	slices.SortFunc(result, func(a, b domain.SessionAccessRequest) int {
		if a.CreatedAt.Equal(b.CreatedAt) {
			return cmpString(b.ID, a.ID)
		}
		if a.CreatedAt.After(b.CreatedAt) {
			return -1
		}
		return 1
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (s *Store) ApplySessionEdit(_ context.Context, edit domain.SessionEditRequest, changedBy string, at time.Time) (*domain.SessionAudit, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	req, exists := s.requestsByID[edit.RequestID]
	if !exists {
		return nil, store.ErrNotFound
	}
	if req.Status != domain.RequestStatusApproved {
		return nil, store.ErrRequestNotApproved
	}
	if req.UsedAt != nil {
		return nil, store.ErrRequestAlreadyUsed
	}
	session, exists := s.sessionsByID[req.SessionID]
	if !exists {
		return nil, store.ErrNotFound
	}
	if session.Status != domain.SessionStatusClosed {
		return nil, store.ErrSessionNotClosed
	}
	if at.IsZero() {
		at = time.Now().UTC()
	}

	old := session
	if edit.OpeningCents != nil {
		if *edit.OpeningCents < 0 {
			return nil, store.ErrInvalidAmount
		}
		session.OpeningCents = *edit.OpeningCents
	}
	if edit.ActualCents != nil {
		if *edit.ActualCents < 0 {
			return nil, store.ErrInvalidAmount
		}
		session.ActualCents = *edit.ActualCents
	}
	if edit.Notes != nil {
		session.Notes = *edit.Notes
	}

	in, out := s.sumSessionCashLocked(session.ID)
	session.ExpectedCents = session.OpeningCents + in - out
	session.VarianceCents = session.ActualCents - session.ExpectedCents

	req.UsedAt = &at
	audit := domain.SessionAudit{
		ID:         xid.New("audit"),
		SessionID:  session.ID,
		RequestID:  req.ID,
		ChangedBy:  changedBy,
		ApprovedBy: req.ResolvedBy,
		Reason:     edit.Reason,
		Old:        old,
		New:        session,
		CreatedAt:  at,
	}

	s.sessionsByID[session.ID] = session
	s.requestsByID[req.ID] = req
	s.audits = append(s.audits, audit)
	created := audit
	return &created, nil
}

func (s *Store) ListSessionAudits(_ context.Context, sessionID string) ([]domain.SessionAudit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.SessionAudit, 0, 8)
	for _, audit := range s.audits {
		if sessionID != "" && audit.SessionID != sessionID {
			continue
		}
		result = append(result, audit)
	}
	slices.SortFunc(result, func(a, b domain.SessionAudit) int {
		if a.CreatedAt.Equal(b.CreatedAt) {
			return cmpString(b.ID, a.ID)
		}
		if a.CreatedAt.After(b.CreatedAt) {
			return -1
		}
		return 1
	})
	return result, nil
}

func (s *Store) CreateItem(_ context.Context, item domain.Item) (*domain.Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if item.SKU == "" || item.Name == "" || item.PriceCents < 1 {
		return nil, store.ErrInvalidState
	}
	if item.Stock < 0 || item.WarrantyMonths < 0 {
		return nil, store.ErrInvalidState
	}
	if _, exists := s.items[item.SKU]; exists {
		return nil, store.ErrInvalidState
	}

	item.Active = true
	s.items[item.SKU] = item
	created := item
	return &created, nil
}

func (s *Store) GetItemBySKU(_ context.Context, sku string) (*domain.Item, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	item, exists := s.items[sku]
	if !exists {
		return nil, store.ErrNotFound
	}
	copyItem := item
	return &copyItem, nil
}

func (s *Store) UpdateItem(_ context.Context, item domain.Item) (*domain.Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if item.SKU == "" || item.Name == "" || item.PriceCents < 1 {
		return nil, store.ErrInvalidState
	}
	current, exists := s.items[item.SKU]
	if !exists {
		return nil, store.ErrNotFound
	}
	// Stock only moves through the stock ledger.
	item.Stock = current.Stock
	s.items[item.SKU] = item
	updated := item
	return &updated, nil
}

func (s *Store) ListItems(_ context.Context) ([]domain.Item, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	items := make([]domain.Item, 0, len(s.items))
	for _, item := range s.items {
		if !item.Active {
			continue
		}
		items = append(items, item)
	}
	slices.SortFunc(items, func(a, b domain.Item) int {
		if a.Category == b.Category {
			return cmpString(a.Name, b.Name)
		}
		return cmpString(a.Category, b.Category)
	})
	return items, nil
}

func (s *Store) ApplyStockMovement(_ context.Context, entry domain.ItemLog, allowNegative bool) (*domain.ItemLog, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.applyMovementLocked(entry, allowNegative)
}

// applyMovementLocked records one stock ledger entry and moves the item's
// stock in the same critical section, so old_stock always equals the stock
// the item had when the entry was appended. Callers must hold the write lock.
func (s *Store) applyMovementLocked(entry domain.ItemLog, allowNegative bool) (*domain.ItemLog, error) {
	if entry.QtyChange == 0 {
		return nil, store.ErrInvalidState
	}
	item, exists := s.items[entry.SKU]
	if !exists {
		return nil, store.ErrNotFound
	}

	entry.OldStock = item.Stock
	entry.NewStock = item.Stock + entry.QtyChange
	if entry.NewStock < 0 && !allowNegative {
		return nil, store.ErrNegativeStock
	}
	if entry.ID == "" {
		entry.ID = xid.New("ilog")
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	item.Stock = entry.NewStock
	s.items[entry.SKU] = item
	s.itemLogsByID[entry.ID] = entry
	created := entry
	return &created, nil
}

func (s *Store) GetItemLog(_ context.Context, logID string) (*domain.ItemLog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entry, exists := s.itemLogsByID[logID]
	if !exists {
		return nil, store.ErrNotFound
	}
	copyEntry := entry
	return &copyEntry, nil
}

func (s *Store) ListItemLogs(_ context.Context, sku string, limit int) ([]domain.ItemLog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.ItemLog, 0, 64)
	for _, entry := range s.itemLogsByID {
		if sku != "" && entry.SKU != sku {
			continue
		}
		result = append(result, entry)
	}
	slices.SortFunc(result, func(a, b domain.ItemLog) int {
		if a.CreatedAt.Equal(b.CreatedAt) {
			return cmpString(b.ID, a.ID)
		}
		if a.CreatedAt.After(b.CreatedAt) {
			return -1
		}
		return 1
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (s *Store) CreateSale(_ context.Context, sale domain.Sale) (*domain.Sale, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(sale.Items) == 0 {
		return nil, store.ErrInvalidState
	}
	if sale.ID == "" {
		sale.ID = xid.New("sale")
	}
	if sale.CreatedAt.IsZero() {
		sale.CreatedAt = time.Now().UTC()
	}

	total := int64(0)
	lines := make([]domain.SaleLine, 0, len(sale.Items))
	for _, line := range sale.Items {
		if line.Qty < 1 {
			return nil, store.ErrInvalidState
		}
		item, exists := s.items[line.SKU]
		if !exists || !item.Active {
			return nil, store.ErrNotFound
		}
		if item.Stock < line.Qty {
			return nil, store.ErrNegativeStock
		}
		lines = append(lines, domain.SaleLine{
			SKU:            line.SKU,
			Qty:            line.Qty,
			UnitPriceCents: item.PriceCents,
		})
		total += int64(line.Qty) * item.PriceCents
	}
	sale.Items = lines
	sale.TotalCents = total
	sale.Status = domain.SaleStatusCompleted

	switch sale.PaymentMethod {
	case domain.PaymentCash:
		session, exists := s.sessionsByID[sale.SessionID]
		if !exists || session.Status != domain.SessionStatusOpen {
			return nil, store.ErrNotFound
		}
	case domain.PaymentBank:
		if _, exists := s.bankAccounts[sale.BankAccountID]; !exists {
			return nil, store.ErrNotFound
		}
	case domain.PaymentDebt:
		if _, exists := s.customersByID[sale.CustomerID]; !exists {
			return nil, store.ErrNotFound
		}
	default:
		return nil, store.ErrInvalidState
	}

	for _, line := range sale.Items {
		if _, err := s.applyMovementLocked(domain.ItemLog{
			SKU:       line.SKU,
			Type:      domain.MovementSale,
			QtyChange: -line.Qty,
			Reference: domain.Reference{Kind: "sale", ID: sale.ID},
			UserID:    sale.SoldBy,
			CreatedAt: sale.CreatedAt,
		}, false); err != nil {
			return nil, err
		}
	}

	switch sale.PaymentMethod {
	case domain.PaymentCash:
		if _, err := s.appendEntryLocked(domain.MoneyTransaction{
			Type:        domain.EntryTypeIn,
			AmountCents: total,
			SourceType:  domain.SourceCashRegister,
			SourceID:    sale.SessionID,
			SessionID:   sale.SessionID,
			Category:    domain.CategorySale,
			Reference:   domain.Reference{Kind: "sale", ID: sale.ID},
			UserID:      sale.SoldBy,
			CreatedAt:   sale.CreatedAt,
		}); err != nil {
			return nil, err
		}
	case domain.PaymentBank:
		if _, err := s.appendEntryLocked(domain.MoneyTransaction{
			Type:        domain.EntryTypeIn,
			AmountCents: total,
			SourceType:  domain.SourceBankAccount,
			SourceID:    sale.BankAccountID,
			Category:    domain.CategorySale,
			Reference:   domain.Reference{Kind: "sale", ID: sale.ID},
			UserID:      sale.SoldBy,
			CreatedAt:   sale.CreatedAt,
		}); err != nil {
			return nil, err
		}
	case domain.PaymentDebt:
		customer := s.customersByID[sale.CustomerID]
		customer.DebtCents += total
		s.customersByID[sale.CustomerID] = customer
	}

	for _, line := range sale.Items {
		item := s.items[line.SKU]
		if item.WarrantyMonths < 1 {
			continue
		}
		warranty := domain.Warranty{
			ID:         xid.New("war"),
			SaleID:     sale.ID,
			SKU:        line.SKU,
			CustomerID: sale.CustomerID,
			Status:     domain.WarrantyStatusActive,
			IssuedAt:   sale.CreatedAt,
			ExpiresAt:  sale.CreatedAt.AddDate(0, item.WarrantyMonths, 0),
		}
		s.warrantiesByID[warranty.ID] = warranty
	}

	s.salesByID[sale.ID] = cloneSale(sale)
	created := cloneSale(sale)
	return &created, nil
}

func (s *Store) GetSale(_ context.Context, saleID string) (*domain.Sale, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sale, exists := s.salesByID[saleID]
	if !exists {
		return nil, store.ErrNotFound
	}
	copySale := cloneSale(sale)
	return &copySale, nil
}

func (s *Store) ListSales(_ context.Context, sessionID string, limit int) ([]domain.Sale, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.Sale, 0, len(s.salesByID))
	for _, sale := range s.salesByID {
		if sessionID != "" && sale.SessionID != sessionID {
			continue
		}
		result = append(result, cloneSale(sale))
	}
	slices.SortFunc(result, func(a, b domain.Sale) int {
		if a.CreatedAt.Equal(b.CreatedAt) {
			return cmpString(b.ID, a.ID)
		}
		if a.CreatedAt.After(b.CreatedAt) {
			return -1
		}
		return 1
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (s *Store) ReverseSale(_ context.Context, saleID, reason, actor string, at time.Time) (*domain.Sale, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sale, exists := s.salesByID[saleID]
	if !exists {
		return nil, store.ErrNotFound
	}
	if sale.Status != domain.SaleStatusCompleted {
		return nil, store.ErrInvalidState
	}
	if at.IsZero() {
		at = time.Now().UTC()
	}

	// Validate the refund leg before touching stock: a failed money write
	// must not leave a half-reversed sale behind.
	switch sale.PaymentMethod {
	case domain.PaymentCash:
		// The refund leaves whatever drawer is open now, not the original one.
		if s.openSessionID == "" {
			return nil, store.ErrNotFound
		}
	case domain.PaymentBank:
		if _, exists := s.bankAccounts[sale.BankAccountID]; !exists {
			return nil, store.ErrNotFound
		}
	case domain.PaymentDebt:
		if _, exists := s.customersByID[sale.CustomerID]; !exists {
			return nil, store.ErrNotFound
		}
	default:
		return nil, store.ErrInvalidState
	}

	originalLogs := map[string]string{}
	for _, entry := range s.itemLogsByID {
		if entry.Reference.Kind == "sale" && entry.Reference.ID == saleID && entry.Type == domain.MovementSale {
			originalLogs[entry.SKU] = entry.ID
		}
	}

	for _, line := range sale.Items {
		if _, err := s.applyMovementLocked(domain.ItemLog{
			SKU:         line.SKU,
			Type:        domain.MovementReversed,
			QtyChange:   line.Qty,
			Description: reason,
			Reference:   domain.Reference{Kind: "sale", ID: sale.ID},
			ReversalOf:  originalLogs[line.SKU],
			UserID:      actor,
			CreatedAt:   at,
		}, false); err != nil {
			return nil, err
		}
	}

	switch sale.PaymentMethod {
	case domain.PaymentCash:
		if _, err := s.appendEntryLocked(domain.MoneyTransaction{
			Type:        domain.EntryTypeOut,
			AmountCents: sale.TotalCents,
			SourceType:  domain.SourceCashRegister,
			SourceID:    s.openSessionID,
			SessionID:   s.openSessionID,
			Category:    domain.CategoryRefund,
			Description: reason,
			Reference:   domain.Reference{Kind: "sale", ID: sale.ID},
			UserID:      actor,
			CreatedAt:   at,
		}); err != nil {
			return nil, err
		}
	case domain.PaymentBank:
		if _, err := s.appendEntryLocked(domain.MoneyTransaction{
			Type:        domain.EntryTypeOut,
			AmountCents: sale.TotalCents,
			SourceType:  domain.SourceBankAccount,
			SourceID:    sale.BankAccountID,
			Category:    domain.CategoryRefund,
			Description: reason,
			Reference:   domain.Reference{Kind: "sale", ID: sale.ID},
			UserID:      actor,
			CreatedAt:   at,
		}); err != nil {
			return nil, err
		}
	case domain.PaymentDebt:
		customer := s.customersByID[sale.CustomerID]
		customer.DebtCents -= sale.TotalCents
		s.customersByID[sale.CustomerID] = customer
	}

	sale.Status = domain.SaleStatusReversed
	sale.ReversedAt = &at
	s.salesByID[saleID] = cloneSale(sale)
	reversed := cloneSale(sale)
	return &reversed, nil
}

func (s *Store) RecordDebtRepayment(_ context.Context, entry domain.MoneyTransaction, customerID string) (*domain.MoneyTransaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	customer, exists := s.customersByID[customerID]
	if !exists {
		return nil, store.ErrNotFound
	}
	if entry.AmountCents < 1 || entry.AmountCents > customer.DebtCents {
		return nil, store.ErrInvalidAmount
	}

	created, err := s.appendEntryLocked(entry)
	if err != nil {
		return nil, err
	}
	customer.DebtCents -= entry.AmountCents
	s.customersByID[customerID] = customer
	return created, nil
}

func (s *Store) CreateBankAccount(_ context.Context, account domain.BankAccount) (*domain.BankAccount, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	account.Name = strings.TrimSpace(account.Name)
	if account.Name == "" || account.BalanceCents < 0 {
		return nil, store.ErrInvalidState
	}
	if account.ID == "" {
		account.ID = xid.New("bank")
	}
	if account.CreatedAt.IsZero() {
		account.CreatedAt = time.Now().UTC()
	}

	s.bankAccounts[account.ID] = account
	created := account
	return &created, nil
}

func (s *Store) GetBankAccount(_ context.Context, accountID string) (*domain.BankAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	account, exists := s.bankAccounts[accountID]
	if !exists {
		return nil, store.ErrNotFound
	}
	copyAccount := account
	return &copyAccount, nil
}

func (s *Store) ListBankAccounts(_ context.Context) ([]domain.BankAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	accounts := make([]domain.BankAccount, 0, len(s.bankAccounts))
	for _, account := range s.bankAccounts {
		accounts = append(accounts, account)
	}
	slices.SortFunc(accounts, func(a, b domain.BankAccount) int {
		return cmpString(a.Name, b.Name)
	})
	return accounts, nil
}

func (s *Store) CreateCustomer(_ context.Context, customer domain.Customer) (*domain.Customer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	customer.Name = strings.TrimSpace(customer.Name)
	if customer.Name == "" {
		return nil, store.ErrInvalidState
	}
	if customer.ID == "" {
		customer.ID = xid.New("cust")
	}
	if customer.CreatedAt.IsZero() {
		customer.CreatedAt = time.Now().UTC()
	}

	s.customersByID[customer.ID] = customer
	created := customer
	return &created, nil
}

func (s *Store) GetCustomer(_ context.Context, customerID string) (*domain.Customer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	customer, exists := s.customersByID[customerID]
	if !exists {
		return nil, store.ErrNotFound
	}
	copyCustomer := customer
	return &copyCustomer, nil
}

func (s *Store) ListCustomers(_ context.Context) ([]domain.Customer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	customers := make([]domain.Customer, 0, len(s.customersByID))
	for _, customer := range s.customersByID {
		customers = append(customers, customer)
	}
	slices.SortFunc(customers, func(a, b domain.Customer) int {
		return cmpString(a.Name, b.Name)
	})
	return customers, nil
}

func (s *Store) CreateSupplier(_ context.Context, supplier domain.Supplier) (*domain.Supplier, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	supplier.Name = strings.TrimSpace(supplier.Name)
	if supplier.Name == "" {
		return nil, store.ErrInvalidState
	}
	if supplier.ID == "" {
		supplier.ID = xid.New("sup")
	}
	if supplier.CreatedAt.IsZero() {
		supplier.CreatedAt = time.Now().UTC()
	}

	s.suppliersByID[supplier.ID] = supplier
	created := supplier
	return &created, nil
}

func (s *Store) ListSuppliers(_ context.Context) ([]domain.Supplier, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	suppliers := make([]domain.Supplier, 0, len(s.suppliersByID))
	for _, supplier := range s.suppliersByID {
		suppliers = append(suppliers, supplier)
	}
	slices.SortFunc(suppliers, func(a, b domain.Supplier) int {
		if a.CreatedAt.Equal(b.CreatedAt) {
			return cmpString(a.Name, b.Name)
		}
		if a.CreatedAt.Before(b.CreatedAt) {
			return -1
		}
		return 1
	})
	return suppliers, nil
}

func (s *Store) CreatePurchaseOrder(_ context.Context, po domain.PurchaseOrder) (*domain.PurchaseOrder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if po.SupplierID == "" || len(po.Items) == 0 {
		return nil, store.ErrInvalidState
	}
	if _, exists := s.suppliersByID[po.SupplierID]; !exists {
		return nil, store.ErrNotFound
	}
	if po.ID == "" {
		po.ID = xid.New("po")
	}
	if po.CreatedAt.IsZero() {
		po.CreatedAt = time.Now().UTC()
	}
	po.Status = domain.POStatusDraft

	total := int64(0)
	items := make([]domain.PurchaseOrderItem, 0, len(po.Items))
	for _, item := range po.Items {
		item.SKU = strings.ToUpper(strings.TrimSpace(item.SKU))
		if item.SKU == "" || item.Qty < 1 || item.CostCents < 1 {
			return nil, store.ErrInvalidState
		}
		if _, exists := s.items[item.SKU]; !exists {
			return nil, store.ErrNotFound
		}
		total += int64(item.Qty) * item.CostCents
		items = append(items, item)
	}
	po.Items = items
	po.TotalCents = total

	s.purchaseOrders[po.ID] = clonePurchaseOrder(po)
	saved := clonePurchaseOrder(po)
	return &saved, nil
}

func (s *Store) GetPurchaseOrderByID(_ context.Context, purchaseOrderID string) (*domain.PurchaseOrder, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	po, exists := s.purchaseOrders[purchaseOrderID]
	if !exists {
		return nil, store.ErrNotFound
	}
	copyPO := clonePurchaseOrder(po)
	return &copyPO, nil
}

func (s *Store) ListPurchaseOrders(_ context.Context, status string, limit int) ([]domain.PurchaseOrder, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	status = strings.ToLower(strings.TrimSpace(status))
	result := make([]domain.PurchaseOrder, 0, len(s.purchaseOrders))
	for _, po := range s.purchaseOrders {
		if status != "" && po.Status != status {
			continue
		}
		result = append(result, clonePurchaseOrder(po))
	}
	slices.SortFunc(result, func(a, b domain.PurchaseOrder) int {
		if a.CreatedAt.Equal(b.CreatedAt) {
			return cmpString(b.ID, a.ID)
		}
		if a.CreatedAt.After(b.CreatedAt) {
			return -1
		}
		return 1
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (s *Store) ReceivePurchaseOrder(_ context.Context, purchaseOrderID string, payment domain.MoneyTransaction, receivedBy string, receivedAt time.Time) (*domain.PurchaseOrder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	po, exists := s.purchaseOrders[purchaseOrderID]
	if !exists {
		return nil, store.ErrNotFound
	}
	if po.Status != domain.POStatusDraft {
		return nil, store.ErrInvalidState
	}
	if receivedAt.IsZero() {
		receivedAt = time.Now().UTC()
	}

	// Validate the payment leg before touching stock: the session the service
	// looked up may have closed in the meantime, and a failed payment must not
	// leave received stock behind.
	switch payment.SourceType {
	case domain.SourceCashRegister:
		session, exists := s.sessionsByID[payment.SessionID]
		if !exists {
			return nil, store.ErrNotFound
		}
		if session.Status != domain.SessionStatusOpen {
			return nil, store.ErrInvalidState
		}
	case domain.SourceBankAccount:
		if _, exists := s.bankAccounts[payment.SourceID]; !exists {
			return nil, store.ErrNotFound
		}
	default:
		return nil, store.ErrInvalidState
	}

	for _, item := range po.Items {
		if _, err := s.applyMovementLocked(domain.ItemLog{
			SKU:       item.SKU,
			Type:      domain.MovementReceived,
			QtyChange: item.Qty,
			Reference: domain.Reference{Kind: "purchase_order", ID: po.ID},
			UserID:    receivedBy,
			CreatedAt: receivedAt,
		}, false); err != nil {
			return nil, err
		}
	}

	payment.Type = domain.EntryTypeOut
	payment.AmountCents = po.TotalCents
	payment.Category = domain.CategoryPurchase
	payment.Reference = domain.Reference{Kind: "purchase_order", ID: po.ID}
	payment.CreatedAt = receivedAt
	if _, err := s.appendEntryLocked(payment); err != nil {
		return nil, err
	}

	po.Status = domain.POStatusReceived
	po.ReceivedBy = strings.TrimSpace(receivedBy)
	if po.ReceivedBy == "" {
		po.ReceivedBy = "system"
	}
	po.ReceivedAt = &receivedAt
	s.purchaseOrders[purchaseOrderID] = clonePurchaseOrder(po)
	updated := clonePurchaseOrder(po)
	return &updated, nil
}

func (s *Store) CreateWarranty(_ context.Context, warranty domain.Warranty) (*domain.Warranty, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if warranty.SKU == "" || warranty.ExpiresAt.IsZero() {
		return nil, store.ErrInvalidState
	}
	if warranty.ID == "" {
		warranty.ID = xid.New("war")
	}
	if warranty.IssuedAt.IsZero() {
		warranty.IssuedAt = time.Now().UTC()
	}
	if warranty.Status == "" {
		warranty.Status = domain.WarrantyStatusActive
	}

	s.warrantiesByID[warranty.ID] = warranty
	created := warranty
	return &created, nil
}

func (s *Store) GetWarranty(_ context.Context, warrantyID string) (*domain.Warranty, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	warranty, exists := s.warrantiesByID[warrantyID]
	if !exists {
		return nil, store.ErrNotFound
	}
	copyWarranty := warranty
	return &copyWarranty, nil
}

func (s *Store) ListWarranties(_ context.Context, saleID string, limit int) ([]domain.Warranty, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.Warranty, 0, len(s.warrantiesByID))
	for _, warranty := range s.warrantiesByID {
		if saleID != "" && warranty.SaleID != saleID {
			continue
		}
		result = append(result, warranty)
	}
	slices.SortFunc(result, func(a, b domain.Warranty) int {
		if a.IssuedAt.Equal(b.IssuedAt) {
			return cmpString(b.ID, a.ID)
		}
		if a.IssuedAt.After(b.IssuedAt) {
			return -1
		}
		return 1
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (s *Store) ClaimWarranty(_ context.Context, warrantyID, reason, actor string, at time.Time) (*domain.Warranty, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	warranty, exists := s.warrantiesByID[warrantyID]
	if !exists {
		return nil, store.ErrNotFound
	}
	if warranty.Status != domain.WarrantyStatusActive {
		return nil, store.ErrInvalidState
	}
	if at.IsZero() {
		at = time.Now().UTC()
	}
	if at.After(warranty.ExpiresAt) {
		return nil, store.ErrInvalidState
	}

	// Replacement unit leaves stock; no money moves.
	if _, err := s.applyMovementLocked(domain.ItemLog{
		SKU:         warranty.SKU,
		Type:        domain.MovementAdjustment,
		QtyChange:   -1,
		Description: "warranty replacement: " + reason,
		Reference:   domain.Reference{Kind: "warranty", ID: warranty.ID},
		UserID:      actor,
		CreatedAt:   at,
	}, false); err != nil {
		return nil, err
	}

	warranty.Status = domain.WarrantyStatusClaimed
	warranty.ClaimedAt = &at
	warranty.ClaimReason = reason
	s.warrantiesByID[warrantyID] = warranty
	claimed := warranty
	return &claimed, nil
}

func (s *Store) CreateUser(_ context.Context, user domain.UserAccount) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	username := strings.ToLower(strings.TrimSpace(user.Username))
	if username == "" || strings.TrimSpace(user.Password) == "" {
		return store.ErrInvalidState
	}
	if _, exists := s.usersByUsername[username]; exists {
		return store.ErrInvalidState
	}
	user.Username = username
	if user.Role == "" {
		user.Role = "cashier"
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	user.Active = true
	s.usersByUsername[user.Username] = user
	return nil
}

func (s *Store) ListUsers(_ context.Context) ([]domain.UserAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	users := make([]domain.UserAccount, 0, len(s.usersByUsername))
	for _, user := range s.usersByUsername {
		users = append(users, user)
	}
	slices.SortFunc(users, func(a, b domain.UserAccount) int {
		return cmpString(a.Username, b.Username)
	})
	return users, nil
}

func (s *Store) UpdateUserPassword(_ context.Context, username string, password string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	username = strings.ToLower(strings.TrimSpace(username))
	if username == "" || strings.TrimSpace(password) == "" {
		return store.ErrInvalidState
	}
	user, exists := s.usersByUsername[username]
	if !exists {
		return store.ErrNotFound
	}
	user.Password = password
	s.usersByUsername[username] = user
	return nil
}

// sumSessionCashLocked totals the cash-register ledger for one session.
// Callers must hold at least the read lock.
func (s *Store) sumSessionCashLocked(sessionID string) (in int64, out int64) {
	for _, entry := range s.entriesByID {
		if entry.SourceType != domain.SourceCashRegister || entry.SessionID != sessionID {
			continue
		}
		if entry.Type == domain.EntryTypeIn {
			in += entry.AmountCents
		} else {
			out += entry.AmountCents
		}
	}
	return in, out
}

func matchEntry(entry domain.MoneyTransaction, filter domain.LedgerFilter) bool {
	if filter.SourceType != "" && entry.SourceType != filter.SourceType {
		return false
	}
	if filter.SourceID != "" && entry.SourceID != filter.SourceID {
		return false
	}
	if filter.SessionID != "" && entry.SessionID != filter.SessionID {
		return false
	}
	if filter.Category != "" && entry.Category != filter.Category {
		return false
	}
	if filter.From != nil && entry.CreatedAt.Before(*filter.From) {
		return false
	}
	if filter.To != nil && entry.CreatedAt.After(*filter.To) {
		return false
	}
	return true
}

func cmpString(a string, b string) int {
	if a == b {
		return 0
	}
	if a < b {
		return -1
	}
	return 1
}

func cloneSale(src domain.Sale) domain.Sale {
	dup := src
	items := make([]domain.SaleLine, len(src.Items))
	copy(items, src.Items)
	dup.Items = items
	return dup
}

func clonePurchaseOrder(src domain.PurchaseOrder) domain.PurchaseOrder {
	dup := src
	items := make([]domain.PurchaseOrderItem, len(src.Items))
	copy(items, src.Items)
	dup.Items = items
	return dup
}
