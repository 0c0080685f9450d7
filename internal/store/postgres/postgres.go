package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"tokoledger/backend/internal/domain"
	"tokoledger/backend/internal/store"
	"tokoledger/backend/internal/xid"
)

type Store struct {
	db          *sql.DB
	lockTimeout time.Duration
}

func New(ctx context.Context, databaseURL string, lockTimeout time.Duration) (*Store, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, err
	}

	db.SetMaxIdleConns(8)
	db.SetMaxOpenConns(30)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 6*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}

	if lockTimeout < time.Second {
		lockTimeout = 3 * time.Second
	}
	return &Store{db: db, lockTimeout: lockTimeout}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// begin opens a SERIALIZABLE transaction with a bounded lock wait, so a
// blocked row lock surfaces as ErrContention instead of hanging the caller.
func (s *Store) begin(ctx context.Context) (*sql.Tx, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	if _, err := tx.ExecContext(ctx, fmt.Sprintf("SET LOCAL lock_timeout = '%dms'", s.lockTimeout.Milliseconds())); err != nil {
		_ = tx.Rollback()
		return nil, err
	}
	return tx, nil
}

func (s *Store) CreateSession(ctx context.Context, session domain.RegisterSession) (*domain.RegisterSession, error) {
	if session.OpeningCents < 0 {
		return nil, store.ErrInvalidAmount
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

	// The partial unique index on status='open' is what enforces the
	// one-open-session rule under concurrency.
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO register_sessions (
			id, opened_by, opening_cents, cash_sales_cents, debt_repaid_cents,
			expected_cents, actual_cents, variance_cents, notes, status, opened_at
		)
		VALUES ($1,$2,$3,0,0,0,0,0,'',$4,$5)
	`, session.ID, session.OpenedBy, session.OpeningCents, session.Status, session.OpenedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrSessionAlreadyOpen
		}
		return nil, mapPgErr(err)
	}

	created := session
	return &created, nil
}

func (s *Store) GetSession(ctx context.Context, sessionID string) (*domain.RegisterSession, error) {
	session, err := scanSession(s.db.QueryRowContext(ctx, `
		SELECT id, opened_by, closed_by, opening_cents, cash_sales_cents, debt_repaid_cents,
			expected_cents, actual_cents, variance_cents, notes, status, opened_at, closed_at
		FROM register_sessions
		WHERE id = $1
	`, sessionID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return session, nil
}

func (s *Store) GetOpenSession(ctx context.Context) (*domain.RegisterSession, error) {
	session, err := scanSession(s.db.QueryRowContext(ctx, `
		SELECT id, opened_by, closed_by, opening_cents, cash_sales_cents, debt_repaid_cents,
			expected_cents, actual_cents, variance_cents, notes, status, opened_at, closed_at
		FROM register_sessions
		WHERE status = $1
	`, domain.SessionStatusOpen))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return session, nil
}

func (s *Store) CloseSession(ctx context.Context, sessionID string, actualCents int64, notes, closedBy string, closedAt time.Time) (*domain.RegisterSession, error) {
	if actualCents < 0 {
		return nil, store.ErrInvalidAmount
	}
	if closedAt.IsZero() {
		closedAt = time.Now().UTC()
	}

	tx, err := s.begin(ctx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	session, err := scanSession(tx.QueryRowContext(ctx, `
		SELECT id, opened_by, closed_by, opening_cents, cash_sales_cents, debt_repaid_cents,
			expected_cents, actual_cents, variance_cents, notes, status, opened_at, closed_at
		FROM register_sessions
		WHERE id = $1
		FOR UPDATE
	`, sessionID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, mapPgErr(err)
	}
	if session.Status != domain.SessionStatusOpen {
		return nil, store.ErrInvalidState
	}

	// Expected cash is recomputed from the ledger inside the same
	// transaction; the cached counters never decide the variance.
	var in, out int64
	err = tx.QueryRowContext(ctx, `
		SELECT
			COALESCE(SUM(amount_cents) FILTER (WHERE type = 'in'), 0),
			COALESCE(SUM(amount_cents) FILTER (WHERE type = 'out'), 0)
		FROM money_transactions
		WHERE source_type = $1 AND session_id = $2
	`, domain.SourceCashRegister, sessionID).Scan(&in, &out)
	if err != nil {
		return nil, mapPgErr(err)
	}

	session.ExpectedCents = session.OpeningCents + in - out
	session.ActualCents = actualCents
	session.VarianceCents = actualCents - session.ExpectedCents
	session.Notes = notes
	session.Status = domain.SessionStatusClosed
	session.ClosedBy = closedBy
	session.ClosedAt = &closedAt

	_, err = tx.ExecContext(ctx, `
		UPDATE register_sessions
		SET status = $2, expected_cents = $3, actual_cents = $4, variance_cents = $5,
			notes = $6, closed_by = $7, closed_at = $8
		WHERE id = $1
	`, sessionID, session.Status, session.ExpectedCents, session.ActualCents, session.VarianceCents, notes, closedBy, closedAt)
	if err != nil {
		return nil, mapPgErr(err)
	}

	if err := tx.Commit(); err != nil {
		return nil, mapPgErr(err)
	}
	return session, nil
}

func (s *Store) ListSessions(ctx context.Context, limit int) ([]domain.RegisterSession, error) {
	if limit < 1 {
		limit = 50
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, opened_by, closed_by, opening_cents, cash_sales_cents, debt_repaid_cents,
			expected_cents, actual_cents, variance_cents, notes, status, opened_at, closed_at
		FROM register_sessions
		ORDER BY opened_at DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	sessions := make([]domain.RegisterSession, 0, limit)
	for rows.Next() {
		session, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, *session)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return sessions, nil
}

func (s *Store) AppendMoneyTransaction(ctx context.Context, entry domain.MoneyTransaction) (*domain.MoneyTransaction, error) {
	tx, err := s.begin(ctx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	created, err := s.appendEntryTx(ctx, tx, entry)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, mapPgErr(err)
	}
	return created, nil
}

// appendEntryTx inserts one ledger row and bumps the owning aggregate
// (session counters or bank balance) inside the caller's transaction.
func (s *Store) appendEntryTx(ctx context.Context, tx *sql.Tx, entry domain.MoneyTransaction) (*domain.MoneyTransaction, error) {
	if entry.AmountCents < 1 {
		return nil, store.ErrInvalidAmount
	}
	if entry.Type != domain.EntryTypeIn && entry.Type != domain.EntryTypeOut {
		return nil, store.ErrInvalidState
	}

	switch entry.SourceType {
	case domain.SourceCashRegister:
		var status string
		err := tx.QueryRowContext(ctx, `
			SELECT status FROM register_sessions WHERE id = $1 FOR UPDATE
		`, entry.SessionID).Scan(&status)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, store.ErrNotFound
			}
			return nil, mapPgErr(err)
		}
		if status != domain.SessionStatusOpen {
			return nil, store.ErrInvalidState
		}
		entry.SourceID = entry.SessionID
		if entry.Type == domain.EntryTypeIn && (entry.Category == domain.CategorySale || entry.Category == domain.CategoryDebtRepayment) {
			column := "cash_sales_cents"
			if entry.Category == domain.CategoryDebtRepayment {
				column = "debt_repaid_cents"
			}
			_, err = tx.ExecContext(ctx, fmt.Sprintf(`
				UPDATE register_sessions SET %s = %s + $1 WHERE id = $2
			`, column, column), entry.AmountCents, entry.SessionID)
			if err != nil {
				return nil, mapPgErr(err)
			}
		}
	case domain.SourceBankAccount:
		delta := entry.AmountCents
		if entry.Type == domain.EntryTypeOut {
			delta = -delta
		}
		res, err := tx.ExecContext(ctx, `
			UPDATE bank_accounts SET balance_cents = balance_cents + $1 WHERE id = $2
		`, delta, entry.SourceID)
		if err != nil {
			return nil, mapPgErr(err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return nil, err
		}
		if affected == 0 {
			return nil, store.ErrNotFound
		}
	default:
		return nil, store.ErrInvalidState
	}

	if entry.ID == "" {
		entry.ID = xid.New("mtx")
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	_, err := tx.ExecContext(ctx, `
		INSERT INTO money_transactions (
			id, type, amount_cents, source_type, source_id, session_id, category,
			description, reference_kind, reference_id, reversal_of, user_id, created_at
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
	`, entry.ID, entry.Type, entry.AmountCents, entry.SourceType, entry.SourceID,
		nullIfEmpty(entry.SessionID), entry.Category, entry.Description,
		nullIfEmpty(entry.Reference.Kind), nullIfEmpty(entry.Reference.ID),
		nullIfEmpty(entry.ReversalOf), entry.UserID, entry.CreatedAt)
	if err != nil {
		return nil, mapPgErr(err)
	}

	created := entry
	return &created, nil
}

func (s *Store) GetMoneyTransaction(ctx context.Context, txID string) (*domain.MoneyTransaction, error) {
	entry, err := scanEntry(s.db.QueryRowContext(ctx, `
		SELECT id, type, amount_cents, source_type, source_id, session_id, category,
			description, reference_kind, reference_id, reversal_of, user_id, created_at
		FROM money_transactions
		WHERE id = $1
	`, txID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return entry, nil
}

func (s *Store) ListMoneyTransactions(ctx context.Context, filter domain.LedgerFilter) ([]domain.MoneyTransaction, error) {
	limit := filter.Limit
	if limit < 1 {
		limit = 200
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, type, amount_cents, source_type, source_id, session_id, category,
			description, reference_kind, reference_id, reversal_of, user_id, created_at
		FROM money_transactions
		WHERE ($1 = '' OR source_type = $1)
			AND ($2 = '' OR source_id = $2)
			AND ($3 = '' OR session_id = $3)
			AND ($4 = '' OR category = $4)
			AND ($5::timestamptz IS NULL OR created_at >= $5)
			AND ($6::timestamptz IS NULL OR created_at <= $6)
		ORDER BY created_at DESC, id DESC
		LIMIT $7
	`, filter.SourceType, filter.SourceID, filter.SessionID, filter.Category,
		nullTime(filter.From), nullTime(filter.To), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entries := make([]domain.MoneyTransaction, 0, limit)
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, *entry)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return entries, nil
}

func (s *Store) SumLedger(ctx context.Context, filter domain.LedgerFilter) (domain.LedgerSum, error) {
	var sum domain.LedgerSum
	err := s.db.QueryRowContext(ctx, `
		SELECT
			COALESCE(SUM(amount_cents) FILTER (WHERE type = 'in'), 0),
			COALESCE(SUM(amount_cents) FILTER (WHERE type = 'out'), 0),
			COUNT(*)
		FROM money_transactions
		WHERE ($1 = '' OR source_type = $1)
			AND ($2 = '' OR source_id = $2)
			AND ($3 = '' OR session_id = $3)
			AND ($4 = '' OR category = $4)
			AND ($5::timestamptz IS NULL OR created_at >= $5)
			AND ($6::timestamptz IS NULL OR created_at <= $6)
	`, filter.SourceType, filter.SourceID, filter.SessionID, filter.Category,
		nullTime(filter.From), nullTime(filter.To)).Scan(&sum.InCents, &sum.OutCents, &sum.Entries)
	if err != nil {
		return domain.LedgerSum{}, err
	}
	return sum, nil
}

func (s *Store) HasReversal(ctx context.Context, txID string) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx, `
		SELECT EXISTS (SELECT 1 FROM money_transactions WHERE reversal_of = $1)
	`, txID).Scan(&exists)
	if err != nil {
		return false, err
	}
	return exists, nil
}

func (s *Store) CreateAccessRequest(ctx context.Context, req domain.SessionAccessRequest) (*domain.SessionAccessRequest, error) {
	if req.ID == "" {
		req.ID = xid.New("req")
	}
	if req.CreatedAt.IsZero() {
		req.CreatedAt = time.Now().UTC()
	}
	req.Status = domain.RequestStatusPending
	req.UsedAt = nil

	tx, err := s.begin(ctx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	var status string
	err = tx.QueryRowContext(ctx, `
		SELECT status FROM register_sessions WHERE id = $1 FOR UPDATE
	`, req.SessionID).Scan(&status)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, mapPgErr(err)
	}
	if status != domain.SessionStatusClosed {
		return nil, store.ErrSessionNotClosed
	}

	// The partial unique index on (session_id, requested_by) WHERE
	// status='pending' backs the duplicate-pending rule.
	_, err = tx.ExecContext(ctx, `
		INSERT INTO session_access_requests (
			id, session_id, requested_by, reason, status, created_at
		)
		VALUES ($1,$2,$3,$4,$5,$6)
	`, req.ID, req.SessionID, req.RequestedBy, req.Reason, req.Status, req.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrDuplicatePendingRequest
		}
		return nil, mapPgErr(err)
	}

	if err := tx.Commit(); err != nil {
		return nil, mapPgErr(err)
	}
	created := req
	return &created, nil
}

func (s *Store) GetAccessRequest(ctx context.Context, requestID string) (*domain.SessionAccessRequest, error) {
	req, err := scanAccessRequest(s.db.QueryRowContext(ctx, `
		SELECT id, session_id, requested_by, reason, status, resolved_by, resolved_at,
			denial_reason, used_at, created_at
		FROM session_access_requests
		WHERE id = $1
	`, requestID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return req, nil
}

func (s *Store) ResolveAccessRequest(ctx context.Context, requestID, status, resolvedBy, denialReason string, at time.Time) (*domain.SessionAccessRequest, error) {
	if status != domain.RequestStatusApproved && status != domain.RequestStatusDenied {
		return nil, store.ErrInvalidState
	}
	if at.IsZero() {
		at = time.Now().UTC()
	}

	tx, err := s.begin(ctx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	req, err := scanAccessRequest(tx.QueryRowContext(ctx, `
		SELECT id, session_id, requested_by, reason, status, resolved_by, resolved_at,
			denial_reason, used_at, created_at
		FROM session_access_requests
		WHERE id = $1
		FOR UPDATE
	`, requestID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, mapPgErr(err)
	}
	if req.Status != domain.RequestStatusPending {
		return nil, store.ErrInvalidState
	}
	if status == domain.RequestStatusApproved && req.RequestedBy == resolvedBy {
		return nil, store.ErrSelfApproval
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE session_access_requests
		SET status = $2, resolved_by = $3, resolved_at = $4, denial_reason = $5
		WHERE id = $1
	`, requestID, status, resolvedBy, at, denialReason)
	if err != nil {
		return nil, mapPgErr(err)
	}

	if err := tx.Commit(); err != nil {
		return nil, mapPgErr(err)
	}

	req.Status = status
	req.ResolvedBy = resolvedBy
	req.ResolvedAt = &at
	req.DenialReason = denialReason
	return req, nil
}

func (s *Store) ListAccessRequests(ctx context.Context, sessionID string, status string, limit int) ([]domain.SessionAccessRequest, error) {
	if limit < 1 {
		limit = 100
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, session_id, requested_by, reason, status, resolved_by, resolved_at,
			denial_reason, used_at, created_at
		FROM session_access_requests
		WHERE ($1 = '' OR session_id = $1)
			AND ($2 = '' OR status = $2)
		ORDER BY created_at DESC, id DESC
		LIMIT $3
	`, sessionID, status, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	requests := make([]domain.SessionAccessRequest, 0, limit)
	for rows.Next() {
		req, err := scanAccessRequest(rows)
		if err != nil {
			return nil, err
		}
		requests = append(requests, *req)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return requests, nil
}

func (s *Store) ApplySessionEdit(ctx context.Context, edit domain.SessionEditRequest, changedBy string, at time.Time) (*domain.SessionAudit, error) {
	if at.IsZero() {
		at = time.Now().UTC()
	}

	tx, err := s.begin(ctx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	req, err := scanAccessRequest(tx.QueryRowContext(ctx, `
		SELECT id, session_id, requested_by, reason, status, resolved_by, resolved_at,
			denial_reason, used_at, created_at
		FROM session_access_requests
		WHERE id = $1
		FOR UPDATE
	`, edit.RequestID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, mapPgErr(err)
	}
	if req.Status != domain.RequestStatusApproved {
		return nil, store.ErrRequestNotApproved
	}
	if req.UsedAt != nil {
		return nil, store.ErrRequestAlreadyUsed
	}

	session, err := scanSession(tx.QueryRowContext(ctx, `
		SELECT id, opened_by, closed_by, opening_cents, cash_sales_cents, debt_repaid_cents,
			expected_cents, actual_cents, variance_cents, notes, status, opened_at, closed_at
		FROM register_sessions
		WHERE id = $1
		FOR UPDATE
	`, req.SessionID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, mapPgErr(err)
	}
	if session.Status != domain.SessionStatusClosed {
		return nil, store.ErrSessionNotClosed
	}

	old := *session
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

	var in, out int64
	err = tx.QueryRowContext(ctx, `
		SELECT
			COALESCE(SUM(amount_cents) FILTER (WHERE type = 'in'), 0),
			COALESCE(SUM(amount_cents) FILTER (WHERE type = 'out'), 0)
		FROM money_transactions
		WHERE source_type = $1 AND session_id = $2
	`, domain.SourceCashRegister, session.ID).Scan(&in, &out)
	if err != nil {
		return nil, mapPgErr(err)
	}
	session.ExpectedCents = session.OpeningCents + in - out
	session.VarianceCents = session.ActualCents - session.ExpectedCents

	_, err = tx.ExecContext(ctx, `
		UPDATE register_sessions
		SET opening_cents = $2, actual_cents = $3, expected_cents = $4, variance_cents = $5, notes = $6
		WHERE id = $1
	`, session.ID, session.OpeningCents, session.ActualCents, session.ExpectedCents, session.VarianceCents, session.Notes)
	if err != nil {
		return nil, mapPgErr(err)
	}

	// used_at flips exactly once; the WHERE guard makes a concurrent
	// consumer lose cleanly instead of double-spending the approval.
	res, err := tx.ExecContext(ctx, `
		UPDATE session_access_requests
		SET used_at = $2
		WHERE id = $1 AND used_at IS NULL
	`, req.ID, at)
	if err != nil {
		return nil, mapPgErr(err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		return nil, store.ErrRequestAlreadyUsed
	}

	audit := domain.SessionAudit{
		ID:         xid.New("audit"),
		SessionID:  session.ID,
		RequestID:  req.ID,
		ChangedBy:  changedBy,
		ApprovedBy: req.ResolvedBy,
		Reason:     edit.Reason,
		Old:        old,
		New:        *session,
		CreatedAt:  at,
	}
	oldJSON, err := json.Marshal(audit.Old)
	if err != nil {
		return nil, err
	}
	newJSON, err := json.Marshal(audit.New)
	if err != nil {
		return nil, err
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO session_audits (
			id, session_id, request_id, changed_by, approved_by, reason,
			old_values, new_values, created_at
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
	`, audit.ID, audit.SessionID, audit.RequestID, audit.ChangedBy, audit.ApprovedBy, audit.Reason, oldJSON, newJSON, audit.CreatedAt)
	if err != nil {
		return nil, mapPgErr(err)
	}

	if err := tx.Commit(); err != nil {
		return nil, mapPgErr(err)
	}
	return &audit, nil
}

func (s *Store) ListSessionAudits(ctx context.Context, sessionID string) ([]domain.SessionAudit, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, session_id, request_id, changed_by, approved_by, reason,
			old_values, new_values, created_at
		FROM session_audits
		WHERE ($1 = '' OR session_id = $1)
		ORDER BY created_at DESC, id DESC
	`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	audits := make([]domain.SessionAudit, 0, 16)
	for rows.Next() {
		var audit domain.SessionAudit
		var oldJSON, newJSON []byte
		if err := rows.Scan(&audit.ID, &audit.SessionID, &audit.RequestID, &audit.ChangedBy, &audit.ApprovedBy, &audit.Reason, &oldJSON, &newJSON, &audit.CreatedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(oldJSON, &audit.Old); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(newJSON, &audit.New); err != nil {
			return nil, err
		}
		audit.CreatedAt = audit.CreatedAt.UTC()
		audits = append(audits, audit)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return audits, nil
}

func (s *Store) CreateItem(ctx context.Context, item domain.Item) (*domain.Item, error) {
	if item.SKU == "" || item.Name == "" || item.PriceCents < 1 {
		return nil, store.ErrInvalidState
	}
	if item.Stock < 0 || item.WarrantyMonths < 0 {
		return nil, store.ErrInvalidState
	}

	item.Active = true
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO items (sku, name, category, price_cents, stock, warranty_months, active, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,now(),now())
	`, item.SKU, item.Name, item.Category, item.PriceCents, item.Stock, item.WarrantyMonths, item.Active)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrInvalidState
		}
		return nil, err
	}

	created := item
	return &created, nil
}

func (s *Store) GetItemBySKU(ctx context.Context, sku string) (*domain.Item, error) {
	var item domain.Item
	err := s.db.QueryRowContext(ctx, `
		SELECT sku, name, category, price_cents, stock, warranty_months, active
		FROM items
		WHERE sku = $1
	`, sku).Scan(&item.SKU, &item.Name, &item.Category, &item.PriceCents, &item.Stock, &item.WarrantyMonths, &item.Active)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &item, nil
}

func (s *Store) UpdateItem(ctx context.Context, item domain.Item) (*domain.Item, error) {
	if item.SKU == "" || item.Name == "" || item.PriceCents < 1 {
		return nil, store.ErrInvalidState
	}

	// Stock is deliberately not written here; it only moves through the
	// stock ledger.
	res, err := s.db.ExecContext(ctx, `
		UPDATE items
		SET name = $2, category = $3, price_cents = $4, warranty_months = $5, active = $6, updated_at = now()
		WHERE sku = $1
	`, item.SKU, item.Name, item.Category, item.PriceCents, item.WarrantyMonths, item.Active)
	if err != nil {
		return nil, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		return nil, store.ErrNotFound
	}

	return s.GetItemBySKU(ctx, item.SKU)
}

func (s *Store) ListItems(ctx context.Context) ([]domain.Item, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT sku, name, category, price_cents, stock, warranty_months, active
		FROM items
		WHERE active = true
		ORDER BY category, name
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]domain.Item, 0, 128)
	for rows.Next() {
		var item domain.Item
		if err := rows.Scan(&item.SKU, &item.Name, &item.Category, &item.PriceCents, &item.Stock, &item.WarrantyMonths, &item.Active); err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Store) ApplyStockMovement(ctx context.Context, entry domain.ItemLog, allowNegative bool) (*domain.ItemLog, error) {
	tx, err := s.begin(ctx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	created, err := s.applyMovementTx(ctx, tx, entry, allowNegative)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, mapPgErr(err)
	}
	return created, nil
}

// applyMovementTx locks the item row, records old/new stock and appends the
// log entry inside the caller's transaction.
func (s *Store) applyMovementTx(ctx context.Context, tx *sql.Tx, entry domain.ItemLog, allowNegative bool) (*domain.ItemLog, error) {
	if entry.QtyChange == 0 {
		return nil, store.ErrInvalidState
	}

	var stock int
	err := tx.QueryRowContext(ctx, `
		SELECT stock FROM items WHERE sku = $1 FOR UPDATE
	`, entry.SKU).Scan(&stock)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, mapPgErr(err)
	}

	entry.OldStock = stock
	entry.NewStock = stock + entry.QtyChange
	if entry.NewStock < 0 && !allowNegative {
		return nil, store.ErrNegativeStock
	}
	if entry.ID == "" {
		entry.ID = xid.New("ilog")
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE items SET stock = $2, updated_at = now() WHERE sku = $1
	`, entry.SKU, entry.NewStock)
	if err != nil {
		return nil, mapPgErr(err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO item_logs (
			id, sku, type, qty_change, old_stock, new_stock, description,
			reference_kind, reference_id, reversal_of, user_id, created_at
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
	`, entry.ID, entry.SKU, entry.Type, entry.QtyChange, entry.OldStock, entry.NewStock,
		entry.Description, nullIfEmpty(entry.Reference.Kind), nullIfEmpty(entry.Reference.ID),
		nullIfEmpty(entry.ReversalOf), entry.UserID, entry.CreatedAt)
	if err != nil {
		return nil, mapPgErr(err)
	}

	created := entry
	return &created, nil
}

func (s *Store) GetItemLog(ctx context.Context, logID string) (*domain.ItemLog, error) {
	entry, err := scanItemLog(s.db.QueryRowContext(ctx, `
		SELECT id, sku, type, qty_change, old_stock, new_stock, description,
			reference_kind, reference_id, reversal_of, user_id, created_at
		FROM item_logs
		WHERE id = $1
	`, logID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return entry, nil
}

func (s *Store) ListItemLogs(ctx context.Context, sku string, limit int) ([]domain.ItemLog, error) {
	if limit < 1 {
		limit = 100
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, sku, type, qty_change, old_stock, new_stock, description,
			reference_kind, reference_id, reversal_of, user_id, created_at
		FROM item_logs
		WHERE ($1 = '' OR sku = $1)
		ORDER BY created_at DESC, id DESC
		LIMIT $2
	`, sku, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	logs := make([]domain.ItemLog, 0, limit)
	for rows.Next() {
		entry, err := scanItemLog(rows)
		if err != nil {
			return nil, err
		}
		logs = append(logs, *entry)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return logs, nil
}

func (s *Store) CreateSale(ctx context.Context, sale domain.Sale) (*domain.Sale, error) {
	if len(sale.Items) == 0 {
		return nil, store.ErrInvalidState
	}
	if sale.ID == "" {
		sale.ID = xid.New("sale")
	}
	if sale.CreatedAt.IsZero() {
		sale.CreatedAt = time.Now().UTC()
	}

	tx, err := s.begin(ctx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	switch sale.PaymentMethod {
	case domain.PaymentCash:
		var status string
		err := tx.QueryRowContext(ctx, `
			SELECT status FROM register_sessions WHERE id = $1 FOR UPDATE
		`, sale.SessionID).Scan(&status)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, store.ErrNotFound
			}
			return nil, mapPgErr(err)
		}
		if status != domain.SessionStatusOpen {
			return nil, store.ErrNotFound
		}
	case domain.PaymentBank:
		var exists bool
		if err := tx.QueryRowContext(ctx, `
			SELECT EXISTS (SELECT 1 FROM bank_accounts WHERE id = $1)
		`, sale.BankAccountID).Scan(&exists); err != nil {
			return nil, mapPgErr(err)
		}
		if !exists {
			return nil, store.ErrNotFound
		}
	case domain.PaymentDebt:
		var exists bool
		if err := tx.QueryRowContext(ctx, `
			SELECT EXISTS (SELECT 1 FROM customers WHERE id = $1)
		`, sale.CustomerID).Scan(&exists); err != nil {
			return nil, mapPgErr(err)
		}
		if !exists {
			return nil, store.ErrNotFound
		}
	default:
		return nil, store.ErrInvalidState
	}

	total := int64(0)
	lines := make([]domain.SaleLine, 0, len(sale.Items))
	warrantyMonths := make(map[string]int, len(sale.Items))
	for _, line := range sale.Items {
		if line.Qty < 1 {
			return nil, store.ErrInvalidState
		}
		var priceCents int64
		var months int
		var active bool
		err := tx.QueryRowContext(ctx, `
			SELECT price_cents, warranty_months, active FROM items WHERE sku = $1
		`, line.SKU).Scan(&priceCents, &months, &active)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, store.ErrNotFound
			}
			return nil, mapPgErr(err)
		}
		if !active {
			return nil, store.ErrNotFound
		}
		lines = append(lines, domain.SaleLine{SKU: line.SKU, Qty: line.Qty, UnitPriceCents: priceCents})
		warrantyMonths[line.SKU] = months
		total += int64(line.Qty) * priceCents
	}
	sale.Items = lines
	sale.TotalCents = total
	sale.Status = domain.SaleStatusCompleted

	for _, line := range sale.Items {
		if _, err := s.applyMovementTx(ctx, tx, domain.ItemLog{
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
		if _, err := s.appendEntryTx(ctx, tx, domain.MoneyTransaction{
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
		if _, err := s.appendEntryTx(ctx, tx, domain.MoneyTransaction{
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
		if _, err := tx.ExecContext(ctx, `
			UPDATE customers SET debt_cents = debt_cents + $1 WHERE id = $2
		`, total, sale.CustomerID); err != nil {
			return nil, mapPgErr(err)
		}
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO sales (
			id, session_id, customer_id, payment_method, bank_account_id,
			total_cents, status, sold_by, created_at
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
	`, sale.ID, nullIfEmpty(sale.SessionID), nullIfEmpty(sale.CustomerID), sale.PaymentMethod,
		nullIfEmpty(sale.BankAccountID), sale.TotalCents, sale.Status, sale.SoldBy, sale.CreatedAt)
	if err != nil {
		return nil, mapPgErr(err)
	}

	for _, line := range sale.Items {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO sale_items (sale_id, sku, qty, unit_price_cents)
			VALUES ($1,$2,$3,$4)
		`, sale.ID, line.SKU, line.Qty, line.UnitPriceCents); err != nil {
			return nil, mapPgErr(err)
		}
		if warrantyMonths[line.SKU] > 0 {
			warrantyID := xid.New("war")
			expires := sale.CreatedAt.AddDate(0, warrantyMonths[line.SKU], 0)
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO warranties (id, sale_id, sku, customer_id, status, issued_at, expires_at)
				VALUES ($1,$2,$3,$4,$5,$6,$7)
			`, warrantyID, sale.ID, line.SKU, nullIfEmpty(sale.CustomerID), domain.WarrantyStatusActive, sale.CreatedAt, expires); err != nil {
				return nil, mapPgErr(err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, mapPgErr(err)
	}
	return &sale, nil
}

func (s *Store) GetSale(ctx context.Context, saleID string) (*domain.Sale, error) {
	sale, err := scanSale(s.db.QueryRowContext(ctx, `
		SELECT id, session_id, customer_id, payment_method, bank_account_id,
			total_cents, status, sold_by, reversed_at, created_at
		FROM sales
		WHERE id = $1
	`, saleID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}

	items, err := s.saleItems(ctx, saleID)
	if err != nil {
		return nil, err
	}
	sale.Items = items
	return sale, nil
}

func (s *Store) ListSales(ctx context.Context, sessionID string, limit int) ([]domain.Sale, error) {
	if limit < 1 {
		limit = 100
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, session_id, customer_id, payment_method, bank_account_id,
			total_cents, status, sold_by, reversed_at, created_at
		FROM sales
		WHERE ($1 = '' OR session_id = $1)
		ORDER BY created_at DESC, id DESC
		LIMIT $2
	`, sessionID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	sales := make([]domain.Sale, 0, limit)
	for rows.Next() {
		sale, err := scanSale(rows)
		if err != nil {
			return nil, err
		}
		sales = append(sales, *sale)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range sales {
		items, err := s.saleItems(ctx, sales[i].ID)
		if err != nil {
			return nil, err
		}
		sales[i].Items = items
	}
	return sales, nil
}

func (s *Store) saleItems(ctx context.Context, saleID string) ([]domain.SaleLine, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT sku, qty, unit_price_cents
		FROM sale_items
		WHERE sale_id = $1
		ORDER BY sku
	`, saleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]domain.SaleLine, 0, 8)
	for rows.Next() {
		var line domain.SaleLine
		if err := rows.Scan(&line.SKU, &line.Qty, &line.UnitPriceCents); err != nil {
			return nil, err
		}
		items = append(items, line)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Store) ReverseSale(ctx context.Context, saleID, reason, actor string, at time.Time) (*domain.Sale, error) {
	if at.IsZero() {
		at = time.Now().UTC()
	}

	tx, err := s.begin(ctx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	sale, err := scanSale(tx.QueryRowContext(ctx, `
		SELECT id, session_id, customer_id, payment_method, bank_account_id,
			total_cents, status, sold_by, reversed_at, created_at
		FROM sales
		WHERE id = $1
		FOR UPDATE
	`, saleID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, mapPgErr(err)
	}
	if sale.Status != domain.SaleStatusCompleted {
		return nil, store.ErrInvalidState
	}

	itemRows, err := tx.QueryContext(ctx, `
		SELECT sku, qty, unit_price_cents FROM sale_items WHERE sale_id = $1
	`, saleID)
	if err != nil {
		return nil, mapPgErr(err)
	}
	items := make([]domain.SaleLine, 0, 8)
	for itemRows.Next() {
		var line domain.SaleLine
		if err := itemRows.Scan(&line.SKU, &line.Qty, &line.UnitPriceCents); err != nil {
			_ = itemRows.Close()
			return nil, err
		}
		items = append(items, line)
	}
	if err := itemRows.Err(); err != nil {
		_ = itemRows.Close()
		return nil, err
	}
	_ = itemRows.Close()
	sale.Items = items

	originalLogs := make(map[string]string, len(items))
	logRows, err := tx.QueryContext(ctx, `
		SELECT sku, id FROM item_logs
		WHERE reference_kind = 'sale' AND reference_id = $1 AND type = $2
	`, saleID, domain.MovementSale)
	if err != nil {
		return nil, mapPgErr(err)
	}
	for logRows.Next() {
		var sku, logID string
		if err := logRows.Scan(&sku, &logID); err != nil {
			_ = logRows.Close()
			return nil, err
		}
		originalLogs[sku] = logID
	}
	if err := logRows.Err(); err != nil {
		_ = logRows.Close()
		return nil, err
	}
	_ = logRows.Close()

	for _, line := range sale.Items {
		if _, err := s.applyMovementTx(ctx, tx, domain.ItemLog{
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
		// The refund leaves whatever drawer is open now, not the
		// original one.
		var openID string
		err := tx.QueryRowContext(ctx, `
			SELECT id FROM register_sessions WHERE status = $1 FOR UPDATE
		`, domain.SessionStatusOpen).Scan(&openID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, store.ErrNotFound
			}
			return nil, mapPgErr(err)
		}
		if _, err := s.appendEntryTx(ctx, tx, domain.MoneyTransaction{
			Type:        domain.EntryTypeOut,
			AmountCents: sale.TotalCents,
			SourceType:  domain.SourceCashRegister,
			SourceID:    openID,
			SessionID:   openID,
			Category:    domain.CategoryRefund,
			Description: reason,
			Reference:   domain.Reference{Kind: "sale", ID: sale.ID},
			UserID:      actor,
			CreatedAt:   at,
		}); err != nil {
			return nil, err
		}
	case domain.PaymentBank:
		if _, err := s.appendEntryTx(ctx, tx, domain.MoneyTransaction{
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
		res, err := tx.ExecContext(ctx, `
			UPDATE customers SET debt_cents = debt_cents - $1 WHERE id = $2
		`, sale.TotalCents, sale.CustomerID)
		if err != nil {
			return nil, mapPgErr(err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return nil, err
		}
		if affected == 0 {
			return nil, store.ErrNotFound
		}
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE sales SET status = $2, reversed_at = $3 WHERE id = $1
	`, saleID, domain.SaleStatusReversed, at)
	if err != nil {
		return nil, mapPgErr(err)
	}

	if err := tx.Commit(); err != nil {
		return nil, mapPgErr(err)
	}

	sale.Status = domain.SaleStatusReversed
	sale.ReversedAt = &at
	return sale, nil
}

func (s *Store) RecordDebtRepayment(ctx context.Context, entry domain.MoneyTransaction, customerID string) (*domain.MoneyTransaction, error) {
	tx, err := s.begin(ctx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	var debtCents int64
	err = tx.QueryRowContext(ctx, `
		SELECT debt_cents FROM customers WHERE id = $1 FOR UPDATE
	`, customerID).Scan(&debtCents)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, mapPgErr(err)
	}
	if entry.AmountCents < 1 || entry.AmountCents > debtCents {
		return nil, store.ErrInvalidAmount
	}

	created, err := s.appendEntryTx(ctx, tx, entry)
	if err != nil {
		return nil, err
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE customers SET debt_cents = debt_cents - $1 WHERE id = $2
	`, entry.AmountCents, customerID)
	if err != nil {
		return nil, mapPgErr(err)
	}

	if err := tx.Commit(); err != nil {
		return nil, mapPgErr(err)
	}
	return created, nil
}

func (s *Store) CreateBankAccount(ctx context.Context, account domain.BankAccount) (*domain.BankAccount, error) {
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

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO bank_accounts (id, name, number, balance_cents, created_at)
		VALUES ($1,$2,$3,$4,$5)
	`, account.ID, account.Name, account.Number, account.BalanceCents, account.CreatedAt)
	if err != nil {
		return nil, err
	}

	created := account
	return &created, nil
}

func (s *Store) GetBankAccount(ctx context.Context, accountID string) (*domain.BankAccount, error) {
	var account domain.BankAccount
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, number, balance_cents, created_at
		FROM bank_accounts
		WHERE id = $1
	`, accountID).Scan(&account.ID, &account.Name, &account.Number, &account.BalanceCents, &account.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	account.CreatedAt = account.CreatedAt.UTC()
	return &account, nil
}

func (s *Store) ListBankAccounts(ctx context.Context) ([]domain.BankAccount, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, number, balance_cents, created_at
		FROM bank_accounts
		ORDER BY name
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	accounts := make([]domain.BankAccount, 0, 8)
	for rows.Next() {
		var account domain.BankAccount
		if err := rows.Scan(&account.ID, &account.Name, &account.Number, &account.BalanceCents, &account.CreatedAt); err != nil {
			return nil, err
		}
		account.CreatedAt = account.CreatedAt.UTC()
		accounts = append(accounts, account)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return accounts, nil
}

func (s *Store) CreateCustomer(ctx context.Context, customer domain.Customer) (*domain.Customer, error) {
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

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO customers (id, name, phone, debt_cents, created_at)
		VALUES ($1,$2,$3,$4,$5)
	`, customer.ID, customer.Name, customer.Phone, customer.DebtCents, customer.CreatedAt)
	if err != nil {
		return nil, err
	}

	created := customer
	return &created, nil
}

func (s *Store) GetCustomer(ctx context.Context, customerID string) (*domain.Customer, error) {
	var customer domain.Customer
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, phone, debt_cents, created_at
		FROM customers
		WHERE id = $1
	`, customerID).Scan(&customer.ID, &customer.Name, &customer.Phone, &customer.DebtCents, &customer.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	customer.CreatedAt = customer.CreatedAt.UTC()
	return &customer, nil
}

func (s *Store) ListCustomers(ctx context.Context) ([]domain.Customer, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, phone, debt_cents, created_at
		FROM customers
		ORDER BY name
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	customers := make([]domain.Customer, 0, 32)
	for rows.Next() {
		var customer domain.Customer
		if err := rows.Scan(&customer.ID, &customer.Name, &customer.Phone, &customer.DebtCents, &customer.CreatedAt); err != nil {
			return nil, err
		}
		customer.CreatedAt = customer.CreatedAt.UTC()
		customers = append(customers, customer)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return customers, nil
}

func (s *Store) CreateSupplier(ctx context.Context, supplier domain.Supplier) (*domain.Supplier, error) {
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

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO suppliers (id, name, phone, created_at)
		VALUES ($1,$2,$3,$4)
	`, supplier.ID, supplier.Name, supplier.Phone, supplier.CreatedAt)
	if err != nil {
		return nil, err
	}

	created := supplier
	return &created, nil
}

func (s *Store) ListSuppliers(ctx context.Context) ([]domain.Supplier, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, phone, created_at
		FROM suppliers
		ORDER BY created_at, name
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	suppliers := make([]domain.Supplier, 0, 16)
	for rows.Next() {
		var supplier domain.Supplier
		if err := rows.Scan(&supplier.ID, &supplier.Name, &supplier.Phone, &supplier.CreatedAt); err != nil {
			return nil, err
		}
		supplier.CreatedAt = supplier.CreatedAt.UTC()
		suppliers = append(suppliers, supplier)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return suppliers, nil
}

func (s *Store) CreatePurchaseOrder(ctx context.Context, po domain.PurchaseOrder) (*domain.PurchaseOrder, error) {
	if po.SupplierID == "" || len(po.Items) == 0 {
		return nil, store.ErrInvalidState
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
		total += int64(item.Qty) * item.CostCents
		items = append(items, item)
	}
	po.Items = items
	po.TotalCents = total

	tx, err := s.begin(ctx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	var supplierExists bool
	if err := tx.QueryRowContext(ctx, `
		SELECT EXISTS (SELECT 1 FROM suppliers WHERE id = $1)
	`, po.SupplierID).Scan(&supplierExists); err != nil {
		return nil, mapPgErr(err)
	}
	if !supplierExists {
		return nil, store.ErrNotFound
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO purchase_orders (id, supplier_id, status, total_cents, created_at)
		VALUES ($1,$2,$3,$4,$5)
	`, po.ID, po.SupplierID, po.Status, po.TotalCents, po.CreatedAt)
	if err != nil {
		return nil, mapPgErr(err)
	}

	for _, item := range po.Items {
		var itemExists bool
		if err := tx.QueryRowContext(ctx, `
			SELECT EXISTS (SELECT 1 FROM items WHERE sku = $1)
		`, item.SKU).Scan(&itemExists); err != nil {
			return nil, mapPgErr(err)
		}
		if !itemExists {
			return nil, store.ErrNotFound
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO purchase_order_items (purchase_order_id, sku, qty, cost_cents)
			VALUES ($1,$2,$3,$4)
		`, po.ID, item.SKU, item.Qty, item.CostCents); err != nil {
			return nil, mapPgErr(err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, mapPgErr(err)
	}
	saved := po
	return &saved, nil
}

func (s *Store) GetPurchaseOrderByID(ctx context.Context, purchaseOrderID string) (*domain.PurchaseOrder, error) {
	po, err := scanPurchaseOrder(s.db.QueryRowContext(ctx, `
		SELECT id, supplier_id, status, total_cents, created_at, received_at, received_by
		FROM purchase_orders
		WHERE id = $1
	`, purchaseOrderID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}

	items, err := s.purchaseOrderItems(ctx, purchaseOrderID)
	if err != nil {
		return nil, err
	}
	po.Items = items
	return po, nil
}

func (s *Store) ListPurchaseOrders(ctx context.Context, status string, limit int) ([]domain.PurchaseOrder, error) {
	if limit < 1 {
		limit = 50
	}
	status = strings.ToLower(strings.TrimSpace(status))

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, supplier_id, status, total_cents, created_at, received_at, received_by
		FROM purchase_orders
		WHERE ($1 = '' OR status = $1)
		ORDER BY created_at DESC, id DESC
		LIMIT $2
	`, status, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	orders := make([]domain.PurchaseOrder, 0, limit)
	for rows.Next() {
		po, err := scanPurchaseOrder(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, *po)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range orders {
		items, err := s.purchaseOrderItems(ctx, orders[i].ID)
		if err != nil {
			return nil, err
		}
		orders[i].Items = items
	}
	return orders, nil
}

func (s *Store) purchaseOrderItems(ctx context.Context, purchaseOrderID string) ([]domain.PurchaseOrderItem, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT sku, qty, cost_cents
		FROM purchase_order_items
		WHERE purchase_order_id = $1
		ORDER BY sku
	`, purchaseOrderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]domain.PurchaseOrderItem, 0, 8)
	for rows.Next() {
		var item domain.PurchaseOrderItem
		if err := rows.Scan(&item.SKU, &item.Qty, &item.CostCents); err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Store) ReceivePurchaseOrder(ctx context.Context, purchaseOrderID string, payment domain.MoneyTransaction, receivedBy string, receivedAt time.Time) (*domain.PurchaseOrder, error) {
	if receivedAt.IsZero() {
		receivedAt = time.Now().UTC()
	}

	tx, err := s.begin(ctx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	po, err := scanPurchaseOrder(tx.QueryRowContext(ctx, `
		SELECT id, supplier_id, status, total_cents, created_at, received_at, received_by
		FROM purchase_orders
		WHERE id = $1
		FOR UPDATE
	`, purchaseOrderID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, mapPgErr(err)
	}
	if po.Status != domain.POStatusDraft {
		return nil, store.ErrInvalidState
	}

	itemRows, err := tx.QueryContext(ctx, `
		SELECT sku, qty, cost_cents FROM purchase_order_items WHERE purchase_order_id = $1
	`, purchaseOrderID)
	if err != nil {
		return nil, mapPgErr(err)
	}
	items := make([]domain.PurchaseOrderItem, 0, 8)
	for itemRows.Next() {
		var item domain.PurchaseOrderItem
		if err := itemRows.Scan(&item.SKU, &item.Qty, &item.CostCents); err != nil {
			_ = itemRows.Close()
			return nil, err
		}
		items = append(items, item)
	}
	if err := itemRows.Err(); err != nil {
		_ = itemRows.Close()
		return nil, err
	}
	_ = itemRows.Close()
	po.Items = items

	for _, item := range po.Items {
		if _, err := s.applyMovementTx(ctx, tx, domain.ItemLog{
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
	if _, err := s.appendEntryTx(ctx, tx, payment); err != nil {
		return nil, err
	}

	receivedBy = strings.TrimSpace(receivedBy)
	if receivedBy == "" {
		receivedBy = "system"
	}
	_, err = tx.ExecContext(ctx, `
		UPDATE purchase_orders
		SET status = $2, received_by = $3, received_at = $4
		WHERE id = $1
	`, purchaseOrderID, domain.POStatusReceived, receivedBy, receivedAt)
	if err != nil {
		return nil, mapPgErr(err)
	}

	if err := tx.Commit(); err != nil {
		return nil, mapPgErr(err)
	}

	po.Status = domain.POStatusReceived
	po.ReceivedBy = receivedBy
	po.ReceivedAt = &receivedAt
	return po, nil
}

func (s *Store) CreateWarranty(ctx context.Context, warranty domain.Warranty) (*domain.Warranty, error) {
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

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO warranties (id, sale_id, sku, customer_id, status, issued_at, expires_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
	`, warranty.ID, nullIfEmpty(warranty.SaleID), warranty.SKU, nullIfEmpty(warranty.CustomerID), warranty.Status, warranty.IssuedAt, warranty.ExpiresAt)
	if err != nil {
		return nil, err
	}

	created := warranty
	return &created, nil
}

func (s *Store) GetWarranty(ctx context.Context, warrantyID string) (*domain.Warranty, error) {
	warranty, err := scanWarranty(s.db.QueryRowContext(ctx, `
		SELECT id, sale_id, sku, customer_id, status, issued_at, expires_at, claimed_at, claim_reason
		FROM warranties
		WHERE id = $1
	`, warrantyID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return warranty, nil
}

func (s *Store) ListWarranties(ctx context.Context, saleID string, limit int) ([]domain.Warranty, error) {
	if limit < 1 {
		limit = 100
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, sale_id, sku, customer_id, status, issued_at, expires_at, claimed_at, claim_reason
		FROM warranties
		WHERE ($1 = '' OR sale_id = $1)
		ORDER BY issued_at DESC, id DESC
		LIMIT $2
	`, saleID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	warranties := make([]domain.Warranty, 0, limit)
	for rows.Next() {
		warranty, err := scanWarranty(rows)
		if err != nil {
			return nil, err
		}
		warranties = append(warranties, *warranty)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return warranties, nil
}

func (s *Store) ClaimWarranty(ctx context.Context, warrantyID, reason, actor string, at time.Time) (*domain.Warranty, error) {
	if at.IsZero() {
		at = time.Now().UTC()
	}

	tx, err := s.begin(ctx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	warranty, err := scanWarranty(tx.QueryRowContext(ctx, `
		SELECT id, sale_id, sku, customer_id, status, issued_at, expires_at, claimed_at, claim_reason
		FROM warranties
		WHERE id = $1
		FOR UPDATE
	`, warrantyID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, mapPgErr(err)
	}
	if warranty.Status != domain.WarrantyStatusActive {
		return nil, store.ErrInvalidState
	}
	if at.After(warranty.ExpiresAt) {
		return nil, store.ErrInvalidState
	}

	// Replacement unit leaves stock; no money moves.
	if _, err := s.applyMovementTx(ctx, tx, domain.ItemLog{
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

	_, err = tx.ExecContext(ctx, `
		UPDATE warranties
		SET status = $2, claimed_at = $3, claim_reason = $4
		WHERE id = $1
	`, warrantyID, domain.WarrantyStatusClaimed, at, reason)
	if err != nil {
		return nil, mapPgErr(err)
	}

	if err := tx.Commit(); err != nil {
		return nil, mapPgErr(err)
	}

	warranty.Status = domain.WarrantyStatusClaimed
	warranty.ClaimedAt = &at
	warranty.ClaimReason = reason
	return warranty, nil
}

func (s *Store) CreateUser(ctx context.Context, user domain.UserAccount) error {
	username := strings.ToLower(strings.TrimSpace(user.Username))
	if username == "" || strings.TrimSpace(user.Password) == "" {
		return store.ErrInvalidState
	}
	if user.Role == "" {
		user.Role = "cashier"
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (username, password, role, active, created_at)
		VALUES ($1,$2,$3,true,$4)
	`, username, user.Password, user.Role, user.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return store.ErrInvalidState
		}
		return err
	}
	return nil
}

func (s *Store) ListUsers(ctx context.Context) ([]domain.UserAccount, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT username, password, role, active, created_at
		FROM users
		ORDER BY username
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	users := make([]domain.UserAccount, 0, 16)
	for rows.Next() {
		var user domain.UserAccount
		if err := rows.Scan(&user.Username, &user.Password, &user.Role, &user.Active, &user.CreatedAt); err != nil {
			return nil, err
		}
		user.CreatedAt = user.CreatedAt.UTC()
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return users, nil
}

func (s *Store) UpdateUserPassword(ctx context.Context, username string, password string) error {
	username = strings.ToLower(strings.TrimSpace(username))
	if username == "" || strings.TrimSpace(password) == "" {
		return store.ErrInvalidState
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE users SET password = $2 WHERE username = $1
	`, username, password)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (*domain.RegisterSession, error) {
	var session domain.RegisterSession
	var closedBy sql.NullString
	var closedAt sql.NullTime
	err := row.Scan(&session.ID, &session.OpenedBy, &closedBy, &session.OpeningCents,
		&session.CashSalesCents, &session.DebtRepaidCents, &session.ExpectedCents,
		&session.ActualCents, &session.VarianceCents, &session.Notes, &session.Status,
		&session.OpenedAt, &closedAt)
	if err != nil {
		return nil, err
	}
	session.OpenedAt = session.OpenedAt.UTC()
	if closedBy.Valid {
		session.ClosedBy = closedBy.String
	}
	if closedAt.Valid {
		t := closedAt.Time.UTC()
		session.ClosedAt = &t
	}
	return &session, nil
}

func scanEntry(row rowScanner) (*domain.MoneyTransaction, error) {
	var entry domain.MoneyTransaction
	var sessionID, refKind, refID, reversalOf sql.NullString
	err := row.Scan(&entry.ID, &entry.Type, &entry.AmountCents, &entry.SourceType,
		&entry.SourceID, &sessionID, &entry.Category, &entry.Description,
		&refKind, &refID, &reversalOf, &entry.UserID, &entry.CreatedAt)
	if err != nil {
		return nil, err
	}
	entry.CreatedAt = entry.CreatedAt.UTC()
	if sessionID.Valid {
		entry.SessionID = sessionID.String
	}
	if refKind.Valid {
		entry.Reference.Kind = refKind.String
	}
	if refID.Valid {
		entry.Reference.ID = refID.String
	}
	if reversalOf.Valid {
		entry.ReversalOf = reversalOf.String
	}
	return &entry, nil
}

func scanAccessRequest(row rowScanner) (*domain.SessionAccessRequest, error) {
	var req domain.SessionAccessRequest
	var resolvedBy, denialReason sql.NullString
	var resolvedAt, usedAt sql.NullTime
	err := row.Scan(&req.ID, &req.SessionID, &req.RequestedBy, &req.Reason, &req.Status,
		&resolvedBy, &resolvedAt, &denialReason, &usedAt, &req.CreatedAt)
	if err != nil {
		return nil, err
	}
	req.CreatedAt = req.CreatedAt.UTC()
	if resolvedBy.Valid {
		req.ResolvedBy = resolvedBy.String
	}
	if resolvedAt.Valid {
		t := resolvedAt.Time.UTC()
		req.ResolvedAt = &t
	}
	if denialReason.Valid {
		req.DenialReason = denialReason.String
	}
	if usedAt.Valid {
		t := usedAt.Time.UTC()
		req.UsedAt = &t
	}
	return &req, nil
}

func scanItemLog(row rowScanner) (*domain.ItemLog, error) {
	var entry domain.ItemLog
	var refKind, refID, reversalOf sql.NullString
	err := row.Scan(&entry.ID, &entry.SKU, &entry.Type, &entry.QtyChange, &entry.OldStock,
		&entry.NewStock, &entry.Description, &refKind, &refID, &reversalOf, &entry.UserID, &entry.CreatedAt)
	if err != nil {
		return nil, err
	}
	entry.CreatedAt = entry.CreatedAt.UTC()
	if refKind.Valid {
		entry.Reference.Kind = refKind.String
	}
	if refID.Valid {
		entry.Reference.ID = refID.String
	}
	if reversalOf.Valid {
		entry.ReversalOf = reversalOf.String
	}
	return &entry, nil
}

func scanSale(row rowScanner) (*domain.Sale, error) {
	var sale domain.Sale
	var sessionID, customerID, bankAccountID sql.NullString
	var reversedAt sql.NullTime
	err := row.Scan(&sale.ID, &sessionID, &customerID, &sale.PaymentMethod, &bankAccountID,
		&sale.TotalCents, &sale.Status, &sale.SoldBy, &reversedAt, &sale.CreatedAt)
	if err != nil {
		return nil, err
	}
	sale.CreatedAt = sale.CreatedAt.UTC()
	if sessionID.Valid {
		sale.SessionID = sessionID.String
	}
	if customerID.Valid {
		sale.CustomerID = customerID.String
	}
	if bankAccountID.Valid {
		sale.BankAccountID = bankAccountID.String
	}
	if reversedAt.Valid {
		t := reversedAt.Time.UTC()
		sale.ReversedAt = &t
	}
	return &sale, nil
}

func scanPurchaseOrder(row rowScanner) (*domain.PurchaseOrder, error) {
	var po domain.PurchaseOrder
	var receivedAt sql.NullTime
	var receivedBy sql.NullString
	err := row.Scan(&po.ID, &po.SupplierID, &po.Status, &po.TotalCents, &po.CreatedAt, &receivedAt, &receivedBy)
	if err != nil {
		return nil, err
	}
	po.CreatedAt = po.CreatedAt.UTC()
	if receivedAt.Valid {
		t := receivedAt.Time.UTC()
		po.ReceivedAt = &t
	}
	if receivedBy.Valid {
		po.ReceivedBy = receivedBy.String
	}
	return &po, nil
}

func scanWarranty(row rowScanner) (*domain.Warranty, error) {
	var warranty domain.Warranty
	var saleID, customerID, claimReason sql.NullString
	var claimedAt sql.NullTime
	err := row.Scan(&warranty.ID, &saleID, &warranty.SKU, &customerID, &warranty.Status,
		&warranty.IssuedAt, &warranty.ExpiresAt, &claimedAt, &claimReason)
	if err != nil {
		return nil, err
	}
	warranty.IssuedAt = warranty.IssuedAt.UTC()
	warranty.ExpiresAt = warranty.ExpiresAt.UTC()
	if saleID.Valid {
		warranty.SaleID = saleID.String
	}
	if customerID.Valid {
		warranty.CustomerID = customerID.String
	}
	if claimedAt.Valid {
		t := claimedAt.Time.UTC()
		warranty.ClaimedAt = &t
	}
	if claimReason.Valid {
		warranty.ClaimReason = claimReason.String
	}
	return &warranty, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

// mapPgErr translates bounded-lock-wait and serialization failures into
// ErrContention so callers can retry.
func mapPgErr(err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "55P03", "40001", "40P01":
			return store.ErrContention
		}
	}
	return err
}

func nullIfEmpty(val string) any {
	if val == "" {
		return nil
	}
	return val
}

func nullTime(val *time.Time) any {
	if val == nil {
		return nil
	}
	return *val
}
