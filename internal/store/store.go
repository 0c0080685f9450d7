package store

import (
	"context"
	"errors"
	"time"

	"tokoledger/backend/internal/domain"
)

var (
	ErrNotFound                = errors.New("not found")
	ErrInvalidAmount           = errors.New("invalid amount")
	ErrInvalidState            = errors.New("invalid state")
	ErrSessionAlreadyOpen      = errors.New("a register session is already open")
	ErrSessionNotClosed        = errors.New("register session is not closed")
	ErrNegativeStock           = errors.New("stock would go negative")
	ErrDuplicatePendingRequest = errors.New("a pending access request already exists")
	ErrRequestNotApproved      = errors.New("access request is not approved")
	ErrRequestAlreadyUsed      = errors.New("access request already used")
	ErrSelfApproval            = errors.New("requester cannot approve own request")
	ErrContention              = errors.New("write contention, retry")
)

// Repository is the persistence boundary. Methods that touch more than one
// record (ledger append + counter bump, stock write + log append, session edit
// + audit + request consumption) are atomic in every implementation.
type Repository interface {
	CreateSession(ctx context.Context, session domain.RegisterSession) (*domain.RegisterSession, error)
	GetSession(ctx context.Context, sessionID string) (*domain.RegisterSession, error)
	GetOpenSession(ctx context.Context) (*domain.RegisterSession, error)
	CloseSession(ctx context.Context, sessionID string, actualCents int64, notes, closedBy string, closedAt time.Time) (*domain.RegisterSession, error)
	ListSessions(ctx context.Context, limit int) ([]domain.RegisterSession, error)

	AppendMoneyTransaction(ctx context.Context, entry domain.MoneyTransaction) (*domain.MoneyTransaction, error)
	GetMoneyTransaction(ctx context.Context, txID string) (*domain.MoneyTransaction, error)
	ListMoneyTransactions(ctx context.Context, filter domain.LedgerFilter) ([]domain.MoneyTransaction, error)
	SumLedger(ctx context.Context, filter domain.LedgerFilter) (domain.LedgerSum, error)
	HasReversal(ctx context.Context, txID string) (bool, error)

	CreateAccessRequest(ctx context.Context, req domain.SessionAccessRequest) (*domain.SessionAccessRequest, error)
	GetAccessRequest(ctx context.Context, requestID string) (*domain.SessionAccessRequest, error)
	ResolveAccessRequest(ctx context.Context, requestID, status, resolvedBy, denialReason string, at time.Time) (*domain.SessionAccessRequest, error)
	ListAccessRequests(ctx context.Context, sessionID string, status string, limit int) ([]domain.SessionAccessRequest, error)
	ApplySessionEdit(ctx context.Context, edit domain.SessionEditRequest, changedBy string, at time.Time) (*domain.SessionAudit, error)
	ListSessionAudits(ctx context.Context, sessionID string) ([]domain.SessionAudit, error)

	CreateItem(ctx context.Context, item domain.Item) (*domain.Item, error)
	GetItemBySKU(ctx context.Context, sku string) (*domain.Item, error)
	UpdateItem(ctx context.Context, item domain.Item) (*domain.Item, error)
	ListItems(ctx context.Context) ([]domain.Item, error)
	ApplyStockMovement(ctx context.Context, entry domain.ItemLog, allowNegative bool) (*domain.ItemLog, error)
	GetItemLog(ctx context.Context, logID string) (*domain.ItemLog, error)
	ListItemLogs(ctx context.Context, sku string, limit int) ([]domain.ItemLog, error)

	CreateSale(ctx context.Context, sale domain.Sale) (*domain.Sale, error)
	GetSale(ctx context.Context, saleID string) (*domain.Sale, error)
	ListSales(ctx context.Context, sessionID string, limit int) ([]domain.Sale, error)
	ReverseSale(ctx context.Context, saleID, reason, actor string, at time.Time) (*domain.Sale, error)
	RecordDebtRepayment(ctx context.Context, entry domain.MoneyTransaction, customerID string) (*domain.MoneyTransaction, error)

	CreateBankAccount(ctx context.Context, account domain.BankAccount) (*domain.BankAccount, error)
	GetBankAccount(ctx context.Context, accountID string) (*domain.BankAccount, error)
	ListBankAccounts(ctx context.Context) ([]domain.BankAccount, error)

	CreateCustomer(ctx context.Context, customer domain.Customer) (*domain.Customer, error)
	GetCustomer(ctx context.Context, customerID string) (*domain.Customer, error)
	ListCustomers(ctx context.Context) ([]domain.Customer, error)

	CreateSupplier(ctx context.Context, supplier domain.Supplier) (*domain.Supplier, error)
	ListSuppliers(ctx context.Context) ([]domain.Supplier, error)
	CreatePurchaseOrder(ctx context.Context, po domain.PurchaseOrder) (*domain.PurchaseOrder, error)
	GetPurchaseOrderByID(ctx context.Context, purchaseOrderID string) (*domain.PurchaseOrder, error)
	ListPurchaseOrders(ctx context.Context, status string, limit int) ([]domain.PurchaseOrder, error)
	ReceivePurchaseOrder(ctx context.Context, purchaseOrderID string, payment domain.MoneyTransaction, receivedBy string, receivedAt time.Time) (*domain.PurchaseOrder, error)

	CreateWarranty(ctx context.Context, warranty domain.Warranty) (*domain.Warranty, error)
	GetWarranty(ctx context.Context, warrantyID string) (*domain.Warranty, error)
	ListWarranties(ctx context.Context, saleID string, limit int) ([]domain.Warranty, error)
	ClaimWarranty(ctx context.Context, warrantyID, reason, actor string, at time.Time) (*domain.Warranty, error)

	CreateUser(ctx context.Context, user domain.UserAccount) error
	ListUsers(ctx context.Context) ([]domain.UserAccount, error)
	UpdateUserPassword(ctx context.Context, username string, password string) error
}
