package domain

import "time"

type Item struct {
	SKU            string `json:"sku"`
	Name           string `json:"name"`
	Category       string `json:"category"`
	PriceCents     int64  `json:"price_cents"`
	Stock          int    `json:"stock"`
	WarrantyMonths int    `json:"warranty_months"`
	Active         bool   `json:"active"`
}

type ItemCreateRequest struct {
	SKU            string `json:"sku"`
	Name           string `json:"name"`
	Category       string `json:"category"`
	PriceCents     int64  `json:"price_cents"`
	WarrantyMonths int    `json:"warranty_months"`
	InitialStock   int    `json:"initial_stock"`
}

type ItemUpdateRequest struct {
	Name           *string `json:"name,omitempty"`
	Category       *string `json:"category,omitempty"`
	PriceCents     *int64  `json:"price_cents,omitempty"`
	WarrantyMonths *int    `json:"warranty_months,omitempty"`
	Active         *bool   `json:"active,omitempty"`
}

// Reference ties a ledger entry to the business record that produced it,
// e.g. {Kind: "sale", ID: "sale-..."} or {Kind: "purchase_order", ID: "po-..."}.
type Reference struct {
	Kind string `json:"kind,omitempty"`
	ID   string `json:"id,omitempty"`
}

type RegisterSession struct {
	ID              string     `json:"id"`
	OpenedBy        string     `json:"opened_by"`
	ClosedBy        string     `json:"closed_by,omitempty"`
	OpeningCents    int64      `json:"opening_cents"`
	CashSalesCents  int64      `json:"cash_sales_cents"`
	DebtRepaidCents int64      `json:"debt_repaid_cents"`
	ExpectedCents   int64      `json:"expected_cents,omitempty"`
	ActualCents     int64      `json:"actual_cents,omitempty"`
	VarianceCents   int64      `json:"variance_cents,omitempty"`
	Notes           string     `json:"notes,omitempty"`
	Status          string     `json:"status"`
	OpenedAt        time.Time  `json:"opened_at"`
	ClosedAt        *time.Time `json:"closed_at,omitempty"`
}

type RegisterOpenRequest struct {
	OpeningCents int64 `json:"opening_cents"`
}

type RegisterCloseRequest struct {
	ActualCents int64  `json:"actual_cents"`
	Notes       string `json:"notes"`
}

type SessionResponse struct {
	Session RegisterSession `json:"session"`
}

type SessionListResponse struct {
	Sessions []RegisterSession `json:"sessions"`
}

type MoneyTransaction struct {
	ID          string    `json:"id"`
	Type        string    `json:"type"`
	AmountCents int64     `json:"amount_cents"`
	SourceType  string    `json:"source_type"`
	SourceID    string    `json:"source_id"`
	SessionID   string    `json:"session_id,omitempty"`
	Category    string    `json:"category"`
	Description string    `json:"description,omitempty"`
	Reference   Reference `json:"reference,omitempty"`
	ReversalOf  string    `json:"reversal_of,omitempty"`
	UserID      string    `json:"user_id"`
	CreatedAt   time.Time `json:"created_at"`
}

type CashEntryRequest struct {
	AmountCents int64     `json:"amount_cents"`
	Category    string    `json:"category"`
	Description string    `json:"description"`
	Reference   Reference `json:"reference,omitempty"`
}

type BankEntryRequest struct {
	BankAccountID string    `json:"bank_account_id"`
	AmountCents   int64     `json:"amount_cents"`
	SessionID     string    `json:"session_id,omitempty"`
	Category      string    `json:"category"`
	Description   string    `json:"description"`
	Reference     Reference `json:"reference,omitempty"`
}

type ReverseEntryRequest struct {
	TransactionID string `json:"transaction_id"`
	Reason        string `json:"reason"`
}

type LedgerFilter struct {
	SourceType string
	SourceID   string
	SessionID  string
	Category   string
	From       *time.Time
	To         *time.Time
	Limit      int
}

type LedgerSum struct {
	InCents  int64 `json:"in_cents"`
	OutCents int64 `json:"out_cents"`
	Entries  int   `json:"entries"`
}

type BalanceResponse struct {
	SourceType   string    `json:"source_type"`
	SourceID     string    `json:"source_id"`
	BalanceCents int64     `json:"balance_cents"`
	AsOf         time.Time `json:"as_of"`
}

type TransactionResponse struct {
	Transaction MoneyTransaction `json:"transaction"`
}

type TransactionListResponse struct {
	Transactions []MoneyTransaction `json:"transactions"`
}

type SessionAccessRequest struct {
	ID           string     `json:"id"`
	SessionID    string     `json:"session_id"`
	RequestedBy  string     `json:"requested_by"`
	Reason       string     `json:"reason"`
	Status       string     `json:"status"`
	ResolvedBy   string     `json:"resolved_by,omitempty"`
	ResolvedAt   *time.Time `json:"resolved_at,omitempty"`
	DenialReason string     `json:"denial_reason,omitempty"`
	UsedAt       *time.Time `json:"used_at,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
}

type AccessRequestCreate struct {
	SessionID string `json:"session_id"`
	Reason    string `json:"reason"`
}

type AccessRequestDeny struct {
	Reason string `json:"reason"`
}

type AccessRequestResponse struct {
	Request SessionAccessRequest `json:"request"`
}

type AccessRequestListResponse struct {
	Requests []SessionAccessRequest `json:"requests"`
}

type SessionEditRequest struct {
	RequestID    string  `json:"request_id"`
	Reason       string  `json:"reason"`
	OpeningCents *int64  `json:"opening_cents,omitempty"`
	ActualCents  *int64  `json:"actual_cents,omitempty"`
	Notes        *string `json:"notes,omitempty"`
}

// SessionAudit captures one approved edit of a closed session. Old and New are
// complete snapshots taken before and after the write, not diffs.
type SessionAudit struct {
	ID         string          `json:"id"`
	SessionID  string          `json:"session_id"`
	RequestID  string          `json:"request_id"`
	ChangedBy  string          `json:"changed_by"`
	ApprovedBy string          `json:"approved_by"`
	Reason     string          `json:"reason"`
	Old        RegisterSession `json:"old"`
	New        RegisterSession `json:"new"`
	CreatedAt  time.Time       `json:"created_at"`
}

type SessionAuditListResponse struct {
	Audits []SessionAudit `json:"audits"`
}

type ItemLog struct {
	ID          string    `json:"id"`
	SKU         string    `json:"sku"`
	Type        string    `json:"type"`
	QtyChange   int       `json:"qty_change"`
	OldStock    int       `json:"old_stock"`
	NewStock    int       `json:"new_stock"`
	Description string    `json:"description,omitempty"`
	Reference   Reference `json:"reference,omitempty"`
	ReversalOf  string    `json:"reversal_of,omitempty"`
	UserID      string    `json:"user_id"`
	CreatedAt   time.Time `json:"created_at"`
}

type StockMovementRequest struct {
	SKU           string    `json:"sku"`
	Type          string    `json:"type"`
	QtyChange     int       `json:"qty_change"`
	Description   string    `json:"description"`
	Reference     Reference `json:"reference,omitempty"`
	AllowNegative bool      `json:"allow_negative"`
}

type ReverseMovementRequest struct {
	LogID  string `json:"log_id"`
	Reason string `json:"reason"`
}

type ItemLogResponse struct {
	Log ItemLog `json:"log"`
}

type ItemLogListResponse struct {
	Logs []ItemLog `json:"logs"`
}

type BankAccount struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Number       string    `json:"number"`
	BalanceCents int64     `json:"balance_cents"`
	CreatedAt    time.Time `json:"created_at"`
}

type BankAccountCreateRequest struct {
	Name         string `json:"name"`
	Number       string `json:"number"`
	OpeningCents int64  `json:"opening_cents"`
}

type Customer struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Phone     string    `json:"phone"`
	DebtCents int64     `json:"debt_cents"`
	CreatedAt time.Time `json:"created_at"`
}

type CustomerCreateRequest struct {
	Name  string `json:"name"`
	Phone string `json:"phone"`
}

type SaleLine struct {
	SKU            string `json:"sku"`
	Qty            int    `json:"qty"`
	UnitPriceCents int64  `json:"unit_price_cents"`
}

type SaleLineInput struct {
	SKU string `json:"sku"`
	Qty int    `json:"qty"`
}

type Sale struct {
	ID            string     `json:"id"`
	SessionID     string     `json:"session_id,omitempty"`
	CustomerID    string     `json:"customer_id,omitempty"`
	PaymentMethod string     `json:"payment_method"`
	BankAccountID string     `json:"bank_account_id,omitempty"`
	TotalCents    int64      `json:"total_cents"`
	Status        string     `json:"status"`
	SoldBy        string     `json:"sold_by"`
	ReversedAt    *time.Time `json:"reversed_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	Items         []SaleLine `json:"items"`
}

type SaleRequest struct {
	PaymentMethod string          `json:"payment_method"`
	BankAccountID string          `json:"bank_account_id,omitempty"`
	CustomerID    string          `json:"customer_id,omitempty"`
	Items         []SaleLineInput `json:"items"`
}

type ReverseSaleRequest struct {
	SaleID string `json:"sale_id"`
	Reason string `json:"reason"`
}

type SaleResponse struct {
	Sale Sale `json:"sale"`
}

type SaleListResponse struct {
	Sales []Sale `json:"sales"`
}

type DebtRepaymentRequest struct {
	CustomerID    string `json:"customer_id"`
	AmountCents   int64  `json:"amount_cents"`
	Method        string `json:"method"`
	BankAccountID string `json:"bank_account_id,omitempty"`
}

type Supplier struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Phone     string    `json:"phone"`
	CreatedAt time.Time `json:"created_at"`
}

type SupplierCreateRequest struct {
	Name  string `json:"name"`
	Phone string `json:"phone"`
}

type PurchaseOrderItem struct {
	SKU       string `json:"sku"`
	Qty       int    `json:"qty"`
	CostCents int64  `json:"cost_cents"`
}

type PurchaseOrder struct {
	ID         string              `json:"id"`
	SupplierID string              `json:"supplier_id"`
	Status     string              `json:"status"`
	TotalCents int64               `json:"total_cents"`
	CreatedAt  time.Time           `json:"created_at"`
	ReceivedAt *time.Time          `json:"received_at,omitempty"`
	ReceivedBy string              `json:"received_by,omitempty"`
	Items      []PurchaseOrderItem `json:"items"`
}

type PurchaseOrderCreateRequest struct {
	SupplierID string              `json:"supplier_id"`
	Items      []PurchaseOrderItem `json:"items"`
}

type PurchaseOrderReceiveRequest struct {
	SourceType string `json:"source_type"`
	SourceID   string `json:"source_id,omitempty"`
}

type PurchaseOrderResponse struct {
	PurchaseOrder PurchaseOrder `json:"purchase_order"`
}

type PurchaseOrderListResponse struct {
	PurchaseOrders []PurchaseOrder `json:"purchase_orders"`
}

type Warranty struct {
	ID          string     `json:"id"`
	SaleID      string     `json:"sale_id"`
	SKU         string     `json:"sku"`
	CustomerID  string     `json:"customer_id,omitempty"`
	Status      string     `json:"status"`
	IssuedAt    time.Time  `json:"issued_at"`
	ExpiresAt   time.Time  `json:"expires_at"`
	ClaimedAt   *time.Time `json:"claimed_at,omitempty"`
	ClaimReason string     `json:"claim_reason,omitempty"`
}

type WarrantyCreateRequest struct {
	SKU        string `json:"sku"`
	SaleID     string `json:"sale_id,omitempty"`
	CustomerID string `json:"customer_id,omitempty"`
	Months     int    `json:"months,omitempty"`
}

type WarrantyClaimRequest struct {
	WarrantyID string `json:"warranty_id"`
	Reason     string `json:"reason"`
}

type WarrantyResponse struct {
	Warranty Warranty `json:"warranty"`
}

type WarrantyListResponse struct {
	Warranties []Warranty `json:"warranties"`
}

type CategoryTotal struct {
	Category string `json:"category"`
	InCents  int64  `json:"in_cents"`
	OutCents int64  `json:"out_cents"`
}

type SessionReport struct {
	SessionID         string          `json:"session_id"`
	Status            string          `json:"status"`
	OpeningCents      int64           `json:"opening_cents"`
	CashInCents       int64           `json:"cash_in_cents"`
	CashOutCents      int64           `json:"cash_out_cents"`
	ExpectedCents     int64           `json:"expected_cents"`
	ActualCents       int64           `json:"actual_cents,omitempty"`
	VarianceCents     int64           `json:"variance_cents,omitempty"`
	CounterDriftCents int64           `json:"counter_drift_cents"`
	EntryCount        int             `json:"entry_count"`
	ByCategory        []CategoryTotal `json:"by_category"`
	GeneratedAt       time.Time       `json:"generated_at"`
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type LoginResponse struct {
	AccessToken string `json:"access_token"`
	Role        string `json:"role"`
	ExpiresAt   string `json:"expires_at"`
}

type Actor struct {
	Username string
	Role     string
}

type StaffCreateRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Role     string `json:"role"`
}

type StaffUser struct {
	Username  string    `json:"username"`
	Role      string    `json:"role"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
}

// UserAccount is an internal persistence model for auth credentials.
type UserAccount struct {
	Username  string
	Password  string
	Role      string
	Active    bool
	CreatedAt time.Time
}

const (
	SessionStatusOpen   = "open"
	SessionStatusClosed = "closed"
)

const (
	EntryTypeIn  = "in"
	EntryTypeOut = "out"
)

const (
	SourceCashRegister = "cash_register"
	SourceBankAccount  = "bank_account"
)

const (
	CategorySale          = "sale"
	CategoryDebtRepayment = "debt_repayment"
	CategoryRefund        = "refund"
	CategoryPurchase      = "purchase"
	CategoryIncome        = "income"
	CategoryExpense       = "expense"
	CategoryReversal      = "reversal"
)

const (
	MovementReceived   = "received"
	MovementAdjustment = "adjustment"
	MovementSale       = "sale"
	MovementAssembly   = "assembly"
	MovementReversed   = "reversed"
)

const (
	RequestStatusPending  = "pending"
	RequestStatusApproved = "approved"
	RequestStatusDenied   = "denied"
)

const (
	PaymentCash = "cash"
	PaymentBank = "bank"
	PaymentDebt = "debt"
)

const (
	SaleStatusCompleted = "completed"
	SaleStatusReversed  = "reversed"
)

const (
	POStatusDraft    = "draft"
	POStatusReceived = "received"
)

const (
	WarrantyStatusActive  = "active"
	WarrantyStatusClaimed = "claimed"
)
