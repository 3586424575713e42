package domain

import "time"

// Variant is a sellable product variant. Price and tax rate are resolved
// upstream by the pricing service and stored here as the current snapshot.
type Variant struct {
	ID             string  `json:"id"`
	Name           string  `json:"name"`
	Category       string  `json:"category"`
	PriceCents     int64   `json:"price_cents"`
	TaxRatePercent float64 `json:"tax_rate_percent"`
	Active         bool    `json:"active"`
}

type VariantCreateRequest struct {
	StoreID        string  `json:"store_id"`
	ID             string  `json:"id"`
	Name           string  `json:"name"`
	Category       string  `json:"category"`
	PriceCents     int64   `json:"price_cents"`
	TaxRatePercent float64 `json:"tax_rate_percent"`
	InitialStock   int     `json:"initial_stock"`
}

type VariantUpdateRequest struct {
	Name           *string  `json:"name,omitempty"`
	Category       *string  `json:"category,omitempty"`
	PriceCents     *int64   `json:"price_cents,omitempty"`
	TaxRatePercent *float64 `json:"tax_rate_percent,omitempty"`
	Active         *bool    `json:"active,omitempty"`
}

// CartLine is one line of an in-progress session. UnitPriceCents and
// ProductName are snapshots taken when the line is added and do not follow
// later catalog edits.
type CartLine struct {
	VariantID      string  `json:"variant_id"`
	ProductName    string  `json:"product_name"`
	UnitPriceCents int64   `json:"unit_price_cents"`
	Qty            int     `json:"qty"`
	DiscountCents  int64   `json:"discount_cents"`
	TaxRatePercent float64 `json:"tax_rate_percent"`
}

// Session is one open cart owned by a cashier. A cashier holds at most
// MaxSessionsPerCashier non-completed sessions; exactly one of them is
// active at a time, the rest are parked.
type Session struct {
	Key                 string     `json:"key"`
	CashierID           string     `json:"cashier_id"`
	StoreID             string     `json:"store_id"`
	CustomerID          string     `json:"customer_id,omitempty"`
	Status              string     `json:"status"`
	Lines               []CartLine `json:"lines"`
	SubtotalCents       int64      `json:"subtotal_cents"`
	DiscountTotalCents  int64      `json:"discount_total_cents"`
	TaxTotalCents       int64      `json:"tax_total_cents"`
	TotalCents          int64      `json:"total_cents"`
	PaymentMethod       string     `json:"payment_method"`
	AmountReceivedCents int64      `json:"amount_received_cents"`
	Notes               string     `json:"notes,omitempty"`
	ParkedAt            *time.Time `json:"parked_at,omitempty"`
	CreatedAt           time.Time  `json:"created_at"`
	UpdatedAt           time.Time  `json:"updated_at"`
}

const MaxSessionsPerCashier = 5

const (
	SessionStatusActive    = "active"
	SessionStatusParked    = "parked"
	SessionStatusCompleted = "completed"
)

type SessionListResponse struct {
	Sessions  []Session `json:"sessions"`
	ActiveKey string    `json:"active_key,omitempty"`
}

type AddLineRequest struct {
	VariantID string `json:"variant_id"`
	Qty       int    `json:"qty"`
}

type UpdateLineRequest struct {
	VariantID string `json:"variant_id"`
	Qty       *int   `json:"qty,omitempty"`
	// DiscountCents applies to the whole line, not per unit.
	DiscountCents *int64 `json:"discount_cents,omitempty"`
}

type SessionUpdateRequest struct {
	CustomerID          *string `json:"customer_id,omitempty"`
	Notes               *string `json:"notes,omitempty"`
	PaymentMethod       *string `json:"payment_method,omitempty"`
	AmountReceivedCents *int64  `json:"amount_received_cents,omitempty"`
}

// PaymentSplit is one tender of a split payment. Reference carries the
// card/QR trace number for non-cash tenders.
type PaymentSplit struct {
	Method      string `json:"method"`
	AmountCents int64  `json:"amount_cents"`
	Reference   string `json:"reference,omitempty"`
}

// SaleItem is the immutable snapshot of a cart line at commit time.
type SaleItem struct {
	VariantID      string `json:"variant_id"`
	ProductName    string `json:"product_name"`
	Qty            int    `json:"qty"`
	UnitPriceCents int64  `json:"unit_price_cents"`
	DiscountCents  int64  `json:"discount_cents"`
	TaxCents       int64  `json:"tax_cents"`
	TotalCents     int64  `json:"total_cents"`
}

// Sale is the persisted result of a committed session. Only Status (and the
// void fields) may change after creation.
type Sale struct {
	ID                  string         `json:"id"`
	InvoiceNumber       string         `json:"invoice_number"`
	StoreID             string         `json:"store_id"`
	CashierID           string         `json:"cashier_id"`
	CustomerID          string         `json:"customer_id,omitempty"`
	IdempotencyKey      string         `json:"idempotency_key,omitempty"`
	SubtotalCents       int64          `json:"subtotal_cents"`
	DiscountTotalCents  int64          `json:"discount_total_cents"`
	TaxTotalCents       int64          `json:"tax_total_cents"`
	TotalCents          int64          `json:"total_cents"`
	PaymentMethod       string         `json:"payment_method"`
	PaymentStatus       string         `json:"payment_status"`
	AmountReceivedCents int64          `json:"amount_received_cents"`
	ChangeCents         int64          `json:"change_cents"`
	Status              string         `json:"status"`
	VoidReason          string         `json:"void_reason,omitempty"`
	VoidedAt            *time.Time     `json:"voided_at,omitempty"`
	LoyaltyPointsEarned int64          `json:"loyalty_points_earned,omitempty"`
	CreatedAt           time.Time      `json:"created_at"`
	Items               []SaleItem     `json:"items"`
	Splits              []PaymentSplit `json:"splits,omitempty"`
}

const (
	SaleStatusCompleted = "completed"
	SaleStatusVoided    = "voided"
)

const (
	PaymentStatusPaid   = "paid"
	PaymentStatusCredit = "credit"
)

type CommitRequest struct {
	SessionKey          string         `json:"session_key"`
	IdempotencyKey      string         `json:"idempotency_key,omitempty"`
	PaymentMethod       string         `json:"payment_method,omitempty"`
	AmountReceivedCents int64          `json:"amount_received_cents,omitempty"`
	Splits              []PaymentSplit `json:"splits,omitempty"`
}

type CommitResponse struct {
	Sale      Sale `json:"sale"`
	Duplicate bool `json:"duplicate"`
}

type VoidSaleRequest struct {
	SaleID string `json:"sale_id"`
	Reason string `json:"reason"`
}

// StockLevel is the authoritative on-hand quantity for (variant, store).
type StockLevel struct {
	VariantID      string    `json:"variant_id"`
	StoreID        string    `json:"store_id"`
	Quantity       int       `json:"quantity"`
	LastMovementAt time.Time `json:"last_movement_at"`
}

// InventoryMovement is the audit record emitted by every stock mutation.
type InventoryMovement struct {
	ID        string    `json:"id"`
	StoreID   string    `json:"store_id"`
	VariantID string    `json:"variant_id"`
	Kind      string    `json:"kind"`
	FromQty   int       `json:"from_qty"`
	ToQty     int       `json:"to_qty"`
	RefType   string    `json:"ref_type,omitempty"`
	RefID     string    `json:"ref_id,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

const (
	MovementKindSale        = "sale"
	MovementKindVoidRestock = "void_restock"
	MovementKindPurchase    = "purchase"
	MovementKindAdjustment  = "adjustment"
	MovementKindTransferIn  = "transfer_in"
	MovementKindTransferOut = "transfer_out"
)

type StockAdjustment struct {
	VariantID string `json:"variant_id"`
	Qty       int    `json:"qty"`
}

type StockIncreaseRequest struct {
	StoreID     string            `json:"store_id"`
	Kind        string            `json:"kind"`
	RefID       string            `json:"ref_id,omitempty"`
	Adjustments []StockAdjustment `json:"adjustments"`
}

type StockTransferRequest struct {
	FromStoreID string `json:"from_store_id"`
	ToStoreID   string `json:"to_store_id"`
	VariantID   string `json:"variant_id"`
	Qty         int    `json:"qty"`
}

// Customer carries the materialized loyalty point total; the authoritative
// history lives in loyalty_points. The receivable balance lives in the
// ledger entries themselves.
type Customer struct {
	ID            string    `json:"id"`
	Name          string    `json:"name"`
	Phone         string    `json:"phone,omitempty"`
	Tier          string    `json:"tier"`
	LoyaltyPoints int64     `json:"loyalty_points"`
	CreatedAt     time.Time `json:"created_at"`
}

type CustomerCreateRequest struct {
	Name  string `json:"name"`
	Phone string `json:"phone"`
	Tier  string `json:"tier"`
}

const (
	TierRegular = "regular"
	TierSilver  = "silver"
	TierGold    = "gold"
)

// CustomerLedgerEntry is an append-only receivable record. BalanceCents is
// the running balance computed at write time from the immediately preceding
// entry and is never recomputed.
type CustomerLedgerEntry struct {
	ID              string    `json:"id"`
	CustomerID      string    `json:"customer_id"`
	EntryType       string    `json:"entry_type"`
	DebitCents      int64     `json:"debit_cents"`
	CreditCents     int64     `json:"credit_cents"`
	BalanceCents    int64     `json:"balance_cents"`
	ReferenceType   string    `json:"reference_type,omitempty"`
	ReferenceID     string    `json:"reference_id,omitempty"`
	TransactionDate time.Time `json:"transaction_date"`
}

const (
	LedgerEntryCreditSale = "credit_sale"
	LedgerEntryPayment    = "payment"
	LedgerEntryVoid       = "void_reversal"
)

type CustomerPaymentRequest struct {
	CustomerID  string `json:"customer_id"`
	AmountCents int64  `json:"amount_cents"`
	Method      string `json:"method"`
	Reference   string `json:"reference,omitempty"`
}

// LoyaltyPoint is one append-only earn/redeem event.
type LoyaltyPoint struct {
	ID         string    `json:"id"`
	CustomerID string    `json:"customer_id"`
	Type       string    `json:"type"`
	Points     int64     `json:"points"`
	SaleID     string    `json:"sale_id,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

const (
	LoyaltyEarned   = "earned"
	LoyaltyRedeemed = "redeemed"
)

type LoyaltyRedeemRequest struct {
	CustomerID string `json:"customer_id"`
	Points     int64  `json:"points"`
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type LoginResponse struct {
	AccessToken string `json:"access_token"`
	Role        string `json:"role"`
	StoreID     string `json:"store_id"`
	ExpiresAt   string `json:"expires_at"`
}

// Actor identifies the authenticated cashier/admin for the current request.
type Actor struct {
	Username string
	Role     string
	StoreID  string
}

type AuditLog struct {
	ID            string    `json:"id"`
	StoreID       string    `json:"store_id"`
	ActorUsername string    `json:"actor_username"`
	ActorRole     string    `json:"actor_role"`
	Action        string    `json:"action"`
	EntityType    string    `json:"entity_type"`
	EntityID      string    `json:"entity_id"`
	Detail        string    `json:"detail"`
	CreatedAt     time.Time `json:"created_at"`
}

type CashierCreateRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type CashierUser struct {
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
	PaymentMethodCash    = "cash"
	PaymentMethodCard    = "card"
	PaymentMethodQRIS    = "qris"
	PaymentMethodEwallet = "ewallet"
	PaymentMethodCredit  = "credit"
	PaymentMethodSplit   = "split"
)
