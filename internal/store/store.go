package store

import (
	"context"
	"errors"
	"time"

	"tokopos/internal/domain"
)

var (
	ErrNotFound             = errors.New("not found")
	ErrInsufficientStock    = errors.New("insufficient stock")
	ErrSessionLimitExceeded = errors.New("session limit exceeded")
	ErrCartNotEmpty         = errors.New("cart not empty")
	ErrEmptyCart            = errors.New("empty cart")
	ErrInsufficientPayment  = errors.New("insufficient payment")
	ErrSplitMismatch        = errors.New("split payment mismatch")
	ErrInsufficientPoints   = errors.New("insufficient loyalty points")
	ErrInvalidInput         = errors.New("invalid input")
)

// StockError wraps ErrInsufficientStock with the offending variant so the
// UI can point the cashier at the line to fix.
type StockError struct {
	VariantID string
	Requested int
	Available int
}

func (e *StockError) Error() string {
	return "insufficient stock for variant " + e.VariantID
}

func (e *StockError) Unwrap() error {
	return ErrInsufficientStock
}

type Repository interface {
	// Catalog.
	ListVariants(ctx context.Context) ([]domain.Variant, error)
	CreateVariant(ctx context.Context, variant domain.Variant) (*domain.Variant, error)
	GetVariantByID(ctx context.Context, variantID string) (*domain.Variant, error)
	GetVariantsByIDs(ctx context.Context, variantIDs []string) (map[string]domain.Variant, error)
	UpdateVariant(ctx context.Context, variant domain.Variant) (*domain.Variant, error)

	// Stock ledger.
	GetStockLevels(ctx context.Context, storeID string, variantIDs []string) (map[string]domain.StockLevel, error)
	IncreaseStock(ctx context.Context, storeID string, adjustments []domain.StockAdjustment, kind string, refID string) error
	TransferStock(ctx context.Context, fromStoreID string, toStoreID string, variantID string, qty int) error
	ListInventoryMovements(ctx context.Context, storeID string, variantID string, limit int) ([]domain.InventoryMovement, error)

	// Sessions. SaveSession upserts by (cashier, key); write-through on
	// every cart mutation.
	SaveSession(ctx context.Context, session domain.Session) error
	GetSession(ctx context.Context, cashierID string, key string) (*domain.Session, error)
	ListSessions(ctx context.Context, cashierID string) ([]domain.Session, error)
	DeleteSession(ctx context.Context, cashierID string, key string) error

	// Sales. CommitSale runs the whole commit as one transaction: stock
	// decrements, sale header + items + splits, ledger debit for credit
	// sales, loyalty award. Any failure rolls everything back.
	CommitSale(ctx context.Context, sale domain.Sale) (*domain.Sale, error)
	FindSaleByID(ctx context.Context, saleID string) (*domain.Sale, error)
	FindSaleByIdempotency(ctx context.Context, key string) (*domain.Sale, error)
	VoidSale(ctx context.Context, saleID string, reason string, at time.Time) (*domain.Sale, error)

	// Customers, ledger, loyalty.
	CreateCustomer(ctx context.Context, customer domain.Customer) (*domain.Customer, error)
	GetCustomerByID(ctx context.Context, customerID string) (*domain.Customer, error)
	ListCustomers(ctx context.Context, limit int) ([]domain.Customer, error)
	AppendLedgerEntry(ctx context.Context, entry domain.CustomerLedgerEntry) (*domain.CustomerLedgerEntry, error)
	ListLedgerEntries(ctx context.Context, customerID string, limit int) ([]domain.CustomerLedgerEntry, error)
	RedeemLoyaltyPoints(ctx context.Context, customerID string, points int64) (*domain.LoyaltyPoint, error)
	ListLoyaltyPoints(ctx context.Context, customerID string, limit int) ([]domain.LoyaltyPoint, error)

	// Ambient.
	CreateAuditLog(ctx context.Context, entry domain.AuditLog) error
	ListAuditLogs(ctx context.Context, storeID string, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error)
	CreateUser(ctx context.Context, user domain.UserAccount) error
	ListUsers(ctx context.Context) ([]domain.UserAccount, error)
	UpdateUserPassword(ctx context.Context, username string, password string) error
}
