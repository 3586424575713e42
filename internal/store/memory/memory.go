package memory

import (
	"context"
	"fmt"
	"log"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/bcrypt"

	"tokopos/internal/domain"
	"tokopos/internal/store"
	"tokopos/internal/xid"
)

// Store is the in-memory repository used for dev mode and tests. One mutex
// guards every mutation, which gives the same all-or-nothing and
// last-unit-wins guarantees the postgres store gets from transactions and
// conditional updates.
type Store struct {
	mu                sync.RWMutex
	variants          map[string]domain.Variant
	stock             map[string]map[string]domain.StockLevel
	movements         []domain.InventoryMovement
	sessionsByCashier map[string]map[string]domain.Session
	salesByID         map[string]*domain.Sale
	salesByIdem       map[string]*domain.Sale
	customersByID     map[string]domain.Customer
	ledgerByCustomer  map[string][]domain.CustomerLedgerEntry
	loyaltyByCustomer map[string][]domain.LoyaltyPoint
	invoiceSeq        map[string]int
	auditLogs         []domain.AuditLog
	usersByUsername   map[string]domain.UserAccount
}

func New() *Store {
	return &Store{
		variants:          make(map[string]domain.Variant),
		stock:             make(map[string]map[string]domain.StockLevel),
		sessionsByCashier: make(map[string]map[string]domain.Session),
		salesByID:         make(map[string]*domain.Sale),
		salesByIdem:       make(map[string]*domain.Sale),
		customersByID:     make(map[string]domain.Customer),
		ledgerByCustomer:  make(map[string][]domain.CustomerLedgerEntry),
		loyaltyByCustomer: make(map[string][]domain.LoyaltyPoint),
		invoiceSeq:        make(map[string]int),
		usersByUsername:   make(map[string]domain.UserAccount),
	}
}

// seedUsers builds the initial in-memory user accounts for dev/demo mode.
// Credentials are read from SEED_ADMIN_PASSWORD and SEED_CASHIER_PASSWORD;
// if unset, hardcoded dev defaults are used with a warning. These are never
// used in production (the backend uses PostgreSQL when DATABASE_URL is set).
func seedUsers() map[string]domain.UserAccount {
	adminPwd := envOr("SEED_ADMIN_PASSWORD", "admin123")
	cashierPwd := envOr("SEED_CASHIER_PASSWORD", "cashier123")
	if os.Getenv("SEED_ADMIN_PASSWORD") == "" || os.Getenv("SEED_CASHIER_PASSWORD") == "" {
		log.Println("[memory-store] WARNING: using default dev credentials. Set SEED_ADMIN_PASSWORD and SEED_CASHIER_PASSWORD to override.")
	}

	now := time.Now().UTC()
	users := map[string]domain.UserAccount{}
	for _, u := range []struct {
		username string
		password string
		role     string
	}{
		{"admin", adminPwd, "admin"},
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
	variants := []domain.Variant{
		{ID: "VAR-MIE-01", Name: "Mie Goreng Instan", Category: "grocery", PriceCents: 3500, TaxRatePercent: 11, Active: true},
		{ID: "VAR-TELUR-01", Name: "Telur 10 Butir", Category: "grocery", PriceCents: 26500, TaxRatePercent: 0, Active: true},
		{ID: "VAR-SUSU-01", Name: "Susu UHT 1L", Category: "dairy", PriceCents: 18900, TaxRatePercent: 11, Active: true},
		{ID: "VAR-ROTI-01", Name: "Roti Tawar", Category: "bakery", PriceCents: 17800, TaxRatePercent: 11, Active: true},
		{ID: "VAR-KOPI-01", Name: "Kopi Sachet", Category: "beverage", PriceCents: 2600, TaxRatePercent: 11, Active: true},
		{ID: "VAR-GULA-01", Name: "Gula 1kg", Category: "grocery", PriceCents: 17400, TaxRatePercent: 0, Active: true},
		{ID: "VAR-AIR-01", Name: "Air Mineral 600ml", Category: "beverage", PriceCents: 3900, TaxRatePercent: 11, Active: true},
		{ID: "VAR-SABUN-01", Name: "Sabun Mandi", Category: "household", PriceCents: 7400, TaxRatePercent: 11, Active: true},
	}

	s := New()
	now := time.Now().UTC()
	s.stock["main-store"] = make(map[string]domain.StockLevel)
	for _, v := range variants {
		s.variants[v.ID] = v
		s.stock["main-store"][v.ID] = domain.StockLevel{
			VariantID:      v.ID,
			StoreID:        "main-store",
			Quantity:       120,
			LastMovementAt: now,
		}
	}

	for _, c := range []domain.Customer{
		{ID: "CUST-BUDI", Name: "Budi Santoso", Phone: "0812000111", Tier: domain.TierRegular, CreatedAt: now},
		{ID: "CUST-SARI", Name: "Sari Dewi", Phone: "0812000222", Tier: domain.TierGold, CreatedAt: now},
	} {
		s.customersByID[c.ID] = c
	}

	s.usersByUsername = seedUsers()
	return s
}

func (s *Store) ListVariants(_ context.Context) ([]domain.Variant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	variants := make([]domain.Variant, 0, len(s.variants))
	for _, v := range s.variants {
		if v.Active {
			variants = append(variants, v)
		}
	}
	sort.Slice(variants, func(i, j int) bool {
		if variants[i].Category == variants[j].Category {
			return variants[i].Name < variants[j].Name
		}
		return variants[i].Category < variants[j].Category
	})
	return variants, nil
}

func (s *Store) CreateVariant(_ context.Context, variant domain.Variant) (*domain.Variant, error) {
	if variant.ID == "" || variant.Name == "" || variant.PriceCents < 1 {
		return nil, store.ErrInvalidInput
	}
	if variant.TaxRatePercent < 0 || variant.TaxRatePercent > 100 {
		return nil, store.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.variants[variant.ID]; exists {
		return nil, store.ErrInvalidInput
	}
	variant.Active = true
	s.variants[variant.ID] = variant
	created := variant
	return &created, nil
}

func (s *Store) GetVariantByID(_ context.Context, variantID string) (*domain.Variant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	variant, ok := s.variants[variantID]
	if !ok {
		return nil, store.ErrNotFound
	}
	found := variant
	return &found, nil
}

func (s *Store) GetVariantsByIDs(_ context.Context, variantIDs []string) (map[string]domain.Variant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make(map[string]domain.Variant, len(variantIDs))
	for _, id := range variantIDs {
		if variant, ok := s.variants[id]; ok && variant.Active {
			result[id] = variant
		}
	}
	return result, nil
}

func (s *Store) UpdateVariant(_ context.Context, variant domain.Variant) (*domain.Variant, error) {
	if variant.ID == "" || variant.Name == "" || variant.PriceCents < 1 {
		return nil, store.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.variants[variant.ID]; !ok {
		return nil, store.ErrNotFound
	}
	s.variants[variant.ID] = variant
	updated := variant
	return &updated, nil
}

func (s *Store) GetStockLevels(_ context.Context, storeID string, variantIDs []string) (map[string]domain.StockLevel, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make(map[string]domain.StockLevel, len(variantIDs))
	levels := s.stock[storeID]
	for _, id := range variantIDs {
		if level, ok := levels[id]; ok {
			result[id] = level
		} else {
			result[id] = domain.StockLevel{VariantID: id, StoreID: storeID}
		}
	}
	return result, nil
}

func (s *Store) IncreaseStock(_ context.Context, storeID string, adjustments []domain.StockAdjustment, kind string, refID string) error {
	if storeID == "" {
		return store.ErrInvalidInput
	}
	if kind == "" {
		kind = domain.MovementKindAdjustment
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	if s.stock[storeID] == nil {
		s.stock[storeID] = make(map[string]domain.StockLevel)
	}
	for _, adj := range adjustments {
		if adj.Qty < 1 {
			continue
		}
		level := s.stock[storeID][adj.VariantID]
		from := level.Quantity
		level.VariantID = adj.VariantID
		level.StoreID = storeID
		level.Quantity += adj.Qty
		level.LastMovementAt = now
		s.stock[storeID][adj.VariantID] = level
		s.movements = append(s.movements, domain.InventoryMovement{
			ID:        xid.New("mov"),
			StoreID:   storeID,
			VariantID: adj.VariantID,
			Kind:      kind,
			FromQty:   from,
			ToQty:     level.Quantity,
			RefID:     refID,
			CreatedAt: now,
		})
	}
	return nil
}

func (s *Store) TransferStock(_ context.Context, fromStoreID string, toStoreID string, variantID string, qty int) error {
	if fromStoreID == "" || toStoreID == "" || fromStoreID == toStoreID || variantID == "" || qty < 1 {
		return store.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	fromLevel := s.stock[fromStoreID][variantID]
	if fromLevel.Quantity < qty {
		return &store.StockError{VariantID: variantID, Requested: qty, Available: fromLevel.Quantity}
	}

	fromBefore := fromLevel.Quantity
	fromLevel.Quantity -= qty
	fromLevel.LastMovementAt = now
	s.stock[fromStoreID][variantID] = fromLevel

	if s.stock[toStoreID] == nil {
		s.stock[toStoreID] = make(map[string]domain.StockLevel)
	}
	toLevel := s.stock[toStoreID][variantID]
	toBefore := toLevel.Quantity
	toLevel.VariantID = variantID
	toLevel.StoreID = toStoreID
	toLevel.Quantity += qty
	toLevel.LastMovementAt = now
	s.stock[toStoreID][variantID] = toLevel

	transferID := xid.New("xfer")
	s.movements = append(s.movements,
		domain.InventoryMovement{
			ID: xid.New("mov"), StoreID: fromStoreID, VariantID: variantID,
			Kind: domain.MovementKindTransferOut, FromQty: fromBefore, ToQty: fromLevel.Quantity,
			RefType: "transfer", RefID: transferID, CreatedAt: now,
		},
		domain.InventoryMovement{
			ID: xid.New("mov"), StoreID: toStoreID, VariantID: variantID,
			Kind: domain.MovementKindTransferIn, FromQty: toBefore, ToQty: toLevel.Quantity,
			RefType: "transfer", RefID: transferID, CreatedAt: now,
		},
	)
	return nil
}

func (s *Store) ListInventoryMovements(_ context.Context, storeID string, variantID string, limit int) ([]domain.InventoryMovement, error) {
	if limit < 1 {
		limit = 100
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.InventoryMovement, 0, limit)
	for i := len(s.movements) - 1; i >= 0 && len(result) < limit; i-- {
		m := s.movements[i]
		if storeID != "" && m.StoreID != storeID {
			continue
		}
		if variantID != "" && m.VariantID != variantID {
			continue
		}
		result = append(result, m)
	}
	return result, nil
}

func (s *Store) SaveSession(_ context.Context, session domain.Session) error {
	if session.Key == "" || session.CashierID == "" {
		return store.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.sessionsByCashier[session.CashierID] == nil {
		s.sessionsByCashier[session.CashierID] = make(map[string]domain.Session)
	}
	session.Lines = cloneLines(session.Lines)
	s.sessionsByCashier[session.CashierID][session.Key] = session
	return nil
}

func (s *Store) GetSession(_ context.Context, cashierID string, key string) (*domain.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	session, ok := s.sessionsByCashier[cashierID][key]
	if !ok {
		return nil, store.ErrNotFound
	}
	found := session
	found.Lines = cloneLines(session.Lines)
	return &found, nil
}

func (s *Store) ListSessions(_ context.Context, cashierID string) ([]domain.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sessions := make([]domain.Session, 0, len(s.sessionsByCashier[cashierID]))
	for _, session := range s.sessionsByCashier[cashierID] {
		session.Lines = cloneLines(session.Lines)
		sessions = append(sessions, session)
	}
	sort.Slice(sessions, func(i, j int) bool {
		return sessions[i].CreatedAt.Before(sessions[j].CreatedAt)
	})
	return sessions, nil
}

func (s *Store) DeleteSession(_ context.Context, cashierID string, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sessionsByCashier[cashierID][key]; !ok {
		return store.ErrNotFound
	}
	delete(s.sessionsByCashier[cashierID], key)
	return nil
}

// CommitSale applies the whole commit under one lock hold. All stock checks
// run before any mutation so a failure leaves nothing half-applied.
func (s *Store) CommitSale(_ context.Context, sale domain.Sale) (*domain.Sale, error) {
	if len(sale.Items) == 0 {
		return nil, store.ErrEmptyCart
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if sale.IdempotencyKey != "" {
		if existing, ok := s.salesByIdem[sale.IdempotencyKey]; ok {
			found := *existing
			return &found, nil
		}
	}

	var customer domain.Customer
	if sale.CustomerID != "" {
		var ok bool
		customer, ok = s.customersByID[sale.CustomerID]
		if !ok {
			return nil, fmt.Errorf("customer %s: %w", sale.CustomerID, store.ErrNotFound)
		}
	}

	levels := s.stock[sale.StoreID]
	for _, item := range sale.Items {
		if item.Qty < 1 {
			return nil, store.ErrInvalidInput
		}
		level := levels[item.VariantID]
		if level.Quantity < item.Qty {
			return nil, &store.StockError{VariantID: item.VariantID, Requested: item.Qty, Available: level.Quantity}
		}
	}

	now := time.Now().UTC()
	if sale.ID == "" {
		sale.ID = xid.New("sale")
	}
	if sale.CreatedAt.IsZero() {
		sale.CreatedAt = now
	}
	if sale.Status == "" {
		sale.Status = domain.SaleStatusCompleted
	}
	sale.InvoiceNumber = s.nextInvoiceLocked(sale.StoreID, now)

	for _, item := range sale.Items {
		level := levels[item.VariantID]
		from := level.Quantity
		level.Quantity -= item.Qty
		level.LastMovementAt = now
		levels[item.VariantID] = level
		s.movements = append(s.movements, domain.InventoryMovement{
			ID:        xid.New("mov"),
			StoreID:   sale.StoreID,
			VariantID: item.VariantID,
			Kind:      domain.MovementKindSale,
			FromQty:   from,
			ToQty:     level.Quantity,
			RefType:   "sale",
			RefID:     sale.ID,
			CreatedAt: now,
		})
	}

	if sale.CustomerID != "" && sale.PaymentStatus == domain.PaymentStatusCredit {
		prior := s.lastBalanceLocked(sale.CustomerID)
		s.ledgerByCustomer[sale.CustomerID] = append(s.ledgerByCustomer[sale.CustomerID], domain.CustomerLedgerEntry{
			ID:              xid.New("ldg"),
			CustomerID:      sale.CustomerID,
			EntryType:       domain.LedgerEntryCreditSale,
			DebitCents:      sale.TotalCents,
			BalanceCents:    prior + sale.TotalCents,
			ReferenceType:   "sale",
			ReferenceID:     sale.ID,
			TransactionDate: now,
		})
	}

	if sale.CustomerID != "" && sale.LoyaltyPointsEarned > 0 {
		s.loyaltyByCustomer[sale.CustomerID] = append(s.loyaltyByCustomer[sale.CustomerID], domain.LoyaltyPoint{
			ID:         xid.New("loy"),
			CustomerID: sale.CustomerID,
			Type:       domain.LoyaltyEarned,
			Points:     sale.LoyaltyPointsEarned,
			SaleID:     sale.ID,
			CreatedAt:  now,
		})
		customer.LoyaltyPoints += sale.LoyaltyPointsEarned
		s.customersByID[sale.CustomerID] = customer
	}

	stored := sale
	s.salesByID[sale.ID] = &stored
	if sale.IdempotencyKey != "" {
		s.salesByIdem[sale.IdempotencyKey] = &stored
	}

	result := stored
	return &result, nil
}

func (s *Store) nextInvoiceLocked(storeID string, at time.Time) string {
	day := at.Format("20060102")
	counterKey := storeID + ":" + day
	s.invoiceSeq[counterKey]++
	return fmt.Sprintf("INV-%s-%s-%04d", strings.ToUpper(storeID), day, s.invoiceSeq[counterKey])
}

func (s *Store) lastBalanceLocked(customerID string) int64 {
	entries := s.ledgerByCustomer[customerID]
	if len(entries) == 0 {
		return 0
	}
	return entries[len(entries)-1].BalanceCents
}

func (s *Store) FindSaleByID(_ context.Context, saleID string) (*domain.Sale, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sale, ok := s.salesByID[saleID]
	if !ok {
		return nil, store.ErrNotFound
	}
	found := *sale
	return &found, nil
}

func (s *Store) FindSaleByIdempotency(_ context.Context, key string) (*domain.Sale, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sale, ok := s.salesByIdem[key]
	if !ok {
		return nil, store.ErrNotFound
	}
	found := *sale
	return &found, nil
}

func (s *Store) VoidSale(_ context.Context, saleID string, reason string, at time.Time) (*domain.Sale, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sale, ok := s.salesByID[saleID]
	if !ok {
		return nil, store.ErrNotFound
	}
	if sale.Status != domain.SaleStatusCompleted {
		return nil, store.ErrInvalidInput
	}

	if s.stock[sale.StoreID] == nil {
		s.stock[sale.StoreID] = make(map[string]domain.StockLevel)
	}
	for _, item := range sale.Items {
		level := s.stock[sale.StoreID][item.VariantID]
		from := level.Quantity
		level.VariantID = item.VariantID
		level.StoreID = sale.StoreID
		level.Quantity += item.Qty
		level.LastMovementAt = at
		s.stock[sale.StoreID][item.VariantID] = level
		s.movements = append(s.movements, domain.InventoryMovement{
			ID:        xid.New("mov"),
			StoreID:   sale.StoreID,
			VariantID: item.VariantID,
			Kind:      domain.MovementKindVoidRestock,
			FromQty:   from,
			ToQty:     level.Quantity,
			RefType:   "sale",
			RefID:     sale.ID,
			CreatedAt: at,
		})
	}

	if sale.CustomerID != "" && sale.PaymentStatus == domain.PaymentStatusCredit {
		prior := s.lastBalanceLocked(sale.CustomerID)
		s.ledgerByCustomer[sale.CustomerID] = append(s.ledgerByCustomer[sale.CustomerID], domain.CustomerLedgerEntry{
			ID:              xid.New("ldg"),
			CustomerID:      sale.CustomerID,
			EntryType:       domain.LedgerEntryVoid,
			CreditCents:     sale.TotalCents,
			BalanceCents:    prior - sale.TotalCents,
			ReferenceType:   "sale_void",
			ReferenceID:     sale.ID,
			TransactionDate: at,
		})
	}

	if sale.CustomerID != "" && sale.LoyaltyPointsEarned > 0 {
		customer, ok := s.customersByID[sale.CustomerID]
		if ok {
			s.loyaltyByCustomer[sale.CustomerID] = append(s.loyaltyByCustomer[sale.CustomerID], domain.LoyaltyPoint{
				ID:         xid.New("loy"),
				CustomerID: sale.CustomerID,
				Type:       domain.LoyaltyRedeemed,
				Points:     sale.LoyaltyPointsEarned,
				SaleID:     sale.ID,
				CreatedAt:  at,
			})
			customer.LoyaltyPoints -= sale.LoyaltyPointsEarned
			if customer.LoyaltyPoints < 0 {
				customer.LoyaltyPoints = 0
			}
			s.customersByID[sale.CustomerID] = customer
		}
	}

	sale.Status = domain.SaleStatusVoided
	sale.VoidReason = reason
	voidedAt := at
	sale.VoidedAt = &voidedAt

	result := *sale
	return &result, nil
}

func (s *Store) CreateCustomer(_ context.Context, customer domain.Customer) (*domain.Customer, error) {
	if customer.ID == "" || customer.Name == "" {
		return nil, store.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.customersByID[customer.ID]; exists {
		return nil, store.ErrInvalidInput
	}
	s.customersByID[customer.ID] = customer
	created := customer
	return &created, nil
}

func (s *Store) GetCustomerByID(_ context.Context, customerID string) (*domain.Customer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	customer, ok := s.customersByID[customerID]
	if !ok {
		return nil, store.ErrNotFound
	}
	found := customer
	return &found, nil
}

func (s *Store) ListCustomers(_ context.Context, limit int) ([]domain.Customer, error) {
	if limit < 1 {
		limit = 100
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	customers := make([]domain.Customer, 0, len(s.customersByID))
	for _, c := range s.customersByID {
		customers = append(customers, c)
	}
	sort.Slice(customers, func(i, j int) bool { return customers[i].Name < customers[j].Name })
	if len(customers) > limit {
		customers = customers[:limit]
	}
	return customers, nil
}

func (s *Store) AppendLedgerEntry(_ context.Context, entry domain.CustomerLedgerEntry) (*domain.CustomerLedgerEntry, error) {
	if entry.CustomerID == "" {
		return nil, store.ErrInvalidInput
	}
	if entry.DebitCents < 0 || entry.CreditCents < 0 || (entry.DebitCents == 0 && entry.CreditCents == 0) {
		return nil, store.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.customersByID[entry.CustomerID]; !ok {
		return nil, store.ErrNotFound
	}

	if entry.ID == "" {
		entry.ID = xid.New("ldg")
	}
	if entry.TransactionDate.IsZero() {
		entry.TransactionDate = time.Now().UTC()
	}
	entry.BalanceCents = s.lastBalanceLocked(entry.CustomerID) + entry.DebitCents - entry.CreditCents
	s.ledgerByCustomer[entry.CustomerID] = append(s.ledgerByCustomer[entry.CustomerID], entry)
	created := entry
	return &created, nil
}

func (s *Store) ListLedgerEntries(_ context.Context, customerID string, limit int) ([]domain.CustomerLedgerEntry, error) {
	if limit < 1 {
		limit = 100
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	entries := s.ledgerByCustomer[customerID]
	start := 0
	if len(entries) > limit {
		start = len(entries) - limit
	}
	result := make([]domain.CustomerLedgerEntry, len(entries)-start)
	copy(result, entries[start:])
	return result, nil
}

func (s *Store) RedeemLoyaltyPoints(_ context.Context, customerID string, points int64) (*domain.LoyaltyPoint, error) {
	if customerID == "" || points < 1 {
		return nil, store.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	customer, ok := s.customersByID[customerID]
	if !ok {
		return nil, store.ErrNotFound
	}
	if customer.LoyaltyPoints < points {
		return nil, store.ErrInsufficientPoints
	}

	entry := domain.LoyaltyPoint{
		ID:         xid.New("loy"),
		CustomerID: customerID,
		Type:       domain.LoyaltyRedeemed,
		Points:     points,
		CreatedAt:  time.Now().UTC(),
	}
	s.loyaltyByCustomer[customerID] = append(s.loyaltyByCustomer[customerID], entry)
	customer.LoyaltyPoints -= points
	s.customersByID[customerID] = customer

	created := entry
	return &created, nil
}

func (s *Store) ListLoyaltyPoints(_ context.Context, customerID string, limit int) ([]domain.LoyaltyPoint, error) {
	if limit < 1 {
		limit = 100
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	entries := s.loyaltyByCustomer[customerID]
	start := 0
	if len(entries) > limit {
		start = len(entries) - limit
	}
	result := make([]domain.LoyaltyPoint, len(entries)-start)
	copy(result, entries[start:])
	return result, nil
}

func (s *Store) CreateAuditLog(_ context.Context, entry domain.AuditLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if entry.ID == "" {
		entry.ID = xid.New("audit")
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	s.auditLogs = append(s.auditLogs, entry)
	return nil
}

func (s *Store) ListAuditLogs(_ context.Context, storeID string, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error) {
	if limit < 1 {
		limit = 100
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.AuditLog, 0, limit)
	for i := len(s.auditLogs) - 1; i >= 0 && len(result) < limit; i-- {
		entry := s.auditLogs[i]
		if storeID != "" && entry.StoreID != storeID {
			continue
		}
		if entry.CreatedAt.Before(from) || !entry.CreatedAt.Before(to) {
			continue
		}
		result = append(result, entry)
	}
	return result, nil
}

func (s *Store) CreateUser(_ context.Context, user domain.UserAccount) error {
	username := strings.ToLower(strings.TrimSpace(user.Username))
	if username == "" || user.Password == "" {
		return store.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.usersByUsername[username]; exists {
		return store.ErrInvalidInput
	}
	user.Username = username
	s.usersByUsername[username] = user
	return nil
}

func (s *Store) ListUsers(_ context.Context) ([]domain.UserAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	users := make([]domain.UserAccount, 0, len(s.usersByUsername))
	for _, user := range s.usersByUsername {
		users = append(users, user)
	}
	sort.Slice(users, func(i, j int) bool { return users[i].Username < users[j].Username })
	return users, nil
}

func (s *Store) UpdateUserPassword(_ context.Context, username string, password string) error {
	username = strings.ToLower(strings.TrimSpace(username))
	if username == "" || strings.TrimSpace(password) == "" {
		return store.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	user, ok := s.usersByUsername[username]
	if !ok {
		return store.ErrNotFound
	}
	user.Password = password
	s.usersByUsername[username] = user
	return nil
}

func cloneLines(lines []domain.CartLine) []domain.CartLine {
	if lines == nil {
		return nil
	}
	cloned := make([]domain.CartLine, len(lines))
	copy(cloned, lines)
	return cloned
}
