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

	"tokopos/internal/domain"
	"tokopos/internal/store"
	"tokopos/internal/xid"
)

type Store struct {
	db *sql.DB
}

func New(ctx context.Context, databaseURL string) (*Store, error) {
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

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) ListVariants(ctx context.Context) ([]domain.Variant, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, category, price_cents, tax_rate_percent, active
		FROM variants
		WHERE active = true
		ORDER BY category, name
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	variants := make([]domain.Variant, 0, 128)
	for rows.Next() {
		var v domain.Variant
		if err := rows.Scan(&v.ID, &v.Name, &v.Category, &v.PriceCents, &v.TaxRatePercent, &v.Active); err != nil {
			return nil, err
		}
		variants = append(variants, v)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return variants, nil
}

func (s *Store) CreateVariant(ctx context.Context, variant domain.Variant) (*domain.Variant, error) {
	if variant.ID == "" || variant.Name == "" || variant.PriceCents < 1 {
		return nil, store.ErrInvalidInput
	}
	if variant.TaxRatePercent < 0 || variant.TaxRatePercent > 100 {
		return nil, store.ErrInvalidInput
	}

	variant.Active = true
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO variants (id, name, category, price_cents, tax_rate_percent, active, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,now(),now())
	`, variant.ID, variant.Name, variant.Category, variant.PriceCents, variant.TaxRatePercent, variant.Active)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrInvalidInput
		}
		return nil, err
	}

	created := variant
	return &created, nil
}

func (s *Store) GetVariantByID(ctx context.Context, variantID string) (*domain.Variant, error) {
	var variant domain.Variant
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, category, price_cents, tax_rate_percent, active
		FROM variants
		WHERE id = $1
	`, variantID).Scan(&variant.ID, &variant.Name, &variant.Category, &variant.PriceCents, &variant.TaxRatePercent, &variant.Active)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &variant, nil
}

func (s *Store) GetVariantsByIDs(ctx context.Context, variantIDs []string) (map[string]domain.Variant, error) {
	result := make(map[string]domain.Variant, len(variantIDs))
	if len(variantIDs) == 0 {
		return result, nil
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, category, price_cents, tax_rate_percent, active
		FROM variants
		WHERE active = true AND id = ANY($1)
	`, variantIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var v domain.Variant
		if err := rows.Scan(&v.ID, &v.Name, &v.Category, &v.PriceCents, &v.TaxRatePercent, &v.Active); err != nil {
			return nil, err
		}
		result[v.ID] = v
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}

func (s *Store) UpdateVariant(ctx context.Context, variant domain.Variant) (*domain.Variant, error) {
	if variant.ID == "" || variant.Name == "" || variant.PriceCents < 1 {
		return nil, store.ErrInvalidInput
	}
	if variant.TaxRatePercent < 0 || variant.TaxRatePercent > 100 {
		return nil, store.ErrInvalidInput
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE variants
		SET name = $2, category = $3, price_cents = $4, tax_rate_percent = $5, active = $6, updated_at = now()
		WHERE id = $1
	`, variant.ID, variant.Name, variant.Category, variant.PriceCents, variant.TaxRatePercent, variant.Active)
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

	updated := variant
	return &updated, nil
}

func (s *Store) GetStockLevels(ctx context.Context, storeID string, variantIDs []string) (map[string]domain.StockLevel, error) {
	result := make(map[string]domain.StockLevel, len(variantIDs))
	if len(variantIDs) == 0 {
		return result, nil
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT variant_id, quantity, last_movement_at
		FROM stock_levels
		WHERE store_id = $1 AND variant_id = ANY($2)
	`, storeID, variantIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var level domain.StockLevel
		if err := rows.Scan(&level.VariantID, &level.Quantity, &level.LastMovementAt); err != nil {
			return nil, err
		}
		level.StoreID = storeID
		level.LastMovementAt = level.LastMovementAt.UTC()
		result[level.VariantID] = level
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for _, id := range variantIDs {
		if _, ok := result[id]; !ok {
			result[id] = domain.StockLevel{VariantID: id, StoreID: storeID}
		}
	}

	return result, nil
}

func (s *Store) IncreaseStock(ctx context.Context, storeID string, adjustments []domain.StockAdjustment, kind string, refID string) error {
	if storeID == "" {
		return store.ErrInvalidInput
	}
	if len(adjustments) == 0 {
		return nil
	}
	if kind == "" {
		kind = domain.MovementKindAdjustment
	}

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	now := time.Now().UTC()
	for _, adj := range adjustments {
		if adj.Qty < 1 {
			continue
		}
		var toQty int
		err := tx.QueryRowContext(ctx, `
			INSERT INTO stock_levels (store_id, variant_id, quantity, last_movement_at)
			VALUES ($1,$2,$3,$4)
			ON CONFLICT (store_id, variant_id)
			DO UPDATE SET quantity = stock_levels.quantity + EXCLUDED.quantity, last_movement_at = EXCLUDED.last_movement_at
			RETURNING quantity
		`, storeID, adj.VariantID, adj.Qty, now).Scan(&toQty)
		if err != nil {
			return err
		}
		if err := insertMovement(ctx, tx, domain.InventoryMovement{
			StoreID:   storeID,
			VariantID: adj.VariantID,
			Kind:      kind,
			FromQty:   toQty - adj.Qty,
			ToQty:     toQty,
			RefID:     refID,
			CreatedAt: now,
		}); err != nil {
			return err
		}
	}

	return tx.Commit()
}

func (s *Store) TransferStock(ctx context.Context, fromStoreID string, toStoreID string, variantID string, qty int) error {
	if fromStoreID == "" || toStoreID == "" || fromStoreID == toStoreID || variantID == "" || qty < 1 {
		return store.ErrInvalidInput
	}

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	now := time.Now().UTC()
	fromQty, err := decrementStock(ctx, tx, fromStoreID, variantID, qty, now)
	if err != nil {
		return err
	}

	var toQty int
	err = tx.QueryRowContext(ctx, `
		INSERT INTO stock_levels (store_id, variant_id, quantity, last_movement_at)
		VALUES ($1,$2,$3,$4)
		ON CONFLICT (store_id, variant_id)
		DO UPDATE SET quantity = stock_levels.quantity + EXCLUDED.quantity, last_movement_at = EXCLUDED.last_movement_at
		RETURNING quantity
	`, toStoreID, variantID, qty, now).Scan(&toQty)
	if err != nil {
		return err
	}

	transferID := xid.New("xfer")
	if err := insertMovement(ctx, tx, domain.InventoryMovement{
		StoreID: fromStoreID, VariantID: variantID, Kind: domain.MovementKindTransferOut,
		FromQty: fromQty + qty, ToQty: fromQty, RefType: "transfer", RefID: transferID, CreatedAt: now,
	}); err != nil {
		return err
	}
	if err := insertMovement(ctx, tx, domain.InventoryMovement{
		StoreID: toStoreID, VariantID: variantID, Kind: domain.MovementKindTransferIn,
		FromQty: toQty - qty, ToQty: toQty, RefType: "transfer", RefID: transferID, CreatedAt: now,
	}); err != nil {
		return err
	}

	return tx.Commit()
}

func (s *Store) ListInventoryMovements(ctx context.Context, storeID string, variantID string, limit int) ([]domain.InventoryMovement, error) {
	if limit < 1 {
		limit = 100
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, store_id, variant_id, kind, from_qty, to_qty, COALESCE(ref_type,''), COALESCE(ref_id,''), created_at
		FROM inventory_movements
		WHERE ($1 = '' OR store_id = $1)
			AND ($2 = '' OR variant_id = $2)
		ORDER BY created_at DESC
		LIMIT $3
	`, storeID, variantID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	movements := make([]domain.InventoryMovement, 0, limit)
	for rows.Next() {
		var m domain.InventoryMovement
		if err := rows.Scan(&m.ID, &m.StoreID, &m.VariantID, &m.Kind, &m.FromQty, &m.ToQty, &m.RefType, &m.RefID, &m.CreatedAt); err != nil {
			return nil, err
		}
		m.CreatedAt = m.CreatedAt.UTC()
		movements = append(movements, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return movements, nil
}

func (s *Store) SaveSession(ctx context.Context, session domain.Session) error {
	if session.Key == "" || session.CashierID == "" {
		return store.ErrInvalidInput
	}

	linesJSON, err := json.Marshal(session.Lines)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO cart_sessions (
			cashier_id, session_key, store_id, customer_id, status, lines,
			subtotal_cents, discount_total_cents, tax_total_cents, total_cents,
			payment_method, amount_received_cents, notes, parked_at, created_at, updated_at
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16)
		ON CONFLICT (cashier_id, session_key)
		DO UPDATE SET
			customer_id = EXCLUDED.customer_id,
			status = EXCLUDED.status,
			lines = EXCLUDED.lines,
			subtotal_cents = EXCLUDED.subtotal_cents,
			discount_total_cents = EXCLUDED.discount_total_cents,
			tax_total_cents = EXCLUDED.tax_total_cents,
			total_cents = EXCLUDED.total_cents,
			payment_method = EXCLUDED.payment_method,
			amount_received_cents = EXCLUDED.amount_received_cents,
			notes = EXCLUDED.notes,
			parked_at = EXCLUDED.parked_at,
			updated_at = EXCLUDED.updated_at
	`, session.CashierID, session.Key, session.StoreID, nullIfEmpty(session.CustomerID), session.Status, linesJSON,
		session.SubtotalCents, session.DiscountTotalCents, session.TaxTotalCents, session.TotalCents,
		session.PaymentMethod, session.AmountReceivedCents, session.Notes, nullTime(session.ParkedAt),
		session.CreatedAt, session.UpdatedAt)
	return err
}

func (s *Store) GetSession(ctx context.Context, cashierID string, key string) (*domain.Session, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT cashier_id, session_key, store_id, customer_id, status, lines,
			subtotal_cents, discount_total_cents, tax_total_cents, total_cents,
			payment_method, amount_received_cents, notes, parked_at, created_at, updated_at
		FROM cart_sessions
		WHERE cashier_id = $1 AND session_key = $2
	`, cashierID, key)

	session, err := scanSession(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return session, nil
}

func (s *Store) ListSessions(ctx context.Context, cashierID string) ([]domain.Session, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT cashier_id, session_key, store_id, customer_id, status, lines,
			subtotal_cents, discount_total_cents, tax_total_cents, total_cents,
			payment_method, amount_received_cents, notes, parked_at, created_at, updated_at
		FROM cart_sessions
		WHERE cashier_id = $1
		ORDER BY created_at ASC
	`, cashierID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	sessions := make([]domain.Session, 0, domain.MaxSessionsPerCashier)
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

func (s *Store) DeleteSession(ctx context.Context, cashierID string, key string) error {
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM cart_sessions
		WHERE cashier_id = $1 AND session_key = $2
	`, cashierID, key)
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

type sessionScanner interface {
	Scan(dest ...any) error
}

func scanSession(row sessionScanner) (*domain.Session, error) {
	var session domain.Session
	var customerID sql.NullString
	var linesRaw []byte
	var parkedAt sql.NullTime
	err := row.Scan(
		&session.CashierID,
		&session.Key,
		&session.StoreID,
		&customerID,
		&session.Status,
		&linesRaw,
		&session.SubtotalCents,
		&session.DiscountTotalCents,
		&session.TaxTotalCents,
		&session.TotalCents,
		&session.PaymentMethod,
		&session.AmountReceivedCents,
		&session.Notes,
		&parkedAt,
		&session.CreatedAt,
		&session.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if customerID.Valid {
		session.CustomerID = customerID.String
	}
	if parkedAt.Valid {
		at := parkedAt.Time.UTC()
		session.ParkedAt = &at
	}
	if len(linesRaw) > 0 {
		if err := json.Unmarshal(linesRaw, &session.Lines); err != nil {
			return nil, err
		}
	}
	session.CreatedAt = session.CreatedAt.UTC()
	session.UpdatedAt = session.UpdatedAt.UTC()
	return &session, nil
}

// CommitSale persists one completed sale as a single serializable
// transaction. Stock rows are decremented with a quantity guard instead of a
// read-then-write, so two cashiers racing for the last unit cannot both win.
func (s *Store) CommitSale(ctx context.Context, sale domain.Sale) (*domain.Sale, error) {
	if len(sale.Items) == 0 {
		return nil, store.ErrEmptyCart
	}

	pgTx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = pgTx.Rollback() }()

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

	for _, item := range sale.Items {
		if item.Qty < 1 {
			return nil, store.ErrInvalidInput
		}
		remaining, err := decrementStock(ctx, pgTx, sale.StoreID, item.VariantID, item.Qty, now)
		if err != nil {
			return nil, err
		}
		if err := insertMovement(ctx, pgTx, domain.InventoryMovement{
			StoreID:   sale.StoreID,
			VariantID: item.VariantID,
			Kind:      domain.MovementKindSale,
			FromQty:   remaining + item.Qty,
			ToQty:     remaining,
			RefType:   "sale",
			RefID:     sale.ID,
			CreatedAt: now,
		}); err != nil {
			return nil, err
		}
	}

	sale.InvoiceNumber, err = nextInvoice(ctx, pgTx, sale.StoreID, sale.CreatedAt)
	if err != nil {
		return nil, err
	}

	_, err = pgTx.ExecContext(ctx, `
		INSERT INTO sales (
			id, invoice_number, store_id, cashier_id, customer_id, idempotency_key,
			subtotal_cents, discount_total_cents, tax_total_cents, total_cents,
			payment_method, payment_status, amount_received_cents, change_cents,
			status, void_reason, voided_at, loyalty_points_earned, created_at
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19)
	`, sale.ID, sale.InvoiceNumber, sale.StoreID, sale.CashierID, nullIfEmpty(sale.CustomerID), nullIfEmpty(sale.IdempotencyKey),
		sale.SubtotalCents, sale.DiscountTotalCents, sale.TaxTotalCents, sale.TotalCents,
		sale.PaymentMethod, sale.PaymentStatus, sale.AmountReceivedCents, sale.ChangeCents,
		sale.Status, nullIfEmpty(sale.VoidReason), nullTime(sale.VoidedAt), sale.LoyaltyPointsEarned, sale.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) && sale.IdempotencyKey != "" {
			existing, lookupErr := s.FindSaleByIdempotency(ctx, sale.IdempotencyKey)
			if lookupErr == nil {
				return existing, nil
			}
		}
		return nil, err
	}

	for _, item := range sale.Items {
		_, err := pgTx.ExecContext(ctx, `
			INSERT INTO sale_items (sale_id, variant_id, product_name, qty, unit_price_cents, discount_cents, tax_cents, total_cents)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		`, sale.ID, item.VariantID, item.ProductName, item.Qty, item.UnitPriceCents, item.DiscountCents, item.TaxCents, item.TotalCents)
		if err != nil {
			return nil, err
		}
	}

	for _, split := range sale.Splits {
		_, err := pgTx.ExecContext(ctx, `
			INSERT INTO payment_splits (sale_id, method, amount_cents, reference)
			VALUES ($1,$2,$3,$4)
		`, sale.ID, split.Method, split.AmountCents, nullIfEmpty(split.Reference))
		if err != nil {
			return nil, err
		}
	}

	if sale.CustomerID != "" && sale.PaymentStatus == domain.PaymentStatusCredit {
		_, err := appendLedger(ctx, pgTx, domain.CustomerLedgerEntry{
			CustomerID:      sale.CustomerID,
			EntryType:       domain.LedgerEntryCreditSale,
			DebitCents:      sale.TotalCents,
			ReferenceType:   "sale",
			ReferenceID:     sale.ID,
			TransactionDate: now,
		})
		if err != nil {
			return nil, err
		}
	}

	if sale.CustomerID != "" && sale.LoyaltyPointsEarned > 0 {
		if err := awardLoyalty(ctx, pgTx, sale.CustomerID, sale.LoyaltyPointsEarned, sale.ID, now); err != nil {
			return nil, err
		}
	}

	if err := pgTx.Commit(); err != nil {
		return nil, err
	}

	return &sale, nil
}

// decrementStock takes qty off the (store, variant) row only when enough is
// on hand, and reports what was available when it is not.
func decrementStock(ctx context.Context, tx *sql.Tx, storeID string, variantID string, qty int, at time.Time) (int, error) {
	var remaining int
	err := tx.QueryRowContext(ctx, `
		UPDATE stock_levels
		SET quantity = quantity - $1, last_movement_at = $2
		WHERE store_id = $3 AND variant_id = $4 AND quantity >= $1
		RETURNING quantity
	`, qty, at, storeID, variantID).Scan(&remaining)
	if err == nil {
		return remaining, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return 0, err
	}

	var available int
	err = tx.QueryRowContext(ctx, `
		SELECT quantity FROM stock_levels WHERE store_id = $1 AND variant_id = $2
	`, storeID, variantID).Scan(&available)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return 0, err
	}
	return 0, &store.StockError{VariantID: variantID, Requested: qty, Available: available}
}

func insertMovement(ctx context.Context, tx *sql.Tx, movement domain.InventoryMovement) error {
	if movement.ID == "" {
		movement.ID = xid.New("mov")
	}
	_, err := tx.ExecContext(ctx, `
		INSERT INTO inventory_movements (id, store_id, variant_id, kind, from_qty, to_qty, ref_type, ref_id, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
	`, movement.ID, movement.StoreID, movement.VariantID, movement.Kind, movement.FromQty, movement.ToQty,
		nullIfEmpty(movement.RefType), nullIfEmpty(movement.RefID), movement.CreatedAt)
	return err
}

// nextInvoice hands out invoice numbers monotonic per store per calendar day.
// The upsert holds a row lock on the counter until the surrounding
// transaction ends, so numbers never repeat even under concurrent commits.
func nextInvoice(ctx context.Context, tx *sql.Tx, storeID string, at time.Time) (string, error) {
	day := at.UTC().Format("20060102")
	var seq int
	err := tx.QueryRowContext(ctx, `
		INSERT INTO invoice_counters (store_id, day, seq)
		VALUES ($1,$2,1)
		ON CONFLICT (store_id, day)
		DO UPDATE SET seq = invoice_counters.seq + 1
		RETURNING seq
	`, storeID, day).Scan(&seq)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("INV-%s-%s-%04d", strings.ToUpper(storeID), day, seq), nil
}

// appendLedger locks the customer row first so concurrent entries for the
// same customer serialize and the running balance stays consistent.
func appendLedger(ctx context.Context, tx *sql.Tx, entry domain.CustomerLedgerEntry) (*domain.CustomerLedgerEntry, error) {
	var customerID string
	err := tx.QueryRowContext(ctx, `
		SELECT id FROM customers WHERE id = $1 FOR UPDATE
	`, entry.CustomerID).Scan(&customerID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}

	var priorBalance int64
	err = tx.QueryRowContext(ctx, `
		SELECT balance_cents
		FROM customer_ledger
		WHERE customer_id = $1
		ORDER BY transaction_date DESC, id DESC
		LIMIT 1
	`, entry.CustomerID).Scan(&priorBalance)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}

	if entry.ID == "" {
		entry.ID = xid.New("ldg")
	}
	if entry.TransactionDate.IsZero() {
		entry.TransactionDate = time.Now().UTC()
	}
	entry.BalanceCents = priorBalance + entry.DebitCents - entry.CreditCents

	_, err = tx.ExecContext(ctx, `
		INSERT INTO customer_ledger (
			id, customer_id, entry_type, debit_cents, credit_cents, balance_cents,
			reference_type, reference_id, transaction_date
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
	`, entry.ID, entry.CustomerID, entry.EntryType, entry.DebitCents, entry.CreditCents, entry.BalanceCents,
		nullIfEmpty(entry.ReferenceType), nullIfEmpty(entry.ReferenceID), entry.TransactionDate)
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

func awardLoyalty(ctx context.Context, tx *sql.Tx, customerID string, points int64, saleID string, at time.Time) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO loyalty_points (id, customer_id, type, points, sale_id, created_at)
		VALUES ($1,$2,$3,$4,$5,$6)
	`, xid.New("loy"), customerID, domain.LoyaltyEarned, points, nullIfEmpty(saleID), at)
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx, `
		UPDATE customers SET loyalty_points = loyalty_points + $2 WHERE id = $1
	`, customerID, points)
	return err
}

func (s *Store) FindSaleByID(ctx context.Context, saleID string) (*domain.Sale, error) {
	return s.findSale(ctx, "id", saleID)
}

func (s *Store) FindSaleByIdempotency(ctx context.Context, key string) (*domain.Sale, error) {
	return s.findSale(ctx, "idempotency_key", key)
}

func (s *Store) findSale(ctx context.Context, column string, value string) (*domain.Sale, error) {
	if column != "id" && column != "idempotency_key" {
		return nil, fmt.Errorf("unsupported lookup column")
	}

	var sale domain.Sale
	var customerID sql.NullString
	var idempotencyKey sql.NullString
	var voidReason sql.NullString
	var voidedAt sql.NullTime

	query := fmt.Sprintf(`
		SELECT id, invoice_number, store_id, cashier_id, customer_id, idempotency_key,
			subtotal_cents, discount_total_cents, tax_total_cents, total_cents,
			payment_method, payment_status, amount_received_cents, change_cents,
			status, void_reason, voided_at, loyalty_points_earned, created_at
		FROM sales
		WHERE %s = $1
	`, column)

	err := s.db.QueryRowContext(ctx, query, value).Scan(
		&sale.ID,
		&sale.InvoiceNumber,
		&sale.StoreID,
		&sale.CashierID,
		&customerID,
		&idempotencyKey,
		&sale.SubtotalCents,
		&sale.DiscountTotalCents,
		&sale.TaxTotalCents,
		&sale.TotalCents,
		&sale.PaymentMethod,
		&sale.PaymentStatus,
		&sale.AmountReceivedCents,
		&sale.ChangeCents,
		&sale.Status,
		&voidReason,
		&voidedAt,
		&sale.LoyaltyPointsEarned,
		&sale.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	if customerID.Valid {
		sale.CustomerID = customerID.String
	}
	if idempotencyKey.Valid {
		sale.IdempotencyKey = idempotencyKey.String
	}
	if voidReason.Valid {
		sale.VoidReason = voidReason.String
	}
	if voidedAt.Valid {
		at := voidedAt.Time.UTC()
		sale.VoidedAt = &at
	}
	sale.CreatedAt = sale.CreatedAt.UTC()

	itemRows, err := s.db.QueryContext(ctx, `
		SELECT variant_id, product_name, qty, unit_price_cents, discount_cents, tax_cents, total_cents
		FROM sale_items
		WHERE sale_id = $1
		ORDER BY id ASC
	`, sale.ID)
	if err != nil {
		return nil, err
	}
	defer itemRows.Close()

	items := make([]domain.SaleItem, 0, 8)
	for itemRows.Next() {
		var item domain.SaleItem
		if err := itemRows.Scan(&item.VariantID, &item.ProductName, &item.Qty, &item.UnitPriceCents, &item.DiscountCents, &item.TaxCents, &item.TotalCents); err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	if err := itemRows.Err(); err != nil {
		return nil, err
	}
	sale.Items = items

	splitRows, err := s.db.QueryContext(ctx, `
		SELECT method, amount_cents, COALESCE(reference,'')
		FROM payment_splits
		WHERE sale_id = $1
		ORDER BY id ASC
	`, sale.ID)
	if err != nil {
		return nil, err
	}
	defer splitRows.Close()

	splits := make([]domain.PaymentSplit, 0, 2)
	for splitRows.Next() {
		var split domain.PaymentSplit
		if err := splitRows.Scan(&split.Method, &split.AmountCents, &split.Reference); err != nil {
			return nil, err
		}
		splits = append(splits, split)
	}
	if err := splitRows.Err(); err != nil {
		return nil, err
	}
	if len(splits) > 0 {
		sale.Splits = splits
	}

	return &sale, nil
}

func (s *Store) VoidSale(ctx context.Context, saleID string, reason string, at time.Time) (*domain.Sale, error) {
	pgTx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = pgTx.Rollback() }()

	var storeID string
	var status string
	var customerID sql.NullString
	var paymentStatus string
	var totalCents int64
	var pointsEarned int64
	err = pgTx.QueryRowContext(ctx, `
		SELECT store_id, status, customer_id, payment_status, total_cents, loyalty_points_earned
		FROM sales
		WHERE id = $1
		FOR UPDATE
	`, saleID).Scan(&storeID, &status, &customerID, &paymentStatus, &totalCents, &pointsEarned)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	if status != domain.SaleStatusCompleted {
		return nil, store.ErrInvalidInput
	}

	itemRows, err := pgTx.QueryContext(ctx, `
		SELECT variant_id, qty
		FROM sale_items
		WHERE sale_id = $1
	`, saleID)
	if err != nil {
		return nil, err
	}
	type restockItem struct {
		variantID string
		qty       int
	}
	items := make([]restockItem, 0, 8)
	for itemRows.Next() {
		var item restockItem
		if err := itemRows.Scan(&item.variantID, &item.qty); err != nil {
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

	for _, item := range items {
		var toQty int
		err := pgTx.QueryRowContext(ctx, `
			INSERT INTO stock_levels (store_id, variant_id, quantity, last_movement_at)
			VALUES ($1,$2,$3,$4)
			ON CONFLICT (store_id, variant_id)
			DO UPDATE SET quantity = stock_levels.quantity + EXCLUDED.quantity, last_movement_at = EXCLUDED.last_movement_at
			RETURNING quantity
		`, storeID, item.variantID, item.qty, at).Scan(&toQty)
		if err != nil {
			return nil, err
		}
		if err := insertMovement(ctx, pgTx, domain.InventoryMovement{
			StoreID:   storeID,
			VariantID: item.variantID,
			Kind:      domain.MovementKindVoidRestock,
			FromQty:   toQty - item.qty,
			ToQty:     toQty,
			RefType:   "sale",
			RefID:     saleID,
			CreatedAt: at,
		}); err != nil {
			return nil, err
		}
	}

	if customerID.Valid && paymentStatus == domain.PaymentStatusCredit {
		_, err := appendLedger(ctx, pgTx, domain.CustomerLedgerEntry{
			CustomerID:      customerID.String,
			EntryType:       domain.LedgerEntryVoid,
			CreditCents:     totalCents,
			ReferenceType:   "sale_void",
			ReferenceID:     saleID,
			TransactionDate: at,
		})
		if err != nil {
			return nil, err
		}
	}

	if customerID.Valid && pointsEarned > 0 {
		_, err = pgTx.ExecContext(ctx, `
			INSERT INTO loyalty_points (id, customer_id, type, points, sale_id, created_at)
			VALUES ($1,$2,$3,$4,$5,$6)
		`, xid.New("loy"), customerID.String, domain.LoyaltyRedeemed, pointsEarned, saleID, at)
		if err != nil {
			return nil, err
		}
		_, err = pgTx.ExecContext(ctx, `
			UPDATE customers
			SET loyalty_points = GREATEST(loyalty_points - $2, 0)
			WHERE id = $1
		`, customerID.String, pointsEarned)
		if err != nil {
			return nil, err
		}
	}

	res, err := pgTx.ExecContext(ctx, `
		UPDATE sales
		SET status = $2, void_reason = $3, voided_at = $4
		WHERE id = $1 AND status = $5
	`, saleID, domain.SaleStatusVoided, reason, at, domain.SaleStatusCompleted)
	if err != nil {
		return nil, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		return nil, store.ErrInvalidInput
	}

	if err := pgTx.Commit(); err != nil {
		return nil, err
	}

	return s.FindSaleByID(ctx, saleID)
}

func (s *Store) CreateCustomer(ctx context.Context, customer domain.Customer) (*domain.Customer, error) {
	customer.Name = strings.TrimSpace(customer.Name)
	if customer.ID == "" || customer.Name == "" {
		return nil, store.ErrInvalidInput
	}
	if customer.Tier == "" {
		customer.Tier = domain.TierRegular
	}
	if customer.CreatedAt.IsZero() {
		customer.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO customers (id, name, phone, tier, loyalty_points, created_at)
		VALUES ($1,$2,$3,$4,$5,$6)
	`, customer.ID, customer.Name, nullIfEmpty(customer.Phone), customer.Tier, customer.LoyaltyPoints, customer.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrInvalidInput
		}
		return nil, err
	}
	created := customer
	return &created, nil
}

func (s *Store) GetCustomerByID(ctx context.Context, customerID string) (*domain.Customer, error) {
	var customer domain.Customer
	var phone sql.NullString
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, phone, tier, loyalty_points, created_at
		FROM customers
		WHERE id = $1
	`, customerID).Scan(&customer.ID, &customer.Name, &phone, &customer.Tier, &customer.LoyaltyPoints, &customer.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	if phone.Valid {
		customer.Phone = phone.String
	}
	customer.CreatedAt = customer.CreatedAt.UTC()
	return &customer, nil
}

func (s *Store) ListCustomers(ctx context.Context, limit int) ([]domain.Customer, error) {
	if limit < 1 {
		limit = 100
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, COALESCE(phone,''), tier, loyalty_points, created_at
		FROM customers
		ORDER BY name ASC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	customers := make([]domain.Customer, 0, limit)
	for rows.Next() {
		var c domain.Customer
		if err := rows.Scan(&c.ID, &c.Name, &c.Phone, &c.Tier, &c.LoyaltyPoints, &c.CreatedAt); err != nil {
			return nil, err
		}
		c.CreatedAt = c.CreatedAt.UTC()
		customers = append(customers, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return customers, nil
}

func (s *Store) AppendLedgerEntry(ctx context.Context, entry domain.CustomerLedgerEntry) (*domain.CustomerLedgerEntry, error) {
	if entry.CustomerID == "" {
		return nil, store.ErrInvalidInput
	}
	if entry.DebitCents < 0 || entry.CreditCents < 0 || (entry.DebitCents == 0 && entry.CreditCents == 0) {
		return nil, store.ErrInvalidInput
	}

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	created, err := appendLedger(ctx, tx, entry)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return created, nil
}

func (s *Store) ListLedgerEntries(ctx context.Context, customerID string, limit int) ([]domain.CustomerLedgerEntry, error) {
	if limit < 1 {
		limit = 100
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, customer_id, entry_type, debit_cents, credit_cents, balance_cents,
			COALESCE(reference_type,''), COALESCE(reference_id,''), transaction_date
		FROM customer_ledger
		WHERE customer_id = $1
		ORDER BY transaction_date ASC, id ASC
		LIMIT $2
	`, customerID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entries := make([]domain.CustomerLedgerEntry, 0, limit)
	for rows.Next() {
		var entry domain.CustomerLedgerEntry
		if err := rows.Scan(&entry.ID, &entry.CustomerID, &entry.EntryType, &entry.DebitCents, &entry.CreditCents, &entry.BalanceCents, &entry.ReferenceType, &entry.ReferenceID, &entry.TransactionDate); err != nil {
			return nil, err
		}
		entry.TransactionDate = entry.TransactionDate.UTC()
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return entries, nil
}

func (s *Store) RedeemLoyaltyPoints(ctx context.Context, customerID string, points int64) (*domain.LoyaltyPoint, error) {
	if customerID == "" || points < 1 {
		return nil, store.ErrInvalidInput
	}

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, `
		UPDATE customers
		SET loyalty_points = loyalty_points - $2
		WHERE id = $1 AND loyalty_points >= $2
	`, customerID, points)
	if err != nil {
		return nil, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		var exists bool
		if err := tx.QueryRowContext(ctx, `SELECT true FROM customers WHERE id = $1`, customerID).Scan(&exists); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, store.ErrNotFound
			}
			return nil, err
		}
		return nil, store.ErrInsufficientPoints
	}

	entry := domain.LoyaltyPoint{
		ID:         xid.New("loy"),
		CustomerID: customerID,
		Type:       domain.LoyaltyRedeemed,
		Points:     points,
		CreatedAt:  time.Now().UTC(),
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO loyalty_points (id, customer_id, type, points, sale_id, created_at)
		VALUES ($1,$2,$3,$4,NULL,$5)
	`, entry.ID, entry.CustomerID, entry.Type, entry.Points, entry.CreatedAt)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return &entry, nil
}

func (s *Store) ListLoyaltyPoints(ctx context.Context, customerID string, limit int) ([]domain.LoyaltyPoint, error) {
	if limit < 1 {
		limit = 100
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, customer_id, type, points, COALESCE(sale_id,''), created_at
		FROM loyalty_points
		WHERE customer_id = $1
		ORDER BY created_at ASC, id ASC
		LIMIT $2
	`, customerID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entries := make([]domain.LoyaltyPoint, 0, limit)
	for rows.Next() {
		var entry domain.LoyaltyPoint
		if err := rows.Scan(&entry.ID, &entry.CustomerID, &entry.Type, &entry.Points, &entry.SaleID, &entry.CreatedAt); err != nil {
			return nil, err
		}
		entry.CreatedAt = entry.CreatedAt.UTC()
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return entries, nil
}

func (s *Store) CreateAuditLog(ctx context.Context, entry domain.AuditLog) error {
	if entry.ID == "" {
		entry.ID = xid.New("audit")
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO audit_logs (
			id, store_id, actor_username, actor_role, action, entity_type, entity_id, detail, created_at
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
	`, entry.ID, entry.StoreID, entry.ActorUsername, entry.ActorRole, entry.Action, entry.EntityType, entry.EntityID, entry.Detail, entry.CreatedAt)
	return err
}

func (s *Store) ListAuditLogs(ctx context.Context, storeID string, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error) {
	if limit < 1 {
		limit = 100
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, store_id, actor_username, actor_role, action, entity_type, entity_id, detail, created_at
		FROM audit_logs
		WHERE store_id = $1
			AND created_at >= $2
			AND created_at < $3
		ORDER BY created_at DESC
		LIMIT $4
	`, storeID, from, to, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	logs := make([]domain.AuditLog, 0, limit)
	for rows.Next() {
		var entry domain.AuditLog
		if err := rows.Scan(&entry.ID, &entry.StoreID, &entry.ActorUsername, &entry.ActorRole, &entry.Action, &entry.EntityType, &entry.EntityID, &entry.Detail, &entry.CreatedAt); err != nil {
			return nil, err
		}
		entry.CreatedAt = entry.CreatedAt.UTC()
		logs = append(logs, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return logs, nil
}

func (s *Store) CreateUser(ctx context.Context, user domain.UserAccount) error {
	user.Username = strings.ToLower(strings.TrimSpace(user.Username))
	if user.Username == "" || strings.TrimSpace(user.Password) == "" {
		return store.ErrInvalidInput
	}
	if user.Role == "" {
		user.Role = "cashier"
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO app_users (username, password, role, active, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,now())
	`, user.Username, user.Password, user.Role, user.Active, user.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return store.ErrInvalidInput
		}
		return err
	}
	return nil
}

func (s *Store) ListUsers(ctx context.Context) ([]domain.UserAccount, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT username, password, role, active, created_at
		FROM app_users
		ORDER BY username ASC
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
		return store.ErrInvalidInput
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE app_users
		SET password = $2, updated_at = now()
		WHERE username = $1
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

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
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
