package postgres

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"
)

func TestVoidSaleRestocksInventory(t *testing.T) {
	databaseURL := os.Getenv("TOKOPOS_TEST_DATABASE_URL")
	if databaseURL == "" {
		t.Skip("set TOKOPOS_TEST_DATABASE_URL to run postgres integration test")
	}

	ctx := context.Background()
	s, err := New(ctx, databaseURL)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	t.Cleanup(func() {
		_ = s.Close()
	})

	stamp := time.Now().UnixNano()
	variantID := fmt.Sprintf("VAR-VOID-IT-%d", stamp)
	saleID := fmt.Sprintf("sale-void-it-%d", stamp)
	idempotencyKey := fmt.Sprintf("idem-void-it-%d", stamp)
	storeID := "main-store"

	t.Cleanup(func() {
		_, _ = s.db.ExecContext(ctx, `DELETE FROM inventory_movements WHERE variant_id = $1`, variantID)
		_, _ = s.db.ExecContext(ctx, `DELETE FROM sale_items WHERE sale_id = $1`, saleID)
		_, _ = s.db.ExecContext(ctx, `DELETE FROM sales WHERE id = $1`, saleID)
		_, _ = s.db.ExecContext(ctx, `DELETE FROM stock_levels WHERE store_id = $1 AND variant_id = $2`, storeID, variantID)
		_, _ = s.db.ExecContext(ctx, `DELETE FROM variants WHERE id = $1`, variantID)
	})

	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO variants (id, name, category, price_cents, tax_rate_percent, active, created_at, updated_at)
		VALUES ($1, 'Produk Void IT', 'snack', 6000, 0, true, now(), now())
	`, variantID); err != nil {
		t.Fatalf("insert variant: %v", err)
	}

	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO stock_levels (store_id, variant_id, quantity, last_movement_at)
		VALUES ($1, $2, 10, now())
		ON CONFLICT (store_id, variant_id)
		DO UPDATE SET quantity = 10, last_movement_at = now()
	`, storeID, variantID); err != nil {
		t.Fatalf("seed stock: %v", err)
	}

	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO sales (
			id, invoice_number, store_id, cashier_id, customer_id, idempotency_key,
			subtotal_cents, discount_total_cents, tax_total_cents, total_cents,
			payment_method, payment_status, amount_received_cents, change_cents,
			status, void_reason, voided_at, loyalty_points_earned, created_at
		)
		VALUES (
			$1, $2, $3, 'kasir-it', null, $4,
			12000, 0, 0, 12000,
			'cash', 'paid', 15000, 3000,
			'completed', null, null, 0, now()
		)
	`, saleID, fmt.Sprintf("INV-IT-%d", stamp), storeID, idempotencyKey); err != nil {
		t.Fatalf("insert sale: %v", err)
	}

	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO sale_items (sale_id, variant_id, product_name, qty, unit_price_cents, discount_cents, tax_cents, total_cents)
		VALUES ($1, $2, 'Produk Void IT', 2, 6000, 0, 0, 12000)
	`, saleID, variantID); err != nil {
		t.Fatalf("insert sale item: %v", err)
	}

	at := time.Now().UTC()
	if _, err := s.VoidSale(ctx, saleID, "integration test void", at); err != nil {
		t.Fatalf("void sale: %v", err)
	}

	var qty int
	if err := s.db.QueryRowContext(ctx, `
		SELECT quantity
		FROM stock_levels
		WHERE store_id = $1 AND variant_id = $2
	`, storeID, variantID).Scan(&qty); err != nil {
		t.Fatalf("query stock: %v", err)
	}
	if qty != 12 {
		t.Fatalf("expected stock 12 after void restock, got %d", qty)
	}

	var status string
	if err := s.db.QueryRowContext(ctx, `
		SELECT status
		FROM sales
		WHERE id = $1
	`, saleID).Scan(&status); err != nil {
		t.Fatalf("query sale status: %v", err)
	}
	if status != "voided" {
		t.Fatalf("expected sale status voided, got %s", status)
	}
}
