package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"tokopos/internal/cache"
	"tokopos/internal/domain"
	"tokopos/internal/loyalty"
	"tokopos/internal/notify"
	"tokopos/internal/store"
	"tokopos/internal/store/memory"
)

func newTestService() *Service {
	repo := memory.NewSeeded()
	return New(repo, cache.NoopSessionCache{}, loyalty.NewEngine(), notify.LogNotifier{}, "main-store", time.Hour)
}

func cashierCtx(username string) context.Context {
	return WithActor(context.Background(), domain.Actor{
		Username: username,
		Role:     "cashier",
		StoreID:  "main-store",
	})
}

func adminCtx() context.Context {
	return WithActor(context.Background(), domain.Actor{
		Username: "admin",
		Role:     "admin",
		StoreID:  "main-store",
	})
}

func mustAddLine(t *testing.T, svc *Service, ctx context.Context, key string, variantID string, qty int) domain.Session {
	t.Helper()
	session, err := svc.AddLine(ctx, key, domain.AddLineRequest{VariantID: variantID, Qty: qty})
	if err != nil {
		t.Fatalf("add line %s x%d failed: %v", variantID, qty, err)
	}
	return session
}

func stockQty(t *testing.T, svc *Service, ctx context.Context, variantID string) int {
	t.Helper()
	levels, err := svc.GetStockLevels(ctx, "main-store", []string{variantID})
	if err != nil {
		t.Fatalf("get stock levels failed: %v", err)
	}
	return levels[variantID].Quantity
}

func TestCreateSessionEnforcesLimit(t *testing.T) {
	svc := newTestService()
	ctx := cashierCtx("kasir-a")

	for i := 0; i < domain.MaxSessionsPerCashier; i++ {
		if _, err := svc.CreateSession(ctx); err != nil {
			t.Fatalf("create session #%d failed: %v", i+1, err)
		}
	}

	_, err := svc.CreateSession(ctx)
	if !errors.Is(err, store.ErrSessionLimitExceeded) {
		t.Fatalf("expected ErrSessionLimitExceeded, got %v", err)
	}

	list, err := svc.ListSessions(ctx)
	if err != nil {
		t.Fatalf("list sessions failed: %v", err)
	}
	if len(list.Sessions) != domain.MaxSessionsPerCashier {
		t.Fatalf("expected %d sessions, got %d", domain.MaxSessionsPerCashier, len(list.Sessions))
	}
}

func TestCreateSessionParksPreviousActive(t *testing.T) {
	svc := newTestService()
	ctx := cashierCtx("kasir-a")

	first, err := svc.CreateSession(ctx)
	if err != nil {
		t.Fatalf("create first session failed: %v", err)
	}
	second, err := svc.CreateSession(ctx)
	if err != nil {
		t.Fatalf("create second session failed: %v", err)
	}

	list, err := svc.ListSessions(ctx)
	if err != nil {
		t.Fatalf("list sessions failed: %v", err)
	}
	if list.ActiveKey != second.Key {
		t.Fatalf("expected second session active, got %s", list.ActiveKey)
	}

	parked, err := svc.GetSession(ctx, first.Key)
	if err != nil {
		t.Fatalf("get first session failed: %v", err)
	}
	if parked.Status != domain.SessionStatusParked {
		t.Fatalf("expected first session parked, got %s", parked.Status)
	}
	if parked.ParkedAt == nil {
		t.Fatalf("expected parked_at to be set")
	}
}

func TestSessionsIsolatedPerCashier(t *testing.T) {
	svc := newTestService()

	sessionA, err := svc.CreateSession(cashierCtx("kasir-a"))
	if err != nil {
		t.Fatalf("create session failed: %v", err)
	}

	if _, err := svc.GetSession(cashierCtx("kasir-b"), sessionA.Key); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected other cashier's session to be invisible, got %v", err)
	}
}

func TestSwitchSessionRestoresCartState(t *testing.T) {
	svc := newTestService()
	ctx := cashierCtx("kasir-a")

	first, err := svc.CreateSession(ctx)
	if err != nil {
		t.Fatalf("create first session failed: %v", err)
	}
	withLines := mustAddLine(t, svc, ctx, first.Key, "VAR-MIE-01", 2)

	if _, err := svc.CreateSession(ctx); err != nil {
		t.Fatalf("create second session failed: %v", err)
	}

	resumed, err := svc.SwitchSession(ctx, first.Key)
	if err != nil {
		t.Fatalf("switch session failed: %v", err)
	}
	if resumed.Status != domain.SessionStatusActive {
		t.Fatalf("expected resumed session active, got %s", resumed.Status)
	}
	if resumed.ParkedAt != nil {
		t.Fatalf("expected parked_at cleared on resume")
	}
	if len(resumed.Lines) != 1 || resumed.Lines[0].Qty != 2 {
		t.Fatalf("expected cart lines preserved across park, got %+v", resumed.Lines)
	}
	if resumed.TotalCents != withLines.TotalCents {
		t.Fatalf("expected totals preserved, got %d want %d", resumed.TotalCents, withLines.TotalCents)
	}

	list, err := svc.ListSessions(ctx)
	if err != nil {
		t.Fatalf("list sessions failed: %v", err)
	}
	if list.ActiveKey != first.Key {
		t.Fatalf("expected first session active after switch, got %s", list.ActiveKey)
	}
}

func TestParkActiveSessionOpensReplacement(t *testing.T) {
	svc := newTestService()
	ctx := cashierCtx("kasir-a")

	session, err := svc.CreateSession(ctx)
	if err != nil {
		t.Fatalf("create session failed: %v", err)
	}

	parked, err := svc.ParkSession(ctx, session.Key)
	if err != nil {
		t.Fatalf("park session failed: %v", err)
	}
	if parked.Status != domain.SessionStatusParked {
		t.Fatalf("expected parked status, got %s", parked.Status)
	}

	list, err := svc.ListSessions(ctx)
	if err != nil {
		t.Fatalf("list sessions failed: %v", err)
	}
	if list.ActiveKey == "" || list.ActiveKey == session.Key {
		t.Fatalf("expected a fresh active session, got %s", list.ActiveKey)
	}
}

func TestCloseSessionRefusesNonEmptyCart(t *testing.T) {
	svc := newTestService()
	ctx := cashierCtx("kasir-a")

	session, err := svc.CreateSession(ctx)
	if err != nil {
		t.Fatalf("create session failed: %v", err)
	}
	mustAddLine(t, svc, ctx, session.Key, "VAR-MIE-01", 1)

	if err := svc.CloseSession(ctx, session.Key); !errors.Is(err, store.ErrCartNotEmpty) {
		t.Fatalf("expected ErrCartNotEmpty, got %v", err)
	}

	updated, err := svc.UpdateLine(ctx, session.Key, domain.UpdateLineRequest{VariantID: "VAR-MIE-01", Qty: intPtr(0)})
	if err != nil {
		t.Fatalf("remove line via qty 0 failed: %v", err)
	}
	if len(updated.Lines) != 0 {
		t.Fatalf("expected empty cart after qty 0, got %d lines", len(updated.Lines))
	}

	if err := svc.CloseSession(ctx, session.Key); err != nil {
		t.Fatalf("close of empty session failed: %v", err)
	}
	if _, err := svc.GetSession(ctx, session.Key); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected closed session gone, got %v", err)
	}
}

func TestAddLineMergesAndRecomputesTotals(t *testing.T) {
	svc := newTestService()
	ctx := cashierCtx("kasir-a")

	session, err := svc.CreateSession(ctx)
	if err != nil {
		t.Fatalf("create session failed: %v", err)
	}

	mustAddLine(t, svc, ctx, session.Key, "VAR-MIE-01", 1)
	merged := mustAddLine(t, svc, ctx, session.Key, "VAR-MIE-01", 2)

	if len(merged.Lines) != 1 {
		t.Fatalf("expected merged line, got %d", len(merged.Lines))
	}
	if merged.Lines[0].Qty != 3 {
		t.Fatalf("expected qty 3, got %d", merged.Lines[0].Qty)
	}
	// 3 x 3500 = 10500 subtotal, 11% tax rounds to 1155.
	if merged.SubtotalCents != 10500 || merged.TaxTotalCents != 1155 || merged.TotalCents != 11655 {
		t.Fatalf("unexpected totals: %+v", merged)
	}
}

func TestAddLineRejectsInactiveVariant(t *testing.T) {
	svc := newTestService()

	if _, err := svc.UpdateVariant(adminCtx(), "VAR-SABUN-01", domain.VariantUpdateRequest{Active: boolPtr(false)}); err != nil {
		t.Fatalf("deactivate variant failed: %v", err)
	}

	ctx := cashierCtx("kasir-a")
	session, err := svc.CreateSession(ctx)
	if err != nil {
		t.Fatalf("create session failed: %v", err)
	}

	if _, err := svc.AddLine(ctx, session.Key, domain.AddLineRequest{VariantID: "VAR-SABUN-01", Qty: 1}); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected inactive variant rejected, got %v", err)
	}
}

func TestCommitCashSaleDecrementsStockAndOpensNewSession(t *testing.T) {
	svc := newTestService()
	ctx := cashierCtx("kasir-a")

	session, err := svc.CreateSession(ctx)
	if err != nil {
		t.Fatalf("create session failed: %v", err)
	}
	mustAddLine(t, svc, ctx, session.Key, "VAR-MIE-01", 2)

	resp, err := svc.CommitSale(ctx, domain.CommitRequest{
		SessionKey:          session.Key,
		IdempotencyKey:      "idem-cash-1",
		PaymentMethod:       "cash",
		AmountReceivedCents: 10000,
	})
	if err != nil {
		t.Fatalf("commit failed: %v", err)
	}
	if resp.Duplicate {
		t.Fatalf("first commit must not report duplicate")
	}

	sale := resp.Sale
	// 2 x 3500 = 7000 subtotal, 11% tax = 770.
	if sale.TotalCents != 7770 {
		t.Fatalf("expected total 7770, got %d", sale.TotalCents)
	}
	if sale.ChangeCents != 2230 {
		t.Fatalf("expected change 2230, got %d", sale.ChangeCents)
	}
	if sale.InvoiceNumber == "" {
		t.Fatalf("expected invoice number assigned")
	}
	if sale.PaymentStatus != domain.PaymentStatusPaid {
		t.Fatalf("expected paid status, got %s", sale.PaymentStatus)
	}
	if len(sale.Items) != 1 || sale.Items[0].Qty != 2 {
		t.Fatalf("unexpected sale items: %+v", sale.Items)
	}

	if qty := stockQty(t, svc, ctx, "VAR-MIE-01"); qty != 118 {
		t.Fatalf("expected stock 118 after sale, got %d", qty)
	}

	if _, err := svc.GetSession(ctx, session.Key); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected committed session removed, got %v", err)
	}

	list, err := svc.ListSessions(ctx)
	if err != nil {
		t.Fatalf("list sessions failed: %v", err)
	}
	if list.ActiveKey == "" || list.ActiveKey == session.Key {
		t.Fatalf("expected replacement active session, got %s", list.ActiveKey)
	}
}

func TestCommitRejectsEmptyCart(t *testing.T) {
	svc := newTestService()
	ctx := cashierCtx("kasir-a")

	session, err := svc.CreateSession(ctx)
	if err != nil {
		t.Fatalf("create session failed: %v", err)
	}

	_, err = svc.CommitSale(ctx, domain.CommitRequest{
		SessionKey:          session.Key,
		PaymentMethod:       "cash",
		AmountReceivedCents: 1000,
	})
	if !errors.Is(err, store.ErrEmptyCart) {
		t.Fatalf("expected ErrEmptyCart, got %v", err)
	}
}

func TestCommitInsufficientCashLeavesEverythingIntact(t *testing.T) {
	svc := newTestService()
	ctx := cashierCtx("kasir-a")

	session, err := svc.CreateSession(ctx)
	if err != nil {
		t.Fatalf("create session failed: %v", err)
	}
	mustAddLine(t, svc, ctx, session.Key, "VAR-MIE-01", 2)

	_, err = svc.CommitSale(ctx, domain.CommitRequest{
		SessionKey:          session.Key,
		PaymentMethod:       "cash",
		AmountReceivedCents: 5000,
	})
	if !errors.Is(err, store.ErrInsufficientPayment) {
		t.Fatalf("expected ErrInsufficientPayment, got %v", err)
	}

	if qty := stockQty(t, svc, ctx, "VAR-MIE-01"); qty != 120 {
		t.Fatalf("expected stock untouched at 120, got %d", qty)
	}
	kept, err := svc.GetSession(ctx, session.Key)
	if err != nil {
		t.Fatalf("expected session to survive failed commit: %v", err)
	}
	if len(kept.Lines) != 1 {
		t.Fatalf("expected cart lines preserved, got %d", len(kept.Lines))
	}
}

func TestCommitSplitPaymentExactSum(t *testing.T) {
	svc := newTestService()
	ctx := cashierCtx("kasir-a")

	session, err := svc.CreateSession(ctx)
	if err != nil {
		t.Fatalf("create session failed: %v", err)
	}
	// 1 x 3500 at 11% tax = 3885 total.
	mustAddLine(t, svc, ctx, session.Key, "VAR-MIE-01", 1)

	_, err = svc.CommitSale(ctx, domain.CommitRequest{
		SessionKey: session.Key,
		Splits: []domain.PaymentSplit{
			{Method: "cash", AmountCents: 2000},
			{Method: "qris", AmountCents: 1800, Reference: "TRX-QRIS-SHORT"},
		},
	})
	if !errors.Is(err, store.ErrSplitMismatch) {
		t.Fatalf("expected mismatched split rejected, got %v", err)
	}

	resp, err := svc.CommitSale(ctx, domain.CommitRequest{
		SessionKey: session.Key,
		Splits: []domain.PaymentSplit{
			{Method: "cash", AmountCents: 2000},
			{Method: "qris", AmountCents: 1885, Reference: "TRX-QRIS-001"},
		},
	})
	if err != nil {
		t.Fatalf("split commit failed: %v", err)
	}
	if resp.Sale.PaymentMethod != domain.PaymentMethodSplit {
		t.Fatalf("expected split method, got %s", resp.Sale.PaymentMethod)
	}
	if len(resp.Sale.Splits) != 2 {
		t.Fatalf("expected 2 splits persisted, got %d", len(resp.Sale.Splits))
	}
}

func TestCommitCreditSaleAppendsLedgerEntry(t *testing.T) {
	svc := newTestService()
	ctx := cashierCtx("kasir-a")

	session, err := svc.CreateSession(ctx)
	if err != nil {
		t.Fatalf("create session failed: %v", err)
	}
	mustAddLine(t, svc, ctx, session.Key, "VAR-TELUR-01", 1)

	if _, err := svc.UpdateSession(ctx, session.Key, domain.SessionUpdateRequest{CustomerID: strPtr("CUST-BUDI")}); err != nil {
		t.Fatalf("attach customer failed: %v", err)
	}

	resp, err := svc.CommitSale(ctx, domain.CommitRequest{
		SessionKey:    session.Key,
		PaymentMethod: "credit",
	})
	if err != nil {
		t.Fatalf("credit commit failed: %v", err)
	}
	if resp.Sale.PaymentStatus != domain.PaymentStatusCredit {
		t.Fatalf("expected credit payment status, got %s", resp.Sale.PaymentStatus)
	}

	// VAR-TELUR-01 has no tax, so the receivable equals the subtotal.
	balance, err := svc.CustomerBalance(ctx, "CUST-BUDI")
	if err != nil {
		t.Fatalf("customer balance failed: %v", err)
	}
	if balance != 26500 {
		t.Fatalf("expected balance 26500, got %d", balance)
	}

	entries, err := svc.ListLedgerEntries(ctx, "CUST-BUDI", 10)
	if err != nil {
		t.Fatalf("list ledger failed: %v", err)
	}
	if len(entries) != 1 || entries[0].EntryType != domain.LedgerEntryCreditSale {
		t.Fatalf("expected one credit_sale entry, got %+v", entries)
	}
	if entries[0].DebitCents != 26500 {
		t.Fatalf("expected debit 26500, got %d", entries[0].DebitCents)
	}
}

func TestCommitCreditRequiresCustomer(t *testing.T) {
	svc := newTestService()
	ctx := cashierCtx("kasir-a")

	session, err := svc.CreateSession(ctx)
	if err != nil {
		t.Fatalf("create session failed: %v", err)
	}
	mustAddLine(t, svc, ctx, session.Key, "VAR-MIE-01", 1)

	_, err = svc.CommitSale(ctx, domain.CommitRequest{
		SessionKey:    session.Key,
		PaymentMethod: "credit",
	})
	if !errors.Is(err, store.ErrInvalidInput) {
		t.Fatalf("expected credit without customer rejected, got %v", err)
	}
}

func TestCustomerPaymentReducesBalance(t *testing.T) {
	svc := newTestService()
	ctx := cashierCtx("kasir-a")

	session, err := svc.CreateSession(ctx)
	if err != nil {
		t.Fatalf("create session failed: %v", err)
	}
	mustAddLine(t, svc, ctx, session.Key, "VAR-TELUR-01", 1)
	if _, err := svc.UpdateSession(ctx, session.Key, domain.SessionUpdateRequest{CustomerID: strPtr("CUST-BUDI")}); err != nil {
		t.Fatalf("attach customer failed: %v", err)
	}
	if _, err := svc.CommitSale(ctx, domain.CommitRequest{SessionKey: session.Key, PaymentMethod: "credit"}); err != nil {
		t.Fatalf("credit commit failed: %v", err)
	}

	entry, err := svc.RecordCustomerPayment(ctx, domain.CustomerPaymentRequest{
		CustomerID:  "CUST-BUDI",
		AmountCents: 10000,
		Method:      "cash",
	})
	if err != nil {
		t.Fatalf("record payment failed: %v", err)
	}
	if entry.BalanceCents != 16500 {
		t.Fatalf("expected running balance 16500, got %d", entry.BalanceCents)
	}

	balance, err := svc.CustomerBalance(ctx, "CUST-BUDI")
	if err != nil {
		t.Fatalf("customer balance failed: %v", err)
	}
	if balance != 16500 {
		t.Fatalf("expected balance 16500 after payment, got %d", balance)
	}
}

func TestCommitIdempotencyReturnsSameSale(t *testing.T) {
	svc := newTestService()
	ctx := cashierCtx("kasir-a")

	session, err := svc.CreateSession(ctx)
	if err != nil {
		t.Fatalf("create session failed: %v", err)
	}
	mustAddLine(t, svc, ctx, session.Key, "VAR-MIE-01", 1)

	first, err := svc.CommitSale(ctx, domain.CommitRequest{
		SessionKey:          session.Key,
		IdempotencyKey:      "idem-dup",
		PaymentMethod:       "cash",
		AmountReceivedCents: 5000,
	})
	if err != nil {
		t.Fatalf("first commit failed: %v", err)
	}

	second, err := svc.CommitSale(ctx, domain.CommitRequest{
		SessionKey:          session.Key,
		IdempotencyKey:      "idem-dup",
		PaymentMethod:       "cash",
		AmountReceivedCents: 5000,
	})
	if err != nil {
		t.Fatalf("replayed commit failed: %v", err)
	}
	if !second.Duplicate {
		t.Fatalf("expected duplicate flag on replay")
	}
	if second.Sale.ID != first.Sale.ID {
		t.Fatalf("expected same sale returned, got %s vs %s", second.Sale.ID, first.Sale.ID)
	}

	if qty := stockQty(t, svc, ctx, "VAR-MIE-01"); qty != 119 {
		t.Fatalf("expected stock decremented once, got %d", qty)
	}
}

func TestConcurrentCommitsOnLastUnitHaveOneWinner(t *testing.T) {
	svc := newTestService()

	_, err := svc.CreateVariant(adminCtx(), domain.VariantCreateRequest{
		StoreID:      "main-store",
		ID:           "VAR-LAST-01",
		Name:         "Unit Terakhir",
		Category:     "grocery",
		PriceCents:   5000,
		InitialStock: 1,
	})
	if err != nil {
		t.Fatalf("create variant failed: %v", err)
	}

	cashiers := []string{"kasir-x", "kasir-y"}
	keys := make([]string, len(cashiers))
	for i, username := range cashiers {
		ctx := cashierCtx(username)
		session, err := svc.CreateSession(ctx)
		if err != nil {
			t.Fatalf("create session for %s failed: %v", username, err)
		}
		mustAddLine(t, svc, ctx, session.Key, "VAR-LAST-01", 1)
		keys[i] = session.Key
	}

	results := make([]error, len(cashiers))
	var wg sync.WaitGroup
	for i, username := range cashiers {
		wg.Add(1)
		go func(i int, username string) {
			defer wg.Done()
			_, results[i] = svc.CommitSale(cashierCtx(username), domain.CommitRequest{
				SessionKey:          keys[i],
				PaymentMethod:       "cash",
				AmountReceivedCents: 5000,
			})
		}(i, username)
	}
	wg.Wait()

	wins, losses := 0, 0
	for _, err := range results {
		switch {
		case err == nil:
			wins++
		case errors.Is(err, store.ErrInsufficientStock):
			losses++
		default:
			t.Fatalf("unexpected commit error: %v", err)
		}
	}
	if wins != 1 || losses != 1 {
		t.Fatalf("expected exactly one winner, got %d wins %d losses", wins, losses)
	}

	if qty := stockQty(t, svc, cashierCtx("kasir-x"), "VAR-LAST-01"); qty != 0 {
		t.Fatalf("expected final stock 0, got %d", qty)
	}
}

func TestCommitEarnsLoyaltyPointsByTier(t *testing.T) {
	svc := newTestService()
	ctx := cashierCtx("kasir-a")

	session, err := svc.CreateSession(ctx)
	if err != nil {
		t.Fatalf("create session failed: %v", err)
	}
	// 1 x 26500 no tax; gold tier earns round(265 * 1.5) = 398.
	mustAddLine(t, svc, ctx, session.Key, "VAR-TELUR-01", 1)
	if _, err := svc.UpdateSession(ctx, session.Key, domain.SessionUpdateRequest{CustomerID: strPtr("CUST-SARI")}); err != nil {
		t.Fatalf("attach customer failed: %v", err)
	}

	resp, err := svc.CommitSale(ctx, domain.CommitRequest{
		SessionKey:          session.Key,
		PaymentMethod:       "cash",
		AmountReceivedCents: 26500,
	})
	if err != nil {
		t.Fatalf("commit failed: %v", err)
	}
	if resp.Sale.LoyaltyPointsEarned != 398 {
		t.Fatalf("expected 398 points earned, got %d", resp.Sale.LoyaltyPointsEarned)
	}

	customer, err := svc.GetCustomer(ctx, "CUST-SARI")
	if err != nil {
		t.Fatalf("get customer failed: %v", err)
	}
	if customer.LoyaltyPoints != 398 {
		t.Fatalf("expected customer balance 398 points, got %d", customer.LoyaltyPoints)
	}

	if _, err := svc.RedeemLoyaltyPoints(ctx, domain.LoyaltyRedeemRequest{CustomerID: "CUST-SARI", Points: 100}); err != nil {
		t.Fatalf("redeem failed: %v", err)
	}
	customer, err = svc.GetCustomer(ctx, "CUST-SARI")
	if err != nil {
		t.Fatalf("get customer failed: %v", err)
	}
	if customer.LoyaltyPoints != 298 {
		t.Fatalf("expected 298 points after redeem, got %d", customer.LoyaltyPoints)
	}

	if _, err := svc.RedeemLoyaltyPoints(ctx, domain.LoyaltyRedeemRequest{CustomerID: "CUST-SARI", Points: 1000}); !errors.Is(err, store.ErrInsufficientPoints) {
		t.Fatalf("expected over-redeem rejected, got %v", err)
	}
}

func TestVoidSaleRestocksAndReversesLedger(t *testing.T) {
	svc := newTestService()
	ctx := cashierCtx("kasir-a")

	session, err := svc.CreateSession(ctx)
	if err != nil {
		t.Fatalf("create session failed: %v", err)
	}
	mustAddLine(t, svc, ctx, session.Key, "VAR-TELUR-01", 2)
	if _, err := svc.UpdateSession(ctx, session.Key, domain.SessionUpdateRequest{CustomerID: strPtr("CUST-BUDI")}); err != nil {
		t.Fatalf("attach customer failed: %v", err)
	}

	resp, err := svc.CommitSale(ctx, domain.CommitRequest{SessionKey: session.Key, PaymentMethod: "credit"})
	if err != nil {
		t.Fatalf("credit commit failed: %v", err)
	}
	if qty := stockQty(t, svc, ctx, "VAR-TELUR-01"); qty != 118 {
		t.Fatalf("expected stock 118 after sale, got %d", qty)
	}

	if _, err := svc.VoidSale(cashierCtx("kasir-a"), domain.VoidSaleRequest{SaleID: resp.Sale.ID, Reason: "wrong scan"}); err == nil {
		t.Fatalf("expected cashier void to be rejected")
	}

	voided, err := svc.VoidSale(adminCtx(), domain.VoidSaleRequest{SaleID: resp.Sale.ID, Reason: "wrong scan"})
	if err != nil {
		t.Fatalf("void failed: %v", err)
	}
	if voided.Status != domain.SaleStatusVoided {
		t.Fatalf("expected voided status, got %s", voided.Status)
	}
	if qty := stockQty(t, svc, ctx, "VAR-TELUR-01"); qty != 120 {
		t.Fatalf("expected stock restored to 120, got %d", qty)
	}

	balance, err := svc.CustomerBalance(ctx, "CUST-BUDI")
	if err != nil {
		t.Fatalf("customer balance failed: %v", err)
	}
	if balance != 0 {
		t.Fatalf("expected receivable reversed to 0, got %d", balance)
	}

	if _, err := svc.VoidSale(adminCtx(), domain.VoidSaleRequest{SaleID: resp.Sale.ID, Reason: "again"}); err == nil {
		t.Fatalf("expected second void to fail")
	}
}

func TestCreateVariantRequiresAdmin(t *testing.T) {
	svc := newTestService()

	_, err := svc.CreateVariant(cashierCtx("kasir-a"), domain.VariantCreateRequest{
		StoreID:    "main-store",
		ID:         "VAR-BARU-01",
		Name:       "Biskuit Coklat",
		Category:   "snack",
		PriceCents: 8500,
	})
	if err == nil {
		t.Fatalf("expected non-admin create variant to fail")
	}
}

func TestStockTransferMovesUnitsBetweenStores(t *testing.T) {
	svc := newTestService()
	ctx := adminCtx()

	if err := svc.TransferStock(ctx, domain.StockTransferRequest{
		FromStoreID: "main-store",
		ToStoreID:   "branch-store",
		VariantID:   "VAR-MIE-01",
		Qty:         20,
	}); err != nil {
		t.Fatalf("transfer failed: %v", err)
	}

	if qty := stockQty(t, svc, ctx, "VAR-MIE-01"); qty != 100 {
		t.Fatalf("expected source stock 100, got %d", qty)
	}
	levels, err := svc.GetStockLevels(ctx, "branch-store", []string{"VAR-MIE-01"})
	if err != nil {
		t.Fatalf("get branch levels failed: %v", err)
	}
	if levels["VAR-MIE-01"].Quantity != 20 {
		t.Fatalf("expected branch stock 20, got %d", levels["VAR-MIE-01"].Quantity)
	}

	if err := svc.TransferStock(ctx, domain.StockTransferRequest{
		FromStoreID: "main-store",
		ToStoreID:   "branch-store",
		VariantID:   "VAR-MIE-01",
		Qty:         5000,
	}); !errors.Is(err, store.ErrInsufficientStock) {
		t.Fatalf("expected over-transfer rejected, got %v", err)
	}
}

func TestAuditLogRecordsCommit(t *testing.T) {
	svc := newTestService()
	ctx := cashierCtx("kasir-a")

	session, err := svc.CreateSession(ctx)
	if err != nil {
		t.Fatalf("create session failed: %v", err)
	}
	mustAddLine(t, svc, ctx, session.Key, "VAR-MIE-01", 1)
	if _, err := svc.CommitSale(ctx, domain.CommitRequest{
		SessionKey:          session.Key,
		PaymentMethod:       "cash",
		AmountReceivedCents: 5000,
	}); err != nil {
		t.Fatalf("commit failed: %v", err)
	}

	logs, err := svc.ListAuditLogs(adminCtx(), "main-store", time.Time{}, time.Time{}, 50)
	if err != nil {
		t.Fatalf("list audit logs failed: %v", err)
	}

	found := false
	for _, entry := range logs {
		if entry.Action == "sale_commit" {
			found = true
			break
		}
	}
	if !found {
		t.Fatalf("expected sale_commit audit entry")
	}
}

func intPtr(v int) *int       { return &v }
func strPtr(v string) *string { return &v }
func boolPtr(v bool) *bool    { return &v }
