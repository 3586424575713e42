package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"tokopos/internal/cache"
	"tokopos/internal/cart"
	"tokopos/internal/domain"
	"tokopos/internal/loyalty"
	"tokopos/internal/notify"
	"tokopos/internal/payment"
	"tokopos/internal/store"
	"tokopos/internal/xid"
)

type actorContextKey struct{}

func WithActor(ctx context.Context, actor domain.Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

func ActorFromContext(ctx context.Context) (domain.Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(domain.Actor)
	return actor, ok
}

type Service struct {
	repo           store.Repository
	sessions       cache.SessionCache
	loyalty        *loyalty.Engine
	notifier       notify.Notifier
	defaultStoreID string
	sessionTTL     time.Duration
}

func New(repo store.Repository, sessions cache.SessionCache, loyaltyEngine *loyalty.Engine, notifier notify.Notifier, defaultStoreID string, sessionTTL time.Duration) *Service {
	if defaultStoreID == "" {
		defaultStoreID = "main-store"
	}
	if sessions == nil {
		sessions = cache.NoopSessionCache{}
	}
	if loyaltyEngine == nil {
		loyaltyEngine = loyalty.NewEngine()
	}
	if notifier == nil {
		notifier = notify.LogNotifier{}
	}
	if sessionTTL < time.Minute {
		sessionTTL = 24 * time.Hour
	}

	return &Service{
		repo:           repo,
		sessions:       sessions,
		loyalty:        loyaltyEngine,
		notifier:       notifier,
		defaultStoreID: defaultStoreID,
		sessionTTL:     sessionTTL,
	}
}

func (s *Service) requireActor(ctx context.Context) (domain.Actor, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Username == "" {
		return domain.Actor{}, fmt.Errorf("authenticated actor required")
	}
	if actor.StoreID == "" {
		actor.StoreID = s.defaultStoreID
	}
	return actor, nil
}

// CreateSession opens a fresh active cart for the calling cashier. The
// previously active session, if any, is parked first so exactly one session
// stays active.
func (s *Service) CreateSession(ctx context.Context) (domain.Session, error) {
	actor, err := s.requireActor(ctx)
	if err != nil {
		return domain.Session{}, err
	}

	existing, err := s.repo.ListSessions(ctx, actor.Username)
	if err != nil {
		return domain.Session{}, err
	}
	open := 0
	for _, session := range existing {
		if session.Status != domain.SessionStatusCompleted {
			open++
		}
	}
	if open >= domain.MaxSessionsPerCashier {
		return domain.Session{}, fmt.Errorf("%w: cashier %s already holds %d sessions", store.ErrSessionLimitExceeded, actor.Username, open)
	}

	if err := s.parkActive(ctx, actor.Username, existing, ""); err != nil {
		return domain.Session{}, err
	}

	session, err := s.newActiveSession(ctx, actor)
	if err != nil {
		return domain.Session{}, err
	}

	s.logAudit(ctx, actor.StoreID, "session_create", "session", session.Key, "")
	return session, nil
}

func (s *Service) newActiveSession(ctx context.Context, actor domain.Actor) (domain.Session, error) {
	now := time.Now().UTC()
	session := domain.Session{
		Key:       xid.New("sess"),
		CashierID: actor.Username,
		StoreID:   actor.StoreID,
		Status:    domain.SessionStatusActive,
		Lines:     []domain.CartLine{},
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.saveSession(ctx, &session); err != nil {
		return domain.Session{}, err
	}
	return session, nil
}

// parkActive parks whichever session is currently active, skipping exceptKey.
func (s *Service) parkActive(ctx context.Context, cashierID string, sessions []domain.Session, exceptKey string) error {
	now := time.Now().UTC()
	for i := range sessions {
		session := sessions[i]
		if session.Status != domain.SessionStatusActive || session.Key == exceptKey {
			continue
		}
		session.Status = domain.SessionStatusParked
		parkedAt := now
		session.ParkedAt = &parkedAt
		if err := s.saveSession(ctx, &session); err != nil {
			return err
		}
	}
	return nil
}

func (s *Service) ListSessions(ctx context.Context) (domain.SessionListResponse, error) {
	actor, err := s.requireActor(ctx)
	if err != nil {
		return domain.SessionListResponse{}, err
	}

	sessions, err := s.repo.ListSessions(ctx, actor.Username)
	if err != nil {
		return domain.SessionListResponse{}, err
	}

	resp := domain.SessionListResponse{Sessions: sessions}
	for _, session := range sessions {
		if session.Status == domain.SessionStatusActive {
			resp.ActiveKey = session.Key
			break
		}
	}
	return resp, nil
}

func (s *Service) GetSession(ctx context.Context, key string) (domain.Session, error) {
	actor, err := s.requireActor(ctx)
	if err != nil {
		return domain.Session{}, err
	}
	session, err := s.loadSession(ctx, actor.Username, key)
	if err != nil {
		return domain.Session{}, err
	}
	return *session, nil
}

// loadSession reads through the cache. A repo hit backfills the cache so the
// next read is cheap.
func (s *Service) loadSession(ctx context.Context, cashierID string, key string) (*domain.Session, error) {
	if key == "" {
		return nil, store.ErrInvalidInput
	}

	cached, hit, err := s.sessions.Get(ctx, cashierID, key)
	if err != nil {
		log.Printf("[service] WARN: session cache read failed key=%s: %v", key, err)
	}
	if hit {
		return cached, nil
	}

	session, err := s.repo.GetSession(ctx, cashierID, key)
	if err != nil {
		return nil, err
	}
	if err := s.sessions.Set(ctx, *session, s.sessionTTL); err != nil {
		log.Printf("[service] WARN: session cache backfill failed key=%s: %v", key, err)
	}
	return session, nil
}

// saveSession writes through: repo first, then cache.
func (s *Service) saveSession(ctx context.Context, session *domain.Session) error {
	session.UpdatedAt = time.Now().UTC()
	if err := s.repo.SaveSession(ctx, *session); err != nil {
		return err
	}
	if err := s.sessions.Set(ctx, *session, s.sessionTTL); err != nil {
		log.Printf("[service] WARN: session cache write failed key=%s: %v", session.Key, err)
	}
	return nil
}

func (s *Service) dropSession(ctx context.Context, cashierID string, key string) error {
	if err := s.repo.DeleteSession(ctx, cashierID, key); err != nil && !errors.Is(err, store.ErrNotFound) {
		return err
	}
	if err := s.sessions.Delete(ctx, cashierID, key); err != nil {
		log.Printf("[service] WARN: session cache delete failed key=%s: %v", key, err)
	}
	return nil
}

// SwitchSession resumes the target session and parks the one that was
// active.
func (s *Service) SwitchSession(ctx context.Context, key string) (domain.Session, error) {
	actor, err := s.requireActor(ctx)
	if err != nil {
		return domain.Session{}, err
	}

	target, err := s.loadSession(ctx, actor.Username, key)
	if err != nil {
		return domain.Session{}, err
	}
	if target.Status == domain.SessionStatusCompleted {
		return domain.Session{}, store.ErrInvalidInput
	}
	if target.Status == domain.SessionStatusActive {
		return *target, nil
	}

	sessions, err := s.repo.ListSessions(ctx, actor.Username)
	if err != nil {
		return domain.Session{}, err
	}
	if err := s.parkActive(ctx, actor.Username, sessions, key); err != nil {
		return domain.Session{}, err
	}

	target.Status = domain.SessionStatusActive
	target.ParkedAt = nil
	if err := s.saveSession(ctx, target); err != nil {
		return domain.Session{}, err
	}

	s.logAudit(ctx, actor.StoreID, "session_switch", "session", key, "")
	return *target, nil
}

// ParkSession shelves the session mid-checkout. When it was the active one,
// a fresh active session is opened so the register never ends up without a
// cart.
func (s *Service) ParkSession(ctx context.Context, key string) (domain.Session, error) {
	actor, err := s.requireActor(ctx)
	if err != nil {
		return domain.Session{}, err
	}

	session, err := s.loadSession(ctx, actor.Username, key)
	if err != nil {
		return domain.Session{}, err
	}
	if session.Status == domain.SessionStatusCompleted {
		return domain.Session{}, store.ErrInvalidInput
	}

	wasActive := session.Status == domain.SessionStatusActive
	if wasActive {
		parkedAt := time.Now().UTC()
		session.Status = domain.SessionStatusParked
		session.ParkedAt = &parkedAt
		if err := s.saveSession(ctx, session); err != nil {
			return domain.Session{}, err
		}
		if _, err := s.ensureActiveSession(ctx, actor); err != nil {
			return domain.Session{}, err
		}
	}

	s.logAudit(ctx, actor.StoreID, "session_park", "session", key, "")
	return *session, nil
}

// ensureActiveSession returns the current active session, opening a fresh
// one when none exists. Creation is skipped at the session cap; a cashier at
// the cap keeps working by resuming a parked cart.
func (s *Service) ensureActiveSession(ctx context.Context, actor domain.Actor) (*domain.Session, error) {
	sessions, err := s.repo.ListSessions(ctx, actor.Username)
	if err != nil {
		return nil, err
	}

	open := 0
	for i := range sessions {
		if sessions[i].Status == domain.SessionStatusActive {
			return &sessions[i], nil
		}
		if sessions[i].Status != domain.SessionStatusCompleted {
			open++
		}
	}
	if open >= domain.MaxSessionsPerCashier {
		return nil, nil
	}

	session, err := s.newActiveSession(ctx, actor)
	if err != nil {
		return nil, err
	}
	return &session, nil
}

// CloseSession discards an abandoned session. A session still holding lines
// is refused so cashiers cannot silently drop a customer's cart.
func (s *Service) CloseSession(ctx context.Context, key string) error {
	actor, err := s.requireActor(ctx)
	if err != nil {
		return err
	}

	session, err := s.loadSession(ctx, actor.Username, key)
	if err != nil {
		return err
	}
	if len(session.Lines) > 0 {
		return fmt.Errorf("%w: session %s holds %d lines", store.ErrCartNotEmpty, key, len(session.Lines))
	}

	wasActive := session.Status == domain.SessionStatusActive
	if err := s.dropSession(ctx, actor.Username, key); err != nil {
		return err
	}
	if wasActive {
		if _, err := s.ensureActiveSession(ctx, actor); err != nil {
			return err
		}
	}

	s.logAudit(ctx, actor.StoreID, "session_close", "session", key, "")
	return nil
}

// AddLine appends qty of a variant to the session, snapshotting the current
// catalog price and tax rate into the line.
func (s *Service) AddLine(ctx context.Context, key string, req domain.AddLineRequest) (domain.Session, error) {
	actor, err := s.requireActor(ctx)
	if err != nil {
		return domain.Session{}, err
	}
	if req.Qty < 1 || strings.TrimSpace(req.VariantID) == "" {
		return domain.Session{}, store.ErrInvalidInput
	}

	session, err := s.loadSession(ctx, actor.Username, key)
	if err != nil {
		return domain.Session{}, err
	}
	if session.Status == domain.SessionStatusCompleted {
		return domain.Session{}, store.ErrInvalidInput
	}

	variant, err := s.repo.GetVariantByID(ctx, req.VariantID)
	if err != nil {
		return domain.Session{}, err
	}
	if !variant.Active {
		return domain.Session{}, store.ErrNotFound
	}

	session.Lines = cart.AddLine(session.Lines, domain.CartLine{
		VariantID:      variant.ID,
		ProductName:    variant.Name,
		UnitPriceCents: variant.PriceCents,
		Qty:            req.Qty,
		TaxRatePercent: variant.TaxRatePercent,
	})
	cart.Apply(session)
	if err := s.saveSession(ctx, session); err != nil {
		return domain.Session{}, err
	}
	return *session, nil
}

// UpdateLine patches qty and/or discount of one line. Qty below one removes
// the line.
func (s *Service) UpdateLine(ctx context.Context, key string, req domain.UpdateLineRequest) (domain.Session, error) {
	actor, err := s.requireActor(ctx)
	if err != nil {
		return domain.Session{}, err
	}

	session, err := s.loadSession(ctx, actor.Username, key)
	if err != nil {
		return domain.Session{}, err
	}
	if session.Status == domain.SessionStatusCompleted {
		return domain.Session{}, store.ErrInvalidInput
	}
	if cart.FindLine(session.Lines, req.VariantID) == nil {
		return domain.Session{}, store.ErrNotFound
	}

	if req.Qty != nil {
		session.Lines = cart.SetQty(session.Lines, req.VariantID, *req.Qty)
	}
	if req.DiscountCents != nil {
		if *req.DiscountCents < 0 {
			return domain.Session{}, store.ErrInvalidInput
		}
		if cart.FindLine(session.Lines, req.VariantID) != nil {
			session.Lines = cart.SetDiscount(session.Lines, req.VariantID, *req.DiscountCents)
		}
	}

	cart.Apply(session)
	if err := s.saveSession(ctx, session); err != nil {
		return domain.Session{}, err
	}
	return *session, nil
}

func (s *Service) RemoveLine(ctx context.Context, key string, variantID string) (domain.Session, error) {
	actor, err := s.requireActor(ctx)
	if err != nil {
		return domain.Session{}, err
	}

	session, err := s.loadSession(ctx, actor.Username, key)
	if err != nil {
		return domain.Session{}, err
	}
	if session.Status == domain.SessionStatusCompleted {
		return domain.Session{}, store.ErrInvalidInput
	}
	if cart.FindLine(session.Lines, variantID) == nil {
		return domain.Session{}, store.ErrNotFound
	}

	session.Lines = cart.RemoveLine(session.Lines, variantID)
	cart.Apply(session)
	if err := s.saveSession(ctx, session); err != nil {
		return domain.Session{}, err
	}
	return *session, nil
}

// UpdateSession patches session-level fields: customer, notes, intended
// payment method and amount received.
func (s *Service) UpdateSession(ctx context.Context, key string, req domain.SessionUpdateRequest) (domain.Session, error) {
	actor, err := s.requireActor(ctx)
	if err != nil {
		return domain.Session{}, err
	}

	session, err := s.loadSession(ctx, actor.Username, key)
	if err != nil {
		return domain.Session{}, err
	}
	if session.Status == domain.SessionStatusCompleted {
		return domain.Session{}, store.ErrInvalidInput
	}

	if req.CustomerID != nil {
		customerID := strings.TrimSpace(*req.CustomerID)
		if customerID != "" {
			if _, err := s.repo.GetCustomerByID(ctx, customerID); err != nil {
				return domain.Session{}, err
			}
		}
		session.CustomerID = customerID
	}
	if req.Notes != nil {
		session.Notes = strings.TrimSpace(*req.Notes)
	}
	if req.PaymentMethod != nil {
		method := strings.ToLower(strings.TrimSpace(*req.PaymentMethod))
		if method != "" && method != domain.PaymentMethodCredit && !payment.IsMethodSupported(method) {
			return domain.Session{}, store.ErrInvalidInput
		}
		session.PaymentMethod = method
	}
	if req.AmountReceivedCents != nil {
		if *req.AmountReceivedCents < 0 {
			return domain.Session{}, store.ErrInvalidInput
		}
		session.AmountReceivedCents = *req.AmountReceivedCents
	}

	if err := s.saveSession(ctx, session); err != nil {
		return domain.Session{}, err
	}
	return *session, nil
}

// CommitSale turns the session into a persisted sale. Validation happens
// up front; the store then applies stock decrements, the sale record, the
// receivable entry and the loyalty award as one transaction, so a failure
// anywhere leaves no partial writes.
func (s *Service) CommitSale(ctx context.Context, req domain.CommitRequest) (domain.CommitResponse, error) {
	actor, err := s.requireActor(ctx)
	if err != nil {
		return domain.CommitResponse{}, err
	}

	if req.IdempotencyKey != "" {
		if existing, err := s.repo.FindSaleByIdempotency(ctx, req.IdempotencyKey); err == nil {
			return domain.CommitResponse{Sale: *existing, Duplicate: true}, nil
		} else if !errors.Is(err, store.ErrNotFound) {
			return domain.CommitResponse{}, err
		}
	}

	session, err := s.loadSession(ctx, actor.Username, req.SessionKey)
	if err != nil {
		return domain.CommitResponse{}, err
	}
	if session.Status == domain.SessionStatusCompleted {
		return domain.CommitResponse{}, store.ErrInvalidInput
	}

	if req.PaymentMethod != "" {
		session.PaymentMethod = strings.ToLower(strings.TrimSpace(req.PaymentMethod))
	}
	if req.AmountReceivedCents > 0 {
		session.AmountReceivedCents = req.AmountReceivedCents
	}

	cart.Apply(session)
	if len(session.Lines) == 0 {
		return s.failCommit(ctx, session, req, store.ErrEmptyCart)
	}

	method := session.PaymentMethod
	if len(req.Splits) > 0 {
		method = domain.PaymentMethodSplit
	}
	if method == "" {
		method = domain.PaymentMethodCash
	}

	paymentStatus := domain.PaymentStatusPaid
	changeCents := int64(0)
	var splits []domain.PaymentSplit

	switch {
	case method == domain.PaymentMethodSplit:
		plan := payment.NewSplit(req.Splits)
		if err := plan.Validate(session.TotalCents); err != nil {
			return s.failCommit(ctx, session, req, err)
		}
		splits = plan.Parts()
	case method == domain.PaymentMethodCredit:
		if session.CustomerID == "" {
			return s.failCommit(ctx, session, req, fmt.Errorf("%w: credit sale requires a customer", store.ErrInvalidInput))
		}
		paymentStatus = domain.PaymentStatusCredit
	case method == domain.PaymentMethodCash:
		if session.AmountReceivedCents < session.TotalCents {
			return s.failCommit(ctx, session, req, fmt.Errorf("%w: received %d, sale total %d", store.ErrInsufficientPayment, session.AmountReceivedCents, session.TotalCents))
		}
		changeCents = session.AmountReceivedCents - session.TotalCents
	default:
		plan := payment.NewSingle(method, session.TotalCents)
		if err := plan.Validate(session.TotalCents); err != nil {
			return s.failCommit(ctx, session, req, err)
		}
		session.AmountReceivedCents = session.TotalCents
	}

	items := make([]domain.SaleItem, 0, len(session.Lines))
	for _, line := range session.Lines {
		items = append(items, domain.SaleItem{
			VariantID:      line.VariantID,
			ProductName:    line.ProductName,
			Qty:            line.Qty,
			UnitPriceCents: line.UnitPriceCents,
			DiscountCents:  cart.LineDiscount(line),
			TaxCents:       cart.LineTax(line),
			TotalCents:     cart.LineTotal(line),
		})
	}

	pointsEarned := int64(0)
	if session.CustomerID != "" {
		customer, err := s.repo.GetCustomerByID(ctx, session.CustomerID)
		if err != nil {
			return s.failCommit(ctx, session, req, err)
		}
		pointsEarned = s.loyalty.PointsFor(session.TotalCents, customer.Tier)
	}

	sale := domain.Sale{
		ID:                  xid.New("sale"),
		StoreID:             session.StoreID,
		CashierID:           session.CashierID,
		CustomerID:          session.CustomerID,
		IdempotencyKey:      req.IdempotencyKey,
		SubtotalCents:       session.SubtotalCents,
		DiscountTotalCents:  session.DiscountTotalCents,
		TaxTotalCents:       session.TaxTotalCents,
		TotalCents:          session.TotalCents,
		PaymentMethod:       method,
		PaymentStatus:       paymentStatus,
		AmountReceivedCents: session.AmountReceivedCents,
		ChangeCents:         changeCents,
		Status:              domain.SaleStatusCompleted,
		LoyaltyPointsEarned: pointsEarned,
		CreatedAt:           time.Now().UTC(),
		Items:               items,
		Splits:              splits,
	}

	committed, err := s.repo.CommitSale(ctx, sale)
	if err != nil {
		return s.failCommit(ctx, session, req, err)
	}
	duplicate := committed.ID != sale.ID

	if !duplicate {
		if err := s.dropSession(ctx, actor.Username, session.Key); err != nil {
			log.Printf("[service] WARN: failed to drop committed session key=%s: %v", session.Key, err)
		}
		if _, err := s.ensureActiveSession(ctx, actor); err != nil {
			log.Printf("[service] WARN: failed to open replacement session for %s: %v", actor.Username, err)
		}
	}

	s.notifier.CommitAttempted(notify.CommitEvent{
		SessionKey:    session.Key,
		StoreID:       committed.StoreID,
		CashierID:     committed.CashierID,
		InvoiceNumber: committed.InvoiceNumber,
		TotalCents:    committed.TotalCents,
		Success:       true,
	})
	s.logAudit(ctx, committed.StoreID, "sale_commit", "sale", committed.ID, fmt.Sprintf("invoice=%s,total=%d,method=%s", committed.InvoiceNumber, committed.TotalCents, committed.PaymentMethod))

	return domain.CommitResponse{Sale: *committed, Duplicate: duplicate}, nil
}

func (s *Service) failCommit(ctx context.Context, session *domain.Session, req domain.CommitRequest, err error) (domain.CommitResponse, error) {
	s.notifier.CommitAttempted(notify.CommitEvent{
		SessionKey:    session.Key,
		StoreID:       session.StoreID,
		CashierID:     session.CashierID,
		TotalCents:    session.TotalCents,
		Success:       false,
		FailureReason: err.Error(),
	})
	return domain.CommitResponse{}, err
}

// VoidSale reverses a committed sale: restock, receivable reversal for
// credit sales, loyalty clawback. Admin only.
func (s *Service) VoidSale(ctx context.Context, req domain.VoidSaleRequest) (domain.Sale, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Role != "admin" {
		return domain.Sale{}, fmt.Errorf("admin role required")
	}
	if strings.TrimSpace(req.Reason) == "" {
		return domain.Sale{}, store.ErrInvalidInput
	}

	voided, err := s.repo.VoidSale(ctx, req.SaleID, strings.TrimSpace(req.Reason), time.Now().UTC())
	if err != nil {
		return domain.Sale{}, err
	}

	s.logAudit(ctx, voided.StoreID, "sale_void", "sale", voided.ID, req.Reason)
	return *voided, nil
}

func (s *Service) GetSale(ctx context.Context, saleID string) (domain.Sale, error) {
	sale, err := s.repo.FindSaleByID(ctx, saleID)
	if err != nil {
		return domain.Sale{}, err
	}
	return *sale, nil
}

func (s *Service) ListVariants(ctx context.Context) ([]domain.Variant, error) {
	return s.repo.ListVariants(ctx)
}

func (s *Service) CreateVariant(ctx context.Context, req domain.VariantCreateRequest) (domain.Variant, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Role != "admin" {
		return domain.Variant{}, fmt.Errorf("admin role required")
	}
	if req.StoreID == "" {
		req.StoreID = s.defaultStoreID
	}

	req.ID = strings.ToUpper(strings.TrimSpace(req.ID))
	req.Name = strings.TrimSpace(req.Name)
	req.Category = strings.TrimSpace(req.Category)
	if req.ID == "" || req.Name == "" || req.Category == "" {
		return domain.Variant{}, store.ErrInvalidInput
	}
	if req.PriceCents < 1 || req.TaxRatePercent < 0 || req.TaxRatePercent > 100 || req.InitialStock < 0 {
		return domain.Variant{}, store.ErrInvalidInput
	}

	created, err := s.repo.CreateVariant(ctx, domain.Variant{
		ID:             req.ID,
		Name:           req.Name,
		Category:       req.Category,
		PriceCents:     req.PriceCents,
		TaxRatePercent: req.TaxRatePercent,
		Active:         true,
	})
	if err != nil {
		return domain.Variant{}, err
	}

	if req.InitialStock > 0 {
		err := s.repo.IncreaseStock(ctx, req.StoreID, []domain.StockAdjustment{{
			VariantID: created.ID,
			Qty:       req.InitialStock,
		}}, domain.MovementKindPurchase, "")
		if err != nil {
			return domain.Variant{}, err
		}
	}

	s.logAudit(ctx, req.StoreID, "variant_create", "variant", created.ID, fmt.Sprintf("name=%s,price=%d,stock=%d", created.Name, created.PriceCents, req.InitialStock))
	return *created, nil
}

func (s *Service) UpdateVariant(ctx context.Context, variantID string, req domain.VariantUpdateRequest) (domain.Variant, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Role != "admin" {
		return domain.Variant{}, fmt.Errorf("admin role required")
	}

	variantID = strings.ToUpper(strings.TrimSpace(variantID))
	if variantID == "" {
		return domain.Variant{}, store.ErrInvalidInput
	}

	existing, err := s.repo.GetVariantByID(ctx, variantID)
	if err != nil {
		return domain.Variant{}, err
	}

	updated := *existing
	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			return domain.Variant{}, store.ErrInvalidInput
		}
		updated.Name = name
	}
	if req.Category != nil {
		category := strings.TrimSpace(*req.Category)
		if category == "" {
			return domain.Variant{}, store.ErrInvalidInput
		}
		updated.Category = category
	}
	if req.PriceCents != nil {
		if *req.PriceCents < 1 {
			return domain.Variant{}, store.ErrInvalidInput
		}
		updated.PriceCents = *req.PriceCents
	}
	if req.TaxRatePercent != nil {
		if *req.TaxRatePercent < 0 || *req.TaxRatePercent > 100 {
			return domain.Variant{}, store.ErrInvalidInput
		}
		updated.TaxRatePercent = *req.TaxRatePercent
	}
	if req.Active != nil {
		updated.Active = *req.Active
	}

	saved, err := s.repo.UpdateVariant(ctx, updated)
	if err != nil {
		return domain.Variant{}, err
	}

	s.logAudit(ctx, s.defaultStoreID, "variant_update", "variant", saved.ID, fmt.Sprintf("active=%t,price=%d", saved.Active, saved.PriceCents))
	return *saved, nil
}

func (s *Service) GetStockLevels(ctx context.Context, storeID string, variantIDs []string) (map[string]domain.StockLevel, error) {
	if storeID == "" {
		storeID = s.defaultStoreID
	}
	return s.repo.GetStockLevels(ctx, storeID, variantIDs)
}

func (s *Service) IncreaseStock(ctx context.Context, req domain.StockIncreaseRequest) error {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Role != "admin" {
		return fmt.Errorf("admin role required")
	}
	if req.StoreID == "" {
		req.StoreID = s.defaultStoreID
	}
	if len(req.Adjustments) == 0 {
		return store.ErrInvalidInput
	}
	for _, adj := range req.Adjustments {
		if adj.VariantID == "" || adj.Qty < 1 {
			return store.ErrInvalidInput
		}
	}

	if err := s.repo.IncreaseStock(ctx, req.StoreID, req.Adjustments, req.Kind, req.RefID); err != nil {
		return err
	}

	s.logAudit(ctx, req.StoreID, "stock_increase", "stock", req.StoreID, fmt.Sprintf("kind=%s,lines=%d", req.Kind, len(req.Adjustments)))
	return nil
}

func (s *Service) TransferStock(ctx context.Context, req domain.StockTransferRequest) error {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Role != "admin" {
		return fmt.Errorf("admin role required")
	}
	if req.FromStoreID == "" {
		req.FromStoreID = s.defaultStoreID
	}

	if err := s.repo.TransferStock(ctx, req.FromStoreID, req.ToStoreID, req.VariantID, req.Qty); err != nil {
		return err
	}

	s.logAudit(ctx, req.FromStoreID, "stock_transfer", "stock", req.VariantID, fmt.Sprintf("to=%s,qty=%d", req.ToStoreID, req.Qty))
	return nil
}

func (s *Service) ListInventoryMovements(ctx context.Context, storeID string, variantID string, limit int) ([]domain.InventoryMovement, error) {
	if storeID == "" {
		storeID = s.defaultStoreID
	}
	return s.repo.ListInventoryMovements(ctx, storeID, variantID, limit)
}

func (s *Service) CreateCustomer(ctx context.Context, req domain.CustomerCreateRequest) (domain.Customer, error) {
	actor, err := s.requireActor(ctx)
	if err != nil {
		return domain.Customer{}, err
	}

	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		return domain.Customer{}, store.ErrInvalidInput
	}
	tier := strings.ToLower(strings.TrimSpace(req.Tier))
	if tier == "" {
		tier = domain.TierRegular
	}
	if tier != domain.TierRegular && tier != domain.TierSilver && tier != domain.TierGold {
		return domain.Customer{}, store.ErrInvalidInput
	}

	created, err := s.repo.CreateCustomer(ctx, domain.Customer{
		ID:        xid.New("cust"),
		Name:      req.Name,
		Phone:     strings.TrimSpace(req.Phone),
		Tier:      tier,
		CreatedAt: time.Now().UTC(),
	})
	if err != nil {
		return domain.Customer{}, err
	}

	s.logAudit(ctx, actor.StoreID, "customer_create", "customer", created.ID, created.Name)
	return *created, nil
}

func (s *Service) GetCustomer(ctx context.Context, customerID string) (domain.Customer, error) {
	customer, err := s.repo.GetCustomerByID(ctx, customerID)
	if err != nil {
		return domain.Customer{}, err
	}
	return *customer, nil
}

func (s *Service) ListCustomers(ctx context.Context, limit int) ([]domain.Customer, error) {
	return s.repo.ListCustomers(ctx, limit)
}

// RecordCustomerPayment settles receivables: a credit entry against the
// customer's running balance.
func (s *Service) RecordCustomerPayment(ctx context.Context, req domain.CustomerPaymentRequest) (domain.CustomerLedgerEntry, error) {
	actor, err := s.requireActor(ctx)
	if err != nil {
		return domain.CustomerLedgerEntry{}, err
	}
	if req.CustomerID == "" || req.AmountCents < 1 {
		return domain.CustomerLedgerEntry{}, store.ErrInvalidInput
	}
	method := strings.ToLower(strings.TrimSpace(req.Method))
	if method == "" {
		method = domain.PaymentMethodCash
	}
	if !payment.IsMethodSupported(method) {
		return domain.CustomerLedgerEntry{}, store.ErrInvalidInput
	}

	entry, err := s.repo.AppendLedgerEntry(ctx, domain.CustomerLedgerEntry{
		CustomerID:      req.CustomerID,
		EntryType:       domain.LedgerEntryPayment,
		CreditCents:     req.AmountCents,
		ReferenceType:   "payment",
		ReferenceID:     strings.TrimSpace(req.Reference),
		TransactionDate: time.Now().UTC(),
	})
	if err != nil {
		return domain.CustomerLedgerEntry{}, err
	}

	s.logAudit(ctx, actor.StoreID, "customer_payment", "customer", req.CustomerID, fmt.Sprintf("amount=%d,method=%s", req.AmountCents, method))
	return *entry, nil
}

func (s *Service) ListLedgerEntries(ctx context.Context, customerID string, limit int) ([]domain.CustomerLedgerEntry, error) {
	if customerID == "" {
		return nil, store.ErrInvalidInput
	}
	return s.repo.ListLedgerEntries(ctx, customerID, limit)
}

// CustomerBalance reports the current receivable balance, zero when the
// ledger is empty.
func (s *Service) CustomerBalance(ctx context.Context, customerID string) (int64, error) {
	entries, err := s.repo.ListLedgerEntries(ctx, customerID, 0)
	if err != nil {
		return 0, err
	}
	if len(entries) == 0 {
		return 0, nil
	}
	return entries[len(entries)-1].BalanceCents, nil
}

func (s *Service) RedeemLoyaltyPoints(ctx context.Context, req domain.LoyaltyRedeemRequest) (domain.LoyaltyPoint, error) {
	actor, err := s.requireActor(ctx)
	if err != nil {
		return domain.LoyaltyPoint{}, err
	}

	entry, err := s.repo.RedeemLoyaltyPoints(ctx, req.CustomerID, req.Points)
	if err != nil {
		return domain.LoyaltyPoint{}, err
	}

	s.logAudit(ctx, actor.StoreID, "loyalty_redeem", "customer", req.CustomerID, fmt.Sprintf("points=%d", req.Points))
	return *entry, nil
}

func (s *Service) ListLoyaltyPoints(ctx context.Context, customerID string, limit int) ([]domain.LoyaltyPoint, error) {
	if customerID == "" {
		return nil, store.ErrInvalidInput
	}
	return s.repo.ListLoyaltyPoints(ctx, customerID, limit)
}

func (s *Service) ListAuditLogs(ctx context.Context, storeID string, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Role != "admin" {
		return nil, fmt.Errorf("admin role required")
	}
	if storeID == "" {
		storeID = s.defaultStoreID
	}
	if from.IsZero() {
		from = time.Now().UTC().AddDate(0, 0, -7)
	}
	if to.IsZero() {
		to = time.Now().UTC().Add(time.Minute)
	}
	return s.repo.ListAuditLogs(ctx, storeID, from, to, limit)
}

// logAudit is best effort: an audit write failure never fails the business
// operation, it only logs.
func (s *Service) logAudit(ctx context.Context, storeID string, action string, entityType string, entityID string, detail string) {
	actor, _ := ActorFromContext(ctx)
	if storeID == "" {
		storeID = s.defaultStoreID
	}
	entry := domain.AuditLog{
		ID:            xid.New("audit"),
		StoreID:       storeID,
		ActorUsername: actor.Username,
		ActorRole:     actor.Role,
		Action:        action,
		EntityType:    entityType,
		EntityID:      entityID,
		Detail:        detail,
		CreatedAt:     time.Now().UTC(),
	}
	if err := s.repo.CreateAuditLog(ctx, entry); err != nil {
		log.Printf("[service] WARN: failed to write audit log action=%s: %v", action, err)
	}
}
