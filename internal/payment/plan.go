// Package payment models how a sale total is settled: either one implicit
// tender or an explicit list of splits. The commit path consumes both forms
// through the same validated split list.
package payment

import (
	"fmt"
	"strings"

	"tokopos/internal/domain"
	"tokopos/internal/store"
)

// Plan is the tagged union of the two settlement shapes. Exactly one of
// Single and Split is set.
type Plan struct {
	Single *domain.PaymentSplit
	Split  []domain.PaymentSplit
}

// NewSingle builds the implicit one-tender plan used when the cashier did
// not request a split.
func NewSingle(method string, amountCents int64) Plan {
	return Plan{Single: &domain.PaymentSplit{Method: method, AmountCents: amountCents}}
}

// NewSplit builds an explicit split plan from the tendered parts.
func NewSplit(parts []domain.PaymentSplit) Plan {
	return Plan{Split: normalize(parts)}
}

// IsSplit reports whether the plan carries explicit splits.
func (p Plan) IsSplit() bool {
	return p.Single == nil
}

// Parts returns the uniform split list consumed downstream. For a single
// plan this is the one synthesized tender.
func (p Plan) Parts() []domain.PaymentSplit {
	if p.Single != nil {
		return []domain.PaymentSplit{*p.Single}
	}
	return p.Split
}

// Validate checks the plan against the sale total. Amounts are integer
// cents, so the 0.01 currency tolerance is exact equality. Every part must
// be positive and carry a supported method; non-cash parts of an explicit
// split need a reference.
func (p Plan) Validate(totalCents int64) error {
	parts := p.Parts()
	if len(parts) == 0 {
		return fmt.Errorf("%w: no tender", store.ErrSplitMismatch)
	}

	sum := int64(0)
	for _, part := range parts {
		if !IsMethodSupported(part.Method) {
			return fmt.Errorf("%w: unsupported method %q", store.ErrInvalidInput, part.Method)
		}
		if part.AmountCents < 1 {
			return fmt.Errorf("%w: non-positive amount for %s", store.ErrSplitMismatch, part.Method)
		}
		if p.IsSplit() && part.Method != domain.PaymentMethodCash && strings.TrimSpace(part.Reference) == "" {
			return fmt.Errorf("%w: missing reference for %s tender", store.ErrInvalidInput, part.Method)
		}
		sum += part.AmountCents
	}

	if sum != totalCents {
		return fmt.Errorf("%w: tendered %d, sale total %d", store.ErrSplitMismatch, sum, totalCents)
	}
	return nil
}

// IsMethodSupported reports whether the method is accepted as a tender.
// Credit is a settlement status, not a tender, so it is excluded here.
func IsMethodSupported(method string) bool {
	switch method {
	case domain.PaymentMethodCash, domain.PaymentMethodCard, domain.PaymentMethodQRIS, domain.PaymentMethodEwallet:
		return true
	default:
		return false
	}
}

func normalize(parts []domain.PaymentSplit) []domain.PaymentSplit {
	normalized := make([]domain.PaymentSplit, 0, len(parts))
	for _, part := range parts {
		method := strings.ToLower(strings.TrimSpace(part.Method))
		if method == "" {
			continue
		}
		normalized = append(normalized, domain.PaymentSplit{
			Method:      method,
			AmountCents: part.AmountCents,
			Reference:   strings.TrimSpace(part.Reference),
		})
	}
	return normalized
}
