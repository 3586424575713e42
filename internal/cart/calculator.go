// Package cart holds the pure cart arithmetic shared by the session store
// and the commit path. All money is int64 cents; tax is rounded per line so
// long carts do not accumulate penny drift.
package cart

import (
	"math"

	"tokopos/internal/domain"
)

// Totals is the result of recomputing a cart.
type Totals struct {
	SubtotalCents      int64
	DiscountTotalCents int64
	TaxTotalCents      int64
	TotalCents         int64
}

// LineSubtotal returns unit price times quantity for one line.
func LineSubtotal(line domain.CartLine) int64 {
	return line.UnitPriceCents * int64(line.Qty)
}

// LineDiscount returns the line discount clamped to the line subtotal. A
// discount can zero a line out but never drive it negative.
func LineDiscount(line domain.CartLine) int64 {
	discount := line.DiscountCents
	if discount < 0 {
		discount = 0
	}
	if subtotal := LineSubtotal(line); discount > subtotal {
		discount = subtotal
	}
	return discount
}

// LineTax computes the line tax on the discounted subtotal, rounded at the
// line level.
func LineTax(line domain.CartLine) int64 {
	base := LineSubtotal(line) - LineDiscount(line)
	if base <= 0 {
		return 0
	}
	return int64(math.Round(float64(base) * line.TaxRatePercent / 100))
}

// LineTotal is the amount the line contributes to the sale total.
func LineTotal(line domain.CartLine) int64 {
	return LineSubtotal(line) - LineDiscount(line) + LineTax(line)
}

// Compute recalculates all totals for the given lines.
func Compute(lines []domain.CartLine) Totals {
	var t Totals
	for _, line := range lines {
		t.SubtotalCents += LineSubtotal(line)
		t.DiscountTotalCents += LineDiscount(line)
		t.TaxTotalCents += LineTax(line)
	}
	t.TotalCents = t.SubtotalCents - t.DiscountTotalCents + t.TaxTotalCents
	return t
}

// Apply recomputes the totals of a session in place.
func Apply(session *domain.Session) {
	t := Compute(session.Lines)
	session.SubtotalCents = t.SubtotalCents
	session.DiscountTotalCents = t.DiscountTotalCents
	session.TaxTotalCents = t.TaxTotalCents
	session.TotalCents = t.TotalCents
}

// AddLine merges the new line into the cart. Adding a variant already in
// the cart increments its quantity and keeps the original price snapshot.
func AddLine(lines []domain.CartLine, add domain.CartLine) []domain.CartLine {
	if add.Qty < 1 {
		return lines
	}
	for i := range lines {
		if lines[i].VariantID == add.VariantID {
			lines[i].Qty += add.Qty
			return lines
		}
	}
	return append(lines, add)
}

// SetQty replaces the quantity of the variant's line. A quantity below 1
// removes the line entirely rather than leaving a zero-quantity line.
func SetQty(lines []domain.CartLine, variantID string, qty int) []domain.CartLine {
	if qty < 1 {
		return RemoveLine(lines, variantID)
	}
	for i := range lines {
		if lines[i].VariantID == variantID {
			lines[i].Qty = qty
			break
		}
	}
	return lines
}

// SetDiscount sets the line discount, clamped at recompute time.
func SetDiscount(lines []domain.CartLine, variantID string, discountCents int64) []domain.CartLine {
	if discountCents < 0 {
		discountCents = 0
	}
	for i := range lines {
		if lines[i].VariantID == variantID {
			lines[i].DiscountCents = discountCents
			break
		}
	}
	return lines
}

// RemoveLine drops the variant's line, preserving the order of the rest.
func RemoveLine(lines []domain.CartLine, variantID string) []domain.CartLine {
	kept := lines[:0]
	for _, line := range lines {
		if line.VariantID != variantID {
			kept = append(kept, line)
		}
	}
	return kept
}

// FindLine returns the line for the variant, or nil.
func FindLine(lines []domain.CartLine, variantID string) *domain.CartLine {
	for i := range lines {
		if lines[i].VariantID == variantID {
			return &lines[i]
		}
	}
	return nil
}
