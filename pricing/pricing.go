// Package pricing computes order totals. The server uses it authoritatively at
// checkout; the client cart uses it for display only.
package pricing

import (
	"time"

	"github.com/shopspring/decimal"
)

// TaxRate is the fixed sales tax applied to the subtotal.
var TaxRate = decimal.RequireFromString("0.085")

var hundred = decimal.NewFromInt(100)

// Line is one priced line item.
type Line struct {
	UnitPrice    decimal.Decimal
	Quantity     int
	OptionPrices []decimal.Decimal
}

// Total returns unitPrice×qty plus every selected option price×qty.
func (l Line) Total() decimal.Decimal {
	qty := decimal.NewFromInt(int64(l.Quantity))
	total := l.UnitPrice.Mul(qty)
	for _, p := range l.OptionPrices {
		total = total.Add(p.Mul(qty))
	}
	return total
}

type Breakdown struct {
	Subtotal    decimal.Decimal
	DeliveryFee decimal.Decimal
	Tax         decimal.Decimal
	Discount    decimal.Decimal
	Total       decimal.Decimal
	LineTotals  []decimal.Decimal
}

// Tax rounds subtotal×TaxRate half-up to cents.
func Tax(subtotal decimal.Decimal) decimal.Decimal {
	return RoundCents(subtotal.Mul(TaxRate))
}

// RoundCents rounds half away from zero, which is half-up for the non-negative
// amounts this package deals with.
func RoundCents(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}

// Compute prices lines against a delivery fee and discount.
func Compute(lines []Line, deliveryFee, discount decimal.Decimal) Breakdown {
	b := Breakdown{
		Subtotal:    decimal.Zero,
		DeliveryFee: deliveryFee,
		Discount:    discount,
		LineTotals:  make([]decimal.Decimal, len(lines)),
	}
	for i, l := range lines {
		lt := l.Total()
		b.LineTotals[i] = lt
		b.Subtotal = b.Subtotal.Add(lt)
	}
	b.Tax = Tax(b.Subtotal)
	b.Total = b.Subtotal.Add(b.DeliveryFee).Add(b.Tax).Sub(b.Discount)
	return b
}

// EffectiveUnitPrice applies a percentage discount that is still valid at now.
// A nil validUntil means the discount does not expire.
func EffectiveUnitPrice(price, percentage decimal.Decimal, validUntil *time.Time, now time.Time) decimal.Decimal {
	if !percentage.IsPositive() {
		return price
	}
	if validUntil != nil && !now.Before(*validUntil) {
		return price
	}
	if percentage.GreaterThanOrEqual(hundred) {
		return decimal.Zero
	}
	off := hundred.Sub(percentage).Div(hundred)
	return RoundCents(price.Mul(off))
}
