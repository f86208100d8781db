// Package commission splits a Channel sale between the vendor and the platform.
package commission

import (
	"fmt"

	"github.com/shopspring/decimal"

	pkgerrors "github.com/angelmondragon/packfinderz-channelsync/pkg/errors"
)

// DefaultRate is the platform commission applied to retail-priced products.
var DefaultRate = decimal.RequireFromString("0.15")

// Basis records which product price drove the vendor payout.
type Basis string

const (
	BasisWholesale Basis = "wholesale"
	BasisRetail    Basis = "retail"
)

// Pricing is the slice of a product the calculator needs.
type Pricing struct {
	RetailCents    int
	WholesaleCents *int
}

// Payout is the split of one order line.
type Payout struct {
	VendorCents   int
	PlatformCents int
	// Rate is the effective platform share of the line total, 4 decimal places.
	Rate  decimal.Decimal
	Basis Basis
}

// Calculator is pure and safe for concurrent use.
type Calculator struct {
	rate decimal.Decimal
}

// NewCalculator builds a calculator with the given default commission rate.
func NewCalculator(rate decimal.Decimal) (Calculator, error) {
	if rate.IsNegative() || rate.GreaterThanOrEqual(decimal.NewFromInt(1)) {
		return Calculator{}, fmt.Errorf("commission rate %s must be in [0, 1)", rate)
	}
	return Calculator{rate: rate}, nil
}

// Rate returns the configured default rate.
func (c Calculator) Rate() decimal.Decimal {
	return c.rate
}

// ComputePayout splits quantity units sold on the Channel at salePriceCents each.
//
// A positive wholesale price pays the vendor wholesale*quantity. Otherwise the
// vendor receives retail*(1-rate)*quantity, rounded half away from zero to the
// cent. The platform keeps the rest of the Channel sale, which is negative when
// the Channel sold below the vendor payout.
func (c Calculator) ComputePayout(p Pricing, salePriceCents, quantity int) (Payout, error) {
	if quantity <= 0 {
		return Payout{}, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("quantity must be positive, got %d", quantity))
	}
	if salePriceCents < 0 || p.RetailCents < 0 {
		return Payout{}, pkgerrors.New(pkgerrors.CodeValidation, "prices must not be negative")
	}

	qty := decimal.NewFromInt(int64(quantity))
	gross := decimal.NewFromInt(int64(salePriceCents)).Mul(qty)

	var (
		vendor decimal.Decimal
		basis  Basis
	)
	if p.WholesaleCents != nil && *p.WholesaleCents > 0 {
		vendor = decimal.NewFromInt(int64(*p.WholesaleCents)).Mul(qty)
		basis = BasisWholesale
	} else {
		keep := decimal.NewFromInt(1).Sub(c.rate)
		vendor = decimal.NewFromInt(int64(p.RetailCents)).Mul(keep).Mul(qty).Round(0)
		basis = BasisRetail
	}
	platform := gross.Sub(vendor)

	rate := c.rate
	if basis == BasisWholesale {
		rate = decimal.Zero
		if gross.IsPositive() {
			rate = platform.Div(gross).Round(4)
		}
	}

	return Payout{
		VendorCents:   int(vendor.IntPart()),
		PlatformCents: int(platform.IntPart()),
		Rate:          rate,
		Basis:         basis,
	}, nil
}
