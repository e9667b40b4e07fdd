package promo

import (
	"fmt"
	"slices"
	"time"

	"github.com/shopspring/decimal"
)

type DiscountType string

const (
	DiscountPercentage DiscountType = "percentage"
	DiscountFixed      DiscountType = "fixed"
)

// PromoCode is an admin-managed discount code. Zero values stand in for
// "unset" on the optional limits: UsageLimit 0 means unlimited redemptions
// and a zero MaximumDiscountAmount means no cap.
type PromoCode struct {
	ID                    string          `json:"promoId"`
	Code                  string          `json:"code"`
	Description           string          `json:"description"`
	DiscountType          DiscountType    `json:"discountType"`
	DiscountValue         decimal.Decimal `json:"discountValue"`
	MinimumOrderAmount    decimal.Decimal `json:"minimumOrderAmount"`
	MaximumDiscountAmount decimal.Decimal `json:"maximumDiscountAmount"`
	ExpiryDate            time.Time       `json:"expiryDate"`
	UsageLimit            int             `json:"usageLimit"`
	UsedCount             int             `json:"usedCount"`
	IsActive              bool            `json:"isActive"`
	ApplicableCategories  []string        `json:"applicableCategories,omitempty"`
	ExcludedCategories    []string        `json:"excludedCategories,omitempty"`
}

type ValidationResult struct {
	Valid  bool
	Reason string
}

type DiscountResult struct {
	Discount decimal.Decimal
	Reason   string
}

// EligibleLine is the slice of a cart line the evaluator needs: how much
// money it represents and which category it belongs to.
type EligibleLine struct {
	UnitPrice decimal.Decimal
	Quantity  int
	Category  string
}

// Validate checks redeemability at a point in time. It does not look at the
// cart; ComputeDiscount owns the amount-dependent rules.
func (p *PromoCode) Validate(now time.Time) ValidationResult {
	if !p.IsActive {
		return ValidationResult{Valid: false, Reason: "promo code is not active"}
	}
	if now.After(p.ExpiryDate) {
		return ValidationResult{Valid: false, Reason: "promo code has expired"}
	}
	if p.UsageLimit > 0 && p.UsedCount >= p.UsageLimit {
		return ValidationResult{Valid: false, Reason: "promo code usage limit exceeded"}
	}
	return ValidationResult{Valid: true, Reason: "promo code is valid"}
}

func (p *PromoCode) categoryScoped() bool {
	return len(p.ApplicableCategories) > 0 || len(p.ExcludedCategories) > 0
}

func (p *PromoCode) lineQualifies(category string) bool {
	if slices.Contains(p.ExcludedCategories, category) {
		return false
	}
	if len(p.ApplicableCategories) > 0 {
		return slices.Contains(p.ApplicableCategories, category)
	}
	return true
}

// ComputeDiscount derives the discount for a cart. For category-scoped codes
// the discount base is the subtotal of qualifying lines only, and a cart
// with no qualifying lines is rejected even when the raw subtotal clears the
// minimum. The result is rounded to cents, half away from zero, and can
// never exceed the base it was computed from.
func (p *PromoCode) ComputeDiscount(subtotal decimal.Decimal, lines []EligibleLine) DiscountResult {
	base := subtotal
	if p.categoryScoped() {
		base = decimal.Zero
		for _, line := range lines {
			if p.lineQualifies(line.Category) {
				base = base.Add(line.UnitPrice.Mul(decimal.NewFromInt(int64(line.Quantity))))
			}
		}
		if base.IsZero() {
			return DiscountResult{Discount: decimal.Zero, Reason: "no items in the cart qualify for this promo code"}
		}
	}

	if subtotal.LessThan(p.MinimumOrderAmount) {
		return DiscountResult{
			Discount: decimal.Zero,
			Reason:   fmt.Sprintf("minimum order amount of $%s required", p.MinimumOrderAmount.StringFixed(2)),
		}
	}

	var discount decimal.Decimal
	if p.DiscountType == DiscountPercentage {
		discount = base.Mul(p.DiscountValue).Div(decimal.NewFromInt(100))
	} else {
		discount = p.DiscountValue
	}

	if p.MaximumDiscountAmount.IsPositive() && discount.GreaterThan(p.MaximumDiscountAmount) {
		discount = p.MaximumDiscountAmount
	}
	if discount.GreaterThan(base) {
		discount = base
	}

	return DiscountResult{Discount: discount.Round(2), Reason: "discount applied"}
}
