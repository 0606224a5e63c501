package services

import (
	"context"
	"errors"
	"strings"

	"github.com/shopspring/decimal"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/width"

	domain "github.com/couture-field/checkout/internal/domain"
	"github.com/couture-field/checkout/internal/repositories"
)

var hundred = decimal.NewFromInt(100)

// PromotionEvaluatorDeps wires the promotion evaluator.
type PromotionEvaluatorDeps struct {
	Promotions repositories.PromotionRepository
	Logger     func(ctx context.Context, event string, fields map[string]any)
}

type promotionEvaluator struct {
	promotions repositories.PromotionRepository
	logger     func(ctx context.Context, event string, fields map[string]any)
}

// NewPromotionEvaluator constructs a PromotionEvaluator.
func NewPromotionEvaluator(deps PromotionEvaluatorDeps) (PromotionEvaluator, error) {
	if deps.Promotions == nil {
		return nil, errors.New("promotion evaluator: promotion repository is required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &promotionEvaluator{promotions: deps.Promotions, logger: logger}, nil
}

// Evaluate loads the code and prices it. Every rejection reason yields ErrPromotionCodeNotFound.
func (e *promotionEvaluator) Evaluate(ctx context.Context, query PromotionQuery) (PromotionEvaluation, error) {
	code := NormalizePromotionCode(query.Code)
	if code == "" {
		return PromotionEvaluation{}, ErrPromotionCodeNotFound
	}

	promo, err := e.promotions.FindByCode(ctx, code)
	if err != nil {
		if isNotFound(err) {
			return PromotionEvaluation{}, ErrPromotionCodeNotFound
		}
		return PromotionEvaluation{}, translateStoreError(err, ErrPromotionCodeNotFound)
	}

	discount, err := PricePromotion(promo, query)
	if err != nil {
		e.logger(ctx, "promotion.rejected", map[string]any{"code": code})
		return PromotionEvaluation{}, err
	}
	return PromotionEvaluation{Promotion: promo, Discount: discount}, nil
}

// PricePromotion applies the usage rules and discount formula to an already loaded code.
func PricePromotion(promo domain.PromotionCode, query PromotionQuery) (decimal.Decimal, error) {
	if promo.Exhausted() {
		return decimal.Zero, ErrPromotionCodeNotFound
	}
	if promo.ExpiresAt != nil && !query.Now.IsZero() && !query.Now.Before(*promo.ExpiresAt) {
		return decimal.Zero, ErrPromotionCodeNotFound
	}
	if query.CartTotal.Add(query.Surcharge).LessThan(promo.MinAmount) {
		return decimal.Zero, ErrPromotionCodeNotFound
	}

	var discount decimal.Decimal
	switch promo.Type {
	case domain.DiscountPercentage:
		discount = query.CartTotal.Mul(promo.Discount).Div(hundred)
	case domain.DiscountFixed:
		discount = decimal.Min(promo.Discount, query.CartTotal)
	case domain.DiscountFreeShipping:
		discount = query.ShippingCost
	default:
		return decimal.Zero, ErrPromotionCodeNotFound
	}
	if discount.IsNegative() {
		discount = decimal.Zero
	}
	return domain.RoundMoney(discount), nil
}

var upperCaser = cases.Upper(language.Und)

// NormalizePromotionCode folds full-width characters, trims and upper-cases a code.
func NormalizePromotionCode(code string) string {
	folded := width.Fold.String(code)
	return upperCaser.String(strings.TrimSpace(folded))
}
