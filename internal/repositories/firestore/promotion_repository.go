package firestore

import (
	"context"
	"errors"
	"strings"
	"time"

	"cloud.google.com/go/firestore"

	domain "github.com/couture-field/checkout/internal/domain"
	pfirestore "github.com/couture-field/checkout/internal/platform/firestore"
	"github.com/couture-field/checkout/internal/repositories"
)

const promotionCollection = "promotionCodes"

// PromotionRepository reads admin-managed promotion codes keyed by their normalised code.
type PromotionRepository struct {
	base *pfirestore.BaseRepository[promotionDocument]
}

// NewPromotionRepository constructs a Firestore-backed promotion repository.
func NewPromotionRepository(provider *pfirestore.Provider) (*PromotionRepository, error) {
	if provider == nil {
		return nil, errors.New("promotion repository requires firestore provider")
	}
	return &PromotionRepository{
		base: pfirestore.NewBaseRepository[promotionDocument](provider, promotionCollection),
	}, nil
}

// FindByCode loads the promotion code.
func (r *PromotionRepository) FindByCode(ctx context.Context, code string) (domain.PromotionCode, error) {
	if r == nil || r.base == nil {
		return domain.PromotionCode{}, errors.New("promotion repository not initialised")
	}
	doc, err := r.base.Get(ctx, strings.TrimSpace(code))
	if err != nil {
		return domain.PromotionCode{}, err
	}
	return domain.PromotionCode{
		Code:       doc.ID,
		Type:       domain.DiscountType(doc.Data.Type),
		Discount:   decodeDecimal(doc.Data.Discount),
		UsageLimit: doc.Data.UsageLimit,
		ExpiresAt:  utcPtr(doc.Data.ExpiresAt),
		MinAmount:  decodeDecimal(doc.Data.MinAmount),
		Used:       doc.Data.Used,
	}, nil
}

// IncrementUsage adds one to the usage counter using a server-side increment.
func (r *PromotionRepository) IncrementUsage(ctx context.Context, code string) error {
	if r == nil || r.base == nil {
		return errors.New("promotion repository not initialised")
	}
	err := r.base.Update(ctx, strings.TrimSpace(code), []firestore.Update{
		{Path: "used", Value: firestore.Increment(1)},
		{Path: "updatedAt", Value: time.Now().UTC()},
	})
	return err
}

type promotionDocument struct {
	Type       string     `firestore:"type"`
	Discount   string     `firestore:"discount"`
	UsageLimit int        `firestore:"usageLimit"`
	ExpiresAt  *time.Time `firestore:"expiresAt,omitempty"`
	MinAmount  string     `firestore:"minAmount,omitempty"`
	Used       int        `firestore:"used"`
	UpdatedAt  time.Time  `firestore:"updatedAt"`
}

var _ repositories.PromotionRepository = (*PromotionRepository)(nil)
