package firestore

import (
	"context"
	"errors"
	"strings"
	"time"

	domain "github.com/couture-field/checkout/internal/domain"
	pfirestore "github.com/couture-field/checkout/internal/platform/firestore"
	"github.com/couture-field/checkout/internal/repositories"
)

const cartCollection = "carts"

// CartRepository persists carts within Firestore using the user ID as document identifier.
type CartRepository struct {
	base *pfirestore.BaseRepository[cartDocument]
}

// NewCartRepository constructs a Firestore-backed cart repository.
func NewCartRepository(provider *pfirestore.Provider) (*CartRepository, error) {
	if provider == nil {
		return nil, errors.New("cart repository requires firestore provider")
	}
	return &CartRepository{
		base: pfirestore.NewBaseRepository[cartDocument](provider, cartCollection),
	}, nil
}

// GetCart loads the cart for the given user. A missing document yields an empty cart.
func (r *CartRepository) GetCart(ctx context.Context, userID string) (domain.Cart, error) {
	if r == nil || r.base == nil {
		return domain.Cart{}, errors.New("cart repository not initialised")
	}
	uid := strings.TrimSpace(userID)
	if uid == "" {
		return domain.Cart{}, errors.New("cart repository: user id is required")
	}

	doc, err := r.base.Get(ctx, uid)
	if err != nil {
		var repoErr repositories.RepositoryError
		if errors.As(err, &repoErr) && repoErr.IsNotFound() {
			return domain.Cart{UserID: uid, Items: []domain.CartItem{}, Totals: domain.ComputeCartTotals(nil)}, nil
		}
		return domain.Cart{}, err
	}

	updatedAt := doc.Data.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = doc.UpdateTime
	}
	return domain.Cart{
		UserID:       uid,
		Items:        decodeItems(doc.Data.Items),
		DraftOrderID: strings.TrimSpace(doc.Data.DraftOrderID),
		Totals: domain.CartTotals{
			TaxExcluded: decodeDecimal(doc.Data.TaxExcluded),
			TaxIncluded: decodeDecimal(doc.Data.TaxIncluded),
			WeightGrams: doc.Data.WeightGrams,
			TaxBuckets:  decodeBuckets(doc.Data.TaxBuckets),
		},
		UpdatedAt: updatedAt.UTC(),
	}, nil
}

// SaveCart overwrites the cart document.
func (r *CartRepository) SaveCart(ctx context.Context, cart domain.Cart) error {
	if r == nil || r.base == nil {
		return errors.New("cart repository not initialised")
	}
	uid := strings.TrimSpace(cart.UserID)
	if uid == "" {
		return errors.New("cart repository: user id is required")
	}
	updatedAt := cart.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = time.Now()
	}
	doc := cartDocument{
		Items:        encodeItems(cart.Items),
		DraftOrderID: strings.TrimSpace(cart.DraftOrderID),
		TaxExcluded:  encodeDecimal(cart.Totals.TaxExcluded),
		TaxIncluded:  encodeDecimal(cart.Totals.TaxIncluded),
		WeightGrams:  cart.Totals.WeightGrams,
		TaxBuckets:   encodeBuckets(cart.Totals.TaxBuckets),
		UpdatedAt:    updatedAt.UTC(),
	}
	err := r.base.Set(ctx, uid, doc)
	return err
}

// DeleteCart removes the cart document.
func (r *CartRepository) DeleteCart(ctx context.Context, userID string) error {
	if r == nil || r.base == nil {
		return errors.New("cart repository not initialised")
	}
	return r.base.Delete(ctx, strings.TrimSpace(userID))
}

type cartDocument struct {
	Items        []cartItemDocument `firestore:"items"`
	DraftOrderID string             `firestore:"draftOrderId,omitempty"`
	TaxExcluded  string             `firestore:"taxExcluded"`
	TaxIncluded  string             `firestore:"taxIncluded"`
	WeightGrams  int                `firestore:"weightGrams"`
	TaxBuckets   map[string]string  `firestore:"taxBuckets,omitempty"`
	UpdatedAt    time.Time          `firestore:"updatedAt"`
}

var _ repositories.CartRepository = (*CartRepository)(nil)
