package services

import (
	"errors"

	"github.com/couture-field/checkout/internal/repositories"
)

var (
	// ErrCheckoutInvalidInput indicates the caller supplied invalid checkout parameters.
	ErrCheckoutInvalidInput = errors.New("checkout: invalid input")
	// ErrCheckoutReferenceNotFound indicates a product, fabric or stock item referenced by the cart no longer exists.
	ErrCheckoutReferenceNotFound = errors.New("checkout: reference not found")
	// ErrCheckoutAlreadyInProgress indicates a card checkout draft exists for the cart.
	ErrCheckoutAlreadyInProgress = errors.New("checkout: payment process already began with another method")
	// ErrCheckoutPaymentCompleted indicates the draft's payment session is already paid while its
	// confirmation is still in flight; the draft can no longer be renewed or discarded.
	ErrCheckoutPaymentCompleted = errors.New("checkout: payment already completed")
	// ErrCheckoutConflict indicates a concurrent modification; callers should retry.
	ErrCheckoutConflict = errors.New("checkout: conflict")
	// ErrCheckoutPaymentFailed indicates the payment provider call failed.
	ErrCheckoutPaymentFailed = errors.New("checkout: payment provider failed")
	// ErrCheckoutShippingFailed indicates the shipping provider call failed.
	ErrCheckoutShippingFailed = errors.New("checkout: shipping provider failed")
	// ErrCheckoutUnavailable indicates the store is currently unavailable.
	ErrCheckoutUnavailable = errors.New("checkout: unavailable")
	// ErrInsufficientGiftCardBalance indicates the gift cards do not cover the order total.
	ErrInsufficientGiftCardBalance = errors.New("checkout: insufficient gift card balance")
	// ErrCustomizedItemsDisabled indicates customized items cannot be paid with the chosen method.
	ErrCustomizedItemsDisabled = errors.New("checkout: customized items disabled")

	// ErrPromotionCodeNotFound covers unknown, exhausted, expired and below-minimum codes alike.
	ErrPromotionCodeNotFound = errors.New("promotion: code not found")

	// ErrOrderNotFound indicates the order does not exist or is not visible to the caller.
	ErrOrderNotFound = errors.New("order: not found")
	// ErrOrderAlreadyProcessed indicates the order is no longer a draft.
	ErrOrderAlreadyProcessed = errors.New("order: already processed")
	// ErrOrderInvalidState indicates a fulfilment operation does not apply to the order's state.
	ErrOrderInvalidState = errors.New("order: invalid state")

	// ErrCartInvalidInput indicates a malformed cart mutation.
	ErrCartInvalidInput = errors.New("cart: invalid input")
	// ErrCartReferenceNotFound indicates a mutation references a missing item, product, customizable or fabric.
	ErrCartReferenceNotFound = errors.New("cart: reference not found")
)

var knownErrors = []error{
	ErrCheckoutInvalidInput,
	ErrCheckoutReferenceNotFound,
	ErrCheckoutAlreadyInProgress,
	ErrCheckoutPaymentCompleted,
	ErrCheckoutConflict,
	ErrCheckoutPaymentFailed,
	ErrCheckoutShippingFailed,
	ErrCheckoutUnavailable,
	ErrInsufficientGiftCardBalance,
	ErrCustomizedItemsDisabled,
	ErrPromotionCodeNotFound,
	ErrOrderNotFound,
	ErrOrderAlreadyProcessed,
	ErrOrderInvalidState,
	ErrCartInvalidInput,
	ErrCartReferenceNotFound,
}

// translateStoreError maps repository failures to service errors. Service errors returned from
// inside a transaction pass through unchanged.
func translateStoreError(err error, notFound error) error {
	if err == nil {
		return nil
	}
	for _, known := range knownErrors {
		if errors.Is(err, known) {
			return known
		}
	}
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound() && notFound != nil:
			return notFound
		case repoErr.IsConflict():
			return ErrCheckoutConflict
		}
	}
	return ErrCheckoutUnavailable
}

func isNotFound(err error) bool {
	var repoErr repositories.RepositoryError
	return errors.As(err, &repoErr) && repoErr.IsNotFound()
}
