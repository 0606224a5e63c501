package services

import (
	"context"
	"errors"
	"maps"
	"net/mail"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/shopspring/decimal"

	domain "github.com/couture-field/checkout/internal/domain"
	"github.com/couture-field/checkout/internal/payments"
	"github.com/couture-field/checkout/internal/repositories"
)

const (
	orderIDPrefix = "ord_"

	emailTemplateBankTransfer = "bank-transfer-instructions"
	emailTemplateOrderPaid    = "order-paid"

	// OrderEventPaid is published once an order is paid, whatever the method.
	OrderEventPaid = "order.paid"
	// OrderEventWaitingBankTransfer is published when a bank transfer order is committed.
	OrderEventWaitingBankTransfer = "order.waiting_bank_transfer"
)

// CheckoutCoordinatorDeps wires the checkout coordinator. Emails and Events are optional.
type CheckoutCoordinatorDeps struct {
	UnitOfWork     repositories.UnitOfWork
	Carts          repositories.CartRepository
	Orders         repositories.OrderRepository
	Promotions     repositories.PromotionRepository
	Settings       repositories.SettingsRepository
	Assembler      OrderAssembler
	Payments       PaymentProvider
	Emails         EmailScheduler
	Events         OrderEventPublisher
	DefaultCarrier string
	IDGenerator    func() string
	Clock          func() time.Time
	Logger         func(ctx context.Context, event string, fields map[string]any)
}

type checkoutCoordinator struct {
	uow            repositories.UnitOfWork
	carts          repositories.CartRepository
	orders         repositories.OrderRepository
	promotions     repositories.PromotionRepository
	settings       repositories.SettingsRepository
	assembler      OrderAssembler
	payments       PaymentProvider
	emails         EmailScheduler
	events         OrderEventPublisher
	defaultCarrier string
	newID          func() string
	newAttemptID   func() string
	now            func() time.Time
	logger         func(ctx context.Context, event string, fields map[string]any)
}

var _ CheckoutCoordinator = (*checkoutCoordinator)(nil)

// NewCheckoutCoordinator constructs the order state machine validating required dependencies.
func NewCheckoutCoordinator(deps CheckoutCoordinatorDeps) (CheckoutCoordinator, error) {
	switch {
	case deps.UnitOfWork == nil:
		return nil, errors.New("checkout coordinator: unit of work is required")
	case deps.Carts == nil:
		return nil, errors.New("checkout coordinator: cart repository is required")
	case deps.Orders == nil:
		return nil, errors.New("checkout coordinator: order repository is required")
	case deps.Promotions == nil:
		return nil, errors.New("checkout coordinator: promotion repository is required")
	case deps.Settings == nil:
		return nil, errors.New("checkout coordinator: settings repository is required")
	case deps.Assembler == nil:
		return nil, errors.New("checkout coordinator: order assembler is required")
	case deps.Payments == nil:
		return nil, errors.New("checkout coordinator: payment provider is required")
	}

	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string { return ulid.Make().String() }
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &checkoutCoordinator{
		uow:            deps.UnitOfWork,
		carts:          deps.Carts,
		orders:         deps.Orders,
		promotions:     deps.Promotions,
		settings:       deps.Settings,
		assembler:      deps.Assembler,
		payments:       deps.Payments,
		emails:         deps.Emails,
		events:         deps.Events,
		defaultCarrier: strings.TrimSpace(deps.DefaultCarrier),
		newID: func() string {
			return orderIDPrefix + idGen()
		},
		newAttemptID: func() string {
			return ulid.Make().String()
		},
		now: func() time.Time {
			return clock().UTC()
		},
		logger: logger,
	}, nil
}

// CreateCardCheckoutSession returns a hosted payment page for the user's cart. A live session
// for an unchanged draft is reused; a changed draft is discarded and an expired one renewed.
func (c *checkoutCoordinator) CreateCardCheckoutSession(ctx context.Context, in CheckoutInput) (CardCheckoutResult, error) {
	in, err := c.normalizeInput(in)
	if err != nil {
		return CardCheckoutResult{}, err
	}

	cart, err := c.carts.GetCart(ctx, in.UserID)
	if err != nil {
		return CardCheckoutResult{}, translateStoreError(err, nil)
	}
	if len(cart.Items) == 0 {
		return CardCheckoutResult{}, ErrCheckoutInvalidInput
	}

	draft, hasDraft, err := c.loadDraft(ctx, cart)
	if err != nil {
		return CardCheckoutResult{}, err
	}
	if hasDraft && !draftMatches(draft, in) {
		if err := c.discardDraft(ctx, in.UserID, draft); err != nil {
			return CardCheckoutResult{}, err
		}
		if cart, err = c.carts.GetCart(ctx, in.UserID); err != nil {
			return CardCheckoutResult{}, translateStoreError(err, nil)
		}
		draft, hasDraft = domain.Order{}, false
	}

	previousSession := ""
	if hasDraft {
		session := draft.Billing.Session
		expired := session.IsPending()
		if !expired {
			expired, err = c.payments.IsSessionExpired(ctx, session.ID)
			if errors.Is(err, payments.ErrSessionCompleted) {
				c.logger(ctx, "checkout.session.already_paid", map[string]any{"orderId": draft.ID, "sessionId": session.ID})
				return CardCheckoutResult{}, ErrCheckoutPaymentCompleted
			}
			if err != nil {
				c.logger(ctx, "checkout.session.lookup_failed", map[string]any{
					"orderId":   draft.ID,
					"sessionId": session.ID,
					"error":     err.Error(),
				})
				return CardCheckoutResult{}, ErrCheckoutPaymentFailed
			}
			previousSession = session.ID
		}
		if !expired {
			return CardCheckoutResult{OrderID: draft.ID, RedirectURL: session.URL, Reused: true}, nil
		}
	}

	orderID := c.newID()
	if hasDraft {
		orderID = draft.ID
	}
	order, err := c.assembler.Assemble(ctx, AssembleCommand{
		OrderID:       orderID,
		Cart:          cart,
		UserID:        in.UserID,
		Billing:       in.Billing,
		Shipping:      in.Shipping,
		Extras:        in.Extras,
		PromotionCode: in.PromotionCode,
		Status:        domain.OrderStatusDraft,
	})
	if err != nil {
		return CardCheckoutResult{}, err
	}
	order.PaymentMethod = domain.PaymentMethodCard
	if hasDraft {
		order.CreatedAt = draft.CreatedAt
	}

	session, err := c.payments.CreateSession(ctx, payments.SessionRequest{
		OrderID:        orderID,
		CustomerEmail:  order.Billing.Email,
		Currency:       order.Currency,
		Items:          sessionLineItems(order),
		IdempotencyKey: payments.SessionIdempotencyKey(orderID, previousSession, c.newAttemptID()),
	})
	if err != nil {
		c.logger(ctx, "checkout.session.create_failed", map[string]any{"orderId": orderID, "error": err.Error()})
		return CardCheckoutResult{}, ErrCheckoutPaymentFailed
	}
	order.Billing.Session = domain.PaymentSession{ID: session.ID, URL: session.URL}

	err = c.uow.RunInTx(ctx, func(ctx context.Context) error {
		current, err := c.carts.GetCart(ctx, in.UserID)
		if err != nil {
			return err
		}
		if current.DraftOrderID != cart.DraftOrderID || !current.UpdatedAt.Equal(cart.UpdatedAt) {
			return ErrCheckoutConflict
		}
		if hasDraft {
			stored, err := c.orders.FindByID(ctx, orderID)
			if err != nil {
				if isNotFound(err) {
					return ErrCheckoutConflict
				}
				return err
			}
			if stored.Status != domain.OrderStatusDraft {
				return ErrCheckoutConflict
			}
			return c.orders.ReplaceDraft(ctx, order)
		}
		if err := c.orders.Insert(ctx, order); err != nil {
			return err
		}
		current.DraftOrderID = orderID
		return c.carts.SaveCart(ctx, current)
	})
	if err != nil {
		c.cancelQuietly(ctx, orderID, session.ID)
		return CardCheckoutResult{}, translateStoreError(err, nil)
	}

	c.logger(ctx, "checkout.session.created", map[string]any{
		"orderId":   orderID,
		"sessionId": session.ID,
		"renewed":   hasDraft,
		"total":     order.Totals.TaxIncluded.StringFixed(domain.MoneyPlaces),
	})
	return CardCheckoutResult{OrderID: orderID, RedirectURL: session.URL}, nil
}

// CreateBankTransferOrder commits the cart as an order awaiting a bank transfer.
func (c *checkoutCoordinator) CreateBankTransferOrder(ctx context.Context, in CheckoutInput) (domain.Order, error) {
	in, err := c.normalizeInput(in)
	if err != nil {
		return domain.Order{}, err
	}
	cart, err := c.loadCommittableCart(ctx, in.UserID)
	if err != nil {
		return domain.Order{}, err
	}

	order, err := c.assembler.Assemble(ctx, c.assembleCommand(cart, in, domain.OrderStatusWaitingBankTransfer))
	if err != nil {
		return domain.Order{}, err
	}
	order.PaymentMethod = domain.PaymentMethodBankTransfer

	if err := c.commit(ctx, cart, order); err != nil {
		return domain.Order{}, err
	}
	c.notify(ctx, order, OrderEventWaitingBankTransfer, emailTemplateBankTransfer)
	return order, nil
}

// CreatePayByGiftCardOrder commits the cart as a paid order when the gift cards cover its total.
func (c *checkoutCoordinator) CreatePayByGiftCardOrder(ctx context.Context, in GiftCardCheckoutInput) (domain.Order, error) {
	base, err := c.normalizeInput(in.CheckoutInput)
	if err != nil {
		return domain.Order{}, err
	}
	if len(in.GiftCards) == 0 {
		return domain.Order{}, ErrCheckoutInvalidInput
	}
	balance := decimal.Zero
	cards := make([]domain.GiftCard, 0, len(in.GiftCards))
	for _, card := range in.GiftCards {
		code := strings.TrimSpace(card.Code)
		if code == "" || !card.Amount.IsPositive() {
			return domain.Order{}, ErrCheckoutInvalidInput
		}
		balance = balance.Add(card.Amount)
		cards = append(cards, domain.GiftCard{Code: code, Amount: card.Amount})
	}

	cart, err := c.loadCommittableCart(ctx, base.UserID)
	if err != nil {
		return domain.Order{}, err
	}

	flags, err := c.settings.FeatureFlags(ctx)
	if err != nil {
		c.logger(ctx, "checkout.flags.unavailable", map[string]any{"error": err.Error()})
		flags = domain.FeatureFlags{}
	}
	if cart.HasCustomizedItems() && !flags.CustomizedItemsAllowed {
		return domain.Order{}, ErrCustomizedItemsDisabled
	}
	if !flags.ReducedManufacturingTimeAllowed {
		base.Extras.ReduceManufacturingTimes = false
	}

	order, err := c.assembler.Assemble(ctx, c.assembleCommand(cart, base, domain.OrderStatusPaid))
	if err != nil {
		return domain.Order{}, err
	}
	if balance.LessThan(order.Totals.TaxIncluded) {
		return domain.Order{}, ErrInsufficientGiftCardBalance
	}
	paidAt := order.CreatedAt
	order.PaymentMethod = domain.PaymentMethodGiftCard
	order.WorkflowStep = domain.WorkflowInProduction
	order.PaidAt = &paidAt
	order.GiftCards = cards
	order.AmountPaidWithGiftCards = order.Totals.TaxIncluded

	if err := c.commit(ctx, cart, order); err != nil {
		return domain.Order{}, err
	}
	c.notify(ctx, order, OrderEventPaid, emailTemplateOrderPaid)
	return order, nil
}

// ConfirmCardPayment moves a draft to paid. Replays of the same confirmation fail with
// ErrOrderAlreadyProcessed, so the promotion counter is incremented at most once.
func (c *checkoutCoordinator) ConfirmCardPayment(ctx context.Context, orderID string) (domain.Order, error) {
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return domain.Order{}, ErrCheckoutInvalidInput
	}

	var (
		paid          domain.Order
		promoMissing  bool
		promoOverused bool
	)
	err := c.uow.RunInTx(ctx, func(ctx context.Context) error {
		promoMissing, promoOverused = false, false

		order, err := c.orders.FindByID(ctx, orderID)
		if err != nil {
			if isNotFound(err) {
				return ErrOrderNotFound
			}
			return err
		}
		if order.Status != domain.OrderStatusDraft {
			return ErrOrderAlreadyProcessed
		}
		cart, err := c.carts.GetCart(ctx, order.UserID)
		if err != nil {
			return err
		}
		incrementPromo := false
		if order.PromotionCode != "" {
			promo, err := c.promotions.FindByCode(ctx, order.PromotionCode)
			switch {
			case err == nil:
				incrementPromo = true
				promoOverused = promo.Exhausted()
			case isNotFound(err):
				promoMissing = true
			default:
				return err
			}
		}

		now := c.now()
		if err := c.orders.MarkPaid(ctx, orderID, domain.PaymentMethodCard, now); err != nil {
			return err
		}
		if cart.DraftOrderID == orderID {
			if err := c.carts.DeleteCart(ctx, order.UserID); err != nil {
				return err
			}
		}
		if incrementPromo {
			if err := c.promotions.IncrementUsage(ctx, order.PromotionCode); err != nil {
				return err
			}
		}

		order.Status = domain.OrderStatusPaid
		order.PaymentMethod = domain.PaymentMethodCard
		order.WorkflowStep = domain.WorkflowInProduction
		order.PaidAt = &now
		order.UpdatedAt = now
		paid = order
		return nil
	})
	if err != nil {
		return domain.Order{}, translateStoreError(err, ErrOrderNotFound)
	}

	if promoMissing {
		c.logger(ctx, "checkout.promotion.missing_at_payment", map[string]any{"orderId": orderID, "code": paid.PromotionCode})
	}
	if promoOverused {
		c.logger(ctx, "checkout.promotion.over_limit", map[string]any{"orderId": orderID, "code": paid.PromotionCode})
	}
	c.logger(ctx, "checkout.payment.confirmed", map[string]any{"orderId": orderID, "userId": paid.UserID})
	c.notify(ctx, paid, OrderEventPaid, emailTemplateOrderPaid)
	return paid, nil
}

// InvalidateDraft applies edit to the user's cart and, in the same commit, deletes the draft
// order the cart points to. The draft's payment session is cancelled first.
func (c *checkoutCoordinator) InvalidateDraft(ctx context.Context, userID string, edit CartEdit) (domain.Cart, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return domain.Cart{}, ErrCartInvalidInput
	}

	cart, err := c.carts.GetCart(ctx, userID)
	if err != nil {
		return domain.Cart{}, translateStoreError(err, nil)
	}
	draft, hasDraft, err := c.loadDraft(ctx, cart)
	if err != nil {
		return domain.Cart{}, err
	}
	if hasDraft {
		// A rejected edit must leave the customer's payment page open.
		if edit != nil {
			trial := cloneCart(cart)
			if err := edit(&trial); err != nil {
				return domain.Cart{}, translateStoreError(err, nil)
			}
		}
		if err := c.cancelDraftSession(ctx, draft); err != nil {
			return domain.Cart{}, err
		}
	}

	var result domain.Cart
	err = c.uow.RunInTx(ctx, func(ctx context.Context) error {
		current, err := c.carts.GetCart(ctx, userID)
		if err != nil {
			return err
		}
		if current.DraftOrderID != cart.DraftOrderID {
			return ErrCheckoutConflict
		}
		deleteDraft := false
		if current.DraftOrderID != "" {
			stored, err := c.orders.FindByID(ctx, current.DraftOrderID)
			switch {
			case err == nil:
				deleteDraft = stored.Status == domain.OrderStatusDraft
			case isNotFound(err):
			default:
				return err
			}
		}

		if edit != nil {
			if err := edit(&current); err != nil {
				return err
			}
		}
		if deleteDraft {
			if err := c.orders.Delete(ctx, current.DraftOrderID); err != nil {
				return err
			}
		}
		current.UserID = userID
		current.DraftOrderID = ""
		current.Totals = domain.ComputeCartTotals(current.Items)
		current.UpdatedAt = c.now()
		if err := c.carts.SaveCart(ctx, current); err != nil {
			return err
		}
		result = current
		return nil
	})
	if err != nil {
		return domain.Cart{}, translateStoreError(err, nil)
	}
	if hasDraft {
		c.logger(ctx, "checkout.draft.invalidated", map[string]any{"orderId": draft.ID, "userId": userID})
	}
	return result, nil
}

func (c *checkoutCoordinator) normalizeInput(in CheckoutInput) (CheckoutInput, error) {
	in.UserID = strings.TrimSpace(in.UserID)
	if in.UserID == "" {
		return CheckoutInput{}, ErrCheckoutInvalidInput
	}
	in.Billing.Email = strings.TrimSpace(in.Billing.Email)
	addr, err := mail.ParseAddress(in.Billing.Email)
	if err != nil || addr.Address != in.Billing.Email {
		return CheckoutInput{}, ErrCheckoutInvalidInput
	}
	in.Billing.Session = domain.PaymentSession{}
	in.Billing.Address = trimAddress(in.Billing.Address)
	in.Shipping.Address = trimAddress(in.Shipping.Address)
	if !addressComplete(in.Shipping.Address) {
		return CheckoutInput{}, ErrCheckoutInvalidInput
	}
	if in.Billing.Address == (domain.Address{}) {
		in.Billing.Address = in.Shipping.Address
	} else if !addressComplete(in.Billing.Address) {
		return CheckoutInput{}, ErrCheckoutInvalidInput
	}
	in.Shipping.Carrier = strings.TrimSpace(in.Shipping.Carrier)
	if in.Shipping.Carrier == "" {
		in.Shipping.Carrier = c.defaultCarrier
	}
	in.PromotionCode = NormalizePromotionCode(in.PromotionCode)
	return in, nil
}

func trimAddress(a domain.Address) domain.Address {
	return domain.Address{
		Name:       strings.TrimSpace(a.Name),
		Company:    strings.TrimSpace(a.Company),
		Line1:      strings.TrimSpace(a.Line1),
		Line2:      strings.TrimSpace(a.Line2),
		PostalCode: strings.TrimSpace(a.PostalCode),
		City:       strings.TrimSpace(a.City),
		Country:    strings.ToUpper(strings.TrimSpace(a.Country)),
		Phone:      strings.TrimSpace(a.Phone),
	}
}

func addressComplete(a domain.Address) bool {
	return a.Name != "" && a.Line1 != "" && a.PostalCode != "" && a.City != "" && a.Country != ""
}

// draftMatches reports whether an existing draft was priced from the same checkout input.
func draftMatches(draft domain.Order, in CheckoutInput) bool {
	return draft.Shipping.Equal(in.Shipping) &&
		draft.Extras == in.Extras &&
		draft.PromotionCode == in.PromotionCode &&
		draft.Billing.Email == in.Billing.Email &&
		draft.Billing.Address == in.Billing.Address
}

// loadDraft follows the cart's weak reference. Dangling or committed targets mean no draft.
func (c *checkoutCoordinator) loadDraft(ctx context.Context, cart domain.Cart) (domain.Order, bool, error) {
	if cart.DraftOrderID == "" {
		return domain.Order{}, false, nil
	}
	order, err := c.orders.FindByID(ctx, cart.DraftOrderID)
	if err != nil {
		if isNotFound(err) {
			return domain.Order{}, false, nil
		}
		return domain.Order{}, false, translateStoreError(err, nil)
	}
	if order.Status != domain.OrderStatusDraft {
		return domain.Order{}, false, nil
	}
	return order, true, nil
}

func (c *checkoutCoordinator) loadCommittableCart(ctx context.Context, userID string) (domain.Cart, error) {
	cart, err := c.carts.GetCart(ctx, userID)
	if err != nil {
		return domain.Cart{}, translateStoreError(err, nil)
	}
	if len(cart.Items) == 0 {
		return domain.Cart{}, ErrCheckoutInvalidInput
	}
	if _, hasDraft, err := c.loadDraft(ctx, cart); err != nil {
		return domain.Cart{}, err
	} else if hasDraft {
		return domain.Cart{}, ErrCheckoutAlreadyInProgress
	}
	return cart, nil
}

func (c *checkoutCoordinator) assembleCommand(cart domain.Cart, in CheckoutInput, status domain.OrderStatus) AssembleCommand {
	return AssembleCommand{
		OrderID:       c.newID(),
		Cart:          cart,
		UserID:        in.UserID,
		Billing:       in.Billing,
		Shipping:      in.Shipping,
		Extras:        in.Extras,
		PromotionCode: in.PromotionCode,
		Status:        status,
	}
}

// commit inserts a committed order, deletes the cart and consumes the promotion in one transaction.
func (c *checkoutCoordinator) commit(ctx context.Context, cart domain.Cart, order domain.Order) error {
	err := c.uow.RunInTx(ctx, func(ctx context.Context) error {
		current, err := c.carts.GetCart(ctx, order.UserID)
		if err != nil {
			return err
		}
		if current.DraftOrderID != cart.DraftOrderID || !current.UpdatedAt.Equal(cart.UpdatedAt) {
			return ErrCheckoutConflict
		}
		if order.PromotionCode != "" {
			promo, err := c.promotions.FindByCode(ctx, order.PromotionCode)
			if err != nil {
				if isNotFound(err) {
					return ErrPromotionCodeNotFound
				}
				return err
			}
			if promo.Exhausted() {
				return ErrPromotionCodeNotFound
			}
		}
		if err := c.orders.Insert(ctx, order); err != nil {
			return err
		}
		if err := c.carts.DeleteCart(ctx, order.UserID); err != nil {
			return err
		}
		if order.PromotionCode != "" {
			return c.promotions.IncrementUsage(ctx, order.PromotionCode)
		}
		return nil
	})
	if err != nil {
		return translateStoreError(err, nil)
	}
	c.logger(ctx, "checkout.order.committed", map[string]any{
		"orderId":       order.ID,
		"userId":        order.UserID,
		"status":        string(order.Status),
		"paymentMethod": string(order.PaymentMethod),
		"total":         order.Totals.TaxIncluded.StringFixed(domain.MoneyPlaces),
	})
	return nil
}

// discardDraft cancels the draft's session, then deletes the draft and clears the cart link.
func (c *checkoutCoordinator) discardDraft(ctx context.Context, userID string, draft domain.Order) error {
	if err := c.cancelDraftSession(ctx, draft); err != nil {
		return err
	}
	err := c.uow.RunInTx(ctx, func(ctx context.Context) error {
		current, err := c.carts.GetCart(ctx, userID)
		if err != nil {
			return err
		}
		if current.DraftOrderID != draft.ID {
			return ErrCheckoutConflict
		}
		stored, err := c.orders.FindByID(ctx, draft.ID)
		switch {
		case err == nil:
			if stored.Status == domain.OrderStatusDraft {
				if err := c.orders.Delete(ctx, draft.ID); err != nil {
					return err
				}
			}
		case !isNotFound(err):
			return err
		}
		current.DraftOrderID = ""
		return c.carts.SaveCart(ctx, current)
	})
	if err != nil {
		return translateStoreError(err, nil)
	}
	c.logger(ctx, "checkout.draft.discarded", map[string]any{"orderId": draft.ID, "userId": userID})
	return nil
}

func (c *checkoutCoordinator) cancelDraftSession(ctx context.Context, draft domain.Order) error {
	session := draft.Billing.Session
	if session.IsPending() {
		return nil
	}
	err := c.payments.CancelSession(ctx, session.ID)
	if errors.Is(err, payments.ErrSessionCompleted) {
		c.logger(ctx, "checkout.session.already_paid", map[string]any{"orderId": draft.ID, "sessionId": session.ID})
		return ErrCheckoutPaymentCompleted
	}
	if err != nil {
		c.logger(ctx, "checkout.session.cancel_failed", map[string]any{
			"orderId":   draft.ID,
			"sessionId": session.ID,
			"error":     err.Error(),
		})
		return ErrCheckoutPaymentFailed
	}
	return nil
}

// cloneCart copies cart deeply enough for a CartEdit to run on it without touching the original.
func cloneCart(cart domain.Cart) domain.Cart {
	clone := cart
	clone.Items = make([]domain.CartItem, len(cart.Items))
	for i, item := range cart.Items {
		item.Selections = append([]domain.Selection(nil), item.Selections...)
		clone.Items[i] = item
	}
	clone.Totals.TaxBuckets = maps.Clone(cart.Totals.TaxBuckets)
	return clone
}

// cancelQuietly expires a session whose order could not be persisted.
func (c *checkoutCoordinator) cancelQuietly(ctx context.Context, orderID, sessionID string) {
	if err := c.payments.CancelSession(context.WithoutCancel(ctx), sessionID); err != nil {
		c.logger(ctx, "checkout.session.orphaned", map[string]any{
			"orderId":   orderID,
			"sessionId": sessionID,
			"error":     err.Error(),
		})
	}
}

// notify publishes the order event and schedules the customer email. Failures are logged only.
func (c *checkoutCoordinator) notify(ctx context.Context, order domain.Order, eventType, template string) {
	ctx = context.WithoutCancel(ctx)
	total := order.Totals.TaxIncluded.StringFixed(domain.MoneyPlaces)
	if c.events != nil {
		occurredAt := order.UpdatedAt
		if order.PaidAt != nil {
			occurredAt = *order.PaidAt
		}
		if _, err := c.events.PublishOrderEvent(ctx, OrderEventMessage{
			Type:          eventType,
			OrderID:       order.ID,
			UserID:        order.UserID,
			Status:        string(order.Status),
			PaymentMethod: string(order.PaymentMethod),
			Total:         total,
			Currency:      order.Currency,
			OccurredAt:    occurredAt,
		}); err != nil {
			c.logger(ctx, "checkout.event.publish_failed", map[string]any{"orderId": order.ID, "type": eventType, "error": err.Error()})
		}
	}
	if c.emails != nil && order.Billing.Email != "" {
		if err := c.emails.ScheduleSend(ctx, template, order.Billing.Email, map[string]string{
			"orderId":  order.ID,
			"total":    total,
			"currency": order.Currency,
		}); err != nil {
			c.logger(ctx, "checkout.email.schedule_failed", map[string]any{"orderId": order.ID, "template": template, "error": err.Error()})
		}
	}
}

// sessionLineItems itemises the order for the hosted page. When the itemised cents do not add up
// to the order total, or a discount applies, a single consolidated line is sent instead.
func sessionLineItems(order domain.Order) []payments.LineItem {
	lines := make([]payments.LineItem, 0, len(order.Items)+2)
	var sum int64
	for _, item := range order.Items {
		if item.Quantity <= 0 {
			continue
		}
		unit := domain.ToMinorUnits(item.UnitPriceTaxExcluded.Mul(decimal.NewFromInt(1).Add(item.TaxRate)))
		lines = append(lines, payments.LineItem{Name: item.Name, Quantity: int64(item.Quantity), UnitAmount: unit})
		sum += unit * int64(item.Quantity)
	}
	if amount := domain.ToMinorUnits(order.Totals.ShippingTaxIncluded); amount > 0 {
		lines = append(lines, payments.LineItem{Name: "Shipping", Quantity: 1, UnitAmount: amount})
		sum += amount
	}
	if amount := domain.ToMinorUnits(order.Totals.Surcharge); amount > 0 {
		lines = append(lines, payments.LineItem{Name: "Reduced manufacturing time", Quantity: 1, UnitAmount: amount})
		sum += amount
	}
	total := domain.ToMinorUnits(order.Totals.TaxIncluded)
	if order.Totals.Discount.IsPositive() || sum != total {
		return []payments.LineItem{{Name: "Order " + order.ID, Quantity: 1, UnitAmount: total}}
	}
	return lines
}
