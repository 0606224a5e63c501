package services

import (
	"cmp"
	"context"
	"fmt"
	"maps"
	"slices"
	"strconv"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	domain "github.com/couture-field/checkout/internal/domain"
	"github.com/couture-field/checkout/internal/payments"
	"github.com/couture-field/checkout/internal/shipping"
)

type stubRepoError struct {
	err         error
	notFound    bool
	conflict    bool
	unavailable bool
}

func (e *stubRepoError) Error() string       { return e.err.Error() }
func (e *stubRepoError) Unwrap() error       { return e.err }
func (e *stubRepoError) IsNotFound() bool    { return e.notFound }
func (e *stubRepoError) IsConflict() bool    { return e.conflict }
func (e *stubRepoError) IsUnavailable() bool { return e.unavailable }

func notFoundErr(what string) error {
	return &stubRepoError{err: fmt.Errorf("%s not found", what), notFound: true}
}

type snapshotter interface {
	snapshot() (restore func())
}

// stubUnitOfWork restores every registered repository when fn fails.
type stubUnitOfWork struct {
	repos  []snapshotter
	runs   int
	runErr error
}

func (u *stubUnitOfWork) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	u.runs++
	if u.runErr != nil {
		return u.runErr
	}
	restores := make([]func(), 0, len(u.repos))
	for _, repo := range u.repos {
		restores = append(restores, repo.snapshot())
	}
	if err := fn(ctx); err != nil {
		for _, restore := range restores {
			restore()
		}
		return err
	}
	return nil
}

type stubCartRepository struct {
	mu      sync.Mutex
	carts   map[string]domain.Cart
	getErr  error
	saveErr error
	saves   int
	deletes int
}

func newStubCartRepository(carts ...domain.Cart) *stubCartRepository {
	repo := &stubCartRepository{carts: map[string]domain.Cart{}}
	for _, cart := range carts {
		repo.carts[cart.UserID] = cart
	}
	return repo
}

func (r *stubCartRepository) snapshot() func() {
	r.mu.Lock()
	defer r.mu.Unlock()
	saved := maps.Clone(r.carts)
	return func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		r.carts = saved
	}
}

func (r *stubCartRepository) GetCart(_ context.Context, userID string) (domain.Cart, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.getErr != nil {
		return domain.Cart{}, r.getErr
	}
	cart, ok := r.carts[userID]
	if !ok {
		return domain.Cart{UserID: userID}, nil
	}
	return cart, nil
}

func (r *stubCartRepository) SaveCart(_ context.Context, cart domain.Cart) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.saveErr != nil {
		return r.saveErr
	}
	r.saves++
	r.carts[cart.UserID] = cart
	return nil
}

func (r *stubCartRepository) DeleteCart(_ context.Context, userID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.deletes++
	delete(r.carts, userID)
	return nil
}

func (r *stubCartRepository) cart(userID string) (domain.Cart, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cart, ok := r.carts[userID]
	return cart, ok
}

type stubOrderRepository struct {
	mu        sync.Mutex
	orders    map[string]domain.Order
	inserts   int
	insertErr  error
	findErr    error
	replaceErr error
}

func newStubOrderRepository(orders ...domain.Order) *stubOrderRepository {
	repo := &stubOrderRepository{orders: map[string]domain.Order{}}
	for _, order := range orders {
		repo.orders[order.ID] = order
	}
	return repo
}

func (r *stubOrderRepository) snapshot() func() {
	r.mu.Lock()
	defer r.mu.Unlock()
	saved := maps.Clone(r.orders)
	return func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		r.orders = saved
	}
}

func (r *stubOrderRepository) Insert(_ context.Context, order domain.Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.insertErr != nil {
		return r.insertErr
	}
	if _, exists := r.orders[order.ID]; exists {
		return &stubRepoError{err: fmt.Errorf("order %s exists", order.ID), conflict: true}
	}
	r.inserts++
	r.orders[order.ID] = order
	return nil
}

func (r *stubOrderRepository) FindByID(_ context.Context, orderID string) (domain.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.findErr != nil {
		return domain.Order{}, r.findErr
	}
	order, ok := r.orders[orderID]
	if !ok {
		return domain.Order{}, notFoundErr("order " + orderID)
	}
	return order, nil
}

func (r *stubOrderRepository) Delete(_ context.Context, orderID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.orders, orderID)
	return nil
}

func (r *stubOrderRepository) ReplaceDraft(_ context.Context, order domain.Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.replaceErr != nil {
		return r.replaceErr
	}
	current, ok := r.orders[order.ID]
	if !ok {
		return notFoundErr("order " + order.ID)
	}
	order.CreatedAt = current.CreatedAt
	r.orders[order.ID] = order
	return nil
}

func (r *stubOrderRepository) MarkPaid(_ context.Context, orderID string, method domain.PaymentMethod, paidAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	order, ok := r.orders[orderID]
	if !ok {
		return notFoundErr("order " + orderID)
	}
	order.Status = domain.OrderStatusPaid
	order.PaymentMethod = method
	order.WorkflowStep = domain.WorkflowInProduction
	order.PaidAt = &paidAt
	r.orders[orderID] = order
	return nil
}

func (r *stubOrderRepository) AttachShippingLabel(_ context.Context, orderID string, label domain.ShippingLabel) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	order := r.orders[orderID]
	order.ShippingLabel = &label
	order.WorkflowStep = domain.WorkflowShipping
	r.orders[orderID] = order
	return nil
}

func (r *stubOrderRepository) AppendTracking(_ context.Context, orderID string, event domain.TrackingEvent, step domain.WorkflowStep) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	order := r.orders[orderID]
	order.Tracking = append(order.Tracking, event)
	order.WorkflowStep = step
	r.orders[orderID] = order
	return nil
}

func (r *stubOrderRepository) ListByUser(_ context.Context, userID string, pager domain.Pagination) (domain.CursorPage[domain.Order], error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.findErr != nil {
		return domain.CursorPage[domain.Order]{}, r.findErr
	}
	var owned []domain.Order
	for _, order := range r.orders {
		if order.UserID == userID {
			owned = append(owned, order)
		}
	}
	slices.SortFunc(owned, func(a, b domain.Order) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(b.ID, a.ID)
	})
	start := 0
	if pager.PageToken != "" {
		start, _ = strconv.Atoi(pager.PageToken)
	}
	if start > len(owned) {
		start = len(owned)
	}
	end := len(owned)
	next := ""
	if pager.PageSize > 0 && start+pager.PageSize < end {
		end = start + pager.PageSize
		next = strconv.Itoa(end)
	}
	return domain.CursorPage[domain.Order]{Items: owned[start:end], NextPageToken: next}, nil
}

func (r *stubOrderRepository) order(orderID string) (domain.Order, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	order, ok := r.orders[orderID]
	return order, ok
}

func (r *stubOrderRepository) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.orders)
}

type stubPromotionRepository struct {
	mu         sync.Mutex
	codes      map[string]domain.PromotionCode
	increments map[string]int
	findErr    error
}

func newStubPromotionRepository(codes ...domain.PromotionCode) *stubPromotionRepository {
	repo := &stubPromotionRepository{codes: map[string]domain.PromotionCode{}, increments: map[string]int{}}
	for _, code := range codes {
		repo.codes[code.Code] = code
	}
	return repo
}

func (r *stubPromotionRepository) snapshot() func() {
	r.mu.Lock()
	defer r.mu.Unlock()
	codes := maps.Clone(r.codes)
	increments := maps.Clone(r.increments)
	return func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		r.codes = codes
		r.increments = increments
	}
}

func (r *stubPromotionRepository) FindByCode(_ context.Context, code string) (domain.PromotionCode, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.findErr != nil {
		return domain.PromotionCode{}, r.findErr
	}
	promo, ok := r.codes[code]
	if !ok {
		return domain.PromotionCode{}, notFoundErr("promotion " + code)
	}
	return promo, nil
}

func (r *stubPromotionRepository) IncrementUsage(_ context.Context, code string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	promo, ok := r.codes[code]
	if !ok {
		return notFoundErr("promotion " + code)
	}
	promo.Used++
	r.codes[code] = promo
	r.increments[code]++
	return nil
}

type stubCatalogRepository struct {
	products  map[string]domain.Product
	fabrics   map[string]domain.Fabric
	stock     map[string]domain.StockItem
	mt        *domain.ManufacturingTime
	outageErr error
}

func (c *stubCatalogRepository) GetProduct(_ context.Context, id string) (domain.Product, error) {
	if c.outageErr != nil {
		return domain.Product{}, c.outageErr
	}
	product, ok := c.products[id]
	if !ok {
		return domain.Product{}, notFoundErr("product " + id)
	}
	return product, nil
}

func (c *stubCatalogRepository) GetFabric(_ context.Context, id string) (domain.Fabric, error) {
	fabric, ok := c.fabrics[id]
	if !ok {
		return domain.Fabric{}, notFoundErr("fabric " + id)
	}
	return fabric, nil
}

func (c *stubCatalogRepository) GetStockItem(_ context.Context, id string) (domain.StockItem, error) {
	if c.outageErr != nil {
		return domain.StockItem{}, c.outageErr
	}
	item, ok := c.stock[id]
	if !ok {
		return domain.StockItem{}, notFoundErr("stock " + id)
	}
	return item, nil
}

func (c *stubCatalogRepository) GetManufacturingTime(context.Context) (domain.ManufacturingTime, error) {
	if c.mt == nil {
		return domain.ManufacturingTime{}, notFoundErr("manufacturing time")
	}
	return *c.mt, nil
}

type stubSettingsRepository struct {
	flags domain.FeatureFlags
	err   error
}

func (s *stubSettingsRepository) FeatureFlags(context.Context) (domain.FeatureFlags, error) {
	return s.flags, s.err
}

type stubShippingPricer struct {
	mu         sync.Mutex
	price      shipping.Price
	priceErr   error
	priceCalls int
	label      shipping.Label
	labelErr   error
	labelReqs  []shipping.LabelRequest
}

func (s *stubShippingPricer) GetPrice(context.Context, string, int) (shipping.Price, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.priceCalls++
	return s.price, s.priceErr
}

func (s *stubShippingPricer) BuyShippingLabel(_ context.Context, req shipping.LabelRequest) (shipping.Label, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.labelReqs = append(s.labelReqs, req)
	return s.label, s.labelErr
}

type stubSession struct {
	session   payments.Session
	expired   bool
	completed bool
}

type stubPaymentProvider struct {
	mu         sync.Mutex
	sessions   map[string]*stubSession
	created    []payments.SessionRequest
	cancelled  []string
	createErr  error
	expiredErr error
	cancelErr  error

	// replayByKey makes CreateSession answer a known idempotency key with the session first
	// created for it, as the provider does.
	replayByKey bool
	byKey       map[string]payments.Session
}

func newStubPaymentProvider() *stubPaymentProvider {
	return &stubPaymentProvider{sessions: map[string]*stubSession{}, byKey: map[string]payments.Session{}}
}

func (p *stubPaymentProvider) CreateSession(_ context.Context, req payments.SessionRequest) (payments.Session, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.createErr != nil {
		return payments.Session{}, p.createErr
	}
	if p.replayByKey {
		if session, ok := p.byKey[req.IdempotencyKey]; ok {
			return session, nil
		}
	}
	p.created = append(p.created, req)
	id := fmt.Sprintf("cs_%d", len(p.created))
	session := payments.Session{ID: id, URL: "https://pay.test/" + id}
	p.sessions[id] = &stubSession{session: session}
	p.byKey[req.IdempotencyKey] = session
	return session, nil
}

func (p *stubPaymentProvider) IsSessionExpired(_ context.Context, sessionID string) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.expiredErr != nil {
		return false, p.expiredErr
	}
	s, ok := p.sessions[sessionID]
	if !ok {
		return true, nil
	}
	if s.completed {
		return false, payments.ErrSessionCompleted
	}
	return s.expired, nil
}

func (p *stubPaymentProvider) CancelSession(_ context.Context, sessionID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cancelErr != nil {
		return p.cancelErr
	}
	if s, ok := p.sessions[sessionID]; ok && s.completed {
		return payments.ErrSessionCompleted
	}
	p.cancelled = append(p.cancelled, sessionID)
	if s, ok := p.sessions[sessionID]; ok {
		s.expired = true
	}
	return nil
}

func (p *stubPaymentProvider) complete(sessionID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if s, ok := p.sessions[sessionID]; ok {
		s.completed = true
	}
}

func (p *stubPaymentProvider) expire(sessionID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if s, ok := p.sessions[sessionID]; ok {
		s.expired = true
	}
}

type sentEmail struct {
	template  string
	recipient string
	vars      map[string]string
}

type stubEmailScheduler struct {
	mu   sync.Mutex
	sent []sentEmail
	err  error
}

func (s *stubEmailScheduler) ScheduleSend(_ context.Context, templateKey, recipient string, vars map[string]string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.sent = append(s.sent, sentEmail{template: templateKey, recipient: recipient, vars: vars})
	return nil
}

type stubEventPublisher struct {
	mu       sync.Mutex
	messages []OrderEventMessage
	err      error
}

func (p *stubEventPublisher) PublishOrderEvent(_ context.Context, message OrderEventMessage) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return "", p.err
	}
	p.messages = append(p.messages, message)
	return fmt.Sprintf("msg-%d", len(p.messages)), nil
}

func money(value string) decimal.Decimal {
	return decimal.RequireFromString(value)
}
