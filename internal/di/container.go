package di

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"

	"github.com/couture-field/checkout/internal/platform/config"
	"github.com/couture-field/checkout/internal/platform/observability"
	"github.com/couture-field/checkout/internal/repositories"
	"github.com/couture-field/checkout/internal/services"
)

// healthCacheTTL bounds how often load balancer probes reach the dependencies.
const healthCacheTTL = 2 * time.Second

// Repositories bundles the persistence ports. Health is optional; without it /readyz reports an error.
type Repositories struct {
	UnitOfWork repositories.UnitOfWork
	Carts      repositories.CartRepository
	Orders     repositories.OrderRepository
	Promotions repositories.PromotionRepository
	Catalog    repositories.CatalogRepository
	Settings   repositories.SettingsRepository
	Health     repositories.HealthRepository
}

// PaymentGateway is the payment provider seen from both the checkout and the webhook side.
type PaymentGateway interface {
	services.PaymentProvider
	services.PaymentWebhookVerifier
}

// Adapters bundles the external collaborators. Labels is optional: without it the fulfilment
// service is not built and the label route answers 503.
type Adapters struct {
	Payments PaymentGateway
	Shipping services.ShippingPricer
	Labels   services.LabelStore
	Emails   services.EmailScheduler
	Events   services.OrderEventPublisher
	Meter    metric.Meter
	Logger   *zap.Logger
	Clock    func() time.Time

	// Closers release adapter resources; they run in reverse order on Close.
	Closers []func(context.Context) error
}

// Services bundles the service-layer contracts that handlers rely upon.
type Services struct {
	Promotions  services.PromotionEvaluator
	Assembler   services.OrderAssembler
	Checkout    services.CheckoutCoordinator
	Carts       services.CartService
	Webhooks    services.WebhookIngress
	Orders      services.OrderService
	Fulfillment services.FulfillmentService
	System      services.SystemService
}

// Container wires repositories, services and adapters for runtime use.
type Container struct {
	Config       config.Config
	Repositories Repositories
	Services     Services

	closers []func(context.Context) error
}

// NewContainer constructs the runtime services. Tests supply in-memory repositories and adapters.
func NewContainer(cfg config.Config, repos Repositories, adapters Adapters, build services.BuildInfo) (*Container, error) {
	if repos.UnitOfWork == nil {
		return nil, errors.New("di: unit of work is required")
	}
	if adapters.Payments == nil {
		return nil, errors.New("di: payment gateway is required")
	}
	if adapters.Shipping == nil {
		return nil, errors.New("di: shipping pricer is required")
	}

	svc, err := buildServices(cfg, repos, adapters, build)
	if err != nil {
		return nil, err
	}

	return &Container{
		Config:       cfg,
		Repositories: repos,
		Services:     svc,
		closers:      append([]func(context.Context) error(nil), adapters.Closers...),
	}, nil
}

// Close releases adapter resources such as Firestore, Pub/Sub or storage clients.
func (c *Container) Close(ctx context.Context) error {
	if c == nil {
		return nil
	}
	var errs []error
	for i := len(c.closers) - 1; i >= 0; i-- {
		if c.closers[i] == nil {
			continue
		}
		if err := c.closers[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	c.closers = nil
	return errors.Join(errs...)
}

func buildServices(cfg config.Config, repos Repositories, adapters Adapters, build services.BuildInfo) (Services, error) {
	var svc Services

	base := adapters.Logger
	if base == nil {
		base = zap.NewNop()
	}
	clock := adapters.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := func(name string) func(context.Context, string, map[string]any) {
		return observability.ServiceLogger(base.Named(name))
	}

	promotions, err := services.NewPromotionEvaluator(services.PromotionEvaluatorDeps{
		Promotions: repos.Promotions,
		Logger:     logger("promotions"),
	})
	if err != nil {
		return Services{}, fmt.Errorf("build promotion evaluator: %w", err)
	}
	svc.Promotions = promotions

	assembler, err := services.NewOrderAssembler(services.OrderAssemblerDeps{
		Catalog:         repos.Catalog,
		Shipping:        adapters.Shipping,
		Promotions:      promotions,
		Currency:        cfg.PSP.Currency,
		DefaultCarrier:  cfg.Shipping.DefaultCarrier,
		UrgentSurcharge: cfg.Checkout.UrgentSurcharge,
		Clock:           clock,
		Logger:          logger("assembler"),
	})
	if err != nil {
		return Services{}, fmt.Errorf("build order assembler: %w", err)
	}
	svc.Assembler = assembler

	coordinator, err := services.NewCheckoutCoordinator(services.CheckoutCoordinatorDeps{
		UnitOfWork:     repos.UnitOfWork,
		Carts:          repos.Carts,
		Orders:         repos.Orders,
		Promotions:     repos.Promotions,
		Settings:       repos.Settings,
		Assembler:      assembler,
		Payments:       adapters.Payments,
		Emails:         adapters.Emails,
		Events:         adapters.Events,
		DefaultCarrier: cfg.Shipping.DefaultCarrier,
		Clock:          clock,
		Logger:         logger("checkout"),
	})
	if err != nil {
		return Services{}, fmt.Errorf("build checkout coordinator: %w", err)
	}
	svc.Checkout = coordinator

	carts, err := services.NewCartService(services.CartServiceDeps{
		Carts:       repos.Carts,
		Catalog:     repos.Catalog,
		Coordinator: coordinator,
		Logger:      logger("cart"),
	})
	if err != nil {
		return Services{}, fmt.Errorf("build cart service: %w", err)
	}
	svc.Carts = carts

	webhooks, err := services.NewWebhookIngress(services.WebhookIngressDeps{
		Verifier:    adapters.Payments,
		Coordinator: coordinator,
		Meter:       adapters.Meter,
		Logger:      logger("webhooks"),
	})
	if err != nil {
		return Services{}, fmt.Errorf("build webhook ingress: %w", err)
	}
	svc.Webhooks = webhooks

	orders, err := services.NewOrderService(services.OrderServiceDeps{Orders: repos.Orders})
	if err != nil {
		return Services{}, fmt.Errorf("build order service: %w", err)
	}
	svc.Orders = orders

	if adapters.Labels != nil {
		fulfillment, err := services.NewFulfillmentService(services.FulfillmentServiceDeps{
			UnitOfWork: repos.UnitOfWork,
			Orders:     repos.Orders,
			Shipping:   adapters.Shipping,
			Labels:     adapters.Labels,
			Events:     adapters.Events,
			Clock:      clock,
			Logger:     logger("fulfillment"),
		})
		if err != nil {
			return Services{}, fmt.Errorf("build fulfillment service: %w", err)
		}
		svc.Fulfillment = fulfillment
	}

	if repos.Health != nil {
		if build.Environment == "" {
			build.Environment = cfg.Security.Environment
		}
		if build.StartedAt.IsZero() {
			build.StartedAt = clock().UTC()
		}
		system, err := services.NewSystemService(services.SystemServiceDeps{
			HealthRepository: repos.Health,
			Critical:         []string{"firestore"},
			CacheTTL:         healthCacheTTL,
			Clock:            clock,
			Build:            build,
		})
		if err != nil {
			return Services{}, fmt.Errorf("build system service: %w", err)
		}
		svc.System = system
	}

	return svc, nil
}
