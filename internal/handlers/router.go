package handlers

import (
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/couture-field/checkout/internal/platform/httpx"
)

// RouteRegistrar registers one route group on the router it is given.
type RouteRegistrar func(r chi.Router)

const (
	apiPrefix             = "/api/v1"
	defaultRequestTimeout = 30 * time.Second
)

// routeGroup is a mount point. A group without a registrar answers 503 so a partially configured
// deployment fails loudly instead of with 404s.
type routeGroup struct {
	name        string
	registrar   RouteRegistrar
	middlewares []func(http.Handler) http.Handler
}

type routerConfig struct {
	timeout     time.Duration
	middlewares []func(http.Handler) http.Handler
	health      *HealthHandlers

	cart, checkout, orders routeGroup
	webhooks, internal     routeGroup
}

type Option func(*routerConfig)

// NewRouter builds the HTTP surface:
//
//	/healthz, /readyz                                 probes
//	/api/v1/cart, /api/v1/checkout, /api/v1/orders    customer routes (Firebase auth)
//	/webhooks                                         provider callbacks (own verification)
//	/internal                                         job routes (OIDC or HMAC)
func NewRouter(opts ...Option) chi.Router {
	cfg := routerConfig{
		timeout:  defaultRequestTimeout,
		cart:     routeGroup{name: "cart"},
		checkout: routeGroup{name: "checkout"},
		orders:   routeGroup{name: "orders"},
		webhooks: routeGroup{name: "webhooks"},
		internal: routeGroup{name: "internal", middlewares: []func(http.Handler) http.Handler{middleware.NoCache}},
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.health == nil {
		cfg.health = NewHealthHandlers()
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP)
	for _, mw := range cfg.middlewares {
		if mw != nil {
			r.Use(mw)
		}
	}
	if cfg.timeout > 0 {
		r.Use(middleware.Timeout(cfg.timeout))
	}

	r.NotFound(func(w http.ResponseWriter, req *http.Request) {
		httpx.WriteError(req.Context(), w, httpx.NewError("route_not_found", "no route for "+req.URL.Path, http.StatusNotFound))
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, req *http.Request) {
		httpx.WriteError(req.Context(), w, httpx.NewError("method_not_allowed",
			fmt.Sprintf("%s is not allowed on %s", req.Method, req.URL.Path), http.StatusMethodNotAllowed))
	})

	r.Get("/healthz", cfg.health.Healthz)
	r.Get("/readyz", cfg.health.Readyz)

	r.Route(apiPrefix, func(api chi.Router) {
		cfg.cart.mount(api)
		cfg.checkout.mount(api)
		cfg.orders.mount(api)
	})
	cfg.webhooks.mount(r)
	cfg.internal.mount(r)
	return r
}

func (g routeGroup) mount(parent chi.Router) {
	parent.Route("/"+g.name, func(group chi.Router) {
		for _, mw := range g.middlewares {
			if mw != nil {
				group.Use(mw)
			}
		}
		if g.registrar != nil {
			g.registrar(group)
			return
		}
		unavailable := func(w http.ResponseWriter, req *http.Request) {
			httpx.WriteError(req.Context(), w, httpx.NewError("service_unavailable",
				g.name+" routes are not configured", http.StatusServiceUnavailable))
		}
		group.HandleFunc("/", unavailable)
		group.HandleFunc("/*", unavailable)
	})
}

// WithMiddlewares appends global middleware. They run after request ID and real IP resolution and
// before the request timeout.
func WithMiddlewares(mw ...func(http.Handler) http.Handler) Option {
	return func(cfg *routerConfig) {
		cfg.middlewares = append(cfg.middlewares, mw...)
	}
}

// WithRequestTimeout bounds every request; zero disables the bound.
func WithRequestTimeout(timeout time.Duration) Option {
	return func(cfg *routerConfig) {
		if timeout >= 0 {
			cfg.timeout = timeout
		}
	}
}

func WithHealthHandlers(h *HealthHandlers) Option {
	return func(cfg *routerConfig) { cfg.health = h }
}

func WithCartRoutes(reg RouteRegistrar) Option {
	return func(cfg *routerConfig) { cfg.cart.registrar = reg }
}

func WithCheckoutRoutes(reg RouteRegistrar) Option {
	return func(cfg *routerConfig) { cfg.checkout.registrar = reg }
}

func WithOrderRoutes(reg RouteRegistrar) Option {
	return func(cfg *routerConfig) { cfg.orders.registrar = reg }
}

func WithWebhookRoutes(reg RouteRegistrar) Option {
	return func(cfg *routerConfig) { cfg.webhooks.registrar = reg }
}

func WithInternalRoutes(reg RouteRegistrar) Option {
	return func(cfg *routerConfig) { cfg.internal.registrar = reg }
}

// WithInternalMiddlewares guards the /internal group, typically with service authentication.
func WithInternalMiddlewares(mw ...func(http.Handler) http.Handler) Option {
	return func(cfg *routerConfig) {
		cfg.internal.middlewares = append(cfg.internal.middlewares, mw...)
	}
}
