package main

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"clubpay/internal/intake"
	"clubpay/internal/payments/checkout"
	"clubpay/internal/payments/webhook"
	"clubpay/internal/platform/middleware"
	"clubpay/internal/platform/ratelimit"
	"clubpay/pkg/platform/httputil"
)

type healthResponse struct {
	Status   string            `json:"status"`
	Checks   map[string]string `json:"checks,omitempty"`
	Broker   string            `json:"broker"`
	Database string            `json:"database"`
}

func (a *app) router(processor *webhook.Processor) http.Handler {
	cfg := a.cfg
	r := chi.NewRouter()
	r.Use(chimw.RealIP)
	middleware.Common(r, a.logger, middleware.NewMetrics(a.registry))

	r.Get("/healthz", a.handleHealth)
	r.Handle("/metrics", promhttp.HandlerFor(a.registry, promhttp.HandlerOpts{}))

	webhooks := webhook.NewHandler(processor, a.logger)
	webhooks.Register(r)

	provider := checkout.NewStripeProvider(cfg.Stripe.APIKey, cfg.Stripe.SuccessURL, cfg.Stripe.CancelURL,
		checkout.WithProductName(cfg.Stripe.DonationProductName),
	)
	checkouts := checkout.NewHandler(checkout.NewService(provider, a.ledger,
		checkout.WithPlans(cfg.Stripe.PlanPrices),
		checkout.WithMinDonationAmount(cfg.Stripe.MinDonationAmount),
		checkout.WithCurrencies(cfg.Stripe.AllowedDonationCurrencies),
		checkout.WithLogger(a.logger),
		checkout.WithMetrics(a.payMetrics),
	), a.logger)
	intakes := intake.NewHandler(intake.NewService(a.emitter, a.logger), a.logger)

	limiter := a.limiter()
	r.Group(func(r chi.Router) {
		if limiter != nil {
			r.Use(limiter.PerClient("checkout", cfg.RateLimit.Checkout, cfg.RateLimit.Window))
		}
		checkouts.Register(r)
	})
	r.Group(func(r chi.Router) {
		if limiter != nil {
			r.Use(limiter.PerClient("contact", cfg.RateLimit.Contact, cfg.RateLimit.Window))
		}
		intakes.RegisterPublic(r)
	})

	r.Group(func(r chi.Router) {
		r.Use(middleware.RequireAdmin(middleware.NewTokenValidator(cfg.Admin.JWTSigningKey, cfg.Admin.JWTIssuer), a.logger))
		webhooks.RegisterAdmin(r)
		intakes.RegisterAdmin(r)
	})
	return r
}

func (a *app) limiter() *ratelimit.Limiter {
	if !a.cfg.RateLimit.Enabled {
		return nil
	}
	var store ratelimit.Store
	if a.redis != nil {
		store = ratelimit.NewRedisStore(a.redis.Client)
	} else {
		store = ratelimit.NewInMemoryStore()
	}
	return ratelimit.NewLimiter(store, a.logger, ratelimit.WithMetrics(ratelimit.NewMetrics(a.registry)))
}

func (a *app) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	resp := healthResponse{Status: "ok", Broker: a.cfg.Broker.Backend, Database: "memory"}
	status := http.StatusOK
	fail := func(name string, err error) {
		if resp.Checks == nil {
			resp.Checks = make(map[string]string)
		}
		resp.Checks[name] = err.Error()
		resp.Status = "degraded"
		status = http.StatusServiceUnavailable
	}
	if a.db != nil {
		resp.Database = "postgres"
		if err := a.db.PingContext(ctx); err != nil {
			fail("postgres", err)
		}
	}
	if a.redis != nil {
		if err := a.redis.Health(ctx); err != nil {
			fail("redis", err)
		}
	}
	httputil.WriteJSON(w, status, resp)
}
