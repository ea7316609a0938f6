package main

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	httpSwagger "github.com/swaggo/http-swagger"

	"github.com/fkhayef/villagebank/internal/contribution"
	"github.com/fkhayef/villagebank/internal/fundrequest"
	"github.com/fkhayef/villagebank/internal/group"
	"github.com/fkhayef/villagebank/internal/loan"
	"github.com/fkhayef/villagebank/internal/metrics"
	"github.com/fkhayef/villagebank/internal/payment"
	"github.com/fkhayef/villagebank/internal/payout"
	"github.com/fkhayef/villagebank/internal/store"
	mw "github.com/fkhayef/villagebank/pkg/middleware"
	"github.com/fkhayef/villagebank/pkg/response"
)

type handlers struct {
	group        *group.Handler
	contribution *contribution.Handler
	fundRequest  *fundrequest.Handler
	loan         *loan.Handler
	payout       *payout.Handler
	payment      *payment.Handler
}

type routerDeps struct {
	logger     *slog.Logger
	store      store.Store
	handlers   handlers
	userAuth   func(http.Handler) http.Handler
	cronSecret string
	metrics    *metrics.Metrics
}

func newRouter(d routerDeps) chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(mw.RequestLogger(d.logger))
	r.Use(middleware.Recoverer)
	if d.metrics != nil {
		r.Use(d.metrics.Middleware)
		r.Method(http.MethodGet, "/metrics", d.metrics.Handler())
	}

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		if err := d.store.Ping(r.Context()); err != nil {
			d.logger.WarnContext(r.Context(), "health check failed", "error", err)
			response.Error(w, http.StatusServiceUnavailable, "UNAVAILABLE", "Store unavailable")
			return
		}
		response.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Get("/swagger/*", httpSwagger.Handler(httpSwagger.URL("/swagger/doc.json")))

	h := d.handlers
	r.Route("/api/v1", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(d.userAuth)
			groups := h.group.Routes()
			groups.Route("/{groupId}", func(r chi.Router) {
				r.Mount("/join", h.group.JoinRoutes())
				r.Mount("/contributions", h.contribution.Routes())
				r.Mount("/fund-requests", h.fundRequest.Routes())
				r.Mount("/loans", h.loan.Routes())
				r.Mount("/payouts", h.payout.Routes())
			})
			r.Mount("/groups", groups)
		})

		r.Route("/cron", func(r chi.Router) {
			r.Use(mw.SharedSecret(d.cronSecret))
			r.Mount("/check-loans", h.loan.CronRoutes())
			r.Mount("/schedule-payouts", h.payout.CronRoutes())
		})

		r.Mount("/webhooks/payments", h.payment.Routes())
	})

	return r
}
