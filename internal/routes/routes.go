package routes

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	shoppinghandler "shopping/internal/handlers/shopping"
	"shopping/pkg/lib/logger/sl"
	"shopping/pkg/lib/metrics"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const serviceName = "shopping"

type Pinger interface {
	Ping(ctx context.Context) error
}

type Deps struct {
	Log            *slog.Logger
	Handler        *shoppinghandler.Handler
	Ready          Pinger
	RequestTimeout time.Duration

	// Metrics and Gatherer are optional. /metrics is served only when both are set.
	Metrics  *metrics.Metrics
	Gatherer prometheus.Gatherer
}

func New(deps Deps) http.Handler {
	r := chi.NewRouter()

	setupMiddleware(r, deps)
	setupRoutes(r, deps)

	return r
}

func setupMiddleware(r *chi.Mux, deps Deps) {
	r.Use(chimw.RequestID)
	r.Use(chimw.Recoverer)
	r.Use(logging(deps.Log))

	if deps.Metrics != nil {
		r.Use(deps.Metrics.Middleware(serviceName, routePatternOrPath))
	}
	if deps.RequestTimeout > 0 {
		r.Use(chimw.Timeout(deps.RequestTimeout))
	}
}

func setupRoutes(r *chi.Mux, deps Deps) {
	h := deps.Handler

	r.Route("/products", func(rr chi.Router) {
		rr.Get("/", h.GetAllProducts)
		rr.Post("/", h.CreateProduct)
		rr.Get("/{name}", h.GetProductByName)
		rr.Post("/{name}/restock", h.Restock)
	})

	r.Route("/customers/{customerID}/cart", func(rr chi.Router) {
		rr.Get("/", h.GetCart)
		rr.Put("/items", h.AddToCart)
		rr.Patch("/items/{product}", h.EditCart)
		rr.Delete("/items/{product}", h.RemoveFromCart)
		rr.Post("/checkout", h.Checkout)
	})

	r.Get("/healthz", healthz)
	r.Get("/readyz", readyz(deps.Log, deps.Ready))

	if deps.Metrics != nil && deps.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(deps.Gatherer, promhttp.HandlerOpts{}))
	}
}

func healthz(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
}

func readyz(log *slog.Logger, ready Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if ready == nil {
			w.WriteHeader(http.StatusOK)
			return
		}
		if err := ready.Ping(r.Context()); err != nil {
			log.Warn("Storage is not ready", sl.Err(err))
			http.Error(w, "Storage is not ready", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}
}

func logging(log *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		log := log.With(slog.String("component", "middleware/logger"))

		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			entry := log.With(
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.String("remote_addr", r.RemoteAddr),
				slog.String("request_id", chimw.GetReqID(r.Context())),
			)
			ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)

			start := time.Now()
			defer func() {
				entry.Info("request completed",
					slog.Int("status", ww.Status()),
					slog.Int("bytes", ww.BytesWritten()),
					slog.String("duration", time.Since(start).String()),
				)
			}()

			next.ServeHTTP(ww, r)
		})
	}
}

func routePatternOrPath(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if rp := rctx.RoutePattern(); rp != "" {
			return rp
		}
	}
	return r.URL.Path
}
