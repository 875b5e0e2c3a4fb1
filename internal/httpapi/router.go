package httpapi

import (
	"net/http"
	"time"

	"digistore-be/internal/logger"
	"digistore-be/internal/metrics"
	"digistore-be/internal/middleware"
	"digistore-be/internal/order"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
)

const requestTimeout = 15 * time.Second

type Deps struct {
	Orders     order.Service
	JWTSecret  []byte
	CORSOrigin string
	// Limiter is optional.
	Limiter *middleware.RateLimiter
}

func NewRouter(d Deps) *chi.Mux {
	r := chi.NewRouter()
	r.Use(logger.RequestIDMiddleware, chimw.RealIP)
	r.Use(middleware.CORS(d.CORSOrigin))
	r.Use(middleware.AuthMiddleware(d.JWTSecret))
	// panics recovered below the access log are logged and counted as 500s
	r.Use(middleware.LoggingMiddleware, chimw.Recoverer)
	if d.Limiter != nil {
		r.Use(d.Limiter.Middleware)
	}
	r.Use(chimw.Timeout(requestTimeout))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	r.Get("/metrics", metrics.Default.Handler())

	oh := &OrdersHandler{Service: d.Orders}
	r.Route("/api/orders", func(r chi.Router) {
		r.Use(middleware.RequireAuth)
		oh.Register(r)
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, "route not found", http.StatusNotFound)
	})

	return r
}
