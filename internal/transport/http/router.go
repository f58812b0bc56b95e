package httptransport

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"terrier/internal/platform/middleware"
	"terrier/pkg/platform/httputil"
)

// Registrar is implemented by each module handler.
type Registrar interface {
	Register(r chi.Router)
}

// RouterConfig carries the cross-cutting pieces shared by all route groups.
type RouterConfig struct {
	Logger  *slog.Logger
	Timeout time.Duration
	Health  func() map[string]string
}

// NewRouter assembles the service router: shared middleware chain, the
// operational endpoints, and every module's routes.
func NewRouter(cfg RouterConfig, handlers ...Registrar) *chi.Mux {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}

	r := chi.NewRouter()
	r.Use(middleware.Recovery(cfg.Logger))
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger(cfg.Logger))
	r.Use(middleware.Timeout(cfg.Timeout))

	r.Get("/healthz", func(w http.ResponseWriter, req *http.Request) {
		status := map[string]string{"status": "ok"}
		if cfg.Health != nil {
			for name, state := range cfg.Health() {
				status[name] = state
			}
		}
		httputil.WriteJSON(w, http.StatusOK, status)
	})
	r.Handle("/metrics", promhttp.Handler())

	for _, h := range handlers {
		h.Register(r)
	}
	return r
}
