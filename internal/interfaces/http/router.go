package http

import (
	"context"
	"net/http"
	"time"

	"github.com/dreschagin/pagespeed-monitor/internal/interfaces/http/handler"
	"github.com/dreschagin/pagespeed-monitor/internal/interfaces/http/middleware"
	"github.com/dreschagin/pagespeed-monitor/pkg/config"
	"github.com/dreschagin/pagespeed-monitor/pkg/logger"
)

const readinessTimeout = 2 * time.Second

// ReadinessCheck проверяет доступность хранилища результатов
type ReadinessCheck func(ctx context.Context) error

// Handlers собирает все HTTP обработчики
type Handlers struct {
	Dashboard *handler.DashboardHandler
	WebSocket *handler.WebSocketHandler
	Runs      *handler.RunAPIHandler
	Reports   *handler.ReportAPIHandler
	Targets   *handler.TargetAPIHandler
	Auth      *handler.AuthAPIHandler
	// Metrics отдает prometheus метрики, nil отключает /metrics
	Metrics http.Handler
}

// Router настраивает маршруты приложения
type Router struct {
	mux       *http.ServeMux
	handlers  Handlers
	readiness ReadinessCheck
	limiter   *middleware.IPRateLimiter
	security  config.SecurityConfig
	logger    *logger.Logger
}

// NewRouter создает новый router
func NewRouter(
	handlers Handlers,
	readiness ReadinessCheck,
	security config.SecurityConfig,
	logger *logger.Logger,
) *Router {
	rt := &Router{
		mux:       http.NewServeMux(),
		handlers:  handlers,
		readiness: readiness,
		security:  security,
		logger:    logger,
	}
	if security.RateLimitRPS > 0 {
		rt.limiter = middleware.NewIPRateLimiter(security.RateLimitRPS, security.RateLimitBurst)
	}
	return rt
}

// Close останавливает фоновые задачи middleware
func (rt *Router) Close() {
	if rt.limiter != nil {
		rt.limiter.Stop()
	}
}

// Setup настраивает все маршруты
func (rt *Router) Setup() http.Handler {
	// Health endpoints are intentionally unauthenticated for probes.
	rt.mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	rt.mux.HandleFunc("GET /readyz", rt.ready)
	if rt.handlers.Metrics != nil {
		rt.mux.Handle("GET /metrics", rt.handlers.Metrics)
	}

	authMiddleware := middleware.Auth(middleware.AuthConfig{
		Enabled:     rt.security.AuthEnabled,
		BearerToken: rt.security.AuthToken,
	}, rt.logger)

	api := func(h http.HandlerFunc) http.Handler {
		var wrapped http.Handler = h
		wrapped = authMiddleware(wrapped)
		if rt.limiter != nil {
			wrapped = middleware.RateLimit(rt.limiter)(wrapped)
		}
		return middleware.Compression(wrapped)
	}

	// Dashboard
	rt.mux.Handle("GET /{$}", authMiddleware(http.HandlerFunc(rt.handlers.Dashboard.ShowDashboard)))

	// WebSocket: авторизацию проверяет сам handler
	rt.mux.HandleFunc("GET /ws", rt.handlers.WebSocket.HandleConnection)

	// Auth
	rt.mux.HandleFunc("POST /api/auth/login", rt.handlers.Auth.Login)
	rt.mux.HandleFunc("POST /api/auth/logout", rt.handlers.Auth.Logout)
	rt.mux.HandleFunc("GET /api/auth/status", rt.handlers.Auth.Status)

	// Запуски
	rt.mux.Handle("POST /api/measure", api(rt.handlers.Runs.Measure))
	rt.mux.Handle("GET /api/measurement-status", api(rt.handlers.Runs.Status))
	rt.mux.Handle("GET /api/runs", api(rt.handlers.Runs.History))

	// Результаты
	rt.mux.Handle("GET /api/stats", api(rt.handlers.Reports.GetStats))
	rt.mux.Handle("GET /api/measurements", api(rt.handlers.Reports.ListMeasurements))
	rt.mux.Handle("DELETE /api/measurements", api(rt.handlers.Reports.PurgeMeasurements))
	rt.mux.Handle("GET /api/improvement-report", api(rt.handlers.Reports.GetImprovementReport))
	rt.mux.Handle("POST /api/generate-solution", api(rt.handlers.Reports.GenerateSolution))

	// Реестр целей
	rt.mux.Handle("GET /api/urls", api(rt.handlers.Targets.List))
	rt.mux.Handle("POST /api/urls", api(rt.handlers.Targets.Create))
	rt.mux.Handle("PUT /api/urls/{id}", api(rt.handlers.Targets.Update))
	rt.mux.Handle("DELETE /api/urls/{id}", api(rt.handlers.Targets.Delete))

	// Применяем middleware
	var handler http.Handler = rt.mux
	handler = middleware.Logger(rt.logger)(handler)
	handler = middleware.Recovery(rt.logger)(handler)

	return handler
}

func (rt *Router) ready(w http.ResponseWriter, r *http.Request) {
	if rt.readiness != nil {
		ctx, cancel := context.WithTimeout(r.Context(), readinessTimeout)
		defer cancel()
		if err := rt.readiness(ctx); err != nil {
			rt.logger.Warn("Readiness check failed", "error", err.Error())
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte("not ready"))
			return
		}
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}
