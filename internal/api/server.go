package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"aegis-core/internal/auth"
	"aegis-core/internal/compliance"
	"aegis-core/internal/dispatch"
	apperrors "aegis-core/internal/errors"
	"aegis-core/internal/observability/metrics"
	"aegis-core/internal/ratelimit"
	"aegis-core/pkg/logger"
)

const (
	defaultShutdownTimeout = 10 * time.Second
	maxBodyBytes           = 1 << 20
)

// HealthChecker reports storage connectivity for /health.
type HealthChecker interface {
	Ping(ctx context.Context) error
}

// Options 描述 HTTP 服务的外围参数。
type Options struct {
	Address         string
	AllowedOrigins  []string
	ShutdownTimeout time.Duration
	MetricsEnabled  bool
	MetricsPath     string
	Limiter         ratelimit.Limiter
	PerClientLimit  bool
}

// Server 负责暴露 REST 接口，所有链上写操作都经过 Dispatcher。
type Server struct {
	opts       Options
	auth       *auth.Service
	dispatcher *dispatch.Dispatcher
	compliance *compliance.Service
	health     HealthChecker
	log        *slog.Logger
}

// NewServer 构造 API 服务实例。health 为空时视为存储始终可用。
func NewServer(opts Options, authSvc *auth.Service, dispatcher *dispatch.Dispatcher, complianceSvc *compliance.Service, health HealthChecker) (*Server, error) {
	if authSvc == nil {
		return nil, errors.New("api server requires an auth service")
	}
	if dispatcher == nil {
		return nil, errors.New("api server requires a dispatcher")
	}
	if complianceSvc == nil {
		return nil, errors.New("api server requires a compliance service")
	}
	if opts.ShutdownTimeout <= 0 {
		opts.ShutdownTimeout = defaultShutdownTimeout
	}
	if opts.MetricsPath == "" {
		opts.MetricsPath = "/metrics"
	}
	return &Server{
		opts:       opts,
		auth:       authSvc,
		dispatcher: dispatcher,
		compliance: complianceSvc,
		health:     health,
		log:        logger.Named("api"),
	}, nil
}

// Handler 返回完整的路由与中间件链。
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	protect := s.auth.Middleware(auth.MiddlewareConfig{})

	s.route(mux, "POST /api/auth/login", http.HandlerFunc(s.handleLogin))
	s.route(mux, "POST /api/auth/register", http.HandlerFunc(s.handleRegister))
	s.route(mux, "POST /api/agent/pay", protect(http.HandlerFunc(s.handlePay)))
	s.route(mux, "GET /api/finance/balance/{address}", protect(http.HandlerFunc(s.handleBalance)))
	s.route(mux, "POST /api/finance/fund", protect(http.HandlerFunc(s.handleFund)))
	s.route(mux, "POST /api/governance/limit", protect(http.HandlerFunc(s.handleSetLimit)))
	s.route(mux, "POST /api/compliance/register", protect(http.HandlerFunc(s.handleRegisterEntity)))
	s.route(mux, "POST /api/compliance/mint", protect(http.HandlerFunc(s.handleMint)))
	s.route(mux, "GET /api/compliance/entities", protect(http.HandlerFunc(s.handleListEntities)))
	s.route(mux, "GET /health", http.HandlerFunc(s.handleHealth))
	if s.opts.MetricsEnabled {
		mux.Handle("GET "+s.opts.MetricsPath, metrics.Handler())
	}

	var handler http.Handler = mux
	handler = ratelimit.Middleware(s.opts.Limiter, ratelimit.MiddlewareConfig{
		PerClient: s.opts.PerClientLimit,
		OnReject:  metrics.ObserveRateLimited,
		Logger:    s.log,
	})(handler)
	handler = withCORS(s.opts.AllowedOrigins, handler)
	return withRequestID(handler)
}

func (s *Server) route(mux *http.ServeMux, pattern string, h http.Handler) {
	mux.Handle(pattern, instrument(pattern, h))
}

// Start 启动 HTTP 服务，直到上下文取消或出现错误。
func (s *Server) Start(ctx context.Context) error {
	server := &http.Server{
		Addr:              s.opts.Address,
		Handler:           withContext(ctx, s.Handler()),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()
	s.log.Info("API 服务已启动", "address", s.opts.Address)

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.opts.ShutdownTimeout)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
		s.log.Info("API 服务已停止")
		return ctx.Err()
	case err := <-errCh:
		return err
	}
}

// withContext 确保请求处理能够感知根上下文取消。
func withContext(ctx context.Context, handler http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-ctx.Done():
			writeJSON(w, http.StatusServiceUnavailable, errorBody{Error: errorDetail{
				Code:    string(apperrors.CodeUnknown),
				Message: "服务已关闭",
			}})
			return
		default:
		}
		handler.ServeHTTP(w, r)
	})
}
