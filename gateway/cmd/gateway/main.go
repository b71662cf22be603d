package main

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"net/http/httputil"
	"net/url"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"securities-sales-crm/gateway/internal/middleware"
	"securities-sales-crm/gateway/internal/routing"
	"securities-sales-crm/shared/authx"
	"securities-sales-crm/shared/clients/identity"
	"securities-sales-crm/shared/config"
	"securities-sales-crm/shared/httpx"
	"securities-sales-crm/shared/logx"
	"securities-sales-crm/shared/metricsx"
	"securities-sales-crm/shared/observability"
)

type statusResponse struct {
	Status  string `json:"status"`
	Service string `json:"service"`
	Env     string `json:"env,omitempty"`
	Version string `json:"version,omitempty"`
}

func main() {
	cfg, readyProblems := config.Load("gateway", 8080)
	version := strings.TrimSpace(os.Getenv("VERSION"))
	logger := logx.New(cfg.ServiceName, cfg.Env, version, cfg.LogLevel)
	metricsx.Register()

	var shutdownTracer func(context.Context) error
	if cfg.OtelEnabled {
		var err error
		shutdownTracer, err = observability.InitTracer(context.Background(), observability.TracerConfig{
			ServiceName: cfg.ServiceName,
			Env:         cfg.Env,
			Endpoint:    cfg.OtelEndpoint,
			Insecure:    cfg.OtelInsecure,
			SampleRatio: cfg.OtelSampleRatio,
		})
		if err != nil {
			logger.Error(context.Background(), "otel_init_failed", "otel init failed",
				slog.String("error_code", "FAILED_PRECONDITION"),
				slog.String("error", err.Error()),
			)
		}
	}

	routesPath := strings.TrimSpace(os.Getenv("GATEWAY_ROUTES_PATH"))
	if routesPath == "" {
		if p, err := routing.DefaultRoutesPath(cfg.Env); err == nil {
			routesPath = p
		} else {
			readyProblems = append(readyProblems, config.Problem{Field: "GATEWAY_ROUTES_PATH", Message: "failed to resolve default routes path"})
		}
	}

	var resolver routing.Resolver
	if routesPath != "" {
		var err error
		resolver, err = routing.Load(routesPath)
		if err != nil {
			readyProblems = append(readyProblems, config.Problem{Field: "GATEWAY_ROUTES_PATH", Message: err.Error()})
		}
	} else {
		readyProblems = append(readyProblems, config.Problem{Field: "GATEWAY_ROUTES_PATH", Message: "routes config path is required"})
	}

	idClient, err := identity.New(cfg)
	if err != nil {
		readyProblems = append(readyProblems, config.Problem{Field: "IDENTITY_URL", Message: err.Error()})
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		httpx.WriteJSON(w, http.StatusOK, statusResponse{
			Status:  "ok",
			Service: cfg.ServiceName,
			Env:     cfg.Env,
			Version: version,
		})
	})
	mux.HandleFunc("GET /readyz", func(w http.ResponseWriter, r *http.Request) {
		if len(readyProblems) > 0 {
			httpx.WriteError(
				w,
				r,
				http.StatusServiceUnavailable,
				"FAILED_PRECONDITION",
				"service not ready: invalid configuration",
				map[string]any{"problems": readyProblems},
			)
			return
		}
		httpx.WriteJSON(w, http.StatusOK, statusResponse{
			Status:  "ready",
			Service: cfg.ServiceName,
			Env:     cfg.Env,
			Version: version,
		})
	})
	mux.Handle("GET /metrics", metricsx.Handler())

	proxy := newProxyHandler(logger, resolver, idClient)
	handler := httpx.WrapServeMux(mux, proxy)
	skipOps := func(r *http.Request) bool {
		return r.URL.Path == "/healthz" || r.URL.Path == "/readyz" || r.URL.Path == "/metrics"
	}
	handler = middleware.RateLimit{
		Limiter: middleware.NewIPRateLimiter(rateLimitRPS(), rateLimitBurst(), 2*time.Minute),
		Skip:    skipOps,
	}.Wrap(handler)
	handler = middleware.CORS{
		AllowedOrigins: parseCSVEnv("CORS_ALLOWED_ORIGINS"),
		MaxAge:         10 * time.Minute,
		Skip:           skipOps,
	}.Wrap(handler)
	handler = httpx.WithTimeout(cfg.RequestTimeout, handler)
	handler = httpx.WithRequestID(handler)
	handler = httpx.WithRecover(logger, handler)
	handler = metricsx.Instrument(handler)
	handler = httpx.WithRequestLog(logger, httpx.RequestLogOptions{SkipPaths: map[string]bool{"/healthz": true, "/metrics": true}}, handler)
	handler = otelhttp.NewHandler(handler, "http")

	server := &http.Server{
		Addr:              net.JoinHostPort("", strconv.Itoa(cfg.HTTPPort)),
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info(context.Background(), "service_start", "starting service",
			slog.String("addr", server.Addr),
			slog.Int("http_port", cfg.HTTPPort),
			slog.String("log_level", cfg.LogLevel),
			slog.String("routes_path", routesPath),
		)
		errCh <- server.ListenAndServe()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Info(context.Background(), "shutdown_signal", "received signal", slog.String("signal", sig.String()))
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			logger.Error(context.Background(), "server_failed", "server failed",
				slog.String("error_code", "INTERNAL_ERROR"),
				slog.String("error", err.Error()),
			)
			os.Exit(1)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error(context.Background(), "shutdown_failed", "shutdown failed",
			slog.String("error_code", "INTERNAL_ERROR"),
			slog.String("error", err.Error()),
		)
	}
	if shutdownTracer != nil {
		_ = shutdownTracer(context.Background())
	}
	logger.Info(context.Background(), "service_stop", "service stopped")
}

func rateLimitRPS() float64 {
	if v := strings.TrimSpace(os.Getenv("RATE_LIMIT_RPS")); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil && f > 0 {
			return f
		}
	}
	return 20
}

func rateLimitBurst() int {
	if v := strings.TrimSpace(os.Getenv("RATE_LIMIT_BURST")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
	}
	return 40
}

func parseCSVEnv(key string) []string {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func newProxyHandler(logger logx.Logger, resolver routing.Resolver, idClient *identity.Client) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		route, ok := resolver.Resolve(r.URL.Path)
		if !ok {
			httpx.WriteError(w, r, http.StatusNotFound, "NOT_FOUND", "route not found", nil)
			return
		}

		// The gateway does not verify tokens itself; it asks the identity
		// service who the caller is and forwards the result as headers.
		if !resolver.Public(r.URL.Path) {
			token := authx.BearerToken(r)
			if token == "" {
				httpx.WriteError(w, r, http.StatusUnauthorized, "UNAUTHENTICATED", "missing bearer token", nil)
				return
			}
			principal, err := idClient.Me(r.Context(), token)
			if err != nil {
				if errors.Is(err, identity.ErrUnauthenticated) {
					httpx.WriteError(w, r, http.StatusUnauthorized, "UNAUTHENTICATED", "invalid or expired token", nil)
					return
				}
				logger.Error(r.Context(), "identity_unavailable", "identity lookup failed",
					slog.String("error_code", "UPSTREAM_UNAVAILABLE"),
					slog.String("error", err.Error()),
				)
				httpx.WriteError(w, r, http.StatusBadGateway, "UPSTREAM_UNAVAILABLE", "identity service unavailable", nil)
				return
			}
			r.Header.Set("X-User-ID", principal.UserID.String())
			r.Header.Set("X-User-Email", principal.Email)
			r.Header.Set("X-User-Name", principal.Name)
			r.Header.Set("X-User-Roles", strings.Join(principal.Roles, ","))
		} else {
			r.Header.Del("X-User-ID")
			r.Header.Del("X-User-Email")
			r.Header.Del("X-User-Name")
			r.Header.Del("X-User-Roles")
		}

		target, err := url.Parse(route.Upstream)
		if err != nil {
			httpx.WriteError(w, r, http.StatusInternalServerError, "INTERNAL_ERROR", "invalid upstream", nil)
			return
		}

		proxy := httputil.NewSingleHostReverseProxy(target)
		proxy.ErrorHandler = func(w http.ResponseWriter, r *http.Request, err error) {
			logger.Error(r.Context(), "proxy_failed", "upstream request failed",
				slog.String("error_code", "UPSTREAM_UNAVAILABLE"),
				slog.String("upstream", route.Upstream),
				slog.String("error", err.Error()),
			)
			httpx.WriteError(w, r, http.StatusBadGateway, "UPSTREAM_UNAVAILABLE", "upstream unavailable", nil)
		}
		proxy.ServeHTTP(w, r)
	})
}
