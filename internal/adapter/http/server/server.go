package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/rs/cors"

	"github.com/Temutjin2k/taxi-dispatch/config"
	"github.com/Temutjin2k/taxi-dispatch/internal/adapter/http/handler"
	"github.com/Temutjin2k/taxi-dispatch/internal/adapter/http/middleware"
	"github.com/Temutjin2k/taxi-dispatch/pkg/logger"
	wrap "github.com/Temutjin2k/taxi-dispatch/pkg/logger/wrapper"
)

const serverIPAddress = "%s:%s"

// Deps are the services behind the HTTP surface
type Deps struct {
	Orders     handler.OrderService
	Drivers    handler.DriverService
	Admin      handler.AdminService
	Tokens     handler.TokenIssuer
	Validator  middleware.TokenValidator
	Calculator handler.PriceCalculator
	Finder     handler.CandidateFinder
	Hub        handler.Connector
	Greeter    handler.Greeter
	DB         handler.HealthChecker
}

type API struct {
	mux    *http.ServeMux
	server *http.Server
	routes *handlers
	m      *middleware.Middleware

	addr string
	cfg  config.HTTPConfig
	log  logger.Logger
}

type handlers struct {
	health *handler.Health
	order  *handler.Order
	driver *handler.Driver
	admin  *handler.Admin
	auth   *handler.Auth
	live   *handler.Live
}

func New(cfg config.Config, deps Deps, serviceName string, log logger.Logger) *API {
	routes := &handlers{
		health: handler.NewHealth(serviceName, deps.DB, log),
		order:  handler.NewOrder(deps.Orders, deps.Calculator, deps.Finder, cfg.Dispatch.BaseRadiusKm, cfg.Dispatch.CandidateLimit, log),
		driver: handler.NewDriver(deps.Drivers, log),
		admin:  handler.NewAdmin(deps.Admin, log),
		auth:   handler.NewAuth(deps.Tokens, log),
		live:   handler.NewLive(deps.Hub, deps.Greeter, deps.Orders, deps.Drivers, cfg.HTTP.AllowedOrigins, log),
	}

	api := &API{
		mux:    http.NewServeMux(),
		routes: routes,
		m:      middleware.NewMiddleware(deps.Validator, cfg.Auth.Enabled, serviceName, log),
		addr:   fmt.Sprintf(serverIPAddress, "0.0.0.0", cfg.HTTP.Port),
		cfg:    cfg.HTTP,
		log:    log,
	}

	api.setupRoutes()

	api.server = &http.Server{
		Addr:         api.addr,
		Handler:      api.handler(),
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  cfg.HTTP.IdleTimeout,
	}

	return api
}

// NewProbe serves only health and metrics, for modes without a public API
func NewProbe(cfg config.Config, db handler.HealthChecker, serviceName string, log logger.Logger) *API {
	api := &API{
		mux:    http.NewServeMux(),
		routes: &handlers{health: handler.NewHealth(serviceName, db, log)},
		m:      middleware.NewMiddleware(nil, false, serviceName, log),
		addr:   fmt.Sprintf(serverIPAddress, "0.0.0.0", cfg.HTTP.Port),
		cfg:    cfg.HTTP,
		log:    log,
	}

	api.setupProbeRoutes()

	api.server = &http.Server{
		Addr:         api.addr,
		Handler:      api.m.Base().Then(api.mux),
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  cfg.HTTP.IdleTimeout,
	}

	return api
}

// handler wraps the mux with CORS and the base middleware chain
func (a *API) handler() http.Handler {
	c := cors.New(cors.Options{
		AllowedOrigins:   a.cfg.AllowedOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:   []string{"Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: false,
		MaxAge:           300,
	})
	return c.Handler(a.m.Base().Then(a.mux))
}

func (a *API) Stop(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, a.cfg.ShutdownTimeout)
	defer cancel()
	ctx = wrap.WithAction(ctx, "http_server_stop")

	a.log.Debug(ctx, "shutting down HTTP server...", "address", a.addr)
	if err := a.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("error shutting down server: %w", err)
	}
	a.log.Debug(ctx, "shutting down HTTP server completed")

	return nil
}

func (a *API) Run(ctx context.Context, errCh chan<- error) {
	go func() {
		ctx = wrap.WithAction(ctx, "http_server_start")
		a.log.Info(ctx, "started http server", "address", a.addr)
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("failed to start HTTP server: %w", err)
			return
		}
	}()
}
