package microservices

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Temutjin2k/taxi-dispatch/config"
	"github.com/Temutjin2k/taxi-dispatch/internal/adapter/http/server"
	wshandler "github.com/Temutjin2k/taxi-dispatch/internal/adapter/http/ws"
	"github.com/Temutjin2k/taxi-dispatch/internal/adapter/locationIQ"
	repo "github.com/Temutjin2k/taxi-dispatch/internal/adapter/postgres"
	broker "github.com/Temutjin2k/taxi-dispatch/internal/adapter/rabbit"
	georedis "github.com/Temutjin2k/taxi-dispatch/internal/adapter/redis"
	"github.com/Temutjin2k/taxi-dispatch/internal/domain/types"
	"github.com/Temutjin2k/taxi-dispatch/internal/jobs"
	"github.com/Temutjin2k/taxi-dispatch/internal/service/admin"
	"github.com/Temutjin2k/taxi-dispatch/internal/service/auth"
	"github.com/Temutjin2k/taxi-dispatch/internal/service/calculator"
	"github.com/Temutjin2k/taxi-dispatch/internal/service/dispatch"
	"github.com/Temutjin2k/taxi-dispatch/internal/service/driver"
	"github.com/Temutjin2k/taxi-dispatch/internal/service/order"
	"github.com/Temutjin2k/taxi-dispatch/pkg/logger"
	wrap "github.com/Temutjin2k/taxi-dispatch/pkg/logger/wrapper"
	"github.com/Temutjin2k/taxi-dispatch/pkg/postgres"
	"github.com/Temutjin2k/taxi-dispatch/pkg/rabbit"
	"github.com/Temutjin2k/taxi-dispatch/pkg/redis"
	"github.com/Temutjin2k/taxi-dispatch/pkg/trm"
	ws "github.com/Temutjin2k/taxi-dispatch/pkg/wsHub"
)

const dispatchServiceName = "dispatch-service"

// DispatchService takes orders, searches drivers for them and keeps every
// participant informed over live channels
type DispatchService struct {
	postgresDB *postgres.PostgreDB
	redis      *redis.Client
	rabbit     *rabbit.RabbitMQ
	hub        *ws.Hub
	engine     *dispatch.Engine
	sup        *dispatch.Supervisor
	consumer   *broker.OrderConsumer
	orders     *order.Service
	jobs       *jobs.JobManager
	httpServer *server.API

	cfg config.Config
	log logger.Logger
}

func NewDispatch(ctx context.Context, cfg config.Config, log logger.Logger) (*DispatchService, error) {
	s := &DispatchService{cfg: cfg, log: log}

	var err error
	s.postgresDB, err = openPostgres(ctx, cfg.Database, log)
	if err != nil {
		log.Error(ctx, "Failed to setup database", err)
		return nil, err
	}
	if s.redis, err = openRedis(ctx, cfg.Redis); err != nil {
		log.Error(ctx, "Failed to setup redis", err)
		s.close(ctx)
		return nil, err
	}
	if cfg.RabbitMQ.Enabled {
		if s.rabbit, err = rabbit.New(ctx, cfg.RabbitMQ.GetDSN(), log); err != nil {
			log.Error(ctx, "Failed to setup rabbitmq", err)
			s.close(ctx)
			return nil, err
		}
	}

	pool := s.postgresDB.Pool
	orderRepo := repo.NewOrderRepo(pool)
	driverRepo := repo.NewDriverRepo(pool)
	statsRepo := repo.NewStatsRepo(pool)
	txManager := trm.New(pool)

	s.hub = ws.NewHub(log)
	router := wshandler.NewRouter(s.hub, orderRepo, log)

	waker := dispatch.NewWaker()
	sm := order.NewStateMachine(orderRepo, waker)

	var finder dispatch.CandidateFinder = driverRepo
	var geo *georedis.GeoIndex
	if s.redis != nil {
		geo = georedis.NewGeoIndex(s.redis.Client, driverRepo)
		if cfg.Dispatch.CandidateSource == types.SourceRedis {
			finder = geo
		}
	}

	s.sup = dispatch.NewSupervisor(log)
	s.engine = dispatch.NewEngine(engineConfig(cfg.Dispatch), orderRepo, sm, finder, router, waker, s.sup, log)

	driverService := driver.New(driverRepo, repo.NewLocationRepo(pool), orderRepo, sm, router, txManager, log)
	if geo != nil {
		driverService.WithGeoIndex(geo)
	}

	calc := calculator.New()
	s.orders = order.NewService(orderRepo, sm, driverService, calc, router, txManager, log).
		WithDispatcher(s.engine)

	if cfg.Geocoder.Enabled {
		s.orders.WithAddressResolver(locationIQ.New(cfg.Geocoder.APIKey, cfg.Geocoder.BaseURL, cfg.Geocoder.Timeout))
	}

	if s.rabbit != nil {
		orderBroker := broker.NewOrderBroker(s.rabbit, log)
		if err := orderBroker.Setup(ctx); err != nil {
			log.Error(ctx, "Failed to declare rabbitmq topology", err)
			s.close(ctx)
			return nil, err
		}
		router.WithPublisher(orderBroker)
		if cfg.RabbitMQ.DispatchViaBroker {
			s.orders.WithPublisher(orderBroker)
			s.consumer = broker.NewOrderConsumer(s.rabbit, dispatchServiceName, log)
		}
	}

	tokens := auth.NewTokenService(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL)

	s.jobs = jobs.NewJobManager(log).
		Add(cfg.Jobs.PingSpec, jobs.NewPingJob(router, log)).
		Add(cfg.Jobs.ReconcileSpec, jobs.NewReconcileJob(s.engine, log))

	s.httpServer = server.New(cfg, server.Deps{
		Orders:     s.orders,
		Drivers:    driverService,
		Admin:      admin.NewAdminService(statsRepo, s.hub, s.sup, log),
		Tokens:     tokens,
		Validator:  tokens,
		Calculator: calc,
		Finder:     finder,
		Hub:        s.hub,
		Greeter:    router,
		DB:         statsRepo,
	}, dispatchServiceName, log)

	return s, nil
}

func engineConfig(c config.DispatchConfig) dispatch.Config {
	return dispatch.Config{
		BaseRadiusKm:      c.BaseRadiusKm,
		GrowthFactor:      c.GrowthFactor,
		MaxRadiusKm:       c.MaxRadiusKm,
		OfferTimeout:      c.OfferTimeout,
		MaxSearchDuration: c.MaxSearchDuration,
		RoundDelay:        c.RoundDelay,
		CandidateLimit:    c.CandidateLimit,
		LocationFreshness: c.LocationFreshness,
		StoreRetryLimit:   c.StoreRetryLimit,
	}
}

func (s *DispatchService) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	errCh := make(chan error, 2)

	// searches lost by a previous instance are picked up before new traffic arrives
	report, err := s.engine.Recover(wrap.WithAction(ctx, types.ActionRecoverSearches))
	if err != nil {
		s.log.Warn(ctx, "initial reconciliation failed", "error", err.Error())
	} else {
		s.log.Info(ctx, "initial reconciliation done", "restarted", report.Restarted, "cancelled", report.Cancelled)
	}

	if err := s.jobs.StartAll(ctx); err != nil {
		cancel()
		s.close(ctx)
		return err
	}

	if s.consumer != nil {
		go func() {
			err := s.consumer.ConsumeOrderRequests(ctx, func(ctx context.Context, req broker.OrderRequestMessage) error {
				_, err := s.orders.Dispatch(ctx, req.OrderID)
				return err
			})
			if err != nil {
				errCh <- err
			}
		}()
	}

	s.httpServer.Run(ctx, errCh)
	defer func() {
		cancel()
		s.close(context.Background())
		s.log.Info(context.Background(), "dispatch service closed")
	}()

	// Waiting signal
	shutdownCh := make(chan os.Signal, 1)
	signal.Notify(shutdownCh, syscall.SIGINT, syscall.SIGTERM)

	s.log.Info(ctx, "dispatch service has been started")

	select {
	case errRun := <-errCh:
		return errRun
	case sig := <-shutdownCh:
		s.log.Info(ctx, "shuting down application", "signal", sig.String())
		return nil
	}
}

// close stops intake first, then the running searches, then the connections they use
func (s *DispatchService) close(ctx context.Context) {
	ctx = wrap.WithAction(ctx, "shutdown")
	timeout := s.cfg.HTTP.ShutdownTimeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}

	if s.httpServer != nil {
		if err := s.httpServer.Stop(ctx); err != nil {
			s.log.Warn(ctx, "Failed to gracefully close http server", "error", err.Error())
		}
	}

	stopCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if s.jobs != nil {
		s.jobs.StopAll(stopCtx)
	}
	if s.sup != nil {
		if err := s.sup.Shutdown(stopCtx); err != nil && !errors.Is(err, context.Canceled) {
			s.log.Warn(ctx, "driver searches did not stop in time", "error", err.Error())
		}
	}
	if s.hub != nil {
		s.hub.Close()
	}
	if s.rabbit != nil {
		if err := s.rabbit.Close(stopCtx); err != nil {
			s.log.Warn(ctx, "Failed to close rabbitmq", "error", err.Error())
		}
	}
	if s.redis != nil {
		if err := s.redis.Close(); err != nil {
			s.log.Warn(ctx, "Failed to close redis", "error", err.Error())
		}
	}
	if s.postgresDB != nil && s.postgresDB.Pool != nil {
		s.postgresDB.Close()
	}
}
