package microservices

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/Temutjin2k/taxi-dispatch/config"
	"github.com/Temutjin2k/taxi-dispatch/internal/adapter/http/server"
	wshandler "github.com/Temutjin2k/taxi-dispatch/internal/adapter/http/ws"
	"github.com/Temutjin2k/taxi-dispatch/internal/adapter/kafka"
	repo "github.com/Temutjin2k/taxi-dispatch/internal/adapter/postgres"
	georedis "github.com/Temutjin2k/taxi-dispatch/internal/adapter/redis"
	"github.com/Temutjin2k/taxi-dispatch/internal/service/driver"
	"github.com/Temutjin2k/taxi-dispatch/internal/service/order"
	"github.com/Temutjin2k/taxi-dispatch/pkg/logger"
	wrap "github.com/Temutjin2k/taxi-dispatch/pkg/logger/wrapper"
	"github.com/Temutjin2k/taxi-dispatch/pkg/postgres"
	"github.com/Temutjin2k/taxi-dispatch/pkg/redis"
	"github.com/Temutjin2k/taxi-dispatch/pkg/trm"
	ws "github.com/Temutjin2k/taxi-dispatch/pkg/wsHub"
)

const ingestServiceName = "location-ingest"

// IngestService moves driver positions from the Kafka stream into the store and the geo index
type IngestService struct {
	postgresDB *postgres.PostgreDB
	redis      *redis.Client
	consumer   *kafka.LocationConsumer
	httpServer *server.API

	cfg config.Config
	log logger.Logger
}

func NewIngest(ctx context.Context, cfg config.Config, log logger.Logger) (*IngestService, error) {
	s := &IngestService{cfg: cfg, log: log}

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

	pool := s.postgresDB.Pool
	orderRepo := repo.NewOrderRepo(pool)
	driverRepo := repo.NewDriverRepo(pool)

	// this mode holds no live channels, so order events routed here reach nobody
	router := wshandler.NewRouter(ws.NewHub(log), orderRepo, log)
	sm := order.NewStateMachine(orderRepo, nil)

	driverService := driver.New(driverRepo, repo.NewLocationRepo(pool), orderRepo, sm, router, trm.New(pool), log)
	if s.redis != nil {
		driverService.WithGeoIndex(georedis.NewGeoIndex(s.redis.Client, driverRepo))
	}

	s.consumer = kafka.NewLocationConsumer(kafka.Config{
		Brokers: cfg.Kafka.Brokers,
		Topic:   cfg.Kafka.Topic,
		GroupID: cfg.Kafka.GroupID,
	}, driverService, driver.SourceKafka, log)

	s.httpServer = server.NewProbe(cfg, s.postgresDB, ingestServiceName, log)

	return s, nil
}

func (s *IngestService) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	errCh := make(chan error, 2)

	go func() {
		if err := s.consumer.Run(ctx); err != nil {
			errCh <- err
		}
	}()

	s.httpServer.Run(ctx, errCh)
	defer func() {
		cancel()
		s.close(context.Background())
		s.log.Info(context.Background(), "location ingest closed")
	}()

	shutdownCh := make(chan os.Signal, 1)
	signal.Notify(shutdownCh, syscall.SIGINT, syscall.SIGTERM)

	s.log.Info(ctx, "location ingest has been started", "topic", s.cfg.Kafka.Topic)

	select {
	case errRun := <-errCh:
		return errRun
	case sig := <-shutdownCh:
		s.log.Info(ctx, "shuting down application", "signal", sig.String())
		return nil
	}
}

func (s *IngestService) close(ctx context.Context) {
	ctx = wrap.WithAction(ctx, "shutdown")

	if s.httpServer != nil {
		if err := s.httpServer.Stop(ctx); err != nil {
			s.log.Warn(ctx, "Failed to gracefully close http server", "error", err.Error())
		}
	}
	if s.consumer != nil {
		if err := s.consumer.Close(); err != nil {
			s.log.Warn(ctx, "Failed to close kafka reader", "error", err.Error())
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
