package appServer

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ds124wfegd/smartblood/config"
	"github.com/ds124wfegd/smartblood/internal/database"
	"github.com/ds124wfegd/smartblood/internal/metrics"
	"github.com/ds124wfegd/smartblood/internal/queue"
	"github.com/ds124wfegd/smartblood/internal/rabbitMQ"
	"github.com/ds124wfegd/smartblood/internal/realtime"
	"github.com/ds124wfegd/smartblood/internal/service"
	"github.com/ds124wfegd/smartblood/internal/transport"
	"github.com/ds124wfegd/smartblood/internal/worker"
	"github.com/ds124wfegd/smartblood/pkg/kafka"
	"github.com/ds124wfegd/smartblood/pkg/postgres"
	"github.com/ds124wfegd/smartblood/pkg/redis"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

type Server struct {
	httpServer *http.Server
}

func NewHTTPServer(cfg *config.Config, handler http.Handler) *Server {
	return &Server{httpServer: &http.Server{
		Addr:              cfg.Server.Address(),
		Handler:           handler,
		MaxHeaderBytes:    1 << 20,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      cfg.Server.Timeout + 5*time.Second,
		IdleTimeout:       cfg.Server.IdleTimeout,
		ReadHeaderTimeout: 3 * time.Second,
		TLSConfig:         &tls.Config{MinVersion: tls.VersionTLS12},
		ErrorLog:          log.New(os.Stderr, "SERVER ERROR: ", log.LstdFlags),
	}}
}

func (s *Server) Run() error {
	return s.httpServer.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// store is the storage backend together with its realtime collaborator.
type store struct {
	repos   *database.Repositories
	sync    realtime.Sync
	closers []io.Closer
}

func (s *store) Close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i].Close(); err != nil {
			logrus.WithError(err).Warn("Error while closing store resource")
		}
	}
}

func openStore(ctx context.Context, cfg *config.Config) (*store, error) {
	switch cfg.Store.Driver {
	case config.DriverRedis:
		client, err := redis.NewRedisClient(ctx, &cfg.Redis)
		if err != nil {
			return nil, err
		}
		feed := realtime.NewRedisSync(client)
		return &store{
			repos:   database.NewRedisRepositories(client),
			sync:    feed,
			closers: []io.Closer{client, feed},
		}, nil

	case config.DriverPostgres:
		db, err := postgres.NewPostgresDB(&cfg.Database)
		if err != nil {
			return nil, err
		}
		if err := postgres.RunMigrations(db); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to run migrations: %w", err)
		}
		feed := realtime.NewPostgresSync(db, cfg.Database.DSN())
		return &store{
			repos:   database.NewPostgresRepositories(db),
			sync:    feed,
			closers: []io.Closer{db, feed},
		}, nil

	case config.DriverMemory:
		hub := realtime.NewHub()
		return &store{
			repos:   database.NewMemoryRepositories(),
			sync:    hub,
			closers: []io.Closer{hub},
		}, nil
	}
	return nil, fmt.Errorf("unknown store driver %q", cfg.Store.Driver)
}

func openQueue(cfg *config.Config) (queue.Queue, error) {
	if cfg.Rabbit.URL == "" {
		logrus.Warn("RabbitMQ URL not provided, using in-process fan-out queue")
		return queue.NewMemoryQueue(), nil
	}

	q, err := rabbitMQ.NewRabbitMQ(rabbitMQ.RabbitMQConfig{
		URL:       cfg.Rabbit.URL,
		QueueName: cfg.Rabbit.QueueName,
	})
	if err != nil {
		return nil, err
	}
	logrus.Info("RabbitMQ fan-out queue initialized")
	return q, nil
}

func setupLogging(cfg *config.Config) {
	logrus.SetFormatter(&logrus.JSONFormatter{})
	logrus.SetOutput(os.Stdout)

	level, err := logrus.ParseLevel(cfg.Log.Level)
	if err != nil {
		logrus.Warnf("Unknown log level %q, using info", cfg.Log.Level)
		level = logrus.InfoLevel
	}
	logrus.SetLevel(level)
}

func NewServer(cfg *config.Config) {
	setupLogging(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	st, err := openStore(ctx, cfg)
	if err != nil {
		logrus.Fatalf("Failed to initialize %s store: %v", cfg.Store.Driver, err)
	}
	defer st.Close()
	logrus.WithField("driver", cfg.Store.Driver).Info("Store initialized")

	fanoutQueue, err := openQueue(cfg)
	if err != nil {
		logrus.Fatalf("Failed to initialize fan-out queue: %v", err)
	}
	defer fanoutQueue.Close()

	producer := kafka.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.Topic)
	defer producer.Close()

	repos := database.WithChangeFeed(st.repos, st.sync)

	services := service.NewServices(repos, service.Dependencies{
		Events:  service.NewEventLog(producer),
		Metrics: metrics.New(prometheus.DefaultRegisterer),
		Fraud: service.FraudConfig{
			Window:    cfg.Fraud.Window,
			MaxRecent: cfg.Fraud.MaxRecent,
			MaxUnits:  cfg.Fraud.MaxUnits,
		},
		RadiusKm:        cfg.Matcher.RadiusKm,
		LeaderboardSize: cfg.Matcher.LeaderboardSize,
	})

	if cfg.Server.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := transport.InitRoutes(transport.NewHandlers(services), prometheus.DefaultGatherer, cfg.Server.Timeout)

	g, gctx := errgroup.WithContext(ctx)

	observers := cfg.Fanout.Observers
	if observers <= 0 {
		observers = 1
	}
	for i := 0; i < observers; i++ {
		observer := worker.NewRequestObserver(fmt.Sprintf("observer-%d", i+1), st.sync, fanoutQueue)
		g.Go(func() error { return observer.Start(gctx) })
	}

	retry := queue.NewRetryManager(cfg.Fanout.MaxRetries, cfg.Fanout.RetryDelay)
	consumer := worker.NewFanoutConsumer(fanoutQueue, services.Fanout, retry)
	g.Go(func() error { return consumer.Start(gctx) })

	sweeper := worker.NewSweeper(repos.Requests, fanoutQueue, cfg.Fanout.SweepInterval, cfg.Fanout.SweepBatch)
	g.Go(func() error {
		sweeper.Start(gctx)
		return nil
	})

	srv := NewHTTPServer(cfg, router)
	g.Go(func() error {
		if err := srv.Run(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("error occured while running http server: %w", err)
		}
		return nil
	})

	logrus.WithField("address", cfg.Server.Address()).Print("App Started")

	g.Go(func() error {
		<-gctx.Done()
		logrus.Print("App Shutting Down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logrus.Errorf("error occured on server shutting down: %s", err.Error())
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		logrus.Errorf("App stopped with error: %v", err)
	}
}
