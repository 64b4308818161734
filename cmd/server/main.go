package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/sheikh-saqib/rental-returns-ledger/internal/auth"
	"github.com/sheikh-saqib/rental-returns-ledger/internal/config"
	"github.com/sheikh-saqib/rental-returns-ledger/internal/events/kafka"
	"github.com/sheikh-saqib/rental-returns-ledger/internal/events/logpub"
	"github.com/sheikh-saqib/rental-returns-ledger/internal/httpapi"
	interfaces "github.com/sheikh-saqib/rental-returns-ledger/internal/interfaces"
	"github.com/sheikh-saqib/rental-returns-ledger/internal/ledger"
	"github.com/sheikh-saqib/rental-returns-ledger/internal/returns"
	"github.com/sheikh-saqib/rental-returns-ledger/internal/seed"
	"github.com/sheikh-saqib/rental-returns-ledger/internal/storage/memory"
	mongostore "github.com/sheikh-saqib/rental-returns-ledger/internal/storage/mongo"
	"github.com/sheikh-saqib/rental-returns-ledger/internal/storage/postgres"
)

// store is what every storage backend provides.
type store interface {
	interfaces.RentalStore
	interfaces.CatalogStore
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger, err := newLogger(cfg)
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	// rental fees go out as JSON numbers
	decimal.MarshalJSONWithoutQuotes = true

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		logger.Fatal("store init failed", zap.String("backend", cfg.StoreBackend), zap.Error(err))
	}
	defer closeStore()

	var publisher interfaces.EventPublisher = logpub.NewPublisher(logger)
	if len(cfg.KafkaBrokers) > 0 {
		kp := kafka.NewPublisher(cfg.KafkaBrokers, cfg.KafkaTopicPrefix)
		defer kp.Close()
		publisher = kp
	}

	rentalLedger := ledger.NewLedger(st)
	returnService := returns.NewService(rentalLedger, st, publisher, logger,
		returns.WithReconcileTimeout(cfg.ReconcileTimeout))

	if cfg.SeedDemoData {
		r, err := seed.Load(ctx, st, rentalLedger, time.Now())
		if err != nil {
			logger.Fatal("seed failed", zap.Error(err))
		}
		logger.Info("demo data loaded",
			zap.String("customer_id", r.Customer.ID),
			zap.String("movie_id", r.Movie.ID),
			zap.String("rental_id", r.ID))
	}

	gate := auth.NewGate(cfg.JWTSecret)
	if cfg.IsDev() {
		if tok, err := gate.Issue("dev-user", false, 24*time.Hour); err == nil {
			logger.Info("dev token", zap.String("x-auth-token", tok))
		}
	}

	e := httpapi.NewServer(httpapi.Deps{
		Returns: &httpapi.ReturnsController{Svc: returnService, Log: logger},
		Rentals: &httpapi.RentalsController{Ledger: rentalLedger, Log: logger},
		Gate:    gate,
		Log:     logger,
	})

	go func() {
		logger.Info("starting server",
			zap.String("port", cfg.Port),
			zap.String("backend", cfg.StoreBackend),
			zap.Strings("kafka_brokers", cfg.KafkaBrokers))
		if err := e.Start(":" + cfg.Port); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown", zap.Error(err))
	}
}

func newLogger(cfg config.Config) (*zap.Logger, error) {
	if cfg.IsDev() {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

func openStore(ctx context.Context, cfg config.Config) (store, func(), error) {
	switch cfg.StoreBackend {
	case config.BackendPostgres:
		db, err := postgres.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, err
		}
		return postgres.NewPostgresStore(db), func() { db.Close() }, nil

	case config.BackendMongo:
		client, err := mongostore.Connect(ctx, cfg.MongoURI)
		if err != nil {
			return nil, nil, err
		}
		s := mongostore.NewMongoStore(client.Database(cfg.MongoDatabase))
		if err := s.EnsureIndexes(ctx); err != nil {
			_ = client.Disconnect(context.Background())
			return nil, nil, err
		}
		return s, func() { _ = client.Disconnect(context.Background()) }, nil

	default:
		return memory.NewMemoryStore(), func() {}, nil
	}
}
