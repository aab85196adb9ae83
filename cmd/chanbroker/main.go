// Path: cmd/chanbroker/main.go
package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"golang.org/x/sync/errgroup"

	"chanbroker/internal/broker"
	"chanbroker/internal/config"
	"chanbroker/internal/delivery/repl"
	"chanbroker/internal/delivery/rest"
	"chanbroker/internal/logger"
	"chanbroker/internal/service"
	"chanbroker/internal/storage"
)

func main() {
	// 1. Load Configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	level, err := logger.ParseLevel(cfg.Log.Level)
	if err != nil {
		log.Fatalf("Invalid log level: %v", err)
	}
	policy, err := broker.ParseDeliveryPolicy(cfg.Broker.DeliveryPolicy)
	if err != nil {
		log.Fatalf("Invalid delivery policy: %v", err)
	}

	// Logs go to stderr so they do not interleave with the command output.
	appLog := logger.New(
		logger.WithLevel(level),
		logger.WithFormat(logger.Format(cfg.Log.Format)),
		logger.WithOutput(os.Stderr),
		logger.WithAttr(slog.String("service", "chanbroker")),
	)

	// 2. Setup Context for graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 3. Initialize the channel catalog
	var catalog service.ChannelCatalog
	if cfg.Database.URI != "" {
		appLog.Info("connecting to MongoDB")
		mongoClient, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.Database.URI))
		if err != nil {
			log.Fatalf("Failed to connect to MongoDB: %v", err)
		}
		defer mongoClient.Disconnect(context.Background())
		db := mongoClient.Database(cfg.Database.Name)
		catalog = storage.NewMongoChannelCatalog(db, cfg.Database.Collection)
	} else {
		appLog.Info("no database configured, channel catalog kept in memory")
		catalog = storage.NewMemoryChannelCatalog()
	}

	// 4. Initialize the broker and the core service
	b := broker.New(
		broker.WithQueueCapacity(cfg.Broker.QueueCapacity),
		broker.WithDeliveryPolicy(policy),
		broker.WithDeliveryTimeout(cfg.Broker.DeliveryTimeout),
		broker.WithLogger(appLog),
	)
	coreService := service.NewService(cfg.Broker.DefaultChannels, b, catalog, appLog)
	if err := coreService.Start(ctx); err != nil {
		log.Fatalf("Core service error: %v", err)
	}

	g, gctx := errgroup.WithContext(ctx)

	// 5. Command interpreter; leaving it stops the process
	g.Go(func() error {
		err := repl.New(coreService, os.Stdin, os.Stdout, appLog).Run(gctx)
		stop()
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})

	// 6. Optional admin API
	if cfg.Server.Port != "" {
		apiServer := rest.NewServer(cfg.Server, coreService, appLog)
		g.Go(func() error {
			appLog.Info("admin API starting", slog.String("port", cfg.Server.Port))
			if err := apiServer.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return apiServer.Stop(shutdownCtx)
		})
	}

	if err := g.Wait(); err != nil {
		appLog.Error("shutdown with error", logger.Error(err))
		os.Exit(1)
	}
	appLog.Info("shut down successfully")
}
