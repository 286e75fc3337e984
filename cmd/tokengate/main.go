package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-redisstream/pkg/redisstream"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	tokengate "github.com/layer-3/tokengate"
	"github.com/layer-3/tokengate/adapters/events"
	"github.com/layer-3/tokengate/adapters/oracle"
	"github.com/layer-3/tokengate/adapters/store"
	"github.com/layer-3/tokengate/adapters/tokenizer"
	"github.com/layer-3/tokengate/ports"
	"github.com/layer-3/tokengate/ratelimit"
	"github.com/layer-3/tokengate/service"
	transport "github.com/layer-3/tokengate/transport/http"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	if err := run(logger); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("gateway exited", "error", err)
		os.Exit(1)
	}
}

func run(logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := tokengate.LoadConfig()
	if err != nil {
		return err
	}

	chainOracle, err := oracle.NewEthereumOracle(ctx, cfg.ChainRPCURL)
	if err != nil {
		return err
	}

	var (
		sessionStore ports.Store
		eventPub     ports.EventPublisher
	)
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return err
		}
		redisClient := redis.NewClient(opts)
		if err := redisClient.Ping(ctx).Err(); err != nil {
			return err
		}
		defer redisClient.Close()

		publisher, err := redisstream.NewPublisher(
			redisstream.PublisherConfig{Client: redisClient},
			watermill.NewSlogLogger(logger),
		)
		if err != nil {
			return err
		}
		defer publisher.Close()

		sessionStore = store.NewRedisStore(redisClient)
		eventPub = events.NewWatermillPublisher(publisher)
		logger.Info("using redis store", "sweep", "native TTL")
	} else {
		sessionStore = store.NewMemoryStore()
		logger.Info("using in-memory store", "sweep_interval", cfg.SweepInterval)
	}

	authService, err := service.NewAuthService(service.Params{
		Oracle:      chainOracle,
		Tokenizer:   tokenizer.NewJWTTokenizer([]byte(cfg.SigningSecret)),
		Store:       sessionStore,
		Events:      eventPub,
		Logger:      logger,
		Requirement: cfg.Requirement(),
		AccessTTL:   cfg.AccessTTL,
		RefreshTTL:  cfg.RefreshTTL,
	})
	if err != nil {
		return err
	}

	authLimiter := ratelimit.NewLimiter(ratelimit.Config{Max: cfg.AuthRateMax, Window: cfg.AuthRateWindow})
	apiLimiter := ratelimit.NewLimiter(ratelimit.Config{Max: cfg.APIRateMax, Window: cfg.APIRateWindow})

	handlers := transport.NewAuthHandlers(authService, authLimiter)
	router := transport.SetupRouter(authService, handlers, apiLimiter)

	server := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: router,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("gateway listening", "addr", cfg.ListenAddr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		return authService.RunSweeper(gctx, cfg.SweepInterval)
	})

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	return g.Wait()
}
