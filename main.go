package main

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/danielhkuo/quickly-vote/cache"
	"github.com/danielhkuo/quickly-vote/cliparse"
	"github.com/danielhkuo/quickly-vote/db"
	"github.com/danielhkuo/quickly-vote/gateway"
	"github.com/danielhkuo/quickly-vote/ledger"
	"github.com/danielhkuo/quickly-vote/middleware"
	"github.com/danielhkuo/quickly-vote/payment"
	"github.com/danielhkuo/quickly-vote/ratelimit"
	"github.com/danielhkuo/quickly-vote/router"
	"github.com/danielhkuo/quickly-vote/store"
)

// creditSink is a credit dispatcher that must be drained on shutdown.
type creditSink interface {
	payment.CreditDispatcher
	Close(ctx context.Context) error
}

func main() {
	// Parse configuration
	cfg, err := cliparse.ParseFlags(os.Args[1:])
	if err != nil {
		slog.Error("Error parsing flags", "error", err)
		os.Exit(1)
	}

	setupLogging(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Connect to the database
	dbConn, err := db.Open(ctx, cfg.DatabaseType, cfg.DatabaseURL)
	if err != nil {
		slog.Error("database connection failed", "error", err)
		os.Exit(1)
	}
	defer dbConn.Close()

	// Create schema (tables)
	if err := db.CreateSchema(dbConn); err != nil {
		slog.Error("schema creation failed", "error", err)
		os.Exit(1)
	}
	slog.Info("Database schema ready", "type", cfg.DatabaseType)

	// Rate limiting
	apiLimiter := newLimiter("api", cfg.APILimit)
	defer apiLimiter.Close()
	voteLimiter := newLimiter("vote", cfg.VoteLimit)
	defer voteLimiter.Close()

	var decisions cache.Store
	if cfg.RedisAddr != "" {
		r, err := cache.NewRedis(ctx, cfg.RedisAddr, "quickly-vote:")
		if err != nil {
			slog.Error("redis connection failed", "error", err, "addr", cfg.RedisAddr)
			os.Exit(1)
		}
		decisions = r
		slog.Info("Decision cache ready", "backend", "redis", "addr", cfg.RedisAddr)
	} else {
		decisions = cache.NewMemory(time.Minute)
		slog.Info("Decision cache ready", "backend", "memory")
	}
	defer decisions.Close()

	// Vote crediting
	votes := ledger.New(dbConn)
	var credits creditSink
	consumerDone := make(chan struct{})
	if len(cfg.KafkaBrokers) > 0 {
		credits = ledger.NewKafkaPublisher(cfg.KafkaBrokers)
		consumer := ledger.NewKafkaConsumer(cfg.KafkaBrokers, votes)
		go func() {
			defer close(consumerDone)
			defer consumer.Close()
			if err := consumer.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				slog.Error("vote credit consumer stopped", "error", err)
			}
		}()
		slog.Info("Vote credits via kafka", "brokers", strings.Join(cfg.KafkaBrokers, ","))
	} else {
		credits = ledger.NewQueue(votes, ledger.QueueConfig{Workers: cfg.CreditWorkers})
		close(consumerDone)
		slog.Info("Vote credits via in-process queue", "workers", cfg.CreditWorkers)
	}

	// Payment orchestration
	payments := store.NewPayments(dbConn)
	orchestrator := payment.New(
		gateway.NewClient(cfg.GatewayURL, cfg.GatewayTimeout),
		payments,
		credits,
		payment.Config{
			PricePerVote:   cfg.PricePerVote,
			MinAmount:      cfg.MinAmount,
			GatewayTimeout: cfg.GatewayTimeout,
			StoreTimeout:   cfg.StoreTimeout,
			DevMode:        cfg.DevMode,
		},
	)

	// Create router
	mux := router.NewRouter(dbConn, cfg, router.Deps{
		Processor:   orchestrator,
		Payments:    payments,
		Credits:     credits,
		APILimiter:  apiLimiter,
		VoteLimiter: voteLimiter,
		Decisions:   decisions,
	})

	// Create server
	server := http.Server{
		Handler:           middleware.CORS(middleware.Recover(cfg.DevMode)(mux)),
		Addr:              ":" + strconv.Itoa(cfg.Port),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ln, err := net.Listen("tcp", server.Addr)
	if err != nil {
		slog.Error("listen failed", "error", err, "port", cfg.Port)
		os.Exit(1)
	}

	// Start server
	slog.Info("Listening", "port", cfg.Port, "gateway", cfg.GatewayURL)
	if err := serve(ctx, &server, ln, 30*time.Second); err != nil {
		slog.Error("Server closed", "error", err)
	} else {
		slog.Info("Server closed")
	}

	// Handlers have returned, so every credit they dispatched is queued
	stop()
	drainCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := credits.Close(drainCtx); err != nil {
		slog.Error("vote credits not fully drained", "error", err)
	}
	<-consumerDone
}

// serve runs server on ln until ctx is done, then shuts it down gracefully.
// It returns only after Shutdown has finished waiting for in-flight requests.
func serve(ctx context.Context, server *http.Server, ln net.Listener, grace time.Duration) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	shutdownDone := make(chan struct{})
	go func() {
		defer close(shutdownDone)

		// Wait for Ctrl-C signal, or for Serve to fail
		<-ctx.Done()
		slog.Info("Shutting down")

		shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), grace)
		defer cancelShutdown()
		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("server shutdown failed", "error", err)
		}
	}()

	// Serve returns as soon as Shutdown starts, not when it finishes
	err := server.Serve(ln)
	cancel()
	<-shutdownDone

	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func newLimiter(name string, lc cliparse.LimitConfig) *ratelimit.Limiter {
	return ratelimit.New(ratelimit.Config{
		Name:           name,
		Limit:          lc.Limit,
		Window:         lc.Window,
		BurstLimit:     lc.BurstLimit,
		BurstExtension: lc.BurstExtension,
		SweepInterval:  time.Minute,
	})
}

func setupLogging(cfg cliparse.Config) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.LogLevel)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if cfg.LogFormat == "json" {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}
	slog.SetDefault(slog.New(handler))
}
