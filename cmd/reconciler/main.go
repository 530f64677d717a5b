package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"roadcall.app/dispatch/common/id"
	"roadcall.app/dispatch/common/logger"
	"roadcall.app/dispatch/common/otel"
	"roadcall.app/dispatch/core/config"
	"roadcall.app/dispatch/core/db"
	"roadcall.app/dispatch/internal/gateway"
	"roadcall.app/dispatch/internal/queue"
	"roadcall.app/dispatch/internal/service"
	"roadcall.app/dispatch/internal/store"
)

func main() {
	fmt.Printf("%s\n", banner)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg, err := config.Load(config.ServiceTypeReconciler)
	if err != nil {
		slog.ErrorContext(ctx, "failed to load config", "error", err)
		os.Exit(1)
	}

	telemetry, err := otel.Setup(ctx, cfg.OTel)
	if err != nil {
		os.Stderr.WriteString("failed to initialize otel: " + err.Error() + "\n")
		os.Exit(1)
	}

	logger.Setup(cfg)

	slog.InfoContext(ctx, "dispatch reconciler starting",
		"env", cfg.Env,
		"interval", cfg.Reconcile.Interval,
		"window", cfg.Reconcile.Window,
		"consumer_group", cfg.Reconcile.RedisGroup,
		"consumer_name", cfg.Reconcile.RedisConsumer)

	// Different node ID than the server so snowflake ids never collide.
	if err := id.Init(2); err != nil {
		slog.ErrorContext(ctx, "failed to initialize id generator", "error", err)
		os.Exit(1)
	}

	database, err := db.New(ctx, cfg.DB)
	if err != nil {
		slog.ErrorContext(ctx, "failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer database.Close()
	slog.InfoContext(ctx, "database connected")

	redisOpts, err := redis.ParseURL(cfg.Reconcile.RedisURL)
	if err != nil {
		slog.ErrorContext(ctx, "failed to parse redis url", "error", err)
		os.Exit(1)
	}

	redisClient := redis.NewClient(redisOpts)
	if err := redisClient.Ping(ctx).Err(); err != nil {
		slog.ErrorContext(ctx, "failed to connect to redis", "error", err)
		os.Exit(1)
	}
	defer redisClient.Close()
	slog.InfoContext(ctx, "redis connected", "stream", cfg.Reconcile.RedisStream)

	consumer, err := queue.NewRedisConsumer(redisClient, queue.ConsumerConfig{
		Stream:    cfg.Reconcile.RedisStream,
		Group:     cfg.Reconcile.RedisGroup,
		Consumer:  cfg.Reconcile.RedisConsumer,
		BatchSize: 1,
		Block:     5 * time.Second,
	})
	if err != nil {
		slog.ErrorContext(ctx, "failed to create consumer", "error", err)
		os.Exit(1)
	}

	producer := queue.NewRedisProducer(redisClient, cfg.Reconcile.RedisStream, slog.Default())

	stores := store.NewStores(database.Pool())
	gatewayClient := gateway.NewTwilioClient(cfg.Gateway)
	services := service.NewServices(stores, gatewayClient, producer, &cfg, slog.Default())
	reconciler := services.Reconciler()

	done := make(chan struct{})
	go func() {
		defer close(done)
		run(ctx, cfg.Reconcile, consumer, reconciler)
	}()

	slog.InfoContext(ctx, "reconciler running")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.InfoContext(ctx, "shutting down reconciler...")
	cancel()

	select {
	case <-done:
	case <-time.After(30 * time.Second):
		slog.WarnContext(context.Background(), "shutdown timeout exceeded")
	}

	if telemetry != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		if err := telemetry.Shutdown(shutdownCtx); err != nil {
			slog.ErrorContext(shutdownCtx, "otel shutdown error", "error", err)
		}
	}

	slog.InfoContext(context.Background(), "reconciler shutdown complete")
}

// run interleaves triggered passes from the stream with periodic full passes.
// Both go through the same idempotent Reconcile, so overlap is harmless.
func run(ctx context.Context, cfg config.ReconcileConfig, consumer *queue.RedisConsumer, reconciler service.ReconcilerService) {
	ticker := time.NewTicker(cfg.Interval)
	defer ticker.Stop()

	// One pass on startup covers whatever happened while we were down.
	runPass(ctx, reconciler, time.Now().UTC().Add(-cfg.Window), cfg.Limit)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			runPass(ctx, reconciler, time.Now().UTC().Add(-cfg.Window), cfg.Limit)
		default:
		}

		messages, err := consumer.Read(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			slog.ErrorContext(ctx, "failed to read reconcile triggers", "error", err)
			time.Sleep(time.Second)
			continue
		}

		for _, msg := range messages {
			runPass(ctx, reconciler, msg.Task.Since, msg.Task.Limit)
			if err := consumer.Ack(ctx, msg); err != nil {
				slog.ErrorContext(ctx, "failed to ack reconcile trigger", "error", err, "message_id", msg.ID)
			}
		}
	}
}

func runPass(ctx context.Context, reconciler service.ReconcilerService, since time.Time, limit int) {
	if ctx.Err() != nil {
		return
	}
	if limit <= 0 {
		limit = 500
	}

	start := time.Now()
	result, err := reconciler.Reconcile(ctx, since, limit)
	if err != nil {
		slog.ErrorContext(ctx, "reconcile pass failed", "error", err, "since", since)
		return
	}

	slog.InfoContext(ctx, "reconcile pass finished",
		"since", since,
		"examined", result.Examined,
		"assigned", result.Assigned,
		"duplicates", result.Duplicates,
		"duration_ms", time.Since(start).Milliseconds())
}

const banner = `
██████╗ ███████╗ ██████╗ ██████╗ ███╗   ██╗ ██████╗██╗██╗     ███████╗██████╗
██╔══██╗██╔════╝██╔════╝██╔═══██╗████╗  ██║██╔════╝██║██║     ██╔════╝██╔══██╗
██████╔╝█████╗  ██║     ██║   ██║██╔██╗ ██║██║     ██║██║     █████╗  ██████╔╝
██╔══██╗██╔══╝  ██║     ██║   ██║██║╚██╗██║██║     ██║██║     ██╔══╝  ██╔══██╗
██║  ██║███████╗╚██████╗╚██████╔╝██║ ╚████║╚██████╗██║███████╗███████╗██║  ██║
╚═╝  ╚═╝╚══════╝ ╚═════╝ ╚═════╝ ╚═╝  ╚═╝╚═╝╚══════╝╚═╝╚══════╝╚═╝  ╚═╝
`
