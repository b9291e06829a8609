package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"billing-review-service/internal/api"
	"billing-review-service/internal/batch"
	"billing-review-service/internal/config"
	"billing-review-service/internal/objstore"
	"billing-review-service/internal/queue"
	"billing-review-service/internal/ratelimit"
	"billing-review-service/internal/scan"
	"billing-review-service/internal/store"
)

func main() {
	cfg := config.Load()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		ch := make(chan os.Signal, 1)
		signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
		<-ch
		cancel()
	}()

	st, err := store.New(ctx, cfg.PostgresDSN)
	if err != nil {
		log.Fatalf("connect postgres: %v", err)
	}
	defer st.Close()

	if err := st.RunMigrations(ctx); err != nil {
		log.Fatalf("migrations: %v", err)
	}

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	reviewQueue := queue.NewReviewQueue(redisClient, cfg.LeaseTTL)
	limiter := ratelimit.NewFixedWindow(redisClient, cfg.RateLimitPerWindow, cfg.RateLimitWindow)
	orchestrator := batch.New(st, st, reviewQueue)

	uploader, err := objstore.New(ctx, cfg)
	if err != nil {
		log.Fatalf("init object store: %v", err)
	}
	scanner := scan.New(uploader, cfg.ThumbnailWidth)

	server := api.New(cfg, st, st, orchestrator, limiter, scanner)
	httpServer := &http.Server{
		Addr:    ":" + cfg.HTTPPort,
		Handler: server.Router(),
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Printf("api listening on :%s", cfg.HTTPPort)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancelShutdown()
		return httpServer.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil && err != context.Canceled {
		log.Fatalf("api: %v", err)
	}
}
