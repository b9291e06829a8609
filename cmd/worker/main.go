package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"

	"billing-review-service/internal/config"
	"billing-review-service/internal/objstore"
	"billing-review-service/internal/queue"
	"billing-review-service/internal/store"
	"billing-review-service/internal/telemetry"
	workerproc "billing-review-service/internal/worker"
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

	processor := workerproc.NewProcessor(cfg, reviewQueue, st, st)

	uploader, err := objstore.New(ctx, cfg)
	if err != nil {
		log.Printf("worker: object store unavailable, reports disabled: %v", err)
	} else {
		processor.SetReportWriter(uploader)
	}

	go func() {
		if err := http.ListenAndServe(cfg.MetricsAddr, telemetry.Handler()); err != nil {
			log.Printf("metrics server stopped: %v", err)
		}
	}()

	log.Printf("worker started with lease=%s review_delay=%s", cfg.LeaseTTL, cfg.ReviewDelay)
	if err := processor.Run(ctx); err != nil {
		log.Printf("worker stopped: %v", err)
	}
}
