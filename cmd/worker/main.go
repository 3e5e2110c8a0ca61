package main

import (
	"context"
	"database/sql"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ignite/crm-engine/internal/config"
	"github.com/ignite/crm-engine/internal/messaging"
	"github.com/ignite/crm-engine/internal/pkg/distlock"
	"github.com/ignite/crm-engine/internal/pkg/httpretry"
	"github.com/ignite/crm-engine/internal/queue"
	"github.com/ignite/crm-engine/internal/repository/postgres"
	"github.com/ignite/crm-engine/internal/service/ingest"
	"github.com/ignite/crm-engine/internal/worker"

	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"
)

func main() {
	log.Println("[worker] CRM engine task worker starting")

	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "config/config.yaml"
	}
	cfg, err := config.LoadFromEnv(configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	db, err := sql.Open("postgres", cfg.Database.URL)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer db.Close()
	db.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	db.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	db.SetConnMaxLifetime(time.Duration(cfg.Database.ConnMaxLifetime) * time.Minute)

	pingCtx, pingCancel := context.WithTimeout(context.Background(), 5*time.Second)
	if err := db.PingContext(pingCtx); err != nil {
		pingCancel()
		log.Fatalf("Failed to ping database: %v", err)
	}
	pingCancel()
	log.Println("[worker] database connected")

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer rdb.Close()
	pingCtx, pingCancel = context.WithTimeout(context.Background(), 3*time.Second)
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		pingCancel()
		log.Fatalf("Redis ping failed (%s): %v", cfg.Redis.Addr, err)
	}
	pingCancel()
	log.Printf("[worker] redis connected: %s", cfg.Redis.Addr)

	tasks := queue.New(rdb, cfg.Redis.QueueKey)

	customers := postgres.NewCustomerRepo(db)
	campaigns := postgres.NewCampaignRepo(db)
	logs := postgres.NewCommLogRepo(db)

	ingestSvc := ingest.NewService(customers, tasks)

	aggregator := worker.NewAggregator(logs, campaigns, cfg.Aggregator.BatchSize, cfg.Aggregator.FlushInterval())

	retryClient := httpretry.NewRetryClient(&http.Client{Timeout: 10 * time.Second}, 3)
	vendor := worker.NewVendorSimulator(cfg.Vendor.CallbackURL, cfg.Vendor.SuccessRate, cfg.Vendor.MaxDelay(), retryClient)

	lockFor := func(key string) distlock.DistLock {
		return distlock.NewLock(rdb, db, key, 5*time.Minute)
	}
	dispatcher := worker.NewDispatcher(campaigns, customers, logs, vendor, messaging.NewRenderer(), aggregator, lockFor)
	dispatcher.SetPageSize(cfg.Worker.PageSize)

	runner := worker.NewRunner(tasks, ingestSvc, dispatcher, aggregator, cfg.Worker.NumWorkers)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	aggregator.Start(ctx)
	if err := runner.Start(ctx); err != nil {
		log.Fatalf("Failed to start runner: %v", err)
	}
	log.Printf("[worker] running (%d workers, queue=%s)", cfg.Worker.NumWorkers, cfg.Redis.QueueKey)

	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	<-done

	log.Println("[worker] shutting down...")
	cancel()
	runner.Stop()
	vendor.Wait()
	aggregator.Stop()
	log.Println("[worker] stopped")
}
