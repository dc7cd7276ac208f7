package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"nexamarket/internal/config"
	"nexamarket/internal/db"
	"nexamarket/internal/models"
	"nexamarket/internal/store"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
)

// The sweeper rejects ORDER_CREATED rows the user never confirmed within the
// expiry window. This is the one transition that bypasses the verification
// path; it runs out of band so stale orders cannot clog the admin queue.
func main() {
	_ = godotenv.Load()

	cfg, err := config.Load("")
	if err != nil {
		log.Fatalf("config load failed: %v", err)
	}

	ctx := context.Background()
	pool, err := db.Connect(ctx, cfg.DB.DSN)
	if err != nil {
		log.Fatalf("db connect failed: %v", err)
	}
	defer pool.Close()

	st := store.New(pool)
	ttl := time.Duration(cfg.Orders.ExpiryMinutes) * time.Minute

	c := cron.New()
	_, err = c.AddFunc(cfg.Sweeper.CronSpec, func() {
		sweepOnce(ctx, st, ttl)
	})
	if err != nil {
		log.Fatalf("cron spec invalid: %v", err)
	}

	log.Printf("sweeper started (spec=%q ttl=%s)", cfg.Sweeper.CronSpec, ttl)
	c.Start()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop
	<-c.Stop().Done()
}

func sweepOnce(ctx context.Context, st *store.Store, ttl time.Duration) {
	cutoff := time.Now().UTC().Add(-ttl)
	ev := models.NewOrderExpiredEvent(fmt.Sprintf("Order expired: no payment confirmation within %s", ttl))
	ids, err := st.ExpireStaleOrders(ctx, cutoff, ev)
	if err != nil {
		log.Printf("sweep failed: %v", err)
		return
	}
	if len(ids) > 0 {
		log.Printf("expired %d orders: %v", len(ids), ids)
	}
}
