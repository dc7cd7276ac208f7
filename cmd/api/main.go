package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"nexamarket/internal/chain"
	"nexamarket/internal/config"
	"nexamarket/internal/db"
	internalhttp "nexamarket/internal/http"
	"nexamarket/internal/notify"
	"nexamarket/internal/pricing"
	"nexamarket/internal/services"
	"nexamarket/internal/store"
	"nexamarket/internal/upi"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
)

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

	node, err := chain.NewMultiNodeClient(cfg.Chain.RPCEndpoints, cfg.Chain.FailoverThreshold)
	if err != nil {
		log.Fatalf("node client init failed: %v", err)
	}
	payout := chain.NewService(node, cfg.Chain.Network)
	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	if err := payout.Connect(connectCtx); err != nil {
		// Payouts will fail until the node answers; the API itself can
		// still take orders and verifications.
		log.Printf("payout node not reachable yet: %v", err)
	}
	cancel()

	hub := notify.NewHub()
	sinks := []notify.Notifier{notify.LogNotifier{}}
	if cfg.Redis.Addr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr, Password: cfg.Redis.Password})
		sinks = append(sinks, notify.NewRedisNotifier(rdb))
	}
	dispatcher := &notify.Dispatcher{Sinks: sinks, Hub: hub}

	fallbackRate := decimal.Zero
	if cfg.Pricing.FixedINRPerNexa != "" {
		fallbackRate, err = decimal.NewFromString(cfg.Pricing.FixedINRPerNexa)
		if err != nil {
			log.Fatalf("invalid fixed_inr_per_nexa: %v", err)
		}
	}
	minAmount := decimal.Zero
	if cfg.Orders.MinAmountINR != "" {
		minAmount, err = decimal.NewFromString(cfg.Orders.MinAmountINR)
		if err != nil {
			log.Fatalf("invalid min_amount_inr: %v", err)
		}
	}

	orderSvc := &services.OrderService{
		Store:        st,
		Upi:          upi.NewStoreSelector(st),
		Pricing:      pricing.StoreProvider{Store: st, Fallback: fallbackRate},
		Payout:       payout,
		Notifier:     dispatcher,
		MinAmountINR: minAmount,
	}

	h := internalhttp.NewHandler(orderSvc, st, hub)
	srv := internalhttp.NewServer(h)

	httpServer := &http.Server{
		Addr:    cfg.Server.Addr,
		Handler: srv.Router,
	}

	go func() {
		log.Printf("api listening on %s (network=%s)", cfg.Server.Addr, cfg.Chain.Network)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	ctxShutdown, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelShutdown()
	_ = httpServer.Shutdown(ctxShutdown)
}
