package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aurumlabs/tokenchat/internal/chat"
	"github.com/aurumlabs/tokenchat/internal/config"
	"github.com/aurumlabs/tokenchat/internal/db"
	"github.com/aurumlabs/tokenchat/internal/httpapi"
	"github.com/aurumlabs/tokenchat/internal/store/rabbitmq"
	"github.com/aurumlabs/tokenchat/internal/store/redisstore"
)

func main() {
	cfg := config.Load()

	gdb := db.Connect(cfg.DBDSN)
	if err := db.Migrate(gdb); err != nil {
		log.Fatalf("migrate: %v", err)
	}

	rds := redisstore.New(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, cfg.BalanceCacheTTL)

	// Summaries are best-effort; the server still runs without the broker.
	var summaries chat.SummaryPublisher
	pub, err := rabbitmq.NewPublisher(cfg.RabbitURL, cfg.RabbitQueue)
	if err != nil {
		log.Printf("[Server] rabbit unavailable, summaries disabled: %v", err)
	} else {
		defer pub.Close()
		summaries = pub
	}

	router, err := httpapi.NewRouter(gdb, cfg, rds, summaries)
	if err != nil {
		log.Fatalf("router: %v", err)
	}

	addr := os.Getenv("LISTEN_ADDR")
	if addr == "" {
		addr = ":8080"
	}

	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		log.Printf("[Server] listening on %s", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("listen: %v", err)
		}
	}()

	<-ctx.Done()
	log.Printf("[Server] shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("[Server] shutdown: %v", err)
	}
}
