package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"mealcard/internal/config"
	"mealcard/internal/queue"
	"mealcard/internal/store"
	"mealcard/internal/verify"
)

// Worker drains the attempt queue and appends audit rows, so the
// verification path never waits on audit persistence.
func main() {
	cfg := config.Load()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Println("shutdown signal received")
		cancel()
	}()

	db, err := store.NewDB(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("db connect failed: %v", err)
	}
	defer db.Close()

	redisClient := store.NewRedis(cfg.RedisAddr)

	var q queue.Queue
	if cfg.QueueBackend == "memory" {
		q = queue.NewInMemory(64)
	} else {
		q = queue.NewRedisQueue(redisClient.Client, "mealcard:attempts")
	}

	repo := verify.NewRepository(db.Client)

	messages, err := q.Consume(ctx)
	if err != nil {
		log.Fatalf("queue consume init failed: %v", err)
	}

	log.Println("audit worker started, waiting for attempts...")
	for msg := range messages {
		if msg.Type != queue.MsgAttempt {
			continue
		}

		attempt, err := queue.DecodeAttempt(msg.Body)
		if err != nil {
			log.Printf("bad attempt message: %v", err)
			continue
		}

		if err := repo.InsertAttempt(ctx, attempt); err != nil {
			log.Printf("audit insert failed for %s/%s: %v", attempt.Token, attempt.Meal, err)
			continue
		}
		log.Printf("audited %s %s: %s", attempt.Token, attempt.Meal, attempt.Reason)
	}

	log.Println("audit worker stopped")
}
