package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"rollcall/internal/attendance"
	"rollcall/internal/config"
	"rollcall/internal/queue"
	"rollcall/internal/store"
)

// summaryTTL keeps per-day summaries around for two months of reporting.
const summaryTTL = 60 * 24 * time.Hour

// Worker consumes committed attendance record ids and maintains the
// per-day summary hashes dashboards read from Redis. Each hash field is
// keyed by (kind, person), so re-marking a person the same day
// overwrites their entry instead of double counting — the same
// replacement semantics the records themselves have.
func main() {
	cfg := config.Load()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

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
		q = queue.NewRedisQueue(redisClient.Client, "rollcall:marks")
	}

	repo := attendance.NewRepository(db.Client)

	messages, err := q.Consume(ctx)
	if err != nil {
		log.Fatalf("queue consume init failed: %v", err)
	}

	log.Println("worker started, waiting for messages...")
	for msg := range messages {
		if msg.Type != "mark" {
			continue
		}

		rec, err := repo.GetRecord(ctx, msg.RecordID)
		if err != nil {
			log.Printf("fetch record %s failed: %v", msg.RecordID, err)
			continue
		}

		key := "rollcall:summary:" + string(rec.Day)
		field := fmt.Sprintf("%s:%s", rec.Kind, rec.PersonID)
		value := string(rec.Status)
		if rec.ContextID != "" {
			value += "@" + rec.ContextID
		}
		if err := redisClient.Client.HSet(ctx, key, field, value).Err(); err != nil {
			log.Printf("summary update for %s failed: %v", msg.RecordID, err)
			continue
		}
		redisClient.Client.Expire(ctx, key, summaryTTL)

		log.Printf("record %s summarized into %s", rec.ID, key)
	}

	log.Println("worker stopped")
}
