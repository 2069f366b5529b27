// seed registers a handful of pending subscribers in the configured store
// and prints their confirmation links.
// Run: STORE_DRIVER=sqlite go run ./cmd/seed
package main

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/ErlanBelekov/newsletter/config"
	"github.com/ErlanBelekov/newsletter/internal/domain"
	"github.com/ErlanBelekov/newsletter/internal/email"
	"github.com/ErlanBelekov/newsletter/internal/infrastructure"
)

type subscriberSpec struct {
	email string
	name  string
}

var subscribers = []subscriberSpec{
	{"ursula@seed.local", "Ursula K. Le Guin"},
	{"octavia@seed.local", "Octavia E. Butler"},
	{"iain@seed.local", "Iain M. Banks"},
	{"ted@seed.local", "Ted Chiang"},
	{"nk@seed.local", "N. K. Jemisin"},
}

func main() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	store, err := infrastructure.OpenStore(ctx, infrastructure.StoreOptions{
		Driver:         cfg.StoreDriver,
		DatabaseURL:    cfg.DatabaseURL,
		SQLitePath:     cfg.SQLitePath,
		AcquireTimeout: cfg.DBAcquireTimeout,
		OutboxGrace:    cfg.OutboxGrace,
		Migrate:        true,
	})
	if err != nil {
		log.Fatalf("db connect: %v", err)
	}
	defer store.Close()

	links := make([]string, 0, len(subscribers))
	for _, spec := range subscribers {
		ns, err := domain.ParseNewSubscriber(spec.email, spec.name)
		if err != nil {
			log.Fatalf("seed data %s: %v", spec.email, err)
		}
		pending, err := store.Subscriptions.CreatePending(ctx, ns)
		if err != nil {
			log.Fatalf("insert subscriber %s: %v", spec.email, err)
		}
		links = append(links, email.ConfirmationLink(cfg.ConfirmationBaseURL, pending.Token))
	}

	fmt.Println("Seed complete")
	fmt.Println()
	fmt.Printf("  Store:       %s\n", cfg.StoreDriver)
	fmt.Printf("  Subscribers: %d pending\n", len(subscribers))
	fmt.Println()
	fmt.Println("  Confirmation links:")
	for i, link := range links {
		fmt.Printf("    %-20s %s\n", subscribers[i].email, link)
	}
	fmt.Println()
	fmt.Println("How to test:")
	fmt.Println()
	fmt.Println("  Step 1 — confirm one of them:")
	fmt.Println()
	fmt.Printf("    curl -i '%s'\n", links[0])
	fmt.Println()
	fmt.Println("  Step 2 — the relay picks up the outbox rows once the grace period passes:")
	fmt.Println()
	fmt.Printf("    # OUTBOX_GRACE=%s; watch the relay log for \"confirmation email delivered\"\n", cfg.OutboxGrace)
}
