package main

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/xtrntr/parimut/internal/auth"
	"github.com/xtrntr/parimut/internal/config"
	"github.com/xtrntr/parimut/internal/db"
)

// Seed the database with demo users, an event, and a few stakes
func main() {
	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	database, err := db.NewDB(ctx, cfg.PostgresDSN)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer database.Close(ctx)

	// Skip if already seeded
	events, err := database.GetActiveEvents(ctx)
	if err != nil {
		log.Fatalf("Failed to check events: %v", err)
	}
	if len(events) > 0 {
		fmt.Printf("Database already has %d active events. No need to seed.\n", len(events))
		os.Exit(0)
	}

	authService := auth.NewAuthService(database, cfg.JWTSecret, cfg.StartingBalance, []string{"admin"})

	admin, err := authService.Register(ctx, "admin", "admin123")
	if err != nil {
		log.Fatalf("Failed to create admin: %v", err)
	}

	punter1, err := authService.Register(ctx, "punter1", "punter123")
	if err != nil {
		log.Fatalf("Failed to create punter1: %v", err)
	}

	punter2, err := authService.Register(ctx, "punter2", "punter123")
	if err != nil {
		log.Fatalf("Failed to create punter2: %v", err)
	}

	event, err := database.CreateEvent(ctx,
		"Grand final: Reds vs Blues",
		"Demo market seeded for local development",
		[]string{"Reds", "Blues"},
		nil, // default seed liquidity per option
		0.05)
	if err != nil {
		log.Fatalf("Failed to create event: %v", err)
	}

	bet1, err := database.PlaceStake(ctx, punter1.ID, event.ID, "Reds", 50)
	if err != nil {
		log.Fatalf("Failed to place stake for punter1: %v", err)
	}

	bet2, err := database.PlaceStake(ctx, punter2.ID, event.ID, "Blues", 120)
	if err != nil {
		log.Fatalf("Failed to place stake for punter2: %v", err)
	}

	odds, err := database.CurrentOdds(ctx, event.ID)
	if err != nil {
		log.Fatalf("Failed to read odds: %v", err)
	}

	fmt.Printf("Seeded admin %q and punters %q, %q\n", admin.Username, punter1.Username, punter2.Username)
	fmt.Printf("Event %d %q with stakes %d and %d\n", event.ID, event.Title, bet1.ID, bet2.ID)
	fmt.Printf("Current odds: %+v (total pool %.2f)\n", odds.Coefficients, odds.TotalPool)
}
