package main

import (
	"context"
	"database/sql"
	"log"
	"os"
	"parcel-tracking-service/internal/adapters/repositories"
	"parcel-tracking-service/internal/config"
	"parcel-tracking-service/internal/plans"
	"parcel-tracking-service/internal/platform/db"
	"strings"
	"time"
)

func main() {
	if err := config.LoadDotEnv(); err != nil {
		log.Println("No .env file found (using environment variables)")
	}

	databaseURL := os.Getenv("DATABASE_URL")
	if strings.TrimSpace(databaseURL) == "" {
		log.Fatal("DATABASE_URL is required")
	}

	conn, err := db.Open(databaseURL)
	if err != nil {
		log.Fatal(err)
	}
	defer conn.Close()

	planConfig := plans.Default()
	if path := config.Get("PLANS_PATH", ""); path != "" {
		if planConfig, err = plans.LoadFile(path); err != nil {
			log.Fatal(err)
		}
	}
	for _, m := range planConfig.Validate() {
		log.Printf("warning: plan step not in phase order: %s", m)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	channel := config.Get("CHANGE_CHANNEL", repositories.DefaultChangeChannel)
	if err := initAndSeed(ctx, conn, channel, planConfig); err != nil {
		log.Fatal(err)
	}
}

func initAndSeed(ctx context.Context, conn *sql.DB, channel string, planConfig plans.Config) error {
	log.Println("Initializing database schema...")
	if err := repositories.InitSchema(ctx, conn, channel); err != nil {
		log.Fatalf("schema initialization failed: %v", err)
	}
	log.Println("Schema ready.")

	log.Println("Seeding master plans...")
	n, err := repositories.SeedMasterPlans(ctx, conn, planConfig)
	if err != nil {
		log.Fatalf("seeding failed: %v", err)
	}
	log.Printf("Seeding complete (%d new plans).", n)

	return nil
}
