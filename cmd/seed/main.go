package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/joho/godotenv"
	"github.com/lemarcheluxe/backend/internal/config"
	"github.com/lemarcheluxe/backend/internal/database"
	"github.com/lemarcheluxe/backend/internal/seed"
)

func usage() {
	fmt.Println("Usage: seed [demo|fake|clean] [flags]")
	fmt.Println("  demo  - Insert the three demo listings (Cartier, Hermès, Chanel)")
	fmt.Println("  fake  - Generate profiles, listings and conversations")
	fmt.Println("  clean - Remove all marketplace data (use with caution)")
}

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("Warning: .env file not found, using system environment variables")
	}

	command := "demo"
	args := os.Args[1:]
	if len(args) > 0 {
		command, args = args[0], args[1:]
	}

	fs := flag.NewFlagSet("seed "+command, flag.ExitOnError)
	users := fs.Int("users", 20, "profiles to create (fake)")
	listings := fs.Int("listings", 3, "listings per profile (fake)")
	conversations := fs.Int("conversations", 30, "conversations to create (fake)")
	messages := fs.Int("messages", 4, "messages per conversation (fake)")
	_ = fs.Parse(args)

	switch command {
	case "demo", "fake", "clean":
	default:
		usage()
		os.Exit(1)
	}

	log.Println("🔄 Connecting to database...")
	if err := database.Initialize(config.DatabaseURL(), false); err != nil {
		log.Fatalf("❌ Failed to connect to database: %v", err)
	}
	defer database.Close()

	if err := database.Migrate(database.DB); err != nil {
		log.Fatalf("❌ Migration failed: %v", err)
	}
	log.Println("✅ Database connected")

	ctx := context.Background()
	seeder := seed.NewSeeder(database.DB)

	switch command {
	case "demo":
		log.Println("🌱 Inserting demo listings...")
		inserted, err := seeder.SeedDemo(ctx)
		if err != nil {
			log.Fatalf("❌ Seeding failed: %v", err)
		}
		log.Printf("✅ %d demo listing(s) inserted", len(inserted))
	case "fake":
		log.Println("🌱 Generating marketplace data...")
		res, err := seeder.SeedFake(ctx, seed.FakeOptions{
			Users:            *users,
			ListingsPerUser:  *listings,
			Conversations:    *conversations,
			MessagesPerConvo: *messages,
		})
		if err != nil {
			log.Fatalf("❌ Seeding failed: %v", err)
		}
		log.Printf("✅ %d profiles, %d listings, %d conversations, %d messages",
			res.Users, res.Listings, res.Conversations, res.Messages)
	case "clean":
		log.Println("🧹 Cleaning seed data...")
		if err := seeder.Clean(ctx); err != nil {
			log.Fatalf("❌ Clean failed: %v", err)
		}
		log.Println("✅ Seed data cleaned successfully!")
	}
}
