package main

import (
	"context"
	"flag"
	"log"
	"time"

	"github.com/hisyeo/kennings/internal/client"
	"github.com/hisyeo/kennings/internal/config"
	"github.com/hisyeo/kennings/internal/database"
	"github.com/hisyeo/kennings/internal/model"
	"github.com/hisyeo/kennings/internal/repository"
	"github.com/joho/godotenv"
)

func main() {
	godotenv.Load()
	cfg := config.Load()

	// Parse command line flags
	source := flag.String("words", cfg.HisyeoWordsURL, "words.json URL or file path")
	voteTypes := flag.Bool("vote-types", true, "Also seed the default vote types")
	flag.Parse()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	// Connect to database
	db, err := database.Connect(cfg)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}

	// Run migration
	if err := database.Migrate(db); err != nil {
		log.Fatalf("Failed to migrate database: %v", err)
	}

	store := repository.NewStore(db)

	log.Printf("Seeding Hîsyêô words from %s", *source)
	words, err := client.NewDatasetClient().FetchWords(ctx, *source)
	if err != nil {
		log.Fatalf("Failed to load word list: %v", err)
	}
	log.Printf("Loaded %d words", len(words))

	affected, err := store.UpsertWords(ctx, words)
	if err != nil {
		log.Fatalf("Failed to seed words: %v", err)
	}
	log.Printf("Words inserted or refreshed: %d", affected)

	if *voteTypes {
		if err := store.EnsureVoteTypes(ctx, model.DefaultVoteTypes); err != nil {
			log.Fatalf("Failed to seed vote types: %v", err)
		}
		log.Printf("Vote types ensured: %d", len(model.DefaultVoteTypes))
	}

	log.Printf("Seeding complete")
}
