package main

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/hisyeo/kennings/internal/auth"
	"github.com/hisyeo/kennings/internal/cache"
	"github.com/hisyeo/kennings/internal/client"
	"github.com/hisyeo/kennings/internal/config"
	"github.com/hisyeo/kennings/internal/database"
	"github.com/hisyeo/kennings/internal/handler"
	"github.com/hisyeo/kennings/internal/lexicon"
	"github.com/hisyeo/kennings/internal/limiter"
	"github.com/hisyeo/kennings/internal/middleware"
	"github.com/hisyeo/kennings/internal/repository"
	"github.com/hisyeo/kennings/internal/scheduler"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}
	cfg := config.Load()

	// Initialize database
	db, err := database.Connect(cfg)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}

	// Auto migrate
	if err := database.Migrate(db); err != nil {
		log.Fatalf("Failed to migrate database: %v", err)
	}

	// Lexicon is required; the server cannot search without it
	index, err := loadLexicon(context.Background(), cfg)
	if err != nil {
		log.Fatalf("Failed to load lexicon: %v", err)
	}
	middleware.SetLexiconEntries(index.Len())

	refresher := scheduler.NewLexiconRefresher(index, func(ctx context.Context) (*lexicon.Index, error) {
		return loadLexicon(ctx, cfg)
	}, cfg.LexiconRefresh, func(ix *lexicon.Index) {
		middleware.SetLexiconEntries(ix.Len())
	})
	go refresher.Start(context.Background())
	defer refresher.Stop()

	// Initialize Redis cache (fail-open)
	var searchCache handler.SearchCache
	var counter limiter.Counter
	redisCache, err := cache.NewRedisCache(cfg.RedisURL, cfg.SearchCacheTTL)
	if err != nil {
		log.Printf("Warning: Failed to connect to Redis: %v", err)
	} else {
		searchCache = redisCache
		counter = redisCache
		defer redisCache.Close()
	}

	store := repository.NewStore(db)
	keys := auth.Keys{
		Contributor: cfg.ContributorKey,
		Editor:      cfg.EditorKey,
		Admin:       cfg.AdminKey,
	}

	routes := &handler.Routes{
		Kennings:  handler.NewKenningHandler(store, refresher, searchCache, cfg.RecentLimit),
		Review:    handler.NewReviewHandler(store),
		Votes:     handler.NewVoteHandler(store),
		Export:    handler.NewExportHandler(store),
		Auth:      handler.NewAuthHandler(cfg.JWTSecret, keys),
		Limiter:   limiter.NewLimiter(counter, nil),
		JWTSecret: cfg.JWTSecret,
		Keys:      keys,
	}

	// Setup router
	r := gin.Default()
	r.Use(middleware.RequestID())
	r.Use(middleware.MetricsMiddleware())

	// CORS middleware
	r.Use(func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type, Authorization, "+middleware.KeyHeader)
		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}
		c.Next()
	})

	// Health check
	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok", "lexicon": refresher.GetStatus()})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	routes.Register(r)

	log.Printf("Kennings server starting on port %s", cfg.Port)
	if err := r.Run(":" + cfg.Port); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}

// loadLexicon fetches both Panlexia tables concurrently and builds the index.
func loadLexicon(ctx context.Context, cfg *config.Config) (*lexicon.Index, error) {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Minute)
	defer cancel()

	datasets := client.NewDatasetClient()
	var defRows, glossRows [][]string

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		rows, err := fetchTSV(gctx, datasets, cfg.PanlexiaDefinitionsURL)
		if err != nil {
			return fmt.Errorf("definitions: %w", err)
		}
		defRows = rows
		return nil
	})
	g.Go(func() error {
		rows, err := fetchTSV(gctx, datasets, cfg.PanlexiaEnglishURL)
		if err != nil {
			return fmt.Errorf("english: %w", err)
		}
		glossRows = rows
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	opts := lexicon.DefaultOptions()
	opts.Threshold = cfg.SearchThreshold
	return lexicon.Build(lexicon.ParseDefinitions(defRows), lexicon.ParseGlosses(glossRows), opts), nil
}

func fetchTSV(ctx context.Context, datasets *client.DatasetClient, source string) ([][]string, error) {
	body, err := datasets.Open(ctx, source)
	if err != nil {
		return nil, err
	}
	defer body.Close()
	return lexicon.ReadTSV(body)
}
