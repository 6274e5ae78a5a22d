package config

import (
	"os"
	"strconv"
	"time"
)

type Config struct {
	Port                   string
	DatabaseURL            string
	DBLogLevel             string
	RedisURL               string
	JWTSecret              string
	ContributorKey         string
	EditorKey              string
	AdminKey               string
	PanlexiaDefinitionsURL string
	PanlexiaEnglishURL     string
	HisyeoWordsURL         string
	RecentLimit            int
	SearchThreshold        float64
	SearchCacheTTL         time.Duration
	LexiconRefresh         time.Duration
}

func Load() *Config {
	return &Config{
		Port:                   getEnv("PORT", "4000"),
		DatabaseURL:            getEnv("DATABASE_URL", "./.data/kennings-v02.db"),
		DBLogLevel:             getEnv("DB_LOG_LEVEL", "warn"),
		RedisURL:               getEnv("REDIS_URL", "redis://localhost:6379"),
		JWTSecret:              getEnv("JWT_SECRET", "your-256-bit-secret-change-in-production"),
		ContributorKey:         getEnv("CONTRIBUTOR_KEY", ""),
		EditorKey:              getEnv("EDITOR_KEY", ""),
		AdminKey:               getEnv("ADMIN_KEY", ""),
		PanlexiaDefinitionsURL: getEnv("PANLEXIA_DEFINITIONS_TSV", ""),
		PanlexiaEnglishURL:     getEnv("PANLEXIA_ENGLISH_TSV", ""),
		HisyeoWordsURL:         getEnv("HISYEO_WORDS_URL", "https://hisyeo.github.io/words.json"),
		RecentLimit:            getEnvInt("RECENT_LIMIT", 20),
		SearchThreshold:        getEnvFloat("SEARCH_THRESHOLD", 0.01),
		SearchCacheTTL:         getEnvDuration("SEARCH_CACHE_TTL", time.Hour),
		LexiconRefresh:         getEnvDuration("LEXICON_REFRESH", 24*time.Hour),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value, err := strconv.Atoi(os.Getenv(key)); err == nil && value > 0 {
		return value
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value, err := strconv.ParseFloat(os.Getenv(key), 64); err == nil && value >= 0 {
		return value
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value, err := time.ParseDuration(os.Getenv(key)); err == nil {
		return value
	}
	return defaultValue
}
