package database

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/hisyeo/kennings/internal/config"
	"github.com/hisyeo/kennings/internal/model"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func Connect(cfg *config.Config) (*gorm.DB, error) {
	dialector, err := Dialector(cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(LogLevel(cfg.DBLogLevel)),
	})
	if err != nil {
		return nil, err
	}

	if db.Dialector.Name() == "sqlite" {
		// Pragmas for the file-backed store
		db.Exec("PRAGMA journal_mode = wal")
		db.Exec("PRAGMA synchronous = normal")
		db.Exec("PRAGMA foreign_keys = on")
	}

	return db, nil
}

// Dialector picks the postgres driver for postgres:// URLs and SQLite for
// anything else, which is treated as a file path or DSN.
func Dialector(databaseURL string) (gorm.Dialector, error) {
	switch {
	case strings.HasPrefix(databaseURL, "postgres://"), strings.HasPrefix(databaseURL, "postgresql://"):
		return postgres.Open(databaseURL), nil
	case databaseURL == "":
		return nil, fmt.Errorf("database URL is empty")
	default:
		if !strings.HasPrefix(databaseURL, "file:") && !strings.Contains(databaseURL, ":memory:") {
			if err := os.MkdirAll(filepath.Dir(databaseURL), 0o755); err != nil {
				return nil, fmt.Errorf("failed to create database directory: %w", err)
			}
		}
		return sqlite.Open(databaseURL), nil
	}
}

func LogLevel(level string) logger.LogLevel {
	switch strings.ToLower(level) {
	case "silent":
		return logger.Silent
	case "error":
		return logger.Error
	case "info":
		return logger.Info
	default:
		return logger.Warn
	}
}

func Migrate(db *gorm.DB) error {
	err := db.AutoMigrate(
		&model.HisyeoWord{},
		&model.Kenning{},
		&model.KenningWord{},
		&model.VoteType{},
		&model.UserVote{},
	)
	if err != nil {
		return err
	}

	// One word per position per version
	db.Exec("CREATE UNIQUE INDEX IF NOT EXISTS idx_kenning_words_position ON kenning_words(kenning_id, version, position)")
	db.Exec("CREATE INDEX IF NOT EXISTS idx_user_votes_kenning_type ON user_votes(kenning_id, vote_type_id)")

	return nil
}
