// Package testutil holds fixtures shared by package tests.
package testutil

import (
	"testing"

	"github.com/hisyeo/kennings/internal/config"
	"github.com/hisyeo/kennings/internal/database"
	"github.com/hisyeo/kennings/internal/model"
	"gorm.io/gorm"
)

// NewDB returns a migrated in-memory SQLite database. A single connection
// is kept open because every new connection to :memory: is a fresh database.
func NewDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := database.Connect(&config.Config{DatabaseURL: ":memory:", DBLogLevel: "silent"})
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	if err := database.Migrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

// Words is a small known-word list: ka, sêm, hîsyêô, ".", "«".
var Words = []model.HisyeoWord{
	{Latin: "ka", Abugida: "ᚲ", Syllabary: "か", Kind: model.KindWord},
	{Latin: "sêm", Abugida: "ᛊ", Syllabary: "せ", Kind: model.KindWord},
	{Latin: "hîsyêô", Abugida: "ᚺ", Syllabary: "ひ", Kind: model.KindWord},
	{Latin: ".", Abugida: ".", Syllabary: "。", Kind: model.KindPunct},
	{Latin: "«", Abugida: "«", Syllabary: "「", Kind: model.KindGroup},
}

// Seed stores Words and the default vote types and returns the words keyed
// by latin with their ids filled in.
func Seed(t *testing.T, db *gorm.DB) map[string]model.HisyeoWord {
	t.Helper()

	words := make([]model.HisyeoWord, len(Words))
	copy(words, Words)
	if err := db.Create(&words).Error; err != nil {
		t.Fatalf("seed words: %v", err)
	}
	types := make([]model.VoteType, len(model.DefaultVoteTypes))
	copy(types, model.DefaultVoteTypes)
	if err := db.Create(&types).Error; err != nil {
		t.Fatalf("seed vote types: %v", err)
	}

	known := make(map[string]model.HisyeoWord, len(words))
	for _, w := range words {
		known[w.Latin] = w
	}
	return known
}
