package model

import (
	"time"

	"gorm.io/datatypes"
)

// Kenning type constants. Only TypePublished rows are shown publicly.
const (
	TypeSubmitted   = 15
	TypeUnpublished = 16
	TypePublished   = 17
)

type Kenning struct {
	ID         int64          `gorm:"primaryKey;autoIncrement" json:"id"`
	Concept    string         `gorm:"not null;index;size:255" json:"concept"`
	Type       int            `gorm:"not null;default:15;index" json:"type"`
	Definition string         `gorm:"type:text" json:"definition"`
	CreatedBy  string         `gorm:"not null;size:255" json:"createdBy"`
	Spans      datatypes.JSON `json:"spans,omitempty"`
	IsDeleted  bool           `gorm:"not null;default:false" json:"isDeleted"`
	DeletedAt  *time.Time     `json:"deletedAt,omitempty"`
	RestoredAt *time.Time     `json:"restoredAt,omitempty"`
	CreatedAt  time.Time      `json:"createdAt"`
	UpdatedAt  time.Time      `gorm:"index" json:"updatedAt"`
}

func (Kenning) TableName() string {
	return "kennings"
}

// IsPublished reports whether the kenning is visible on the public pages.
func (k Kenning) IsPublished() bool {
	return k.Type == TypePublished && !k.IsDeleted
}

// KenningWord is one word of one version of a kenning. Versions are
// append-only: an edit writes a complete new word set under max(version)+1.
// WordID is nil when the token did not match a known word; Literal then
// keeps the raw text.
type KenningWord struct {
	ID        int64       `gorm:"primaryKey;autoIncrement" json:"id"`
	KenningID int64       `gorm:"not null;index:idx_kenning_words_version,priority:1" json:"kenningId"`
	Version   int         `gorm:"not null;index:idx_kenning_words_version,priority:2" json:"version"`
	Position  int         `gorm:"not null" json:"position"`
	WordID    *int64      `gorm:"index" json:"wordId"`
	Literal   string      `gorm:"size:255" json:"literal,omitempty"`
	Kenning   Kenning     `gorm:"foreignKey:KenningID" json:"-"`
	Word      *HisyeoWord `gorm:"foreignKey:WordID" json:"word,omitempty"`
}

func (KenningWord) TableName() string {
	return "kenning_words"
}

// Word kind constants
const (
	KindWord  = "word"
	KindPunct = "punct"
	KindGroup = "group"
)

type HisyeoWord struct {
	ID        int64  `gorm:"primaryKey;autoIncrement" json:"id"`
	Latin     string `gorm:"uniqueIndex;not null;size:255" json:"latin"`
	Abugida   string `gorm:"size:255" json:"abugida"`
	Syllabary string `gorm:"size:255" json:"syllabary"`
	Kind      string `gorm:"not null;default:'word';size:20" json:"kind"`
	TypeRef   string `gorm:"size:50" json:"type"`
}

func (HisyeoWord) TableName() string {
	return "hisyeo_words"
}
