package model

import "time"

// KenningRow is one (kenning, current-version word) pair as returned by the
// joined kenning queries.
type KenningRow struct {
	ID         int64     `json:"id"`
	Concept    string    `json:"concept"`
	Definition string    `json:"definition"`
	Type       int       `json:"type"`
	CreatedBy  string    `json:"createdBy"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
	Version    int       `json:"version"`
	Position   int       `json:"pos"`
	WordID     *int64    `json:"wordId"`
	Latin      string    `json:"latin"`
	Abugida    string    `json:"abugida"`
	Syllabary  string    `json:"syllabary"`
	Kind       string    `json:"kind"`
}

// VoteSum is the total weight of one vote type on one kenning.
type VoteSum struct {
	KenningID   int64  `json:"kenning"`
	VoteType    string `json:"type"`
	Emoji       string `json:"emoji"`
	Description string `json:"description"`
	Total       int64  `json:"total"`
}
