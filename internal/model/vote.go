package model

import "time"

type VoteType struct {
	ID          int64  `gorm:"primaryKey;autoIncrement" json:"id"`
	Name        string `gorm:"uniqueIndex;not null;size:50" json:"name"`
	Emoji       string `gorm:"size:16" json:"emoji"`
	Description string `gorm:"type:text" json:"description"`
}

func (VoteType) TableName() string {
	return "vote_types"
}

type UserVote struct {
	ID         int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	KenningID  int64     `gorm:"not null;index" json:"kenningId"`
	VoteTypeID int64     `gorm:"not null;index" json:"voteTypeId"`
	Weight     int       `gorm:"not null;default:1" json:"weight"`
	Voter      string    `gorm:"size:255" json:"voter,omitempty"`
	CreatedAt  time.Time `json:"createdAt"`
	Kenning    Kenning   `gorm:"foreignKey:KenningID" json:"-"`
	VoteType   VoteType  `gorm:"foreignKey:VoteTypeID" json:"-"`
}

func (UserVote) TableName() string {
	return "user_votes"
}

// Default vote types seeded by cmd/seed
var DefaultVoteTypes = []VoteType{
	{Name: "up", Emoji: "👍", Description: "A good fit for the concept"},
	{Name: "down", Emoji: "👎", Description: "A poor fit for the concept"},
	{Name: "poetic", Emoji: "🪶", Description: "Especially vivid or beautiful"},
	{Name: "clear", Emoji: "💡", Description: "Easy to understand on first reading"},
}
