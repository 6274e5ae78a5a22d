package handler

import (
	"context"
	"errors"
	"log"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/hisyeo/kennings/internal/aggregate"
	"github.com/hisyeo/kennings/internal/lexicon"
	"github.com/hisyeo/kennings/internal/repository"
	"github.com/hisyeo/kennings/internal/tokenizer"
)

const (
	ErrorMessage = "Whoops! Error connecting to the database–please try again!"
	SetupMessage = "🚧 Whoops! Looks like the database isn't setup yet! 🚧"
)

// Lexicon answers English searches and concept definitions. Both
// *lexicon.Index and *scheduler.LexiconRefresher implement it.
type Lexicon interface {
	SearchEnglish(query string) []lexicon.Match
	Definition(concept string) (string, error)
}

// SearchCache stores encoded search results. *cache.RedisCache implements it.
type SearchCache interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
}

func storageError(c *gin.Context, op string, err error) {
	log.Printf("[Kennings] %s failed (request %s): %v", op, c.GetString("requestID"), err)
	c.JSON(http.StatusInternalServerError, gin.H{"error": ErrorMessage})
}

// writeError maps repository errors onto responses for id routes.
func writeError(c *gin.Context, op string, err error) {
	switch {
	case errors.Is(err, repository.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Kenning not found"})
	case errors.Is(err, repository.ErrInvalidTransition):
		c.JSON(http.StatusConflict, gin.H{"error": "That kenning can't be changed that way right now."})
	case errors.Is(err, repository.ErrUnknownVoteType):
		c.JSON(http.StatusBadRequest, gin.H{"error": "Unknown vote type"})
	default:
		storageError(c, op, err)
	}
}

func parseID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid kenning id"})
		return 0, false
	}
	return id, true
}

// attachVotes fetches and attaches vote sums, writing the error response
// itself when the fetch fails.
func attachVotes(c *gin.Context, repo repository.KenningRepository, grouped *aggregate.Grouped) bool {
	ids := grouped.KenningIDs()
	if len(ids) == 0 {
		return true
	}
	sums, err := repo.FetchVoteSums(c.Request.Context(), ids)
	if err != nil {
		storageError(c, "fetch votes", err)
		return false
	}
	grouped.AttachVotes(sums)
	return true
}

// wordRefs turns resolved tokens into stored word references.
func wordRefs(resolved []tokenizer.Resolved) ([]repository.WordRef, int) {
	refs := make([]repository.WordRef, len(resolved))
	unresolved := 0
	for i, r := range resolved {
		refs[i] = repository.WordRef{WordID: r.WordID, Literal: r.Raw}
		if r.WordID == nil {
			unresolved++
		}
	}
	return refs, unresolved
}

// kenningText rebuilds the Hîsyêô text of one kenning group.
func kenningText(k *aggregate.KenningGroup) string {
	parts := make([]string, len(k.Words))
	for i, w := range k.Words {
		parts[i] = w.Latin
	}
	return strings.Join(parts, " ")
}
