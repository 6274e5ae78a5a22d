package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/hisyeo/kennings/internal/aggregate"
	"github.com/hisyeo/kennings/internal/cache"
	"github.com/hisyeo/kennings/internal/lexicon"
	"github.com/hisyeo/kennings/internal/middleware"
	"github.com/hisyeo/kennings/internal/model"
	"github.com/hisyeo/kennings/internal/repository"
	"github.com/hisyeo/kennings/internal/tokenizer"
	"golang.org/x/sync/singleflight"
	"gorm.io/datatypes"
)

const cacheWriteTimeout = 2 * time.Second

type KenningHandler struct {
	repo        repository.KenningRepository
	index       Lexicon
	cache       SearchCache
	recentLimit int
	flight      singleflight.Group
}

// NewKenningHandler builds the public and contributor kenning routes.
// searchCache may be nil.
func NewKenningHandler(repo repository.KenningRepository, index Lexicon, searchCache SearchCache, recentLimit int) *KenningHandler {
	if recentLimit <= 0 {
		recentLimit = 20
	}
	return &KenningHandler{
		repo:        repo,
		index:       index,
		cache:       searchCache,
		recentLimit: recentLimit,
	}
}

// Recent lists the most recently updated published kennings.
func (h *KenningHandler) Recent(c *gin.Context) {
	rows, err := h.repo.FetchRecentPublished(c.Request.Context(), h.recentLimit)
	if err != nil {
		storageError(c, "fetch recent", err)
		return
	}

	grouped := aggregate.Group(rows)
	if !attachVotes(c, h.repo, grouped) {
		return
	}

	resp := gin.H{"concepts": grouped}
	if grouped.Len() == 0 {
		resp["setup"] = SetupMessage
	}
	c.JSON(http.StatusOK, resp)
}

// Search resolves an English query to concepts and returns their kennings,
// with a placeholder for every matched concept that has none yet.
func (h *KenningHandler) Search(c *gin.Context) {
	value := strings.TrimSpace(c.Query("value"))
	if value == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "No search value was provided."})
		return
	}

	matches := h.searchEnglish(c, value)
	if len(matches) == 0 {
		c.JSON(http.StatusOK, gin.H{
			"searchValue":   value,
			"searchResults": matches,
			"concepts":      aggregate.Group(nil),
			"error":         "No English word was found that matches that search value.",
		})
		return
	}

	rows, err := h.repo.FetchByConcepts(c.Request.Context(), lexicon.UniqueConcepts(matches))
	if err != nil {
		storageError(c, "fetch by concepts", err)
		return
	}

	grouped := aggregate.Group(rows)
	if !attachVotes(c, h.repo, grouped) {
		return
	}
	grouped.MergeRemaining(matches)

	c.JSON(http.StatusOK, gin.H{
		"searchValue":   value,
		"searchResults": matches,
		"concepts":      grouped,
	})
}

// searchEnglish reads through the cache. Cache failures fall back to the index.
func (h *KenningHandler) searchEnglish(c *gin.Context, value string) []lexicon.Match {
	ctx := c.Request.Context()
	key := cache.SearchKey(value)

	if h.cache != nil {
		if data, err := h.cache.Get(ctx, key); err == nil {
			var matches []lexicon.Match
			if err := json.Unmarshal(data, &matches); err == nil {
				middleware.RecordSearch(true, len(matches) > 0)
				return matches
			}
		} else if !errors.Is(err, cache.ErrMiss) {
			log.Printf("[Search] cache read failed for %q: %v", key, err)
		}
	}

	// Concurrent misses on one key share a single index scan and cache write.
	// The write outlives the request that started it.
	result, _, _ := h.flight.Do(key, func() (interface{}, error) {
		matches := h.index.SearchEnglish(value)
		if h.cache != nil {
			if data, err := json.Marshal(matches); err == nil {
				writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cacheWriteTimeout)
				defer cancel()
				if err := h.cache.Set(writeCtx, key, data); err != nil {
					log.Printf("[Search] cache write failed for %q: %v", key, err)
				}
			}
		}
		return matches, nil
	})
	matches := result.([]lexicon.Match)
	middleware.RecordSearch(false, len(matches) > 0)
	return matches
}

type tokenized struct {
	Tokens     []tokenizer.Resolved `json:"tokens"`
	Spans      []tokenizer.Span     `json:"spans"`
	Unresolved int                  `json:"unresolved"`
}

// tokenize splits and resolves text against the stored word list.
func (h *KenningHandler) tokenize(c *gin.Context, text string) (*tokenized, error) {
	tokens := tokenizer.Tokenize(text)
	known, err := h.repo.FindWords(c.Request.Context(), tokenizer.Latins(tokens))
	if err != nil {
		return nil, err
	}

	resolved := tokenizer.Resolve(tokens, known)
	out := &tokenized{Tokens: resolved, Spans: tokenizer.Render(resolved)}
	for _, r := range resolved {
		if r.WordID == nil {
			out.Unresolved++
		}
	}
	return out, nil
}

// Tokenize previews how Hîsyêô text will be stored and rendered.
func (h *KenningHandler) Tokenize(c *gin.Context) {
	text := strings.TrimSpace(c.Query("text"))
	if text == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "No Hîsyêô text was provided."})
		return
	}

	out, err := h.tokenize(c, text)
	if err != nil {
		storageError(c, "find words", err)
		return
	}
	c.JSON(http.StatusOK, out)
}

type AddRequest struct {
	Concept    string `json:"concept"`
	CreatedBy  string `json:"createdBy"`
	Hisyeo     string `json:"hisyeo"`
	Definition string `json:"definition"`
}

// Add stores a new kenning for review.
func (h *KenningHandler) Add(c *gin.Context) {
	var req AddRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	req.Concept = strings.TrimSpace(req.Concept)
	req.CreatedBy = strings.TrimSpace(req.CreatedBy)
	if req.CreatedBy == "" {
		req.CreatedBy = c.GetString("userName")
	}
	if req.Concept == "" || req.CreatedBy == "" || strings.TrimSpace(req.Hisyeo) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "All fields must be provided."})
		return
	}

	definition := strings.TrimSpace(req.Definition)
	if definition == "" {
		def, err := h.index.Definition(req.Concept)
		if err != nil {
			log.Printf("[Kennings] add: %v", err)
			c.JSON(http.StatusBadRequest, gin.H{"error": "No definition was found for that concept."})
			return
		}
		definition = def
	}

	out, err := h.tokenize(c, req.Hisyeo)
	if err != nil {
		storageError(c, "find words", err)
		return
	}
	if len(out.Tokens) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "No Hîsyêô words were found in that text."})
		return
	}

	refs, unresolved := wordRefs(out.Tokens)
	spans, err := json.Marshal(out.Spans)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Problem adding entry."})
		return
	}

	id, err := h.repo.InsertKenning(c.Request.Context(), repository.NewKenning{
		Concept:    req.Concept,
		Definition: definition,
		CreatedBy:  req.CreatedBy,
		Type:       model.TypeSubmitted,
		Words:      refs,
		Spans:      datatypes.JSON(spans),
	})
	if err != nil {
		storageError(c, "insert kenning", err)
		return
	}

	middleware.RecordKenningWrite("add")
	middleware.RecordUnresolvedTokens(unresolved)
	log.Printf("[Kennings] %s added kenning %d for %s (%d unresolved tokens)", req.CreatedBy, id, req.Concept, unresolved)

	c.JSON(http.StatusCreated, gin.H{
		"id":         id,
		"concept":    req.Concept,
		"definition": definition,
		"tokens":     out.Tokens,
		"spans":      out.Spans,
		"unresolved": unresolved,
	})
}

// Get returns one kenning in any state, with its text for editing.
func (h *KenningHandler) Get(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	rows, err := h.repo.FetchByIDs(c.Request.Context(), []int64{id})
	if err != nil {
		storageError(c, "fetch kenning", err)
		return
	}
	grouped := aggregate.Group(rows)
	kenning := grouped.Kenning(id)
	if kenning == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Kenning not found"})
		return
	}
	if !attachVotes(c, h.repo, grouped) {
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"concepts":  grouped,
		"text":      kenningText(kenning),
		"isEditing": true,
	})
}

type EditRequest struct {
	Hisyeo     string `json:"hisyeo"`
	Definition string `json:"definition"`
}

// Edit stores the text as a new version of the kenning.
func (h *KenningHandler) Edit(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	var req EditRequest
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.Hisyeo) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Hîsyêô text must be provided."})
		return
	}

	out, err := h.tokenize(c, req.Hisyeo)
	if err != nil {
		storageError(c, "find words", err)
		return
	}
	if len(out.Tokens) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "No Hîsyêô words were found in that text."})
		return
	}

	refs, unresolved := wordRefs(out.Tokens)
	spans, err := json.Marshal(out.Spans)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Save request was unsuccessful."})
		return
	}

	version, err := h.repo.AppendVersion(c.Request.Context(), id, strings.TrimSpace(req.Definition), refs, datatypes.JSON(spans))
	if err != nil {
		writeError(c, "append version", err)
		return
	}

	middleware.RecordKenningWrite("edit")
	middleware.RecordUnresolvedTokens(unresolved)

	c.JSON(http.StatusOK, gin.H{
		"id":         id,
		"version":    version,
		"tokens":     out.Tokens,
		"spans":      out.Spans,
		"unresolved": unresolved,
	})
}
