package handler

import (
	"context"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/hisyeo/kennings/internal/aggregate"
	"github.com/hisyeo/kennings/internal/middleware"
	"github.com/hisyeo/kennings/internal/model"
	"github.com/hisyeo/kennings/internal/repository"
)

const reviewLimit = 50

type ReviewHandler struct {
	repo repository.KenningRepository
}

func NewReviewHandler(repo repository.KenningRepository) *ReviewHandler {
	return &ReviewHandler{repo: repo}
}

// List returns the unpublished kennings waiting for an editor.
func (h *ReviewHandler) List(c *gin.Context) {
	ctx := c.Request.Context()

	kennings, err := h.repo.ListForReview(ctx, reviewLimit)
	if err != nil {
		storageError(c, "list for review", err)
		return
	}

	ids := make([]int64, len(kennings))
	for i, k := range kennings {
		ids[i] = k.ID
	}
	rows, err := h.repo.FetchByIDs(ctx, ids)
	if err != nil {
		storageError(c, "fetch review words", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"actions":  kennings,
		"concepts": aggregate.Group(rows),
	})
}

func (h *ReviewHandler) Approve(c *gin.Context) {
	h.transition(c, "approve", func(ctx context.Context, id int64) error {
		return h.repo.SetType(ctx, id, model.TypePublished, model.TypeSubmitted, model.TypeUnpublished)
	})
}

func (h *ReviewHandler) Unpublish(c *gin.Context) {
	h.transition(c, "unpublish", func(ctx context.Context, id int64) error {
		return h.repo.SetType(ctx, id, model.TypeUnpublished, model.TypePublished)
	})
}

func (h *ReviewHandler) Delete(c *gin.Context) {
	h.transition(c, "delete", h.repo.SoftDelete)
}

func (h *ReviewHandler) Restore(c *gin.Context) {
	h.transition(c, "restore", h.repo.Restore)
}

func (h *ReviewHandler) transition(c *gin.Context, action string, apply func(context.Context, int64) error) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	if err := apply(c.Request.Context(), id); err != nil {
		writeError(c, action, err)
		return
	}

	middleware.RecordKenningWrite(action)
	log.Printf("[Review] %s kenning %d by %s", action, id, c.GetString("userName"))
	c.JSON(http.StatusOK, gin.H{"id": id, "action": action})
}
