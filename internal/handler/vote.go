package handler

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/hisyeo/kennings/internal/middleware"
	"github.com/hisyeo/kennings/internal/repository"
)

type VoteHandler struct {
	repo repository.KenningRepository
}

func NewVoteHandler(repo repository.KenningRepository) *VoteHandler {
	return &VoteHandler{repo: repo}
}

func (h *VoteHandler) Types(c *gin.Context) {
	types, err := h.repo.VoteTypes(c.Request.Context())
	if err != nil {
		storageError(c, "vote types", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"voteTypes": types})
}

type VoteRequest struct {
	Type   string `json:"type" binding:"required"`
	Voter  string `json:"voter"`
	Weight int    `json:"weight" binding:"omitempty,min=1,max=5"`
}

// Cast records a vote and returns the kenning's updated sums.
func (h *VoteHandler) Cast(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	var req VoteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "A vote type is required and weight must be between 1 and 5."})
		return
	}

	voteType := strings.TrimSpace(req.Type)
	err := h.repo.CastVote(c.Request.Context(), repository.Vote{
		KenningID: id,
		TypeName:  voteType,
		Voter:     strings.TrimSpace(req.Voter),
		Weight:    req.Weight,
	})
	if err != nil {
		writeError(c, "cast vote", err)
		return
	}
	middleware.RecordVote(voteType)

	sums, err := h.repo.FetchVoteSums(c.Request.Context(), []int64{id})
	if err != nil {
		storageError(c, "fetch votes", err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"kenning": id, "votes": sums})
}
