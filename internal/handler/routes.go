package handler

import (
	"github.com/gin-gonic/gin"
	"github.com/hisyeo/kennings/internal/auth"
	"github.com/hisyeo/kennings/internal/limiter"
	"github.com/hisyeo/kennings/internal/middleware"
)

type Routes struct {
	Kennings  *KenningHandler
	Review    *ReviewHandler
	Votes     *VoteHandler
	Export    *ExportHandler
	Auth      *AuthHandler
	Limiter   *limiter.Limiter
	JWTSecret string
	Keys      auth.Keys
}

// Register mounts the /api routes on r.
func (rt *Routes) Register(r *gin.Engine) {
	contributor := middleware.RequireRole(rt.JWTSecret, rt.Keys, auth.RoleContributor)
	editor := middleware.RequireRole(rt.JWTSecret, rt.Keys, auth.RoleEditor)

	api := r.Group("/api")
	{
		// Public
		api.GET("/kennings", rt.Kennings.Recent)
		api.GET("/search", rt.Kennings.Search)
		api.GET("/tokenize", rt.Kennings.Tokenize)
		api.GET("/vote-types", rt.Votes.Types)
		api.GET("/export", rt.Limiter.Middleware("export"), rt.Export.Export)
		api.POST("/kennings/:id/votes", rt.Limiter.Middleware("vote"), rt.Votes.Cast)
		api.POST("/auth/token", rt.Limiter.Middleware("auth"), rt.Auth.Token)

		// Contributors
		api.POST("/kennings", contributor, rt.Limiter.Middleware("add"), rt.Kennings.Add)
		api.GET("/kennings/:id", contributor, rt.Kennings.Get)
		api.POST("/kennings/:id/edit", contributor, rt.Kennings.Edit)

		// Editors
		api.GET("/review", editor, rt.Review.List)
		api.POST("/kennings/:id/approve", editor, rt.Review.Approve)
		api.POST("/kennings/:id/unpublish", editor, rt.Review.Unpublish)
		api.POST("/kennings/:id/delete", editor, rt.Review.Delete)
		api.POST("/kennings/:id/restore", editor, rt.Review.Restore)
	}
}
