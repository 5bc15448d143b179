package handler

import (
	"farm_community/internal/pkg/middleware"

	"github.com/gin-gonic/gin"
)

// RegisterRoutes 注册社区路由
func RegisterRoutes(r *gin.Engine, h *CommunityHandler, secret string) {
	g := r.Group("/community")

	// 公开接口，带 token 时识别当前用户
	public := g.Group("")
	public.Use(middleware.OptionalAuthMiddleware(secret))
	{
		public.GET("/posts", h.ListPosts)
		public.GET("/posts/:id", h.GetPost)
		public.GET("/posts/:id/comments", h.GetComments)
		public.GET("/posts/:id/live", h.Live)
		public.GET("/reactions/count", h.CountReactions)
	}

	// 需要登录
	auth := g.Group("")
	auth.Use(middleware.AuthMiddleware(secret))
	{
		auth.POST("/posts", h.CreatePost)
		auth.PATCH("/posts/:id", h.UpdatePost)
		auth.DELETE("/posts/:id", h.DeletePost)
		auth.POST("/posts/:id/attachments", h.AddAttachments)
		auth.POST("/posts/:id/comments", h.AddComment)
		auth.POST("/reactions", h.ToggleReaction)
	}
}
