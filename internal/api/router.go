// Package api wires the HTTP surface of the forum.
package api

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"rpg-forum/internal/api/handler"
	"rpg-forum/internal/api/middleware"
	"rpg-forum/internal/config"
	"rpg-forum/internal/forum"
	"rpg-forum/internal/model"
	"rpg-forum/internal/permission"
	"rpg-forum/internal/quota"
	"rpg-forum/internal/store"
)

type Deps struct {
	Store     *store.Gorm
	Evaluator *permission.Evaluator
	Forum     *forum.Service
	Quotas    *quota.Checker
	Config    *config.Config
	JWTSecret string
	Logger    *zap.Logger
	Gatherer  prometheus.Gatherer
}

func NewRouter(d Deps) *gin.Engine {
	db := d.Store.DB()
	ev := d.Evaluator
	limiter := handler.NewLoginLimiter(d.Config.Auth.MaxLoginFailures, d.Config.Auth.Lockout())

	r := gin.New()
	r.Use(middleware.RecoveryMiddleware(d.Logger), middleware.LoggerMiddleware(d.Logger), middleware.CORSMiddleware())

	if d.Gatherer != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(d.Gatherer, promhttp.HandlerOpts{})))
	}

	public := r.Group("/api/v1")
	{
		public.POST("/login", handler.Login(db, d.JWTSecret, d.Config.JWT.Expiry(), limiter, d.Logger))
	}

	browse := r.Group("/api/v1")
	browse.Use(middleware.OptionalAuth(d.Store, d.JWTSecret))
	{
		browse.GET("/categories/:id/sections", handler.ListSections(ev, d.Store))
		browse.GET("/topics/:id/posts", handler.ListPosts(ev, d.Store, d.Forum))
		browse.GET("/forum-permissions/:entity_type/:id", handler.GetEntityPermissions(ev))
	}

	auth := r.Group("/api/v1")
	auth.Use(middleware.AuthMiddleware(d.Store, d.JWTSecret))
	{
		// Self-service
		auth.GET("/me/status", handler.MyStatus(ev.Characters(), d.Quotas))
		auth.PUT("/me/password", handler.ChangePassword(db))
		auth.POST("/me/accept-rules", handler.AcceptRules(db))
		auth.GET("/permissions/check", handler.CheckPermission(ev))

		// Forum content
		auth.POST("/sections", handler.CreateSection(ev, d.Forum))
		auth.PUT("/sections/:id/parent", handler.MoveSection(ev, d.Forum))
		auth.POST("/topics", handler.CreateTopic(ev, d.Forum, d.Quotas))
		auth.DELETE("/topics/:id", handler.DeleteTopic(ev, d.Store, d.Forum))
		auth.PUT("/topics/:id/lock", handler.SetTopicFlag(ev, d.Forum, "lock"))
		auth.PUT("/topics/:id/pin", handler.SetTopicFlag(ev, d.Forum, "pin"))
		auth.PUT("/topics/:id/section/:section_id",
			middleware.RequirePermission(ev, permission.TopicMove, handler.TopicResource),
			middleware.RequirePermission(ev, permission.TopicMove, handler.TopicDestination),
			handler.MoveTopic(d.Forum))
		auth.POST("/topics/:id/posts", handler.CreatePost(ev, d.Forum, d.Quotas))
		auth.DELETE("/posts/:id", handler.DeletePost(ev, d.Forum))

		// Permission configuration
		admin := auth.Group("", middleware.RoleCheck(model.RoleAdmin))
		admin.PUT("/forum-permissions/:entity_type/:id/:operation", handler.PutEntityPermission(d.Store))
		admin.POST("/sections/:id/overrides", handler.AddSectionOverride(d.Store))
		admin.POST("/topics/:id/overrides", handler.AddTopicOverride(d.Store))
		admin.PUT("/role-permissions", handler.PutRolePermissions(d.Store))

		// User management
		admin.GET("/users", handler.ListUsers(db))
		admin.POST("/users", handler.CreateUser(db))
		admin.PUT("/users/:id", handler.UpdateUser(db))
		admin.PUT("/users/:id/reset-password", handler.ResetUserPassword(db))

		// Settings
		admin.GET("/settings/forum", handler.GetForumSettings(db))
		admin.PUT("/settings/forum", handler.UpdateForumSettings(db))
	}

	return r
}
