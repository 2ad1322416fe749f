package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"rpg-forum/internal/api/middleware"
	"rpg-forum/internal/character"
	"rpg-forum/internal/quota"
)

// MyStatus returns the current user's character standing and quota usage.
func MyStatus(chars *character.Resolver, quotas *quota.Checker) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		user := middleware.CurrentUser(c)
		st, err := chars.Resolve(ctx, user.ID)
		if err != nil {
			respondError(c, err)
			return
		}
		topics, err := quotas.Allow(ctx, user, quota.Topics)
		if err != nil {
			respondError(c, err)
			return
		}
		posts, err := quotas.Allow(ctx, user, quota.Posts)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"user_id":  user.ID,
			"role":     user.Role,
			"standing": st,
			"quotas":   []quota.Usage{topics, posts},
		})
	}
}
