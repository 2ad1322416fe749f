package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"rpg-forum/internal/api/middleware"
	"rpg-forum/internal/apperr"
	"rpg-forum/internal/model"
	"rpg-forum/internal/permission"
	"rpg-forum/internal/store"
)

// CheckPermission evaluates a permission for the current user and reports the
// deciding layer.
func CheckPermission(ev *permission.Evaluator) gin.HandlerFunc {
	return func(c *gin.Context) {
		var input struct {
			Permission string `form:"permission" binding:"required"`
			permission.Resource
		}
		if err := c.ShouldBindQuery(&input); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		d, err := ev.Check(c.Request.Context(), middleware.CurrentUser(c), input.Permission, input.Resource)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, d)
	}
}

// GetEntityPermissions returns the attribute rule in force for every operation
// on an entity.
func GetEntityPermissions(ev *permission.Evaluator) gin.HandlerFunc {
	return func(c *gin.Context) {
		ref, err := entityParam(c)
		if err != nil {
			respondError(c, err)
			return
		}
		rules, err := ev.Rules().ResolveEntityPermissions(c.Request.Context(), ref)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"entity": ref, "permissions": rules})
	}
}

// PutEntityPermission stores the attribute rule of one operation on an entity.
func PutEntityPermission(st *store.Gorm) gin.HandlerFunc {
	return func(c *gin.Context) {
		ref, err := entityParam(c)
		if err != nil {
			respondError(c, err)
			return
		}
		op, err := model.ParseOperation(c.Param("operation"))
		if err != nil {
			respondError(c, apperr.Invalidf("%v", err))
			return
		}
		var rule model.ForumRule
		if err := c.ShouldBindJSON(&rule); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		if err := entityExists(c, st, ref); err != nil {
			respondError(c, err)
			return
		}
		fp, err := st.UpsertForumRule(c.Request.Context(), ref, op, rule)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, fp)
	}
}

func entityExists(c *gin.Context, st store.Tree, ref model.EntityRef) error {
	var err error
	switch ref.Type {
	case model.EntityCategory:
		_, err = st.Category(c.Request.Context(), ref.ID)
	case model.EntitySection:
		_, err = st.Section(c.Request.Context(), ref.ID)
	case model.EntityTopic:
		_, err = st.Topic(c.Request.Context(), ref.ID)
	}
	return err
}

type overrideInput struct {
	Permission           string      `json:"permission" binding:"required"`
	Role                 *model.Role `json:"role"`
	UserID               *uint       `json:"user_id"`
	Granted              bool        `json:"granted"`
	InheritToSubsections bool        `json:"inherit_to_subsections"`
}

// AddSectionOverride creates a role or user override on a section.
func AddSectionOverride(st *store.Gorm) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := paramID(c, "id")
		if err != nil {
			respondError(c, err)
			return
		}
		var input overrideInput
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		sp, err := st.AddSectionOverride(c.Request.Context(), store.SectionOverrideInput{
			SectionID:            id,
			Permission:           input.Permission,
			Role:                 input.Role,
			UserID:               input.UserID,
			Granted:              input.Granted,
			InheritToSubsections: input.InheritToSubsections,
		})
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusCreated, sp)
	}
}

// AddTopicOverride creates a role or user override on a topic.
func AddTopicOverride(st *store.Gorm) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := paramID(c, "id")
		if err != nil {
			respondError(c, err)
			return
		}
		var input overrideInput
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		if input.InheritToSubsections {
			respondError(c, apperr.Invalidf("topic overrides have no subsections"))
			return
		}
		tp, err := st.AddTopicOverride(c.Request.Context(), store.TopicOverrideInput{
			TopicID:    id,
			Permission: input.Permission,
			Role:       input.Role,
			UserID:     input.UserID,
			Granted:    input.Granted,
		})
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusCreated, tp)
	}
}

// PutRolePermissions upserts rows of the global role table.
func PutRolePermissions(st *store.Gorm) gin.HandlerFunc {
	return func(c *gin.Context) {
		var input struct {
			Grants []struct {
				Role       string `json:"role" binding:"required"`
				Permission string `json:"permission" binding:"required"`
				Granted    bool   `json:"granted"`
			} `json:"grants" binding:"required,dive"`
		}
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		grants := make([]store.RoleGrant, 0, len(input.Grants))
		for _, g := range input.Grants {
			role, err := model.ParseRole(g.Role)
			if err != nil {
				respondError(c, apperr.Invalidf("%v", err))
				return
			}
			grants = append(grants, store.RoleGrant{Role: role, Permission: g.Permission, Granted: g.Granted})
		}
		if err := st.SetRolePermissions(c.Request.Context(), grants); err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"message": "Role permissions updated", "count": len(input.Grants)})
	}
}
