package handler

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"rpg-forum/internal/model"
	"rpg-forum/internal/store"
)

var forumSettingKeys = []string{
	model.SettingGeneralCategorySlug,
	model.SettingHRPCategorySlug,
	model.SettingRoleplayCategorySlug,
}

// GetForumSettings returns the category slug overrides.
func GetForumSettings(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		out := make(gin.H, len(forumSettingKeys))
		for _, key := range forumSettingKeys {
			v, err := store.GetSetting(db, key)
			if err != nil {
				c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve settings"})
				return
			}
			out[key] = v
		}
		c.JSON(http.StatusOK, out)
	}
}

// UpdateForumSettings stores category slug overrides. They apply on the next
// start.
func UpdateForumSettings(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		var input map[string]string
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		rows := make([]model.Setting, 0, len(input))
		for _, key := range forumSettingKeys {
			v, ok := input[key]
			if !ok {
				continue
			}
			rows = append(rows, model.Setting{Key: key, Value: strings.TrimSpace(v)})
			delete(input, key)
		}
		if len(input) > 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Unknown setting"})
			return
		}
		if len(rows) == 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "No settings given"})
			return
		}
		err := db.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "key"}},
			DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
		}).Create(&rows).Error
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update settings"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"message": "Settings updated, restart to apply"})
	}
}
