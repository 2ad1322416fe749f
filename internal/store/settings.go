package store

import (
	"errors"

	"gorm.io/gorm"

	"rpg-forum/internal/model"
)

// GetSetting returns the stored value of key, or "" when it was never set.
func GetSetting(db *gorm.DB, key string) (string, error) {
	var s model.Setting
	if err := db.Where("key = ?", key).First(&s).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", nil
		}
		return "", err
	}
	return s.Value, nil
}
