package model

import "gorm.io/gorm"

// Setting is a runtime key/value override edited by administrators.
type Setting struct {
	gorm.Model
	Key   string `gorm:"uniqueIndex;not null"`
	Value string `gorm:"type:text"`
}

const (
	SettingGeneralCategorySlug  = "general_category_slug"
	SettingHRPCategorySlug      = "hrp_category_slug"
	SettingRoleplayCategorySlug = "roleplay_category_slug"
)

// All returns every persisted model, in dependency order, for AutoMigrate.
func All() []interface{} {
	return []interface{}{
		&User{}, &Faction{}, &Clan{}, &Character{},
		&Category{}, &Section{}, &Topic{}, &Post{},
		&Permission{}, &RolePermission{}, &SectionPermission{}, &TopicPermission{},
		&ForumPermission{}, &Setting{},
	}
}
