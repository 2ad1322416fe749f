package model

import "time"

// Category is the root of a forum tree.
type Category struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	Name      string    `gorm:"not null" json:"name"`
	Slug      string    `gorm:"uniqueIndex;not null" json:"slug"`
	Order     int       `json:"order"`
	IsActive  bool      `gorm:"not null" json:"is_active"`
}

// Section sits under a category or under a parent section. When ParentSectionID is
// set it wins over CategoryID when walking up the tree.
type Section struct {
	ID                 uint      `gorm:"primaryKey" json:"id"`
	CreatedAt          time.Time `json:"created_at"`
	UpdatedAt          time.Time `json:"updated_at"`
	Name               string    `gorm:"not null" json:"name"`
	Slug               string    `gorm:"index" json:"slug"`
	CategoryID         *uint     `gorm:"index" json:"category_id"`
	ParentSectionID    *uint     `gorm:"index" json:"parent_section_id"`
	VisibleByFactionID *uint     `json:"visible_by_faction_id"`
	VisibleByClanID    *uint     `json:"visible_by_clan_id"`
	Order              int       `json:"order"`
	IsActive           bool      `gorm:"not null" json:"is_active"`

	Subsections []Section `gorm:"foreignKey:ParentSectionID" json:"subsections,omitempty"`
}

// Restricted reports whether visibility is scoped to a faction or a clan.
func (s *Section) Restricted() bool {
	return s.VisibleByFactionID != nil || s.VisibleByClanID != nil
}

type Topic struct {
	ID                uint      `gorm:"primaryKey" json:"id"`
	CreatedAt         time.Time `gorm:"index" json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
	Title             string    `gorm:"not null" json:"title"`
	SectionID         uint      `gorm:"not null;index" json:"section_id"`
	AuthorUserID      *uint     `gorm:"index" json:"author_user_id"`
	AuthorCharacterID *uint     `json:"author_character_id"`
	IsLocked          bool      `json:"is_locked"`
	IsPinned          bool      `json:"is_pinned"`
	IsActive          bool      `gorm:"not null;index" json:"is_active"`
}

type Post struct {
	ID                uint      `gorm:"primaryKey" json:"id"`
	CreatedAt         time.Time `gorm:"index" json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
	TopicID           uint      `gorm:"not null;index" json:"topic_id"`
	AuthorUserID      *uint     `gorm:"index" json:"author_user_id"`
	AuthorCharacterID *uint     `json:"author_character_id"`
	Content           string    `gorm:"type:text" json:"content"`
	IsActive          bool      `gorm:"not null;index" json:"is_active"`
}
