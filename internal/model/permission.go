package model

import (
	"fmt"
	"time"
)

// Effect is the opinion a single permission layer has about a request.
type Effect int8

const (
	NoOpinion Effect = iota
	Grant
	Deny
)

func (e Effect) String() string {
	switch e {
	case Grant:
		return "grant"
	case Deny:
		return "deny"
	}
	return "no_opinion"
}

// EffectOf turns a stored granted flag into an explicit opinion.
func EffectOf(granted bool) Effect {
	if granted {
		return Grant
	}
	return Deny
}

// Permission is the catalog of known permission names such as "topic.create".
type Permission struct {
	ID          uint   `gorm:"primaryKey" json:"id"`
	Name        string `gorm:"uniqueIndex;not null" json:"name"`
	Description string `json:"description"`
}

// RolePermission is the global default grant for a role.
type RolePermission struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
	Role         Role      `gorm:"type:varchar(32);not null;uniqueIndex:idx_role_permission" json:"role"`
	PermissionID uint      `gorm:"not null;uniqueIndex:idx_role_permission" json:"permission_id"`
	Granted      bool      `gorm:"not null" json:"granted"`

	Permission Permission `gorm:"foreignKey:PermissionID" json:"-"`
}

// SectionPermission overrides a permission on one section for either a role or a user.
type SectionPermission struct {
	ID                   uint      `gorm:"primaryKey" json:"id"`
	CreatedAt            time.Time `json:"created_at"`
	UpdatedAt            time.Time `json:"updated_at"`
	SectionID            uint      `gorm:"not null;index" json:"section_id"`
	PermissionID         uint      `gorm:"not null;index" json:"permission_id"`
	Role                 *Role     `gorm:"type:varchar(32)" json:"role"`
	UserID               *uint     `gorm:"index" json:"user_id"`
	Granted              bool      `gorm:"not null" json:"granted"`
	InheritToSubsections bool      `gorm:"not null" json:"inherit_to_subsections"`
}

// Malformed reports a record that targets both a role and a user, or neither.
func (p *SectionPermission) Malformed() bool {
	return (p.Role == nil) == (p.UserID == nil)
}

// TopicPermission overrides a permission on one topic for either a role or a user.
type TopicPermission struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
	TopicID      uint      `gorm:"not null;index" json:"topic_id"`
	PermissionID uint      `gorm:"not null;index" json:"permission_id"`
	Role         *Role     `gorm:"type:varchar(32)" json:"role"`
	UserID       *uint     `gorm:"index" json:"user_id"`
	Granted      bool      `gorm:"not null" json:"granted"`
}

func (p *TopicPermission) Malformed() bool {
	return (p.Role == nil) == (p.UserID == nil)
}

// ValidateSubject enforces the "role xor user" rule for override writes.
func ValidateSubject(role *Role, userID *uint) error {
	switch {
	case role != nil && userID != nil:
		return fmt.Errorf("override must target a role or a user, not both")
	case role == nil && userID == nil:
		return fmt.Errorf("override must target a role or a user")
	case role != nil && !role.Valid():
		return fmt.Errorf("unknown role %q", *role)
	}
	return nil
}
