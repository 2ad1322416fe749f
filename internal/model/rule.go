package model

import (
	"fmt"
	"time"
)

type EntityType string

const (
	EntityCategory EntityType = "category"
	EntitySection  EntityType = "section"
	EntityTopic    EntityType = "topic"
)

func ParseEntityType(s string) (EntityType, error) {
	switch t := EntityType(s); t {
	case EntityCategory, EntitySection, EntityTopic:
		return t, nil
	}
	return "", fmt.Errorf("unknown entity type %q", s)
}

// EntityRef names one node of the forum tree.
type EntityRef struct {
	Type EntityType `json:"type"`
	ID   uint       `json:"id"`
}

func (r EntityRef) String() string { return fmt.Sprintf("%s:%d", r.Type, r.ID) }

// Operation is a coarse forum operation governed by attribute rules.
type Operation string

const (
	OpView          Operation = "view"
	OpCreateSection Operation = "create_section"
	OpCreateTopic   Operation = "create_topic"
	OpReply         Operation = "reply"
	OpPinLock       Operation = "pin_lock"
	OpEditDelete    Operation = "edit_delete"
	OpMoveChildren  Operation = "move_children"
)

// Operations lists every attribute-rule operation in display order.
var Operations = []Operation{
	OpView, OpCreateSection, OpCreateTopic, OpReply, OpPinLock, OpEditDelete, OpMoveChildren,
}

func ParseOperation(s string) (Operation, error) {
	for _, op := range Operations {
		if string(op) == s {
			return op, nil
		}
	}
	return "", fmt.Errorf("unknown operation %q", s)
}

// RoleLevel names a set of roles allowed by an attribute rule.
type RoleLevel string

const (
	LevelAdmin                  RoleLevel = "admin"
	LevelAdminModerator         RoleLevel = "admin_moderator"
	LevelAdminModeratorGM       RoleLevel = "admin_moderator_gm"
	LevelAdminModeratorGMPlayer RoleLevel = "admin_moderator_gm_player"
	LevelAll                    RoleLevel = "all"
)

// Includes reports whether the level admits role. The zero Role stands for an
// anonymous visitor and is admitted only by LevelAll.
func (l RoleLevel) Includes(role Role) (bool, error) {
	var min int
	switch l {
	case LevelAdmin:
		min = RoleAdmin.Rank()
	case LevelAdminModerator:
		min = RoleModerator.Rank()
	case LevelAdminModeratorGM:
		min = RoleGameMaster.Rank()
	case LevelAdminModeratorGMPlayer:
		min = RolePlayer.Rank()
	case LevelAll:
		return true, nil
	default:
		return false, fmt.Errorf("unknown role level %q", l)
	}
	return role.Rank() >= min, nil
}

type CharacterRequirement string

const (
	RequireNone          CharacterRequirement = "none"
	RequireAlive         CharacterRequirement = "alive"
	RequireClanMember    CharacterRequirement = "clan_member"
	RequireFactionMember CharacterRequirement = "faction_member"
	RequireClanLeader    CharacterRequirement = "clan_leader"
)

type AuthorCharacterMode string

const (
	AuthorExclusive AuthorCharacterMode = "exclusive"
	AuthorInclusive AuthorCharacterMode = "inclusive"
)

// ForumRule is the attribute part of a ForumPermission record.
type ForumRule struct {
	RoleLevel                 RoleLevel            `gorm:"type:varchar(64);not null" json:"role_level"`
	AllowAuthor               bool                 `gorm:"not null" json:"allow_author"`
	CharacterRequirement      CharacterRequirement `gorm:"type:varchar(32);not null" json:"character_requirement"`
	RequiredFactionID         *uint                `json:"required_faction_id"`
	RequiredClanID            *uint                `json:"required_clan_id"`
	EnableAuthorCharacterRule bool                 `gorm:"not null" json:"enable_author_character_rule"`
	AuthorCharacterMode       AuthorCharacterMode  `gorm:"type:varchar(16)" json:"author_character_mode"`
	RequireTermsAccepted      bool                 `gorm:"not null" json:"require_terms_accepted"`
}

// Validate checks that every enumerated field holds a known value.
func (r ForumRule) Validate() error {
	if _, err := r.RoleLevel.Includes(RolePlayer); err != nil {
		return err
	}
	switch r.CharacterRequirement {
	case RequireNone, RequireAlive, RequireClanMember, RequireFactionMember, RequireClanLeader, "":
	default:
		return fmt.Errorf("unknown character requirement %q", r.CharacterRequirement)
	}
	if r.EnableAuthorCharacterRule {
		switch r.AuthorCharacterMode {
		case AuthorExclusive, AuthorInclusive:
		default:
			return fmt.Errorf("unknown author character mode %q", r.AuthorCharacterMode)
		}
	}
	return nil
}

// ForumPermission stores an attribute rule for one operation on one entity.
type ForumPermission struct {
	ID            uint       `gorm:"primaryKey" json:"id"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
	EntityType    EntityType `gorm:"type:varchar(16);not null;uniqueIndex:idx_forum_permission" json:"entity_type"`
	EntityID      uint       `gorm:"not null;uniqueIndex:idx_forum_permission" json:"entity_id"`
	OperationType Operation  `gorm:"type:varchar(32);not null;uniqueIndex:idx_forum_permission" json:"operation_type"`
	ForumRule     `gorm:"embedded"`
}

func (p *ForumPermission) Entity() EntityRef {
	return EntityRef{Type: p.EntityType, ID: p.EntityID}
}
