// Package store is the read side of the permission engine: exact-match lookups of
// users, characters, forum nodes and permission records. It holds no policy.
package store

import (
	"context"
	"time"

	"rpg-forum/internal/model"
)

// Subject selects the user-scoped or the role-scoped variant of an override.
type Subject struct {
	UserID uint
	Role   model.Role
}

func UserSubject(id uint) Subject { return Subject{UserID: id} }
func RoleSubject(r model.Role) Subject { return Subject{Role: r} }

func (s Subject) IsUser() bool { return s.UserID != 0 }

// Override is a section-level opinion plus its propagation flag.
type Override struct {
	Effect  model.Effect
	Inherit bool
}

// Directory reads users and their characters.
type Directory interface {
	User(ctx context.Context, id uint) (*model.User, error)
	// AliveCharacters returns the user's alive characters, newest first, with
	// Clan, Clan.Faction and Faction loaded.
	AliveCharacters(ctx context.Context, userID uint) ([]model.Character, error)
}

// Tree reads forum nodes.
type Tree interface {
	Category(ctx context.Context, id uint) (*model.Category, error)
	Section(ctx context.Context, id uint) (*model.Section, error)
	Topic(ctx context.Context, id uint) (*model.Topic, error)
	// SectionTree returns the active top-level sections of a category with their
	// active subsections nested.
	SectionTree(ctx context.Context, categoryID uint) ([]model.Section, error)
}

// Rules reads permission records. Absent or malformed records yield NoOpinion.
type Rules interface {
	PermissionExists(ctx context.Context, name string) (bool, error)
	RolePermission(ctx context.Context, role model.Role, name string) (model.Effect, error)
	TopicOverride(ctx context.Context, topicID uint, sub Subject, name string) (model.Effect, error)
	SectionOverride(ctx context.Context, sectionID uint, sub Subject, name string) (Override, error)
	// ForumRule returns nil without error when the entity has no record for op.
	ForumRule(ctx context.Context, ref model.EntityRef, op model.Operation) (*model.ForumPermission, error)
}

// Activity counts recent content for quota checks.
type Activity interface {
	CountTopicsSince(ctx context.Context, userID uint, since time.Time) (int64, error)
	CountPostsSince(ctx context.Context, userID uint, since time.Time) (int64, error)
}

type Store interface {
	Directory
	Tree
	Rules
	Activity
}
