package permission

import (
	"strings"

	"rpg-forum/internal/character"
	"rpg-forum/internal/model"
)

// Permission names understood by the forum actions.
const (
	SectionCreate = "section.create"
	SectionEdit   = "section.edit"
	SectionDelete = "section.delete"
	SectionMove   = "section.move"

	SubsectionCreate = "subsection.create"
	SubsectionEdit   = "subsection.edit"
	SubsectionDelete = "subsection.delete"

	TopicView   = "topic.view"
	TopicCreate = "topic.create"
	TopicEdit   = "topic.edit"
	TopicDelete = "topic.delete"
	TopicMove   = "topic.move"
	TopicLock   = "topic.lock"
	TopicUnlock = "topic.unlock"
	TopicPin    = "topic.pin"
	TopicUnpin  = "topic.unpin"

	PostCreate = "post.create"
	PostEdit   = "post.edit"
	PostDelete = "post.delete"
)

// Catalog is the seed content of the permission catalog.
var Catalog = []string{
	SectionCreate, SectionEdit, SectionDelete, SectionMove,
	SubsectionCreate, SubsectionEdit, SubsectionDelete,
	TopicView, TopicCreate, TopicEdit, TopicDelete, TopicMove,
	TopicLock, TopicUnlock, TopicPin, TopicUnpin,
	PostCreate, PostEdit, PostDelete,
}

// DefaultRoleGrants is the seed content of the global role table. Admins are
// never listed because they are never denied.
func DefaultRoleGrants() map[model.Role][]string {
	player := []string{TopicView, TopicCreate, PostCreate}
	gm := append([]string{
		TopicEdit, TopicDelete, TopicLock, TopicUnlock, TopicPin, TopicUnpin,
		PostEdit, PostDelete, SubsectionCreate, SubsectionEdit,
	}, player...)
	moderator := append([]string{
		SectionCreate, SectionEdit, SectionDelete, SectionMove,
		SubsectionDelete, TopicMove,
	}, gm...)
	return map[model.Role][]string{
		model.RolePlayer:     player,
		model.RoleGameMaster: gm,
		model.RoleModerator:  moderator,
	}
}

type action struct {
	mutating     bool
	editOrDelete bool
}

var mutatingVerbs = map[string]bool{
	"create": true, "edit": true, "delete": true, "move": true,
	"lock": true, "unlock": true, "pin": true, "unpin": true,
}

func parseAction(name string) action {
	var a action
	tokens := strings.FieldsFunc(strings.ToLower(name), func(r rune) bool {
		return r == '.' || r == '_' || r == '-' || r == ':'
	})
	for _, tok := range tokens {
		if mutatingVerbs[tok] {
			a.mutating = true
		}
		if tok == "edit" || tok == "delete" {
			a.editOrDelete = true
		}
	}
	return a
}

// IsMutating reports whether name carries a verb that changes forum content.
func IsMutating(name string) bool { return parseAction(name).mutating }

// clanPower returns the capability that lets a clan leader perform name inside
// their own clan's sections.
func clanPower(name string) (func(character.Capabilities) bool, bool) {
	switch name {
	case SubsectionCreate:
		return func(c character.Capabilities) bool { return c.CanCreateClanSubsections }, true
	case SubsectionEdit:
		return func(c character.Capabilities) bool { return c.CanEditClanSubsections }, true
	case SubsectionDelete:
		return func(c character.Capabilities) bool { return c.CanDeleteClanSubsections }, true
	case TopicLock, TopicUnlock:
		return func(c character.Capabilities) bool { return c.CanLockClanTopics }, true
	case TopicPin, TopicUnpin:
		return func(c character.Capabilities) bool { return c.CanPinClanTopics }, true
	}
	return nil, false
}
