// Package access decides which forum sections a visitor may see, based on
// category visibility, staff role and faction or clan restrictions.
package access

import (
	"context"

	"rpg-forum/internal/character"
	"rpg-forum/internal/model"
)

// Categories holds the slugs of the categories with fixed visibility.
type Categories struct {
	General  string
	HRP      string
	Roleplay string
}

func (c Categories) IsGeneral(cat *model.Category) bool {
	return cat != nil && cat.Slug == c.General
}

func (c Categories) IsHRP(cat *model.Category) bool {
	return cat != nil && cat.Slug == c.HRP
}

func (c Categories) IsRoleplay(cat *model.Category) bool {
	return cat != nil && cat.Slug == c.Roleplay
}

// Viewer is the visitor a section is filtered for. A nil User is anonymous.
type Viewer struct {
	User  *model.User
	Alive []model.Character
}

func Anonymous() *Viewer { return &Viewer{} }

// ViewerFrom builds a viewer from an already resolved standing.
func ViewerFrom(user *model.User, st *character.Standing) *Viewer {
	v := &Viewer{User: user}
	if st != nil {
		v.Alive = st.Alive
	}
	return v
}

// LoadViewer resolves the alive characters of user. Anonymous visitors and
// staff need no lookup.
func LoadViewer(ctx context.Context, r *character.Resolver, user *model.User) (*Viewer, error) {
	if user == nil || user.Role.IsStaff() {
		return &Viewer{User: user}, nil
	}
	st, err := r.Resolve(ctx, user.ID)
	if err != nil {
		return nil, err
	}
	return ViewerFrom(user, st), nil
}

type Filter struct {
	cats Categories
}

func NewFilter(cats Categories) *Filter {
	return &Filter{cats: cats}
}

func (f *Filter) Categories() Categories { return f.cats }

// CanAccessSection applies the visibility rules in order; the first match wins.
func (f *Filter) CanAccessSection(v *Viewer, section *model.Section, category *model.Category) bool {
	if v == nil {
		v = Anonymous()
	}
	switch {
	case f.cats.IsGeneral(category):
		return true
	case f.cats.IsHRP(category):
		return v.User != nil
	case v.User == nil:
		return false
	case v.User.Role.IsStaff():
		return true
	case section == nil:
		return false
	case !section.Restricted():
		return len(v.Alive) > 0
	case section.VisibleByFactionID != nil:
		return v.anyAlive(func(c *model.Character) bool {
			return c.FactionID != nil && *c.FactionID == *section.VisibleByFactionID
		})
	case section.VisibleByClanID != nil:
		return v.anyAlive(func(c *model.Character) bool {
			return c.ClanID != nil && *c.ClanID == *section.VisibleByClanID
		})
	}
	return false
}

func (v *Viewer) anyAlive(fn func(*model.Character) bool) bool {
	for i := range v.Alive {
		if fn(&v.Alive[i]) {
			return true
		}
	}
	return false
}

// FilterSections returns the sections the viewer may see. A denied section is
// dropped with its whole subtree; its children are never checked on their own.
func (f *Filter) FilterSections(v *Viewer, sections []model.Section, category *model.Category) []model.Section {
	out := make([]model.Section, 0, len(sections))
	for _, sec := range sections {
		if !f.CanAccessSection(v, &sec, category) {
			continue
		}
		sec.Subsections = f.FilterSections(v, sec.Subsections, category)
		out = append(out, sec)
	}
	return out
}
