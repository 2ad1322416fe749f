package access

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rpg-forum/internal/character"
	"rpg-forum/internal/model"
	"rpg-forum/internal/store"
)

func uintPtr(v uint) *uint { return &v }

var (
	cats     = Categories{General: "general", HRP: "hrp", Roleplay: "roleplay"}
	general  = &model.Category{ID: 1, Slug: "general"}
	hrp      = &model.Category{ID: 2, Slug: "hrp"}
	roleplay = &model.Category{ID: 3, Slug: "roleplay"}
)

func player(alive ...model.Character) *Viewer {
	return &Viewer{User: &model.User{ID: 1, Role: model.RolePlayer, IsActive: true}, Alive: alive}
}

func staff(role model.Role) *Viewer {
	return &Viewer{User: &model.User{ID: 2, Role: role, IsActive: true}}
}

func TestCanAccessSection_CategoryRules(t *testing.T) {
	f := NewFilter(cats)
	open := &model.Section{ID: 1}

	assert.True(t, f.CanAccessSection(Anonymous(), open, general))
	assert.True(t, f.CanAccessSection(nil, open, general))
	assert.False(t, f.CanAccessSection(Anonymous(), open, hrp))
	assert.True(t, f.CanAccessSection(player(), open, hrp))
	assert.False(t, f.CanAccessSection(Anonymous(), open, roleplay))
}

func TestCanAccessSection_UnrestrictedNeedsAliveCharacter(t *testing.T) {
	f := NewFilter(cats)
	open := &model.Section{ID: 1}

	assert.False(t, f.CanAccessSection(player(), open, roleplay))
	assert.True(t, f.CanAccessSection(player(model.Character{ID: 5, IsAlive: true}), open, roleplay))
}

func TestCanAccessSection_FactionRestricted(t *testing.T) {
	f := NewFilter(cats)
	s := &model.Section{ID: 1, VisibleByFactionID: uintPtr(7)}

	assert.True(t, f.CanAccessSection(player(model.Character{ID: 1, FactionID: uintPtr(7)}), s, roleplay))
	assert.False(t, f.CanAccessSection(player(model.Character{ID: 1, FactionID: uintPtr(8)}), s, roleplay))
	assert.False(t, f.CanAccessSection(player(), s, roleplay))
	for _, role := range []model.Role{model.RoleAdmin, model.RoleModerator, model.RoleGameMaster} {
		assert.True(t, f.CanAccessSection(staff(role), s, roleplay), role)
	}
}

func TestCanAccessSection_AnyAliveCharacterCounts(t *testing.T) {
	f := NewFilter(cats)
	s := &model.Section{ID: 1, VisibleByClanID: uintPtr(10)}
	v := player(
		model.Character{ID: 2, ClanID: uintPtr(11)},
		model.Character{ID: 1, ClanID: uintPtr(10)},
	)
	assert.True(t, f.CanAccessSection(v, s, roleplay))
	assert.False(t, f.CanAccessSection(player(model.Character{ID: 2, ClanID: uintPtr(11)}), s, roleplay))
}

func TestFilterSections_DeniedParentPrunesSubtree(t *testing.T) {
	f := NewFilter(cats)
	v := player(model.Character{ID: 1, FactionID: uintPtr(7), ClanID: uintPtr(10)})

	tree := []model.Section{{
		ID: 1,
		Subsections: []model.Section{{
			ID:              2,
			VisibleByClanID: uintPtr(99),
			Subsections: []model.Section{
				// would pass on its own
				{ID: 3, VisibleByFactionID: uintPtr(7)},
			},
		}, {
			ID:                 4,
			VisibleByFactionID: uintPtr(7),
		}},
	}}

	got := f.FilterSections(v, tree, roleplay)
	require.Len(t, got, 1)
	assert.Equal(t, uint(1), got[0].ID)
	require.Len(t, got[0].Subsections, 1)
	assert.Equal(t, uint(4), got[0].Subsections[0].ID)

	// input is not mutated
	assert.Len(t, tree[0].Subsections, 2)
}

func TestLoadViewer(t *testing.T) {
	m := store.NewMemory()
	m.PutCharacter(model.Character{ID: 1, UserID: uintPtr(1), FactionID: uintPtr(7), IsAlive: true, IsActive: true, CreatedAt: time.Now()})
	r := character.NewResolver(m)
	ctx := context.Background()

	v, err := LoadViewer(ctx, r, &model.User{ID: 1, Role: model.RolePlayer})
	require.NoError(t, err)
	assert.Len(t, v.Alive, 1)

	m.ResetCalls()
	v, err = LoadViewer(ctx, r, &model.User{ID: 2, Role: model.RoleModerator})
	require.NoError(t, err)
	assert.Empty(t, v.Alive)
	assert.Zero(t, m.Calls())

	v, err = LoadViewer(ctx, r, nil)
	require.NoError(t, err)
	assert.Nil(t, v.User)
}
