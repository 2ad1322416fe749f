package character

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rpg-forum/internal/model"
	"rpg-forum/internal/store"
)

func uintPtr(v uint) *uint { return &v }

const userID = 1

func world(t *testing.T) *store.Memory {
	t.Helper()
	m := store.NewMemory()
	m.PutUser(model.User{ID: userID, Username: "ana", Role: model.RolePlayer, IsActive: true})
	m.PutFaction(model.Faction{ID: 7, Name: "Mutants", IsActive: true})
	m.PutClan(model.Clan{ID: 10, Name: "Rats", FactionID: uintPtr(7), LeaderID: uintPtr(100), IsActive: true})
	m.PutClan(model.Clan{ID: 11, Name: "Drifters", LeaderID: uintPtr(101), IsActive: true})
	return m
}

func TestResolve_Statuses(t *testing.T) {
	now := time.Now()
	tests := []struct {
		name string
		char *model.Character
		want Status
	}{
		{"faction clan leader", &model.Character{ID: 100, ClanID: uintPtr(10)}, FactionClanLeader},
		{"neutral clan leader", &model.Character{ID: 101, ClanID: uintPtr(11)}, NeutralClanLeader},
		{"faction clan member", &model.Character{ID: 102, ClanID: uintPtr(10)}, FactionClanMember},
		{"neutral clan member", &model.Character{ID: 103, ClanID: uintPtr(11)}, NeutralClanMember},
		{"faction without clan", &model.Character{ID: 104, FactionID: uintPtr(7)}, FactionNoClan},
		{"no faction no clan", &model.Character{ID: 105}, NoFactionNoClan},
		{"no character", nil, NoAliveCharacter},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := world(t)
			if tt.char != nil {
				c := *tt.char
				c.UserID = uintPtr(userID)
				c.IsAlive = true
				c.IsActive = true
				c.CreatedAt = now
				m.PutCharacter(c)
			}
			st, err := NewResolver(m).Resolve(context.Background(), userID)
			require.NoError(t, err)
			assert.Equal(t, tt.want, st.Status)
			assert.Equal(t, CapabilitiesFor(tt.want), st.Capabilities)
			assert.Equal(t, tt.char != nil, st.HasAliveCharacter())
		})
	}
}

func TestResolve_NewestAliveWins(t *testing.T) {
	m := world(t)
	now := time.Now()
	m.PutCharacter(model.Character{ID: 1, UserID: uintPtr(userID), ClanID: uintPtr(10), IsAlive: true, IsActive: true, CreatedAt: now.Add(-2 * time.Hour)})
	m.PutCharacter(model.Character{ID: 2, UserID: uintPtr(userID), FactionID: uintPtr(7), IsAlive: true, IsActive: true, CreatedAt: now.Add(-time.Hour)})
	m.PutCharacter(model.Character{ID: 3, UserID: uintPtr(userID), IsAlive: false, IsActive: true, CreatedAt: now})

	st, err := NewResolver(m).Resolve(context.Background(), userID)
	require.NoError(t, err)
	require.NotNil(t, st.Active)
	assert.Equal(t, uint(2), st.Active.ID)
	assert.Equal(t, FactionNoClan, st.Status)
	assert.Len(t, st.Alive, 2)
}

func TestResolve_TieBrokenByID(t *testing.T) {
	m := world(t)
	ts := time.Now()
	m.PutCharacter(model.Character{ID: 4, UserID: uintPtr(userID), IsAlive: true, IsActive: true, CreatedAt: ts})
	m.PutCharacter(model.Character{ID: 5, UserID: uintPtr(userID), FactionID: uintPtr(7), IsAlive: true, IsActive: true, CreatedAt: ts})

	st, err := NewResolver(m).Resolve(context.Background(), userID)
	require.NoError(t, err)
	assert.Equal(t, uint(5), st.Active.ID)
}

func TestResolve_Idempotent(t *testing.T) {
	m := world(t)
	m.PutCharacter(model.Character{ID: 100, UserID: uintPtr(userID), ClanID: uintPtr(10), IsAlive: true, IsActive: true, CreatedAt: time.Now()})
	r := NewResolver(m)

	first, err := r.Resolve(context.Background(), userID)
	require.NoError(t, err)
	second, err := r.Resolve(context.Background(), userID)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestResolve_DeathChangesStatusImmediately(t *testing.T) {
	m := world(t)
	c := model.Character{ID: 100, UserID: uintPtr(userID), ClanID: uintPtr(10), IsAlive: true, IsActive: true, CreatedAt: time.Now()}
	m.PutCharacter(c)
	r := NewResolver(m)

	st, err := r.Resolve(context.Background(), userID)
	require.NoError(t, err)
	assert.Equal(t, FactionClanLeader, st.Status)

	c.IsAlive = false
	m.PutCharacter(c)
	st, err = r.Resolve(context.Background(), userID)
	require.NoError(t, err)
	assert.Equal(t, NoAliveCharacter, st.Status)
	assert.False(t, st.Capabilities.CanAccessRoleplayCategory)
}

type failingDirectory struct{ store.Directory }

func (failingDirectory) AliveCharacters(context.Context, uint) ([]model.Character, error) {
	return nil, errors.New("db down")
}

func TestResolve_FailurePropagates(t *testing.T) {
	_, err := NewResolver(failingDirectory{}).Resolve(context.Background(), userID)
	assert.ErrorIs(t, err, ErrResolution)
}

func TestResolve_MissingClanIsAnError(t *testing.T) {
	m := world(t)
	m.PutCharacter(model.Character{ID: 9, UserID: uintPtr(userID), ClanID: uintPtr(404), IsAlive: true, IsActive: true})

	_, err := NewResolver(m).Resolve(context.Background(), userID)
	assert.ErrorIs(t, err, ErrResolution)
}

func TestCapabilitiesTable(t *testing.T) {
	tests := []struct {
		status                  Status
		faction, neutral, admin bool
		rp                      bool
		topics, posts           int
	}{
		{FactionClanLeader, true, false, true, true, 20, 100},
		{NeutralClanLeader, false, true, true, true, 20, 100},
		{FactionClanMember, true, false, false, true, 10, 75},
		{NeutralClanMember, false, true, false, true, 10, 75},
		{FactionNoClan, true, false, false, true, 7, 50},
		{NoFactionNoClan, false, false, false, true, 3, 20},
		{NoAliveCharacter, false, false, false, false, 0, 0},
	}
	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			c := CapabilitiesFor(tt.status)
			assert.Equal(t, tt.faction, c.CanPostInFactionSections)
			assert.Equal(t, tt.neutral, c.CanPostInNeutralSections)
			assert.Equal(t, tt.admin, c.CanManageClanSections)
			assert.Equal(t, tt.admin, c.CanCreateClanSubsections)
			assert.Equal(t, tt.admin, c.CanLockClanTopics)
			assert.Equal(t, tt.admin, c.CanPinClanTopics)
			assert.Equal(t, tt.rp, c.CanAccessRoleplayCategory)
			assert.Equal(t, tt.topics, c.MaxTopicsPerDay)
			assert.Equal(t, tt.posts, c.MaxPostsPerDay)
		})
	}
}
