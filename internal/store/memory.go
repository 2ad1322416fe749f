package store

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"rpg-forum/internal/apperr"
	"rpg-forum/internal/model"
)

type ruleKey struct {
	ref model.EntityRef
	op  model.Operation
}

type roleKey struct {
	role model.Role
	name string
}

// Memory is an id-indexed in-process Store. It is safe for concurrent use and
// counts every read so callers can assert how many lookups a check performed.
type Memory struct {
	mu sync.RWMutex

	users      map[uint]model.User
	factions   map[uint]model.Faction
	clans      map[uint]model.Clan
	characters map[uint]model.Character
	categories map[uint]model.Category
	sections   map[uint]model.Section
	topics     map[uint]model.Topic
	posts      map[uint]model.Post

	permissions      map[string]bool
	rolePermissions  map[roleKey]bool
	sectionOverrides []model.SectionPermission
	topicOverrides   []model.TopicPermission
	forumRules       map[ruleKey]model.ForumPermission
	permissionNames  map[uint]string
	nextPermissionID uint

	calls atomic.Int64
}

func NewMemory() *Memory {
	return &Memory{
		users:           make(map[uint]model.User),
		factions:        make(map[uint]model.Faction),
		clans:           make(map[uint]model.Clan),
		characters:      make(map[uint]model.Character),
		categories:      make(map[uint]model.Category),
		sections:        make(map[uint]model.Section),
		topics:          make(map[uint]model.Topic),
		posts:           make(map[uint]model.Post),
		permissions:     make(map[string]bool),
		rolePermissions: make(map[roleKey]bool),
		forumRules:      make(map[ruleKey]model.ForumPermission),
		permissionNames: make(map[uint]string),
	}
}

// Calls returns the number of reads served so far.
func (m *Memory) Calls() int64 { return m.calls.Load() }

// ResetCalls zeroes the read counter.
func (m *Memory) ResetCalls() { m.calls.Store(0) }

func (m *Memory) read() func() {
	m.calls.Add(1)
	m.mu.RLock()
	return m.mu.RUnlock
}

func (m *Memory) PutUser(u model.User) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users[u.ID] = u
}

func (m *Memory) PutFaction(f model.Faction) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.factions[f.ID] = f
}

func (m *Memory) PutClan(c model.Clan) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.clans[c.ID] = c
}

func (m *Memory) PutCharacter(c model.Character) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.characters[c.ID] = c
}

func (m *Memory) PutCategory(c model.Category) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.categories[c.ID] = c
}

func (m *Memory) PutSection(s model.Section) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sections[s.ID] = s
}

func (m *Memory) PutTopic(t model.Topic) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.topics[t.ID] = t
}

func (m *Memory) PutPost(p model.Post) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.posts[p.ID] = p
}

// AddPermissions registers catalog names.
func (m *Memory) AddPermissions(names ...string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, name := range names {
		if m.permissions[name] {
			continue
		}
		m.permissions[name] = true
		m.nextPermissionID++
		m.permissionNames[m.nextPermissionID] = name
	}
}

func (m *Memory) permissionIDLocked(name string) uint {
	for id, n := range m.permissionNames {
		if n == name {
			return id
		}
	}
	return 0
}

func (m *Memory) SetRolePermission(role model.Role, name string, granted bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rolePermissions[roleKey{role, name}] = granted
}

// AddSectionOverride stores the record as given, including malformed ones. The
// permission is addressed by name; PermissionID is filled in.
func (m *Memory) AddSectionOverride(name string, p model.SectionPermission) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p.PermissionID = m.permissionIDLocked(name)
	p.ID = uint(len(m.sectionOverrides) + 1)
	m.sectionOverrides = append(m.sectionOverrides, p)
}

func (m *Memory) AddTopicOverride(name string, p model.TopicPermission) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p.PermissionID = m.permissionIDLocked(name)
	p.ID = uint(len(m.topicOverrides) + 1)
	m.topicOverrides = append(m.topicOverrides, p)
}

func (m *Memory) SetForumRule(ref model.EntityRef, op model.Operation, rule model.ForumRule) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.forumRules[ruleKey{ref, op}] = model.ForumPermission{
		ID:            uint(len(m.forumRules) + 1),
		EntityType:    ref.Type,
		EntityID:      ref.ID,
		OperationType: op,
		ForumRule:     rule,
	}
}

func (m *Memory) User(_ context.Context, id uint) (*model.User, error) {
	defer m.read()()
	u, ok := m.users[id]
	if !ok {
		return nil, apperr.NotFoundf("user %d", id)
	}
	return &u, nil
}

func (m *Memory) AliveCharacters(_ context.Context, userID uint) ([]model.Character, error) {
	defer m.read()()
	var out []model.Character
	for _, c := range m.characters {
		if c.UserID == nil || *c.UserID != userID || !c.IsAlive || !c.IsActive {
			continue
		}
		if c.FactionID != nil {
			if f, ok := m.factions[*c.FactionID]; ok {
				c.Faction = &f
			}
		}
		if c.ClanID != nil {
			if clan, ok := m.clans[*c.ClanID]; ok {
				if clan.FactionID != nil {
					if f, ok := m.factions[*clan.FactionID]; ok {
						clan.Faction = &f
					}
				}
				c.Clan = &clan
			}
		}
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	return out, nil
}

func (m *Memory) Category(_ context.Context, id uint) (*model.Category, error) {
	defer m.read()()
	c, ok := m.categories[id]
	if !ok {
		return nil, apperr.NotFoundf("category %d", id)
	}
	return &c, nil
}

func (m *Memory) Section(_ context.Context, id uint) (*model.Section, error) {
	defer m.read()()
	s, ok := m.sections[id]
	if !ok {
		return nil, apperr.NotFoundf("section %d", id)
	}
	return &s, nil
}

func (m *Memory) Topic(_ context.Context, id uint) (*model.Topic, error) {
	defer m.read()()
	t, ok := m.topics[id]
	if !ok {
		return nil, apperr.NotFoundf("topic %d", id)
	}
	return &t, nil
}

func (m *Memory) SectionTree(_ context.Context, categoryID uint) ([]model.Section, error) {
	defer m.read()()
	var flat []model.Section
	for _, s := range m.sections {
		if s.IsActive {
			flat = append(flat, s)
		}
	}
	sort.Slice(flat, func(i, j int) bool {
		if flat[i].Order != flat[j].Order {
			return flat[i].Order < flat[j].Order
		}
		return flat[i].ID < flat[j].ID
	})
	return BuildTree(flat, categoryID), nil
}

func (m *Memory) PermissionExists(_ context.Context, name string) (bool, error) {
	defer m.read()()
	return m.permissions[name], nil
}

func (m *Memory) RolePermission(_ context.Context, role model.Role, name string) (model.Effect, error) {
	defer m.read()()
	granted, ok := m.rolePermissions[roleKey{role, name}]
	if !ok {
		return model.NoOpinion, nil
	}
	return model.EffectOf(granted), nil
}

func matches(role *model.Role, userID *uint, sub Subject) bool {
	if sub.IsUser() {
		return userID != nil && *userID == sub.UserID
	}
	return role != nil && *role == sub.Role
}

func (m *Memory) TopicOverride(_ context.Context, topicID uint, sub Subject, name string) (model.Effect, error) {
	defer m.read()()
	permID := m.permissionIDLocked(name)
	if permID == 0 {
		return model.NoOpinion, nil
	}
	for i := range m.topicOverrides {
		p := &m.topicOverrides[i]
		if p.TopicID != topicID || p.PermissionID != permID || p.Malformed() || !matches(p.Role, p.UserID, sub) {
			continue
		}
		return model.EffectOf(p.Granted), nil
	}
	return model.NoOpinion, nil
}

func (m *Memory) SectionOverride(_ context.Context, sectionID uint, sub Subject, name string) (Override, error) {
	defer m.read()()
	permID := m.permissionIDLocked(name)
	if permID == 0 {
		return Override{}, nil
	}
	for i := range m.sectionOverrides {
		p := &m.sectionOverrides[i]
		if p.SectionID != sectionID || p.PermissionID != permID || p.Malformed() || !matches(p.Role, p.UserID, sub) {
			continue
		}
		return Override{Effect: model.EffectOf(p.Granted), Inherit: p.InheritToSubsections}, nil
	}
	return Override{}, nil
}

func (m *Memory) ForumRule(_ context.Context, ref model.EntityRef, op model.Operation) (*model.ForumPermission, error) {
	defer m.read()()
	fp, ok := m.forumRules[ruleKey{ref, op}]
	if !ok {
		return nil, nil
	}
	return &fp, nil
}

func (m *Memory) CountTopicsSince(_ context.Context, userID uint, since time.Time) (int64, error) {
	defer m.read()()
	var n int64
	for _, t := range m.topics {
		if t.AuthorUserID != nil && *t.AuthorUserID == userID && t.IsActive && !t.CreatedAt.Before(since) {
			n++
		}
	}
	return n, nil
}

func (m *Memory) CountPostsSince(_ context.Context, userID uint, since time.Time) (int64, error) {
	defer m.read()()
	var n int64
	for _, p := range m.posts {
		if p.AuthorUserID != nil && *p.AuthorUserID == userID && p.IsActive && !p.CreatedAt.Before(since) {
			n++
		}
	}
	return n, nil
}

var (
	_ Store = (*Memory)(nil)
	_ Store = (*Gorm)(nil)
)
