package character

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"rpg-forum/internal/model"
	"rpg-forum/internal/store"
)

// ErrResolution wraps any failure to load the data a standing is derived from.
var ErrResolution = errors.New("status resolution failed")

// Standing is a user's derived status together with the characters it came from.
type Standing struct {
	Status       Status            `json:"status"`
	Capabilities Capabilities      `json:"capabilities"`
	Active       *model.Character  `json:"active_character"`
	Alive        []model.Character `json:"-"`
}

// Derive computes the standing from alive characters ordered newest first.
// The first entry is the active character.
func Derive(alive []model.Character) *Standing {
	st := &Standing{Alive: alive}
	if len(alive) == 0 {
		st.Status = NoAliveCharacter
		st.Capabilities = CapabilitiesFor(st.Status)
		return st
	}
	active := alive[0]
	st.Active = &active
	st.Status = statusOf(&active)
	st.Capabilities = CapabilitiesFor(st.Status)
	return st
}

func statusOf(c *model.Character) Status {
	if c.ClanID != nil && c.Clan != nil {
		factionClan := c.Clan.FactionID != nil
		switch {
		case c.LeadsClan() && factionClan:
			return FactionClanLeader
		case c.LeadsClan():
			return NeutralClanLeader
		case factionClan:
			return FactionClanMember
		default:
			return NeutralClanMember
		}
	}
	if c.FactionID != nil {
		return FactionNoClan
	}
	return NoFactionNoClan
}

func (s *Standing) HasAliveCharacter() bool { return s.Active != nil }

// IsClanLeader reports whether the active character leads its clan.
func (s *Standing) IsClanLeader() bool {
	return s.Active != nil && s.Active.LeadsClan()
}

// LeadsClan reports whether the active character is the leader of clanID.
func (s *Standing) LeadsClan(clanID uint) bool {
	return s.IsClanLeader() && *s.Active.ClanID == clanID
}

// AnyAlive reports whether some alive character satisfies fn.
func (s *Standing) AnyAlive(fn func(*model.Character) bool) bool {
	for i := range s.Alive {
		if fn(&s.Alive[i]) {
			return true
		}
	}
	return false
}

type Resolver struct {
	dir    store.Directory
	logger *zap.Logger
}

type Option func(*Resolver)

func WithLogger(l *zap.Logger) Option {
	return func(r *Resolver) { r.logger = l }
}

func NewResolver(dir store.Directory, opts ...Option) *Resolver {
	r := &Resolver{dir: dir, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve reads the user's alive characters and derives their standing. Every
// call reads current state.
func (r *Resolver) Resolve(ctx context.Context, userID uint) (*Standing, error) {
	alive, err := r.dir.AliveCharacters(ctx, userID)
	if err != nil {
		r.logger.Warn("character status lookup failed", zap.Uint("user_id", userID), zap.Error(err))
		return nil, fmt.Errorf("%w: user %d: %w", ErrResolution, userID, err)
	}
	for i := range alive {
		if alive[i].ClanID != nil && alive[i].Clan == nil {
			return nil, fmt.Errorf("%w: character %d references missing clan %d", ErrResolution, alive[i].ID, *alive[i].ClanID)
		}
	}
	return Derive(alive), nil
}
