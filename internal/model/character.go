package model

import "time"

// Faction is the top level grouping a clan or character may belong to.
type Faction struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	Name      string    `gorm:"uniqueIndex;not null" json:"name"`
	IsActive  bool      `gorm:"not null" json:"is_active"`
}

// Clan belongs to zero or one faction. A nil FactionID marks an independent clan.
type Clan struct {
	ID            uint      `gorm:"primaryKey" json:"id"`
	CreatedAt     time.Time `json:"created_at"`
	Name          string    `gorm:"uniqueIndex;not null" json:"name"`
	FactionID     *uint     `gorm:"index" json:"faction_id"`
	LeaderID      *uint     `json:"leader_id"`
	IsPlayable    bool      `json:"is_playable"`
	IsRecruitable bool      `json:"is_recruitable"`
	IsActive      bool      `gorm:"not null" json:"is_active"`

	Faction *Faction `gorm:"foreignKey:FactionID" json:"faction,omitempty"`
}

// Character is owned by a user (nil for NPCs).
type Character struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time `gorm:"index" json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	Name      string    `gorm:"not null" json:"name"`
	UserID    *uint     `gorm:"index" json:"user_id"`
	FactionID *uint     `gorm:"index" json:"faction_id"`
	ClanID    *uint     `gorm:"index" json:"clan_id"`
	IsAlive   bool      `gorm:"not null;index" json:"is_alive"`
	Level     int       `gorm:"default:1" json:"level"`
	IsActive  bool      `gorm:"not null" json:"is_active"`

	Faction *Faction `gorm:"foreignKey:FactionID" json:"faction,omitempty"`
	Clan    *Clan    `gorm:"foreignKey:ClanID" json:"clan,omitempty"`
}

// EffectiveFactionID is the character's own faction, falling back to its clan's faction.
func (c *Character) EffectiveFactionID() *uint {
	if c.FactionID != nil {
		return c.FactionID
	}
	if c.Clan != nil {
		return c.Clan.FactionID
	}
	return nil
}

// LeadsClan reports whether the character is the leader of its own clan.
func (c *Character) LeadsClan() bool {
	return c.Clan != nil && c.Clan.LeaderID != nil && *c.Clan.LeaderID == c.ID
}
