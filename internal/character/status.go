// Package character derives a user's standing in the game world from their
// alive characters: clan and faction membership, clan leadership and the
// capabilities and daily quotas that follow from it.
package character

// Status is the closed set of standings a user can have.
type Status string

const (
	FactionClanLeader Status = "faction_clan_leader"
	NeutralClanLeader Status = "neutral_clan_leader"
	FactionClanMember Status = "faction_clan_member"
	NeutralClanMember Status = "neutral_clan_member"
	FactionNoClan     Status = "faction_no_clan"
	NoFactionNoClan   Status = "no_faction_no_clan"
	NoAliveCharacter  Status = "no_alive_character"
)

// Statuses lists every status, most privileged first.
var Statuses = []Status{
	FactionClanLeader, NeutralClanLeader,
	FactionClanMember, NeutralClanMember,
	FactionNoClan, NoFactionNoClan, NoAliveCharacter,
}

// Capabilities is what a status allows. Values come from a fixed table.
type Capabilities struct {
	CanCreatePrivateSections  bool `json:"can_create_private_sections"`
	CanManageClanSections     bool `json:"can_manage_clan_sections"`
	CanPostInFactionSections  bool `json:"can_post_in_faction_sections"`
	CanPostInNeutralSections  bool `json:"can_post_in_neutral_sections"`
	CanCreateClanSubsections  bool `json:"can_create_clan_subsections"`
	CanEditClanSubsections    bool `json:"can_edit_clan_subsections"`
	CanDeleteClanSubsections  bool `json:"can_delete_clan_subsections"`
	CanLockClanTopics         bool `json:"can_lock_clan_topics"`
	CanPinClanTopics          bool `json:"can_pin_clan_topics"`
	CanAccessRoleplayCategory bool `json:"can_access_roleplay_category"`
	MaxTopicsPerDay           int  `json:"max_topics_per_day"`
	MaxPostsPerDay            int  `json:"max_posts_per_day"`
}

func clanAdmin(c Capabilities) Capabilities {
	c.CanCreatePrivateSections = true
	c.CanManageClanSections = true
	c.CanCreateClanSubsections = true
	c.CanEditClanSubsections = true
	c.CanDeleteClanSubsections = true
	c.CanLockClanTopics = true
	c.CanPinClanTopics = true
	return c
}

// CapabilitiesFor returns the capability bundle of s. Unknown statuses get the
// bundle of NoAliveCharacter.
func CapabilitiesFor(s Status) Capabilities {
	switch s {
	case FactionClanLeader:
		return clanAdmin(Capabilities{
			CanPostInFactionSections:  true,
			CanAccessRoleplayCategory: true,
			MaxTopicsPerDay:           20,
			MaxPostsPerDay:            100,
		})
	case NeutralClanLeader:
		return clanAdmin(Capabilities{
			CanPostInNeutralSections:  true,
			CanAccessRoleplayCategory: true,
			MaxTopicsPerDay:           20,
			MaxPostsPerDay:            100,
		})
	case FactionClanMember:
		return Capabilities{
			CanPostInFactionSections:  true,
			CanAccessRoleplayCategory: true,
			MaxTopicsPerDay:           10,
			MaxPostsPerDay:            75,
		}
	case NeutralClanMember:
		return Capabilities{
			CanPostInNeutralSections:  true,
			CanAccessRoleplayCategory: true,
			MaxTopicsPerDay:           10,
			MaxPostsPerDay:            75,
		}
	case FactionNoClan:
		return Capabilities{
			CanPostInFactionSections:  true,
			CanAccessRoleplayCategory: true,
			MaxTopicsPerDay:           7,
			MaxPostsPerDay:            50,
		}
	case NoFactionNoClan:
		return Capabilities{
			CanAccessRoleplayCategory: true,
			MaxTopicsPerDay:           3,
			MaxPostsPerDay:            20,
		}
	}
	return Capabilities{}
}
