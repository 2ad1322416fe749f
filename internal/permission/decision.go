package permission

// Step names the evaluation layer that produced a decision.
type Step string

const (
	StepInactive        Step = "inactive_user"
	StepAdmin           Step = "admin"
	StepTerms           Step = "terms_gate"
	StepRoleplay        Step = "roleplay_category"
	StepSectionAccess   Step = "section_access"
	StepClanLeader      Step = "clan_leader"
	StepNoCharacter     Step = "no_character"
	StepTopicOverride   Step = "topic_override"
	StepSectionOverride Step = "section_override"
	StepRolePermission  Step = "role_permission"
	StepAuthor          Step = "author_fallback"
	StepDefault         Step = "default_deny"
	StepAttributeRule   Step = "attribute_rule"
	StepError           Step = "error"
)

// Decision is the outcome of a check and the layer that decided it.
type Decision struct {
	Allowed bool   `json:"allowed"`
	Step    Step   `json:"step"`
	Reason  string `json:"reason,omitempty"`
}

func allow(step Step, reason string) Decision {
	return Decision{Allowed: true, Step: step, Reason: reason}
}

func deny(step Step, reason string) Decision {
	return Decision{Step: step, Reason: reason}
}

var failed = Decision{Step: StepError}
