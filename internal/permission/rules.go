package permission

import (
	"context"

	"rpg-forum/internal/apperr"
	"rpg-forum/internal/character"
	"rpg-forum/internal/hierarchy"
	"rpg-forum/internal/model"
	"rpg-forum/internal/store"
)

// DefaultRules are the attribute rules of an entity tree with no records.
func DefaultRules() map[model.Operation]model.ForumRule {
	playing := model.ForumRule{
		RoleLevel:            model.LevelAdminModeratorGMPlayer,
		CharacterRequirement: model.RequireAlive,
		RequireTermsAccepted: true,
	}
	return map[model.Operation]model.ForumRule{
		model.OpView:          {RoleLevel: model.LevelAll, CharacterRequirement: model.RequireNone},
		model.OpCreateSection: {RoleLevel: model.LevelAdminModerator, CharacterRequirement: model.RequireNone},
		model.OpCreateTopic:   playing,
		model.OpReply:         playing,
		model.OpPinLock:       {RoleLevel: model.LevelAdminModeratorGM, CharacterRequirement: model.RequireNone},
		model.OpEditDelete: {
			RoleLevel:            model.LevelAdminModeratorGM,
			AllowAuthor:          true,
			CharacterRequirement: model.RequireNone,
		},
		model.OpMoveChildren: {RoleLevel: model.LevelAdminModerator, CharacterRequirement: model.RequireNone},
	}
}

// ResolvedRule is the rule in force for one operation on one entity.
type ResolvedRule struct {
	Operation model.Operation  `json:"operation"`
	Rule      model.ForumRule  `json:"rule"`
	Inherited bool             `json:"inherited"`
	Source    *model.EntityRef `json:"source,omitempty"`
	IsDefault bool             `json:"is_default"`
}

// RuleResolver finds attribute rules, walking topic > section > parent
// sections > category and falling back to the defaults.
type RuleResolver struct {
	rules    store.Rules
	tree     *hierarchy.Resolver
	defaults map[model.Operation]model.ForumRule
}

// NewRuleResolver merges overrides over DefaultRules.
func NewRuleResolver(rules store.Rules, tree *hierarchy.Resolver, overrides map[model.Operation]model.ForumRule) *RuleResolver {
	defaults := DefaultRules()
	for op, rule := range overrides {
		defaults[op] = rule
	}
	return &RuleResolver{rules: rules, tree: tree, defaults: defaults}
}

// Resolve returns the first rule for op found on ref or its ancestors.
func (r *RuleResolver) Resolve(ctx context.Context, ref model.EntityRef, op model.Operation) (ResolvedRule, error) {
	if _, err := model.ParseOperation(string(op)); err != nil {
		return ResolvedRule{}, apperr.Configf("%v", err)
	}
	chain, err := r.tree.Chain(ctx, ref)
	if err != nil {
		return ResolvedRule{}, err
	}
	return r.resolveChain(ctx, chain, op)
}

func (r *RuleResolver) resolveChain(ctx context.Context, chain []model.EntityRef, op model.Operation) (ResolvedRule, error) {
	for i, node := range chain {
		rec, err := r.rules.ForumRule(ctx, node, op)
		if err != nil {
			return ResolvedRule{}, err
		}
		if rec == nil {
			continue
		}
		if err := rec.ForumRule.Validate(); err != nil {
			return ResolvedRule{}, apperr.Configf("forum rule %d on %s: %v", rec.ID, node, err)
		}
		src := node
		return ResolvedRule{Operation: op, Rule: rec.ForumRule, Inherited: i > 0, Source: &src}, nil
	}
	def, ok := r.defaults[op]
	if !ok {
		return ResolvedRule{}, apperr.Configf("no default rule for operation %q", op)
	}
	return ResolvedRule{Operation: op, Rule: def, IsDefault: true}, nil
}

// ResolveEntityPermissions resolves every operation for ref. The ancestor
// chain is walked once.
func (r *RuleResolver) ResolveEntityPermissions(ctx context.Context, ref model.EntityRef) (map[model.Operation]ResolvedRule, error) {
	chain, err := r.tree.Chain(ctx, ref)
	if err != nil {
		return nil, err
	}
	out := make(map[model.Operation]ResolvedRule, len(model.Operations))
	for _, op := range model.Operations {
		rr, err := r.resolveChain(ctx, chain, op)
		if err != nil {
			return nil, err
		}
		out[op] = rr
	}
	return out, nil
}

// RuleTarget is the entity an attribute rule is checked against, with the
// author of the content when there is one. Zero ids are absent.
type RuleTarget struct {
	Entity            model.EntityRef `json:"entity"`
	AuthorUserID      uint            `json:"author_user_id,omitempty"`
	AuthorCharacterID uint            `json:"author_character_id,omitempty"`
}

// Authorize checks op on the target against the resolved attribute rule. A nil
// user is an anonymous visitor.
func (e *Evaluator) Authorize(ctx context.Context, user *model.User, op model.Operation, tgt RuleTarget) (Decision, error) {
	if user != nil && !user.IsActive {
		return deny(StepInactive, "user is inactive"), nil
	}
	if user != nil && user.Role == model.RoleAdmin {
		return allow(StepAdmin, "administrators are never denied"), nil
	}
	rr, err := e.rules.Resolve(ctx, tgt.Entity, op)
	if err != nil {
		return failed, err
	}
	return e.authorizeRule(ctx, user, rr, tgt)
}

func (e *Evaluator) authorizeRule(ctx context.Context, user *model.User, rr ResolvedRule, tgt RuleTarget) (Decision, error) {
	var st *character.Standing
	if user != nil && needsStanding(rr.Rule, user.Role) {
		var err error
		if st, err = e.chars.Resolve(ctx, user.ID); err != nil {
			return failed, err
		}
	}
	ok, err := MatchRule(rr.Rule, user, st, tgt)
	if err != nil {
		return failed, apperr.Configf("rule for %s on %s: %v", rr.Operation, tgt.Entity, err)
	}
	reason := "rule on " + ruleOrigin(rr)
	if ok {
		return allow(StepAttributeRule, reason), nil
	}
	return deny(StepAttributeRule, reason), nil
}

// Permit guards a forum action with both systems. The layered check must
// allow name, and a rule for op stored on the target or an ancestor must
// match. Built-in default rules impose nothing here.
func (e *Evaluator) Permit(ctx context.Context, user *model.User, name string, res Resource, op model.Operation, tgt RuleTarget) bool {
	if !e.Evaluate(ctx, user, name, res) {
		return false
	}
	if user.Role == model.RoleAdmin {
		return true
	}
	rr, err := e.rules.Resolve(ctx, tgt.Entity, op)
	if err == nil && rr.IsDefault {
		return true
	}
	var d Decision
	if err == nil {
		d, err = e.authorizeRule(ctx, user, rr, tgt)
	}
	e.metrics.observe(d, err)
	if err != nil {
		e.logFailure(user, string(op), res, err)
		return false
	}
	return d.Allowed
}

// Allowed is Authorize collapsed to a boolean. Failures deny and are logged.
func (e *Evaluator) Allowed(ctx context.Context, user *model.User, op model.Operation, tgt RuleTarget) bool {
	d, err := e.Authorize(ctx, user, op, tgt)
	e.metrics.observe(d, err)
	if err != nil {
		e.logFailure(user, string(op), Resource{AuthorUserID: tgt.AuthorUserID}, err)
		return false
	}
	return d.Allowed
}

func ruleOrigin(rr ResolvedRule) string {
	if rr.IsDefault {
		return "default"
	}
	return rr.Source.String()
}

func needsStanding(rule model.ForumRule, role model.Role) bool {
	if rule.EnableAuthorCharacterRule {
		return true
	}
	req := rule.CharacterRequirement
	return !role.IsStaff() && req != model.RequireNone && req != ""
}

// MatchRule evaluates rule for user, whose standing st may be nil when the
// rule needs no character. Admins are handled by the caller.
func MatchRule(rule model.ForumRule, user *model.User, st *character.Standing, tgt RuleTarget) (bool, error) {
	var role model.Role
	if user != nil {
		role = user.Role
	}
	var active *model.Character
	if st != nil {
		active = st.Active
	}
	authorChar := rule.EnableAuthorCharacterRule && active != nil &&
		tgt.AuthorCharacterID != 0 && active.ID == tgt.AuthorCharacterID

	var ok bool
	if rule.EnableAuthorCharacterRule && rule.AuthorCharacterMode == model.AuthorExclusive {
		ok = authorChar
	} else {
		inLevel, err := rule.RoleLevel.Includes(role)
		if err != nil {
			return false, err
		}
		isAuthor := user != nil && tgt.AuthorUserID != 0 && tgt.AuthorUserID == user.ID
		met, err := requirementMet(rule, active)
		if err != nil {
			return false, err
		}
		ok = (inLevel || rule.AllowAuthor && isAuthor) && (role.IsStaff() || met)
		if !ok && rule.EnableAuthorCharacterRule {
			ok = authorChar
		}
	}

	if ok && rule.RequireTermsAccepted {
		ok = user != nil && user.AcceptedAllRules()
	}
	return ok, nil
}

func requirementMet(rule model.ForumRule, c *model.Character) (bool, error) {
	switch rule.CharacterRequirement {
	case model.RequireNone, "":
		return true, nil
	case model.RequireAlive:
		return c != nil, nil
	case model.RequireClanMember:
		return c != nil && c.ClanID != nil && idMatches(rule.RequiredClanID, *c.ClanID), nil
	case model.RequireFactionMember:
		if c == nil {
			return false, nil
		}
		faction := c.EffectiveFactionID()
		return faction != nil && idMatches(rule.RequiredFactionID, *faction), nil
	case model.RequireClanLeader:
		return c != nil && c.LeadsClan() && idMatches(rule.RequiredClanID, *c.ClanID), nil
	}
	return false, apperr.Configf("unknown character requirement %q", rule.CharacterRequirement)
}

// idMatches treats a nil requirement as "any".
func idMatches(required *uint, got uint) bool {
	return required == nil || *required == got
}
