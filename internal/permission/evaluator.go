// Package permission answers "may this user perform this action here". It
// layers a global role table, topic and section overrides, character status
// gates and author fallbacks, and separately evaluates per-entity attribute
// rules for the coarse forum operations.
package permission

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"rpg-forum/internal/access"
	"rpg-forum/internal/apperr"
	"rpg-forum/internal/character"
	"rpg-forum/internal/hierarchy"
	"rpg-forum/internal/model"
	"rpg-forum/internal/store"
)

// Resource locates a check. Zero fields are absent.
type Resource struct {
	SectionID    uint `json:"section_id,omitempty" form:"section_id"`
	TopicID      uint `json:"topic_id,omitempty" form:"topic_id"`
	AuthorUserID uint `json:"author_user_id,omitempty" form:"author_user_id"`
}

type Config struct {
	Categories        access.Categories
	MaxHierarchyDepth int
	// Defaults overrides the built-in attribute rules per operation.
	Defaults map[model.Operation]model.ForumRule
}

type Evaluator struct {
	store   store.Store
	chars   *character.Resolver
	tree    *hierarchy.Resolver
	filter  *access.Filter
	rules   *RuleResolver
	logger  *zap.Logger
	metrics *Metrics
}

type Option func(*Evaluator)

func WithLogger(l *zap.Logger) Option {
	return func(e *Evaluator) { e.logger = l }
}

func WithMetrics(m *Metrics) Option {
	return func(e *Evaluator) { e.metrics = m }
}

func New(st store.Store, cfg Config, opts ...Option) *Evaluator {
	e := &Evaluator{store: st, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(e)
	}
	e.chars = character.NewResolver(st, character.WithLogger(e.logger))
	e.tree = hierarchy.NewResolver(st, cfg.MaxHierarchyDepth)
	e.filter = access.NewFilter(cfg.Categories)
	e.rules = NewRuleResolver(st, e.tree, cfg.Defaults)
	return e
}

func (e *Evaluator) Characters() *character.Resolver { return e.chars }
func (e *Evaluator) Hierarchy() *hierarchy.Resolver  { return e.tree }
func (e *Evaluator) Access() *access.Filter          { return e.filter }
func (e *Evaluator) Rules() *RuleResolver            { return e.rules }

// Evaluate is Check collapsed to a boolean. Failures deny and are logged.
func (e *Evaluator) Evaluate(ctx context.Context, user *model.User, name string, res Resource) (allowed bool) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("permission check panicked", zap.String("permission", name), zap.Any("panic", r))
			e.metrics.observe(failed, fmt.Errorf("panic: %v", r))
			allowed = false
		}
	}()
	d, err := e.Check(ctx, user, name, res)
	e.metrics.observe(d, err)
	if err != nil {
		e.logFailure(user, name, res, err)
		return false
	}
	var userID uint
	if user != nil {
		userID = user.ID
	}
	e.logger.Debug("permission decision",
		zap.Uint("user_id", userID),
		zap.String("permission", name),
		zap.String("step", string(d.Step)),
		zap.Bool("allowed", d.Allowed))
	return d.Allowed
}

// EvaluateUserID loads the user first. An unknown user is denied.
func (e *Evaluator) EvaluateUserID(ctx context.Context, userID uint, name string, res Resource) bool {
	user, err := e.store.User(ctx, userID)
	if err != nil {
		if !errors.Is(err, apperr.ErrNotFound) {
			e.logFailure(nil, name, res, err)
		}
		e.metrics.observe(deny(StepInactive, "unknown user"), nil)
		return false
	}
	return e.Evaluate(ctx, user, name, res)
}

func (e *Evaluator) logFailure(user *model.User, name string, res Resource, err error) {
	fields := []zap.Field{
		zap.String("permission", name),
		zap.Uint("section_id", res.SectionID),
		zap.Uint("topic_id", res.TopicID),
		zap.Error(err),
	}
	if user != nil {
		fields = append(fields, zap.Uint("user_id", user.ID))
	}
	if apperr.IsConfiguration(err) {
		e.logger.Error("permission configuration error", fields...)
		return
	}
	e.logger.Warn("permission check failed", fields...)
}

// target is the forum location a check resolves to, loaded once per check.
type target struct {
	topic    *model.Topic
	path     *hierarchy.Path
	category *model.Category
}

func (e *Evaluator) loadTarget(ctx context.Context, res Resource) (*target, error) {
	t := &target{}
	sectionID := res.SectionID
	if res.TopicID != 0 {
		topic, err := e.store.Topic(ctx, res.TopicID)
		if err != nil {
			return nil, err
		}
		t.topic = topic
		if sectionID == 0 {
			sectionID = topic.SectionID
		}
	}
	if sectionID == 0 {
		return t, nil
	}
	path, err := e.tree.Walk(ctx, sectionID)
	if err != nil {
		return nil, err
	}
	t.path = path
	cat, err := e.store.Category(ctx, path.CategoryID)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return nil, apperr.Configf("section %d belongs to missing category %d", path.Sections[len(path.Sections)-1].ID, path.CategoryID)
		}
		return nil, err
	}
	t.category = cat
	return t, nil
}

// Check runs the evaluation layers in order. The first layer with an opinion
// decides.
func (e *Evaluator) Check(ctx context.Context, user *model.User, name string, res Resource) (Decision, error) {
	if user == nil || !user.IsActive {
		return deny(StepInactive, "user is missing or inactive"), nil
	}
	if user.Role == model.RoleAdmin {
		return allow(StepAdmin, "administrators are never denied"), nil
	}
	if !user.Role.Valid() {
		return failed, apperr.Configf("user %d has unknown role %q", user.ID, user.Role)
	}

	act := parseAction(name)
	if !user.TermsAccepted && act.mutating {
		return deny(StepTerms, "terms of use not accepted"), nil
	}

	exists, err := e.store.PermissionExists(ctx, name)
	if err != nil {
		return failed, err
	}
	if !exists {
		return failed, apperr.Configf("permission %q is not in the catalog", name)
	}

	authorEdit := act.editOrDelete && res.AuthorUserID != 0 && res.AuthorUserID == user.ID

	var tgt *target
	if res.SectionID != 0 || res.TopicID != 0 {
		if tgt, err = e.loadTarget(ctx, res); err != nil {
			return failed, err
		}
	}

	if user.Role == model.RolePlayer {
		d, decided, err := e.checkStanding(ctx, user, name, act, authorEdit, tgt)
		if err != nil || decided {
			return d, err
		}
	}

	if tgt != nil && tgt.topic != nil {
		d, decided, err := e.checkTopicOverrides(ctx, user, name, tgt.topic.ID)
		if err != nil || decided {
			return d, err
		}
	}

	if tgt != nil && tgt.path != nil {
		d, decided, err := e.checkSectionOverrides(ctx, user, name, tgt.path)
		if err != nil || decided {
			return d, err
		}
	}

	eff, err := e.store.RolePermission(ctx, user.Role, name)
	if err != nil {
		return failed, err
	}
	switch {
	case eff == model.Deny && authorEdit:
		return allow(StepAuthor, "authors may edit or delete their own content"), nil
	case eff == model.Grant:
		return allow(StepRolePermission, "granted to role "+user.Role.String()), nil
	case eff == model.Deny:
		return deny(StepRolePermission, "denied to role "+user.Role.String()), nil
	case authorEdit:
		return allow(StepAuthor, "authors may edit or delete their own content"), nil
	}
	return deny(StepDefault, "no layer granted "+name), nil
}

// checkStanding applies the character status gates that only players pass
// through.
func (e *Evaluator) checkStanding(ctx context.Context, user *model.User, name string, act action, authorEdit bool, tgt *target) (Decision, bool, error) {
	st, err := e.chars.Resolve(ctx, user.ID)
	if err != nil {
		return failed, true, err
	}

	if tgt != nil && tgt.category != nil {
		if !st.Capabilities.CanAccessRoleplayCategory && e.filter.Categories().IsRoleplay(tgt.category) {
			return deny(StepRoleplay, "roleplay category needs an alive character"), true, nil
		}
		if tgt.path != nil {
			viewer := access.ViewerFrom(user, st)
			// a hidden ancestor hides everything below it
			for i := range tgt.path.Sections {
				sec := &tgt.path.Sections[i]
				if !e.filter.CanAccessSection(viewer, sec, tgt.category) {
					return deny(StepSectionAccess, fmt.Sprintf("section %d is not visible", sec.ID)), true, nil
				}
			}
		}
		if power, ok := clanPower(name); ok && st.IsClanLeader() {
			if clanID, owned := owningClan(tgt.path); owned && st.LeadsClan(clanID) && power(st.Capabilities) {
				return allow(StepClanLeader, fmt.Sprintf("leader of clan %d", clanID)), true, nil
			}
		}
	}

	if !st.HasAliveCharacter() && act.mutating {
		if authorEdit {
			return allow(StepAuthor, "authors may edit or delete their own content"), true, nil
		}
		return deny(StepNoCharacter, "an alive character is required"), true, nil
	}
	return Decision{}, false, nil
}

// owningClan returns the clan restriction of the nearest clan section on the
// path.
func owningClan(path *hierarchy.Path) (uint, bool) {
	for _, sec := range path.Sections {
		if sec.VisibleByClanID != nil {
			return *sec.VisibleByClanID, true
		}
	}
	return 0, false
}

func (e *Evaluator) checkTopicOverrides(ctx context.Context, user *model.User, name string, topicID uint) (Decision, bool, error) {
	for _, sub := range []store.Subject{store.UserSubject(user.ID), store.RoleSubject(user.Role)} {
		eff, err := e.store.TopicOverride(ctx, topicID, sub, name)
		if err != nil {
			return failed, true, err
		}
		if eff != model.NoOpinion {
			return overrideDecision(StepTopicOverride, eff, fmt.Sprintf("topic %d", topicID)), true, nil
		}
	}
	return Decision{}, false, nil
}

// checkSectionOverrides walks from the target section upward. A user override
// applies at any level; a role override applies on its own section or,
// when it inherits, on every section below it.
func (e *Evaluator) checkSectionOverrides(ctx context.Context, user *model.User, name string, path *hierarchy.Path) (Decision, bool, error) {
	for i, sec := range path.Sections {
		ov, err := e.store.SectionOverride(ctx, sec.ID, store.UserSubject(user.ID), name)
		if err != nil {
			return failed, true, err
		}
		if ov.Effect != model.NoOpinion {
			return overrideDecision(StepSectionOverride, ov.Effect, fmt.Sprintf("section %d, user", sec.ID)), true, nil
		}

		ov, err = e.store.SectionOverride(ctx, sec.ID, store.RoleSubject(user.Role), name)
		if err != nil {
			return failed, true, err
		}
		if ov.Effect != model.NoOpinion && (i == 0 || ov.Inherit) {
			return overrideDecision(StepSectionOverride, ov.Effect, fmt.Sprintf("section %d, role %s", sec.ID, user.Role)), true, nil
		}
	}
	return Decision{}, false, nil
}

func overrideDecision(step Step, eff model.Effect, where string) Decision {
	if eff == model.Grant {
		return allow(step, "granted on "+where)
	}
	return deny(step, "denied on "+where)
}
