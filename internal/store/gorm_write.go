package store

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"rpg-forum/internal/apperr"
	"rpg-forum/internal/model"
)

// SeedPermissions inserts catalog names that do not exist yet.
func (s *Gorm) SeedPermissions(ctx context.Context, names ...string) error {
	for _, name := range names {
		p := model.Permission{Name: name}
		if err := s.db.WithContext(ctx).Where("name = ?", name).FirstOrCreate(&p).Error; err != nil {
			return fmt.Errorf("failed to seed permission %q: %w", name, err)
		}
	}
	return nil
}

func (s *Gorm) lookupPermission(ctx context.Context, name string) (uint, error) {
	var p model.Permission
	err := s.db.WithContext(ctx).Where("name = ?", name).First(&p).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, apperr.Invalidf("unknown permission %q", name)
	}
	if err != nil {
		return 0, err
	}
	return p.ID, nil
}

// SetRolePermission creates or updates the global grant for (role, name).
func (s *Gorm) SetRolePermission(ctx context.Context, role model.Role, name string, granted bool) error {
	if !role.Valid() {
		return apperr.Invalidf("unknown role %q", role)
	}
	permID, err := s.lookupPermission(ctx, name)
	if err != nil {
		return err
	}
	rp := model.RolePermission{Role: role, PermissionID: permID, Granted: granted}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "role"}, {Name: "permission_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"granted", "updated_at"}),
	}).Create(&rp).Error
}

// RoleGrant is one row of the global role table.
type RoleGrant struct {
	Role       model.Role
	Permission string
	Granted    bool
}

// SetRolePermissions writes grants in one transaction. Nothing is stored when
// any grant is invalid.
func (s *Gorm) SetRolePermissions(ctx context.Context, grants []RoleGrant) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		txs := &Gorm{db: tx}
		for _, g := range grants {
			if err := txs.SetRolePermission(ctx, g.Role, g.Permission, g.Granted); err != nil {
				return err
			}
		}
		return nil
	})
}

// SectionOverrideInput describes a section override write.
type SectionOverrideInput struct {
	SectionID            uint
	Permission           string
	Role                 *model.Role
	UserID               *uint
	Granted              bool
	InheritToSubsections bool
}

func (s *Gorm) AddSectionOverride(ctx context.Context, in SectionOverrideInput) (*model.SectionPermission, error) {
	if err := model.ValidateSubject(in.Role, in.UserID); err != nil {
		return nil, apperr.Invalidf("%v", err)
	}
	if in.UserID != nil && in.InheritToSubsections {
		return nil, apperr.Invalidf("user overrides do not propagate to subsections")
	}
	if _, err := s.Section(ctx, in.SectionID); err != nil {
		return nil, err
	}
	permID, err := s.lookupPermission(ctx, in.Permission)
	if err != nil {
		return nil, err
	}
	sp := model.SectionPermission{
		SectionID:            in.SectionID,
		PermissionID:         permID,
		Role:                 in.Role,
		UserID:               in.UserID,
		Granted:              in.Granted,
		InheritToSubsections: in.InheritToSubsections,
	}
	if err := s.db.WithContext(ctx).Create(&sp).Error; err != nil {
		return nil, fmt.Errorf("failed to create section override: %w", err)
	}
	return &sp, nil
}

// TopicOverrideInput describes a topic override write.
type TopicOverrideInput struct {
	TopicID    uint
	Permission string
	Role       *model.Role
	UserID     *uint
	Granted    bool
}

func (s *Gorm) AddTopicOverride(ctx context.Context, in TopicOverrideInput) (*model.TopicPermission, error) {
	if err := model.ValidateSubject(in.Role, in.UserID); err != nil {
		return nil, apperr.Invalidf("%v", err)
	}
	if _, err := s.Topic(ctx, in.TopicID); err != nil {
		return nil, err
	}
	permID, err := s.lookupPermission(ctx, in.Permission)
	if err != nil {
		return nil, err
	}
	tp := model.TopicPermission{
		TopicID:      in.TopicID,
		PermissionID: permID,
		Role:         in.Role,
		UserID:       in.UserID,
		Granted:      in.Granted,
	}
	if err := s.db.WithContext(ctx).Create(&tp).Error; err != nil {
		return nil, fmt.Errorf("failed to create topic override: %w", err)
	}
	return &tp, nil
}

// UpsertForumRule stores the attribute rule of one operation on one entity.
func (s *Gorm) UpsertForumRule(ctx context.Context, ref model.EntityRef, op model.Operation, rule model.ForumRule) (*model.ForumPermission, error) {
	if err := rule.Validate(); err != nil {
		return nil, apperr.Invalidf("%v", err)
	}
	if rule.CharacterRequirement == "" {
		rule.CharacterRequirement = model.RequireNone
	}
	var fp model.ForumPermission
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Where("entity_type = ? AND entity_id = ? AND operation_type = ?", ref.Type, ref.ID, op).First(&fp).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			fp = model.ForumPermission{EntityType: ref.Type, EntityID: ref.ID, OperationType: op, ForumRule: rule}
			return tx.Create(&fp).Error
		case err != nil:
			return err
		}
		fp.ForumRule = rule
		return tx.Save(&fp).Error
	})
	if err != nil {
		return nil, fmt.Errorf("failed to save forum rule %s/%s: %w", ref, op, err)
	}
	return &fp, nil
}
