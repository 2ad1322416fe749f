package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"rpg-forum/internal/apperr"
	"rpg-forum/internal/model"
)

// Gorm implements Store on any gorm dialect.
type Gorm struct {
	db *gorm.DB
}

func NewGorm(db *gorm.DB) *Gorm {
	return &Gorm{db: db}
}

func (s *Gorm) DB() *gorm.DB { return s.db }

func lookupErr(err error, what string, id uint) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return apperr.NotFoundf("%s %d", what, id)
	}
	return fmt.Errorf("failed to fetch %s %d: %w", what, id, err)
}

func (s *Gorm) User(ctx context.Context, id uint) (*model.User, error) {
	var user model.User
	if err := s.db.WithContext(ctx).First(&user, id).Error; err != nil {
		return nil, lookupErr(err, "user", id)
	}
	return &user, nil
}

func (s *Gorm) AliveCharacters(ctx context.Context, userID uint) ([]model.Character, error) {
	var chars []model.Character
	err := s.db.WithContext(ctx).
		Preload("Faction").
		Preload("Clan.Faction").
		Where("user_id = ? AND is_alive = ? AND is_active = ?", userID, true, true).
		Order("created_at DESC").
		Order("id DESC").
		Find(&chars).Error
	if err != nil {
		return nil, fmt.Errorf("failed to fetch characters of user %d: %w", userID, err)
	}
	return chars, nil
}

func (s *Gorm) Category(ctx context.Context, id uint) (*model.Category, error) {
	var category model.Category
	if err := s.db.WithContext(ctx).First(&category, id).Error; err != nil {
		return nil, lookupErr(err, "category", id)
	}
	return &category, nil
}

func (s *Gorm) Section(ctx context.Context, id uint) (*model.Section, error) {
	var section model.Section
	if err := s.db.WithContext(ctx).First(&section, id).Error; err != nil {
		return nil, lookupErr(err, "section", id)
	}
	return &section, nil
}

func (s *Gorm) Topic(ctx context.Context, id uint) (*model.Topic, error) {
	var topic model.Topic
	if err := s.db.WithContext(ctx).First(&topic, id).Error; err != nil {
		return nil, lookupErr(err, "topic", id)
	}
	return &topic, nil
}

func (s *Gorm) SectionTree(ctx context.Context, categoryID uint) ([]model.Section, error) {
	var sections []model.Section
	err := s.db.WithContext(ctx).
		Where("is_active = ?", true).
		Order(clause.OrderByColumn{Column: clause.Column{Name: "order"}}).
		Order("id").
		Find(&sections).Error
	if err != nil {
		return nil, fmt.Errorf("failed to fetch sections: %w", err)
	}
	return BuildTree(sections, categoryID), nil
}

// BuildTree nests a flat, ordered section list under the roots of categoryID.
// Sections unreachable from a root (including any cycle) are dropped.
func BuildTree(sections []model.Section, categoryID uint) []model.Section {
	children := make(map[uint][]model.Section)
	var roots []model.Section
	for _, sec := range sections {
		switch {
		case sec.ParentSectionID != nil:
			children[*sec.ParentSectionID] = append(children[*sec.ParentSectionID], sec)
		case sec.CategoryID != nil && *sec.CategoryID == categoryID:
			roots = append(roots, sec)
		}
	}
	var attach func(list []model.Section) []model.Section
	attach = func(list []model.Section) []model.Section {
		out := make([]model.Section, len(list))
		for i, sec := range list {
			sec.Subsections = attach(children[sec.ID])
			out[i] = sec
		}
		return out
	}
	return attach(roots)
}

func (s *Gorm) permissionID(name string) *gorm.DB {
	return s.db.Model(&model.Permission{}).Select("id").Where("name = ?", name)
}

func (s *Gorm) PermissionExists(ctx context.Context, name string) (bool, error) {
	var count int64
	if err := s.db.WithContext(ctx).Model(&model.Permission{}).Where("name = ?", name).Count(&count).Error; err != nil {
		return false, fmt.Errorf("failed to look up permission %q: %w", name, err)
	}
	return count > 0, nil
}

func (s *Gorm) RolePermission(ctx context.Context, role model.Role, name string) (model.Effect, error) {
	var rp model.RolePermission
	err := s.db.WithContext(ctx).
		Where("role = ? AND permission_id = (?)", role, s.permissionID(name)).
		First(&rp).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return model.NoOpinion, nil
	}
	if err != nil {
		return model.NoOpinion, fmt.Errorf("failed to fetch role permission %s/%s: %w", role, name, err)
	}
	return model.EffectOf(rp.Granted), nil
}

func subjectQuery(q *gorm.DB, sub Subject) *gorm.DB {
	if sub.IsUser() {
		return q.Where("user_id = ?", sub.UserID)
	}
	return q.Where("role = ?", sub.Role)
}

func (s *Gorm) TopicOverride(ctx context.Context, topicID uint, sub Subject, name string) (model.Effect, error) {
	var rows []model.TopicPermission
	q := s.db.WithContext(ctx).Where("topic_id = ? AND permission_id = (?)", topicID, s.permissionID(name))
	if err := subjectQuery(q, sub).Order("id").Find(&rows).Error; err != nil {
		return model.NoOpinion, fmt.Errorf("failed to fetch topic override %d/%s: %w", topicID, name, err)
	}
	for i := range rows {
		if !rows[i].Malformed() {
			return model.EffectOf(rows[i].Granted), nil
		}
	}
	return model.NoOpinion, nil
}

func (s *Gorm) SectionOverride(ctx context.Context, sectionID uint, sub Subject, name string) (Override, error) {
	var rows []model.SectionPermission
	q := s.db.WithContext(ctx).Where("section_id = ? AND permission_id = (?)", sectionID, s.permissionID(name))
	if err := subjectQuery(q, sub).Order("id").Find(&rows).Error; err != nil {
		return Override{}, fmt.Errorf("failed to fetch section override %d/%s: %w", sectionID, name, err)
	}
	for i := range rows {
		if !rows[i].Malformed() {
			return Override{Effect: model.EffectOf(rows[i].Granted), Inherit: rows[i].InheritToSubsections}, nil
		}
	}
	return Override{}, nil
}

func (s *Gorm) ForumRule(ctx context.Context, ref model.EntityRef, op model.Operation) (*model.ForumPermission, error) {
	var fp model.ForumPermission
	err := s.db.WithContext(ctx).
		Where("entity_type = ? AND entity_id = ? AND operation_type = ?", ref.Type, ref.ID, op).
		First(&fp).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to fetch forum rule %s/%s: %w", ref, op, err)
	}
	return &fp, nil
}

func (s *Gorm) CountTopicsSince(ctx context.Context, userID uint, since time.Time) (int64, error) {
	var n int64
	err := s.db.WithContext(ctx).Model(&model.Topic{}).
		Where("author_user_id = ? AND is_active = ? AND created_at >= ?", userID, true, since).
		Count(&n).Error
	return n, err
}

func (s *Gorm) CountPostsSince(ctx context.Context, userID uint, since time.Time) (int64, error) {
	var n int64
	err := s.db.WithContext(ctx).Model(&model.Post{}).
		Where("author_user_id = ? AND is_active = ? AND created_at >= ?", userID, true, since).
		Count(&n).Error
	return n, err
}
