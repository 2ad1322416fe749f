// Package forum performs the content writes guarded by the permission engine:
// topics, posts, soft deletes and section moves.
package forum

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"rpg-forum/internal/apperr"
	"rpg-forum/internal/hierarchy"
	"rpg-forum/internal/model"
)

type Service struct {
	db     *gorm.DB
	tree   *hierarchy.Resolver
	logger *zap.Logger
}

type Option func(*Service)

func WithLogger(l *zap.Logger) Option {
	return func(s *Service) { s.logger = l }
}

func NewService(db *gorm.DB, tree *hierarchy.Resolver, opts ...Option) *Service {
	s := &Service{db: db, tree: tree, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Author is who writes content. CharacterID is nil for out-of-character posts.
type Author struct {
	UserID      uint
	CharacterID *uint
}

type TopicInput struct {
	SectionID uint   `json:"section_id" binding:"required"`
	Title     string `json:"title" binding:"required"`
	Content   string `json:"content" binding:"required"`
}

type PostInput struct {
	TopicID uint   `json:"topic_id"`
	Content string `json:"content" binding:"required"`
}

func notFound(err error, what string, id uint) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return apperr.NotFoundf("%s %d", what, id)
	}
	return fmt.Errorf("failed to fetch %s %d: %w", what, id, err)
}

// CreateTopic creates the topic with its opening post.
func (s *Service) CreateTopic(ctx context.Context, in TopicInput, by Author) (*model.Topic, error) {
	title := strings.TrimSpace(in.Title)
	if title == "" {
		return nil, apperr.Invalidf("topic title is empty")
	}
	var section model.Section
	if err := s.db.WithContext(ctx).Where("is_active = ?", true).First(&section, in.SectionID).Error; err != nil {
		return nil, notFound(err, "section", in.SectionID)
	}

	topic := model.Topic{
		Title:             title,
		SectionID:         section.ID,
		AuthorUserID:      &by.UserID,
		AuthorCharacterID: by.CharacterID,
		IsActive:          true,
	}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&topic).Error; err != nil {
			return err
		}
		return tx.Create(&model.Post{
			TopicID:           topic.ID,
			AuthorUserID:      &by.UserID,
			AuthorCharacterID: by.CharacterID,
			Content:           in.Content,
			IsActive:          true,
		}).Error
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create topic: %w", err)
	}
	s.logger.Info("topic created", zap.Uint("topic_id", topic.ID), zap.Uint("section_id", section.ID), zap.Uint("user_id", by.UserID))
	return &topic, nil
}

// CreatePost replies to an active, unlocked topic.
func (s *Service) CreatePost(ctx context.Context, in PostInput, by Author) (*model.Post, error) {
	if strings.TrimSpace(in.Content) == "" {
		return nil, apperr.Invalidf("post content is empty")
	}
	topic, err := s.activeTopic(ctx, in.TopicID)
	if err != nil {
		return nil, err
	}
	if topic.IsLocked {
		return nil, fmt.Errorf("%w: topic %d is locked", apperr.ErrForbidden, topic.ID)
	}
	post := model.Post{
		TopicID:           topic.ID,
		AuthorUserID:      &by.UserID,
		AuthorCharacterID: by.CharacterID,
		Content:           in.Content,
		IsActive:          true,
	}
	if err := s.db.WithContext(ctx).Create(&post).Error; err != nil {
		return nil, fmt.Errorf("failed to create post: %w", err)
	}
	return &post, nil
}

func (s *Service) activeTopic(ctx context.Context, id uint) (*model.Topic, error) {
	var topic model.Topic
	if err := s.db.WithContext(ctx).Where("is_active = ?", true).First(&topic, id).Error; err != nil {
		return nil, notFound(err, "topic", id)
	}
	return &topic, nil
}

// Post returns an active post.
func (s *Service) Post(ctx context.Context, id uint) (*model.Post, error) {
	var post model.Post
	if err := s.db.WithContext(ctx).Where("is_active = ?", true).First(&post, id).Error; err != nil {
		return nil, notFound(err, "post", id)
	}
	return &post, nil
}

// Posts lists the active posts of a topic, oldest first.
func (s *Service) Posts(ctx context.Context, topicID uint) ([]model.Post, error) {
	var posts []model.Post
	err := s.db.WithContext(ctx).
		Where("topic_id = ? AND is_active = ?", topicID, true).
		Order("created_at ASC").Order("id ASC").
		Find(&posts).Error
	if err != nil {
		return nil, fmt.Errorf("failed to fetch posts of topic %d: %w", topicID, err)
	}
	return posts, nil
}

// DeleteTopic soft-deletes the topic and every post in it.
func (s *Service) DeleteTopic(ctx context.Context, id uint) error {
	if _, err := s.activeTopic(ctx, id); err != nil {
		return err
	}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&model.Post{}).Where("topic_id = ?", id).Update("is_active", false).Error; err != nil {
			return err
		}
		return tx.Model(&model.Topic{}).Where("id = ?", id).Update("is_active", false).Error
	})
	if err != nil {
		return fmt.Errorf("failed to delete topic %d: %w", id, err)
	}
	s.logger.Info("topic deleted", zap.Uint("topic_id", id))
	return nil
}

// DeletePost soft-deletes the post, and its topic once no active post is
// left. It reports whether the topic went too.
func (s *Service) DeletePost(ctx context.Context, id uint) (topicDeleted bool, err error) {
	post, err := s.Post(ctx, id)
	if err != nil {
		return false, err
	}
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&model.Post{}).Where("id = ?", id).Update("is_active", false).Error; err != nil {
			return err
		}
		var left int64
		if err := tx.Model(&model.Post{}).Where("topic_id = ? AND is_active = ?", post.TopicID, true).Count(&left).Error; err != nil {
			return err
		}
		if left > 0 {
			return nil
		}
		topicDeleted = true
		return tx.Model(&model.Topic{}).Where("id = ?", post.TopicID).Update("is_active", false).Error
	})
	if err != nil {
		return false, fmt.Errorf("failed to delete post %d: %w", id, err)
	}
	return topicDeleted, nil
}

// SetLocked locks or unlocks a topic.
func (s *Service) SetLocked(ctx context.Context, topicID uint, locked bool) error {
	return s.setTopicFlag(ctx, topicID, "is_locked", locked)
}

// SetPinned pins or unpins a topic.
func (s *Service) SetPinned(ctx context.Context, topicID uint, pinned bool) error {
	return s.setTopicFlag(ctx, topicID, "is_pinned", pinned)
}

func (s *Service) setTopicFlag(ctx context.Context, topicID uint, column string, value bool) error {
	if _, err := s.activeTopic(ctx, topicID); err != nil {
		return err
	}
	if err := s.db.WithContext(ctx).Model(&model.Topic{}).Where("id = ?", topicID).Update(column, value).Error; err != nil {
		return fmt.Errorf("failed to update topic %d: %w", topicID, err)
	}
	return nil
}

// MoveTopic puts a topic in another active section.
func (s *Service) MoveTopic(ctx context.Context, topicID, sectionID uint) error {
	if _, err := s.activeTopic(ctx, topicID); err != nil {
		return err
	}
	var section model.Section
	if err := s.db.WithContext(ctx).Where("is_active = ?", true).First(&section, sectionID).Error; err != nil {
		return notFound(err, "section", sectionID)
	}
	if err := s.db.WithContext(ctx).Model(&model.Topic{}).Where("id = ?", topicID).Update("section_id", sectionID).Error; err != nil {
		return fmt.Errorf("failed to move topic %d: %w", topicID, err)
	}
	s.logger.Info("topic moved", zap.Uint("topic_id", topicID), zap.Uint("section_id", sectionID))
	return nil
}

// SectionInput places a new section under a category or a parent section.
// Exactly one of CategoryID and ParentSectionID is set.
type SectionInput struct {
	Name               string `json:"name" binding:"required"`
	CategoryID         *uint  `json:"category_id"`
	ParentSectionID    *uint  `json:"parent_section_id"`
	VisibleByFactionID *uint  `json:"visible_by_faction_id"`
	VisibleByClanID    *uint  `json:"visible_by_clan_id"`
	Order              int    `json:"order"`
}

// Parent returns the node the section goes under.
func (in SectionInput) Parent() (model.EntityRef, error) {
	switch {
	case in.CategoryID != nil && in.ParentSectionID != nil:
		return model.EntityRef{}, apperr.Invalidf("a section has either a category or a parent section")
	case in.ParentSectionID != nil:
		return model.EntityRef{Type: model.EntitySection, ID: *in.ParentSectionID}, nil
	case in.CategoryID != nil:
		return model.EntityRef{Type: model.EntityCategory, ID: *in.CategoryID}, nil
	}
	return model.EntityRef{}, apperr.Invalidf("a section needs a category or a parent section")
}

// CreateSection creates a section. A subsection records the category of its
// parent chain too.
func (s *Service) CreateSection(ctx context.Context, in SectionInput) (*model.Section, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, apperr.Invalidf("section name is empty")
	}
	if in.VisibleByFactionID != nil && in.VisibleByClanID != nil {
		return nil, apperr.Invalidf("a section is restricted to a faction or a clan, not both")
	}
	parent, err := in.Parent()
	if err != nil {
		return nil, err
	}
	categoryID, err := s.tree.CategoryOf(ctx, parent)
	if err != nil {
		return nil, err
	}
	var category model.Category
	if err := s.db.WithContext(ctx).First(&category, categoryID).Error; err != nil {
		return nil, notFound(err, "category", categoryID)
	}

	section := model.Section{
		Name:               name,
		CategoryID:         &category.ID,
		ParentSectionID:    in.ParentSectionID,
		VisibleByFactionID: in.VisibleByFactionID,
		VisibleByClanID:    in.VisibleByClanID,
		Order:              in.Order,
		IsActive:           true,
	}
	if err := s.db.WithContext(ctx).Create(&section).Error; err != nil {
		return nil, fmt.Errorf("failed to create section: %w", err)
	}
	s.logger.Info("section created", zap.Uint("section_id", section.ID), zap.String("parent", parent.String()))
	return &section, nil
}

// MoveSection re-parents a section under another section or directly under
// a category. Moves that would make the section its own ancestor are
// rejected.
func (s *Service) MoveSection(ctx context.Context, sectionID uint, to model.EntityRef) error {
	var section model.Section
	if err := s.db.WithContext(ctx).First(&section, sectionID).Error; err != nil {
		return notFound(err, "section", sectionID)
	}
	if err := s.tree.ValidateMove(ctx, sectionID, to); err != nil {
		return err
	}
	categoryID, err := s.tree.CategoryOf(ctx, to)
	if err != nil {
		return err
	}
	var category model.Category
	if err := s.db.WithContext(ctx).First(&category, categoryID).Error; err != nil {
		return notFound(err, "category", categoryID)
	}

	updates := map[string]interface{}{"category_id": categoryID, "parent_section_id": nil}
	if to.Type == model.EntitySection {
		updates["parent_section_id"] = to.ID
	}
	if err := s.db.WithContext(ctx).Model(&model.Section{}).Where("id = ?", sectionID).Updates(updates).Error; err != nil {
		return fmt.Errorf("failed to move section %d: %w", sectionID, err)
	}
	s.logger.Info("section moved", zap.Uint("section_id", sectionID), zap.String("to", to.String()))
	return nil
}
