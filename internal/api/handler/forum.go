package handler

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"rpg-forum/internal/access"
	"rpg-forum/internal/api/middleware"
	"rpg-forum/internal/apperr"
	"rpg-forum/internal/forum"
	"rpg-forum/internal/model"
	"rpg-forum/internal/permission"
	"rpg-forum/internal/quota"
	"rpg-forum/internal/store"
)

func guard(c *gin.Context, ev *permission.Evaluator, name string, res permission.Resource, op model.Operation, tgt permission.RuleTarget) bool {
	if !ev.Permit(c.Request.Context(), middleware.CurrentUser(c), name, res, op, tgt) {
		c.JSON(http.StatusForbidden, gin.H{"error": fmt.Sprintf("permission %s denied", name)})
		return false
	}
	return true
}

// author returns the current user with their active character, if any.
func author(c *gin.Context, ev *permission.Evaluator) (forum.Author, error) {
	user := middleware.CurrentUser(c)
	st, err := ev.Characters().Resolve(c.Request.Context(), user.ID)
	if err != nil {
		return forum.Author{}, err
	}
	a := forum.Author{UserID: user.ID}
	if st.Active != nil {
		a.CharacterID = &st.Active.ID
	}
	return a, nil
}

func checkQuota(c *gin.Context, quotas *quota.Checker, kind quota.Kind) bool {
	u, err := quotas.Allow(c.Request.Context(), middleware.CurrentUser(c), kind)
	if err != nil {
		respondError(c, err)
		return false
	}
	if !u.Allowed {
		c.JSON(http.StatusTooManyRequests, gin.H{"error": fmt.Sprintf("daily %s quota reached", kind), "quota": u})
		return false
	}
	return true
}

func deref(p *uint) uint {
	if p == nil {
		return 0
	}
	return *p
}

// ListSections returns the sections of a category the visitor may see.
func ListSections(ev *permission.Evaluator, tree store.Tree) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		id, err := paramID(c, "id")
		if err != nil {
			respondError(c, err)
			return
		}
		category, err := tree.Category(ctx, id)
		if err != nil {
			respondError(c, err)
			return
		}
		sections, err := tree.SectionTree(ctx, id)
		if err != nil {
			respondError(c, err)
			return
		}
		viewer, err := access.LoadViewer(ctx, ev.Characters(), middleware.CurrentUser(c))
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"category": category,
			"sections": ev.Access().FilterSections(viewer, sections, category),
		})
	}
}

// CreateSection creates a section, or a subsection when a parent is given.
func CreateSection(ev *permission.Evaluator, svc *forum.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		var input forum.SectionInput
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		parent, err := input.Parent()
		if err != nil {
			respondError(c, err)
			return
		}
		name, res := permission.SectionCreate, permission.Resource{}
		if parent.Type == model.EntitySection {
			name, res = permission.SubsectionCreate, permission.Resource{SectionID: parent.ID}
		}
		if !guard(c, ev, name, res, model.OpCreateSection, permission.RuleTarget{Entity: parent}) {
			return
		}
		section, err := svc.CreateSection(c.Request.Context(), input)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusCreated, section)
	}
}

// MoveSection re-parents a section.
func MoveSection(ev *permission.Evaluator, svc *forum.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := paramID(c, "id")
		if err != nil {
			respondError(c, err)
			return
		}
		var input struct {
			CategoryID      *uint `json:"category_id"`
			ParentSectionID *uint `json:"parent_section_id"`
		}
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		to, err := forum.SectionInput{CategoryID: input.CategoryID, ParentSectionID: input.ParentSectionID}.Parent()
		if err != nil {
			respondError(c, err)
			return
		}
		if !guard(c, ev, permission.SectionMove, permission.Resource{SectionID: id}, model.OpMoveChildren, permission.RuleTarget{Entity: to}) {
			return
		}
		if err := svc.MoveSection(c.Request.Context(), id, to); err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"message": "Section moved"})
	}
}

func CreateTopic(ev *permission.Evaluator, svc *forum.Service, quotas *quota.Checker) gin.HandlerFunc {
	return func(c *gin.Context) {
		var input forum.TopicInput
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		section := model.EntityRef{Type: model.EntitySection, ID: input.SectionID}
		if !guard(c, ev, permission.TopicCreate, permission.Resource{SectionID: input.SectionID}, model.OpCreateTopic, permission.RuleTarget{Entity: section}) {
			return
		}
		if !checkQuota(c, quotas, quota.Topics) {
			return
		}
		by, err := author(c, ev)
		if err != nil {
			respondError(c, err)
			return
		}
		topic, err := svc.CreateTopic(c.Request.Context(), input, by)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusCreated, topic)
	}
}

// ListPosts returns the posts of a topic the visitor may view.
func ListPosts(ev *permission.Evaluator, tree store.Tree, svc *forum.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := paramID(c, "id")
		if err != nil {
			respondError(c, err)
			return
		}
		topic, err := tree.Topic(c.Request.Context(), id)
		if err != nil {
			respondError(c, err)
			return
		}
		if !topic.IsActive {
			respondError(c, apperr.NotFoundf("topic %d", id))
			return
		}
		ctx := c.Request.Context()
		user := middleware.CurrentUser(c)
		viewer, err := access.LoadViewer(ctx, ev.Characters(), user)
		if err != nil {
			respondError(c, err)
			return
		}
		if !canSeeTopic(c, ev, tree, viewer, topic) {
			return
		}
		if !ev.Allowed(ctx, user, model.OpView, permission.RuleTarget{Entity: model.EntityRef{Type: model.EntityTopic, ID: id}}) {
			c.JSON(http.StatusForbidden, gin.H{"error": "topic is not visible"})
			return
		}
		posts, err := svc.Posts(ctx, id)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"topic": topic, "posts": posts})
	}
}

func canSeeTopic(c *gin.Context, ev *permission.Evaluator, tree store.Tree, viewer *access.Viewer, topic *model.Topic) bool {
	ctx := c.Request.Context()
	path, err := ev.Hierarchy().Walk(ctx, topic.SectionID)
	if err != nil {
		respondError(c, err)
		return false
	}
	category, err := tree.Category(ctx, path.CategoryID)
	if err != nil {
		respondError(c, err)
		return false
	}
	// a hidden ancestor hides everything below it
	for i := range path.Sections {
		if !ev.Access().CanAccessSection(viewer, &path.Sections[i], category) {
			c.JSON(http.StatusForbidden, gin.H{"error": "topic is not visible"})
			return false
		}
	}
	return true
}

func CreatePost(ev *permission.Evaluator, svc *forum.Service, quotas *quota.Checker) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := paramID(c, "id")
		if err != nil {
			respondError(c, err)
			return
		}
		var input forum.PostInput
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		input.TopicID = id
		topic := model.EntityRef{Type: model.EntityTopic, ID: id}
		if !guard(c, ev, permission.PostCreate, permission.Resource{TopicID: id}, model.OpReply, permission.RuleTarget{Entity: topic}) {
			return
		}
		if !checkQuota(c, quotas, quota.Posts) {
			return
		}
		by, err := author(c, ev)
		if err != nil {
			respondError(c, err)
			return
		}
		post, err := svc.CreatePost(c.Request.Context(), input, by)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusCreated, post)
	}
}

func DeleteTopic(ev *permission.Evaluator, tree store.Tree, svc *forum.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := paramID(c, "id")
		if err != nil {
			respondError(c, err)
			return
		}
		topic, err := tree.Topic(c.Request.Context(), id)
		if err != nil {
			respondError(c, err)
			return
		}
		res := permission.Resource{TopicID: id, AuthorUserID: deref(topic.AuthorUserID)}
		tgt := permission.RuleTarget{
			Entity:            model.EntityRef{Type: model.EntityTopic, ID: id},
			AuthorUserID:      deref(topic.AuthorUserID),
			AuthorCharacterID: deref(topic.AuthorCharacterID),
		}
		if !guard(c, ev, permission.TopicDelete, res, model.OpEditDelete, tgt) {
			return
		}
		if err := svc.DeleteTopic(c.Request.Context(), id); err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"message": "Topic deleted"})
	}
}

func DeletePost(ev *permission.Evaluator, svc *forum.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := paramID(c, "id")
		if err != nil {
			respondError(c, err)
			return
		}
		post, err := svc.Post(c.Request.Context(), id)
		if err != nil {
			respondError(c, err)
			return
		}
		res := permission.Resource{TopicID: post.TopicID, AuthorUserID: deref(post.AuthorUserID)}
		tgt := permission.RuleTarget{
			Entity:            model.EntityRef{Type: model.EntityTopic, ID: post.TopicID},
			AuthorUserID:      deref(post.AuthorUserID),
			AuthorCharacterID: deref(post.AuthorCharacterID),
		}
		if !guard(c, ev, permission.PostDelete, res, model.OpEditDelete, tgt) {
			return
		}
		topicDeleted, err := svc.DeletePost(c.Request.Context(), id)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"message": "Post deleted", "topic_deleted": topicDeleted})
	}
}

// TopicResource locates a check on the topic named by the :id parameter.
func TopicResource(c *gin.Context) (permission.Resource, error) {
	id, err := paramID(c, "id")
	return permission.Resource{TopicID: id}, err
}

// TopicDestination locates a check on the section named by :section_id while
// keeping the overrides of the topic named by :id.
func TopicDestination(c *gin.Context) (permission.Resource, error) {
	res, err := TopicResource(c)
	if err != nil {
		return res, err
	}
	res.SectionID, err = paramID(c, "section_id")
	return res, err
}

// MoveTopic moves a topic to another section. Routes guard it with
// middleware.RequirePermission on both the topic and its destination.
func MoveTopic(svc *forum.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		res, err := TopicDestination(c)
		if err != nil {
			respondError(c, err)
			return
		}
		if err := svc.MoveTopic(c.Request.Context(), res.TopicID, res.SectionID); err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"message": "Topic moved"})
	}
}

// SetTopicFlag locks, unlocks, pins or unpins a topic.
func SetTopicFlag(ev *permission.Evaluator, svc *forum.Service, flag string) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := paramID(c, "id")
		if err != nil {
			respondError(c, err)
			return
		}
		var input struct {
			Value bool `json:"value"`
		}
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		var name string
		switch {
		case flag == "lock" && input.Value:
			name = permission.TopicLock
		case flag == "lock":
			name = permission.TopicUnlock
		case flag == "pin" && input.Value:
			name = permission.TopicPin
		case flag == "pin":
			name = permission.TopicUnpin
		default:
			respondError(c, apperr.Invalidf("unknown topic flag %q", flag))
			return
		}
		tgt := permission.RuleTarget{Entity: model.EntityRef{Type: model.EntityTopic, ID: id}}
		if !guard(c, ev, name, permission.Resource{TopicID: id}, model.OpPinLock, tgt) {
			return
		}
		if flag == "lock" {
			err = svc.SetLocked(c.Request.Context(), id, input.Value)
		} else {
			err = svc.SetPinned(c.Request.Context(), id, input.Value)
		}
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"message": "Topic updated"})
	}
}
