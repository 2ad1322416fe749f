package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"rpg-forum/internal/api/middleware"
	"rpg-forum/internal/app"
	"rpg-forum/internal/config"
	"rpg-forum/internal/model"
	"rpg-forum/internal/permission"
	"rpg-forum/internal/store"
)

const testSecret = "test-secret"

func init() {
	gin.SetMode(gin.TestMode)
}

type env struct {
	t      *testing.T
	app    *app.App
	router *gin.Engine

	general  model.Category
	roleplay model.Category
	square   model.Section
	guild    model.Section
	lobby    model.Section

	adminToken  string
	playerID    uint
	playerToken string
	otherToken  string
}

func uintPtr(v uint) *uint { return &v }

func setup(t *testing.T) *env {
	t.Helper()
	cfg := config.Default()
	cfg.Database.Path = store.MemoryDSN

	reg := prometheus.NewRegistry()
	a, err := app.Open(context.Background(), cfg, zap.NewNop(), permission.WithMetrics(permission.NewMetrics(reg)))
	require.NoError(t, err)

	e := &env{t: t, app: a}
	e.router = NewRouter(Deps{
		Store:     a.Store,
		Evaluator: a.Evaluator,
		Forum:     a.Forum,
		Quotas:    a.Quotas,
		Config:    cfg,
		JWTSecret: testSecret,
		Logger:    zap.NewNop(),
		Gatherer:  reg,
	})

	db := a.DB
	faction := model.Faction{Name: "Leaf", IsActive: true}
	require.NoError(t, db.Create(&faction).Error)

	e.general = model.Category{Name: "General", Slug: "general", IsActive: true}
	e.roleplay = model.Category{Name: "Roleplay", Slug: "roleplay", IsActive: true}
	require.NoError(t, db.Create(&e.general).Error)
	require.NoError(t, db.Create(&e.roleplay).Error)

	e.square = model.Section{Name: "Square", CategoryID: &e.roleplay.ID, IsActive: true}
	e.guild = model.Section{Name: "Guild hall", CategoryID: &e.roleplay.ID, VisibleByFactionID: &faction.ID, IsActive: true}
	e.lobby = model.Section{Name: "Lobby", CategoryID: &e.general.ID, IsActive: true}
	for _, s := range []*model.Section{&e.square, &e.guild, &e.lobby} {
		require.NoError(t, db.Create(s).Error)
	}

	admin, err := a.Store.User(context.Background(), 1)
	require.NoError(t, err)
	e.adminToken = e.token(admin)

	player := e.createPlayer("ayla")
	e.playerID = player.ID
	e.playerToken = e.token(player)
	e.otherToken = e.token(e.createPlayer("bren"))
	return e
}

func (e *env) createPlayer(name string) *model.User {
	e.t.Helper()
	u := model.User{
		Username:           name,
		Password:           "secret123",
		TokenVersion:       1,
		Role:               model.RolePlayer,
		IsActive:           true,
		TermsAccepted:      true,
		ForumRulesAccepted: true,
	}
	require.NoError(e.t, e.app.DB.Create(&u).Error)
	c := model.Character{Name: name + " the wanderer", UserID: &u.ID, IsAlive: true, IsActive: true}
	require.NoError(e.t, e.app.DB.Create(&c).Error)
	return &u
}

func (e *env) token(u *model.User) string {
	e.t.Helper()
	tok, err := middleware.IssueToken(u, testSecret, time.Hour)
	require.NoError(e.t, err)
	return tok
}

func (e *env) do(method, path, token string, body any) *httptest.ResponseRecorder {
	e.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(e.t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder, v any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), v), w.Body.String())
}

func TestLogin(t *testing.T) {
	e := setup(t)

	w := e.do(http.MethodPost, "/api/v1/login", "", gin.H{"username": "admin", "password": "admin123"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var out struct {
		Token string     `json:"token"`
		Role  model.Role `json:"role"`
	}
	decode(t, w, &out)
	assert.NotEmpty(t, out.Token)
	assert.Equal(t, model.RoleAdmin, out.Role)

	w = e.do(http.MethodGet, "/api/v1/me/status", out.Token, nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestLogin_LocksOutAfterRepeatedFailures(t *testing.T) {
	e := setup(t)
	for i := 0; i < e.app.Config.Auth.MaxLoginFailures; i++ {
		w := e.do(http.MethodPost, "/api/v1/login", "", gin.H{"username": "ayla", "password": "wrong"})
		require.Equal(t, http.StatusUnauthorized, w.Code)
	}
	w := e.do(http.MethodPost, "/api/v1/login", "", gin.H{"username": "ayla", "password": "secret123"})
	assert.Equal(t, http.StatusTooManyRequests, w.Code)

	w = e.do(http.MethodPost, "/api/v1/login", "", gin.H{"username": "bren", "password": "secret123"})
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestCheckPermission(t *testing.T) {
	e := setup(t)

	w := e.do(http.MethodGet, fmt.Sprintf("/api/v1/permissions/check?permission=topic.create&section_id=%d", e.square.ID), e.playerToken, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var d permission.Decision
	decode(t, w, &d)
	assert.True(t, d.Allowed)
	assert.Equal(t, permission.StepRolePermission, d.Step)

	w = e.do(http.MethodGet, fmt.Sprintf("/api/v1/permissions/check?permission=topic.create&section_id=%d", e.guild.ID), e.playerToken, nil)
	require.Equal(t, http.StatusOK, w.Code)
	decode(t, w, &d)
	assert.False(t, d.Allowed)
	assert.Equal(t, permission.StepSectionAccess, d.Step)

	w = e.do(http.MethodGet, "/api/v1/permissions/check?permission=forum.teleport", e.playerToken, nil)
	assert.Equal(t, http.StatusInternalServerError, w.Code)

	w = e.do(http.MethodGet, "/api/v1/permissions/check", e.playerToken, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = e.do(http.MethodGet, "/api/v1/permissions/check?permission=topic.view", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestListSections_FiltersByVisibility(t *testing.T) {
	e := setup(t)
	names := func(token string) []string {
		w := e.do(http.MethodGet, fmt.Sprintf("/api/v1/categories/%d/sections", e.roleplay.ID), token, nil)
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		var out struct {
			Sections []model.Section `json:"sections"`
		}
		decode(t, w, &out)
		var got []string
		for _, s := range out.Sections {
			got = append(got, s.Name)
		}
		return got
	}

	assert.Empty(t, names(""))
	assert.Equal(t, []string{"Square"}, names(e.playerToken))
	assert.ElementsMatch(t, []string{"Square", "Guild hall"}, names(e.adminToken))
}

func TestForumPermissions_ReadAndWrite(t *testing.T) {
	e := setup(t)
	path := fmt.Sprintf("/api/v1/forum-permissions/section/%d", e.square.ID)

	w := e.do(http.MethodGet, path, "", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var out struct {
		Permissions map[model.Operation]permission.ResolvedRule `json:"permissions"`
	}
	decode(t, w, &out)
	assert.Len(t, out.Permissions, len(model.Operations))
	assert.True(t, out.Permissions[model.OpView].IsDefault)

	rule := gin.H{"role_level": "admin_moderator", "character_requirement": "none"}
	w = e.do(http.MethodPut, fmt.Sprintf("/api/v1/forum-permissions/category/%d/create_topic", e.roleplay.ID), e.playerToken, rule)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = e.do(http.MethodPut, fmt.Sprintf("/api/v1/forum-permissions/category/%d/create_topic", e.roleplay.ID), e.adminToken, rule)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = e.do(http.MethodGet, path, "", nil)
	decode(t, w, &out)
	got := out.Permissions[model.OpCreateTopic]
	assert.True(t, got.Inherited)
	assert.False(t, got.IsDefault)
	assert.Equal(t, model.LevelAdminModerator, got.Rule.RoleLevel)

	w = e.do(http.MethodPut, fmt.Sprintf("/api/v1/forum-permissions/section/%d/teleport", e.square.ID), e.adminToken, rule)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	w = e.do(http.MethodPut, "/api/v1/forum-permissions/section/999/view", e.adminToken, rule)
	assert.Equal(t, http.StatusNotFound, w.Code)
	w = e.do(http.MethodGet, "/api/v1/forum-permissions/category/9999", "", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	w = e.do(http.MethodPut, path+"/view", e.adminToken, gin.H{"role_level": "everyone"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestOverrides_Validation(t *testing.T) {
	e := setup(t)
	path := fmt.Sprintf("/api/v1/sections/%d/overrides", e.square.ID)

	w := e.do(http.MethodPost, path, e.adminToken, gin.H{"permission": "topic.create", "role": "player", "user_id": e.playerID})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	w = e.do(http.MethodPost, path, e.adminToken, gin.H{"permission": "topic.create"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	w = e.do(http.MethodPost, path, e.adminToken, gin.H{"permission": "topic.teleport", "role": "player"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = e.do(http.MethodPost, path, e.adminToken, gin.H{"permission": "topic.create", "user_id": e.playerID, "granted": false})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = e.do(http.MethodPost, "/api/v1/topics", e.playerToken, gin.H{"section_id": e.square.ID, "title": "Hello", "content": "First"})
	assert.Equal(t, http.StatusForbidden, w.Code)
	w = e.do(http.MethodPost, "/api/v1/topics", e.otherToken, gin.H{"section_id": e.square.ID, "title": "Hello", "content": "First"})
	assert.Equal(t, http.StatusCreated, w.Code)
}

func TestCreateTopic_StoredRuleRestricts(t *testing.T) {
	e := setup(t)
	rule := gin.H{"role_level": "admin_moderator_gm_player", "character_requirement": "faction_member"}
	w := e.do(http.MethodPut, fmt.Sprintf("/api/v1/forum-permissions/section/%d/create_topic", e.square.ID), e.adminToken, rule)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = e.do(http.MethodPost, "/api/v1/topics", e.playerToken, gin.H{"section_id": e.square.ID, "title": "Hello", "content": "First"})
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestCreateTopic_Quota(t *testing.T) {
	e := setup(t)
	body := gin.H{"section_id": e.square.ID, "title": "Daily", "content": "Entry"}
	// a character with neither faction nor clan gets three topics a day
	for i := 0; i < 3; i++ {
		w := e.do(http.MethodPost, "/api/v1/topics", e.playerToken, body)
		require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	}
	w := e.do(http.MethodPost, "/api/v1/topics", e.playerToken, body)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)

	w = e.do(http.MethodPost, "/api/v1/topics", e.adminToken, body)
	assert.Equal(t, http.StatusCreated, w.Code)
}

func TestDeletePost_AuthorAndStranger(t *testing.T) {
	e := setup(t)
	w := e.do(http.MethodPost, "/api/v1/topics", e.playerToken, gin.H{"section_id": e.square.ID, "title": "Mine", "content": "Opening"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var topic model.Topic
	decode(t, w, &topic)

	w = e.do(http.MethodGet, fmt.Sprintf("/api/v1/topics/%d/posts", topic.ID), e.playerToken, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var listing struct {
		Posts []model.Post `json:"posts"`
	}
	decode(t, w, &listing)
	require.Len(t, listing.Posts, 1)
	postPath := fmt.Sprintf("/api/v1/posts/%d", listing.Posts[0].ID)

	w = e.do(http.MethodDelete, postPath, e.otherToken, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = e.do(http.MethodDelete, postPath, e.playerToken, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var out struct {
		TopicDeleted bool `json:"topic_deleted"`
	}
	decode(t, w, &out)
	assert.True(t, out.TopicDeleted)

	w = e.do(http.MethodGet, fmt.Sprintf("/api/v1/topics/%d/posts", topic.ID), e.playerToken, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestListPosts_AnonymousInRoleplay(t *testing.T) {
	e := setup(t)
	w := e.do(http.MethodPost, "/api/v1/topics", e.adminToken, gin.H{"section_id": e.square.ID, "title": "Notice", "content": "Hi"})
	require.Equal(t, http.StatusCreated, w.Code)
	var topic model.Topic
	decode(t, w, &topic)

	w = e.do(http.MethodGet, fmt.Sprintf("/api/v1/topics/%d/posts", topic.ID), "", nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestLockTopic(t *testing.T) {
	e := setup(t)
	w := e.do(http.MethodPost, "/api/v1/topics", e.playerToken, gin.H{"section_id": e.square.ID, "title": "Tavern", "content": "Open"})
	require.Equal(t, http.StatusCreated, w.Code)
	var topic model.Topic
	decode(t, w, &topic)
	lock := fmt.Sprintf("/api/v1/topics/%d/lock", topic.ID)

	w = e.do(http.MethodPut, lock, e.playerToken, gin.H{"value": true})
	assert.Equal(t, http.StatusForbidden, w.Code)
	w = e.do(http.MethodPut, lock, e.adminToken, gin.H{"value": true})
	require.Equal(t, http.StatusOK, w.Code)

	w = e.do(http.MethodPost, fmt.Sprintf("/api/v1/topics/%d/posts", topic.ID), e.playerToken, gin.H{"content": "Late"})
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestMoveTopic(t *testing.T) {
	e := setup(t)
	w := e.do(http.MethodPost, "/api/v1/topics", e.playerToken, gin.H{"section_id": e.square.ID, "title": "Lost", "content": "Where am I"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var topic model.Topic
	decode(t, w, &topic)
	move := fmt.Sprintf("/api/v1/topics/%d/section/%d", topic.ID, e.lobby.ID)

	w = e.do(http.MethodPut, move, e.playerToken, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	mod := e.createPlayer("cale")
	require.NoError(t, e.app.DB.Model(mod).Update("role", model.RoleModerator).Error)
	modToken := e.token(mod)

	w = e.do(http.MethodPut, fmt.Sprintf("/api/v1/topics/%d/section/x", topic.ID), modToken, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = e.do(http.MethodPut, move, modToken, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	stored, err := e.app.Store.Topic(context.Background(), topic.ID)
	require.NoError(t, err)
	assert.Equal(t, e.lobby.ID, stored.SectionID)
}

func TestAdminRoutes_RequireAdmin(t *testing.T) {
	e := setup(t)
	w := e.do(http.MethodGet, "/api/v1/users", e.playerToken, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
	w = e.do(http.MethodGet, "/api/v1/users", e.adminToken, nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = e.do(http.MethodPut, "/api/v1/role-permissions", e.adminToken, gin.H{
		"grants": []gin.H{{"role": "player", "permission": "topic.lock", "granted": true}},
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	w = e.do(http.MethodPut, "/api/v1/role-permissions", e.adminToken, gin.H{
		"grants": []gin.H{{"role": "wizard", "permission": "topic.lock", "granted": true}},
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	before, err := e.app.Store.RolePermission(context.Background(), model.RolePlayer, "topic.pin")
	require.NoError(t, err)
	w = e.do(http.MethodPut, "/api/v1/role-permissions", e.adminToken, gin.H{
		"grants": []gin.H{
			{"role": "player", "permission": "topic.pin", "granted": true},
			{"role": "player", "permission": "topic.teleport", "granted": true},
		},
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	after, err := e.app.Store.RolePermission(context.Background(), model.RolePlayer, "topic.pin")
	require.NoError(t, err)
	assert.Equal(t, before, after, "a rejected batch leaves the role table untouched")
}

func TestMetricsEndpoint(t *testing.T) {
	e := setup(t)
	e.do(http.MethodGet, "/api/v1/permissions/check?permission=topic.view", e.adminToken, nil)
	e.do(http.MethodPost, "/api/v1/topics", e.playerToken, gin.H{"section_id": e.square.ID, "title": "Count", "content": "me"})

	w := e.do(http.MethodGet, "/metrics", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "rpgforum_permission_decisions_total")
}
