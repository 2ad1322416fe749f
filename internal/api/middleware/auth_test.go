package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rpg-forum/internal/access"
	"rpg-forum/internal/model"
	"rpg-forum/internal/permission"
	"rpg-forum/internal/store"
)

const secret = "test-secret"

func init() {
	gin.SetMode(gin.TestMode)
}

func users() *store.Memory {
	m := store.NewMemory()
	m.PutUser(model.User{ID: 1, Username: "mod", Role: model.RoleModerator, IsActive: true, TokenVersion: 1, TermsAccepted: true})
	m.PutUser(model.User{ID: 2, Username: "player", Role: model.RolePlayer, IsActive: true, TokenVersion: 1, TermsAccepted: true})
	m.PutUser(model.User{ID: 3, Username: "banned", Role: model.RolePlayer, TokenVersion: 1})
	return m
}

func token(t *testing.T, m *store.Memory, id uint) string {
	t.Helper()
	user, err := m.User(context.Background(), id)
	require.NoError(t, err)
	tok, err := IssueToken(user, secret, time.Hour)
	require.NoError(t, err)
	return tok
}

func serve(r *gin.Engine, method, path, tok string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	if tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func whoami(c *gin.Context) {
	user := CurrentUser(c)
	if user == nil {
		c.JSON(http.StatusOK, gin.H{"user": "anonymous"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"user": user.Username})
}

func TestAuthMiddleware(t *testing.T) {
	m := users()
	r := gin.New()
	r.GET("/me", AuthMiddleware(m, secret), whoami)

	w := serve(r, http.MethodGet, "/me", token(t, m, 1))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"mod"`)

	assert.Equal(t, http.StatusUnauthorized, serve(r, http.MethodGet, "/me", "").Code)
	assert.Equal(t, http.StatusUnauthorized, serve(r, http.MethodGet, "/me", "garbage").Code)
	assert.Equal(t, http.StatusForbidden, serve(r, http.MethodGet, "/me", token(t, m, 3)).Code)

	stale := token(t, m, 2)
	m.PutUser(model.User{ID: 2, Username: "player", Role: model.RolePlayer, IsActive: true, TokenVersion: 2})
	assert.Equal(t, http.StatusUnauthorized, serve(r, http.MethodGet, "/me", stale).Code)

	other, err := IssueToken(&model.User{ID: 1, TokenVersion: 1}, "other-secret", time.Hour)
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, serve(r, http.MethodGet, "/me", other).Code)
}

func TestOptionalAuth(t *testing.T) {
	m := users()
	r := gin.New()
	r.GET("/me", OptionalAuth(m, secret), whoami)

	w := serve(r, http.MethodGet, "/me", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "anonymous")

	w = serve(r, http.MethodGet, "/me?token="+token(t, m, 2), "")
	assert.Contains(t, w.Body.String(), `"player"`)
}

func TestRoleCheck(t *testing.T) {
	m := users()
	r := gin.New()
	r.GET("/staff", AuthMiddleware(m, secret), RoleCheck(model.RoleGameMaster), whoami)

	assert.Equal(t, http.StatusOK, serve(r, http.MethodGet, "/staff", token(t, m, 1)).Code)
	assert.Equal(t, http.StatusForbidden, serve(r, http.MethodGet, "/staff", token(t, m, 2)).Code)
}

func TestRequirePermission(t *testing.T) {
	m := users()
	m.AddPermissions(permission.Catalog...)
	m.SetRolePermission(model.RoleModerator, permission.TopicMove, true)
	ev := permission.New(m, permission.Config{Categories: access.Categories{General: "general"}})

	r := gin.New()
	r.POST("/move", AuthMiddleware(m, secret), RequirePermission(ev, permission.TopicMove, nil), whoami)

	assert.Equal(t, http.StatusOK, serve(r, http.MethodPost, "/move", token(t, m, 1)).Code)
	assert.Equal(t, http.StatusForbidden, serve(r, http.MethodPost, "/move", token(t, m, 2)).Code)
}

func TestCORSMiddleware(t *testing.T) {
	r := gin.New()
	r.Use(CORSMiddleware())
	r.GET("/x", whoami)

	w := serve(r, http.MethodOptions, "/x", "")
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
}
