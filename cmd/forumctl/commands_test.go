package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"rpg-forum/internal/app"
	"rpg-forum/internal/config"
	"rpg-forum/internal/model"
)

func setupConfig(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	body := "database:\n  path: " + filepath.ToSlash(filepath.Join(dir, "forum.db")) + "\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(body), 0o600))
	return dir
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	root := newRootCmd()
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func TestMigrate(t *testing.T) {
	dir := setupConfig(t)
	out, err := run(t, "--config", dir, "migrate")
	require.NoError(t, err)
	assert.Contains(t, out, "migrated")
}

func TestCheck_SeededAdmin(t *testing.T) {
	dir := setupConfig(t)
	out, err := run(t, "--config", dir, "check", "--user", "1", "--permission", "topic.create")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "allow\tadmin"), out)
}

func TestCheck_RequiresFlags(t *testing.T) {
	dir := setupConfig(t)
	_, err := run(t, "--config", dir, "check", "--user", "1")
	assert.Error(t, err)
}

func TestRules_DefaultsOnCategory(t *testing.T) {
	dir := setupConfig(t)
	cfg, err := config.Load(dir)
	require.NoError(t, err)
	a, err := app.Open(context.Background(), cfg, zap.NewNop())
	require.NoError(t, err)
	require.NoError(t, a.DB.Create(&model.Category{Name: "General", Slug: "general"}).Error)

	out, err := run(t, "--config", dir, "rules", "--entity", "category", "--id", "1")
	require.NoError(t, err)
	assert.Contains(t, out, "view\tall\tnone\tinherited=false")
	assert.Len(t, strings.Split(strings.TrimSpace(out), "\n"), len(model.Operations))
}

func TestStatus_NoCharacter(t *testing.T) {
	dir := setupConfig(t)
	out, err := run(t, "--config", dir, "status", "--user", "1")
	require.NoError(t, err)
	assert.Contains(t, out, `"status"`)
	assert.Contains(t, out, `"active_character": null`)
}
