// Package app assembles the forum from its configuration.
package app

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"rpg-forum/internal/access"
	"rpg-forum/internal/config"
	"rpg-forum/internal/forum"
	"rpg-forum/internal/model"
	"rpg-forum/internal/permission"
	"rpg-forum/internal/quota"
	"rpg-forum/internal/store"
)

const (
	jwtSecretFile = ".sk"

	initialAdmin         = "admin"
	initialAdminPassword = "admin123"
)

type App struct {
	Config    *config.Config
	Logger    *zap.Logger
	DB        *gorm.DB
	Store     *store.Gorm
	Evaluator *permission.Evaluator
	Forum     *forum.Service
	Quotas    *quota.Checker
}

// Open connects the database, migrates it, seeds the permission catalog and
// builds the services on top of it.
func Open(ctx context.Context, cfg *config.Config, log *zap.Logger, opts ...permission.Option) (*App, error) {
	if dir := filepath.Dir(cfg.Database.Path); cfg.Database.Path != store.MemoryDSN && dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("failed to create data directory: %w", err)
		}
	}
	db, err := store.OpenSQLite(cfg.Database.Path, log)
	if err != nil {
		return nil, err
	}
	if err := store.Migrate(db); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	st := store.NewGorm(db)
	if err := Seed(ctx, st, log); err != nil {
		return nil, err
	}

	cats, err := categories(db, cfg.Forum)
	if err != nil {
		return nil, err
	}
	ev := permission.New(st, permission.Config{
		Categories:        cats,
		MaxHierarchyDepth: cfg.Forum.MaxHierarchyDepth,
	}, append([]permission.Option{permission.WithLogger(log)}, opts...)...)

	return &App{
		Config:    cfg,
		Logger:    log,
		DB:        db,
		Store:     st,
		Evaluator: ev,
		Forum:     forum.NewService(db, ev.Hierarchy(), forum.WithLogger(log)),
		Quotas:    quota.NewChecker(st, ev.Characters()),
	}, nil
}

// Seed fills the permission catalog, gives roles their default grants when
// none are configured and creates the first administrator.
func Seed(ctx context.Context, st *store.Gorm, log *zap.Logger) error {
	if err := st.SeedPermissions(ctx, permission.Catalog...); err != nil {
		return err
	}
	db := st.DB().WithContext(ctx)

	var grants int64
	if err := db.Model(&model.RolePermission{}).Count(&grants).Error; err != nil {
		return err
	}
	if grants == 0 {
		for role, names := range permission.DefaultRoleGrants() {
			for _, name := range names {
				if err := st.SetRolePermission(ctx, role, name, true); err != nil {
					return err
				}
			}
		}
		log.Info("seeded default role permissions")
	}

	var users int64
	if err := db.Model(&model.User{}).Count(&users).Error; err != nil {
		return err
	}
	if users == 0 {
		admin := model.User{
			Username:           initialAdmin,
			Password:           initialAdminPassword,
			Role:               model.RoleAdmin,
			IsActive:           true,
			TermsAccepted:      true,
			ForumRulesAccepted: true,
		}
		if err := db.Create(&admin).Error; err != nil {
			return fmt.Errorf("failed to create initial admin: %w", err)
		}
		log.Warn("created initial admin user, change its password", zap.String("username", initialAdmin))
	}
	return nil
}

// categories applies the slug overrides stored in settings over the
// configured ones.
func categories(db *gorm.DB, cfg config.ForumConfig) (access.Categories, error) {
	cats := access.Categories{
		General:  cfg.GeneralCategorySlug,
		HRP:      cfg.HRPCategorySlug,
		Roleplay: cfg.RoleplayCategorySlug,
	}
	for key, slug := range map[string]*string{
		model.SettingGeneralCategorySlug:  &cats.General,
		model.SettingHRPCategorySlug:      &cats.HRP,
		model.SettingRoleplayCategorySlug: &cats.Roleplay,
	} {
		v, err := store.GetSetting(db, key)
		if err != nil {
			return cats, fmt.Errorf("failed to read setting %s: %w", key, err)
		}
		if v != "" {
			*slug = v
		}
	}
	return cats, nil
}

// JWTSecret returns the configured secret, or one generated and persisted
// next to the database.
func JWTSecret(cfg *config.Config, log *zap.Logger) (string, error) {
	if cfg.JWT.Secret != "" {
		return cfg.JWT.Secret, nil
	}
	path := filepath.Join(filepath.Dir(cfg.Database.Path), jwtSecretFile)
	secretBytes, err := os.ReadFile(path)
	if err == nil {
		log.Info("loaded JWT secret", zap.String("path", path))
		return string(secretBytes), nil
	}
	if !errors.Is(err, os.ErrNotExist) {
		return "", fmt.Errorf("failed to read JWT secret file: %w", err)
	}
	newSecret, err := generateRandomString(32)
	if err != nil {
		return "", fmt.Errorf("failed to generate JWT secret: %w", err)
	}
	if err := os.WriteFile(path, []byte(newSecret), 0o600); err != nil {
		return "", fmt.Errorf("failed to write JWT secret to file: %w", err)
	}
	log.Info("generated and saved new JWT secret", zap.String("path", path))
	return newSecret, nil
}

func generateRandomString(length int) (string, error) {
	bytes := make([]byte, length)
	if _, err := rand.Read(bytes); err != nil {
		return "", err
	}
	return hex.EncodeToString(bytes), nil
}
