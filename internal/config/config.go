package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config App-wide configuration
type Config struct {
	App      AppConfig
	Database DatabaseConfig
	JWT      JWTConfig
	Auth     AuthConfig
	Logging  LoggingConfig
	Forum    ForumConfig
}

type AppConfig struct {
	ListenAddr string
	Mode       string
}

type DatabaseConfig struct {
	Path string
}

// JWTConfig An empty Secret makes the server generate and persist one.
type JWTConfig struct {
	Secret      string
	ExpiryHours int
}

func (c JWTConfig) Expiry() time.Duration {
	return time.Duration(c.ExpiryHours) * time.Hour
}

// AuthConfig Login throttling
type AuthConfig struct {
	MaxLoginFailures int
	LockoutMinutes   int
}

func (c AuthConfig) Lockout() time.Duration {
	return time.Duration(c.LockoutMinutes) * time.Minute
}

type LoggingConfig struct {
	Level string
}

// ForumConfig Category slugs with special visibility and the hierarchy depth bound
type ForumConfig struct {
	GeneralCategorySlug  string
	HRPCategorySlug      string
	RoleplayCategorySlug string
	MaxHierarchyDepth    int
}

// Load reads config.yaml from path (and the usual fallbacks), then applies
// RPGF_* environment overrides. A missing file is not an error.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	if path != "" {
		v.AddConfigPath(path)
	}
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	v.SetEnvPrefix("RPGF")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	return parse(v)
}

// Default returns the configuration used when nothing is set.
func Default() *Config {
	v := viper.New()
	setDefaults(v)
	cfg, _ := parse(v)
	return cfg
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.listen_addr", ":9090")
	v.SetDefault("app.mode", "release")

	v.SetDefault("database.path", "data/forum.db")

	v.SetDefault("jwt.secret", "")
	v.SetDefault("jwt.expiry_hours", 24)

	v.SetDefault("auth.max_login_failures", 5)
	v.SetDefault("auth.lockout_minutes", 15)

	v.SetDefault("logging.level", "info")

	v.SetDefault("forum.general_category_slug", "general")
	v.SetDefault("forum.hrp_category_slug", "hrp")
	v.SetDefault("forum.roleplay_category_slug", "roleplay")
	v.SetDefault("forum.max_hierarchy_depth", 32)
}

func parse(v *viper.Viper) (*Config, error) {
	cfg := &Config{
		App: AppConfig{
			ListenAddr: v.GetString("app.listen_addr"),
			Mode:       v.GetString("app.mode"),
		},
		Database: DatabaseConfig{
			Path: v.GetString("database.path"),
		},
		JWT: JWTConfig{
			Secret:      v.GetString("jwt.secret"),
			ExpiryHours: v.GetInt("jwt.expiry_hours"),
		},
		Auth: AuthConfig{
			MaxLoginFailures: v.GetInt("auth.max_login_failures"),
			LockoutMinutes:   v.GetInt("auth.lockout_minutes"),
		},
		Logging: LoggingConfig{
			Level: v.GetString("logging.level"),
		},
		Forum: ForumConfig{
			GeneralCategorySlug:  v.GetString("forum.general_category_slug"),
			HRPCategorySlug:      v.GetString("forum.hrp_category_slug"),
			RoleplayCategorySlug: v.GetString("forum.roleplay_category_slug"),
			MaxHierarchyDepth:    v.GetInt("forum.max_hierarchy_depth"),
		},
	}
	if cfg.Forum.MaxHierarchyDepth <= 0 {
		return nil, fmt.Errorf("forum.max_hierarchy_depth must be positive, got %d", cfg.Forum.MaxHierarchyDepth)
	}
	return cfg, nil
}
