package config

import (
	"fmt"
	"time"

	"github.com/rpattn/dashclone/internal/db"
	"github.com/rpattn/dashclone/internal/identify"
	"github.com/rpattn/dashclone/internal/metabase"
	"github.com/spf13/viper"
)

// ServiceConfig is everything the auto-clone service needs to start.
type ServiceConfig struct {
	Metabase         metabase.Config
	Database         db.Config
	ListenAddr       string
	SchedulerEnabled bool
	CheckInterval    time.Duration
	MigrationsDir    string

	// Signatures overrides the built-in database-type signature tables.
	Signatures identify.Signatures
}

// DefaultServiceConfig returns the service defaults: a four-hour check
// cycle and a local listener.
func DefaultServiceConfig() ServiceConfig {
	return ServiceConfig{
		Metabase:         metabase.DefaultConfig(),
		Database:         db.DefaultConfig(),
		ListenAddr:       ":8090",
		SchedulerEnabled: true,
		CheckInterval:    4 * time.Hour,
		MigrationsDir:    "migrations",
		Signatures:       identify.DefaultSignatures(),
	}
}

// Load reads config.yaml from configPath, with environment overrides under
// the DASHCLONE prefix (DASHCLONE_METABASE_URL and friends).
func Load(configPath string) (ServiceConfig, error) {
	// Start with default
	cfg := DefaultServiceConfig()

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(configPath)
	v.AutomaticEnv() // allow environment overrides
	v.SetEnvPrefix("DASHCLONE")

	// Optional: Map nested keys to flat env vars
	v.BindEnv("metabase.url")
	v.BindEnv("metabase.username")
	v.BindEnv("metabase.password")
	v.BindEnv("service.listen_addr")
	v.BindEnv("service.scheduler_enabled")
	v.BindEnv("service.check_interval")
	v.BindEnv("service.migrations_dir")
	v.BindEnv("database.host")
	v.BindEnv("database.port")
	v.BindEnv("database.user")
	v.BindEnv("database.password")
	v.BindEnv("database.dbname")
	v.BindEnv("database.sslmode")

	if err := v.ReadInConfig(); err != nil {
		// Config file not found? Just log it, use defaults + env
		fmt.Println("No config.yaml found, using defaults and env vars")
	} else {
		fmt.Println("Loaded config.yaml")
	}

	// Override defaults if values exist
	if v.IsSet("metabase.url") {
		cfg.Metabase.BaseURL = v.GetString("metabase.url")
	}
	if v.IsSet("metabase.username") {
		cfg.Metabase.Username = v.GetString("metabase.username")
	}
	if v.IsSet("metabase.password") {
		cfg.Metabase.Password = v.GetString("metabase.password")
	}
	if v.IsSet("service.listen_addr") {
		cfg.ListenAddr = v.GetString("service.listen_addr")
	}
	if v.IsSet("service.scheduler_enabled") {
		cfg.SchedulerEnabled = v.GetBool("service.scheduler_enabled")
	}
	if v.IsSet("service.check_interval") {
		cfg.CheckInterval = v.GetDuration("service.check_interval")
	}
	if v.IsSet("service.migrations_dir") {
		cfg.MigrationsDir = v.GetString("service.migrations_dir")
	}
	if v.IsSet("database.host") {
		cfg.Database.Host = v.GetString("database.host")
	}
	if v.IsSet("database.port") {
		cfg.Database.Port = v.GetInt("database.port")
	}
	if v.IsSet("database.user") {
		cfg.Database.User = v.GetString("database.user")
	}
	if v.IsSet("database.password") {
		cfg.Database.Password = v.GetString("database.password")
	}
	if v.IsSet("database.dbname") {
		cfg.Database.DBName = v.GetString("database.dbname")
	}
	if v.IsSet("database.sslmode") {
		cfg.Database.SSLMode = v.GetString("database.sslmode")
	}
	if v.IsSet("signatures") {
		cfg.Signatures = identify.Signatures(v.GetStringMapStringSlice("signatures"))
	}

	if cfg.Metabase.BaseURL == "" {
		return cfg, fmt.Errorf("metabase.url is required")
	}

	return cfg, nil
}
