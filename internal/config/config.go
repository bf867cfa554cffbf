package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// 不安全的默认值列表 (生产环境不应使用)
var insecureDefaults = map[string]bool{
	"your-secret-key-change-in-production": true,
	"super-secret-jwt-token":               true,
	"":                                     true,
}

const (
	PasswordModeRandom = "random"
	PasswordModeLegacy = "legacy"
)

type Config struct {
	Server      ServerConfig      `yaml:"server"`
	Database    DatabaseConfig    `yaml:"database"`
	JWT         JWTConfig         `yaml:"jwt"`
	Pterodactyl PterodactylConfig `yaml:"pterodactyl"`
	Directory   DirectoryConfig   `yaml:"directory"`
	Quota       QuotaConfig       `yaml:"quota"`
	RateLimit   RateLimitConfig   `yaml:"rate_limit"`
	Reconcile   ReconcileConfig   `yaml:"reconcile"`
	Log         LogConfig         `yaml:"log"`
}

type ServerConfig struct {
	Port            string        `yaml:"port"`
	Mode            string        `yaml:"mode"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

type DatabaseConfig struct {
	Driver      string `yaml:"driver"` // postgres, memory
	Host        string `yaml:"host"`
	Port        string `yaml:"port"`
	User        string `yaml:"user"`
	Password    string `yaml:"password"`
	DBName      string `yaml:"dbname"`
	Schema      string `yaml:"schema"`
	SSLMode     string `yaml:"sslmode"`
	MaxConns    int    `yaml:"max_conns"`
	MinConns    int    `yaml:"min_conns"`
	AutoMigrate bool   `yaml:"auto_migrate"`
}

type JWTConfig struct {
	SecretKey string `yaml:"secret_key"`
}

// PterodactylConfig holds the defaults applied to every backing instance.
type PterodactylConfig struct {
	Timeout        time.Duration     `yaml:"timeout"`
	ReadRetries    int               `yaml:"read_retries"`
	EmailDomain    string            `yaml:"email_domain"`
	PasswordMode   string            `yaml:"password_mode"`
	PasswordSuffix string            `yaml:"password_suffix"`
	DockerImage    string            `yaml:"docker_image"`
	Startup        string            `yaml:"startup"`
	Environment    map[string]string `yaml:"environment"`
	IO             int               `yaml:"io"`
}

type DirectoryConfig struct {
	CacheTTL time.Duration `yaml:"cache_ttl"`
}

// QuotaConfig is the free tier. Paid roles are not limited.
type QuotaConfig struct {
	FreeMaxPanels    int `yaml:"free_max_panels"`
	PremiumMaxPanels int `yaml:"premium_max_panels"` // 0 = unlimited; resellers and admins are never capped
	FreeRAM       int `yaml:"free_ram"`
	FreeCPU       int `yaml:"free_cpu"`
	FreeDisk      int `yaml:"free_disk"`
}

type RateLimitConfig struct {
	RequestsPerMinute int `yaml:"requests_per_minute"`
	CreatesPerHour    int `yaml:"creates_per_hour"`
}

// ReconcileConfig sizes the worker pool that scans instances for orphans.
type ReconcileConfig struct {
	Workers int `yaml:"workers"`
}

type LogConfig struct {
	Level string `yaml:"level"`
}

func defaults() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            "8005",
			Mode:            "release",
			ShutdownTimeout: 30 * time.Second,
		},
		Database: DatabaseConfig{
			Driver:   "postgres",
			Host:     "localhost",
			Port:     "5432",
			User:     "postgres",
			Password: "postgres",
			DBName:   "postgres",
			Schema:   "public",
			SSLMode:  "disable",
			MaxConns: 25,
			MinConns: 5,
		},
		Pterodactyl: PterodactylConfig{
			Timeout:        10 * time.Second,
			EmailDomain:    "valtp.net",
			PasswordMode:   PasswordModeRandom,
			PasswordSuffix: "2323",
			DockerImage:    "ghcr.io/parkervcp/yolks:nodejs_18",
			Startup:        "npm start",
			Environment: map[string]string{
				"INST":        "npm",
				"USER_UPLOAD": "0",
				"AUTO_UPDATE": "0",
				"CMD_RUN":     "npm start",
			},
			IO: 500,
		},
		Directory: DirectoryConfig{
			CacheTTL: 30 * time.Second,
		},
		Quota: QuotaConfig{
			FreeMaxPanels:    1,
			PremiumMaxPanels: 10,
			FreeRAM:          1024,
			FreeCPU:          40,
			FreeDisk:         1024,
		},
		RateLimit: RateLimitConfig{
			RequestsPerMinute: 30,
			CreatesPerHour:    5,
		},
		Reconcile: ReconcileConfig{
			Workers: 4,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load builds the configuration from defaults, an optional YAML file
// (CONFIG_PATH, default panel-service.yaml) and environment variables, in
// that order of precedence.
func Load() (*Config, error) {
	cfg := defaults()

	configPath := getEnv("CONFIG_PATH", "panel-service.yaml")
	if _, err := os.Stat(configPath); err == nil {
		data, err := os.ReadFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file %s: %w", configPath, err)
		}
	}

	cfg.Server.Port = getEnv("SERVER_PORT", cfg.Server.Port)
	cfg.Server.Mode = getEnv("GIN_MODE", cfg.Server.Mode)
	cfg.Server.ShutdownTimeout = getEnvDuration("SERVER_SHUTDOWN_TIMEOUT", cfg.Server.ShutdownTimeout)

	cfg.Database.Driver = getEnv("DB_DRIVER", cfg.Database.Driver)
	cfg.Database.Host = getEnv("DB_HOST", cfg.Database.Host)
	cfg.Database.Port = getEnv("DB_PORT", cfg.Database.Port)
	cfg.Database.User = getEnv("DB_USER", cfg.Database.User)
	cfg.Database.Password = getEnv("DB_PASSWORD", cfg.Database.Password)
	cfg.Database.DBName = getEnv("DB_NAME", cfg.Database.DBName)
	cfg.Database.Schema = getEnv("DB_SCHEMA", cfg.Database.Schema)
	cfg.Database.SSLMode = getEnv("DB_SSLMODE", cfg.Database.SSLMode)
	cfg.Database.MaxConns = getEnvInt("DB_MAX_CONNS", cfg.Database.MaxConns)
	cfg.Database.MinConns = getEnvInt("DB_MIN_CONNS", cfg.Database.MinConns)
	cfg.Database.AutoMigrate = getEnvBool("DB_AUTO_MIGRATE", cfg.Database.AutoMigrate)

	cfg.JWT.SecretKey = getEnv("JWT_SECRET_KEY", cfg.JWT.SecretKey)

	cfg.Pterodactyl.Timeout = getEnvDuration("PTERO_TIMEOUT", cfg.Pterodactyl.Timeout)
	cfg.Pterodactyl.ReadRetries = getEnvInt("PTERO_READ_RETRIES", cfg.Pterodactyl.ReadRetries)
	cfg.Pterodactyl.EmailDomain = getEnv("PANEL_EMAIL_DOMAIN", cfg.Pterodactyl.EmailDomain)
	cfg.Pterodactyl.PasswordMode = getEnv("PANEL_PASSWORD_MODE", cfg.Pterodactyl.PasswordMode)
	cfg.Pterodactyl.PasswordSuffix = getEnv("PANEL_PASSWORD_SUFFIX", cfg.Pterodactyl.PasswordSuffix)
	cfg.Pterodactyl.DockerImage = getEnv("PTERO_DOCKER_IMAGE", cfg.Pterodactyl.DockerImage)
	cfg.Pterodactyl.Startup = getEnv("PTERO_STARTUP", cfg.Pterodactyl.Startup)
	cfg.Pterodactyl.IO = getEnvInt("PTERO_IO", cfg.Pterodactyl.IO)

	cfg.Directory.CacheTTL = getEnvDuration("DIRECTORY_CACHE_TTL", cfg.Directory.CacheTTL)

	cfg.Quota.FreeMaxPanels = getEnvInt("QUOTA_FREE_MAX_PANELS", cfg.Quota.FreeMaxPanels)
	cfg.Quota.PremiumMaxPanels = getEnvInt("QUOTA_PREMIUM_MAX_PANELS", cfg.Quota.PremiumMaxPanels)
	cfg.Quota.FreeRAM = getEnvInt("QUOTA_FREE_RAM", cfg.Quota.FreeRAM)
	cfg.Quota.FreeCPU = getEnvInt("QUOTA_FREE_CPU", cfg.Quota.FreeCPU)
	cfg.Quota.FreeDisk = getEnvInt("QUOTA_FREE_DISK", cfg.Quota.FreeDisk)

	cfg.RateLimit.RequestsPerMinute = getEnvInt("RATE_LIMIT_PER_MINUTE", cfg.RateLimit.RequestsPerMinute)
	cfg.RateLimit.CreatesPerHour = getEnvInt("RATE_LIMIT_CREATES_PER_HOUR", cfg.RateLimit.CreatesPerHour)

	cfg.Reconcile.Workers = getEnvInt("RECONCILE_WORKERS", cfg.Reconcile.Workers)

	cfg.Log.Level = getEnv("LOG_LEVEL", cfg.Log.Level)

	// 日志脱敏: 不记录敏感配置
	log.Printf("[config] Panel Service loaded: port=%s db=%s %s/%s.%s password_mode=%s",
		cfg.Server.Port, cfg.Database.Driver, cfg.Database.Host, cfg.Database.DBName,
		cfg.Database.Schema, cfg.Pterodactyl.PasswordMode)

	return cfg, nil
}

// Validate 验证配置有效性，生产环境必须设置安全的密钥
func (c *Config) Validate() error {
	if insecureDefaults[c.JWT.SecretKey] {
		return fmt.Errorf("JWT_SECRET_KEY must be set to a secure value (current value is insecure or empty)")
	}
	if len(c.JWT.SecretKey) < 32 {
		return fmt.Errorf("JWT_SECRET_KEY must be at least 32 characters long")
	}

	switch c.Pterodactyl.PasswordMode {
	case PasswordModeRandom, PasswordModeLegacy:
	default:
		return fmt.Errorf("PANEL_PASSWORD_MODE must be %q or %q, got %q",
			PasswordModeRandom, PasswordModeLegacy, c.Pterodactyl.PasswordMode)
	}
	if c.Pterodactyl.EmailDomain == "" {
		return fmt.Errorf("PANEL_EMAIL_DOMAIN must not be empty")
	}
	if c.Pterodactyl.Timeout <= 0 {
		return fmt.Errorf("PTERO_TIMEOUT must be positive")
	}
	if c.Pterodactyl.ReadRetries < 0 {
		return fmt.Errorf("PTERO_READ_RETRIES must not be negative")
	}

	if c.Reconcile.Workers < 1 {
		return fmt.Errorf("RECONCILE_WORKERS must be at least 1")
	}

	switch c.Database.Driver {
	case "postgres", "memory":
	default:
		return fmt.Errorf("DB_DRIVER must be postgres or memory, got %q", c.Database.Driver)
	}

	return nil
}

func (c *DatabaseConfig) DSN() string {
	return "postgres://" + c.User + ":" + c.Password + "@" + c.Host + ":" + c.Port + "/" + c.DBName + "?sslmode=" + c.SSLMode
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
