package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Healing   HealingConfig   `mapstructure:"healing"`
	Reviewers ReviewersConfig `mapstructure:"reviewers"`
	CRM       CRMConfig       `mapstructure:"crm"`
	Archive   ArchiveConfig   `mapstructure:"archive"`
}

type ServerConfig struct {
	Port int        `mapstructure:"port"`
	Mode string     `mapstructure:"mode"`
	CORS CORSConfig `mapstructure:"cors"`
}

type CORSConfig struct {
	AllowedOrigins  []string `mapstructure:"allowed_origins"`
	AllowAllOrigins bool     `mapstructure:"allow_all_origins"`
}

type DatabaseConfig struct {
	Driver          string        `mapstructure:"driver"`
	Path            string        `mapstructure:"path"`
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	Name            string        `mapstructure:"name"`
	SSLMode         string        `mapstructure:"ssl_mode"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	AutoMigrate     bool          `mapstructure:"auto_migrate"`
}

// DSN builds the driver-specific connection string.
func (c *DatabaseConfig) DSN() string {
	if c.Driver == "postgres" {
		return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
			c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode)
	}
	return c.Path
}

// HealingConfig is the self-healing orchestrator configuration. It is read
// once at run start and passed by value into the orchestrator; changing it
// does not affect an already-open run.
type HealingConfig struct {
	Enabled             bool          `mapstructure:"enabled"`
	MaxAttempts         int           `mapstructure:"max_attempts"`
	ConfidenceMin       int           `mapstructure:"confidence_min"`
	AgreementThreshold  int           `mapstructure:"agreement_threshold"`
	DisagreementPenalty float64       `mapstructure:"disagreement_penalty"`
	Strategy            string        `mapstructure:"strategy"`
	CallTimeout         time.Duration `mapstructure:"call_timeout"`
	ConfidenceFloor     int           `mapstructure:"confidence_floor"`
	RequiredFields      []string      `mapstructure:"required_fields"`
}

type ReviewersConfig struct {
	A ReviewerConfig `mapstructure:"a"`
	B ReviewerConfig `mapstructure:"b"`
}

type ReviewerConfig struct {
	Model   string `mapstructure:"model"`
	APIKey  string `mapstructure:"api_key"`
	BaseURL string `mapstructure:"base_url"`
}

type CRMConfig struct {
	Endpoint   string        `mapstructure:"endpoint"`
	APIKey     string        `mapstructure:"api_key"`
	RetryCount int           `mapstructure:"retry_count"`
	RetryWait  time.Duration `mapstructure:"retry_wait"`
	Timeout    time.Duration `mapstructure:"timeout"`
}

type ArchiveConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Endpoint  string `mapstructure:"endpoint"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	UseSSL    bool   `mapstructure:"use_ssl"`
	Bucket    string `mapstructure:"bucket"`
	Region    string `mapstructure:"region"`
	PublicURL string `mapstructure:"public_url"`
}

func Load(configPath string) (*Config, error) {
	// Load .env file if exists
	_ = godotenv.Load()

	v := viper.New()

	// Set config file path
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./configs")
		v.AddConfigPath(".")
	}

	// Enable environment variable override
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Set defaults
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.mode", "debug")
	v.SetDefault("server.cors.allow_all_origins", true)
	v.SetDefault("server.cors.allowed_origins", []string{})
	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.path", "./data/verification.db")
	v.SetDefault("database.ssl_mode", "disable")
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.max_open_conns", 20)
	v.SetDefault("database.conn_max_lifetime", time.Hour)
	v.SetDefault("database.auto_migrate", true)
	v.SetDefault("healing.enabled", true)
	v.SetDefault("healing.max_attempts", 3)
	v.SetDefault("healing.confidence_min", 70)
	v.SetDefault("healing.agreement_threshold", 80)
	v.SetDefault("healing.disagreement_penalty", 0.5)
	v.SetDefault("healing.strategy", "strict_equality")
	v.SetDefault("healing.call_timeout", 30*time.Second)
	v.SetDefault("healing.confidence_floor", 60)
	v.SetDefault("healing.required_fields", []string{"Brand", "Material", "Model Number"})
	v.SetDefault("reviewers.a.model", "gpt-4o-mini")
	v.SetDefault("reviewers.a.base_url", "https://api.openai.com/v1")
	v.SetDefault("reviewers.b.model", "gpt-4o")
	v.SetDefault("reviewers.b.base_url", "https://api.openai.com/v1")
	v.SetDefault("crm.retry_count", 3)
	v.SetDefault("crm.retry_wait", 500*time.Millisecond)
	v.SetDefault("crm.timeout", 15*time.Second)
	v.SetDefault("archive.enabled", false)
	v.SetDefault("archive.bucket", "healing-corrections")

	// Read config file
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	// Bind environment variables explicitly for sensitive data
	v.BindEnv("database.password", "DB_PASSWORD")
	v.BindEnv("reviewers.a.api_key", "REVIEWER_A_API_KEY")
	v.BindEnv("reviewers.a.base_url", "REVIEWER_A_BASE_URL")
	v.BindEnv("reviewers.a.model", "REVIEWER_A_MODEL")
	v.BindEnv("reviewers.b.api_key", "REVIEWER_B_API_KEY")
	v.BindEnv("reviewers.b.base_url", "REVIEWER_B_BASE_URL")
	v.BindEnv("reviewers.b.model", "REVIEWER_B_MODEL")
	v.BindEnv("crm.endpoint", "CRM_ENDPOINT")
	v.BindEnv("crm.api_key", "CRM_API_KEY")
	v.BindEnv("archive.access_key", "ARCHIVE_ACCESS_KEY")
	v.BindEnv("archive.secret_key", "ARCHIVE_SECRET_KEY")
	v.BindEnv("archive.endpoint", "ARCHIVE_ENDPOINT")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}
