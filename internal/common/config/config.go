// internal/common/config/config.go
package config

import "fmt"

// Config is the main application configuration struct.
type Config struct {
	App           AppConfig               `mapstructure:"app"`
	Camunda       CamundaConfig           `mapstructure:"camunda"`
	Database      DatabaseConfig          `mapstructure:"database"`
	Project       ProjectConfig           `mapstructure:"project"`
	Notifications NotificationConfig      `mapstructure:"notifications"`
	Dispatch      DispatchConfig          `mapstructure:"dispatch"`
	Dedupe        DedupeConfig            `mapstructure:"dedupe"`
	Mail          MailConfig              `mapstructure:"mail"`
	Workers       map[string]WorkerConfig `mapstructure:"workers"`
	Logging       LoggingConfig           `mapstructure:"logging"`
	Tracing       TracingConfig           `mapstructure:"tracing"`
}

// --- Core App/Infrastructure Config ---
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Version     string `mapstructure:"version"`
	Environment string `mapstructure:"environment"`
	HTTPPort    int    `mapstructure:"http_port"`
}

type CamundaConfig struct {
	BrokerAddress  string `mapstructure:"broker_address"`
	Plaintext      bool   `mapstructure:"plaintext"`
	MaxJobsActive  int    `mapstructure:"max_jobs_active"`
	Timeout        int    `mapstructure:"timeout"`         // milliseconds
	RequestTimeout int    `mapstructure:"request_timeout"` // milliseconds
}

type DatabaseConfig struct {
	Postgres PostgresConfig `mapstructure:"postgres"`
	Redis    RedisConfig    `mapstructure:"redis"`
}

type PostgresConfig struct {
	Host           string `mapstructure:"host"`
	Port           int    `mapstructure:"port"`
	Database       string `mapstructure:"database"`
	User           string `mapstructure:"user"`
	Password       string `mapstructure:"password"`
	MaxConnections int    `mapstructure:"max_connections"`
	MaxIdle        int    `mapstructure:"max_idle"`
	SSLMode        string `mapstructure:"sslmode"`
}

// GetDSN returns the PostgreSQL connection string
func (p PostgresConfig) GetDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.Database, p.SSLMode,
	)
}

type RedisConfig struct {
	Address  string `mapstructure:"address"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// WorkerConfig holds the core settings applicable to every worker.
type WorkerConfig struct {
	Enabled       bool `mapstructure:"enabled"`
	MaxJobsActive int  `mapstructure:"max_jobs_active"`
	Timeout       int  `mapstructure:"timeout"`     // milliseconds
	MaxRetries    int  `mapstructure:"max_retries"` // For error handling
}

// ProjectConfig identifies the deployment. FrontendURL overrides the
// default <id>.web.app display domain.
type ProjectConfig struct {
	ID          string `mapstructure:"id"`
	FrontendURL string `mapstructure:"frontend_url"`
}

// NotificationConfig holds the push-dispatch topic settings.
type NotificationConfig struct {
	AWS struct {
		Region string `mapstructure:"region"`
	} `mapstructure:"aws"`
	FCMTopicARN string `mapstructure:"fcm_topic_arn"`
	Message     string `mapstructure:"message"`
}

// Dispatch policies for the push fan-out.
const (
	DispatchPolicyFailFast   = "fail_fast"
	DispatchPolicyBestEffort = "best_effort"
)

type DispatchConfig struct {
	Policy         string `mapstructure:"policy"`
	MaxConcurrency int    `mapstructure:"max_concurrency"` // 0 = unbounded
}

type DedupeConfig struct {
	Enabled bool `mapstructure:"enabled"`
	TTL     int  `mapstructure:"ttl"` // seconds
}

// MailConfig holds settings for the mail-deliver poller.
type MailConfig struct {
	Enabled      bool   `mapstructure:"enabled"`
	FromEmail    string `mapstructure:"from_email"`
	PollInterval int    `mapstructure:"poll_interval"` // milliseconds
	BatchSize    int    `mapstructure:"batch_size"`
	MaxAttempts  int    `mapstructure:"max_attempts"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	Output string `mapstructure:"output"`
}

type TracingConfig struct {
	JaegerEndpoint string  `mapstructure:"jaeger_endpoint"`
	SampleRatio    float64 `mapstructure:"sample_ratio"`
}
