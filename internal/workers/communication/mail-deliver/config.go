// internal/workers/communication/mail-deliver/config.go
package maildeliver

import (
	"fmt"
	"time"

	"request-workers/internal/common/config"
)

type Config struct {
	Enabled      bool
	FromEmail    string
	PollInterval time.Duration
	BatchSize    int
	MaxAttempts  int
	// LeaseTimeout is how long a PROCESSING claim is honored before another
	// poller may take the job over.
	LeaseTimeout time.Duration
}

func DefaultConfig() *Config {
	return &Config{
		Enabled:      true,
		PollInterval: 5 * time.Second,
		BatchSize:    10,
		MaxAttempts:  3,
		LeaseTimeout: 10 * time.Minute,
	}
}

// NewConfig overlays the mail section of the application config on the
// defaults.
func NewConfig(cfg *config.Config) *Config {
	c := DefaultConfig()
	c.Enabled = cfg.Mail.Enabled
	c.FromEmail = cfg.Mail.FromEmail
	if cfg.Mail.PollInterval > 0 {
		c.PollInterval = config.GetDuration(cfg.Mail.PollInterval)
	}
	if cfg.Mail.BatchSize > 0 {
		c.BatchSize = cfg.Mail.BatchSize
	}
	if cfg.Mail.MaxAttempts > 0 {
		c.MaxAttempts = cfg.Mail.MaxAttempts
	}
	return c
}

func (c *Config) Validate() error {
	if c.PollInterval <= 0 {
		return fmt.Errorf("poll_interval must be positive")
	}
	if c.BatchSize <= 0 {
		return fmt.Errorf("batch_size must be positive")
	}
	if c.MaxAttempts <= 0 {
		return fmt.Errorf("max_attempts must be positive")
	}
	if c.FromEmail == "" {
		return fmt.Errorf("from_email is required")
	}
	return nil
}
