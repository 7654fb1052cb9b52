// internal/workers/requests/request-created/config.go
package requestcreated

import (
	"time"

	"request-workers/internal/common/config"
	"request-workers/internal/models"
)

type Config struct {
	ProjectID      string
	FrontendURL    string
	FCMTopicARN    string
	Message        string
	Policy         string
	MaxConcurrency int
	DedupeEnabled  bool
	DedupeTTL      time.Duration
	Timeout        time.Duration
}

// NewConfig derives the workflow settings from the application config.
func NewConfig(cfg *config.Config) *Config {
	wcfg := config.GetWorkerConfig(cfg, TaskType)

	c := &Config{
		ProjectID:      cfg.Project.ID,
		FrontendURL:    cfg.Project.FrontendURL,
		FCMTopicARN:    cfg.Notifications.FCMTopicARN,
		Message:        cfg.Notifications.Message,
		Policy:         cfg.Dispatch.Policy,
		MaxConcurrency: cfg.Dispatch.MaxConcurrency,
		DedupeEnabled:  cfg.Dedupe.Enabled,
		DedupeTTL:      time.Duration(cfg.Dedupe.TTL) * time.Second,
		Timeout:        config.GetDuration(wcfg.Timeout),
	}
	c.applyDefaults()
	return c
}

func (c *Config) applyDefaults() {
	if c.Message == "" {
		c.Message = models.DefaultFcmMessage
	}
	if c.Policy == "" {
		c.Policy = config.DispatchPolicyFailFast
	}
	if c.Timeout <= 0 {
		c.Timeout = 30 * time.Second
	}
	if c.DedupeTTL <= 0 {
		c.DedupeTTL = 24 * time.Hour
	}
}

// ProjectDomain is the host used in mail links: the configured frontend URL
// as given, otherwise the project's default hosting domain.
func (c *Config) ProjectDomain() string {
	if c.FrontendURL != "" {
		return c.FrontendURL
	}
	return c.ProjectID + ".web.app"
}
