// internal/common/camunda/client.go
package camunda

import (
	"context"
	"fmt"
	"strings"
	"time"

	apperrors "request-workers/internal/common/errors"

	"github.com/camunda/zeebe/clients/go/v8/pkg/zbc"
)

// Client wraps the Zeebe gRPC client with connection retry.
type Client struct {
	client zbc.Client
	config *ClientConfig
}

type ClientConfig struct {
	GatewayAddress         string
	UsePlaintextConnection bool
	ConnectionTimeout      time.Duration
	RetryConfig            *RetryConfig
}

// RetryConfig defines retry behavior for transient failures.
type RetryConfig struct {
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration
}

var DefaultRetryConfig = &RetryConfig{
	MaxRetries: 10,
	BaseDelay:  1 * time.Second,
	MaxDelay:   10 * time.Second,
}

// Connect creates the Zeebe client and waits for a topology response,
// backing off exponentially on transient errors.
func Connect(ctx context.Context, config *ClientConfig) (*Client, error) {
	if config.RetryConfig == nil {
		config.RetryConfig = DefaultRetryConfig
	}
	if config.ConnectionTimeout == 0 {
		config.ConnectionTimeout = 10 * time.Second
	}

	zeebeClient, err := zbc.NewClient(&zbc.ClientConfig{
		GatewayAddress:         config.GatewayAddress,
		UsePlaintextConnection: config.UsePlaintextConnection,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Zeebe client: %w", err)
	}

	c := &Client{client: zeebeClient, config: config}

	var lastErr error
	for attempt := 0; attempt <= config.RetryConfig.MaxRetries; attempt++ {
		if lastErr = c.HealthCheck(ctx); lastErr == nil {
			return c, nil
		}
		if !isRetryableZeebeError(lastErr) || attempt == config.RetryConfig.MaxRetries {
			break
		}

		select {
		case <-time.After(backoff(config.RetryConfig, attempt)):
		case <-ctx.Done():
			zeebeClient.Close()
			return nil, fmt.Errorf("connect to zeebe cancelled after %d attempts: %w", attempt+1, ctx.Err())
		}
	}

	zeebeClient.Close()
	return nil, mapZeebeError(lastErr, "connect "+config.GatewayAddress)
}

func backoff(rc *RetryConfig, attempt int) time.Duration {
	delay := rc.BaseDelay * time.Duration(1<<attempt)
	if delay <= 0 || delay > rc.MaxDelay {
		delay = rc.MaxDelay
	}
	return delay
}

// GetClient returns the raw Zeebe client for job worker registration.
func (c *Client) GetClient() zbc.Client {
	return c.client
}

func (c *Client) Close() error {
	return c.client.Close()
}

// HealthCheck issues a topology request against the gateway.
func (c *Client) HealthCheck(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, c.config.ConnectionTimeout)
	defer cancel()

	if _, err := c.client.NewTopologyCommand().Send(ctx); err != nil {
		return fmt.Errorf("zeebe health check failed: %w", err)
	}
	return nil
}

func isRetryableZeebeError(err error) bool {
	msg := strings.ToLower(err.Error())
	for _, phrase := range []string{
		"connection refused",
		"connection reset",
		"timeout",
		"deadline exceeded",
		"unavailable",
		"unreachable",
		"broken pipe",
	} {
		if strings.Contains(msg, phrase) {
			return true
		}
	}
	return false
}

func mapZeebeError(err error, operation string) error {
	lowerMsg := strings.ToLower(err.Error())
	wrapped := fmt.Errorf("zeebe operation '%s' failed: %w", operation, err)

	if strings.Contains(lowerMsg, "timeout") || strings.Contains(lowerMsg, "deadline exceeded") {
		return apperrors.NewTimeoutError("zeebe", wrapped)
	}
	return apperrors.NewExternalServiceError("zeebe", wrapped)
}
