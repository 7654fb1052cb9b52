// internal/workers/communication/mail-deliver/service.go
package maildeliver

import (
	"context"
	"fmt"
	"strings"
	"time"

	awsclient "request-workers/internal/common/aws"
	apperrors "request-workers/internal/common/errors"
	"request-workers/internal/common/logger"
	"request-workers/internal/common/metrics"
	"request-workers/internal/models"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/ses/types"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Service drains the mail collection: it claims pending mail jobs, resolves
// recipient uids to addresses, renders the template and sends through SES.
type Service struct {
	config   *Config
	repo     Repository
	sender   awsclient.SESSender
	renderer *Renderer
	tracer   trace.Tracer
	logger   logger.Logger
}

func NewService(cfg *Config, repo Repository, sender awsclient.SESSender, log logger.Logger) *Service {
	return &Service{
		config:   cfg,
		repo:     repo,
		sender:   sender,
		renderer: NewRenderer(),
		tracer:   otel.Tracer("request-workers/mail-deliver"),
		logger:   log.WithFields(map[string]interface{}{"component": "mail-deliver"}),
	}
}

// Run polls until ctx is cancelled.
func (s *Service) Run(ctx context.Context) error {
	s.logger.Info("mail poller started", map[string]interface{}{
		"pollInterval": s.config.PollInterval.String(),
		"batchSize":    s.config.BatchSize,
	})

	ticker := time.NewTicker(s.config.PollInterval)
	defer ticker.Stop()

	for {
		if _, err := s.PollOnce(ctx); err != nil && ctx.Err() == nil {
			s.logger.Error("mail poll failed", map[string]interface{}{"error": err})
		}

		select {
		case <-ctx.Done():
			s.logger.Info("mail poller stopped", nil)
			return nil
		case <-ticker.C:
		}
	}
}

// PollOnce claims one batch and delivers each job in it.
func (s *Service) PollOnce(ctx context.Context) (PollResult, error) {
	claimed, err := s.repo.ClaimBatch(ctx, s.config.BatchSize, s.config.MaxAttempts, s.config.LeaseTimeout)
	if err != nil {
		return PollResult{}, apperrors.NewDatabaseConnectionFailedError(err)
	}

	result := PollResult{Claimed: len(claimed)}
	for _, m := range claimed {
		if s.deliver(ctx, m) {
			result.Delivered++
		} else {
			result.Failed++
		}
	}
	if result.Claimed > 0 {
		s.logger.Info("mail batch processed", map[string]interface{}{
			"claimed":   result.Claimed,
			"delivered": result.Delivered,
			"failed":    result.Failed,
		})
	}
	return result, nil
}

// deliver sends one mail job and records the outcome on its document. It
// reports whether the email was sent.
func (s *Service) deliver(ctx context.Context, m ClaimedMail) bool {
	ctx, span := s.tracer.Start(ctx, "mail-deliver", trace.WithAttributes(
		attribute.String("mail.id", m.ID),
		attribute.String("mail.template", m.Job.Template.Name),
	))
	defer span.End()

	log := s.logger.WithFields(map[string]interface{}{"mailId": m.ID})
	attempts := m.attempts() + 1

	addresses, err := s.resolveAddresses(ctx, m.Job.ToUIDs, log)
	if err != nil {
		s.markError(ctx, m, attempts, apperrors.NewMailDeliveryFailedError(m.ID, err), span, log)
		return false
	}
	if len(addresses) == 0 {
		s.markError(ctx, m, s.config.MaxAttempts, apperrors.NewNoRecipientsError(m.ID), span, log)
		return false
	}

	rendered, err := s.renderer.Render(m.Job.Template)
	if err != nil {
		// unknown templates are not retried
		s.markError(ctx, m, s.config.MaxAttempts, err, span, log)
		return false
	}

	out, err := s.sender.SendEmail(ctx, &ses.SendEmailInput{
		Destination: &types.Destination{ToAddresses: addresses},
		Message: &types.Message{
			Subject: &types.Content{Data: aws.String(rendered.Subject)},
			Body: &types.Body{
				Text: &types.Content{Data: aws.String(rendered.Text)},
				Html: &types.Content{Data: aws.String(rendered.HTML)},
			},
		},
		Source: aws.String(s.config.FromEmail),
	})
	if err != nil {
		s.markError(ctx, m, attempts, apperrors.NewMailDeliveryFailedError(m.ID, err), span, log)
		return false
	}

	var messageID string
	if out != nil {
		messageID = aws.ToString(out.MessageId)
	}
	end := time.Now().UTC()
	delivery := models.Delivery{
		State:     models.DeliverySuccess,
		Attempts:  attempts,
		MessageID: messageID,
		StartTime: startTime(m),
		EndTime:   &end,
	}
	if err := s.repo.SaveDelivery(ctx, m.ID, delivery); err != nil {
		log.Error("failed to record delivery success", map[string]interface{}{"error": err})
	}

	metrics.MailDeliveries.WithLabelValues("success").Inc()
	log.Info("email sent", map[string]interface{}{
		"messageId":  messageID,
		"recipients": len(addresses),
	})
	return true
}

func (s *Service) resolveAddresses(ctx context.Context, uids []string, log logger.Logger) ([]string, error) {
	seen := make(map[string]bool, len(uids))
	addresses := make([]string, 0, len(uids))
	for _, uid := range uids {
		email, err := s.repo.LookupEmail(ctx, uid)
		if err != nil {
			return nil, fmt.Errorf("lookup user %s: %w", uid, err)
		}
		email = strings.TrimSpace(email)
		if !isValidEmail(email) {
			log.Warn("skipping recipient without a usable email", map[string]interface{}{"uid": uid})
			continue
		}
		if seen[email] {
			continue
		}
		seen[email] = true
		addresses = append(addresses, email)
	}
	return addresses, nil
}

func (s *Service) markError(ctx context.Context, m ClaimedMail, attempts int, cause error, span trace.Span, log logger.Logger) {
	span.RecordError(cause)
	span.SetStatus(codes.Error, "mail delivery failed")
	metrics.MailDeliveries.WithLabelValues("error").Inc()

	stdErr := apperrors.Normalize(cause)
	log.Error("Error sending email", map[string]interface{}{
		"errorCode": string(stdErr.Code),
		"attempts":  attempts,
		"error":     cause,
	})

	end := time.Now().UTC()
	delivery := models.Delivery{
		State:     models.DeliveryError,
		Attempts:  attempts,
		Error:     stdErr.Error(),
		StartTime: startTime(m),
		EndTime:   &end,
	}
	if err := s.repo.SaveDelivery(ctx, m.ID, delivery); err != nil {
		log.Error("failed to record delivery error", map[string]interface{}{"error": err})
	}
}

func startTime(m ClaimedMail) *time.Time {
	if m.Job.Delivery == nil {
		return nil
	}
	return m.Job.Delivery.StartTime
}

func isValidEmail(email string) bool {
	if email == "" {
		return false
	}
	parts := strings.Split(email, "@")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return false
	}
	return strings.Contains(parts[1], ".")
}
