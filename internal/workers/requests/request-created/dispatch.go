// internal/workers/requests/request-created/dispatch.go
package requestcreated

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"

	awsclient "request-workers/internal/common/aws"
	"request-workers/internal/common/config"
	apperrors "request-workers/internal/common/errors"
	"request-workers/internal/common/logger"
	"request-workers/internal/common/metrics"
	"request-workers/internal/models"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/aws/aws-sdk-go-v2/service/sns/types"
	"github.com/sourcegraph/conc/pool"
)

// Dispatcher publishes one FcmDispatchMessage per recipient to the sendFcm
// topic. Publishes run concurrently and are all awaited before the result
// is decided.
type Dispatcher struct {
	publisher awsclient.SNSPublisher
	markers   MarkerStore
	config    *Config
	logger    logger.Logger
}

func NewDispatcher(cfg *Config, publisher awsclient.SNSPublisher, markers MarkerStore, log logger.Logger) *Dispatcher {
	return &Dispatcher{
		publisher: publisher,
		markers:   markers,
		config:    cfg,
		logger:    log,
	}
}

type outcome int

const (
	outcomeSent outcome = iota
	outcomeSkipped
	outcomeFailed
)

// SendAll publishes to every user. Under fail_fast any failed publish is
// returned as FCM_DISPATCH_FAILED once all publishes have settled; under
// best_effort failures are only counted.
func (d *Dispatcher) SendAll(ctx context.Context, requestID string, userIDs []string) (DispatchResult, error) {
	if len(userIDs) == 0 {
		return DispatchResult{}, nil
	}

	var sent, skipped, failed atomic.Int64
	p := pool.New().WithErrors().WithContext(ctx)
	if d.config.MaxConcurrency > 0 {
		p = p.WithMaxGoroutines(d.config.MaxConcurrency)
	}

	for _, userID := range userIDs {
		p.Go(func(ctx context.Context) error {
			res, err := d.send(ctx, requestID, userID)
			switch res {
			case outcomeSent:
				sent.Add(1)
			case outcomeSkipped:
				skipped.Add(1)
			case outcomeFailed:
				failed.Add(1)
			}
			return err
		})
	}
	err := p.Wait()

	result := DispatchResult{
		Sent:    int(sent.Load()),
		Skipped: int(skipped.Load()),
		Failed:  int(failed.Load()),
	}
	if err == nil {
		return result, nil
	}

	if d.config.Policy == config.DispatchPolicyBestEffort {
		d.logger.Error("Error requesting FCMs, continuing", map[string]interface{}{
			"requestId": requestID,
			"failed":    result.Failed,
			"total":     len(userIDs),
			"error":     err,
		})
		return result, nil
	}

	d.logger.Error("Error requesting FCMs", map[string]interface{}{
		"requestId": requestID,
		"failed":    result.Failed,
		"total":     len(userIDs),
		"error":     err,
	})
	return result, apperrors.NewFCMDispatchFailedError(result.Failed, len(userIDs), err)
}

func (d *Dispatcher) send(ctx context.Context, requestID, userID string) (outcome, error) {
	log := d.logger.WithFields(map[string]interface{}{"requestId": requestID, "userId": userID})
	key := fcmMarkerKey(requestID, userID)

	if d.markers != nil {
		seen, err := d.markers.Seen(ctx, key)
		switch {
		case err != nil:
			log.Warn("dedupe check failed, sending anyway", map[string]interface{}{"error": err})
		case seen:
			log.Info("FCM already requested for user, skipping", nil)
			metrics.FCMPublishes.WithLabelValues("skipped").Inc()
			return outcomeSkipped, nil
		}
	}

	body, err := json.Marshal(models.FcmDispatchMessage{UserID: userID, Message: d.config.Message})
	if err != nil {
		return outcomeFailed, fmt.Errorf("encode message for user %s: %w", userID, err)
	}

	out, err := d.publisher.Publish(ctx, &sns.PublishInput{
		TopicArn: aws.String(d.config.FCMTopicARN),
		Message:  aws.String(string(body)),
		MessageAttributes: map[string]types.MessageAttributeValue{
			"userId": {DataType: aws.String("String"), StringValue: aws.String(userID)},
		},
	})
	if err != nil {
		log.Error("Error requesting FCM message send to user", map[string]interface{}{"error": err})
		metrics.FCMPublishes.WithLabelValues("failed").Inc()
		return outcomeFailed, fmt.Errorf("publish to user %s: %w", userID, err)
	}

	var messageID string
	if out != nil {
		messageID = aws.ToString(out.MessageId)
	}
	log.Info("Sent request for FCM message to user", map[string]interface{}{"messageId": messageID})
	metrics.FCMPublishes.WithLabelValues("sent").Inc()

	if d.markers != nil {
		if err := d.markers.Mark(ctx, key); err != nil {
			log.Warn("failed to record dedupe marker", map[string]interface{}{"error": err})
		}
	}
	return outcomeSent, nil
}
