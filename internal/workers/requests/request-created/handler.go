// internal/workers/requests/request-created/handler.go
package requestcreated

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	awsclient "request-workers/internal/common/aws"
	"request-workers/internal/common/docstore"
	apperrors "request-workers/internal/common/errors"
	"request-workers/internal/common/logger"
	"request-workers/internal/common/metrics"
	"request-workers/internal/common/observability"
	"request-workers/internal/models"
	"request-workers/pkg/registry"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	TaskType = registry.TaskRequestCreated
)

// DocumentStore is the part of the document store the workflow touches.
type DocumentStore interface {
	Get(ctx context.Context, path string) (*docstore.Snapshot, error)
	Add(ctx context.Context, collection string, data interface{}) (string, error)
	Create(ctx context.Context, collection, id string, data interface{}) (bool, error)
}

type Handler struct {
	config     *Config
	store      DocumentStore
	dispatcher *Dispatcher
	activity   *registry.Activity
	obs        *observability.Observability
	errHandler *apperrors.ErrorHandler
	tracer     trace.Tracer
	logger     logger.Logger
}

// NewHandler wires the workflow. markers may be nil, in which case pushes are
// not deduplicated across redeliveries. obs may be nil.
func NewHandler(cfg *Config, store DocumentStore, publisher awsclient.SNSPublisher, markers MarkerStore, obs *observability.Observability, log logger.Logger) (*Handler, error) {
	activity, ok := registry.Default().Find(TaskType)
	if !ok {
		return nil, fmt.Errorf("activity %s not registered", TaskType)
	}

	log = log.WithFields(map[string]interface{}{"taskType": TaskType})
	if !cfg.DedupeEnabled {
		markers = nil
	}

	return &Handler{
		config:     cfg,
		store:      store,
		dispatcher: NewDispatcher(cfg, publisher, markers, log),
		activity:   activity,
		obs:        obs,
		errHandler: apperrors.NewErrorHandler(log),
		tracer:     otel.Tracer("request-workers/" + TaskType),
		logger:     log,
	}, nil
}

func (h *Handler) Handle(client worker.JobClient, job entities.Job) {
	start := time.Now()
	h.logger.Info("processing job", map[string]interface{}{
		"jobKey":      job.Key,
		"workflowKey": job.ProcessInstanceKey,
	})

	ctx, cancel := context.WithTimeout(context.Background(), h.config.Timeout)
	defer cancel()

	input, err := h.parseInput(job.Variables)
	if err != nil {
		h.failJob(client, job, err, start)
		return
	}

	output, err := h.Execute(ctx, input)
	if err != nil {
		h.failJob(client, job, err, start)
		return
	}

	h.completeJob(client, job, output, start)
}

func (h *Handler) parseInput(variables string) (*Input, error) {
	if err := h.activity.ValidateInput(variables); err != nil {
		return nil, apperrors.NewInvalidEventError(err.Error())
	}

	var input Input
	if err := json.Unmarshal([]byte(variables), &input); err != nil {
		return nil, apperrors.NewInvalidEventError(fmt.Sprintf("parse input: %v", err))
	}
	if input.RequestID == "" {
		return nil, apperrors.NewInvalidEventError("requestId is required")
	}
	return &input, nil
}

// Execute runs the notification fan-out for one created request: push
// dispatch to every configured recipient, then one mail job.
func (h *Handler) Execute(ctx context.Context, input *Input) (*Output, error) {
	ctx, span := h.tracer.Start(ctx, TaskType, trace.WithAttributes(
		attribute.String("request.id", input.RequestID),
	))
	defer span.End()

	log := h.logger.WithFields(map[string]interface{}{"requestId": input.RequestID})
	requestData := input.requestData()
	log.Info("requestCreated onCreate event", map[string]interface{}{
		"params":  input.Params,
		"request": requestData,
	})

	recipients := h.loadRecipients(ctx, log)
	span.SetAttributes(attribute.Int("recipients", len(recipients)))

	result, err := h.dispatch(ctx, input.RequestID, recipients)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "fcm dispatch failed")
		return nil, err
	}

	mailID, err := h.enqueueMail(ctx, input.RequestID, models.NewRequestMail(recipients, requestData, h.config.ProjectDomain()), log)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "mail enqueue failed")
		return nil, err
	}

	return &Output{
		RequestID:      input.RequestID,
		MailID:         mailID,
		Dispatched:     result.Sent,
		DispatchFailed: result.Failed,
	}, nil
}

// loadRecipients never fails: a settings read error or a missing document
// leaves the recipient list empty.
func (h *Handler) loadRecipients(ctx context.Context, log logger.Logger) []string {
	ctx, span := h.tracer.Start(ctx, "load-settings")
	defer span.End()

	snap, err := h.store.Get(ctx, models.NotificationSettingsPath)
	if err != nil {
		stdErr := apperrors.NewSettingsReadFailedError(models.NotificationSettingsPath, err)
		log.Error("Error loading settings doc", map[string]interface{}{
			"errorCode": string(stdErr.Code),
			"error":     err,
		})
		span.RecordError(err)
		metrics.SettingsFallbacks.WithLabelValues("read_error").Inc()
		return nil
	}
	if !snap.Exists {
		log.Warn("settings doc not found, no push recipients", map[string]interface{}{
			"path": models.NotificationSettingsPath,
		})
		metrics.SettingsFallbacks.WithLabelValues("missing").Inc()
		return nil
	}

	settings, invalid := models.ParseNotificationSettings(snap.Data)
	if len(invalid) > 0 {
		log.Warn("ignoring invalid recipient entries", map[string]interface{}{"entries": invalid})
	}
	return settings.NewRequests
}

func (h *Handler) dispatch(ctx context.Context, requestID string, recipients []string) (DispatchResult, error) {
	ctx, span := h.tracer.Start(ctx, "fcm-dispatch", trace.WithAttributes(
		attribute.Int("recipients", len(recipients)),
	))
	defer span.End()

	result, err := h.dispatcher.SendAll(ctx, requestID, recipients)
	span.SetAttributes(
		attribute.Int("sent", result.Sent),
		attribute.Int("skipped", result.Skipped),
		attribute.Int("failed", result.Failed),
	)
	return result, err
}

func (h *Handler) enqueueMail(ctx context.Context, requestID string, job models.MailJob, log logger.Logger) (string, error) {
	ctx, span := h.tracer.Start(ctx, "mail-enqueue")
	defer span.End()

	if !h.config.DedupeEnabled {
		mailID, err := h.store.Add(ctx, models.MailCollection, job)
		if err != nil {
			return "", h.mailEnqueueFailed(err, log)
		}
		metrics.MailJobsEnqueued.WithLabelValues("created").Inc()
		log.Info("Wrote request to send email", map[string]interface{}{"mailId": mailID})
		return mailID, nil
	}

	mailID := MailIDFor(requestID)
	created, err := h.store.Create(ctx, models.MailCollection, mailID, job)
	if err != nil {
		return "", h.mailEnqueueFailed(err, log)
	}
	if !created {
		metrics.MailJobsEnqueued.WithLabelValues("duplicate").Inc()
		log.Info("mail job already written for request", map[string]interface{}{"mailId": mailID})
		return mailID, nil
	}
	metrics.MailJobsEnqueued.WithLabelValues("created").Inc()
	log.Info("Wrote request to send email", map[string]interface{}{"mailId": mailID})
	return mailID, nil
}

func (h *Handler) mailEnqueueFailed(err error, log logger.Logger) error {
	metrics.MailJobsEnqueued.WithLabelValues("failed").Inc()
	log.Error("Error writing requests to send email", map[string]interface{}{"error": err})
	return apperrors.NewMailEnqueueFailedError(err)
}

// Commands are sent on a fresh context so an expired job deadline does not
// prevent reporting the result.
func (h *Handler) completeJob(client worker.JobClient, job entities.Job, output *Output, start time.Time) {
	ctx := context.Background()
	metrics.WorkerJobsCompleted.WithLabelValues(TaskType).Inc()
	h.obs.RecordJobProcessed(ctx, TaskType, "completed")
	h.obs.RecordJobDuration(ctx, TaskType, time.Since(start), "completed")

	cmd, err := client.NewCompleteJobCommand().
		JobKey(job.Key).
		VariablesFromObject(output)
	if err != nil {
		h.logger.Error("failed to create complete job command", map[string]interface{}{
			"jobKey": job.Key,
			"error":  err,
		})
		return
	}
	if _, err := cmd.Send(ctx); err != nil {
		h.logger.Error("failed to send complete job command", map[string]interface{}{
			"jobKey": job.Key,
			"error":  err,
		})
	}
}

func (h *Handler) failJob(client worker.JobClient, job entities.Job, err error, start time.Time) {
	ctx := context.Background()
	code := apperrors.Normalize(err).Code
	metrics.WorkerJobsFailed.WithLabelValues(TaskType, string(code)).Inc()
	h.obs.RecordJobProcessed(ctx, TaskType, "failed")
	h.obs.RecordJobDuration(ctx, TaskType, time.Since(start), "failed")

	h.errHandler.HandleJobError(ctx, client, job, err)
}
