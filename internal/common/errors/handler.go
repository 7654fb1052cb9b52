// internal/common/errors/handler.go
package errors

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"time"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
)

// ErrorHandler reports job failures back to Zeebe. Retryable failures are
// failed with a decremented retry count so the engine redelivers the job;
// everything else is thrown as a BPMN error.
type ErrorHandler struct {
	logger Logger
}

type Logger interface {
	Error(msg string, fields map[string]interface{})
}

func NewErrorHandler(logger Logger) *ErrorHandler {
	return &ErrorHandler{logger: logger}
}

// HandleJobError handles any error in a worker job
func (h *ErrorHandler) HandleJobError(ctx context.Context, client worker.JobClient, job entities.Job, err error) {
	stdErr := Normalize(err)
	bpmnErr := ConvertToBPMNError(stdErr)

	retries := RemainingRetries(job.Retries, bpmnErr.Retries)
	h.logError(job, stdErr, bpmnErr, retries)

	if bpmnErr.Retryable && bpmnErr.Retries > 0 {
		h.failJob(ctx, client, job, bpmnErr, retries)
		return
	}
	h.throwBPMNError(ctx, client, job, bpmnErr)
}

// Normalize ensures we always have a StandardError
func Normalize(err error) *StandardError {
	var stdErr *StandardError
	if stderrors.As(err, &stdErr) {
		return stdErr
	}
	return &StandardError{
		Code:      ErrCodeInternal,
		Message:   "Unexpected error",
		Details:   err.Error(),
		Retryable: false,
		Timestamp: time.Now().UTC(),
		Cause:     err,
	}
}

// RemainingRetries is the retry count reported on a failed job: one less
// than what the job had, never more than the code allows. Zero raises an
// incident in the engine.
func RemainingRetries(jobRetries int32, codeRetries int) int32 {
	remaining := jobRetries - 1
	if remaining > int32(codeRetries) {
		remaining = int32(codeRetries)
	}
	if remaining < 0 {
		remaining = 0
	}
	return remaining
}

func (h *ErrorHandler) failJob(ctx context.Context, client worker.JobClient, job entities.Job, bpmnErr *BPMNError, retries int32) {
	cmd := client.NewFailJobCommand().
		JobKey(job.Key).
		Retries(retries).
		ErrorMessage(bpmnErr.Message + ": " + bpmnErr.Details)

	if varsJSON, err := json.Marshal(bpmnErr.ToErrorVariables()); err == nil {
		if cmdWithVars, err := cmd.VariablesFromString(string(varsJSON)); err == nil {
			_, err = cmdWithVars.Send(ctx)
			h.reportSendError(job, "fail job", err)
			return
		}
	}

	_, err := cmd.Send(ctx)
	h.reportSendError(job, "fail job", err)
}

func (h *ErrorHandler) throwBPMNError(ctx context.Context, client worker.JobClient, job entities.Job, bpmnErr *BPMNError) {
	cmd := client.NewThrowErrorCommand().
		JobKey(job.Key).
		ErrorCode(bpmnErr.Code).
		ErrorMessage(bpmnErr.Message)

	if varsJSON, err := json.Marshal(bpmnErr.ToErrorVariables()); err == nil {
		if cmdWithVars, err := cmd.VariablesFromString(string(varsJSON)); err == nil {
			_, err = cmdWithVars.Send(ctx)
			h.reportSendError(job, "throw error", err)
			return
		}
	}

	_, err := cmd.Send(ctx)
	h.reportSendError(job, "throw error", err)
}

func (h *ErrorHandler) reportSendError(job entities.Job, command string, err error) {
	if err == nil {
		return
	}
	h.logger.Error("failed to send "+command+" command", map[string]interface{}{
		"jobKey": job.Key,
		"error":  err.Error(),
	})
}

func (h *ErrorHandler) logError(job entities.Job, stdErr *StandardError, bpmnErr *BPMNError, retries int32) {
	h.logger.Error("Job failed", map[string]interface{}{
		"jobKey":           job.Key,
		"jobType":          job.Type,
		"errorCode":        string(stdErr.Code),
		"bpmnErrorCode":    bpmnErr.Code,
		"message":          bpmnErr.Message,
		"details":          stdErr.Details,
		"retryable":        stdErr.Retryable,
		"retriesLeft":      retries,
		"errorCategory":    GetErrorCategory(stdErr.Code),
		"workflowInstance": job.ProcessInstanceKey,
	})
}
