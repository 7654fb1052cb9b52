// Package errors provides standardized error handling for BPMN workflow integration.
package errors

import (
	"fmt"
	"strings"
	"time"
)

// ==========================
// 1. Standard Error Types
// ==========================

// ErrorCode represents standardized internal error codes.
type ErrorCode string

const (
	ErrCodeInvalidEvent ErrorCode = "INVALID_EVENT"

	ErrCodeSettingsReadFailed ErrorCode = "SETTINGS_READ_FAILED"
	ErrCodeFCMDispatchFailed  ErrorCode = "FCM_DISPATCH_FAILED"
	ErrCodeMailEnqueueFailed  ErrorCode = "MAIL_ENQUEUE_FAILED"

	ErrCodeMailDeliveryFailed ErrorCode = "MAIL_DELIVERY_FAILED"
	ErrCodeNoRecipients       ErrorCode = "NO_DELIVERABLE_RECIPIENTS"
	ErrCodeTemplateNotFound   ErrorCode = "TEMPLATE_NOT_FOUND"

	ErrCodeDatabaseConnectionFailed ErrorCode = "DATABASE_CONNECTION_FAILED"
	ErrCodeExternalService          ErrorCode = "EXTERNAL_SERVICE_ERROR"
	ErrCodeTimeout                  ErrorCode = "TIMEOUT"
	ErrCodeInternal                 ErrorCode = "INTERNAL_ERROR"
)

// StandardError represents a structured application error.
type StandardError struct {
	Code      ErrorCode              `json:"code"`
	Message   string                 `json:"message"`
	Details   string                 `json:"details,omitempty"`
	Retryable bool                   `json:"retryable"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
	Cause     error                  `json:"-"`
}

func (e *StandardError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("%s: %s: %s", e.Code, e.Message, e.Details)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *StandardError) Unwrap() error {
	return e.Cause
}

// ==========================
// 2. BPMN Error Integration
// ==========================

// BPMNError represents an error that can be thrown to the Camunda workflow engine.
type BPMNError struct {
	Code           string                 `json:"code"`
	Message        string                 `json:"message"`
	Details        string                 `json:"details,omitempty"`
	Retryable      bool                   `json:"retryable"`
	Retries        int                    `json:"retries"`
	ErrorVariables map[string]interface{} `json:"errorVariables,omitempty"`
}

func (e *BPMNError) Error() string {
	return fmt.Sprintf("BPMNError[%s]: %s", e.Code, e.Message)
}

// ToErrorVariables returns a map suitable for setting Camunda job fail variables.
func (e *BPMNError) ToErrorVariables() map[string]interface{} {
	vars := map[string]interface{}{
		"errorCode":    e.Code,
		"errorMessage": e.Message,
		"errorDetails": e.Details,
		"retryable":    e.Retryable,
	}
	for k, v := range e.ErrorVariables {
		vars[k] = v
	}
	return vars
}

// ==========================
// 3. Error Constructors
// ==========================

// NewInvalidEventError rejects job variables that do not describe a request.
func NewInvalidEventError(details string) *StandardError {
	return &StandardError{
		Code:      ErrCodeInvalidEvent,
		Message:   "Invalid request-created event",
		Details:   details,
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewSettingsReadFailedError is logged and never surfaced to the engine.
func NewSettingsReadFailedError(path string, err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeSettingsReadFailed,
		Message:   "Error loading settings doc",
		Details:   fmt.Sprintf("path: %s, error: %v", path, err),
		Retryable: true,
		Timestamp: time.Now().UTC(),
		Cause:     err,
	}
}

func NewFCMDispatchFailedError(failed, total int, err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeFCMDispatchFailed,
		Message:   "Error requesting FCMs",
		Details:   fmt.Sprintf("%d of %d publishes failed: %v", failed, total, err),
		Retryable: true,
		Metadata:  map[string]interface{}{"failed": failed, "total": total},
		Timestamp: time.Now().UTC(),
		Cause:     err,
	}
}

func NewMailEnqueueFailedError(err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeMailEnqueueFailed,
		Message:   "Error writing requests to send email",
		Details:   err.Error(),
		Retryable: true,
		Timestamp: time.Now().UTC(),
		Cause:     err,
	}
}

func NewMailDeliveryFailedError(mailID string, err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeMailDeliveryFailed,
		Message:   "Error sending email",
		Details:   fmt.Sprintf("mailId: %s, error: %v", mailID, err),
		Retryable: true,
		Timestamp: time.Now().UTC(),
		Cause:     err,
	}
}

func NewNoRecipientsError(mailID string) *StandardError {
	return &StandardError{
		Code:      ErrCodeNoRecipients,
		Message:   "no deliverable recipients",
		Details:   fmt.Sprintf("mailId: %s", mailID),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewTemplateNotFoundError creates a non-retryable template error.
func NewTemplateNotFoundError(templateName string) *StandardError {
	return &StandardError{
		Code:      ErrCodeTemplateNotFound,
		Message:   "Template not found",
		Details:   fmt.Sprintf("template: %s", templateName),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewDatabaseConnectionFailedError creates a retryable database connection error.
func NewDatabaseConnectionFailedError(err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeDatabaseConnectionFailed,
		Message:   "Database connection error",
		Details:   err.Error(),
		Retryable: true,
		Timestamp: time.Now().UTC(),
		Cause:     err,
	}
}

func NewExternalServiceError(service string, err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeExternalService,
		Message:   fmt.Sprintf("External service %s failed", service),
		Details:   err.Error(),
		Retryable: true,
		Timestamp: time.Now().UTC(),
		Cause:     err,
	}
}

func NewTimeoutError(service string, err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeTimeout,
		Message:   fmt.Sprintf("Timeout calling %s", service),
		Details:   err.Error(),
		Retryable: true,
		Timestamp: time.Now().UTC(),
		Cause:     err,
	}
}

// ==========================
// 4. Retry and BPMN mapping
// ==========================

var BPMNErrorMapping = map[ErrorCode]string{
	ErrCodeInvalidEvent:             "INVALID_EVENT",
	ErrCodeFCMDispatchFailed:        "FCM_DISPATCH_FAILED",
	ErrCodeMailEnqueueFailed:        "MAIL_ENQUEUE_FAILED",
	ErrCodeMailDeliveryFailed:       "MAIL_DELIVERY_FAILED",
	ErrCodeNoRecipients:             "NO_DELIVERABLE_RECIPIENTS",
	ErrCodeTemplateNotFound:         "TEMPLATE_NOT_FOUND",
	ErrCodeDatabaseConnectionFailed: "DATABASE_CONNECTION_FAILED",
	ErrCodeExternalService:          "EXTERNAL_SERVICE_ERROR",
	ErrCodeTimeout:                  "TIMEOUT",
}

func GetRetryCount(code ErrorCode) int {
	switch code {
	case ErrCodeFCMDispatchFailed,
		ErrCodeMailEnqueueFailed,
		ErrCodeMailDeliveryFailed,
		ErrCodeDatabaseConnectionFailed,
		ErrCodeExternalService:
		return 3

	case ErrCodeTimeout:
		return 2

	default:
		return 0 // business errors: no retry
	}
}

func ConvertToBPMNError(stdErr *StandardError) *BPMNError {
	bpmnCode, exists := BPMNErrorMapping[stdErr.Code]
	if !exists {
		bpmnCode = string(stdErr.Code)
	}

	retries := GetRetryCount(stdErr.Code)
	if !stdErr.Retryable {
		retries = 0
	}

	return &BPMNError{
		Code:      bpmnCode,
		Message:   stdErr.Message,
		Details:   stdErr.Details,
		Retryable: stdErr.Retryable,
		Retries:   retries,
		ErrorVariables: map[string]interface{}{
			"originalErrorCode": string(stdErr.Code),
			"timestamp":         stdErr.Timestamp.Format(time.RFC3339),
		},
	}
}

func IsRetryableErrorCode(code ErrorCode) bool {
	return GetRetryCount(code) > 0
}

func GetErrorCategory(code ErrorCode) string {
	codeStr := string(code)
	switch {
	case strings.Contains(codeStr, "FCM"):
		return "PUSH"
	case strings.Contains(codeStr, "MAIL") || strings.Contains(codeStr, "RECIPIENTS"):
		return "MAIL"
	case strings.Contains(codeStr, "TEMPLATE"):
		return "TEMPLATE"
	case strings.Contains(codeStr, "DATABASE") || strings.Contains(codeStr, "SETTINGS"):
		return "DATABASE"
	case strings.Contains(codeStr, "INVALID"):
		return "VALIDATION"
	case strings.Contains(codeStr, "EXTERNAL") || strings.Contains(codeStr, "TIMEOUT"):
		return "INTEGRATION"
	default:
		return "OTHER"
	}
}
