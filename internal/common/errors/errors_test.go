package errors

import (
	stderrors "errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConvertToBPMNError(t *testing.T) {
	tests := []struct {
		name          string
		err           *StandardError
		wantCode      string
		wantRetries   int
		wantRetryable bool
	}{
		{
			name:          "dispatch failure retries",
			err:           NewFCMDispatchFailedError(1, 2, fmt.Errorf("throttled")),
			wantCode:      "FCM_DISPATCH_FAILED",
			wantRetries:   3,
			wantRetryable: true,
		},
		{
			name:          "mail enqueue failure retries",
			err:           NewMailEnqueueFailedError(fmt.Errorf("connection reset")),
			wantCode:      "MAIL_ENQUEUE_FAILED",
			wantRetries:   3,
			wantRetryable: true,
		},
		{
			name:          "invalid event does not retry",
			err:           NewInvalidEventError("requestId is required"),
			wantCode:      "INVALID_EVENT",
			wantRetries:   0,
			wantRetryable: false,
		},
		{
			name:          "unmapped code falls back to itself",
			err:           &StandardError{Code: "SOMETHING_ELSE", Retryable: true},
			wantCode:      "SOMETHING_ELSE",
			wantRetries:   0,
			wantRetryable: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bpmn := ConvertToBPMNError(tt.err)
			assert.Equal(t, tt.wantCode, bpmn.Code)
			assert.Equal(t, tt.wantRetries, bpmn.Retries)
			assert.Equal(t, tt.wantRetryable, bpmn.Retryable)
			assert.Equal(t, string(tt.err.Code), bpmn.ToErrorVariables()["originalErrorCode"])
		})
	}
}

func TestNormalize(t *testing.T) {
	cause := fmt.Errorf("boom")

	t.Run("wrapped standard error is found", func(t *testing.T) {
		std := NewMailEnqueueFailedError(cause)
		got := Normalize(fmt.Errorf("workflow: %w", std))
		assert.Same(t, std, got)
		assert.True(t, stderrors.Is(got, cause))
	})

	t.Run("plain error becomes internal", func(t *testing.T) {
		got := Normalize(cause)
		assert.Equal(t, ErrCodeInternal, got.Code)
		assert.False(t, got.Retryable)
		assert.Equal(t, "boom", got.Details)
	})
}

func TestRemainingRetries(t *testing.T) {
	assert.Equal(t, int32(2), RemainingRetries(3, 3))
	assert.Equal(t, int32(3), RemainingRetries(10, 3))
	assert.Equal(t, int32(0), RemainingRetries(1, 3))
	assert.Equal(t, int32(0), RemainingRetries(0, 3))
	assert.Equal(t, int32(0), RemainingRetries(5, 0))
}

func TestGetErrorCategory(t *testing.T) {
	assert.Equal(t, "PUSH", GetErrorCategory(ErrCodeFCMDispatchFailed))
	assert.Equal(t, "MAIL", GetErrorCategory(ErrCodeMailEnqueueFailed))
	assert.Equal(t, "MAIL", GetErrorCategory(ErrCodeNoRecipients))
	assert.Equal(t, "DATABASE", GetErrorCategory(ErrCodeSettingsReadFailed))
	assert.Equal(t, "VALIDATION", GetErrorCategory(ErrCodeInvalidEvent))
	assert.Equal(t, "OTHER", GetErrorCategory(ErrCodeInternal))
}

func TestStandardErrorMessage(t *testing.T) {
	err := NewTemplateNotFoundError("welcome")
	require.Error(t, err)
	assert.Equal(t, "TEMPLATE_NOT_FOUND: Template not found: template: welcome", err.Error())
	assert.False(t, IsRetryableErrorCode(err.Code))
}
