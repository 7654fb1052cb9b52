// internal/workers/requests/request-created/handler_test.go
package requestcreated

import (
	"context"
	"database/sql/driver"
	"encoding/json"
	stderrors "errors"
	"regexp"
	"sort"
	"sync"
	"testing"
	"time"

	"request-workers/internal/common/config"
	"request-workers/internal/common/docstore"
	apperrors "request-workers/internal/common/errors"
	"request-workers/internal/common/logger"
	"request-workers/internal/models"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/alicebob/miniredis/v2"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/go-redis/redismock/v9"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ==========================
// Mock Implementations
// ==========================

type MockSNSService struct {
	mu          sync.Mutex
	calls       []*sns.PublishInput
	PublishFunc func(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
}

func (m *MockSNSService) Publish(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error) {
	m.mu.Lock()
	m.calls = append(m.calls, params)
	m.mu.Unlock()

	if m.PublishFunc != nil {
		return m.PublishFunc(ctx, params, optFns...)
	}
	return &sns.PublishOutput{MessageId: aws.String("msg-1")}, nil
}

// publishedTo decodes every published body and returns the user ids, sorted.
func (m *MockSNSService) publishedTo(t *testing.T) []string {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()

	users := make([]string, 0, len(m.calls))
	for _, call := range m.calls {
		var msg models.FcmDispatchMessage
		require.NoError(t, json.Unmarshal([]byte(aws.ToString(call.Message)), &msg))
		users = append(users, msg.UserID)
	}
	sort.Strings(users)
	return users
}

// failFor rejects publishes addressed to userID.
func failFor(userID string) func(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error) {
	return func(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error) {
		if aws.ToString(params.MessageAttributes["userId"].StringValue) == userID {
			return nil, stderrors.New("topic unavailable")
		}
		return &sns.PublishOutput{MessageId: aws.String("msg-ok")}, nil
	}
}

// mailCapture decodes the JSON document passed to an INSERT.
type mailCapture struct {
	job *models.MailJob
}

func (c mailCapture) Match(v driver.Value) bool {
	raw, ok := v.([]byte)
	if !ok {
		return false
	}
	return json.Unmarshal(raw, c.job) == nil
}

// ==========================
// Test Helper Functions
// ==========================

const (
	selectDoc  = `SELECT data, created_at, updated_at FROM documents WHERE collection = $1 AND id = $2`
	insertDoc  = `INSERT INTO documents (collection, id, data) VALUES ($1, $2, $3)`
	createDoc  = `INSERT INTO documents (collection, id, data) VALUES ($1, $2, $3) ON CONFLICT (collection, id) DO NOTHING`
	testTopic  = "arn:aws:sns:us-east-1:123456789012:sendFcm"
	testReqID  = "req-001"
	testDomain = "demo-project.web.app"
)

func createTestConfig() *Config {
	return &Config{
		ProjectID:   "demo-project",
		FCMTopicARN: testTopic,
		Message:     models.DefaultFcmMessage,
		Policy:      config.DispatchPolicyFailFast,
		DedupeTTL:   time.Hour,
		Timeout:     5 * time.Second,
	}
}

func createTestInput() *Input {
	return &Input{
		RequestID: testReqID,
		Request: map[string]interface{}{
			"title":  "Fix the sink",
			"status": "open",
		},
		Params: map[string]interface{}{"requestId": testReqID},
	}
}

func newTestHandler(t *testing.T, cfg *Config, markers MarkerStore) (*Handler, sqlmock.Sqlmock, *MockSNSService) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	publisher := &MockSNSService{}
	h, err := NewHandler(cfg, docstore.New(db), publisher, markers, nil, logger.NewTestLogger(t))
	require.NoError(t, err)
	return h, mock, publisher
}

func expectSettings(mock sqlmock.Sqlmock, data string) {
	mock.ExpectQuery(regexp.QuoteMeta(selectDoc)).
		WithArgs("system_settings", "notification").
		WillReturnRows(sqlmock.NewRows([]string{"data", "created_at", "updated_at"}).
			AddRow([]byte(data), time.Now(), time.Now()))
}

func expectMailInsert(mock sqlmock.Sqlmock, job *models.MailJob) {
	mock.ExpectExec(regexp.QuoteMeta(insertDoc)).
		WithArgs(models.MailCollection, sqlmock.AnyArg(), mailCapture{job: job}).
		WillReturnResult(sqlmock.NewResult(0, 1))
}

func requireCode(t *testing.T, err error, code apperrors.ErrorCode) {
	t.Helper()
	var stdErr *apperrors.StandardError
	require.True(t, stderrors.As(err, &stdErr), "expected StandardError, got %v", err)
	assert.Equal(t, code, stdErr.Code)
}

// ==========================
// Core Functionality Tests
// ==========================

func TestHandler_Execute_Success(t *testing.T) {
	h, mock, publisher := newTestHandler(t, createTestConfig(), nil)

	var job models.MailJob
	expectSettings(mock, `{"newRequests":["u1","u2"]}`)
	expectMailInsert(mock, &job)

	output, err := h.Execute(context.Background(), createTestInput())
	require.NoError(t, err)

	assert.Equal(t, testReqID, output.RequestID)
	assert.Len(t, output.MailID, 36)
	assert.Equal(t, 2, output.Dispatched)
	assert.Equal(t, 0, output.DispatchFailed)

	assert.Equal(t, []string{"u1", "u2"}, publisher.publishedTo(t))
	for _, call := range publisher.calls {
		assert.Equal(t, testTopic, aws.ToString(call.TopicArn))
		assert.Contains(t, aws.ToString(call.Message), `"message":"Request Created"`)
	}

	assert.Equal(t, []string{"u1", "u2"}, job.ToUIDs)
	assert.Equal(t, models.TemplateNewRequest, job.Template.Name)
	assert.Equal(t, testDomain, job.Template.Data["projectDomain"])
	assert.Equal(t, map[string]interface{}{
		"id":     testReqID,
		"title":  "Fix the sink",
		"status": "open",
	}, job.Template.Data["requestData"])
	assert.Nil(t, job.Delivery)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestHandler_Execute_RecipientFallbacks(t *testing.T) {
	tests := []struct {
		name  string
		setup func(mock sqlmock.Sqlmock)
	}{
		{
			name: "settings without newRequests",
			setup: func(mock sqlmock.Sqlmock) {
				expectSettings(mock, `{"otherField":true}`)
			},
		},
		{
			name: "settings doc missing",
			setup: func(mock sqlmock.Sqlmock) {
				mock.ExpectQuery(regexp.QuoteMeta(selectDoc)).
					WithArgs("system_settings", "notification").
					WillReturnRows(sqlmock.NewRows([]string{"data", "created_at", "updated_at"}))
			},
		},
		{
			name: "settings read error",
			setup: func(mock sqlmock.Sqlmock) {
				mock.ExpectQuery(regexp.QuoteMeta(selectDoc)).
					WithArgs("system_settings", "notification").
					WillReturnError(stderrors.New("permission denied"))
			},
		},
		{
			name: "only invalid entries",
			setup: func(mock sqlmock.Sqlmock) {
				expectSettings(mock, `{"newRequests":[7,null,""]}`)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, mock, publisher := newTestHandler(t, createTestConfig(), nil)

			var job models.MailJob
			tt.setup(mock)
			expectMailInsert(mock, &job)

			output, err := h.Execute(context.Background(), createTestInput())
			require.NoError(t, err)

			assert.Empty(t, publisher.publishedTo(t))
			assert.Equal(t, 0, output.Dispatched)
			assert.NotEmpty(t, output.MailID)
			assert.NotNil(t, job.ToUIDs)
			assert.Empty(t, job.ToUIDs)
			assert.Equal(t, models.TemplateNewRequest, job.Template.Name)
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestHandler_Execute_FailFastSkipsMail(t *testing.T) {
	h, mock, publisher := newTestHandler(t, createTestConfig(), nil)
	publisher.PublishFunc = failFor("u2")

	expectSettings(mock, `{"newRequests":["u1","u2"]}`)

	output, err := h.Execute(context.Background(), createTestInput())
	require.Error(t, err)
	assert.Nil(t, output)
	requireCode(t, err, apperrors.ErrCodeFCMDispatchFailed)
	assert.Contains(t, err.Error(), "1 of 2 publishes failed")

	// every publish settles before the failure is reported
	assert.Equal(t, []string{"u1", "u2"}, publisher.publishedTo(t))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestHandler_Execute_BestEffortContinues(t *testing.T) {
	cfg := createTestConfig()
	cfg.Policy = config.DispatchPolicyBestEffort
	h, mock, publisher := newTestHandler(t, cfg, nil)
	publisher.PublishFunc = failFor("u1")

	var job models.MailJob
	expectSettings(mock, `{"newRequests":["u1","u2"]}`)
	expectMailInsert(mock, &job)

	output, err := h.Execute(context.Background(), createTestInput())
	require.NoError(t, err)
	assert.Equal(t, 1, output.Dispatched)
	assert.Equal(t, 1, output.DispatchFailed)
	assert.Equal(t, []string{"u1", "u2"}, job.ToUIDs)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestHandler_Execute_MailWriteFailure(t *testing.T) {
	h, mock, publisher := newTestHandler(t, createTestConfig(), nil)

	expectSettings(mock, `{"newRequests":["u1","u2"]}`)
	mock.ExpectExec(regexp.QuoteMeta(insertDoc)).
		WithArgs(models.MailCollection, sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnError(stderrors.New("disk full"))

	output, err := h.Execute(context.Background(), createTestInput())
	require.Error(t, err)
	assert.Nil(t, output)
	requireCode(t, err, apperrors.ErrCodeMailEnqueueFailed)
	assert.Contains(t, err.Error(), "disk full")

	assert.Equal(t, []string{"u1", "u2"}, publisher.publishedTo(t))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestHandler_Execute_ProjectDomain(t *testing.T) {
	tests := []struct {
		name        string
		frontendURL string
		want        string
	}{
		{name: "default hosting domain", want: testDomain},
		{name: "frontend url verbatim", frontendURL: "requests.example.com", want: "requests.example.com"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := createTestConfig()
			cfg.FrontendURL = tt.frontendURL
			h, mock, _ := newTestHandler(t, cfg, nil)

			var job models.MailJob
			expectSettings(mock, `{"newRequests":[]}`)
			expectMailInsert(mock, &job)

			_, err := h.Execute(context.Background(), createTestInput())
			require.NoError(t, err)
			assert.Equal(t, tt.want, job.Template.Data["projectDomain"])
		})
	}
}

func TestHandler_Execute_DoesNotMutateInput(t *testing.T) {
	h, mock, _ := newTestHandler(t, createTestConfig(), nil)

	var job models.MailJob
	expectSettings(mock, `{}`)
	expectMailInsert(mock, &job)

	input := createTestInput()
	_, err := h.Execute(context.Background(), input)
	require.NoError(t, err)

	_, hasID := input.Request["id"]
	assert.False(t, hasID)
	assert.Equal(t, testReqID, job.Template.Data["requestData"].(map[string]interface{})["id"])
}

// ==========================
// Dedupe Tests
// ==========================

func TestHandler_Execute_DedupeRetry(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	cfg := createTestConfig()
	cfg.DedupeEnabled = true
	h, mock, publisher := newTestHandler(t, cfg, NewRedisMarkers(client, cfg.DedupeTTL))
	mailID := MailIDFor(testReqID)

	// first delivery: both users sent, mail created
	expectSettings(mock, `{"newRequests":["u1","u2"]}`)
	mock.ExpectExec(regexp.QuoteMeta(createDoc)).
		WithArgs(models.MailCollection, mailID, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	first, err := h.Execute(context.Background(), createTestInput())
	require.NoError(t, err)
	assert.Equal(t, 2, first.Dispatched)
	assert.Equal(t, mailID, first.MailID)
	assert.True(t, mr.Exists(fcmMarkerKey(testReqID, "u1")))
	assert.Equal(t, time.Hour, mr.TTL(fcmMarkerKey(testReqID, "u2")))

	// redelivery: nothing published, mail insert is a no-op
	expectSettings(mock, `{"newRequests":["u1","u2"]}`)
	mock.ExpectExec(regexp.QuoteMeta(createDoc)).
		WithArgs(models.MailCollection, mailID, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))

	second, err := h.Execute(context.Background(), createTestInput())
	require.NoError(t, err)
	assert.Equal(t, 0, second.Dispatched)
	assert.Equal(t, mailID, second.MailID)
	assert.Equal(t, []string{"u1", "u2"}, publisher.publishedTo(t))

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestHandler_Execute_DedupeRedisDown(t *testing.T) {
	client, redisMock := redismock.NewClientMock()
	key := fcmMarkerKey(testReqID, "u1")
	redisMock.ExpectExists(key).SetErr(stderrors.New("connection refused"))
	redisMock.ExpectSet(key, "1", time.Hour).SetErr(stderrors.New("connection refused"))

	cfg := createTestConfig()
	cfg.DedupeEnabled = true
	h, mock, publisher := newTestHandler(t, cfg, NewRedisMarkers(client, time.Hour))

	expectSettings(mock, `{"newRequests":["u1"]}`)
	mock.ExpectExec(regexp.QuoteMeta(createDoc)).
		WithArgs(models.MailCollection, MailIDFor(testReqID), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	output, err := h.Execute(context.Background(), createTestInput())
	require.NoError(t, err)
	assert.Equal(t, 1, output.Dispatched)
	assert.Equal(t, []string{"u1"}, publisher.publishedTo(t))

	assert.NoError(t, redisMock.ExpectationsWereMet())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestNewHandler_DedupeDisabledIgnoresMarkers(t *testing.T) {
	client, redisMock := redismock.NewClientMock()
	h, mock, publisher := newTestHandler(t, createTestConfig(), NewRedisMarkers(client, time.Hour))

	var job models.MailJob
	expectSettings(mock, `{"newRequests":["u1"]}`)
	expectMailInsert(mock, &job)

	_, err := h.Execute(context.Background(), createTestInput())
	require.NoError(t, err)
	assert.Equal(t, []string{"u1"}, publisher.publishedTo(t))
	assert.NoError(t, redisMock.ExpectationsWereMet())
}

func TestMailIDFor(t *testing.T) {
	assert.Equal(t, MailIDFor("r1"), MailIDFor("r1"))
	assert.NotEqual(t, MailIDFor("r1"), MailIDFor("r2"))
	assert.Len(t, MailIDFor("r1"), 36)
}

// ==========================
// Input and Config Tests
// ==========================

func TestHandler_ParseInput(t *testing.T) {
	h, _, _ := newTestHandler(t, createTestConfig(), nil)

	tests := []struct {
		name      string
		variables string
		wantErr   bool
	}{
		{name: "valid", variables: `{"requestId":"r1","request":{"title":"x"},"params":{},"auth":null}`},
		{name: "extra process variables", variables: `{"requestId":"r1","request":{},"other":1}`},
		{name: "missing requestId", variables: `{"request":{}}`, wantErr: true},
		{name: "empty requestId", variables: `{"requestId":"","request":{}}`, wantErr: true},
		{name: "missing request", variables: `{"requestId":"r1"}`, wantErr: true},
		{name: "request not an object", variables: `{"requestId":"r1","request":"x"}`, wantErr: true},
		{name: "malformed json", variables: `{"requestId":`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			input, err := h.parseInput(tt.variables)
			if tt.wantErr {
				require.Error(t, err)
				requireCode(t, err, apperrors.ErrCodeInvalidEvent)
				assert.Equal(t, 0, apperrors.ConvertToBPMNError(apperrors.Normalize(err)).Retries)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, "r1", input.RequestID)
		})
	}
}

func TestNewConfig(t *testing.T) {
	cfg := &config.Config{}
	cfg.Project.ID = "demo-project"
	cfg.Notifications.FCMTopicARN = testTopic
	cfg.Dedupe.TTL = 60
	cfg.Workers = map[string]config.WorkerConfig{TaskType: {Enabled: true, Timeout: 10000}}

	c := NewConfig(cfg)
	assert.Equal(t, models.DefaultFcmMessage, c.Message)
	assert.Equal(t, config.DispatchPolicyFailFast, c.Policy)
	assert.Equal(t, time.Minute, c.DedupeTTL)
	assert.Equal(t, 10*time.Second, c.Timeout)
	assert.Equal(t, testDomain, c.ProjectDomain())
}
