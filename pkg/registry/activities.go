package registry

// Task types served by this repository.
const (
	TaskRequestCreated = "request-created"
)

// Default is the built-in registry used when no registry file is configured.
func Default() *ActivityRegistry {
	return &ActivityRegistry{
		Version:     "1.0.0",
		LastUpdated: "2026-10-01",
		Activities: []Activity{
			{
				ID:          "notify-request-created",
				DisplayName: "Notify Request Created",
				Description: "Sends push dispatch requests and enqueues the new-request email for a created request",
				Category:    "notifications",
				Version:     "1.0.0",
				TaskType:    TaskRequestCreated,
				InputSchema: map[string]interface{}{
					"type":     "object",
					"required": []interface{}{"requestId", "request"},
					"properties": map[string]interface{}{
						"requestId": map[string]interface{}{"type": "string", "minLength": 1},
						"request":   map[string]interface{}{"type": "object"},
						"params":    map[string]interface{}{"type": "object"},
						"auth":      map[string]interface{}{"type": []interface{}{"object", "null"}},
					},
				},
				OutputSchema: map[string]interface{}{
					"type": "object",
					"properties": map[string]interface{}{
						"requestId":      map[string]interface{}{"type": "string"},
						"mailId":         map[string]interface{}{"type": "string"},
						"dispatched":     map[string]interface{}{"type": "integer"},
						"dispatchFailed": map[string]interface{}{"type": "integer"},
					},
				},
				ErrorCodes: []string{"INVALID_EVENT", "FCM_DISPATCH_FAILED", "MAIL_ENQUEUE_FAILED"},
				Timeout:    "30s",
				Retries:    3,
				Tags:       []string{"fcm", "mail"},
			},
		},
	}
}
