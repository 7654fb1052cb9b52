// internal/models/settings.go
package models

const (
	NotificationSettingsPath = "system_settings/notification"
	NewRequestsField         = "newRequests"
	UsersCollection          = "users"
)

// NotificationSettings is the decoded system_settings/notification document.
type NotificationSettings struct {
	NewRequests []string `json:"newRequests"`
}

// ParseNotificationSettings reads newRequests from raw document data. A
// missing or non-list value yields no recipients. Entries that are not
// non-empty strings are returned separately so the caller can report them.
func ParseNotificationSettings(data map[string]interface{}) (NotificationSettings, []interface{}) {
	var settings NotificationSettings
	raw, ok := data[NewRequestsField].([]interface{})
	if !ok {
		return settings, nil
	}

	var invalid []interface{}
	for _, v := range raw {
		uid, ok := v.(string)
		if !ok || uid == "" {
			invalid = append(invalid, v)
			continue
		}
		settings.NewRequests = append(settings.NewRequests, uid)
	}
	return settings, invalid
}

// User is the subset of a users/<uid> document the mail poller reads.
type User struct {
	Email       string `json:"email"`
	DisplayName string `json:"displayName,omitempty"`
}
