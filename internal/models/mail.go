// internal/models/mail.go
package models

import "time"

const (
	MailCollection     = "mail"
	TemplateNewRequest = "new-request"
)

// Delivery states written by the mail poller.
const (
	DeliveryPending    = "PENDING"
	DeliveryProcessing = "PROCESSING"
	DeliverySuccess    = "SUCCESS"
	DeliveryError      = "ERROR"
)

// MailJob is a document in the mail collection. The request-created workflow
// writes it without a delivery field; the mail poller owns delivery.
type MailJob struct {
	ToUIDs   []string     `json:"toUids"`
	Template MailTemplate `json:"template"`
	Delivery *Delivery    `json:"delivery,omitempty"`
}

type MailTemplate struct {
	Name string                 `json:"name"`
	Data map[string]interface{} `json:"data"`
}

type Delivery struct {
	State     string     `json:"state"`
	Attempts  int        `json:"attempts"`
	Error     string     `json:"error,omitempty"`
	MessageID string     `json:"messageId,omitempty"`
	StartTime *time.Time `json:"startTime,omitempty"`
	EndTime   *time.Time `json:"endTime,omitempty"`
}

// NewRequestMail builds the new-request MailJob. A nil recipient list is
// written as an empty array.
func NewRequestMail(toUIDs []string, requestData map[string]interface{}, projectDomain string) MailJob {
	if toUIDs == nil {
		toUIDs = []string{}
	}
	return MailJob{
		ToUIDs: toUIDs,
		Template: MailTemplate{
			Name: TemplateNewRequest,
			Data: map[string]interface{}{
				"requestData":   requestData,
				"projectDomain": projectDomain,
			},
		},
	}
}
