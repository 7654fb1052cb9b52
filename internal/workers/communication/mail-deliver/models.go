// internal/workers/communication/mail-deliver/models.go
package maildeliver

import "request-workers/internal/models"

// ClaimedMail is a mail document this poller holds the PROCESSING claim on.
type ClaimedMail struct {
	ID  string
	Job models.MailJob
}

func (m ClaimedMail) attempts() int {
	if m.Job.Delivery == nil {
		return 0
	}
	return m.Job.Delivery.Attempts
}

// RenderedEmail is a template expanded for one mail job.
type RenderedEmail struct {
	Subject string
	Text    string
	HTML    string
}

// PollResult counts what one poll tick did.
type PollResult struct {
	Claimed   int
	Delivered int
	Failed    int
}
