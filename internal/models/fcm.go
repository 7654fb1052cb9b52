// internal/models/fcm.go
package models

const (
	FcmTopicName      = "sendFcm"
	DefaultFcmMessage = "Request Created"
)

// FcmDispatchMessage is the body published to the sendFcm topic, one per
// recipient. A downstream consumer turns it into a device push.
type FcmDispatchMessage struct {
	UserID  string `json:"userId"`
	Message string `json:"message"`
}
