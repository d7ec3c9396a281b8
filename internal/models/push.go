package models

// PushMessage is the body posted to the push sink for one device.
type PushMessage struct {
	To       string `json:"to"`
	Title    string `json:"title"`
	Body     string `json:"body"`
	Sound    string `json:"sound"`
	Priority string `json:"priority,omitempty"`
}

// PushResult is what the push sink answered, whatever the status.
type PushResult struct {
	StatusCode int
	Body       string
}

// NewPushMessage builds the message for category. Emergency alerts are sent
// with high priority.
func NewPushMessage(token, title, body string, category Category) PushMessage {
	msg := PushMessage{To: token, Title: title, Body: body, Sound: "default"}
	if category == CategoryEmergency {
		msg.Priority = "high"
	}
	return msg
}
