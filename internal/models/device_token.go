package models

// Recipient joins a user's current device token with their stored preference.
// Preference is nil when the user never saved settings.
type Recipient struct {
	UserID     int64
	PushToken  string
	Preference *NotificationPreference
}
