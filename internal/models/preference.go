package models

// NotificationPreference holds a user's opt-in flags.
type NotificationPreference struct {
	General    bool `json:"general"`
	Emergency  bool `json:"emergency"`
	SilentMode bool `json:"silentMode"`
}

// DefaultPreference applies to users who never saved settings.
func DefaultPreference() NotificationPreference {
	return NotificationPreference{General: false, Emergency: true, SilentMode: false}
}

// PreferenceUpdate is a partial write; nil fields take the default value.
type PreferenceUpdate struct {
	General    *bool `json:"general"`
	Emergency  *bool `json:"emergency"`
	SilentMode *bool `json:"silentMode"`
}

// Resolve fills absent fields with defaults.
func (u PreferenceUpdate) Resolve() NotificationPreference {
	p := DefaultPreference()
	if u.General != nil {
		p.General = *u.General
	}
	if u.Emergency != nil {
		p.Emergency = *u.Emergency
	}
	if u.SilentMode != nil {
		p.SilentMode = *u.SilentMode
	}
	return p
}
