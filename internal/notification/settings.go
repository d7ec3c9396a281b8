package notification

import (
	"context"
	"fmt"
	"strings"

	"relief-alert-service/internal/apperr"
	"relief-alert-service/internal/logging"
	"relief-alert-service/internal/models"
)

const (
	demoTitle = "SesimVar"
	demoBody  = "Bu bir test bildirimi"
)

// SettingsStore persists preferences and device tokens.
type SettingsStore interface {
	GetPreference(ctx context.Context, userID int64) (models.NotificationPreference, bool, error)
	UpsertPreference(ctx context.Context, userID int64, p models.NotificationPreference) error
	GetToken(ctx context.Context, userID int64) (string, bool, error)
	UpsertToken(ctx context.Context, userID int64, token string) error
}

// Settings manages a user's notification preferences and device token.
type Settings struct {
	store  SettingsStore
	sender Sender
	logger *logging.Logger
}

func NewSettings(store SettingsStore, sender Sender, logger *logging.Logger) *Settings {
	return &Settings{store: store, sender: sender, logger: logger}
}

// Preferences returns the stored preference, or the defaults when the user
// never saved one.
func (s *Settings) Preferences(ctx context.Context, userID int64) (models.NotificationPreference, error) {
	pref, found, err := s.store.GetPreference(ctx, userID)
	if err != nil {
		return models.NotificationPreference{}, err
	}
	if !found {
		return models.DefaultPreference(), nil
	}
	return pref, nil
}

// SavePreferences stores update, filling absent fields with defaults.
func (s *Settings) SavePreferences(ctx context.Context, userID int64, update models.PreferenceUpdate) (models.NotificationPreference, error) {
	pref := update.Resolve()
	if err := s.store.UpsertPreference(ctx, userID, pref); err != nil {
		return models.NotificationPreference{}, err
	}
	s.logger.Infof("User %d saved preferences general=%t emergency=%t silent=%t", userID, pref.General, pref.Emergency, pref.SilentMode)
	return pref, nil
}

// RegisterToken replaces the user's device token.
func (s *Settings) RegisterToken(ctx context.Context, userID int64, token string) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return apperr.Invalid("expo_token", "is required")
	}
	return s.store.UpsertToken(ctx, userID, token)
}

// SendDemo pushes a test notification to the caller's own device.
func (s *Settings) SendDemo(ctx context.Context, userID int64) (models.PushResult, error) {
	token, found, err := s.store.GetToken(ctx, userID)
	if err != nil {
		return models.PushResult{}, err
	}
	if !found {
		return models.PushResult{}, fmt.Errorf("device token for user %d: %w", userID, apperr.ErrNotFound)
	}
	res, err := s.sender.Send(ctx, models.NewPushMessage(token, demoTitle, demoBody, models.CategoryGeneral))
	if err != nil {
		return res, fmt.Errorf("send demo notification: %w", err)
	}
	return res, nil
}
