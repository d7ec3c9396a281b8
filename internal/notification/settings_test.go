package notification

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"relief-alert-service/internal/apperr"
	"relief-alert-service/internal/db"
	"relief-alert-service/internal/logging"
	"relief-alert-service/internal/models"
)

func TestPreferencesDefaultWhenMissing(t *testing.T) {
	s := NewSettings(db.NewMemory(), &fakeSender{}, logging.Discard())

	pref, err := s.Preferences(context.Background(), 42)
	require.NoError(t, err)
	assert.Equal(t, models.DefaultPreference(), pref)
}

func TestSavePreferencesFillsDefaults(t *testing.T) {
	store := db.NewMemory()
	s := NewSettings(store, &fakeSender{}, logging.Discard())
	silent := true

	saved, err := s.SavePreferences(context.Background(), 1, models.PreferenceUpdate{SilentMode: &silent})
	require.NoError(t, err)
	assert.Equal(t, models.NotificationPreference{General: false, Emergency: true, SilentMode: true}, saved)

	got, err := s.Preferences(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, saved, got)
}

func TestRegisterTokenRequiresValue(t *testing.T) {
	s := NewSettings(db.NewMemory(), &fakeSender{}, logging.Discard())

	err := s.RegisterToken(context.Background(), 1, "   ")
	assert.True(t, apperr.IsValidation(err))
}

func TestSendDemo(t *testing.T) {
	store := db.NewMemory()
	sender := &fakeSender{}
	s := NewSettings(store, sender, logging.Discard())

	_, err := s.SendDemo(context.Background(), 1)
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	require.NoError(t, s.RegisterToken(context.Background(), 1, " ExponentPushToken[abc] "))
	res, err := s.SendDemo(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, 200, res.StatusCode)

	msgs := sender.messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, "ExponentPushToken[abc]", msgs[0].To)
	assert.Equal(t, "SesimVar", msgs[0].Title)
	assert.Equal(t, "Bu bir test bildirimi", msgs[0].Body)
}
