package notification

import (
	"context"
	"fmt"

	"relief-alert-service/internal/models"
)

// RecipientSource lists every registered device with its owner's preference.
type RecipientSource interface {
	ListRecipients(ctx context.Context) ([]models.Recipient, error)
}

// Filter selects the device tokens that should receive an alert category.
type Filter struct {
	source RecipientSource
}

func NewFilter(source RecipientSource) *Filter {
	return &Filter{source: source}
}

// EligibleTokens returns one token per eligible user, in no particular order.
func (f *Filter) EligibleTokens(ctx context.Context, category models.Category) ([]string, error) {
	recipients, err := f.source.ListRecipients(ctx)
	if err != nil {
		return nil, fmt.Errorf("list recipients: %w", err)
	}

	seen := make(map[string]struct{}, len(recipients))
	tokens := make([]string, 0, len(recipients))
	for _, r := range recipients {
		if r.PushToken == "" {
			continue
		}
		pref := models.DefaultPreference()
		if r.Preference != nil {
			pref = *r.Preference
		}
		if !Eligible(pref, category) {
			continue
		}
		if _, dup := seen[r.PushToken]; dup {
			continue
		}
		seen[r.PushToken] = struct{}{}
		tokens = append(tokens, r.PushToken)
	}
	return tokens, nil
}

// Eligible reports whether a user with pref opted in to category. Silent mode
// only suppresses emergency alerts; general alerts need just the general opt-in.
func Eligible(pref models.NotificationPreference, category models.Category) bool {
	switch category {
	case models.CategoryEmergency:
		return pref.Emergency && !pref.SilentMode
	case models.CategoryGeneral:
		return pref.General
	default:
		return false
	}
}
