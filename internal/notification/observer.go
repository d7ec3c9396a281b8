package notification

import (
	"context"

	"relief-alert-service/internal/models"
)

// Observer is told about every finished broadcast.
type Observer interface {
	BroadcastFinished(ctx context.Context, summary models.BroadcastSummary) error
}

// ObserverFunc adapts a plain function to Observer.
type ObserverFunc func(ctx context.Context, summary models.BroadcastSummary) error

func (f ObserverFunc) BroadcastFinished(ctx context.Context, summary models.BroadcastSummary) error {
	return f(ctx, summary)
}
