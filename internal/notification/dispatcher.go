// Package notification selects alert recipients and fans alerts out to the
// push sink.
package notification

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"relief-alert-service/internal/apperr"
	"relief-alert-service/internal/logging"
	"relief-alert-service/internal/models"
)

const (
	defaultWorkers     = 8
	defaultSendTimeout = 10 * time.Second
)

// Sender delivers one push message. Implementations must honour ctx.
type Sender interface {
	Send(ctx context.Context, msg models.PushMessage) (models.PushResult, error)
}

// Options tunes the fan-out.
type Options struct {
	Workers     int
	SendTimeout time.Duration
}

// Result is everything one broadcast produced.
type Result struct {
	Summary  models.BroadcastSummary
	Outcomes []models.DispatchOutcome
}

// Dispatcher sends one alert to every eligible device through a bounded
// worker pool and collects one outcome per token.
type Dispatcher struct {
	filter    *Filter
	sender    Sender
	logger    *logging.Logger
	workers   int
	timeout   time.Duration
	observers []Observer
}

func NewDispatcher(filter *Filter, sender Sender, logger *logging.Logger, opts Options, observers ...Observer) *Dispatcher {
	if opts.Workers <= 0 {
		opts.Workers = defaultWorkers
	}
	if opts.SendTimeout <= 0 {
		opts.SendTimeout = defaultSendTimeout
	}
	return &Dispatcher{
		filter:    filter,
		sender:    sender,
		logger:    logger,
		workers:   opts.Workers,
		timeout:   opts.SendTimeout,
		observers: observers,
	}
}

// Broadcast sends title and body to every device eligible for category.
// Per-device failures are recorded in the outcomes; an error is returned only
// when the alert is invalid or recipients could not be loaded.
func (d *Dispatcher) Broadcast(ctx context.Context, title, body string, category models.Category) (Result, error) {
	if _, err := models.ParseCategory(string(category)); err != nil {
		return Result{}, apperr.Invalid("category", "%v", err)
	}
	if strings.TrimSpace(title) == "" {
		return Result{}, apperr.Invalid("title", "is required")
	}

	started := time.Now()
	runID := uuid.NewString()

	tokens, err := d.filter.EligibleTokens(ctx, category)
	if err != nil {
		return Result{}, fmt.Errorf("broadcast %s: %w", runID, err)
	}
	d.logger.Infof("Broadcast %s: sending %q (%s) to %d devices", runID, title, category, len(tokens))

	outcomes := d.fanOut(ctx, tokens, title, body, category)

	summary := models.BroadcastSummary{
		RunID:     runID,
		Category:  category,
		Title:     title,
		Attempted: len(outcomes),
		StartedAt: started,
	}
	for _, o := range outcomes {
		if o.Success {
			summary.Succeeded++
		} else {
			summary.Failed++
		}
	}
	summary.Duration = time.Since(started)
	d.logger.Infof("Broadcast %s finished: %d ok, %d failed in %s", runID, summary.Succeeded, summary.Failed, summary.Duration)

	d.notify(ctx, summary)
	return Result{Summary: summary, Outcomes: outcomes}, nil
}

func (d *Dispatcher) fanOut(ctx context.Context, tokens []string, title, body string, category models.Category) []models.DispatchOutcome {
	jobs := make(chan string)
	results := make(chan models.DispatchOutcome, len(tokens))

	workers := d.workers
	if len(tokens) < workers {
		workers = len(tokens)
	}
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for token := range jobs {
				results <- d.send(ctx, models.NewPushMessage(token, title, body, category))
			}
		}()
	}
	for _, token := range tokens {
		jobs <- token
	}
	close(jobs)
	wg.Wait()
	close(results)

	outcomes := make([]models.DispatchOutcome, 0, len(tokens))
	for o := range results {
		outcomes = append(outcomes, o)
	}
	return outcomes
}

func (d *Dispatcher) send(ctx context.Context, msg models.PushMessage) models.DispatchOutcome {
	sendCtx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	res, err := d.sender.Send(sendCtx, msg)
	out := models.DispatchOutcome{Token: msg.To, StatusCode: res.StatusCode, Response: res.Body}
	switch {
	case err != nil && errors.Is(err, context.DeadlineExceeded):
		out.Error = fmt.Sprintf("timeout after %s", d.timeout)
	case err != nil:
		out.Error = err.Error()
	case res.StatusCode < 200 || res.StatusCode > 299:
		out.Error = fmt.Sprintf("unexpected status %d", res.StatusCode)
	default:
		out.Success = true
	}
	if !out.Success {
		d.logger.WithFields(logrus.Fields{"token": msg.To, "status": out.StatusCode}).Warnf("Push failed: %s", out.Error)
	}
	return out
}

func (d *Dispatcher) notify(ctx context.Context, summary models.BroadcastSummary) {
	for _, o := range d.observers {
		if err := o.BroadcastFinished(ctx, summary); err != nil {
			d.logger.Errorf("Broadcast %s observer failed: %v", summary.RunID, err)
		}
	}
}
