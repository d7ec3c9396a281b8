package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"relief-alert-service/internal/logging"
	"relief-alert-service/internal/models"
)

// DefaultExpoURL is Expo's push send endpoint.
const DefaultExpoURL = "https://exp.host/--/api/v2/push/send"

// maxResponseBytes caps how much of a push response is kept in an outcome.
const maxResponseBytes = 64 << 10

// ExpoConfig configures the Expo push client.
type ExpoConfig struct {
	URL           string
	AccessToken   string
	RatePerSecond int
}

// Expo posts push messages to the Expo push service.
type Expo struct {
	url     string
	token   string
	client  *http.Client
	limiter *rate.Limiter
	logger  *logging.Logger
}

func NewExpo(cfg ExpoConfig, logger *logging.Logger) *Expo {
	if cfg.URL == "" {
		cfg.URL = DefaultExpoURL
	}
	limit := rate.Inf
	burst := 1
	if cfg.RatePerSecond > 0 {
		limit = rate.Limit(cfg.RatePerSecond)
		burst = cfg.RatePerSecond
	}
	return &Expo{
		url:     cfg.URL,
		token:   cfg.AccessToken,
		client:  &http.Client{Transport: http.DefaultTransport.(*http.Transport).Clone()},
		limiter: rate.NewLimiter(limit, burst),
		logger:  logger,
	}
}

// Client exposes the underlying HTTP client so tests can intercept it.
func (e *Expo) Client() *http.Client {
	return e.client
}

// Send posts msg and returns the status and body Expo answered with. Non-2xx
// answers are not errors; the caller decides what counts as delivered.
func (e *Expo) Send(ctx context.Context, msg models.PushMessage) (models.PushResult, error) {
	if err := e.limiter.Wait(ctx); err != nil {
		return models.PushResult{}, fmt.Errorf("push rate limit wait: %w", err)
	}

	payload, err := json.Marshal(msg)
	if err != nil {
		return models.PushResult{}, fmt.Errorf("failed to encode push message: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.url, bytes.NewReader(payload))
	if err != nil {
		return models.PushResult{}, fmt.Errorf("failed to create push request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if e.token != "" {
		req.Header.Set("Authorization", "Bearer "+e.token)
	}

	start := time.Now()
	resp, err := e.client.Do(req)
	if err != nil {
		return models.PushResult{}, fmt.Errorf("failed to send push to %s: %w", msg.To, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return models.PushResult{StatusCode: resp.StatusCode}, fmt.Errorf("failed to read push response: %w", err)
	}
	e.logger.Debugf("Push to %s answered %d in %s", msg.To, resp.StatusCode, time.Since(start))
	return models.PushResult{StatusCode: resp.StatusCode, Body: string(body)}, nil
}
