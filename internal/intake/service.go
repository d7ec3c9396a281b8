// Package intake accepts help calls: throttles the client, validates the
// report, attaches risk levels and persists it.
package intake

import (
	"context"
	"fmt"
	"strings"
	"time"

	"relief-alert-service/internal/apperr"
	"relief-alert-service/internal/logging"
	"relief-alert-service/internal/models"
	"relief-alert-service/internal/ratelimit"
	"relief-alert-service/internal/risk"
)

// Store is the report persistence the service needs.
type Store interface {
	InsertReport(ctx context.Context, r models.HelpReport) (int64, error)
	ReportsByUser(ctx context.Context, userID int64, status models.ReportStatus) ([]models.HelpReport, error)
	UpdateReportContent(ctx context.Context, userID, id int64, message string, lat, lon float64) error
	UpdateReportStatus(ctx context.Context, userID, id int64, status models.ReportStatus) error
	DeleteReport(ctx context.Context, userID, id int64) error
}

// Recorder receives intake events for metrics.
type Recorder interface {
	RateLimit(allowed bool)
	ReportCreated(risk models.UserRisk)
}

// SubmitRequest is a new help call. Coordinates are pointers so a missing
// value can be told apart from zero.
type SubmitRequest struct {
	Message   string   `json:"message"`
	Latitude  *float64 `json:"latitude"`
	Longitude *float64 `json:"longitude"`
}

type Service struct {
	store      Store
	limiter    *ratelimit.Limiter
	classifier *risk.Classifier
	recorder   Recorder
	logger     *logging.Logger
	now        func() time.Time
}

func NewService(store Store, limiter *ratelimit.Limiter, classifier *risk.Classifier, recorder Recorder, logger *logging.Logger) *Service {
	if recorder == nil {
		recorder = nopRecorder{}
	}
	return &Service{
		store:      store,
		limiter:    limiter,
		classifier: classifier,
		recorder:   recorder,
		logger:     logger,
		now:        time.Now,
	}
}

// Submit throttles clientKey, then validates, classifies and stores req.
func (s *Service) Submit(ctx context.Context, clientKey string, userID int64, req SubmitRequest) (models.HelpReport, error) {
	d := s.limiter.Check(clientKey)
	s.recorder.RateLimit(d.Allowed)
	if !d.Allowed {
		s.logger.WithField("client", clientKey).Warnf("Rate limit hit (%d/%d)", d.Count, d.Limit)
		return models.HelpReport{}, &apperr.RateLimitedError{RetryAfter: time.Until(d.ResetAt)}
	}

	if userID <= 0 {
		return models.HelpReport{}, apperr.Invalid("user_id", "is required")
	}
	message := strings.TrimSpace(req.Message)
	if message == "" {
		return models.HelpReport{}, apperr.Invalid("message", "is required")
	}
	lat, lon, err := coordinates(req.Latitude, req.Longitude)
	if err != nil {
		return models.HelpReport{}, err
	}

	zone, err := s.classifier.ZoneRisk(ctx, lat, lon)
	if err != nil {
		return models.HelpReport{}, fmt.Errorf("classify zone risk: %w", err)
	}
	report := models.HelpReport{
		ReporterID: userID,
		Message:    message,
		Latitude:   lat,
		Longitude:  lon,
		ZoneRisk:   zone,
		UserRisk:   s.classifier.UserRisk(message),
		Status:     models.StatusActive,
		CreatedAt:  s.now().UTC(),
	}

	id, err := s.store.InsertReport(ctx, report)
	if err != nil {
		return models.HelpReport{}, err
	}
	report.ID = id
	s.recorder.ReportCreated(report.UserRisk)
	s.logger.Infof("Help report %d created by user %d (zone=%s, user=%s)", id, userID, report.ZoneRisk, report.UserRisk)
	return report, nil
}

// List returns the user's reports, newest first. An empty status lists all.
func (s *Service) List(ctx context.Context, userID int64, status models.ReportStatus) ([]models.HelpReport, error) {
	if status != "" && !status.Valid() {
		return nil, apperr.Invalid("status", "unknown status %q", status)
	}
	reports, err := s.store.ReportsByUser(ctx, userID, status)
	if err != nil {
		return nil, err
	}
	if reports == nil {
		reports = []models.HelpReport{}
	}
	return reports, nil
}

// UpdateContent edits message and location. Risk levels are kept as computed
// at creation.
func (s *Service) UpdateContent(ctx context.Context, userID, id int64, req SubmitRequest) error {
	message := strings.TrimSpace(req.Message)
	if message == "" {
		return apperr.Invalid("message", "is required")
	}
	lat, lon, err := coordinates(req.Latitude, req.Longitude)
	if err != nil {
		return err
	}
	return s.store.UpdateReportContent(ctx, userID, id, message, lat, lon)
}

func (s *Service) UpdateStatus(ctx context.Context, userID, id int64, status models.ReportStatus) error {
	if !status.Valid() {
		return apperr.Invalid("status", "must be one of active, completed, cancelled")
	}
	if err := s.store.UpdateReportStatus(ctx, userID, id, status); err != nil {
		return err
	}
	s.logger.Infof("Help report %d set to %s by user %d", id, status, userID)
	return nil
}

func (s *Service) Delete(ctx context.Context, userID, id int64) error {
	return s.store.DeleteReport(ctx, userID, id)
}

func coordinates(lat, lon *float64) (float64, float64, error) {
	if lat == nil {
		return 0, 0, apperr.Invalid("latitude", "is required")
	}
	if lon == nil {
		return 0, 0, apperr.Invalid("longitude", "is required")
	}
	if *lat < -90 || *lat > 90 {
		return 0, 0, apperr.Invalid("latitude", "must be between -90 and 90")
	}
	if *lon < -180 || *lon > 180 {
		return 0, 0, apperr.Invalid("longitude", "must be between -180 and 180")
	}
	return *lat, *lon, nil
}

type nopRecorder struct{}

func (nopRecorder) RateLimit(bool)                 {}
func (nopRecorder) ReportCreated(models.UserRisk) {}
