package intake

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"relief-alert-service/internal/apperr"
	"relief-alert-service/internal/config"
	"relief-alert-service/internal/db"
	"relief-alert-service/internal/logging"
	"relief-alert-service/internal/models"
	"relief-alert-service/internal/ratelimit"
	"relief-alert-service/internal/risk"
)

// MockReportStore is a mock implementation of the report store.
type MockReportStore struct {
	mock.Mock
}

func (m *MockReportStore) CountNearby(ctx context.Context, lat, lon, delta float64) (int, error) {
	args := m.Called(lat, lon, delta)
	return args.Int(0), args.Error(1)
}

func (m *MockReportStore) InsertReport(ctx context.Context, r models.HelpReport) (int64, error) {
	args := m.Called(r)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockReportStore) ReportsByUser(ctx context.Context, userID int64, status models.ReportStatus) ([]models.HelpReport, error) {
	args := m.Called(userID, status)
	return nil, args.Error(1)
}

func (m *MockReportStore) UpdateReportContent(ctx context.Context, userID, id int64, message string, lat, lon float64) error {
	return m.Called(userID, id, message, lat, lon).Error(0)
}

func (m *MockReportStore) UpdateReportStatus(ctx context.Context, userID, id int64, status models.ReportStatus) error {
	return m.Called(userID, id, status).Error(0)
}

func (m *MockReportStore) DeleteReport(ctx context.Context, userID, id int64) error {
	return m.Called(userID, id).Error(0)
}

func ptr(f float64) *float64 { return &f }

func newMemoryService(limit int) (*Service, *db.Memory) {
	store := db.NewMemory()
	svc := NewService(store, ratelimit.New(limit, time.Minute), risk.NewClassifier(store, config.DefaultRiskKeywords), nil, logging.Discard())
	return svc, store
}

func validRequest(msg string) SubmitRequest {
	return SubmitRequest{Message: msg, Latitude: ptr(37.0), Longitude: ptr(35.3)}
}

func TestSubmitStoresClassifiedReport(t *testing.T) {
	svc, store := newMemoryService(5)
	ctx := context.Background()

	report, err := svc.Submit(ctx, "10.0.0.1", 7, validRequest("Enkaz altındayım"))
	require.NoError(t, err)

	assert.NotZero(t, report.ID)
	assert.Equal(t, models.UserRiskCritical, report.UserRisk)
	assert.Equal(t, models.ZoneRiskLow, report.ZoneRisk)
	assert.Equal(t, models.StatusActive, report.Status)

	stored, err := store.ReportsByUser(ctx, 7, "")
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Equal(t, report.ID, stored[0].ID)
}

func TestSubmitZoneRiskGrowsWithCrowd(t *testing.T) {
	store := db.NewMemory()
	svc := NewService(store, ratelimit.New(100, time.Minute), risk.NewClassifier(store, nil), nil, logging.Discard())
	ctx := context.Background()

	var last models.HelpReport
	for i := 0; i < 12; i++ {
		r, err := svc.Submit(ctx, "k", 1, validRequest("Her şey yolunda"))
		require.NoError(t, err)
		last = r
	}
	// the 12th report saw 11 earlier ones in its box
	assert.Equal(t, models.ZoneRiskMedium, last.ZoneRisk)
	assert.Equal(t, models.UserRiskMedium, last.UserRisk)
}

func TestSubmitRateLimitedBeforeValidation(t *testing.T) {
	svc, _ := newMemoryService(1)
	ctx := context.Background()

	_, err := svc.Submit(ctx, "10.0.0.1", 1, SubmitRequest{})
	require.True(t, apperr.IsValidation(err), "first call is counted and then validated")

	_, err = svc.Submit(ctx, "10.0.0.1", 1, SubmitRequest{})
	require.ErrorIs(t, err, apperr.ErrRateLimited)
	assert.False(t, apperr.IsValidation(err))

	var rl *apperr.RateLimitedError
	require.True(t, errors.As(err, &rl))
	assert.Greater(t, rl.RetryAfter, time.Duration(0))

	_, err = svc.Submit(ctx, "10.0.0.2", 1, validRequest("help"))
	assert.NoError(t, err)
}

func TestSubmitValidation(t *testing.T) {
	tests := []struct {
		name  string
		user  int64
		req   SubmitRequest
		field string
	}{
		{"missing user", 0, validRequest("x"), "user_id"},
		{"blank message", 1, validRequest("   "), "message"},
		{"missing latitude", 1, SubmitRequest{Message: "x", Longitude: ptr(1)}, "latitude"},
		{"missing longitude", 1, SubmitRequest{Message: "x", Latitude: ptr(1)}, "longitude"},
		{"latitude out of range", 1, SubmitRequest{Message: "x", Latitude: ptr(91), Longitude: ptr(1)}, "latitude"},
		{"longitude out of range", 1, SubmitRequest{Message: "x", Latitude: ptr(1), Longitude: ptr(-181)}, "longitude"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, _ := newMemoryService(100)
			_, err := svc.Submit(context.Background(), "k", tt.user, tt.req)
			var v *apperr.ValidationError
			require.True(t, errors.As(err, &v))
			assert.Equal(t, tt.field, v.Field)
		})
	}
}

func TestSubmitZeroCoordinatesAreValid(t *testing.T) {
	svc, _ := newMemoryService(5)
	_, err := svc.Submit(context.Background(), "k", 1, SubmitRequest{Message: "x", Latitude: ptr(0), Longitude: ptr(0)})
	assert.NoError(t, err)
}

func TestSubmitStoreUnavailable(t *testing.T) {
	store := new(MockReportStore)
	store.On("CountNearby", 37.0, 35.3, risk.NearbyDelta).Return(0, apperr.Store("count nearby reports", errors.New("dial tcp: refused")))
	svc := NewService(store, ratelimit.New(5, time.Minute), risk.NewClassifier(store, nil), nil, logging.Discard())

	_, err := svc.Submit(context.Background(), "k", 1, validRequest("help"))
	assert.ErrorIs(t, err, apperr.ErrStoreUnavailable)
	store.AssertNotCalled(t, "InsertReport", mock.Anything)
}

func TestSubmitInsertFailure(t *testing.T) {
	store := new(MockReportStore)
	store.On("CountNearby", mock.Anything, mock.Anything, mock.Anything).Return(3, nil)
	store.On("InsertReport", mock.AnythingOfType("models.HelpReport")).Return(int64(0), apperr.Store("insert report", errors.New("boom")))
	svc := NewService(store, ratelimit.New(5, time.Minute), risk.NewClassifier(store, nil), nil, logging.Discard())

	_, err := svc.Submit(context.Background(), "k", 1, validRequest("help"))
	assert.ErrorIs(t, err, apperr.ErrStoreUnavailable)
	store.AssertExpectations(t)
}

func TestOwnerOperations(t *testing.T) {
	svc, _ := newMemoryService(5)
	ctx := context.Background()
	report, err := svc.Submit(ctx, "k", 1, validRequest("yangın var"))
	require.NoError(t, err)

	require.NoError(t, svc.UpdateContent(ctx, 1, report.ID, SubmitRequest{Message: "geçti", Latitude: ptr(38), Longitude: ptr(27)}))
	assert.ErrorIs(t, svc.UpdateContent(ctx, 2, report.ID, validRequest("x")), apperr.ErrNotFound)

	list, err := svc.List(ctx, 1, "")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "geçti", list[0].Message)
	assert.Equal(t, models.UserRiskCritical, list[0].UserRisk, "risk is not recomputed on edit")

	assert.True(t, apperr.IsValidation(svc.UpdateStatus(ctx, 1, report.ID, "pending")))
	require.NoError(t, svc.UpdateStatus(ctx, 1, report.ID, models.StatusCompleted))

	active, err := svc.List(ctx, 1, models.StatusActive)
	require.NoError(t, err)
	assert.Empty(t, active)
	assert.NotNil(t, active)

	_, err = svc.List(ctx, 1, "bogus")
	assert.True(t, apperr.IsValidation(err))

	assert.ErrorIs(t, svc.Delete(ctx, 2, report.ID), apperr.ErrNotFound)
	require.NoError(t, svc.Delete(ctx, 1, report.ID))
}
