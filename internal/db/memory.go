package db

import (
	"context"
	"sort"
	"sync"

	"relief-alert-service/internal/apperr"
	"relief-alert-service/internal/models"
)

// Store is the full persistence surface used by the service.
type Store interface {
	CountNearby(ctx context.Context, lat, lon, delta float64) (int, error)
	InsertReport(ctx context.Context, r models.HelpReport) (int64, error)
	ReportsByUser(ctx context.Context, userID int64, status models.ReportStatus) ([]models.HelpReport, error)
	UpdateReportContent(ctx context.Context, userID, id int64, message string, lat, lon float64) error
	UpdateReportStatus(ctx context.Context, userID, id int64, status models.ReportStatus) error
	DeleteReport(ctx context.Context, userID, id int64) error

	GetPreference(ctx context.Context, userID int64) (models.NotificationPreference, bool, error)
	UpsertPreference(ctx context.Context, userID int64, p models.NotificationPreference) error

	GetToken(ctx context.Context, userID int64) (string, bool, error)
	UpsertToken(ctx context.Context, userID int64, token string) error
	ListRecipients(ctx context.Context) ([]models.Recipient, error)
}

var (
	_ Store = (*DB)(nil)
	_ Store = (*Memory)(nil)
)

// Memory is an in-process Store for local runs and tests.
type Memory struct {
	mu          sync.RWMutex
	nextID      int64
	reports     map[int64]models.HelpReport
	preferences map[int64]models.NotificationPreference
	tokens      map[int64]string
}

func NewMemory() *Memory {
	return &Memory{
		reports:     make(map[int64]models.HelpReport),
		preferences: make(map[int64]models.NotificationPreference),
		tokens:      make(map[int64]string),
	}
}

func (m *Memory) CountNearby(ctx context.Context, lat, lon, delta float64) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, apperr.Store("count nearby reports", err)
	}
	box := NearbyBox(lat, lon, delta)
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := 0
	for _, r := range m.reports {
		if box.Contains(r.Latitude, r.Longitude) {
			n++
		}
	}
	return n, nil
}

func (m *Memory) InsertReport(ctx context.Context, r models.HelpReport) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, apperr.Store("insert report", err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	r.ID = m.nextID
	m.reports[r.ID] = r
	return r.ID, nil
}

func (m *Memory) ReportsByUser(ctx context.Context, userID int64, status models.ReportStatus) ([]models.HelpReport, error) {
	if err := ctx.Err(); err != nil {
		return nil, apperr.Store("select reports", err)
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	var list []models.HelpReport
	for _, r := range m.reports {
		if r.ReporterID != userID {
			continue
		}
		if status != "" && r.Status != status {
			continue
		}
		list = append(list, r)
	}
	sort.Slice(list, func(i, j int) bool {
		if list[i].CreatedAt.Equal(list[j].CreatedAt) {
			return list[i].ID > list[j].ID
		}
		return list[i].CreatedAt.After(list[j].CreatedAt)
	})
	return list, nil
}

func (m *Memory) UpdateReportContent(ctx context.Context, userID, id int64, message string, lat, lon float64) error {
	return m.mutateOwned(userID, id, func(r *models.HelpReport) {
		r.Message = message
		r.Latitude = lat
		r.Longitude = lon
	})
}

func (m *Memory) UpdateReportStatus(ctx context.Context, userID, id int64, status models.ReportStatus) error {
	return m.mutateOwned(userID, id, func(r *models.HelpReport) {
		r.Status = status
	})
}

func (m *Memory) DeleteReport(ctx context.Context, userID, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.reports[id]
	if !ok || r.ReporterID != userID {
		return apperr.ErrNotFound
	}
	delete(m.reports, id)
	return nil
}

func (m *Memory) mutateOwned(userID, id int64, fn func(r *models.HelpReport)) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.reports[id]
	if !ok || r.ReporterID != userID {
		return apperr.ErrNotFound
	}
	fn(&r)
	m.reports[id] = r
	return nil
}

func (m *Memory) GetPreference(ctx context.Context, userID int64) (models.NotificationPreference, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.preferences[userID]
	return p, ok, nil
}

func (m *Memory) UpsertPreference(ctx context.Context, userID int64, p models.NotificationPreference) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.preferences[userID] = p
	return nil
}

func (m *Memory) GetToken(ctx context.Context, userID int64) (string, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.tokens[userID]
	return t, ok, nil
}

func (m *Memory) UpsertToken(ctx context.Context, userID int64, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tokens[userID] = token
	return nil
}

func (m *Memory) ListRecipients(ctx context.Context) ([]models.Recipient, error) {
	if err := ctx.Err(); err != nil {
		return nil, apperr.Store("list recipients", err)
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	list := make([]models.Recipient, 0, len(m.tokens))
	for userID, token := range m.tokens {
		r := models.Recipient{UserID: userID, PushToken: token}
		if p, ok := m.preferences[userID]; ok {
			p := p
			r.Preference = &p
		}
		list = append(list, r)
	}
	return list, nil
}
