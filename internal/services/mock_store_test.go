package services

import (
	"context"
	"sort"
	"strings"

	"qctracker/internal/models"
)

// MockRecordStore is an in-memory RecordStore.
type MockRecordStore struct {
	records   map[int64]models.TestResult
	nextID    int64
	insertErr error
	queryErr  error
	lastQuery models.TestResultFilter
}

func NewMockRecordStore() *MockRecordStore {
	return &MockRecordStore{records: make(map[int64]models.TestResult), nextID: 1}
}

func (m *MockRecordStore) Insert(ctx context.Context, r *models.TestResult) (int64, error) {
	if m.insertErr != nil {
		return 0, m.insertErr
	}
	r.ID = m.nextID
	m.nextID++
	m.records[r.ID] = *r
	return r.ID, nil
}

func (m *MockRecordStore) GetByID(ctx context.Context, id int64) (*models.TestResult, error) {
	r, ok := m.records[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	return &r, nil
}

func (m *MockRecordStore) UpdateByID(ctx context.Context, id int64, mutate func(r *models.TestResult) error) (*models.TestResult, error) {
	r, ok := m.records[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	if err := mutate(&r); err != nil {
		return nil, err
	}
	stored := m.records[id]
	r.ID, r.TesterID, r.TesterName, r.CreatedAt = stored.ID, stored.TesterID, stored.TesterName, stored.CreatedAt
	m.records[id] = r
	return &r, nil
}

func (m *MockRecordStore) Query(ctx context.Context, f models.TestResultFilter) ([]models.TestResult, error) {
	m.lastQuery = f
	if m.queryErr != nil {
		return nil, m.queryErr
	}
	var out []models.TestResult
	for _, r := range m.records {
		if f.DeviceNoContains != "" && !strings.Contains(r.DeviceNo, f.DeviceNoContains) {
			continue
		}
		if f.From != nil && r.CreatedAt.Before(*f.From) {
			continue
		}
		if f.To != nil && r.CreatedAt.After(*f.To) {
			continue
		}
		if f.TesterID != nil && r.TesterID != *f.TesterID {
			continue
		}
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

func (m *MockRecordStore) Count(ctx context.Context, f models.TestResultFilter) (int64, error) {
	rows, err := m.Query(ctx, f)
	return int64(len(rows)), err
}

// MockUserLookup resolves users from a map.
type MockUserLookup struct {
	users map[int64]*models.User
}

func NewMockUserLookup(users ...*models.User) *MockUserLookup {
	m := &MockUserLookup{users: make(map[int64]*models.User)}
	for _, u := range users {
		m.users[u.ID] = u
	}
	return m
}

func (m *MockUserLookup) GetByID(ctx context.Context, id int64) (*models.User, error) {
	u, ok := m.users[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	return u, nil
}
