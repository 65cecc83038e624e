package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"qctracker/internal/models"
)

// RecordStore is the persistence the record and query services need.
type RecordStore interface {
	Insert(ctx context.Context, r *models.TestResult) (int64, error)
	GetByID(ctx context.Context, id int64) (*models.TestResult, error)
	UpdateByID(ctx context.Context, id int64, mutate func(r *models.TestResult) error) (*models.TestResult, error)
	Query(ctx context.Context, f models.TestResultFilter) ([]models.TestResult, error)
	Count(ctx context.Context, f models.TestResultFilter) (int64, error)
}

// UserLookup resolves tester accounts.
type UserLookup interface {
	GetByID(ctx context.Context, id int64) (*models.User, error)
}

// RecordService validates submissions and coordinates record writes.
type RecordService struct {
	store  RecordStore
	users  UserLookup
	now    func() time.Time
	logger zerolog.Logger
}

func NewRecordService(store RecordStore, users UserLookup, logger zerolog.Logger) *RecordService {
	return &RecordService{
		store:  store,
		users:  users,
		now:    time.Now,
		logger: logger.With().Str("component", "records").Logger(),
	}
}

// Create stores a new record submitted by tester. Device and test numbers are
// required; absent checklist fields take their defaults.
func (s *RecordService) Create(ctx context.Context, in models.NewTestResult, tester *models.User) (*models.TestResult, error) {
	deviceNo := strings.TrimSpace(in.DeviceNo)
	testNo := strings.TrimSpace(in.TestNo)

	if deviceNo == "" {
		return nil, &models.ValidationError{Field: "device_no", Message: "is required"}
	}
	if testNo == "" {
		return nil, &models.ValidationError{Field: "test_no", Message: "is required"}
	}
	if tester == nil {
		return nil, &models.ValidationError{Field: "tester_id", Message: "is required"}
	}

	current, err := s.users.GetByID(ctx, tester.ID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, &models.ValidationError{Field: "tester_id", Message: "does not reference an existing user"}
		}
		return nil, fmt.Errorf("failed to resolve tester: %w", err)
	}

	r := &models.TestResult{
		DeviceNo:   deviceNo,
		Checklist:  in.Checklist.WithDefaults(),
		TestNo:     testNo,
		TestRemark: strings.TrimSpace(in.TestRemark),
		OrderID:    strings.TrimSpace(in.OrderID),
		NDR:        false,
		TesterID:   current.ID,
		TesterName: current.DisplayName(),
		CreatedAt:  s.now().UTC().Truncate(time.Microsecond),
	}

	if _, err := s.store.Insert(ctx, r); err != nil {
		return nil, err
	}

	s.logger.Debug().
		Int64("record_id", r.ID).
		Str("device_no", r.DeviceNo).
		Int64("tester_id", r.TesterID).
		Msg("test result created")

	return r, nil
}

// Update merges patch into the record. Any authenticated user may edit any
// record; editor is only logged.
func (s *RecordService) Update(ctx context.Context, id int64, patch models.TestResultPatch, editor *models.User) (*models.TestResult, error) {
	r, err := s.store.UpdateByID(ctx, id, func(r *models.TestResult) error {
		patch.Apply(r)
		return nil
	})
	if err != nil {
		return nil, err
	}

	ev := s.logger.Debug().Int64("record_id", id)
	if editor != nil {
		ev = ev.Int64("editor_id", editor.ID)
	}
	ev.Msg("test result updated")

	return r, nil
}

// Get returns a single record.
func (s *RecordService) Get(ctx context.Context, id int64) (*models.TestResult, error) {
	return s.store.GetByID(ctx, id)
}
