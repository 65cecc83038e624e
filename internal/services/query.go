package services

import (
	"context"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"qctracker/internal/models"
)

// DateLayout is the accepted format for filter bounds.
const DateLayout = "2006-01-02"

// QueryService serves filtered listings and spreadsheet exports.
type QueryService struct {
	store  RecordStore
	logger zerolog.Logger
}

func NewQueryService(store RecordStore, logger zerolog.Logger) *QueryService {
	return &QueryService{
		store:  store,
		logger: logger.With().Str("component", "query").Logger(),
	}
}

// BuildFilter turns raw parameters into a filter. A malformed bound is left
// out of the filter and reported; the other dimensions still apply.
func (s *QueryService) BuildFilter(p models.FilterParams) (models.TestResultFilter, []*models.DateParseError) {
	var f models.TestResultFilter
	var warnings []*models.DateParseError

	f.DeviceNoContains = strings.TrimSpace(p.Search)

	if from, err := parseDayStart("start", p.Start); err != nil {
		warnings = append(warnings, err)
	} else {
		f.From = from
	}

	if to, err := parseDayEnd("end", p.End); err != nil {
		warnings = append(warnings, err)
	} else {
		f.To = to
	}

	return f, warnings
}

// ListFiltered returns matching records newest first, plus any bound that
// could not be parsed.
func (s *QueryService) ListFiltered(ctx context.Context, p models.FilterParams) ([]models.TestResult, []*models.DateParseError, error) {
	f, warnings := s.BuildFilter(p)
	rows, err := s.store.Query(ctx, f)
	if err != nil {
		return nil, warnings, err
	}
	return rows, warnings, nil
}

// TesterDay lists one tester's records, limited to a single day when date is
// set. A malformed date is reported and ignored.
func (s *QueryService) TesterDay(ctx context.Context, testerID int64, date string) ([]models.TestResult, []*models.DateParseError, error) {
	f := models.TestResultFilter{TesterID: &testerID}

	var warnings []*models.DateParseError
	from, err := parseDayStart("date", date)
	if err != nil {
		warnings = append(warnings, err)
	} else if from != nil {
		to := endOfDay(*from)
		f.From = from
		f.To = &to
	}

	rows, qerr := s.store.Query(ctx, f)
	if qerr != nil {
		return nil, warnings, qerr
	}
	return rows, warnings, nil
}

// Summary holds the dashboard counters.
type Summary struct {
	MineToday int64
	AllToday  int64
	Total     int64
}

// Summarize counts today's records (UTC day of now) for the tester and overall.
func (s *QueryService) Summarize(ctx context.Context, testerID int64, now time.Time) (Summary, error) {
	y, m, d := now.UTC().Date()
	from := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	to := endOfDay(from)

	var sum Summary
	var err error
	if sum.MineToday, err = s.store.Count(ctx, models.TestResultFilter{From: &from, To: &to, TesterID: &testerID}); err != nil {
		return sum, err
	}
	if sum.AllToday, err = s.store.Count(ctx, models.TestResultFilter{From: &from, To: &to}); err != nil {
		return sum, err
	}
	if sum.Total, err = s.store.Count(ctx, models.TestResultFilter{}); err != nil {
		return sum, err
	}
	return sum, nil
}

func parseDayStart(param, value string) (*time.Time, *models.DateParseError) {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil, nil
	}
	t, err := time.ParseInLocation(DateLayout, value, time.UTC)
	if err != nil {
		return nil, &models.DateParseError{Param: param, Value: value, Err: err}
	}
	return &t, nil
}

func parseDayEnd(param, value string) (*time.Time, *models.DateParseError) {
	start, err := parseDayStart(param, value)
	if err != nil || start == nil {
		return nil, err
	}
	end := endOfDay(*start)
	return &end, nil
}

// endOfDay is 23:59:59 on the day of t.
func endOfDay(day time.Time) time.Time {
	return day.Add(24*time.Hour - time.Second)
}
