// Package store persists test-result records.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"qctracker/internal/database"
	"qctracker/internal/models"
)

const testResultColumns = `id, device_no, pop, scratch_feinguide, button_hardness, button_going_inside,
	button_on_off, charging, test_no, COALESCE(test_remark, ''), COALESCE(order_id, ''), ndr,
	tester_id, tester_name, created_at`

type TestResultStore struct {
	db *database.DB
}

func NewTestResultStore(db *database.DB) *TestResultStore {
	return &TestResultStore{db: db}
}

// Insert stores r and returns its new id. r.ID is set as well.
func (s *TestResultStore) Insert(ctx context.Context, r *models.TestResult) (int64, error) {
	query := s.db.Rebind(`INSERT INTO test_results
		(device_no, pop, scratch_feinguide, button_hardness, button_going_inside, button_on_off, charging,
		 test_no, test_remark, order_id, ndr, tester_id, tester_name, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		RETURNING id`)

	err := s.db.QueryRowContext(ctx, query,
		r.DeviceNo, r.Pop, r.ScratchFeinguide, r.ButtonHardness, r.ButtonGoingInside, r.ButtonOnOff, r.Charging,
		r.TestNo, r.TestRemark, nullIfEmpty(r.OrderID), r.NDR, r.TesterID, r.TesterName, r.CreatedAt.UTC(),
	).Scan(&r.ID)
	if err != nil {
		return 0, fmt.Errorf("failed to insert test result: %w", err)
	}
	return r.ID, nil
}

func (s *TestResultStore) GetByID(ctx context.Context, id int64) (*models.TestResult, error) {
	row := s.db.QueryRowContext(ctx, s.db.Rebind("SELECT "+testResultColumns+" FROM test_results WHERE id = ?"), id)
	return scanTestResult(row)
}

// UpdateByID loads the record, lets mutate change it and writes it back in one
// transaction. ID, tester and creation time are never written.
func (s *TestResultStore) UpdateByID(ctx context.Context, id int64, mutate func(r *models.TestResult) error) (*models.TestResult, error) {
	var updated *models.TestResult
	err := s.db.WithTx(ctx, func(tx *sql.Tx) error {
		row := tx.QueryRowContext(ctx, s.db.Rebind("SELECT "+testResultColumns+" FROM test_results WHERE id = ?"), id)
		r, err := scanTestResult(row)
		if err != nil {
			return err
		}

		if err := mutate(r); err != nil {
			return err
		}

		_, err = tx.ExecContext(ctx, s.db.Rebind(`UPDATE test_results SET
			device_no = ?, pop = ?, scratch_feinguide = ?, button_hardness = ?, button_going_inside = ?,
			button_on_off = ?, charging = ?, test_no = ?, test_remark = ?, order_id = ?, ndr = ?
			WHERE id = ?`),
			r.DeviceNo, r.Pop, r.ScratchFeinguide, r.ButtonHardness, r.ButtonGoingInside,
			r.ButtonOnOff, r.Charging, r.TestNo, r.TestRemark, nullIfEmpty(r.OrderID), r.NDR,
			id,
		)
		if err != nil {
			return fmt.Errorf("failed to update test result: %w", err)
		}
		updated = r
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// Query returns matching records, most recent first.
func (s *TestResultStore) Query(ctx context.Context, f models.TestResultFilter) ([]models.TestResult, error) {
	where, args := buildWhere(f)
	query := s.db.Rebind("SELECT " + testResultColumns + " FROM test_results" + where + " ORDER BY created_at DESC, id DESC")

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query test results: %w", err)
	}
	defer rows.Close()

	var results []models.TestResult
	for rows.Next() {
		r, err := scanTestResult(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, *r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to query test results: %w", err)
	}
	return results, nil
}

func (s *TestResultStore) Count(ctx context.Context, f models.TestResultFilter) (int64, error) {
	where, args := buildWhere(f)

	var n int64
	if err := s.db.QueryRowContext(ctx, s.db.Rebind("SELECT COUNT(*) FROM test_results"+where), args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count test results: %w", err)
	}
	return n, nil
}

func buildWhere(f models.TestResultFilter) (string, []interface{}) {
	var conds []string
	var args []interface{}

	if f.DeviceNoContains != "" {
		conds = append(conds, `device_no LIKE ? ESCAPE '\'`)
		args = append(args, "%"+escapeLike(f.DeviceNoContains)+"%")
	}
	if f.From != nil {
		conds = append(conds, "created_at >= ?")
		args = append(args, f.From.UTC())
	}
	if f.To != nil {
		conds = append(conds, "created_at <= ?")
		args = append(args, f.To.UTC())
	}
	if f.TesterID != nil {
		conds = append(conds, "tester_id = ?")
		args = append(args, *f.TesterID)
	}

	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanTestResult(row rowScanner) (*models.TestResult, error) {
	var r models.TestResult
	err := row.Scan(
		&r.ID, &r.DeviceNo, &r.Pop, &r.ScratchFeinguide, &r.ButtonHardness, &r.ButtonGoingInside,
		&r.ButtonOnOff, &r.Charging, &r.TestNo, &r.TestRemark, &r.OrderID, &r.NDR,
		&r.TesterID, &r.TesterName, &r.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, models.ErrNotFound
		}
		return nil, fmt.Errorf("failed to scan test result: %w", err)
	}
	r.CreatedAt = r.CreatedAt.UTC()
	return &r, nil
}

func nullIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
