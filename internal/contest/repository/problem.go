package repository

import (
	"context"
	"errors"
	"fmt"

	"arbiter/internal/common/db"
	"arbiter/internal/contest/model"
)

var ErrProblemNotFound = errors.New("problem not found")

// ProblemStore reads problem limits and test case metadata for the judge.
type ProblemStore interface {
	GetByID(ctx context.Context, id int64) (*model.Problem, error)
	ListTestCases(ctx context.Context, problemID int64) ([]*model.TestCase, error)
}

// MySQLProblemStore implements ProblemStore with MySQL.
type MySQLProblemStore struct {
	db db.Database
}

func NewProblemStore(database db.Database) *MySQLProblemStore {
	return &MySQLProblemStore{db: database}
}

func (r *MySQLProblemStore) GetByID(ctx context.Context, id int64) (*model.Problem, error) {
	if id <= 0 {
		return nil, errors.New("id is required")
	}
	query := "SELECT id, contest_id, title, time_limit_ms, memory_limit_mb FROM problems WHERE id = ?"
	row := r.db.QueryRow(ctx, query, id)
	p := &model.Problem{}
	if err := row.Scan(&p.ID, &p.ContestID, &p.Title, &p.TimeLimitMs, &p.MemoryLimitMb); err != nil {
		if db.IsNoRows(err) {
			return nil, ErrProblemNotFound
		}
		return nil, err
	}
	return p, nil
}

// ListTestCases returns the problem's test cases in judging order.
func (r *MySQLProblemStore) ListTestCases(ctx context.Context, problemID int64) ([]*model.TestCase, error) {
	if problemID <= 0 {
		return nil, errors.New("problemID is required")
	}
	query := `
		SELECT id, problem_id, ordinal, input_key, answer_key
		FROM test_cases WHERE problem_id = ? ORDER BY ordinal ASC, id ASC
	`
	rows, err := r.db.Query(ctx, query, problemID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var cases []*model.TestCase
	for rows.Next() {
		tc := &model.TestCase{}
		if err := rows.Scan(&tc.ID, &tc.ProblemID, &tc.Ordinal, &tc.InputKey, &tc.AnswerKey); err != nil {
			return nil, err
		}
		cases = append(cases, tc)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(cases) == 0 {
		return nil, fmt.Errorf("problem %d has no test cases", problemID)
	}
	return cases, nil
}

var _ ProblemStore = (*MySQLProblemStore)(nil)
