package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"arbiter/internal/common/cache"
	"arbiter/internal/common/db"
	"arbiter/internal/contest/model"
)

const (
	defaultSubmissionCacheTTL      = 30 * time.Minute
	defaultSubmissionCacheEmptyTTL = 5 * time.Minute
	submissionCacheKeyPrefix       = "submission:"
)

var (
	ErrSubmissionNotFound = errors.New("submission not found")

	// ErrConflict signals an optimistic-lock failure: the row's version no
	// longer matches what the caller read. Re-read and reapply.
	ErrConflict = errors.New("submission version conflict")
)

// SubmissionStore persists submissions and executions. Every submission
// mutation is a compare-and-set on the version column.
type SubmissionStore interface {
	Create(ctx context.Context, tx db.Transaction, submission *model.Submission) error
	GetByID(ctx context.Context, id int64) (*model.Submission, error)

	// UpdateStatus transitions status/answer iff the stored version equals
	// expectedVersion, bumping the version. Returns ErrConflict on a stale
	// write and ErrSubmissionNotFound when the row does not exist.
	UpdateStatus(ctx context.Context, tx db.Transaction, id, expectedVersion int64, status model.SubmissionStatus, answer model.Answer) error

	// ListByContest returns all of a contest's submissions in chronological
	// order (created_at, then id), the order the leaderboard engine scans.
	ListByContest(ctx context.Context, contestID int64) ([]*model.Submission, error)

	CreateExecution(ctx context.Context, tx db.Transaction, execution *model.Execution) error
	ListExecutionsBySubmission(ctx context.Context, submissionID int64) ([]*model.Execution, error)
}

// MySQLSubmissionStore implements SubmissionStore with MySQL.
type MySQLSubmissionStore struct {
	db       db.Database
	cache    cache.Cache
	ttl      time.Duration
	emptyTTL time.Duration
}

// NewSubmissionStore creates a submission store with default cache TTLs.
func NewSubmissionStore(database db.Database, cacheClient cache.Cache) *MySQLSubmissionStore {
	return &MySQLSubmissionStore{
		db:       database,
		cache:    cacheClient,
		ttl:      defaultSubmissionCacheTTL,
		emptyTTL: defaultSubmissionCacheEmptyTTL,
	}
}

const submissionColumns = "id, contest_id, problem_id, member_id, language_id, source_key, status, answer, version, created_at, updated_at"

// Create inserts a submission record with status QUEUED and no answer.
func (r *MySQLSubmissionStore) Create(ctx context.Context, tx db.Transaction, submission *model.Submission) error {
	if submission == nil {
		return errors.New("submission is nil")
	}
	if submission.ContestID <= 0 {
		return errors.New("contestID is required")
	}
	if submission.ProblemID <= 0 {
		return errors.New("problemID is required")
	}
	if submission.MemberID <= 0 {
		return errors.New("memberID is required")
	}
	if submission.LanguageID == "" {
		return errors.New("languageID is required")
	}
	if submission.SourceKey == "" {
		return errors.New("sourceKey is required")
	}
	if submission.Status == "" {
		submission.Status = model.StatusQueued
	}
	if submission.Answer == "" {
		submission.Answer = model.AnswerNone
	}

	query := `
		INSERT INTO submissions
		(contest_id, problem_id, member_id, language_id, source_key, status, answer, version)
		VALUES (?, ?, ?, ?, ?, ?, ?, 0)
	`
	result, err := db.GetQuerier(r.db, tx).Exec(
		ctx,
		query,
		submission.ContestID,
		submission.ProblemID,
		submission.MemberID,
		submission.LanguageID,
		submission.SourceKey,
		string(submission.Status),
		string(submission.Answer),
	)
	if err != nil {
		return err
	}
	id, err := result.LastInsertId()
	if err != nil {
		return err
	}
	submission.ID = id
	return nil
}

// GetByID retrieves a submission by id, cache-aside.
func (r *MySQLSubmissionStore) GetByID(ctx context.Context, id int64) (*model.Submission, error) {
	if id <= 0 {
		return nil, errors.New("id is required")
	}
	if r.cache != nil {
		submission, err := cache.GetWithCached[*model.Submission](
			ctx,
			r.cache,
			submissionCacheKey(id),
			cache.JitterTTL(r.ttl),
			cache.JitterTTL(r.emptyTTL),
			func(s *model.Submission) bool { return s == nil },
			marshalSubmission,
			unmarshalSubmission,
			func(ctx context.Context) (*model.Submission, error) {
				return r.getByIDFromDB(ctx, id)
			},
		)
		if err != nil {
			return nil, err
		}
		if submission == nil {
			return nil, ErrSubmissionNotFound
		}
		return submission, nil
	}
	submission, err := r.getByIDFromDB(ctx, id)
	if err != nil {
		return nil, err
	}
	if submission == nil {
		return nil, ErrSubmissionNotFound
	}
	return submission, nil
}

func (r *MySQLSubmissionStore) getByIDFromDB(ctx context.Context, id int64) (*model.Submission, error) {
	query := fmt.Sprintf("SELECT %s FROM submissions WHERE id = ?", submissionColumns)
	row := r.db.QueryRow(ctx, query, id)
	submission, err := scanSubmission(row)
	if err != nil {
		if db.IsNoRows(err) {
			return nil, nil
		}
		return nil, err
	}
	return submission, nil
}

// UpdateStatus applies the versioned compare-and-set.
func (r *MySQLSubmissionStore) UpdateStatus(ctx context.Context, tx db.Transaction, id, expectedVersion int64, status model.SubmissionStatus, answer model.Answer) error {
	if id <= 0 {
		return errors.New("id is required")
	}
	query := `
		UPDATE submissions
		SET status = ?, answer = ?, version = version + 1, updated_at = CURRENT_TIMESTAMP
		WHERE id = ? AND version = ?
	`
	result, err := db.GetQuerier(r.db, tx).Exec(ctx, query, string(status), string(answer), id, expectedVersion)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		exists, err := r.exists(ctx, tx, id)
		if err != nil {
			return err
		}
		if !exists {
			return ErrSubmissionNotFound
		}
		// The caller read a stale version. Drop the cached copy so the
		// conflict retry re-reads the live row instead of the same entry.
		if r.cache != nil {
			_ = r.cache.Del(ctx, submissionCacheKey(id))
		}
		return ErrConflict
	}
	if r.cache != nil {
		_ = r.cache.Del(ctx, submissionCacheKey(id))
	}
	return nil
}

func (r *MySQLSubmissionStore) exists(ctx context.Context, tx db.Transaction, id int64) (bool, error) {
	var n int64
	row := db.GetQuerier(r.db, tx).QueryRow(ctx, "SELECT COUNT(*) FROM submissions WHERE id = ?", id)
	if err := row.Scan(&n); err != nil {
		return false, err
	}
	return n > 0, nil
}

// ListByContest returns submissions in chronological scan order.
func (r *MySQLSubmissionStore) ListByContest(ctx context.Context, contestID int64) ([]*model.Submission, error) {
	if contestID <= 0 {
		return nil, errors.New("contestID is required")
	}
	query := fmt.Sprintf("SELECT %s FROM submissions WHERE contest_id = ? ORDER BY created_at ASC, id ASC", submissionColumns)
	rows, err := r.db.Query(ctx, query, contestID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var submissions []*model.Submission
	for rows.Next() {
		submission, err := scanSubmission(rows)
		if err != nil {
			return nil, err
		}
		submissions = append(submissions, submission)
	}
	return submissions, rows.Err()
}

// CreateExecution inserts an immutable execution record.
func (r *MySQLSubmissionStore) CreateExecution(ctx context.Context, tx db.Transaction, execution *model.Execution) error {
	if execution == nil {
		return errors.New("execution is nil")
	}
	if execution.SubmissionID <= 0 {
		return errors.New("submissionID is required")
	}
	query := `
		INSERT INTO executions
		(contest_id, member_id, submission_id, answer, total_test_cases, approved_test_cases, input_key, output_key)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`
	result, err := db.GetQuerier(r.db, tx).Exec(
		ctx,
		query,
		execution.ContestID,
		execution.MemberID,
		execution.SubmissionID,
		string(execution.Answer),
		execution.TotalTestCases,
		execution.ApprovedTestCases,
		execution.InputKey,
		execution.OutputKey,
	)
	if err != nil {
		return err
	}
	id, err := result.LastInsertId()
	if err != nil {
		return err
	}
	execution.ID = id
	return nil
}

// ListExecutionsBySubmission returns all judging attempts, oldest first.
func (r *MySQLSubmissionStore) ListExecutionsBySubmission(ctx context.Context, submissionID int64) ([]*model.Execution, error) {
	if submissionID <= 0 {
		return nil, errors.New("submissionID is required")
	}
	query := `
		SELECT id, contest_id, member_id, submission_id, answer, total_test_cases, approved_test_cases, input_key, output_key, created_at
		FROM executions WHERE submission_id = ? ORDER BY id ASC
	`
	rows, err := r.db.Query(ctx, query, submissionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var executions []*model.Execution
	for rows.Next() {
		e := &model.Execution{}
		var answer string
		if err := rows.Scan(&e.ID, &e.ContestID, &e.MemberID, &e.SubmissionID, &answer,
			&e.TotalTestCases, &e.ApprovedTestCases, &e.InputKey, &e.OutputKey, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.Answer = model.Answer(answer)
		executions = append(executions, e)
	}
	return executions, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanSubmission(row rowScanner) (*model.Submission, error) {
	s := &model.Submission{}
	var status, answer string
	if err := row.Scan(&s.ID, &s.ContestID, &s.ProblemID, &s.MemberID, &s.LanguageID,
		&s.SourceKey, &status, &answer, &s.Version, &s.CreatedAt, &s.UpdatedAt); err != nil {
		return nil, err
	}
	s.Status = model.SubmissionStatus(status)
	s.Answer = model.Answer(answer)
	return s, nil
}

func submissionCacheKey(id int64) string {
	return fmt.Sprintf("%s%d", submissionCacheKeyPrefix, id)
}

func marshalSubmission(s *model.Submission) string {
	data, err := json.Marshal(s)
	if err != nil {
		return ""
	}
	return string(data)
}

func unmarshalSubmission(data string) (*model.Submission, error) {
	var s model.Submission
	if err := json.Unmarshal([]byte(data), &s); err != nil {
		return nil, err
	}
	return &s, nil
}

var _ SubmissionStore = (*MySQLSubmissionStore)(nil)
