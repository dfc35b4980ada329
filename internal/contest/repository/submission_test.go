package repository_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"arbiter/internal/common/db"
	"arbiter/internal/contest/model"
	"arbiter/internal/contest/repository"
)

type submissionRow struct {
	sub model.Submission
}

func (r submissionRow) Scan(dest ...interface{}) error {
	*dest[0].(*int64) = r.sub.ID
	*dest[1].(*int64) = r.sub.ContestID
	*dest[2].(*int64) = r.sub.ProblemID
	*dest[3].(*int64) = r.sub.MemberID
	*dest[4].(*string) = r.sub.LanguageID
	*dest[5].(*string) = r.sub.SourceKey
	*dest[6].(*string) = string(r.sub.Status)
	*dest[7].(*string) = string(r.sub.Answer)
	*dest[8].(*int64) = r.sub.Version
	*dest[9].(*time.Time) = r.sub.CreatedAt
	*dest[10].(*time.Time) = r.sub.UpdatedAt
	return nil
}

type countRow struct {
	n int64
}

func (r countRow) Scan(dest ...interface{}) error {
	*dest[0].(*int64) = r.n
	return nil
}

type staticResult struct {
	affected int64
}

func (r staticResult) LastInsertId() (int64, error) { return 0, nil }
func (r staticResult) RowsAffected() (int64, error) { return r.affected, nil }

// submissionDB serves one submissions row and reports a configurable number
// of affected rows for updates, enough to drive the store's CAS paths.
type submissionDB struct {
	sub      model.Submission
	affected int64
	reads    int
}

func (d *submissionDB) Query(ctx context.Context, query string, args ...interface{}) (db.Rows, error) {
	return nil, errors.New("not implemented")
}

func (d *submissionDB) QueryRow(ctx context.Context, query string, args ...interface{}) db.Row {
	if strings.Contains(query, "COUNT(*)") {
		return countRow{n: 1}
	}
	d.reads++
	return submissionRow{sub: d.sub}
}

func (d *submissionDB) Exec(ctx context.Context, query string, args ...interface{}) (db.Result, error) {
	return staticResult{affected: d.affected}, nil
}

func (d *submissionDB) Transaction(ctx context.Context, fn func(tx db.Transaction) error) error {
	return errors.New("not implemented")
}

func (d *submissionDB) BeginTx(ctx context.Context, opts *db.TxOptions) (db.Transaction, error) {
	return nil, errors.New("not implemented")
}

func (d *submissionDB) Prepare(ctx context.Context, query string) (db.Stmt, error) {
	return nil, errors.New("not implemented")
}

func (d *submissionDB) Ping(ctx context.Context) error { return nil }
func (d *submissionDB) Close() error                   { return nil }
func (d *submissionDB) Stats() db.Stats                { return db.Stats{} }

var _ db.Database = (*submissionDB)(nil)

func TestUpdateStatusConflictInvalidatesCachedRead(t *testing.T) {
	cacheClient := newTestCache(t)

	database := &submissionDB{
		sub: model.Submission{
			ID:         7,
			ContestID:  1,
			ProblemID:  100,
			MemberID:   10,
			LanguageID: "cpp",
			SourceKey:  "source-key",
			Status:     model.StatusQueued,
			Answer:     model.AnswerNone,
		},
	}
	store := repository.NewSubmissionStore(database, cacheClient)

	// First read populates the cache at version 0.
	first, err := store.GetByID(context.Background(), 7)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if first.Version != 0 {
		t.Fatalf("version = %d, want 0", first.Version)
	}

	// A concurrent writer bumped the row. The CAS at the cached version
	// must fail with ErrConflict and drop the stale cache entry so the
	// retry re-read observes the live version.
	database.sub.Version = 1
	database.sub.Status = model.StatusJudging
	database.affected = 0

	err = store.UpdateStatus(context.Background(), nil, 7, first.Version, model.StatusJudging, model.AnswerNone)
	if !errors.Is(err, repository.ErrConflict) {
		t.Fatalf("update = %v, want ErrConflict", err)
	}

	got, err := store.GetByID(context.Background(), 7)
	if err != nil {
		t.Fatalf("re-read: %v", err)
	}
	if got.Version != 1 {
		t.Fatalf("re-read version = %d, want 1", got.Version)
	}
	if database.reads != 2 {
		t.Fatalf("db reads = %d, want 2", database.reads)
	}
}
