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
	defaultContestCacheTTL      = 5 * time.Minute
	defaultContestCacheEmptyTTL = time.Minute
	contestCacheKeyPrefix       = "contest:"
)

var ErrContestNotFound = errors.New("contest not found")

// ContestStore reads contest settings and roster, and owns the freeze flag.
type ContestStore interface {
	GetByID(ctx context.Context, id int64) (*model.Contest, error)
	ListProblems(ctx context.Context, contestID int64) ([]*model.Problem, error)
	ListMembers(ctx context.Context, contestID int64) ([]*model.Member, error)

	// ListAutoFreezePending returns unfrozen contests whose auto-freeze
	// instant lies after now. The trigger holds its jobs in memory only, so
	// startup re-arms from this list.
	ListAutoFreezePending(ctx context.Context, now time.Time) ([]*model.Contest, error)

	// SetFrozen flips the freeze flag. The write is conditional on the
	// current flag so a repeat freeze (or a trigger double-fire) is a no-op;
	// the returned bool reports whether this call changed the state.
	SetFrozen(ctx context.Context, contestID int64, frozen bool, frozenAt *time.Time) (bool, error)
}

// MySQLContestStore implements ContestStore with MySQL.
type MySQLContestStore struct {
	db       db.Database
	cache    cache.Cache
	ttl      time.Duration
	emptyTTL time.Duration
}

func NewContestStore(database db.Database, cacheClient cache.Cache) *MySQLContestStore {
	return &MySQLContestStore{
		db:       database,
		cache:    cacheClient,
		ttl:      defaultContestCacheTTL,
		emptyTTL: defaultContestCacheEmptyTTL,
	}
}

const contestColumns = "id, slug, name, start_at, end_at, is_auto_judge_enabled, auto_freeze_at, is_frozen, frozen_at"

// GetByID retrieves contest settings, cache-aside.
func (r *MySQLContestStore) GetByID(ctx context.Context, id int64) (*model.Contest, error) {
	if id <= 0 {
		return nil, errors.New("id is required")
	}
	if r.cache != nil {
		contest, err := cache.GetWithCached[*model.Contest](
			ctx,
			r.cache,
			contestCacheKey(id),
			cache.JitterTTL(r.ttl),
			cache.JitterTTL(r.emptyTTL),
			func(c *model.Contest) bool { return c == nil },
			marshalContest,
			unmarshalContest,
			func(ctx context.Context) (*model.Contest, error) {
				return r.getByIDFromDB(ctx, id)
			},
		)
		if err != nil {
			return nil, err
		}
		if contest == nil {
			return nil, ErrContestNotFound
		}
		return contest, nil
	}
	contest, err := r.getByIDFromDB(ctx, id)
	if err != nil {
		return nil, err
	}
	if contest == nil {
		return nil, ErrContestNotFound
	}
	return contest, nil
}

func (r *MySQLContestStore) getByIDFromDB(ctx context.Context, id int64) (*model.Contest, error) {
	query := fmt.Sprintf("SELECT %s FROM contests WHERE id = ?", contestColumns)
	row := r.db.QueryRow(ctx, query, id)
	c := &model.Contest{}
	if err := row.Scan(&c.ID, &c.Slug, &c.Name, &c.StartAt, &c.EndAt,
		&c.IsAutoJudgeEnabled, &c.AutoFreezeAt, &c.IsFrozen, &c.FrozenAt); err != nil {
		if db.IsNoRows(err) {
			return nil, nil
		}
		return nil, err
	}
	return c, nil
}

// ListProblems returns the contest's problems with limits, in problem order.
func (r *MySQLContestStore) ListProblems(ctx context.Context, contestID int64) ([]*model.Problem, error) {
	if contestID <= 0 {
		return nil, errors.New("contestID is required")
	}
	query := `
		SELECT id, contest_id, title, time_limit_ms, memory_limit_mb
		FROM problems WHERE contest_id = ? ORDER BY id ASC
	`
	rows, err := r.db.Query(ctx, query, contestID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var problems []*model.Problem
	for rows.Next() {
		p := &model.Problem{}
		if err := rows.Scan(&p.ID, &p.ContestID, &p.Title, &p.TimeLimitMs, &p.MemoryLimitMb); err != nil {
			return nil, err
		}
		problems = append(problems, p)
	}
	return problems, rows.Err()
}

// ListMembers returns registered contestants for the leaderboard roster.
func (r *MySQLContestStore) ListMembers(ctx context.Context, contestID int64) ([]*model.Member, error) {
	if contestID <= 0 {
		return nil, errors.New("contestID is required")
	}
	query := `
		SELECT m.id, m.name
		FROM members m
		JOIN contest_members cm ON cm.member_id = m.id
		WHERE cm.contest_id = ?
		ORDER BY m.id ASC
	`
	rows, err := r.db.Query(ctx, query, contestID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var members []*model.Member
	for rows.Next() {
		m := &model.Member{}
		if err := rows.Scan(&m.ID, &m.Name); err != nil {
			return nil, err
		}
		members = append(members, m)
	}
	return members, rows.Err()
}

// ListAutoFreezePending returns contests that still owe an auto-freeze.
func (r *MySQLContestStore) ListAutoFreezePending(ctx context.Context, now time.Time) ([]*model.Contest, error) {
	query := fmt.Sprintf(
		"SELECT %s FROM contests WHERE is_frozen = FALSE AND auto_freeze_at IS NOT NULL AND auto_freeze_at > ?",
		contestColumns)
	rows, err := r.db.Query(ctx, query, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var contests []*model.Contest
	for rows.Next() {
		c := &model.Contest{}
		if err := rows.Scan(&c.ID, &c.Slug, &c.Name, &c.StartAt, &c.EndAt,
			&c.IsAutoJudgeEnabled, &c.AutoFreezeAt, &c.IsFrozen, &c.FrozenAt); err != nil {
			return nil, err
		}
		contests = append(contests, c)
	}
	return contests, rows.Err()
}

// SetFrozen flips the freeze flag, conditionally on the current value.
func (r *MySQLContestStore) SetFrozen(ctx context.Context, contestID int64, frozen bool, frozenAt *time.Time) (bool, error) {
	if contestID <= 0 {
		return false, errors.New("contestID is required")
	}
	query := "UPDATE contests SET is_frozen = ?, frozen_at = ? WHERE id = ? AND is_frozen = ?"
	result, err := r.db.Exec(ctx, query, frozen, frozenAt, contestID, !frozen)
	if err != nil {
		return false, err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	if affected == 0 {
		return false, nil
	}
	if r.cache != nil {
		_ = r.cache.Del(ctx, contestCacheKey(contestID))
	}
	return true, nil
}

func contestCacheKey(id int64) string {
	return fmt.Sprintf("%s%d", contestCacheKeyPrefix, id)
}

func marshalContest(c *model.Contest) string {
	data, err := json.Marshal(c)
	if err != nil {
		return ""
	}
	return string(data)
}

func unmarshalContest(data string) (*model.Contest, error) {
	var c model.Contest
	if err := json.Unmarshal([]byte(data), &c); err != nil {
		return nil, err
	}
	return &c, nil
}

var _ ContestStore = (*MySQLContestStore)(nil)
