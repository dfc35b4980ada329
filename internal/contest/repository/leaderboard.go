package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"arbiter/internal/common/cache"
	"arbiter/internal/contest/model"
)

const (
	defaultSnapshotTTL = 10 * time.Minute

	snapshotPublicKeyPrefix = "leaderboard:public:"
	snapshotStaffKeyPrefix  = "leaderboard:staff:"
)

var ErrSnapshotNotFound = errors.New("leaderboard snapshot not found")

// SnapshotStore caches the latest leaderboard snapshots in Redis, one public
// variant (freeze filter applied) and one staff variant (live).
type SnapshotStore interface {
	SavePublic(ctx context.Context, snapshot *model.LeaderboardSnapshot) error
	SaveStaff(ctx context.Context, snapshot *model.LeaderboardSnapshot) error
	GetPublic(ctx context.Context, contestID int64) (*model.LeaderboardSnapshot, error)
	GetStaff(ctx context.Context, contestID int64) (*model.LeaderboardSnapshot, error)
	Invalidate(ctx context.Context, contestID int64) error
}

// RedisSnapshotStore implements SnapshotStore on the cache port.
type RedisSnapshotStore struct {
	cache cache.Cache
	ttl   time.Duration
}

func NewSnapshotStore(cacheClient cache.Cache) *RedisSnapshotStore {
	return &RedisSnapshotStore{cache: cacheClient, ttl: defaultSnapshotTTL}
}

func (r *RedisSnapshotStore) SavePublic(ctx context.Context, snapshot *model.LeaderboardSnapshot) error {
	return r.save(ctx, snapshotPublicKey(snapshot.ContestID), snapshot)
}

func (r *RedisSnapshotStore) SaveStaff(ctx context.Context, snapshot *model.LeaderboardSnapshot) error {
	return r.save(ctx, snapshotStaffKey(snapshot.ContestID), snapshot)
}

func (r *RedisSnapshotStore) save(ctx context.Context, key string, snapshot *model.LeaderboardSnapshot) error {
	if snapshot == nil {
		return errors.New("snapshot is nil")
	}
	data, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("marshal snapshot failed: %w", err)
	}
	return r.cache.Set(ctx, key, string(data), r.ttl)
}

func (r *RedisSnapshotStore) GetPublic(ctx context.Context, contestID int64) (*model.LeaderboardSnapshot, error) {
	return r.get(ctx, snapshotPublicKey(contestID))
}

func (r *RedisSnapshotStore) GetStaff(ctx context.Context, contestID int64) (*model.LeaderboardSnapshot, error) {
	return r.get(ctx, snapshotStaffKey(contestID))
}

func (r *RedisSnapshotStore) get(ctx context.Context, key string) (*model.LeaderboardSnapshot, error) {
	data, err := r.cache.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	if data == "" {
		return nil, ErrSnapshotNotFound
	}
	var snapshot model.LeaderboardSnapshot
	if err := json.Unmarshal([]byte(data), &snapshot); err != nil {
		return nil, fmt.Errorf("unmarshal snapshot failed: %w", err)
	}
	return &snapshot, nil
}

func (r *RedisSnapshotStore) Invalidate(ctx context.Context, contestID int64) error {
	return r.cache.Del(ctx, snapshotPublicKey(contestID), snapshotStaffKey(contestID))
}

func snapshotPublicKey(contestID int64) string {
	return fmt.Sprintf("%s%d", snapshotPublicKeyPrefix, contestID)
}

func snapshotStaffKey(contestID int64) string {
	return fmt.Sprintf("%s%d", snapshotStaffKeyPrefix, contestID)
}

var _ SnapshotStore = (*RedisSnapshotStore)(nil)
