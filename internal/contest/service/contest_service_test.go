package service_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"arbiter/internal/contest/model"
	"arbiter/internal/contest/repository"
	"arbiter/internal/contest/service"
)

type memContestStore struct {
	mu      sync.Mutex
	contest *model.Contest
}

func (m *memContestStore) GetByID(ctx context.Context, id int64) (*model.Contest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.contest == nil || m.contest.ID != id {
		return nil, repository.ErrContestNotFound
	}
	copied := *m.contest
	return &copied, nil
}

func (m *memContestStore) ListProblems(ctx context.Context, contestID int64) ([]*model.Problem, error) {
	return nil, nil
}

func (m *memContestStore) ListMembers(ctx context.Context, contestID int64) ([]*model.Member, error) {
	return nil, nil
}

func (m *memContestStore) ListAutoFreezePending(ctx context.Context, now time.Time) ([]*model.Contest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.contest == nil || m.contest.IsFrozen ||
		m.contest.AutoFreezeAt == nil || !m.contest.AutoFreezeAt.After(now) {
		return nil, nil
	}
	copied := *m.contest
	return []*model.Contest{&copied}, nil
}

func (m *memContestStore) SetFrozen(ctx context.Context, contestID int64, frozen bool, frozenAt *time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.contest == nil || m.contest.ID != contestID {
		return false, repository.ErrContestNotFound
	}
	if m.contest.IsFrozen == frozen {
		return false, nil
	}
	m.contest.IsFrozen = frozen
	m.contest.FrozenAt = frozenAt
	return true, nil
}

type memSnapshotStore struct {
	invalidated []int64
}

func (m *memSnapshotStore) SavePublic(ctx context.Context, s *model.LeaderboardSnapshot) error {
	return nil
}

func (m *memSnapshotStore) SaveStaff(ctx context.Context, s *model.LeaderboardSnapshot) error {
	return nil
}

func (m *memSnapshotStore) GetPublic(ctx context.Context, contestID int64) (*model.LeaderboardSnapshot, error) {
	return nil, repository.ErrSnapshotNotFound
}

func (m *memSnapshotStore) GetStaff(ctx context.Context, contestID int64) (*model.LeaderboardSnapshot, error) {
	return nil, repository.ErrSnapshotNotFound
}

func (m *memSnapshotStore) Invalidate(ctx context.Context, contestID int64) error {
	m.invalidated = append(m.invalidated, contestID)
	return nil
}

type recordingTrigger struct {
	scheduled map[int64]time.Time
	cancelled []int64
}

func newRecordingTrigger() *recordingTrigger {
	return &recordingTrigger{scheduled: make(map[int64]time.Time)}
}

func (r *recordingTrigger) Schedule(contestID int64, firesAt time.Time) error {
	r.scheduled[contestID] = firesAt
	return nil
}

func (r *recordingTrigger) Cancel(contestID int64) error {
	r.cancelled = append(r.cancelled, contestID)
	return nil
}

type frozenCall struct {
	contestID int64
	frozen    bool
}

func newContestService(t *testing.T, contest *model.Contest) (*service.ContestService, *memContestStore, *memSnapshotStore, *recordingTrigger, *[]frozenCall) {
	t.Helper()
	contests := &memContestStore{contest: contest}
	snapshots := &memSnapshotStore{}
	trigger := newRecordingTrigger()
	var hooks []frozenCall
	svc, err := service.NewContestService(service.Config{
		Contests:  contests,
		Snapshots: snapshots,
		Trigger:   trigger,
		OnFrozen: func(ctx context.Context, contestID int64, frozen bool) {
			hooks = append(hooks, frozenCall{contestID, frozen})
		},
	})
	if err != nil {
		t.Fatalf("new contest service: %v", err)
	}
	return svc, contests, snapshots, trigger, &hooks
}

func TestFreezeInvalidatesSnapshotsAndFiresHook(t *testing.T) {
	svc, contests, snapshots, _, hooks := newContestService(t, &model.Contest{ID: 1})

	changed, err := svc.Freeze(context.Background(), 1)
	if err != nil {
		t.Fatalf("freeze: %v", err)
	}
	if !changed {
		t.Fatal("freeze should report a change")
	}
	if !contests.contest.IsFrozen || contests.contest.FrozenAt == nil {
		t.Fatalf("contest = %+v, want frozen with instant", contests.contest)
	}
	if len(snapshots.invalidated) != 1 || snapshots.invalidated[0] != 1 {
		t.Fatalf("invalidated = %v, want [1]", snapshots.invalidated)
	}
	if len(*hooks) != 1 || !(*hooks)[0].frozen {
		t.Fatalf("hooks = %v, want one frozen call", *hooks)
	}
}

func TestFreezeTwiceIsNoOp(t *testing.T) {
	svc, contests, snapshots, _, hooks := newContestService(t, &model.Contest{ID: 1})

	if _, err := svc.Freeze(context.Background(), 1); err != nil {
		t.Fatalf("freeze: %v", err)
	}
	firstInstant := *contests.contest.FrozenAt

	changed, err := svc.Freeze(context.Background(), 1)
	if err != nil {
		t.Fatalf("second freeze: %v", err)
	}
	if changed {
		t.Fatal("second freeze must report no change")
	}
	if !contests.contest.FrozenAt.Equal(firstInstant) {
		t.Fatal("second freeze must keep the original instant")
	}
	if len(snapshots.invalidated) != 1 || len(*hooks) != 1 {
		t.Fatal("second freeze must not invalidate or fire hooks again")
	}
}

func TestUnfreezeClearsState(t *testing.T) {
	frozenAt := time.Now()
	svc, contests, _, _, hooks := newContestService(t, &model.Contest{ID: 1, IsFrozen: true, FrozenAt: &frozenAt})

	changed, err := svc.Unfreeze(context.Background(), 1)
	if err != nil {
		t.Fatalf("unfreeze: %v", err)
	}
	if !changed || contests.contest.IsFrozen || contests.contest.FrozenAt != nil {
		t.Fatalf("contest = %+v, want unfrozen", contests.contest)
	}
	if len(*hooks) != 1 || (*hooks)[0].frozen {
		t.Fatalf("hooks = %v, want one unfrozen call", *hooks)
	}
}

func TestArmAutoFreezeSchedulesConfiguredInstant(t *testing.T) {
	firesAt := time.Now().Add(time.Hour)
	svc, _, _, trigger, _ := newContestService(t, &model.Contest{ID: 1, AutoFreezeAt: &firesAt})

	if err := svc.ArmAutoFreeze(context.Background(), 1); err != nil {
		t.Fatalf("arm: %v", err)
	}
	got, ok := trigger.scheduled[1]
	if !ok || !got.Equal(firesAt) {
		t.Fatalf("scheduled = %v, want %v", got, firesAt)
	}
}

func TestArmAutoFreezeCancelsWhenCleared(t *testing.T) {
	svc, _, _, trigger, _ := newContestService(t, &model.Contest{ID: 1})

	if err := svc.ArmAutoFreeze(context.Background(), 1); err != nil {
		t.Fatalf("arm: %v", err)
	}
	if len(trigger.cancelled) != 1 {
		t.Fatalf("cancelled = %v, want [1]", trigger.cancelled)
	}
}

func TestArmAutoFreezeCancelsWhenAlreadyFrozen(t *testing.T) {
	frozenAt := time.Now()
	firesAt := frozenAt.Add(time.Hour)
	svc, _, _, trigger, _ := newContestService(t, &model.Contest{
		ID:           1,
		AutoFreezeAt: &firesAt,
		IsFrozen:     true,
		FrozenAt:     &frozenAt,
	})

	if err := svc.ArmAutoFreeze(context.Background(), 1); err != nil {
		t.Fatalf("arm: %v", err)
	}
	if len(trigger.scheduled) != 0 {
		t.Fatalf("scheduled = %v, want empty", trigger.scheduled)
	}
	if len(trigger.cancelled) != 1 {
		t.Fatalf("cancelled = %v, want [1]", trigger.cancelled)
	}
}

func TestResumeAutoFreezeReArmsPendingContest(t *testing.T) {
	firesAt := time.Now().Add(2 * time.Hour)
	svc, _, _, trigger, _ := newContestService(t, &model.Contest{ID: 1, AutoFreezeAt: &firesAt})

	if err := svc.ResumeAutoFreeze(context.Background()); err != nil {
		t.Fatalf("resume: %v", err)
	}
	got, ok := trigger.scheduled[1]
	if !ok {
		t.Fatal("pending auto-freeze was not re-armed")
	}
	if !got.Equal(firesAt) {
		t.Fatalf("scheduled at %v, want %v", got, firesAt)
	}
}

func TestResumeAutoFreezeSkipsFrozenContest(t *testing.T) {
	frozenAt := time.Now()
	firesAt := frozenAt.Add(2 * time.Hour)
	svc, _, _, trigger, _ := newContestService(t, &model.Contest{
		ID:           1,
		AutoFreezeAt: &firesAt,
		IsFrozen:     true,
		FrozenAt:     &frozenAt,
	})

	if err := svc.ResumeAutoFreeze(context.Background()); err != nil {
		t.Fatalf("resume: %v", err)
	}
	if len(trigger.scheduled) != 0 {
		t.Fatalf("scheduled = %v, want empty", trigger.scheduled)
	}
}
