package fanout_test

import (
	"context"
	"testing"
	"time"

	"arbiter/internal/common/realtime"
	"arbiter/internal/contest/model"
	"arbiter/internal/fanout"
)

type emitted struct {
	room  string
	event string
}

type fakeTransport struct {
	emits []emitted
}

func (f *fakeTransport) Emit(ctx context.Context, room, event string, payload interface{}) error {
	f.emits = append(f.emits, emitted{room, event})
	return nil
}

func (f *fakeTransport) Close() error { return nil }

func (f *fakeTransport) rooms() []string {
	rooms := make([]string, 0, len(f.emits))
	for _, e := range f.emits {
		rooms = append(rooms, e.room)
	}
	return rooms
}

func contains(rooms []string, room string) bool {
	for _, r := range rooms {
		if r == room {
			return true
		}
	}
	return false
}

func sampleSubmission() *model.Submission {
	return &model.Submission{
		ID:        7,
		ContestID: 1,
		ProblemID: 100,
		MemberID:  10,
		Status:    model.StatusJudged,
		Answer:    model.AnswerAccepted,
	}
}

func TestSubmissionUpdatedRouting(t *testing.T) {
	transport := &fakeTransport{}
	dispatcher, err := fanout.NewDispatcher(transport)
	if err != nil {
		t.Fatalf("new dispatcher: %v", err)
	}

	dispatcher.SubmissionUpdated(context.Background(), &model.Contest{ID: 1}, sampleSubmission())

	rooms := transport.rooms()
	for _, want := range []string{
		realtime.MemberPrivateRoom(10),
		realtime.ContestStaffRoom(1),
		realtime.ContestSubmissionsRoom(1),
	} {
		if !contains(rooms, want) {
			t.Fatalf("rooms = %v, missing %s", rooms, want)
		}
	}
}

func TestFrozenContestSuppressesPublicFeed(t *testing.T) {
	transport := &fakeTransport{}
	dispatcher, err := fanout.NewDispatcher(transport)
	if err != nil {
		t.Fatalf("new dispatcher: %v", err)
	}

	frozenAt := time.Now()
	dispatcher.SubmissionUpdated(context.Background(), &model.Contest{ID: 1, IsFrozen: true, FrozenAt: &frozenAt}, sampleSubmission())

	rooms := transport.rooms()
	if contains(rooms, realtime.ContestSubmissionsRoom(1)) {
		t.Fatalf("rooms = %v, public feed should be suppressed while frozen", rooms)
	}
	if !contains(rooms, realtime.ContestStaffRoom(1)) || !contains(rooms, realtime.MemberPrivateRoom(10)) {
		t.Fatalf("rooms = %v, staff and member feeds must still receive the update", rooms)
	}
}

func TestLeaderboardUpdated(t *testing.T) {
	transport := &fakeTransport{}
	dispatcher, err := fanout.NewDispatcher(transport)
	if err != nil {
		t.Fatalf("new dispatcher: %v", err)
	}

	dispatcher.LeaderboardUpdated(context.Background(), &model.LeaderboardSnapshot{ContestID: 1})

	if len(transport.emits) != 1 || transport.emits[0].room != realtime.ContestLeaderboardRoom(1) {
		t.Fatalf("emits = %v, want one leaderboard room emit", transport.emits)
	}
}
