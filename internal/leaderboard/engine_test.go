package leaderboard_test

import (
	"testing"
	"time"

	"arbiter/internal/contest/model"
	"arbiter/internal/leaderboard"
)

var contestStart = time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

func testContest() *model.Contest {
	return &model.Contest{
		ID:      1,
		Slug:    "spring-round",
		StartAt: contestStart,
		EndAt:   contestStart.Add(5 * time.Hour),
	}
}

func submission(id, memberID, problemID int64, answer model.Answer, createdAt time.Time) *model.Submission {
	return &model.Submission{
		ID:        id,
		ContestID: 1,
		ProblemID: problemID,
		MemberID:  memberID,
		Status:    model.StatusJudged,
		Answer:    answer,
		CreatedAt: createdAt,
	}
}

func TestPenaltyCountsWrongAttemptsAndElapsedTime(t *testing.T) {
	members := []*model.Member{{ID: 10, Name: "ada"}}
	problems := []*model.Problem{{ID: 100, ContestID: 1}}
	submissions := []*model.Submission{
		submission(1, 10, 100, model.AnswerWrong, contestStart.Add(30*time.Second)),
		submission(2, 10, 100, model.AnswerAccepted, contestStart.Add(70*time.Second)),
	}

	snap := leaderboard.BuildSnapshot(testContest(), members, problems, submissions, leaderboard.BuildOptions{})
	if len(snap.Rows) != 1 {
		t.Fatalf("rows = %d, want 1", len(snap.Rows))
	}
	row := snap.Rows[0]
	if row.Score != 1 {
		t.Fatalf("score = %d, want 1", row.Score)
	}
	// One wrong attempt plus 70 elapsed seconds.
	if row.Penalty != 1270 {
		t.Fatalf("penalty = %d, want 1270", row.Penalty)
	}
	cell := row.Cells[0]
	if !cell.IsAccepted || cell.WrongSubmissions != 1 {
		t.Fatalf("cell = %+v, want accepted with 1 wrong submission", cell)
	}
}

func TestUnsolvedProblemAddsNoScore(t *testing.T) {
	members := []*model.Member{{ID: 10, Name: "ada"}}
	problems := []*model.Problem{{ID: 100, ContestID: 1}}
	submissions := []*model.Submission{
		submission(1, 10, 100, model.AnswerWrong, contestStart.Add(time.Minute)),
		submission(2, 10, 100, model.AnswerTimeLimit, contestStart.Add(2*time.Minute)),
	}

	snap := leaderboard.BuildSnapshot(testContest(), members, problems, submissions, leaderboard.BuildOptions{})
	row := snap.Rows[0]
	if row.Score != 0 {
		t.Fatalf("score = %d, want 0", row.Score)
	}
	if row.Cells[0].WrongSubmissions != 2 {
		t.Fatalf("wrong submissions = %d, want 2", row.Cells[0].WrongSubmissions)
	}
}

func TestAcceptedCellIgnoresLaterSubmissions(t *testing.T) {
	members := []*model.Member{{ID: 10, Name: "ada"}}
	problems := []*model.Problem{{ID: 100, ContestID: 1}}
	acceptedAt := contestStart.Add(time.Minute)
	submissions := []*model.Submission{
		submission(1, 10, 100, model.AnswerAccepted, acceptedAt),
		submission(2, 10, 100, model.AnswerWrong, contestStart.Add(2*time.Minute)),
		submission(3, 10, 100, model.AnswerAccepted, contestStart.Add(3*time.Minute)),
	}

	snap := leaderboard.BuildSnapshot(testContest(), members, problems, submissions, leaderboard.BuildOptions{})
	cell := snap.Rows[0].Cells[0]
	if !cell.IsAccepted {
		t.Fatal("cell should be accepted")
	}
	if cell.AcceptedAt == nil || !cell.AcceptedAt.Equal(acceptedAt) {
		t.Fatalf("acceptedAt = %v, want %v", cell.AcceptedAt, acceptedAt)
	}
	if cell.WrongSubmissions != 0 || cell.Penalty != 60 {
		t.Fatalf("cell = %+v, want 0 wrong and penalty 60", cell)
	}
}

func TestRankingTieBreaks(t *testing.T) {
	members := []*model.Member{
		{ID: 10, Name: "carol"},
		{ID: 11, Name: "bob"},
		{ID: 12, Name: "alice"},
	}
	problems := []*model.Problem{{ID: 100, ContestID: 1}, {ID: 101, ContestID: 1}}
	submissions := []*model.Submission{
		// carol: 1 solve, low penalty.
		submission(1, 10, 100, model.AnswerAccepted, contestStart.Add(time.Minute)),
		// bob and alice: identical score and penalty, name breaks the tie.
		submission(2, 11, 100, model.AnswerAccepted, contestStart.Add(10*time.Minute)),
		submission(3, 12, 100, model.AnswerAccepted, contestStart.Add(10*time.Minute)),
	}

	snap := leaderboard.BuildSnapshot(testContest(), members, problems, submissions, leaderboard.BuildOptions{})
	got := []string{snap.Rows[0].MemberName, snap.Rows[1].MemberName, snap.Rows[2].MemberName}
	want := []string{"carol", "alice", "bob"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("order = %v, want %v", got, want)
		}
	}
}

func TestFreezeHidesLaterSubmissionsFromPublicView(t *testing.T) {
	contest := testContest()
	frozenAt := contestStart.Add(time.Hour)
	contest.IsFrozen = true
	contest.FrozenAt = &frozenAt

	members := []*model.Member{{ID: 10, Name: "ada"}}
	problems := []*model.Problem{{ID: 100, ContestID: 1}, {ID: 101, ContestID: 1}}
	submissions := []*model.Submission{
		submission(1, 10, 100, model.AnswerAccepted, contestStart.Add(30*time.Minute)),
		submission(2, 10, 101, model.AnswerAccepted, frozenAt.Add(time.Minute)),
	}

	public := leaderboard.BuildSnapshot(contest, members, problems, submissions, leaderboard.BuildOptions{})
	if public.Rows[0].Score != 1 {
		t.Fatalf("public score = %d, want 1", public.Rows[0].Score)
	}
	if !public.IsFrozen {
		t.Fatal("public snapshot should be marked frozen")
	}

	staff := leaderboard.BuildSnapshot(contest, members, problems, submissions, leaderboard.BuildOptions{BypassFreeze: true})
	if staff.Rows[0].Score != 2 {
		t.Fatalf("staff score = %d, want 2", staff.Rows[0].Score)
	}
}

func TestPendingSubmissionsDoNotCount(t *testing.T) {
	members := []*model.Member{{ID: 10, Name: "ada"}}
	problems := []*model.Problem{{ID: 100, ContestID: 1}}
	pending := submission(1, 10, 100, model.AnswerNone, contestStart.Add(time.Minute))
	pending.Status = model.StatusQueued

	snap := leaderboard.BuildSnapshot(testContest(), members, problems, []*model.Submission{pending}, leaderboard.BuildOptions{})
	row := snap.Rows[0]
	if row.Score != 0 || row.Cells[0].WrongSubmissions != 0 {
		t.Fatalf("row = %+v, want untouched cell", row)
	}
}
