// Package leaderboard computes contest standings from the submission history.
// The engine is pure: it takes the contest, roster, problems and submissions
// and produces an immutable snapshot; persistence and fanout live elsewhere.
package leaderboard

import (
	"sort"
	"time"

	"arbiter/internal/contest/model"
)

// BuildOptions controls snapshot variants.
type BuildOptions struct {
	// BypassFreeze produces the live standings regardless of the freeze
	// filter. Staff and judges read this variant.
	BypassFreeze bool

	// Now stamps the snapshot's IssuedAt; zero means time.Now().
	Now time.Time
}

// BuildSnapshot scans each (member, problem) pair's submissions in
// chronological order. The first ACCEPTED verdict freezes the cell; earlier
// non-accepted verdicts count as wrong submissions. While the contest is
// frozen, public snapshots ignore submissions created after the freeze
// instant.
func BuildSnapshot(contest *model.Contest, members []*model.Member, problems []*model.Problem, submissions []*model.Submission, opts BuildOptions) *model.LeaderboardSnapshot {
	issuedAt := opts.Now
	if issuedAt.IsZero() {
		issuedAt = time.Now()
	}

	visible := submissions
	if !opts.BypassFreeze && contest.IsFrozen && contest.FrozenAt != nil {
		visible = make([]*model.Submission, 0, len(submissions))
		for _, s := range submissions {
			if !s.CreatedAt.After(*contest.FrozenAt) {
				visible = append(visible, s)
			}
		}
	}

	// Group per (member, problem), preserving chronological input order.
	type pairKey struct{ memberID, problemID int64 }
	byPair := make(map[pairKey][]*model.Submission)
	for _, s := range visible {
		if s.Answer == model.AnswerNone {
			continue
		}
		key := pairKey{s.MemberID, s.ProblemID}
		byPair[key] = append(byPair[key], s)
	}

	rows := make([]model.LeaderboardRow, 0, len(members))
	for _, member := range members {
		row := model.LeaderboardRow{
			MemberID:   member.ID,
			MemberName: member.Name,
			Cells:      make([]model.LeaderboardCell, 0, len(problems)),
		}
		for _, problem := range problems {
			cell := buildCell(problem.ID, contest.StartAt, byPair[pairKey{member.ID, problem.ID}])
			if cell.IsAccepted {
				row.Score++
			}
			row.Penalty += cell.Penalty
			row.Cells = append(row.Cells, cell)
		}
		rows = append(rows, row)
	}

	sort.SliceStable(rows, func(i, j int) bool {
		if rows[i].Score != rows[j].Score {
			return rows[i].Score > rows[j].Score
		}
		if rows[i].Penalty != rows[j].Penalty {
			return rows[i].Penalty < rows[j].Penalty
		}
		return rows[i].MemberName < rows[j].MemberName
	})

	return &model.LeaderboardSnapshot{
		ContestID: contest.ID,
		Slug:      contest.Slug,
		StartAt:   contest.StartAt,
		IssuedAt:  issuedAt,
		IsFrozen:  contest.IsFrozen,
		Rows:      rows,
	}
}

func buildCell(problemID int64, startAt time.Time, attempts []*model.Submission) model.LeaderboardCell {
	cell := model.LeaderboardCell{ProblemID: problemID}
	for _, s := range attempts {
		if s.Answer == model.AnswerAccepted {
			acceptedAt := s.CreatedAt
			cell.IsAccepted = true
			cell.AcceptedAt = &acceptedAt
			elapsed := int64(acceptedAt.Sub(startAt) / time.Second)
			cell.Penalty = int64(cell.WrongSubmissions)*model.WrongSubmissionPenaltySeconds + elapsed
			// Later submissions never alter a solved cell.
			break
		}
		cell.WrongSubmissions++
	}
	if !cell.IsAccepted {
		cell.Penalty = int64(cell.WrongSubmissions) * model.WrongSubmissionPenaltySeconds
	}
	return cell
}
