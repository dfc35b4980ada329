package model

import "time"

// SubmissionStatus tracks where a submission is in the judging pipeline.
type SubmissionStatus string

const (
	StatusQueued  SubmissionStatus = "QUEUED"
	StatusJudging SubmissionStatus = "JUDGING"
	StatusJudged  SubmissionStatus = "JUDGED"
	StatusFailed  SubmissionStatus = "FAILED"
)

// IsTerminal reports whether no further automatic transition applies.
func (s SubmissionStatus) IsTerminal() bool {
	return s == StatusJudged || s == StatusFailed
}

// Answer is the verdict of judging a submission.
type Answer string

const (
	AnswerNone        Answer = "NO_ANSWER"
	AnswerAccepted    Answer = "ACCEPTED"
	AnswerWrong       Answer = "WRONG_ANSWER"
	AnswerTimeLimit   Answer = "TIME_LIMIT_EXCEEDED"
	AnswerMemoryLimit Answer = "MEMORY_LIMIT_EXCEEDED"
	AnswerRuntime     Answer = "RUNTIME_ERROR"
	AnswerCompile     Answer = "COMPILATION_ERROR"
)

// IsFinal reports whether the answer is a real verdict rather than the
// NO_ANSWER placeholder.
func (a Answer) IsFinal() bool {
	switch a {
	case AnswerAccepted, AnswerWrong, AnswerTimeLimit, AnswerMemoryLimit, AnswerRuntime, AnswerCompile:
		return true
	}
	return false
}

// Submission is a contestant's judging request. Status and Answer transitions
// are owned by the judging orchestrator; Version guards every mutation with
// optimistic locking.
type Submission struct {
	ID         int64            `json:"id"`
	ContestID  int64            `json:"contestId"`
	ProblemID  int64            `json:"problemId"`
	MemberID   int64            `json:"memberId"`
	LanguageID string           `json:"languageId"`
	SourceKey  string           `json:"sourceKey"`
	Status     SubmissionStatus `json:"status"`
	Answer     Answer           `json:"answer"`
	Version    int64            `json:"version"`
	CreatedAt  time.Time        `json:"createdAt"`
	UpdatedAt  time.Time        `json:"updatedAt"`
}

// Consistent reports whether status and answer agree: a real verdict only
// exists on a judged or failed submission.
func (s *Submission) Consistent() bool {
	if s.Answer == AnswerNone {
		return true
	}
	return s.Status == StatusJudged || s.Status == StatusFailed
}

// Execution records one judging attempt. Immutable once created; a rerun
// creates a new Execution and never mutates a prior one.
type Execution struct {
	ID                int64     `json:"id"`
	ContestID         int64     `json:"contestId"`
	MemberID          int64     `json:"memberId"`
	SubmissionID      int64     `json:"submissionId"`
	Answer            Answer    `json:"answer"`
	TotalTestCases    int       `json:"totalTestCases"`
	ApprovedTestCases int       `json:"approvedTestCases"`
	InputKey          string    `json:"inputKey"`
	OutputKey         string    `json:"outputKey"`
	CreatedAt         time.Time `json:"createdAt"`
}
