package model

import "time"

// Contest holds the settings the judging core reads. IsFrozen and FrozenAt
// are toggled by staff or by the scheduled freeze trigger.
type Contest struct {
	ID                 int64      `json:"id"`
	Slug               string     `json:"slug"`
	Name               string     `json:"name"`
	StartAt            time.Time  `json:"startAt"`
	EndAt              time.Time  `json:"endAt"`
	IsAutoJudgeEnabled bool       `json:"isAutoJudgeEnabled"`
	AutoFreezeAt       *time.Time `json:"autoFreezeAt,omitempty"`
	IsFrozen           bool       `json:"isFrozen"`
	FrozenAt           *time.Time `json:"frozenAt,omitempty"`
}

// Problem carries the per-problem execution limits.
type Problem struct {
	ID            int64  `json:"id"`
	ContestID     int64  `json:"contestId"`
	Title         string `json:"title"`
	TimeLimitMs   int64  `json:"timeLimitMs"`
	MemoryLimitMb int64  `json:"memoryLimitMb"`
}

// TestCase points at a problem's input and expected answer in object
// storage. Ordinal fixes the deterministic judging order.
type TestCase struct {
	ID        int64  `json:"id"`
	ProblemID int64  `json:"problemId"`
	Ordinal   int    `json:"ordinal"`
	InputKey  string `json:"inputKey"`
	AnswerKey string `json:"answerKey"`
}

// Member is a contest participant as seen by the leaderboard.
type Member struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}
