package sandbox

// Verdict represents the outcome of compiling or executing a submission.
type Verdict string

const (
	VerdictAC  Verdict = "AC"
	VerdictWA  Verdict = "WA"
	VerdictTLE Verdict = "TLE"
	VerdictMLE Verdict = "MLE"
	VerdictRE  Verdict = "RE"
	VerdictCE  Verdict = "CE"
	VerdictSE  Verdict = "SE"
)

// CompileResult contains compilation outcomes.
type CompileResult struct {
	OK       bool
	ExitCode int
	TimeMs   int64
	Log      string
}

// RunResult captures raw execution data for one test case.
type RunResult struct {
	ExitCode int
	TimeMs   int64
	MemoryKb int64
	TimedOut bool
	Stdout   string
	Stderr   string
}

// TestResult contains the judged outcome of one test case.
type TestResult struct {
	TestID   string
	Verdict  Verdict
	TimeMs   int64
	MemoryKb int64
	ExitCode int
	Output   string
}

// JudgeResult is the unified outcome for one submission.
//
// ApprovedTestCases counts the test cases that fully matched before the
// first failure; for an accepted submission it equals TotalTestCases.
type JudgeResult struct {
	Verdict           Verdict
	TotalTestCases    int
	ApprovedTestCases int
	Compile           *CompileResult
	Tests             []TestResult
	FailedTestID      string
}
