package sandbox

import (
	"context"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	appErr "arbiter/pkg/errors"
)

// TestcaseSpec describes one test case input and expected answer, both as
// local files prepared before calling the worker.
type TestcaseSpec struct {
	TestID     string
	InputPath  string
	AnswerPath string
}

// JudgeRequest contains all data needed to judge one submission.
type JudgeRequest struct {
	SubmissionID int64
	LanguageID   string
	WorkRoot     string
	SourcePath   string
	Limits       ResourceLimit
	Tests        []TestcaseSpec
}

// Worker executes the full judge workflow for one submission: compile once,
// then run test cases in order until the first failure.
type Worker struct {
	executor  Executor
	languages *Registry
}

func NewWorker(executor Executor, languages *Registry) (*Worker, error) {
	if executor == nil {
		return nil, appErr.BadRequest("executor is required")
	}
	if languages == nil {
		return nil, appErr.BadRequest("language registry is required")
	}
	return &Worker{executor: executor, languages: languages}, nil
}

// Execute judges one submission. A compilation failure short-circuits to CE
// without running any test; the first failing test case decides the verdict
// and later cases do not run.
func (w *Worker) Execute(ctx context.Context, req JudgeRequest) (JudgeResult, error) {
	if err := validateJudgeRequest(req); err != nil {
		return JudgeResult{}, err
	}

	lang, err := w.languages.Get(req.LanguageID)
	if err != nil {
		return JudgeResult{}, err
	}

	submissionRoot := filepath.Join(req.WorkRoot, strconv.FormatInt(req.SubmissionID, 10))
	if err := os.MkdirAll(submissionRoot, 0755); err != nil {
		return JudgeResult{}, appErr.Wrapf(err, appErr.SandboxSetupFailed, "create submission work root failed")
	}
	defer func() {
		_ = os.RemoveAll(submissionRoot)
	}()

	res := JudgeResult{TotalTestCases: len(req.Tests)}

	compileRes, err := w.executor.Compile(ctx, CompileRequest{
		SubmissionID: req.SubmissionID,
		Language:     lang,
		WorkDir:      submissionRoot,
		SourcePath:   req.SourcePath,
	})
	res.Compile = &compileRes
	if err != nil {
		res.Verdict = VerdictSE
		return res, err
	}
	if !compileRes.OK {
		res.Verdict = VerdictCE
		return res, nil
	}

	limits := req.Limits.Scaled(lang)
	res.Verdict = VerdictAC
	for _, tc := range req.Tests {
		runRes, runErr := w.executor.Run(ctx, RunRequest{
			SubmissionID: req.SubmissionID,
			TestID:       tc.TestID,
			Language:     lang,
			WorkDir:      submissionRoot,
			InputPath:    tc.InputPath,
			Limits:       limits,
		})
		if runErr != nil {
			res.Verdict = VerdictSE
			return res, runErr
		}

		verdict, err := w.gradeRun(runRes, limits, tc.AnswerPath)
		if err != nil {
			res.Verdict = VerdictSE
			return res, err
		}

		res.Tests = append(res.Tests, TestResult{
			TestID:   tc.TestID,
			Verdict:  verdict,
			TimeMs:   runRes.TimeMs,
			MemoryKb: runRes.MemoryKb,
			ExitCode: runRes.ExitCode,
			Output:   combinedOutput(runRes),
		})
		if verdict != VerdictAC {
			res.Verdict = verdict
			res.FailedTestID = tc.TestID
			return res, nil
		}
		res.ApprovedTestCases++
	}
	return res, nil
}

func (w *Worker) gradeRun(runRes RunResult, limits ResourceLimit, answerPath string) (Verdict, error) {
	if runRes.TimedOut {
		return VerdictTLE, nil
	}
	if limits.MemoryMb > 0 && runRes.MemoryKb > limits.MemoryMb*1024 {
		return VerdictMLE, nil
	}
	if runRes.ExitCode != 0 {
		return VerdictRE, nil
	}
	answer, err := os.ReadFile(answerPath)
	if err != nil {
		return VerdictSE, appErr.Wrapf(err, appErr.JudgeSystemError, "read expected answer failed")
	}
	if !outputMatches(runRes.Stdout, string(answer)) {
		return VerdictWA, nil
	}
	return VerdictAC, nil
}

func validateJudgeRequest(req JudgeRequest) error {
	if req.SubmissionID <= 0 {
		return appErr.ValidationError("submission_id", "required")
	}
	if req.LanguageID == "" {
		return appErr.ValidationError("language_id", "required")
	}
	if req.WorkRoot == "" {
		return appErr.ValidationError("work_root", "required")
	}
	if req.SourcePath == "" {
		return appErr.ValidationError("source_path", "required")
	}
	if len(req.Tests) == 0 {
		return appErr.ValidationError("tests", "required")
	}
	for _, tc := range req.Tests {
		if tc.TestID == "" {
			return appErr.ValidationError("test_id", "required")
		}
		if tc.InputPath == "" {
			return appErr.ValidationError("input_path", "required")
		}
		if tc.AnswerPath == "" {
			return appErr.ValidationError("answer_path", "required")
		}
	}
	return nil
}

// combinedOutput splices stderr after stdout for the archived attachment.
// Grading compares stdout only.
func combinedOutput(res RunResult) string {
	switch {
	case res.Stderr == "":
		return res.Stdout
	case res.Stdout == "":
		return res.Stderr
	}
	return strings.TrimRight(res.Stdout, "\n") + "\n" + res.Stderr
}

// outputMatches compares program output to the expected answer ignoring
// trailing whitespace on each line and trailing blank lines.
func outputMatches(got, want string) bool {
	return normalizeOutput(got) == normalizeOutput(want)
}

func normalizeOutput(s string) string {
	lines := strings.Split(strings.ReplaceAll(s, "\r\n", "\n"), "\n")
	for i, line := range lines {
		lines[i] = strings.TrimRight(line, " \t")
	}
	out := strings.Join(lines, "\n")
	return strings.TrimRight(out, "\n")
}
