package sandbox_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"arbiter/internal/judge/sandbox"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func processWorker(t *testing.T, runCmdTpl string) *sandbox.Worker {
	t.Helper()
	registry := sandbox.NewRegistry([]sandbox.LanguageSpec{{
		ID:         "shell",
		Name:       "POSIX shell",
		SourceFile: "main.sh",
		RunCmdTpl:  runCmdTpl,
	}})
	worker, err := sandbox.NewWorker(sandbox.NewProcessExecutor(), registry)
	if err != nil {
		t.Fatalf("new worker: %v", err)
	}
	return worker
}

// An interpreted language has no compile step, yet its source must reach the
// work dir before the run command references it through {src}.
func TestProcessExecutorJudgesInterpretedLanguage(t *testing.T) {
	dir := t.TempDir()
	source := writeFile(t, dir, "solution.sh", "echo 42\n")
	input := writeFile(t, dir, "1.in", "\n")
	answer := writeFile(t, dir, "1.ans", "42\n")

	worker := processWorker(t, "sh {src}")
	res, err := worker.Execute(context.Background(), sandbox.JudgeRequest{
		SubmissionID: 1,
		LanguageID:   "shell",
		WorkRoot:     t.TempDir(),
		SourcePath:   source,
		Limits:       sandbox.ResourceLimit{TimeMs: 5000, MemoryMb: 256},
		Tests: []sandbox.TestcaseSpec{
			{TestID: "case-1", InputPath: input, AnswerPath: answer},
		},
	})
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if res.Verdict != sandbox.VerdictAC {
		t.Fatalf("verdict = %s, want AC (tests: %+v)", res.Verdict, res.Tests)
	}
	if res.ApprovedTestCases != 1 {
		t.Fatalf("approved = %d, want 1", res.ApprovedTestCases)
	}
}

func TestProcessExecutorExpandsMemoryTemplate(t *testing.T) {
	dir := t.TempDir()
	source := writeFile(t, dir, "limit.sh", "echo \"$1\"\n")
	input := writeFile(t, dir, "1.in", "\n")
	answer := writeFile(t, dir, "1.ans", "384\n")

	worker := processWorker(t, "sh {src} {memory_mb}")
	res, err := worker.Execute(context.Background(), sandbox.JudgeRequest{
		SubmissionID: 2,
		LanguageID:   "shell",
		WorkRoot:     t.TempDir(),
		SourcePath:   source,
		Limits:       sandbox.ResourceLimit{TimeMs: 5000, MemoryMb: 384},
		Tests: []sandbox.TestcaseSpec{
			{TestID: "case-1", InputPath: input, AnswerPath: answer},
		},
	})
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if res.Verdict != sandbox.VerdictAC {
		t.Fatalf("verdict = %s, want AC (tests: %+v)", res.Verdict, res.Tests)
	}
}
