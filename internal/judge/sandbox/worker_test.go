package sandbox_test

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"arbiter/internal/judge/sandbox"
)

type fakeExecutor struct {
	compileRes sandbox.CompileResult
	compileErr error
	runResults []sandbox.RunResult
	runReqs    []sandbox.RunRequest
}

func (f *fakeExecutor) Compile(ctx context.Context, req sandbox.CompileRequest) (sandbox.CompileResult, error) {
	return f.compileRes, f.compileErr
}

func (f *fakeExecutor) Run(ctx context.Context, req sandbox.RunRequest) (sandbox.RunResult, error) {
	idx := len(f.runReqs)
	f.runReqs = append(f.runReqs, req)
	if idx < len(f.runResults) {
		return f.runResults[idx], nil
	}
	return sandbox.RunResult{Stdout: "42\n"}, nil
}

func testLanguages() *sandbox.Registry {
	return sandbox.NewRegistry([]sandbox.LanguageSpec{
		{
			ID:             "cpp",
			SourceFile:     "main.cpp",
			BinaryFile:     "main",
			CompileEnabled: true,
			CompileCmdTpl:  "g++ -o {bin} {src}",
			RunCmdTpl:      "{bin}",
		},
	})
}

// buildRequest lays out a source file and n test cases whose expected
// answer is "42".
func buildRequest(t *testing.T, n int) sandbox.JudgeRequest {
	t.Helper()
	root := t.TempDir()

	sourcePath := filepath.Join(root, "source.cpp")
	if err := os.WriteFile(sourcePath, []byte("int main(){}"), 0644); err != nil {
		t.Fatalf("write source: %v", err)
	}

	tests := make([]sandbox.TestcaseSpec, 0, n)
	for i := 1; i <= n; i++ {
		inputPath := filepath.Join(root, fmt.Sprintf("%d.in", i))
		answerPath := filepath.Join(root, fmt.Sprintf("%d.ans", i))
		if err := os.WriteFile(inputPath, []byte("1\n"), 0644); err != nil {
			t.Fatalf("write input: %v", err)
		}
		if err := os.WriteFile(answerPath, []byte("42\n"), 0644); err != nil {
			t.Fatalf("write answer: %v", err)
		}
		tests = append(tests, sandbox.TestcaseSpec{
			TestID:     fmt.Sprintf("case-%d", i),
			InputPath:  inputPath,
			AnswerPath: answerPath,
		})
	}
	return sandbox.JudgeRequest{
		SubmissionID: 7,
		LanguageID:   "cpp",
		WorkRoot:     root,
		SourcePath:   sourcePath,
		Limits:       sandbox.ResourceLimit{TimeMs: 1000, MemoryMb: 256},
		Tests:        tests,
	}
}

func newWorker(t *testing.T, exec *fakeExecutor) *sandbox.Worker {
	t.Helper()
	worker, err := sandbox.NewWorker(exec, testLanguages())
	if err != nil {
		t.Fatalf("new worker: %v", err)
	}
	return worker
}

func TestWorkerAllAccepted(t *testing.T) {
	exec := &fakeExecutor{compileRes: sandbox.CompileResult{OK: true}}
	worker := newWorker(t, exec)

	res, err := worker.Execute(context.Background(), buildRequest(t, 3))
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if res.Verdict != sandbox.VerdictAC {
		t.Fatalf("verdict = %s, want AC", res.Verdict)
	}
	if res.ApprovedTestCases != 3 || res.TotalTestCases != 3 {
		t.Fatalf("approved/total = %d/%d, want 3/3", res.ApprovedTestCases, res.TotalTestCases)
	}
	if len(exec.runReqs) != 3 {
		t.Fatalf("run calls = %d, want 3", len(exec.runReqs))
	}
}

func TestWorkerOutputIncludesStderr(t *testing.T) {
	exec := &fakeExecutor{
		compileRes: sandbox.CompileResult{OK: true},
		runResults: []sandbox.RunResult{
			{ExitCode: 1, Stdout: "partial\n", Stderr: "panic: boom"},
		},
	}
	worker := newWorker(t, exec)

	res, err := worker.Execute(context.Background(), buildRequest(t, 1))
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if res.Verdict != sandbox.VerdictRE {
		t.Fatalf("verdict = %s, want RE", res.Verdict)
	}
	if got, want := res.Tests[0].Output, "partial\npanic: boom"; got != want {
		t.Fatalf("output = %q, want %q", got, want)
	}
}

func TestWorkerCompileFailureShortCircuits(t *testing.T) {
	exec := &fakeExecutor{compileRes: sandbox.CompileResult{ExitCode: 1, Log: "main.cpp:1: error"}}
	worker := newWorker(t, exec)

	res, err := worker.Execute(context.Background(), buildRequest(t, 3))
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if res.Verdict != sandbox.VerdictCE {
		t.Fatalf("verdict = %s, want CE", res.Verdict)
	}
	if len(exec.runReqs) != 0 {
		t.Fatalf("run calls = %d, want 0", len(exec.runReqs))
	}
	if res.ApprovedTestCases != 0 {
		t.Fatalf("approved = %d, want 0", res.ApprovedTestCases)
	}
}

func TestWorkerStopsAtFirstFailure(t *testing.T) {
	exec := &fakeExecutor{
		compileRes: sandbox.CompileResult{OK: true},
		runResults: []sandbox.RunResult{
			{Stdout: "42\n"},
			{Stdout: "42\n"},
			{TimedOut: true},
		},
	}
	worker := newWorker(t, exec)

	res, err := worker.Execute(context.Background(), buildRequest(t, 10))
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if res.Verdict != sandbox.VerdictTLE {
		t.Fatalf("verdict = %s, want TLE", res.Verdict)
	}
	if res.ApprovedTestCases != 2 {
		t.Fatalf("approved = %d, want 2", res.ApprovedTestCases)
	}
	if res.FailedTestID != "case-3" {
		t.Fatalf("failed test = %q, want case-3", res.FailedTestID)
	}
	if len(exec.runReqs) != 3 {
		t.Fatalf("run calls = %d, want 3", len(exec.runReqs))
	}
}

func TestWorkerGradingOrder(t *testing.T) {
	cases := []struct {
		name string
		run  sandbox.RunResult
		want sandbox.Verdict
	}{
		{"timeout", sandbox.RunResult{TimedOut: true, ExitCode: -1}, sandbox.VerdictTLE},
		{"memory", sandbox.RunResult{MemoryKb: 300 * 1024, Stdout: "42\n"}, sandbox.VerdictMLE},
		{"crash", sandbox.RunResult{ExitCode: 139}, sandbox.VerdictRE},
		{"wrong", sandbox.RunResult{Stdout: "41\n"}, sandbox.VerdictWA},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			exec := &fakeExecutor{
				compileRes: sandbox.CompileResult{OK: true},
				runResults: []sandbox.RunResult{tc.run},
			}
			worker := newWorker(t, exec)

			res, err := worker.Execute(context.Background(), buildRequest(t, 1))
			if err != nil {
				t.Fatalf("execute: %v", err)
			}
			if res.Verdict != tc.want {
				t.Fatalf("verdict = %s, want %s", res.Verdict, tc.want)
			}
		})
	}
}

func TestWorkerNormalizesOutput(t *testing.T) {
	// Trailing whitespace per line, CRLF and trailing blank lines are not
	// wrong answers.
	exec := &fakeExecutor{
		compileRes: sandbox.CompileResult{OK: true},
		runResults: []sandbox.RunResult{{Stdout: "42 \t\r\n\n\n"}},
	}
	worker := newWorker(t, exec)

	res, err := worker.Execute(context.Background(), buildRequest(t, 1))
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if res.Verdict != sandbox.VerdictAC {
		t.Fatalf("verdict = %s, want AC", res.Verdict)
	}
}

func TestWorkerUnknownLanguage(t *testing.T) {
	worker := newWorker(t, &fakeExecutor{compileRes: sandbox.CompileResult{OK: true}})

	req := buildRequest(t, 1)
	req.LanguageID = "cobol"
	if _, err := worker.Execute(context.Background(), req); err == nil {
		t.Fatal("expected error for unknown language")
	}
}

func TestResourceLimitScaling(t *testing.T) {
	lang := sandbox.LanguageSpec{TimeMultiplier: 3, MemoryMultiplier: 2}
	scaled := sandbox.ResourceLimit{TimeMs: 1000, MemoryMb: 256}.Scaled(lang)
	if scaled.TimeMs != 3000 || scaled.MemoryMb != 512 {
		t.Fatalf("scaled = %+v, want {3000 512}", scaled)
	}

	// Zero multipliers keep the base limits.
	plain := sandbox.ResourceLimit{TimeMs: 1000, MemoryMb: 256}.Scaled(sandbox.LanguageSpec{})
	if plain.TimeMs != 1000 || plain.MemoryMb != 256 {
		t.Fatalf("plain = %+v, want {1000 256}", plain)
	}
}
