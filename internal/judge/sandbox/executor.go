package sandbox

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/shlex"

	appErr "arbiter/pkg/errors"
)

const (
	defaultCompileTimeout = 30 * time.Second
	defaultOutputMaxBytes = 8 * 1024 * 1024
	stderrMaxBytes        = 64 * 1024

	// fallbackMemoryMb substitutes {memory_mb} when no limit was set, so a
	// template like "java -Xmx{memory_mb}m" never expands to garbage.
	fallbackMemoryMb = 256
)

// CompileRequest describes one compilation task.
type CompileRequest struct {
	SubmissionID int64
	Language     LanguageSpec
	WorkDir      string
	SourcePath   string
}

// RunRequest describes one test case execution.
type RunRequest struct {
	SubmissionID int64
	TestID       string
	Language     LanguageSpec
	WorkDir      string
	InputPath    string
	Limits       ResourceLimit
}

// Executor compiles a submission once and runs it against single test cases.
type Executor interface {
	Compile(ctx context.Context, req CompileRequest) (CompileResult, error)
	Run(ctx context.Context, req RunRequest) (RunResult, error)
}

// ProcessExecutor runs submissions as host processes with wall-clock kill
// and rusage-based memory accounting.
type ProcessExecutor struct {
	compileTimeout time.Duration
	outputMaxBytes int64
}

type ProcessExecutorOption func(*ProcessExecutor)

func WithCompileTimeout(d time.Duration) ProcessExecutorOption {
	return func(e *ProcessExecutor) {
		if d > 0 {
			e.compileTimeout = d
		}
	}
}

func WithOutputMaxBytes(n int64) ProcessExecutorOption {
	return func(e *ProcessExecutor) {
		if n > 0 {
			e.outputMaxBytes = n
		}
	}
}

func NewProcessExecutor(opts ...ProcessExecutorOption) *ProcessExecutor {
	e := &ProcessExecutor{
		compileTimeout: defaultCompileTimeout,
		outputMaxBytes: defaultOutputMaxBytes,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

var _ Executor = (*ProcessExecutor)(nil)

func (e *ProcessExecutor) Compile(ctx context.Context, req CompileRequest) (CompileResult, error) {
	if err := validateCompileRequest(req); err != nil {
		return CompileResult{}, err
	}
	// The source is staged for every language: interpreted run commands
	// reference it directly through {src}.
	if err := stageSource(req.WorkDir, req.SourcePath, req.Language.SourceFile); err != nil {
		return CompileResult{}, err
	}
	if !req.Language.CompileEnabled {
		return CompileResult{OK: true}, nil
	}

	argv, err := buildCommand(req.Language.CompileCmdTpl, req.Language, req.WorkDir, 0)
	if err != nil {
		return CompileResult{}, err
	}

	ctxCompile, cancel := context.WithTimeout(ctx, e.compileTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctxCompile, argv[0], argv[1:]...)
	cmd.Dir = req.WorkDir
	cmd.Env = append(os.Environ(), req.Language.Env...)
	var log limitedBuffer
	log.max = stderrMaxBytes
	cmd.Stdout = &log
	cmd.Stderr = &log

	start := time.Now()
	runErr := cmd.Run()
	elapsed := time.Since(start).Milliseconds()

	res := CompileResult{
		ExitCode: exitCodeFromErr(runErr, cmd.ProcessState),
		TimeMs:   elapsed,
		Log:      log.String(),
	}
	if runErr != nil {
		if errors.Is(ctxCompile.Err(), context.DeadlineExceeded) {
			res.Log = appendLine(res.Log, "compiler timed out")
			return res, nil
		}
		var exitErr *exec.ExitError
		if !errors.As(runErr, &exitErr) {
			return res, appErr.Wrapf(runErr, appErr.SandboxSetupFailed, "start compiler failed")
		}
		return res, nil
	}
	res.OK = res.ExitCode == 0
	return res, nil
}

func (e *ProcessExecutor) Run(ctx context.Context, req RunRequest) (RunResult, error) {
	if err := validateRunRequest(req); err != nil {
		return RunResult{}, err
	}

	argv, err := buildCommand(req.Language.RunCmdTpl, req.Language, req.WorkDir, req.Limits.MemoryMb)
	if err != nil {
		return RunResult{}, err
	}

	input, err := os.Open(req.InputPath)
	if err != nil {
		return RunResult{}, appErr.Wrapf(err, appErr.SandboxSetupFailed, "open test input failed")
	}
	defer input.Close()

	ctxRun := ctx
	var cancel context.CancelFunc
	if req.Limits.TimeMs > 0 {
		ctxRun, cancel = context.WithTimeout(ctx, time.Duration(req.Limits.TimeMs)*time.Millisecond)
		defer cancel()
	}

	cmd := exec.CommandContext(ctxRun, argv[0], argv[1:]...)
	cmd.Dir = req.WorkDir
	cmd.Env = append(os.Environ(), req.Language.Env...)
	cmd.Stdin = input
	var stdout, stderr limitedBuffer
	stdout.max = e.outputMaxBytes
	stderr.max = stderrMaxBytes
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	setProcessGroup(cmd)

	start := time.Now()
	if err := cmd.Start(); err != nil {
		return RunResult{}, appErr.Wrapf(err, appErr.SandboxSetupFailed, "start submission failed")
	}
	applyMemoryLimit(cmd, req.Limits.MemoryMb)
	waitErr := cmd.Wait()
	elapsed := time.Since(start).Milliseconds()

	res := RunResult{
		ExitCode: exitCodeFromErr(waitErr, cmd.ProcessState),
		TimeMs:   elapsed,
		MemoryKb: peakMemoryKb(cmd.ProcessState),
		TimedOut: errors.Is(ctxRun.Err(), context.DeadlineExceeded),
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
	}
	if waitErr != nil && !res.TimedOut {
		var exitErr *exec.ExitError
		if !errors.As(waitErr, &exitErr) {
			return res, appErr.Wrapf(waitErr, appErr.JudgeSystemError, "wait submission failed")
		}
	}
	return res, nil
}

func validateCompileRequest(req CompileRequest) error {
	if req.SubmissionID <= 0 {
		return appErr.ValidationError("submission_id", "required")
	}
	if req.WorkDir == "" {
		return appErr.ValidationError("work_dir", "required")
	}
	if req.SourcePath == "" {
		return appErr.ValidationError("source_path", "required")
	}
	if req.Language.ID == "" {
		return appErr.ValidationError("language_id", "required")
	}
	return nil
}

func validateRunRequest(req RunRequest) error {
	if req.SubmissionID <= 0 {
		return appErr.ValidationError("submission_id", "required")
	}
	if req.TestID == "" {
		return appErr.ValidationError("test_id", "required")
	}
	if req.WorkDir == "" {
		return appErr.ValidationError("work_dir", "required")
	}
	if req.InputPath == "" {
		return appErr.ValidationError("input_path", "required")
	}
	if req.Language.ID == "" {
		return appErr.ValidationError("language_id", "required")
	}
	return nil
}

// buildCommand expands {src}, {bin} and {memory_mb} in the template and
// splits it with shell quoting rules.
func buildCommand(tpl string, lang LanguageSpec, workDir string, memoryMb int64) ([]string, error) {
	if strings.TrimSpace(tpl) == "" {
		return nil, appErr.New(appErr.InvalidParams).WithMessage("command template is required")
	}
	if memoryMb <= 0 {
		memoryMb = fallbackMemoryMb
	}
	expanded := tpl
	expanded = strings.ReplaceAll(expanded, "{src}", filepath.Join(workDir, lang.SourceFile))
	expanded = strings.ReplaceAll(expanded, "{bin}", filepath.Join(workDir, lang.BinaryFile))
	expanded = strings.ReplaceAll(expanded, "{memory_mb}", strconv.FormatInt(memoryMb, 10))
	fields, err := shlex.Split(expanded)
	if err != nil {
		return nil, appErr.Wrapf(err, appErr.InvalidParams, "parse command template failed")
	}
	if len(fields) == 0 {
		return nil, appErr.New(appErr.InvalidParams).WithMessage("command is empty after expansion")
	}
	return fields, nil
}

func stageSource(workDir, sourcePath, targetName string) error {
	if targetName == "" {
		return appErr.ValidationError("source_file_name", "required")
	}
	src, err := os.Open(sourcePath)
	if err != nil {
		return appErr.Wrapf(err, appErr.SandboxSetupFailed, "open source failed")
	}
	defer src.Close()

	dst, err := os.Create(filepath.Join(workDir, targetName))
	if err != nil {
		return appErr.Wrapf(err, appErr.SandboxSetupFailed, "stage source failed")
	}
	defer dst.Close()

	if _, err := io.Copy(dst, src); err != nil {
		return appErr.Wrapf(err, appErr.SandboxSetupFailed, "copy source failed")
	}
	return nil
}

func exitCodeFromErr(err error, state *os.ProcessState) int {
	if state != nil {
		return state.ExitCode()
	}
	if err == nil {
		return 0
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode()
	}
	return -1
}

func appendLine(log, line string) string {
	if log == "" {
		return line
	}
	return log + "\n" + line
}

// limitedBuffer keeps at most max bytes and silently drops the rest, so a
// submission printing unbounded output cannot exhaust worker memory.
type limitedBuffer struct {
	buf bytes.Buffer
	max int64
}

func (b *limitedBuffer) Write(p []byte) (int, error) {
	remaining := b.max - int64(b.buf.Len())
	if remaining <= 0 {
		return len(p), nil
	}
	if int64(len(p)) > remaining {
		b.buf.Write(p[:remaining])
		return len(p), nil
	}
	b.buf.Write(p)
	return len(p), nil
}

func (b *limitedBuffer) String() string {
	return b.buf.String()
}
