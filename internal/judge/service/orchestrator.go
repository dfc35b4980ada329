// Package service orchestrates the submission judging lifecycle: queueing,
// consuming, verdict persistence and dead-lettering.
package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"arbiter/internal/common/mq"
	"arbiter/internal/common/storage"
	"arbiter/internal/contest/model"
	"arbiter/internal/contest/repository"
	"arbiter/internal/judge/sandbox"
	appErr "arbiter/pkg/errors"
	"arbiter/pkg/utils/contextkey"
	"arbiter/pkg/utils/logger"
)

// maxCASRetries bounds the re-read-and-reapply loop on version conflicts.
const maxCASRetries = 3

// VerdictReporter pushes a final verdict to an external endpoint. Optional.
type VerdictReporter interface {
	ReportVerdict(ctx context.Context, event model.SubmissionUpdatedEvent) error
}

// Service drives submissions through QUEUED -> JUDGING -> JUDGED. Only the
// dead-letter consumer moves a submission to FAILED.
type Service struct {
	submissions repository.SubmissionStore
	problems    repository.ProblemStore
	contests    repository.ContestStore
	queue       mq.Producer
	worker      *sandbox.Worker
	storage     storage.ObjectStorage
	reporter    VerdictReporter

	sourceBucket   string
	testDataBucket string
	artifactBucket string
	workRoot       string
}

// Config holds service dependencies and settings.
type Config struct {
	Submissions repository.SubmissionStore
	Problems    repository.ProblemStore
	Contests    repository.ContestStore
	Queue       mq.Producer
	Worker      *sandbox.Worker
	Storage     storage.ObjectStorage
	Reporter    VerdictReporter

	SourceBucket   string
	TestDataBucket string
	ArtifactBucket string
	WorkRoot       string
}

// NewService creates a new judging orchestrator. Worker, Problems, Storage
// and WorkRoot are only needed by the consuming side; a service that merely
// enqueues and force-updates may leave them unset.
func NewService(cfg Config) (*Service, error) {
	if cfg.Submissions == nil {
		return nil, fmt.Errorf("submission store is required")
	}
	if cfg.Contests == nil {
		return nil, fmt.Errorf("contest store is required")
	}
	if cfg.Queue == nil {
		return nil, fmt.Errorf("queue producer is required")
	}
	return &Service{
		submissions:    cfg.Submissions,
		problems:       cfg.Problems,
		contests:       cfg.Contests,
		queue:          cfg.Queue,
		worker:         cfg.Worker,
		storage:        cfg.Storage,
		reporter:       cfg.Reporter,
		sourceBucket:   cfg.SourceBucket,
		testDataBucket: cfg.TestDataBucket,
		artifactBucket: cfg.ArtifactBucket,
		workRoot:       cfg.WorkRoot,
	}, nil
}

// Enqueue queues a submission for judging. Terminal submissions re-enter the
// queue as a rerun with the answer cleared; a submission already queued is a
// no-op so repeated calls publish at most one extra message per state.
func (s *Service) Enqueue(ctx context.Context, contestID, submissionID int64) error {
	contest, err := s.contests.GetByID(ctx, contestID)
	if err != nil {
		return err
	}
	if !contest.IsAutoJudgeEnabled {
		return appErr.New(appErr.AutoJudgeDisabled)
	}

	submission, err := s.submissions.GetByID(ctx, submissionID)
	if err != nil {
		return err
	}
	if submission.ContestID != contestID {
		return appErr.ValidationError("contest_id", "submission belongs to another contest")
	}

	switch submission.Status {
	case model.StatusQueued:
		// Already queued. Publish again; consumers de-duplicate.
	case model.StatusJudging:
		return appErr.Newf(appErr.SubmissionNotRerunnable, "submission %d is being judged", submissionID)
	default:
		// Terminal state: rerun. Clear the answer so a fresh execution decides it.
		if _, err := s.transition(ctx, submissionID, func(sub *model.Submission) (model.SubmissionStatus, model.Answer, bool, error) {
			switch sub.Status {
			case model.StatusQueued:
				return "", "", false, nil
			case model.StatusJudging:
				return "", "", false, appErr.Newf(appErr.SubmissionNotRerunnable, "submission %d is being judged", submissionID)
			default:
				return model.StatusQueued, model.AnswerNone, true, nil
			}
		}); err != nil {
			return err
		}
		logger.Info(ctx, "submission requeued for rerun",
			zap.Int64("submission_id", submissionID), zap.Int64("contest_id", contestID))
	}

	payload, err := json.Marshal(model.SubmissionQueuedPayload{
		ContestID:    contestID,
		SubmissionID: submissionID,
	})
	if err != nil {
		return appErr.Wrapf(err, appErr.EncodeFailed, "encode queued payload failed")
	}
	msg := mq.NewMessage(traceFromContext(ctx), payload)
	if err := s.queue.Publish(ctx, model.TopicSubmissionQueued, msg); err != nil {
		return appErr.Wrapf(err, appErr.PublishFailed, "publish queued message failed")
	}
	return nil
}

// HandleMessage judges one queued submission. Redeliveries of an already
// claimed or finished submission are acknowledged without work.
func (s *Service) HandleMessage(ctx context.Context, msg *mq.Message) error {
	payload, err := decodeQueuedPayload(msg)
	if err != nil {
		return err
	}
	if s.worker == nil || s.problems == nil || s.storage == nil || s.workRoot == "" {
		return appErr.New(appErr.JudgeSystemError).WithMessage("judging dependencies are not configured")
	}
	ctx = context.WithValue(ctx, contextkey.SubmissionID, payload.SubmissionID)
	ctx = context.WithValue(ctx, contextkey.ContestID, payload.ContestID)

	claimed, err := s.transition(ctx, payload.SubmissionID, func(sub *model.Submission) (model.SubmissionStatus, model.Answer, bool, error) {
		if sub.Status != model.StatusQueued {
			return "", "", false, nil
		}
		return model.StatusJudging, model.AnswerNone, true, nil
	})
	if err != nil {
		return err
	}
	if claimed == nil {
		logger.Info(ctx, "submission already claimed, skipping duplicate delivery",
			zap.Int64("submission_id", payload.SubmissionID))
		return nil
	}
	s.publishUpdated(ctx, claimed)

	judgeRes, failedInputKey, err := s.judge(ctx, claimed)
	if err != nil {
		return err
	}
	answer := answerForVerdict(judgeRes.Verdict)

	outputKey := s.archiveOutput(ctx, claimed.ID, judgeRes)

	execution := &model.Execution{
		ContestID:         claimed.ContestID,
		MemberID:          claimed.MemberID,
		SubmissionID:      claimed.ID,
		Answer:            answer,
		TotalTestCases:    judgeRes.TotalTestCases,
		ApprovedTestCases: judgeRes.ApprovedTestCases,
		InputKey:          failedInputKey,
		OutputKey:         outputKey,
	}
	if err := s.submissions.CreateExecution(ctx, nil, execution); err != nil {
		return appErr.Wrapf(err, appErr.DatabaseError, "record execution failed")
	}

	final, err := s.transition(ctx, claimed.ID, func(sub *model.Submission) (model.SubmissionStatus, model.Answer, bool, error) {
		// A rerun or force update may have overtaken this execution; its
		// result is stale then and must not clobber the newer state.
		if sub.Status != model.StatusJudging {
			return "", "", false, nil
		}
		return model.StatusJudged, answer, true, nil
	})
	if err != nil {
		return err
	}
	if final == nil {
		logger.Warn(ctx, "submission state changed mid-judging, dropping stale verdict",
			zap.Int64("submission_id", claimed.ID), zap.String("verdict", string(judgeRes.Verdict)))
		return nil
	}

	logger.Info(ctx, "submission judged",
		zap.Int64("submission_id", final.ID),
		zap.String("answer", string(answer)),
		zap.Int("approved_test_cases", judgeRes.ApprovedTestCases),
		zap.Int("total_test_cases", judgeRes.TotalTestCases))
	s.publishUpdated(ctx, final)
	s.report(ctx, final)
	return nil
}

// HandleDeadLetter marks a submission FAILED after its queued message
// exhausted retries. Terminal submissions are left untouched, so replaying
// the dead-letter topic is safe.
func (s *Service) HandleDeadLetter(ctx context.Context, msg *mq.Message) error {
	payload, err := decodeQueuedPayload(msg)
	if err != nil {
		return err
	}
	failed, err := s.transition(ctx, payload.SubmissionID, func(sub *model.Submission) (model.SubmissionStatus, model.Answer, bool, error) {
		if sub.Status.IsTerminal() {
			return "", "", false, nil
		}
		return model.StatusFailed, sub.Answer, true, nil
	})
	if err != nil {
		if errors.Is(err, repository.ErrSubmissionNotFound) {
			logger.Warn(ctx, "dead letter for unknown submission",
				zap.Int64("submission_id", payload.SubmissionID))
			return nil
		}
		return err
	}
	if failed == nil {
		return nil
	}
	logger.Error(ctx, "submission judging failed permanently",
		zap.Int64("submission_id", payload.SubmissionID),
		zap.Int64("contest_id", payload.ContestID),
		zap.Int("retry_count", msg.RetryCount))
	s.publishUpdated(ctx, failed)
	return nil
}

// ForceUpdateAnswer lets staff overrule the recorded answer. The submission
// lands in JUDGED regardless of its current state.
func (s *Service) ForceUpdateAnswer(ctx context.Context, submissionID int64, answer model.Answer) error {
	if !answer.IsFinal() {
		return appErr.Newf(appErr.InvalidParams, "answer %q cannot be forced", string(answer))
	}
	updated, err := s.transition(ctx, submissionID, func(sub *model.Submission) (model.SubmissionStatus, model.Answer, bool, error) {
		if sub.Status == model.StatusJudged && sub.Answer == answer {
			return "", "", false, nil
		}
		return model.StatusJudged, answer, true, nil
	})
	if err != nil {
		return err
	}
	if updated == nil {
		return nil
	}
	logger.Info(ctx, "submission answer forced",
		zap.Int64("submission_id", submissionID), zap.String("answer", string(answer)))
	s.publishUpdated(ctx, updated)
	return nil
}

// transition applies a compare-and-set state change. apply inspects the
// freshly read submission and either declines (ok=false, transition returns
// nil) or names the target status and answer. A version conflict re-reads
// and reapplies, bounded by maxCASRetries.
func (s *Service) transition(
	ctx context.Context,
	submissionID int64,
	apply func(*model.Submission) (model.SubmissionStatus, model.Answer, bool, error),
) (*model.Submission, error) {
	var lastErr error
	for attempt := 0; attempt < maxCASRetries; attempt++ {
		submission, err := s.submissions.GetByID(ctx, submissionID)
		if err != nil {
			return nil, err
		}
		status, answer, ok, err := apply(submission)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, nil
		}
		err = s.submissions.UpdateStatus(ctx, nil, submission.ID, submission.Version, status, answer)
		if err == nil {
			submission.Status = status
			submission.Answer = answer
			submission.Version++
			return submission, nil
		}
		if !errors.Is(err, repository.ErrConflict) {
			return nil, err
		}
		lastErr = err
		logger.Debug(ctx, "submission version conflict, retrying",
			zap.Int64("submission_id", submissionID), zap.Int("attempt", attempt+1))
	}
	return nil, appErr.Wrapf(lastErr, appErr.VersionConflict, "submission %d: retries exhausted", submissionID)
}

// judge stages source and test data locally and runs the sandbox worker.
// The returned key is the object-storage input of the first failed case.
func (s *Service) judge(ctx context.Context, submission *model.Submission) (sandbox.JudgeResult, string, error) {
	problem, err := s.problems.GetByID(ctx, submission.ProblemID)
	if err != nil {
		return sandbox.JudgeResult{}, "", err
	}
	testCases, err := s.problems.ListTestCases(ctx, submission.ProblemID)
	if err != nil {
		return sandbox.JudgeResult{}, "", appErr.Wrapf(err, appErr.JudgeSystemError, "load test cases failed")
	}

	stagingDir, err := os.MkdirTemp(s.workRoot, fmt.Sprintf("staging-%d-", submission.ID))
	if err != nil {
		return sandbox.JudgeResult{}, "", appErr.Wrapf(err, appErr.SandboxSetupFailed, "create staging dir failed")
	}
	defer func() {
		_ = os.RemoveAll(stagingDir)
	}()

	sourcePath, err := s.stageObject(ctx, s.sourceBucket, submission.SourceKey, stagingDir, "source.code")
	if err != nil {
		return sandbox.JudgeResult{}, "", err
	}

	tests := make([]sandbox.TestcaseSpec, 0, len(testCases))
	for _, tc := range testCases {
		inputPath, err := s.stageObject(ctx, s.testDataBucket, tc.InputKey, stagingDir, fmt.Sprintf("%d.in", tc.Ordinal))
		if err != nil {
			return sandbox.JudgeResult{}, "", err
		}
		answerPath, err := s.stageObject(ctx, s.testDataBucket, tc.AnswerKey, stagingDir, fmt.Sprintf("%d.ans", tc.Ordinal))
		if err != nil {
			return sandbox.JudgeResult{}, "", err
		}
		tests = append(tests, sandbox.TestcaseSpec{
			TestID:     fmt.Sprintf("case-%d", tc.Ordinal),
			InputPath:  inputPath,
			AnswerPath: answerPath,
		})
	}

	res, err := s.worker.Execute(ctx, sandbox.JudgeRequest{
		SubmissionID: submission.ID,
		LanguageID:   submission.LanguageID,
		WorkRoot:     s.workRoot,
		SourcePath:   sourcePath,
		Limits: sandbox.ResourceLimit{
			TimeMs:   problem.TimeLimitMs,
			MemoryMb: problem.MemoryLimitMb,
		},
		Tests: tests,
	})
	if err != nil {
		return res, "", err
	}

	failedInputKey := ""
	if res.FailedTestID != "" {
		for i, tc := range tests {
			if tc.TestID == res.FailedTestID {
				failedInputKey = testCases[i].InputKey
				break
			}
		}
	}
	return res, failedInputKey, nil
}

func (s *Service) stageObject(ctx context.Context, bucket, objectKey, dir, name string) (string, error) {
	data, err := storage.FetchAll(ctx, s.storage, bucket, objectKey)
	if err != nil {
		return "", appErr.Wrapf(err, appErr.StorageError, "fetch %s failed", objectKey)
	}
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", appErr.Wrapf(err, appErr.SandboxSetupFailed, "stage %s failed", name)
	}
	return path, nil
}

// archiveOutput stores the stdout/stderr of the last executed test case, or
// the compiler log on a compile failure, so staff can inspect any run. Best
// effort.
func (s *Service) archiveOutput(ctx context.Context, submissionID int64, res sandbox.JudgeResult) string {
	if s.artifactBucket == "" {
		return ""
	}
	var name, output string
	switch {
	case res.Verdict == sandbox.VerdictCE && res.Compile != nil:
		name, output = "compile", res.Compile.Log
	case len(res.Tests) > 0:
		last := res.Tests[len(res.Tests)-1]
		name, output = last.TestID, last.Output
	}
	if output == "" {
		return ""
	}
	objectKey := fmt.Sprintf("executions/%d/%s-%s", submissionID, name, uuid.NewString())
	key, err := storage.PutCompressed(ctx, s.storage, s.artifactBucket, objectKey, []byte(output))
	if err != nil {
		logger.Warn(ctx, "archive run output failed",
			zap.Int64("submission_id", submissionID), zap.Error(err))
		return ""
	}
	return key
}

func (s *Service) publishUpdated(ctx context.Context, submission *model.Submission) {
	event := model.SubmissionUpdatedEvent{
		ContestID:    submission.ContestID,
		SubmissionID: submission.ID,
		MemberID:     submission.MemberID,
		ProblemID:    submission.ProblemID,
		Status:       submission.Status,
		Answer:       submission.Answer,
		Version:      submission.Version,
		OccurredAt:   time.Now(),
	}
	body, err := json.Marshal(event)
	if err != nil {
		logger.Warn(ctx, "encode updated event failed", zap.Error(err))
		return
	}
	msg := mq.NewMessage(traceFromContext(ctx), body)
	if err := s.queue.Publish(ctx, model.TopicSubmissionUpdated, msg); err != nil {
		logger.Warn(ctx, "publish updated event failed",
			zap.Int64("submission_id", submission.ID), zap.Error(err))
	}
}

func (s *Service) report(ctx context.Context, submission *model.Submission) {
	if s.reporter == nil {
		return
	}
	event := model.SubmissionUpdatedEvent{
		ContestID:    submission.ContestID,
		SubmissionID: submission.ID,
		MemberID:     submission.MemberID,
		ProblemID:    submission.ProblemID,
		Status:       submission.Status,
		Answer:       submission.Answer,
		Version:      submission.Version,
		OccurredAt:   time.Now(),
	}
	if err := s.reporter.ReportVerdict(ctx, event); err != nil {
		logger.Warn(ctx, "report verdict failed",
			zap.Int64("submission_id", submission.ID), zap.Error(err))
	}
}

func decodeQueuedPayload(msg *mq.Message) (model.SubmissionQueuedPayload, error) {
	var payload model.SubmissionQueuedPayload
	if msg == nil {
		return payload, appErr.New(appErr.InvalidParams).WithMessage("message is nil")
	}
	if err := json.Unmarshal(msg.Body, &payload); err != nil {
		return payload, appErr.Wrapf(err, appErr.DecodeFailed, "decode queued payload failed")
	}
	if payload.SubmissionID <= 0 || payload.ContestID <= 0 {
		return payload, appErr.New(appErr.InvalidParams).WithMessage("payload missing required fields")
	}
	return payload, nil
}

func answerForVerdict(v sandbox.Verdict) model.Answer {
	switch v {
	case sandbox.VerdictAC:
		return model.AnswerAccepted
	case sandbox.VerdictWA:
		return model.AnswerWrong
	case sandbox.VerdictTLE:
		return model.AnswerTimeLimit
	case sandbox.VerdictMLE:
		return model.AnswerMemoryLimit
	case sandbox.VerdictRE:
		return model.AnswerRuntime
	case sandbox.VerdictCE:
		return model.AnswerCompile
	default:
		return model.AnswerNone
	}
}

func traceFromContext(ctx context.Context) string {
	if traceID, ok := ctx.Value(contextkey.TraceID).(string); ok {
		return traceID
	}
	return ""
}
