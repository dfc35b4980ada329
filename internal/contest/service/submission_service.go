package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"arbiter/internal/common/storage"
	"arbiter/internal/contest/model"
	"arbiter/internal/contest/repository"
	judgesvc "arbiter/internal/judge/service"
	"arbiter/pkg/errors"
)

const maxSourceBytes = 256 * 1024

// SubmitInput carries one submission request.
type SubmitInput struct {
	ContestID  int64
	ProblemID  int64
	MemberID   int64
	LanguageID string
	SourceCode string
}

// SubmissionService accepts submissions: it archives the source, creates the
// record and hands it to the judging queue.
type SubmissionService struct {
	submissions  repository.SubmissionStore
	judge        *judgesvc.Service
	storage      storage.ObjectStorage
	sourceBucket string
}

func NewSubmissionService(
	submissions repository.SubmissionStore,
	judge *judgesvc.Service,
	store storage.ObjectStorage,
	sourceBucket string,
) (*SubmissionService, error) {
	if submissions == nil {
		return nil, errors.BadRequest("submission store is required")
	}
	if judge == nil {
		return nil, errors.BadRequest("judge service is required")
	}
	if store == nil {
		return nil, errors.BadRequest("storage client is required")
	}
	if sourceBucket == "" {
		return nil, errors.BadRequest("source bucket is required")
	}
	return &SubmissionService{
		submissions:  submissions,
		judge:        judge,
		storage:      store,
		sourceBucket: sourceBucket,
	}, nil
}

// Submit stores the source and queues the new submission for judging.
func (s *SubmissionService) Submit(ctx context.Context, input SubmitInput) (*model.Submission, error) {
	if err := validateSubmitInput(input); err != nil {
		return nil, err
	}

	objectKey := fmt.Sprintf("sources/%d/%s", input.ContestID, uuid.NewString())
	sourceKey, err := storage.PutCompressed(ctx, s.storage, s.sourceBucket, objectKey, []byte(input.SourceCode))
	if err != nil {
		return nil, errors.Wrapf(err, errors.StorageError, "archive source failed")
	}

	submission := &model.Submission{
		ContestID:  input.ContestID,
		ProblemID:  input.ProblemID,
		MemberID:   input.MemberID,
		LanguageID: input.LanguageID,
		SourceKey:  sourceKey,
		Status:     model.StatusQueued,
		Answer:     model.AnswerNone,
	}
	if err := s.submissions.Create(ctx, nil, submission); err != nil {
		return nil, errors.Wrapf(err, errors.DatabaseError, "create submission failed")
	}

	if err := s.judge.Enqueue(ctx, input.ContestID, submission.ID); err != nil {
		return nil, err
	}
	return submission, nil
}

// Get returns a submission with its judging attempts.
func (s *SubmissionService) Get(ctx context.Context, submissionID int64) (*model.Submission, []*model.Execution, error) {
	submission, err := s.submissions.GetByID(ctx, submissionID)
	if err != nil {
		return nil, nil, err
	}
	executions, err := s.submissions.ListExecutionsBySubmission(ctx, submissionID)
	if err != nil {
		return nil, nil, err
	}
	return submission, executions, nil
}

func validateSubmitInput(input SubmitInput) error {
	if input.ContestID <= 0 {
		return errors.ValidationError("contest_id", "required")
	}
	if input.ProblemID <= 0 {
		return errors.ValidationError("problem_id", "required")
	}
	if input.MemberID <= 0 {
		return errors.ValidationError("member_id", "required")
	}
	if input.LanguageID == "" {
		return errors.ValidationError("language_id", "required")
	}
	if strings.TrimSpace(input.SourceCode) == "" {
		return errors.ValidationError("source_code", "required")
	}
	if len(input.SourceCode) > maxSourceBytes {
		return errors.ValidationError("source_code", "too large")
	}
	return nil
}
