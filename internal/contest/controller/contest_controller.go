// Package controller exposes the contest service HTTP endpoints.
package controller

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"arbiter/internal/contest/model"
	"arbiter/internal/contest/service"
	judgesvc "arbiter/internal/judge/service"
	"arbiter/internal/leaderboard"
	"arbiter/pkg/utils/response"
)

// ContestController handles submissions, staff actions and leaderboards.
type ContestController struct {
	submissions *service.SubmissionService
	contests    *service.ContestService
	judge       *judgesvc.Service
	leaderboard *leaderboard.Service
	projection  *service.ProjectionService
}

func NewContestController(
	submissions *service.SubmissionService,
	contests *service.ContestService,
	judge *judgesvc.Service,
	board *leaderboard.Service,
	projection *service.ProjectionService,
) *ContestController {
	return &ContestController{
		submissions: submissions,
		contests:    contests,
		judge:       judge,
		leaderboard: board,
		projection:  projection,
	}
}

// Submit accepts a new submission and queues it for judging.
func (h *ContestController) Submit(c *gin.Context) {
	contestID, ok := pathID(c, "contestID")
	if !ok {
		return
	}
	var req SubmitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "Invalid request parameters")
		return
	}

	submission, err := h.submissions.Submit(c.Request.Context(), service.SubmitInput{
		ContestID:  contestID,
		ProblemID:  req.ProblemID,
		MemberID:   req.MemberID,
		LanguageID: req.LanguageID,
		SourceCode: req.SourceCode,
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, SubmitResponse{
		SubmissionID: submission.ID,
		Status:       string(submission.Status),
		CreatedAt:    submission.CreatedAt.UTC().Format(time.RFC3339),
	})
}

// GetSubmission returns a submission with its judging attempts.
func (h *ContestController) GetSubmission(c *gin.Context) {
	submissionID, ok := pathID(c, "submissionID")
	if !ok {
		return
	}
	submission, executions, err := h.submissions.Get(c.Request.Context(), submissionID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, SubmissionResponse{
		Submission: submission,
		Executions: executions,
	})
}

// Rerun queues a terminal submission for a fresh judging attempt.
func (h *ContestController) Rerun(c *gin.Context) {
	contestID, ok := pathID(c, "contestID")
	if !ok {
		return
	}
	submissionID, ok := pathID(c, "submissionID")
	if !ok {
		return
	}
	if err := h.judge.Enqueue(c.Request.Context(), contestID, submissionID); err != nil {
		response.Error(c, err)
		return
	}
	response.SuccessWithMessage(c, "submission queued", nil)
}

// ForceAnswer overrules a submission's recorded answer.
func (h *ContestController) ForceAnswer(c *gin.Context) {
	submissionID, ok := pathID(c, "submissionID")
	if !ok {
		return
	}
	var req ForceAnswerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "Invalid request parameters")
		return
	}
	if err := h.judge.ForceUpdateAnswer(c.Request.Context(), submissionID, model.Answer(req.Answer)); err != nil {
		response.Error(c, err)
		return
	}
	response.SuccessWithMessage(c, "answer updated", nil)
}

// Freeze freezes the public leaderboard now.
func (h *ContestController) Freeze(c *gin.Context) {
	contestID, ok := pathID(c, "contestID")
	if !ok {
		return
	}
	changed, err := h.contests.Freeze(c.Request.Context(), contestID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, FreezeResponse{Changed: changed})
}

// Unfreeze lifts the freeze.
func (h *ContestController) Unfreeze(c *gin.Context) {
	contestID, ok := pathID(c, "contestID")
	if !ok {
		return
	}
	changed, err := h.contests.Unfreeze(c.Request.Context(), contestID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, FreezeResponse{Changed: changed})
}

// ArmAutoFreeze reconciles the delayed freeze job with the contest's
// configured instant. Call it after staff move or clear autoFreezeAt.
func (h *ContestController) ArmAutoFreeze(c *gin.Context) {
	contestID, ok := pathID(c, "contestID")
	if !ok {
		return
	}
	if err := h.contests.ArmAutoFreeze(c.Request.Context(), contestID); err != nil {
		response.Error(c, err)
		return
	}
	response.SuccessWithMessage(c, "auto freeze reconciled", nil)
}

// GetLeaderboard returns the public snapshot, which hides post-freeze
// submissions while the contest is frozen.
func (h *ContestController) GetLeaderboard(c *gin.Context) {
	h.leaderboardResponse(c, false)
}

// GetStaffLeaderboard returns the full snapshot regardless of freeze.
func (h *ContestController) GetStaffLeaderboard(c *gin.Context) {
	h.leaderboardResponse(c, true)
}

func (h *ContestController) leaderboardResponse(c *gin.Context, bypassFreeze bool) {
	contestID, ok := pathID(c, "contestID")
	if !ok {
		return
	}
	snapshot, err := h.leaderboard.Get(c.Request.Context(), contestID, bypassFreeze)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, snapshot)
}

// ReportVerdict receives the judge worker's final verdict and projects it to
// spectators.
func (h *ContestController) ReportVerdict(c *gin.Context) {
	var event model.SubmissionUpdatedEvent
	if err := c.ShouldBindJSON(&event); err != nil {
		response.BadRequest(c, "Invalid request parameters")
		return
	}
	if err := h.projection.Apply(c.Request.Context(), event); err != nil {
		response.Error(c, err)
		return
	}
	response.SuccessWithMessage(c, "verdict applied", nil)
}

func pathID(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		response.BadRequest(c, "Invalid "+name)
		return 0, false
	}
	return id, true
}

// SubmitRequest defines the submission payload.
type SubmitRequest struct {
	ProblemID  int64  `json:"problem_id" binding:"required"`
	MemberID   int64  `json:"member_id" binding:"required"`
	LanguageID string `json:"language_id" binding:"required"`
	SourceCode string `json:"source_code" binding:"required"`
}

// SubmitResponse defines the submission response payload.
type SubmitResponse struct {
	SubmissionID int64  `json:"submission_id"`
	Status       string `json:"status"`
	CreatedAt    string `json:"created_at"`
}

// SubmissionResponse bundles a submission with its attempts.
type SubmissionResponse struct {
	Submission *model.Submission  `json:"submission"`
	Executions []*model.Execution `json:"executions"`
}

// ForceAnswerRequest defines the force-update payload.
type ForceAnswerRequest struct {
	Answer string `json:"answer" binding:"required"`
}

// FreezeResponse reports whether the call changed the freeze state.
type FreezeResponse struct {
	Changed bool `json:"changed"`
}
