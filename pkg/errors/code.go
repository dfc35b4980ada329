package errors

// ErrorCode represents a unique error identifier
type ErrorCode int

// Error code ranges allocation:
// 10000-10999: System & Common errors
// 11000-11999: Queue & Messaging errors
// 12000-12999: Submission & Judge errors
// 13000-13999: Contest & Leaderboard errors
// 14000-14999: Realtime & Dispatch errors

const (
	// ========== System & Common Errors (10000-10999) ==========

	// Success
	Success ErrorCode = 10000

	// Generic errors (10000-10099)
	InternalServerError ErrorCode = 10001
	InvalidParams       ErrorCode = 10002
	NotFound            ErrorCode = 10003
	Unauthorized        ErrorCode = 10004
	Forbidden           ErrorCode = 10005
	TooManyRequests     ErrorCode = 10006
	ServiceUnavailable  ErrorCode = 10007
	Timeout             ErrorCode = 10008

	// Database errors (10100-10199)
	DatabaseError       ErrorCode = 10100
	RecordNotFound      ErrorCode = 10101
	RecordAlreadyExists ErrorCode = 10102
	TransactionFailed   ErrorCode = 10103
	VersionConflict     ErrorCode = 10104

	// Cache errors (10200-10299)
	CacheError     ErrorCode = 10200
	CacheMiss      ErrorCode = 10201
	CacheSetFailed ErrorCode = 10202

	// Storage errors (10300-10399)
	StorageError      ErrorCode = 10300
	AttachmentMissing ErrorCode = 10301

	// Auth errors (10400-10499)
	TokenExpired          ErrorCode = 10400
	TokenInvalid          ErrorCode = 10401
	TokenGenerationFailed ErrorCode = 10402

	// ========== Queue & Messaging Errors (11000-11999) ==========

	// Publish (11000-11099)
	PublishFailed ErrorCode = 11000
	EncodeFailed  ErrorCode = 11001

	// Consume (11100-11199)
	ConsumeFailed    ErrorCode = 11100
	DecodeFailed     ErrorCode = 11101
	RetriesExhausted ErrorCode = 11102
	DeadLetterFailed ErrorCode = 11103

	// ========== Submission & Judge Errors (12000-12999) ==========

	// Submission (12000-12099)
	SubmissionNotFound   ErrorCode = 12000
	SubmissionNotQueued  ErrorCode = 12001
	SubmissionNotRerunnable ErrorCode = 12002
	LanguageNotSupported ErrorCode = 12003
	AutoJudgeDisabled    ErrorCode = 12004

	// Judge execution (12100-12199)
	JudgeSystemError    ErrorCode = 12100
	CompilationError    ErrorCode = 12101
	RuntimeError        ErrorCode = 12102
	TimeLimitExceeded   ErrorCode = 12103
	MemoryLimitExceeded ErrorCode = 12104
	WrongAnswer         ErrorCode = 12105
	SandboxSetupFailed  ErrorCode = 12106

	// Verdict reporting (12200-12299)
	ReportFailed ErrorCode = 12200

	// ========== Contest & Leaderboard Errors (13000-13999) ==========

	// Contest (13000-13099)
	ContestNotFound   ErrorCode = 13000
	ContestNotStarted ErrorCode = 13001
	ContestEnded      ErrorCode = 13002

	// Leaderboard (13100-13199)
	LeaderboardNotBuilt  ErrorCode = 13100
	LeaderboardFrozen    ErrorCode = 13101
	FreezeAlreadyActive  ErrorCode = 13102
	SnapshotEncodeFailed ErrorCode = 13103

	// ========== Realtime & Dispatch Errors (14000-14999) ==========

	// Dispatch (14000-14099)
	DispatchFailed ErrorCode = 14000
	RoomInvalid    ErrorCode = 14001
)

// errorMessages maps error codes to their default English messages
var errorMessages = map[ErrorCode]string{
	// System & Common
	Success:             "Success",
	InternalServerError: "Internal server error",
	InvalidParams:       "Invalid parameters",
	NotFound:            "Resource not found",
	Unauthorized:        "Unauthorized access",
	Forbidden:           "Access forbidden",
	TooManyRequests:     "Too many requests, please try again later",
	ServiceUnavailable:  "Service temporarily unavailable",
	Timeout:             "Request timeout",

	// Database
	DatabaseError:       "Database operation failed",
	RecordNotFound:      "Record not found in database",
	RecordAlreadyExists: "Record already exists",
	TransactionFailed:   "Database transaction failed",
	VersionConflict:     "Record was modified concurrently",

	// Cache
	CacheError:     "Cache operation failed",
	CacheMiss:      "Cache miss",
	CacheSetFailed: "Failed to set cache",

	// Storage
	StorageError:      "Object storage operation failed",
	AttachmentMissing: "Attachment not found in object storage",

	// Auth
	TokenExpired:          "Token has expired",
	TokenInvalid:          "Invalid token",
	TokenGenerationFailed: "Failed to generate token",

	// Queue
	PublishFailed:    "Failed to publish message",
	EncodeFailed:     "Failed to encode message payload",
	ConsumeFailed:    "Failed to consume message",
	DecodeFailed:     "Failed to decode message payload",
	RetriesExhausted: "Message retries exhausted",
	DeadLetterFailed: "Failed to move message to dead-letter topic",

	// Submission
	SubmissionNotFound:      "Submission not found",
	SubmissionNotQueued:     "Submission is not queued for judging",
	SubmissionNotRerunnable: "Submission cannot be rerun in its current state",
	LanguageNotSupported:    "Programming language not supported",
	AutoJudgeDisabled:       "Automatic judging is disabled for this contest",

	// Judge execution
	JudgeSystemError:    "Judge system error",
	CompilationError:    "Compilation error",
	RuntimeError:        "Runtime error",
	TimeLimitExceeded:   "Time limit exceeded",
	MemoryLimitExceeded: "Memory limit exceeded",
	WrongAnswer:         "Wrong answer",
	SandboxSetupFailed:  "Failed to prepare sandbox workspace",

	// Reporting
	ReportFailed: "Failed to report verdict",

	// Contest
	ContestNotFound:   "Contest not found",
	ContestNotStarted: "Contest has not started yet",
	ContestEnded:      "Contest has ended",

	// Leaderboard
	LeaderboardNotBuilt:  "Leaderboard has not been built yet",
	LeaderboardFrozen:    "Leaderboard is frozen",
	FreezeAlreadyActive:  "Leaderboard freeze is already active",
	SnapshotEncodeFailed: "Failed to encode leaderboard snapshot",

	// Dispatch
	DispatchFailed: "Failed to dispatch realtime event",
	RoomInvalid:    "Invalid realtime room name",
}

// Message returns the default message for the error code
func (c ErrorCode) Message() string {
	if msg, ok := errorMessages[c]; ok {
		return msg
	}
	return "Unknown error"
}

// HTTPStatus returns the recommended HTTP status code for the error code
func (c ErrorCode) HTTPStatus() int {
	switch {
	case c == Success:
		return 200
	case c == Unauthorized, c == TokenExpired, c == TokenInvalid:
		return 401
	case c == Forbidden:
		return 403
	case c == NotFound, c == SubmissionNotFound, c == ContestNotFound, c == LeaderboardNotBuilt:
		return 404
	case c == VersionConflict, c == RecordAlreadyExists, c == SubmissionNotRerunnable:
		return 409
	case c == TooManyRequests:
		return 429
	case c == ServiceUnavailable:
		return 503
	case c == InvalidParams, c == LanguageNotSupported, c == RoomInvalid:
		return 400
	default:
		return 500
	}
}
