package errors

// ErrorCode represents a unique error identifier
type ErrorCode int

// Error code ranges allocation:
// 10000-10999: System & Common errors
// 11000-11999: Storage & staging errors
// 12000-12999: Submission & Judge errors

const (
	// ========== System & Common Errors (10000-10999) ==========

	// Success
	Success ErrorCode = 10000

	// Generic errors (10000-10099)
	InternalServerError ErrorCode = 10001
	InvalidParams       ErrorCode = 10002
	NotFound            ErrorCode = 10003
	ServiceUnavailable  ErrorCode = 10004
	Timeout             ErrorCode = 10005

	// Cache errors (10200-10299)
	CacheError ErrorCode = 10200

	// Validation errors (10300-10399)
	ValidationFailed ErrorCode = 10300

	// ========== Storage & Staging Errors (11000-11999) ==========

	StorageError      ErrorCode = 11000
	FileNotFound      ErrorCode = 11001
	FileHashMismatch  ErrorCode = 11002
	FileStagingFailed ErrorCode = 11003

	// ========== Submission & Judge Errors (12000-12999) ==========

	// Submission (12000-12099)
	SubmissionNotFound   ErrorCode = 12000
	ProblemTypeUnknown   ErrorCode = 12001
	LanguageNotSupported ErrorCode = 12002

	// Judge (12100-12199)
	JudgeConfigurationError ErrorCode = 12100
	JudgeSystemError        ErrorCode = 12101
	JudgeEngineError        ErrorCode = 12102
)

// errorMessages maps error codes to their default English messages
var errorMessages = map[ErrorCode]string{
	Success:             "Success",
	InternalServerError: "Internal server error",
	InvalidParams:       "Invalid parameters",
	NotFound:            "Resource not found",
	ServiceUnavailable:  "Service temporarily unavailable",
	Timeout:             "Request timeout",

	CacheError: "Cache operation failed",

	ValidationFailed: "Validation failed",

	StorageError:      "Object storage operation failed",
	FileNotFound:      "File not found in storage",
	FileHashMismatch:  "File content hash mismatch",
	FileStagingFailed: "Failed to stage file locally",

	SubmissionNotFound:   "Submission not found",
	ProblemTypeUnknown:   "Unknown problem type",
	LanguageNotSupported: "Programming language not supported",

	JudgeConfigurationError: "Invalid judge configuration",
	JudgeSystemError:        "Judge system error",
	JudgeEngineError:        "Execution engine request failed",
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
	case c == NotFound, c == SubmissionNotFound, c == FileNotFound:
		return 404
	case c == InvalidParams, c == ValidationFailed, c == ProblemTypeUnknown, c == JudgeConfigurationError:
		return 400
	case c == ServiceUnavailable:
		return 503
	default:
		return 500
	}
}
