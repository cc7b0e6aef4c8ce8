package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors for the domain layer.
var (
	ErrInvalidInput     = fmt.Errorf("invalid input")
	ErrToolNotFound     = fmt.Errorf("tool not found")
	ErrMaxIterations    = fmt.Errorf("agent reached max iterations")
	ErrSessionNotFound  = fmt.Errorf("session not found")
	ErrConfigLoad       = fmt.Errorf("failed to load configuration")
	ErrNoPendingAction  = fmt.Errorf("no pending action for this session")

	// Resilience errors.
	ErrRateLimit       = fmt.Errorf("rate limit exceeded")
	ErrContextOverflow = fmt.Errorf("context window exceeded")
	ErrAuthInvalid     = fmt.Errorf("authentication failed")
	ErrProviderError   = fmt.Errorf("provider error")
	ErrToolFailure     = fmt.Errorf("tool execution failed")

	// Embedding / retrieval errors.
	ErrEmbeddingFailed = fmt.Errorf("embedding generation failed")
	ErrRetrievalStore  = fmt.Errorf("retrieval store operation failed")
	ErrRetrievalQuery  = fmt.Errorf("retrieval query failed")

	// Mail / calendar backend errors.
	ErrMailUnavailable     = fmt.Errorf("mail backend unavailable")
	ErrCalendarUnavailable = fmt.Errorf("calendar backend unavailable")
)

// DomainError wraps a sentinel error with context.
type DomainError struct {
	Op     string // operation name (e.g., "Tool.Execute")
	Err    error  // underlying sentinel or wrapped error
	Detail string // human-readable detail
}

func (e *DomainError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s: %s: %s", e.Op, e.Detail, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Err)
}

func (e *DomainError) Unwrap() error { return e.Err }

// NewDomainError creates a new DomainError.
func NewDomainError(op string, err error, detail string) *DomainError {
	return &DomainError{Op: op, Err: err, Detail: detail}
}

// WrapOp adds operation context to an error using fmt.Errorf wrapping.
// Returns nil if err is nil, enabling idiomatic use: return domain.WrapOp("op", err)
func WrapOp(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", op, err)
}

// IsRetryableError reports whether err is a transient error that may succeed
// on retry. Provider errors cover 5xx responses, which are transient by
// definition of the status class.
func IsRetryableError(err error) bool {
	return errors.Is(err, ErrRateLimit) ||
		errors.Is(err, ErrContextOverflow) ||
		errors.Is(err, ErrProviderError)
}

// ErrorCode is a machine-parseable error category for monitoring and alerting.
type ErrorCode string

// Error codes. Every sentinel error maps to exactly one code.
const (
	CodeUnknown             ErrorCode = "UNKNOWN"
	CodeInvalidInput        ErrorCode = "INVALID_INPUT"
	CodeToolNotFound        ErrorCode = "TOOL_NOT_FOUND"
	CodeToolFailure         ErrorCode = "TOOL_FAILURE"
	CodeMaxIterations       ErrorCode = "MAX_ITERATIONS"
	CodeSessionNotFound     ErrorCode = "SESSION_NOT_FOUND"
	CodeConfigLoad          ErrorCode = "CONFIG_LOAD"
	CodeNoPendingAction     ErrorCode = "NO_PENDING_ACTION"
	CodeRateLimit           ErrorCode = "RATE_LIMIT"
	CodeContextOverflow     ErrorCode = "CONTEXT_OVERFLOW"
	CodeAuthInvalid         ErrorCode = "AUTH_INVALID"
	CodeProviderError       ErrorCode = "PROVIDER_ERROR"
	CodeEmbeddingFailed     ErrorCode = "EMBEDDING_FAILED"
	CodeRetrievalStore      ErrorCode = "RETRIEVAL_STORE"
	CodeRetrievalQuery      ErrorCode = "RETRIEVAL_QUERY"
	CodeMailUnavailable     ErrorCode = "MAIL_UNAVAILABLE"
	CodeCalendarUnavailable ErrorCode = "CALENDAR_UNAVAILABLE"
)

// errorCodeMap maps sentinel errors to their machine-parseable codes.
var errorCodeMap = map[error]ErrorCode{
	ErrInvalidInput:        CodeInvalidInput,
	ErrToolNotFound:        CodeToolNotFound,
	ErrToolFailure:         CodeToolFailure,
	ErrMaxIterations:       CodeMaxIterations,
	ErrSessionNotFound:     CodeSessionNotFound,
	ErrConfigLoad:          CodeConfigLoad,
	ErrNoPendingAction:     CodeNoPendingAction,
	ErrRateLimit:           CodeRateLimit,
	ErrContextOverflow:     CodeContextOverflow,
	ErrAuthInvalid:         CodeAuthInvalid,
	ErrProviderError:       CodeProviderError,
	ErrEmbeddingFailed:     CodeEmbeddingFailed,
	ErrRetrievalStore:      CodeRetrievalStore,
	ErrRetrievalQuery:      CodeRetrievalQuery,
	ErrMailUnavailable:     CodeMailUnavailable,
	ErrCalendarUnavailable: CodeCalendarUnavailable,
}

// ErrorCodeOf returns the machine-parseable error code for the given error.
// It unwraps DomainError and uses errors.Is to match sentinel errors.
// Returns CodeUnknown if no matching sentinel is found.
func ErrorCodeOf(err error) ErrorCode {
	if err == nil {
		return CodeUnknown
	}

	// Fast path: direct sentinel lookup.
	if code, ok := errorCodeMap[err]; ok {
		return code
	}

	var de *DomainError
	if errors.As(err, &de) {
		if code, ok := errorCodeMap[de.Err]; ok {
			return code
		}
	}

	// Walk the error chain with errors.Is.
	for sentinel, code := range errorCodeMap {
		if errors.Is(err, sentinel) {
			return code
		}
	}

	return CodeUnknown
}

// Code returns the ErrorCode for this DomainError's underlying sentinel.
func (e *DomainError) Code() ErrorCode {
	if code, ok := errorCodeMap[e.Err]; ok {
		return code
	}
	return CodeUnknown
}
