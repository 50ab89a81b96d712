package errors

import (
	"errors"
	"fmt"
	"time"
)

// ErrorCode identifies a class of application error.
type ErrorCode string

const (
	ErrCodeInternal   ErrorCode = "INTERNAL_ERROR"
	ErrCodeValidation ErrorCode = "VALIDATION_ERROR"

	// Giveaway lifecycle errors
	ErrCodeGiveawayNotFound         ErrorCode = "GIVEAWAY_NOT_FOUND"
	ErrCodeAlreadyEnded             ErrorCode = "ALREADY_ENDED"
	ErrCodeNotEnded                 ErrorCode = "NOT_ENDED"
	ErrCodeNotAWinner               ErrorCode = "NOT_A_WINNER"
	ErrCodeNoEligibleParticipants   ErrorCode = "NO_ELIGIBLE_PARTICIPANTS"
	ErrCodeInsufficientParticipants ErrorCode = "INSUFFICIENT_PARTICIPANTS"

	// Collaborator errors
	ErrCodeStore   ErrorCode = "STORE_ERROR"
	ErrCodeAdapter ErrorCode = "ADAPTER_ERROR"
)

// AppError is the typed error carried through the service and HTTP layers.
type AppError struct {
	Code      ErrorCode              `json:"code"`
	Message   string                 `json:"message"`
	Details   map[string]interface{} `json:"details,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
	RequestID string                 `json:"request_id,omitempty"`
	Cause     error                  `json:"-"`
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

// IsNotFound reports whether the error means an unknown giveaway.
func (e *AppError) IsNotFound() bool {
	return e.Code == ErrCodeGiveawayNotFound
}

// IsValidation reports whether the error was rejected before any state mutation.
func (e *AppError) IsValidation() bool {
	return e.Code == ErrCodeValidation
}

// IsPrecondition reports whether the error is a state-machine precondition
// violation or an impossible draw, as opposed to an infrastructure failure.
func (e *AppError) IsPrecondition() bool {
	switch e.Code {
	case ErrCodeAlreadyEnded, ErrCodeNotEnded, ErrCodeNotAWinner,
		ErrCodeNoEligibleParticipants, ErrCodeInsufficientParticipants:
		return true
	}
	return false
}

// IsInternal reports whether the error is an infrastructure failure whose
// details belong in logs, not in caller-facing messages.
func (e *AppError) IsInternal() bool {
	return e.Code == ErrCodeInternal || e.Code == ErrCodeStore || e.Code == ErrCodeAdapter
}

// WithDetail attaches a named value for logs and API responses.
func (e *AppError) WithDetail(key string, value interface{}) *AppError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// WithRequestID tags the error with the originating request.
func (e *AppError) WithRequestID(requestID string) *AppError {
	e.RequestID = requestID
	return e
}

// New creates a new application error.
func New(code ErrorCode, message string) *AppError {
	return &AppError{
		Code:      code,
		Message:   message,
		Timestamp: time.Now(),
	}
}

// Wrap attaches a cause to a new application error.
func Wrap(err error, code ErrorCode, message string) *AppError {
	appErr := New(code, message)
	appErr.Cause = err
	return appErr
}

// Wrapf is Wrap with a formatted message.
func Wrapf(err error, code ErrorCode, format string, args ...interface{}) *AppError {
	return Wrap(err, code, fmt.Sprintf(format, args...))
}

// Constructors for the errors the lifecycle engine produces.

func NewValidationError(field, reason string) *AppError {
	return New(ErrCodeValidation, fmt.Sprintf("Validation failed for field '%s': %s", field, reason)).
		WithDetail("field", field).
		WithDetail("reason", reason)
}

func NewGiveawayNotFoundError(giveawayID string) *AppError {
	return New(ErrCodeGiveawayNotFound, fmt.Sprintf("Giveaway not found: %s", giveawayID)).
		WithDetail("giveaway_id", giveawayID)
}

func NewAlreadyEndedError(giveawayID string) *AppError {
	return New(ErrCodeAlreadyEnded, fmt.Sprintf("Giveaway has already ended: %s", giveawayID)).
		WithDetail("giveaway_id", giveawayID)
}

func NewNotEndedError(giveawayID string) *AppError {
	return New(ErrCodeNotEnded, fmt.Sprintf("Giveaway has not ended yet: %s", giveawayID)).
		WithDetail("giveaway_id", giveawayID)
}

func NewNotAWinnerError(giveawayID, userID string) *AppError {
	return New(ErrCodeNotAWinner, fmt.Sprintf("User %s is not a winner of giveaway %s", userID, giveawayID)).
		WithDetail("giveaway_id", giveawayID).
		WithDetail("user_id", userID)
}

func NewNoEligibleParticipantsError(giveawayID string) *AppError {
	return New(ErrCodeNoEligibleParticipants, "No eligible participants left to draw from").
		WithDetail("giveaway_id", giveawayID)
}

// NewInsufficientParticipantsError reports the shortfall between the
// configured winner count and the eligible pool.
func NewInsufficientParticipantsError(giveawayID string, required, eligible int) *AppError {
	return New(ErrCodeInsufficientParticipants,
		fmt.Sprintf("Not enough eligible participants: need %d, only %d left", required, eligible)).
		WithDetail("giveaway_id", giveawayID).
		WithDetail("required", required).
		WithDetail("eligible", eligible).
		WithDetail("shortfall", required-eligible)
}

func NewStoreError(operation, giveawayID string, err error) *AppError {
	return Wrap(err, ErrCodeStore, fmt.Sprintf("Store operation failed: %s", operation)).
		WithDetail("operation", operation).
		WithDetail("giveaway_id", giveawayID)
}

func NewAdapterError(operation string, err error) *AppError {
	return Wrap(err, ErrCodeAdapter, fmt.Sprintf("Chat adapter operation failed: %s", operation)).
		WithDetail("operation", operation)
}

// AsAppError extracts an AppError from an error chain.
func AsAppError(err error) (*AppError, bool) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// HasCode reports whether err carries the given application error code.
func HasCode(err error, code ErrorCode) bool {
	if appErr, ok := AsAppError(err); ok {
		return appErr.Code == code
	}
	return false
}
