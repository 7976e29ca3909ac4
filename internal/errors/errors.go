// Package errors provides categorized errors shared by the ledger services and the HTTP layer.
package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"

	"github.com/gem-ledger/internal/types"
)

// ErrorCategory represents the category of an error
type ErrorCategory string

const (
	// CategoryUserInput represents user input errors (4xx)
	CategoryUserInput ErrorCategory = "user_input"
	// CategorySystem represents system errors (5xx)
	CategorySystem ErrorCategory = "system"
	// CategoryUpstream represents failures of external collaborators
	CategoryUpstream ErrorCategory = "upstream"
	// CategoryDatabase represents database errors
	CategoryDatabase ErrorCategory = "database"
	// CategoryValidation represents validation errors
	CategoryValidation ErrorCategory = "validation"
	// CategoryAuthorization represents authorization errors
	CategoryAuthorization ErrorCategory = "authorization"
	// CategoryNotFound represents not found errors
	CategoryNotFound ErrorCategory = "not_found"
	// CategoryConflict represents a race lost by the caller
	CategoryConflict ErrorCategory = "conflict"
	// CategoryRateLimit represents rate limit errors
	CategoryRateLimit ErrorCategory = "rate_limit"
)

// Error codes
const (
	CodeNotFound            = "NOT_FOUND"
	CodeAlreadyClaimed      = "ALREADY_CLAIMED"
	CodeAlreadyResolved     = "ALREADY_RESOLVED"
	CodeInsufficientFunds   = "INSUFFICIENT_FUNDS"
	CodeBelowMinimum        = "BELOW_MINIMUM"
	CodeInvalidAddress      = "INVALID_ADDRESS"
	CodeInvalidSettings     = "INVALID_SETTINGS"
	CodeAccountBanned       = "ACCOUNT_BANNED"
	CodeTooEarly            = "TOO_EARLY"
	CodeUpstreamUnavailable = "UPSTREAM_UNAVAILABLE"
	CodeMembershipRequired  = "MEMBERSHIP_REQUIRED"
	CodeInvalidParameter    = "INVALID_PARAMETER"
	CodeUnauthorized        = "UNAUTHORIZED"
	CodeForbidden           = "FORBIDDEN"
	CodeRateLimitExceeded   = "RATE_LIMIT_EXCEEDED"
	CodeDatabaseError       = "DATABASE_ERROR"
	CodeInternalError       = "INTERNAL_ERROR"
)

// Sentinels for errors.Is checks. Matching is by Code only.
var (
	ErrNotFound            = &CategorizedError{Code: CodeNotFound}
	ErrAlreadyClaimed      = &CategorizedError{Code: CodeAlreadyClaimed}
	ErrAlreadyResolved     = &CategorizedError{Code: CodeAlreadyResolved}
	ErrInsufficientFunds   = &CategorizedError{Code: CodeInsufficientFunds}
	ErrBelowMinimum        = &CategorizedError{Code: CodeBelowMinimum}
	ErrInvalidAddress      = &CategorizedError{Code: CodeInvalidAddress}
	ErrInvalidSettings     = &CategorizedError{Code: CodeInvalidSettings}
	ErrAccountBanned       = &CategorizedError{Code: CodeAccountBanned}
	ErrTooEarly            = &CategorizedError{Code: CodeTooEarly}
	ErrUpstreamUnavailable = &CategorizedError{Code: CodeUpstreamUnavailable}
	ErrMembershipRequired  = &CategorizedError{Code: CodeMembershipRequired}
	ErrInvalidParameter    = &CategorizedError{Code: CodeInvalidParameter}
	ErrForbidden           = &CategorizedError{Code: CodeForbidden}
)

// CategorizedError represents an error with category and HTTP status code
type CategorizedError struct {
	Category   ErrorCategory
	StatusCode int
	Code       string
	Message    string
	Details    map[string]interface{}
	Cause      error
}

// Error implements the error interface
func (e *CategorizedError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause
func (e *CategorizedError) Unwrap() error {
	return e.Cause
}

// Is matches any CategorizedError carrying the same code
func (e *CategorizedError) Is(target error) bool {
	t, ok := target.(*CategorizedError)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// ToServiceError converts to a ServiceError
func (e *CategorizedError) ToServiceError() *types.ServiceError {
	return &types.ServiceError{
		Code:    e.Code,
		Message: e.Message,
		Details: e.Details,
	}
}

// Consistency errors (a race lost by the caller)

// NewAlreadyClaimedError is returned when a (user, task) claim record already exists
func NewAlreadyClaimedError(accountID, taskID string) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryConflict,
		StatusCode: http.StatusConflict,
		Code:       CodeAlreadyClaimed,
		Message:    fmt.Sprintf("task %s already claimed", taskID),
		Details: map[string]interface{}{
			"accountId": accountID,
			"taskId":    taskID,
		},
	}
}

// NewAlreadyResolvedError is returned when a withdrawal has left PENDING
func NewAlreadyResolvedError(withdrawalID string, status types.WithdrawalStatus) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryConflict,
		StatusCode: http.StatusConflict,
		Code:       CodeAlreadyResolved,
		Message:    fmt.Sprintf("withdrawal %s already %s", withdrawalID, status),
		Details: map[string]interface{}{
			"withdrawalId": withdrawalID,
			"status":       status,
		},
	}
}

// User Input Errors (4xx)

// NewInsufficientFundsError creates an insufficient funds error
func NewInsufficientFundsError(balance, required int64) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryUserInput,
		StatusCode: http.StatusUnprocessableEntity,
		Code:       CodeInsufficientFunds,
		Message:    fmt.Sprintf("insufficient balance: have %d, need %d", balance, required),
		Details: map[string]interface{}{
			"balance":  balance,
			"required": required,
		},
	}
}

// NewBelowMinimumError creates a below-minimum withdrawal error
func NewBelowMinimumError(currency types.Currency, amount, minimum int64) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryValidation,
		StatusCode: http.StatusUnprocessableEntity,
		Code:       CodeBelowMinimum,
		Message:    fmt.Sprintf("minimum %s withdrawal is %d gems", currency, minimum),
		Details: map[string]interface{}{
			"currency": currency,
			"amount":   amount,
			"minimum":  minimum,
		},
	}
}

// NewInvalidAddressError creates an invalid address error
func NewInvalidAddressError(address string) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryUserInput,
		StatusCode: http.StatusBadRequest,
		Code:       CodeInvalidAddress,
		Message:    "destination address is required",
		Details: map[string]interface{}{
			"address": address,
		},
	}
}

// NewInvalidSettingsError reports the violated settings constraint
func NewInvalidSettingsError(field, reason string) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryValidation,
		StatusCode: http.StatusBadRequest,
		Code:       CodeInvalidSettings,
		Message:    fmt.Sprintf("invalid settings '%s': %s", field, reason),
		Details: map[string]interface{}{
			"field":  field,
			"reason": reason,
		},
	}
}

// NewInvalidParameterError creates an invalid parameter error
func NewInvalidParameterError(param string, reason string) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryValidation,
		StatusCode: http.StatusBadRequest,
		Code:       CodeInvalidParameter,
		Message:    fmt.Sprintf("invalid parameter '%s': %s", param, reason),
		Details: map[string]interface{}{
			"parameter": param,
			"reason":    reason,
		},
	}
}

// NewTooEarlyError is returned when a claim arrives before the dwell timer elapsed
func NewTooEarlyError(taskID string, remainingSeconds int64) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryUserInput,
		StatusCode: http.StatusTooEarly,
		Code:       CodeTooEarly,
		Message:    fmt.Sprintf("task %s dwell time not elapsed", taskID),
		Details: map[string]interface{}{
			"taskId":           taskID,
			"remainingSeconds": remainingSeconds,
		},
	}
}

// NewAccountBannedError creates an account banned error
func NewAccountBannedError(accountID string) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryAuthorization,
		StatusCode: http.StatusForbidden,
		Code:       CodeAccountBanned,
		Message:    "account is banned",
		Details: map[string]interface{}{
			"accountId": accountID,
		},
	}
}

// NewMembershipRequiredError is returned for earning operations before the membership gate passed
func NewMembershipRequiredError(accountID string) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryAuthorization,
		StatusCode: http.StatusForbidden,
		Code:       CodeMembershipRequired,
		Message:    "join all mandatory channels first",
		Details: map[string]interface{}{
			"accountId": accountID,
		},
	}
}

// NewUnauthorizedError creates an unauthorized error
func NewUnauthorizedError(message string) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryAuthorization,
		StatusCode: http.StatusUnauthorized,
		Code:       CodeUnauthorized,
		Message:    message,
	}
}

// NewForbiddenError creates a forbidden error
func NewForbiddenError(message string) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryAuthorization,
		StatusCode: http.StatusForbidden,
		Code:       CodeForbidden,
		Message:    message,
	}
}

// NewNotFoundError creates a not found error
func NewNotFoundError(resource string, id string) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryNotFound,
		StatusCode: http.StatusNotFound,
		Code:       CodeNotFound,
		Message:    fmt.Sprintf("%s not found: %s", resource, id),
		Details: map[string]interface{}{
			"resource": resource,
			"id":       id,
		},
	}
}

// NewRateLimitError creates a rate limit error
func NewRateLimitError(limit float64) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryRateLimit,
		StatusCode: http.StatusTooManyRequests,
		Code:       CodeRateLimitExceeded,
		Message:    "rate limit exceeded",
		Details: map[string]interface{}{
			"limit": limit,
		},
	}
}

// System Errors (5xx)

// NewInternalError creates an internal server error
func NewInternalError(message string, cause error) *CategorizedError {
	return &CategorizedError{
		Category:   CategorySystem,
		StatusCode: http.StatusInternalServerError,
		Code:       CodeInternalError,
		Message:    message,
		Cause:      cause,
	}
}

// NewDatabaseError creates a database error
func NewDatabaseError(operation string, cause error) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryDatabase,
		StatusCode: http.StatusInternalServerError,
		Code:       CodeDatabaseError,
		Message:    fmt.Sprintf("database error during %s", operation),
		Cause:      cause,
		Details: map[string]interface{}{
			"operation": operation,
		},
	}
}

// NewUpstreamUnavailableError wraps an identity/membership API failure
func NewUpstreamUnavailableError(upstream string, cause error) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryUpstream,
		StatusCode: http.StatusServiceUnavailable,
		Code:       CodeUpstreamUnavailable,
		Message:    fmt.Sprintf("upstream unavailable: %s", upstream),
		Cause:      cause,
		Details: map[string]interface{}{
			"upstream": upstream,
		},
	}
}

// Categorize categorizes an existing error
func Categorize(err error) *CategorizedError {
	if err == nil {
		return nil
	}

	// If already categorized (possibly wrapped), return as-is
	var catErr *CategorizedError
	if stderrors.As(err, &catErr) {
		return catErr
	}

	var svcErr *types.ServiceError
	if stderrors.As(err, &svcErr) {
		return categorizeServiceError(svcErr)
	}

	// Default to internal error
	return NewInternalError("unexpected error", err)
}

// categorizeServiceError maps a decoded ServiceError back onto a category
func categorizeServiceError(err *types.ServiceError) *CategorizedError {
	category, status := CategorySystem, http.StatusInternalServerError

	switch err.Code {
	case CodeNotFound:
		category, status = CategoryNotFound, http.StatusNotFound
	case CodeAlreadyClaimed, CodeAlreadyResolved:
		category, status = CategoryConflict, http.StatusConflict
	case CodeInsufficientFunds, CodeBelowMinimum:
		category, status = CategoryUserInput, http.StatusUnprocessableEntity
	case CodeInvalidAddress, CodeInvalidSettings, CodeInvalidParameter:
		category, status = CategoryValidation, http.StatusBadRequest
	case CodeAccountBanned, CodeMembershipRequired, CodeForbidden:
		category, status = CategoryAuthorization, http.StatusForbidden
	case CodeUnauthorized:
		category, status = CategoryAuthorization, http.StatusUnauthorized
	case CodeTooEarly:
		category, status = CategoryUserInput, http.StatusTooEarly
	case CodeRateLimitExceeded:
		category, status = CategoryRateLimit, http.StatusTooManyRequests
	case CodeUpstreamUnavailable:
		category, status = CategoryUpstream, http.StatusServiceUnavailable
	}

	return &CategorizedError{
		Category:   category,
		StatusCode: status,
		Code:       err.Code,
		Message:    err.Message,
		Details:    err.Details,
	}
}

// GetHTTPStatusCode returns the HTTP status code for an error
func GetHTTPStatusCode(err error) int {
	if catErr := Categorize(err); catErr != nil {
		return catErr.StatusCode
	}
	return http.StatusInternalServerError
}

// IsRetryable determines if an error is retryable
func IsRetryable(err error) bool {
	catErr := Categorize(err)
	if catErr == nil {
		return false
	}

	switch catErr.Category {
	case CategoryUpstream, CategoryDatabase, CategoryRateLimit:
		return true
	case CategorySystem:
		return catErr.StatusCode == http.StatusServiceUnavailable ||
			catErr.StatusCode == http.StatusGatewayTimeout
	default:
		return false
	}
}

// IsUserError determines if an error is a user error (4xx)
func IsUserError(err error) bool {
	catErr := Categorize(err)
	if catErr == nil {
		return false
	}

	return catErr.StatusCode >= 400 && catErr.StatusCode < 500
}

// IsSystemError determines if an error is a system error (5xx)
func IsSystemError(err error) bool {
	catErr := Categorize(err)
	if catErr == nil {
		return false
	}

	return catErr.StatusCode >= 500
}
