package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// ErrorCode represents a standardized error code
type ErrorCode string

const (
	// Request errors (400xx)
	ErrInvalidRequest   ErrorCode = "40001"
	ErrValidationFailed ErrorCode = "40002"
	ErrInvalidDateRange ErrorCode = "40003"
	ErrMissingParameter ErrorCode = "40004"

	// Authentication errors (401xx)
	ErrUnauthorized       ErrorCode = "40100"
	ErrInvalidCredentials ErrorCode = "40101"
	ErrTokenExpired       ErrorCode = "40102"
	ErrMalformedIdentity  ErrorCode = "40104"

	// Authorization errors (403xx)
	ErrForbidden        ErrorCode = "40301"
	ErrInsufficientRole ErrorCode = "40302"

	// Resource errors (404xx)
	ErrNotFound     ErrorCode = "40400"
	ErrTeamNotFound ErrorCode = "40401"
	ErrUserNotFound ErrorCode = "40402"
	ErrRunNotFound  ErrorCode = "40403"

	// Server errors (500xx)
	ErrInternalServer     ErrorCode = "50001"
	ErrServiceUnavailable ErrorCode = "50301"
)

// APIError represents a standardized API error
type APIError struct {
	Code       ErrorCode `json:"code"`
	Message    string    `json:"message"`
	Details    any       `json:"details,omitempty"`
	Timestamp  string    `json:"timestamp,omitempty"`
	Path       string    `json:"path,omitempty"`
	Method     string    `json:"method,omitempty"`
	HTTPStatus int       `json:"-"`
}

// Error implements the error interface
func (e *APIError) Error() string {
	return e.Message
}

// ErrorResponse represents the error response format
type ErrorResponse struct {
	Error         APIError `json:"error"`
	RequestID     string   `json:"request_id"`
	CorrelationID string   `json:"correlation_id,omitempty"`
}

// NewErrorResponse stamps err with request context for rendering
func NewErrorResponse(err *APIError, requestID, correlationID, path, method string) ErrorResponse {
	e := *err
	e.Timestamp = time.Now().UTC().Format(time.RFC3339)
	e.Path = path
	e.Method = method
	if e.HTTPStatus == 0 {
		e.HTTPStatus = GetHTTPStatusFromCode(e.Code)
	}
	return ErrorResponse{
		Error:         e,
		RequestID:     requestID,
		CorrelationID: correlationID,
	}
}

// GetHTTPStatusFromCode derives the HTTP status from the first three digits of a code
func GetHTTPStatusFromCode(code ErrorCode) int {
	if len(code) < 3 {
		return http.StatusInternalServerError
	}
	status, err := strconv.Atoi(string(code[:3]))
	if err != nil || status < 400 || status > 599 {
		return http.StatusInternalServerError
	}
	return status
}

// Common errors
var (
	ErrUnauthorizedError = &APIError{
		Code:       ErrUnauthorized,
		Message:    "Authentication required",
		HTTPStatus: http.StatusUnauthorized,
	}

	ErrInvalidCredentialsError = &APIError{
		Code:       ErrInvalidCredentials,
		Message:    "Invalid email or password",
		HTTPStatus: http.StatusUnauthorized,
	}

	ErrTokenExpiredError = &APIError{
		Code:       ErrTokenExpired,
		Message:    "Token has expired",
		HTTPStatus: http.StatusUnauthorized,
	}

	ErrNotFoundError = &APIError{
		Code:       ErrNotFound,
		Message:    "Resource not found",
		HTTPStatus: http.StatusNotFound,
	}

	ErrInternalServerError = &APIError{
		Code:       ErrInternalServer,
		Message:    "Internal server error",
		HTTPStatus: http.StatusInternalServerError,
	}

	ErrStoreUnavailableError = &APIError{
		Code:       ErrServiceUnavailable,
		Message:    "Analytics store temporarily unavailable",
		HTTPStatus: http.StatusServiceUnavailable,
	}
)

// NewValidationError creates a validation error with details
func NewValidationError(details any) *APIError {
	return &APIError{
		Code:       ErrValidationFailed,
		Message:    "Validation failed",
		Details:    details,
		HTTPStatus: http.StatusBadRequest,
	}
}

// NewInvalidRequestError creates an invalid request error
func NewInvalidRequestError(message string) *APIError {
	return &APIError{
		Code:       ErrInvalidRequest,
		Message:    message,
		HTTPStatus: http.StatusBadRequest,
	}
}

// NewInsufficientRoleError reports a role gate failure
func NewInsufficientRoleError(required []string) *APIError {
	return &APIError{
		Code:       ErrInsufficientRole,
		Message:    "Access denied. Required role: " + strings.Join(required, " or "),
		Details:    map[string]any{"required_roles": required},
		HTTPStatus: http.StatusForbidden,
	}
}

// Kind classifies failures raised by the analytics engine
type Kind int

const (
	KindMalformedIdentity Kind = iota + 1
	KindForbidden
	KindNotFound
	KindInvalidRange
)

func (k Kind) String() string {
	switch k {
	case KindMalformedIdentity:
		return "malformed identity"
	case KindForbidden:
		return "forbidden"
	case KindNotFound:
		return "not found"
	case KindInvalidRange:
		return "invalid range"
	default:
		return "unknown"
	}
}

// DomainError carries the scope or identifier a failure is about
type DomainError struct {
	Kind   Kind
	Scope  string
	ID     string
	Detail string
}

func (e *DomainError) Error() string {
	msg := e.Kind.String()
	if e.Scope != "" {
		msg += ": " + e.Scope
		if e.ID != "" {
			msg += " " + e.ID
		}
	}
	if e.Detail != "" {
		msg += " (" + e.Detail + ")"
	}
	return msg
}

// ErrStoreUnavailable is wrapped by the record store when it refuses work
var ErrStoreUnavailable = stderrors.New("record store unavailable")

// MalformedIdentity reports a missing or uncoercible identity claim
func MalformedIdentity(claim, reason string) error {
	return &DomainError{Kind: KindMalformedIdentity, Scope: "claim", ID: claim, Detail: reason}
}

// Forbidden reports an access decision of DENY for scope/id
func Forbidden(scope, id string) error {
	return &DomainError{Kind: KindForbidden, Scope: scope, ID: id}
}

// NotFound reports a referenced entity that does not exist
func NotFound(entity, id string) error {
	return &DomainError{Kind: KindNotFound, Scope: entity, ID: id}
}

// InvalidRange reports an unparsable or inverted date window
func InvalidRange(value, reason string) error {
	return &DomainError{Kind: KindInvalidRange, Scope: "date", ID: value, Detail: reason}
}

// IsKind reports whether err is a DomainError of kind k
func IsKind(err error, k Kind) bool {
	var de *DomainError
	return stderrors.As(err, &de) && de.Kind == k
}

// IsForbidden reports whether err is an access denial
func IsForbidden(err error) bool { return IsKind(err, KindForbidden) }

// IsNotFound reports whether err is a missing entity
func IsNotFound(err error) bool { return IsKind(err, KindNotFound) }

// FromError maps any error onto the API error it renders as
func FromError(err error) *APIError {
	var apiErr *APIError
	if stderrors.As(err, &apiErr) {
		return apiErr
	}

	var de *DomainError
	if !stderrors.As(err, &de) {
		if stderrors.Is(err, ErrStoreUnavailable) {
			return ErrStoreUnavailableError
		}
		return ErrInternalServerError
	}

	switch de.Kind {
	case KindMalformedIdentity:
		return &APIError{
			Code:       ErrMalformedIdentity,
			Message:    fmt.Sprintf("Malformed identity: claim %q %s", de.ID, de.Detail),
			Details:    map[string]string{"claim": de.ID},
			HTTPStatus: http.StatusUnauthorized,
		}
	case KindForbidden:
		if de.Scope == "role" {
			return NewInsufficientRoleError(strings.Split(de.ID, ","))
		}
		return &APIError{
			Code:       ErrForbidden,
			Message:    "Access denied",
			Details:    map[string]string{"scope": de.Scope, "id": de.ID},
			HTTPStatus: http.StatusForbidden,
		}
	case KindNotFound:
		code := ErrNotFound
		switch de.Scope {
		case "team":
			code = ErrTeamNotFound
		case "user":
			code = ErrUserNotFound
		case "run":
			code = ErrRunNotFound
		}
		return &APIError{
			Code:       code,
			Message:    fmt.Sprintf("%s not found: %s", de.Scope, de.ID),
			Details:    map[string]string{"entity": de.Scope, "id": de.ID},
			HTTPStatus: http.StatusNotFound,
		}
	case KindInvalidRange:
		return &APIError{
			Code:       ErrInvalidDateRange,
			Message:    fmt.Sprintf("Invalid date %q: %s", de.ID, de.Detail),
			Details:    map[string]string{"value": de.ID},
			HTTPStatus: http.StatusBadRequest,
		}
	}
	return ErrInternalServerError
}
