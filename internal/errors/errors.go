package errors

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

type ErrorCode string

const (
	CodeInternal       ErrorCode = "INTERNAL_ERROR"
	CodeValidation     ErrorCode = "VALIDATION_ERROR"
	CodeNotFound       ErrorCode = "NOT_FOUND"
	CodeBadRequest     ErrorCode = "BAD_REQUEST"
	CodeForbidden      ErrorCode = "FORBIDDEN"
	CodeRateLimit      ErrorCode = "RATE_LIMIT_EXCEEDED"
	CodeServiceUnavail ErrorCode = "SERVICE_UNAVAILABLE"
	CodeTimeout        ErrorCode = "REQUEST_TIMEOUT"
)

var statusByCode = map[ErrorCode]int{
	CodeValidation:     http.StatusBadRequest,
	CodeBadRequest:     http.StatusBadRequest,
	CodeNotFound:       http.StatusNotFound,
	CodeForbidden:      http.StatusForbidden,
	CodeRateLimit:      http.StatusTooManyRequests,
	CodeServiceUnavail: http.StatusServiceUnavailable,
	CodeTimeout:        http.StatusGatewayTimeout,
}

// Status is the HTTP status reported for code. Unknown codes are server errors.
func (c ErrorCode) Status() int {
	if s, ok := statusByCode[c]; ok {
		return s
	}
	return http.StatusInternalServerError
}

// AppError is the client-facing half of a failure. Cause stays server side.
type AppError struct {
	Code       ErrorCode `json:"code"`
	Message    string    `json:"message"`
	Details    string    `json:"details,omitempty"`
	StatusCode int       `json:"-"`
	Cause      error     `json:"-"`
	Timestamp  time.Time `json:"timestamp"`
	RequestID  string    `json:"request_id,omitempty"`
}

func (e *AppError) Error() string {
	msg := string(e.Code) + ": " + e.Message
	if e.Cause == nil {
		return msg
	}
	return fmt.Sprintf("%s (caused by: %v)", msg, e.Cause)
}

func (e *AppError) Unwrap() error { return e.Cause }

// WithDetails sets Details and returns e.
func (e *AppError) WithDetails(details string) *AppError {
	e.Details = details
	return e
}

func Wrap(err error, code ErrorCode, message string) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		StatusCode: code.Status(),
		Cause:      err,
		Timestamp:  time.Now().UTC(),
	}
}

func New(code ErrorCode, message string) *AppError { return Wrap(nil, code, message) }

func Validation(message string) *AppError { return New(CodeValidation, message) }
func Forbidden(message string) *AppError  { return New(CodeForbidden, message) }
func RateLimit(message string) *AppError  { return New(CodeRateLimit, message) }
func Internal(message string) *AppError   { return New(CodeInternal, message) }

func BadRequestWrap(err error, message string) *AppError {
	return Wrap(err, CodeBadRequest, message)
}

func Timeout(err error) *AppError { return Wrap(err, CodeTimeout, "Request timed out") }

// Rule classifies a domain error. The error text becomes the response details.
type Rule struct {
	Match   func(error) bool
	Code    ErrorCode
	Message string
}

// Is matches any error wrapping target.
func Is(target error) func(error) bool {
	return func(err error) bool { return stderrors.Is(err, target) }
}

// Resolve returns the AppError for err. An AppError in the chain wins, then the
// first matching rule, then deadline expiry. Anything else is internal and its
// text is not exposed.
func Resolve(err error, rules ...Rule) *AppError {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr
	}
	for _, rule := range rules {
		if rule.Match(err) {
			return Wrap(err, rule.Code, rule.Message).WithDetails(err.Error())
		}
	}
	if stderrors.Is(err, context.DeadlineExceeded) {
		return Timeout(err)
	}
	return Wrap(err, CodeInternal, "An unexpected error occurred")
}

// Envelope is the body of every JSON response.
type Envelope struct {
	Success bool      `json:"success"`
	Data    any       `json:"data,omitempty"`
	Error   *AppError `json:"error,omitempty"`
}

func encode(w http.ResponseWriter, status int, body Envelope) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	return json.NewEncoder(w).Encode(body)
}

// WriteError resolves err against rules and writes it as a failed envelope.
func WriteError(w http.ResponseWriter, logger *slog.Logger, err error, requestID string, rules ...Rule) {
	appErr := Resolve(err, rules...)
	appErr.RequestID = requestID

	if encErr := encode(w, appErr.StatusCode, Envelope{Error: appErr}); encErr != nil {
		logger.Error("failed to encode error response",
			"encode_error", encErr,
			"original_error", err,
			"request_id", requestID,
		)
		return
	}

	level := slog.LevelWarn
	if appErr.StatusCode >= http.StatusInternalServerError {
		level = slog.LevelError
	}
	logger.Log(context.Background(), level, "request failed",
		"error_code", appErr.Code,
		"error_message", appErr.Message,
		"status_code", appErr.StatusCode,
		"request_id", requestID,
		"cause", appErr.Cause,
	)
}

func WriteSuccess(w http.ResponseWriter, data any) {
	_ = encode(w, http.StatusOK, Envelope{Success: true, Data: data})
}

func WriteSuccessWithHeaders(w http.ResponseWriter, data any, headers map[string]string) {
	for key, value := range headers {
		w.Header().Set(key, value)
	}
	WriteSuccess(w, data)
}
