package errors

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestStatusCodes(t *testing.T) {
	tests := []struct {
		err  *AppError
		want int
	}{
		{Validation("bad"), http.StatusBadRequest},
		{BadRequestWrap(nil, "bad"), http.StatusBadRequest},
		{New(CodeNotFound, "gone"), http.StatusNotFound},
		{Forbidden("no"), http.StatusForbidden},
		{RateLimit("slow down"), http.StatusTooManyRequests},
		{New(CodeServiceUnavail, "later"), http.StatusServiceUnavailable},
		{Timeout(nil), http.StatusGatewayTimeout},
		{Internal("oops"), http.StatusInternalServerError},
		{New("SOMETHING_ELSE", "?"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(string(tt.err.Code), func(t *testing.T) {
			if tt.err.StatusCode != tt.want {
				t.Errorf("StatusCode = %d, want %d", tt.err.StatusCode, tt.want)
			}
		})
	}
}

func TestAppError_Unwrap(t *testing.T) {
	cause := stderrors.New("root cause")
	err := Wrap(cause, CodeValidation, "invalid filter")

	if !stderrors.Is(err, cause) {
		t.Error("AppError should unwrap to its cause")
	}
	if got := err.Error(); got != "VALIDATION_ERROR: invalid filter (caused by: root cause)" {
		t.Errorf("Error() = %q", got)
	}
}

func TestWriteError(t *testing.T) {
	w := httptest.NewRecorder()
	appErr := Validation("invalid filter").WithDetails("start: not a date")

	WriteError(w, testLogger(), fmt.Errorf("decode: %w", appErr), "req-1")

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", w.Code, http.StatusBadRequest)
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("content-type = %q", ct)
	}

	var resp struct {
		Success bool `json:"success"`
		Error   struct {
			Code      string `json:"code"`
			Message   string `json:"message"`
			Details   string `json:"details"`
			RequestID string `json:"request_id"`
		} `json:"error"`
	}
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	if resp.Success {
		t.Error("success should be false")
	}
	if resp.Error.Code != "VALIDATION_ERROR" || resp.Error.Details != "start: not a date" || resp.Error.RequestID != "req-1" {
		t.Errorf("unexpected error body: %+v", resp.Error)
	}
}

func TestWriteError_PlainErrorIsInternal(t *testing.T) {
	w := httptest.NewRecorder()

	WriteError(w, testLogger(), stderrors.New("disk on fire"), "")

	if w.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want %d", w.Code, http.StatusInternalServerError)
	}

	var resp Envelope
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	if resp.Error.Message != "An unexpected error occurred" {
		t.Errorf("message = %q, should not leak the cause", resp.Error.Message)
	}
}

func TestResolve(t *testing.T) {
	errUnknown := stderrors.New("unknown view")
	rules := []Rule{{Match: Is(errUnknown), Code: CodeNotFound, Message: "Unknown view"}}

	tests := []struct {
		name    string
		err     error
		code    ErrorCode
		message string
		details string
	}{
		{"app error passes through", fmt.Errorf("wrapped: %w", Forbidden("no")), CodeForbidden, "no", ""},
		{"rule match", fmt.Errorf("view %q: %w", "x", errUnknown), CodeNotFound, "Unknown view", `view "x": unknown view`},
		{"deadline", fmt.Errorf("compute: %w", context.DeadlineExceeded), CodeTimeout, "Request timed out", ""},
		{"anything else", stderrors.New("boom"), CodeInternal, "An unexpected error occurred", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Resolve(tt.err, rules...)
			if got.Code != tt.code || got.Message != tt.message || got.Details != tt.details {
				t.Errorf("Resolve() = %s %q %q, want %s %q %q", got.Code, got.Message, got.Details, tt.code, tt.message, tt.details)
			}
			if got.StatusCode != tt.code.Status() {
				t.Errorf("StatusCode = %d, want %d", got.StatusCode, tt.code.Status())
			}
		})
	}
}

func TestWriteSuccessWithHeaders(t *testing.T) {
	w := httptest.NewRecorder()

	WriteSuccessWithHeaders(w, map[string]int{"rows": 3}, map[string]string{"Cache-Control": "no-cache"})

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", w.Code, http.StatusOK)
	}
	if cc := w.Header().Get("Cache-Control"); cc != "no-cache" {
		t.Errorf("cache-control = %q", cc)
	}

	var resp struct {
		Data    map[string]int `json:"data"`
		Success bool           `json:"success"`
	}
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	if !resp.Success || resp.Data["rows"] != 3 {
		t.Errorf("unexpected body: %+v", resp)
	}
}
