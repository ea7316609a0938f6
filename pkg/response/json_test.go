package response

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/fkhayef/villagebank/pkg/apperror"
)

func TestFromError(t *testing.T) {
	tests := []struct {
		name        string
		err         error
		wantStatus  int
		wantCode    string
		wantMessage string
	}{
		{"unauthorized", apperror.Unauthorized("Authorization header required"), http.StatusUnauthorized, "UNAUTHORIZED", "Authorization header required"},
		{"forbidden", apperror.Forbidden("Only the borrower can pay this loan"), http.StatusForbidden, "FORBIDDEN", "Only the borrower can pay this loan"},
		{"not found wrapped", fmt.Errorf("vote: %w", apperror.NotFound("Request not found")), http.StatusNotFound, "NOT_FOUND", "Request not found"},
		{"validation", apperror.Validation("Loan amount cannot exceed twice your total contributions"), http.StatusUnprocessableEntity, "VALIDATION_FAILED", "Loan amount cannot exceed twice your total contributions"},
		{"conflict", apperror.Conflict("Request must be approved first"), http.StatusConflict, "CONFLICT", "Request must be approved first"},
		{"internal", errors.New("pq: connection refused"), http.StatusInternalServerError, "INTERNAL_ERROR", "Something went wrong"},
		{"retryable", fmt.Errorf("%w: pq: deadlock detected", apperror.New(apperror.KindRetryable, "Please retry")), http.StatusServiceUnavailable, "CONCURRENT_UPDATE", "Please retry"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodPost, "/api/v1/groups", nil)

			FromError(rec, req, tt.err)

			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			var body APIResponse
			if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if body.Success {
				t.Error("expected success=false")
			}
			if body.Error == nil || body.Error.Code != tt.wantCode || body.Error.Message != tt.wantMessage {
				t.Errorf("error = %+v, want %s %q", body.Error, tt.wantCode, tt.wantMessage)
			}
		})
	}
}

func TestFromErrorAsksForRetry(t *testing.T) {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/groups", nil)

	FromError(rec, req, apperror.New(apperror.KindRetryable, "Please retry"))

	if got := rec.Header().Get("Retry-After"); got != "1" {
		t.Errorf("Retry-After = %q, want 1", got)
	}
}

func TestJSONSetsSuccess(t *testing.T) {
	rec := httptest.NewRecorder()
	JSON(rec, http.StatusCreated, map[string]string{"id": "abc"})

	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q", ct)
	}
	var body struct {
		Success bool              `json:"success"`
		Data    map[string]string `json:"data"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !body.Success || body.Data["id"] != "abc" {
		t.Errorf("body = %+v", body)
	}
}
