package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"mockmate-backend/internal/models"
	"mockmate-backend/internal/services"
)

// ─── Error Mapping Tests ───

func TestHandleServiceError_StatusCodes(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{
			"not found",
			&services.NotFoundError{Message: "Session not found"},
			http.StatusNotFound, "NOT_FOUND",
		},
		{
			"illegal transition",
			&services.StateTransitionError{Current: models.SessionCompleted, Requested: models.SessionPaused},
			http.StatusConflict, "INVALID_STATE",
		},
		{
			"validation",
			&services.ValidationError{Fields: map[string]string{"email": "Email is required"}},
			http.StatusBadRequest, "VALIDATION_ERROR",
		},
		{
			"unauthorized",
			&services.UnauthorizedError{Message: "Invalid email or password"},
			http.StatusUnauthorized, "UNAUTHORIZED",
		},
		{
			"provider exhausted",
			&services.ProviderError{Provider: "gemini", Model: "gemini-2.5-flash", Operation: "process_response", Attempts: 3, Err: errors.New("timeout")},
			http.StatusBadGateway, "PROVIDER_ERROR",
		},
		{
			"persistence",
			&services.PersistenceError{Op: "save session", Err: errors.New("connection refused")},
			http.StatusInternalServerError, "PERSISTENCE_ERROR",
		},
		{
			"wrapped provider error",
			&services.PlatformError{Component: "coordinator", Operation: "submit_response", Err: &services.ProviderError{Provider: "gemini", Attempts: 3, Err: errors.New("timeout")}},
			http.StatusBadGateway, "PROVIDER_ERROR",
		},
		{
			"unknown",
			errors.New("boom"),
			http.StatusInternalServerError, "INTERNAL_ERROR",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rr := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodGet, "/api/v1/sessions", nil)

			handleServiceError(rr, req, tc.err)

			if rr.Code != tc.wantStatus {
				t.Errorf("Expected status %d, got %d", tc.wantStatus, rr.Code)
			}

			var resp models.ErrorResponse
			if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
				t.Fatalf("Failed to decode response: %v", err)
			}
			if resp.Error.Code != tc.wantCode {
				t.Errorf("Expected error code %q, got %q", tc.wantCode, resp.Error.Code)
			}
		})
	}
}

func TestHandleServiceError_ValidationFields(t *testing.T) {
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/register", nil)

	handleServiceError(rr, req, &services.ValidationError{Fields: map[string]string{
		"email":    "Email is required",
		"password": "Password must be at least 8 characters",
	}})

	var resp models.ErrorResponse
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}

	if resp.Error.Fields["email"] != "Email is required" {
		t.Errorf("Expected email field error, got %q", resp.Error.Fields["email"])
	}
	if resp.Error.Fields["password"] == "" {
		t.Error("Expected password field error to be present")
	}
}

// ─── Media Mode Detection Tests ───

func TestMediaMode(t *testing.T) {
	tests := []struct {
		name     string
		mimeType string
		declared string
		want     models.CommunicationMode
		allowed  bool
	}{
		{"png is whiteboard", "image/png", "", models.ModeWhiteboard, true},
		{"jpeg is whiteboard", "image/jpeg", "", models.ModeWhiteboard, true},
		{"mp3 is audio", "audio/mpeg", "", models.ModeAudio, true},
		{"mp4 is video", "video/mp4", "", models.ModeVideo, true},
		{"declared screen share", "video/mp4", "screen_share", models.ModeScreenShare, true},
		{"screen share needs video", "image/png", "screen_share", models.ModeWhiteboard, true},
		{"pdf rejected", "application/pdf", "", "", false},
		{"text rejected", "text/plain; charset=utf-8", "", "", false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			mode, allowed := mediaMode(tc.mimeType, tc.declared)
			if allowed != tc.allowed {
				t.Fatalf("Expected allowed=%v, got %v", tc.allowed, allowed)
			}
			if allowed && mode != tc.want {
				t.Errorf("Expected mode %q, got %q", tc.want, mode)
			}
		})
	}
}

// ─── JSON Response Tests ───

func TestWriteJSON(t *testing.T) {
	rr := httptest.NewRecorder()

	writeJSON(rr, http.StatusCreated, map[string]interface{}{"message": "Success"})

	if rr.Code != http.StatusCreated {
		t.Errorf("Expected status 201, got %d", rr.Code)
	}
	if rr.Header().Get("Content-Type") != "application/json" {
		t.Errorf("Expected Content-Type 'application/json', got %q", rr.Header().Get("Content-Type"))
	}

	var result map[string]interface{}
	if err := json.NewDecoder(rr.Body).Decode(&result); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if result["message"] != "Success" {
		t.Errorf("Expected message 'Success', got %v", result["message"])
	}
}
