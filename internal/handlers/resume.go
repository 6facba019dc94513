package handlers

import (
	"io"
	"net/http"

	"mockmate-backend/internal/models"
)

const maxResumeSize = 10 * 1024 * 1024 // 10MB

type resumeParser interface {
	ProfileFromFile(filename string, data []byte) (*models.ResumeProfile, error)
}

type ResumeHandler struct {
	resumes resumeParser
}

func NewResumeHandler(resumes resumeParser) *ResumeHandler {
	return &ResumeHandler{resumes: resumes}
}

// Parse extracts a structured candidate profile from an uploaded resume.
// The profile is returned to the caller, who includes it in the session
// config when creating an interview.
func (h *ResumeHandler) Parse(w http.ResponseWriter, r *http.Request) {
	if r.ContentLength > maxResumeSize {
		writeJSON(w, http.StatusRequestEntityTooLarge, errorResp("FILE_TOO_LARGE", "File size exceeds 10MB limit", r))
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxResumeSize)

	file, header, err := r.FormFile("file")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "No file provided", r))
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Failed to read file", r))
		return
	}

	profile, err := h.resumes.ProfileFromFile(header.Filename, data)
	if err != nil {
		writeJSON(w, http.StatusUnsupportedMediaType, errorResp("UNSUPPORTED_FORMAT", err.Error(), r))
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"profile": profile})
}
