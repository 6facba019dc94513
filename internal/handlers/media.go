package handlers

import (
	"context"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"mockmate-backend/internal/models"
)

const maxMediaSize = 25 * 1024 * 1024 // 25MB

type mediaWriter interface {
	SaveMediaReference(ctx context.Context, m *models.MediaReference) error
	ListMediaReferences(ctx context.Context, sessionID uuid.UUID) ([]models.MediaReference, error)
}

type whiteboardAnalyzer interface {
	AnalyzeWhiteboard(ctx context.Context, id uuid.UUID, image []byte, mimeType string) (*models.WhiteboardAnalysis, error)
}

type MediaHandler struct {
	media       mediaWriter
	analyzer    whiteboardAnalyzer
	storagePath string
}

func NewMediaHandler(media mediaWriter, analyzer whiteboardAnalyzer, storagePath string) *MediaHandler {
	return &MediaHandler{media: media, analyzer: analyzer, storagePath: storagePath}
}

var modeForMime = []struct {
	prefix string
	mode   models.CommunicationMode
}{
	{"image/", models.ModeWhiteboard},
	{"audio/", models.ModeAudio},
	{"video/", models.ModeVideo},
}

func mediaMode(mimeType, declared string) (models.CommunicationMode, bool) {
	if declared == string(models.ModeScreenShare) && strings.HasPrefix(mimeType, "video/") {
		return models.ModeScreenShare, true
	}
	for _, m := range modeForMime {
		if strings.HasPrefix(mimeType, m.prefix) {
			return m.mode, true
		}
	}
	return "", false
}

// Upload stores one media artifact for a session and records a reference.
func (h *MediaHandler) Upload(w http.ResponseWriter, r *http.Request) {
	id, ok := sessionID(w, r)
	if !ok {
		return
	}

	if r.ContentLength > maxMediaSize {
		writeJSON(w, http.StatusRequestEntityTooLarge, errorResp("FILE_TOO_LARGE", "File size exceeds 25MB limit", r))
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxMediaSize)

	file, header, err := r.FormFile("file")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "No file provided", r))
		return
	}
	defer file.Close()

	buf := make([]byte, 512)
	n, _ := file.Read(buf)
	buf = buf[:n]

	mimeType := http.DetectContentType(buf)
	mode, allowed := mediaMode(mimeType, r.FormValue("mode"))
	if !allowed {
		writeJSON(w, http.StatusUnsupportedMediaType, errorResp("UNSUPPORTED_FORMAT", "File type not supported", r))
		return
	}

	file.Seek(0, io.SeekStart)

	fileID := uuid.New()
	path := filepath.Join("sessions", id.String(), fileID.String()+filepath.Ext(header.Filename))
	fullPath := filepath.Join(h.storagePath, path)
	if err := os.MkdirAll(filepath.Dir(fullPath), 0o755); err != nil {
		writeJSON(w, http.StatusInternalServerError, errorResp("INTERNAL_ERROR", "Failed to store file", r))
		return
	}

	dst, err := os.Create(fullPath)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, errorResp("INTERNAL_ERROR", "Failed to store file", r))
		return
	}
	written, err := io.Copy(dst, file)
	dst.Close()
	if err != nil {
		os.Remove(fullPath)
		writeJSON(w, http.StatusInternalServerError, errorResp("INTERNAL_ERROR", "Failed to store file", r))
		return
	}

	ref := &models.MediaReference{
		ID:        fileID,
		SessionID: id,
		Mode:      mode,
		Path:      path,
		MimeType:  mimeType,
		SizeBytes: written,
		CreatedAt: time.Now(),
	}
	if err := h.media.SaveMediaReference(r.Context(), ref); err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]interface{}{"media": ref})
}

func (h *MediaHandler) List(w http.ResponseWriter, r *http.Request) {
	id, ok := sessionID(w, r)
	if !ok {
		return
	}

	refs, err := h.media.ListMediaReferences(r.Context(), id)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"media": refs})
}

// AnalyzeWhiteboard accepts a whiteboard snapshot, stores it, and returns
// the structured analysis of its content.
func (h *MediaHandler) AnalyzeWhiteboard(w http.ResponseWriter, r *http.Request) {
	id, ok := sessionID(w, r)
	if !ok {
		return
	}

	if r.ContentLength > maxMediaSize {
		writeJSON(w, http.StatusRequestEntityTooLarge, errorResp("FILE_TOO_LARGE", "File size exceeds 25MB limit", r))
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxMediaSize)

	file, header, err := r.FormFile("image")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "No image provided", r))
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Failed to read image", r))
		return
	}

	mimeType := http.DetectContentType(data)
	if !strings.HasPrefix(mimeType, "image/") {
		writeJSON(w, http.StatusUnsupportedMediaType, errorResp("UNSUPPORTED_FORMAT", "Whiteboard snapshot must be an image", r))
		return
	}

	analysis, err := h.analyzer.AnalyzeWhiteboard(r.Context(), id, data, mimeType)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	// Keep a copy so the evaluation can count whiteboard artifacts later.
	fileID := uuid.New()
	path := filepath.Join("sessions", id.String(), fileID.String()+filepath.Ext(header.Filename))
	fullPath := filepath.Join(h.storagePath, path)
	if err := os.MkdirAll(filepath.Dir(fullPath), 0o755); err == nil {
		if writeErr := os.WriteFile(fullPath, data, 0o644); writeErr == nil {
			ref := &models.MediaReference{
				ID:        fileID,
				SessionID: id,
				Mode:      models.ModeWhiteboard,
				Path:      path,
				MimeType:  mimeType,
				SizeBytes: int64(len(data)),
				CreatedAt: time.Now(),
			}
			if saveErr := h.media.SaveMediaReference(r.Context(), ref); saveErr != nil {
				handleServiceError(w, r, saveErr)
				return
			}
		}
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"analysis": analysis})
}
