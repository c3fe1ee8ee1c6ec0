package capture

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/zombor/expense-capture/internal/preprocess"
	"github.com/zombor/expense-capture/internal/scanning"
)

// maxUploadSize bounds a captured file (high-resolution phone photos)
const maxUploadSize = int64(50 << 20)

// setCORSHeaders sets CORS headers on a response
func setCORSHeaders(w http.ResponseWriter) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
	w.Header().Set("Access-Control-Max-Age", "3600")
}

// writeJSON encodes v with the given status
func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Error encoding response", "error", err)
	}
}

// writeError writes a JSON error body
func writeError(w http.ResponseWriter, message string, code int) {
	writeJSON(w, code, map[string]string{"error": message})
}

// statusFor maps an error kind onto an HTTP status
func statusFor(err error) int {
	switch {
	case errors.Is(err, preprocess.ErrUnsupportedFormat):
		return http.StatusUnsupportedMediaType
	case errors.Is(err, preprocess.ErrDecodeFailure):
		return http.StatusUnprocessableEntity
	case errors.Is(err, ErrSessionNotFound), errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrInvalidTransition):
		return http.StatusConflict
	case errors.Is(err, ErrTaskRequired), errors.Is(err, ErrInvalidMode):
		return http.StatusBadRequest
	case errors.Is(err, ErrUpload), errors.Is(err, scanning.ErrExtraction):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// serviceError logs and writes err with its mapped status
func serviceError(w http.ResponseWriter, r *http.Request, err error) {
	code := statusFor(err)
	if code >= http.StatusInternalServerError {
		slog.Error("Request failed", "method", r.Method, "path", r.URL.Path, "error", err)
	}
	writeError(w, err.Error(), code)
}

// decodeBody decodes a JSON request body into v
func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, "Invalid request body", http.StatusBadRequest)
		return false
	}
	return true
}

// handleIndex serves the HTML interface
func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write(indexHTML)
}

// handleStartCapture creates a capture session for a task
func (s *Server) handleStartCapture(w http.ResponseWriter, r *http.Request) {
	var req struct {
		TaskID string `json:"task_id"`
	}
	if !decodeBody(w, r, &req) {
		return
	}

	view, err := s.service.StartCapture(req.TaskID)
	if err != nil {
		serviceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, view)
}

// handleGetCapture returns a capture session
func (s *Server) handleGetCapture(w http.ResponseWriter, r *http.Request) {
	view, err := s.service.GetSession(r.PathValue("id"))
	if err != nil {
		serviceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// handleDiscardCapture destroys a capture session
func (s *Server) handleDiscardCapture(w http.ResponseWriter, r *http.Request) {
	if err := s.service.Discard(r.PathValue("id")); err != nil {
		serviceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleSubmitImage handles the captured file upload
func (s *Server) handleSubmitImage(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadSize+(1<<20))
	if err := r.ParseMultipartForm(maxUploadSize); err != nil {
		slog.Error("Error parsing multipart form", "error", err)
		errorMsg := "Error parsing form"
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			errorMsg = "File is too large. Maximum size is 50MB. Please compress or resize your image."
		}
		writeError(w, errorMsg, http.StatusBadRequest)
		return
	}

	f, header, err := r.FormFile("file")
	if err != nil {
		errorMsg := "No file provided"
		if errors.Is(err, http.ErrMissingFile) {
			errorMsg = "No file was selected. Please choose a file to upload."
		}
		writeError(w, errorMsg, http.StatusBadRequest)
		return
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		slog.Error("Error reading file data", "error", err, "filename", header.Filename)
		writeError(w, "Error reading file. Please try again.", http.StatusInternalServerError)
		return
	}

	view, err := s.service.Submit(r.Context(), r.PathValue("id"), header.Filename, data, uploadContentType(header.Header.Get("Content-Type"), header.Filename))
	if err != nil {
		serviceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// uploadContentType prefers the declared type and falls back to the extension
func uploadContentType(declared, filename string) string {
	contentType := strings.ToLower(strings.TrimSpace(declared))
	if contentType != "" && contentType != "application/octet-stream" {
		return contentType
	}

	switch strings.ToLower(filepath.Ext(filename)) {
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".png":
		return "image/png"
	case ".gif":
		return "image/gif"
	case ".webp":
		return "image/webp"
	case ".heic":
		return "image/heic"
	case ".heif":
		return "image/heif"
	case ".pdf":
		return "application/pdf"
	case ".txt":
		return "text/plain"
	default:
		// Decode sniffs the bytes
		return "application/octet-stream"
	}
}

// handleImage serves one encoded variant of the capture
func (s *Server) handleImage(processed bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		data, err := s.service.Image(r.PathValue("id"), processed)
		if err != nil {
			serviceError(w, r, err)
			return
		}
		w.Header().Set("Content-Type", "image/jpeg")
		w.Header().Set("Cache-Control", "no-store")
		w.Write(data)
	}
}

// handleAnalyze starts a manual re-analyze
func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	view, err := s.service.Analyze(r.PathValue("id"))
	if err != nil {
		serviceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, view)
}

// handleUpdateForm stores manual form edits
func (s *Server) handleUpdateForm(w http.ResponseWriter, r *http.Request) {
	var form scanning.Form
	if !decodeBody(w, r, &form) {
		return
	}

	view, err := s.service.UpdateForm(r.PathValue("id"), form)
	if err != nil {
		serviceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// modeRequest is the body of both mode endpoints. Mode is required.
type modeRequest struct {
	Mode *preprocess.Mode `json:"mode"`
}

// decodeMode decodes a modeRequest and rejects a missing mode
func decodeMode(w http.ResponseWriter, r *http.Request) (preprocess.Mode, bool) {
	var req modeRequest
	if !decodeBody(w, r, &req) {
		return 0, false
	}
	if req.Mode == nil {
		writeError(w, "mode is required", http.StatusBadRequest)
		return 0, false
	}
	return *req.Mode, true
}

// handleSetMode changes the mode of a capture
func (s *Server) handleSetMode(w http.ResponseWriter, r *http.Request) {
	mode, ok := decodeMode(w, r)
	if !ok {
		return
	}

	view, err := s.service.SetMode(r.PathValue("id"), mode)
	if err != nil {
		serviceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// handleRetake returns the capture to Capturing
func (s *Server) handleRetake(w http.ResponseWriter, r *http.Request) {
	view, err := s.service.Retake(r.PathValue("id"))
	if err != nil {
		serviceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// handleConfirm saves the capture as an expense
func (s *Server) handleConfirm(w http.ResponseWriter, r *http.Request) {
	var form scanning.Form
	if !decodeBody(w, r, &form) {
		return
	}

	expense, err := s.service.Confirm(r.Context(), r.PathValue("id"), form)
	if err != nil {
		serviceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, expense)
}

// handleRegion returns the detected content box
func (s *Server) handleRegion(w http.ResponseWriter, r *http.Request) {
	box, err := s.service.DetectRegion(r.PathValue("id"))
	if err != nil {
		serviceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, box)
}

// handleListExpenses returns a list of all expenses
func (s *Server) handleListExpenses(w http.ResponseWriter, r *http.Request) {
	expenses, err := s.service.ListExpenses()
	if err != nil {
		serviceError(w, r, err)
		return
	}

	// Ensure we always return an array, not nil
	if expenses == nil {
		expenses = []*Expense{}
	}
	writeJSON(w, http.StatusOK, expenses)
}

// handleGetExpense returns a single expense
func (s *Server) handleGetExpense(w http.ResponseWriter, r *http.Request) {
	expense, err := s.service.GetExpense(r.PathValue("id"))
	if err != nil {
		serviceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, expense)
}

// handleGetPreferredMode returns the mode used by new captures
func (s *Server) handleGetPreferredMode(w http.ResponseWriter, r *http.Request) {
	mode := s.service.PreferredMode()
	writeJSON(w, http.StatusOK, modeRequest{Mode: &mode})
}

// handleSetPreferredMode stores the mode used by new captures
func (s *Server) handleSetPreferredMode(w http.ResponseWriter, r *http.Request) {
	mode, ok := decodeMode(w, r)
	if !ok {
		return
	}
	if err := s.service.SetPreferredMode(mode); err != nil {
		serviceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, modeRequest{Mode: &mode})
}

// handleFile serves a stored image
func (s *Server) handleFile(w http.ResponseWriter, r *http.Request) {
	data, err := s.files.Get(r.PathValue("path"))
	if err != nil {
		if errors.Is(err, ErrNotFound) || errors.Is(err, errInvalidPath) {
			writeError(w, "File not found", http.StatusNotFound)
			return
		}
		serviceError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", http.DetectContentType(data))
	w.Write(data)
}
