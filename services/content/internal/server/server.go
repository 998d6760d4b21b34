package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"spacey/internal/util"
	"spacey/pkg/domain"
	"spacey/services/content/internal/app"
)

const userIDHeader = "X-User-Id"

// Config wires required dependencies for the HTTP server.
type Config struct {
	App            *app.App
	MaxUploadBytes int64
}

// Server exposes HTTP endpoints for the content service.
type Server struct {
	app            *app.App
	mux            *http.ServeMux
	maxUploadBytes int64
}

// New constructs the server with routes configured.
func New(cfg Config) (*Server, error) {
	if cfg.App == nil {
		return nil, errors.New("server: app required")
	}
	maxUploadBytes := cfg.MaxUploadBytes
	if maxUploadBytes <= 0 {
		maxUploadBytes = 50 * 1024 * 1024
	}
	s := &Server{
		app:            cfg.App,
		mux:            http.NewServeMux(),
		maxUploadBytes: maxUploadBytes,
	}
	s.routes()
	return s, nil
}

// Router returns the configured handler.
func (s *Server) Router() http.Handler {
	return util.WithRequestID(util.WithRequestLog("content", util.WithSecurityHeaders(util.WithCORS(s.mux))))
}

func (s *Server) routes() {
	s.mux.HandleFunc("/healthz", s.handleHealth)

	s.mux.Handle("/content", s.withUser(s.handleContent))
	s.mux.Handle("/content/", s.withUser(s.handleContentByID))
	s.mux.Handle("/search", s.withUser(s.handleSearch))
	s.mux.Handle("/jobs/", s.withUser(s.handleJob))
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type userHandler func(http.ResponseWriter, *http.Request, string)

// withUser trusts the user id set by the upstream gateway.
func (s *Server) withUser(next userHandler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID := strings.TrimSpace(r.Header.Get(userIDHeader))
		if userID == "" {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		logger := util.LoggerFromContext(r.Context()).With("user_id", userID)
		next(w, r.WithContext(util.ContextWithLogger(r.Context(), logger)), userID)
	})
}

func (s *Server) handleContent(w http.ResponseWriter, r *http.Request, userID string) {
	switch r.Method {
	case http.MethodPost:
		s.handleSubmit(w, r, userID)
	case http.MethodGet:
		s.handleListContent(w, r, userID)
	default:
		methodNotAllowed(w)
	}
}

// /content/{id}, /content/{id}/annotations, /content/{id}/answer or /content/{id}/archive
func (s *Server) handleContentByID(w http.ResponseWriter, r *http.Request, userID string) {
	path := strings.TrimPrefix(r.URL.Path, "/content/")
	parts := strings.SplitN(path, "/", 2)
	id := parts[0]
	if id == "" {
		notFound(w, "not found")
		return
	}
	if len(parts) == 2 {
		switch parts[1] {
		case "annotations":
			s.handleAnnotate(w, r, userID, id)
		case "answer":
			s.handleAnswer(w, r, userID, id)
		case "archive":
			s.handleArchive(w, r, userID, id)
		default:
			notFound(w, "not found")
		}
		return
	}
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	content, err := s.app.GetContent(userID, id)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, content)
}

type submitRequest struct {
	Source string `json:"source"`
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request, userID string) {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUploadBytes)
	var src domain.Source
	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		if err := r.ParseMultipartForm(32 << 20); err != nil {
			writeUploadError(w, err, "invalid form data")
			return
		}
		file, _, err := r.FormFile("file")
		if err != nil {
			writeError(w, http.StatusBadRequest, "file is required (field: file)")
			return
		}
		defer file.Close()
		data, err := io.ReadAll(file)
		if err != nil {
			writeUploadError(w, err, "invalid form data")
			return
		}
		src = domain.SourceFromBytes(data)
	} else {
		var req submitRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeUploadError(w, err, "invalid JSON body")
			return
		}
		src = domain.SourceFromString(req.Source)
	}
	content, err := s.app.Submit(r.Context(), userID, src)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, content)
}

func (s *Server) handleListContent(w http.ResponseWriter, r *http.Request, userID string) {
	q := r.URL.Query()
	status, ok := parseStatus(q.Get("status"))
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid status")
		return
	}
	typ, ok := parseSourceType(q.Get("type"))
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid type")
		return
	}
	limit := 0
	if raw := strings.TrimSpace(q.Get("limit")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = n
	}
	items, err := s.app.ListContent(userID, status, typ, limit)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"items": items,
		"count": len(items),
	})
}

type annotationRequest struct {
	Quote   string `json:"quote"`
	Comment string `json:"comment"`
}

func (s *Server) handleAnnotate(w http.ResponseWriter, r *http.Request, userID, id string) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	var req annotationRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	content, err := s.app.Annotate(userID, id, req.Quote, req.Comment)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, content)
}

type answerRequest struct {
	Question string `json:"question"`
}

func (s *Server) handleAnswer(w http.ResponseWriter, r *http.Request, userID, id string) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	var req answerRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	answer, err := s.app.Answer(r.Context(), userID, id, req.Question)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, answer)
}

func (s *Server) handleArchive(w http.ResponseWriter, r *http.Request, userID, id string) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	url, err := s.app.ArchiveURL(r.Context(), userID, id)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"url": url})
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request, userID string) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	q := r.URL.Query()
	var types []domain.SourceType
	for _, raw := range strings.Split(q.Get("types"), ",") {
		if strings.TrimSpace(raw) == "" {
			continue
		}
		typ, ok := parseSourceType(raw)
		if !ok {
			writeError(w, http.StatusBadRequest, "invalid type")
			return
		}
		types = append(types, typ)
	}
	result, err := s.app.Search(r.Context(), userID, q.Get("query"), types)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleJob(w http.ResponseWriter, r *http.Request, userID string) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	id := strings.TrimPrefix(r.URL.Path, "/jobs/")
	if id == "" || strings.Contains(id, "/") {
		notFound(w, "not found")
		return
	}
	status, err := s.app.GetJob(r.Context(), userID, id)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

func methodNotAllowed(w http.ResponseWriter) {
	writeError(w, http.StatusMethodNotAllowed, "method not allowed")
}

func notFound(w http.ResponseWriter, msg string) {
	writeError(w, http.StatusNotFound, msg)
}

func parseStatus(raw string) (domain.ProcessingStatus, bool) {
	switch status := domain.ProcessingStatus(strings.ToLower(strings.TrimSpace(raw))); status {
	case "":
		return "", true
	case domain.StatusProcessing, domain.StatusProcessed, domain.StatusFailed:
		return status, true
	default:
		return "", false
	}
}

func parseSourceType(raw string) (domain.SourceType, bool) {
	if strings.TrimSpace(raw) == "" {
		return "", true
	}
	return domain.ParseSourceType(raw)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

type errorResponse struct {
	Error     string `json:"error"`
	Code      string `json:"code"`
	RequestID string `json:"requestId,omitempty"`
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{
		Error:     msg,
		Code:      errorCode(status, msg),
		RequestID: strings.TrimSpace(w.Header().Get("X-Request-Id")),
	})
}

func writeUploadError(w http.ResponseWriter, err error, msg string) {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) || strings.Contains(err.Error(), "request body too large") {
		writeError(w, http.StatusRequestEntityTooLarge, "file too large")
		return
	}
	writeError(w, http.StatusBadRequest, msg)
}

// writeAppError maps service errors to status codes. Unexpected errors are
// logged and reported without detail.
func writeAppError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, app.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, app.ErrForbidden):
		writeError(w, http.StatusForbidden, "forbidden")
	case errors.Is(err, app.ErrContentNotFound):
		notFound(w, "content not found")
	case errors.Is(err, app.ErrContentNotReady):
		writeError(w, http.StatusConflict, "content not ready")
	case errors.Is(err, app.ErrArchiveUnavailable):
		notFound(w, "archive unavailable")
	case errors.Is(err, app.ErrJobsUnavailable):
		writeError(w, http.StatusNotImplemented, "job status unavailable")
	case errors.Is(err, domain.ErrGeneration), errors.Is(err, domain.ErrQuery):
		util.LoggerFromContext(r.Context()).Error("content request failed", "path", r.URL.Path, "err", err)
		writeError(w, http.StatusBadGateway, "upstream model error")
	default:
		util.LoggerFromContext(r.Context()).Error("content request failed", "path", r.URL.Path, "err", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func errorCode(status int, msg string) string {
	message := strings.ToLower(strings.TrimSpace(msg))
	switch {
	case message == "unauthorized":
		return "AUTH_USER_REQUIRED"
	case message == "forbidden":
		return "CONTENT_FORBIDDEN"
	case message == "content not found":
		return "CONTENT_NOT_FOUND"
	case message == "content not ready":
		return "CONTENT_NOT_READY"
	case message == "archive unavailable":
		return "CONTENT_ARCHIVE_UNAVAILABLE"
	case message == "file too large":
		return "CONTENT_FILE_TOO_LARGE"
	case strings.Contains(message, "file is required"):
		return "CONTENT_FILE_REQUIRED"
	case message == "invalid form data":
		return "CONTENT_INVALID_UPLOAD_FORM"
	case message == "invalid status", message == "invalid type", message == "invalid limit":
		return "CONTENT_INVALID_FILTER"
	case message == "job status unavailable":
		return "JOB_STATUS_UNAVAILABLE"
	case message == "upstream model error":
		return "SYSTEM_UPSTREAM_ERROR"
	case message == "method not allowed":
		return "SYSTEM_METHOD_NOT_ALLOWED"
	case message == "not found":
		return "SYSTEM_NOT_FOUND"
	}

	switch status {
	case http.StatusBadRequest:
		return "CONTENT_INVALID_REQUEST"
	case http.StatusUnauthorized:
		return "AUTH_USER_REQUIRED"
	case http.StatusNotFound:
		return "CONTENT_NOT_FOUND"
	default:
		if status >= http.StatusInternalServerError {
			return "SYSTEM_INTERNAL_ERROR"
		}
		return "REQUEST_ERROR"
	}
}
