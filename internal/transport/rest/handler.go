// Package rest exposes the assistant, the batch history and the conversation log over HTTP.
package rest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"strings"
	"time"

	"github.com/abgdnv/shopassist/internal/assistant"
	"github.com/abgdnv/shopassist/internal/conversation"
	"github.com/abgdnv/shopassist/internal/snapshot"
	"github.com/abgdnv/shopassist/pkg/web"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
)

const defaultMaxUpload = 10 << 20

type Asker interface {
	Ask(ctx context.Context, req assistant.Request) string
}

// BatchReader is the read side of the snapshot store.
type BatchReader interface {
	Batches(ctx context.Context, limit int32) ([]snapshot.BatchSummary, error)
	Pending(ctx context.Context, batchID string) ([]snapshot.Record, error)
}

// TurnReader lists recorded conversation turns.
type TurnReader interface {
	Recent(ctx context.Context, limit int32) ([]conversation.Turn, error)
}

type Handler struct {
	assistant Asker
	batches   BatchReader
	turns     TurnReader
	maxUpload int64
	validate  *validator.Validate
	logger    *slog.Logger
}

// AskRequest is the JSON form of an operator request.
type AskRequest struct {
	Request  string     `json:"request" validate:"required,max=4000"`
	ApplyAt  *time.Time `json:"apply_at"`
	RevertAt *time.Time `json:"revert_at"`
}

type AskResponse struct {
	Answer string `json:"answer"`
}

// NewHandler creates the handler. maxUpload bounds the request body, a non-positive value means 10 MiB.
// The turns route is only registered when turns is not nil.
func NewHandler(a Asker, batches BatchReader, turns TurnReader, maxUpload int64, logger *slog.Logger) *Handler {
	if maxUpload <= 0 {
		maxUpload = defaultMaxUpload
	}
	return &Handler{
		assistant: a,
		batches:   batches,
		turns:     turns,
		maxUpload: maxUpload,
		validate:  validator.New(),
		logger:    logger.With("component", "rest"),
	}
}

// RegisterRoutes registers the API routes. authMiddleware guards them when not nil.
func (h *Handler) RegisterRoutes(r chi.Router, authMiddleware func(http.Handler) http.Handler) {
	r.Group(func(r chi.Router) {
		if authMiddleware != nil {
			r.Use(authMiddleware)
		}
		r.Post("/api/v1/assistant/ask", h.Ask)
		if h.turns != nil {
			r.Get("/api/v1/assistant/turns", h.ListTurns)
		}
		r.Route("/api/v1/batches", func(r chi.Router) {
			r.Get("/", h.ListBatches)
			r.Get("/{id}/pending", h.PendingSnapshots)
		})
	})
	r.Get("/healthz", h.HealthCheck)
}

// Ask runs one assistant turn. It accepts multipart forms with an optional file, or JSON.
func (h *Handler) Ask(w http.ResponseWriter, r *http.Request) {
	mLogger := h.loggerWithReqID(r)
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUpload)

	req, err := h.parseAsk(r)
	if err != nil {
		if web.RespondValidation(w, mLogger, err) {
			return
		}
		mLogger.WarnContext(r.Context(), "Invalid ask request", "error", err)
		status, message := http.StatusBadRequest, "Invalid request body"
		var reqErr *requestError
		if errors.As(err, &reqErr) {
			status, message = reqErr.status, reqErr.message
		}
		web.RespondError(w, mLogger, status, message)
		return
	}
	req.RequestedBy = web.Subject(r.Context())

	mLogger.DebugContext(r.Context(), "Received assistant request", "attachment", req.Attachment != nil)
	answer := h.assistant.Ask(r.Context(), *req)
	web.RespondJSON(w, mLogger, http.StatusOK, AskResponse{Answer: answer})
}

func (h *Handler) parseAsk(r *http.Request) (*assistant.Request, error) {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "multipart/form-data" {
		return h.parseMultipart(r)
	}

	var body AskRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		return nil, badRequest(err, "Invalid request body")
	}
	body.Request = strings.TrimSpace(body.Request)
	if err := h.validate.Struct(body); err != nil {
		return nil, err
	}
	return &assistant.Request{Prompt: body.Request, ApplyAt: body.ApplyAt, RevertAt: body.RevertAt}, nil
}

func (h *Handler) parseMultipart(r *http.Request) (*assistant.Request, error) {
	if err := r.ParseMultipartForm(h.maxUpload); err != nil {
		return nil, badRequest(err, "Invalid multipart form")
	}
	body := AskRequest{Request: strings.TrimSpace(r.FormValue("request"))}
	var err error
	if body.ApplyAt, err = parseTime(r.FormValue("apply_at")); err != nil {
		return nil, badRequest(err, "Invalid apply_at, expected RFC3339")
	}
	if body.RevertAt, err = parseTime(r.FormValue("revert_at")); err != nil {
		return nil, badRequest(err, "Invalid revert_at, expected RFC3339")
	}
	if err := h.validate.Struct(body); err != nil {
		return nil, err
	}

	req := &assistant.Request{Prompt: body.Request, ApplyAt: body.ApplyAt, RevertAt: body.RevertAt}
	file, header, err := r.FormFile("file")
	switch {
	case errors.Is(err, http.ErrMissingFile):
		return req, nil
	case err != nil:
		return nil, badRequest(err, "Invalid file upload")
	}
	defer func() { _ = file.Close() }()
	content, err := io.ReadAll(file)
	if err != nil {
		return nil, badRequest(err, "Invalid file upload")
	}
	req.Attachment = &assistant.Attachment{Name: header.Filename, Content: content}
	return req, nil
}

func parseTime(value string) (*time.Time, error) {
	if value == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// requestError is a malformed request with the status and message to answer with.
type requestError struct {
	status  int
	message string
	cause   error
}

func (e *requestError) Error() string {
	return fmt.Sprintf("%s: %v", e.message, e.cause)
}

func (e *requestError) Unwrap() error {
	return e.cause
}

func badRequest(cause error, message string) error {
	status := http.StatusBadRequest
	var tooLarge *http.MaxBytesError
	if errors.As(cause, &tooLarge) {
		status, message = http.StatusRequestEntityTooLarge, "Request body too large"
	}
	return &requestError{status: status, message: message, cause: cause}
}

// ListBatches returns the most recent batches.
func (h *Handler) ListBatches(w http.ResponseWriter, r *http.Request) {
	mLogger := h.loggerWithReqID(r)
	limit, ok := web.ParseQueryInt(r, w, mLogger, "limit", 20, web.Between(1, 100))
	if !ok {
		return
	}
	list, err := h.batches.Batches(r.Context(), limit)
	if err != nil {
		mLogger.ErrorContext(r.Context(), "Error listing batches", "error", err)
		web.RespondError(w, mLogger, http.StatusInternalServerError, "Failed to list batches")
		return
	}
	mLogger.DebugContext(r.Context(), "Successfully listed batches", "count", len(list))
	web.RespondJSON(w, mLogger, http.StatusOK, list)
}

// PendingSnapshots returns the snapshots a revert of the batch would restore.
func (h *Handler) PendingSnapshots(w http.ResponseWriter, r *http.Request) {
	mLogger := h.loggerWithReqID(r)
	id := chi.URLParam(r, "id")
	if strings.TrimSpace(id) == "" {
		web.RespondError(w, mLogger, http.StatusBadRequest, "Batch id is required")
		return
	}
	pending, err := h.batches.Pending(r.Context(), id)
	if err != nil {
		mLogger.ErrorContext(r.Context(), "Error reading pending snapshots", "batch_id", id, "error", err)
		web.RespondError(w, mLogger, http.StatusInternalServerError, fmt.Sprintf("Failed to read batch %s", id))
		return
	}
	web.RespondJSON(w, mLogger, http.StatusOK, pending)
}

// ListTurns returns the most recent questions and answers, newest first.
func (h *Handler) ListTurns(w http.ResponseWriter, r *http.Request) {
	mLogger := h.loggerWithReqID(r)
	limit, ok := web.ParseQueryInt(r, w, mLogger, "limit", 20, web.Between(1, 100))
	if !ok {
		return
	}
	turns, err := h.turns.Recent(r.Context(), limit)
	if err != nil {
		mLogger.ErrorContext(r.Context(), "Error listing turns", "error", err)
		web.RespondError(w, mLogger, http.StatusInternalServerError, "Failed to list conversation turns")
		return
	}
	web.RespondJSON(w, mLogger, http.StatusOK, turns)
}

// HealthCheck is a simple health check endpoint.
func (h *Handler) HealthCheck(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
}

func (h *Handler) loggerWithReqID(r *http.Request) *slog.Logger {
	return h.logger.With("request_id", middleware.GetReqID(r.Context()))
}
