package importer

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/google/uuid"

	"github.com/rpattn/custimport/internal/domain"
	"github.com/rpattn/custimport/internal/repository"
)

const maxUploadMemory = 4 << 20

// Handler exposes the import pipeline over HTTP. Tenant and user identity
// arrive as headers set by the gateway in front of this service.
type Handler struct {
	service *Service
}

// NewHandler creates the HTTP handler for the pipeline service.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// Register wires every route onto the mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/imports", h.upload)
	mux.HandleFunc("GET /api/imports", h.listBatches)
	mux.HandleFunc("GET /api/imports/{id}", h.getBatch)
	mux.HandleFunc("GET /api/imports/{id}/preview", h.preview)
	mux.HandleFunc("GET /api/imports/{id}/suggestions", h.suggestions)
	mux.HandleFunc("POST /api/imports/{id}/mapping", h.applyMapping)
	mux.HandleFunc("POST /api/imports/{id}/validate", h.validateBatch)
	mux.HandleFunc("POST /api/imports/{id}/commit", h.commit)
	mux.HandleFunc("POST /api/imports/{id}/rollback", h.rollback)
	mux.HandleFunc("POST /api/imports/{id}/cancel", h.cancel)
	mux.HandleFunc("GET /api/imports/{id}/errors.csv", h.errorReport)
	mux.HandleFunc("GET /api/templates", h.listTemplates)
	mux.HandleFunc("GET /api/templates/{id}", h.getTemplate)
	mux.HandleFunc("DELETE /api/templates/{id}", h.deleteTemplate)
}

type identity struct {
	TenantID uuid.UUID
	UserID   uuid.UUID
}

func requestIdentity(r *http.Request) (identity, error) {
	tenantID, err := uuid.Parse(r.Header.Get("X-Tenant-ID"))
	if err != nil {
		return identity{}, fmt.Errorf("missing or invalid X-Tenant-ID header")
	}
	userID, err := uuid.Parse(r.Header.Get("X-User-ID"))
	if err != nil {
		return identity{}, fmt.Errorf("missing or invalid X-User-ID header")
	}
	return identity{TenantID: tenantID, UserID: userID}, nil
}

func pathID(r *http.Request) (uuid.UUID, error) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid id in path")
	}
	return id, nil
}

func (h *Handler) upload(w http.ResponseWriter, r *http.Request) {
	ident, err := requestIdentity(r)
	if err != nil {
		writeError(w, http.StatusUnauthorized, err)
		return
	}
	if err := r.ParseMultipartForm(maxUploadMemory); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid multipart request: %w", err))
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("a file part named %q is required", "file"))
		return
	}
	defer file.Close()

	payload, err := io.ReadAll(file)
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("failed to read upload: %w", err))
		return
	}

	result, err := h.service.Upload(r.Context(), UploadRequest{
		TenantID:   ident.TenantID,
		UploadedBy: ident.UserID,
		FileName:   header.Filename,
		Payload:    payload,
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, result)
}

func (h *Handler) listBatches(w http.ResponseWriter, r *http.Request) {
	ident, err := requestIdentity(r)
	if err != nil {
		writeError(w, http.StatusUnauthorized, err)
		return
	}

	filter := repository.BatchFilter{
		Limit:  queryInt(r, "limit", 20),
		Offset: queryInt(r, "offset", 0),
	}
	if raw := r.URL.Query().Get("status"); raw != "" {
		status := domain.BatchStatus(raw)
		if !status.Valid() {
			writeError(w, http.StatusBadRequest, fmt.Errorf("unknown status %q", raw))
			return
		}
		filter.Status = &status
	}

	batches, total, err := h.service.ListBatches(r.Context(), ident.TenantID, filter)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"batches": batches,
		"total":   total,
	})
}

func (h *Handler) getBatch(w http.ResponseWriter, r *http.Request) {
	ident, err := requestIdentity(r)
	if err != nil {
		writeError(w, http.StatusUnauthorized, err)
		return
	}
	batchID, err := pathID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	batch, preview, err := h.service.GetBatch(r.Context(), ident.TenantID, batchID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"batch":   batch,
		"preview": preview,
	})
}

func (h *Handler) preview(w http.ResponseWriter, r *http.Request) {
	ident, err := requestIdentity(r)
	if err != nil {
		writeError(w, http.StatusUnauthorized, err)
		return
	}
	batchID, err := pathID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	errorsOnly := r.URL.Query().Get("errors_only") == "true"
	rows, total, err := h.service.GetPreviewPage(r.Context(), ident.TenantID, batchID, errorsOnly,
		queryInt(r, "limit", 0), queryInt(r, "offset", 0))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"rows":  rows,
		"total": total,
	})
}

func (h *Handler) suggestions(w http.ResponseWriter, r *http.Request) {
	ident, err := requestIdentity(r)
	if err != nil {
		writeError(w, http.StatusUnauthorized, err)
		return
	}
	batchID, err := pathID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	suggestions, err := h.service.SuggestMapping(r.Context(), ident.TenantID, batchID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"suggestions": suggestions})
}

type applyMappingPayload struct {
	Columns          []domain.ColumnMapping `json:"columns"`
	TemplateID       *uuid.UUID             `json:"template_id,omitempty"`
	SaveTemplateName string                 `json:"save_template_name,omitempty"`
}

func (h *Handler) applyMapping(w http.ResponseWriter, r *http.Request) {
	ident, err := requestIdentity(r)
	if err != nil {
		writeError(w, http.StatusUnauthorized, err)
		return
	}
	batchID, err := pathID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	var payload applyMappingPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid request body: %w", err))
		return
	}

	config := domain.MappingConfig{Columns: payload.Columns}
	if payload.TemplateID != nil {
		template, err := h.service.GetTemplate(r.Context(), ident.TenantID, *payload.TemplateID)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		config = template.Config
	}

	result, err := h.service.ApplyMapping(r.Context(), ApplyMappingRequest{
		TenantID:         ident.TenantID,
		Actor:            ident.UserID,
		BatchID:          batchID,
		Config:           config,
		SaveTemplateName: payload.SaveTemplateName,
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *Handler) validateBatch(w http.ResponseWriter, r *http.Request) {
	ident, err := requestIdentity(r)
	if err != nil {
		writeError(w, http.StatusUnauthorized, err)
		return
	}
	batchID, err := pathID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	summary, err := h.service.Validate(r.Context(), ident.TenantID, ident.UserID, batchID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

type commitPayload struct {
	ExcludedRows []uuid.UUID                           `json:"excluded_rows,omitempty"`
	Edits        map[uuid.UUID]map[domain.Field]string `json:"edits,omitempty"`
	DryRun       bool                                  `json:"dry_run,omitempty"`
}

func (h *Handler) commit(w http.ResponseWriter, r *http.Request) {
	ident, err := requestIdentity(r)
	if err != nil {
		writeError(w, http.StatusUnauthorized, err)
		return
	}
	batchID, err := pathID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	var payload commitPayload
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			writeError(w, http.StatusBadRequest, fmt.Errorf("invalid request body: %w", err))
			return
		}
	}

	result, err := h.service.Commit(r.Context(), CommitRequest{
		TenantID:     ident.TenantID,
		Actor:        ident.UserID,
		BatchID:      batchID,
		ExcludedRows: payload.ExcludedRows,
		Edits:        payload.Edits,
		DryRun:       payload.DryRun,
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

type rollbackPayload struct {
	Reason string `json:"reason"`
}

func (h *Handler) rollback(w http.ResponseWriter, r *http.Request) {
	ident, err := requestIdentity(r)
	if err != nil {
		writeError(w, http.StatusUnauthorized, err)
		return
	}
	batchID, err := pathID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	var payload rollbackPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid request body: %w", err))
		return
	}

	result, err := h.service.Rollback(r.Context(), ident.TenantID, ident.UserID, batchID, payload.Reason)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *Handler) cancel(w http.ResponseWriter, r *http.Request) {
	ident, err := requestIdentity(r)
	if err != nil {
		writeError(w, http.StatusUnauthorized, err)
		return
	}
	batchID, err := pathID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	if err := h.service.Cancel(r.Context(), ident.TenantID, ident.UserID, batchID); err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": domain.BatchStatusCancelled})
}

func (h *Handler) errorReport(w http.ResponseWriter, r *http.Request) {
	ident, err := requestIdentity(r)
	if err != nil {
		writeError(w, http.StatusUnauthorized, err)
		return
	}
	batchID, err := pathID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", "import-errors-"+batchID.String()+".csv"))
	if err := h.service.WriteErrorReport(r.Context(), ident.TenantID, batchID, w); err != nil {
		// Headers may already be out; nothing better to do than log-free bail.
		writeServiceError(w, err)
	}
}

func (h *Handler) listTemplates(w http.ResponseWriter, r *http.Request) {
	ident, err := requestIdentity(r)
	if err != nil {
		writeError(w, http.StatusUnauthorized, err)
		return
	}
	templates, err := h.service.ListTemplates(r.Context(), ident.TenantID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"templates": templates})
}

func (h *Handler) getTemplate(w http.ResponseWriter, r *http.Request) {
	ident, err := requestIdentity(r)
	if err != nil {
		writeError(w, http.StatusUnauthorized, err)
		return
	}
	templateID, err := pathID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	template, err := h.service.GetTemplate(r.Context(), ident.TenantID, templateID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, template)
}

func (h *Handler) deleteTemplate(w http.ResponseWriter, r *http.Request) {
	ident, err := requestIdentity(r)
	if err != nil {
		writeError(w, http.StatusUnauthorized, err)
		return
	}
	templateID, err := pathID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := h.service.DeleteTemplate(r.Context(), ident.TenantID, templateID); err != nil {
		writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func queryInt(r *http.Request, key string, def int) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return def
	}
	value, err := strconv.Atoi(raw)
	if err != nil || value < 0 {
		return def
	}
	return value
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

// writeServiceError maps domain sentinel errors to HTTP statuses.
func writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusNotFound, err)
	case errors.Is(err, domain.ErrInvalidState), errors.Is(err, domain.ErrAlreadyRolledBack):
		writeError(w, http.StatusConflict, err)
	case errors.Is(err, domain.ErrInvalidFormat),
		errors.Is(err, domain.ErrTooLarge),
		errors.Is(err, domain.ErrTooManyRows),
		errors.Is(err, domain.ErrDuplicateTemplate):
		writeError(w, http.StatusBadRequest, err)
	default:
		writeError(w, http.StatusInternalServerError, err)
	}
}
