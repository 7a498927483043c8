package api

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"learning-assistant/internal/models"
	"learning-assistant/internal/parser"
	"learning-assistant/internal/rag"
	"learning-assistant/internal/retrieval"
)

const Version = "1.0.0"

type Settings struct {
	Provider      string
	MaxUploadSize int64
	// IngestTimeout bounds fetching, parsing and indexing of one document.
	IngestTimeout time.Duration
	Chunking      parser.Options
}

type Handler struct {
	assistant Assistant
	index     Index
	fetcher   PageFetcher
	search    SearchStatus
	cfg       Settings
}

func NewHandler(assistant Assistant, index Index, fetcher PageFetcher, search SearchStatus, cfg Settings) *Handler {
	return &Handler{
		assistant: assistant,
		index:     index,
		fetcher:   fetcher,
		search:    search,
		cfg:       cfg,
	}
}

// Root handles GET /
func (h *Handler) Root(w http.ResponseWriter, r *http.Request) {
	h.respondJSON(w, http.StatusOK, map[string]string{
		"name":     "Learning Assistant API",
		"version":  Version,
		"status":   "running",
		"provider": h.cfg.Provider,
	})
}

// Health handles GET /api/health
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	h.respondJSON(w, http.StatusOK, HealthResponse{
		Status:   "healthy",
		Provider: h.cfg.Provider,
		Version:  Version,
	})
}

// DetailedHealth handles GET /api/health/detailed
func (h *Handler) DetailedHealth(w http.ResponseWriter, r *http.Request) {
	stats := h.index.CollectionStats(r.Context())
	storeStatus := "healthy"
	if stats.Status != models.StatusGreen {
		storeStatus = "error: " + stats.Error
	}

	search := ServiceStatus{Status: "disabled"}
	if h.search.Enabled() {
		search.Status = "enabled"
		if p := h.search.Active(); p != nil {
			search.Provider = p.Name()
		} else {
			search.Status = "unavailable"
		}
	}

	h.respondJSON(w, http.StatusOK, DetailedHealthResponse{
		Status: "healthy",
		Services: map[string]ServiceStatus{
			"llm":          {Status: "healthy", Provider: h.cfg.Provider},
			"vector_store": {Status: storeStatus, Info: &stats},
			"web_search":   search,
		},
	})
}

// Chat handles POST /api/chat
func (h *Handler) Chat(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(ctx, w, http.StatusBadRequest, "invalid request body", err)
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		h.respondError(ctx, w, http.StatusBadRequest, "message cannot be empty", nil)
		return
	}

	answer := h.assistant.Answer(ctx, rag.Request{
		Query:   req.Message,
		History: req.History,
		UserAge: req.UserAge,
	})
	h.respondJSON(w, http.StatusOK, answer)
}

// IngestText handles POST /api/ingest/text
func (h *Handler) IngestText(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req IngestTextRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(ctx, w, http.StatusBadRequest, "invalid request body", err)
		return
	}
	if req.DocumentID == "" {
		h.respondError(ctx, w, http.StatusBadRequest, "document_id is required", nil)
		return
	}
	if len(req.Texts) == 0 {
		h.respondError(ctx, w, http.StatusBadRequest, "at least one text is required", nil)
		return
	}
	n := len(req.Texts)
	if req.Metadatas != nil {
		n = len(req.Metadatas)
	}
	metadatas := make([]models.Metadata, n)
	for i := range metadatas {
		metadatas[i] = models.Metadata{}
		if i < len(req.Metadatas) && req.Metadatas[i] != nil {
			metadatas[i] = models.Metadata(req.Metadatas[i])
		}
	}

	h.store(ctx, w, string(req.DocumentID), req.Texts, metadatas, "")
}

// IngestURL handles POST /api/ingest/url
func (h *Handler) IngestURL(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req IngestURLRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(ctx, w, http.StatusBadRequest, "invalid request body", err)
		return
	}
	if req.DocumentID == "" {
		h.respondError(ctx, w, http.StatusBadRequest, "document_id is required", nil)
		return
	}
	u, err := url.ParseRequestURI(req.Source)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		h.respondError(ctx, w, http.StatusBadRequest, "source must be an http(s) URL", err)
		return
	}

	ctx, cancel := h.ingestContext(ctx)
	defer cancel()

	log.Ctx(ctx).Info().Str("document_id", string(req.DocumentID)).Str("source", req.Source).Msg("Ingesting URL")

	body, _, err := h.fetcher.Fetch(ctx, req.Source)
	if err != nil {
		h.respondError(ctx, w, http.StatusBadGateway, "failed to fetch source", err)
		return
	}
	chunks, title, err := parser.ParseHTML(bytes.NewReader(body), req.Source, h.cfg.Chunking)
	if err != nil {
		h.respondError(ctx, w, http.StatusBadRequest, "failed to parse source", err)
		return
	}
	if len(chunks) == 0 {
		h.respondError(ctx, w, http.StatusBadRequest, "no content extracted from source", nil)
		return
	}

	h.store(ctx, w, string(req.DocumentID), parser.Texts(chunks), parser.Metadatas(chunks), title)
}

// IngestFile handles POST /api/ingest/file
func (h *Handler) IngestFile(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	r.Body = http.MaxBytesReader(w, r.Body, h.cfg.MaxUploadSize)
	if err := r.ParseMultipartForm(h.cfg.MaxUploadSize); err != nil {
		h.respondError(ctx, w, http.StatusBadRequest, "invalid form data or size too large", err)
		return
	}

	documentID := r.FormValue("document_id")
	if documentID == "" {
		h.respondError(ctx, w, http.StatusBadRequest, "document_id is required", nil)
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		h.respondError(ctx, w, http.StatusBadRequest, "file is required", err)
		return
	}
	defer file.Close()

	ctx, cancel := h.ingestContext(ctx)
	defer cancel()

	log.Ctx(ctx).Info().Str("document_id", documentID).Str("filename", header.Filename).Msg("Ingesting file")

	chunks, err := parser.ParseReader(file, header.Filename, h.cfg.Chunking)
	if err != nil {
		h.respondError(ctx, w, http.StatusBadRequest, "failed to parse file", err)
		return
	}
	if len(chunks) == 0 {
		h.respondError(ctx, w, http.StatusBadRequest, "no content extracted from file", nil)
		return
	}

	h.store(ctx, w, documentID, parser.Texts(chunks), parser.Metadatas(chunks), "")
}

// IngestPDF handles POST /api/ingest/pdf. The file arrives base64 encoded in
// the JSON body; the filename extension picks the parser.
func (h *Handler) IngestPDF(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if h.cfg.MaxUploadSize > 0 {
		limit := int64(base64.StdEncoding.EncodedLen(int(h.cfg.MaxUploadSize))) + 64<<10
		r.Body = http.MaxBytesReader(w, r.Body, limit)
	}
	var req IngestPDFRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(ctx, w, http.StatusBadRequest, "invalid request body", err)
		return
	}
	if req.DocumentID == "" {
		h.respondError(ctx, w, http.StatusBadRequest, "document_id is required", nil)
		return
	}
	if req.FileContent == "" {
		h.respondError(ctx, w, http.StatusBadRequest, "file_content is required", nil)
		return
	}
	data, err := base64.StdEncoding.DecodeString(req.FileContent)
	if err != nil {
		h.respondError(ctx, w, http.StatusBadRequest, "file_content must be base64", err)
		return
	}

	name := req.Filename
	if name == "" {
		name = "upload.pdf"
	}
	source := req.Source
	if source == "" {
		source = name
	}

	ctx, cancel := h.ingestContext(ctx)
	defer cancel()

	log.Ctx(ctx).Info().Str("document_id", string(req.DocumentID)).Str("filename", name).Int("bytes", len(data)).Msg("Ingesting PDF")

	chunks, err := parser.ParseReader(bytes.NewReader(data), name, h.cfg.Chunking)
	if err != nil {
		h.respondError(ctx, w, http.StatusBadRequest, "failed to parse file", err)
		return
	}
	if len(chunks) == 0 {
		h.respondError(ctx, w, http.StatusBadRequest, "no content extracted from file", nil)
		return
	}
	metadatas := parser.Metadatas(chunks)
	for i, m := range metadatas {
		if m == nil {
			m = models.Metadata{}
			metadatas[i] = m
		}
		m[models.MetaSource] = source
	}

	h.store(ctx, w, string(req.DocumentID), parser.Texts(chunks), metadatas, "")
}

// DeleteDocument handles DELETE /api/documents/{document_id}
func (h *Handler) DeleteDocument(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	documentID := chi.URLParam(r, "document_id")

	log.Ctx(ctx).Info().Str("document_id", documentID).Msg("Deleting document")

	if !h.index.DeleteByDocument(ctx, documentID) {
		h.respondError(ctx, w, http.StatusInternalServerError, "failed to delete document", nil)
		return
	}
	h.respondJSON(w, http.StatusOK, DeleteResponse{Success: true, Message: "Document deleted"})
}

// store indexes the chunks and writes the ingest response.
func (h *Handler) store(ctx context.Context, w http.ResponseWriter, documentID string, texts []string, metadatas []models.Metadata, title string) {
	n, err := h.index.UpsertChunks(ctx, texts, metadatas, documentID)
	if err != nil {
		if errors.Is(err, retrieval.ErrLengthMismatch) {
			h.respondError(ctx, w, http.StatusBadRequest, "texts and metadatas must have the same length", err)
			return
		}
		h.respondError(ctx, w, http.StatusInternalServerError, "failed to index document", err)
		return
	}
	h.respondJSON(w, http.StatusOK, IngestResponse{Success: true, Chunks: n, Title: title})
}

func (h *Handler) ingestContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if h.cfg.IngestTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, h.cfg.IngestTimeout)
}

func (h *Handler) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func (h *Handler) respondError(ctx context.Context, w http.ResponseWriter, status int, message string, err error) {
	logger := log.Ctx(ctx)
	if status >= http.StatusInternalServerError {
		logger.Error().Err(err).Int("status", status).Msg(message)
	} else {
		logger.Warn().Err(err).Int("status", status).Msg(message)
	}
	h.respondJSON(w, status, ErrorResponse{
		Error:   http.StatusText(status),
		Message: message,
	})
}
