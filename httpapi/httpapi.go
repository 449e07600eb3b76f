// Package httpapi exposes the workflow engine over JSON HTTP.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/clinicoai/clinico-go/asr"
	"github.com/clinicoai/clinico-go/docgen"
	"github.com/clinicoai/clinico-go/schema"
	"github.com/clinicoai/clinico-go/store"
)

// Answerer runs the conversational agent for one query.
type Answerer interface {
	Answer(ctx context.Context, sessionID, query string) (string, error)
}

// Generator runs the document pipeline for one request.
type Generator interface {
	Generate(ctx context.Context, req docgen.Request) (*schema.Document, error)
}

// Server holds the handlers' collaborators.
type Server struct {
	agent       Answerer
	pipeline    Generator
	transcriber asr.Transcriber
	archive     store.Store
	logger      *slog.Logger
	apiKey      string
	checkAPIKey bool
	registry    *prometheus.Registry
}

// Option configures a Server.
type Option func(*Server)

// WithTranscriber wires a speech-to-text backend into
// /api/generate-transcription.
func WithTranscriber(t asr.Transcriber) Option {
	return func(s *Server) { s.transcriber = t }
}

// WithArchive wires a document archive; generated documents are saved
// and listable via /api/documents.
func WithArchive(st store.Store) Option {
	return func(s *Server) { s.archive = st }
}

// WithAPIKey enables the API-key middleware with the given key.
func WithAPIKey(key string) Option {
	return func(s *Server) {
		s.apiKey = key
		s.checkAPIKey = key != ""
	}
}

// WithLogger overrides the request logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) { s.logger = l }
}

// WithRegistry sets the Prometheus registry served at /metrics.
func WithRegistry(r *prometheus.Registry) Option {
	return func(s *Server) { s.registry = r }
}

// NewServer creates the HTTP surface around an agent and a pipeline.
func NewServer(agent Answerer, pipeline Generator, opts ...Option) *Server {
	s := &Server{
		agent:       agent,
		pipeline:    pipeline,
		transcriber: asr.Unavailable{},
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handler returns the fully wired HTTP handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/generate-answer", s.handleGenerateAnswer)
	mux.HandleFunc("POST /api/generate-document", s.handleGenerateDocument)
	mux.HandleFunc("POST /api/generate-custom-document", s.handleGenerateCustomDocument)
	mux.HandleFunc("POST /api/generate-transcription", s.handleGenerateTranscription)
	mux.HandleFunc("GET /api/documents", s.handleListDocuments)
	mux.HandleFunc("GET /healthz", s.handleHealthz)

	if s.registry != nil {
		mux.Handle("GET /metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))
	}

	var h http.Handler = mux
	h = s.requireAPIKey(h)
	h = s.logRequests(h)
	return h
}

type answerRequest struct {
	Query     string `json:"query"`
	SessionID string `json:"session_id"`
}

type answerResponse struct {
	Status string `json:"status"`
	Answer string `json:"answer"`
}

func (s *Server) handleGenerateAnswer(w http.ResponseWriter, r *http.Request) {
	var req answerRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	if strings.TrimSpace(req.Query) == "" {
		s.writeError(w, http.StatusBadRequest, errors.New("query must not be empty"))
		return
	}

	answer, err := s.agent.Answer(r.Context(), req.SessionID, req.Query)
	if err != nil {
		s.logger.Error("chat agent failed", "session_id", req.SessionID, "error", err)
		s.writeError(w, http.StatusInternalServerError, fmt.Errorf("chat agent error: %w", err))
		return
	}
	writeJSON(w, http.StatusOK, answerResponse{Status: "success", Answer: answer})
}

type documentRequest struct {
	Transcript   string `json:"transcript"`
	DocumentType string `json:"document_type"`
}

type customDocumentRequest struct {
	Transcript        string         `json:"transcript"`
	DocumentType      string         `json:"document_type"`
	Fields            []schema.Field `json:"fields"`
	DoctorSuggestions string         `json:"doctor_suggestions"`
}

type documentResponse struct {
	Status    string       `json:"status"`
	Timestamp string       `json:"timestamp"`
	Data      documentData `json:"data"`
}

type documentData struct {
	DocumentType      string           `json:"document_type"`
	GeneratedDocument *schema.Document `json:"generated_document"`
}

func (s *Server) handleGenerateDocument(w http.ResponseWriter, r *http.Request) {
	var req documentRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}

	docType := strings.ToLower(strings.TrimSpace(req.DocumentType))
	desc, err := schema.ForDocumentType(docType)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	s.generateDocument(w, r, docgen.Request{
		Transcript:   req.Transcript,
		DocumentType: docType,
		Schema:       desc,
	})
}

func (s *Server) handleGenerateCustomDocument(w http.ResponseWriter, r *http.Request) {
	var req customDocumentRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}

	docType := strings.ToLower(strings.TrimSpace(req.DocumentType))
	desc, err := schema.New(docType, req.Fields)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	s.generateDocument(w, r, docgen.Request{
		Transcript:        req.Transcript,
		DocumentType:      docType,
		DoctorSuggestions: req.DoctorSuggestions,
		Schema:            desc,
	})
}

// generateDocument runs the pipeline and archives the result. Pipeline
// degradation is not an HTTP failure: the degraded payload goes out with
// status 200 so callers can inspect the error marker.
func (s *Server) generateDocument(w http.ResponseWriter, r *http.Request, req docgen.Request) {
	doc, err := s.pipeline.Generate(r.Context(), req)
	if err != nil {
		s.logger.Error("document pipeline failed", "document_type", req.DocumentType, "error", err)
		s.writeError(w, http.StatusInternalServerError, fmt.Errorf("failed to generate document: %w", err))
		return
	}

	s.archiveDocument(r.Context(), r, req.DocumentType, doc)

	writeJSON(w, http.StatusOK, documentResponse{
		Status:    "success",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Data: documentData{
			DocumentType:      strings.ToUpper(req.DocumentType),
			GeneratedDocument: doc,
		},
	})
}

func (s *Server) archiveDocument(ctx context.Context, r *http.Request, docType string, doc *schema.Document) {
	if s.archive == nil || doc.IsDegraded() {
		return
	}
	rec := store.Record{
		ID:           uuid.NewString(),
		SessionID:    r.URL.Query().Get("session_id"),
		DocumentType: docType,
		Fields:       doc.Fields,
		CreatedAt:    time.Now().UTC(),
	}
	if err := s.archive.Save(ctx, rec); err != nil {
		// Archiving is best-effort; the generated document still returns.
		s.logger.Error("archive save failed", "record_id", rec.ID, "error", err)
	}
}

type transcriptionRequest struct {
	S3FilePath string `json:"s3_file_path"`
}

type transcriptionResponse struct {
	Status     string `json:"status"`
	Message    string `json:"message"`
	S3FileName string `json:"s3_file_name"`
	Transcript string `json:"transcript"`
}

func (s *Server) handleGenerateTranscription(w http.ResponseWriter, r *http.Request) {
	var req transcriptionRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}

	transcript, err := s.transcriber.Transcribe(r.Context(), req.S3FilePath)
	if errors.Is(err, asr.ErrUnavailable) {
		s.writeError(w, http.StatusNotImplemented, err)
		return
	}
	if err != nil {
		s.logger.Error("transcription failed", "s3_file_path", req.S3FilePath, "error", err)
		s.writeError(w, http.StatusInternalServerError, fmt.Errorf("transcription failed: %w", err))
		return
	}

	writeJSON(w, http.StatusOK, transcriptionResponse{
		Status:     "success",
		Message:    "File transcribed successfully.",
		S3FileName: req.S3FilePath,
		Transcript: transcript,
	})
}

type documentListResponse struct {
	Status string         `json:"status"`
	Data   []store.Record `json:"data"`
}

func (s *Server) handleListDocuments(w http.ResponseWriter, r *http.Request) {
	if s.archive == nil {
		s.writeError(w, http.StatusNotImplemented, errors.New("document archive not configured"))
		return
	}
	sessionID := r.URL.Query().Get("session_id")
	if sessionID == "" {
		s.writeError(w, http.StatusBadRequest, errors.New("session_id query parameter required"))
		return
	}

	records, err := s.archive.BySession(r.Context(), sessionID)
	if err != nil {
		s.logger.Error("archive query failed", "session_id", sessionID, "error", err)
		s.writeError(w, http.StatusInternalServerError, errors.New("failed to list documents"))
		return
	}
	if records == nil {
		records = []store.Record{}
	}
	writeJSON(w, http.StatusOK, documentListResponse{Status: "success", Data: records})
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type errorResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

func (s *Server) writeError(w http.ResponseWriter, code int, err error) {
	writeJSON(w, code, errorResponse{Status: "error", Message: err.Error()})
}

func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, code int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(payload)
}
