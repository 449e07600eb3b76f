package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/clinicoai/clinico-go/asr"
	"github.com/clinicoai/clinico-go/docgen"
	"github.com/clinicoai/clinico-go/schema"
	"github.com/clinicoai/clinico-go/store"
)

type stubAgent struct {
	answer string
	err    error
	calls  []string
}

func (s *stubAgent) Answer(_ context.Context, sessionID, query string) (string, error) {
	s.calls = append(s.calls, sessionID+"|"+query)
	return s.answer, s.err
}

type stubPipeline struct {
	doc  schema.Document
	err  error
	last docgen.Request
}

func (s *stubPipeline) Generate(_ context.Context, req docgen.Request) (*schema.Document, error) {
	s.last = req
	if s.err != nil {
		return nil, s.err
	}
	doc := s.doc
	return &doc, nil
}

func newTestServer(agent Answerer, pipeline Generator, opts ...Option) http.Handler {
	return NewServer(agent, pipeline, opts...).Handler()
}

func postJSON(t *testing.T, h http.Handler, path, body string, header map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range header {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("response is not JSON: %v\n%s", err, rec.Body.String())
	}
	return out
}

func TestGenerateAnswer(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		agent := &stubAgent{answer: "The patient does not smoke."}
		h := newTestServer(agent, &stubPipeline{})

		rec := postJSON(t, h, "/api/generate-answer", `{"query":"Does the patient smoke?","session_id":"s1"}`, nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
		}
		body := decodeBody(t, rec)
		if body["status"] != "success" || body["answer"] != "The patient does not smoke." {
			t.Errorf("unexpected body %v", body)
		}
		if len(agent.calls) != 1 || agent.calls[0] != "s1|Does the patient smoke?" {
			t.Errorf("unexpected agent calls %v", agent.calls)
		}
	})

	t.Run("empty query rejected", func(t *testing.T) {
		h := newTestServer(&stubAgent{}, &stubPipeline{})
		rec := postJSON(t, h, "/api/generate-answer", `{"query":"  ","session_id":"s1"}`, nil)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("expected 400, got %d", rec.Code)
		}
	})

	t.Run("malformed body rejected", func(t *testing.T) {
		h := newTestServer(&stubAgent{}, &stubPipeline{})
		rec := postJSON(t, h, "/api/generate-answer", `{"query":`, nil)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("expected 400, got %d", rec.Code)
		}
	})

	t.Run("agent failure is a hard 500", func(t *testing.T) {
		h := newTestServer(&stubAgent{err: errors.New("provider down")}, &stubPipeline{})
		rec := postJSON(t, h, "/api/generate-answer", `{"query":"q","session_id":"s"}`, nil)
		if rec.Code != http.StatusInternalServerError {
			t.Fatalf("expected 500, got %d", rec.Code)
		}
		body := decodeBody(t, rec)
		if body["status"] != "error" {
			t.Errorf("unexpected body %v", body)
		}
	})
}

func TestGenerateDocument(t *testing.T) {
	healthy := schema.NewDocument(map[string]string{
		"subjective": "s", "objective": "o", "assessment": "a", "plan": "p",
	})

	t.Run("builtin type", func(t *testing.T) {
		pipeline := &stubPipeline{doc: healthy}
		h := newTestServer(&stubAgent{}, pipeline)

		rec := postJSON(t, h, "/api/generate-document", `{"transcript":"...","document_type":"SOAP"}`, nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
		}
		body := decodeBody(t, rec)
		if body["status"] != "success" {
			t.Errorf("unexpected status %v", body["status"])
		}
		if _, err := time.Parse(time.RFC3339, body["timestamp"].(string)); err != nil {
			t.Errorf("timestamp is not RFC3339: %v", body["timestamp"])
		}
		data := body["data"].(map[string]any)
		if data["document_type"] != "SOAP" {
			t.Errorf("expected upper-cased type, got %v", data["document_type"])
		}
		doc := data["generated_document"].(map[string]any)
		if doc["plan"] != "p" {
			t.Errorf("unexpected document %v", doc)
		}

		if pipeline.last.Schema == nil || pipeline.last.Schema.DocType() != "soap" {
			t.Errorf("expected soap descriptor, got %+v", pipeline.last.Schema)
		}
	})

	t.Run("unknown type is invalid request", func(t *testing.T) {
		h := newTestServer(&stubAgent{}, &stubPipeline{doc: healthy})
		rec := postJSON(t, h, "/api/generate-document", `{"transcript":"...","document_type":"progress"}`, nil)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("expected 400, got %d", rec.Code)
		}
	})

	t.Run("degraded document still returns 200", func(t *testing.T) {
		desc, _ := schema.ForDocumentType("soap")
		pipeline := &stubPipeline{doc: schema.Degraded(desc, nil, "model unavailable", "raw")}
		h := newTestServer(&stubAgent{}, pipeline)

		rec := postJSON(t, h, "/api/generate-document", `{"transcript":"...","document_type":"soap"}`, nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200 for degraded document, got %d", rec.Code)
		}
		body := decodeBody(t, rec)
		doc := body["data"].(map[string]any)["generated_document"].(map[string]any)
		if doc["error"] != "model unavailable" {
			t.Errorf("expected degradation marker, got %v", doc)
		}
	})
}

func TestGenerateCustomDocument(t *testing.T) {
	t.Run("builds descriptor from fields", func(t *testing.T) {
		pipeline := &stubPipeline{doc: schema.NewDocument(map[string]string{"summary_of_visit": "x"})}
		h := newTestServer(&stubAgent{}, pipeline)

		body := `{
			"transcript": "conversation",
			"document_type": "visit_note",
			"fields": [{"label": "summary_of_visit", "description": "What happened"}],
			"doctor_suggestions": "Mention the allergy."
		}`
		rec := postJSON(t, h, "/api/generate-custom-document", body, nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
		}

		req := pipeline.last
		if req.DoctorSuggestions != "Mention the allergy." {
			t.Errorf("suggestions not forwarded: %q", req.DoctorSuggestions)
		}
		if req.Schema == nil || !req.Schema.Has("summary_of_visit") {
			t.Errorf("descriptor not built from fields: %+v", req.Schema)
		}
	})

	t.Run("malformed field list rejected", func(t *testing.T) {
		h := newTestServer(&stubAgent{}, &stubPipeline{})
		body := `{"transcript":"t","document_type":"x","fields":[{"label":"has spaces"}],"doctor_suggestions":""}`
		rec := postJSON(t, h, "/api/generate-custom-document", body, nil)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("expected 400, got %d", rec.Code)
		}
	})

	t.Run("empty field list rejected", func(t *testing.T) {
		h := newTestServer(&stubAgent{}, &stubPipeline{})
		body := `{"transcript":"t","document_type":"x","fields":[],"doctor_suggestions":""}`
		rec := postJSON(t, h, "/api/generate-custom-document", body, nil)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("expected 400, got %d", rec.Code)
		}
	})
}

func TestAPIKeyMiddleware(t *testing.T) {
	agent := &stubAgent{answer: "ok"}
	h := newTestServer(agent, &stubPipeline{}, WithAPIKey("secret-key"))

	t.Run("missing key rejected", func(t *testing.T) {
		rec := postJSON(t, h, "/api/generate-answer", `{"query":"q","session_id":"s"}`, nil)
		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("expected 401, got %d", rec.Code)
		}
	})

	t.Run("wrong key rejected", func(t *testing.T) {
		rec := postJSON(t, h, "/api/generate-answer", `{"query":"q","session_id":"s"}`,
			map[string]string{APIKeyHeader: "wrong"})
		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("expected 401, got %d", rec.Code)
		}
	})

	t.Run("correct key passes", func(t *testing.T) {
		rec := postJSON(t, h, "/api/generate-answer", `{"query":"q","session_id":"s"}`,
			map[string]string{APIKeyHeader: "secret-key"})
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rec.Code)
		}
	})

	t.Run("healthz stays open", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200 without key, got %d", rec.Code)
		}
	})
}

func TestGenerateTranscription(t *testing.T) {
	t.Run("not configured", func(t *testing.T) {
		h := newTestServer(&stubAgent{}, &stubPipeline{})
		rec := postJSON(t, h, "/api/generate-transcription", `{"s3_file_path":"audio/visit.wav"}`, nil)
		if rec.Code != http.StatusNotImplemented {
			t.Fatalf("expected 501, got %d", rec.Code)
		}
	})

	t.Run("delegates to transcriber", func(t *testing.T) {
		mock := &asr.Mock{Transcript: "0.0s - 4.2s: Good morning."}
		h := newTestServer(&stubAgent{}, &stubPipeline{}, WithTranscriber(mock))

		rec := postJSON(t, h, "/api/generate-transcription", `{"s3_file_path":"audio/visit.wav"}`, nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
		}
		body := decodeBody(t, rec)
		if body["transcript"] != "0.0s - 4.2s: Good morning." {
			t.Errorf("unexpected body %v", body)
		}
		if body["s3_file_name"] != "audio/visit.wav" {
			t.Errorf("unexpected body %v", body)
		}
		if len(mock.Keys) != 1 || mock.Keys[0] != "audio/visit.wav" {
			t.Errorf("unexpected transcriber calls %v", mock.Keys)
		}
	})
}

func TestListDocuments(t *testing.T) {
	t.Run("no archive configured", func(t *testing.T) {
		h := newTestServer(&stubAgent{}, &stubPipeline{})
		req := httptest.NewRequest(http.MethodGet, "/api/documents?session_id=s1", nil)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		if rec.Code != http.StatusNotImplemented {
			t.Fatalf("expected 501, got %d", rec.Code)
		}
	})

	t.Run("requires session_id", func(t *testing.T) {
		h := newTestServer(&stubAgent{}, &stubPipeline{}, WithArchive(store.NewMemStore()))
		req := httptest.NewRequest(http.MethodGet, "/api/documents", nil)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("expected 400, got %d", rec.Code)
		}
	})

	t.Run("lists archived records", func(t *testing.T) {
		archive := store.NewMemStore()
		_ = archive.Save(context.Background(), store.Record{
			ID: "r1", SessionID: "s1", DocumentType: "soap",
			Fields:    map[string]string{"plan": "rest"},
			CreatedAt: time.Now().UTC(),
		})
		h := newTestServer(&stubAgent{}, &stubPipeline{}, WithArchive(archive))

		req := httptest.NewRequest(http.MethodGet, "/api/documents?session_id=s1", nil)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rec.Code)
		}
		body := decodeBody(t, rec)
		data := body["data"].([]any)
		if len(data) != 1 {
			t.Fatalf("expected 1 record, got %d", len(data))
		}
	})

	t.Run("empty session returns empty list", func(t *testing.T) {
		h := newTestServer(&stubAgent{}, &stubPipeline{}, WithArchive(store.NewMemStore()))
		req := httptest.NewRequest(http.MethodGet, "/api/documents?session_id=none", nil)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		body := decodeBody(t, rec)
		if data, ok := body["data"].([]any); !ok || len(data) != 0 {
			t.Errorf("expected empty data array, got %v", body["data"])
		}
	})
}

func TestDocumentArchiving(t *testing.T) {
	archive := store.NewMemStore()
	pipeline := &stubPipeline{doc: schema.NewDocument(map[string]string{
		"subjective": "s", "objective": "o", "assessment": "a", "plan": "p",
	})}
	h := newTestServer(&stubAgent{}, pipeline, WithArchive(archive))

	rec := postJSON(t, h, "/api/generate-document?session_id=s9", `{"transcript":"...","document_type":"soap"}`, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	records, err := archive.BySession(context.Background(), "s9")
	if err != nil {
		t.Fatalf("BySession: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("expected 1 archived record, got %d", len(records))
	}
	if records[0].DocumentType != "soap" || records[0].Fields["plan"] != "p" {
		t.Errorf("unexpected archived record %+v", records[0])
	}
}
