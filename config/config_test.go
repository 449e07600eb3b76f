package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Addr != ":8000" {
		t.Errorf("unexpected default addr %q", cfg.Server.Addr)
	}
	if cfg.LLM.Provider != "openai" {
		t.Errorf("unexpected default provider %q", cfg.LLM.Provider)
	}
	if cfg.Archive.Driver != "memory" {
		t.Errorf("unexpected default archive driver %q", cfg.Archive.Driver)
	}
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
server:
  addr: ":9090"
  check_api_key: false
llm:
  provider: anthropic
  model: claude-sonnet-4-20250514
  api_key_env: ANTHROPIC_API_KEY
retrieval:
  base_url: http://rag.internal:9000
  timeout_ms: 5000
  retries: 1
engine:
  max_steps: 16
  node_timeout_ms: 60000
archive:
  driver: sqlite
  dsn: ./clinico.db
telemetry:
  log_json: false
  otel_enabled: true
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Addr != ":9090" || cfg.Server.CheckAPIKey {
		t.Errorf("server section not applied: %+v", cfg.Server)
	}
	if cfg.LLM.Provider != "anthropic" || cfg.LLM.Model != "claude-sonnet-4-20250514" {
		t.Errorf("llm section not applied: %+v", cfg.LLM)
	}
	if cfg.Retrieval.BaseURL != "http://rag.internal:9000" {
		t.Errorf("retrieval section not applied: %+v", cfg.Retrieval)
	}
	if cfg.Engine.MaxSteps != 16 {
		t.Errorf("engine section not applied: %+v", cfg.Engine)
	}
	if cfg.Archive.Driver != "sqlite" || cfg.Archive.DSN != "./clinico.db" {
		t.Errorf("archive section not applied: %+v", cfg.Archive)
	}
	if cfg.Telemetry.LogJSON || !cfg.Telemetry.OTelEnabled {
		t.Errorf("telemetry section not applied: %+v", cfg.Telemetry)
	}
}

func TestLoad_PartialFileKeepsDefaults(t *testing.T) {
	path := writeConfig(t, "server:\n  addr: \":7777\"\n")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Addr != ":7777" {
		t.Errorf("override not applied: %q", cfg.Server.Addr)
	}
	if cfg.Retrieval.BaseURL == "" || cfg.Engine.MaxSteps == 0 {
		t.Error("defaults lost for sections absent from the file")
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestValidate_JoinsAllProblems(t *testing.T) {
	cfg := Default()
	cfg.LLM.Provider = "groq"
	cfg.Retrieval.TimeoutMS = 0
	cfg.Engine.MaxSteps = 0
	cfg.Archive.Driver = "sqlite" // dsn missing

	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected validation error")
	}
	msg := err.Error()
	for _, want := range []string{"llm.provider", "retrieval.timeout_ms", "engine.max_steps", "archive.dsn"} {
		if !strings.Contains(msg, want) {
			t.Errorf("expected %q in joined error, got %q", want, msg)
		}
	}
}

func TestConfig_DurationHelpers(t *testing.T) {
	cfg := Default()
	cfg.Retrieval.TimeoutMS = 2500
	cfg.Engine.NodeTimeoutMS = 0

	if got := cfg.RetrievalTimeout(); got != 2500*time.Millisecond {
		t.Errorf("unexpected retrieval timeout %v", got)
	}
	if got := cfg.NodeTimeout(); got != 0 {
		t.Errorf("expected disabled node timeout, got %v", got)
	}
}

func TestConfig_APIKey(t *testing.T) {
	cfg := Default()
	cfg.LLM.APIKeyEnv = "CLINICO_TEST_PROVIDER_KEY"
	t.Setenv("CLINICO_TEST_PROVIDER_KEY", "secret")

	if got := cfg.APIKey(); got != "secret" {
		t.Errorf("expected key from env, got %q", got)
	}

	cfg.LLM.APIKeyEnv = ""
	if got := cfg.APIKey(); got != "" {
		t.Errorf("expected empty key without env name, got %q", got)
	}
}
