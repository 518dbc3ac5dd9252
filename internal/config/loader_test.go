package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ankivoice/ankivoice/internal/config"
)

func TestLoad_FromFile(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	path := filepath.Join(dir, "ankivoice.yaml")
	yaml := `
server:
  listen_addr: ":9090"
  log_level: debug
anki:
  connect_url: "http://127.0.0.1:8765"
`
	if err := os.WriteFile(path, []byte(yaml), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Server.ListenAddr != ":9090" {
		t.Errorf("ListenAddr = %q, want %q", cfg.Server.ListenAddr, ":9090")
	}
	if cfg.Server.LogLevel != config.LogDebug {
		t.Errorf("LogLevel = %q, want %q", cfg.Server.LogLevel, config.LogDebug)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	t.Parallel()
	_, err := config.Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err == nil {
		t.Fatal("expected error for missing file, got nil")
	}
}

func TestLoad_MalformedYAML(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	path := filepath.Join(dir, "broken.yaml")
	if err := os.WriteFile(path, []byte("server: [not a mapping"), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	_, err := config.Load(path)
	if err == nil {
		t.Fatal("expected error for malformed YAML, got nil")
	}
}

func TestValidate_UnknownProviderNameIsWarning(t *testing.T) {
	t.Parallel()
	// An unrecognized provider name must not fail validation; it may be a
	// provider this build simply doesn't know about yet.
	yaml := `
providers:
  llm:
    name: some-future-llm
`
	cfg, err := config.LoadFromReader(strings.NewReader(yaml))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Providers.LLM.Name != "some-future-llm" {
		t.Errorf("LLM.Name = %q, want %q", cfg.Providers.LLM.Name, "some-future-llm")
	}
}

func TestValidate_HistoryBothBackendsIsValid(t *testing.T) {
	t.Parallel()
	// Both backends configured is a warning, not an error; Postgres wins.
	yaml := `
history:
  postgres_dsn: "postgres://localhost/ankivoice"
  file_path: "/var/lib/ankivoice/history.jsonl"
`
	cfg, err := config.LoadFromReader(strings.NewReader(yaml))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.History.PostgresDSN == "" || cfg.History.FilePath == "" {
		t.Error("both history backends should survive validation")
	}
}

func TestValidate_GradeWordBoundaries(t *testing.T) {
	t.Parallel()
	yaml := `
review:
  extra_grade_words:
    flawless: 4
    barely: 1
`
	cfg, err := config.LoadFromReader(strings.NewReader(yaml))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := cfg.Review.ExtraGradeWords["flawless"]; got != 4 {
		t.Errorf("ExtraGradeWords[flawless] = %d, want 4", got)
	}
}

func TestValidate_MultipleErrorsAreJoined(t *testing.T) {
	t.Parallel()
	yaml := `
server:
  log_level: loud
review:
  extra_grade_words:
    flawless: 7
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected errors, got nil")
	}
	errStr := err.Error()
	if !strings.Contains(errStr, "log_level") {
		t.Errorf("error should mention log_level, got: %v", err)
	}
	if !strings.Contains(errStr, "flawless") {
		t.Errorf("error should mention the offending grade word, got: %v", err)
	}
}

func TestValidProviderNames(t *testing.T) {
	t.Parallel()
	if len(config.ValidProviderNames) == 0 {
		t.Fatal("ValidProviderNames should not be empty")
	}
	llmNames := config.ValidProviderNames["llm"]
	if len(llmNames) == 0 {
		t.Fatal("ValidProviderNames[\"llm\"] should not be empty")
	}
	found := false
	for _, n := range llmNames {
		if n == "openai" {
			found = true
			break
		}
	}
	if !found {
		t.Error("ValidProviderNames[\"llm\"] should contain \"openai\"")
	}
}
