package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"

	"gopkg.in/yaml.v3"

	"github.com/ankivoice/ankivoice/internal/mcphost"
)

// ValidProviderNames lists the provider names this binary knows per kind.
// Validation warns about anything else rather than failing, so third-party
// registrations keep working.
var ValidProviderNames = map[string][]string{
	"llm":        {"openai", "anthropic", "ollama", "gemini", "deepseek", "mistral", "groq", "llamacpp", "llamafile"},
	"stt":        {"whisper"},
	"embeddings": {"openai", "ollama"},
}

// Load reads and validates the YAML configuration file at path.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes and validates a YAML config from r. Unknown fields
// are rejected so typos surface at startup instead of silently defaulting.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks cfg for contradictions and out-of-range values. All
// failures are joined into one error; recoverable oddities are only logged.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}

	errs = append(errs, validateProviders(&cfg.Providers, cfg.Index.PostgresDSN)...)
	errs = append(errs, validateReview(&cfg.Review)...)
	errs = append(errs, validateMCP(&cfg.MCP)...)

	if cfg.Providers.Embeddings.Name != "" && cfg.Index.EmbeddingDimensions <= 0 {
		slog.Warn("providers.embeddings is configured but index.embedding_dimensions is not set; defaulting to 1536")
	}
	if cfg.History.PostgresDSN != "" && cfg.History.FilePath != "" {
		slog.Warn("both history.postgres_dsn and history.file_path are set; the database wins")
	}

	return errors.Join(errs...)
}

func validateProviders(p *ProvidersConfig, indexDSN string) []error {
	var errs []error

	warnUnknownProvider("llm", p.LLM.Name)
	for _, fb := range p.LLMFallbacks {
		warnUnknownProvider("llm", fb.Name)
	}
	warnUnknownProvider("stt", p.STT.Name)
	warnUnknownProvider("embeddings", p.Embeddings.Name)

	if p.LLM.Name == "" {
		slog.Warn("no LLM provider configured; questions and grade explanations will be unavailable")
		if len(p.LLMFallbacks) > 0 {
			errs = append(errs, errors.New("providers.llm_fallbacks requires a primary providers.llm"))
		}
	}
	if p.STT.Name == "" {
		slog.Warn("no STT provider configured; the /voice endpoint will be disabled")
	}
	if indexDSN != "" && p.Embeddings.Name == "" {
		errs = append(errs, errors.New("index.postgres_dsn is set but providers.embeddings is not configured"))
	}
	return errs
}

func validateReview(r *ReviewConfig) []error {
	var errs []error
	for word, ease := range r.ExtraGradeWords {
		if ease < 1 || ease > 4 {
			errs = append(errs, fmt.Errorf("review.extra_grade_words[%q] = %d is out of range [1, 4]", word, ease))
		}
	}
	for deck, terms := range r.TermSets {
		if len(terms) == 0 {
			errs = append(errs, fmt.Errorf("review.term_sets[%q] must list at least one canonical term", deck))
		}
	}
	return errs
}

func validateMCP(m *MCPConfig) []error {
	var errs []error
	seen := make(map[string]int, len(m.Servers))
	for i, srv := range m.Servers {
		prefix := fmt.Sprintf("mcp.servers[%d]", i)
		switch prev, dup := seen[srv.Name]; {
		case srv.Name == "":
			errs = append(errs, fmt.Errorf("%s.name is required", prefix))
		case dup:
			errs = append(errs, fmt.Errorf("%s.name %q is a duplicate of mcp.servers[%d]", prefix, srv.Name, prev))
		default:
			seen[srv.Name] = i
		}
		if srv.Transport != "" && !srv.Transport.IsValid() {
			errs = append(errs, fmt.Errorf("%s.transport %q is invalid; valid values: stdio, streamable-http", prefix, srv.Transport))
		}
		if srv.Transport == mcphost.TransportStdio && srv.Command == "" {
			errs = append(errs, fmt.Errorf("%s.command is required when transport is stdio", prefix))
		}
		if srv.Transport == mcphost.TransportStreamableHTTP && srv.URL == "" {
			errs = append(errs, fmt.Errorf("%s.url is required when transport is streamable-http", prefix))
		}
	}
	return errs
}

// warnUnknownProvider logs when a configured provider name is not built in.
func warnUnknownProvider(kind, name string) {
	if name == "" {
		return
	}
	known, ok := ValidProviderNames[kind]
	if !ok || slices.Contains(known, name) {
		return
	}
	slog.Warn("unknown provider name — may be a typo or third-party provider",
		"kind", kind,
		"name", name,
		"known", known,
	)
}
