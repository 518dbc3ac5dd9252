// Package app wires all ankivoice subsystems into a running server.
//
// The App struct owns the full lifecycle: New creates and connects all
// subsystems, Run serves HTTP until the context is cancelled, and Shutdown
// tears everything down in order.
//
// For testing, inject doubles via functional options (WithHistoryStore,
// WithReviewConnector, etc.). When an option is not provided, New creates
// real implementations from the config.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ankivoice/ankivoice/internal/anki"
	"github.com/ankivoice/ankivoice/internal/assistant"
	"github.com/ankivoice/ankivoice/internal/cardindex"
	"github.com/ankivoice/ankivoice/internal/config"
	"github.com/ankivoice/ankivoice/internal/health"
	"github.com/ankivoice/ankivoice/internal/history"
	"github.com/ankivoice/ankivoice/internal/intent"
	"github.com/ankivoice/ankivoice/internal/judge"
	"github.com/ankivoice/ankivoice/internal/mcphost"
	"github.com/ankivoice/ankivoice/internal/observe"
	"github.com/ankivoice/ankivoice/internal/resilience"
	"github.com/ankivoice/ankivoice/internal/review"
	"github.com/ankivoice/ankivoice/internal/server"
	"github.com/ankivoice/ankivoice/internal/transcript"
	"github.com/ankivoice/ankivoice/internal/transcript/llmcorrect"
	"github.com/ankivoice/ankivoice/internal/transcript/phonetic"
	"github.com/ankivoice/ankivoice/pkg/provider/embeddings"
	"github.com/ankivoice/ankivoice/pkg/provider/llm"
	"github.com/ankivoice/ankivoice/pkg/provider/stt"
	"github.com/ankivoice/ankivoice/pkg/types"
)

// defaultListenAddr is used when server.listen_addr is not configured.
const defaultListenAddr = ":8000"

// NamedLLM pairs an LLM provider with the config name it was created under,
// so the fallback chain can log which backend served a request.
type NamedLLM struct {
	Name     string
	Provider llm.Provider
}

// Providers holds one provider value per slot. Nil means the provider is not
// configured. Populated by main.go via the config registry.
type Providers struct {
	LLM          llm.Provider
	LLMName      string
	LLMFallbacks []NamedLLM
	STT          stt.Provider
	Embeddings   embeddings.Provider
}

// App owns all subsystem lifetimes for the ankivoice server.
type App struct {
	cfg       *config.Config
	providers *Providers
	logLevel  *slog.LevelVar
	metrics   *observe.Metrics

	anki    *anki.Client
	bridge  *anki.Bridge
	conn    review.Connector
	cards   review.CardSource
	llm     llm.Provider
	history history.Store
	index   *cardindex.Index
	syncer  *cardindex.Syncer
	mcpHost *mcphost.Host
	asst    *assistant.Assistant
	review  *swappableReview
	server  *server.Server

	// closers are called in order during Shutdown.
	closers []func() error

	// stopOnce guards the Shutdown path.
	stopOnce sync.Once
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithHistoryStore injects a review log instead of creating one from config.
func WithHistoryStore(s history.Store) Option {
	return func(a *App) { a.history = s }
}

// WithReviewConnector injects the AnkiConnect surface the review service
// drives, instead of the real HTTP client.
func WithReviewConnector(c review.Connector) Option {
	return func(a *App) { a.conn = c }
}

// WithCardSource injects the current-card source instead of the add-on
// bridge client.
func WithCardSource(s review.CardSource) Option {
	return func(a *App) { a.cards = s }
}

// WithMetrics attaches the OTel instrument set. When absent the app runs
// unmetered; /metrics still serves whatever the global registry holds.
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// WithLogLevelVar injects the level var backing the slog handler so config
// reloads can adjust verbosity at runtime.
func WithLogLevelVar(v *slog.LevelVar) Option {
	return func(a *App) { a.logLevel = v }
}

// New creates an App by wiring all subsystems together. The providers struct
// comes from main.go (populated via the config registry). Use Option
// functions to inject test doubles for any subsystem.
//
// New performs all initialisation synchronously: Anki clients, review log
// backend, card index, MCP server registration, assistant assembly, and the
// HTTP server. The initial card index sync runs later, in Run.
func New(ctx context.Context, cfg *config.Config, providers *Providers, opts ...Option) (*App, error) {
	if providers == nil {
		providers = &Providers{}
	}
	a := &App{
		cfg:       cfg,
		providers: providers,
	}
	for _, o := range opts {
		o(a)
	}

	a.initAnki()
	a.initLLM()

	if err := a.initHistory(ctx); err != nil {
		return nil, fmt.Errorf("app: init history: %w", err)
	}
	if err := a.initIndex(ctx); err != nil {
		return nil, fmt.Errorf("app: init card index: %w", err)
	}
	if err := a.initMCP(ctx); err != nil {
		return nil, fmt.Errorf("app: init mcp: %w", err)
	}

	a.initAssistant()
	a.review = &swappableReview{}
	a.review.swap(a.buildReview(cfg))
	a.initServer()

	return a, nil
}

// Handler exposes the HTTP surface, mainly so tests and embedders can serve
// it without going through Run.
func (a *App) Handler() http.Handler {
	return a.server.Handler()
}

// initAnki creates the AnkiConnect client and the add-on bridge client
// unless test doubles were injected.
func (a *App) initAnki() {
	client := anki.NewClient(a.cfg.Anki.ConnectURL)
	a.anki = client
	if a.conn == nil {
		a.conn = client
	}
	if a.cards == nil {
		bridge := anki.NewBridge(a.cfg.Anki.BridgeURL)
		a.bridge = bridge
		a.cards = bridge
	}
}

// initLLM assembles the failover chain around the primary LLM provider.
// With no fallbacks configured the primary is used directly.
func (a *App) initLLM() {
	if a.providers.LLM == nil {
		return
	}
	if len(a.providers.LLMFallbacks) == 0 {
		a.llm = a.providers.LLM
		return
	}

	name := a.providers.LLMName
	if name == "" {
		name = "primary"
	}
	fb := resilience.NewLLMFallback(a.providers.LLM, name, resilience.FallbackConfig{})
	for _, entry := range a.providers.LLMFallbacks {
		fb.AddFallback(entry.Name, entry.Provider)
	}
	a.llm = fb
}

// initHistory selects the review log backend: an injected store wins, then
// PostgreSQL, then the JSONL file. With neither configured the review loop
// runs without a log.
func (a *App) initHistory(ctx context.Context) error {
	if a.history != nil {
		return nil
	}

	switch {
	case a.cfg.History.PostgresDSN != "":
		pool, err := pgxpool.New(ctx, a.cfg.History.PostgresDSN)
		if err != nil {
			return fmt.Errorf("connect postgres: %w", err)
		}
		store, err := history.NewPGStore(ctx, pool)
		if err != nil {
			pool.Close()
			return err
		}
		a.history = store
		a.closers = append(a.closers, func() error {
			pool.Close()
			return nil
		})

	case a.cfg.History.FilePath != "":
		a.history = history.NewFileStore(a.cfg.History.FilePath)

	default:
		slog.Info("no history backend configured, review log disabled")
	}
	return nil
}

// initIndex creates the pgvector card index and its syncer when both a DSN
// and an embeddings provider are configured.
func (a *App) initIndex(ctx context.Context) error {
	if a.cfg.Index.PostgresDSN == "" {
		return nil
	}
	if a.providers.Embeddings == nil {
		return fmt.Errorf("index.postgres_dsn is set but no embeddings provider is configured")
	}

	idx, err := cardindex.New(ctx, a.cfg.Index.PostgresDSN, a.providers.Embeddings)
	if err != nil {
		return err
	}
	a.index = idx
	a.closers = append(a.closers, func() error {
		idx.Close()
		return nil
	})

	a.syncer = cardindex.NewSyncer(a.anki, idx)
	return nil
}

// initMCP creates the tool host, registers the builtin review tools, and
// connects the configured external MCP servers.
func (a *App) initMCP(ctx context.Context) error {
	var hostOpts []mcphost.Option
	if a.metrics != nil {
		hostOpts = append(hostOpts, mcphost.WithMetrics(a.metrics))
	}
	host := mcphost.New(hostOpts...)
	a.mcpHost = host
	a.closers = append(a.closers, host.Close)

	builtins := []mcphost.BuiltinTool{
		mcphost.CurrentCardTool(a.cards),
		mcphost.CardInfoTool(a.anki),
	}
	if a.index != nil {
		builtins = append(builtins, mcphost.SimilarCardsTool(a.index))
	}
	for _, tool := range builtins {
		if err := host.RegisterBuiltin(tool); err != nil {
			return fmt.Errorf("register builtin tool: %w", err)
		}
	}

	for _, srv := range a.cfg.MCP.Servers {
		serverCfg := mcphost.ServerConfig{
			Name:      srv.Name,
			Transport: srv.Transport,
			Command:   srv.Command,
			URL:       srv.URL,
			Env:       srv.Env,
		}
		if err := host.RegisterServer(ctx, serverCfg); err != nil {
			return fmt.Errorf("register mcp server %q: %w", srv.Name, err)
		}
		slog.Info("registered MCP server", "name", srv.Name)
	}
	return nil
}

// initAssistant builds the follow-up assistant when an LLM is configured.
func (a *App) initAssistant() {
	if a.llm == nil {
		slog.Warn("no LLM provider configured, questions and explanations disabled")
		return
	}
	asstOpts := []assistant.Option{
		assistant.WithTools(a.mcpHost),
	}
	if a.index != nil {
		asstOpts = append(asstOpts, assistant.WithCardIndex(a.index))
	}
	if a.metrics != nil {
		asstOpts = append(asstOpts, assistant.WithMetrics(a.metrics))
	}
	a.asst = assistant.New(a.llm, asstOpts...)
}

// initServer assembles the HTTP surface around the review service.
func (a *App) initServer() {
	srvOpts := []server.Option{
		server.WithHealth(health.New(a.healthCheckers()...)),
		server.WithLanguage(a.cfg.Review.Language),
		server.WithKeywords(keywordBoosts(a.cfg)),
	}
	if a.providers.STT != nil {
		srvOpts = append(srvOpts, server.WithSTT(a.providers.STT))
	} else {
		slog.Warn("no STT provider configured, voice endpoint disabled")
	}
	if a.metrics != nil {
		srvOpts = append(srvOpts, server.WithMetrics(a.metrics))
	}
	a.server = server.New(a.review, srvOpts...)
}

// buildReview constructs a review service from the given config. Called at
// startup and again on each hot reload that touches the vocabulary.
func (a *App) buildReview(cfg *config.Config) *review.Service {
	opts := []review.Option{
		review.WithParser(buildParser(cfg)),
	}

	if terms := deckTermList(cfg); len(terms) > 0 {
		opts = append(opts, review.WithCorrector(a.buildCorrector(cfg), terms...))
	}
	if sets := termSets(cfg); len(sets) > 0 {
		opts = append(opts, review.WithTermSets(sets))
	}
	if a.asst != nil {
		opts = append(opts, review.WithAssistant(a.asst))
	}
	if a.history != nil {
		opts = append(opts, review.WithHistory(a.history))
	}
	if a.metrics != nil {
		opts = append(opts, review.WithMetrics(a.metrics))
	}

	return review.New(a.conn, a.cards, opts...)
}

// buildCorrector assembles the transcript correction pipeline: phonetic
// matching always, LLM correction only when enabled and an LLM exists.
func (a *App) buildCorrector(cfg *config.Config) transcript.Pipeline {
	opts := []transcript.PipelineOption{
		transcript.WithPhoneticMatcher(phonetic.New()),
	}
	if cfg.Review.LLMCorrection && a.llm != nil {
		opts = append(opts, transcript.WithLLMCorrector(llmcorrect.New(a.llm)))
	}
	return transcript.NewPipeline(opts...)
}

// healthCheckers builds the readiness probes: AnkiConnect, the add-on
// bridge, and the LLM token counter when one is configured.
func (a *App) healthCheckers() []health.Checker {
	checkers := []health.Checker{
		{
			Name: "ankiconnect",
			Check: func(ctx context.Context) error {
				_, err := a.anki.Version(ctx)
				return err
			},
		},
	}
	if a.bridge != nil {
		checkers = append(checkers, health.Checker{
			Name: "bridge",
			Check: func(ctx context.Context) error {
				// An idle reviewer is healthy; only transport failures count.
				_, err := a.bridge.Current(ctx)
				if errors.Is(err, anki.ErrNoCard) {
					return nil
				}
				return err
			},
		})
	}
	if a.llm != nil {
		llmProvider := a.llm
		checkers = append(checkers, health.Checker{
			Name: "llm",
			Check: func(context.Context) error {
				_, err := llmProvider.CountTokens([]types.Message{{Role: "user", Content: "ping"}})
				return err
			},
		})
	}
	return checkers
}

// buildParser extends the default classifier vocabulary with the configured
// extra grade words and question cues.
func buildParser(cfg *config.Config) *intent.Parser {
	var opts []intent.Option
	if len(cfg.Review.ExtraGradeWords) > 0 {
		opts = append(opts, intent.WithGradeWords(cfg.Review.ExtraGradeWords))
	}
	if len(cfg.Review.ExtraQuestionCues) > 0 {
		opts = append(opts, intent.WithQuestionCues(cfg.Review.ExtraQuestionCues...))
	}
	return intent.NewParser(opts...)
}

// deckTermList flattens the per-deck terms into the single list the phonetic
// corrector matches against.
func deckTermList(cfg *config.Config) []string {
	var terms []string
	seen := make(map[string]struct{})
	for _, deckTerms := range cfg.Review.DeckTerms {
		for _, t := range deckTerms {
			if _, ok := seen[t]; ok {
				continue
			}
			seen[t] = struct{}{}
			terms = append(terms, t)
		}
	}
	return terms
}

// keywordBoosts converts the deck term list into STT vocabulary hints.
func keywordBoosts(cfg *config.Config) []types.KeywordBoost {
	terms := deckTermList(cfg)
	if len(terms) == 0 {
		return nil
	}
	boosts := make([]types.KeywordBoost, 0, len(terms))
	for _, t := range terms {
		boosts = append(boosts, types.KeywordBoost{Keyword: t, Boost: 1})
	}
	return boosts
}

// termSets converts the config term sets into the judge's representation.
func termSets(cfg *config.Config) map[string]judge.TermSet {
	if len(cfg.Review.TermSets) == 0 {
		return nil
	}
	sets := make(map[string]judge.TermSet, len(cfg.Review.TermSets))
	for deck, terms := range cfg.Review.TermSets {
		ts := make(judge.TermSet, len(terms))
		for term, aliases := range terms {
			ts[term] = aliases
		}
		sets[deck] = ts
	}
	return sets
}
