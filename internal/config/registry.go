package config

import (
	"errors"
	"fmt"
	"sync"

	"github.com/ankivoice/ankivoice/pkg/provider/embeddings"
	"github.com/ankivoice/ankivoice/pkg/provider/llm"
	"github.com/ankivoice/ankivoice/pkg/provider/stt"
)

// ErrProviderNotRegistered is returned by the Create methods when nothing was
// registered under the requested name.
var ErrProviderNotRegistered = errors.New("config: provider not registered")

// Factory builds a provider of type P from its config entry.
type Factory[P any] func(ProviderEntry) (P, error)

// factoryTable is one name-to-factory map, safe for concurrent use.
type factoryTable[P any] struct {
	kind string
	mu   sync.RWMutex
	m    map[string]Factory[P]
}

func newFactoryTable[P any](kind string) *factoryTable[P] {
	return &factoryTable[P]{kind: kind, m: make(map[string]Factory[P])}
}

// register stores f under name, replacing any previous registration.
func (t *factoryTable[P]) register(name string, f Factory[P]) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.m[name] = f
}

func (t *factoryTable[P]) create(entry ProviderEntry) (P, error) {
	t.mu.RLock()
	f, ok := t.m[entry.Name]
	t.mu.RUnlock()
	if !ok {
		var zero P
		return zero, fmt.Errorf("%w: %s/%q", ErrProviderNotRegistered, t.kind, entry.Name)
	}
	return f(entry)
}

// Registry resolves configured provider names to constructors, one table per
// provider kind. main registers the built-in providers at startup; tests
// register stubs.
type Registry struct {
	llm        *factoryTable[llm.Provider]
	stt        *factoryTable[stt.Provider]
	embeddings *factoryTable[embeddings.Provider]
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		llm:        newFactoryTable[llm.Provider]("llm"),
		stt:        newFactoryTable[stt.Provider]("stt"),
		embeddings: newFactoryTable[embeddings.Provider]("embeddings"),
	}
}

// RegisterLLM registers an LLM factory under name.
func (r *Registry) RegisterLLM(name string, factory Factory[llm.Provider]) {
	r.llm.register(name, factory)
}

// RegisterSTT registers a speech-to-text factory under name.
func (r *Registry) RegisterSTT(name string, factory Factory[stt.Provider]) {
	r.stt.register(name, factory)
}

// RegisterEmbeddings registers an embeddings factory under name.
func (r *Registry) RegisterEmbeddings(name string, factory Factory[embeddings.Provider]) {
	r.embeddings.register(name, factory)
}

// CreateLLM builds the LLM provider entry names.
func (r *Registry) CreateLLM(entry ProviderEntry) (llm.Provider, error) {
	return r.llm.create(entry)
}

// CreateSTT builds the speech-to-text provider entry names.
func (r *Registry) CreateSTT(entry ProviderEntry) (stt.Provider, error) {
	return r.stt.create(entry)
}

// CreateEmbeddings builds the embeddings provider entry names.
func (r *Registry) CreateEmbeddings(entry ProviderEntry) (embeddings.Provider, error) {
	return r.embeddings.create(entry)
}
