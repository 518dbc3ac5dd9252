package ollama_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ankivoice/ankivoice/pkg/provider/embeddings/ollama"
)

// unreachableURL points at a port nothing listens on, so a test fails fast if
// a request is issued where none should be.
const unreachableURL = "http://127.0.0.1:19999"

// embedServer serves /api/embed, echoing one canned vector per input text.
type embedServer struct {
	*httptest.Server
	calls atomic.Int64
}

func newEmbedServer(t *testing.T, wantModel string, vectors [][]float32) *embedServer {
	t.Helper()
	s := &embedServer{}
	s.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.calls.Add(1)
		if r.URL.Path != "/api/embed" || r.Method != http.MethodPost {
			t.Errorf("request = %s %s, want POST /api/embed", r.Method, r.URL.Path)
			http.Error(w, "bad route", http.StatusNotFound)
			return
		}
		var req struct {
			Model string   `json:"model"`
			Input []string `json:"input"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}
		if req.Model != wantModel {
			t.Errorf("model = %q, want %q", req.Model, wantModel)
		}

		out := vectors
		if len(out) > len(req.Input) {
			out = out[:len(req.Input)]
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"model":      wantModel,
			"embeddings": out,
		})
	}))
	t.Cleanup(s.Close)
	return s
}

func sameVector(t *testing.T, got, want []float32) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("vector length = %d, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("vec[%d] = %v, want %v", i, got[i], want[i])
		}
	}
}

func TestNew_RequiresAModel(t *testing.T) {
	if _, err := ollama.New("", ""); err == nil {
		t.Fatal("New with an empty model succeeded, want error")
	}
}

func TestNew_EmptyBaseURLUsesTheDefault(t *testing.T) {
	p, err := ollama.New("", "nomic-embed-text")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if p.ModelID() != "nomic-embed-text" {
		t.Errorf("ModelID = %q, want nomic-embed-text", p.ModelID())
	}
}

func TestEmbed_SingleText(t *testing.T) {
	want := []float32{0.1, 0.2, 0.3, 0.4}
	srv := newEmbedServer(t, "nomic-embed-text", [][]float32{want})

	p, err := ollama.New(srv.URL, "nomic-embed-text")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	got, err := p.Embed(context.Background(), "query: die Brücke")
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	sameVector(t, got, want)
}

func TestEmbedBatch_OrderMatchesTheInput(t *testing.T) {
	vecs := [][]float32{
		{0.1, 0.2, 0.3},
		{0.4, 0.5, 0.6},
		{0.7, 0.8, 0.9},
	}
	srv := newEmbedServer(t, "nomic-embed-text", vecs)

	p, err := ollama.New(srv.URL, "nomic-embed-text")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	got, err := p.EmbedBatch(context.Background(),
		[]string{"card front one", "card front two", "card front three"})
	if err != nil {
		t.Fatalf("EmbedBatch: %v", err)
	}
	if len(got) != len(vecs) {
		t.Fatalf("vectors = %d, want %d", len(got), len(vecs))
	}
	for i := range vecs {
		sameVector(t, got[i], vecs[i])
	}
	if srv.calls.Load() != 1 {
		t.Errorf("requests = %d, want the whole batch in one", srv.calls.Load())
	}
}

func TestEmbedBatch_NothingToEmbed(t *testing.T) {
	p, err := ollama.New(unreachableURL, "nomic-embed-text")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	got, err := p.EmbedBatch(context.Background(), nil)
	if err != nil {
		t.Fatalf("EmbedBatch(nil): %v", err)
	}
	if got != nil {
		t.Errorf("EmbedBatch(nil) = %v, want nil with no request issued", got)
	}
}

func TestDimensions_KnownModelsNeedNoServer(t *testing.T) {
	tests := []struct {
		model string
		want  int
	}{
		{"nomic-embed-text", 768},
		{"nomic-embed-text:latest", 768},
		{"mxbai-embed-large", 1024},
		{"all-minilm", 384},
	}
	for _, tc := range tests {
		t.Run(tc.model, func(t *testing.T) {
			p, err := ollama.New(unreachableURL, tc.model)
			if err != nil {
				t.Fatalf("New: %v", err)
			}
			if got := p.Dimensions(); got != tc.want {
				t.Errorf("Dimensions = %d, want %d", got, tc.want)
			}
		})
	}
}

func TestDimensions_UnknownModelIsMeasuredOnce(t *testing.T) {
	const dim = 512
	vec := make([]float32, dim)
	for i := range vec {
		vec[i] = float32(i) / float32(dim)
	}
	srv := newEmbedServer(t, "custom-embed", [][]float32{vec})

	p, err := ollama.New(srv.URL, "custom-embed")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	for i := 0; i < 3; i++ {
		if got := p.Dimensions(); got != dim {
			t.Errorf("Dimensions call %d = %d, want %d", i, got, dim)
		}
	}
	if srv.calls.Load() != 1 {
		t.Errorf("detection requests = %d, want exactly 1", srv.calls.Load())
	}
}

func TestDimensions_ExplicitOptionWins(t *testing.T) {
	p, err := ollama.New(unreachableURL, "custom-model", ollama.WithDimensions(256))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if got := p.Dimensions(); got != 256 {
		t.Errorf("Dimensions = %d, want the configured 256", got)
	}
}

func TestEmbed_Failures(t *testing.T) {
	internalError := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "internal server error", http.StatusInternalServerError)
	}))
	t.Cleanup(internalError.Close)

	notJSON := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte("not-json"))
	}))
	t.Cleanup(notJSON.Close)

	tests := []struct {
		name string
		url  string
	}{
		{name: "server unreachable", url: unreachableURL},
		{name: "server errors", url: internalError.URL},
		{name: "body is not JSON", url: notJSON.URL},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			p, err := ollama.New(tc.url, "nomic-embed-text",
				ollama.WithTimeout(500*time.Millisecond))
			if err != nil {
				t.Fatalf("New: %v", err)
			}
			if _, err := p.Embed(context.Background(), "hello"); err == nil {
				t.Fatal("Embed succeeded, want error")
			}
		})
	}
}

func TestEmbed_HonoursContextCancellation(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-release:
		}
	}))
	// LIFO: release the handler before Close drains connections.
	defer srv.Close()
	defer close(release)

	p, err := ollama.New(srv.URL, "nomic-embed-text")
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	if _, err := p.Embed(ctx, "hello"); err == nil {
		t.Fatal("Embed outlived its context, want error")
	}
}
