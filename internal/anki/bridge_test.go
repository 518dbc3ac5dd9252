package anki_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ankivoice/ankivoice/internal/anki"
)

func newStubBridge(t *testing.T, routes map[string]string) *anki.Bridge {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, ok := routes[r.URL.Path]
		if !ok {
			http.Error(w, `{"error": "not found"}`, http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return anki.NewBridge(srv.URL)
}

func TestBridge_Ping(t *testing.T) {
	t.Parallel()

	b := newStubBridge(t, map[string]string{
		"/ping": `{"ok": true}`,
	})
	if err := b.Ping(context.Background()); err != nil {
		t.Fatalf("Ping returned error: %v", err)
	}
}

func TestBridge_PingNotOK(t *testing.T) {
	t.Parallel()

	b := newStubBridge(t, map[string]string{
		"/ping": `{"ok": false}`,
	})
	if err := b.Ping(context.Background()); err == nil {
		t.Fatal("expected error for ok=false")
	}
}

func TestBridge_Current(t *testing.T) {
	t.Parallel()

	b := newStubBridge(t, map[string]string{
		"/current": `{"status": "ok", "cardId": 1498938915662, "noteId": 1502298033753,
			"deckId": 1, "front_html": "<div class=\"README\">hablar</div>",
			"back_html": "<div class=\"README\">to speak</div>"}`,
	})

	card, err := b.Current(context.Background())
	if err != nil {
		t.Fatalf("Current returned error: %v", err)
	}
	if card.CardID != 1498938915662 {
		t.Errorf("CardID=%d, want 1498938915662", card.CardID)
	}
	if card.FrontHTML == "" || card.BackHTML == "" {
		t.Error("expected rendered front/back HTML")
	}
}

func TestBridge_CurrentIdle(t *testing.T) {
	t.Parallel()

	b := newStubBridge(t, map[string]string{
		"/current": `{"status": "idle"}`,
	})

	_, err := b.Current(context.Background())
	if !errors.Is(err, anki.ErrNoCard) {
		t.Fatalf("err=%v, want ErrNoCard", err)
	}
}

func TestBridge_Unreachable(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // immediately closed → connection refused

	b := anki.NewBridge(srv.URL)
	if err := b.Ping(context.Background()); err == nil {
		t.Fatal("expected connection error")
	}
}
