package anki

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// DefaultBridgeURL is where the in-Anki bridge add-on listens by default.
// The add-on falls back to port 8771 when 8770 is taken.
const DefaultBridgeURL = "http://127.0.0.1:8770"

const defaultBridgeTimeout = 2 * time.Second

// ErrNoCard is returned by [Bridge.Current] when the reviewer is idle — no
// deck is open or the review session has ended.
var ErrNoCard = errors.New("anki bridge: no card under review")

// BridgeOption is a functional option for [Bridge].
type BridgeOption func(*Bridge)

// WithBridgeHTTPClient replaces the underlying HTTP client.
func WithBridgeHTTPClient(hc *http.Client) BridgeOption {
	return func(b *Bridge) {
		b.httpClient = hc
	}
}

// Bridge is a client for the in-Anki bridge add-on, which exposes the
// reviewer's current card with fully rendered front/back HTML. It is safe
// for concurrent use.
type Bridge struct {
	baseURL    string
	httpClient *http.Client
}

// NewBridge constructs a [Bridge] for the add-on endpoint at baseURL.
// An empty baseURL selects [DefaultBridgeURL].
func NewBridge(baseURL string, opts ...BridgeOption) *Bridge {
	if baseURL == "" {
		baseURL = DefaultBridgeURL
	}
	b := &Bridge{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: defaultBridgeTimeout},
	}
	for _, o := range opts {
		o(b)
	}
	return b
}

// CurrentCard is the reviewer state reported by the bridge add-on. The HTML
// fields are the rendered templates, including content pulled in via
// {{FrontSide}}.
type CurrentCard struct {
	Status    string `json:"status"`
	CardID    int64  `json:"cardId"`
	NoteID    int64  `json:"noteId"`
	DeckID    int64  `json:"deckId"`
	FrontHTML string `json:"front_html"`
	BackHTML  string `json:"back_html"`
}

// Ping checks that the bridge add-on is reachable inside a running Anki.
func (b *Bridge) Ping(ctx context.Context) error {
	var out struct {
		OK bool `json:"ok"`
	}
	if err := b.get(ctx, "/ping", &out); err != nil {
		return err
	}
	if !out.OK {
		return errors.New("anki bridge: ping not ok")
	}
	return nil
}

// Current returns the card currently shown in the reviewer. When the
// reviewer is idle, [ErrNoCard] is returned.
func (b *Bridge) Current(ctx context.Context) (*CurrentCard, error) {
	var card CurrentCard
	if err := b.get(ctx, "/current", &card); err != nil {
		return nil, err
	}
	if card.Status != "ok" {
		return nil, ErrNoCard
	}
	return &card, nil
}

// get issues a GET request against the bridge and decodes the JSON response.
func (b *Bridge) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, b.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("anki bridge: %s: build request: %w", path, err)
	}

	resp, err := b.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("anki bridge: %s: http: %w (is the bridge add-on installed?)", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("anki bridge: %s: unexpected status %d", path, resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("anki bridge: %s: decode response: %w", path, err)
	}
	return nil
}
