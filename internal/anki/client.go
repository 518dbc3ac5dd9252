// Package anki integrates with a locally running Anki instance through two
// surfaces:
//
//   - [Client] speaks the AnkiConnect add-on's JSON API (POST {action,
//     version, params} to port 8765) for review actions, card/note lookups,
//     media, and tagging.
//   - [Bridge] speaks to the companion in-Anki add-on (port 8770) that
//     exposes the reviewer's current card with fully rendered front and back
//     HTML, which AnkiConnect does not provide.
//
// Only standard library packages are used — the protocol is plain JSON over
// HTTP against localhost.
package anki

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// DefaultConnectURL is where the AnkiConnect add-on listens by default.
const DefaultConnectURL = "http://127.0.0.1:8765"

// connectVersion is the AnkiConnect API version sent with every request.
const connectVersion = 6

const (
	defaultDataTimeout = 2 * time.Second
	defaultGUITimeout  = 4 * time.Second
)

// ClientOption is a functional option for [Client].
type ClientOption func(*Client)

// WithHTTPClient replaces the underlying HTTP client. Useful for tests and
// for sharing a transport.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithTimeouts overrides the per-action deadlines. gui* actions block on the
// Anki UI thread and get the longer gui deadline; every other action uses the
// data deadline. Zero values keep the defaults (2s data, 4s gui).
func WithTimeouts(data, gui time.Duration) ClientOption {
	return func(c *Client) {
		if data > 0 {
			c.dataTimeout = data
		}
		if gui > 0 {
			c.guiTimeout = gui
		}
	}
}

// Client is an AnkiConnect API client. It is safe for concurrent use.
type Client struct {
	baseURL     string
	httpClient  *http.Client
	dataTimeout time.Duration
	guiTimeout  time.Duration
}

// NewClient constructs a [Client] for the AnkiConnect endpoint at baseURL.
// An empty baseURL selects [DefaultConnectURL].
func NewClient(baseURL string, opts ...ClientOption) *Client {
	if baseURL == "" {
		baseURL = DefaultConnectURL
	}
	c := &Client{
		baseURL:     strings.TrimRight(baseURL, "/"),
		httpClient:  &http.Client{},
		dataTimeout: defaultDataTimeout,
		guiTimeout:  defaultGUITimeout,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// connectRequest is the AnkiConnect request envelope.
type connectRequest struct {
	Action  string `json:"action"`
	Version int    `json:"version"`
	Params  any    `json:"params,omitempty"`
}

// connectResponse is the AnkiConnect response envelope. Error is null on
// success.
type connectResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *string         `json:"error"`
}

// call sends one AnkiConnect action and decodes its result into out (when
// out is non-nil). Each call carries its own deadline on top of ctx: gui*
// actions wait on the Anki UI thread and get a longer one.
func (c *Client) call(ctx context.Context, action string, params, out any) error {
	timeout := c.dataTimeout
	if strings.HasPrefix(action, "gui") {
		timeout = c.guiTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	body, err := json.Marshal(connectRequest{
		Action:  action,
		Version: connectVersion,
		Params:  params,
	})
	if err != nil {
		return fmt.Errorf("ankiconnect: %s: marshal request: %w", action, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("ankiconnect: %s: build request: %w", action, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("ankiconnect: %s: http: %w (is Anki running with the AnkiConnect add-on?)", action, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("ankiconnect: %s: unexpected status %d", action, resp.StatusCode)
	}

	var env connectResponse
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return fmt.Errorf("ankiconnect: %s: decode response: %w", action, err)
	}
	if env.Error != nil && *env.Error != "" {
		return fmt.Errorf("ankiconnect: %s: %s", action, *env.Error)
	}

	if out != nil && len(env.Result) > 0 && string(env.Result) != "null" {
		if err := json.Unmarshal(env.Result, out); err != nil {
			return fmt.Errorf("ankiconnect: %s: decode result: %w", action, err)
		}
	}
	return nil
}

// Version returns the AnkiConnect API version reported by the add-on. It
// doubles as the liveness probe for readiness checks.
func (c *Client) Version(ctx context.Context) (int, error) {
	var v int
	if err := c.call(ctx, "version", nil, &v); err != nil {
		return 0, err
	}
	return v, nil
}

// GuiShowAnswer flips the current card in the reviewer to its answer side.
func (c *Client) GuiShowAnswer(ctx context.Context) error {
	return c.call(ctx, "guiShowAnswer", nil, nil)
}

// GuiAnswerCard grades the current card. ease is the Anki button number:
// 1=Again, 2=Hard, 3=Good, 4=Easy.
func (c *Client) GuiAnswerCard(ctx context.Context, ease int) error {
	if ease < 1 || ease > 4 {
		return fmt.Errorf("ankiconnect: guiAnswerCard: ease %d out of range 1..4", ease)
	}
	return c.call(ctx, "guiAnswerCard", map[string]int{"ease": ease}, nil)
}

// GuiUndoReview undoes the most recent review action.
func (c *Client) GuiUndoReview(ctx context.Context) error {
	return c.call(ctx, "guiUndoReview", nil, nil)
}

// GuiDeckOverview leaves the reviewer and shows the deck overview. Deleting
// the note of the card currently under review crashes the reviewer, so
// callers close it first.
func (c *Client) GuiDeckOverview(ctx context.Context) error {
	return c.call(ctx, "guiDeckOverview", nil, nil)
}

// Field is a single note field value with its template order.
type Field struct {
	Value string `json:"value"`
	Order int    `json:"order"`
}

// CardInfo is the subset of AnkiConnect's cardsInfo result the server uses.
type CardInfo struct {
	CardID    int64            `json:"cardId"`
	Note      int64            `json:"note"`
	DeckName  string           `json:"deckName"`
	ModelName string           `json:"modelName"`
	Question  string           `json:"question"`
	Answer    string           `json:"answer"`
	Fields    map[string]Field `json:"fields"`
}

// CardsInfo fetches metadata for the given card IDs.
func (c *Client) CardsInfo(ctx context.Context, cardIDs []int64) ([]CardInfo, error) {
	var cards []CardInfo
	err := c.call(ctx, "cardsInfo", map[string][]int64{"cards": cardIDs}, &cards)
	if err != nil {
		return nil, err
	}
	return cards, nil
}

// NoteIDForCard resolves the note a card belongs to.
func (c *Client) NoteIDForCard(ctx context.Context, cardID int64) (int64, error) {
	cards, err := c.CardsInfo(ctx, []int64{cardID})
	if err != nil {
		return 0, err
	}
	if len(cards) == 0 {
		return 0, fmt.Errorf("ankiconnect: cardsInfo: card %d not found", cardID)
	}
	return cards[0].Note, nil
}

// NoteInfo is the subset of AnkiConnect's notesInfo result the server uses.
type NoteInfo struct {
	NoteID    int64            `json:"noteId"`
	ModelName string           `json:"modelName"`
	Tags      []string         `json:"tags"`
	Fields    map[string]Field `json:"fields"`
}

// NotesInfo fetches metadata for the given note IDs.
func (c *Client) NotesInfo(ctx context.Context, noteIDs []int64) ([]NoteInfo, error) {
	var notes []NoteInfo
	err := c.call(ctx, "notesInfo", map[string][]int64{"notes": noteIDs}, &notes)
	if err != nil {
		return nil, err
	}
	return notes, nil
}

// DeleteNotes permanently removes the given notes and all their cards.
func (c *Client) DeleteNotes(ctx context.Context, noteIDs []int64) error {
	return c.call(ctx, "deleteNotes", map[string][]int64{"notes": noteIDs}, nil)
}

// Suspend suspends the given cards so they stop appearing in reviews
// without being deleted.
func (c *Client) Suspend(ctx context.Context, cardIDs []int64) error {
	return c.call(ctx, "suspend", map[string][]int64{"cards": cardIDs}, nil)
}

// RetrieveMediaFile fetches a file from Anki's media folder. The add-on
// returns the content base64-encoded; the decoded bytes are returned.
// A missing file yields AnkiConnect result false, reported as an error.
func (c *Client) RetrieveMediaFile(ctx context.Context, filename string) ([]byte, error) {
	var raw json.RawMessage
	if err := c.call(ctx, "retrieveMediaFile", map[string]string{"filename": filename}, &raw); err != nil {
		return nil, err
	}
	var encoded string
	if err := json.Unmarshal(raw, &encoded); err != nil {
		// AnkiConnect returns literal false when the file does not exist.
		return nil, fmt.Errorf("ankiconnect: retrieveMediaFile: %q not found", filename)
	}
	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("ankiconnect: retrieveMediaFile: decode: %w", err)
	}
	return data, nil
}

// StoreMediaFile writes data into Anki's media folder under filename,
// overwriting any existing file.
func (c *Client) StoreMediaFile(ctx context.Context, filename string, data []byte) error {
	params := map[string]string{
		"filename": filename,
		"data":     base64.StdEncoding.EncodeToString(data),
	}
	return c.call(ctx, "storeMediaFile", params, nil)
}

// DeckNames lists all deck names in the collection.
func (c *Client) DeckNames(ctx context.Context) ([]string, error) {
	var names []string
	if err := c.call(ctx, "deckNames", nil, &names); err != nil {
		return nil, err
	}
	return names, nil
}

// FindNotes returns the note IDs matching an Anki search query, e.g.
// `deck:"Spanish::Verbs"`.
func (c *Client) FindNotes(ctx context.Context, query string) ([]int64, error) {
	var ids []int64
	if err := c.call(ctx, "findNotes", map[string]string{"query": query}, &ids); err != nil {
		return nil, err
	}
	return ids, nil
}

// AddTags adds the space-separated tags to the given notes.
func (c *Client) AddTags(ctx context.Context, noteIDs []int64, tags string) error {
	params := map[string]any{"notes": noteIDs, "tags": tags}
	return c.call(ctx, "addTags", params, nil)
}

// RemoveTags removes the space-separated tags from the given notes.
func (c *Client) RemoveTags(ctx context.Context, noteIDs []int64, tags string) error {
	params := map[string]any{"notes": noteIDs, "tags": tags}
	return c.call(ctx, "removeTags", params, nil)
}
