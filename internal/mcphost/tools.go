package mcphost

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/ankivoice/ankivoice/internal/anki"
	"github.com/ankivoice/ankivoice/internal/cardindex"
	"github.com/ankivoice/ankivoice/internal/cardtext"
	"github.com/ankivoice/ankivoice/pkg/types"
)

// CurrentCardSource reports the card currently shown in the review window.
// Satisfied by *anki.Bridge.
type CurrentCardSource interface {
	Current(ctx context.Context) (*anki.CurrentCard, error)
}

// NoteSource fetches note metadata from the collection. Satisfied by
// *anki.Client.
type NoteSource interface {
	NotesInfo(ctx context.Context, noteIDs []int64) ([]anki.NoteInfo, error)
}

// SimilaritySearcher finds cards semantically close to a query text.
// Satisfied by *cardindex.Index.
type SimilaritySearcher interface {
	Similar(ctx context.Context, text string, topK int, deck string, excludeNoteID int64) ([]cardindex.Hit, error)
}

// CurrentCardTool returns a builtin tool that reports the card under review
// with its HTML stripped to plain text. When no review is in progress the
// tool reports status "idle" instead of erroring, so the model can explain
// the situation to the user.
func CurrentCardTool(src CurrentCardSource) BuiltinTool {
	return BuiltinTool{
		Definition: types.ToolDefinition{
			Name:        "current_card",
			Description: "Get the flashcard currently shown in the review window: its front and back text and identifiers. Takes no arguments.",
			Parameters: map[string]any{
				"type":       "object",
				"properties": map[string]any{},
			},
		},
		Handler: func(ctx context.Context, _ string) (string, error) {
			card, err := src.Current(ctx)
			if errors.Is(err, anki.ErrNoCard) {
				return `{"status":"idle"}`, nil
			}
			if err != nil {
				return "", err
			}
			return marshalTool(map[string]any{
				"status":  "reviewing",
				"card_id": card.CardID,
				"note_id": card.NoteID,
				"front":   cardtext.Text(card.FrontHTML),
				"back":    cardtext.Text(card.BackHTML),
			})
		},
	}
}

// CardInfoTool returns a builtin tool that fetches a note's model, tags, and
// field values by note ID.
func CardInfoTool(src NoteSource) BuiltinTool {
	return BuiltinTool{
		Definition: types.ToolDefinition{
			Name:        "card_info",
			Description: "Look up a flashcard note by its note_id: note type, tags, and all field values as plain text.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"note_id": map[string]any{
						"type":        "integer",
						"description": "The Anki note ID to look up.",
					},
				},
				"required": []string{"note_id"},
			},
		},
		Handler: func(ctx context.Context, args string) (string, error) {
			var req struct {
				NoteID int64 `json:"note_id"`
			}
			if err := json.Unmarshal([]byte(args), &req); err != nil {
				return "", fmt.Errorf("card_info: invalid args: %w", err)
			}
			if req.NoteID == 0 {
				return "", fmt.Errorf("card_info: note_id is required")
			}

			notes, err := src.NotesInfo(ctx, []int64{req.NoteID})
			if err != nil {
				return "", err
			}
			if len(notes) == 0 {
				return "", fmt.Errorf("card_info: note %d not found", req.NoteID)
			}

			note := notes[0]
			fields := make(map[string]string, len(note.Fields))
			for name, f := range note.Fields {
				fields[name] = cardtext.Text(f.Value)
			}
			return marshalTool(map[string]any{
				"note_id": note.NoteID,
				"model":   note.ModelName,
				"tags":    note.Tags,
				"fields":  fields,
			})
		},
	}
}

// similarCardsDefaultTopK bounds result size when the model omits top_k.
const similarCardsDefaultTopK = 5

// SimilarCardsTool returns a builtin tool that searches the card index for
// cards semantically close to a query text.
func SimilarCardsTool(idx SimilaritySearcher) BuiltinTool {
	return BuiltinTool{
		Definition: types.ToolDefinition{
			Name:        "similar_cards",
			Description: "Find flashcards semantically similar to a text. Useful for surfacing related material when answering a question about the current card.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"text": map[string]any{
						"type":        "string",
						"description": "The query text to search for.",
					},
					"top_k": map[string]any{
						"type":        "integer",
						"description": "Maximum number of results (default 5).",
					},
					"deck": map[string]any{
						"type":        "string",
						"description": "Restrict results to this deck.",
					},
					"exclude_note_id": map[string]any{
						"type":        "integer",
						"description": "Note ID to exclude, typically the card under review.",
					},
				},
				"required": []string{"text"},
			},
		},
		Handler: func(ctx context.Context, args string) (string, error) {
			var req struct {
				Text          string `json:"text"`
				TopK          int    `json:"top_k"`
				Deck          string `json:"deck"`
				ExcludeNoteID int64  `json:"exclude_note_id"`
			}
			if err := json.Unmarshal([]byte(args), &req); err != nil {
				return "", fmt.Errorf("similar_cards: invalid args: %w", err)
			}
			if req.Text == "" {
				return "", fmt.Errorf("similar_cards: text is required")
			}
			if req.TopK <= 0 {
				req.TopK = similarCardsDefaultTopK
			}

			hits, err := idx.Similar(ctx, req.Text, req.TopK, req.Deck, req.ExcludeNoteID)
			if err != nil {
				return "", err
			}

			out := make([]map[string]any, 0, len(hits))
			for _, h := range hits {
				out = append(out, map[string]any{
					"note_id":  h.Card.NoteID,
					"deck":     h.Card.Deck,
					"front":    h.Card.Front,
					"distance": h.Distance,
				})
			}
			return marshalTool(map[string]any{"cards": out})
		},
	}
}

// marshalTool encodes a tool result payload as a compact JSON string.
func marshalTool(v any) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("mcp host: encode tool result: %w", err)
	}
	return string(data), nil
}
