// Command ankideck configures a deck for voice review: it writes a
// deck-level language config into Anki's media folder (the filename starts
// with "_" so Anki won't purge it; the voice client reads it to pick TTS
// voices) and optionally bulk-adds or removes av:* language tags on the
// deck's notes.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"regexp"
	"slices"
	"strings"
	"time"

	"github.com/ankivoice/ankivoice/internal/anki"
)

// deckLangConfig is the JSON written to _ankiVoice.deck.<name>.json.
type deckLangConfig struct {
	FrontLang string `json:"frontLang"`
	BackLang  string `json:"backLang"`
}

// filenameSanitizer reduces a deck name to a safe media filename suffix.
var filenameSanitizer = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

func main() {
	os.Exit(run())
}

func run() int {
	deck := flag.String("deck", "", "deck name (exact as shown in Anki, e.g. 'Spanish 1')")
	frontLang := flag.String("front-lang", "", "BCP-47 language tag for the front (e.g. es-MX)")
	backLang := flag.String("back-lang", "", "BCP-47 language tag for the back (e.g. en-US)")
	tagNotes := flag.Bool("tag-notes", false, "also add av:front=/av:back= tags to all notes in the deck")
	removeTags := flag.Bool("remove-note-tags", false, "remove av:front=/av:back= tags from all notes in the deck")
	dryRun := flag.Bool("dry-run", false, "print what would change without applying")
	ankiURL := flag.String("anki-url", anki.DefaultConnectURL, "AnkiConnect base URL")
	flag.Parse()

	if *deck == "" {
		fmt.Fprintln(os.Stderr, "ankideck: --deck is required")
		flag.Usage()
		return 2
	}
	if (*frontLang == "" || *backLang == "") && !*removeTags {
		fmt.Fprintln(os.Stderr, "ankideck: --front-lang and --back-lang are required unless --remove-note-tags is given")
		return 2
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	client := anki.NewClient(*ankiURL)

	ver, err := client.Version(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "ankideck: cannot reach AnkiConnect at %s: %v\n", *ankiURL, err)
		return 1
	}
	fmt.Printf("Connected to AnkiConnect (version=%d).\n", ver)

	decks, err := client.DeckNames(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "ankideck: list decks: %v\n", err)
		return 1
	}
	if !slices.Contains(decks, *deck) {
		fmt.Fprintf(os.Stderr, "ankideck: deck %q not found. Known decks: %s\n", *deck, strings.Join(decks, ", "))
		return 1
	}

	if !*removeTags {
		fname, err := writeDeckConfig(ctx, client, *deck, *frontLang, *backLang, *dryRun)
		if err != nil {
			fmt.Fprintf(os.Stderr, "ankideck: write deck config: %v\n", err)
			return 1
		}
		fmt.Printf("%sWrote deck config media: %s\n", dryRunPrefix(*dryRun), fname)
	}

	noteIDs, err := client.FindNotes(ctx, fmt.Sprintf("deck:%q", *deck))
	if err != nil {
		fmt.Fprintf(os.Stderr, "ankideck: find notes: %v\n", err)
		return 1
	}
	fmt.Printf("Deck %q: %d notes.\n", *deck, len(noteIDs))

	if *tagNotes && !*removeTags {
		if err := addLangTags(ctx, client, noteIDs, *frontLang, *backLang, *dryRun); err != nil {
			fmt.Fprintf(os.Stderr, "ankideck: tag notes: %v\n", err)
			return 1
		}
	}

	if *removeTags {
		if err := removeLangTags(ctx, client, noteIDs, *dryRun); err != nil {
			fmt.Fprintf(os.Stderr, "ankideck: remove tags: %v\n", err)
			return 1
		}
	}

	fmt.Println("Done.")
	return 0
}

// dryRunPrefix returns the "[dry-run] " output prefix when dryRun is set.
func dryRunPrefix(dryRun bool) string {
	if dryRun {
		return "[dry-run] "
	}
	return ""
}

// writeDeckConfig stores _ankiVoice.deck.<sanitized>.json in the media
// folder and returns the filename.
func writeDeckConfig(ctx context.Context, client *anki.Client, deck, frontLang, backLang string, dryRun bool) (string, error) {
	cfg := deckLangConfig{FrontLang: frontLang, BackLang: backLang}
	contents, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return "", err
	}

	suffix := filenameSanitizer.ReplaceAllString(strings.TrimSpace(deck), "_")
	fname := fmt.Sprintf("_ankiVoice.deck.%s.json", suffix)

	if dryRun {
		fmt.Printf("[dry-run] Would storeMediaFile: %s\n%s\n", fname, contents)
		return fname, nil
	}
	if err := client.StoreMediaFile(ctx, fname, contents); err != nil {
		return "", err
	}
	return fname, nil
}

func addLangTags(ctx context.Context, client *anki.Client, noteIDs []int64, frontLang, backLang string, dryRun bool) error {
	if len(noteIDs) == 0 {
		fmt.Println("No notes found; skipping tag add.")
		return nil
	}
	tags := fmt.Sprintf("av:front=%s av:back=%s", frontLang, backLang)
	if dryRun {
		fmt.Printf("[dry-run] Would addTags to %d notes: %s\n", len(noteIDs), tags)
		return nil
	}
	if err := client.AddTags(ctx, noteIDs, tags); err != nil {
		return err
	}
	fmt.Printf("Tagged notes with %s\n", tags)
	return nil
}

func removeLangTags(ctx context.Context, client *anki.Client, noteIDs []int64, dryRun bool) error {
	if len(noteIDs) == 0 {
		fmt.Println("No notes found; skipping tag removal.")
		return nil
	}
	// Tags are exact tokens; removing a token that doesn't exist is a no-op.
	const tags = "av:front= av:back="
	if dryRun {
		fmt.Printf("[dry-run] Would removeTags from %d notes: %s\n", len(noteIDs), tags)
		return nil
	}
	if err := client.RemoveTags(ctx, noteIDs, tags); err != nil {
		return err
	}
	fmt.Println("Removed av:front=/av:back= tags from notes.")
	return nil
}
