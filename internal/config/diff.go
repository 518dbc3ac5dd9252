package config

import (
	"maps"
	"slices"
)

// ConfigDiff describes what changed between two configs.
// Only fields that can be safely hot-reloaded are tracked: the review
// vocabulary feeds the intent parser and judge, and the log level feeds the
// slog handler. Everything else (listen address, provider stack, database
// DSNs) requires a restart.
type ConfigDiff struct {
	// VocabularyChanged is true when grade words, question cues, or deck
	// terms differ; the intent parser and STT keyword hints should be
	// rebuilt.
	VocabularyChanged bool

	// TermSetsChanged is true when the judge term sets differ.
	TermSetsChanged bool

	LogLevelChanged bool
	NewLogLevel     LogLevel
}

// Diff compares old and new configs and returns what changed.
// Only tracks changes that are safe to apply without restart.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}

	if !maps.Equal(old.Review.ExtraGradeWords, new.Review.ExtraGradeWords) ||
		!slices.Equal(old.Review.ExtraQuestionCues, new.Review.ExtraQuestionCues) ||
		!termListsEqual(old.Review.DeckTerms, new.Review.DeckTerms) {
		d.VocabularyChanged = true
	}

	if !termSetsEqual(old.Review.TermSets, new.Review.TermSets) {
		d.TermSetsChanged = true
	}

	return d
}

func termListsEqual(a, b map[string][]string) bool {
	if len(a) != len(b) {
		return false
	}
	for k, av := range a {
		bv, ok := b[k]
		if !ok || !slices.Equal(av, bv) {
			return false
		}
	}
	return true
}

func termSetsEqual(a, b map[string]map[string][]string) bool {
	if len(a) != len(b) {
		return false
	}
	for k, av := range a {
		bv, ok := b[k]
		if !ok || !termListsEqual(av, bv) {
			return false
		}
	}
	return true
}
