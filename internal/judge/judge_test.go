package judge_test

import (
	"reflect"
	"testing"

	"github.com/ankivoice/ankivoice/internal/judge"
)

// sliceCategories is a representative enumeration card: three 5G network
// slice categories, each with spoken aliases.
var sliceCategories = judge.TermSet{
	"enhanced mobile broadband": {"embb"},
	"ultra reliable low latency": {
		"urllc", "ultra-reliable low-latency",
	},
	"massive machine type": {
		"mmtc", "massive machine-type communications", "massive m2m",
	},
}

func TestJudge_AllTermsCorrect(t *testing.T) {
	t.Parallel()

	r := judge.Judge(
		"the three are enhanced mobile broadband, URLLC and massive machine type",
		sliceCategories,
	)
	if r.Verdict != judge.VerdictCorrect {
		t.Fatalf("Verdict=%q, want correct; hits=%v missing=%v", r.Verdict, r.Hits, r.Missing)
	}
	if len(r.Hits) != 3 {
		t.Errorf("got %d hits, want 3: %v", len(r.Hits), r.Hits)
	}
	if len(r.Missing) != 0 {
		t.Errorf("Missing=%v, want empty", r.Missing)
	}
}

func TestJudge_AliasesCount(t *testing.T) {
	t.Parallel()

	// All three answered purely via abbreviations.
	r := judge.Judge("embb urllc mmtc", sliceCategories)
	if r.Verdict != judge.VerdictCorrect {
		t.Fatalf("Verdict=%q, want correct; missing=%v", r.Verdict, r.Missing)
	}
}

func TestJudge_OneMissingIsPartial(t *testing.T) {
	t.Parallel()

	r := judge.Judge("embb and ultra reliable low latency", sliceCategories)
	if r.Verdict != judge.VerdictPartial {
		t.Fatalf("Verdict=%q, want partial; hits=%v", r.Verdict, r.Hits)
	}
	want := []string{"massive machine type"}
	if !reflect.DeepEqual(r.Missing, want) {
		t.Errorf("Missing=%v, want %v", r.Missing, want)
	}
}

func TestJudge_MostMissingIsWrong(t *testing.T) {
	t.Parallel()

	// One of three hit is below the partial floor of n-1.
	r := judge.Judge("something about broadband maybe embb", sliceCategories)
	if r.Verdict != judge.VerdictWrong {
		t.Fatalf("Verdict=%q, want wrong for 1 of 3 hits", r.Verdict)
	}

	r = judge.Judge("I have no idea", sliceCategories)
	if r.Verdict != judge.VerdictWrong {
		t.Fatalf("Verdict=%q, want wrong", r.Verdict)
	}
	if len(r.Hits) != 0 {
		t.Errorf("Hits=%v, want empty", r.Hits)
	}
	if len(r.Missing) != 3 {
		t.Errorf("got %d missing, want 3", len(r.Missing))
	}
}

func TestJudge_SingleTermSet(t *testing.T) {
	t.Parallel()

	terms := judge.TermSet{"mitochondria": {"the mitochondria"}}

	// With one term, a miss is wrong — the partial floor of n-1 hits still
	// requires at least one hit.
	r := judge.Judge("no clue", terms)
	if r.Verdict != judge.VerdictWrong {
		t.Errorf("Verdict=%q, want wrong", r.Verdict)
	}

	r = judge.Judge("it is the mitochondria", terms)
	if r.Verdict != judge.VerdictCorrect {
		t.Errorf("Verdict=%q, want correct", r.Verdict)
	}
}

func TestJudge_NormalizationBridgesPunctuation(t *testing.T) {
	t.Parallel()

	// Hyphenated alias vs spoken hyphen-free transcript and vice versa.
	terms := judge.TermSet{"ultra reliable low latency": {"ultra-reliable low-latency"}}

	r := judge.Judge("Ultra-Reliable Low-Latency!", terms)
	if r.Verdict != judge.VerdictCorrect {
		t.Errorf("Verdict=%q, want correct for hyphenated speech", r.Verdict)
	}
}

func TestJudge_WordBoundaries(t *testing.T) {
	t.Parallel()

	// A short alias must not match inside a longer word.
	terms := judge.TermSet{"machine type": {"mmtc"}}
	r := judge.Judge("commmtcommunication", terms)
	if r.Verdict != judge.VerdictWrong {
		t.Errorf("Verdict=%q, want wrong — alias matched mid-word", r.Verdict)
	}
}

func TestJudge_EmptyTermSet(t *testing.T) {
	t.Parallel()

	r := judge.Judge("anything", judge.TermSet{})
	if r.Verdict != judge.VerdictCorrect {
		t.Errorf("Verdict=%q, want correct for empty term set", r.Verdict)
	}
	if len(r.Hits) != 0 || len(r.Missing) != 0 {
		t.Errorf("Hits=%v Missing=%v, want both empty", r.Hits, r.Missing)
	}
}

func TestEaseFromVerdict(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		verdict    judge.Verdict
		confidence float64
		want       int
	}{
		{"correct high confidence", judge.VerdictCorrect, 0.95, 4},
		{"correct at threshold", judge.VerdictCorrect, 0.85, 3},
		{"correct low confidence", judge.VerdictCorrect, 0.5, 3},
		{"partial", judge.VerdictPartial, 0.99, 2},
		{"wrong", judge.VerdictWrong, 0.99, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := judge.EaseFromVerdict(tt.verdict, tt.confidence); got != tt.want {
				t.Errorf("EaseFromVerdict(%q, %v) = %d, want %d", tt.verdict, tt.confidence, got, tt.want)
			}
		})
	}
}
