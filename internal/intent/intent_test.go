package intent

import "testing"

// TestParse_BareGradeWords checks that every word in the grade table used as
// the entire input yields Grade with the table's ease value.
func TestParse_BareGradeWords(t *testing.T) {
	t.Parallel()
	for word, want := range defaultGradeWords {
		got := Parse(word)
		g, ok := got.(Grade)
		if !ok {
			t.Errorf("Parse(%q) = %T, expected Grade", word, got)
			continue
		}
		if g.Ease != want {
			t.Errorf("Parse(%q).Ease = %d, expected %d", word, g.Ease, want)
		}
		if g.SourceText != word {
			t.Errorf("Parse(%q).SourceText = %q", word, g.SourceText)
		}
		if g.MatchedSpan != word {
			t.Errorf("Parse(%q).MatchedSpan = %q", word, g.MatchedSpan)
		}
	}
}

// TestParse_CommandTemplates checks template + value combinations.
func TestParse_CommandTemplates(t *testing.T) {
	t.Parallel()
	tests := []struct {
		input    string
		ease     int
		span     string
	}{
		{"grade it 2", 2, "grade it 2"},
		{"grade 1", 1, "grade 1"},
		{"grade one", 1, "grade one"},
		{"mark as hard", 2, "mark as hard"},
		{"mark it wrong", 1, "mark it wrong"},
		{"mark 4", 4, "mark 4"},
		{"set to easy", 4, "set to easy"},
		{"make it good", 3, "make it good"},
		{"mark as a 2", 2, "mark as a 2"},
		{"grade it a three", 3, "grade it a three"},
		{"Set To Easy", 4, "set to easy"},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			t.Parallel()
			got := Parse(tt.input)
			g, ok := got.(Grade)
			if !ok {
				t.Fatalf("Parse(%q) = %T, expected Grade", tt.input, got)
			}
			if g.Ease != tt.ease {
				t.Errorf("Ease = %d, expected %d", g.Ease, tt.ease)
			}
			if g.MatchedSpan != tt.span {
				t.Errorf("MatchedSpan = %q, expected %q", g.MatchedSpan, tt.span)
			}
			if g.SourceText != tt.input {
				t.Errorf("SourceText = %q, expected original input", g.SourceText)
			}
		})
	}
}

// TestParse_NumberWordDigitEquivalence checks that number words and digits
// yield the same ease.
func TestParse_NumberWordDigitEquivalence(t *testing.T) {
	t.Parallel()
	pairs := [][2]string{
		{"grade one", "grade 1"},
		{"grade two", "grade 2"},
		{"grade three", "grade 3"},
		{"grade four", "grade 4"},
		{"three", "3"},
	}
	for _, pair := range pairs {
		a, aok := Parse(pair[0]).(Grade)
		b, bok := Parse(pair[1]).(Grade)
		if !aok || !bok {
			t.Errorf("expected both %q and %q to parse as Grade", pair[0], pair[1])
			continue
		}
		if a.Ease != b.Ease {
			t.Errorf("%q → %d but %q → %d", pair[0], a.Ease, pair[1], b.Ease)
		}
	}
}

// TestParse_LeadingPositionPrecedence checks that a grade word at the start
// wins even when a question cue trails.
func TestParse_LeadingPositionPrecedence(t *testing.T) {
	t.Parallel()
	got := Parse("good but why is it important")
	g, ok := got.(Grade)
	if !ok {
		t.Fatalf("expected Grade, got %T", got)
	}
	if g.Ease != 3 {
		t.Errorf("Ease = %d, expected 3", g.Ease)
	}
}

// TestParse_NonLeadingGradeBecomesQuestion checks that a grade word outside
// the leading window does not produce a grade; the question cue wins.
func TestParse_NonLeadingGradeBecomesQuestion(t *testing.T) {
	t.Parallel()
	got := Parse("that was good but why is it important")
	if _, ok := got.(Question); !ok {
		t.Fatalf("expected Question, got %T", got)
	}
}

// TestParse_QuestionCues checks the lexical and structural question cues.
func TestParse_QuestionCues(t *testing.T) {
	t.Parallel()
	inputs := []string{
		"why is X important",
		"explain more about Y",
		"what does that mean?",
		"tell me more",
		"can you explain",
		"i don't understand",
		"i dont understand",
		"not clear",
		"that part is not clear to me",
		"is the capital Berlin?",
	}
	for _, input := range inputs {
		got := Parse(input)
		q, ok := got.(Question)
		if !ok {
			t.Errorf("Parse(%q) = %T, expected Question", input, got)
			continue
		}
		if q.SourceText != input {
			t.Errorf("Parse(%q).SourceText = %q", input, q.SourceText)
		}
	}
}

// TestParse_AmbiguousFloor checks that empty and unrecognized single-token
// inputs resolve to Ambiguous.
func TestParse_AmbiguousFloor(t *testing.T) {
	t.Parallel()
	inputs := []string{"", "hmm", "uh", "a", "   ", "...", "das ist gut"}
	for _, input := range inputs {
		got := Parse(input)
		if _, ok := got.(Ambiguous); !ok {
			t.Errorf("Parse(%q) = %T, expected Ambiguous", input, got)
		}
	}
}

// TestParse_NoPartialCueMatch checks that partial substrings of cue words
// never match ("howl" must not trigger the "how" cue).
func TestParse_NoPartialCueMatch(t *testing.T) {
	t.Parallel()
	inputs := []string{"howl", "whatever", "whys", "explained badly wow"}
	for _, input := range inputs {
		got := Parse(input)
		if _, ok := got.(Question); ok {
			t.Errorf("Parse(%q) = Question, expected no cue match", input)
		}
	}
}

// TestParse_BareOkayIsGrade pins the resolution of the bare "okay" conflict:
// grade words found in the table always win over the ambiguous floor.
func TestParse_BareOkayIsGrade(t *testing.T) {
	t.Parallel()
	got := Parse("okay")
	g, ok := got.(Grade)
	if !ok {
		t.Fatalf("Parse(\"okay\") = %T, expected Grade", got)
	}
	if g.Ease != 3 {
		t.Errorf("Ease = %d, expected 3", g.Ease)
	}
}

// TestParse_Idempotent checks that repeated calls yield identical results.
func TestParse_Idempotent(t *testing.T) {
	t.Parallel()
	inputs := []string{"grade it 2", "why though", "hmm", ""}
	for _, input := range inputs {
		first := Parse(input)
		second := Parse(input)
		if Kind(first) != Kind(second) {
			t.Errorf("Parse(%q) not idempotent: %v vs %v", input, first, second)
		}
	}
}

// TestParse_TrailingQuestionMark checks that a trailing question mark alone
// is a question cue, including with repeated punctuation.
func TestParse_TrailingQuestionMark(t *testing.T) {
	t.Parallel()
	for _, input := range []string{"the mitochondria?", "really??", "so this is from latin ?!"} {
		got := Parse(input)
		if _, ok := got.(Question); !ok {
			t.Errorf("Parse(%q) = %T, expected Question", input, got)
		}
	}
}

// TestParse_GradeBeatsQuestionMark checks precedence: an explicit leading
// grade wins over the trailing question mark.
func TestParse_GradeBeatsQuestionMark(t *testing.T) {
	t.Parallel()
	got := Parse("easy?")
	g, ok := got.(Grade)
	if !ok {
		t.Fatalf("expected Grade, got %T", got)
	}
	if g.Ease != 4 {
		t.Errorf("Ease = %d, expected 4", g.Ease)
	}
}

// TestParser_CustomVocabulary checks vocabulary extension via options.
func TestParser_CustomVocabulary(t *testing.T) {
	t.Parallel()
	p := NewParser(
		WithGradeWords(map[string]int{"perfekt": 4, "nochmal": 1, "bogus": 9}),
		WithQuestionCues("warum", "was bedeutet"),
	)

	if g, ok := p.Parse("perfekt").(Grade); !ok || g.Ease != 4 {
		t.Errorf("Parse(\"perfekt\") = %v, expected Grade(4)", p.Parse("perfekt"))
	}
	if g, ok := p.Parse("nochmal").(Grade); !ok || g.Ease != 1 {
		t.Errorf("Parse(\"nochmal\") = %v, expected Grade(1)", p.Parse("nochmal"))
	}
	// Out-of-range ease values are ignored.
	if _, ok := p.Parse("bogus").(Grade); ok {
		t.Error("Parse(\"bogus\") = Grade, expected out-of-range word to be ignored")
	}
	if _, ok := p.Parse("warum ist das so").(Question); !ok {
		t.Error("expected custom cue word to classify as Question")
	}
	if _, ok := p.Parse("was bedeutet dieses wort").(Question); !ok {
		t.Error("expected custom cue phrase to classify as Question")
	}

	// The default parser is unaffected.
	if _, ok := Parse("perfekt").(Ambiguous); !ok {
		t.Error("default parser must not see custom vocabulary")
	}
}

// TestKind checks the metric label mapping.
func TestKind(t *testing.T) {
	t.Parallel()
	if Kind(Grade{Ease: 3}) != "grade" {
		t.Error("Kind(Grade) != grade")
	}
	if Kind(Question{}) != "question" {
		t.Error("Kind(Question) != question")
	}
	if Kind(Ambiguous{}) != "ambiguous" {
		t.Error("Kind(Ambiguous) != ambiguous")
	}
}
