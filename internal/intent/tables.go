package intent

// Default vocabulary. Per-parser copies are made at construction so the
// package-level tables stay immutable.

// defaultGradeWords maps a single word to its ease value 1..4. Number words
// and bare digits are included so "three" and "3" are equivalent.
var defaultGradeWords = map[string]int{
	// quality adjectives
	"again":     1,
	"wrong":     1,
	"hard":      2,
	"difficult": 2,
	"good":      3,
	"ok":        3,
	"okay":      3,
	"correct":   3,
	"easy":      4,
	"simple":    4,
	"trivial":   4,

	// number words and digits
	"one":   1,
	"1":     1,
	"two":   2,
	"2":     2,
	"three": 3,
	"3":     3,
	"four":  4,
	"4":     4,
}

// defaultTemplates is the set of leading command phrases that introduce a
// grade value. Longer templates are matched before their one-word prefixes
// ("mark as" before "mark"), which the matcher enforces by trying two-token
// templates first.
var defaultTemplates = [][]string{
	{"grade", "it"},
	{"mark", "it"},
	{"mark", "as"},
	{"set", "to"},
	{"make", "it"},
	{"grade"},
	{"mark"},
}

// defaultQuestionCues lists the lexical question triggers. Single words match
// any whole token; multi-word phrases match consecutive tokens anywhere in
// the normalized text.
var defaultQuestionCues = []string{
	"why",
	"what",
	"how",
	"explain",
	"tell me more",
	"can you explain",
	"i don't understand",
	"i dont understand",
	"not clear",
}
