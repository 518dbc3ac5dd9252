package llmcorrect

import "strings"

// anchor pairs the index of a token common to both sequences.
type anchor struct {
	orig int
	corr int
}

// commonAnchors returns the longest common subsequence of the two token
// slices as ordered index pairs. O(m*n) DP; transcripts are short sentences.
func commonAnchors(a, b []string) []anchor {
	m, n := len(a), len(b)
	if m == 0 || n == 0 {
		return nil
	}

	dp := make([][]int, m+1)
	for i := range dp {
		dp[i] = make([]int, n+1)
	}
	for i := 1; i <= m; i++ {
		for j := 1; j <= n; j++ {
			switch {
			case a[i-1] == b[j-1]:
				dp[i][j] = dp[i-1][j-1] + 1
			case dp[i-1][j] >= dp[i][j-1]:
				dp[i][j] = dp[i-1][j]
			default:
				dp[i][j] = dp[i][j-1]
			}
		}
	}

	anchors := make([]anchor, dp[m][n])
	for i, j, k := m, n, dp[m][n]-1; i > 0 && j > 0; {
		switch {
		case a[i-1] == b[j-1]:
			anchors[k] = anchor{orig: i - 1, corr: j - 1}
			i, j, k = i-1, j-1, k-1
		case dp[i-1][j] >= dp[i][j-1]:
			i--
		default:
			j--
		}
	}
	return anchors
}

// canon lowercases s and drops trailing punctuation so a span like
// "mnemonik." matches a correction declared as "mnemonik".
func canon(s string) string {
	return strings.ToLower(strings.TrimRight(s, ".,;:!?\"')"))
}

// verifyCorrectedText reverts every token-level change the model made without
// declaring it in corrections. The returned corrections list keeps only the
// substitutions that actually landed in the text.
func verifyCorrectedText(original, corrected string, corrections []Correction) (string, []Correction) {
	if original == corrected {
		return original, corrections
	}

	origTokens := strings.Fields(original)
	corrTokens := strings.Fields(corrected)

	type key struct{ from, to string }
	declared := make(map[key]Correction, len(corrections))
	for _, c := range corrections {
		declared[key{canon(c.Original), canon(c.Corrected)}] = c
	}

	// A sentinel anchor past both ends folds the tail gap into the loop.
	anchors := append(commonAnchors(origTokens, corrTokens),
		anchor{orig: len(origTokens), corr: len(corrTokens)})

	var out []string
	var kept []Correction
	oi, ci := 0, 0
	for _, a := range anchors {
		if oi < a.orig || ci < a.corr {
			gapOrig := origTokens[oi:a.orig]
			gapCorr := corrTokens[ci:a.corr]
			k := key{
				canon(strings.Join(gapOrig, " ")),
				canon(strings.Join(gapCorr, " ")),
			}
			if c, ok := declared[k]; ok {
				out = append(out, gapCorr...)
				kept = append(kept, c)
			} else {
				out = append(out, gapOrig...)
			}
		}
		if a.orig < len(origTokens) {
			out = append(out, origTokens[a.orig])
		}
		oi, ci = a.orig+1, a.corr+1
	}

	return strings.Join(out, " "), kept
}
