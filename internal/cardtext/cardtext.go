// Package cardtext converts Anki card HTML into plain text suitable for
// TTS playback, answer judging, and LLM context.
//
// Anki note templates are arbitrary HTML. Two extraction modes are provided:
//
//   - [Text]: strip all markup and return the full visible text.
//   - [ReadmeText]: extract only the div carrying a "README" class — the
//     convention used by voice-enabled note templates to mark the portion of
//     the card that should be spoken — along with the language code for TTS
//     voice selection.
package cardtext

import (
	"strings"

	"golang.org/x/net/html"
)

// Text strips all HTML markup from src and returns the visible text with
// runs of whitespace collapsed to single spaces. Script and style contents
// are excluded.
func Text(src string) string {
	root, err := html.Parse(strings.NewReader(src))
	if err != nil {
		// strings.Reader never fails; parse errors cannot occur here.
		return strings.TrimSpace(src)
	}
	var parts []string
	collectText(root, &parts)
	return strings.Join(parts, " ")
}

// ReadmeText extracts the text of the first div whose class list contains
// "README" (class lists like "english README" count), returning its text and
// the language code that should drive TTS voice selection.
//
// When excludeFromFront is true, README divs nested under a div with class
// "from-front" are skipped. Back templates commonly include {{FrontSide}},
// which drags the front's README div into the back HTML; the from-front
// wrapper marks that included content so the back's own README div wins.
//
// The language code comes from the innermost descendant of the README div
// that carries a lang attribute — the most deeply nested lang is
// authoritative, so <div lang="es-ES" class="README"><span lang="en-US">…
// yields "en-US". When no element carries lang, lang is empty.
//
// When no (eligible) README div exists, ReadmeText falls back to the full
// document text with an empty language code.
func ReadmeText(src string, excludeFromFront bool) (text, lang string) {
	if strings.TrimSpace(src) == "" {
		return "", ""
	}

	root, err := html.Parse(strings.NewReader(src))
	if err != nil {
		return strings.TrimSpace(src), ""
	}

	readme := findReadmeDiv(root, excludeFromFront)
	if readme == nil {
		var parts []string
		collectText(root, &parts)
		return strings.Join(parts, " "), ""
	}

	var parts []string
	collectText(readme, &parts)
	text = strings.Join(parts, " ")

	if elem, _ := deepestWithLang(readme, 0); elem != nil {
		lang = attr(elem, "lang")
	}
	return text, lang
}

// collectText appends the trimmed contents of every text node under n to
// parts, in document order. Script and style subtrees are skipped.
func collectText(n *html.Node, parts *[]string) {
	if n.Type == html.ElementNode && (n.Data == "script" || n.Data == "style") {
		return
	}
	if n.Type == html.TextNode {
		if t := strings.TrimSpace(n.Data); t != "" {
			*parts = append(*parts, strings.Join(strings.Fields(t), " "))
		}
		return
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		collectText(c, parts)
	}
}

// findReadmeDiv returns the first div in document order whose class list
// contains "README", honouring the from-front exclusion rule.
func findReadmeDiv(n *html.Node, excludeFromFront bool) *html.Node {
	if n.Type == html.ElementNode && n.Data == "div" && hasClass(n, "README") {
		if !excludeFromFront || !insideFromFront(n) {
			return n
		}
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := findReadmeDiv(c, excludeFromFront); found != nil {
			return found
		}
	}
	return nil
}

// insideFromFront reports whether any ancestor of n is a div with class
// "from-front".
func insideFromFront(n *html.Node) bool {
	for p := n.Parent; p != nil; p = p.Parent {
		if p.Type == html.ElementNode && p.Data == "div" && hasClass(p, "from-front") {
			return true
		}
	}
	return false
}

// deepestWithLang returns the most deeply nested element under n (including
// n itself) that carries a non-empty lang attribute, along with its depth.
// Returns nil when no such element exists. On equal depth the earlier element
// in document order wins.
func deepestWithLang(n *html.Node, depth int) (*html.Node, int) {
	var best *html.Node
	bestDepth := -1

	if n.Type == html.ElementNode && attr(n, "lang") != "" {
		best, bestDepth = n, depth
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if elem, d := deepestWithLang(c, depth+1); elem != nil && d > bestDepth {
			best, bestDepth = elem, d
		}
	}
	return best, bestDepth
}

// hasClass reports whether the element's class attribute contains name as a
// whitespace-separated token.
func hasClass(n *html.Node, name string) bool {
	for _, c := range strings.Fields(attr(n, "class")) {
		if c == name {
			return true
		}
	}
	return false
}

// attr returns the value of the named attribute, or "" when absent.
func attr(n *html.Node, name string) string {
	for _, a := range n.Attr {
		if a.Key == name {
			return a.Val
		}
	}
	return ""
}
