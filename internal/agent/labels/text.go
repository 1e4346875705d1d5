package labels

import (
	"regexp"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/davibasa/Enter-Fellowship-sub001/internal/models"
)

const (
	punctuation     = ":;,.-_()[]{}"
	phraseSeparator = `[\s:;,.\-_]+`
)

var (
	wordPattern     = regexp.MustCompile(`[\p{L}\p{N}_'-]+`)
	horizontalSpace = regexp.MustCompile(`[ \t]+`)
)

func isPunctuation(r rune) bool {
	return strings.ContainsRune(punctuation, r)
}

func isWordRune(r rune) bool {
	return r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r)
}

// Normalize lower-cases s and strips accents and punctuation.
func Normalize(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	stripped, _, err := transform.String(t, s)
	if err != nil {
		stripped = s
	}
	stripped = strings.Map(func(r rune) rune {
		if isPunctuation(r) {
			return -1
		}
		return unicode.ToLower(r)
	}, stripped)
	return strings.TrimSpace(stripped)
}

// compilePhrase matches phrase case-insensitively. In loose mode its words
// may be separated by any run of whitespace or punctuation. Phrases come from
// requests and remote services, so callers compile once per call and keep
// nothing afterwards.
func compilePhrase(phrase string, loose bool) *regexp.Regexp {
	var expr string
	if loose {
		words := strings.FieldsFunc(phrase, func(r rune) bool {
			return unicode.IsSpace(r) || isPunctuation(r)
		})
		for i, w := range words {
			words[i] = regexp.QuoteMeta(w)
		}
		expr = strings.Join(words, phraseSeparator)
	} else {
		expr = regexp.QuoteMeta(strings.TrimSpace(phrase))
	}
	if expr == "" {
		return nil
	}
	return regexp.MustCompile(`(?i)` + expr)
}

// findWholeWord returns byte spans matched by re in line that are not glued
// to other letters or digits.
func findWholeWord(line string, re *regexp.Regexp) [][2]int {
	if re == nil {
		return nil
	}

	var spans [][2]int
	for _, loc := range re.FindAllStringIndex(line, -1) {
		if before, _ := utf8.DecodeLastRuneInString(line[:loc[0]]); loc[0] > 0 && isWordRune(before) {
			continue
		}
		if after, _ := utf8.DecodeRuneInString(line[loc[1]:]); loc[1] < len(line) && isWordRune(after) {
			continue
		}
		spans = append(spans, [2]int{loc[0], loc[1]})
	}
	return spans
}

type token struct {
	text       string
	start, end int
}

func tokenize(line string) []token {
	locs := wordPattern.FindAllStringIndex(line, -1)
	tokens := make([]token, 0, len(locs))
	for _, loc := range locs {
		tokens = append(tokens, token{text: line[loc[0]:loc[1]], start: loc[0], end: loc[1]})
	}
	return tokens
}

// runeOffset converts a byte offset in s to a character offset.
func runeOffset(s string, byteOffset int) int {
	return utf8.RuneCountInString(s[:byteOffset])
}

// StripLabels removes every detected label span from text, longest first,
// then collapses horizontal whitespace and drops blank lines.
func StripLabels(text string, detected []models.DetectedLabel) string {
	seen := make(map[string]bool, len(detected))
	phrases := make([]string, 0, len(detected))
	for _, d := range detected {
		key := strings.ToLower(d.Text)
		if d.Text == "" || seen[key] {
			continue
		}
		seen[key] = true
		phrases = append(phrases, d.Text)
	}
	sort.SliceStable(phrases, func(i, j int) bool {
		return utf8.RuneCountInString(phrases[i]) > utf8.RuneCountInString(phrases[j])
	})

	matchers := make([]*regexp.Regexp, 0, len(phrases))
	for _, phrase := range phrases {
		matchers = append(matchers, compilePhrase(phrase, false))
	}

	lines := strings.Split(text, "\n")
	out := make([]string, 0, len(lines))
	for _, line := range lines {
		for _, re := range matchers {
			line = removeWholeWord(line, re)
		}
		line = horizontalSpace.ReplaceAllString(line, " ")
		line = strings.TrimLeft(strings.TrimSpace(line), ":;-")
		line = strings.TrimSpace(line)
		if line != "" {
			out = append(out, line)
		}
	}
	return strings.Join(out, "\n")
}

func removeWholeWord(line string, re *regexp.Regexp) string {
	spans := findWholeWord(line, re)
	for i := len(spans) - 1; i >= 0; i-- {
		line = line[:spans[i][0]] + " " + line[spans[i][1]:]
	}
	return line
}
