package retrieval

import (
	"slices"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/siherrmann/memoria/model"
	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

// ParseExclusions strips -word, -"some phrase" and -'some phrase' tokens
// from search and returns the remaining query with the normalized
// exclusions. Parsing the returned query again finds no exclusions.
func ParseExclusions(search string) (string, model.Exclusions) {
	var kept []string
	var exclusions model.Exclusions

	for i := 0; i < len(search); {
		r, size := utf8.DecodeRuneInString(search[i:])
		if unicode.IsSpace(r) {
			i += size
			continue
		}

		if phrase, end, ok := quotedExclusion(search, i); ok {
			if phrase = normalizeText(phrase); phrase != "" && !slices.Contains(exclusions.Phrases, phrase) {
				exclusions.Phrases = append(exclusions.Phrases, phrase)
			}
			i = end
			continue
		}

		end := i
		for end < len(search) {
			r, size := utf8.DecodeRuneInString(search[end:])
			if unicode.IsSpace(r) {
				break
			}
			end += size
		}
		token := search[i:end]
		i = end

		if len(token) < 2 || token[0] != '-' {
			kept = append(kept, token)
			continue
		}
		switch token[1] {
		case '-':
			kept = append(kept, token)
		case '"', '\'':
			// Unterminated phrase, searched without the dash.
			kept = append(kept, token[1:])
		default:
			word := normalizeText(strings.TrimFunc(token[1:], isPunct))
			if word == "" {
				kept = append(kept, token)
				continue
			}
			if !slices.Contains(exclusions.Words, word) {
				exclusions.Words = append(exclusions.Words, word)
			}
		}
	}

	return strings.Join(kept, " "), exclusions
}

// quotedExclusion matches a quoted phrase starting with a dash at i. The
// closing quote must end the token.
func quotedExclusion(search string, i int) (string, int, bool) {
	if i+1 >= len(search) || search[i] != '-' {
		return "", 0, false
	}
	quote := search[i+1]
	if quote != '"' && quote != '\'' {
		return "", 0, false
	}

	closing := strings.IndexByte(search[i+2:], quote)
	if closing < 0 {
		return "", 0, false
	}
	end := i + 2 + closing + 1
	if end < len(search) {
		if r, _ := utf8.DecodeRuneInString(search[end:]); !unicode.IsSpace(r) {
			return "", 0, false
		}
	}

	return search[i+2 : i+2+closing], end, true
}

// exclusionMatcher reports whether a text contains an excluded word or phrase.
type exclusionMatcher struct {
	words   []string
	phrases []string
}

func newExclusionMatcher(exclusions model.Exclusions) *exclusionMatcher {
	return &exclusionMatcher{words: exclusions.Words, phrases: exclusions.Phrases}
}

// Excludes matches words on word boundaries and phrases as substrings, both
// after normalization.
func (m *exclusionMatcher) Excludes(text string) bool {
	if len(m.words) == 0 && len(m.phrases) == 0 {
		return false
	}

	normalized := normalizeText(text)
	for _, phrase := range m.phrases {
		if strings.Contains(normalized, phrase) {
			return true
		}
	}
	for _, word := range m.words {
		if containsWord(normalized, word) {
			return true
		}
	}

	return false
}

// normalizeText applies NFKC, case folding and whitespace collapsing.
func normalizeText(s string) string {
	return strings.Join(strings.Fields(cases.Fold().String(norm.NFKC.String(s))), " ")
}

func containsWord(text, word string) bool {
	for offset := 0; offset < len(text); {
		index := strings.Index(text[offset:], word)
		if index < 0 {
			return false
		}
		start := offset + index
		end := start + len(word)

		before, _ := utf8.DecodeLastRuneInString(text[:start])
		after, _ := utf8.DecodeRuneInString(text[end:])
		if (start == 0 || !isWordRune(before)) && (end == len(text) || !isWordRune(after)) {
			return true
		}

		_, size := utf8.DecodeRuneInString(text[start:])
		offset = start + size
	}
	return false
}

func isWordRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_'
}

func isPunct(r rune) bool {
	return unicode.IsPunct(r) && r != '_'
}
