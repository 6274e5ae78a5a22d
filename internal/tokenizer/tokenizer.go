package tokenizer

import (
	"regexp"
	"strings"

	"github.com/hisyeo/kennings/internal/model"
)

// Letters used by Hîsyêô latin-script words
const wordChars = `a-zA-ZâêîôûÂÊÎÔÛäëïöüÄËÏÖÜàèìòùÀÈÌÒÙáéíóúÁÉÍÓÚ`

var tokenPattern = regexp.MustCompile(`[` + wordChars + `]+|[^` + wordChars + `]`)

type Token struct {
	Position int    `json:"position"`
	Raw      string `json:"raw"`
}

// Resolved is a token with the known word it matched, if any.
type Resolved struct {
	Position int               `json:"position"`
	WordID   *int64            `json:"wordId"`
	Raw      string            `json:"raw"`
	Word     *model.HisyeoWord `json:"word,omitempty"`
}

// Span is one rendered display element.
type Span struct {
	Position int    `json:"position"`
	Text     string `json:"text"`
	Class    string `json:"class"`
	Grouped  bool   `json:"grouped,omitempty"`
	Mark     string `json:"mark,omitempty"`
}

const NotFoundClass = "word-not-found"

// Tokenize splits text into runs of word characters and single other
// characters. Whitespace tokens are dropped; every other character lands in
// exactly one token.
func Tokenize(text string) []Token {
	raw := tokenPattern.FindAllString(text, -1)
	tokens := make([]Token, 0, len(raw))
	for _, r := range raw {
		if strings.TrimSpace(r) == "" {
			continue
		}
		tokens = append(tokens, Token{Position: len(tokens), Raw: r})
	}
	return tokens
}

// Latins returns the distinct raw token values in first-seen order.
func Latins(tokens []Token) []string {
	seen := make(map[string]struct{}, len(tokens))
	latins := make([]string, 0, len(tokens))
	for _, t := range tokens {
		if _, ok := seen[t.Raw]; ok {
			continue
		}
		seen[t.Raw] = struct{}{}
		latins = append(latins, t.Raw)
	}
	return latins
}

// Resolve matches every token against known words by exact latin spelling.
// Unknown tokens keep their raw text with a nil WordID.
func Resolve(tokens []Token, known map[string]model.HisyeoWord) []Resolved {
	resolved := make([]Resolved, len(tokens))
	for i, t := range tokens {
		resolved[i] = Resolved{Position: t.Position, Raw: t.Raw}
		if w, ok := known[t.Raw]; ok {
			word := w
			id := w.ID
			resolved[i].WordID = &id
			resolved[i].Word = &word
		}
	}
	return resolved
}

// Render turns resolved tokens into display spans. Grouping marks open and
// close a group alternately; the open state lives only for this call.
func Render(resolved []Resolved) []Span {
	spans := make([]Span, 0, len(resolved))
	open := false
	for _, r := range resolved {
		span := Span{Position: r.Position, Text: r.Raw, Class: NotFoundClass}
		if r.Word != nil {
			span.Class = "word-" + r.Word.Latin
			if r.Word.Kind == model.KindGroup {
				if open {
					span.Mark = "close"
				} else {
					span.Mark = "open"
				}
				open = !open
			}
		}
		span.Grouped = open || span.Mark == "close"
		spans = append(spans, span)
	}
	return spans
}

// WordIDs returns the word ids in token order, nil for unresolved tokens.
func WordIDs(resolved []Resolved) []*int64 {
	ids := make([]*int64, len(resolved))
	for i, r := range resolved {
		ids[i] = r.WordID
	}
	return ids
}
