// Package lexicon indexes the Panlexia English glosses and definitions and
// resolves English queries to concept identifiers.
//
// An Index is built once at startup and never mutated afterwards, so it can
// be shared by concurrent requests without locking.
package lexicon

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"log"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/lithammer/fuzzysearch/fuzzy"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var ErrNotFound = errors.New("concept not found")

const (
	DefaultThreshold      = 0.01
	DefaultMinMatchLength = 2
)

// DefinitionRow is one row of the definitions table.
type DefinitionRow struct {
	Concept    string
	Stripped   string
	Definition string
}

// Entry is one searchable row: a gloss, or a definition-only concept.
type Entry struct {
	Concept       string `json:"concept"`
	Stripped      string `json:"stripped"`
	Style         string `json:"style,omitempty"`
	Word          string `json:"word,omitempty"`
	Transcription string `json:"transcription,omitempty"`
	Etymology     string `json:"etymology,omitempty"`
}

type Match struct {
	Concept    string  `json:"concept"`
	Word       string  `json:"word"`
	Definition string  `json:"definition"`
	Score      float64 `json:"-"`
}

type Options struct {
	// Threshold is the largest accepted errors-per-query-rune ratio.
	Threshold      float64
	MinMatchLength int
}

func DefaultOptions() Options {
	return Options{Threshold: DefaultThreshold, MinMatchLength: DefaultMinMatchLength}
}

type indexKey struct {
	folded    []rune
	wordCount int
}

type Index struct {
	opts        Options
	definitions map[string]string
	entries     []Entry
	keys        [][]indexKey
}

// Stripped removes the namespace and part-of-speech suffix from a concept
// identifier: "pl:battle.n" becomes "battle".
func Stripped(concept string) string {
	s := concept
	if i := strings.Index(s, ":"); i >= 0 {
		s = s[i+1:]
	}
	if i := strings.Index(s, "."); i >= 0 {
		s = s[:i]
	}
	return s
}

var foldTransformer = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// Fold lower-cases s and strips diacritics.
func Fold(s string) string {
	folded, _, err := transform.String(foldTransformer, s)
	if err != nil {
		folded = s
	}
	return strings.ToLower(strings.TrimSpace(folded))
}

// ReadTSV reads tab-separated rows, dropping the header row and blank rows.
func ReadTSV(r io.Reader) ([][]string, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 4*1024*1024)

	var rows [][]string
	header := true
	for scanner.Scan() {
		if header {
			header = false
			continue
		}
		line := strings.TrimRight(scanner.Text(), "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}
		rows = append(rows, strings.Split(line, "\t"))
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read tsv: %w", err)
	}
	return rows, nil
}

// ParseDefinitions maps rows of (concept, definition).
func ParseDefinitions(rows [][]string) []DefinitionRow {
	defs := make([]DefinitionRow, 0, len(rows))
	for _, cols := range rows {
		if len(cols) == 0 || cols[0] == "" {
			continue
		}
		def := DefinitionRow{Concept: cols[0], Stripped: Stripped(cols[0])}
		if len(cols) > 1 {
			def.Definition = strings.TrimSpace(cols[1])
		}
		defs = append(defs, def)
	}
	return defs
}

// ParseGlosses maps rows of (concept, style, word, transcription, etymology).
func ParseGlosses(rows [][]string) []Entry {
	entries := make([]Entry, 0, len(rows))
	for _, cols := range rows {
		if len(cols) == 0 || cols[0] == "" {
			continue
		}
		entries = append(entries, Entry{
			Concept:       cols[0],
			Stripped:      Stripped(cols[0]),
			Style:         column(cols, 1),
			Word:          column(cols, 2),
			Transcription: column(cols, 3),
			Etymology:     column(cols, 4),
		})
	}
	return entries
}

func column(cols []string, i int) string {
	if i < len(cols) {
		return strings.TrimSpace(cols[i])
	}
	return ""
}

// Build indexes the glosses plus every definition-only concept, in that order.
func Build(definitions []DefinitionRow, glosses []Entry, opts Options) *Index {
	if opts.MinMatchLength <= 0 {
		opts.MinMatchLength = DefaultMinMatchLength
	}

	ix := &Index{
		opts:        opts,
		definitions: make(map[string]string, len(definitions)),
		entries:     make([]Entry, 0, len(glosses)+len(definitions)),
	}

	for _, d := range definitions {
		// first row wins for duplicated concepts
		if _, ok := ix.definitions[d.Concept]; !ok {
			ix.definitions[d.Concept] = d.Definition
		}
	}

	seen := make(map[string]struct{}, len(glosses))
	for _, g := range glosses {
		ix.entries = append(ix.entries, g)
		seen[g.Concept] = struct{}{}
	}
	for _, d := range definitions {
		if _, ok := seen[d.Concept]; ok {
			continue
		}
		seen[d.Concept] = struct{}{}
		ix.entries = append(ix.entries, Entry{Concept: d.Concept, Stripped: d.Stripped})
	}

	ix.keys = make([][]indexKey, len(ix.entries))
	for i, e := range ix.entries {
		for _, k := range []string{e.Stripped, e.Word} {
			folded := Fold(k)
			if folded == "" {
				continue
			}
			ix.keys[i] = append(ix.keys[i], indexKey{
				folded:    []rune(folded),
				wordCount: len(strings.Fields(folded)),
			})
		}
	}

	log.Printf("[Lexicon] Indexed %d entries (%d definitions)", len(ix.entries), len(ix.definitions))
	return ix
}

func (ix *Index) Len() int {
	return len(ix.entries)
}

// Definition looks up a definition by exact concept identifier.
func (ix *Index) Definition(concept string) (string, error) {
	def, ok := ix.definitions[concept]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrNotFound, concept)
	}
	return def, nil
}

type hit struct {
	entry     int
	score     float64
	exact     bool
	wordCount int
}

// Search returns the matching entries, best first.
func (ix *Index) Search(query string) []Entry {
	hits := ix.search(query)
	entries := make([]Entry, len(hits))
	for i, h := range hits {
		entries[i] = ix.entries[h.entry]
	}
	return entries
}

func (ix *Index) search(query string) []hit {
	q := []rune(Fold(query))
	if len(q) < ix.opts.MinMatchLength {
		return nil
	}

	var hits []hit
	for i, keys := range ix.keys {
		best, ok := hit{}, false
		for _, k := range keys {
			h, matched := ix.scoreKey(q, k)
			if !matched {
				continue
			}
			if !ok || better(h, best) {
				best, ok = h, true
			}
		}
		if ok {
			best.entry = i
			hits = append(hits, best)
		}
	}

	sort.SliceStable(hits, func(a, b int) bool {
		return better(hits[a], hits[b])
	})
	return hits
}

// scoreKey compares the query against the key prefix of the same length.
func (ix *Index) scoreKey(q []rune, k indexKey) (hit, bool) {
	prefix := k.folded
	if len(prefix) > len(q) {
		prefix = prefix[:len(q)]
	}
	if len(prefix) < ix.opts.MinMatchLength {
		return hit{}, false
	}

	errs := fuzzy.LevenshteinDistance(string(q), string(prefix))
	score := float64(errs) / float64(len(q))
	if score > ix.opts.Threshold {
		return hit{}, false
	}

	return hit{
		score:     score,
		exact:     errs == 0 && len(k.folded) == len(q),
		wordCount: k.wordCount,
	}, true
}

func better(a, b hit) bool {
	if a.score != b.score {
		return a.score < b.score
	}
	if a.exact != b.exact {
		return a.exact
	}
	return a.wordCount < b.wordCount
}

// SearchEnglish resolves an English query to concepts with definitions.
// Concepts without a definition are logged and skipped. Results are not
// deduplicated; see UniqueConcepts.
func (ix *Index) SearchEnglish(query string) []Match {
	hits := ix.search(query)
	matches := make([]Match, 0, len(hits))
	for _, h := range hits {
		e := ix.entries[h.entry]
		def, err := ix.Definition(e.Concept)
		if err != nil {
			log.Printf("[Lexicon] Skipping search hit: %v", err)
			continue
		}
		word := e.Word
		if word == "" {
			word = e.Stripped
		}
		matches = append(matches, Match{
			Concept:    e.Concept,
			Word:       word,
			Definition: def,
			Score:      h.score,
		})
	}
	return matches
}

// UniqueConcepts returns the concepts of matches in first-seen order.
func UniqueConcepts(matches []Match) []string {
	seen := make(map[string]struct{}, len(matches))
	concepts := make([]string, 0, len(matches))
	for _, m := range matches {
		if _, ok := seen[m.Concept]; ok {
			continue
		}
		seen[m.Concept] = struct{}{}
		concepts = append(concepts, m.Concept)
	}
	return concepts
}

// Load reads both datasets and builds the index.
func Load(definitions, english io.Reader, opts Options) (*Index, error) {
	defRows, err := ReadTSV(definitions)
	if err != nil {
		return nil, fmt.Errorf("definitions: %w", err)
	}
	glossRows, err := ReadTSV(english)
	if err != nil {
		return nil, fmt.Errorf("english: %w", err)
	}
	return Build(ParseDefinitions(defRows), ParseGlosses(glossRows), opts), nil
}

// Searchable reports whether query is long enough to produce matches.
func (ix *Index) Searchable(query string) bool {
	return utf8.RuneCountInString(Fold(query)) >= ix.opts.MinMatchLength
}
