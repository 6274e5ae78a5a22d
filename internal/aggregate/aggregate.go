// Package aggregate shapes flat kenning rows into the nested
// concept → kenning → words structure served to clients.
//
// Grouping only ever appends to ordered slices; the maps are lookup indexes
// and are never iterated, so the output order depends on the input order
// alone.
package aggregate

import (
	"encoding/json"

	"github.com/hisyeo/kennings/internal/lexicon"
	"github.com/hisyeo/kennings/internal/model"
)

// WordRow is one word of a kenning. Votes stays nil, and is left out of the
// JSON, until a vote sum is attached.
type WordRow struct {
	model.KenningRow
	Votes []model.VoteSum `json:"votes,omitempty"`

	placeholder bool
}

type placeholderJSON struct {
	Concept    string `json:"concept"`
	Definition string `json:"definition"`
}

func (w *WordRow) MarshalJSON() ([]byte, error) {
	if w.placeholder {
		return json.Marshal(placeholderJSON{Concept: w.Concept, Definition: w.Definition})
	}
	type plain WordRow
	return json.Marshal((*plain)(w))
}

// IsPlaceholder reports whether the row stands for a concept with no stored kenning.
func (w *WordRow) IsPlaceholder() bool {
	return w.placeholder
}

type KenningGroup struct {
	KenningID *int64     `json:"kenningId"`
	Words     []*WordRow `json:"words"`
}

type ConceptGroup struct {
	Concept  string          `json:"concept"`
	Kennings []*KenningGroup `json:"kennings"`

	byKenning map[int64]*KenningGroup
}

// Grouped indexes kenning groups by id across concepts. One kenning id may
// have a partition under more than one concept.
type Grouped struct {
	concepts  []*ConceptGroup
	byConcept map[string]*ConceptGroup
	byKenning map[int64][]*KenningGroup
}

func newGrouped() *Grouped {
	return &Grouped{
		concepts:  make([]*ConceptGroup, 0),
		byConcept: make(map[string]*ConceptGroup),
		byKenning: make(map[int64][]*KenningGroup),
	}
}

// Group partitions rows by concept, then by kenning id within each concept,
// keeping the order in which each concept and kenning first appears.
func Group(rows []model.KenningRow) *Grouped {
	g := newGrouped()
	for _, row := range rows {
		concept := g.concept(row.Concept)

		kenning, ok := concept.byKenning[row.ID]
		if !ok {
			id := row.ID
			kenning = &KenningGroup{KenningID: &id, Words: make([]*WordRow, 0, 4)}
			concept.byKenning[row.ID] = kenning
			concept.Kennings = append(concept.Kennings, kenning)
			g.byKenning[row.ID] = append(g.byKenning[row.ID], kenning)
		}
		kenning.Words = append(kenning.Words, &WordRow{KenningRow: row})
	}
	return g
}

func (g *Grouped) concept(name string) *ConceptGroup {
	if c, ok := g.byConcept[name]; ok {
		return c
	}
	c := &ConceptGroup{
		Concept:   name,
		Kennings:  make([]*KenningGroup, 0, 1),
		byKenning: make(map[int64]*KenningGroup),
	}
	g.byConcept[name] = c
	g.concepts = append(g.concepts, c)
	return c
}

// AttachVotes appends each vote sum to every word row of its kenning, in
// every concept the kenning appears under. Sums for kennings not in the
// output are ignored. Calling it twice with the same sums attaches them twice.
func (g *Grouped) AttachVotes(sums []model.VoteSum) {
	for _, sum := range sums {
		for _, kenning := range g.byKenning[sum.KenningID] {
			for _, w := range kenning.Words {
				w.Votes = append(w.Votes, sum)
			}
		}
	}
}

// MergeRemaining adds a placeholder group for every matched concept that has
// no kenning in the output yet. Placeholders follow the grouped concepts, in
// match order.
func (g *Grouped) MergeRemaining(matches []lexicon.Match) {
	for _, m := range matches {
		if _, ok := g.byConcept[m.Concept]; ok {
			continue
		}
		c := g.concept(m.Concept)
		c.Kennings = append(c.Kennings, &KenningGroup{
			Words: []*WordRow{{
				KenningRow:  model.KenningRow{Concept: m.Concept, Definition: m.Definition},
				placeholder: true,
			}},
		})
	}
}

// KenningIDs returns the distinct kenning ids in output order.
func (g *Grouped) KenningIDs() []int64 {
	ids := make([]int64, 0, len(g.byKenning))
	seen := make(map[int64]struct{}, len(g.byKenning))
	for _, c := range g.concepts {
		for _, k := range c.Kennings {
			if k.KenningID == nil {
				continue
			}
			if _, ok := seen[*k.KenningID]; ok {
				continue
			}
			seen[*k.KenningID] = struct{}{}
			ids = append(ids, *k.KenningID)
		}
	}
	return ids
}

// Concepts returns the concepts in output order.
func (g *Grouped) Concepts() []string {
	names := make([]string, len(g.concepts))
	for i, c := range g.concepts {
		names[i] = c.Concept
	}
	return names
}

// Groups returns the concept groups in output order.
func (g *Grouped) Groups() []*ConceptGroup {
	return g.concepts
}

// Concept returns the group for one concept, or nil.
func (g *Grouped) Concept(name string) *ConceptGroup {
	return g.byConcept[name]
}

// Kenning returns the first group for one kenning id, or nil.
func (g *Grouped) Kenning(id int64) *KenningGroup {
	if groups := g.byKenning[id]; len(groups) > 0 {
		return groups[0]
	}
	return nil
}

// Kennings returns every group for one kenning id, one per concept.
func (g *Grouped) Kennings(id int64) []*KenningGroup {
	return g.byKenning[id]
}

func (g *Grouped) Len() int {
	return len(g.concepts)
}

func (g *Grouped) MarshalJSON() ([]byte, error) {
	return json.Marshal(g.concepts)
}
