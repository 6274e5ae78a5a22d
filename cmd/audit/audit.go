package main

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/hisyeo/kennings/internal/repository"
	"github.com/hisyeo/kennings/internal/tokenizer"
	"golang.org/x/sync/errgroup"
	"gorm.io/datatypes"
)

const (
	IssueUnresolved = "UNRESOLVED_TOKEN"
	IssueResolvable = "RESOLVABLE_TOKEN"
)

type Issue struct {
	KenningID int64  `json:"kenningId"`
	Concept   string `json:"concept"`
	Position  int    `json:"position"`
	Literal   string `json:"literal"`
	Type      string `json:"type"`
	Details   string `json:"details"`
}

type Report struct {
	RunID     string    `json:"runId"`
	StartedAt time.Time `json:"startedAt"`
	Elapsed   string    `json:"elapsed"`
	Kennings  int       `json:"kennings"`
	Issues    []Issue   `json:"issues"`
	Fixed     []int64   `json:"fixed"`
}

// audit checks every kenning whose current version has unresolved tokens.
// A token that now matches a known word is resolvable; with fix set, those
// kennings get a new version with the word ids filled in.
func audit(ctx context.Context, store *repository.Store, workers int, fix bool) (*Report, error) {
	report := &Report{RunID: uuid.NewString(), StartedAt: time.Now(), Issues: []Issue{}, Fixed: []int64{}}

	unresolved, err := store.FetchUnresolved(ctx)
	if err != nil {
		return nil, err
	}

	var order []int64
	byKenning := make(map[int64][]repository.UnresolvedWord)
	literals := make([]string, 0, len(unresolved))
	for _, w := range unresolved {
		if _, ok := byKenning[w.KenningID]; !ok {
			order = append(order, w.KenningID)
		}
		byKenning[w.KenningID] = append(byKenning[w.KenningID], w)
		literals = append(literals, w.Literal)
	}
	report.Kennings = len(order)

	known, err := store.FindWords(ctx, literals)
	if err != nil {
		return nil, err
	}

	var mu sync.Mutex
	var processed int64

	g, gctx := errgroup.WithContext(ctx)
	if workers > 0 {
		g.SetLimit(workers)
	}
	for _, id := range order {
		id := id
		words := byKenning[id]
		g.Go(func() error {
			var issues []Issue
			fixable := false
			for _, w := range words {
				issue := Issue{KenningID: w.KenningID, Concept: w.Concept, Position: w.Position, Literal: w.Literal, Type: IssueUnresolved}
				if word, ok := known[w.Literal]; ok {
					issue.Type = IssueResolvable
					issue.Details = fmt.Sprintf("'%s' now matches word %d", w.Literal, word.ID)
					fixable = true
				} else {
					issue.Details = fmt.Sprintf("'%s' is not a known word", w.Literal)
				}
				issues = append(issues, issue)
			}

			fixed := false
			if fix && fixable {
				if err := fixKenning(gctx, store, id); err != nil {
					return fmt.Errorf("kenning %d: %w", id, err)
				}
				fixed = true
			}

			mu.Lock()
			report.Issues = append(report.Issues, issues...)
			if fixed {
				report.Fixed = append(report.Fixed, id)
			}
			mu.Unlock()

			if p := atomic.AddInt64(&processed, 1); p%100 == 0 {
				fmt.Printf("Progress: %d/%d kennings\n", p, len(order))
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	sort.Slice(report.Issues, func(i, j int) bool {
		a, b := report.Issues[i], report.Issues[j]
		if a.KenningID != b.KenningID {
			return a.KenningID < b.KenningID
		}
		return a.Position < b.Position
	})
	sort.Slice(report.Fixed, func(i, j int) bool { return report.Fixed[i] < report.Fixed[j] })
	report.Elapsed = time.Since(report.StartedAt).String()
	return report, nil
}

// fixKenning re-resolves the current words of a kenning and stores them as
// a new version.
func fixKenning(ctx context.Context, store *repository.Store, id int64) error {
	current, err := store.CurrentWords(ctx, id)
	if err != nil {
		return err
	}

	tokens := make([]tokenizer.Token, len(current))
	for i, w := range current {
		tokens[i] = tokenizer.Token{Position: i, Raw: w.Literal}
	}
	known, err := store.FindWords(ctx, tokenizer.Latins(tokens))
	if err != nil {
		return err
	}
	resolved := tokenizer.Resolve(tokens, known)

	refs := make([]repository.WordRef, len(current))
	for i, w := range current {
		refs[i] = repository.WordRef{WordID: resolved[i].WordID, Literal: w.Literal}
		if refs[i].WordID == nil {
			refs[i].WordID = w.WordID
		}
	}

	spans, err := json.Marshal(tokenizer.Render(resolved))
	if err != nil {
		return err
	}
	_, err = store.AppendVersion(ctx, id, "", refs, datatypes.JSON(spans))
	return err
}
