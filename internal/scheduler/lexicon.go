// Package scheduler runs background jobs for the server.
package scheduler

import (
	"context"
	"errors"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hisyeo/kennings/internal/lexicon"
)

var errEmptyLexicon = errors.New("lexicon has no entries")

// LoadFunc builds a fresh lexicon index.
type LoadFunc func(ctx context.Context) (*lexicon.Index, error)

// LexiconRefresher serves the current lexicon index and rebuilds it on an
// interval. A failed rebuild keeps the previous index.
type LexiconRefresher struct {
	load     LoadFunc
	interval time.Duration
	current  atomic.Pointer[lexicon.Index]
	onSwap   func(*lexicon.Index)

	mu          sync.Mutex
	running     bool
	stopChan    chan struct{}
	refreshes   int
	failures    int
	lastRefresh time.Time
}

// NewLexiconRefresher starts from initial. onSwap, when set, is called with
// every newly installed index.
func NewLexiconRefresher(initial *lexicon.Index, load LoadFunc, interval time.Duration, onSwap func(*lexicon.Index)) *LexiconRefresher {
	r := &LexiconRefresher{
		load:        load,
		interval:    interval,
		onSwap:      onSwap,
		stopChan:    make(chan struct{}),
		lastRefresh: time.Now(),
	}
	r.current.Store(initial)
	return r
}

func (r *LexiconRefresher) Current() *lexicon.Index {
	return r.current.Load()
}

func (r *LexiconRefresher) SearchEnglish(query string) []lexicon.Match {
	return r.Current().SearchEnglish(query)
}

func (r *LexiconRefresher) Definition(concept string) (string, error) {
	return r.Current().Definition(concept)
}

func (r *LexiconRefresher) Len() int {
	return r.Current().Len()
}

// Start blocks until ctx is done or Stop is called. A non-positive interval
// disables refreshing.
func (r *LexiconRefresher) Start(ctx context.Context) {
	if r.interval <= 0 {
		return
	}
	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		return
	}
	r.running = true
	r.mu.Unlock()

	log.Printf("[Scheduler] Refreshing lexicon every %v", r.interval)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("[Scheduler] Context cancelled, stopping")
			return
		case <-r.stopChan:
			log.Println("[Scheduler] Stop signal received")
			return
		case <-ticker.C:
			r.Refresh(ctx)
		}
	}
}

func (r *LexiconRefresher) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.running {
		close(r.stopChan)
		r.running = false
		log.Println("[Scheduler] Stopped")
	}
}

// Refresh rebuilds the index once and reports whether it was replaced.
func (r *LexiconRefresher) Refresh(ctx context.Context) bool {
	index, err := r.load(ctx)
	if err == nil && (index == nil || index.Len() == 0) {
		err = errEmptyLexicon
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if err != nil {
		r.failures++
		log.Printf("[Scheduler] Lexicon refresh failed, keeping %d entries: %v", r.Current().Len(), err)
		return false
	}

	r.current.Store(index)
	r.refreshes++
	r.lastRefresh = time.Now()
	log.Printf("[Scheduler] Lexicon refreshed: %d entries", index.Len())
	if r.onSwap != nil {
		r.onSwap(index)
	}
	return true
}

// GetStatus returns current refresher status
func (r *LexiconRefresher) GetStatus() map[string]interface{} {
	r.mu.Lock()
	defer r.mu.Unlock()

	return map[string]interface{}{
		"running":     r.running,
		"entries":     r.Current().Len(),
		"refreshes":   r.refreshes,
		"failures":    r.failures,
		"lastRefresh": r.lastRefresh.UTC().Format(time.RFC3339),
		"interval":    r.interval.String(),
	}
}
