// Package listing supplies the candidate items a room votes on. The ingestion
// worker that fills the backing stores lives outside this repository; this
// package only samples what is already there.
package listing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"os"
	"strings"
	"sync"

	"github.com/jason-s-yu/pricecheck/internal/models"
	"github.com/jason-s-yu/pricecheck/internal/scoring"
)

// DefaultCount is how many candidates a round offers when not configured.
const DefaultCount = 3

// ErrEmpty is returned by a source that has nothing to offer.
var ErrEmpty = errors.New("listing: no items available")

// Batch is one sample of candidate items. EstimatedTotal is the approximate
// size of the pool the sample was drawn from, or 0 when unknown.
type Batch struct {
	Items          []models.Item `json:"items"`
	EstimatedTotal int           `json:"estimatedTotal"`
}

// Source fetches a batch of candidates for one round.
type Source interface {
	FetchCandidates(ctx context.Context) (Batch, error)
}

// usable reports whether an item can be played: it needs something to show
// and a positive price to guess. "Call for price" style listings parse to 0.
func usable(it models.Item) bool {
	return strings.TrimSpace(it.Title) != "" && scoring.ParsePrice(it.Price) > 0
}

func filter(items []models.Item) []models.Item {
	out := items[:0]
	for _, it := range items {
		if usable(it) {
			out = append(out, it)
		}
	}
	return out
}

// Static samples from a fixed in-memory pool.
type Static struct {
	Items []models.Item
	Count int

	mu  sync.Mutex
	rng *rand.Rand
}

// NewStatic returns a source sampling count items from items.
func NewStatic(items []models.Item, count int, seed int64) *Static {
	if count <= 0 {
		count = DefaultCount
	}
	return &Static{
		Items: filter(append([]models.Item(nil), items...)),
		Count: count,
		rng:   rand.New(rand.NewSource(seed)),
	}
}

// FetchCandidates returns up to Count distinct items in random order.
func (s *Static) FetchCandidates(ctx context.Context) (Batch, error) {
	if err := ctx.Err(); err != nil {
		return Batch{}, err
	}
	if len(s.Items) == 0 {
		return Batch{}, ErrEmpty
	}
	s.mu.Lock()
	perm := s.rng.Perm(len(s.Items))
	s.mu.Unlock()

	n := min(s.Count, len(s.Items))
	out := make([]models.Item, n)
	for i := 0; i < n; i++ {
		out[i] = s.Items[perm[i]]
	}
	return Batch{Items: out, EstimatedTotal: len(s.Items)}, nil
}

// LoadFile reads a JSON array of items from path into a Static source.
func LoadFile(path string, count int, seed int64) (*Static, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read listings file: %w", err)
	}
	var items []models.Item
	if err := json.Unmarshal(data, &items); err != nil {
		return nil, fmt.Errorf("decode listings file %s: %w", path, err)
	}
	return NewStatic(items, count, seed), nil
}

// Chain tries each source in order and returns the first non-empty batch.
type Chain []Source

// FetchCandidates returns ErrEmpty joined with every source error when no
// source produced items.
func (c Chain) FetchCandidates(ctx context.Context) (Batch, error) {
	errs := []error{ErrEmpty}
	for _, src := range c {
		batch, err := src.FetchCandidates(ctx)
		if err != nil {
			errs = append(errs, err)
			if ctx.Err() != nil {
				break
			}
			continue
		}
		if len(batch.Items) > 0 {
			return batch, nil
		}
	}
	return Batch{}, errors.Join(errs...)
}
