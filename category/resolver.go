// Package category maps breadcrumb paths onto the reference taxonomy.
package category

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/pmezard/go-difflib/difflib"
	"price_tracker/models"
)

// FuzzyCutoff is the minimum similarity ratio for a fuzzy match.
const FuzzyCutoff = 0.8

// Source lists the reference taxonomy.
type Source interface {
	ListCategories(ctx context.Context) ([]models.Category, error)
}

type candidate struct {
	id    int64
	lower string
	runes []string
}

// Resolver caches the taxonomy once per crawl run. Call Reset at run start
// to pick up a re-imported taxonomy.
type Resolver struct {
	source Source

	mu         sync.Mutex
	loaded     bool
	exact      map[string]int64
	candidates []candidate
}

func NewResolver(source Source) *Resolver {
	return &Resolver{source: source}
}

// Reset drops the cached taxonomy.
func (r *Resolver) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.loaded = false
	r.exact = nil
	r.candidates = nil
}

// Resolve returns the category id for a breadcrumb path, or nil when nothing
// matches. A miss is not an error.
func (r *Resolver) Resolve(ctx context.Context, breadcrumb string) (*int64, error) {
	leaf, ok := LeafSegment(breadcrumb)
	if !ok {
		return nil, nil
	}

	exact, candidates, err := r.load(ctx)
	if err != nil {
		return nil, err
	}

	key := strings.ToLower(leaf)
	if id, ok := exact[key]; ok {
		return &id, nil
	}

	if c, ok := bestFuzzy(key, candidates); ok {
		id := c.id
		return &id, nil
	}
	return nil, nil
}

// load returns the cached taxonomy, reading it on first use. The returned
// index is never mutated afterwards, so matching runs without the lock.
func (r *Resolver) load(ctx context.Context) (map[string]int64, []candidate, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.loaded {
		return r.exact, r.candidates, nil
	}

	cats, err := r.source.ListCategories(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("load categories: %w", err)
	}

	exact := make(map[string]int64, len(cats))
	for _, c := range cats {
		key := strings.ToLower(strings.TrimSpace(c.Name))
		if key == "" {
			continue
		}
		if prev, ok := exact[key]; !ok || c.CategoryID < prev {
			exact[key] = c.CategoryID
		}
	}

	candidates := make([]candidate, 0, len(exact))
	for name, id := range exact {
		candidates = append(candidates, candidate{id: id, lower: name, runes: splitRunes(name)})
	}
	// Stable order makes the tie-break independent of map iteration.
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].lower != candidates[j].lower {
			return candidates[i].lower < candidates[j].lower
		}
		return candidates[i].id < candidates[j].id
	})

	r.exact = exact
	r.candidates = candidates
	r.loaded = true
	return exact, candidates, nil
}

// LeafSegment returns the last meaningful segment of a " > " separated path.
// Segments starting with "see more" are truncation artifacts and are skipped.
func LeafSegment(breadcrumb string) (string, bool) {
	var leaf string
	for _, seg := range strings.Split(breadcrumb, ">") {
		seg = strings.TrimSpace(seg)
		if seg == "" || strings.HasPrefix(strings.ToLower(seg), "see more") {
			continue
		}
		leaf = seg
	}
	return leaf, leaf != ""
}

// Similarity is the difflib ratio between two strings, compared rune by rune.
func Similarity(a, b string) float64 {
	return ratio(splitRunes(a), splitRunes(b))
}

// bestFuzzy picks the highest ratio at or above the cutoff. Candidates are
// sorted by name then id, so the first of equal scores wins.
func bestFuzzy(query string, candidates []candidate) (candidate, bool) {
	q := splitRunes(query)
	var best candidate
	bestScore := -1.0
	for _, c := range candidates {
		score := ratio(c.runes, q)
		if score < FuzzyCutoff {
			continue
		}
		if score > bestScore {
			best = c
			bestScore = score
		}
	}
	return best, bestScore >= FuzzyCutoff
}

func ratio(a, b []string) float64 {
	if len(a)+len(b) == 0 {
		return 1
	}
	return difflib.NewMatcher(a, b).Ratio()
}

func splitRunes(s string) []string {
	out := make([]string, 0, len(s))
	for _, r := range s {
		out = append(out, string(r))
	}
	return out
}
