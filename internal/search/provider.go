package search

import (
	"context"
	"errors"
)

// ErrUnavailable signals a degraded search backend. Callers treat it as
// "no search context this turn", never as a turn failure.
var ErrUnavailable = errors.New("search provider unavailable")

// Result is one search hit as consumed by agent prompts.
type Result struct {
	Title   string `json:"title"`
	Snippet string `json:"snippet"`
	URL     string `json:"url,omitempty"`
}

// Provider is the search-tool contract. Implementations are best-effort;
// a failing provider returns ErrUnavailable and callers degrade.
type Provider interface {
	Search(ctx context.Context, query string) ([]Result, error)
}

// searchLimit bounds how many hits a single Search returns.
const searchLimit = 3

// Search implements Provider over the embedded index. The local index is
// never unavailable; a miss is an empty result set.
func (ix *Index) Search(_ context.Context, query string) ([]Result, error) {
	matches := ix.Lookup(query, searchLimit)
	out := make([]Result, 0, len(matches))
	for _, m := range matches {
		out = append(out, Result{Title: m.ID, Snippet: m.Text})
	}
	return out, nil
}
