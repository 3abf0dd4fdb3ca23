// Package store persists publications and reports which ones are new.
package store

import (
	"context"
	"time"

	"github.com/sells-group/veille/internal/model"
)

// Listing limits applied when a filter asks for none or too many.
const (
	DefaultListLimit = 100
	MaxListLimit     = 1000
)

// PublicationFilter specifies criteria for listing publications.
type PublicationFilter struct {
	Canton model.Canton          `json:"canton,omitempty"`
	Type   model.PublicationType `json:"type,omitempty"`
	Since  time.Time             `json:"since,omitempty"`
	Limit  int                   `json:"limit,omitempty"`
}

func (f PublicationFilter) limit() int {
	switch {
	case f.Limit <= 0:
		return DefaultListLimit
	case f.Limit > MaxListLimit:
		return MaxListLimit
	default:
		return f.Limit
	}
}

// Store defines the persistence interface for the veille pipeline.
type Store interface {
	// SavePublications stores publications not seen before (unique on URL and
	// commune) and returns exactly those, in input order.
	SavePublications(ctx context.Context, pubs []model.Publication) ([]model.Publication, error)
	// ListPublications returns stored publications, newest first.
	ListPublications(ctx context.Context, filter PublicationFilter) ([]model.Publication, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}

// uniqueByKey drops repeated URL+commune pairs, first wins.
func uniqueByKey(pubs []model.Publication) []model.Publication {
	seen := make(map[string]bool, len(pubs))
	out := make([]model.Publication, 0, len(pubs))
	for _, p := range pubs {
		k := p.Key()
		if seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, p)
	}
	return out
}
