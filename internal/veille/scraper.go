package veille

import (
	"context"

	"github.com/sells-group/veille/internal/model"
)

// Scraper fetches one external source and normalizes it into publications.
type Scraper interface {
	// Name returns the unique identifier (e.g., "simap", "gazette_fr").
	Name() string

	// Cantons returns the cantons this scraper covers.
	Cantons() []model.Canton

	// Scrape fetches and normalizes the source. Partial failures are logged
	// and skipped inside the scraper; an error means nothing usable came back.
	Scrape(ctx context.Context) ([]model.Publication, error)
}

// CantonScraper is implemented by scrapers covering several cantons that can
// restrict a run to a subset of them.
type CantonScraper interface {
	Scraper
	ScrapeCantons(ctx context.Context, cantons []model.Canton) ([]model.Publication, error)
}

// Covers reports whether s covers canton c.
func Covers(s Scraper, c model.Canton) bool {
	for _, have := range s.Cantons() {
		if have == c {
			return true
		}
	}
	return false
}
