package veille

import (
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/veille/internal/model"
)

// Dedupe keeps the first publication per URL+commune key, preserving order.
func Dedupe(records []model.Publication) []model.Publication {
	seen := make(map[string]struct{}, len(records))
	out := make([]model.Publication, 0, len(records))
	for _, p := range records {
		key := p.Key()
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, p)
	}
	zap.L().Info("dedupe complete",
		zap.String("component", "veille"),
		zap.Int("before", len(records)),
		zap.Int("after", len(out)),
	)
	return out
}

// FilterRecent keeps publications published within the last daysAgo days.
// Zero keeps only publications dated now or later; negative values are
// treated as zero.
func FilterRecent(records []model.Publication, daysAgo int) []model.Publication {
	return filterRecentAt(records, daysAgo, time.Now())
}

func filterRecentAt(records []model.Publication, daysAgo int, now time.Time) []model.Publication {
	if daysAgo < 0 {
		daysAgo = 0
	}
	cutoff := now.AddDate(0, 0, -daysAgo)

	out := make([]model.Publication, 0, len(records))
	for _, p := range records {
		if !p.PublishedAt.Before(cutoff) {
			out = append(out, p)
		}
	}
	zap.L().Info("recency filter complete",
		zap.String("component", "veille"),
		zap.Int("days", daysAgo),
		zap.Int("kept", len(out)),
		zap.Int("total", len(records)),
	)
	return out
}
