// Package notify announces newly stored publications to downstream
// subscribers.
package notify

import (
	"context"
	"time"

	"github.com/sells-group/veille/internal/model"
)

// ActionCreated marks a publication seen for the first time.
const ActionCreated = "created"

// Message is the JSON body published for each new publication.
type Message struct {
	Action      string            `json:"action"`
	Publication model.Publication `json:"publication"`
	Timestamp   time.Time         `json:"timestamp"`
}

// Publisher announces new publications.
type Publisher interface {
	Publish(ctx context.Context, p model.Publication) error
	Close() error
}

// Noop discards every publication. It is used when no broker is configured.
type Noop struct{}

func (Noop) Publish(context.Context, model.Publication) error { return nil }
func (Noop) Close() error                                     { return nil }

// PublishAll publishes pubs in order and returns how many succeeded. A
// failure is logged by the caller; remaining publications are still sent.
func PublishAll(ctx context.Context, p Publisher, pubs []model.Publication) (int, error) {
	var (
		sent  int
		first error
	)
	for _, pub := range pubs {
		if err := p.Publish(ctx, pub); err != nil {
			if first == nil {
				first = err
			}
			continue
		}
		sent++
	}
	return sent, first
}
