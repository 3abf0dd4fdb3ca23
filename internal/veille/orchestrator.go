package veille

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/veille/internal/model"
)

// DefaultRecentDays is the trailing window Run applies when RunOpts.Days is zero.
const DefaultRecentDays = 30

// Recorder observes the outcome of each scraper invocation.
type Recorder interface {
	ObserveScrape(scraper string, publications int, elapsed time.Duration, err error)
}

// Orchestrator runs registered scrapers and isolates their failures.
type Orchestrator struct {
	reg      *Registry
	recorder Recorder
	now      func() time.Time
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithRecorder attaches a Recorder notified after every scraper run.
func WithRecorder(r Recorder) Option {
	return func(o *Orchestrator) { o.recorder = r }
}

// WithClock overrides the clock used by Run's recency filter.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

// NewOrchestrator creates an orchestrator over reg.
func NewOrchestrator(reg *Registry, opts ...Option) *Orchestrator {
	o := &Orchestrator{reg: reg, now: time.Now}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Registry returns the scrapers the orchestrator runs.
func (o *Orchestrator) Registry() *Registry {
	return o.reg
}

// ScrapeAll runs every registered scraper concurrently and concatenates the
// results in registration order. A failing scraper contributes nothing.
func (o *Orchestrator) ScrapeAll(ctx context.Context) []model.Publication {
	log := zap.L().With(zap.String("component", "veille.orchestrator"))
	scrapers := o.reg.All()
	if len(scrapers) == 0 {
		log.Warn("no scrapers registered")
		return nil
	}

	// One slot per scraper; each goroutine writes only its own.
	slots := make([][]model.Publication, len(scrapers))

	g, gctx := errgroup.WithContext(ctx)
	for i, s := range scrapers {
		g.Go(func() error {
			slots[i] = o.invoke(gctx, s, s.Scrape)
			return nil // don't abort other scrapers on individual failure
		})
	}
	_ = g.Wait()

	var total int
	for _, slot := range slots {
		total += len(slot)
	}
	out := make([]model.Publication, 0, total)
	for _, slot := range slots {
		out = append(out, slot...)
	}

	log.Info("scrape all complete",
		zap.Int("scrapers", len(scrapers)),
		zap.Int("publications", len(out)),
	)
	return out
}

// ScrapeCanton runs the first registered scraper covering c. Multi-canton
// scrapers are restricted to c.
func (o *Orchestrator) ScrapeCanton(ctx context.Context, c model.Canton) []model.Publication {
	s, ok := o.reg.ForCanton(c)
	if !ok {
		zap.L().Warn("no scraper registered for canton",
			zap.String("component", "veille.orchestrator"),
			zap.String("canton", string(c)),
		)
		return nil
	}

	scrape := s.Scrape
	if cs, ok := s.(CantonScraper); ok {
		scrape = func(ctx context.Context) ([]model.Publication, error) {
			return cs.ScrapeCantons(ctx, []model.Canton{c})
		}
	}
	return o.invoke(ctx, s, scrape)
}

// invoke runs one scraper, converting errors and panics into an empty result.
func (o *Orchestrator) invoke(ctx context.Context, s Scraper, scrape func(context.Context) ([]model.Publication, error)) (pubs []model.Publication) {
	sLog := zap.L().With(zap.String("scraper", s.Name()))
	start := time.Now()

	var err error
	defer func() {
		if r := recover(); r != nil {
			err = eris.Errorf("veille: scraper %s panicked: %v", s.Name(), r)
			pubs = nil
		}
		elapsed := time.Since(start)
		if o.recorder != nil {
			o.recorder.ObserveScrape(s.Name(), len(pubs), elapsed, err)
		}
		if err != nil {
			sLog.Error("scraper failed", zap.Error(err), zap.Duration("elapsed", elapsed))
			return
		}
		sLog.Info("scraper complete",
			zap.Int("publications", len(pubs)),
			zap.Duration("elapsed", elapsed),
		)
	}()

	sLog.Info("starting scrape")
	pubs, err = scrape(ctx)
	if err != nil {
		pubs = nil
	}
	return pubs
}

// RunOpts configures a pipeline run.
type RunOpts struct {
	Canton model.Canton // restrict to one canton; empty runs every scraper
	Days   int          // recency window; zero uses DefaultRecentDays
}

// RunResult holds the outcome of one pipeline run.
type RunResult struct {
	Publications []model.Publication `json:"publications"`
	Scraped      int                 `json:"scraped"`
	Unique       int                 `json:"unique"`
	Recent       int                 `json:"recent"`
}

// Run scrapes, dedupes and recency-filters in one pass.
func (o *Orchestrator) Run(ctx context.Context, opts RunOpts) (*RunResult, error) {
	var raw []model.Publication
	if opts.Canton != "" {
		if !opts.Canton.Valid() {
			return nil, eris.Wrapf(model.ErrInvalidCanton, "run: %q", opts.Canton)
		}
		raw = o.ScrapeCanton(ctx, opts.Canton)
	} else {
		raw = o.ScrapeAll(ctx)
	}

	days := opts.Days
	if days <= 0 {
		days = DefaultRecentDays
	}
	unique := Dedupe(raw)
	recent := filterRecentAt(unique, days, o.now())

	return &RunResult{
		Publications: recent,
		Scraped:      len(raw),
		Unique:       len(unique),
		Recent:       len(recent),
	}, nil
}
