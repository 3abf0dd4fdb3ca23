package main

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/veille/internal/browser"
	"github.com/sells-group/veille/internal/config"
	"github.com/sells-group/veille/internal/fetcher"
	"github.com/sells-group/veille/internal/metrics"
	"github.com/sells-group/veille/internal/model"
	"github.com/sells-group/veille/internal/notify"
	"github.com/sells-group/veille/internal/pdftext"
	"github.com/sells-group/veille/internal/source/bulletin"
	"github.com/sells-group/veille/internal/source/gazette"
	"github.com/sells-group/veille/internal/source/htmlpage"
	"github.com/sells-group/veille/internal/source/simap"
	"github.com/sells-group/veille/internal/store"
	"github.com/sells-group/veille/internal/veille"
)

// runner performs one scrape, dedupe and recency pass.
type runner interface {
	Run(ctx context.Context, opts veille.RunOpts) (*veille.RunResult, error)
}

// pipelineEnv holds the orchestrator and the optional persistence and
// notification collaborators needed by the scrape/serve/export commands.
type pipelineEnv struct {
	Runner    runner
	Registry  *veille.Registry
	Store     store.Store      // nil when persistence is off
	Publisher notify.Publisher // nil when persistence is off
}

// Close releases resources held by the pipeline environment.
func (pe *pipelineEnv) Close() {
	if pe.Publisher != nil {
		_ = pe.Publisher.Close()
	}
	if pe.Store != nil {
		_ = pe.Store.Close()
	}
}

// initPipeline builds the scrapers and the orchestrator. With persist set it
// also opens the store and the notification publisher. Callers should defer
// env.Close().
func initPipeline(ctx context.Context, c *config.Config, persist bool, reg prometheus.Registerer) (*pipelineEnv, error) {
	if err := c.Validate("sources"); err != nil {
		return nil, err
	}
	if persist {
		if err := c.Validate("store"); err != nil {
			return nil, err
		}
	}

	f := fetcher.NewHTTPFetcher(fetcher.HTTPOptions{
		UserAgent:  c.Fetch.UserAgent,
		Timeout:    time.Duration(c.Fetch.TimeoutSecs) * time.Second,
		MaxRetries: c.Fetch.MaxRetries,
	})

	var ext pdftext.Extractor
	if c.Sources.Gazette.Enabled {
		var err error
		if ext, err = pdftext.NewExtractor(c.PDF); err != nil {
			return nil, err
		}
	}

	var launcher browser.Launcher
	if c.Sources.Bulletin.Enabled {
		launcher = browser.NewChromeLauncher(browser.ChromeOptions{
			ExecPath:  c.Sources.Bulletin.ChromePath,
			Headless:  c.Sources.Bulletin.Headless,
			UserAgent: c.Fetch.UserAgent,
		})
	}

	scrapers, err := buildRegistry(c, f, ext, launcher)
	if err != nil {
		return nil, err
	}

	opts := []veille.Option{}
	if reg != nil {
		rec, err := metrics.NewRecorder(reg)
		if err != nil {
			return nil, err
		}
		opts = append(opts, veille.WithRecorder(rec))
	}

	env := &pipelineEnv{
		Runner:   veille.NewOrchestrator(scrapers, opts...),
		Registry: scrapers,
	}
	if !persist {
		return env, nil
	}

	st, err := store.Open(ctx, c.Store)
	if err != nil {
		return nil, eris.Wrap(err, "open store")
	}
	pub, err := notify.New(c.RabbitMQ)
	if err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "init notifier")
	}
	env.Store = st
	env.Publisher = pub
	return env, nil
}

// buildRegistry registers every enabled scraper in a fixed order: static
// pages, gazette, bulletin, then SIMAP.
func buildRegistry(c *config.Config, f fetcher.Fetcher, ext pdftext.Extractor, l browser.Launcher) (*veille.Registry, error) {
	var scrapers []veille.Scraper

	if c.Sources.HTML.Enabled {
		pages, err := htmlPages(c.Sources.HTML)
		if err != nil {
			return nil, err
		}
		for _, p := range pages {
			s, err := htmlpage.New(p, f)
			if err != nil {
				return nil, eris.Wrapf(err, "html page %s", p.URL)
			}
			scrapers = append(scrapers, s)
		}
	}

	if c.Sources.Gazette.Enabled {
		g := c.Sources.Gazette
		s, err := gazette.New(gazette.Config{
			Canton:           g.Canton,
			LandingURL:       g.LandingURL,
			EditionURLFormat: g.EditionURLFormat,
			MaxDocuments:     g.MaxDocuments,
		}, f, ext)
		if err != nil {
			return nil, err
		}
		scrapers = append(scrapers, s)
	}

	if c.Sources.Bulletin.Enabled {
		b := c.Sources.Bulletin
		s, err := bulletin.New(bulletin.Config{
			Canton:            b.Canton,
			ListingURL:        b.ListingURL,
			BaseURL:           b.BaseURL,
			ContentSelector:   b.ContentSelector,
			MaxPages:          b.MaxPages,
			WaitTimeout:       time.Duration(b.WaitTimeoutSecs) * time.Second,
			PageDelay:         time.Duration(b.PageDelayMs) * time.Millisecond,
			ExcludeCategories: b.ExcludeCategory,
		}, l)
		if err != nil {
			return nil, err
		}
		scrapers = append(scrapers, s)
	}

	if c.Sources.SIMAP.Enabled {
		sm := c.Sources.SIMAP
		s, err := simap.New(simap.Config{
			BaseURL:   sm.BaseURL,
			DetailURL: sm.DetailURL,
			Cantons:   sm.Cantons,
			PageSize:  sm.PageSize,
			MaxPages:  sm.MaxPages,
		}, f)
		if err != nil {
			return nil, err
		}
		scrapers = append(scrapers, s)
	}

	reg, err := veille.NewRegistry(scrapers...)
	if err != nil {
		return nil, err
	}
	zap.L().Info("scrapers registered", zap.Strings("scrapers", reg.AllNames()))
	return reg, nil
}

// htmlPages returns the pages file entries, or the single inline page.
func htmlPages(c config.HTMLSourceConfig) ([]htmlpage.Page, error) {
	if c.PagesFile != "" {
		return htmlpage.LoadPages(c.PagesFile)
	}
	return []htmlpage.Page{{
		Canton:          c.Canton,
		URL:             c.URL,
		BaseURL:         c.BaseURL,
		Type:            c.Type,
		CommuneFallback: c.CommuneFallback,
	}}, nil
}

// runSummary reports one pipeline pass.
type runSummary struct {
	Scraped      int                 `json:"scraped"`
	Unique       int                 `json:"unique"`
	Recent       int                 `json:"recent"`
	New          int                 `json:"new"`
	Notified     int                 `json:"notified"`
	Publications []model.Publication `json:"publications,omitempty"`
}

// runOnce runs the pipeline, then persists and announces new publications
// when a store is attached. Notification failures are logged, not returned.
func (pe *pipelineEnv) runOnce(ctx context.Context, opts veille.RunOpts) (*runSummary, error) {
	res, err := pe.Runner.Run(ctx, opts)
	if err != nil {
		return nil, err
	}
	sum := &runSummary{
		Scraped:      res.Scraped,
		Unique:       res.Unique,
		Recent:       res.Recent,
		Publications: res.Publications,
	}
	if pe.Store == nil {
		return sum, nil
	}

	inserted, err := pe.Store.SavePublications(ctx, res.Publications)
	if err != nil {
		return nil, eris.Wrap(err, "persist publications")
	}
	sum.New = len(inserted)

	if pe.Publisher != nil && len(inserted) > 0 {
		n, err := notify.PublishAll(ctx, pe.Publisher, inserted)
		sum.Notified = n
		if err != nil {
			zap.L().Warn("notify: some publications were not published",
				zap.Int("published", n),
				zap.Int("new", len(inserted)),
				zap.Error(err),
			)
		}
	}

	zap.L().Info("pipeline run complete",
		zap.Int("scraped", sum.Scraped),
		zap.Int("unique", sum.Unique),
		zap.Int("recent", sum.Recent),
		zap.Int("new", sum.New),
		zap.Int("notified", sum.Notified),
	)
	return sum, nil
}

// runOpts builds RunOpts from a canton code and a day count, defaulting the
// window to the configured recent_days.
func runOpts(c *config.Config, canton string, days int) (veille.RunOpts, error) {
	opts := veille.RunOpts{Days: days}
	if opts.Days <= 0 {
		opts.Days = c.Veille.RecentDays
	}
	if canton != "" {
		cc, err := model.ParseCanton(canton)
		if err != nil {
			return opts, err
		}
		opts.Canton = cc
	}
	return opts, nil
}
