// Package gazette scrapes a weekly official gazette published as PDF. Links to
// the latest editions are discovered on a landing page; the text of each
// edition is split into sections and commune notices.
package gazette

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/veille/internal/fetcher"
	"github.com/sells-group/veille/internal/model"
	"github.com/sells-group/veille/internal/pdftext"
)

// DefaultMaxDocuments bounds how many editions one run downloads.
const DefaultMaxDocuments = 2

// editionOffsets are the weeks tried back from the current one when the
// landing page yields no links.
const editionOffsets = 3

// Link patterns, most specific first. The first pattern with at least one
// match supplies every candidate.
var linkPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)href\s*=\s*["']([^"']*(?:/print/|[?&]print=)[^"']*)["']`),
	regexp.MustCompile(`(?i)href\s*=\s*["']([^"']+\.pdf(?:[?#][^"']*)?)["']`),
	regexp.MustCompile(`(?i)href\s*=\s*["']([^"']*/(?:documents|publications|editions)/[^"']*)["']`),
	regexp.MustCompile(`(?i)<a\s[^>]*href\s*=\s*["']([^"']+)["'][^>]*>[^<]*(?:feuille|officielle)[^<]*</a>`),
}

// Config describes one gazette source.
type Config struct {
	Name             string
	Canton           string
	LandingURL       string
	EditionURLFormat string // fmt template taking (year, week)
	MaxDocuments     int
	CommuneFallback  string
}

// Scraper downloads recent gazette editions and parses their notices.
type Scraper struct {
	cfg       Config
	canton    model.Canton
	fetcher   fetcher.Fetcher
	extractor pdftext.Extractor
	now       func() time.Time
}

// New validates cfg and creates the scraper.
func New(cfg Config, f fetcher.Fetcher, ext pdftext.Extractor) (*Scraper, error) {
	canton, err := model.ParseCanton(cfg.Canton)
	if err != nil {
		return nil, eris.Wrap(err, "gazette: canton")
	}
	if cfg.LandingURL == "" && cfg.EditionURLFormat == "" {
		return nil, eris.New("gazette: landing_url or edition_url_format is required")
	}
	if ext == nil {
		return nil, eris.New("gazette: pdf extractor is required")
	}
	if cfg.Name == "" {
		cfg.Name = "gazette_" + strings.ToLower(string(canton))
	}
	if cfg.MaxDocuments <= 0 {
		cfg.MaxDocuments = DefaultMaxDocuments
	}
	if cfg.CommuneFallback == "" {
		cfg.CommuneFallback = model.CommuneFribourg
	}
	return &Scraper{
		cfg:       cfg,
		canton:    canton,
		fetcher:   f,
		extractor: ext,
		now:       time.Now,
	}, nil
}

// Name implements veille.Scraper.
func (s *Scraper) Name() string { return s.cfg.Name }

// Cantons implements veille.Scraper.
func (s *Scraper) Cantons() []model.Canton { return []model.Canton{s.canton} }

// Scrape processes the most recent editions. Candidates are tried newest first
// until MaxDocuments editions parsed; a failed edition is skipped and the run
// fails only when every attempted edition failed.
func (s *Scraper) Scrape(ctx context.Context) ([]model.Publication, error) {
	log := zap.L().With(zap.String("scraper", s.cfg.Name))
	now := s.now()

	docs := s.discover(ctx, now)
	if len(docs) == 0 {
		log.Warn("no gazette documents found")
		return nil, nil
	}

	var (
		out       []model.Publication
		parsed    int
		attempted int
		last      error
	)
	for _, doc := range docs {
		if parsed >= s.cfg.MaxDocuments {
			break
		}
		if err := ctx.Err(); err != nil {
			return out, eris.Wrap(err, "gazette: scrape cancelled")
		}
		attempted++
		pubs, err := s.processDocument(ctx, doc, now)
		if err != nil {
			last = err
			log.Warn("gazette document failed", zap.String("url", doc), zap.Error(err))
			continue
		}
		parsed++
		log.Info("gazette document parsed", zap.String("url", doc), zap.Int("publications", len(pubs)))
		out = append(out, pubs...)
	}

	if parsed == 0 {
		return nil, eris.Wrapf(last, "gazette: all %d documents failed", attempted)
	}
	return out, nil
}

// discover returns candidate document URLs, newest first.
func (s *Scraper) discover(ctx context.Context, now time.Time) []string {
	if s.cfg.LandingURL != "" {
		links, err := s.landingLinks(ctx)
		if err != nil {
			zap.L().Warn("gazette landing page failed, using edition fallback",
				zap.String("scraper", s.cfg.Name),
				zap.Error(err),
			)
		}
		if len(links) > 0 {
			return links
		}
	}
	return EditionURLs(s.cfg.EditionURLFormat, now, editionOffsets)
}

func (s *Scraper) landingLinks(ctx context.Context) ([]string, error) {
	data, err := fetcher.ReadAll(ctx, s.fetcher, s.cfg.LandingURL, 0)
	if err != nil {
		return nil, eris.Wrapf(err, "gazette: fetch landing %s", s.cfg.LandingURL)
	}
	data, err = fetcher.DecodeHTML(data, "")
	if err != nil {
		return nil, eris.Wrap(err, "gazette: decode landing")
	}
	return ExtractLinks(string(data), s.cfg.LandingURL), nil
}

// ExtractLinks applies the link patterns in order and returns the absolute,
// deduplicated matches of the first pattern that matched anything.
func ExtractLinks(html, base string) []string {
	for _, re := range linkPatterns {
		var links []string
		seen := make(map[string]bool)
		for _, m := range re.FindAllStringSubmatch(html, -1) {
			abs := fetcher.ResolveURL(base, strings.ReplaceAll(m[1], "&amp;", "&"))
			if abs == "" || seen[abs] {
				continue
			}
			seen[abs] = true
			links = append(links, abs)
		}
		if len(links) > 0 {
			return links
		}
	}
	return nil
}

// EditionURLs builds candidate URLs for the current ISO week and the n-1
// weeks before it. Weeks before the first of the year wrap to the last weeks
// of the previous year.
func EditionURLs(format string, now time.Time, n int) []string {
	if format == "" {
		return nil
	}
	year, week := now.ISOWeek()
	urls := make([]string, 0, n)
	for offset := range n {
		y, w := year, week-offset
		if w < 1 {
			y--
			w += weeksInYear(y)
		}
		urls = append(urls, fmt.Sprintf(format, y, w))
	}
	return urls
}

// weeksInYear returns 52 or 53. December 28 always falls in the last ISO week.
func weeksInYear(year int) int {
	_, w := time.Date(year, time.December, 28, 12, 0, 0, 0, time.UTC).ISOWeek()
	return w
}

func (s *Scraper) processDocument(ctx context.Context, docURL string, now time.Time) ([]model.Publication, error) {
	data, err := fetcher.ReadAll(ctx, s.fetcher, docURL, 0)
	if err != nil {
		return nil, eris.Wrap(err, "gazette: download document")
	}
	text, err := s.extractor.ExtractText(ctx, data)
	if err != nil {
		return nil, eris.Wrap(err, "gazette: extract text")
	}
	return Parse(text, ParseOptions{
		Scraper:         s.cfg.Name,
		Canton:          s.canton,
		DocumentURL:     docURL,
		CommuneFallback: s.cfg.CommuneFallback,
		Now:             now,
	}), nil
}
