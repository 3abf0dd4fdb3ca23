// Package bulletin scrapes a JS-rendered official bulletin through a headless
// browser. Publications are read from repeating cards on a paginated listing.
package bulletin

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/veille/internal/browser"
	"github.com/sells-group/veille/internal/fetcher"
	"github.com/sells-group/veille/internal/model"
	"github.com/sells-group/veille/internal/veille"
)

// Defaults applied by New for zero config values.
const (
	DefaultMaxPages    = 3
	DefaultWaitTimeout = 15 * time.Second
	DefaultPageDelay   = 2 * time.Second
)

// categoryRules map a card category to a type, most specific first.
var categoryRules = []veille.TypeRule{
	{Type: model.TypeAppelDOffres, Keywords: []string{"appel d'offres", "marché public", "marchés publics", "soumission", "adjudication"}},
	{Type: model.TypeMiseALEnquete, Keywords: []string{"enquête publique", "mise à l'enquête", "mises à l'enquête", "enquête"}},
	{Type: model.TypeOpposition, Keywords: []string{"opposition"}},
	{Type: model.TypePermisConstruire, Keywords: []string{"permis de construire", "permis"}},
	{Type: model.TypeAutorisationConstruire, Keywords: []string{"autorisation de construire", "autorisation"}},
	{Type: model.TypeAvisOfficiel, Keywords: []string{"avis officiel", "avis"}},
}

// Card is one publication as read from the rendered listing.
type Card struct {
	Commune  string `json:"commune"`
	Category string `json:"category"`
	Title    string `json:"title"`
	Href     string `json:"href"`
	Date     string `json:"date"`
}

// Config describes the bulletin listing.
type Config struct {
	Name              string
	Canton            string
	ListingURL        string // fmt template taking the 1-based page number
	BaseURL           string
	ContentSelector   string
	MaxPages          int
	WaitTimeout       time.Duration
	PageDelay         time.Duration
	ExcludeCategories []string
}

// Scraper drives one browser per Scrape call.
type Scraper struct {
	cfg      Config
	canton   model.Canton
	launcher browser.Launcher
	now      func() time.Time
	sleep    func(ctx context.Context, d time.Duration) error
}

// New validates cfg and creates the scraper.
func New(cfg Config, l browser.Launcher) (*Scraper, error) {
	canton, err := model.ParseCanton(cfg.Canton)
	if err != nil {
		return nil, eris.Wrap(err, "bulletin: canton")
	}
	if !strings.Contains(cfg.ListingURL, "%d") {
		return nil, eris.Errorf("bulletin: listing_url %q must contain a %%d page placeholder", cfg.ListingURL)
	}
	if cfg.ContentSelector == "" {
		return nil, eris.New("bulletin: content_selector is required")
	}
	if l == nil {
		return nil, eris.New("bulletin: browser launcher is required")
	}
	if cfg.Name == "" {
		cfg.Name = "bulletin_" + strings.ToLower(string(canton))
	}
	if cfg.MaxPages <= 0 {
		cfg.MaxPages = DefaultMaxPages
	}
	if cfg.WaitTimeout <= 0 {
		cfg.WaitTimeout = DefaultWaitTimeout
	}
	if cfg.PageDelay <= 0 {
		cfg.PageDelay = DefaultPageDelay
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = cfg.ListingURL
	}
	return &Scraper{
		cfg:      cfg,
		canton:   canton,
		launcher: l,
		now:      time.Now,
		sleep:    sleepCtx,
	}, nil
}

// Name implements veille.Scraper.
func (s *Scraper) Name() string { return s.cfg.Name }

// Cantons implements veille.Scraper.
func (s *Scraper) Cantons() []model.Canton { return []model.Canton{s.canton} }

// Scrape walks the listing pages. A page that fails to load or render yields
// nothing; the scrape fails only when the browser cannot start or every page
// failed.
func (s *Scraper) Scrape(ctx context.Context) ([]model.Publication, error) {
	log := zap.L().With(zap.String("scraper", s.cfg.Name))

	b, err := s.launcher.Launch(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "bulletin: launch browser")
	}
	defer func() {
		if cerr := b.Close(); cerr != nil {
			log.Warn("bulletin: close browser", zap.Error(cerr))
		}
	}()

	now := s.now()
	var (
		out    []model.Publication
		failed int
		last   error
	)
	for page := 1; page <= s.cfg.MaxPages; page++ {
		if page > 1 {
			if err := s.sleep(ctx, s.cfg.PageDelay); err != nil {
				return out, eris.Wrap(err, "bulletin: scrape cancelled")
			}
		}

		cards, err := s.scrapePage(ctx, b, page)
		if err != nil {
			failed++
			last = err
			log.Warn("bulletin page failed", zap.Int("page", page), zap.Error(err))
			continue
		}

		pubs := s.convert(cards, now)
		log.Debug("bulletin page scraped",
			zap.Int("page", page),
			zap.Int("cards", len(cards)),
			zap.Int("kept", len(pubs)),
		)
		out = append(out, pubs...)
	}

	if failed == s.cfg.MaxPages {
		return nil, eris.Wrapf(last, "bulletin: all %d pages failed", failed)
	}
	return out, nil
}

// scrapePage loads one listing page in its own tab.
func (s *Scraper) scrapePage(ctx context.Context, b browser.Browser, page int) ([]Card, error) {
	p, err := b.NewPage(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "bulletin: open page")
	}
	defer p.Close() //nolint:errcheck

	pageURL := fmt.Sprintf(s.cfg.ListingURL, page)
	if err := p.Navigate(ctx, pageURL); err != nil {
		return nil, err
	}
	if err := p.WaitVisible(ctx, s.cfg.ContentSelector, s.cfg.WaitTimeout); err != nil {
		return nil, err
	}

	var cards []Card
	if err := p.Evaluate(ctx, extractScript(s.cfg.ContentSelector), &cards); err != nil {
		return nil, err
	}
	return cards, nil
}

// convert maps cards to publications and drops excluded categories.
func (s *Scraper) convert(cards []Card, now time.Time) []model.Publication {
	out := make([]model.Publication, 0, len(cards))
	for _, c := range cards {
		if s.excluded(c.Category) {
			continue
		}
		p, ok := s.toPublication(c, now)
		if !ok {
			continue
		}
		out = append(out, p)
	}
	return out
}

func (s *Scraper) toPublication(c Card, now time.Time) (model.Publication, bool) {
	title := veille.CollapseSpace(c.Title)
	category := veille.CollapseSpace(c.Category)
	if title == "" {
		title = category
	}
	if title == "" {
		return model.Publication{}, false
	}

	link := fetcher.ResolveURL(s.cfg.BaseURL, strings.TrimSpace(c.Href))
	if link == "" {
		return model.Publication{}, false
	}

	published, ok := veille.MatchSwissDate(c.Date)
	if !ok {
		published = now
	}

	return model.Publication{
		Title:       title,
		Description: describe(category, title),
		URL:         link,
		Commune:     veille.NormalizeCommune(veille.StripCommunePrefix(c.Commune)),
		Canton:      s.canton,
		Type:        veille.Classify(category, categoryRules, model.TypeAutre),
		PublishedAt: published,
		Metadata: model.Metadata{
			"scraper":  s.cfg.Name,
			"category": category,
		},
	}, true
}

func (s *Scraper) excluded(category string) bool {
	for _, ex := range s.cfg.ExcludeCategories {
		if ex != "" && veille.ContainsFold(category, ex) {
			return true
		}
	}
	return false
}

func describe(category, title string) string {
	if category == "" || category == title {
		return title
	}
	return category + " - " + title
}

// extractScript returns the in-page extraction for cards matching selector.
// Each card holds a commune heading, a category label, a linked title and a
// DD.MM.YYYY date somewhere in its text nodes.
func extractScript(selector string) string {
	sel, _ := json.Marshal(selector)
	return fmt.Sprintf(`(() => {
  const text = (el) => (el && el.textContent ? el.textContent.replace(/\s+/g, " ").trim() : "");
  const dateRe = /\b\d{1,2}\.\d{1,2}\.\d{4}\b/;
  return Array.from(document.querySelectorAll(%s)).map((card) => {
    const heading = card.querySelector("h2, h3, .commune, .card-header");
    const category = card.querySelector(".category, .badge, .tag, .type");
    const link = card.querySelector("a[href]");
    const titleEl = card.querySelector(".title, h4, h5") || link;
    let date = "";
    for (const el of card.querySelectorAll("time, .date, span, small, p, div")) {
      const m = text(el).match(dateRe);
      if (m) { date = m[0]; break; }
    }
    return {
      commune: text(heading).replace(/^\s*commune\s+d(e\s+|['’]\s*)/i, ""),
      category: text(category),
      title: text(titleEl),
      href: link ? link.getAttribute("href") : "",
      date: date,
    };
  });
})()`, sel)
}

// sleepCtx waits for d or until ctx is done.
func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
