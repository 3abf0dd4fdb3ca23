// Package htmlpage scrapes a static cantonal publication page: one fixed URL,
// one fixed publication type.
package htmlpage

import (
	"bytes"
	"context"
	"os"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/veille/internal/fetcher"
	"github.com/sells-group/veille/internal/model"
	"github.com/sells-group/veille/internal/veille"
)

// maxFallbackLinks caps the anchor-scan fallback.
const maxFallbackLinks = 20

// Container selectors, most specific markup first. The first selector that
// yields at least one publication wins.
var containerSelectors = []string{
	"article",
	".publication",
	".views-row",
	".view-content li",
}

var (
	titleSelectors       = []string{"h2", "h3", "h4", ".title", "a"}
	descriptionSelectors = []string{".description", ".summary", ".field-body", "p"}
	dateSelectors        = []string{".date", ".field-date", "time"}
	communeSelectors     = []string{".commune", ".location", ".field-commune"}
)

// fallbackKeywords select anchors worth keeping when no container matched.
var fallbackKeywords = []string{"appel", "offre", "publication", "soumission", "marche"}

// Page describes one static page to scrape.
type Page struct {
	Name            string `yaml:"name"`
	Canton          string `yaml:"canton"`
	URL             string `yaml:"url"`
	BaseURL         string `yaml:"base_url"`
	Type            string `yaml:"type"`
	CommuneFallback string `yaml:"commune_fallback"`
}

// LoadPages reads a YAML list of pages.
func LoadPages(path string) ([]Page, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "htmlpage: read pages file %s", path)
	}
	var pages []Page
	if err := yaml.Unmarshal(data, &pages); err != nil {
		return nil, eris.Wrapf(err, "htmlpage: parse pages file %s", path)
	}
	return pages, nil
}

// Scraper scrapes one static page.
type Scraper struct {
	name            string
	canton          model.Canton
	url             string
	baseURL         string
	pubType         model.PublicationType
	communeFallback string
	fetcher         fetcher.Fetcher
	now             func() time.Time
}

// New validates page and creates its scraper.
func New(page Page, f fetcher.Fetcher) (*Scraper, error) {
	canton, err := model.ParseCanton(page.Canton)
	if err != nil {
		return nil, eris.Wrap(err, "htmlpage: page canton")
	}
	pubType, err := model.ParsePublicationType(page.Type)
	if err != nil {
		return nil, eris.Wrap(err, "htmlpage: page type")
	}
	if strings.TrimSpace(page.URL) == "" {
		return nil, eris.New("htmlpage: page url is required")
	}

	s := &Scraper{
		name:            page.Name,
		canton:          canton,
		url:             page.URL,
		baseURL:         page.BaseURL,
		pubType:         pubType,
		communeFallback: page.CommuneFallback,
		fetcher:         f,
		now:             time.Now,
	}
	if s.name == "" {
		s.name = "html_" + strings.ToLower(string(canton))
	}
	if s.baseURL == "" {
		s.baseURL = page.URL
	}
	if s.communeFallback == "" {
		s.communeFallback = model.CommuneUnknown
	}
	return s, nil
}

// Name implements veille.Scraper.
func (s *Scraper) Name() string { return s.name }

// Cantons implements veille.Scraper.
func (s *Scraper) Cantons() []model.Canton { return []model.Canton{s.canton} }

// Scrape fetches the page and extracts its publications.
func (s *Scraper) Scrape(ctx context.Context) ([]model.Publication, error) {
	data, err := fetcher.ReadAll(ctx, s.fetcher, s.url, 0)
	if err != nil {
		return nil, eris.Wrapf(err, "htmlpage: fetch %s", s.url)
	}
	data, err = fetcher.DecodeHTML(data, "")
	if err != nil {
		return nil, eris.Wrap(err, "htmlpage: decode page")
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(data))
	if err != nil {
		return nil, eris.Wrap(err, "htmlpage: parse HTML")
	}
	return s.parse(doc), nil
}

func (s *Scraper) parse(doc *goquery.Document) []model.Publication {
	log := zap.L().With(zap.String("scraper", s.name))
	now := s.now()

	for _, sel := range containerSelectors {
		var out []model.Publication
		doc.Find(sel).Each(func(_ int, c *goquery.Selection) {
			if p, ok := s.extractContainer(c, now); ok {
				out = append(out, p)
			}
		})
		if len(out) > 0 {
			log.Debug("containers matched", zap.String("selector", sel), zap.Int("count", len(out)))
			return out
		}
	}

	out := s.scanAnchors(doc, now)
	log.Debug("fallback anchor scan", zap.Int("count", len(out)))
	return out
}

// extractContainer builds one publication; a panic inside skips the container.
func (s *Scraper) extractContainer(c *goquery.Selection, now time.Time) (p model.Publication, ok bool) {
	defer func() {
		if r := recover(); r != nil {
			zap.L().Warn("htmlpage: skipping container", zap.String("scraper", s.name), zap.Any("panic", r))
			ok = false
		}
	}()

	title := firstText(c, titleSelectors)
	if title == "" {
		return model.Publication{}, false
	}

	link := s.url
	if href, exists := c.Find("a[href]").First().Attr("href"); exists {
		if abs := fetcher.ResolveURL(s.baseURL, href); abs != "" {
			link = abs
		}
	}

	description := firstText(c, descriptionSelectors)
	if description == "" {
		description = title
	}

	dateText, _ := c.Find("time[datetime]").First().Attr("datetime")
	if strings.TrimSpace(dateText) == "" {
		dateText = firstText(c, dateSelectors)
	}

	commune := s.communeFallback
	if raw := firstText(c, communeSelectors); raw != "" {
		commune = veille.NormalizeCommune(raw)
	}

	return s.publication(title, description, link, commune, veille.ParseDate(dateText, now)), true
}

// scanAnchors keeps anchors whose text mentions a tender keyword.
func (s *Scraper) scanAnchors(doc *goquery.Document, now time.Time) []model.Publication {
	var out []model.Publication
	seen := make(map[string]bool)
	doc.Find("a[href]").EachWithBreak(func(_ int, a *goquery.Selection) bool {
		if len(out) >= maxFallbackLinks {
			return false
		}
		text := veille.CollapseSpace(a.Text())
		if text == "" || !matchesKeyword(text) {
			return true
		}
		href, _ := a.Attr("href")
		link := fetcher.ResolveURL(s.baseURL, href)
		if link == "" || seen[link] {
			return true
		}
		seen[link] = true
		out = append(out, s.publication(text, text, link, s.communeFallback, now))
		return true
	})
	return out
}

func (s *Scraper) publication(title, description, link, commune string, published time.Time) model.Publication {
	return model.Publication{
		Title:       title,
		Description: description,
		URL:         link,
		Commune:     commune,
		Canton:      s.canton,
		Type:        s.pubType,
		PublishedAt: published,
		Metadata: model.Metadata{
			"scraper":    s.name,
			"source_url": s.url,
		},
	}
}

func matchesKeyword(text string) bool {
	folded := veille.Fold(text)
	for _, kw := range fallbackKeywords {
		if strings.Contains(folded, kw) {
			return true
		}
	}
	return false
}

// firstText returns the first non-empty collapsed text among selectors.
func firstText(c *goquery.Selection, selectors []string) string {
	for _, sel := range selectors {
		var text string
		c.Find(sel).EachWithBreak(func(_ int, n *goquery.Selection) bool {
			text = veille.CollapseSpace(n.Text())
			return text == ""
		})
		if text != "" {
			return text
		}
	}
	return ""
}
