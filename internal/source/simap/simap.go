// Package simap scrapes the federal public-procurement platform through its
// JSON project-search API, one paginated query per canton.
package simap

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/veille/internal/fetcher"
	"github.com/sells-group/veille/internal/model"
	"github.com/sells-group/veille/internal/veille"
)

const (
	// DefaultPageSize is the number of projects requested per page.
	DefaultPageSize = 20
	// DefaultMaxPages bounds pagination per canton.
	DefaultMaxPages = 5

	untitled           = "Projet sans titre"
	defaultDescription = "Appel d'offres SIMAP"
	descriptionSep     = " - "
)

// typeRules classify the free-text project type, first match wins.
var typeRules = []veille.TypeRule{
	{Type: model.TypePermisConstruire, Keywords: []string{"permis"}},
	{Type: model.TypeAutorisationConstruire, Keywords: []string{"autorisation"}},
	{Type: model.TypeMiseALEnquete, Keywords: []string{"enquête"}},
	{Type: model.TypeAvisOfficiel, Keywords: []string{"avis"}},
	{Type: model.TypeOpposition, Keywords: []string{"opposition"}},
}

// Config describes the API endpoint and the cantons to query.
type Config struct {
	Name      string
	BaseURL   string
	DetailURL string // fmt template taking the project id
	Cantons   []string
	PageSize  int
	MaxPages  int
}

// Scraper queries the project-search API.
type Scraper struct {
	cfg     Config
	cantons []model.Canton
	fetcher fetcher.Fetcher
	now     func() time.Time
}

// New validates cfg and creates the scraper.
func New(cfg Config, f fetcher.Fetcher) (*Scraper, error) {
	if cfg.BaseURL == "" {
		return nil, eris.New("simap: base_url is required")
	}
	cantons, err := model.ParseCantons(cfg.Cantons)
	if err != nil {
		return nil, eris.Wrap(err, "simap: cantons")
	}
	if cfg.Name == "" {
		cfg.Name = "simap"
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = DefaultPageSize
	}
	if cfg.MaxPages <= 0 {
		cfg.MaxPages = DefaultMaxPages
	}
	return &Scraper{cfg: cfg, cantons: cantons, fetcher: f, now: time.Now}, nil
}

// Name implements veille.Scraper.
func (s *Scraper) Name() string { return s.cfg.Name }

// Cantons implements veille.Scraper.
func (s *Scraper) Cantons() []model.Canton { return s.cantons }

// Scrape queries every configured canton.
func (s *Scraper) Scrape(ctx context.Context) ([]model.Publication, error) {
	return s.ScrapeCantons(ctx, s.cantons)
}

// ScrapeCantons queries each canton in turn. A failing canton keeps what it
// accumulated and does not affect the others; the call fails only when every
// canton failed without results.
func (s *Scraper) ScrapeCantons(ctx context.Context, cantons []model.Canton) ([]model.Publication, error) {
	var (
		out    []model.Publication
		failed int
		last   error
	)
	for _, c := range cantons {
		pubs, err := s.scrapeCanton(ctx, c)
		out = append(out, pubs...)
		if err != nil {
			failed++
			last = err
			zap.L().Warn("simap canton failed",
				zap.String("scraper", s.cfg.Name),
				zap.String("canton", string(c)),
				zap.Int("kept", len(pubs)),
				zap.Error(err),
			)
		}
	}
	if len(cantons) > 0 && failed == len(cantons) && len(out) == 0 {
		return nil, eris.Wrapf(last, "simap: all %d cantons failed", failed)
	}
	return out, nil
}

func (s *Scraper) scrapeCanton(ctx context.Context, c model.Canton) ([]model.Publication, error) {
	log := zap.L().With(zap.String("scraper", s.cfg.Name), zap.String("canton", string(c)))
	now := s.now()

	var out []model.Publication
	for page := 1; page <= s.cfg.MaxPages; page++ {
		resp, err := s.fetchPage(ctx, c, page)
		if err != nil {
			return out, eris.Wrapf(err, "simap: fetch page %d", page)
		}
		for i := range resp.Projects {
			pub, ok := s.toPublication(&resp.Projects[i], c, now)
			if !ok {
				log.Warn("simap project without identifier skipped", zap.Int("page", page))
				continue
			}
			out = append(out, pub)
		}
		log.Debug("simap page fetched", zap.Int("page", page), zap.Int("projects", len(resp.Projects)))
		if len(resp.Projects) < s.cfg.PageSize {
			break
		}
	}
	return out, nil
}

func (s *Scraper) fetchPage(ctx context.Context, c model.Canton, page int) (*SearchResponse, error) {
	body, err := s.fetcher.Download(ctx, s.pageURL(c, page))
	if err != nil {
		return nil, err
	}
	defer body.Close() //nolint:errcheck
	return fetcher.DecodeJSONObject[SearchResponse](body)
}

func (s *Scraper) pageURL(c model.Canton, page int) string {
	q := url.Values{}
	q.Set("orderAddressCantons", string(c))
	q.Set("page", strconv.Itoa(page))
	q.Set("pageSize", strconv.Itoa(s.cfg.PageSize))
	q.Set("lang", "fr")
	sep := "?"
	if strings.Contains(s.cfg.BaseURL, "?") {
		sep = "&"
	}
	return s.cfg.BaseURL + sep + q.Encode()
}

// toPublication maps one API project. requested is used when the record
// carries no canton of its own. Projects without any identifier have no
// stable URL and are rejected.
func (s *Scraper) toPublication(p *Project, requested model.Canton, now time.Time) (model.Publication, bool) {
	link, ok := s.detailURL(p)
	if !ok {
		return model.Publication{}, false
	}

	title := veille.CollapseSpace(p.Title.Get())
	if title == "" {
		title = untitled
	}

	commune := model.CommuneUnknown
	canton := requested
	if p.OrderAddress != nil {
		if city := strings.TrimSpace(p.OrderAddress.City.Get()); city != "" {
			commune = veille.NormalizeCommune(city)
		}
		if c, err := model.ParseCanton(p.OrderAddress.CantonID); err == nil {
			canton = c
		}
	}

	office := strings.TrimSpace(p.ProcOfficeName.Get())

	return model.Publication{
		Title:       title,
		Description: describe(p.ProjectType, p.ProjectSubType, p.ProcessType, office),
		URL:         link,
		Commune:     commune,
		Canton:      canton,
		Type:        veille.Classify(p.ProjectType+" "+p.ProjectSubType, typeRules, model.TypeAppelDOffres),
		PublishedAt: veille.ParseDate(p.PubDate, now),
		Metadata: model.Metadata{
			"scraper":          s.cfg.Name,
			"project_id":       p.ID,
			"project_number":   p.ProjectNumber,
			"office":           office,
			"project_type":     p.ProjectType,
			"project_sub_type": p.ProjectSubType,
		},
	}, true
}

// detailURL prefers the project id, then the publication id. Without a detail
// template the API URL is anchored on the first identifier present.
func (s *Scraper) detailURL(p *Project) (string, bool) {
	id := p.ID
	if id == "" {
		id = p.PublicationID
	}
	if s.cfg.DetailURL != "" && id != "" {
		return fmt.Sprintf(s.cfg.DetailURL, url.PathEscape(id)), true
	}
	anchor := p.ProjectNumber
	if anchor == "" {
		anchor = id
	}
	if anchor == "" {
		return "", false
	}
	return s.cfg.BaseURL + "#" + url.PathEscape(anchor), true
}

// describe joins the non-empty descriptive fields.
func describe(fields ...string) string {
	parts := make([]string, 0, len(fields))
	for _, f := range fields {
		if f = strings.TrimSpace(f); f != "" {
			parts = append(parts, f)
		}
	}
	if len(parts) == 0 {
		return defaultDescription
	}
	return strings.Join(parts, descriptionSep)
}
