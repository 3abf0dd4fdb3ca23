package veille

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/veille/internal/model"
)

func pub(url, commune string, canton model.Canton) model.Publication {
	return model.Publication{
		Title:       "Publication " + commune,
		URL:         url,
		Commune:     commune,
		Canton:      canton,
		Type:        model.TypeAvisOfficiel,
		PublishedAt: time.Now(),
	}
}

// mockRecorder implements Recorder with testify/mock.
type mockRecorder struct {
	mock.Mock
	mu sync.Mutex
}

func (m *mockRecorder) ObserveScrape(scraper string, publications int, elapsed time.Duration, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Called(scraper, publications, err != nil)
}

func TestScrapeAll_ConcatenatesInRegistryOrder(t *testing.T) {
	slow := &slowScraper{stubScraper: stubScraper{
		name: "slow",
		pubs: []model.Publication{pub("https://a/1", "Sion", model.CantonVS)},
	}, delay: 50 * time.Millisecond}
	fast := &stubScraper{
		name: "fast",
		pubs: []model.Publication{
			pub("https://b/1", "Bulle", model.CantonFR),
			pub("https://b/2", "Morat", model.CantonFR),
		},
	}
	reg, err := NewRegistry(slow, fast)
	require.NoError(t, err)

	got := NewOrchestrator(reg).ScrapeAll(context.Background())
	require.Len(t, got, 3)
	assert.Equal(t, "https://a/1", got[0].URL)
	assert.Equal(t, "https://b/1", got[1].URL)
	assert.Equal(t, "https://b/2", got[2].URL)
}

type slowScraper struct {
	stubScraper
	delay time.Duration
}

func (s *slowScraper) Scrape(ctx context.Context) ([]model.Publication, error) {
	time.Sleep(s.delay)
	return s.stubScraper.Scrape(ctx)
}

func TestScrapeAll_IsolatesFailures(t *testing.T) {
	b := &stubScraper{name: "b", pubs: []model.Publication{pub("https://b/1", "Bulle", model.CantonFR)}}
	c := &stubScraper{name: "c", pubs: []model.Publication{
		pub("https://c/1", "Sion", model.CantonVS),
		pub("https://c/2", "Sierre", model.CantonVS),
	}}

	tests := []struct {
		name   string
		failer Scraper
	}{
		{"error", &stubScraper{name: "a", err: errors.New("fetch rejected")}},
		{"panic", &stubScraper{name: "a", panics: true}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reg, err := NewRegistry(tt.failer, b, c)
			require.NoError(t, err)

			got := NewOrchestrator(reg).ScrapeAll(context.Background())
			require.Len(t, got, 3)
			assert.Equal(t, "https://b/1", got[0].URL)
			assert.Equal(t, "https://c/2", got[2].URL)
		})
	}
}

func TestScrapeAll_NoScrapers(t *testing.T) {
	reg, err := NewRegistry()
	require.NoError(t, err)
	assert.Empty(t, NewOrchestrator(reg).ScrapeAll(context.Background()))
}

func TestScrapeAll_RecordsOutcomes(t *testing.T) {
	rec := &mockRecorder{}
	rec.On("ObserveScrape", "ok", 1, false).Once()
	rec.On("ObserveScrape", "bad", 0, true).Once()

	reg, err := NewRegistry(
		&stubScraper{name: "ok", pubs: []model.Publication{pub("https://x", "Sion", model.CantonVS)}},
		&stubScraper{name: "bad", err: errors.New("down")},
	)
	require.NoError(t, err)

	NewOrchestrator(reg, WithRecorder(rec)).ScrapeAll(context.Background())
	rec.AssertExpectations(t)
}

func TestScrapeCanton_SingleCantonScraper(t *testing.T) {
	ju := &stubScraper{
		name:    "html_ju",
		cantons: []model.Canton{model.CantonJU},
		pubs:    []model.Publication{pub("https://jura/1", "Delémont", model.CantonJU)},
	}
	reg, err := NewRegistry(ju)
	require.NoError(t, err)

	got := NewOrchestrator(reg).ScrapeCanton(context.Background(), model.CantonJU)
	require.Len(t, got, 1)
	assert.Equal(t, "Delémont", got[0].Commune)
}

func TestScrapeCanton_RestrictsMultiCantonScraper(t *testing.T) {
	simap := &multiCantonScraper{stubScraper: stubScraper{
		name:    "simap",
		cantons: []model.Canton{model.CantonVD, model.CantonGE},
	}}
	reg, err := NewRegistry(simap)
	require.NoError(t, err)

	got := NewOrchestrator(reg).ScrapeCanton(context.Background(), model.CantonGE)
	require.Len(t, got, 1)
	assert.Equal(t, []model.Canton{model.CantonGE}, simap.requested)
	assert.Equal(t, model.CantonGE, got[0].Canton)
}

func TestScrapeCanton_NoScraper(t *testing.T) {
	reg, err := NewRegistry(&stubScraper{name: "vs", cantons: []model.Canton{model.CantonVS}})
	require.NoError(t, err)
	assert.Empty(t, NewOrchestrator(reg).ScrapeCanton(context.Background(), model.CantonTI))
}

func TestScrapeCanton_FailureYieldsEmpty(t *testing.T) {
	reg, err := NewRegistry(&stubScraper{name: "vs", cantons: []model.Canton{model.CantonVS}, err: errors.New("timeout")})
	require.NoError(t, err)
	assert.Empty(t, NewOrchestrator(reg).ScrapeCanton(context.Background(), model.CantonVS))
}

func TestRun_DedupesAndFilters(t *testing.T) {
	now := time.Date(2026, 10, 18, 12, 0, 0, 0, time.UTC)
	fresh := pub("https://a/1", "Sion", model.CantonVS)
	fresh.PublishedAt = now.AddDate(0, 0, -2)
	dup := fresh
	dup.Title = "same key, other title"
	stale := pub("https://a/2", "Sierre", model.CantonVS)
	stale.PublishedAt = now.AddDate(0, 0, -45)

	reg, err := NewRegistry(&stubScraper{
		name:    "vs",
		cantons: []model.Canton{model.CantonVS},
		pubs:    []model.Publication{fresh, dup, stale},
	})
	require.NoError(t, err)
	o := NewOrchestrator(reg, WithClock(func() time.Time { return now }))

	res, err := o.Run(context.Background(), RunOpts{})
	require.NoError(t, err)
	assert.Equal(t, 3, res.Scraped)
	assert.Equal(t, 2, res.Unique)
	assert.Equal(t, 1, res.Recent)
	require.Len(t, res.Publications, 1)
	assert.Equal(t, fresh.Title, res.Publications[0].Title)

	res, err = o.Run(context.Background(), RunOpts{Canton: model.CantonVS, Days: 60})
	require.NoError(t, err)
	assert.Equal(t, 2, res.Recent)
}

func TestRun_InvalidCanton(t *testing.T) {
	reg, err := NewRegistry()
	require.NoError(t, err)
	_, err = NewOrchestrator(reg).Run(context.Background(), RunOpts{Canton: "ZH"})
	require.Error(t, err)
	assert.ErrorIs(t, err, model.ErrInvalidCanton)
}
