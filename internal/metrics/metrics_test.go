package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/veille/internal/veille"
)

var _ veille.Recorder = (*Recorder)(nil)

func TestRecorder_ObserveScrape(t *testing.T) {
	reg := prometheus.NewRegistry()
	r, err := NewRecorder(reg)
	require.NoError(t, err)

	r.ObserveScrape("simap", 25, 2*time.Second, nil)
	r.ObserveScrape("simap", 5, time.Second, nil)
	r.ObserveScrape("bulletin_vs", 0, 15*time.Second, errors.New("timeout"))

	assert.Equal(t, 2.0, testutil.ToFloat64(r.runs.WithLabelValues("simap", StatusSuccess)))
	assert.Equal(t, 0.0, testutil.ToFloat64(r.runs.WithLabelValues("simap", StatusError)))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.runs.WithLabelValues("bulletin_vs", StatusError)))
	assert.Equal(t, 30.0, testutil.ToFloat64(r.publications.WithLabelValues("simap")))
	assert.Equal(t, 0.0, testutil.ToFloat64(r.publications.WithLabelValues("bulletin_vs")))

	assert.Equal(t, 2, testutil.CollectAndCount(r.duration, "veille_scraper_duration_seconds"))
}

func TestNewRecorder_DuplicateRegistration(t *testing.T) {
	reg := prometheus.NewRegistry()
	_, err := NewRecorder(reg)
	require.NoError(t, err)

	_, err = NewRecorder(reg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "metrics: register collector")
}
