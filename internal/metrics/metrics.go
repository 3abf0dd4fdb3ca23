// Package metrics exposes Prometheus instrumentation for scraper runs.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rotisserie/eris"
)

const namespace = "veille"

// Status label values for the runs counter.
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// Recorder counts scraper runs, published records and durations. It
// satisfies veille.Recorder.
type Recorder struct {
	runs         *prometheus.CounterVec
	publications *prometheus.CounterVec
	duration     *prometheus.HistogramVec
}

// NewRecorder creates a Recorder and registers its collectors with reg.
// A nil reg uses prometheus.DefaultRegisterer.
func NewRecorder(reg prometheus.Registerer) (*Recorder, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	r := &Recorder{
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "scraper_runs_total",
			Help:      "Scraper invocations by outcome",
		}, []string{"scraper", "status"}),
		publications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "scraper_publications_total",
			Help:      "Publications returned by each scraper",
		}, []string{"scraper"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "scraper_duration_seconds",
			Help:      "Time spent in one scraper invocation",
			Buckets:   []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		}, []string{"scraper"}),
	}

	for _, c := range []prometheus.Collector{r.runs, r.publications, r.duration} {
		if err := reg.Register(c); err != nil {
			return nil, eris.Wrap(err, "metrics: register collector")
		}
	}
	return r, nil
}

// ObserveScrape records one scraper invocation.
func (r *Recorder) ObserveScrape(scraper string, publications int, elapsed time.Duration, err error) {
	status := StatusSuccess
	if err != nil {
		status = StatusError
	}
	r.runs.WithLabelValues(scraper, status).Inc()
	r.publications.WithLabelValues(scraper).Add(float64(publications))
	r.duration.WithLabelValues(scraper).Observe(elapsed.Seconds())
}
