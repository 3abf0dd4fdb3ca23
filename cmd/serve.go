package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os/signal"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/veille/internal/config"
	"github.com/sells-group/veille/internal/model"
	"github.com/sells-group/veille/internal/scheduler"
	"github.com/sells-group/veille/internal/store"
)

var (
	servePort     int
	serveSchedule bool
)

// errRunInProgress is returned when a trigger arrives during a run.
var errRunInProgress = eris.New("serve: run already in progress")

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the trigger API and run the pipeline on a schedule",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate("server"); err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initPipeline(ctx, cfg, true, prometheus.DefaultRegisterer)
		if err != nil {
			return err
		}
		defer env.Close()

		srv := newServer(env, cfg)

		if serveSchedule {
			interval := time.Duration(cfg.Server.ScheduleIntervalMins) * time.Minute
			sched := scheduler.New(func(ctx context.Context) error {
				_, err := srv.trigger(ctx, "")
				return err
			}, interval, interval)
			go sched.Start(ctx)
		}

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		httpSrv := &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           srv.routes(promhttp.Handler()),
			ReadHeaderTimeout: 10 * time.Second,
		}

		// Graceful shutdown
		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
			defer cancel()
			_ = httpSrv.Shutdown(shutdownCtx)
		}()

		zap.L().Info("starting server", zap.Int("port", port), zap.Bool("schedule", serveSchedule))
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return eris.Wrap(err, "server listen")
		}
		return nil
	},
}

// server exposes the pipeline over HTTP. Runs are serialized: a trigger
// arriving during a run is rejected rather than queued.
type server struct {
	env     *pipelineEnv
	cfg     *config.Config
	running sync.Mutex
}

func newServer(env *pipelineEnv, c *config.Config) *server {
	return &server{env: env, cfg: c}
}

func (s *server) routes(metricsHandler http.Handler) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Post("/scrape", s.handleScrape)
	r.Get("/publications", s.handlePublications)
	if metricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", metricsHandler)
	}
	return r
}

// trigger runs one pipeline pass unless another is in flight.
func (s *server) trigger(ctx context.Context, canton string) (*runSummary, error) {
	opts, err := runOpts(s.cfg, canton, 0)
	if err != nil {
		return nil, err
	}
	if !s.running.TryLock() {
		return nil, errRunInProgress
	}
	defer s.running.Unlock()
	return s.env.runOnce(ctx, opts)
}

func (s *server) handleScrape(w http.ResponseWriter, r *http.Request) {
	sum, err := s.trigger(r.Context(), r.URL.Query().Get("canton"))
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, sum)
	case eris.Is(err, model.ErrInvalidCanton):
		writeError(w, http.StatusBadRequest, err)
	case eris.Is(err, errRunInProgress):
		writeError(w, http.StatusConflict, err)
	default:
		zap.L().Error("triggered run failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, err)
	}
}

func (s *server) handlePublications(w http.ResponseWriter, r *http.Request) {
	if s.env.Store == nil {
		writeError(w, http.StatusServiceUnavailable, eris.New("serve: no store configured"))
		return
	}

	filter, err := publicationFilter(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	pubs, err := s.env.Store.ListPublications(r.Context(), filter)
	if err != nil {
		zap.L().Error("list publications failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if pubs == nil {
		pubs = []model.Publication{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"count":        len(pubs),
		"publications": pubs,
	})
}

// publicationFilter parses ?canton=&type=&limit= into a store filter.
func publicationFilter(r *http.Request) (store.PublicationFilter, error) {
	q := r.URL.Query()
	var filter store.PublicationFilter
	if v := q.Get("canton"); v != "" {
		c, err := model.ParseCanton(v)
		if err != nil {
			return filter, err
		}
		filter.Canton = c
	}
	if v := q.Get("type"); v != "" {
		t, err := model.ParsePublicationType(v)
		if err != nil {
			return filter, err
		}
		filter.Type = t
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return filter, eris.Errorf("serve: invalid limit %q", v)
		}
		filter.Limit = n
	}
	return filter, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	serveCmd.Flags().BoolVar(&serveSchedule, "schedule", true, "run the pipeline every server.schedule_interval_mins")
	rootCmd.AddCommand(serveCmd)
}
