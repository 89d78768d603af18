package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/snarg/medscribe/internal/config"
	"github.com/snarg/medscribe/internal/metrics"
)

// ServerOptions carries the services behind the local API. Journal, Database
// and MQTT may be nil when not configured.
type ServerOptions struct {
	Config       *config.Config
	Session      SessionService
	Accounts     AccountService
	History      HistoryService
	Translations TranslationService
	Languages    LanguageSource
	Voices       VoiceSource
	Events       EventSource
	Journal      JournalSource
	Database     HealthChecker
	MQTT         ConnectionStatus
	Version      string
	StartTime    time.Time
	Log          zerolog.Logger
}

type Server struct {
	http *http.Server
	log  zerolog.Logger
}

func NewServer(opts ServerOptions) *Server {
	cfg := opts.Config
	return &Server{
		http: &http.Server{
			Addr:         cfg.HTTPAddr,
			Handler:      NewRouter(opts),
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
			IdleTimeout:  cfg.IdleTimeout,
		},
		log: opts.Log,
	}
}

// NewRouter builds the route tree without binding a listener.
func NewRouter(opts ServerOptions) http.Handler {
	log := opts.Log
	r := chi.NewRouter()

	// Global middleware
	r.Use(RequestID)
	r.Use(Recoverer)
	r.Use(Logger(log))
	r.Use(CORSWithOrigins(opts.Config.CORSOriginList()))

	health := NewHealthHandler(opts.Accounts, opts.Database, opts.MQTT, opts.Version, opts.StartTime)

	r.Route("/api/v1", func(r chi.Router) {
		// Health and metrics: no auth
		r.Get("/health", health.ServeHTTP)
		r.Handle("/metrics", promhttp.Handler())

		r.Group(func(r chi.Router) {
			r.Use(BearerAuth(opts.Config.AuthToken))
			r.Use(metrics.InstrumentHandler)

			NewSessionHandler(opts.Session, log).Routes(r)
			NewStreamHandler(opts.Session, opts.Events, log).Routes(r)
			NewAuthHandler(opts.Accounts, log).Routes(r)
			NewHistoryHandler(opts.History, log).Routes(r)
			NewLanguagesHandler(opts.Languages, opts.Translations, opts.Voices).Routes(r)
			NewJournalHandler(opts.Journal).Routes(r)
		})
	})

	return r
}

func (s *Server) Start() error {
	s.log.Info().Str("addr", s.http.Addr).Msg("http server starting")
	err := s.http.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info().Msg("http server shutting down")
	return s.http.Shutdown(ctx)
}
