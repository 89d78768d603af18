package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/snarg/medscribe/internal/api"
	"github.com/snarg/medscribe/internal/auth"
	"github.com/snarg/medscribe/internal/backend"
	"github.com/snarg/medscribe/internal/config"
	"github.com/snarg/medscribe/internal/database"
	"github.com/snarg/medscribe/internal/events"
	"github.com/snarg/medscribe/internal/export"
	"github.com/snarg/medscribe/internal/history"
	"github.com/snarg/medscribe/internal/localstore"
	"github.com/snarg/medscribe/internal/metrics"
	"github.com/snarg/medscribe/internal/mqttclient"
	"github.com/snarg/medscribe/internal/playback"
	"github.com/snarg/medscribe/internal/recording"
	"github.com/snarg/medscribe/internal/session"
	"github.com/snarg/medscribe/internal/transcription"
	"github.com/snarg/medscribe/internal/translation"
)

var version = "dev"

// sinkFilter selects what leaves the process: saves and deletions, not every
// keystroke-level snapshot.
var sinkFilter = events.Filter{Types: []string{events.TypeSaved, events.TypeDeleted}}

func main() {
	startTime := time.Now()

	var overrides config.Overrides
	flag.StringVar(&overrides.EnvFile, "env-file", "", "Path to .env file (default .env)")
	flag.StringVar(&overrides.HTTPAddr, "listen", "", "HTTP listen address (overrides HTTP_ADDR)")
	flag.StringVar(&overrides.LogLevel, "log-level", "", "Log level (overrides LOG_LEVEL)")
	flag.StringVar(&overrides.BackendURL, "backend", "", "Backend base URL (overrides BACKEND_URL)")
	flag.StringVar(&overrides.StateDir, "state-dir", "", "Local state directory (overrides STATE_DIR)")
	flag.StringVar(&overrides.SourceLanguage, "source", "", "Default source language (overrides SOURCE_LANGUAGE)")
	flag.StringVar(&overrides.TargetLanguage, "target", "", "Default target language (overrides TARGET_LANGUAGE)")
	showVersion := flag.Bool("version", false, "Print version and exit")
	flag.Parse()

	if *showVersion {
		os.Stdout.WriteString("medscribe " + version + "\n")
		return
	}

	// Config
	cfg, err := config.Load(overrides)
	if err != nil {
		early := zerolog.New(os.Stderr).With().Timestamp().Logger()
		early.Fatal().Err(err).Msg("failed to load config")
	}

	// Logger
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	var log zerolog.Logger
	if strings.EqualFold(cfg.LogFormat, "console") {
		log = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}).With().Timestamp().Logger().Level(level)
	} else {
		log = zerolog.New(os.Stdout).With().Timestamp().Logger().Level(level)
	}
	log.Info().Str("version", version).Str("backend", cfg.BackendURL).Msg("medscribe starting")

	// Context for graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Local state (token, language preferences)
	store, err := localstore.Open(cfg.StateDir, log.With().Str("component", "localstore").Logger())
	if err != nil {
		log.Fatal().Err(err).Str("dir", cfg.StateDir).Msg("failed to open local state")
	}
	defer store.Close()

	gate, err := auth.NewGate(store, log.With().Str("component", "auth").Logger())
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load saved login")
	}

	client := backend.New(backend.Options{
		BaseURL: cfg.BackendURL,
		Timeout: cfg.BackendTimeout,
		Tokens:  gate,
		Log:     log.With().Str("component", "backend").Logger(),
	})
	accounts := auth.NewService(gate, client, log.With().Str("component", "auth").Logger())

	// Event bus and sinks
	// Closed explicitly after the HTTP server so sinks drain before the
	// database pool goes away.
	bus := events.NewBus(512, log)

	var mqttConn *mqttclient.Client
	if cfg.MQTTBrokerURL != "" {
		mqttConn, err = mqttclient.Connect(mqttclient.Options{
			BrokerURL: cfg.MQTTBrokerURL,
			ClientID:  cfg.MQTTClientID,
			Topic:     cfg.MQTTTopic,
			Username:  cfg.MQTTUsername,
			Password:  cfg.MQTTPassword,
			Log:       log.With().Str("component", "mqtt").Logger(),
		})
		if err != nil {
			log.Warn().Err(err).Msg("mqtt unavailable, continuing without it")
		} else {
			bus.AddSink(events.NewMQTTSink(mqttConn), sinkFilter)
		}
	}

	if brokers := cfg.KafkaBrokerList(); len(brokers) > 0 {
		bus.AddSink(events.NewKafkaSink(brokers, cfg.KafkaTopic, log.With().Str("component", "kafka").Logger()), sinkFilter)
		log.Info().Strs("brokers", brokers).Str("topic", cfg.KafkaTopic).Msg("kafka sink enabled")
	}

	// Journal database
	var db *database.DB
	if cfg.DatabaseURL != "" {
		dbLog := log.With().Str("component", "database").Logger()
		db, err = database.Connect(ctx, cfg.DatabaseURL, dbLog)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect to database")
		}
		defer db.Close()

		if err := db.Migrate(ctx); err != nil {
			log.Fatal().Err(err).Msg("failed to migrate journal schema")
		}
		bus.AddSink(database.NewJournal(db, dbLog), sinkFilter)
		if cfg.JournalRetention > 0 {
			go db.RunRetention(ctx, cfg.JournalRetention, time.Hour)
		}
	}

	// Export store
	exportStore, err := export.NewStore(cfg.S3, cfg.ExportDir, log.With().Str("component", "export").Logger())
	if err != nil {
		log.Warn().Err(err).Msg("export store unavailable, exports disabled")
		exportStore = nil
	}

	// Playback
	synth := playback.NewEspeakSynthesizer(cfg.SpeechCommand, log.With().Str("component", "playback").Logger())
	voices := playback.NewVoiceCache(synth, log.With().Str("component", "playback").Logger())
	speaker := playback.NewController(synth, voices, log.With().Str("component", "playback").Logger())
	if cfg.VoiceDir != "" {
		watcher := playback.NewVoiceWatcher(cfg.VoiceDir, voices, log.With().Str("component", "voice_watcher").Logger())
		if err := watcher.Start(); err != nil {
			log.Warn().Err(err).Str("dir", cfg.VoiceDir).Msg("voice watcher failed to start")
		} else {
			defer watcher.Stop()
		}
	}

	// Recording, transcription, translation
	capturer := recording.NewSoxCapturer(cfg.CaptureCommand, log.With().Str("component", "recording").Logger())
	if !capturer.Available() {
		log.Warn().Str("command", cfg.CaptureCommand).Msg("capture command not found; recording will fail, audio upload still works")
	}
	recorder := recording.NewController(capturer, log.With().Str("component", "recording").Logger())
	transcriber := transcription.NewClient(client, log.With().Str("component", "transcription").Logger())
	translator := translation.NewClient(client, translation.NewCache(), log.With().Str("component", "translation").Logger())

	sess := session.New(session.Options{
		Recorder:    recorder,
		Transcriber: transcriber,
		Translator:  translator,
		Persister:   client,
		Auth:        gate,
		Prompter:    loginPrompt(bus),
		Speaker:     speaker,
		Prefs:       store,
		Publisher:   bus,

		SourceLanguage: cfg.SourceLanguage,
		TargetLanguage: cfg.TargetLanguage,
		Log:            log,
	})
	log.Info().Str("session_id", sess.ID()).Msg("session ready")

	hist := history.NewService(client, translator, exportStore, bus, log)

	// Metrics
	var pool *pgxpool.Pool
	if db != nil {
		pool = db.Pool
	}
	collector := metrics.NewCollector(pool, liveStats{session: sess, bus: bus, cache: translator.Cache()})
	prometheus.MustRegister(collector)

	// HTTP Server
	opts := api.ServerOptions{
		Config:       cfg,
		Session:      sess,
		Accounts:     accounts,
		History:      hist,
		Translations: translator,
		Languages:    client,
		Voices:       speaker,
		Events:       bus,
		Version:      version,
		StartTime:    startTime,
		Log:          log.With().Str("component", "http").Logger(),
	}
	if db != nil {
		opts.Database = db
		opts.Journal = db
	}
	if mqttConn != nil {
		opts.MQTT = mqttConn
	}
	srv := api.NewServer(opts)

	// Start HTTP server in background
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	// Wait for shutdown signal or server error
	select {
	case <-ctx.Done():
		log.Info().Msg("shutdown signal received")
	case err := <-errCh:
		if err != nil {
			log.Error().Err(err).Msg("http server error")
		}
	}

	// Graceful shutdown with 10s timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("http server shutdown error")
	}
	if err := sess.StopPlayback(); err != nil {
		log.Debug().Err(err).Msg("stop playback on shutdown")
	}
	bus.Close()

	log.Info().Msg("medscribe stopped")
}

// loginPrompt surfaces login requests to connected clients.
func loginPrompt(bus *events.Bus) session.PromptFunc {
	return func(reason string) {
		bus.Publish(events.TypeLoginRequired, "", map[string]string{"reason": reason})
	}
}

// liveStats feeds the scrape-time collector.
type liveStats struct {
	session *session.Session
	bus     *events.Bus
	cache   *translation.Cache
}

func (s liveStats) TranslationsInFlight() int { return s.session.TranslationsInFlight() }
func (s liveStats) SubscriberCount() int      { return s.bus.SubscriberCount() }
func (s liveStats) CachedTranslations() int   { return s.cache.Len() }
