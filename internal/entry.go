// Package internal provides the main application initialization and runtime logic.
package internal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	"github.com/starford/shortwatch/internal/api"
	"github.com/starford/shortwatch/internal/detectionservice"
	"github.com/starford/shortwatch/internal/enrich"
	"github.com/starford/shortwatch/internal/events"
	"github.com/starford/shortwatch/internal/extract"
	"github.com/starford/shortwatch/internal/history"
	"github.com/starford/shortwatch/internal/mcpserver"
	"github.com/starford/shortwatch/internal/pipeline"
	"github.com/starford/shortwatch/internal/sidecar"
	"github.com/starford/shortwatch/internal/sse"
	"github.com/starford/shortwatch/internal/store"
	"github.com/starford/shortwatch/internal/watcher"
)

// core is what every entry point needs: state, a pipeline and its sinks.
type core struct {
	logger   *slog.Logger
	db       *store.DB
	broker   *sse.Broker
	pipeline *pipeline.Pipeline
	closeLog func() error
}

func (c *core) close() {
	c.pipeline.Close()
	if c.broker != nil {
		c.broker.Close()
	}
	if err := c.db.Close(); err != nil {
		c.logger.Warn("store close failed", slog.String("error", err.Error()))
	}
	_ = c.closeLog()
}

func setup(ctx context.Context, app *application, withBroker bool) (*core, error) {
	if app.config == nil {
		return nil, fmt.Errorf("config is required")
	}
	cfg := app.config

	logger, closeLog, err := newLogger(cfg.App, app.logOut)
	if err != nil {
		return nil, err
	}
	slog.SetDefault(logger)

	db, err := store.Open(cfg.State.Path)
	if err != nil {
		_ = closeLog()
		return nil, fmt.Errorf("init store: %w", err)
	}

	sinks := events.Multi{db, events.LogSink(logger)}
	var broker *sse.Broker
	if withBroker {
		broker = sse.NewBroker(cfg.State.SSEReplay)
		sinks = append(sinks, broker)
	}
	sinks = append(sinks, app.sinks...)

	var enricher pipeline.Enricher
	var analyzer pipeline.Analyzer
	switch cfg.Enrich.Mode {
	case pipeline.ModeAnalyze:
		analyzer = enrich.NewAnalyzer(cfg.Analyzer.BaseURL, cfg.Analyzer.Timeout)
	default:
		enricher, err = newOrchestrator(ctx, cfg.Enrich, logger)
		if err != nil {
			_ = db.Close()
			_ = closeLog()
			return nil, err
		}
	}

	p, err := pipeline.New(enricher, analyzer, sinks, pipeline.Options{
		Mode:        cfg.Enrich.Mode,
		CacheTTL:    cfg.Enrich.CacheTTL,
		MaxInFlight: cfg.Enrich.MaxInFlight,
		Logger:      logger,
	})
	if err != nil {
		_ = db.Close()
		_ = closeLog()
		return nil, fmt.Errorf("init pipeline: %w", err)
	}

	return &core{
		logger:   logger,
		db:       db,
		broker:   broker,
		pipeline: p,
		closeLog: closeLog,
	}, nil
}

// newOrchestrator wires the enrichment sources. Without an API key the
// keyless oEmbed source supplies metadata and comments are disabled.
func newOrchestrator(ctx context.Context, cfg EnrichConfig, logger *slog.Logger) (*enrich.Orchestrator, error) {
	var (
		metadata enrich.MetadataSource
		comments enrich.CommentSource
		captions enrich.CaptionSource
	)
	if cfg.APIKey != "" {
		yt, err := enrich.NewYouTube(ctx, cfg.APIKey, cfg.RequestsPerSecond)
		if err != nil {
			return nil, err
		}
		metadata, comments = yt, yt
	} else {
		logger.Warn("enrich: no API key configured, using oEmbed metadata without comments")
		metadata = enrich.NewOEmbed("", nil)
	}
	if cfg.Captions.Enabled {
		captions = enrich.NewCommandCaptions(cfg.Captions.Interpreter, cfg.Captions.Script, cfg.Captions.Concurrency)
	}
	return enrich.NewOrchestrator(metadata, comments, captions, enrich.Options{
		MetadataTimeout: cfg.MetadataTimeout,
		CommentsTimeout: cfg.CommentsTimeout,
		CaptionsTimeout: cfg.CaptionsTimeout,
		CommentLimit:    cfg.CommentLimit,
		Logger:          logger,
	}), nil
}

func newWatcher(cfg HistoryConfig, db *store.DB, p *pipeline.Pipeline, logger *slog.Logger) (*watcher.Watcher, history.Epoch, error) {
	epoch, err := history.ParseEpoch(cfg.Epoch)
	if err != nil {
		return nil, "", err
	}
	path, err := cfg.ResolvePath()
	if err != nil {
		return nil, "", err
	}
	reader, err := history.NewReader(history.Options{
		Source:     path,
		ScratchDir: cfg.ScratchDir,
		Table:      cfg.Table,
		URLColumn:  cfg.URLColumn,
		TimeColumn: cfg.TimeColumn,
		Pattern:    cfg.Pattern,
		Mode:       cfg.Mode,
		MaxRows:    cfg.MaxRows,
	})
	if err != nil {
		return nil, "", err
	}

	w := watcher.New(reader, func(ctx context.Context, rec history.Record) {
		p.Submit(ctx, pipeline.Request{
			URL:       rec.URL,
			Origin:    events.OriginHistory,
			VisitedAt: rec.VisitedAt,
		})
	}, watcher.Options{
		Debounce: cfg.Debounce,
		Initial:  epoch.Now(),
		Store:    db,
		Logger:   logger,
	})
	return w, epoch, nil
}

func newSidecar(cfg SidecarConfig, p *pipeline.Pipeline, broker *sse.Broker, logger *slog.Logger) (*sidecar.Supervisor, error) {
	classifier, err := extract.NewClassifier(cfg.Classifier)
	if err != nil {
		return nil, err
	}
	opts := sidecar.Options{
		Command:        sidecar.ResolveCommand(cfg.Command, cfg.PlatformSuffix),
		Args:           cfg.Args,
		Classifier:     classifier,
		MaxRestarts:    cfg.MaxRestarts,
		InitialBackoff: cfg.RestartBackoff,
		Logger:         logger,
	}
	if cfg.Stdin == StdinInherit {
		opts.Stdin = os.Stdin
	}

	var sc *sidecar.Supervisor
	if broker != nil {
		opts.OnExit = func(state sidecar.State, st sidecar.ExitStatus) {
			broker.Broadcast(sse.Event{
				Type: sse.TypeStatus,
				Data: map[string]any{"sidecar": detectionservice.SidecarStatus{
					State:    state.String(),
					Exit:     st,
					Restarts: sc.Restarts(),
				}},
			})
		}
	}
	sc = sidecar.New(opts, func(ctx context.Context, url string) {
		p.Submit(ctx, pipeline.Request{URL: url, Origin: events.OriginSidecar})
	})
	return sc, nil
}

// Run starts the application with the given options.
func Run(ctx context.Context, opts ...Option) error {
	app := newApplication(opts)

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	c, err := setup(ctx, app, true)
	if err != nil {
		return err
	}
	defer c.close()

	cfg := app.config
	logger := c.logger

	logger.Info("Configuration loaded",
		slog.String("version", app.version),
		slog.String("http_address", cfg.App.HTTP.Address()),
		slog.String("state_path", cfg.State.Path),
		slog.String("mode", cfg.Enrich.Mode),
		slog.Bool("history", cfg.History.Enabled),
		slog.Bool("sidecar", cfg.Sidecar.Enabled),
		slog.String("log_level", cfg.App.LogLevel.String()))

	deps := detectionservice.Deps{
		Store:     c.db,
		Processor: c.pipeline,
		Mode:      c.pipeline.Mode(),
	}

	var w *watcher.Watcher
	if cfg.History.Enabled {
		var epoch history.Epoch
		w, epoch, err = newWatcher(cfg.History, c.db, c.pipeline, logger)
		if err != nil {
			return fmt.Errorf("init history watcher: %w", err)
		}
		deps.Watcher = w
		deps.Epoch = epoch
	}

	var sc *sidecar.Supervisor
	if cfg.Sidecar.Enabled {
		sc, err = newSidecar(cfg.Sidecar, c.pipeline, c.broker, logger)
		if err != nil {
			return fmt.Errorf("init sidecar: %w", err)
		}
		deps.Sidecar = sc
	}

	svc := detectionservice.NewService(deps)

	g, gCtx := errgroup.WithContext(ctx)

	if w != nil {
		g.Go(func() error {
			// Catch up on visits made while we were not running.
			w.Trigger()
			return w.Run(gCtx)
		})
	}

	if sc != nil {
		g.Go(func() error {
			if err := sc.Run(gCtx); err != nil {
				return fmt.Errorf("sidecar: %w", err)
			}
			return nil
		})
	}

	if cfg.App.HTTP.Enabled() {
		httpServer := &http.Server{
			Addr:              cfg.App.HTTP.Address(),
			Handler:           newHTTPHandler(svc, cfg.Auth, c.broker),
			ReadHeaderTimeout: 10 * time.Second,
		}

		g.Go(func() error {
			logger.Info("Starting HTTP server", slog.String("address", cfg.App.HTTP.Address()))
			if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("HTTP server error: %w", err)
			}
			return nil
		})

		g.Go(func() error {
			<-gCtx.Done()
			logger.Info("Shutting down server...")

			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := httpServer.Shutdown(shutdownCtx); err != nil {
				logger.Error("HTTP server shutdown error", slog.String("error", err.Error()))
			}
			return nil
		})
	}

	g.Go(func() error {
		<-gCtx.Done()
		if ctx.Err() != nil {
			logger.Info("Received shutdown signal")
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Error("Application error", slog.String("error", err.Error()))
		return err
	}

	logger.Info("Stopped successfully")
	return nil
}

func newHTTPHandler(svc *detectionservice.Service, auth AuthConfig, broker *sse.Broker) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	// Health check endpoints (unauthenticated).
	r.Get("/health/live", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Get("/health/ready", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	var sseHandler http.Handler
	if broker != nil {
		sseHandler = broker
	}
	r.Mount("/api", api.NewRouter(svc, auth.AuthEnabled(), auth.Token, sseHandler))
	return r
}

// EnrichOnce processes a single URL and returns the published detection.
// The detection is recorded in the state database like any other.
func EnrichOnce(ctx context.Context, url string, opts ...Option) (*events.Detection, error) {
	app := newApplication(opts)
	c, err := setup(ctx, app, false)
	if err != nil {
		return nil, err
	}
	defer c.close()

	return c.pipeline.Process(ctx, pipeline.Request{URL: url, Origin: events.OriginManual})
}

// ServeMCP serves the detection tools over stdio until stdin closes. Logs
// go to stderr unless redirected, since stdout carries the protocol.
func ServeMCP(ctx context.Context, opts ...Option) error {
	app := newApplication(append([]Option{WithLogOutput(os.Stderr)}, opts...))
	c, err := setup(ctx, app, false)
	if err != nil {
		return err
	}
	defer c.close()

	svc := detectionservice.NewService(detectionservice.Deps{
		Store:     c.db,
		Processor: c.pipeline,
		Mode:      c.pipeline.Mode(),
	})
	return mcpserver.New(svc, app.version).ServeStdio()
}
