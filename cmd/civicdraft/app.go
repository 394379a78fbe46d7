package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/c360studio/civicdraft/bylaw"
	"github.com/c360studio/civicdraft/config"
	"github.com/c360studio/civicdraft/llm"
	"github.com/c360studio/civicdraft/metrics"
	"github.com/c360studio/civicdraft/model"
	"github.com/c360studio/civicdraft/places"
	"github.com/c360studio/civicdraft/progress"
	"github.com/c360studio/civicdraft/search"
	"github.com/c360studio/civicdraft/storage"
	"github.com/c360studio/civicdraft/workflow"
	"github.com/c360studio/civicdraft/zoning"
)

// pinnedModel is the registry name used for a model pinned in config.
const pinnedModel = "configured"

// App wires configuration, NATS, storage and the workflow engine together.
type App struct {
	cfg    *config.Config
	logger *slog.Logger

	// NATS
	embeddedServer *server.Server
	natsConn       *nats.Conn
	js             jetstream.JetStream

	// Storage
	store *storage.Store

	dataset  *zoning.Dataset
	zoning   zoning.Lookup
	registry *prometheus.Registry
	recorder *metrics.Recorder
	hub      *progress.Hub
	engine   *workflow.Engine
}

// NewApp creates a new application instance.
func NewApp(cfg *config.Config, logger *slog.Logger) *App {
	if logger == nil {
		logger = slog.Default()
	}
	return &App{cfg: cfg, logger: logger}
}

// Start connects NATS when configured, opens storage and builds the engine.
// extra receives progress events next to the WebSocket hub.
func (a *App) Start(ctx context.Context, extra progress.Reporter) error {
	if a.natsEnabled() {
		if err := a.startNATS(ctx); err != nil {
			return fmt.Errorf("start NATS: %w", err)
		}
		if a.cfg.NATS.StoreRuns {
			store, err := storage.NewStore(ctx, a.js)
			if err != nil {
				return fmt.Errorf("initialize storage: %w", err)
			}
			a.store = store
		}
	}

	a.registry = metrics.NewRegistry()
	recorder, err := metrics.NewRecorder(a.registry)
	if err != nil {
		return fmt.Errorf("register metrics: %w", err)
	}
	a.recorder = recorder

	a.zoning = a.openZoning()
	a.hub = progress.NewHub(
		progress.WithAllowedOrigins(a.cfg.Server.AllowedOrigins),
		progress.WithHubLogger(a.logger),
	)

	reporters := progress.Multi{a.hub, extra}
	if a.natsConn != nil {
		reporters = append(reporters, progress.NewNATSPublisher(a.natsConn, a.logger))
	}

	deps, err := a.deps(reporters)
	if err != nil {
		return err
	}
	engine, err := workflow.New(deps,
		workflow.WithMaxSteps(a.cfg.Workflow.MaxSteps),
		workflow.WithLogger(a.logger),
		workflow.WithObserver(a.recorder),
	)
	if err != nil {
		return fmt.Errorf("build workflow: %w", err)
	}
	a.engine = engine

	a.logger.Info("Components initialized",
		"nats", a.natsConn != nil,
		"storage", a.store != nil,
		"max_steps", engine.MaxSteps())
	return nil
}

func (a *App) natsEnabled() bool {
	return a.cfg.NATS.URL != "" || a.cfg.NATS.Embedded
}

func (a *App) startNATS(ctx context.Context) error {
	if a.cfg.NATS.URL != "" && !a.cfg.NATS.Embedded {
		a.logger.Info("Connecting to NATS", "url", a.cfg.NATS.URL)
		conn, err := nats.Connect(a.cfg.NATS.URL, nats.Name("civicdraft"))
		if err != nil {
			return wrapNATSError(err, a.cfg.NATS.URL)
		}
		a.natsConn = conn
	} else {
		a.logger.Info("Starting embedded NATS server")
		ns, err := server.NewServer(&server.Options{
			Port:      -1,
			JetStream: true,
			NoLog:     true,
			NoSigs:    true,
		})
		if err != nil {
			return fmt.Errorf("create embedded NATS server: %w", err)
		}

		go ns.Start()

		if !ns.ReadyForConnections(5 * time.Second) {
			ns.Shutdown()
			return errors.New("embedded NATS server failed to start")
		}
		a.embeddedServer = ns

		conn, err := nats.Connect(ns.ClientURL())
		if err != nil {
			ns.Shutdown()
			return fmt.Errorf("connect to embedded NATS: %w", err)
		}
		a.natsConn = conn
	}

	js, err := jetstream.New(a.natsConn)
	if err != nil {
		return fmt.Errorf("create JetStream context: %w", err)
	}
	a.js = js
	return nil
}

// wrapNATSError adds guidance when NATS is unreachable.
func wrapNATSError(err error, url string) error {
	errStr := err.Error()
	if strings.Contains(errStr, "connection refused") ||
		strings.Contains(errStr, "no servers available") ||
		strings.Contains(errStr, "timeout") {
		return fmt.Errorf(`NATS connection failed: %w

NATS is not running at %s.

Unset NATS_URL to use the embedded server, or point it at a running NATS.`, err, url)
	}
	return fmt.Errorf("NATS connection failed: %w", err)
}

func (a *App) defaultZone() zoning.Zone {
	d := a.cfg.Zoning.Default
	return zoning.Zone{
		ZoneType:       d.ZoneType,
		BylawChapter:   d.Chapter,
		BylawSection:   d.Section,
		BylawException: d.Exception,
	}
}

// openZoning loads the dataset. Without one every lookup gets the default zone.
func (a *App) openZoning() zoning.Lookup {
	fallback := a.defaultZone()
	ds, err := zoning.Open(a.cfg.Zoning.Dataset, zoning.WithDefault(fallback), zoning.WithLogger(a.logger))
	if err != nil {
		a.logger.Warn("Zoning dataset unavailable, using default zone",
			"pattern", a.cfg.Zoning.Dataset,
			"zone_type", fallback.ZoneType,
			"error", err)
		return zoning.Static(fallback)
	}
	a.dataset = ds
	return ds
}

// WatchZoning reloads the dataset on change until ctx ends. It returns
// immediately when watching is off or no dataset is loaded.
func (a *App) WatchZoning(ctx context.Context) error {
	if !a.cfg.Zoning.Watch || a.dataset == nil {
		return nil
	}
	return a.dataset.Watch(ctx)
}

func (a *App) modelRegistry() (*model.Registry, error) {
	var reg *model.Registry
	if path := a.cfg.Model.RegistryFile; path != "" {
		r, err := model.LoadFromFile(path)
		if err != nil {
			return nil, fmt.Errorf("load model registry: %w", err)
		}
		reg = r
	} else {
		reg = model.NewDefaultRegistry()
	}

	if a.cfg.Model.Provider != "" {
		reg.SetEndpoint(pinnedModel, &model.EndpointConfig{
			Provider: a.cfg.Model.Provider,
			URL:      a.cfg.Model.Endpoint,
			Model:    a.cfg.Model.Name,
		})
		reg.PreferEverywhere(pinnedModel)
	}
	return reg, nil
}

func (a *App) deps(reporter progress.Reporter) (workflow.Deps, error) {
	reg, err := a.modelRegistry()
	if err != nil {
		return workflow.Deps{}, err
	}

	opts := []llm.ClientOption{
		llm.WithLogger(a.logger),
		llm.WithCallRecorder(a.recorder),
	}
	if a.natsConn != nil {
		opts = append(opts, llm.WithCallRecorder(llm.NewNATSCallPublisher(a.natsConn, a.logger)))
	}
	client := llm.NewClient(reg, opts...)

	temperature := a.cfg.Model.Temperature
	gen := llm.GeneratorFunc(func(ctx context.Context, req llm.GenerateRequest) (string, error) {
		if req.Temperature == nil {
			req.Temperature = &temperature
		}
		return client.Generate(ctx, req)
	})

	pc := a.cfg.Places
	deps := workflow.Deps{
		LLM: gen,
		Search: search.NewTavilyClient(os.Getenv(a.cfg.Search.APIKeyEnv),
			search.WithBaseURL(a.cfg.Search.BaseURL),
			search.WithMaxResults(a.cfg.Search.MaxResults),
			search.WithLogger(a.logger),
		),
		Zoning:      a.zoning,
		DefaultZone: a.defaultZone(),
		Bylaw: bylaw.NewFetcher(a.cfg.Bylaw.BaseURL, a.cfg.Timeouts.Bylaw,
			bylaw.WithMaxLength(a.cfg.Bylaw.MaxTextLength),
			bylaw.WithLogger(a.logger),
		),
		BylawBaseURL: a.cfg.Bylaw.BaseURL,
		Geocoder:     places.NewNominatim(pc.GeocoderURL, pc.UserAgent, places.WithNominatimLogger(a.logger)),
		Progress:     reporter,
		PlaceSearch: workflow.PlaceSearch{
			City:           pc.City,
			RadiusMeters:   pc.RadiusMeters,
			MaxResults:     pc.MaxResults,
			FallbackCenter: places.LatLon{Lat: pc.FallbackLat, Lon: pc.FallbackLon},
		},
		Timeouts: workflow.Timeouts{
			LLM:    a.cfg.Timeouts.LLM,
			Search: a.cfg.Timeouts.Search,
			Zoning: a.cfg.Timeouts.Zoning,
			Places: a.cfg.Timeouts.Places,
			Bylaw:  a.cfg.Timeouts.Bylaw,
		},
		Logger: a.logger,
	}

	// find_pois degrades without a key rather than failing every request.
	if key := os.Getenv(pc.APIKeyEnv); key != "" {
		deps.Places = places.NewClient(key, places.WithBaseURL(pc.BaseURL), places.WithLogger(a.logger))
	} else {
		a.logger.Warn("Places API key not set, POI search disabled", "env", pc.APIKeyEnv)
	}
	return deps, nil
}

// Shutdown closes the hub, NATS and the embedded server.
func (a *App) Shutdown() {
	if a.hub != nil {
		a.hub.Close()
	}
	if a.natsConn != nil {
		_ = a.natsConn.Drain()
		a.natsConn.Close()
	}
	if a.embeddedServer != nil {
		a.embeddedServer.Shutdown()
		a.embeddedServer.WaitForShutdown()
	}
	a.logger.Info("Shutdown complete")
}
