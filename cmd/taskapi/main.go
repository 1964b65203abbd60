// Command taskapi serves the task management API.
//
//	taskapi -config taskapi.toml
//
// Every setting can also come from TASKAPI_* environment variables. The
// process stops on SIGINT or SIGTERM, draining requests, sweepers and
// pending events before closing storage.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/vinayprograms/taskapi/bus"
	"github.com/vinayprograms/taskapi/cache"
	"github.com/vinayprograms/taskapi/config"
	"github.com/vinayprograms/taskapi/eventlog"
	"github.com/vinayprograms/taskapi/httpapi"
	"github.com/vinayprograms/taskapi/idempotency"
	"github.com/vinayprograms/taskapi/logging"
	"github.com/vinayprograms/taskapi/query"
	"github.com/vinayprograms/taskapi/ratelimit"
	"github.com/vinayprograms/taskapi/service"
	"github.com/vinayprograms/taskapi/shutdown"
	"github.com/vinayprograms/taskapi/state"
	"github.com/vinayprograms/taskapi/store"
	"github.com/vinayprograms/taskapi/sweeper"
	"github.com/vinayprograms/taskapi/telemetry"
)

var version = "dev"

func main() {
	path := flag.String("config", os.Getenv("TASKAPI_CONFIG"), "path to the TOML config file")
	flag.Parse()

	if err := run(*path); err != nil {
		fmt.Fprintln(os.Stderr, "taskapi:", err)
		os.Exit(1)
	}
}

func run(path string) error {
	cfg, err := config.Load(path)
	if err != nil {
		return err
	}

	log := logging.New()
	if level, ok := logging.ParseLevel(cfg.Log.Level); ok {
		log.SetLevel(level)
	}

	ctx := context.Background()
	coord := shutdown.NewCoordinator(shutdown.Config{
		Timeout:         cfg.Server.ShutdownTimeout,
		ContinueOnError: true,
		Logger:          log,
	})

	// Tracing
	tracer := telemetry.GetTracer()
	pcfg := telemetry.ProviderConfig{
		ServiceName:    cfg.Telemetry.ServiceName,
		ServiceVersion: version,
		Endpoint:       cfg.Telemetry.Endpoint,
		Protocol:       cfg.Telemetry.Protocol,
		Insecure:       cfg.Telemetry.Insecure,
		SampleRatio:    cfg.Telemetry.SampleRatio,
	}
	if pcfg.Enabled() {
		provider, err := telemetry.InitProvider(ctx, pcfg)
		if err != nil {
			return fmt.Errorf("telemetry: %w", err)
		}
		tracer = provider.Tracer()
		coord.Register("telemetry", provider, shutdown.PhaseClose)
	}

	// Storage
	db, err := store.Open(ctx, cfg.Database.Path)
	if err != nil {
		return err
	}
	coord.RegisterFunc("store", func(context.Context) error { return db.Close() }, shutdown.PhaseClose)

	events, err := eventlog.NewLog(ctx, db.DB())
	if err != nil {
		return err
	}

	// Event fan-out
	var b bus.MessageBus
	var natsBus *bus.NATSBus
	if cfg.NATS.Enabled {
		ncfg := bus.DefaultNATSConfig()
		ncfg.URL = cfg.NATS.URL
		natsBus, err = bus.NewNATSBus(ncfg)
		if err != nil {
			return fmt.Errorf("nats: %w", err)
		}
		b = natsBus
	} else {
		b = bus.NewMemoryBus(bus.DefaultConfig())
	}
	coord.RegisterFunc("bus", func(context.Context) error { return b.Close() }, shutdown.PhaseClose)

	dispatcher := eventlog.NewDispatcher(eventlog.DispatcherConfig{
		Workers:        cfg.Events.Workers,
		QueueSize:      cfg.Events.QueueSize,
		HandlerTimeout: cfg.Events.HandlerTimeout,
	}, log.WithComponent("dispatcher"),
		eventlog.NewLogSubscriber(log.WithComponent("events")),
		eventlog.NewBusSubscriber(b),
	)
	coord.Register("dispatcher", dispatcher, shutdown.PhaseDispatcher)

	// Idempotency
	var registry idempotency.Registry
	switch cfg.Idempotency.Backend {
	case config.BackendKV:
		var kv state.StateStore
		if natsBus != nil {
			kv, err = state.NewNATSStore(state.NATSStoreConfig{
				Conn:   natsBus.Conn(),
				Bucket: cfg.NATS.Bucket,
			})
			if err != nil {
				return fmt.Errorf("idempotency kv: %w", err)
			}
		} else {
			kv = state.NewMemoryStore()
		}
		coord.RegisterFunc("idempotency-kv", func(context.Context) error { return kv.Close() }, shutdown.PhaseClose)
		registry = idempotency.NewKVRegistry(kv)
	default:
		registry, err = idempotency.NewSQLRegistry(ctx, db.DB())
		if err != nil {
			return err
		}
	}

	// Query index
	idx, err := query.NewIndex()
	if err != nil {
		return err
	}
	coord.RegisterFunc("index", func(context.Context) error { return idx.Close() }, shutdown.PhaseClose)
	engine := query.NewEngine(idx, db, log.WithComponent("query"))
	if _, err := engine.Rebuild(ctx); err != nil {
		return fmt.Errorf("rebuild index: %w", err)
	}

	svc := service.New(service.Config{
		Store:          db,
		Events:         events,
		Dispatcher:     dispatcher,
		Lister:         engine,
		Indexer:        idx,
		Idempotency:    registry,
		IdempotencyTTL: cfg.Idempotency.TTL,
		Cache:          cache.Config{Size: cfg.Cache.Size, TTL: cfg.Cache.TTL},
		Logger:         log,
		Tracer:         tracer,
	})

	// Throttling
	var limiter ratelimit.RateLimiter
	if cfg.Server.RequestsPerMinute > 0 {
		ml := ratelimit.NewMemoryLimiter(ratelimit.Config{
			Capacity: cfg.Server.RequestsPerMinute,
			Window:   time.Minute,
		})
		limiter = ml
		startSweeper(coord, "limiter-sweeper", ml, time.Minute, log)
		coord.RegisterFunc("limiter", func(context.Context) error { return ml.Close() }, shutdown.PhaseClose)
	}

	// Background sweeps
	startSweeper(coord, "idempotency-sweeper", registry, cfg.Idempotency.SweepInterval, log)
	if cfg.Events.Retention > 0 {
		startSweeper(coord, "retention-sweeper", eventlog.Retention{Log: events, MaxAge: cfg.Events.Retention}, time.Hour, log)
	}

	server := httpapi.New(httpapi.Config{
		Service:      svc,
		Bus:          b,
		Limiter:      limiter,
		APIKey:       cfg.Server.APIKey,
		Addr:         cfg.Server.Addr,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		Logger:       log,
		Tracer:       tracer,
	})
	coord.Register("http", server, shutdown.PhaseHTTP)

	if cfg.Server.APIKey == "" {
		log.Warn("auth_disabled", map[string]interface{}{"reason": "no api key configured"})
	}

	serveErr := make(chan error, 1)
	go func() { serveErr <- server.ListenAndServe() }()

	waitCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		if err := <-serveErr; err != nil {
			log.Error("serve_failed", map[string]interface{}{"error": err})
			cancel()
		}
	}()

	if err := coord.Wait(waitCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

// startSweeper runs a periodic sweep and stops it before storage closes.
func startSweeper(coord *shutdown.Coordinator, name string, target sweeper.Sweepable, interval time.Duration, log *logging.Logger) {
	s := sweeper.New(target, interval, log.WithComponent(name))
	s.Start(context.Background())
	coord.Register(name, s, shutdown.PhaseSweepers)
}
