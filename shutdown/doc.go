// Package shutdown stops the service's components in phases.
//
// Components implement ShutdownHandler and register under a phase. On
// SIGINT or SIGTERM (or an explicit Shutdown call) the coordinator runs the
// phases in ascending order, all handlers of one phase concurrently, within
// a single deadline:
//
//	coord := shutdown.NewCoordinator(shutdown.Config{Timeout: 30 * time.Second, Logger: log})
//	coord.Register("http", server, shutdown.PhaseHTTP)
//	coord.Register("dispatcher", dispatcher, shutdown.PhaseDispatcher)
//	coord.RegisterFunc("database", func(ctx context.Context) error {
//	    return db.Close()
//	}, shutdown.PhaseClose)
//
//	if err := coord.Wait(ctx); err != nil {
//	    log.Error("shutdown_incomplete", map[string]interface{}{"error": err})
//	}
//
// The service uses PhaseHTTP, PhaseSweepers, PhaseDispatcher and PhaseClose
// so that requests stop before queued events drain and storage closes last.
package shutdown
