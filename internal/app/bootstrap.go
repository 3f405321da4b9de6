package app

import (
	"errors"

	"github.com/sitegrade/sitegrade/internal/config"
	"github.com/sitegrade/sitegrade/internal/provider"
	"github.com/sitegrade/sitegrade/internal/router"
	"github.com/sitegrade/sitegrade/internal/scanner"
	"github.com/sitegrade/sitegrade/internal/worker"
)

// BuildRunner assembles the services for the requested mode. The scan
// scheduler runs wherever workers run; the asynq consumer only when the queue
// is configured.
func BuildRunner(cfg *config.Config, mode string) (*Runner, error) {
	if cfg == nil {
		return nil, errors.New("config is nil")
	}

	container := provider.NewContainer(cfg)

	var services []Service

	if mode == ModeAll || mode == ModeAPI {
		engine := router.SetupRouter(cfg, container)
		addr := cfg.Server.Host + ":" + cfg.Server.Port
		services = append(services, NewHTTPService(addr, engine))
	}

	if mode == ModeAll || mode == ModeWorker {
		scanService := scanner.NewService(cfg.Scan, container.AuditRepo, container.ScanPipeline.Scan)
		services = append(services, scanService)

		if cfg.Queue.Enabled {
			consumer := worker.NewConsumer(container)
			workerService, err := worker.NewService(&cfg.Queue, consumer)
			if err != nil {
				return nil, err
			}
			services = append(services, workerService)
		}
	}

	if len(services) == 0 {
		return nil, errors.New("no services initialized (check mode and config)")
	}

	return NewRunner(services...), nil
}

// Run is the application entry point.
func Run(opts Options) error {
	opts = normalizeOptions(opts)
	if opts.Config == nil {
		return errors.New("config is nil")
	}

	runner, err := BuildRunner(opts.Config, opts.Mode)
	if err != nil {
		return err
	}

	addr := opts.Config.Server.Host + ":" + opts.Config.Server.Port
	opts.Logger.Infow("app_start", "addr", addr, "mode", opts.Mode)
	return RunWithOptions(runner, opts)
}
