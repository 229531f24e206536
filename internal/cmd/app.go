package cmd

import (
	"context"
	"fmt"
	"sort"

	"github.com/felixgeelhaar/phaseflow/internal/checkpoint"
	"github.com/felixgeelhaar/phaseflow/internal/classify"
	"github.com/felixgeelhaar/phaseflow/internal/config"
	"github.com/felixgeelhaar/phaseflow/internal/domain"
	"github.com/felixgeelhaar/phaseflow/internal/storage"
	"github.com/felixgeelhaar/phaseflow/internal/tui"
	"github.com/felixgeelhaar/phaseflow/internal/uxplan"
	"github.com/felixgeelhaar/phaseflow/internal/worker"
	"github.com/felixgeelhaar/phaseflow/internal/workflow"
)

// serviceOptions selects how a command's Service is built
type serviceOptions struct {
	// interactive resolves escalations through a terminal prompt
	interactive bool
	// simulate replaces the configured workers with ones that always pass
	simulate bool
}

// app is the Service of one command plus the pieces it was built from
type app struct {
	backend storage.Storage
	store   *checkpoint.Store
	service *workflow.Service
}

func (c *cli) open(ctx context.Context, opts serviceOptions) (*app, error) {
	backend, err := c.openBackend(ctx)
	if err != nil {
		return nil, err
	}
	store := checkpoint.NewStore(backend,
		checkpoint.WithLogger(c.logger),
		checkpoint.WithMetrics(c.metrics),
	)

	workers := worker.NewRegistry()
	if opts.simulate {
		err = registerSimulated(workers)
	} else {
		err = c.registerCommands(workers)
	}
	if err != nil {
		return nil, err
	}

	classifier := classify.New(
		classify.WithUXPlanSignal(uxplan.NewDetector(".", c.cfg.UXPlan.Patterns)),
		classify.WithCache(classify.NewCache()),
	)

	svcOpts := []workflow.Option{
		workflow.WithClassifier(classifier),
		workflow.WithLogger(c.logger),
		workflow.WithMetrics(c.metrics),
	}
	if opts.interactive {
		svcOpts = append(svcOpts, workflow.WithEscalator(tui.NewEscalationPrompt()))
	}

	return &app{
		backend: backend,
		store:   store,
		service: workflow.NewService(store, workers, c.cfg.EngineSettings(), svcOpts...),
	}, nil
}

func (c *cli) openBackend(ctx context.Context) (storage.Storage, error) {
	switch c.cfg.State.Backend {
	case config.BackendS3:
		s3cfg := c.cfg.State.S3
		backend, err := storage.NewS3Storage(ctx, s3cfg.Bucket, s3cfg.Prefix, s3cfg.Region)
		if err != nil {
			return nil, fmt.Errorf("open s3 state backend: %w", err)
		}
		return backend, nil
	default:
		backend, err := storage.NewLocalStorage(c.cfg.State.Dir)
		if err != nil {
			return nil, fmt.Errorf("open local state backend: %w", err)
		}
		return backend, nil
	}
}

// registerCommands wires one CommandWorker per configured role
func (c *cli) registerCommands(workers *worker.Registry) error {
	names := make([]string, 0, len(c.cfg.Workers))
	for name := range c.cfg.Workers {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		wc := c.cfg.Workers[name]
		cw, err := worker.NewCommandWorker(wc.Command, wc.WorkerTimeout())
		if err != nil {
			return WorkerSetupError(name, err)
		}
		cw.WithEnv("PHASEFLOW_ROLE=" + name)
		if err := workers.Register(domain.WorkerRole(name), cw); err != nil {
			return WorkerSetupError(name, err)
		}
	}
	if len(names) == 0 {
		c.logger.Warn("no workers configured; phases will stay pending", "hint", "configure workers.<role>.command or pass --simulate")
	}
	return nil
}

// statePath is the file backing a change's state, when the backend is local
func (a *app) statePath(changeID string) (string, bool) {
	local, ok := a.backend.(*storage.LocalStorage)
	if !ok {
		return "", false
	}
	p, err := local.Path(checkpoint.StateKey(changeID))
	if err != nil {
		return "", false
	}
	return p, true
}
