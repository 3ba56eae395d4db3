// Package supervisor runs the bot's long-lived services under a suture tree
// so a crashed component is restarted instead of taking the process down.
package supervisor

import (
	"context"
	"time"

	"github.com/thejerf/suture/v4"

	"movievault/internal/logging"
)

type TreeConfig struct {
	// FailureThreshold is the number of failures before entering backoff.
	FailureThreshold float64
	// FailureDecay is the rate at which failures decay, in seconds.
	FailureDecay    float64
	FailureBackoff  time.Duration
	ShutdownTimeout time.Duration
}

func DefaultTreeConfig() TreeConfig {
	return TreeConfig{
		FailureThreshold: 5,
		FailureDecay:     30,
		FailureBackoff:   15 * time.Second,
		ShutdownTimeout:  10 * time.Second,
	}
}

// Tree groups services into a pipeline layer (event workers), a maintenance
// layer (retention) and an api layer (HTTP).
type Tree struct {
	root        *suture.Supervisor
	pipeline    *suture.Supervisor
	maintenance *suture.Supervisor
	api         *suture.Supervisor
	config      TreeConfig
}

func NewTree(cfg TreeConfig) *Tree {
	def := DefaultTreeConfig()
	if cfg.FailureThreshold == 0 {
		cfg.FailureThreshold = def.FailureThreshold
	}
	if cfg.FailureDecay == 0 {
		cfg.FailureDecay = def.FailureDecay
	}
	if cfg.FailureBackoff == 0 {
		cfg.FailureBackoff = def.FailureBackoff
	}
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = def.ShutdownTimeout
	}

	rootSpec := suture.Spec{
		EventHook:        logEvent,
		FailureThreshold: cfg.FailureThreshold,
		FailureDecay:     cfg.FailureDecay,
		FailureBackoff:   cfg.FailureBackoff,
		Timeout:          cfg.ShutdownTimeout,
	}
	// Children inherit the root's EventHook once added.
	childSpec := suture.Spec{
		FailureThreshold: cfg.FailureThreshold,
		FailureDecay:     cfg.FailureDecay,
		FailureBackoff:   cfg.FailureBackoff,
		Timeout:          cfg.ShutdownTimeout,
	}

	t := &Tree{
		root:        suture.New("movievault", rootSpec),
		pipeline:    suture.New("pipeline-layer", childSpec),
		maintenance: suture.New("maintenance-layer", childSpec),
		api:         suture.New("api-layer", childSpec),
		config:      cfg,
	}
	t.root.Add(t.pipeline)
	t.root.Add(t.maintenance)
	t.root.Add(t.api)
	return t
}

func (t *Tree) AddPipelineService(svc suture.Service) suture.ServiceToken {
	return t.pipeline.Add(svc)
}

func (t *Tree) AddMaintenanceService(svc suture.Service) suture.ServiceToken {
	return t.maintenance.Add(svc)
}

func (t *Tree) AddAPIService(svc suture.Service) suture.ServiceToken {
	return t.api.Add(svc)
}

// Serve blocks until ctx is cancelled.
func (t *Tree) Serve(ctx context.Context) error {
	return t.root.Serve(ctx)
}

func (t *Tree) UnstoppedServiceReport() ([]suture.UnstoppedService, error) {
	return t.root.UnstoppedServiceReport()
}

func logEvent(e suture.Event) {
	switch ev := e.(type) {
	case suture.EventServicePanic:
		logging.Error().
			Str("supervisor", ev.SupervisorName).
			Str("service", ev.ServiceName).
			Str("panic", ev.PanicMsg).
			Str("stack", ev.Stacktrace).
			Bool("restarting", ev.Restarting).
			Msg("service panicked")
	case suture.EventServiceTerminate:
		logging.Warn().
			Str("supervisor", ev.SupervisorName).
			Str("service", ev.ServiceName).
			Interface("error", ev.Err).
			Float64("failures", ev.CurrentFailures).
			Bool("restarting", ev.Restarting).
			Msg("service terminated")
	case suture.EventBackoff:
		logging.Warn().Str("supervisor", ev.SupervisorName).Msg("supervisor entering backoff")
	case suture.EventResume:
		logging.Info().Str("supervisor", ev.SupervisorName).Msg("supervisor resumed")
	case suture.EventStopTimeout:
		logging.Error().
			Str("supervisor", ev.SupervisorName).
			Str("service", ev.ServiceName).
			Msg("service did not stop in time")
	default:
		logging.Info().Str("event", e.String()).Msg("supervisor event")
	}
}
