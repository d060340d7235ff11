package guardian

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/qqncnc/VPS-Traffic-Guardian/internal/adapters/dryrun"
	"github.com/qqncnc/VPS-Traffic-Guardian/internal/adapters/observability"
	"github.com/qqncnc/VPS-Traffic-Guardian/internal/adapters/procfs"
	"github.com/qqncnc/VPS-Traffic-Guardian/internal/adapters/shaper"
	"github.com/qqncnc/VPS-Traffic-Guardian/internal/adapters/tc"
	"github.com/qqncnc/VPS-Traffic-Guardian/internal/app/config"
	"github.com/qqncnc/VPS-Traffic-Guardian/internal/app/guard"
	"github.com/qqncnc/VPS-Traffic-Guardian/internal/ports"
)

// Option customizes the dependencies used by Runtime.
type Option func(*overrides)

type overrides struct {
	telemetry    ports.TelemetrySource
	enforcer     ports.Enforcer
	obs          ports.Observability
	logger       *zap.Logger
	shutdownHook func(reason string) error
}

// WithTelemetrySource injects a custom telemetry source (simulators, remote
// agents, container runtimes).
func WithTelemetrySource(src TelemetrySource) Option {
	return func(o *overrides) { o.telemetry = src }
}

// WithEnforcer injects a custom enforcement backend.
func WithEnforcer(enf Enforcer) Option {
	return func(o *overrides) { o.enforcer = enf }
}

// WithObservability replaces the default zap + Prometheus backend.
func WithObservability(obs Observability) Option {
	return func(o *overrides) { o.obs = obs }
}

// WithLogger supplies an existing zap logger instead of building one from
// the logging config.
func WithLogger(log *zap.Logger) Option {
	return func(o *overrides) { o.logger = log }
}

// WithShutdownHook sets the callback invoked for host shutdown when the
// in-process enforcement backend is selected. Embedders usually cancel
// their root context here.
func WithShutdownHook(fn func(reason string) error) Option {
	return func(o *overrides) { o.shutdownHook = fn }
}

// Runtime wires telemetry → evaluator → enforcer into a runnable control
// loop with its metrics endpoint, for use from the CLI or embedded inside
// another Go service.
type Runtime struct {
	cfg  *config.Config
	obs  ports.Observability
	act  *guard.Actuator
	loop *guard.Loop

	// Shaper is non-nil when the in-process backend is active; embedders
	// pull quota from it or wrap their conns with it.
	Shaper *shaper.Shaper
}

// New bootstraps the default adapters (procfs telemetry, backend-selected
// enforcer, zap + Prometheus observability) and builds the control loop.
// Options override any dependency.
func New(cfg *config.Config, opts ...Option) (*Runtime, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	var o overrides
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}

	obs := o.obs
	if obs == nil {
		log := o.logger
		if log == nil {
			var err error
			log, err = observability.NewLogger(cfg.Logging.Level)
			if err != nil {
				return nil, fmt.Errorf("build logger: %w", err)
			}
		}
		audit := observability.NewAuditLogger(observability.AuditConfig{
			Path:       cfg.Logging.AuditFile,
			MaxSizeMB:  cfg.Logging.AuditMaxSizeMB,
			MaxBackups: cfg.Logging.AuditMaxBackups,
			MaxAgeDays: cfg.Logging.AuditMaxAgeDays,
		})
		obs = observability.New(log, audit, nil)
	}

	telemetry := o.telemetry
	if telemetry == nil {
		telemetry = procfs.NewSource(cfg.Interface)
	}

	rt := &Runtime{cfg: cfg, obs: obs}

	enf := o.enforcer
	if enf == nil {
		switch cfg.Enforcement.Backend {
		case config.BackendInProcess:
			rt.Shaper = shaper.New(o.shutdownHook)
			enf = rt.Shaper
		case config.BackendLog:
			enf = dryrun.New(obs)
		default:
			enf = tc.NewEnforcer(cfg.Interface)
		}
	}

	th := cfg.DomainThresholds()
	day := guard.NewDaybook(cfg.DailyResetHour, cfg.Journal.Path, time.Now())
	sampler := guard.NewSampler(telemetry, day, cfg.SampleTimeout.Std())
	eval := guard.NewEvaluator(th)
	rt.act = guard.NewActuator(enf, obs, th, cfg.EnforceTimeout.Std())
	rt.loop = guard.NewLoop(sampler, eval, rt.act, day, obs, cfg.TickInterval.Std())

	return rt, nil
}

// State returns the current guardian state.
func (r *Runtime) State() GuardianState { return r.loop.State() }

// Run performs one-time environment setup, then drives the control loop and
// the metrics endpoint until the context is cancelled. It returns non-nil
// only when enforcement could not be guaranteed (a shutdown command failed
// twice) or the metrics listener died.
func (r *Runtime) Run(ctx context.Context) error {
	if err := r.act.Bootstrap(ctx); err != nil {
		// Degraded but alive: the host is simply uncapped until the
		// first successful enforcement decision.
		r.obs.LogError("bootstrap_enforcement_failed", err)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	srv := &http.Server{Addr: r.cfg.Metrics.Addr, Handler: mux}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("metrics server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	g.Go(func() error {
		return r.loop.Run(ctx)
	})
	return g.Wait()
}
