package agent

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"vm-health-agent/internal/collector"
	"vm-health-agent/internal/config"
	"vm-health-agent/internal/fetch"
	"vm-health-agent/internal/gcp"
	"vm-health-agent/internal/libvirt"
	"vm-health-agent/internal/model"
	"vm-health-agent/internal/render"
	"vm-health-agent/internal/stream"
)

// ErrProjectsFailed is returned by a one-shot run when at least one project
// could not be polled.
var ErrProjectsFailed = errors.New("one or more projects failed")

const sinkErrorBackoff = 5 * time.Second

type Agent struct {
	cfg       config.Config
	logger    *slog.Logger
	provider  fetch.Provider
	scheduler *collector.Scheduler
	renderer  render.Renderer
	sink      stream.Sink
	health    *HealthStatus
	out       io.Writer
}

// New builds the agent for the configured provider. Reports are rendered to out.
func New(cfg config.Config, logger *slog.Logger, out io.Writer) (*Agent, error) {
	provider, err := NewProvider(cfg, logger)
	if err != nil {
		return nil, err
	}
	return NewWithProvider(cfg, logger, provider, stream.NewSinkFromConfig(cfg, logger), out)
}

func NewWithProvider(cfg config.Config, logger *slog.Logger, provider fetch.Provider, sink stream.Sink, out io.Writer) (*Agent, error) {
	renderer, err := render.New(cfg.Output, cfg.NoColor)
	if err != nil {
		return nil, fmt.Errorf("renderer: %w", err)
	}
	if sink == nil {
		sink = stream.NopSink{}
	}

	health := NewHealthStatus()
	pc := collector.NewProjectCollector(provider, provider, cfg.Window)
	return &Agent{
		cfg:       cfg,
		logger:    logger,
		provider:  provider,
		scheduler: collector.NewScheduler(logger, pc, cfg.Parallelism, sinkErrorBackoff),
		renderer:  renderer,
		sink:      &healthSink{sink: sink, health: health},
		health:    health,
		out:       out,
	}, nil
}

// NewProvider returns the metric backend selected by cfg.Provider.
func NewProvider(cfg config.Config, logger *slog.Logger) (fetch.Provider, error) {
	switch cfg.Provider {
	case config.ProviderGCP, "":
		retry := fetch.DefaultRetryPolicy()
		retry.Attempts = cfg.FetchRetries
		return gcp.NewProvider(gcp.Options{
			CredentialsFile: cfg.CredentialsFile,
			FetchTimeout:    cfg.FetchTimeout,
			Retry:           retry,
		}, logger.With("provider", string(config.ProviderGCP))), nil
	case config.ProviderLibvirt:
		return libvirt.NewProvider(libvirt.Options{
			URIs:          cfg.LibvirtURIs,
			CPUProbe:      cfg.LibvirtCPUProbe,
			ReconnectWait: cfg.LibvirtRetry,
			MaxJitter:     cfg.LibvirtRetry / 2,
			FetchTimeout:  cfg.FetchTimeout,
		}, logger.With("provider", string(config.ProviderLibvirt))), nil
	default:
		return nil, fmt.Errorf("unsupported provider %q", cfg.Provider)
	}
}

func (a *Agent) Health() *HealthStatus {
	return a.health
}

// Run polls projects once, or on every watch interval until ctx is canceled or
// SIGINT/SIGTERM arrives. With a serve address it instead serves the web
// front-end, polling on request. A second signal or the shutdown timeout
// forces exit.
func (a *Agent) Run(ctx context.Context, projects []string) error {
	a.logger.Info("starting vm-health-agent",
		"provider", a.cfg.Provider,
		"projects", len(projects),
		"window", a.cfg.Window,
		"watch_interval", a.cfg.WatchInterval,
		"serve_addr", a.cfg.ServeAddr)
	runCtx, cancelRun := context.WithCancel(ctx)
	defer cancelRun()

	runErrCh := make(chan error, 1)
	go func() {
		runErrCh <- a.run(runCtx, projects)
	}()

	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	var runErr error
	select {
	case runErr = <-runErrCh:
	case sig := <-sigCh:
		a.logger.Info("shutdown signal received, starting graceful shutdown", "signal", sig.String(), "timeout", a.cfg.ShutdownTimeout)
		cancelRun()

		graceTimer := time.NewTimer(a.cfg.ShutdownTimeout)
		defer graceTimer.Stop()

		select {
		case runErr = <-runErrCh:
		case sig2 := <-sigCh:
			a.logger.Warn("second signal received, forcing immediate shutdown", "signal", sig2.String())
			runErr = context.Canceled
		case <-graceTimer.C:
			a.logger.Warn("graceful shutdown timeout reached, forcing shutdown", "timeout", a.cfg.ShutdownTimeout)
			runErr = context.DeadlineExceeded
		}
	}

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), a.cfg.ShutdownTimeout)
	defer cancelShutdown()
	a.shutdown(shutdownCtx)

	if runErr != nil && !errors.Is(runErr, context.Canceled) && !errors.Is(runErr, context.DeadlineExceeded) {
		return runErr
	}
	a.logger.Info("vm-health-agent stopped")
	return nil
}

type healthSink struct {
	sink   stream.Sink
	health *HealthStatus
}

func (s *healthSink) SendReports(ctx context.Context, reports []model.ProjectReport) error {
	err := s.sink.SendReports(ctx, reports)
	s.health.SetSinkConnected(err == nil)
	return err
}

func (s *healthSink) Close(ctx context.Context) error {
	return s.sink.Close(ctx)
}
