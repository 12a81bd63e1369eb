package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"vm-health-agent/internal/collector"
	"vm-health-agent/internal/model"
)

func (a *Agent) run(ctx context.Context, projects []string) error {
	if a.cfg.Serving() {
		return a.runWebServer(ctx, projects)
	}
	if a.cfg.WatchInterval <= 0 {
		results := a.scheduler.PollOnce(ctx, projects)
		if err := a.handle(ctx, results); err != nil {
			return err
		}
		if failed := failedProjects(results); len(failed) > 0 {
			return fmt.Errorf("%w: %s", ErrProjectsFailed, strings.Join(failed, ", "))
		}
		return nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return a.scheduler.Run(gctx, projects, a.cfg.WatchInterval, a.handle)
	})
	if strings.TrimSpace(a.cfg.ProbeListenAddr) != "" {
		g.Go(func() error {
			return a.runProbeListener(gctx)
		})
	}

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// handle renders one cycle and forwards the successful reports to the sink.
func (a *Agent) handle(ctx context.Context, results []collector.Result) error {
	a.health.MarkCycle(results, time.Now())

	if err := a.renderer.Render(a.out, results); err != nil {
		return fmt.Errorf("render results: %w", err)
	}

	reports := make([]model.ProjectReport, 0, len(results))
	for _, r := range results {
		if r.OK() {
			reports = append(reports, r.Report)
		}
	}
	if len(reports) == 0 {
		return nil
	}
	if err := a.sink.SendReports(ctx, reports); err != nil {
		a.logger.Warn("report sink send failed", "reports", len(reports), "error", err)
		return fmt.Errorf("send reports: %w", err)
	}
	return nil
}

func (a *Agent) shutdown(ctx context.Context) {
	if err := a.sink.Close(ctx); err != nil {
		a.logger.Warn("report sink close failed", "error", err)
	}
	a.health.SetSinkConnected(false)
	if err := a.provider.Close(); err != nil {
		a.logger.Warn("provider close failed", "error", err)
	}
}

func failedProjects(results []collector.Result) []string {
	var failed []string
	for _, r := range results {
		if !r.OK() {
			failed = append(failed, r.ProjectID)
		}
	}
	return failed
}
