package agent

import (
	"context"
	"fmt"
	"net"
	"strings"
	"time"

	"vm-health-agent/internal/collector"
	"vm-health-agent/internal/web"
)

// servePoller records every on-demand poll in the agent health.
type servePoller struct {
	scheduler *collector.Scheduler
	health    *HealthStatus
}

func (p servePoller) PollOnce(ctx context.Context, projects []string) []collector.Result {
	results := p.scheduler.PollOnce(ctx, projects)
	p.health.MarkCycle(results, time.Now())
	return results
}

func (a *Agent) runWebServer(ctx context.Context, projects []string) error {
	addr := strings.TrimSpace(a.cfg.ServeAddr)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen web front-end %s: %w", addr, err)
	}
	return a.serveWeb(ctx, ln, projects)
}

func (a *Agent) serveWeb(ctx context.Context, ln net.Listener, projects []string) error {
	logger := a.logger.With("component", "web")
	h := web.NewHandler(logger, servePoller{scheduler: a.scheduler, health: a.health}, a.health, projects)
	return web.Serve(ctx, logger, web.NewServer(logger, h), ln, a.cfg.ShutdownTimeout)
}
