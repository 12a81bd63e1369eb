package collector

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"vm-health-agent/internal/model"
)

// Result is the outcome of one project in a poll cycle. Exactly one of Report
// and Err is meaningful.
type Result struct {
	ProjectID string
	Report    model.ProjectReport
	Err       error
	Elapsed   time.Duration
}

func (r Result) OK() bool {
	return r.Err == nil
}

type Scheduler struct {
	logger       *slog.Logger
	collector    *ProjectCollector
	parallelism  int
	errorBackoff time.Duration
}

func NewScheduler(logger *slog.Logger, collector *ProjectCollector, parallelism int, errorBackoff time.Duration) *Scheduler {
	if parallelism <= 0 {
		parallelism = 1
	}
	if errorBackoff <= 0 {
		errorBackoff = time.Second
	}
	return &Scheduler{
		logger:       logger,
		collector:    collector,
		parallelism:  parallelism,
		errorBackoff: errorBackoff,
	}
}

// PollOnce collects every project and returns results in the order of
// projects. A failing project never stops the others.
func (s *Scheduler) PollOnce(ctx context.Context, projects []string) []Result {
	results := make([]Result, len(projects))
	var g errgroup.Group
	g.SetLimit(s.parallelism)
	for i, projectID := range projects {
		g.Go(func() error {
			results[i] = s.collectOne(ctx, projectID)
			return nil
		})
	}
	_ = g.Wait()

	failed := 0
	for _, r := range results {
		if !r.OK() {
			failed++
		}
	}
	s.logger.Info("poll cycle finished", "projects", len(projects), "ok", len(projects)-failed, "failed", failed)
	return results
}

func (s *Scheduler) collectOne(ctx context.Context, projectID string) Result {
	start := time.Now()
	report, err := s.collector.Collect(ctx, projectID)
	res := Result{ProjectID: projectID, Report: report, Err: err, Elapsed: time.Since(start)}
	if err != nil {
		s.logger.Error("project poll failed", "project_id", projectID, "error", err, "elapsed", res.Elapsed)
		return res
	}
	for _, w := range report.Warnings {
		s.logger.Warn("project polled with missing metric", "project_id", projectID, "warning", w)
	}
	s.logger.Debug("project polled",
		"project_id", projectID,
		"instances", len(report.PerInstance),
		"running", report.RunningVMCount,
		"elapsed", res.Elapsed)
	return res
}

// Run polls immediately and then on every interval tick until ctx is done,
// handing each cycle's results to handle. A handle error delays the next
// cycle by the error backoff.
func (s *Scheduler) Run(ctx context.Context, projects []string, interval time.Duration, handle func(context.Context, []Result) error) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	if err := s.cycle(ctx, projects, handle); err != nil {
		s.logger.Warn("initial poll handling failed", "error", err)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if ctx.Err() != nil {
				return nil
			}
			if err := s.cycle(ctx, projects, handle); err != nil {
				s.logger.Error("poll handling failed", "error", err)
				s.sleepWithContext(ctx, s.errorBackoff)
			}
		}
	}
}

// cycle polls once and hands the results on, unless ctx ended while polling:
// a cut-short cycle reports cancellation, not upstream failures.
func (s *Scheduler) cycle(ctx context.Context, projects []string, handle func(context.Context, []Result) error) error {
	results := s.PollOnce(ctx, projects)
	if ctx.Err() != nil {
		s.logger.Debug("poll cycle interrupted, results discarded", "projects", len(projects))
		return nil
	}
	return handle(ctx, results)
}

func (s *Scheduler) sleepWithContext(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
