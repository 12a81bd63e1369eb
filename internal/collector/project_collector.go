package collector

import (
	"context"
	"errors"
	"time"

	"vm-health-agent/internal/aggregate"
	"vm-health-agent/internal/fetch"
	"vm-health-agent/internal/model"
)

// ProjectCollector runs the fetch-and-aggregate pipeline for one project.
type ProjectCollector struct {
	inventory fetch.InstanceInventory
	samples   fetch.MetricSampleFetcher
	window    time.Duration
	now       func() time.Time
}

func NewProjectCollector(inventory fetch.InstanceInventory, samples fetch.MetricSampleFetcher, window time.Duration) *ProjectCollector {
	if window <= 0 {
		window = model.DefaultWindow
	}
	return &ProjectCollector{inventory: inventory, samples: samples, window: window, now: time.Now}
}

// Collect returns the report for projectID, or the inventory or CPU fetch error.
// Any error returned here is a *fetch.FetchError unless ctx was canceled.
// Memory comes from an optional guest agent: a failed memory fetch leaves the
// memory averages absent and is recorded in the report warnings.
func (c *ProjectCollector) Collect(ctx context.Context, projectID string) (model.ProjectReport, error) {
	inventory, err := c.inventory.ListInstances(ctx, projectID)
	if err != nil {
		return model.ProjectReport{}, err
	}
	cpu, err := c.samples.FetchSamples(ctx, projectID, model.MetricCPUUtilization, c.window)
	if err != nil {
		return model.ProjectReport{}, err
	}
	var warnings []string
	mem, err := c.samples.FetchSamples(ctx, projectID, model.MetricMemoryPercentUsed, c.window)
	if err != nil {
		if ctx.Err() != nil {
			return model.ProjectReport{}, err
		}
		mem = nil
		warnings = append(warnings, warningText(err))
	}

	report := aggregate.BuildReport(projectID, inventory, cpu, mem)
	report.Warnings = warnings
	report.Window = c.window
	report.CollectedAt = c.now().UTC()
	return report, nil
}

func warningText(err error) string {
	var fe *fetch.FetchError
	if errors.As(err, &fe) {
		return fe.Detail()
	}
	return err.Error()
}
