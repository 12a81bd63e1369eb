package render

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/fatih/color"

	"vm-health-agent/internal/collector"
	"vm-health-agent/internal/fetch"
	"vm-health-agent/internal/model"
)

const rowFormat = "%-32s %-15s %-20s %-8s %8s %8s\n"

// Text prints the console report, one block per project.
type Text struct {
	header  *color.Color
	project *color.Color
	failure *color.Color
	missing *color.Color
}

func NewText(noColor bool) *Text {
	t := &Text{
		header:  color.New(color.Bold),
		project: color.New(color.FgCyan, color.Bold),
		failure: color.New(color.FgRed),
		missing: color.New(color.FgYellow),
	}
	if noColor {
		for _, c := range []*color.Color{t.header, t.project, t.failure, t.missing} {
			c.DisableColor()
		}
	}
	return t
}

func (t *Text) Render(w io.Writer, results []collector.Result) error {
	var buf bytes.Buffer
	for _, r := range results {
		if !r.OK() {
			t.writeFailure(&buf, r)
			continue
		}
		t.writeReport(&buf, r.Report)
	}
	_, err := w.Write(buf.Bytes())
	return err
}

func (t *Text) writeFailure(buf *bytes.Buffer, r collector.Result) {
	cause := r.Err.Error()
	var fe *fetch.FetchError
	if errors.As(r.Err, &fe) {
		cause = fe.Detail()
	}
	buf.WriteString("\n")
	buf.WriteString(t.failure.Sprintf("project %s: fetch failed: %s", r.ProjectID, cause))
	buf.WriteString("\n")
}

func (t *Text) writeReport(buf *bytes.Buffer, r model.ProjectReport) {
	buf.WriteString("\n")
	buf.WriteString(t.header.Sprintf("=== Project Health (last %s) ===", windowLabel(r.Window)))
	buf.WriteString("\n")
	fmt.Fprintf(buf, "Project: %s\n", t.project.Sprint(r.ProjectID))
	fmt.Fprintf(buf, "Average CPU Utilization: %s\n", t.pct(FormatPct(r.AvgCPUPct)))
	fmt.Fprintf(buf, "Average Memory Used: %s\n", t.pct(FormatPct(r.AvgMemPct)))
	fmt.Fprintf(buf, "RUNNING VMs: %d\n", r.RunningVMCount)
	for _, w := range r.Warnings {
		buf.WriteString(t.missing.Sprintf("warning: %s", w))
		buf.WriteString("\n")
	}

	if len(r.PerInstance) == 0 {
		return
	}

	fmt.Fprintf(buf, "\n-- Per-instance (avg of last %s) --\n", shortDuration(r.Window))
	if !anyData(r.PerInstance) {
		buf.WriteString("No per-instance metrics found (ensure Ops Agent is installed).\n")
		return
	}
	buf.WriteString(t.header.Sprintf(rowFormat, "INSTANCE", "ZONE", "TYPE", "STATE", "CPU%", "MEM%"))
	for _, inst := range r.PerInstance {
		fmt.Fprintf(buf, "%-32s %-15s %-20s %-8s %s %s\n",
			truncate(displayName(inst), 32),
			truncate(orDash(inst.Zone), 15),
			truncate(orDash(inst.MachineType), 20),
			truncate(orDash(string(inst.State)), 8),
			t.cell(inst.AvgCPUPct),
			t.cell(inst.AvgMemPct))
	}
}

func (t *Text) pct(s string) string {
	if s == notAvailable {
		return t.missing.Sprint(s)
	}
	return s
}

func (t *Text) cell(v model.Optional[float64]) string {
	pct, ok := v.Get()
	if !ok {
		return t.missing.Sprintf("%8s", notAvailable)
	}
	return fmt.Sprintf("%8.2f", pct)
}

func anyData(instances []model.InstanceAggregate) bool {
	for _, inst := range instances {
		if inst.AvgCPUPct.IsPresent() || inst.AvgMemPct.IsPresent() {
			return true
		}
	}
	return false
}

func displayName(inst model.InstanceAggregate) string {
	if inst.Name != "" {
		return inst.Name
	}
	return inst.InstanceID
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
