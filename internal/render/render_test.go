package render

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vm-health-agent/internal/collector"
	"vm-health-agent/internal/fetch"
	"vm-health-agent/internal/model"
)

func sampleReport() model.ProjectReport {
	return model.ProjectReport{
		ProjectID:      "km-prod",
		AvgCPUPct:      model.Some(50.0),
		AvgMemPct:      model.None[float64](),
		RunningVMCount: 1,
		Window:         10 * time.Minute,
		PerInstance: []model.InstanceAggregate{
			{
				InstanceID:  "101",
				Name:        "api-0",
				Zone:        "europe-west1-b",
				MachineType: "e2-standard-4",
				State:       model.StateRunning,
				AvgCPUPct:   model.Some(50.0),
			},
			{InstanceID: "102", State: model.StateStopped},
		},
	}
}

func TestFormatPct(t *testing.T) {
	assert.Equal(t, "50.00%", FormatPct(model.Some(50.0)))
	assert.Equal(t, "0.00%", FormatPct(model.Some(0.0)))
	assert.Equal(t, "33.33%", FormatPct(model.Some(100.0/3)))
	assert.Equal(t, "N/A", FormatPct(model.None[float64]()))
}

func TestWindowLabels(t *testing.T) {
	assert.Equal(t, "10 minutes", windowLabel(10*time.Minute))
	assert.Equal(t, "10 minutes", windowLabel(0))
	assert.Equal(t, "1 minute", windowLabel(time.Minute))
	assert.Equal(t, "90s", windowLabel(90*time.Second))

	assert.Equal(t, "10m", shortDuration(10*time.Minute))
	assert.Equal(t, "1h", shortDuration(time.Hour))
	assert.Equal(t, "1h30m", shortDuration(90*time.Minute))
	assert.Equal(t, "45s", shortDuration(45*time.Second))
}

func TestTextRender(t *testing.T) {
	var buf bytes.Buffer
	results := []collector.Result{
		{ProjectID: "km-prod", Report: sampleReport()},
		{ProjectID: "km-prod-eu", Err: fetch.NewInventoryError("km-prod-eu", errors.New("permission denied"))},
	}
	require.NoError(t, NewText(true).Render(&buf, results))
	out := buf.String()

	assert.Contains(t, out, "=== Project Health (last 10 minutes) ===")
	assert.Contains(t, out, "Project: km-prod\n")
	assert.Contains(t, out, "Average CPU Utilization: 50.00%\n")
	assert.Contains(t, out, "Average Memory Used: N/A\n")
	assert.Contains(t, out, "RUNNING VMs: 1\n")
	assert.Contains(t, out, "-- Per-instance (avg of last 10m) --")
	assert.Contains(t, out, "project km-prod-eu: fetch failed: list instances: permission denied")
	assert.NotContains(t, out, "No per-instance metrics found")

	var rows []string
	for _, line := range strings.Split(out, "\n") {
		if strings.HasPrefix(line, "api-0") || strings.HasPrefix(line, "102") {
			rows = append(rows, line)
		}
	}
	require.Len(t, rows, 2)
	assert.Equal(t, "api-0", strings.Fields(rows[0])[0])
	assert.Equal(t, []string{"api-0", "europe-west1-b", "e2-standard-4", "RUNNING", "50.00", "N/A"}, strings.Fields(rows[0]))
	assert.Equal(t, []string{"102", "-", "-", "STOPPED", "N/A", "N/A"}, strings.Fields(rows[1]))
	assert.Less(t, strings.Index(out, "km-prod\n"), strings.Index(out, "km-prod-eu"))
}

func TestTextRenderWithoutInstances(t *testing.T) {
	var buf bytes.Buffer
	report := model.ProjectReport{ProjectID: "km-dev-434106", PerInstance: []model.InstanceAggregate{}}
	require.NoError(t, NewText(true).Render(&buf, []collector.Result{{ProjectID: report.ProjectID, Report: report}}))

	out := buf.String()
	assert.Contains(t, out, "RUNNING VMs: 0")
	assert.Contains(t, out, "Average CPU Utilization: N/A")
	assert.NotContains(t, out, "Per-instance")
}

func TestTextRenderNoMetricData(t *testing.T) {
	var buf bytes.Buffer
	report := model.ProjectReport{
		ProjectID:      "km-prod-in",
		RunningVMCount: 1,
		PerInstance:    []model.InstanceAggregate{{InstanceID: "7", State: model.StateRunning}},
	}
	require.NoError(t, NewText(true).Render(&buf, []collector.Result{{ProjectID: report.ProjectID, Report: report}}))
	out := buf.String()
	assert.Contains(t, out, "No per-instance metrics found")
	assert.NotContains(t, out, "INSTANCE")
	for _, line := range strings.Split(out, "\n") {
		assert.False(t, strings.HasPrefix(line, "7 "), line)
	}
}

func TestTextRenderWarnings(t *testing.T) {
	var buf bytes.Buffer
	report := sampleReport()
	report.Warnings = []string{"fetch samples agent.googleapis.com/memory/percent_used: permission denied"}
	require.NoError(t, NewText(true).Render(&buf, []collector.Result{{ProjectID: report.ProjectID, Report: report}}))
	assert.Contains(t, buf.String(), "warning: fetch samples agent.googleapis.com/memory/percent_used: permission denied\n")
	assert.Contains(t, buf.String(), "Average Memory Used: N/A")
}

func TestTextRenderTruncatesLongNames(t *testing.T) {
	var buf bytes.Buffer
	long := strings.Repeat("n", 40)
	report := model.ProjectReport{
		ProjectID:   "p",
		PerInstance: []model.InstanceAggregate{{InstanceID: "1", Name: long, AvgCPUPct: model.Some(1.0)}},
	}
	require.NoError(t, NewText(true).Render(&buf, []collector.Result{{ProjectID: "p", Report: report}}))
	assert.Contains(t, buf.String(), strings.Repeat("n", 32)+" ")
	assert.NotContains(t, buf.String(), strings.Repeat("n", 33))
}

func TestJSONRender(t *testing.T) {
	var buf bytes.Buffer
	results := []collector.Result{
		{ProjectID: "km-prod", Report: sampleReport()},
		{ProjectID: "km-prod-eu", Err: errors.New("project km-prod-eu: list instances: denied")},
	}
	require.NoError(t, NewJSON(true).Render(&buf, results))

	var decoded []map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	require.Len(t, decoded, 2)

	assert.Equal(t, "km-prod", decoded[0]["project_id"])
	assert.Equal(t, "ok", decoded[0]["status"])
	report, ok := decoded[0]["report"].(map[string]any)
	require.True(t, ok)
	assert.InDelta(t, 50.0, report["avg_cpu_pct"], 1e-9)
	assert.Nil(t, report["avg_mem_pct"])
	assert.InDelta(t, 1, report["running_vm_count"], 0)
	assert.InDelta(t, 600, report["window_seconds"], 0)

	assert.Equal(t, "failed", decoded[1]["status"])
	assert.Contains(t, decoded[1]["error"], "denied")
	assert.NotContains(t, decoded[1], "report")
}

func TestNew(t *testing.T) {
	r, err := New("text", true)
	require.NoError(t, err)
	assert.IsType(t, &Text{}, r)

	r, err = New("JSON", true)
	require.NoError(t, err)
	assert.IsType(t, &JSON{}, r)

	_, err = New("yaml", true)
	assert.Error(t, err)
}
