package model

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProjectReportJSONCarriesWindow(t *testing.T) {
	r := ProjectReport{
		ProjectID:      "km-prod",
		AvgCPUPct:      Some(41.5),
		RunningVMCount: 2,
		PerInstance:    []InstanceAggregate{{InstanceID: "1", AvgCPUPct: Some(41.5)}},
		Window:         10 * time.Minute,
	}

	raw, err := json.Marshal(r)
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.InDelta(t, 600, decoded["window_seconds"], 0)
	assert.Equal(t, "km-prod", decoded["project_id"])
	assert.Nil(t, decoded["avg_mem_pct"])
	assert.NotContains(t, decoded, "Window")
	assert.NotContains(t, decoded, "warnings")

	var back ProjectReport
	require.NoError(t, json.Unmarshal(raw, &back))
	assert.Equal(t, r.Window, back.Window)
	assert.Equal(t, r.AvgCPUPct, back.AvgCPUPct)
	assert.Equal(t, r.PerInstance, back.PerInstance)
}

func TestProjectReportJSONWarnings(t *testing.T) {
	raw, err := json.Marshal(ProjectReport{ProjectID: "p", Warnings: []string{"fetch samples: agent missing"}})
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"warnings":["fetch samples: agent missing"]`)
	assert.Contains(t, string(raw), `"window_seconds":0`)
}
