package aggregate

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vm-health-agent/internal/model"
)

var t0 = time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)

func samples(id string, values ...float64) []model.Sample {
	out := make([]model.Sample, 0, len(values))
	for i, v := range values {
		out = append(out, model.Sample{InstanceID: id, Timestamp: t0.Add(time.Duration(i) * time.Minute), Value: v})
	}
	return out
}

func record(id string, state model.InstanceState) model.InstanceRecord {
	return model.InstanceRecord{InstanceID: id, State: state}
}

func TestAggregateInstance(t *testing.T) {
	tests := []struct {
		name    string
		samples []model.Sample
		want    float64
		present bool
	}{
		{name: "no samples", samples: nil, present: false},
		{name: "empty slice", samples: []model.Sample{}, present: false},
		{name: "single", samples: samples("i1", 12.5), want: 12.5, present: true},
		{name: "uniform mean", samples: samples("i1", 40, 60), want: 50, present: true},
		{name: "uneven values", samples: samples("i1", 1, 2, 3, 10), want: 4, present: true},
		{name: "zero usage is a value", samples: samples("i1", 0, 0), want: 0, present: true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, ok := AggregateInstance(tc.samples).Get()
			assert.Equal(t, tc.present, ok)
			if tc.present {
				assert.InDelta(t, tc.want, got, 1e-9)
			}
		})
	}
}

func TestAggregateInstanceIgnoresTimestampSpacing(t *testing.T) {
	in := []model.Sample{
		{InstanceID: "i1", Timestamp: t0, Value: 10},
		{InstanceID: "i1", Timestamp: t0.Add(time.Second), Value: 20},
		{InstanceID: "i1", Timestamp: t0.Add(9 * time.Minute), Value: 90},
	}
	got, ok := AggregateInstance(in).Get()
	require.True(t, ok)
	assert.InDelta(t, 40.0, got, 1e-9)
}

func TestBuildReportScenarios(t *testing.T) {
	t.Run("running and stopped without memory agent", func(t *testing.T) {
		inventory := []model.InstanceRecord{record("i1", model.StateRunning), record("i2", model.StateStopped)}
		r := BuildReport("km-prod", inventory, samples("i1", 40, 60), nil)

		assert.Equal(t, "km-prod", r.ProjectID)
		assert.Equal(t, model.Some(50.0), r.AvgCPUPct)
		assert.Equal(t, model.None[float64](), r.AvgMemPct)
		assert.Equal(t, 1, r.RunningVMCount)
		require.Len(t, r.PerInstance, 2)
		assert.Equal(t, "i1", r.PerInstance[0].InstanceID)
		assert.Equal(t, model.Some(50.0), r.PerInstance[0].AvgCPUPct)
		assert.False(t, r.PerInstance[0].AvgMemPct.IsPresent())
		assert.Equal(t, "i2", r.PerInstance[1].InstanceID)
		assert.False(t, r.PerInstance[1].AvgCPUPct.IsPresent())
		assert.False(t, r.PerInstance[1].AvgMemPct.IsPresent())
	})

	t.Run("empty inventory", func(t *testing.T) {
		r := BuildReport("km-dev-434106", nil, nil, nil)
		assert.Equal(t, 0, r.RunningVMCount)
		assert.False(t, r.AvgCPUPct.IsPresent())
		assert.False(t, r.AvgMemPct.IsPresent())
		assert.NotNil(t, r.PerInstance)
		assert.Empty(t, r.PerInstance)
	})
}

func TestBuildReportKeepsInventoryOrder(t *testing.T) {
	inventory := []model.InstanceRecord{
		record("c", model.StateRunning),
		record("a", model.StateOther),
		record("b", model.StateRunning),
	}
	r := BuildReport("p", inventory, append(samples("b", 10), samples("c", 30)...), nil)

	ids := make([]string, 0, len(r.PerInstance))
	for _, inst := range r.PerInstance {
		ids = append(ids, inst.InstanceID)
	}
	assert.Equal(t, []string{"c", "a", "b"}, ids)
	assert.Equal(t, model.Some(20.0), r.AvgCPUPct)
}

func TestBuildReportDropsOrphanedSeries(t *testing.T) {
	inventory := []model.InstanceRecord{record("i1", model.StateRunning)}
	r := BuildReport("p", inventory, append(samples("i1", 10), samples("ghost", 90)...), samples("ghost", 50))

	assert.Equal(t, model.Some(10.0), r.AvgCPUPct)
	assert.False(t, r.AvgMemPct.IsPresent())
	require.Len(t, r.PerInstance, 1)
}

func TestBuildReportCarriesMetadata(t *testing.T) {
	inventory := []model.InstanceRecord{{
		InstanceID: "42",
		State:      model.StateRunning,
		Metadata: map[string]string{
			model.MetaName:        "api-0",
			model.MetaZone:        "europe-west1-b",
			model.MetaMachineType: "e2-standard-4",
		},
	}}
	r := BuildReport("p", inventory, nil, nil)
	require.Len(t, r.PerInstance, 1)
	got := r.PerInstance[0]
	assert.Equal(t, "api-0", got.Name)
	assert.Equal(t, "europe-west1-b", got.Zone)
	assert.Equal(t, "e2-standard-4", got.MachineType)
	assert.Equal(t, model.StateRunning, got.State)
}

func TestRunningCountIgnoresMetricData(t *testing.T) {
	inventory := []model.InstanceRecord{
		record("a", model.StateRunning),
		record("b", model.StateRunning),
		record("c", model.StateStopped),
		record("d", model.StateOther),
		record("e", model.StateRunning),
	}
	withData := BuildReport("p", inventory, samples("a", 1), samples("c", 1))
	withoutData := BuildReport("p", inventory, nil, nil)

	assert.Equal(t, 3, withData.RunningVMCount)
	assert.Equal(t, 3, withoutData.RunningVMCount)
}

func TestCPUAndMemoryAreIndependent(t *testing.T) {
	inventory := []model.InstanceRecord{record("a", model.StateRunning), record("b", model.StateRunning)}
	cpu := append(samples("a", 20, 40), samples("b", 60)...)

	base := BuildReport("p", inventory, cpu, samples("a", 70))
	changed := BuildReport("p", inventory, cpu, append(samples("a", 10, 20), samples("b", 99)...))

	assert.Equal(t, base.AvgCPUPct, changed.AvgCPUPct)
	for i := range base.PerInstance {
		assert.Equal(t, base.PerInstance[i].AvgCPUPct, changed.PerInstance[i].AvgCPUPct)
	}
	// b contributes to memory only in the second report.
	assert.Equal(t, model.Some(70.0), base.AvgMemPct)
	assert.Equal(t, model.Some(57.0), changed.AvgMemPct)

	memOnly := BuildReport("p", inventory, nil, samples("a", 70))
	assert.Equal(t, base.AvgMemPct, memOnly.AvgMemPct)
	assert.False(t, memOnly.AvgCPUPct.IsPresent())
}

func TestAggregateProjectIsDeterministic(t *testing.T) {
	inventory := []model.InstanceRecord{record("a", model.StateRunning), record("b", model.StateStopped)}
	instances := []model.InstanceAggregate{
		{InstanceID: "a", AvgCPUPct: model.Some(33.3), AvgMemPct: model.Some(12.0)},
		{InstanceID: "b", AvgMemPct: model.Some(48.0)},
	}
	first := AggregateProject("p", instances, inventory)
	for range 5 {
		assert.Equal(t, first, AggregateProject("p", instances, inventory))
	}
	assert.Equal(t, model.Some(33.3), first.AvgCPUPct)
	assert.Equal(t, model.Some(30.0), first.AvgMemPct)
}
