package gcp

import (
	"testing"
	"time"

	"cloud.google.com/go/compute/apiv1/computepb"
	"cloud.google.com/go/monitoring/apiv3/v2/monitoringpb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genproto/googleapis/api/monitoredres"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/timestamppb"

	"vm-health-agent/internal/model"
)

func point(at time.Time, v float64) *monitoringpb.Point {
	return &monitoringpb.Point{
		Interval: &monitoringpb.TimeInterval{EndTime: timestamppb.New(at)},
		Value:    &monitoringpb.TypedValue{Value: &monitoringpb.TypedValue_DoubleValue{DoubleValue: v}},
	}
}

func series(instanceID string, points ...*monitoringpb.Point) *monitoringpb.TimeSeries {
	return &monitoringpb.TimeSeries{
		Resource: &monitoredres.MonitoredResource{
			Type:   resourceType,
			Labels: map[string]string{"instance_id": instanceID, "zone": "europe-west1-b"},
		},
		Points: points,
	}
}

func TestMetricFilter(t *testing.T) {
	assert.Equal(t,
		`metric.type = "compute.googleapis.com/instance/cpu/utilization" AND resource.type = "gce_instance"`,
		metricFilter(model.MetricCPUUtilization))
	assert.Equal(t,
		`metric.type = "agent.googleapis.com/memory/percent_used" AND resource.type = "gce_instance" AND metric.labels.state = "used"`,
		metricFilter(model.MetricMemoryPercentUsed))
}

func TestListRequest(t *testing.T) {
	end := time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)
	req := listRequest("km-prod", model.MetricCPUUtilization, end.Add(-10*time.Minute), end)

	assert.Equal(t, "projects/km-prod", req.GetName())
	assert.Equal(t, end.Add(-10*time.Minute), req.GetInterval().GetStartTime().AsTime())
	assert.Equal(t, end, req.GetInterval().GetEndTime().AsTime())
	assert.Equal(t, monitoringpb.ListTimeSeriesRequest_FULL, req.GetView())
	assert.Nil(t, req.GetAggregation())
}

func TestSamplesFromSeries(t *testing.T) {
	at := time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)
	in := []*monitoringpb.TimeSeries{
		series("111", point(at, 0.4), point(at.Add(time.Minute), 0.6)),
		series("", point(at, 0.9)),
		series("222"),
		{
			Resource: &monitoredres.MonitoredResource{Labels: map[string]string{"instance_id": "333"}},
			Points: []*monitoringpb.Point{{
				Interval: &monitoringpb.TimeInterval{EndTime: timestamppb.New(at)},
				Value:    &monitoringpb.TypedValue{Value: &monitoringpb.TypedValue_Int64Value{Int64Value: 1}},
			}, {
				Interval: &monitoringpb.TimeInterval{EndTime: timestamppb.New(at)},
				Value:    &monitoringpb.TypedValue{Value: &monitoringpb.TypedValue_StringValue{StringValue: "x"}},
			}},
		},
	}

	got := samplesFromSeries(in, scaleFor(model.MetricCPUUtilization))
	require.Len(t, got, 3)
	assert.Equal(t, "111", got[0].InstanceID)
	assert.InDelta(t, 40.0, got[0].Value, 1e-9)
	assert.Equal(t, at, got[0].Timestamp)
	assert.InDelta(t, 60.0, got[1].Value, 1e-9)
	assert.Equal(t, "333", got[2].InstanceID)
	assert.InDelta(t, 100.0, got[2].Value, 1e-9)

	mem := samplesFromSeries([]*monitoringpb.TimeSeries{series("111", point(at, 37.5))}, scaleFor(model.MetricMemoryPercentUsed))
	require.Len(t, mem, 1)
	assert.InDelta(t, 37.5, mem[0].Value, 1e-9)

	assert.Empty(t, samplesFromSeries(nil, 1))
}

func TestClassifyStatus(t *testing.T) {
	tests := map[string]model.InstanceState{
		"RUNNING":      model.StateRunning,
		"running":      model.StateRunning,
		"STOPPED":      model.StateStopped,
		"TERMINATED":   model.StateStopped,
		"STAGING":      model.StateOther,
		"PROVISIONING": model.StateOther,
		"SUSPENDED":    model.StateOther,
		"":             model.StateOther,
	}
	for in, want := range tests {
		assert.Equal(t, want, classifyStatus(in), in)
	}
}

func TestRecordsFromInstances(t *testing.T) {
	mk := func(id uint64, name, zone, status string) *computepb.Instance {
		return &computepb.Instance{
			Id:          proto.Uint64(id),
			Name:        proto.String(name),
			Zone:        proto.String("https://www.googleapis.com/compute/v1/projects/km-prod/zones/" + zone),
			MachineType: proto.String("https://www.googleapis.com/compute/v1/projects/km-prod/zones/" + zone + "/machineTypes/e2-medium"),
			Status:      proto.String(status),
		}
	}
	got := recordsFromInstances([]*computepb.Instance{
		mk(3, "worker-b", "us-central1-a", "RUNNING"),
		mk(1, "api", "europe-west1-b", "TERMINATED"),
		mk(2, "worker-a", "us-central1-a", "STAGING"),
	})

	require.Len(t, got, 3)
	assert.Equal(t, []string{"1", "2", "3"}, []string{got[0].InstanceID, got[1].InstanceID, got[2].InstanceID})
	assert.Equal(t, model.StateStopped, got[0].State)
	assert.Equal(t, model.StateOther, got[1].State)
	assert.Equal(t, model.StateRunning, got[2].State)
	assert.Equal(t, "us-central1-a", got[2].Metadata[model.MetaZone])
	assert.Equal(t, "e2-medium", got[2].Metadata[model.MetaMachineType])
	assert.Equal(t, "worker-b", got[2].Metadata[model.MetaName])
	assert.Equal(t, "RUNNING", got[2].Metadata[model.MetaStatus])
}

func TestShortName(t *testing.T) {
	assert.Equal(t, "e2-small", shortName("zones/us-east1-b/machineTypes/e2-small"))
	assert.Equal(t, "plain", shortName("plain"))
	assert.Equal(t, "", shortName(""))
}
