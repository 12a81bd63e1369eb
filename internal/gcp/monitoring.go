package gcp

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/monitoring/apiv3/v2/monitoringpb"
	"google.golang.org/api/iterator"
	"google.golang.org/protobuf/types/known/timestamppb"

	"vm-health-agent/internal/fetch"
	"vm-health-agent/internal/model"
)

const resourceType = "gce_instance"

// FetchSamples lists the raw points of one metric for every gce_instance of the
// project over [now-window, now].
func (p *Provider) FetchSamples(ctx context.Context, projectID string, metric model.MetricType, window time.Duration) ([]model.Sample, error) {
	if window <= 0 {
		window = model.DefaultWindow
	}
	client, err := p.metricClient(ctx)
	if err != nil {
		return nil, fetch.NewSamplesError(projectID, metric, err)
	}

	end := time.Now().UTC()
	req := listRequest(projectID, metric, end.Add(-window), end)

	var series []*monitoringpb.TimeSeries
	err = p.opts.Retry.Do(ctx, p.opts.FetchTimeout, func(ctx context.Context) error {
		series = series[:0]
		it := client.ListTimeSeries(ctx, req)
		for {
			ts, err := it.Next()
			if errors.Is(err, iterator.Done) {
				return nil
			}
			if err != nil {
				return err
			}
			series = append(series, ts)
		}
	})
	if err != nil {
		return nil, fetch.NewSamplesError(projectID, metric, err)
	}

	out := samplesFromSeries(series, scaleFor(metric))
	p.logger.Debug("fetched time series",
		"project_id", projectID, "metric_type", metric, "series", len(series), "samples", len(out))
	return out, nil
}

func listRequest(projectID string, metric model.MetricType, start, end time.Time) *monitoringpb.ListTimeSeriesRequest {
	return &monitoringpb.ListTimeSeriesRequest{
		Name:   "projects/" + projectID,
		Filter: metricFilter(metric),
		Interval: &monitoringpb.TimeInterval{
			StartTime: timestamppb.New(start),
			EndTime:   timestamppb.New(end),
		},
		View: monitoringpb.ListTimeSeriesRequest_FULL,
	}
}

func metricFilter(metric model.MetricType) string {
	f := fmt.Sprintf(`metric.type = %q AND resource.type = %q`, string(metric), resourceType)
	if metric == model.MetricMemoryPercentUsed {
		f += ` AND metric.labels.state = "used"`
	}
	return f
}

// scaleFor converts a metric's native unit to percent. CPU utilization is a
// 0..1 ratio; the agent memory metric is already a percentage.
func scaleFor(metric model.MetricType) float64 {
	if metric == model.MetricCPUUtilization {
		return 100
	}
	return 1
}

func samplesFromSeries(series []*monitoringpb.TimeSeries, scale float64) []model.Sample {
	out := make([]model.Sample, 0)
	for _, ts := range series {
		id := ts.GetResource().GetLabels()["instance_id"]
		if id == "" {
			continue
		}
		for _, pt := range ts.GetPoints() {
			v, ok := pointValue(pt.GetValue())
			if !ok {
				continue
			}
			out = append(out, model.Sample{
				InstanceID: id,
				Timestamp:  pt.GetInterval().GetEndTime().AsTime(),
				Value:      v * scale,
			})
		}
	}
	return out
}

func pointValue(v *monitoringpb.TypedValue) (float64, bool) {
	switch tv := v.GetValue().(type) {
	case *monitoringpb.TypedValue_DoubleValue:
		return tv.DoubleValue, true
	case *monitoringpb.TypedValue_Int64Value:
		return float64(tv.Int64Value), true
	default:
		return 0, false
	}
}
