package gcp

import (
	"context"
	"errors"
	"sort"
	"strconv"
	"strings"

	"cloud.google.com/go/compute/apiv1/computepb"
	"google.golang.org/api/iterator"

	"vm-health-agent/internal/fetch"
	"vm-health-agent/internal/model"
)

// ListInstances walks the aggregated instance list of every zone. Records are
// ordered by zone, then name, so reports are reproducible.
func (p *Provider) ListInstances(ctx context.Context, projectID string) ([]model.InstanceRecord, error) {
	client, err := p.instancesClient(ctx)
	if err != nil {
		return nil, fetch.NewInventoryError(projectID, err)
	}

	var found []*computepb.Instance
	err = p.opts.Retry.Do(ctx, p.opts.FetchTimeout, func(ctx context.Context) error {
		found = found[:0]
		it := client.AggregatedList(ctx, &computepb.AggregatedListInstancesRequest{Project: projectID})
		for {
			pair, err := it.Next()
			if errors.Is(err, iterator.Done) {
				return nil
			}
			if err != nil {
				return err
			}
			found = append(found, pair.Value.GetInstances()...)
		}
	})
	if err != nil {
		return nil, fetch.NewInventoryError(projectID, err)
	}

	out := recordsFromInstances(found)
	p.logger.Debug("listed instances", "project_id", projectID, "instances", len(out))
	return out, nil
}

func recordsFromInstances(instances []*computepb.Instance) []model.InstanceRecord {
	out := make([]model.InstanceRecord, 0, len(instances))
	for _, inst := range instances {
		out = append(out, recordFromInstance(inst))
	}
	sort.SliceStable(out, func(i, j int) bool {
		zi, zj := out[i].Metadata[model.MetaZone], out[j].Metadata[model.MetaZone]
		if zi != zj {
			return zi < zj
		}
		return out[i].Metadata[model.MetaName] < out[j].Metadata[model.MetaName]
	})
	return out
}

func recordFromInstance(inst *computepb.Instance) model.InstanceRecord {
	return model.InstanceRecord{
		InstanceID: strconv.FormatUint(inst.GetId(), 10),
		State:      classifyStatus(inst.GetStatus()),
		Metadata: map[string]string{
			model.MetaName:        inst.GetName(),
			model.MetaZone:        shortName(inst.GetZone()),
			model.MetaMachineType: shortName(inst.GetMachineType()),
			model.MetaStatus:      inst.GetStatus(),
		},
	}
}

// classifyStatus maps Compute Engine lifecycle states. TERMINATED is how the
// API reports a stopped VM.
func classifyStatus(status string) model.InstanceState {
	switch strings.ToUpper(status) {
	case "RUNNING":
		return model.StateRunning
	case "STOPPED", "TERMINATED":
		return model.StateStopped
	default:
		return model.StateOther
	}
}

// shortName returns the last path segment of a resource URL.
func shortName(url string) string {
	if i := strings.LastIndex(url, "/"); i >= 0 {
		return url[i+1:]
	}
	return url
}
