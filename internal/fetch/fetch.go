// Package fetch defines the collaborator contracts the poller depends on and
// the error they fail with.
package fetch

import (
	"context"
	"time"

	"vm-health-agent/internal/model"
)

// MetricSampleFetcher returns the raw samples of one metric for every instance
// of a project over the trailing window ending now.
type MetricSampleFetcher interface {
	FetchSamples(ctx context.Context, projectID string, metric model.MetricType, window time.Duration) ([]model.Sample, error)
}

// InstanceInventory lists the VMs of a project.
type InstanceInventory interface {
	ListInstances(ctx context.Context, projectID string) ([]model.InstanceRecord, error)
}

// Provider is a backend implementing both contracts.
type Provider interface {
	MetricSampleFetcher
	InstanceInventory
	Close() error
}
