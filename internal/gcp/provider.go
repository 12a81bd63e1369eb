// Package gcp implements the sample fetcher and instance inventory on top of
// Cloud Monitoring and the Compute Engine API.
package gcp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	compute "cloud.google.com/go/compute/apiv1"
	monitoring "cloud.google.com/go/monitoring/apiv3/v2"
	"google.golang.org/api/option"

	"vm-health-agent/internal/fetch"
)

type Options struct {
	// CredentialsFile overrides GOOGLE_APPLICATION_CREDENTIALS when set.
	CredentialsFile string
	FetchTimeout    time.Duration
	Retry           fetch.RetryPolicy
}

// Provider owns one Monitoring and one Compute client, created on first use and
// shared by every project.
type Provider struct {
	opts   Options
	logger *slog.Logger

	mu        sync.Mutex
	metrics   *monitoring.MetricClient
	instances *compute.InstancesClient
}

var _ fetch.Provider = (*Provider)(nil)

func NewProvider(opts Options, logger *slog.Logger) *Provider {
	if opts.FetchTimeout <= 0 {
		opts.FetchTimeout = 30 * time.Second
	}
	return &Provider{opts: opts, logger: logger}
}

func (p *Provider) clientOptions() []option.ClientOption {
	if p.opts.CredentialsFile == "" {
		return nil
	}
	return []option.ClientOption{option.WithCredentialsFile(p.opts.CredentialsFile)}
}

func (p *Provider) metricClient(ctx context.Context) (*monitoring.MetricClient, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.metrics != nil {
		return p.metrics, nil
	}
	c, err := monitoring.NewMetricClient(ctx, p.clientOptions()...)
	if err != nil {
		return nil, fmt.Errorf("monitoring client: %w", err)
	}
	p.metrics = c
	p.logger.Debug("cloud monitoring client ready")
	return c, nil
}

func (p *Provider) instancesClient(ctx context.Context) (*compute.InstancesClient, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.instances != nil {
		return p.instances, nil
	}
	c, err := compute.NewInstancesRESTClient(ctx, p.clientOptions()...)
	if err != nil {
		return nil, fmt.Errorf("compute client: %w", err)
	}
	p.instances = c
	p.logger.Debug("compute instances client ready")
	return c, nil
}

func (p *Provider) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	var errs []error
	if p.metrics != nil {
		errs = append(errs, p.metrics.Close())
		p.metrics = nil
	}
	if p.instances != nil {
		errs = append(errs, p.instances.Close())
		p.instances = nil
	}
	return errors.Join(errs...)
}
