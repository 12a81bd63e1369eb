// Package libvirt serves the fetch contracts from libvirt hypervisors. Each
// configured project maps to one connection URI; its domains are the
// instances.
package libvirt

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"vm-health-agent/internal/fetch"
	"vm-health-agent/internal/model"
)

var ErrUnmappedProject = errors.New("no libvirt uri configured for project")

type Options struct {
	URIs          map[string]string
	CPUProbe      time.Duration
	ReconnectWait time.Duration
	MaxJitter     time.Duration
	FetchTimeout  time.Duration
}

type Provider struct {
	opts   Options
	logger *slog.Logger

	mu    sync.Mutex
	conns map[string]*ConnManager
}

var _ fetch.Provider = (*Provider)(nil)

func NewProvider(opts Options, logger *slog.Logger) *Provider {
	if opts.CPUProbe <= 0 {
		opts.CPUProbe = time.Second
	}
	if opts.FetchTimeout <= 0 {
		opts.FetchTimeout = 30 * time.Second
	}
	return &Provider{opts: opts, logger: logger, conns: map[string]*ConnManager{}}
}

func (p *Provider) conn(projectID string) (*ConnManager, string, error) {
	uri, ok := p.opts.URIs[projectID]
	if !ok {
		return nil, "", fmt.Errorf("%w: %s", ErrUnmappedProject, projectID)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	c, ok := p.conns[projectID]
	if !ok {
		c = NewConnManager(uri, p.opts.ReconnectWait, p.opts.MaxJitter, p.logger.With("project_id", projectID))
		p.conns[projectID] = c
	}
	return c, uri, nil
}

// ListInstances reports every defined domain, ordered by name.
func (p *Provider) ListInstances(ctx context.Context, projectID string) ([]model.InstanceRecord, error) {
	ctx, cancel := context.WithTimeout(ctx, p.opts.FetchTimeout)
	defer cancel()

	stats, uri, err := p.readStats(ctx, projectID)
	if err != nil {
		return nil, fetch.NewInventoryError(projectID, err)
	}
	out := make([]model.InstanceRecord, 0, len(stats))
	for _, ds := range stats {
		out = append(out, ds.record(uri))
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Name() < out[j].Name() })
	return out, nil
}

// FetchSamples produces one sample per domain. libvirt keeps no history, so CPU
// is measured across a probe interval bounded by the window, and memory is the
// guest-reported usage at call time.
func (p *Provider) FetchSamples(ctx context.Context, projectID string, metric model.MetricType, window time.Duration) ([]model.Sample, error) {
	if window <= 0 {
		window = model.DefaultWindow
	}
	ctx, cancel := context.WithTimeout(ctx, p.opts.FetchTimeout)
	defer cancel()

	var (
		out []model.Sample
		err error
	)
	switch metric {
	case model.MetricCPUUtilization:
		out, err = p.cpuSamples(ctx, projectID, min(p.opts.CPUProbe, window))
	case model.MetricMemoryPercentUsed:
		out, err = p.memorySamples(ctx, projectID)
	default:
		err = fmt.Errorf("unsupported metric type %q", metric)
	}
	if err != nil {
		return nil, fetch.NewSamplesError(projectID, metric, err)
	}
	return out, nil
}

func (p *Provider) cpuSamples(ctx context.Context, projectID string, probe time.Duration) ([]model.Sample, error) {
	first, _, err := p.readStats(ctx, projectID)
	if err != nil {
		return nil, err
	}
	start := time.Now()

	t := time.NewTimer(probe)
	select {
	case <-ctx.Done():
		t.Stop()
		return nil, ctx.Err()
	case <-t.C:
	}

	second, _, err := p.readStats(ctx, projectID)
	if err != nil {
		return nil, err
	}
	now := time.Now()
	elapsed := now.Sub(start).Seconds()

	prev := make(map[string]uint64, len(first))
	for _, ds := range first {
		if classifyDomainState(ds.state) == model.StateRunning {
			prev[ds.id] = ds.fields[fieldCPUTime]
		}
	}
	out := make([]model.Sample, 0, len(second))
	for _, ds := range second {
		before, ok := prev[ds.id]
		if !ok || classifyDomainState(ds.state) != model.StateRunning {
			continue
		}
		if pct, ok := cpuPct(before, ds.fields[fieldCPUTime], elapsed, ds.vcpus()); ok {
			out = append(out, model.Sample{InstanceID: ds.id, Timestamp: now.UTC(), Value: pct})
		}
	}
	return out, nil
}

func (p *Provider) memorySamples(ctx context.Context, projectID string) ([]model.Sample, error) {
	stats, _, err := p.readStats(ctx, projectID)
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	out := make([]model.Sample, 0, len(stats))
	for _, ds := range stats {
		if pct, ok := ds.memoryUsedPct(); ok {
			out = append(out, model.Sample{InstanceID: ds.id, Timestamp: now, Value: pct})
		}
	}
	return out, nil
}

func (p *Provider) readStats(ctx context.Context, projectID string) ([]domainStats, string, error) {
	cm, uri, err := p.conn(projectID)
	if err != nil {
		return nil, "", err
	}
	client, err := cm.Client(ctx)
	if err != nil {
		return nil, uri, err
	}

	doms, _, err := client.ConnectListAllDomains(1, 0)
	if err != nil {
		return nil, uri, fmt.Errorf("ConnectListAllDomains: %w", err)
	}
	if len(doms) == 0 {
		return []domainStats{}, uri, nil
	}
	records, err := client.ConnectGetAllDomainStats(doms, statsMask, 0)
	if err != nil {
		return nil, uri, fmt.Errorf("ConnectGetAllDomainStats: %w", err)
	}
	out := make([]domainStats, 0, len(records))
	for _, rec := range records {
		out = append(out, parseRecord(rec))
	}
	return out, uri, nil
}

func (p *Provider) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	var errs []error
	for id, c := range p.conns {
		if err := c.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s: %w", id, err))
		}
		delete(p.conns, id)
	}
	return errors.Join(errs...)
}
