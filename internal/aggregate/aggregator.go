// Package aggregate turns fetched samples and inventory records into project
// reports. It performs no I/O and never fails: callers hand it well-formed,
// possibly empty, input.
package aggregate

import "vm-health-agent/internal/model"

// AggregateInstance returns the uniform mean of the sample values, or absent
// when there are no samples.
func AggregateInstance(samples []model.Sample) model.Optional[float64] {
	if len(samples) == 0 {
		return model.None[float64]()
	}
	var sum float64
	for _, s := range samples {
		sum += s.Value
	}
	return model.Some(sum / float64(len(samples)))
}

// AggregateProject rolls instance aggregates into a project report. CPU and
// memory averages are computed independently over the instances that have a
// value; the running count comes from the inventory alone.
func AggregateProject(projectID string, instances []model.InstanceAggregate, inventory []model.InstanceRecord) model.ProjectReport {
	report := model.ProjectReport{
		ProjectID:      projectID,
		RunningVMCount: countRunning(inventory),
		PerInstance:    make([]model.InstanceAggregate, 0, len(instances)),
	}

	var cpu, mem mean
	for _, inst := range instances {
		if v, ok := inst.AvgCPUPct.Get(); ok {
			cpu.add(v)
		}
		if v, ok := inst.AvgMemPct.Get(); ok {
			mem.add(v)
		}
		report.PerInstance = append(report.PerInstance, inst)
	}
	report.AvgCPUPct = cpu.value()
	report.AvgMemPct = mem.value()
	return report
}

// BuildReport groups samples per instance and produces one aggregate per
// inventory record, in inventory order. Samples whose instance is not in the
// inventory are dropped.
func BuildReport(projectID string, inventory []model.InstanceRecord, cpu, mem []model.Sample) model.ProjectReport {
	cpuByID := groupByInstance(cpu)
	memByID := groupByInstance(mem)

	instances := make([]model.InstanceAggregate, 0, len(inventory))
	for _, rec := range inventory {
		instances = append(instances, model.InstanceAggregate{
			InstanceID:  rec.InstanceID,
			Name:        rec.Name(),
			Zone:        rec.Metadata[model.MetaZone],
			MachineType: rec.Metadata[model.MetaMachineType],
			State:       rec.State,
			AvgCPUPct:   AggregateInstance(cpuByID[rec.InstanceID]),
			AvgMemPct:   AggregateInstance(memByID[rec.InstanceID]),
		})
	}
	return AggregateProject(projectID, instances, inventory)
}

func countRunning(inventory []model.InstanceRecord) int {
	n := 0
	for _, rec := range inventory {
		if rec.Running() {
			n++
		}
	}
	return n
}

func groupByInstance(samples []model.Sample) map[string][]model.Sample {
	out := make(map[string][]model.Sample)
	for _, s := range samples {
		out[s.InstanceID] = append(out[s.InstanceID], s)
	}
	return out
}

type mean struct {
	sum float64
	n   int
}

func (m *mean) add(v float64) {
	m.sum += v
	m.n++
}

func (m mean) value() model.Optional[float64] {
	if m.n == 0 {
		return model.None[float64]()
	}
	return model.Some(m.sum / float64(m.n))
}
