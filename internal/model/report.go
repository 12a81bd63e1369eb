package model

import (
	"encoding/json"
	"time"
)

// InstanceAggregate carries the window averages for one instance.
type InstanceAggregate struct {
	InstanceID  string            `json:"instance_id"`
	Name        string            `json:"name,omitempty"`
	Zone        string            `json:"zone,omitempty"`
	MachineType string            `json:"machine_type,omitempty"`
	State       InstanceState     `json:"state,omitempty"`
	AvgCPUPct   Optional[float64] `json:"avg_cpu_pct"`
	AvgMemPct   Optional[float64] `json:"avg_mem_pct"`
}

// ProjectReport is the per-project result of one poll cycle. Window is encoded
// as window_seconds.
type ProjectReport struct {
	ProjectID      string              `json:"project_id"`
	AvgCPUPct      Optional[float64]   `json:"avg_cpu_pct"`
	AvgMemPct      Optional[float64]   `json:"avg_mem_pct"`
	RunningVMCount int                 `json:"running_vm_count"`
	PerInstance    []InstanceAggregate `json:"per_instance"`
	Warnings       []string            `json:"warnings,omitempty"`
	Window         time.Duration       `json:"-"`
	CollectedAt    time.Time           `json:"collected_at,omitzero"`
}

type reportJSON struct {
	projectReport
	WindowSeconds int64 `json:"window_seconds"`
}

// projectReport drops the JSON methods so reportJSON does not recurse.
type projectReport ProjectReport

func (r ProjectReport) MarshalJSON() ([]byte, error) {
	return json.Marshal(reportJSON{
		projectReport: projectReport(r),
		WindowSeconds: int64(r.Window / time.Second),
	})
}

func (r *ProjectReport) UnmarshalJSON(data []byte) error {
	var aux reportJSON
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	*r = ProjectReport(aux.projectReport)
	r.Window = time.Duration(aux.WindowSeconds) * time.Second
	return nil
}
