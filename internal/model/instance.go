package model

// InstanceState is the run-state classification of a VM.
type InstanceState string

const (
	StateRunning InstanceState = "RUNNING"
	StateStopped InstanceState = "STOPPED"
	StateOther   InstanceState = "OTHER"
)

// Metadata keys filled by inventories.
const (
	MetaName        = "name"
	MetaZone        = "zone"
	MetaMachineType = "machine_type"
	MetaStatus      = "status"
)

// InstanceRecord is one VM as reported by an inventory.
type InstanceRecord struct {
	InstanceID string            `json:"instance_id"`
	State      InstanceState     `json:"state"`
	Metadata   map[string]string `json:"metadata,omitempty"`
}

func (r InstanceRecord) Running() bool {
	return r.State == StateRunning
}

// Name returns the display name, falling back to the instance id.
func (r InstanceRecord) Name() string {
	if n := r.Metadata[MetaName]; n != "" {
		return n
	}
	return r.InstanceID
}
