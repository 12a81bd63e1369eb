package model

import "time"

// MetricType names a monitored series. The values are Cloud Monitoring metric types;
// other providers map them onto their own counters.
type MetricType string

const (
	MetricCPUUtilization    MetricType = "compute.googleapis.com/instance/cpu/utilization"
	MetricMemoryPercentUsed MetricType = "agent.googleapis.com/memory/percent_used"
)

// DefaultWindow is the trailing interval samples are fetched and averaged over.
const DefaultWindow = 10 * time.Minute

// Sample is one time-series point for one instance, already scaled to percent.
type Sample struct {
	InstanceID string    `json:"instance_id"`
	Timestamp  time.Time `json:"timestamp"`
	Value      float64   `json:"value"`
}
