package model

type FrameType string

const (
	FrameTypeProjectReport FrameType = "project_report"
)

// Envelope is transport-agnostic framing for sink payloads.
type Envelope struct {
	Type          FrameType `json:"type"`
	ProjectID     string    `json:"project_id"`
	TimestampUnix int64     `json:"timestamp_unix"`
	Payload       any       `json:"payload"`
}
