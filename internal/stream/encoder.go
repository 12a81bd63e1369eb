package stream

import (
	"context"
	"encoding/json"

	"vm-health-agent/internal/model"
)

// Sink receives the reports of every poll cycle.
type Sink interface {
	SendReports(ctx context.Context, reports []model.ProjectReport) error
	Close(ctx context.Context) error
}

func NewReportEnvelope(r model.ProjectReport) model.Envelope {
	return model.Envelope{
		Type:          model.FrameTypeProjectReport,
		ProjectID:     r.ProjectID,
		TimestampUnix: r.CollectedAt.Unix(),
		Payload:       r,
	}
}

func EncodeEnvelope(e model.Envelope) ([]byte, error) {
	return json.Marshal(e)
}

// NopSink discards reports; used when no sink is configured.
type NopSink struct{}

func (NopSink) SendReports(context.Context, []model.ProjectReport) error { return nil }

func (NopSink) Close(context.Context) error { return nil }
