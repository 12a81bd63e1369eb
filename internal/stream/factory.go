package stream

import (
	"crypto/tls"
	"log/slog"

	"vm-health-agent/internal/config"
)

const defaultReportStreamMethod = "/vmhealth.reports.v1.ReportService/StreamProjectReports"

// NewSinkFromConfig returns the configured report sink, or a NopSink when no
// sink address is set.
func NewSinkFromConfig(cfg config.Config, logger *slog.Logger) Sink {
	if cfg.SinkGRPCAddr == "" {
		return NopSink{}
	}
	method := cfg.SinkMethod
	if method == "" {
		method = defaultReportStreamMethod
	}
	var tlsCfg *tls.Config
	if !cfg.SinkInsecure {
		tlsCfg = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	return NewGRPCClient(cfg.SinkGRPCAddr, tlsCfg, cfg.SinkToken, method, logger.With("component", "report-sink"))
}
