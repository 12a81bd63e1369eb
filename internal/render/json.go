package render

import (
	"fmt"
	"io"

	prettyjson "github.com/hokaccha/go-prettyjson"

	"vm-health-agent/internal/collector"
	"vm-health-agent/internal/model"
)

const (
	statusOK     = "ok"
	statusFailed = "failed"
)

type projectResult struct {
	ProjectID string               `json:"project_id"`
	Status    string               `json:"status"`
	Error     string               `json:"error,omitempty"`
	Report    *model.ProjectReport `json:"report,omitempty"`
}

// JSON prints the cycle as an indented JSON array, one element per project.
type JSON struct {
	formatter *prettyjson.Formatter
}

func NewJSON(noColor bool) *JSON {
	f := prettyjson.NewFormatter()
	f.DisabledColor = noColor
	f.Indent = 2
	return &JSON{formatter: f}
}

func (j *JSON) Render(w io.Writer, results []collector.Result) error {
	out := make([]projectResult, 0, len(results))
	for _, r := range results {
		pr := projectResult{ProjectID: r.ProjectID, Status: statusOK}
		if !r.OK() {
			pr.Status = statusFailed
			pr.Error = r.Err.Error()
		} else {
			report := r.Report
			pr.Report = &report
		}
		out = append(out, pr)
	}

	data, err := j.formatter.Marshal(out)
	if err != nil {
		return fmt.Errorf("marshal results: %w", err)
	}
	if _, err := w.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("write results: %w", err)
	}
	return nil
}
