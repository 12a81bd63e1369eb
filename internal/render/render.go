package render

import (
	"fmt"
	"io"
	"strings"
	"time"

	"vm-health-agent/internal/collector"
	"vm-health-agent/internal/config"
	"vm-health-agent/internal/model"
)

const notAvailable = "N/A"

// Renderer writes the results of one poll cycle.
type Renderer interface {
	Render(w io.Writer, results []collector.Result) error
}

func New(format string, noColor bool) (Renderer, error) {
	switch strings.ToLower(format) {
	case "", config.OutputText:
		return NewText(noColor), nil
	case config.OutputJSON:
		return NewJSON(noColor), nil
	default:
		return nil, fmt.Errorf("unsupported output format %q", format)
	}
}

// FormatPct renders a percentage with two decimals, or N/A when absent.
func FormatPct(v model.Optional[float64]) string {
	pct, ok := v.Get()
	if !ok {
		return notAvailable
	}
	return fmt.Sprintf("%.2f%%", pct)
}

func windowLabel(d time.Duration) string {
	if d <= 0 {
		d = model.DefaultWindow
	}
	if d%time.Minute == 0 {
		if m := int(d / time.Minute); m != 1 {
			return fmt.Sprintf("%d minutes", m)
		}
		return "1 minute"
	}
	return d.String()
}

func shortDuration(d time.Duration) string {
	if d <= 0 {
		d = model.DefaultWindow
	}
	s := d.String()
	if strings.HasSuffix(s, "m0s") {
		s = s[:len(s)-2]
	}
	if strings.HasSuffix(s, "h0m") {
		s = s[:len(s)-2]
	}
	return s
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
