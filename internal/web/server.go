package web

import (
	"context"
	"errors"
	"fmt"
	"html/template"
	"io"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

const indexTemplateName = "index"

var indexTemplate = template.Must(template.New(indexTemplateName).Parse(`<!DOCTYPE html>
<html>
<head><title>Project Health</title></head>
<body>
<h1>Project Health</h1>
<form method="post" action="/">
  <select name="project_id">
    {{- range .Projects}}
    <option value="{{.}}"{{if eq . $.Selected}} selected{{end}}>{{.}}</option>
    {{- end}}
  </select>
  <button type="submit">Check</button>
</form>
{{- if .Report}}
<pre class="{{if .Failed}}failed{{else}}ok{{end}}">{{.Report}}</pre>
{{- else if .Selected}}
<p>Unknown project {{.Selected}}.</p>
{{- end}}
</body>
</html>
`))

type templateRenderer struct {
	tmpl *template.Template
}

func (r *templateRenderer) Render(w io.Writer, name string, data any, _ echo.Context) error {
	return r.tmpl.ExecuteTemplate(w, name, data)
}

// NewServer wires the handler routes onto a fresh echo instance.
func NewServer(logger *slog.Logger, h *Handler) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Renderer = &templateRenderer{tmpl: indexTemplate}

	e.Use(middleware.Recover())
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod:  true,
		LogURI:     true,
		LogStatus:  true,
		LogLatency: true,
		LogValuesFunc: func(_ echo.Context, v middleware.RequestLoggerValues) error {
			logger.Debug("web request served",
				"method", v.Method,
				"uri", v.URI,
				"status", v.Status,
				"latency", v.Latency)
			return nil
		},
	}))

	e.GET("/", h.Index)
	e.POST("/", h.Index)
	e.GET("/healthz", h.Health)

	api := e.Group("/api")
	api.GET("/projects", h.ListProjects)
	api.GET("/projects/:id", h.GetProject)
	return e
}

// Serve runs e on ln until ctx is done, then shuts it down within timeout.
func Serve(ctx context.Context, logger *slog.Logger, e *echo.Echo, ln net.Listener, timeout time.Duration) error {
	e.Listener = ln
	errCh := make(chan error, 1)
	go func() {
		errCh <- e.Start("")
	}()
	logger.Info("web front-end listening", "addr", ln.Addr().String())

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("serve %s: %w", ln.Addr(), err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown web front-end: %w", err)
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("serve %s: %w", ln.Addr(), err)
	}
	logger.Info("web front-end stopped")
	return nil
}
