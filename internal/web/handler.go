package web

import (
	"bytes"
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"vm-health-agent/internal/collector"
	"vm-health-agent/internal/render"
)

// Poller runs one poll cycle over projects, keeping their order.
type Poller interface {
	PollOnce(ctx context.Context, projects []string) []collector.Result
}

// Status reports the agent health shown on /healthz.
type Status interface {
	Healthy() bool
	Snapshot() map[string]any
}

// Handler serves the project picker page and the report API.
type Handler struct {
	logger   *slog.Logger
	poller   Poller
	status   Status
	projects []string
	text     render.Renderer
	json     render.Renderer
}

func NewHandler(logger *slog.Logger, poller Poller, status Status, projects []string) *Handler {
	return &Handler{
		logger:   logger,
		poller:   poller,
		status:   status,
		projects: append([]string(nil), projects...),
		text:     render.NewText(true),
		json:     render.NewJSON(true),
	}
}

type indexPage struct {
	Projects []string
	Selected string
	Report   string
	Failed   bool
}

// Index renders the picker and, when a project is chosen, its text report.
// GET|POST /
func (h *Handler) Index(c echo.Context) error {
	page := indexPage{Projects: h.projects, Selected: strings.TrimSpace(c.FormValue("project_id"))}
	if page.Selected == "" {
		return c.Render(http.StatusOK, indexTemplateName, page)
	}
	if !h.known(page.Selected) {
		return c.Render(http.StatusNotFound, indexTemplateName, page)
	}

	result := h.poll(c.Request().Context(), page.Selected)
	var buf bytes.Buffer
	if err := h.text.Render(&buf, []collector.Result{result}); err != nil {
		h.logger.Error("render project report failed", "project_id", page.Selected, "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "render failed")
	}
	page.Report = strings.TrimLeft(buf.String(), "\n")
	page.Failed = !result.OK()
	return c.Render(http.StatusOK, indexTemplateName, page)
}

// ListProjects returns the project ids the picker offers.
// GET /api/projects
func (h *Handler) ListProjects(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]any{
		"projects": h.projects,
	})
}

// GetProject polls one project and returns the JSON report.
// GET /api/projects/:id
func (h *Handler) GetProject(c echo.Context) error {
	projectID := strings.TrimSpace(c.Param("id"))
	if projectID == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{
			"error": "project id is required",
		})
	}
	if !h.known(projectID) {
		return c.JSON(http.StatusNotFound, map[string]string{
			"error": "project is not configured",
		})
	}

	result := h.poll(c.Request().Context(), projectID)
	var buf bytes.Buffer
	if err := h.json.Render(&buf, []collector.Result{result}); err != nil {
		h.logger.Error("render project report failed", "project_id", projectID, "error", err)
		return c.JSON(http.StatusInternalServerError, map[string]string{
			"error": "render failed",
		})
	}
	status := http.StatusOK
	if !result.OK() {
		status = http.StatusBadGateway
	}
	return c.Blob(status, echo.MIMEApplicationJSON, buf.Bytes())
}

// Health returns the agent health snapshot. The server answering is the
// liveness signal; "healthy" reflects the latest poll.
// GET /healthz
func (h *Handler) Health(c echo.Context) error {
	snap := h.status.Snapshot()
	snap["healthy"] = h.status.Healthy()
	return c.JSON(http.StatusOK, snap)
}

func (h *Handler) poll(ctx context.Context, projectID string) collector.Result {
	return h.poller.PollOnce(ctx, []string{projectID})[0]
}

func (h *Handler) known(projectID string) bool {
	for _, p := range h.projects {
		if p == projectID {
			return true
		}
	}
	return false
}
