package handlers

import (
	stderrors "errors"
	"html/template"
	"log/slog"
	"net/http"
	"strings"

	"github.com/starfederation/datastar-go/datastar"

	"sales-insights/internal/errors"
	"sales-insights/internal/models"
	"sales-insights/internal/services"
)

var kpiTemplate = template.Must(template.New("kpiCards").Parse(`
<div id="kpi-cards" class="kpi-row">
<div class="kpi-card"><span class="kpi-label">Total Sales</span><strong class="kpi-value">{{.TotalSalesDisplay}}</strong></div>
<div class="kpi-card"><span class="kpi-label">Units Sold</span><strong class="kpi-value">{{.TotalUnitsDisplay}}</strong></div>
<div class="kpi-card"><span class="kpi-label">Unique Customers</span><strong class="kpi-value">{{.UniqueCustomers}}</strong></div>
<div class="kpi-card"><span class="kpi-label">Avg Feedback</span><strong class="kpi-value">{{.AvgFeedbackDisplay}}</strong></div>
</div>`))

var statusTemplate = template.Must(template.New("status").Parse(
	`<div id="filter-status" class="filter-status{{if .Error}} error{{end}}">{{if .Error}}{{.Error}}{{else}}{{.Rows}} of {{.Total}} transactions{{end}}</div>`))

// dashboardSignals is the subset of client signals the server reads. Chart data lives
// under underscore-prefixed signals, which the client never sends back.
type dashboardSignals struct {
	Filters *CriteriaRequest `json:"filters"`
}

type statusData struct {
	Rows  int
	Total int
	Error string
}

type SSEHandlers struct {
	dashboard *services.Dashboard
	logger    *slog.Logger
}

func NewSSEHandlers(dashboard *services.Dashboard, logger *slog.Logger) *SSEHandlers {
	return &SSEHandlers{
		dashboard: dashboard,
		logger:    logger,
	}
}

func renderHTML(tmpl *template.Template, data any) (string, error) {
	var buf strings.Builder
	err := tmpl.Execute(&buf, data)
	return buf.String(), err
}

func (h *SSEHandlers) criteria(r *http.Request) (models.FilterCriteria, error) {
	var signals dashboardSignals
	if err := datastar.ReadSignals(r, &signals); err != nil {
		return models.FilterCriteria{}, errors.BadRequestWrap(err, "Invalid signals")
	}
	if signals.Filters == nil {
		return h.dashboard.DefaultCriteria(), nil
	}
	return signals.Filters.Apply(h.dashboard.DefaultCriteria())
}

// HandleTab streams the KPI cards and one tab's chart data for the current filters.
func (h *SSEHandlers) HandleTab(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tab := r.PathValue("tab")

	criteria, err := h.criteria(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	res, err := h.dashboard.Tab(ctx, tab, criteria)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	sse := datastar.NewSSE(w, r)

	if err := h.patchKPIs(sse, *res.Summary, res.Rows); err != nil {
		h.logger.ErrorContext(ctx, "patch kpi cards", "tab", tab, "error", err)
		return
	}

	signals, err := json.Marshal(map[string]any{
		"_charts": map[string]any{tab: res.Views},
		"_rows":   res.Rows,
	})
	if err != nil {
		h.logger.ErrorContext(ctx, "marshal tab signals", "tab", tab, "error", err)
		return
	}
	if err := sse.PatchSignals(signals); err != nil {
		h.logger.DebugContext(ctx, "patch tab signals", "tab", tab, "error", err)
	}
}

// HandleRefreshAll streams the KPI cards and chart data for every tab.
func (h *SSEHandlers) HandleRefreshAll(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	criteria, err := h.criteria(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	report, err := h.dashboard.Report(ctx, criteria)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	sse := datastar.NewSSE(w, r)

	if err := h.patchKPIs(sse, report.Summary, report.Rows); err != nil {
		h.logger.ErrorContext(ctx, "patch kpi cards", "error", err)
		return
	}

	charts := make(map[string]any, len(report.Tabs))
	for _, t := range report.Tabs {
		charts[t.Tab] = t.Views
	}
	signals, err := json.Marshal(map[string]any{
		"_charts": charts,
		"_rows":   report.Rows,
	})
	if err != nil {
		h.logger.ErrorContext(ctx, "marshal all signals data", "error", err)
		return
	}
	if err := sse.PatchSignals(signals); err != nil {
		h.logger.DebugContext(ctx, "patch all signals", "error", err)
	}
}

func (h *SSEHandlers) patchKPIs(sse *datastar.ServerSentEventGenerator, summary models.Summary, rows int) error {
	cards, err := renderHTML(kpiTemplate, summary)
	if err != nil {
		return err
	}
	status, err := renderHTML(statusTemplate, statusData{Rows: rows, Total: h.dashboard.Stats().Records})
	if err != nil {
		return err
	}
	if err := sse.PatchElements(cards); err != nil {
		return err
	}
	return sse.PatchElements(status)
}

// fail reports err inside the page's status line when the request came from the
// dashboard, and as the JSON error envelope otherwise.
func (h *SSEHandlers) fail(w http.ResponseWriter, r *http.Request, err error) {
	if r.Header.Get("Datastar-Request") != "true" {
		writeError(w, r, h.logger, err)
		return
	}

	var appErr *errors.AppError
	var fe *fieldError
	message := "Could not compute the dashboard"
	switch {
	case stderrors.As(err, &appErr):
		message = appErr.Message
	case stderrors.As(err, &fe):
		message = "Invalid filter: " + fe.Error()
	case stderrors.Is(err, services.ErrUnknownView):
		message = "Unknown tab"
	}

	h.logger.WarnContext(r.Context(), "dashboard update failed", "path", r.URL.Path, "error", err)
	html, renderErr := renderHTML(statusTemplate, statusData{Error: message})
	if renderErr != nil {
		h.logger.ErrorContext(r.Context(), "render status", "error", renderErr)
		return
	}
	sse := datastar.NewSSE(w, r)
	if err := sse.PatchElements(html); err != nil {
		h.logger.DebugContext(r.Context(), "patch status", "error", err)
	}
}
