package handlers

import (
	"context"
	stderrors "errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	jsoniter "github.com/json-iterator/go"

	"sales-insights/internal/engine"
	"sales-insights/internal/errors"
	"sales-insights/internal/models"
	"sales-insights/internal/observability"
	"sales-insights/internal/services"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const maxBodyBytes = 1 << 20

const version = "1.0.0"

type APIHandlers struct {
	dashboard *services.Dashboard
	logger    *slog.Logger
}

func NewAPIHandlers(dashboard *services.Dashboard, logger *slog.Logger) *APIHandlers {
	return &APIHandlers{
		dashboard: dashboard,
		logger:    logger,
	}
}

// AggregateRequest is the body of POST /api/aggregate.
type AggregateRequest struct {
	Criteria CriteriaRequest        `json:"criteria"`
	Spec     models.AggregationSpec `json:"spec"`
}

// Filtered responses depend on the query, so they are cacheable only per URL.
var filteredHeaders = map[string]string{
	"Cache-Control": "private, max-age=60",
}

func (h *APIHandlers) HandleHealth(w http.ResponseWriter, r *http.Request) {
	healthData := map[string]string{
		"status":    "healthy",
		"timestamp": time.Now().Format(time.RFC3339),
		"version":   version,
	}

	errors.WriteSuccess(w, healthData)
}

func (h *APIHandlers) HandleStats(w http.ResponseWriter, r *http.Request) {
	errors.WriteSuccess(w, h.dashboard.Stats())
}

func (h *APIHandlers) HandleFilters(w http.ResponseWriter, r *http.Request) {
	data := map[string]any{
		"options":  h.dashboard.Options(),
		"defaults": h.dashboard.DefaultCriteria(),
		"tabs":     h.dashboard.Tabs(),
	}

	headers := map[string]string{
		"Cache-Control": "public, max-age=300",
	}

	errors.WriteSuccessWithHeaders(w, data, headers)
}

func (h *APIHandlers) HandleSummary(w http.ResponseWriter, r *http.Request) {
	criteria, err := CriteriaFromQuery(r.URL.Query(), h.dashboard.DefaultCriteria())
	if err != nil {
		h.fail(w, r, err)
		return
	}

	errors.WriteSuccessWithHeaders(w, h.dashboard.Summary(criteria), filteredHeaders)
}

func (h *APIHandlers) HandleView(w http.ResponseWriter, r *http.Request) {
	criteria, err := CriteriaFromQuery(r.URL.Query(), h.dashboard.DefaultCriteria())
	if err != nil {
		h.fail(w, r, err)
		return
	}

	res, err := h.dashboard.View(r.Context(), r.PathValue("name"), criteria)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	errors.WriteSuccessWithHeaders(w, res, filteredHeaders)
}

func (h *APIHandlers) HandleTab(w http.ResponseWriter, r *http.Request) {
	criteria, err := CriteriaFromQuery(r.URL.Query(), h.dashboard.DefaultCriteria())
	if err != nil {
		h.fail(w, r, err)
		return
	}

	res, err := h.dashboard.Tab(r.Context(), r.PathValue("tab"), criteria)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	errors.WriteSuccessWithHeaders(w, res, filteredHeaders)
}

func (h *APIHandlers) HandleReport(w http.ResponseWriter, r *http.Request) {
	var req CriteriaRequest
	if err := decodeBody(w, r, &req); err != nil {
		h.fail(w, r, err)
		return
	}

	criteria, err := req.Apply(h.dashboard.DefaultCriteria())
	if err != nil {
		h.fail(w, r, err)
		return
	}

	report, err := h.dashboard.Report(r.Context(), criteria)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	errors.WriteSuccess(w, report)
}

func (h *APIHandlers) HandleAggregate(w http.ResponseWriter, r *http.Request) {
	var req AggregateRequest
	if err := decodeBody(w, r, &req); err != nil {
		h.fail(w, r, err)
		return
	}

	criteria, err := req.Criteria.Apply(h.dashboard.DefaultCriteria())
	if err != nil {
		h.fail(w, r, err)
		return
	}

	res, err := h.dashboard.Aggregate(r.Context(), req.Spec, criteria)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	errors.WriteSuccess(w, res)
}

// decodeBody reads a JSON body into v. An empty body leaves v untouched.
func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil && !stderrors.Is(err, io.EOF) {
		return errors.BadRequestWrap(err, "Invalid JSON body").WithDetails(err.Error())
	}
	return nil
}

// fail maps domain errors onto the error envelope.
func (h *APIHandlers) fail(w http.ResponseWriter, r *http.Request, err error) {
	writeError(w, r, h.logger, err)
}

// errorRules classifies domain failures for the error envelope.
var errorRules = []errors.Rule{
	{Match: isFieldError, Code: errors.CodeValidation, Message: "Invalid filter criteria"},
	{Match: errors.Is(engine.ErrInvalidSpec), Code: errors.CodeValidation, Message: "Invalid aggregation"},
	{Match: errors.Is(services.ErrUnknownView), Code: errors.CodeNotFound, Message: "Unknown view"},
}

func isFieldError(err error) bool {
	var fe *fieldError
	return stderrors.As(err, &fe)
}

func writeError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error) {
	ctx := r.Context()
	if stderrors.Is(err, context.Canceled) {
		logger.DebugContext(ctx, "client went away", "path", r.URL.Path)
		return
	}
	errors.WriteError(w, logger, err, observability.GetRequestID(ctx), errorRules...)
}
