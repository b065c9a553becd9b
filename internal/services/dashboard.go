package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"golang.org/x/sync/errgroup"

	"sales-insights/internal/engine"
	"sales-insights/internal/models"
	"sales-insights/internal/observability"
)

const (
	TabExecutive = "executive"
	TabTrends    = "trends"
	TabProducts  = "products"
	TabCustomers = "customers"
	TabChannels  = "channels"
	TabAdvanced  = "advanced"
)

var ErrUnknownView = errors.New("unknown view")

// CorrelationFields are the numeric columns of the correlation view, in display order.
var CorrelationFields = []models.Field{
	models.FieldUnitsPurchased,
	models.FieldUnitPrice,
	models.FieldFeedbackScore,
	models.FieldTotalSaleValue,
	models.FieldAge,
}

type DashboardOptions struct {
	MaxConcurrentViews int
	HistogramBins      int
	TopCustomers       int
}

type viewDef struct {
	title   string
	kind    models.ViewKind
	compute func(v engine.View) (models.ViewResult, error)
}

// Dashboard computes the named views of the sales dashboard over filtered slices of a
// single read-only Dataset. It holds no per-request state and is safe for concurrent use.
type Dashboard struct {
	ds     *engine.Dataset
	source string
	opts   DashboardOptions
	views  map[string]viewDef
	tabs   []models.Tab
	logger *slog.Logger
}

func NewDashboard(ds *engine.Dataset, source string, opts DashboardOptions, logger *slog.Logger) *Dashboard {
	if opts.MaxConcurrentViews <= 0 {
		opts.MaxConcurrentViews = 4
	}
	if opts.HistogramBins <= 0 {
		opts.HistogramBins = engine.DefaultHistogramBins
	}
	if opts.TopCustomers <= 0 {
		opts.TopCustomers = 10
	}
	if logger == nil {
		logger = slog.Default()
	}

	d := &Dashboard{
		ds:     ds,
		source: source,
		opts:   opts,
		logger: logger,
	}
	d.views = d.catalogue()
	d.tabs = []models.Tab{
		{Name: TabExecutive, Title: "Executive Summary", Views: []string{"monthly_sales", "sales_by_variant", "sales_by_channel"}},
		{Name: TabTrends, Title: "Sales Trends", Views: []string{"daily_sales", "sales_by_weekday", "units_by_month", "weekday_product_heatmap"}},
		{Name: TabProducts, Title: "Product Insights", Views: []string{"sales_by_variant", "feedback_by_product", "units_by_product_box", "product_channel_sales"}},
		{Name: TabCustomers, Title: "Customer Insights", Views: []string{"sales_by_age_group", "sales_by_gender", "sales_by_location", "feedback_histogram", "sales_by_payment"}},
		{Name: TabChannels, Title: "Channel Analysis", Views: []string{"channel_month_sales", "units_by_channel_box", "avg_sale_by_channel", "channel_payment_sales"}},
		{Name: TabAdvanced, Title: "Advanced Analytics", Views: []string{"correlation", "units_vs_feedback", "value_vs_age", "value_by_payment_box", "top_customers", "unit_price_histogram"}},
	}
	return d
}

func (d *Dashboard) catalogue() map[string]viewDef {
	sales := func(title string, keys ...models.Field) viewDef {
		return aggregateView(title, models.AggregationSpec{
			GroupBy: keys,
			Metric:  models.FieldTotalSaleValue,
			Reducer: models.ReducerSum,
		})
	}

	return map[string]viewDef{
		"monthly_sales":    sales("Monthly Sales Trend", models.FieldPeriod),
		"sales_by_variant": sales("Sales by Product Variant", models.FieldProductVariant),
		"sales_by_channel": sales("Sales Distribution by Channel", models.FieldChannel),

		"daily_sales":      sales("Daily Sales", models.FieldDate),
		"sales_by_weekday": sales("Sales by Day of Week", models.FieldDayOfWeek),
		"units_by_month": aggregateView("Units Sold by Month", models.AggregationSpec{
			GroupBy: []models.Field{models.FieldMonth},
			Metric:  models.FieldUnitsPurchased,
			Reducer: models.ReducerSum,
			Reindex: engine.MonthLabels,
		}),
		"weekday_product_heatmap": sales("Sales by Day and Product", models.FieldDayOfWeek, models.FieldProductVariant),

		"feedback_by_product": aggregateView("Avg Feedback Score by Product", models.AggregationSpec{
			GroupBy: []models.Field{models.FieldProductVariant},
			Metric:  models.FieldFeedbackScore,
			Reducer: models.ReducerMean,
		}),
		"units_by_product_box":  boxView("Units Purchased Distribution by Product", models.FieldProductVariant, models.FieldUnitsPurchased),
		"product_channel_sales": sales("Product Sales by Channel", models.FieldProductVariant, models.FieldChannel),

		"sales_by_age_group": sales("Sales by Age Group", models.FieldAgeBucket),
		"sales_by_gender":    sales("Sales by Gender", models.FieldGender),
		"sales_by_location":  sales("Sales by Location", models.FieldLocation),
		"feedback_histogram": histogramView("Feedback Score Distribution", models.FieldFeedbackScore, d.opts.HistogramBins),
		"sales_by_payment":   sales("Sales by Payment Type", models.FieldPaymentType),

		"channel_month_sales":  sales("Channel-wise Sales by Month", models.FieldChannel, models.FieldMonth),
		"units_by_channel_box": boxView("Units Purchased by Channel", models.FieldChannel, models.FieldUnitsPurchased),
		"avg_sale_by_channel": aggregateView("Avg Sale Value per Transaction by Channel", models.AggregationSpec{
			GroupBy: []models.Field{models.FieldChannel},
			Metric:  models.FieldTotalSaleValue,
			Reducer: models.ReducerMean,
		}),
		"channel_payment_sales": sales("Channel vs Payment Type Sales", models.FieldChannel, models.FieldPaymentType),

		"correlation":          correlationView("Correlation Heatmap", CorrelationFields),
		"units_vs_feedback":    scatterView("Units Purchased vs Feedback Score", models.FieldFeedbackScore, models.FieldUnitsPurchased),
		"value_vs_age":         scatterView("Sale Value vs Age", models.FieldAge, models.FieldTotalSaleValue),
		"value_by_payment_box": boxView("Sale Value Distribution by Payment", models.FieldPaymentType, models.FieldTotalSaleValue),
		"top_customers": aggregateView(fmt.Sprintf("Top %d Customers by Sales", d.opts.TopCustomers), models.AggregationSpec{
			GroupBy:     []models.Field{models.FieldCustomerID},
			Metric:      models.FieldTotalSaleValue,
			Reducer:     models.ReducerSum,
			SortByValue: true,
			Limit:       d.opts.TopCustomers,
		}),
		"unit_price_histogram": histogramView("Distribution of Unit Price", models.FieldUnitPrice, d.opts.HistogramBins),
	}
}

func aggregateView(title string, spec models.AggregationSpec) viewDef {
	return viewDef{title: title, kind: models.KindAggregate, compute: func(v engine.View) (models.ViewResult, error) {
		res, err := engine.Aggregate(v, spec)
		return models.ViewResult{Aggregate: &res}, err
	}}
}

func histogramView(title string, field models.Field, bins int) viewDef {
	return viewDef{title: title, kind: models.KindHistogram, compute: func(v engine.View) (models.ViewResult, error) {
		res, err := engine.Histogram(v, field, bins)
		return models.ViewResult{Histogram: &res}, err
	}}
}

func boxView(title string, groupBy, field models.Field) viewDef {
	return viewDef{title: title, kind: models.KindBox, compute: func(v engine.View) (models.ViewResult, error) {
		res, err := engine.BoxStats(v, groupBy, field)
		return models.ViewResult{Box: &res}, err
	}}
}

func scatterView(title string, x, y models.Field) viewDef {
	return viewDef{title: title, kind: models.KindScatter, compute: func(v engine.View) (models.ViewResult, error) {
		res, err := engine.Scatter(v, x, y)
		return models.ViewResult{Scatter: &res}, err
	}}
}

func correlationView(title string, fields []models.Field) viewDef {
	return viewDef{title: title, kind: models.KindCorrelation, compute: func(v engine.View) (models.ViewResult, error) {
		res, err := engine.Correlation(v, fields)
		return models.ViewResult{Correlation: &res}, err
	}}
}

func (d *Dashboard) Options() models.FilterOptions {
	return d.ds.Options()
}

func (d *Dashboard) DefaultCriteria() models.FilterCriteria {
	return d.ds.DefaultCriteria()
}

func (d *Dashboard) Tabs() []models.Tab {
	out := make([]models.Tab, len(d.tabs))
	copy(out, d.tabs)
	return out
}

func (d *Dashboard) Stats() models.DatasetStats {
	return models.DatasetStats{
		Records: d.ds.Len(),
		Source:  d.source,
		Views:   len(d.views),
		Tabs:    d.Tabs(),
		Options: d.ds.Options(),
	}
}

func (d *Dashboard) Summary(criteria models.FilterCriteria) models.Summary {
	return engine.Summarize(engine.Filter(d.ds, criteria))
}

func (d *Dashboard) View(ctx context.Context, name string, criteria models.FilterCriteria) (models.ViewResult, error) {
	def, ok := d.views[name]
	if !ok {
		return models.ViewResult{}, fmt.Errorf("%w: %q", ErrUnknownView, name)
	}
	if err := ctx.Err(); err != nil {
		return models.ViewResult{}, err
	}
	return d.compute(name, def, engine.Filter(d.ds, criteria))
}

// Aggregate runs an ad-hoc grouping over the filtered rows. Spec errors wrap
// engine.ErrInvalidSpec.
func (d *Dashboard) Aggregate(ctx context.Context, spec models.AggregationSpec, criteria models.FilterCriteria) (models.AggregateResult, error) {
	if err := ctx.Err(); err != nil {
		return models.AggregateResult{}, err
	}
	return engine.Aggregate(engine.Filter(d.ds, criteria), spec)
}

func (d *Dashboard) Tab(ctx context.Context, tab string, criteria models.FilterCriteria) (models.TabResult, error) {
	t, ok := d.findTab(tab)
	if !ok {
		return models.TabResult{}, fmt.Errorf("%w: tab %q", ErrUnknownView, tab)
	}

	start := time.Now()
	view := engine.Filter(d.ds, criteria)
	res, err := d.computeTab(ctx, t, view)
	if err != nil {
		return models.TabResult{}, err
	}
	summary := engine.Summarize(view)
	res.Summary = &summary

	d.logger.DebugContext(ctx, "tab computed",
		"tab", tab,
		"rows", view.Len(),
		"views", len(res.Views),
		"duration", time.Since(start))
	return res, nil
}

// Report computes every tab for one criteria set. The filter runs once and is shared.
func (d *Dashboard) Report(ctx context.Context, criteria models.FilterCriteria) (models.Report, error) {
	start := time.Now()
	view := engine.Filter(d.ds, criteria)
	summary := engine.Summarize(view)

	report := models.Report{
		Criteria: criteria,
		Rows:     view.Len(),
		Summary:  summary,
		Tabs:     make([]models.TabResult, len(d.tabs)),
	}
	for i, t := range d.tabs {
		res, err := d.computeTab(ctx, t, view)
		if err != nil {
			return models.Report{}, err
		}
		if t.Name == TabExecutive {
			res.Summary = &summary
		}
		report.Tabs[i] = res
	}

	d.logger.DebugContext(ctx, "report computed",
		"rows", view.Len(),
		"duration", time.Since(start))
	return report, nil
}

func (d *Dashboard) findTab(name string) (models.Tab, bool) {
	for _, t := range d.tabs {
		if t.Name == name {
			return t, true
		}
	}
	return models.Tab{}, false
}

func (d *Dashboard) computeTab(ctx context.Context, t models.Tab, view engine.View) (res models.TabResult, err error) {
	ctx, span := observability.StartSpan(ctx, "tab "+t.Name)
	span.SetTag("rows", strconv.Itoa(view.Len()))
	defer func() {
		if err != nil {
			span.SetError(err)
		}
		span.End(ctx, d.logger)
	}()

	results := make([]models.ViewResult, len(t.Views))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(d.opts.MaxConcurrentViews)
	for i, name := range t.Views {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			res, err := d.compute(name, d.views[name], view)
			if err != nil {
				return err
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return models.TabResult{}, err
	}

	res = models.TabResult{
		Tab:   t.Name,
		Title: t.Title,
		Rows:  view.Len(),
		Views: results,
	}
	return res, nil
}

func (d *Dashboard) compute(name string, def viewDef, view engine.View) (models.ViewResult, error) {
	res, err := def.compute(view)
	if err != nil {
		return models.ViewResult{}, fmt.Errorf("compute view %s: %w", name, err)
	}
	res.Name = name
	res.Title = def.title
	res.Kind = def.kind
	return res, nil
}
