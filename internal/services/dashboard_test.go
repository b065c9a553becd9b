package services

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sales-insights/internal/engine"
	"sales-insights/internal/models"
)

func newTestDashboard(t *testing.T) *Dashboard {
	t.Helper()
	ds, err := NewLoader(writeCSV(t, testCSV), testLogger()).Load(context.Background())
	require.NoError(t, err)
	return NewDashboard(ds, "sales.csv", DashboardOptions{MaxConcurrentViews: 2, TopCustomers: 2}, testLogger())
}

func TestNewDashboard_Defaults(t *testing.T) {
	d := NewDashboard(engine.NewDataset(nil), "", DashboardOptions{}, nil)

	assert.Equal(t, 4, d.opts.MaxConcurrentViews)
	assert.Equal(t, engine.DefaultHistogramBins, d.opts.HistogramBins)
	assert.Equal(t, 10, d.opts.TopCustomers)
	assert.NotNil(t, d.logger)
}

func TestDashboard_CatalogueIsComplete(t *testing.T) {
	d := newTestDashboard(t)

	tabs := d.Tabs()
	require.Len(t, tabs, 6)
	names := make([]string, 0, len(tabs))
	for _, tab := range tabs {
		names = append(names, tab.Name)
		for _, view := range tab.Views {
			_, ok := d.views[view]
			assert.True(t, ok, "tab %s lists unknown view %s", tab.Name, view)
		}
	}
	assert.Equal(t, []string{TabExecutive, TabTrends, TabProducts, TabCustomers, TabChannels, TabAdvanced}, names)

	stats := d.Stats()
	assert.Equal(t, 4, stats.Records)
	assert.Equal(t, "sales.csv", stats.Source)
	assert.Equal(t, len(d.views), stats.Views)
}

func TestDashboard_Summary(t *testing.T) {
	d := newTestDashboard(t)

	s := d.Summary(d.DefaultCriteria())
	assert.Equal(t, 53.0, s.TotalSales)
	assert.Equal(t, 3, s.UniqueCustomers)

	c := d.DefaultCriteria()
	c.Payments = []string{}
	empty := d.Summary(c)
	assert.Equal(t, 0, empty.Transactions)
	assert.Equal(t, "N/A", empty.AvgFeedbackDisplay)
}

func TestDashboard_View(t *testing.T) {
	d := newTestDashboard(t)
	ctx := context.Background()

	tests := []struct {
		name string
		kind models.ViewKind
	}{
		{"sales_by_variant", models.KindAggregate},
		{"units_by_month", models.KindAggregate},
		{"feedback_histogram", models.KindHistogram},
		{"units_by_channel_box", models.KindBox},
		{"value_vs_age", models.KindScatter},
		{"correlation", models.KindCorrelation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := d.View(ctx, tt.name, d.DefaultCriteria())
			require.NoError(t, err)
			assert.Equal(t, tt.name, res.Name)
			assert.Equal(t, tt.kind, res.Kind)
			assert.NotEmpty(t, res.Title)
		})
	}
}

func TestDashboard_TopCustomers(t *testing.T) {
	d := newTestDashboard(t)

	res, err := d.View(context.Background(), "top_customers", d.DefaultCriteria())
	require.NoError(t, err)
	require.NotNil(t, res.Aggregate)
	require.Len(t, res.Aggregate.Rows, 2)
	assert.Equal(t, []string{"9"}, res.Aggregate.Rows[0].Key)
	assert.Equal(t, []string{"11"}, res.Aggregate.Rows[1].Key)
	assert.Equal(t, "Top 2 Customers by Sales", res.Title)
}

func TestDashboard_UnknownView(t *testing.T) {
	d := newTestDashboard(t)
	ctx := context.Background()

	_, err := d.View(ctx, "pie_of_everything", d.DefaultCriteria())
	assert.True(t, errors.Is(err, ErrUnknownView))

	_, err = d.Tab(ctx, "finance", d.DefaultCriteria())
	assert.True(t, errors.Is(err, ErrUnknownView))
}

func TestDashboard_Tab(t *testing.T) {
	d := newTestDashboard(t)

	c := d.DefaultCriteria()
	c.Channels = []string{"Online"}

	res, err := d.Tab(context.Background(), TabExecutive, c)
	require.NoError(t, err)
	assert.Equal(t, "Executive Summary", res.Title)
	assert.Equal(t, 2, res.Rows)
	require.NotNil(t, res.Summary)
	assert.Equal(t, 15.0, res.Summary.TotalSales)

	require.Len(t, res.Views, 3)
	assert.Equal(t, "monthly_sales", res.Views[0].Name)
	assert.Equal(t, "sales_by_variant", res.Views[1].Name)
	assert.Equal(t, "sales_by_channel", res.Views[2].Name)

	trends, err := d.Tab(context.Background(), TabTrends, c)
	require.NoError(t, err)
	require.NotNil(t, trends.Summary, "every tab carries the KPIs of its rows")
	assert.Equal(t, 15.0, trends.Summary.TotalSales)
	assert.Equal(t, 1, trends.Summary.UniqueCustomers)
}

func TestDashboard_Report(t *testing.T) {
	d := newTestDashboard(t)

	report, err := d.Report(context.Background(), d.DefaultCriteria())
	require.NoError(t, err)
	assert.Equal(t, 4, report.Rows)
	assert.Equal(t, 53.0, report.Summary.TotalSales)
	require.Len(t, report.Tabs, 6)

	for i, tab := range d.Tabs() {
		assert.Equal(t, tab.Name, report.Tabs[i].Tab)
		assert.Len(t, report.Tabs[i].Views, len(tab.Views))
	}
	require.NotNil(t, report.Tabs[0].Summary)
	assert.Equal(t, report.Summary, *report.Tabs[0].Summary, "the executive tab repeats the report summary")
	assert.Nil(t, report.Tabs[1].Summary)
}

func TestDashboard_EmptyCriteriaProducesEmptyViews(t *testing.T) {
	d := newTestDashboard(t)
	c := d.DefaultCriteria()
	c.Products = []string{}

	report, err := d.Report(context.Background(), c)
	require.NoError(t, err)
	assert.Equal(t, 0, report.Rows)

	for _, tab := range report.Tabs {
		for _, v := range tab.Views {
			switch v.Kind {
			case models.KindAggregate:
				if v.Name == "units_by_month" {
					assert.Len(t, v.Aggregate.Rows, 12)
					continue
				}
				assert.Empty(t, v.Aggregate.Rows, v.Name)
			case models.KindHistogram:
				assert.Empty(t, v.Histogram.Bins, v.Name)
			case models.KindBox:
				assert.Empty(t, v.Box.Groups, v.Name)
			case models.KindScatter:
				assert.Empty(t, v.Scatter.Points, v.Name)
				assert.Nil(t, v.Scatter.Trendline, v.Name)
			}
		}
	}
}

func TestDashboard_CancelledContext(t *testing.T) {
	d := newTestDashboard(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := d.Tab(ctx, TabAdvanced, d.DefaultCriteria())
	assert.True(t, errors.Is(err, context.Canceled))

	_, err = d.Report(ctx, d.DefaultCriteria())
	assert.True(t, errors.Is(err, context.Canceled))

	_, err = d.View(ctx, "sales_by_gender", d.DefaultCriteria())
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestDashboard_Aggregate(t *testing.T) {
	d := newTestDashboard(t)
	ctx := context.Background()

	res, err := d.Aggregate(ctx, models.AggregationSpec{
		GroupBy: []models.Field{models.FieldLocation},
		Metric:  models.FieldTotalSaleValue,
		Reducer: models.ReducerSum,
	}, d.DefaultCriteria())
	require.NoError(t, err)
	require.Len(t, res.Rows, 3)
	assert.Equal(t, []string{"Delhi"}, res.Rows[0].Key)
	assert.Equal(t, 15.0, res.Rows[0].Value)

	_, err = d.Aggregate(ctx, models.AggregationSpec{
		GroupBy: []models.Field{models.FieldLocation},
		Metric:  models.FieldChannel,
		Reducer: models.ReducerSum,
	}, d.DefaultCriteria())
	assert.ErrorIs(t, err, engine.ErrInvalidSpec)
}
