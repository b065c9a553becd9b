package templates

import (
	"strconv"
	"time"

	"github.com/a-h/templ"

	"sales-insights/internal/models"
)

// PageData is everything the page shell needs to draw the filters and tabs. Chart data
// arrives later over SSE.
type PageData struct {
	Title    string
	Records  int
	Options  models.FilterOptions
	Defaults models.FilterCriteria
	Tabs     []models.Tab
}

// filterSignals mirrors the criteria signals read back by the SSE handlers.
type filterSignals struct {
	Start                string   `json:"start"`
	End                  string   `json:"end"`
	Genders              []string `json:"genders"`
	IncludeUnknownGender bool     `json:"include_unknown_gender"`
	Products             []string `json:"products"`
	Locations            []string `json:"locations"`
	Channels             []string `json:"channels"`
	Payments             []string `json:"payments"`
	FeedbackMin          float64  `json:"feedback_min"`
	FeedbackMax          float64  `json:"feedback_max"`
}

func initialSignals(data PageData) (string, error) {
	d := data.Defaults
	return templ.JSONString(map[string]any{
		"activeTab": firstTab(data.Tabs),
		"filters": filterSignals{
			Start:                day(d.Start),
			End:                  day(d.End),
			Genders:              d.Genders,
			IncludeUnknownGender: d.IncludeUnknownGender,
			Products:             d.Products,
			Locations:            d.Locations,
			Channels:             d.Channels,
			Payments:             d.Payments,
			FeedbackMin:          d.FeedbackMin,
			FeedbackMax:          d.FeedbackMax,
		},
		"_charts": map[string]any{},
		"_rows":   data.Records,
	})
}

// selectGroup is one multi-select in the sidebar, bound to a filters signal.
type selectGroup struct {
	Label  string
	Signal string
	Values []string
}

func selectGroups(opts models.FilterOptions) []selectGroup {
	return []selectGroup{
		{"Gender", "filters.genders", opts.Genders},
		{"Product Variant", "filters.products", opts.Products},
		{"Location", "filters.locations", opts.Locations},
		{"Channel", "filters.channels", opts.Channels},
		{"Payment Type", "filters.payments", opts.Payments},
	}
}

func selectSize(n int) string { return strconv.Itoa(min(max(n, 1), 6)) }

func firstTab(tabs []models.Tab) string {
	if len(tabs) == 0 {
		return ""
	}
	return tabs[0].Name
}

func day(t time.Time) string { return t.Format(time.DateOnly) }

func bound(f float64) string { return strconv.FormatFloat(f, 'g', -1, 64) }

// Datastar expressions. Tab names are catalogue constants, never user input.

func loadTab(tab string) string { return "@get('/sse/tabs/" + tab + "')" }

func isActive(tab string) string { return "$activeTab == '" + tab + "'" }

func selectTab(tab string) string { return "$activeTab = '" + tab + "'; " + loadTab(tab) }

func drawTab(tab string) string { return "renderTab('" + tab + "', $_charts." + tab + ")" }

func chartID(tab, view string) string { return "chart-" + tab + "-" + view }
