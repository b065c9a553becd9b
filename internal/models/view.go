package models

type ViewKind string

const (
	KindAggregate   ViewKind = "aggregate"
	KindHistogram   ViewKind = "histogram"
	KindBox         ViewKind = "box"
	KindScatter     ViewKind = "scatter"
	KindCorrelation ViewKind = "correlation"
)

// ViewResult is one chart-ready table. Exactly one of the payload fields is set,
// matching Kind.
type ViewResult struct {
	Name        string             `json:"name"`
	Title       string             `json:"title"`
	Kind        ViewKind           `json:"kind"`
	Aggregate   *AggregateResult   `json:"aggregate,omitempty"`
	Histogram   *Histogram         `json:"histogram,omitempty"`
	Box         *BoxPlot           `json:"box,omitempty"`
	Scatter     *Scatter           `json:"scatter,omitempty"`
	Correlation *CorrelationMatrix `json:"correlation,omitempty"`
}

type Tab struct {
	Name  string   `json:"name"`
	Title string   `json:"title"`
	Views []string `json:"views"`
}

type TabResult struct {
	Tab     string       `json:"tab"`
	Title   string       `json:"title"`
	Rows    int          `json:"rows"`
	Summary *Summary     `json:"summary,omitempty"`
	Views   []ViewResult `json:"views"`
}

// Report is the whole dashboard computed for one set of criteria.
type Report struct {
	Criteria FilterCriteria `json:"criteria"`
	Rows     int            `json:"rows"`
	Summary  Summary        `json:"summary"`
	Tabs     []TabResult    `json:"tabs"`
}

type DatasetStats struct {
	Records int           `json:"records"`
	Source  string        `json:"source"`
	Views   int           `json:"views"`
	Tabs    []Tab         `json:"tabs"`
	Options FilterOptions `json:"options"`
}
