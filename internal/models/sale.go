package models

import "time"

// Record is one sale transaction. An empty Gender means the value was absent in the source.
type Record struct {
	Date           time.Time `json:"date"`
	CustomerID     string    `json:"customer_id"`
	Gender         string    `json:"gender"`
	Age            int       `json:"age"`
	ProductVariant string    `json:"product_variant"`
	Location       string    `json:"location"`
	Channel        string    `json:"channel"`
	PaymentType    string    `json:"payment_type"`
	UnitsPurchased int       `json:"units_purchased"`
	UnitPrice      float64   `json:"unit_price"`
	TotalSaleValue float64   `json:"total_sale_value"`
	FeedbackScore  float64   `json:"feedback_score"`
}

type Field string

const (
	FieldDate           Field = "date"
	FieldCustomerID     Field = "customer_id"
	FieldGender         Field = "gender"
	FieldAge            Field = "age"
	FieldProductVariant Field = "product_variant"
	FieldLocation       Field = "location"
	FieldChannel        Field = "channel"
	FieldPaymentType    Field = "payment_type"
	FieldUnitsPurchased Field = "units_purchased"
	FieldUnitPrice      Field = "unit_price"
	FieldTotalSaleValue Field = "total_sale_value"
	FieldFeedbackScore  Field = "feedback_score"

	// Derived keys, computed from Date or Age while grouping.
	FieldDayOfWeek Field = "day_of_week"
	FieldMonth     Field = "month"
	FieldAgeBucket Field = "age_bucket"
	FieldPeriod    Field = "period"
)

type Reducer string

const (
	ReducerSum           Reducer = "sum"
	ReducerMean          Reducer = "mean"
	ReducerCount         Reducer = "count"
	ReducerCountDistinct Reducer = "count_distinct"
)

// FilterCriteria selects the rows every view is computed over. Ranges are inclusive and
// an empty categorical set matches nothing.
type FilterCriteria struct {
	Start                time.Time `json:"start"`
	End                  time.Time `json:"end"`
	Genders              []string  `json:"genders"`
	IncludeUnknownGender bool      `json:"include_unknown_gender"`
	Products             []string  `json:"products"`
	Locations            []string  `json:"locations"`
	Channels             []string  `json:"channels"`
	Payments             []string  `json:"payments"`
	FeedbackMin          float64   `json:"feedback_min"`
	FeedbackMax          float64   `json:"feedback_max"`
}

type AggregationSpec struct {
	GroupBy     []Field  `json:"group_by"`
	Metric      Field    `json:"metric"`
	Reducer     Reducer  `json:"reducer"`
	Reindex     []string `json:"reindex,omitempty"`
	SortByValue bool     `json:"sort_by_value,omitempty"`
	Limit       int      `json:"limit,omitempty"`
}

type AggregateRow struct {
	Key   []string `json:"key"`
	Value float64  `json:"value"`
	Count int      `json:"count"`
}

type AggregateResult struct {
	Keys   []Field        `json:"keys"`
	Metric Field          `json:"metric"`
	Rows   []AggregateRow `json:"rows"`
}

type Summary struct {
	TotalSales         float64  `json:"total_sales"`
	TotalSalesDisplay  string   `json:"total_sales_display"`
	TotalUnits         int      `json:"total_units"`
	TotalUnitsDisplay  string   `json:"total_units_display"`
	UniqueCustomers    int      `json:"unique_customers"`
	AvgFeedback        *float64 `json:"avg_feedback"`
	AvgFeedbackDisplay string   `json:"avg_feedback_display"`
	Transactions       int      `json:"transactions"`
}

type HistogramBin struct {
	Lower float64 `json:"lower"`
	Upper float64 `json:"upper"`
	Count int     `json:"count"`
}

type Histogram struct {
	Field Field          `json:"field"`
	Bins  []HistogramBin `json:"bins"`
}

type BoxGroup struct {
	Key    string  `json:"key"`
	Count  int     `json:"count"`
	Min    float64 `json:"min"`
	Q1     float64 `json:"q1"`
	Median float64 `json:"median"`
	Q3     float64 `json:"q3"`
	Max    float64 `json:"max"`
	Mean   float64 `json:"mean"`
}

type BoxPlot struct {
	GroupBy Field      `json:"group_by"`
	Field   Field      `json:"field"`
	Groups  []BoxGroup `json:"groups"`
}

type ScatterPoint struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

type Trendline struct {
	Intercept float64  `json:"intercept"`
	Slope     float64  `json:"slope"`
	RSquared  *float64 `json:"r_squared"`
}

type Scatter struct {
	X         Field          `json:"x"`
	Y         Field          `json:"y"`
	Points    []ScatterPoint `json:"points"`
	Trendline *Trendline     `json:"trendline"`
}

// CorrelationMatrix cells are nil where the coefficient is undefined.
type CorrelationMatrix struct {
	Fields []Field      `json:"fields"`
	Values [][]*float64 `json:"values"`
}

// FilterOptions lists what the dataset actually contains, in first-appearance order.
type FilterOptions struct {
	MinDate          time.Time `json:"min_date"`
	MaxDate          time.Time `json:"max_date"`
	Genders          []string  `json:"genders"`
	HasUnknownGender bool      `json:"has_unknown_gender"`
	Products         []string  `json:"products"`
	Locations        []string  `json:"locations"`
	Channels         []string  `json:"channels"`
	Payments         []string  `json:"payments"`
	FeedbackMin      float64   `json:"feedback_min"`
	FeedbackMax      float64   `json:"feedback_max"`
}
