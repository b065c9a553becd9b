package engine

import (
	"strconv"
	"strings"
	"time"

	"sales-insights/internal/models"
)

const UnknownLabel = "Unknown"

var (
	Weekdays        = []string{"Monday", "Tuesday", "Wednesday", "Thursday", "Friday", "Saturday", "Sunday"}
	MonthLabels     = []string{"Jan", "Feb", "Mar", "Apr", "May", "Jun", "Jul", "Aug", "Sep", "Oct", "Nov", "Dec"}
	AgeBucketLabels = []string{"<18", "18-25", "26-35", "36-45", "46-60", "60+"}
)

// Lower bounds of the right-open age buckets; the last bucket has no upper bound.
var ageBucketFloors = []int{18, 25, 35, 45, 60}

func AgeBucket(age int) string {
	for i, floor := range ageBucketFloors {
		if age < floor {
			return AgeBucketLabels[i]
		}
	}
	return AgeBucketLabels[len(AgeBucketLabels)-1]
}

func DayOfWeek(t time.Time) string { return t.Weekday().String() }

func MonthAbbrev(t time.Time) string { return t.Format("Jan") }

func Period(t time.Time) string { return t.Format("2006-01") }

func isNumeric(f models.Field) bool {
	switch f {
	case models.FieldAge, models.FieldUnitsPurchased, models.FieldUnitPrice,
		models.FieldTotalSaleValue, models.FieldFeedbackScore:
		return true
	}
	return false
}

func isKnown(f models.Field) bool {
	switch f {
	case models.FieldDate, models.FieldCustomerID, models.FieldGender, models.FieldProductVariant,
		models.FieldLocation, models.FieldChannel, models.FieldPaymentType,
		models.FieldDayOfWeek, models.FieldMonth, models.FieldAgeBucket, models.FieldPeriod:
		return true
	}
	return isNumeric(f)
}

func numericValue(r *models.Record, f models.Field) float64 {
	switch f {
	case models.FieldAge:
		return float64(r.Age)
	case models.FieldUnitsPurchased:
		return float64(r.UnitsPurchased)
	case models.FieldUnitPrice:
		return r.UnitPrice
	case models.FieldTotalSaleValue:
		return r.TotalSaleValue
	case models.FieldFeedbackScore:
		return r.FeedbackScore
	}
	return 0
}

// label renders a field of r as a group key, deriving calendar and age keys on the fly.
func label(r *models.Record, f models.Field) string {
	switch f {
	case models.FieldDate:
		return r.Date.Format(time.DateOnly)
	case models.FieldCustomerID:
		return r.CustomerID
	case models.FieldGender:
		if r.Gender == "" {
			return UnknownLabel
		}
		return r.Gender
	case models.FieldProductVariant:
		return r.ProductVariant
	case models.FieldLocation:
		return r.Location
	case models.FieldChannel:
		return r.Channel
	case models.FieldPaymentType:
		return r.PaymentType
	case models.FieldDayOfWeek:
		return DayOfWeek(r.Date)
	case models.FieldMonth:
		return MonthAbbrev(r.Date)
	case models.FieldAgeBucket:
		return AgeBucket(r.Age)
	case models.FieldPeriod:
		return Period(r.Date)
	case models.FieldAge, models.FieldUnitsPurchased:
		return strconv.Itoa(int(numericValue(r, f)))
	}
	return strconv.FormatFloat(numericValue(r, f), 'f', -1, 64)
}

// canonicalOrder reports the fixed label order of naturally ordered keys.
// Chronological keys are ordered by their ISO text; other keys have no canonical order.
func canonicalOrder(f models.Field) (labels []string, chronological bool) {
	switch f {
	case models.FieldDayOfWeek:
		return Weekdays, false
	case models.FieldMonth:
		return MonthLabels, false
	case models.FieldAgeBucket:
		return AgeBucketLabels, false
	case models.FieldDate, models.FieldPeriod:
		return nil, true
	}
	return nil, false
}

func indexOf(labels []string, s string) int {
	for i, l := range labels {
		if strings.EqualFold(l, s) {
			return i
		}
	}
	return len(labels)
}
