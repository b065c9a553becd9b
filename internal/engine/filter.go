package engine

import (
	"time"

	"sales-insights/internal/models"
)

// View is a filtered subset of a Dataset, held as row indices in dataset order.
// The zero View is empty.
type View struct {
	ds   *Dataset
	rows []int
}

func (v View) Len() int { return len(v.rows) }

// Record returns the i-th row of the view. Callers must treat it as read-only.
func (v View) Record(i int) *models.Record {
	return v.ds.Record(v.rows[i])
}

// Rows returns the dataset indices selected by the view.
func (v View) Rows() []int {
	out := make([]int, len(v.rows))
	copy(out, v.rows)
	return out
}

func (v View) Records() []models.Record {
	out := make([]models.Record, len(v.rows))
	for i, row := range v.rows {
		out[i] = v.ds.records[row]
	}
	return out
}

// Filter keeps the rows that satisfy every predicate of c. A categorical set with no
// values matches no rows; values that never occur in the dataset simply match nothing.
func Filter(ds *Dataset, c models.FilterCriteria) View {
	if ds.Len() == 0 {
		return View{ds: ds}
	}

	start, end := Day(c.Start), Day(c.End)
	genders := toSet(c.Genders)
	products := toSet(c.Products)
	locations := toSet(c.Locations)
	channels := toSet(c.Channels)
	payments := toSet(c.Payments)

	rows := make([]int, 0, len(ds.records))
	for i := range ds.records {
		r := &ds.records[i]

		if d := Day(r.Date); d.Before(start) || d.After(end) {
			continue
		}
		if r.Gender == "" {
			if !c.IncludeUnknownGender {
				continue
			}
		} else if !genders[r.Gender] {
			continue
		}
		if !products[r.ProductVariant] || !locations[r.Location] ||
			!channels[r.Channel] || !payments[r.PaymentType] {
			continue
		}
		if r.FeedbackScore < c.FeedbackMin || r.FeedbackScore > c.FeedbackMax {
			continue
		}

		rows = append(rows, i)
	}

	return View{ds: ds, rows: rows}
}

// Day truncates t to midnight UTC of its calendar date.
func Day(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func toSet(items []string) map[string]bool {
	set := make(map[string]bool, len(items))
	for _, item := range items {
		set[item] = true
	}
	return set
}
