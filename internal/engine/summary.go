package engine

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"sales-insights/internal/models"
)

const notAvailable = "N/A"

// Summarize computes the headline figures of a view. Sales are summed as decimals so the
// total does not drift with row order; the average feedback is nil for an empty view.
func Summarize(v View) models.Summary {
	total := decimal.Zero
	units := 0
	var feedback float64

	for i := 0; i < v.Len(); i++ {
		r := v.Record(i)
		total = total.Add(decimal.NewFromFloat(r.TotalSaleValue))
		units += r.UnitsPurchased
		feedback += r.FeedbackScore
	}

	p := message.NewPrinter(language.English)
	s := models.Summary{
		TotalSales:         total.Round(2).InexactFloat64(),
		TotalSalesDisplay:  formatMoney(p, total),
		TotalUnits:         units,
		TotalUnitsDisplay:  p.Sprintf("%d", units),
		UniqueCustomers:    CountDistinct(v, models.FieldCustomerID),
		AvgFeedbackDisplay: notAvailable,
		Transactions:       v.Len(),
	}
	if v.Len() > 0 {
		avg := feedback / float64(v.Len())
		s.AvgFeedback = &avg
		s.AvgFeedbackDisplay = fmt.Sprintf("%.2f", avg)
	}
	return s
}

// CountDistinct counts the distinct values of field across the view.
func CountDistinct(v View, field models.Field) int {
	seen := make(map[string]struct{})
	for i := 0; i < v.Len(); i++ {
		seen[label(v.Record(i), field)] = struct{}{}
	}
	return len(seen)
}

// formatMoney renders d as dollars with two decimals and thousands separators. The
// digits come from the exact decimal, only the grouping goes through p.
func formatMoney(p *message.Printer, d decimal.Decimal) string {
	d = d.Round(2)
	whole, cents, _ := strings.Cut(d.Abs().StringFixed(2), ".")
	if n, err := strconv.ParseInt(whole, 10, 64); err == nil {
		whole = p.Sprintf("%d", n)
	}
	sign := ""
	if d.Sign() < 0 {
		sign = "-"
	}
	return sign + "$" + whole + "." + cents
}
