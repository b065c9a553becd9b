package engine

import (
	"math"
	"slices"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"sales-insights/internal/models"
)

const DefaultHistogramBins = 20

// Histogram counts a numeric column into equal-width bins spanning [min, max].
// The last bin is closed so the maximum is counted.
func Histogram(v View, field models.Field, bins int) (models.Histogram, error) {
	if !isNumeric(field) {
		return models.Histogram{}, errNotNumeric(field)
	}
	if bins <= 0 {
		bins = DefaultHistogramBins
	}

	h := models.Histogram{Field: field, Bins: []models.HistogramBin{}}
	xs := column(v, field)
	if len(xs) == 0 {
		return h, nil
	}
	slices.Sort(xs)

	lo, hi := xs[0], xs[len(xs)-1]
	if lo == hi {
		h.Bins = append(h.Bins, models.HistogramBin{Lower: lo, Upper: hi, Count: len(xs)})
		return h, nil
	}

	dividers := floats.Span(make([]float64, bins+1), lo, hi)
	upper := dividers[bins]
	dividers[bins] = math.Nextafter(hi, math.Inf(1))
	counts := stat.Histogram(nil, dividers, xs, nil)
	dividers[bins] = upper

	for i, c := range counts {
		h.Bins = append(h.Bins, models.HistogramBin{
			Lower: dividers[i],
			Upper: dividers[i+1],
			Count: int(c),
		})
	}
	return h, nil
}

// BoxStats summarises the distribution of field within each groupBy value.
func BoxStats(v View, groupBy, field models.Field) (models.BoxPlot, error) {
	if !isKnown(groupBy) {
		return models.BoxPlot{}, errUnknownField(groupBy)
	}
	if !isNumeric(field) {
		return models.BoxPlot{}, errNotNumeric(field)
	}

	order := make([]string, 0)
	values := make(map[string][]float64)
	for i := 0; i < v.Len(); i++ {
		r := v.Record(i)
		key := label(r, groupBy)
		if _, ok := values[key]; !ok {
			order = append(order, key)
		}
		values[key] = append(values[key], numericValue(r, field))
	}

	box := models.BoxPlot{GroupBy: groupBy, Field: field, Groups: make([]models.BoxGroup, 0, len(order))}
	for _, key := range order {
		xs := values[key]
		slices.Sort(xs)
		box.Groups = append(box.Groups, models.BoxGroup{
			Key:    key,
			Count:  len(xs),
			Min:    xs[0],
			Q1:     quantile(xs, 0.25),
			Median: quantile(xs, 0.5),
			Q3:     quantile(xs, 0.75),
			Max:    xs[len(xs)-1],
			Mean:   stat.Mean(xs, nil),
		})
	}
	return box, nil
}

// Scatter pairs two numeric columns and fits an ordinary least squares trendline
// y = intercept + slope*x. The trendline is nil when x has no spread.
func Scatter(v View, x, y models.Field) (models.Scatter, error) {
	if !isNumeric(x) {
		return models.Scatter{}, errNotNumeric(x)
	}
	if !isNumeric(y) {
		return models.Scatter{}, errNotNumeric(y)
	}

	xs, ys := column(v, x), column(v, y)
	sc := models.Scatter{X: x, Y: y, Points: make([]models.ScatterPoint, len(xs))}
	for i := range xs {
		sc.Points[i] = models.ScatterPoint{X: xs[i], Y: ys[i]}
	}

	if len(xs) < 2 || stat.Variance(xs, nil) == 0 {
		return sc, nil
	}

	alpha, beta := stat.LinearRegression(xs, ys, nil, false)
	sc.Trendline = &models.Trendline{
		Intercept: alpha,
		Slope:     beta,
		RSquared:  definedOrNil(stat.RSquared(xs, ys, nil, alpha, beta)),
	}
	return sc, nil
}

// Correlation computes the pairwise Pearson coefficients of the given numeric columns.
func Correlation(v View, fields []models.Field) (models.CorrelationMatrix, error) {
	cols := make([][]float64, len(fields))
	for i, f := range fields {
		if !isNumeric(f) {
			return models.CorrelationMatrix{}, errNotNumeric(f)
		}
		cols[i] = column(v, f)
	}

	m := models.CorrelationMatrix{Fields: slices.Clone(fields), Values: make([][]*float64, len(fields))}
	for i := range fields {
		m.Values[i] = make([]*float64, len(fields))
		if v.Len() < 2 {
			continue
		}
		for j := range fields {
			m.Values[i][j] = definedOrNil(stat.Correlation(cols[i], cols[j], nil))
		}
	}
	return m, nil
}

func column(v View, f models.Field) []float64 {
	xs := make([]float64, v.Len())
	for i := range xs {
		xs[i] = numericValue(v.Record(i), f)
	}
	return xs
}

// quantile interpolates linearly between closest ranks of the sorted sample xs, placing
// p at position p*(n-1). stat.Quantile has no estimator with this rule.
func quantile(xs []float64, p float64) float64 {
	pos := p * float64(len(xs)-1)
	lo := int(math.Floor(pos))
	hi := int(math.Ceil(pos))
	if lo == hi {
		return xs[lo]
	}
	return xs[lo] + (pos-float64(lo))*(xs[hi]-xs[lo])
}

func definedOrNil(x float64) *float64 {
	if math.IsNaN(x) || math.IsInf(x, 0) {
		return nil
	}
	return &x
}
