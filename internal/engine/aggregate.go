package engine

import (
	"cmp"
	"errors"
	"fmt"
	"slices"
	"strings"

	"sales-insights/internal/models"
)

var ErrInvalidSpec = errors.New("invalid aggregation spec")

const keySeparator = "\x1f"

type group struct {
	key      []string
	sum      float64
	count    int
	distinct map[string]struct{}
}

// Aggregate groups the rows of v by spec.GroupBy and reduces spec.Metric in each group.
//
// Only groups with at least one row are returned, in first-appearance order, except that
// naturally ordered keys (weekday, month, age bucket, date, period) are put in calendar
// order. Reindex replaces the rows with exactly the given labels, zero-filling any label
// that has no rows. SortByValue and Limit are applied last.
func Aggregate(v View, spec models.AggregationSpec) (models.AggregateResult, error) {
	if err := validate(spec); err != nil {
		return models.AggregateResult{}, err
	}

	keys := spec.GroupBy
	firstSeen := make([]map[string]int, len(keys))
	for i := range firstSeen {
		firstSeen[i] = make(map[string]int)
	}

	index := make(map[string]*group)
	order := make([]*group, 0)

	for i := 0; i < v.Len(); i++ {
		r := v.Record(i)

		key := make([]string, len(keys))
		for j, f := range keys {
			key[j] = label(r, f)
			if _, ok := firstSeen[j][key[j]]; !ok {
				firstSeen[j][key[j]] = len(firstSeen[j])
			}
		}

		id := strings.Join(key, keySeparator)
		g, ok := index[id]
		if !ok {
			g = &group{key: key}
			if spec.Reducer == models.ReducerCountDistinct {
				g.distinct = make(map[string]struct{})
			}
			index[id] = g
			order = append(order, g)
		}

		g.count++
		switch spec.Reducer {
		case models.ReducerSum, models.ReducerMean:
			g.sum += numericValue(r, spec.Metric)
		case models.ReducerCountDistinct:
			g.distinct[label(r, spec.Metric)] = struct{}{}
		}
	}

	rows := make([]models.AggregateRow, 0, len(order))
	for _, g := range order {
		rows = append(rows, models.AggregateRow{
			Key:   g.key,
			Value: reduce(g, spec.Reducer),
			Count: g.count,
		})
	}

	slices.SortStableFunc(rows, func(a, b models.AggregateRow) int {
		for j, f := range keys {
			if c := compareLabels(f, firstSeen[j], a.Key[j], b.Key[j]); c != 0 {
				return c
			}
		}
		return 0
	})

	if len(spec.Reindex) > 0 {
		rows = reindex(rows, spec.Reindex)
	}

	if spec.SortByValue {
		slices.SortStableFunc(rows, func(a, b models.AggregateRow) int {
			return cmp.Compare(b.Value, a.Value)
		})
	}

	if spec.Limit > 0 && len(rows) > spec.Limit {
		rows = rows[:spec.Limit]
	}

	return models.AggregateResult{
		Keys:   slices.Clone(keys),
		Metric: spec.Metric,
		Rows:   rows,
	}, nil
}

func validate(spec models.AggregationSpec) error {
	if n := len(spec.GroupBy); n < 1 || n > 2 {
		return fmt.Errorf("%w: expected 1 or 2 group keys, got %d", ErrInvalidSpec, n)
	}
	for _, f := range spec.GroupBy {
		if !isKnown(f) {
			return fmt.Errorf("%w: unknown group key %q", ErrInvalidSpec, f)
		}
	}

	switch spec.Reducer {
	case models.ReducerSum, models.ReducerMean:
		if !isNumeric(spec.Metric) {
			return fmt.Errorf("%w: %s needs a numeric metric, got %q", ErrInvalidSpec, spec.Reducer, spec.Metric)
		}
	case models.ReducerCountDistinct:
		if !isKnown(spec.Metric) {
			return fmt.Errorf("%w: unknown metric %q", ErrInvalidSpec, spec.Metric)
		}
	case models.ReducerCount:
	default:
		return fmt.Errorf("%w: unknown reducer %q", ErrInvalidSpec, spec.Reducer)
	}

	if len(spec.Reindex) > 0 && len(spec.GroupBy) != 1 {
		return fmt.Errorf("%w: reindex needs exactly one group key", ErrInvalidSpec)
	}
	if spec.Limit < 0 {
		return fmt.Errorf("%w: negative limit", ErrInvalidSpec)
	}
	return nil
}

func errNotNumeric(f models.Field) error {
	return fmt.Errorf("%w: %q is not a numeric field", ErrInvalidSpec, f)
}

func errUnknownField(f models.Field) error {
	return fmt.Errorf("%w: unknown field %q", ErrInvalidSpec, f)
}

func reduce(g *group, reducer models.Reducer) float64 {
	switch reducer {
	case models.ReducerSum:
		return g.sum
	case models.ReducerMean:
		return g.sum / float64(g.count)
	case models.ReducerCountDistinct:
		return float64(len(g.distinct))
	}
	return float64(g.count)
}

func compareLabels(f models.Field, firstSeen map[string]int, a, b string) int {
	labels, chronological := canonicalOrder(f)
	switch {
	case chronological:
		return strings.Compare(a, b)
	case labels != nil:
		return cmp.Compare(indexOf(labels, a), indexOf(labels, b))
	}
	return cmp.Compare(firstSeen[a], firstSeen[b])
}

func reindex(rows []models.AggregateRow, labels []string) []models.AggregateRow {
	byLabel := make(map[string]models.AggregateRow, len(rows))
	for _, row := range rows {
		byLabel[row.Key[0]] = row
	}

	out := make([]models.AggregateRow, 0, len(labels))
	for _, l := range labels {
		row, ok := byLabel[l]
		if !ok {
			row = models.AggregateRow{Key: []string{l}}
		}
		out = append(out, row)
	}
	return out
}
