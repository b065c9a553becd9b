package services

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"sales-insights/internal/engine"
	"sales-insights/internal/models"
)

const (
	batchSize  = 10000
	maxWorkers = 10
)

var ErrLoad = errors.New("dataset load failed")

// LoadError reports why the dataset file could not be turned into a Dataset.
// Line and Column are set when the failure points at a specific cell.
type LoadError struct {
	Path   string
	Line   int
	Column string
	Err    error
}

func (e *LoadError) Error() string {
	var b strings.Builder
	b.WriteString("load ")
	b.WriteString(e.Path)
	if e.Line > 0 {
		fmt.Fprintf(&b, ": line %d", e.Line)
	}
	if e.Column != "" {
		fmt.Fprintf(&b, ", column %q", e.Column)
	}
	b.WriteString(": ")
	b.WriteString(e.Err.Error())
	return b.String()
}

func (e *LoadError) Unwrap() []error { return []error{ErrLoad, e.Err} }

// Columns the loader requires, in header spelling.
var requiredColumns = []string{
	"Date", "CustomerID", "Gender", "Age", "ProductVariant", "Location",
	"Channel", "PaymentType", "UnitsPurchased", "UnitPrice", "Total Sale Value", "FeedbackScore",
}

var dateLayouts = []string{time.DateOnly, time.DateTime, "2006/01/02"}

var nullTokens = map[string]bool{"": true, "nan": true, "null": true, "na": true, "none": true}

// Loader reads the sales CSV once. Every Load after the first completed attempt returns
// the same Dataset or the same error without touching the file again. An attempt cut
// short by its context is not remembered.
type Loader struct {
	path   string
	logger *slog.Logger

	mu   sync.Mutex
	done bool
	ds   *engine.Dataset
	err  error
}

func NewLoader(path string, logger *slog.Logger) *Loader {
	if logger == nil {
		logger = slog.Default()
	}
	return &Loader{path: path, logger: logger}
}

func (l *Loader) Path() string { return l.path }

func (l *Loader) Load(ctx context.Context) (*engine.Dataset, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.done {
		return l.ds, l.err
	}
	ds, err := l.load(ctx)
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return nil, err
	}
	l.ds, l.err, l.done = ds, err, true
	return ds, err
}

func (l *Loader) load(ctx context.Context) (*engine.Dataset, error) {
	start := time.Now()
	l.logger.Info("processing CSV file", "filename", l.path)

	file, err := os.Open(l.path)
	if err != nil {
		return nil, &LoadError{Path: l.path, Err: err}
	}
	defer file.Close()

	rows, lines, columns, err := l.readRows(ctx, file)
	if err != nil {
		return nil, err
	}

	records := make([]models.Record, len(rows))
	batchErrs := make([]error, (len(rows)+batchSize-1)/batchSize)

	var g errgroup.Group
	g.SetLimit(maxWorkers)
	for b := range batchErrs {
		lo := b * batchSize
		hi := min(lo+batchSize, len(rows))
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			for i := lo; i < hi; i++ {
				rec, err := l.parseRow(rows[i], lines[i], columns)
				if err != nil {
					batchErrs[b] = err
					return nil
				}
				records[i] = rec
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, &LoadError{Path: l.path, Err: err}
	}
	for _, err := range batchErrs {
		if err != nil {
			return nil, err
		}
	}

	duration := time.Since(start)
	l.logger.Info("csv processing complete",
		"records", len(records),
		"duration", duration,
		"rate", fmt.Sprintf("%.0f records/sec", float64(len(records))/duration.Seconds()))

	return engine.NewDataset(records), nil
}

// readRows reads the header and every data row, remembering each row's line number.
func (l *Loader) readRows(ctx context.Context, r io.Reader) ([][]string, []int, map[string]int, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.ReuseRecord = false

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return nil, nil, nil, &LoadError{Path: l.path, Err: errors.New("empty file")}
	}
	if err != nil {
		return nil, nil, nil, l.csvError(err)
	}

	columns, err := mapColumns(header)
	if err != nil {
		return nil, nil, nil, &LoadError{Path: l.path, Line: 1, Err: err}
	}

	var rows [][]string
	var lines []int
	for {
		if len(rows)%batchSize == 0 {
			if err := ctx.Err(); err != nil {
				return nil, nil, nil, &LoadError{Path: l.path, Err: err}
			}
		}

		row, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, nil, nil, l.csvError(err)
		}
		line, _ := reader.FieldPos(0)
		if len(row) != len(header) {
			return nil, nil, nil, &LoadError{
				Path: l.path,
				Line: line,
				Err:  fmt.Errorf("expected %d fields, got %d", len(header), len(row)),
			}
		}
		rows = append(rows, row)
		lines = append(lines, line)
	}

	if len(rows) == 0 {
		return nil, nil, nil, &LoadError{Path: l.path, Line: 1, Err: errors.New("no data rows")}
	}
	return rows, lines, columns, nil
}

func (l *Loader) csvError(err error) error {
	var parseErr *csv.ParseError
	if errors.As(err, &parseErr) {
		return &LoadError{Path: l.path, Line: parseErr.Line, Err: parseErr.Err}
	}
	return &LoadError{Path: l.path, Err: err}
}

// mapColumns resolves every required column to its index in header.
func mapColumns(header []string) (map[string]int, error) {
	if len(header) > 0 {
		header[0] = strings.TrimPrefix(header[0], "\ufeff")
	}
	byName := make(map[string]int, len(header))
	for i, h := range header {
		byName[normalizeColumn(h)] = i
	}

	columns := make(map[string]int, len(requiredColumns))
	var missing []string
	for _, name := range requiredColumns {
		i, ok := byName[normalizeColumn(name)]
		if !ok {
			missing = append(missing, name)
			continue
		}
		columns[name] = i
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("missing required columns: %s", strings.Join(missing, ", "))
	}
	return columns, nil
}

func normalizeColumn(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	return strings.NewReplacer(" ", "", "_", "").Replace(s)
}

func (l *Loader) parseRow(row []string, line int, columns map[string]int) (models.Record, error) {
	cell := func(name string) string {
		return strings.TrimSpace(row[columns[name]])
	}
	fail := func(name string, err error) error {
		return &LoadError{Path: l.path, Line: line, Column: name, Err: err}
	}

	var rec models.Record
	var err error

	if rec.Date, err = parseDate(cell("Date")); err != nil {
		return rec, fail("Date", err)
	}
	if rec.Age, err = parseWhole(cell("Age")); err != nil {
		return rec, fail("Age", err)
	}
	if rec.UnitsPurchased, err = parseWhole(cell("UnitsPurchased")); err != nil {
		return rec, fail("UnitsPurchased", err)
	}
	if rec.UnitPrice, err = parseNumber(cell("UnitPrice")); err != nil {
		return rec, fail("UnitPrice", err)
	}
	if rec.TotalSaleValue, err = parseNumber(cell("Total Sale Value")); err != nil {
		return rec, fail("Total Sale Value", err)
	}
	if rec.FeedbackScore, err = parseNumber(cell("FeedbackScore")); err != nil {
		return rec, fail("FeedbackScore", err)
	}

	if g := cell("Gender"); !nullTokens[strings.ToLower(g)] {
		if strings.EqualFold(g, engine.UnknownLabel) {
			return rec, fail("Gender", fmt.Errorf("%q is reserved for missing values", g))
		}
		rec.Gender = g
	}

	for _, f := range []struct {
		name string
		dst  *string
	}{
		{"CustomerID", &rec.CustomerID},
		{"ProductVariant", &rec.ProductVariant},
		{"Location", &rec.Location},
		{"Channel", &rec.Channel},
		{"PaymentType", &rec.PaymentType},
	} {
		v := cell(f.name)
		if v == "" {
			return rec, fail(f.name, errors.New("empty value"))
		}
		*f.dst = v
	}

	return rec, nil
}

func parseDate(s string) (time.Time, error) {
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return engine.Day(t), nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid date %q", s)
}

func parseNumber(s string) (float64, error) {
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid number %q", s)
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("non-finite number %q", s)
	}
	return f, nil
}

// parseWhole accepts integers written either plainly or with a zero fraction ("34.0").
func parseWhole(s string) (int, error) {
	if n, err := strconv.Atoi(s); err == nil {
		return n, nil
	}
	f, err := parseNumber(s)
	if err != nil || f != math.Trunc(f) {
		return 0, fmt.Errorf("invalid integer %q", s)
	}
	if f < math.MinInt || f >= math.MaxInt {
		return 0, fmt.Errorf("integer %q out of range", s)
	}
	return int(f), nil
}
