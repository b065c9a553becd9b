package engine

import (
	"slices"
	"time"

	"sales-insights/internal/models"
)

// Dataset is the loaded sales table. It is never mutated after NewDataset returns, so a
// single instance can be shared by any number of concurrent readers.
type Dataset struct {
	records []models.Record
	options models.FilterOptions
}

func NewDataset(records []models.Record) *Dataset {
	ds := &Dataset{records: records}
	ds.options = observe(records)
	return ds
}

func (d *Dataset) Len() int {
	if d == nil {
		return 0
	}
	return len(d.records)
}

// Record returns the i-th row. Callers must treat it as read-only.
func (d *Dataset) Record(i int) *models.Record {
	return &d.records[i]
}

// All returns a view over every row in dataset order.
func (d *Dataset) All() View {
	rows := make([]int, d.Len())
	for i := range rows {
		rows[i] = i
	}
	return View{ds: d, rows: rows}
}

func (d *Dataset) Options() models.FilterOptions {
	opts := d.options
	opts.Genders = slices.Clone(opts.Genders)
	opts.Products = slices.Clone(opts.Products)
	opts.Locations = slices.Clone(opts.Locations)
	opts.Channels = slices.Clone(opts.Channels)
	opts.Payments = slices.Clone(opts.Payments)
	return opts
}

// DefaultCriteria selects every observed value on every field, so filtering with it
// returns the whole dataset.
func (d *Dataset) DefaultCriteria() models.FilterCriteria {
	opts := d.Options()
	return models.FilterCriteria{
		Start:                opts.MinDate,
		End:                  opts.MaxDate,
		Genders:              opts.Genders,
		IncludeUnknownGender: opts.HasUnknownGender,
		Products:             opts.Products,
		Locations:            opts.Locations,
		Channels:             opts.Channels,
		Payments:             opts.Payments,
		FeedbackMin:          opts.FeedbackMin,
		FeedbackMax:          opts.FeedbackMax,
	}
}

func observe(records []models.Record) models.FilterOptions {
	opts := models.FilterOptions{
		Genders:   []string{},
		Products:  []string{},
		Locations: []string{},
		Channels:  []string{},
		Payments:  []string{},
	}
	if len(records) == 0 {
		return opts
	}

	seen := map[models.Field]map[string]struct{}{
		models.FieldGender:         {},
		models.FieldProductVariant: {},
		models.FieldLocation:       {},
		models.FieldChannel:        {},
		models.FieldPaymentType:    {},
	}
	appendNew := func(field models.Field, dst *[]string, value string) {
		if _, ok := seen[field][value]; ok {
			return
		}
		seen[field][value] = struct{}{}
		*dst = append(*dst, value)
	}

	opts.MinDate, opts.MaxDate = records[0].Date, records[0].Date
	opts.FeedbackMin, opts.FeedbackMax = records[0].FeedbackScore, records[0].FeedbackScore

	for i := range records {
		r := &records[i]
		opts.MinDate = minTime(opts.MinDate, r.Date)
		opts.MaxDate = maxTime(opts.MaxDate, r.Date)
		opts.FeedbackMin = min(opts.FeedbackMin, r.FeedbackScore)
		opts.FeedbackMax = max(opts.FeedbackMax, r.FeedbackScore)

		if r.Gender == "" {
			opts.HasUnknownGender = true
		} else {
			appendNew(models.FieldGender, &opts.Genders, r.Gender)
		}
		appendNew(models.FieldProductVariant, &opts.Products, r.ProductVariant)
		appendNew(models.FieldLocation, &opts.Locations, r.Location)
		appendNew(models.FieldChannel, &opts.Channels, r.Channel)
		appendNew(models.FieldPaymentType, &opts.Payments, r.PaymentType)
	}

	return opts
}

func minTime(a, b time.Time) time.Time {
	if b.Before(a) {
		return b
	}
	return a
}

func maxTime(a, b time.Time) time.Time {
	if b.After(a) {
		return b
	}
	return a
}
