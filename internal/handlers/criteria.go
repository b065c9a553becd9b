package handlers

import (
	"fmt"
	"math"
	"net/url"
	"strconv"
	"strings"
	"time"

	"sales-insights/internal/models"
)

// Query keys accepted by the REST endpoints. Set-valued keys may be repeated or
// comma-separated.
const (
	keyStart         = "start"
	keyEnd           = "end"
	keyGender        = "gender"
	keyProduct       = "product"
	keyLocation      = "location"
	keyChannel       = "channel"
	keyPayment       = "payment"
	keyUnknownGender = "unknown_gender"
	keyFeedbackMin   = "feedback_min"
	keyFeedbackMax   = "feedback_max"
)

// CriteriaRequest is the wire form of a filter selection, used for JSON bodies and
// datastar signals. A nil field keeps the default (every observed value); a present but
// empty list selects nothing.
type CriteriaRequest struct {
	Start                *string   `json:"start,omitempty"`
	End                  *string   `json:"end,omitempty"`
	Genders              *[]string `json:"genders,omitempty"`
	IncludeUnknownGender *bool     `json:"include_unknown_gender,omitempty"`
	Products             *[]string `json:"products,omitempty"`
	Locations            *[]string `json:"locations,omitempty"`
	Channels             *[]string `json:"channels,omitempty"`
	Payments             *[]string `json:"payments,omitempty"`
	FeedbackMin          *float64  `json:"feedback_min,omitempty"`
	FeedbackMax          *float64  `json:"feedback_max,omitempty"`
}

// fieldError names the offending input of a malformed criteria value.
type fieldError struct {
	Field string
	Err   error
}

func (e *fieldError) Error() string { return fmt.Sprintf("%s: %v", e.Field, e.Err) }

func (e *fieldError) Unwrap() error { return e.Err }

// Apply overlays the request onto defaults. A blank date keeps the default bound, which
// is what a cleared date input sends.
func (req CriteriaRequest) Apply(defaults models.FilterCriteria) (models.FilterCriteria, error) {
	c := defaults

	if req.Start != nil && strings.TrimSpace(*req.Start) != "" {
		t, err := parseDay(keyStart, *req.Start)
		if err != nil {
			return c, err
		}
		c.Start = t
	}
	if req.End != nil && strings.TrimSpace(*req.End) != "" {
		t, err := parseDay(keyEnd, *req.End)
		if err != nil {
			return c, err
		}
		c.End = t
	}

	setIfPresent := func(dst *[]string, src *[]string) {
		if src != nil {
			*dst = cleanValues(*src)
		}
	}
	setIfPresent(&c.Genders, req.Genders)
	setIfPresent(&c.Products, req.Products)
	setIfPresent(&c.Locations, req.Locations)
	setIfPresent(&c.Channels, req.Channels)
	setIfPresent(&c.Payments, req.Payments)

	if req.IncludeUnknownGender != nil {
		c.IncludeUnknownGender = *req.IncludeUnknownGender
	}

	if req.FeedbackMin != nil {
		if err := checkFinite(keyFeedbackMin, *req.FeedbackMin); err != nil {
			return c, err
		}
		c.FeedbackMin = *req.FeedbackMin
	}
	if req.FeedbackMax != nil {
		if err := checkFinite(keyFeedbackMax, *req.FeedbackMax); err != nil {
			return c, err
		}
		c.FeedbackMax = *req.FeedbackMax
	}

	return c, nil
}

// CriteriaFromQuery reads a filter selection from URL query parameters.
func CriteriaFromQuery(q url.Values, defaults models.FilterCriteria) (models.FilterCriteria, error) {
	var req CriteriaRequest

	if v, ok := q[keyStart]; ok {
		req.Start = &v[0]
	}
	if v, ok := q[keyEnd]; ok {
		req.End = &v[0]
	}

	req.Genders = listParam(q, keyGender)
	req.Products = listParam(q, keyProduct)
	req.Locations = listParam(q, keyLocation)
	req.Channels = listParam(q, keyChannel)
	req.Payments = listParam(q, keyPayment)

	if v, ok := q[keyUnknownGender]; ok {
		b, err := strconv.ParseBool(strings.TrimSpace(v[0]))
		if err != nil {
			return defaults, &fieldError{Field: keyUnknownGender, Err: fmt.Errorf("invalid boolean %q", v[0])}
		}
		req.IncludeUnknownGender = &b
	}

	for _, p := range []struct {
		key string
		dst **float64
	}{
		{keyFeedbackMin, &req.FeedbackMin},
		{keyFeedbackMax, &req.FeedbackMax},
	} {
		v, ok := q[p.key]
		if !ok {
			continue
		}
		f, err := strconv.ParseFloat(strings.TrimSpace(v[0]), 64)
		if err != nil {
			return defaults, &fieldError{Field: p.key, Err: fmt.Errorf("invalid number %q", v[0])}
		}
		*p.dst = &f
	}

	return req.Apply(defaults)
}

// ToQuery encodes c so that CriteriaFromQuery reproduces it exactly.
func ToQuery(c models.FilterCriteria) url.Values {
	q := url.Values{}
	q.Set(keyStart, c.Start.Format(time.DateOnly))
	q.Set(keyEnd, c.End.Format(time.DateOnly))
	q.Set(keyUnknownGender, strconv.FormatBool(c.IncludeUnknownGender))
	q.Set(keyFeedbackMin, strconv.FormatFloat(c.FeedbackMin, 'f', -1, 64))
	q.Set(keyFeedbackMax, strconv.FormatFloat(c.FeedbackMax, 'f', -1, 64))

	setList := func(key string, values []string) {
		if len(values) == 0 {
			q.Set(key, "")
			return
		}
		q[key] = append([]string(nil), values...)
	}
	setList(keyGender, c.Genders)
	setList(keyProduct, c.Products)
	setList(keyLocation, c.Locations)
	setList(keyChannel, c.Channels)
	setList(keyPayment, c.Payments)
	return q
}

// listParam returns nil when key is absent. Repeated and comma-separated values are
// merged; blank entries are dropped, so "?product=" selects nothing.
func listParam(q url.Values, key string) *[]string {
	raw, ok := q[key]
	if !ok {
		return nil
	}
	var values []string
	for _, r := range raw {
		values = append(values, strings.Split(r, ",")...)
	}
	values = cleanValues(values)
	return &values
}

func cleanValues(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}

func parseDay(field, s string) (time.Time, error) {
	t, err := time.Parse(time.DateOnly, strings.TrimSpace(s))
	if err != nil {
		return time.Time{}, &fieldError{Field: field, Err: fmt.Errorf("invalid date %q, want YYYY-MM-DD", s)}
	}
	return t, nil
}

func checkFinite(field string, f float64) error {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return &fieldError{Field: field, Err: fmt.Errorf("non-finite number")}
	}
	return nil
}
