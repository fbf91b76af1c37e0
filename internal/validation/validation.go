// Package validation provides input validation for nodepulse.
//
// Sample batches are decoded strictly (unknown keys rejected), checked field
// by field, and every string is stripped of HTML. The first invalid element
// rejects the whole batch.
package validation

import (
	"fmt"
	"io"
	"math"
	"strings"
	"unicode"

	"github.com/goccy/go-json"
	"github.com/microcosm-cc/bluemonday"

	"github.com/xtxerr/nodepulse/internal/errors"
	"github.com/xtxerr/nodepulse/internal/netdata"
)

// MaxSafeInteger is the largest magnitude accepted for a sample value.
const MaxSafeInteger = 1<<53 - 1

// strict removes all markup. Policies are safe for concurrent use once built.
var strict = bluemonday.StrictPolicy()

// Sanitize removes every HTML element from s.
func Sanitize(s string) string {
	return strict.Sanitize(s)
}

// =============================================================================
// Batch Validation
// =============================================================================

// DecodeBatch reads a JSON array of samples from r. Unknown keys and type
// mismatches are validation errors.
func DecodeBatch(r io.Reader) ([]netdata.RawSample, error) {
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()

	var raw []netdata.RawSample
	if err := dec.Decode(&raw); err != nil {
		return nil, decodeError(err)
	}
	if len(raw) == 0 {
		return nil, EmptyBatch()
	}
	return raw, nil
}

func decodeError(err error) error {
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) {
		if typeErr.Field == "" {
			return EmptyBatch()
		}
		return errors.Validation(typeErr.Field, fmt.Sprintf("must be a %s", typeErr.Type))
	}

	e := errors.Validation("body", "is not valid JSON")
	e.Info = err.Error()
	if strings.Contains(err.Error(), "unknown field") {
		e.Message = err.Error()
		e.Reason = "unknown field"
	}
	return e
}

// EmptyBatch is the error for a body that is not a non-empty array.
func EmptyBatch() *errors.Error {
	return &errors.Error{
		Kind:    errors.KindValidation,
		Message: errors.ErrEmptyBatch.Error(),
		Reason:  "body",
		Err:     errors.ErrEmptyBatch,
	}
}

// ValidateBatch validates every element and returns the sanitized samples.
// The first invalid element fails the batch.
func ValidateBatch(raw []netdata.RawSample) ([]netdata.Sample, error) {
	if len(raw) == 0 {
		return nil, EmptyBatch()
	}

	out := make([]netdata.Sample, 0, len(raw))
	for i := range raw {
		s, err := ValidateSample(raw[i])
		if err != nil {
			var e *errors.Error
			if errors.As(err, &e) {
				e.Info = fmt.Sprintf("element %d", i)
			}
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}

// ValidateSample checks one raw sample and returns its sanitized form.
func ValidateSample(raw netdata.RawSample) (netdata.Sample, error) {
	var s netdata.Sample
	var err error

	if s.Hostname, err = required("hostname", raw.Hostname); err != nil {
		return s, err
	}
	if s.ChartID, err = required("chart_id", raw.ChartID); err != nil {
		return s, err
	}
	if s.ChartContext, err = required("chart_context", raw.ChartContext); err != nil {
		return s, err
	}
	if s.ID, err = required("id", raw.ID); err != nil {
		return s, err
	}

	if raw.Value == nil {
		return s, errors.Validation("value", "is required")
	}
	if err := ValidateValue(*raw.Value); err != nil {
		return s, errors.Validation("value", err.Error())
	}
	s.Value = *raw.Value

	if raw.Timestamp != nil {
		ts := *raw.Timestamp
		if ts != math.Trunc(ts) || math.Abs(ts) > MaxSafeInteger {
			return s, errors.Validation("timestamp", "must be an integer")
		}
		v := int64(ts)
		s.Timestamp = &v
	}

	s.Prefix = optional(raw.Prefix)
	s.ChartName = optional(raw.ChartName)
	s.ChartFamily = optional(raw.ChartFamily)
	s.ChartType = optional(raw.ChartType)
	s.Units = optional(raw.Units)
	s.Name = optional(raw.Name)
	s.Labels = raw.Labels

	return s, nil
}

// ValidateValue checks that v is finite and within the safe integer range.
func ValidateValue(v float64) error {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return fmt.Errorf("must be a finite number")
	}
	if v < -MaxSafeInteger || v > MaxSafeInteger {
		return fmt.Errorf("must be a safe number")
	}
	return nil
}

func required(field string, v *string) (string, error) {
	if v == nil {
		return "", errors.Validation(field, "is required")
	}
	clean := Sanitize(*v)
	if clean == "" {
		return "", errors.Validation(field, "is not allowed to be empty")
	}
	return clean, nil
}

func optional(v *string) string {
	if v == nil {
		return ""
	}
	return Sanitize(*v)
}

// =============================================================================
// Identity Validation
// =============================================================================

// ValidateKeyPart checks a hostname or identity used to build store keys.
// Failures are validation errors.
func ValidateKeyPart(kind, s string) error {
	if s == "" {
		return errors.Validation(kind, "cannot be empty")
	}
	if len(s) > 255 {
		return errors.Validation(kind, "is too long: maximum 255 characters")
	}
	for i, r := range s {
		if r < 32 || r == 127 {
			return errors.Validation(kind, fmt.Sprintf("cannot contain control characters at position %d", i))
		}
		if unicode.IsSpace(r) {
			return errors.Validation(kind, fmt.Sprintf("cannot contain whitespace at position %d", i))
		}
	}
	return nil
}

// ValidateRetention checks a retention window in hours.
func ValidateRetention(hours float64) error {
	if math.IsNaN(hours) || math.IsInf(hours, 0) || hours <= 0 {
		return errors.ErrInvalidRetention
	}
	return nil
}
