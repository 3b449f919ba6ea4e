package serialplot

import (
	"errors"
	"strconv"
	"strings"
)

// FieldDelimiter separates channels within one line.
const FieldDelimiter = ","

// Classification is the result of classifying one line. It is one of
// NumericSingle, NumericRecord, MixedRecord or FreeText.
type Classification interface {
	classification()
}

// NumericSingle is a line that parses as exactly one float.
type NumericSingle struct {
	Value float64
}

// NumericRecord is a comma separated line where every field is numeric.
// Values[i] belongs to channel i+1.
type NumericRecord struct {
	Values []float64
}

// MixedRecord is a comma separated line with numeric and text fields.
type MixedRecord struct {
	Fields []Field
}

// FreeText is a line with no numeric interpretation.
type FreeText struct {
	Raw string
}

func (NumericSingle) classification() {}
func (NumericRecord) classification() {}
func (MixedRecord) classification()   {}
func (FreeText) classification()      {}

// Field is one comma separated field of a MixedRecord. Position is 1-based.
type Field struct {
	Position int
	Numeric  bool
	Value    float64
	Raw      string
}

// Classify turns a decoded line into a Classification. Surrounding whitespace
// is ignored; ok is false for lines that are empty after trimming.
func Classify(line string) (c Classification, ok bool) {
	line = strings.TrimSpace(line)
	if line == "" {
		return nil, false
	}

	if v, ok := parseFloat(line); ok {
		return NumericSingle{Value: v}, true
	}

	if !strings.Contains(line, FieldDelimiter) {
		return FreeText{Raw: line}, true
	}

	parts := strings.Split(line, FieldDelimiter)
	fields := make([]Field, len(parts))
	numeric := 0
	for i, part := range parts {
		raw := strings.TrimSpace(part)
		f := Field{Position: i + 1, Raw: raw}
		if IsNumericToken(raw) {
			if v, ok := parseFloat(raw); ok {
				f.Numeric = true
				f.Value = v
				numeric++
			}
		}
		fields[i] = f
	}

	switch numeric {
	case 0:
		return FreeText{Raw: line}, true
	case len(fields):
		values := make([]float64, len(fields))
		for i, f := range fields {
			values[i] = f.Value
		}
		return NumericRecord{Values: values}, true
	default:
		return MixedRecord{Fields: fields}, true
	}
}

// IsNumericToken applies the permissive record-field rule: after removing at
// most one '.', the token must be a non-empty run of ASCII digits. Signs and
// exponents are therefore not numeric ("-1" and "1e3" are text).
func IsNumericToken(tok string) bool {
	tok = strings.Replace(tok, ".", "", 1)
	if tok == "" {
		return false
	}
	for i := 0; i < len(tok); i++ {
		if tok[i] < '0' || tok[i] > '9' {
			return false
		}
	}
	return true
}

// parseFloat accepts out-of-range input that saturates to ±Inf.
func parseFloat(s string) (float64, bool) {
	v, err := strconv.ParseFloat(s, 64)
	if err == nil {
		return v, true
	}
	var ne *strconv.NumError
	if errors.As(err, &ne) && errors.Is(ne.Err, strconv.ErrRange) {
		return v, true
	}
	return 0, false
}
