package scanning

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// dateLayouts are tried in order when normalizing an extracted date.
// Vouchers print day before month.
var dateLayouts = []string{
	"2006-01-02",
	"2006/01/02",
	"02/01/2006",
	"2/1/2006",
	"02-01-2006",
	"02.01.2006",
	"02/01/06",
}

// UnmarshalJSON accepts strings, numbers or null for every field.
// Numbers are kept as written.
func (e *ExtractedFields) UnmarshalJSON(data []byte) error {
	var raw struct {
		Amount      json.RawMessage `json:"monto"`
		Description json.RawMessage `json:"descripcion"`
		Date        json.RawMessage `json:"fecha"`
		Category    json.RawMessage `json:"tipo_gasto"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	var err error
	if e.Amount, err = fieldValue(raw.Amount); err != nil {
		return fmt.Errorf("monto: %w", err)
	}
	if e.Description, err = fieldValue(raw.Description); err != nil {
		return fmt.Errorf("descripcion: %w", err)
	}
	if e.Date, err = fieldValue(raw.Date); err != nil {
		return fmt.Errorf("fecha: %w", err)
	}
	if e.Category, err = fieldValue(raw.Category); err != nil {
		return fmt.Errorf("tipo_gasto: %w", err)
	}
	e.normalize()
	return nil
}

// fieldValue converts one raw JSON value into an optional string
func fieldValue(raw json.RawMessage) (*string, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil, nil
	}

	switch raw[0] {
	case '"':
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil, err
		}
		return &s, nil
	case '-', '0', '1', '2', '3', '4', '5', '6', '7', '8', '9':
		var n json.Number
		if err := json.Unmarshal(raw, &n); err != nil {
			return nil, err
		}
		s := n.String()
		return &s, nil
	default:
		return nil, fmt.Errorf("unexpected value %s", raw)
	}
}

// normalize trims values, drops blanks and rewrites the date as YYYY-MM-DD.
// A date that cannot be parsed is dropped so it never replaces a manual one.
func (e *ExtractedFields) normalize() {
	for _, field := range []**string{&e.Amount, &e.Description, &e.Date, &e.Category} {
		if *field == nil {
			continue
		}
		v := strings.TrimSpace(**field)
		if v == "" {
			*field = nil
			continue
		}
		*field = &v
	}

	if e.Date != nil {
		e.Date = normalizeDate(*e.Date)
	}
}

func normalizeDate(value string) *string {
	for _, layout := range dateLayouts {
		if d, err := time.Parse(layout, value); err == nil {
			s := d.Format("2006-01-02")
			return &s
		}
	}
	return nil
}

// parseFieldsJSON parses a model's text reply into extracted fields
func parseFieldsJSON(text string) (*ExtractedFields, error) {
	// Remove markdown code blocks if present
	text = strings.TrimSpace(text)
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSpace(text)

	// Find the JSON object boundaries - look for first { and last }
	startIdx := strings.Index(text, "{")
	if startIdx == -1 {
		return nil, fmt.Errorf("no JSON object found in response")
	}
	endIdx := strings.LastIndex(text, "}")
	if endIdx == -1 || endIdx < startIdx {
		return nil, fmt.Errorf("invalid JSON object in response")
	}
	text = text[startIdx : endIdx+1]

	var fields ExtractedFields
	if err := json.Unmarshal([]byte(text), &fields); err != nil {
		return nil, fmt.Errorf("unmarshaling json: %w", err)
	}
	return &fields, nil
}
