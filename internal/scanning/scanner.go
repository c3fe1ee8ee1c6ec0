package scanning

import (
	"context"
	"errors"
	"strings"
)

// ErrExtraction wraps every extractor failure. It is never fatal to a
// capture: the form stays as manually entered.
var ErrExtraction = errors.New("extraction failed")

// ExtractedFields contains the optional values read from a voucher.
// A nil field means the extractor did not find it.
type ExtractedFields struct {
	Amount      *string `json:"monto"`
	Description *string `json:"descripcion"`
	Date        *string `json:"fecha"` // YYYY-MM-DD when recognized
	Category    *string `json:"tipo_gasto"`
}

// Form is the editable expense form confirmed by the user
type Form struct {
	Amount      string `json:"amount"`
	Description string `json:"description"`
	Date        string `json:"date"`
	Category    string `json:"category"`
}

// Merge returns f with every non-empty extracted value applied.
// Fields the extractor left nil or blank keep their current value.
func (f Form) Merge(fields *ExtractedFields) Form {
	if fields == nil {
		return f
	}
	apply := func(dst *string, v *string) {
		if v != nil && strings.TrimSpace(*v) != "" {
			*dst = strings.TrimSpace(*v)
		}
	}
	apply(&f.Amount, fields.Amount)
	apply(&f.Description, fields.Description)
	apply(&f.Date, fields.Date)
	apply(&f.Category, fields.Category)
	return f
}

// Extractor defines the interface for voucher field extraction
type Extractor interface {
	// Extract reads fields from a downsampled JPEG payload
	Extract(ctx context.Context, jpeg []byte) (*ExtractedFields, error)
	// Close releases any resources held by the extractor
	Close() error
}
