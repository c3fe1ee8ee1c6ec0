package capture

import (
	"time"

	"github.com/zombor/expense-capture/internal/preprocess"
)

// Expense is the record persisted once a capture is confirmed
type Expense struct {
	ID           string          `json:"id"`
	TaskID       string          `json:"task_id"`
	Amount       string          `json:"amount"`
	Description  string          `json:"description"`
	Date         string          `json:"date"` // YYYY-MM-DD as confirmed by the user
	Category     string          `json:"category"`
	Mode         preprocess.Mode `json:"mode"`
	Filename     string          `json:"filename,omitempty"`
	OriginalURL  string          `json:"original_url"`
	ProcessedURL string          `json:"processed_url"`
	CreatedAt    time.Time       `json:"created_at"`
}
