package capture

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/zombor/expense-capture/internal/preprocess"
	"github.com/zombor/expense-capture/internal/scanning"
)

// State is a step of the capture flow
type State int

const (
	StateIdle State = iota
	StateCapturing
	StateProcessing
	StateAwaitingConfirmation
	StateSaving
	StateCompleted
	StateFailed
)

var stateNames = map[State]string{
	StateIdle:                 "idle",
	StateCapturing:            "capturing",
	StateProcessing:           "processing",
	StateAwaitingConfirmation: "awaiting_confirmation",
	StateSaving:               "saving",
	StateCompleted:            "completed",
	StateFailed:               "failed",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// MarshalText implements encoding.TextMarshaler
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// transitions lists the states reachable from each state
var transitions = map[State][]State{
	StateIdle:                 {StateCapturing},
	StateCapturing:            {StateProcessing},
	StateProcessing:           {StateAwaitingConfirmation, StateIdle},
	StateAwaitingConfirmation: {StateCapturing, StateSaving},
	StateSaving:               {StateCompleted, StateFailed},
	StateFailed:               {StateAwaitingConfirmation},
}

// CanTransition reports whether to is reachable from from in one step
func CanTransition(from, to State) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// ExtractionState describes the last field extraction of a session
type ExtractionState string

const (
	ExtractionIdle    ExtractionState = "idle"
	ExtractionPending ExtractionState = "pending"
	ExtractionDone    ExtractionState = "done"
	ExtractionFailed  ExtractionState = "failed"
)

// ExtractionStatus is reported on the session view
type ExtractionStatus struct {
	State ExtractionState `json:"state"`
	Error string          `json:"error,omitempty"`
}

// session is the transient state of one capture. Every field is guarded by mu.
type session struct {
	mu sync.Mutex

	id        string
	taskID    string
	state     State
	mode      preprocess.Mode
	filename  string
	original  *preprocess.PixelBuffer
	processed *preprocess.PixelBuffer
	threshold int
	form      scanning.Form
	lastErr   string

	extraction ExtractionStatus
	// cancelExtract cancels the in-flight extraction, if any. Only a result
	// whose generation still matches may be merged.
	cancelExtract context.CancelFunc
	generation    uint64

	createdAt time.Time
	updatedAt time.Time
}

// transition moves the session to the given state. Caller holds mu.
func (s *session) transition(to State, now time.Time) error {
	if !CanTransition(s.state, to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, s.state, to)
	}
	s.state = to
	s.updatedAt = now
	return nil
}

// requireState fails unless the session is in one of the given states. Caller holds mu.
func (s *session) requireState(allowed ...State) error {
	for _, a := range allowed {
		if s.state == a {
			return nil
		}
	}
	return fmt.Errorf("%w: not allowed in state %s", ErrInvalidTransition, s.state)
}

// cancelExtraction drops any in-flight extraction so its result is never
// applied. Caller holds mu.
func (s *session) cancelExtraction() {
	if s.cancelExtract != nil {
		s.cancelExtract()
		s.cancelExtract = nil
	}
	s.generation++
	if s.extraction.State == ExtractionPending {
		s.extraction = ExtractionStatus{State: ExtractionIdle}
	}
}

// View is a snapshot of a capture session
type View struct {
	ID         string           `json:"id"`
	TaskID     string           `json:"task_id"`
	State      State            `json:"state"`
	Mode       preprocess.Mode  `json:"mode"`
	Filename   string           `json:"filename,omitempty"`
	Width      int              `json:"width,omitempty"`
	Height     int              `json:"height,omitempty"`
	Threshold  int              `json:"threshold,omitempty"`
	Form       scanning.Form    `json:"form"`
	Extraction ExtractionStatus `json:"extraction"`
	Error      string           `json:"error,omitempty"`
	CreatedAt  time.Time        `json:"created_at"`
	UpdatedAt  time.Time        `json:"updated_at"`
}

// view snapshots the session. Caller holds mu.
func (s *session) view() *View {
	v := &View{
		ID:         s.id,
		TaskID:     s.taskID,
		State:      s.state,
		Mode:       s.mode,
		Filename:   s.filename,
		Threshold:  s.threshold,
		Form:       s.form,
		Extraction: s.extraction,
		Error:      s.lastErr,
		CreatedAt:  s.createdAt,
		UpdatedAt:  s.updatedAt,
	}
	if s.original != nil {
		v.Width, v.Height = s.original.Width, s.original.Height
	}
	return v
}
