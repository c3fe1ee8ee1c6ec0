package capture

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/zombor/expense-capture/internal/preprocess"
	"github.com/zombor/expense-capture/internal/scanning"
)

// DefaultMode is used until the user stores a preference
const DefaultMode = preprocess.Soft

var (
	// ErrSessionNotFound is returned for an unknown or already finished capture
	ErrSessionNotFound = errors.New("capture session not found")

	// ErrInvalidTransition is returned when an operation is not allowed in the current state
	ErrInvalidTransition = errors.New("invalid state transition")

	// ErrUpload is returned when an image variant could not be stored
	ErrUpload = errors.New("upload failed")

	// ErrPersist is returned when a record could not be written after upload
	ErrPersist = errors.New("persist failed")

	// ErrTaskRequired is returned when a capture is started without a task
	ErrTaskRequired = errors.New("task id is required")

	// ErrInvalidMode is returned for an enhancement mode outside the known set
	ErrInvalidMode = errors.New("invalid enhancement mode")
)

// IDGenerator generates unique IDs for sessions and expenses
type IDGenerator interface {
	Generate() string
}

// TimeSource provides the current time
type TimeSource interface {
	Now() time.Time
}

// defaultIDGenerator generates random UUIDs
type defaultIDGenerator struct{}

func (g *defaultIDGenerator) Generate() string {
	return uuid.NewString()
}

// defaultTimeSource provides the current time
type defaultTimeSource struct{}

func (t *defaultTimeSource) Now() time.Time {
	return time.Now()
}

// Service owns capture sessions and drives them through the capture flow
type Service struct {
	db          DB
	extractor   scanning.Extractor
	storage     Storage
	idGenerator IDGenerator
	timeSource  TimeSource

	mu       sync.RWMutex
	sessions map[string]*session

	// ctx parents every extraction so Close can stop them
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewService creates a new Service with default ID generator and time source.
// extractor may be nil, in which case captures are never analyzed.
func NewService(db DB, extractor scanning.Extractor, storage Storage) *Service {
	return NewServiceWithDeps(db, extractor, storage, &defaultIDGenerator{}, &defaultTimeSource{})
}

// NewServiceWithDeps creates a new Service with custom dependencies for testing
func NewServiceWithDeps(db DB, extractor scanning.Extractor, storage Storage, idGen IDGenerator, timeSrc TimeSource) *Service {
	ctx, cancel := context.WithCancel(context.Background())
	return &Service{
		db:          db,
		extractor:   extractor,
		storage:     storage,
		idGenerator: idGen,
		timeSource:  timeSrc,
		sessions:    make(map[string]*session),
		ctx:         ctx,
		cancel:      cancel,
	}
}

// Close cancels in-flight extractions and waits for them to return
func (s *Service) Close() {
	s.cancel()
	s.wg.Wait()
}

var (
	unsafeNameChars = regexp.MustCompile(`[^a-zA-Z0-9\s\-_]`)
	unsafeTaskChars = regexp.MustCompile(`[^a-zA-Z0-9\-_]`)
	whitespaceRuns  = regexp.MustCompile(`\s+`)
)

// sanitizeFilename cleans up a filename by removing special characters and truncating length
func sanitizeFilename(filename string) string {
	ext := filepath.Ext(filename)
	base := strings.TrimSuffix(filepath.Base(filename), ext)

	base = unsafeNameChars.ReplaceAllString(base, "")
	base = whitespaceRuns.ReplaceAllString(base, " ")
	base = strings.TrimSpace(base)

	// Truncate to reasonable length (50 chars for base, plus extension)
	if len(base) > 50 {
		base = base[:50]
	}
	if base == "" {
		base = "voucher"
	}
	if e := unsafeNameChars.ReplaceAllString(strings.TrimPrefix(ext, "."), ""); e != "" {
		base += "." + e
	}
	return base
}

// sanitizeTaskID keeps only characters that are safe in an object path
func sanitizeTaskID(taskID string) string {
	task := unsafeTaskChars.ReplaceAllString(strings.TrimSpace(taskID), "")
	if len(task) > 64 {
		task = task[:64]
	}
	return task
}

// session looks up a live capture session
func (s *Service) session(id string) (*session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	return sess, nil
}

// PreferredMode returns the stored mode preference, or DefaultMode
func (s *Service) PreferredMode() preprocess.Mode {
	mode, ok, err := s.db.GetMode()
	if err != nil {
		slog.Warn("Failed to read mode preference, using default", "error", err)
		return DefaultMode
	}
	if !ok {
		return DefaultMode
	}
	return mode
}

// SetPreferredMode stores the mode used by new captures
func (s *Service) SetPreferredMode(mode preprocess.Mode) error {
	if _, err := mode.MarshalText(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidMode, err)
	}
	if err := s.db.SaveMode(mode); err != nil {
		return fmt.Errorf("%w: saving mode preference: %w", ErrPersist, err)
	}
	return nil
}

// StartCapture creates a session in Capturing for the given task.
// Its mode is read from the preference store.
func (s *Service) StartCapture(taskID string) (*View, error) {
	task := sanitizeTaskID(taskID)
	if task == "" {
		return nil, ErrTaskRequired
	}

	now := s.timeSource.Now()
	sess := &session{
		id:         s.idGenerator.Generate(),
		taskID:     task,
		state:      StateIdle,
		mode:       s.PreferredMode(),
		extraction: ExtractionStatus{State: ExtractionIdle},
		createdAt:  now,
		updatedAt:  now,
	}
	if err := sess.transition(StateCapturing, now); err != nil {
		return nil, err
	}

	view := sess.view()

	s.mu.Lock()
	s.sessions[sess.id] = sess
	s.mu.Unlock()

	slog.Info("Started capture", "session", sess.id, "task", task, "mode", sess.mode)
	return view, nil
}

// GetSession returns a snapshot of a capture session
func (s *Service) GetSession(id string) (*View, error) {
	sess, err := s.session(id)
	if err != nil {
		return nil, err
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()
	return sess.view(), nil
}

// Submit processes a captured file. A session left Idle by an earlier
// rejected file may submit again. Non-image or corrupt input sends the
// session back to Idle; on success extraction starts in the background.
func (s *Service) Submit(ctx context.Context, id, filename string, data []byte, contentType string) (*View, error) {
	sess, err := s.session(id)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()

	now := s.timeSource.Now()
	if sess.state == StateIdle {
		if err := sess.transition(StateCapturing, now); err != nil {
			return nil, err
		}
	}
	if err := sess.transition(StateProcessing, now); err != nil {
		return nil, err
	}

	start := time.Now()
	result, err := preprocess.Process(data, contentType, sess.mode)
	if err != nil {
		slog.Warn("Rejected capture",
			"session", sess.id,
			"filename", filename,
			"content_type", contentType,
			"file_size", len(data),
			"error", err,
		)
		sess.original, sess.processed, sess.threshold = nil, nil, 0
		sess.lastErr = err.Error()
		if terr := sess.transition(StateIdle, now); terr != nil {
			return nil, terr
		}
		return nil, err
	}

	sess.filename = sanitizeFilename(filename)
	sess.original = result.Original
	sess.processed = result.Processed
	sess.threshold = result.Threshold
	sess.lastErr = ""
	if err := sess.transition(StateAwaitingConfirmation, now); err != nil {
		return nil, err
	}

	slog.Info("Processed capture",
		"session", sess.id,
		"mode", sess.mode,
		"width", result.Original.Width,
		"height", result.Original.Height,
		"threshold", result.Threshold,
		"duration", time.Since(start),
	)

	if s.extractor != nil {
		s.startExtraction(sess)
	}
	return sess.view(), nil
}

// Analyze re-runs field extraction on the current processed image. An
// extraction already in flight is cancelled and its result discarded.
func (s *Service) Analyze(id string) (*View, error) {
	sess, err := s.session(id)
	if err != nil {
		return nil, err
	}
	if s.extractor == nil {
		return nil, fmt.Errorf("%w: no extractor configured", scanning.ErrExtraction)
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()
	if err := sess.requireState(StateAwaitingConfirmation); err != nil {
		return nil, err
	}
	s.startExtraction(sess)
	return sess.view(), nil
}

// startExtraction runs the extractor on the processed buffer in the
// background. Caller holds sess.mu.
func (s *Service) startExtraction(sess *session) {
	sess.cancelExtraction()
	generation := sess.generation
	ctx, cancel := context.WithCancel(s.ctx)
	sess.cancelExtract = cancel
	sess.extraction = ExtractionStatus{State: ExtractionPending}
	buf := sess.processed

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer cancel()

		fields, err := s.extract(ctx, buf)

		sess.mu.Lock()
		defer sess.mu.Unlock()
		if sess.generation != generation || sess.state != StateAwaitingConfirmation {
			slog.Debug("Discarding stale extraction", "session", sess.id, "error", err)
			return
		}
		sess.cancelExtract = nil
		if err != nil {
			slog.Error("Failed to extract fields", "session", sess.id, "error", err)
			sess.extraction = ExtractionStatus{State: ExtractionFailed, Error: err.Error()}
			return
		}
		sess.form = sess.form.Merge(fields)
		sess.extraction = ExtractionStatus{State: ExtractionDone}
		sess.updatedAt = s.timeSource.Now()
	}()
}

// extract builds the bounded payload and calls the extractor
func (s *Service) extract(ctx context.Context, buf *preprocess.PixelBuffer) (*scanning.ExtractedFields, error) {
	payload, err := preprocess.ExtractionPayload(buf)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", scanning.ErrExtraction, err)
	}
	return s.extractor.Extract(ctx, payload)
}

// SetMode stores the mode preference and applies it to the session. While
// awaiting confirmation the processed image is rebuilt from the original
// buffer without decoding again, and extraction restarts on the new image.
func (s *Service) SetMode(id string, mode preprocess.Mode) (*View, error) {
	if _, err := mode.MarshalText(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidMode, err)
	}
	sess, err := s.session(id)
	if err != nil {
		return nil, err
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()
	if err := sess.requireState(StateIdle, StateCapturing, StateAwaitingConfirmation); err != nil {
		return nil, err
	}
	if err := s.SetPreferredMode(mode); err != nil {
		return nil, err
	}

	sess.mode = mode
	sess.updatedAt = s.timeSource.Now()
	if sess.state == StateAwaitingConfirmation && sess.original != nil {
		result := preprocess.Reprocess(sess.original, mode)
		sess.processed = result.Processed
		sess.threshold = result.Threshold
		slog.Info("Reprocessed capture", "session", sess.id, "mode", mode, "threshold", result.Threshold)

		// Fields read from the previous processed image must not be merged
		if s.extractor != nil {
			s.startExtraction(sess)
		} else {
			sess.cancelExtraction()
		}
	}
	return sess.view(), nil
}

// UpdateForm stores the user's manual edits
func (s *Service) UpdateForm(id string, form scanning.Form) (*View, error) {
	sess, err := s.session(id)
	if err != nil {
		return nil, err
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()
	if err := sess.requireState(StateIdle, StateCapturing, StateAwaitingConfirmation); err != nil {
		return nil, err
	}
	sess.form = form
	sess.updatedAt = s.timeSource.Now()
	return sess.view(), nil
}

// Retake drops the current image and returns the session to Capturing
func (s *Service) Retake(id string) (*View, error) {
	sess, err := s.session(id)
	if err != nil {
		return nil, err
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()
	if err := sess.transition(StateCapturing, s.timeSource.Now()); err != nil {
		return nil, err
	}
	sess.cancelExtraction()
	sess.original, sess.processed, sess.threshold = nil, nil, 0
	sess.filename = ""
	return sess.view(), nil
}

// Discard destroys the session. A session being saved cannot be discarded.
func (s *Service) Discard(id string) error {
	sess, err := s.session(id)
	if err != nil {
		return err
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()
	if sess.state == StateSaving {
		return fmt.Errorf("%w: capture is being saved", ErrInvalidTransition)
	}
	sess.cancelExtraction()

	s.mu.Lock()
	delete(s.sessions, id)
	s.mu.Unlock()

	slog.Info("Discarded capture", "session", id)
	return nil
}

// Image encodes one variant of the current capture for display
func (s *Service) Image(id string, processed bool) ([]byte, error) {
	sess, err := s.session(id)
	if err != nil {
		return nil, err
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()
	buf := sess.original
	if processed {
		buf = sess.processed
	}
	if buf == nil {
		return nil, fmt.Errorf("%w: no image in state %s", ErrInvalidTransition, sess.state)
	}
	return preprocess.Encode(buf, preprocess.ArchiveQuality)
}

// DetectRegion estimates the content box of the current capture. The result
// is a crop-assist hint and is never applied to the stored images.
func (s *Service) DetectRegion(id string) (preprocess.BoundingBox, error) {
	sess, err := s.session(id)
	if err != nil {
		return preprocess.BoundingBox{}, err
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()
	if err := sess.requireState(StateAwaitingConfirmation); err != nil {
		return preprocess.BoundingBox{}, err
	}

	buf, threshold := sess.processed, sess.threshold
	if sess.mode == preprocess.Original {
		// Original mode never solves a threshold; borrow the Soft pass
		result := preprocess.Reprocess(sess.original, preprocess.Soft)
		buf, threshold = result.Processed, result.Threshold
	}
	return preprocess.DetectContentRegion(buf, threshold), nil
}

// Confirm uploads both image variants and persists the expense. Pending
// extraction is cancelled first, so late results are never applied. On
// failure the session returns to AwaitingConfirmation so the user can retry.
func (s *Service) Confirm(ctx context.Context, id string, form scanning.Form) (*Expense, error) {
	sess, err := s.session(id)
	if err != nil {
		return nil, err
	}

	sess.mu.Lock()
	if err := sess.transition(StateSaving, s.timeSource.Now()); err != nil {
		sess.mu.Unlock()
		return nil, err
	}
	sess.cancelExtraction()
	sess.form = form
	draft := &Expense{
		TaskID:      sess.taskID,
		Amount:      form.Amount,
		Description: form.Description,
		Date:        form.Date,
		Category:    form.Category,
		Mode:        sess.mode,
		Filename:    sess.filename,
	}
	original, processed := sess.original, sess.processed
	sess.mu.Unlock()

	// Saving excludes every other operation, so the I/O runs unlocked
	expense, err := s.save(ctx, draft, original, processed)

	sess.mu.Lock()
	defer sess.mu.Unlock()
	now := s.timeSource.Now()
	if err != nil {
		sess.lastErr = err.Error()
		if terr := sess.transition(StateFailed, now); terr != nil {
			return nil, terr
		}
		if terr := sess.transition(StateAwaitingConfirmation, now); terr != nil {
			return nil, terr
		}
		return nil, err
	}

	if err := sess.transition(StateCompleted, now); err != nil {
		return nil, err
	}
	s.mu.Lock()
	delete(s.sessions, id)
	s.mu.Unlock()

	slog.Info("Saved expense", "session", id, "expense", expense.ID, "task", expense.TaskID)
	return expense, nil
}

// save uploads both variants under tasks/{task}/{timestamp}_{variant}.jpg and
// writes the expense. Uploaded objects are not removed when the write fails.
func (s *Service) save(ctx context.Context, expense *Expense, original, processed *preprocess.PixelBuffer) (*Expense, error) {
	now := s.timeSource.Now()
	expense.ID = s.idGenerator.Generate()
	expense.CreatedAt = now
	prefix := fmt.Sprintf("tasks/%s/%d", expense.TaskID, now.UnixMilli())

	variants := []struct {
		name string
		buf  *preprocess.PixelBuffer
		url  *string
	}{
		{"original", original, &expense.OriginalURL},
		{"processed", processed, &expense.ProcessedURL},
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, v := range variants {
		g.Go(func() error {
			data, err := preprocess.Encode(v.buf, preprocess.ArchiveQuality)
			if err != nil {
				return fmt.Errorf("encoding %s: %w", v.name, err)
			}
			url, err := s.storage.Upload(gctx, fmt.Sprintf("%s_%s.jpg", prefix, v.name), data, "image/jpeg")
			if err != nil {
				return fmt.Errorf("uploading %s: %w", v.name, err)
			}
			*v.url = url
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		slog.Error("Failed to upload capture",
			"task", expense.TaskID,
			"original_url", expense.OriginalURL,
			"processed_url", expense.ProcessedURL,
			"error", err,
		)
		return nil, fmt.Errorf("%w: %w", ErrUpload, err)
	}

	if err := s.db.SaveExpense(expense); err != nil {
		// Known gap: the uploads above are left in storage
		slog.Warn("Failed to save expense, uploaded images are orphaned",
			"task", expense.TaskID,
			"original_url", expense.OriginalURL,
			"processed_url", expense.ProcessedURL,
			"error", err,
		)
		return nil, fmt.Errorf("%w: saving expense: %w", ErrPersist, err)
	}
	return expense, nil
}

// GetExpense retrieves an expense by ID
func (s *Service) GetExpense(id string) (*Expense, error) {
	expense, err := s.db.GetExpense(id)
	if err != nil {
		return nil, fmt.Errorf("getting expense: %w", err)
	}
	return expense, nil
}

// ListExpenses returns all expenses
func (s *Service) ListExpenses() ([]*Expense, error) {
	expenses, err := s.db.ListExpenses()
	if err != nil {
		return nil, fmt.Errorf("listing expenses: %w", err)
	}
	return expenses, nil
}
