package pipeline

import (
	"fmt"
	"time"

	"github.com/filesmile/backend/internal/models"
)

// Action is a state change request. The set of actions is closed.
type Action interface {
	apply(State) (State, error)
}

// Reduce applies a to s. On error the returned state is s unchanged.
// Reduce never mutates s.
func Reduce(s State, a Action) (State, error) {
	next, err := a.apply(s)
	if err != nil {
		return s, err
	}
	return next, nil
}

// Direction is a cursor movement.
type Direction string

const (
	First Direction = "first"
	Prev  Direction = "prev"
	Next  Direction = "next"
	Last  Direction = "last"
)

// ParseDirection validates a direction name.
func ParseDirection(s string) (Direction, error) {
	switch d := Direction(s); d {
	case First, Prev, Next, Last:
		return d, nil
	}
	return "", fmt.Errorf("unknown direction %q", s)
}

type (
	// AddFiles appends files in status pending. Detection is not started.
	AddFiles struct{ Files []models.BarcodeFile }

	// BeginDetection moves a file to detecting. Retries are accepted from
	// error and not_found.
	BeginDetection struct{ ID string }

	// DetectionSucceeded stores the detected barcode. Attempt is the
	// file's attempt number at BeginDetection, as for the other results.
	DetectionSucceeded struct {
		ID         string
		Attempt    int
		Barcode    models.BarcodeResult
		Method     string
		PageNumber int
	}

	// DetectionNotFound records that no barcode was found.
	DetectionNotFound struct {
		ID      string
		Attempt int
	}

	// MatchSucceeded attaches the ERP record to a detected file.
	MatchSucceeded struct {
		ID       string
		Attempt  int
		Document models.MatchedDocument
	}

	// ManualMatch assigns a document picked by the user to a file whose
	// detection or lookup did not produce one. The error is cleared.
	ManualMatch struct {
		ID       string
		Document models.MatchedDocument
	}

	// SetError marks a file failed with a message, whatever it was doing.
	SetError struct {
		ID      string
		Message string
	}

	// DetectionFailed records a detection or matching failure. It applies
	// only while the file is still detecting or detected.
	DetectionFailed struct {
		ID      string
		Attempt int
		Message string
	}

	// UploadFailed records a rejected upload of an uploading file.
	UploadFailed struct {
		ID      string
		Message string
	}

	// Requeue abandons any work on a file and returns it to pending.
	Requeue struct{ ID string }

	// BeginUpload moves a file to uploading. Attach uploads need a matched
	// file; export uploads take pending or failed files.
	BeginUpload struct {
		ID     string
		Export bool
	}

	// UploadSucceeded completes an upload.
	UploadSucceeded struct{ ID string }

	// SetUploadProgress sets the batch upload progress in percent.
	SetUploadProgress struct{ Percent float64 }

	// Remove deletes a file. Unknown ids are ignored.
	Remove struct{ ID string }

	// Clear empties the batch.
	Clear struct{}

	// Select moves the cursor to Index. Out of range indexes are ignored.
	Select struct{ Index int }

	// Navigate moves the cursor without wrapping.
	Navigate struct{ Direction Direction }
)

// update clones the batch and applies fn to the file with the given id.
func update(s State, id string, fn func(f *models.BarcodeFile) error) (State, error) {
	i := s.indexOf(id)
	if i < 0 {
		return s, fmt.Errorf("%w: %s", ErrFileNotFound, id)
	}
	next := s
	next.Files = append([]models.BarcodeFile(nil), s.Files...)
	f := next.Files[i]
	if err := fn(&f); err != nil {
		return s, err
	}
	f.Timestamp = time.Now()
	next.Files[i] = f
	return next, nil
}

func transitionErr(f *models.BarcodeFile, to models.FileStatus) error {
	if f.Status.InFlight() && to.InFlight() {
		return fmt.Errorf("%w: %s is %s", ErrFileBusy, f.ID, f.Status)
	}
	return fmt.Errorf("%w: %s %s -> %s", ErrInvalidTransition, f.ID, f.Status, to)
}

func expect(f *models.BarcodeFile, to models.FileStatus, from ...models.FileStatus) error {
	for _, st := range from {
		if f.Status == st {
			return nil
		}
	}
	return transitionErr(f, to)
}

// sameAttempt rejects results of a detection that was requeued and begun
// again while it ran.
func sameAttempt(f *models.BarcodeFile, attempt int) error {
	if f.Attempt != attempt {
		return fmt.Errorf("%w: %s attempt %d, current %d", ErrStaleResult, f.ID, attempt, f.Attempt)
	}
	return nil
}

func releaseCurrent(s State, id string) State {
	if s.CurrentProcessingID == id {
		s.CurrentProcessingID = ""
	}
	return s
}

func (a AddFiles) apply(s State) (State, error) {
	seen := make(map[string]bool, len(s.Files)+len(a.Files))
	for _, f := range s.Files {
		seen[f.ID] = true
	}
	next := s
	next.Files = append(make([]models.BarcodeFile, 0, len(s.Files)+len(a.Files)), s.Files...)
	now := time.Now()
	for _, f := range a.Files {
		if f.ID == "" || seen[f.ID] {
			return s, fmt.Errorf("%w: %q", ErrDuplicateFile, f.ID)
		}
		seen[f.ID] = true
		next.Files = append(next.Files, models.BarcodeFile{
			ID:        f.ID,
			FileName:  f.FileName,
			FileData:  f.FileData,
			FileType:  f.FileType,
			Size:      f.Size,
			Status:    models.FileStatusPending,
			Timestamp: now,
		})
	}
	return next, nil
}

func (a BeginDetection) apply(s State) (State, error) {
	next, err := update(s, a.ID, func(f *models.BarcodeFile) error {
		if err := expect(f, models.FileStatusDetecting,
			models.FileStatusPending, models.FileStatusError, models.FileStatusNotFound); err != nil {
			return err
		}
		resetDetection(f)
		f.Status = models.FileStatusDetecting
		f.Attempt++
		return nil
	})
	if err != nil {
		return s, err
	}
	next.CurrentProcessingID = a.ID
	return next, nil
}

func resetDetection(f *models.BarcodeFile) {
	f.Barcode, f.Prefix, f.DocNumber, f.Method = "", "", "", ""
	f.PageNumber = 0
	f.MatchedDocument = nil
	f.Error = ""
}

func (a DetectionSucceeded) apply(s State) (State, error) {
	return update(s, a.ID, func(f *models.BarcodeFile) error {
		if err := expect(f, models.FileStatusDetected, models.FileStatusDetecting); err != nil {
			return err
		}
		if err := sameAttempt(f, a.Attempt); err != nil {
			return err
		}
		f.Status = models.FileStatusDetected
		f.Barcode = a.Barcode.Value
		f.Prefix = a.Barcode.Prefix
		f.DocNumber = a.Barcode.DocNumber
		f.Method = a.Method
		f.PageNumber = a.PageNumber
		return nil
	})
}

func (a DetectionNotFound) apply(s State) (State, error) {
	next, err := update(s, a.ID, func(f *models.BarcodeFile) error {
		if err := expect(f, models.FileStatusNotFound, models.FileStatusDetecting); err != nil {
			return err
		}
		if err := sameAttempt(f, a.Attempt); err != nil {
			return err
		}
		f.Status = models.FileStatusNotFound
		return nil
	})
	if err != nil {
		return s, err
	}
	return releaseCurrent(next, a.ID), nil
}

func (a MatchSucceeded) apply(s State) (State, error) {
	next, err := update(s, a.ID, func(f *models.BarcodeFile) error {
		if err := expect(f, models.FileStatusMatched, models.FileStatusDetected); err != nil {
			return err
		}
		if err := sameAttempt(f, a.Attempt); err != nil {
			return err
		}
		doc := a.Document
		f.Status = models.FileStatusMatched
		f.MatchedDocument = &doc
		return nil
	})
	if err != nil {
		return s, err
	}
	return releaseCurrent(next, a.ID), nil
}

func (a ManualMatch) apply(s State) (State, error) {
	next, err := update(s, a.ID, func(f *models.BarcodeFile) error {
		if err := expect(f, models.FileStatusMatched,
			models.FileStatusDetected, models.FileStatusNotFound, models.FileStatusError, models.FileStatusMatched); err != nil {
			return err
		}
		doc := a.Document
		f.Status = models.FileStatusMatched
		f.MatchedDocument = &doc
		f.Error = ""
		return nil
	})
	if err != nil {
		return s, err
	}
	return releaseCurrent(next, a.ID), nil
}

func (a SetError) apply(s State) (State, error) {
	next, err := update(s, a.ID, func(f *models.BarcodeFile) error {
		if f.Status == models.FileStatusUploaded {
			return transitionErr(f, models.FileStatusError)
		}
		f.Status = models.FileStatusError
		f.Error = a.Message
		return nil
	})
	if err != nil {
		return s, err
	}
	return releaseCurrent(next, a.ID), nil
}

func (a DetectionFailed) apply(s State) (State, error) {
	return failFrom(s, a.ID, a.Message, func(f *models.BarcodeFile) error {
		return sameAttempt(f, a.Attempt)
	}, models.FileStatusDetecting, models.FileStatusDetected)
}

func (a UploadFailed) apply(s State) (State, error) {
	return failFrom(s, a.ID, a.Message, nil, models.FileStatusUploading)
}

func failFrom(s State, id, msg string, check func(*models.BarcodeFile) error, from ...models.FileStatus) (State, error) {
	next, err := update(s, id, func(f *models.BarcodeFile) error {
		if err := expect(f, models.FileStatusError, from...); err != nil {
			return err
		}
		if check != nil {
			if err := check(f); err != nil {
				return err
			}
		}
		f.Status = models.FileStatusError
		f.Error = msg
		return nil
	})
	if err != nil {
		return s, err
	}
	return releaseCurrent(next, id), nil
}

func (a Requeue) apply(s State) (State, error) {
	next, err := update(s, a.ID, func(f *models.BarcodeFile) error {
		if err := expect(f, models.FileStatusPending, models.FileStatusPending,
			models.FileStatusDetecting, models.FileStatusError, models.FileStatusNotFound); err != nil {
			return err
		}
		resetDetection(f)
		f.Status = models.FileStatusPending
		return nil
	})
	if err != nil {
		return s, err
	}
	return releaseCurrent(next, a.ID), nil
}

func (a BeginUpload) apply(s State) (State, error) {
	from := []models.FileStatus{models.FileStatusMatched}
	if a.Export {
		from = []models.FileStatus{models.FileStatusPending, models.FileStatusError}
	}
	next, err := update(s, a.ID, func(f *models.BarcodeFile) error {
		if err := expect(f, models.FileStatusUploading, from...); err != nil {
			return err
		}
		f.Status = models.FileStatusUploading
		f.Error = ""
		return nil
	})
	if err != nil {
		return s, err
	}
	next.CurrentProcessingID = a.ID
	return next, nil
}

func (a UploadSucceeded) apply(s State) (State, error) {
	next, err := update(s, a.ID, func(f *models.BarcodeFile) error {
		if err := expect(f, models.FileStatusUploaded, models.FileStatusUploading); err != nil {
			return err
		}
		f.Status = models.FileStatusUploaded
		return nil
	})
	if err != nil {
		return s, err
	}
	return releaseCurrent(next, a.ID), nil
}

func (a SetUploadProgress) apply(s State) (State, error) {
	p := a.Percent
	if p < 0 {
		p = 0
	} else if p > 100 {
		p = 100
	}
	s.UploadProgress = p
	return s, nil
}

func (a Remove) apply(s State) (State, error) {
	i := s.indexOf(a.ID)
	if i < 0 {
		return s, nil
	}
	next := s
	next.Files = make([]models.BarcodeFile, 0, len(s.Files)-1)
	next.Files = append(next.Files, s.Files[:i]...)
	next.Files = append(next.Files, s.Files[i+1:]...)
	next.Selected = clampIndex(s.Selected, len(next.Files))
	return releaseCurrent(next, a.ID), nil
}

func (Clear) apply(State) (State, error) {
	return State{Files: []models.BarcodeFile{}}, nil
}

func (a Select) apply(s State) (State, error) {
	if a.Index < 0 || a.Index >= len(s.Files) {
		return s, nil
	}
	s.Selected = a.Index
	return s, nil
}

func (a Navigate) apply(s State) (State, error) {
	n := len(s.Files)
	if n == 0 {
		return s, nil
	}
	switch a.Direction {
	case First:
		s.Selected = 0
	case Last:
		s.Selected = n - 1
	case Prev:
		if s.Selected > 0 {
			s.Selected--
		}
	case Next:
		if s.Selected < n-1 {
			s.Selected++
		}
	default:
		return s, fmt.Errorf("unknown direction %q", a.Direction)
	}
	return s, nil
}
