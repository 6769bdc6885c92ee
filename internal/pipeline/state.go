// Package pipeline tracks a batch of files through detection, matching and
// upload. State changes go through Reduce, a pure function over (State, Action).
package pipeline

import (
	"errors"

	"github.com/filesmile/backend/internal/models"
)

var (
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrFileBusy          = errors.New("file is being processed")
	ErrFileNotFound      = errors.New("file not found")
	ErrDuplicateFile     = errors.New("duplicate file id")
	ErrCacheNotReady     = errors.New("prefix cache not ready")
	ErrStaleResult       = errors.New("result of a superseded detection")
)

// State is one batch. Files keep insertion order. Selected is a valid index
// whenever Files is non-empty and 0 otherwise.
type State struct {
	Files               []models.BarcodeFile `json:"files" msgpack:"files"`
	Selected            int                  `json:"selected" msgpack:"selected"`
	UploadProgress      float64              `json:"uploadProgress" msgpack:"uploadProgress"` // 0-100
	CurrentProcessingID string               `json:"currentProcessingId,omitempty" msgpack:"currentProcessingId,omitempty"`
}

// Clone returns a copy that shares nothing mutable with s.
func (s State) Clone() State {
	out := s
	out.Files = make([]models.BarcodeFile, len(s.Files))
	for i, f := range s.Files {
		if f.MatchedDocument != nil {
			doc := *f.MatchedDocument
			f.MatchedDocument = &doc
		}
		out.Files[i] = f
	}
	return out
}

func (s State) indexOf(id string) int {
	for i := range s.Files {
		if s.Files[i].ID == id {
			return i
		}
	}
	return -1
}

// Find returns the file with the given id.
func (s State) Find(id string) (models.BarcodeFile, bool) {
	if i := s.indexOf(id); i >= 0 {
		return s.Files[i], true
	}
	return models.BarcodeFile{}, false
}

// SelectedFile returns the file under the cursor.
func (s State) SelectedFile() (models.BarcodeFile, bool) {
	if len(s.Files) == 0 {
		return models.BarcodeFile{}, false
	}
	return s.Files[s.Selected], true
}

// MatchedCount returns the number of files in status matched.
func (s State) MatchedCount() int {
	return s.count(models.FileStatusMatched)
}

// PendingFiles returns the files still waiting for detection.
func (s State) PendingFiles() []models.BarcodeFile {
	return s.filter(models.FileStatusPending)
}

func (s State) count(status models.FileStatus) int {
	n := 0
	for _, f := range s.Files {
		if f.Status == status {
			n++
		}
	}
	return n
}

func (s State) filter(statuses ...models.FileStatus) []models.BarcodeFile {
	var out []models.BarcodeFile
	for _, f := range s.Files {
		for _, st := range statuses {
			if f.Status == st {
				out = append(out, f)
				break
			}
		}
	}
	return out
}

// Counts returns the number of files per status.
func (s State) Counts() map[models.FileStatus]int {
	counts := make(map[models.FileStatus]int)
	for _, f := range s.Files {
		counts[f.Status]++
	}
	return counts
}

// Busy reports whether any file is detecting or uploading.
func (s State) Busy() bool {
	for _, f := range s.Files {
		if f.Status.InFlight() {
			return true
		}
	}
	return false
}

func clampIndex(i, n int) int {
	if n == 0 || i < 0 {
		return 0
	}
	if i >= n {
		return n - 1
	}
	return i
}
