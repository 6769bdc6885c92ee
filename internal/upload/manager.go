package upload

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/filesmile/backend/internal/pipeline"
)

// Status represents the upload job status.
type Status string

const (
	StatusRunning  Status = "running"
	StatusComplete Status = "complete"
	StatusError    Status = "error"
)

// ErrJobRunning is returned when a session already has an active upload job.
var ErrJobRunning = errors.New("upload already running for session")

// Job represents an async batch upload.
type Job struct {
	ID          string              `json:"id"`
	SessionID   string              `json:"sessionId"`
	Mode        pipeline.UploadMode `json:"mode"`
	Status      Status              `json:"status"`
	Progress    float64             `json:"progress"`
	Total       int                 `json:"total"`
	Done        int                 `json:"done"`
	Uploaded    int                 `json:"uploaded"`
	Failed      int                 `json:"failed"`
	Error       string              `json:"error,omitempty"`
	CreatedAt   time.Time           `json:"createdAt"`
	CompletedAt *time.Time          `json:"completedAt,omitempty"`
}

// Batch is the upload phase of a session's pipeline.
type Batch interface {
	UploadAll(ctx context.Context, mode pipeline.UploadMode, onProgress func(done, total int)) (pipeline.UploadSummary, error)
}

// Manager runs upload jobs in the background and keeps their status for polling.
type Manager struct {
	jobs   map[string]*Job
	active map[string]string // session id -> running job id
	mu     sync.RWMutex
	log    zerolog.Logger
}

// NewManager creates a new upload job manager.
func NewManager(log zerolog.Logger) *Manager {
	return &Manager{
		jobs:   make(map[string]*Job),
		active: make(map[string]string),
		log:    log,
	}
}

// StartJob begins uploading a session's batch. ctx bounds the job, not the call.
func (m *Manager) StartJob(ctx context.Context, sessionID string, batch Batch, mode pipeline.UploadMode) (Job, error) {
	m.mu.Lock()
	if _, busy := m.active[sessionID]; busy {
		m.mu.Unlock()
		return Job{}, ErrJobRunning
	}
	job := &Job{
		ID:        uuid.New().String(),
		SessionID: sessionID,
		Mode:      mode,
		Status:    StatusRunning,
		CreatedAt: time.Now(),
	}
	m.jobs[job.ID] = job
	m.active[sessionID] = job.ID
	snapshot := *job
	m.mu.Unlock()

	go m.processJob(ctx, job, batch)

	return snapshot, nil
}

// GetJob returns a copy of a job.
func (m *Manager) GetJob(id string) (Job, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	job, ok := m.jobs[id]
	if !ok {
		return Job{}, false
	}
	return *job, true
}

// ActiveJob returns the running job of a session, if any.
func (m *Manager) ActiveJob(sessionID string) (Job, bool) {
	m.mu.RLock()
	id, ok := m.active[sessionID]
	m.mu.RUnlock()
	if !ok {
		return Job{}, false
	}
	return m.GetJob(id)
}

func (m *Manager) processJob(ctx context.Context, job *Job, batch Batch) {
	log := m.log.With().Str("job", job.ID[:8]).Str("session", job.SessionID).Logger()
	log.Info().Str("mode", string(job.Mode)).Msg("upload job started")

	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Msg("upload job panicked")
			m.finish(job, pipeline.UploadSummary{}, errors.New("upload job panicked"))
		}
	}()

	sum, err := batch.UploadAll(ctx, job.Mode, func(done, total int) {
		m.updateProgress(job, done, total)
	})
	m.finish(job, sum, err)

	if err != nil {
		log.Warn().Err(err).Msg("upload job stopped")
		return
	}
	log.Info().Int("uploaded", sum.Uploaded).Int("failed", sum.Failed).Msg("upload job complete")
}

func (m *Manager) updateProgress(job *Job, done, total int) {
	m.mu.Lock()
	defer m.mu.Unlock()

	job.Done = done
	job.Total = total
	if total > 0 {
		job.Progress = float64(done) * 100 / float64(total)
	}
}

func (m *Manager) finish(job *Job, sum pipeline.UploadSummary, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	job.CompletedAt = &now
	job.Total = sum.Total
	job.Uploaded = sum.Uploaded
	job.Failed = sum.Failed
	job.Done = sum.Uploaded + sum.Failed
	if err != nil {
		job.Status = StatusError
		job.Error = err.Error()
	} else {
		job.Status = StatusComplete
		job.Progress = 100
	}
	if m.active[job.SessionID] == job.ID {
		delete(m.active, job.SessionID)
	}
}

// CleanupOldJobs removes finished jobs older than maxAge.
func (m *Manager) CleanupOldJobs(maxAge time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()

	cutoff := time.Now().Add(-maxAge)
	for id, job := range m.jobs {
		if job.Status == StatusComplete || job.Status == StatusError {
			if job.CompletedAt != nil && job.CompletedAt.Before(cutoff) {
				delete(m.jobs, id)
			}
		}
	}
}
