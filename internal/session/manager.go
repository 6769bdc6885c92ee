package session

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/filesmile/backend/internal/models"
	"github.com/filesmile/backend/internal/pipeline"
	"github.com/filesmile/backend/internal/prefix"
	"github.com/filesmile/backend/internal/storage"
)

// MaxSessions limits concurrent sessions to bound spool usage.
const MaxSessions = 10

// SessionMaxAge is how long an idle session is kept before cleanup.
const SessionMaxAge = 30 * time.Minute

// SessionKeepAliveWindow protects recently used sessions from eviction.
const SessionKeepAliveWindow = 5 * time.Minute

// ErrNotFound is returned for unknown session ids.
var ErrNotFound = errors.New("session not found")

// ErrTooManySessions is returned when the cap is reached and nothing is idle.
var ErrTooManySessions = errors.New("too many active sessions")

// ErrBusy is returned when a batch run is already in progress.
var ErrBusy = errors.New("session is processing")

// Services are the collaborators shared by every session.
type Services struct {
	Catalog   prefix.Catalog
	Detector  pipeline.ImageDetector
	Extractor pipeline.PDFExtractor
	Searcher  pipeline.DocumentSearcher
	Uploader  pipeline.Uploader
}

// Config tunes a Manager.
type Config struct {
	SpoolDir    string
	MaxSessions int
	LoadTimeout time.Duration // prefix catalog load; 30s when unset
	Pipeline    pipeline.Config
}

// Manager owns the active batch sessions.
type Manager struct {
	sessions map[string]*Session
	mu       sync.RWMutex
	svc      Services
	cfg      Config
	log      zerolog.Logger
}

// NewManager creates a session manager.
func NewManager(svc Services, cfg Config, log zerolog.Logger) *Manager {
	if cfg.SpoolDir == "" {
		cfg.SpoolDir = "./data/spool"
	}
	if cfg.MaxSessions <= 0 {
		cfg.MaxSessions = MaxSessions
	}
	if cfg.LoadTimeout <= 0 {
		cfg.LoadTimeout = 30 * time.Second
	}
	return &Manager{
		sessions: make(map[string]*Session),
		svc:      svc,
		cfg:      cfg,
		log:      log,
	}
}

// Create starts a session for user. The prefix cache loads in the background.
func (m *Manager) Create(user string) (*Session, error) {
	if err := m.evictIfNeeded(); err != nil {
		return nil, err
	}

	id := uuid.New().String()
	payloads, err := storage.NewLocalStore(filepath.Join(m.cfg.SpoolDir, id))
	if err != nil {
		return nil, fmt.Errorf("creating session spool: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Session{
		ID:        id,
		User:      user,
		CreatedAt: time.Now(),
		Store:     pipeline.NewStore(),
		Cache:     prefix.NewCache(),
		Payloads:  payloads,
		ctx:       ctx,
		cancel:    cancel,
		catalog:   m.svc.Catalog,
		timeout:   m.cfg.LoadTimeout,
		log:       m.log.With().Str("session", id[:8]).Logger(),
	}
	s.touch()

	pcfg := m.cfg.Pipeline
	if pcfg.UserLogin == "" {
		pcfg.UserLogin = user
	}
	s.Processor = pipeline.NewProcessor(pipeline.Deps{
		Store:     s.Store,
		Cache:     s.Cache,
		Payloads:  payloads,
		Detector:  m.svc.Detector,
		Extractor: m.svc.Extractor,
		Searcher:  m.svc.Searcher,
		Uploader:  m.svc.Uploader,
	}, pcfg, s.log)

	m.mu.Lock()
	m.sessions[id] = s
	m.mu.Unlock()

	s.log.Info().Str("user", user).Msg("session created")
	go func() {
		if err := s.ReloadPrefixes(ctx); err != nil {
			s.log.Warn().Err(err).Msg("prefix load failed")
		}
	}()

	return s, nil
}

// Get returns a session and marks it as used.
func (m *Manager) Get(id string) (*Session, error) {
	m.mu.RLock()
	s, ok := m.sessions[id]
	m.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	s.touch()
	return s, nil
}

// TouchSession updates the LastAccessed timestamp for a session.
func (m *Manager) TouchSession(id string) bool {
	_, err := m.Get(id)
	return err == nil
}

// Delete ends a session, cancelling its work and removing its payloads.
func (m *Manager) Delete(id string) error {
	m.mu.Lock()
	s, ok := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return s.close()
}

// List summarizes all sessions, most recently used first.
func (m *Manager) List() []models.BatchSession {
	m.mu.RLock()
	out := make([]models.BatchSession, 0, len(m.sessions))
	for _, s := range m.sessions {
		out = append(out, s.Summary())
	}
	m.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		return out[i].LastAccessed > out[j].LastAccessed
	})
	return out
}

// Len returns the number of live sessions.
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// evictIfNeeded removes the least recently used idle session when at capacity.
func (m *Manager) evictIfNeeded() error {
	m.mu.Lock()
	if len(m.sessions) < m.cfg.MaxSessions {
		m.mu.Unlock()
		return nil
	}

	keepAliveCutoff := time.Now().Add(-SessionKeepAliveWindow)
	var victim *Session
	for _, s := range m.sessions {
		if s.Processing() || s.LastAccessed().After(keepAliveCutoff) {
			continue
		}
		if victim == nil || s.LastAccessed().Before(victim.LastAccessed()) {
			victim = s
		}
	}
	if victim == nil {
		m.mu.Unlock()
		return ErrTooManySessions
	}
	delete(m.sessions, victim.ID)
	m.mu.Unlock()

	m.log.Info().Str("session", victim.ID[:8]).Msg("evicted idle session")
	return victim.close()
}

// CleanupOldSessions removes sessions idle for longer than maxAge.
// Sessions with a batch run in progress are kept.
func (m *Manager) CleanupOldSessions(maxAge time.Duration) int {
	cutoff := time.Now().Add(-maxAge)

	m.mu.Lock()
	var expired []*Session
	for id, s := range m.sessions {
		if s.Processing() || s.LastAccessed().After(cutoff) {
			continue
		}
		delete(m.sessions, id)
		expired = append(expired, s)
	}
	m.mu.Unlock()

	for _, s := range expired {
		if err := s.close(); err != nil {
			m.log.Warn().Err(err).Str("session", s.ID[:8]).Msg("session cleanup")
		}
		m.log.Info().Str("session", s.ID[:8]).
			Dur("idle", time.Since(s.LastAccessed()).Round(time.Second)).
			Msg("cleaned up aged session")
	}
	return len(expired)
}

// Session is one user's batch with its own payloads, prefix cache and pipeline.
type Session struct {
	ID        string
	User      string
	CreatedAt time.Time

	Store     *pipeline.Store
	Cache     *prefix.Cache
	Payloads  storage.Store
	Processor *pipeline.Processor

	ctx          context.Context
	cancel       context.CancelFunc
	catalog      prefix.Catalog
	timeout      time.Duration
	lastAccessed atomic.Int64
	processing   atomic.Bool
	log          zerolog.Logger
}

func (s *Session) touch() {
	s.lastAccessed.Store(time.Now().UnixNano())
}

// LastAccessed returns when the session was last used.
func (s *Session) LastAccessed() time.Time {
	return time.Unix(0, s.lastAccessed.Load())
}

// Processing reports whether a batch detection run is in progress.
func (s *Session) Processing() bool {
	return s.processing.Load()
}

// Context is cancelled when the session ends.
func (s *Session) Context() context.Context {
	return s.ctx
}

// ReloadPrefixes refreshes the prefix cache from the catalog.
func (s *Session) ReloadPrefixes(ctx context.Context) error {
	if s.catalog == nil {
		err := errors.New("no prefix catalog configured")
		s.Cache.Fail(err)
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	if err := s.Cache.LoadFrom(ctx, s.catalog); err != nil {
		return fmt.Errorf("loading prefixes: %w", err)
	}
	s.log.Info().Int("prefixes", s.Cache.Len()).Msg("prefix cache loaded")
	return nil
}

// AddFile spools a payload and appends it to the batch as pending.
func (s *Session) AddFile(name string, data []byte) (models.BarcodeFile, error) {
	info, err := s.Payloads.SaveBytes(name, data)
	if err != nil {
		return models.BarcodeFile{}, err
	}

	head := data
	if len(head) > 1024 {
		head = head[:1024]
	}
	f := models.BarcodeFile{
		ID:       uuid.New().String(),
		FileName: name,
		FileData: info.ID,
		FileType: models.DetectFileType(name, head),
		Size:     info.Size,
	}
	if _, err := s.Store.Dispatch(pipeline.AddFiles{Files: []models.BarcodeFile{f}}); err != nil {
		s.Payloads.Delete(info.ID)
		return models.BarcodeFile{}, err
	}

	added, _ := s.Store.File(f.ID)
	return added, nil
}

// RemoveFile drops a file from the batch and deletes its payload.
func (s *Session) RemoveFile(id string) error {
	f, ok := s.Store.File(id)
	if !ok {
		return fmt.Errorf("%w: %s", pipeline.ErrFileNotFound, id)
	}
	if _, err := s.Store.Dispatch(pipeline.Remove{ID: id}); err != nil {
		return err
	}
	if err := s.Payloads.Delete(f.FileData); err != nil && !errors.Is(err, storage.ErrNotFound) {
		return err
	}
	return nil
}

// Clear empties the batch and deletes every payload.
func (s *Session) Clear() error {
	files := s.Store.Snapshot().Files
	if _, err := s.Store.Dispatch(pipeline.Clear{}); err != nil {
		return err
	}
	var errs []error
	for _, f := range files {
		if err := s.Payloads.Delete(f.FileData); err != nil && !errors.Is(err, storage.ErrNotFound) {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// StartProcessing runs detection over every pending file in the background.
func (s *Session) StartProcessing() error {
	if err := s.Cache.Ready(); err != nil {
		return fmt.Errorf("%w: %v", pipeline.ErrCacheNotReady, err)
	}
	if !s.processing.CompareAndSwap(false, true) {
		return ErrBusy
	}
	go func() {
		defer s.processing.Store(false)
		if err := s.Processor.ProcessPending(s.ctx); err != nil {
			s.log.Warn().Err(err).Msg("batch processing stopped")
		}
	}()
	return nil
}

// Summary describes the session for listings.
func (s *Session) Summary() models.BatchSession {
	st := s.Store.Snapshot()
	sum := models.BatchSession{
		ID:           s.ID,
		User:         s.User,
		FileCount:    len(st.Files),
		MatchedCount: st.MatchedCount(),
		PendingCount: len(st.PendingFiles()),
		Processing:   s.Processing() || st.Busy(),
		CacheStatus:  s.Cache.Status(),
		CacheSize:    s.Cache.Len(),
		CreatedAt:    s.CreatedAt.UnixMilli(),
		LastAccessed: s.LastAccessed().UnixMilli(),
	}
	if err := s.Cache.Err(); err != nil {
		sum.CacheError = err.Error()
	}
	return sum
}

func (s *Session) close() error {
	s.cancel()
	return s.Payloads.Purge()
}
