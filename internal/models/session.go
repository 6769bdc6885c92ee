package models

// CacheStatus reports the state of the prefix lookup cache for a session.
type CacheStatus string

const (
	CacheStatusLoading CacheStatus = "loading"
	CacheStatusReady   CacheStatus = "ready"
	CacheStatusError   CacheStatus = "error"
)

// BatchSession summarizes one user's batch for API listings.
type BatchSession struct {
	ID           string      `json:"id"`
	User         string      `json:"user,omitempty"`
	FileCount    int         `json:"fileCount"`
	MatchedCount int         `json:"matchedCount"`
	PendingCount int         `json:"pendingCount"`
	Processing   bool        `json:"processing"`
	CacheStatus  CacheStatus `json:"cacheStatus"`
	CacheSize    int         `json:"cacheSize"`
	CacheError   string      `json:"cacheError,omitempty"`
	CreatedAt    int64       `json:"createdAt"`    // Unix ms
	LastAccessed int64       `json:"lastAccessed"` // Unix ms
}
