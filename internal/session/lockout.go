package session

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"time"

	"swvanews/internal/cache"
	"swvanews/internal/logger"
)

// ErrLockoutActive is returned by login attempts while the guard is up.
var ErrLockoutActive = errors.New("login lockout active")

// LockoutMarker is the persisted guard state. It lives both on local disk
// and in the object cache under cache.LockoutKey so every worker sees it.
type LockoutMarker struct {
	ActivatedAt time.Time `json:"activated_at"`
	Reason      string    `json:"reason"`
	ActiveUntil time.Time `json:"active_until"`
}

// markerMirror is the object-cache surface the store needs.
type markerMirror interface {
	Put(ctx context.Context, key string, data []byte, meta cache.BlobMeta) error
	Get(ctx context.Context, key string) ([]byte, error)
}

// LockoutStore owns the guard state. All access goes through the store;
// there is no package-level marker.
type LockoutStore struct {
	mu        sync.Mutex
	localPath string
	mirror    markerMirror
	cooldown  time.Duration
	now       func() time.Time
}

// NewLockoutStore builds a store writing to localPath and mirroring to the
// object cache. The mirror may be nil (local-only operation).
func NewLockoutStore(localPath string, mirror markerMirror, cooldown time.Duration) *LockoutStore {
	if cooldown <= 0 {
		cooldown = 6 * time.Hour
	}
	return &LockoutStore{
		localPath: localPath,
		mirror:    mirror,
		cooldown:  cooldown,
		now:       time.Now,
	}
}

// Active reports whether a non-expired marker exists locally or in the
// object cache.
func (s *LockoutStore) Active(ctx context.Context) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if m := s.readLocal(); m != nil && s.now().Before(m.ActiveUntil) {
		return true
	}
	if m := s.readMirror(ctx); m != nil && s.now().Before(m.ActiveUntil) {
		return true
	}
	return false
}

// Activate writes a fresh marker to both stores. Writes are best-effort;
// one store succeeding is enough.
func (s *LockoutStore) Activate(ctx context.Context, reason string) *LockoutMarker {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now().UTC()
	marker := &LockoutMarker{
		ActivatedAt: now,
		Reason:      reason,
		ActiveUntil: now.Add(s.cooldown),
	}
	buf, err := json.Marshal(marker)
	if err != nil {
		logger.Error("Failed to marshal lockout marker", err)
		return marker
	}

	if err := os.MkdirAll(filepath.Dir(s.localPath), 0o755); err == nil {
		if err := os.WriteFile(s.localPath, buf, 0o644); err != nil {
			logger.Warn("Failed to write local lockout marker", "error", err.Error())
		}
	}
	if s.mirror != nil {
		if err := s.mirror.Put(ctx, cache.LockoutKey, buf, cache.BlobMeta{Format: "json"}); err != nil {
			logger.Warn("Failed to mirror lockout marker", "error", err.Error())
		}
	}

	logger.Warn("Login lockout activated",
		"reason", reason, "active_until", marker.ActiveUntil.Format(time.RFC3339))
	return marker
}

// Clear removes the marker from both stores, typically after a successful
// login.
func (s *LockoutStore) Clear(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(s.localPath); err != nil && !os.IsNotExist(err) {
		logger.Warn("Failed to remove local lockout marker", "error", err.Error())
	}
	if s.mirror != nil {
		// Overwrite with an already-expired marker; the cache has no delete
		// on this path in older deployments.
		expired := LockoutMarker{ActivatedAt: s.now().UTC(), Reason: "cleared", ActiveUntil: s.now().UTC()}
		if buf, err := json.Marshal(expired); err == nil {
			if err := s.mirror.Put(ctx, cache.LockoutKey, buf, cache.BlobMeta{Format: "json"}); err != nil {
				logger.Warn("Failed to clear mirrored lockout marker", "error", err.Error())
			}
		}
	}
}

func (s *LockoutStore) readLocal() *LockoutMarker {
	buf, err := os.ReadFile(s.localPath)
	if err != nil {
		return nil
	}
	var m LockoutMarker
	if err := json.Unmarshal(buf, &m); err != nil {
		return nil
	}
	return &m
}

func (s *LockoutStore) readMirror(ctx context.Context) *LockoutMarker {
	if s.mirror == nil {
		return nil
	}
	buf, err := s.mirror.Get(ctx, cache.LockoutKey)
	if err != nil {
		return nil
	}
	var m LockoutMarker
	if err := json.Unmarshal(buf, &m); err != nil {
		return nil
	}
	return &m
}
