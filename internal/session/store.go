// Package session keeps the in-progress uploads of every user.
package session

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"movievault/internal/models"
)

const DefaultTimeout = 30 * time.Minute

// Store owns the UploadSession of each user. A session that outlived its
// timeout is treated as absent and replaced on the next access. Callers
// always receive copies.
type Store struct {
	mu       sync.Mutex
	sessions map[int64]*models.UploadSession
	timeout  time.Duration
	now      func() time.Time
}

func NewStore(timeout time.Duration) *Store {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Store{
		sessions: make(map[int64]*models.UploadSession),
		timeout:  timeout,
		now:      time.Now,
	}
}

// GetOrCreate returns the live session of userID, starting a fresh one when
// none exists or the previous one expired.
func (s *Store) GetOrCreate(userID int64) models.UploadSession {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.liveLocked(userID).Clone()
}

// AddFile appends a file to the user's session. Files are never deduplicated.
func (s *Store) AddFile(userID int64, assetRef, displayName string) models.UploadSession {
	s.mu.Lock()
	defer s.mu.Unlock()
	se := s.liveLocked(userID)
	se.Files = append(se.Files, models.Document{AssetRef: assetRef, DisplayName: displayName})
	if se.Caption == "" {
		se.Caption = displayName
	}
	return se.Clone()
}

// SetImage stores the poster, replacing any earlier one.
func (s *Store) SetImage(userID int64, assetRef string, width, height int) models.UploadSession {
	s.mu.Lock()
	defer s.mu.Unlock()
	se := s.liveLocked(userID)
	se.Image = &models.Poster{AssetRef: assetRef, Width: width, Height: height}
	return se.Clone()
}

// SetCaption overrides the default caption. Empty captions are ignored.
func (s *Store) SetCaption(userID int64, caption string) {
	if caption == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.liveLocked(userID).Caption = caption
}

// Get returns the live session without creating one.
func (s *Store) Get(userID int64) (models.UploadSession, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	se, ok := s.existingLocked(userID)
	if !ok {
		return models.UploadSession{}, false
	}
	return se.Clone(), true
}

// IsReadyToCommit reports whether the user's live session has files and a
// poster.
func (s *Store) IsReadyToCommit(userID int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	se, ok := s.existingLocked(userID)
	return ok && se.Ready()
}

// PopForCommit removes and returns the user's live session.
func (s *Store) PopForCommit(userID int64) (models.UploadSession, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	se, ok := s.existingLocked(userID)
	if !ok {
		return models.UploadSession{}, false
	}
	delete(s.sessions, userID)
	return *se, true
}

// Sweep drops every expired session and returns how many were removed.
func (s *Store) Sweep() int {
	now := s.now()
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for id, se := range s.sessions {
		if se.Expired(now) {
			delete(s.sessions, id)
			removed++
		}
	}
	return removed
}

// Len returns the number of stored sessions, expired ones included.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

func (s *Store) existingLocked(userID int64) (*models.UploadSession, bool) {
	se, ok := s.sessions[userID]
	if !ok {
		return nil, false
	}
	if se.Expired(s.now()) {
		delete(s.sessions, userID)
		return nil, false
	}
	return se, true
}

func (s *Store) liveLocked(userID int64) *models.UploadSession {
	if se, ok := s.existingLocked(userID); ok {
		return se
	}
	se := &models.UploadSession{
		ID:        uuid.NewString(),
		UserID:    userID,
		CreatedAt: s.now(),
		Timeout:   s.timeout,
	}
	s.sessions[userID] = se
	return se
}
