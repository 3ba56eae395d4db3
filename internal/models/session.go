package models

import "time"

// UploadSession accumulates one user's files and poster until they can be
// committed as a CatalogEntry.
type UploadSession struct {
	ID        string        `json:"id"`
	UserID    int64         `json:"user_id"`
	Files     []Document    `json:"files"`
	Image     *Poster       `json:"image,omitempty"`
	Caption   string        `json:"caption,omitempty"`
	CreatedAt time.Time     `json:"created_at"`
	Timeout   time.Duration `json:"timeout"`
}

// Expired reports whether the session is past its lifetime at now.
func (s *UploadSession) Expired(now time.Time) bool {
	return s.Timeout > 0 && now.Sub(s.CreatedAt) > s.Timeout
}

// Ready reports whether the session holds at least one file and a poster.
func (s *UploadSession) Ready() bool {
	return len(s.Files) > 0 && s.Image != nil
}

// Clone returns a deep copy safe to hand out of the store.
func (s *UploadSession) Clone() UploadSession {
	out := *s
	out.Files = append([]Document(nil), s.Files...)
	if s.Image != nil {
		img := *s.Image
		out.Image = &img
	}
	return out
}
