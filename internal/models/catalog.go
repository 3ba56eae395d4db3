package models

import "time"

// Document is one uploaded file of a catalog entry.
type Document struct {
	AssetRef    string `json:"asset_ref"`
	DisplayName string `json:"display_name"`
}

// Poster is the image shown with a catalog entry.
type Poster struct {
	AssetRef string `json:"asset_ref"`
	Width    int    `json:"width"`
	Height   int    `json:"height"`
}

// Area is used to pick the largest variant of an uploaded photo.
func (p Poster) Area() int64 {
	return int64(p.Width) * int64(p.Height)
}

type Media struct {
	Documents []Document `json:"documents"`
	Image     *Poster    `json:"image,omitempty"`
}

// CatalogEntry is a committed, searchable upload. It never changes after
// creation.
type CatalogEntry struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	Caption    string    `json:"caption,omitempty"`
	UploaderID int64     `json:"uploader_id"`
	Media      Media     `json:"media"`
	CreatedAt  time.Time `json:"created_at"`
}

// HasMedia reports whether the entry can be delivered as poster plus files.
func (e *CatalogEntry) HasMedia() bool {
	return e != nil && e.Media.Image != nil && len(e.Media.Documents) > 0
}
