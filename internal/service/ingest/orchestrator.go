// Package ingest turns file and photo uploads into catalog entries.
package ingest

import (
	"context"
	"errors"

	"movievault/internal/errs"
	"movievault/internal/logging"
	"movievault/internal/metrics"
	"movievault/internal/models"
	"movievault/internal/normalize"
	"movievault/internal/session"
)

// State of a user's upload after an event was applied.
type State int

const (
	StateEmpty State = iota
	StateHasFilesOnly
	StateHasImageOnly
	StateReady
	StateCommitted
)

func (s State) String() string {
	switch s {
	case StateEmpty:
		return "empty"
	case StateHasFilesOnly:
		return "has_files_only"
	case StateHasImageOnly:
		return "has_image_only"
	case StateReady:
		return "ready"
	case StateCommitted:
		return "committed"
	default:
		return "unknown"
	}
}

// Catalog is the write side of the catalog store.
type Catalog interface {
	Insert(ctx context.Context, entry *models.CatalogEntry) (string, error)
}

// Upload is one asset event coming from a chat.
type Upload struct {
	UserID   int64
	ChatID   int64
	Caption  string
	Document *models.DocumentPayload
	Photos   []models.PhotoSize
}

// Outcome reports where the user's upload stands after an event.
type Outcome struct {
	State    State
	Files    int
	HasImage bool
	// Entry is set once the session was committed.
	Entry *models.CatalogEntry
}

// Orchestrator pairs uploaded files with a poster and commits them once
// both are present. Callers must feed a given user's events one at a time.
type Orchestrator struct {
	sessions      *session.Store
	catalog       Catalog
	storageRoomID int64
}

func NewOrchestrator(sessions *session.Store, catalog Catalog, storageRoomID int64) *Orchestrator {
	return &Orchestrator{
		sessions:      sessions,
		catalog:       catalog,
		storageRoomID: storageRoomID,
	}
}

// HandleDocument adds a file to the user's session.
func (o *Orchestrator) HandleDocument(ctx context.Context, up Upload) (Outcome, error) {
	if err := o.checkRoom(up); err != nil {
		return Outcome{}, err
	}
	if up.Document == nil || up.Document.AssetRef == "" {
		return Outcome{}, errors.New("document upload without asset")
	}
	display := normalize.Title(up.Document.FileName)
	if display == "" {
		display = up.Document.FileName
	}
	o.sessions.SetCaption(up.UserID, up.Caption)
	se := o.sessions.AddFile(up.UserID, up.Document.AssetRef, display)
	return o.advance(ctx, se)
}

// HandlePhoto stores the largest variant of the photo as the poster.
func (o *Orchestrator) HandlePhoto(ctx context.Context, up Upload) (Outcome, error) {
	if err := o.checkRoom(up); err != nil {
		return Outcome{}, err
	}
	best, ok := largest(up.Photos)
	if !ok {
		return Outcome{}, errors.New("photo upload without sizes")
	}
	o.sessions.SetCaption(up.UserID, up.Caption)
	se := o.sessions.SetImage(up.UserID, best.AssetRef, best.Width, best.Height)
	return o.advance(ctx, se)
}

func (o *Orchestrator) checkRoom(up Upload) error {
	if up.ChatID != o.storageRoomID {
		metrics.UploadsRejected.Inc()
		return errs.New(errs.CodeUploadPolicyViolation, "uploads are only accepted in the storage room")
	}
	return nil
}

// advance commits a ready session. A failed insert leaves the session in
// place so the next event retries the commit.
func (o *Orchestrator) advance(ctx context.Context, se models.UploadSession) (Outcome, error) {
	out := outcomeOf(&se)
	if out.State != StateReady {
		return out, nil
	}

	entry := &models.CatalogEntry{
		Name:       se.Files[0].DisplayName,
		Caption:    se.Caption,
		UploaderID: se.UserID,
		Media: models.Media{
			Documents: append([]models.Document(nil), se.Files...),
			Image:     se.Image,
		},
	}
	_, err := o.catalog.Insert(ctx, entry)
	metrics.RecordCommit(err)
	if err != nil {
		logging.Error().Err(err).
			Int64("user_id", se.UserID).
			Str("session_id", se.ID).
			Int("files", len(se.Files)).
			Msg("catalog commit failed")
		return out, errs.Wrap(errs.CodeCommitFailure, err, "insert catalog entry")
	}

	o.sessions.PopForCommit(se.UserID)
	logging.Info().
		Int64("user_id", se.UserID).
		Str("entry_id", entry.ID).
		Str("name", entry.Name).
		Int("files", len(entry.Media.Documents)).
		Msg("catalog entry committed")
	return Outcome{State: StateCommitted, Files: len(entry.Media.Documents), HasImage: true, Entry: entry}, nil
}

func outcomeOf(se *models.UploadSession) Outcome {
	out := Outcome{Files: len(se.Files), HasImage: se.Image != nil}
	switch {
	case out.Files > 0 && out.HasImage:
		out.State = StateReady
	case out.Files > 0:
		out.State = StateHasFilesOnly
	case out.HasImage:
		out.State = StateHasImageOnly
	default:
		out.State = StateEmpty
	}
	return out
}

func largest(sizes []models.PhotoSize) (models.PhotoSize, bool) {
	var (
		best     models.PhotoSize
		bestArea int64 = -1
	)
	for _, p := range sizes {
		if p.AssetRef == "" {
			continue
		}
		if area := int64(p.Width) * int64(p.Height); area > bestArea {
			best, bestArea = p, area
		}
	}
	return best, bestArea >= 0
}
