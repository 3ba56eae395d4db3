package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"movievault/internal/errs"
	"movievault/internal/models"
)

// CatalogStore persists catalog entries in SQL. Entries and their documents
// are written in one transaction, so readers never see a partial entry.
type CatalogStore struct {
	db  *sql.DB
	now func() time.Time
}

func NewCatalogStore(db *sql.DB) *CatalogStore {
	return &CatalogStore{db: db, now: time.Now}
}

// Insert stores entry under a freshly allocated id and returns it. The id
// and CreatedAt fields of entry are filled in only when the insert succeeds.
func (s *CatalogStore) Insert(ctx context.Context, entry *models.CatalogEntry) (string, error) {
	if entry == nil {
		return "", errors.New("entry required")
	}
	if entry.Media.Image == nil || len(entry.Media.Documents) == 0 {
		return "", errors.New("entry needs an image and at least one document")
	}
	id := uuid.NewString()
	createdAt := s.now().UTC()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	img := entry.Media.Image
	_, err = tx.ExecContext(ctx, `
		INSERT INTO catalog_entries (id, name, name_folded, caption, uploader_id, image_ref, image_width, image_height, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id, entry.Name, fold(entry.Name), entry.Caption, entry.UploaderID,
		img.AssetRef, img.Width, img.Height, createdAt)
	if err != nil {
		return "", fmt.Errorf("insert entry: %w", err)
	}
	for i, doc := range entry.Media.Documents {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO catalog_documents (entry_id, position, asset_ref, display_name)
			VALUES (?, ?, ?, ?)`,
			id, i, doc.AssetRef, doc.DisplayName)
		if err != nil {
			return "", fmt.Errorf("insert document %d: %w", i, err)
		}
	}
	if err = tx.Commit(); err != nil {
		return "", fmt.Errorf("commit entry: %w", err)
	}
	entry.ID = id
	entry.CreatedAt = createdAt
	return id, nil
}

// FindByID loads one entry; a missing id yields errs.ErrNotFound.
func (s *CatalogStore) FindByID(ctx context.Context, id string) (*models.CatalogEntry, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, name, caption, uploader_id, image_ref, image_width, image_height, created_at
		FROM catalog_entries WHERE id = ?`, id)
	entry, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errs.New(errs.CodeNotFound, "catalog entry "+id)
	}
	if err != nil {
		return nil, fmt.Errorf("find entry: %w", err)
	}
	if err := s.loadDocuments(ctx, []*models.CatalogEntry{entry}); err != nil {
		return nil, err
	}
	return entry, nil
}

// FindByNameSubstring returns up to limit entries whose name contains text,
// ignoring case, in insertion order.
func (s *CatalogStore) FindByNameSubstring(ctx context.Context, text string, limit int) ([]*models.CatalogEntry, error) {
	if limit <= 0 {
		return nil, nil
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, caption, uploader_id, image_ref, image_width, image_height, created_at
		FROM catalog_entries
		WHERE name_folded LIKE ? ESCAPE '!'
		ORDER BY seq
		LIMIT ?`, "%"+escapeLike(fold(text))+"%", limit)
	if err != nil {
		return nil, fmt.Errorf("search entries: %w", err)
	}
	var entries []*models.CatalogEntry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan entry: %w", err)
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("iterate entries: %w", err)
	}
	rows.Close()

	if err := s.loadDocuments(ctx, entries); err != nil {
		return nil, err
	}
	return entries, nil
}

// DeleteCreatedBefore removes every entry created before cutoff together
// with its documents.
func (s *CatalogStore) DeleteCreatedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	_, err = tx.ExecContext(ctx, `
		DELETE FROM catalog_documents
		WHERE entry_id IN (SELECT id FROM catalog_entries WHERE created_at < ?)`, cutoff.UTC())
	if err != nil {
		return 0, fmt.Errorf("delete documents: %w", err)
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM catalog_entries WHERE created_at < ?`, cutoff.UTC())
	if err != nil {
		return 0, fmt.Errorf("delete entries: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	if err = tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit delete: %w", err)
	}
	return n, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEntry(row rowScanner) (*models.CatalogEntry, error) {
	var (
		e   models.CatalogEntry
		img models.Poster
	)
	if err := row.Scan(&e.ID, &e.Name, &e.Caption, &e.UploaderID,
		&img.AssetRef, &img.Width, &img.Height, &e.CreatedAt); err != nil {
		return nil, err
	}
	e.Media.Image = &img
	return &e, nil
}

func (s *CatalogStore) loadDocuments(ctx context.Context, entries []*models.CatalogEntry) error {
	for _, e := range entries {
		rows, err := s.db.QueryContext(ctx, `
			SELECT asset_ref, display_name FROM catalog_documents
			WHERE entry_id = ? ORDER BY position`, e.ID)
		if err != nil {
			return fmt.Errorf("load documents: %w", err)
		}
		for rows.Next() {
			var d models.Document
			if err := rows.Scan(&d.AssetRef, &d.DisplayName); err != nil {
				rows.Close()
				return fmt.Errorf("scan document: %w", err)
			}
			e.Media.Documents = append(e.Media.Documents, d)
		}
		err = rows.Err()
		rows.Close()
		if err != nil {
			return fmt.Errorf("iterate documents: %w", err)
		}
	}
	return nil
}

func fold(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

var likeEscaper = strings.NewReplacer("!", "!!", "%", "!%", "_", "!_")

// escapeLike makes user text match literally inside a LIKE pattern.
func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}
