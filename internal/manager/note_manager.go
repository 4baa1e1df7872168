package manager

import (
	"context"
	"fmt"
	"sync"
	"time"

	apperrors "collab-drive/pkg/errors"
	"collab-drive/pkg/logger"

	"collab-drive/internal/auth"
	"collab-drive/internal/models"
	"collab-drive/internal/remote"
	"collab-drive/internal/storage"
)

// NoteManager defines the note side of the engine. Notes follow the
// same offline-first contract as file entries but live only in the
// owner's private namespace and carry no blob content.
type NoteManager interface {
	CreateNote(ctx context.Context, title, content string, color int) (*models.Note, error)
	UpdateNote(ctx context.Context, note *models.Note) error
	DeleteNote(ctx context.Context, note *models.Note) error
	GetNote(localID int64) (*models.Note, error)
	ListNotes() ([]*models.Note, error)
	SyncFromCloud(ctx context.Context) (*SyncResult, error)
}

// NoteManagerImpl implements NoteManager over the local store and the
// remote metadata client.
type NoteManagerImpl struct {
	db       storage.Database
	remote   remote.Client
	identity auth.Identity
	logger   *logger.Logger
	onStatus StatusFunc

	mu       sync.Mutex
	inFlight map[string]bool
}

// NewNoteManager creates a note manager. The status observer defaults
// to a no-op.
func NewNoteManager(db storage.Database, rc remote.Client, id auth.Identity) *NoteManagerImpl {
	return &NoteManagerImpl{
		db:       db,
		remote:   rc,
		identity: id,
		logger:   logger.NewWithComponent("note-manager"),
		onStatus: func(string) {},
		inFlight: make(map[string]bool),
	}
}

// OnStatus registers the observer for user-facing status lines.
func (m *NoteManagerImpl) OnStatus(fn StatusFunc) {
	if fn != nil {
		m.onStatus = fn
	}
}

func (m *NoteManagerImpl) currentUser() (string, error) {
	uid := m.identity.CurrentUserID()
	if uid == "" {
		return "", apperrors.New(apperrors.ErrNotAuthenticated, "no user is signed in")
	}
	return uid, nil
}

// CreateNote creates a note remote-first. When the cloud is unreachable
// the note is still created locally with an empty remote id, to be
// pushed by a later sync. A note with neither title nor content is
// rejected; an empty title is derived from the content's first line.
func (m *NoteManagerImpl) CreateNote(ctx context.Context, title, content string, color int) (*models.Note, error) {
	uid, err := m.currentUser()
	if err != nil {
		m.onStatus("Error creating note: " + err.Error())
		return nil, err
	}
	if title == "" && content == "" {
		return nil, apperrors.New(apperrors.ErrInvalidInput, "note cannot be empty")
	}

	note := models.NewNote(title, content)
	note.Color = color
	note.OwnerUserID = uid

	remoteID, remoteErr := m.saveNoteRemote(ctx, note)
	if remoteErr != nil {
		m.logger.WarnWithError("Note sync failed, keeping note local", remoteErr)
		m.onStatus("Error syncing note to cloud: " + remoteErr.Error())

		localID, insertErr := m.db.InsertNote(note)
		if insertErr != nil {
			m.onStatus("Error creating note")
			return nil, apperrors.Wrap(insertErr, apperrors.ErrStorageFault, "failed to create note locally")
		}
		note.LocalID = localID
		m.onStatus("Note created locally (sync pending)")
		return note, nil
	}

	note.RemoteID = remoteID
	localID, insertErr := m.db.InsertNote(note)
	if insertErr != nil {
		m.onStatus("Note synced to cloud but local save failed")
		return nil, apperrors.Wrap(insertErr, apperrors.ErrStorageFault, "failed to save synced note locally")
	}
	note.LocalID = localID

	m.logger.InfoWithFields("Note created", map[string]interface{}{
		"local_id":  note.LocalID,
		"remote_id": note.RemoteID,
	})
	m.onStatus("Note created successfully")
	return note, nil
}

// saveNoteRemote pushes one note document, creating the user's parent
// document first.
func (m *NoteManagerImpl) saveNoteRemote(ctx context.Context, note *models.Note) (string, error) {
	if err := m.remote.EnsureUserDocument(ctx, note.OwnerUserID); err != nil {
		return "", err
	}
	return m.remote.SaveNote(ctx, note)
}

// UpdateNote persists the note locally and mirrors the change to the
// cloud. The local write is authoritative; a remote failure is logged
// and left for the next sync.
func (m *NoteManagerImpl) UpdateNote(ctx context.Context, note *models.Note) error {
	uid, err := m.currentUser()
	if err != nil {
		return err
	}
	if note == nil {
		return apperrors.New(apperrors.ErrInvalidInput, "note cannot be nil")
	}

	note.Touch()
	if err := m.db.UpdateNote(note); err != nil {
		m.onStatus("Error updating note")
		return apperrors.Wrap(err, apperrors.ErrStorageFault, "failed to update note locally")
	}

	if note.RemoteID != "" {
		fields := map[string]interface{}{
			"title":      note.Title,
			"content":    note.Content,
			"color":      note.Color,
			"modifiedAt": note.ModifiedAt.UTC().Format(time.RFC3339),
		}
		if err := m.remote.UpdateNote(ctx, note.RemoteID, uid, fields); err != nil {
			m.logger.WarnWithError("Note updated locally but cloud mirror failed", err)
		}
	}

	m.onStatus("Note updated successfully")
	return nil
}

// DeleteNote removes a note from both stores independently. A remote
// failure never blocks the local delete; the local outcome decides the
// overall result.
func (m *NoteManagerImpl) DeleteNote(ctx context.Context, note *models.Note) error {
	uid, err := m.currentUser()
	if err != nil {
		return err
	}
	if note == nil {
		return apperrors.New(apperrors.ErrInvalidInput, "note cannot be nil")
	}

	localErr := m.db.DeleteNote(note.LocalID)
	if localErr != nil {
		m.logger.WarnWithError("Local note delete failed", localErr)
	}

	if note.RemoteID != "" {
		if err := m.remote.DeleteNote(ctx, note.RemoteID, uid); err != nil {
			m.logger.WarnWithError("Remote note delete failed", err)
		}
	}

	if localErr != nil {
		m.onStatus("Error deleting note")
		return apperrors.Wrap(localErr, apperrors.ErrStorageFault, "failed to delete note locally")
	}
	m.onStatus("Note deleted successfully")
	return nil
}

// GetNote fetches one note by its local id.
func (m *NoteManagerImpl) GetNote(localID int64) (*models.Note, error) {
	return m.db.GetNote(localID)
}

// ListNotes lists the user's notes, newest modification first.
func (m *NoteManagerImpl) ListNotes() ([]*models.Note, error) {
	uid, err := m.currentUser()
	if err != nil {
		return nil, err
	}
	return m.db.ListNotes(uid)
}

// SyncFromCloud pulls the user's note documents and reconciles them
// into the local store by remote id. At most one note pull runs per
// user at a time; overlapping requests fail fast with SYNC_IN_FLIGHT.
func (m *NoteManagerImpl) SyncFromCloud(ctx context.Context) (*SyncResult, error) {
	uid, err := m.currentUser()
	if err != nil {
		return nil, err
	}

	key := "notes/" + uid
	if !m.acquire(key) {
		return nil, apperrors.New(apperrors.ErrSyncInFlight,
			fmt.Sprintf("sync already running for %s", key))
	}
	defer m.release(key)

	started := time.Now()
	records, err := m.remote.ListNotes(ctx, uid)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrRemoteFault, "failed to list cloud notes")
	}

	result := &SyncResult{Namespace: remote.UserNamespace(uid), Total: len(records)}
	for _, record := range records {
		if err := m.applyNoteRecord(record, uid, result); err != nil {
			result.Failed++
			result.Errors = append(result.Errors, RecordError{
				RemoteID: record.RemoteID(),
				Message:  err.Error(),
			})
			m.logger.WarnWithError("Skipping note record during sync", err)
		}
	}
	result.Duration = time.Since(started)

	m.logger.InfoWithFields("Note sync finished", map[string]interface{}{
		"user_id":  uid,
		"total":    result.Total,
		"inserted": result.Inserted,
		"updated":  result.Updated,
		"failed":   result.Failed,
	})
	return result, nil
}

func (m *NoteManagerImpl) acquire(key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.inFlight[key] {
		return false
	}
	m.inFlight[key] = true
	return true
}

func (m *NoteManagerImpl) release(key string) {
	m.mu.Lock()
	delete(m.inFlight, key)
	m.mu.Unlock()
}

// applyNoteRecord reconciles one cloud note record into the local store.
func (m *NoteManagerImpl) applyNoteRecord(record remote.RawRecord, uid string, result *SyncResult) error {
	remoteID := record.RemoteID()
	if remoteID == "" {
		return apperrors.New(apperrors.ErrInvalidInput, "record carries no remote id")
	}

	note := m.normalizeNoteRecord(record)
	note.RemoteID = remoteID
	note.OwnerUserID = uid

	existing, err := m.db.FindNoteByRemoteID(remoteID)
	if err != nil {
		if !apperrors.IsNotFound(err) {
			return err
		}
		localID, insertErr := m.db.InsertNote(note)
		if insertErr != nil {
			return insertErr
		}
		note.LocalID = localID
		result.Inserted++
		return nil
	}

	note.LocalID = existing.LocalID
	if err := m.db.UpdateNote(note); err != nil {
		return err
	}
	result.Updated++
	return nil
}

// normalizeNoteRecord builds a note from a raw cloud record, falling
// back to safe defaults for missing fields.
func (m *NoteManagerImpl) normalizeNoteRecord(record remote.RawRecord) *models.Note {
	note := &models.Note{
		Title:   asString(record["title"]),
		Content: asString(record["content"]),
		Color:   int(asInt64(record["color"])),
	}
	if note.Title == "" {
		note.Title = models.DeriveNoteTitle("", note.Content)
	}
	now := time.Now()
	note.CreatedAt = normalizeTimestamp(m.logger, record["createdAt"], now)
	note.ModifiedAt = normalizeTimestamp(m.logger, record["modifiedAt"], note.CreatedAt)
	return note
}
