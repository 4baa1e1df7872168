package manager

import (
	"context"
	"fmt"
	"time"

	apperrors "collab-drive/pkg/errors"
	"collab-drive/pkg/logger"

	"collab-drive/internal/auth"
	"collab-drive/internal/blob"
	"collab-drive/internal/models"
	"collab-drive/internal/nav"
	"collab-drive/internal/remote"
	"collab-drive/internal/storage"
)

// CreateState is one phase of the file creation pipeline. Observers see
// the states in order; a pipeline that degrades to local-only skips the
// stamping phase because there is no remote id to stamp.
type CreateState string

const (
	StateUploading       CreateState = "uploading"
	StateMetadataPending CreateState = "metadata_pending"
	StateLocalPending    CreateState = "local_pending"
	StateStamping        CreateState = "stamping"
	StateDone            CreateState = "done"
	StateFailed          CreateState = "failed"
)

// StatusFunc receives user-facing status lines as operations progress.
type StatusFunc func(message string)

// StateFunc receives creation pipeline transitions.
type StateFunc func(state CreateState)

// UploadRequest carries everything needed to push one file.
type UploadRequest struct {
	Name          string
	LocalPath     string
	Description   string
	MimeType      string
	SizeBytes     int64
	ParentLocalID *int64
	ParentPath    string
	GroupID       string
	OnProgress    blob.ProgressFunc
}

// FileManager defines the push side of the engine: creating, updating,
// deleting and listing entries, keeping the local store authoritative
// and mirroring to the cloud on a best-effort basis.
type FileManager interface {
	CreateFolder(ctx context.Context, name, description string, parentLocalID *int64, parentPath, groupID string) (*models.FileEntry, error)
	UploadFile(ctx context.Context, req UploadRequest) (*models.FileEntry, error)
	UpdateItem(ctx context.Context, entry *models.FileEntry) error
	DeleteItem(ctx context.Context, entry *models.FileEntry) error
	MoveItem(ctx context.Context, localID int64, newParentLocalID *int64) error
	GetItem(localID int64) (*models.FileEntry, error)
	ListCurrent(state nav.State, groupID string) ([]*models.FileEntry, error)
	SearchItems(query string) ([]*models.FileEntry, error)
	ContentURL(ctx context.Context, entry *models.FileEntry) (string, error)
}

// FileManagerImpl implements FileManager over the local store, the
// remote metadata client and the blob store.
type FileManagerImpl struct {
	db            storage.Database
	remote        remote.Client
	blobs         blob.Store
	identity      auth.Identity
	logger        *logger.Logger
	onStatus      StatusFunc
	onState       StateFunc
	maxUploadSize int64
}

// NewFileManager creates a file manager. Observers default to no-ops.
func NewFileManager(db storage.Database, rc remote.Client, bs blob.Store, id auth.Identity) *FileManagerImpl {
	return &FileManagerImpl{
		db:       db,
		remote:   rc,
		blobs:    bs,
		identity: id,
		logger:   logger.NewWithComponent("file-manager"),
		onStatus: func(string) {},
		onState:  func(CreateState) {},
	}
}

// OnStatus registers the observer for user-facing status lines.
func (m *FileManagerImpl) OnStatus(fn StatusFunc) {
	if fn != nil {
		m.onStatus = fn
	}
}

// OnCreateState registers the observer for creation pipeline phases.
func (m *FileManagerImpl) OnCreateState(fn StateFunc) {
	if fn != nil {
		m.onState = fn
	}
}

// SetMaxUploadSize caps the size of accepted uploads. Zero or negative
// means no limit.
func (m *FileManagerImpl) SetMaxUploadSize(limit int64) {
	m.maxUploadSize = limit
}

// currentUser returns the signed-in user id, failing fast when there is
// no identity. Mutating operations never touch either store without one.
func (m *FileManagerImpl) currentUser() (string, error) {
	uid := m.identity.CurrentUserID()
	if uid == "" {
		return "", apperrors.New(apperrors.ErrNotAuthenticated, "no user is signed in")
	}
	return uid, nil
}

// namespaceFor picks the metadata namespace an entry belongs to.
func (m *FileManagerImpl) namespaceFor(uid, groupID string) remote.Namespace {
	if groupID != "" {
		return remote.GroupNamespace(groupID)
	}
	return remote.UserNamespace(uid)
}

// CreateFolder creates a folder remote-first. When the cloud is
// unreachable the folder is still created locally with an empty remote
// id, to be picked up by a later sync. The reverse failure is hard:
// a folder that reached the cloud but cannot be saved locally is an
// error, since the local store is what the user sees.
func (m *FileManagerImpl) CreateFolder(ctx context.Context, name, description string, parentLocalID *int64, parentPath, groupID string) (*models.FileEntry, error) {
	uid, err := m.currentUser()
	if err != nil {
		m.onStatus("Error creating folder: " + err.Error())
		return nil, err
	}
	if name == "" {
		return nil, apperrors.New(apperrors.ErrInvalidInput, "folder name cannot be empty")
	}

	entry := models.NewFileEntry(name, models.ChildPath(parentPath, name), description, parentLocalID, true)
	entry.OwnerUserID = uid
	entry.ParentPath = parentPath
	entry.GroupID = groupID

	ns := m.namespaceFor(uid, groupID)
	remoteID, remoteErr := m.saveEntryRemote(ctx, entry, ns)
	if remoteErr != nil {
		m.logger.WarnWithError("Folder metadata sync failed, keeping folder local", remoteErr)
		m.onStatus("Error syncing folder to cloud: " + remoteErr.Error())

		localID, insertErr := m.db.InsertFile(entry)
		if insertErr != nil {
			m.onStatus("Error creating folder")
			return nil, apperrors.Wrap(insertErr, apperrors.ErrStorageFault, "failed to create folder locally")
		}
		entry.LocalID = localID
		m.onStatus("Folder created locally (sync pending)")
		return entry, nil
	}

	entry.RemoteID = remoteID
	localID, insertErr := m.db.InsertFile(entry)
	if insertErr != nil {
		m.onStatus("Folder synced to cloud but local save failed")
		return nil, apperrors.Wrap(insertErr, apperrors.ErrStorageFault, "failed to save synced folder locally")
	}
	entry.LocalID = localID

	if err := m.db.UpdateFile(entry); err != nil {
		m.logger.WarnWithError("Failed to stamp folder after insert", err)
	}

	m.logger.InfoWithFields("Folder created", map[string]interface{}{
		"local_id":  entry.LocalID,
		"remote_id": entry.RemoteID,
		"path":      entry.ContentPath,
	})
	m.onStatus("Folder created successfully")
	return entry, nil
}

// saveEntryRemote pushes one entry's metadata document, creating the
// user's parent document first for private namespaces.
func (m *FileManagerImpl) saveEntryRemote(ctx context.Context, entry *models.FileEntry, ns remote.Namespace) (string, error) {
	if !ns.IsGroup() {
		if err := m.remote.EnsureUserDocument(ctx, ns.ID); err != nil {
			return "", err
		}
	}
	return m.remote.SaveEntry(ctx, entry, ns)
}

// UploadFile pushes one file through the creation pipeline: blob first,
// then metadata, then the local row, then the remote-id stamp. A blob
// failure aborts with no rows created anywhere. A metadata failure
// degrades to a local-only row carrying the blob fields, so the next
// sync can finish the job.
func (m *FileManagerImpl) UploadFile(ctx context.Context, req UploadRequest) (*models.FileEntry, error) {
	uid, err := m.currentUser()
	if err != nil {
		m.onStatus("Error uploading file: " + err.Error())
		return nil, err
	}
	if req.Name == "" {
		return nil, apperrors.New(apperrors.ErrInvalidInput, "file name cannot be empty")
	}
	if req.LocalPath == "" {
		return nil, apperrors.New(apperrors.ErrInvalidInput, "file path cannot be empty")
	}
	if m.maxUploadSize > 0 && req.SizeBytes > m.maxUploadSize {
		m.onStatus(fmt.Sprintf("File too large: %s exceeds the %d byte upload limit", req.Name, m.maxUploadSize))
		return nil, apperrors.New(apperrors.ErrInvalidInput,
			fmt.Sprintf("file size %d exceeds upload limit %d", req.SizeBytes, m.maxUploadSize))
	}

	entry := models.NewFileEntry(req.Name, req.LocalPath, req.Description, req.ParentLocalID, false)
	entry.OwnerUserID = uid
	entry.ParentPath = req.ParentPath
	entry.GroupID = req.GroupID
	entry.SizeBytes = req.SizeBytes
	if req.MimeType != "" {
		entry.MimeType = req.MimeType
	}

	m.onState(StateUploading)
	m.onStatus(fmt.Sprintf("Uploading %s...", req.Name))

	result, err := m.blobs.Upload(ctx, req.LocalPath, uid, req.ParentPath, req.GroupID, req.OnProgress)
	if err != nil {
		m.onState(StateFailed)
		m.onStatus("Error uploading file: " + err.Error())
		return nil, apperrors.Wrap(err, apperrors.ErrTransportFault, "blob upload failed")
	}
	entry.RemoteBlobURL = result.SecureURL
	entry.RemoteBlobID = result.BlobID

	m.onState(StateMetadataPending)
	ns := m.namespaceFor(uid, req.GroupID)
	remoteID, remoteErr := m.saveEntryRemote(ctx, entry, ns)
	if remoteErr != nil {
		m.logger.WarnWithError("File metadata sync failed, keeping entry local", remoteErr)
		m.onStatus("File uploaded but cloud sync failed (sync pending)")

		m.onState(StateLocalPending)
		localID, insertErr := m.db.InsertFile(entry)
		if insertErr != nil {
			m.onState(StateFailed)
			m.onStatus("Error saving file")
			return nil, apperrors.Wrap(insertErr, apperrors.ErrStorageFault, "failed to save file locally")
		}
		entry.LocalID = localID
		m.onState(StateDone)
		return entry, nil
	}
	entry.RemoteID = remoteID

	m.onState(StateLocalPending)
	localID, insertErr := m.db.InsertFile(entry)
	if insertErr != nil {
		m.onState(StateFailed)
		m.onStatus("File uploaded to cloud but local save failed")
		return nil, apperrors.Wrap(insertErr, apperrors.ErrStorageFault, "failed to save synced file locally")
	}
	entry.LocalID = localID

	m.onState(StateStamping)
	if err := m.db.UpdateFile(entry); err != nil {
		m.logger.WarnWithError("Failed to stamp file after insert", err)
	}

	m.onState(StateDone)
	m.logger.InfoWithFields("File uploaded", map[string]interface{}{
		"local_id":  entry.LocalID,
		"remote_id": entry.RemoteID,
		"name":      entry.Name,
		"size":      entry.SizeBytes,
	})
	m.onStatus("File uploaded successfully")
	return entry, nil
}

// UpdateItem persists entry locally and mirrors the change to the
// cloud. The local write is authoritative; a remote failure is logged
// and left for the next sync.
func (m *FileManagerImpl) UpdateItem(ctx context.Context, entry *models.FileEntry) error {
	uid, err := m.currentUser()
	if err != nil {
		return err
	}
	if entry == nil {
		return apperrors.New(apperrors.ErrInvalidInput, "entry cannot be nil")
	}

	entry.Touch()
	if err := m.db.UpdateFile(entry); err != nil {
		m.onStatus("Error updating item")
		return apperrors.Wrap(err, apperrors.ErrStorageFault, "failed to update item locally")
	}

	if entry.RemoteID != "" {
		ns := m.namespaceFor(uid, entry.GroupID)
		fields := map[string]interface{}{
			"name":        entry.Name,
			"description": entry.Description,
			"parentPath":  entry.ParentPath,
			"modifiedAt":  entry.ModifiedAt.UTC().Format(time.RFC3339),
		}
		if err := m.remote.UpdateEntry(ctx, entry.RemoteID, ns, fields); err != nil {
			m.logger.WarnWithError("Item updated locally but cloud mirror failed", err)
		}
	}

	m.onStatus("Item updated successfully")
	return nil
}

// DeleteItem removes an entry from all three stores independently: the
// blob store (a no-op acknowledgement today), the local row and the
// remote document. A failure in one leg never blocks the others; the
// local outcome decides the overall result.
func (m *FileManagerImpl) DeleteItem(ctx context.Context, entry *models.FileEntry) error {
	uid, err := m.currentUser()
	if err != nil {
		return err
	}
	if entry == nil {
		return apperrors.New(apperrors.ErrInvalidInput, "entry cannot be nil")
	}

	if !entry.IsFolder && entry.RemoteBlobID != "" {
		if err := m.blobs.Delete(ctx, entry.RemoteBlobID); err != nil {
			m.logger.WarnWithError("Blob delete failed", err)
		}
	}

	localErr := m.db.DeleteFile(entry.LocalID)
	if localErr != nil {
		m.logger.WarnWithError("Local delete failed", localErr)
	}

	if entry.RemoteID != "" {
		ns := m.namespaceFor(uid, entry.GroupID)
		if err := m.remote.DeleteEntry(ctx, entry.RemoteID, ns); err != nil {
			m.logger.WarnWithError("Remote delete failed", err)
		}
	}

	if localErr != nil {
		m.onStatus("Error deleting item")
		return apperrors.Wrap(localErr, apperrors.ErrStorageFault, "failed to delete item locally")
	}
	m.onStatus("Item deleted successfully")
	return nil
}

// MoveItem reparents an entry in the local hierarchy. A nil parent
// moves it to the root level.
func (m *FileManagerImpl) MoveItem(ctx context.Context, localID int64, newParentLocalID *int64) error {
	if _, err := m.currentUser(); err != nil {
		return err
	}
	if err := m.db.MoveItem(localID, newParentLocalID); err != nil {
		m.onStatus("Error moving item")
		return apperrors.Wrap(err, apperrors.ErrStorageFault, "failed to move item")
	}
	m.onStatus("Item moved successfully")
	return nil
}

// GetItem fetches one entry by its local id.
func (m *FileManagerImpl) GetItem(localID int64) (*models.FileEntry, error) {
	return m.db.GetFile(localID)
}

// ListCurrent lists the entries visible at a navigation state. A group
// id scopes the listing to that group's shared space; otherwise a nil
// folder id means the user's root level.
func (m *FileManagerImpl) ListCurrent(state nav.State, groupID string) ([]*models.FileEntry, error) {
	uid, err := m.currentUser()
	if err != nil {
		return nil, err
	}
	if groupID != "" {
		return m.db.ListByGroup(groupID)
	}
	if state.FolderID == nil {
		return m.db.ListRoot(uid)
	}
	return m.db.ListChildren(*state.FolderID)
}

// SearchItems finds the user's entries whose name contains the query.
func (m *FileManagerImpl) SearchItems(query string) ([]*models.FileEntry, error) {
	uid, err := m.currentUser()
	if err != nil {
		return nil, err
	}
	return m.db.SearchByName(uid, query)
}

// ContentURL returns a short-lived link for an entry's blob content, or
// an empty string for folders and entries without an uploaded blob.
func (m *FileManagerImpl) ContentURL(ctx context.Context, entry *models.FileEntry) (string, error) {
	if entry == nil || entry.IsFolder || entry.RemoteBlobID == "" {
		return "", nil
	}
	return m.blobs.OptimizedURL(ctx, entry.RemoteBlobID)
}
