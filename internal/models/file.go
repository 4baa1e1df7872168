package models

import "time"

// FolderMimeType is the sentinel mime type reported for folder entries.
const FolderMimeType = "inode/directory"

// ParentEntryName is the display name of the synthetic ".." entry used
// for parent navigation. It is the only entry allowed an empty-meaning
// name outside user control.
const ParentEntryName = ".."

// FileEntry represents a file or folder in the hierarchy. An entry lives
// in the owner's private namespace unless GroupID is set, in which case
// it belongs to the group's shared namespace.
type FileEntry struct {
	// LocalID is assigned by the local store on insert; 0 until then.
	LocalID int64 `json:"local_id"`

	Name        string `json:"name"`
	ContentPath string `json:"content_path"`
	Description string `json:"description"`

	// ParentLocalID is nil for entries at the root.
	ParentLocalID *int64 `json:"parent_local_id"`

	// IsFolder is immutable after creation.
	IsFolder bool `json:"is_folder"`

	CreatedAt  time.Time `json:"created_at"`
	ModifiedAt time.Time `json:"modified_at"`

	MimeType  string `json:"mime_type"`
	SizeBytes int64  `json:"size_bytes"`

	// RemoteBlobURL and RemoteBlobID are set after a successful content
	// upload; empty for folders and for not-yet-synced files.
	RemoteBlobURL string `json:"remote_blob_url"`
	RemoteBlobID  string `json:"remote_blob_id"`

	OwnerUserID string `json:"owner_user_id"`

	// RemoteID is the metadata document identifier; empty until the
	// remote write succeeds, and stable once set.
	RemoteID string `json:"remote_id"`

	// ParentPath is the display path of the parent, kept so hierarchy
	// context survives reconciliation independent of ParentLocalID.
	ParentPath string `json:"parent_path"`

	GroupID string `json:"group_id"`
}

// NewFileEntry creates a file or folder entry with creation timestamps
// stamped. Folders get the sentinel mime type and zero size.
func NewFileEntry(name, contentPath, description string, parentLocalID *int64, isFolder bool) *FileEntry {
	now := time.Now()
	entry := &FileEntry{
		Name:          name,
		ContentPath:   contentPath,
		Description:   description,
		ParentLocalID: parentLocalID,
		IsFolder:      isFolder,
		CreatedAt:     now,
		ModifiedAt:    now,
	}
	if isFolder {
		entry.MimeType = FolderMimeType
		entry.SizeBytes = 0
	}
	return entry
}

// Touch advances ModifiedAt. Call after any mutating field change.
func (e *FileEntry) Touch() {
	e.ModifiedAt = time.Now()
}

// Rename changes the display name and advances ModifiedAt.
func (e *FileEntry) Rename(name string) {
	e.Name = name
	e.Touch()
}

// SetDescription changes the description and advances ModifiedAt.
func (e *FileEntry) SetDescription(description string) {
	e.Description = description
	e.Touch()
}

// IsPendingSync reports whether the entry has not yet been confirmed
// against the remote metadata store.
func (e *FileEntry) IsPendingSync() bool {
	return e.RemoteID == ""
}

// ChildPath builds the display path of a child named name under
// parentPath. The root path is "/".
func ChildPath(parentPath, name string) string {
	if parentPath == "" || parentPath == "/" {
		return "/" + name
	}
	return parentPath + "/" + name
}
