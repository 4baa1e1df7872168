package storage

import (
	"collab-drive/internal/models"
)

// Database defines the contract for the local persistent store. All
// operations are synchronous; callers run them off the interactive
// context. The store serializes writes internally, so the engine layer
// adds no locking of its own.
type Database interface {
	// File operations
	InsertFile(entry *models.FileEntry) (int64, error)
	UpdateFile(entry *models.FileEntry) error
	DeleteFile(localID int64) error
	GetFile(localID int64) (*models.FileEntry, error)
	FindByRemoteID(remoteID string) (*models.FileEntry, error)

	// Listings are ordered folders-first, then case-insensitive name.
	ListRoot(ownerID string) ([]*models.FileEntry, error)
	ListChildren(parentLocalID int64) ([]*models.FileEntry, error)
	ListByGroup(groupID string) ([]*models.FileEntry, error)
	ListAll(ownerID string) ([]*models.FileEntry, error)
	SearchByName(ownerID, query string) ([]*models.FileEntry, error)
	CountChildren(folderID int64) (int, error)
	MoveItem(localID int64, newParentLocalID *int64) error

	// Note operations; listings are ordered by modified time, newest
	// first.
	InsertNote(note *models.Note) (int64, error)
	UpdateNote(note *models.Note) error
	DeleteNote(localID int64) error
	GetNote(localID int64) (*models.Note, error)
	FindNoteByRemoteID(remoteID string) (*models.Note, error)
	ListNotes(ownerID string) ([]*models.Note, error)

	// Group mirror operations
	SaveGroup(group *models.Group) error
	GetGroup(id string) (*models.Group, error)
	ListGroups(memberID string) ([]*models.Group, error)

	// Configuration operations
	SaveConfig(key, value string) error
	GetConfig(key string) (string, error)

	// Database lifecycle
	Close() error
}
