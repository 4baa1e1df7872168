package storage

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "collab-drive/pkg/errors"

	"collab-drive/internal/models"
)

// createTempDatabase creates a temporary SQLite database for testing
func createTempDatabase(t *testing.T) *SQLiteDatabase {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")

	db, err := NewSQLiteDatabase(dbPath)
	require.NoError(t, err, "Failed to create temporary database")
	t.Cleanup(func() { db.Close() })

	return db
}

func insertEntry(t *testing.T, db *SQLiteDatabase, name string, parent *int64, isFolder bool) *models.FileEntry {
	t.Helper()
	entry := models.NewFileEntry(name, "/"+name, "", parent, isFolder)
	entry.OwnerUserID = "user-1"

	_, err := db.InsertFile(entry)
	require.NoError(t, err)
	return entry
}

func TestNewSQLiteDatabase(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "test.db")

	db, err := NewSQLiteDatabase(dbPath)
	require.NoError(t, err)
	defer db.Close()

	// Verify database file exists with owner-only permissions
	info, err := os.Stat(dbPath)
	require.NoError(t, err, "Database file should exist")
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm(), "Database file should have 600 permissions")
}

func TestSQLiteDatabase_InsertAndGetFile(t *testing.T) {
	db := createTempDatabase(t)

	entry := models.NewFileEntry("notes.txt", "/notes.txt", "meeting notes", nil, false)
	entry.OwnerUserID = "user-1"
	entry.SizeBytes = 1024
	entry.MimeType = "text/plain"

	id, err := db.InsertFile(entry)
	require.NoError(t, err)
	assert.Greater(t, id, int64(0))
	assert.Equal(t, id, entry.LocalID, "InsertFile should set LocalID")

	got, err := db.GetFile(id)
	require.NoError(t, err)
	assert.Equal(t, "notes.txt", got.Name)
	assert.Equal(t, "meeting notes", got.Description)
	assert.Equal(t, int64(1024), got.SizeBytes)
	assert.Equal(t, "text/plain", got.MimeType)
	assert.Nil(t, got.ParentLocalID)
	assert.WithinDuration(t, entry.CreatedAt, got.CreatedAt, time.Second)
}

func TestSQLiteDatabase_GetFile_NotFound(t *testing.T) {
	db := createTempDatabase(t)

	_, err := db.GetFile(999)
	assert.Error(t, err)
	assert.True(t, apperrors.IsNotFound(err))
}

func TestSQLiteDatabase_UpdateFile(t *testing.T) {
	db := createTempDatabase(t)
	entry := insertEntry(t, db, "draft.txt", nil, false)

	entry.Rename("final.txt")
	entry.RemoteID = "remote-1"
	err := db.UpdateFile(entry)
	require.NoError(t, err)

	got, err := db.GetFile(entry.LocalID)
	require.NoError(t, err)
	assert.Equal(t, "final.txt", got.Name)
	assert.Equal(t, "remote-1", got.RemoteID)
}

func TestSQLiteDatabase_UpdateFile_NotFound(t *testing.T) {
	db := createTempDatabase(t)

	entry := models.NewFileEntry("ghost.txt", "/ghost.txt", "", nil, false)
	entry.LocalID = 12345

	err := db.UpdateFile(entry)
	assert.True(t, apperrors.IsNotFound(err))
}

func TestSQLiteDatabase_DeleteFile(t *testing.T) {
	db := createTempDatabase(t)
	entry := insertEntry(t, db, "gone.txt", nil, false)

	require.NoError(t, db.DeleteFile(entry.LocalID))

	_, err := db.GetFile(entry.LocalID)
	assert.True(t, apperrors.IsNotFound(err))
}

func TestSQLiteDatabase_FindByRemoteID(t *testing.T) {
	db := createTempDatabase(t)
	entry := insertEntry(t, db, "synced.txt", nil, false)
	entry.RemoteID = "remote-42"
	require.NoError(t, db.UpdateFile(entry))

	got, err := db.FindByRemoteID("remote-42")
	require.NoError(t, err)
	assert.Equal(t, entry.LocalID, got.LocalID)

	_, err = db.FindByRemoteID("no-such-doc")
	assert.True(t, apperrors.IsNotFound(err))
}

func TestSQLiteDatabase_ListRoot_OrdersFoldersFirst(t *testing.T) {
	db := createTempDatabase(t)

	insertEntry(t, db, "zebra.txt", nil, false)
	insertEntry(t, db, "Alpha", nil, true)
	insertEntry(t, db, "beta.txt", nil, false)
	insertEntry(t, db, "zoo", nil, true)

	entries, err := db.ListRoot("user-1")
	require.NoError(t, err)
	require.Len(t, entries, 4)

	// Folders first, then case-insensitive name order within each class.
	assert.Equal(t, "Alpha", entries[0].Name)
	assert.Equal(t, "zoo", entries[1].Name)
	assert.Equal(t, "beta.txt", entries[2].Name)
	assert.Equal(t, "zebra.txt", entries[3].Name)
}

func TestSQLiteDatabase_ListRoot_ScopesToOwner(t *testing.T) {
	db := createTempDatabase(t)
	insertEntry(t, db, "mine.txt", nil, false)

	other := models.NewFileEntry("theirs.txt", "/theirs.txt", "", nil, false)
	other.OwnerUserID = "user-2"
	_, err := db.InsertFile(other)
	require.NoError(t, err)

	entries, err := db.ListRoot("user-1")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "mine.txt", entries[0].Name)
}

func TestSQLiteDatabase_ListChildren(t *testing.T) {
	db := createTempDatabase(t)
	folder := insertEntry(t, db, "docs", nil, true)
	insertEntry(t, db, "inside.txt", &folder.LocalID, false)
	insertEntry(t, db, "outside.txt", nil, false)

	children, err := db.ListChildren(folder.LocalID)
	require.NoError(t, err)
	require.Len(t, children, 1)
	assert.Equal(t, "inside.txt", children[0].Name)

	count, err := db.CountChildren(folder.LocalID)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestSQLiteDatabase_ListByGroup(t *testing.T) {
	db := createTempDatabase(t)

	shared := models.NewFileEntry("shared.txt", "/shared.txt", "", nil, false)
	shared.OwnerUserID = "user-1"
	shared.GroupID = "group-1"
	_, err := db.InsertFile(shared)
	require.NoError(t, err)
	insertEntry(t, db, "private.txt", nil, false)

	entries, err := db.ListByGroup("group-1")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "shared.txt", entries[0].Name)

	// Group entries stay out of the private root listing.
	root, err := db.ListRoot("user-1")
	require.NoError(t, err)
	require.Len(t, root, 1)
	assert.Equal(t, "private.txt", root[0].Name)
}

func TestSQLiteDatabase_SearchByName(t *testing.T) {
	db := createTempDatabase(t)
	insertEntry(t, db, "report-2024.pdf", nil, false)
	insertEntry(t, db, "notes.txt", nil, false)

	entries, err := db.SearchByName("user-1", "report")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "report-2024.pdf", entries[0].Name)
}

func TestSQLiteDatabase_MoveItem(t *testing.T) {
	db := createTempDatabase(t)
	folder := insertEntry(t, db, "docs", nil, true)
	entry := insertEntry(t, db, "loose.txt", nil, false)

	require.NoError(t, db.MoveItem(entry.LocalID, &folder.LocalID))

	got, err := db.GetFile(entry.LocalID)
	require.NoError(t, err)
	require.NotNil(t, got.ParentLocalID)
	assert.Equal(t, folder.LocalID, *got.ParentLocalID)

	// Moving back to root clears the parent.
	require.NoError(t, db.MoveItem(entry.LocalID, nil))
	got, err = db.GetFile(entry.LocalID)
	require.NoError(t, err)
	assert.Nil(t, got.ParentLocalID)
}

func TestSQLiteDatabase_Groups(t *testing.T) {
	db := createTempDatabase(t)

	group := &models.Group{
		ID:          "group-1",
		Name:        "Design Team",
		Description: "shared assets",
		CreatorID:   "user-1",
		MemberIDs:   []string{"user-1", "user-2"},
		InviteCode:  "AB12CD34",
	}
	require.NoError(t, db.SaveGroup(group))

	got, err := db.GetGroup("group-1")
	require.NoError(t, err)
	assert.Equal(t, "Design Team", got.Name)
	assert.Equal(t, []string{"user-1", "user-2"}, got.MemberIDs)

	groups, err := db.ListGroups("user-2")
	require.NoError(t, err)
	require.Len(t, groups, 1)

	groups, err = db.ListGroups("user-3")
	require.NoError(t, err)
	assert.Empty(t, groups)

	// SaveGroup is an upsert.
	group.MemberIDs = append(group.MemberIDs, "user-3")
	require.NoError(t, db.SaveGroup(group))
	got, err = db.GetGroup("group-1")
	require.NoError(t, err)
	assert.Len(t, got.MemberIDs, 3)
}

func TestSQLiteDatabase_Config(t *testing.T) {
	db := createTempDatabase(t)

	_, err := db.GetConfig("last_sync_time")
	assert.True(t, apperrors.IsNotFound(err))

	require.NoError(t, db.SaveConfig("last_sync_time", "2024-01-01T00:00:00Z"))
	value, err := db.GetConfig("last_sync_time")
	require.NoError(t, err)
	assert.Equal(t, "2024-01-01T00:00:00Z", value)

	require.NoError(t, db.SaveConfig("last_sync_time", "2024-02-01T00:00:00Z"))
	value, err = db.GetConfig("last_sync_time")
	require.NoError(t, err)
	assert.Equal(t, "2024-02-01T00:00:00Z", value)
}

func insertNote(t *testing.T, db *SQLiteDatabase, title string, modified time.Time) *models.Note {
	t.Helper()
	note := models.NewNote(title, "content of "+title)
	note.OwnerUserID = "user-1"
	note.ModifiedAt = modified

	_, err := db.InsertNote(note)
	require.NoError(t, err)
	return note
}

func TestSQLiteDatabase_InsertAndGetNote(t *testing.T) {
	db := createTempDatabase(t)

	note := models.NewNote("Shopping", "milk\neggs")
	note.Color = 3
	note.OwnerUserID = "user-1"

	id, err := db.InsertNote(note)
	require.NoError(t, err)
	assert.Greater(t, id, int64(0))
	assert.Equal(t, id, note.LocalID, "InsertNote should set LocalID")

	got, err := db.GetNote(id)
	require.NoError(t, err)
	assert.Equal(t, "Shopping", got.Title)
	assert.Equal(t, "milk\neggs", got.Content)
	assert.Equal(t, 3, got.Color)
	assert.Equal(t, "user-1", got.OwnerUserID)
	assert.WithinDuration(t, note.CreatedAt, got.CreatedAt, time.Second)
}

func TestSQLiteDatabase_GetNote_NotFound(t *testing.T) {
	db := createTempDatabase(t)

	_, err := db.GetNote(999)
	assert.Error(t, err)
	assert.True(t, apperrors.IsNotFound(err))
}

func TestSQLiteDatabase_UpdateNote(t *testing.T) {
	db := createTempDatabase(t)
	note := insertNote(t, db, "draft", time.Now())

	note.SetContent("revised")
	note.Color = 5
	note.RemoteID = "remote-note-1"
	require.NoError(t, db.UpdateNote(note))

	got, err := db.GetNote(note.LocalID)
	require.NoError(t, err)
	assert.Equal(t, "revised", got.Content)
	assert.Equal(t, 5, got.Color)
	assert.Equal(t, "remote-note-1", got.RemoteID)
}

func TestSQLiteDatabase_UpdateNote_NotFound(t *testing.T) {
	db := createTempDatabase(t)

	note := models.NewNote("ghost", "c")
	note.LocalID = 999
	err := db.UpdateNote(note)
	assert.True(t, apperrors.IsNotFound(err))
}

func TestSQLiteDatabase_DeleteNote(t *testing.T) {
	db := createTempDatabase(t)
	note := insertNote(t, db, "gone", time.Now())

	require.NoError(t, db.DeleteNote(note.LocalID))

	_, err := db.GetNote(note.LocalID)
	assert.True(t, apperrors.IsNotFound(err))
}

func TestSQLiteDatabase_FindNoteByRemoteID(t *testing.T) {
	db := createTempDatabase(t)
	note := insertNote(t, db, "synced", time.Now())
	note.RemoteID = "remote-note-7"
	require.NoError(t, db.UpdateNote(note))

	got, err := db.FindNoteByRemoteID("remote-note-7")
	require.NoError(t, err)
	assert.Equal(t, note.LocalID, got.LocalID)

	_, err = db.FindNoteByRemoteID("missing")
	assert.True(t, apperrors.IsNotFound(err))
}

func TestSQLiteDatabase_ListNotes_NewestFirst(t *testing.T) {
	db := createTempDatabase(t)
	base := time.Now()
	insertNote(t, db, "oldest", base.Add(-2*time.Hour))
	insertNote(t, db, "newest", base)
	insertNote(t, db, "middle", base.Add(-time.Hour))

	notes, err := db.ListNotes("user-1")
	require.NoError(t, err)
	require.Len(t, notes, 3)
	assert.Equal(t, "newest", notes[0].Title)
	assert.Equal(t, "middle", notes[1].Title)
	assert.Equal(t, "oldest", notes[2].Title)
}

func TestSQLiteDatabase_ListNotes_ScopesToOwner(t *testing.T) {
	db := createTempDatabase(t)
	insertNote(t, db, "mine", time.Now())

	other := models.NewNote("theirs", "c")
	other.OwnerUserID = "user-2"
	_, err := db.InsertNote(other)
	require.NoError(t, err)

	notes, err := db.ListNotes("user-1")
	require.NoError(t, err)
	require.Len(t, notes, 1)
	assert.Equal(t, "mine", notes[0].Title)
}
