package storage

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"time"

	_ "github.com/mattn/go-sqlite3"

	apperrors "collab-drive/pkg/errors"
	"collab-drive/pkg/logger"

	"collab-drive/internal/models"
)

// listOrder sorts folders before files, then by case-insensitive name.
const listOrder = " ORDER BY CASE WHEN is_folder = 1 THEN 0 ELSE 1 END, name COLLATE NOCASE ASC"

const schema = `
CREATE TABLE IF NOT EXISTS files (
	id              INTEGER PRIMARY KEY AUTOINCREMENT,
	name            TEXT NOT NULL,
	content_path    TEXT NOT NULL DEFAULT '',
	description     TEXT NOT NULL DEFAULT '',
	parent_local_id INTEGER,
	is_folder       INTEGER NOT NULL DEFAULT 0,
	created_at      TIMESTAMP NOT NULL,
	modified_at     TIMESTAMP NOT NULL,
	mime_type       TEXT NOT NULL DEFAULT '',
	size_bytes      INTEGER NOT NULL DEFAULT 0,
	remote_blob_url TEXT NOT NULL DEFAULT '',
	remote_blob_id  TEXT NOT NULL DEFAULT '',
	owner_user_id   TEXT NOT NULL DEFAULT '',
	remote_id       TEXT NOT NULL DEFAULT '',
	parent_path     TEXT NOT NULL DEFAULT '',
	group_id        TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_files_parent ON files(parent_local_id);
CREATE INDEX IF NOT EXISTS idx_files_remote ON files(remote_id);
CREATE INDEX IF NOT EXISTS idx_files_group ON files(group_id);

CREATE TABLE IF NOT EXISTS notes (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	title         TEXT NOT NULL DEFAULT '',
	content       TEXT NOT NULL DEFAULT '',
	color         INTEGER NOT NULL DEFAULT 0,
	created_at    TIMESTAMP NOT NULL,
	modified_at   TIMESTAMP NOT NULL,
	owner_user_id TEXT NOT NULL DEFAULT '',
	remote_id     TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_notes_remote ON notes(remote_id);

CREATE TABLE IF NOT EXISTS groups (
	id           TEXT PRIMARY KEY,
	name         TEXT NOT NULL,
	description  TEXT NOT NULL DEFAULT '',
	created_date TEXT NOT NULL DEFAULT '',
	creator_id   TEXT NOT NULL DEFAULT '',
	member_ids   TEXT NOT NULL DEFAULT '[]',
	invite_code  TEXT NOT NULL DEFAULT '',
	item_count   INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS config (
	key   TEXT PRIMARY KEY,
	value TEXT NOT NULL
);
`

// SQLiteDatabase implements Database using SQLite
type SQLiteDatabase struct {
	db     *sql.DB
	logger *logger.Logger
}

// NewSQLiteDatabase opens (creating if needed) a SQLite database at
// dbPath and applies the schema. The database file is created with 0600
// permissions.
func NewSQLiteDatabase(dbPath string) (*SQLiteDatabase, error) {
	// Touch the file first so permissions are ours, not the driver's.
	f, err := os.OpenFile(dbPath, os.O_CREATE|os.O_RDWR, 0600)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrStorageFault, "failed to create database file")
	}
	f.Close()

	db, err := sql.Open("sqlite3", dbPath+"?_busy_timeout=5000&_journal_mode=WAL")
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrStorageFault, "failed to open database")
	}

	// SQLite serializes writes; a single connection avoids lock churn.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, apperrors.Wrap(err, apperrors.ErrStorageFault, "failed to apply schema")
	}

	return &SQLiteDatabase{
		db:     db,
		logger: logger.NewWithComponent("storage"),
	}, nil
}

// Close closes the underlying database handle.
func (s *SQLiteDatabase) Close() error {
	return s.db.Close()
}

// InsertFile inserts entry and returns the auto-assigned local id. The
// entry's LocalID is also set on success.
func (s *SQLiteDatabase) InsertFile(entry *models.FileEntry) (int64, error) {
	if entry == nil {
		return 0, apperrors.New(apperrors.ErrInvalidInput, "entry cannot be nil")
	}

	res, err := s.db.Exec(`INSERT INTO files
		(name, content_path, description, parent_local_id, is_folder, created_at, modified_at,
		 mime_type, size_bytes, remote_blob_url, remote_blob_id, owner_user_id, remote_id, parent_path, group_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.Name, entry.ContentPath, entry.Description, nullableID(entry.ParentLocalID),
		boolToInt(entry.IsFolder), entry.CreatedAt, entry.ModifiedAt,
		entry.MimeType, entry.SizeBytes, entry.RemoteBlobURL, entry.RemoteBlobID,
		entry.OwnerUserID, entry.RemoteID, entry.ParentPath, entry.GroupID)
	if err != nil {
		return 0, apperrors.Wrap(err, apperrors.ErrStorageFault, "failed to insert file entry")
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, apperrors.Wrap(err, apperrors.ErrStorageFault, "failed to read inserted id")
	}

	entry.LocalID = id
	return id, nil
}

// UpdateFile rewrites all mutable columns of the row identified by
// entry.LocalID.
func (s *SQLiteDatabase) UpdateFile(entry *models.FileEntry) error {
	if entry == nil || entry.LocalID == 0 {
		return apperrors.New(apperrors.ErrInvalidInput, "entry must have a local id")
	}

	res, err := s.db.Exec(`UPDATE files SET
		name = ?, content_path = ?, description = ?, parent_local_id = ?, modified_at = ?,
		mime_type = ?, size_bytes = ?, remote_blob_url = ?, remote_blob_id = ?,
		owner_user_id = ?, remote_id = ?, parent_path = ?, group_id = ?
		WHERE id = ?`,
		entry.Name, entry.ContentPath, entry.Description, nullableID(entry.ParentLocalID),
		entry.ModifiedAt, entry.MimeType, entry.SizeBytes, entry.RemoteBlobURL,
		entry.RemoteBlobID, entry.OwnerUserID, entry.RemoteID, entry.ParentPath,
		entry.GroupID, entry.LocalID)
	if err != nil {
		return apperrors.Wrap(err, apperrors.ErrStorageFault, "failed to update file entry")
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return apperrors.Wrap(err, apperrors.ErrStorageFault, "failed to read affected rows")
	}
	if affected == 0 {
		return apperrors.New(apperrors.ErrNotFound, fmt.Sprintf("file entry %d not found", entry.LocalID))
	}
	return nil
}

// DeleteFile removes the row with the given local id.
func (s *SQLiteDatabase) DeleteFile(localID int64) error {
	if localID == 0 {
		return apperrors.New(apperrors.ErrInvalidInput, "local id cannot be zero")
	}
	_, err := s.db.Exec(`DELETE FROM files WHERE id = ?`, localID)
	if err != nil {
		return apperrors.Wrap(err, apperrors.ErrStorageFault, "failed to delete file entry")
	}
	return nil
}

// GetFile retrieves a single entry by local id.
func (s *SQLiteDatabase) GetFile(localID int64) (*models.FileEntry, error) {
	row := s.db.QueryRow(selectColumns+` WHERE id = ?`, localID)
	entry, err := scanEntry(row)
	if err == sql.ErrNoRows {
		return nil, apperrors.New(apperrors.ErrNotFound, fmt.Sprintf("file entry %d not found", localID))
	}
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrStorageFault, "failed to get file entry")
	}
	return entry, nil
}

// FindByRemoteID looks up the local row mirroring the given remote
// document, used during pull-sync reconciliation.
func (s *SQLiteDatabase) FindByRemoteID(remoteID string) (*models.FileEntry, error) {
	if remoteID == "" {
		return nil, apperrors.New(apperrors.ErrInvalidInput, "remote id cannot be empty")
	}
	row := s.db.QueryRow(selectColumns+` WHERE remote_id = ? LIMIT 1`, remoteID)
	entry, err := scanEntry(row)
	if err == sql.ErrNoRows {
		return nil, apperrors.New(apperrors.ErrNotFound, fmt.Sprintf("no entry with remote id %q", remoteID))
	}
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrStorageFault, "failed to find by remote id")
	}
	return entry, nil
}

// ListRoot lists the owner's private entries with no parent.
func (s *SQLiteDatabase) ListRoot(ownerID string) ([]*models.FileEntry, error) {
	return s.listEntries(selectColumns+
		` WHERE parent_local_id IS NULL AND owner_user_id = ? AND group_id = ''`+listOrder, ownerID)
}

// ListChildren lists the entries directly inside the given folder.
func (s *SQLiteDatabase) ListChildren(parentLocalID int64) ([]*models.FileEntry, error) {
	return s.listEntries(selectColumns+` WHERE parent_local_id = ?`+listOrder, parentLocalID)
}

// ListByGroup lists all entries in a group namespace.
func (s *SQLiteDatabase) ListByGroup(groupID string) ([]*models.FileEntry, error) {
	if groupID == "" {
		return nil, apperrors.New(apperrors.ErrInvalidInput, "group id cannot be empty")
	}
	return s.listEntries(selectColumns+` WHERE group_id = ?`+listOrder, groupID)
}

// ListAll lists every private entry owned by ownerID.
func (s *SQLiteDatabase) ListAll(ownerID string) ([]*models.FileEntry, error) {
	return s.listEntries(selectColumns+` WHERE owner_user_id = ? AND group_id = ''`+listOrder, ownerID)
}

// SearchByName lists the owner's entries whose name contains query.
func (s *SQLiteDatabase) SearchByName(ownerID, query string) ([]*models.FileEntry, error) {
	return s.listEntries(selectColumns+
		` WHERE owner_user_id = ? AND name LIKE '%' || ? || '%'`+listOrder, ownerID, query)
}

// CountChildren returns the number of entries directly inside a folder.
func (s *SQLiteDatabase) CountChildren(folderID int64) (int, error) {
	var count int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM files WHERE parent_local_id = ?`, folderID).Scan(&count)
	if err != nil {
		return 0, apperrors.Wrap(err, apperrors.ErrStorageFault, "failed to count children")
	}
	return count, nil
}

// MoveItem reparents an entry. A nil newParentLocalID moves it to root.
func (s *SQLiteDatabase) MoveItem(localID int64, newParentLocalID *int64) error {
	_, err := s.db.Exec(`UPDATE files SET parent_local_id = ? WHERE id = ?`,
		nullableID(newParentLocalID), localID)
	if err != nil {
		return apperrors.Wrap(err, apperrors.ErrStorageFault, "failed to move item")
	}
	return nil
}

// InsertNote inserts note and returns the auto-assigned local id.
func (s *SQLiteDatabase) InsertNote(note *models.Note) (int64, error) {
	if note == nil {
		return 0, apperrors.New(apperrors.ErrInvalidInput, "note cannot be nil")
	}

	res, err := s.db.Exec(`INSERT INTO notes
		(title, content, color, created_at, modified_at, owner_user_id, remote_id)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		note.Title, note.Content, note.Color, note.CreatedAt, note.ModifiedAt,
		note.OwnerUserID, note.RemoteID)
	if err != nil {
		return 0, apperrors.Wrap(err, apperrors.ErrStorageFault, "failed to insert note")
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, apperrors.Wrap(err, apperrors.ErrStorageFault, "failed to read inserted id")
	}

	note.LocalID = id
	return id, nil
}

// UpdateNote rewrites all mutable columns of the row identified by
// note.LocalID.
func (s *SQLiteDatabase) UpdateNote(note *models.Note) error {
	if note == nil || note.LocalID == 0 {
		return apperrors.New(apperrors.ErrInvalidInput, "note must have a local id")
	}

	res, err := s.db.Exec(`UPDATE notes SET
		title = ?, content = ?, color = ?, modified_at = ?, owner_user_id = ?, remote_id = ?
		WHERE id = ?`,
		note.Title, note.Content, note.Color, note.ModifiedAt,
		note.OwnerUserID, note.RemoteID, note.LocalID)
	if err != nil {
		return apperrors.Wrap(err, apperrors.ErrStorageFault, "failed to update note")
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return apperrors.Wrap(err, apperrors.ErrStorageFault, "failed to read affected rows")
	}
	if affected == 0 {
		return apperrors.New(apperrors.ErrNotFound, fmt.Sprintf("note %d not found", note.LocalID))
	}
	return nil
}

// DeleteNote removes the note with the given local id.
func (s *SQLiteDatabase) DeleteNote(localID int64) error {
	if localID == 0 {
		return apperrors.New(apperrors.ErrInvalidInput, "local id cannot be zero")
	}
	_, err := s.db.Exec(`DELETE FROM notes WHERE id = ?`, localID)
	if err != nil {
		return apperrors.Wrap(err, apperrors.ErrStorageFault, "failed to delete note")
	}
	return nil
}

// GetNote retrieves a single note by local id.
func (s *SQLiteDatabase) GetNote(localID int64) (*models.Note, error) {
	row := s.db.QueryRow(selectNoteColumns+` WHERE id = ?`, localID)
	note, err := scanNote(row)
	if err == sql.ErrNoRows {
		return nil, apperrors.New(apperrors.ErrNotFound, fmt.Sprintf("note %d not found", localID))
	}
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrStorageFault, "failed to get note")
	}
	return note, nil
}

// FindNoteByRemoteID looks up the local note mirroring the given remote
// document, used during pull-sync reconciliation.
func (s *SQLiteDatabase) FindNoteByRemoteID(remoteID string) (*models.Note, error) {
	if remoteID == "" {
		return nil, apperrors.New(apperrors.ErrInvalidInput, "remote id cannot be empty")
	}
	row := s.db.QueryRow(selectNoteColumns+` WHERE remote_id = ? LIMIT 1`, remoteID)
	note, err := scanNote(row)
	if err == sql.ErrNoRows {
		return nil, apperrors.New(apperrors.ErrNotFound, fmt.Sprintf("no note with remote id %q", remoteID))
	}
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrStorageFault, "failed to find note by remote id")
	}
	return note, nil
}

// ListNotes lists the owner's notes, most recently modified first.
func (s *SQLiteDatabase) ListNotes(ownerID string) ([]*models.Note, error) {
	rows, err := s.db.Query(selectNoteColumns+
		` WHERE owner_user_id = ? ORDER BY modified_at DESC`, ownerID)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrStorageFault, "failed to query notes")
	}
	defer rows.Close()

	var notes []*models.Note
	for rows.Next() {
		note, err := scanNote(rows)
		if err != nil {
			s.logger.WarnWithError("Skipping unreadable note row", err)
			continue
		}
		notes = append(notes, note)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrStorageFault, "failed to iterate notes")
	}
	return notes, nil
}

// SaveGroup inserts or replaces the local mirror of a group.
func (s *SQLiteDatabase) SaveGroup(group *models.Group) error {
	if group == nil || group.ID == "" {
		return apperrors.New(apperrors.ErrInvalidInput, "group must have an id")
	}

	members, err := json.Marshal(group.MemberIDs)
	if err != nil {
		return apperrors.Wrap(err, apperrors.ErrStorageFault, "failed to encode member ids")
	}

	_, err = s.db.Exec(`INSERT OR REPLACE INTO groups
		(id, name, description, created_date, creator_id, member_ids, invite_code, item_count)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		group.ID, group.Name, group.Description, group.CreatedDate,
		group.CreatorID, string(members), group.InviteCode, group.ItemCount)
	if err != nil {
		return apperrors.Wrap(err, apperrors.ErrStorageFault, "failed to save group")
	}
	return nil
}

// GetGroup retrieves a mirrored group by id.
func (s *SQLiteDatabase) GetGroup(id string) (*models.Group, error) {
	row := s.db.QueryRow(`SELECT id, name, description, created_date, creator_id, member_ids, invite_code, item_count
		FROM groups WHERE id = ?`, id)
	group, err := scanGroup(row)
	if err == sql.ErrNoRows {
		return nil, apperrors.New(apperrors.ErrNotFound, fmt.Sprintf("group %q not found", id))
	}
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrStorageFault, "failed to get group")
	}
	return group, nil
}

// ListGroups lists mirrored groups the given user belongs to.
func (s *SQLiteDatabase) ListGroups(memberID string) ([]*models.Group, error) {
	rows, err := s.db.Query(`SELECT id, name, description, created_date, creator_id, member_ids, invite_code, item_count
		FROM groups ORDER BY name COLLATE NOCASE ASC`)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrStorageFault, "failed to list groups")
	}
	defer rows.Close()

	var groups []*models.Group
	for rows.Next() {
		group, err := scanGroup(rows)
		if err != nil {
			s.logger.WarnWithError("Skipping unreadable group row", err)
			continue
		}
		if group.HasMember(memberID) {
			groups = append(groups, group)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrStorageFault, "failed to iterate groups")
	}
	return groups, nil
}

// SaveConfig stores a configuration key/value pair.
func (s *SQLiteDatabase) SaveConfig(key, value string) error {
	_, err := s.db.Exec(`INSERT OR REPLACE INTO config (key, value) VALUES (?, ?)`, key, value)
	if err != nil {
		return apperrors.Wrap(err, apperrors.ErrStorageFault, "failed to save config")
	}
	return nil
}

// GetConfig retrieves a configuration value by key.
func (s *SQLiteDatabase) GetConfig(key string) (string, error) {
	var value string
	err := s.db.QueryRow(`SELECT value FROM config WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", apperrors.New(apperrors.ErrNotFound, fmt.Sprintf("config key %q not found", key))
	}
	if err != nil {
		return "", apperrors.Wrap(err, apperrors.ErrStorageFault, "failed to get config")
	}
	return value, nil
}

const selectColumns = `SELECT id, name, content_path, description, parent_local_id, is_folder,
	created_at, modified_at, mime_type, size_bytes, remote_blob_url, remote_blob_id,
	owner_user_id, remote_id, parent_path, group_id FROM files`

const selectNoteColumns = `SELECT id, title, content, color, created_at, modified_at,
	owner_user_id, remote_id FROM notes`

// scanner covers both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...interface{}) error
}

func scanEntry(row scanner) (*models.FileEntry, error) {
	var entry models.FileEntry
	var parent sql.NullInt64
	var isFolder int
	var createdAt, modifiedAt time.Time

	err := row.Scan(&entry.LocalID, &entry.Name, &entry.ContentPath, &entry.Description,
		&parent, &isFolder, &createdAt, &modifiedAt, &entry.MimeType, &entry.SizeBytes,
		&entry.RemoteBlobURL, &entry.RemoteBlobID, &entry.OwnerUserID, &entry.RemoteID,
		&entry.ParentPath, &entry.GroupID)
	if err != nil {
		return nil, err
	}

	if parent.Valid {
		id := parent.Int64
		entry.ParentLocalID = &id
	}
	entry.IsFolder = isFolder == 1
	entry.CreatedAt = createdAt
	entry.ModifiedAt = modifiedAt
	return &entry, nil
}

func scanNote(row scanner) (*models.Note, error) {
	var note models.Note
	var createdAt, modifiedAt time.Time

	err := row.Scan(&note.LocalID, &note.Title, &note.Content, &note.Color,
		&createdAt, &modifiedAt, &note.OwnerUserID, &note.RemoteID)
	if err != nil {
		return nil, err
	}

	note.CreatedAt = createdAt
	note.ModifiedAt = modifiedAt
	return &note, nil
}

func scanGroup(row scanner) (*models.Group, error) {
	var group models.Group
	var members string

	err := row.Scan(&group.ID, &group.Name, &group.Description, &group.CreatedDate,
		&group.CreatorID, &members, &group.InviteCode, &group.ItemCount)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(members), &group.MemberIDs); err != nil {
		return nil, err
	}
	return &group, nil
}

func (s *SQLiteDatabase) listEntries(query string, args ...interface{}) ([]*models.FileEntry, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrStorageFault, "failed to query file entries")
	}
	defer rows.Close()

	var entries []*models.FileEntry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			// Tolerate individual unreadable rows in listings.
			s.logger.WarnWithError("Skipping unreadable file row", err)
			continue
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrStorageFault, "failed to iterate file entries")
	}
	return entries, nil
}

func nullableID(id *int64) interface{} {
	if id == nil {
		return nil
	}
	return *id
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
