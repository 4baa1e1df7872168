package manager

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	apperrors "collab-drive/pkg/errors"
	"collab-drive/pkg/logger"

	"collab-drive/internal/models"
	"collab-drive/internal/remote"
	"collab-drive/internal/storage"
)

const lastSyncTimeKey = "last_sync_time"

// SyncResult summarizes one pull pass over a namespace.
type SyncResult struct {
	Namespace remote.Namespace
	Total     int
	Inserted  int
	Updated   int
	Failed    int
	Errors    []RecordError
	Duration  time.Duration
}

// RecordError describes one record that could not be applied. The rest
// of the pass continues past it.
type RecordError struct {
	RemoteID string
	Message  string
}

// SyncManager defines the pull side of the engine: fetching a
// namespace's metadata documents and reconciling them into the local
// store by remote id.
type SyncManager interface {
	SyncFromCloud(ctx context.Context, ns remote.Namespace) (*SyncResult, error)
	LastSyncTime() (time.Time, error)
}

// SyncManagerImpl implements SyncManager. At most one pull runs per
// namespace at a time; overlapping requests fail fast with
// SYNC_IN_FLIGHT instead of queueing.
type SyncManagerImpl struct {
	db          storage.Database
	remote      remote.Client
	logger      *logger.Logger
	contentRoot string

	mu       sync.Mutex
	inFlight map[string]bool
}

// NewSyncManager creates a sync manager. contentRoot, when non-empty,
// is the directory under which folder entries get their on-disk
// directories materialized during pull.
func NewSyncManager(db storage.Database, rc remote.Client, contentRoot string) *SyncManagerImpl {
	return &SyncManagerImpl{
		db:          db,
		remote:      rc,
		logger:      logger.NewWithComponent("sync-manager"),
		contentRoot: contentRoot,
		inFlight:    make(map[string]bool),
	}
}

// SyncFromCloud pulls every metadata document in the namespace and
// reconciles it into the local store. Records already known by remote
// id are updated in place; unknown ones are inserted. The pass is
// idempotent: running it twice against an unchanged cloud leaves the
// local store unchanged. Individual bad records are skipped and
// reported in the result rather than failing the pass.
func (m *SyncManagerImpl) SyncFromCloud(ctx context.Context, ns remote.Namespace) (*SyncResult, error) {
	key := fmt.Sprintf("%s/%s", ns.Kind, ns.ID)
	if !m.acquire(key) {
		return nil, apperrors.New(apperrors.ErrSyncInFlight,
			fmt.Sprintf("sync already running for %s", key))
	}
	defer m.release(key)

	started := time.Now()
	records, err := m.remote.ListEntries(ctx, ns)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrRemoteFault, "failed to list cloud entries")
	}

	result := &SyncResult{Namespace: ns, Total: len(records)}
	for _, record := range records {
		if err := m.applyRecord(record, ns, result); err != nil {
			result.Failed++
			result.Errors = append(result.Errors, RecordError{
				RemoteID: record.RemoteID(),
				Message:  err.Error(),
			})
			m.logger.WarnWithError("Skipping record during sync", err)
		}
	}
	result.Duration = time.Since(started)

	if err := m.db.SaveConfig(lastSyncTimeKey, time.Now().UTC().Format(time.RFC3339)); err != nil {
		m.logger.WarnWithError("Failed to record sync time", err)
	}

	m.logger.InfoWithFields("Cloud sync finished", map[string]interface{}{
		"namespace": key,
		"total":     result.Total,
		"inserted":  result.Inserted,
		"updated":   result.Updated,
		"failed":    result.Failed,
	})
	return result, nil
}

// LastSyncTime returns when the last pull pass completed, or the zero
// time if no pass has run yet.
func (m *SyncManagerImpl) LastSyncTime() (time.Time, error) {
	value, err := m.db.GetConfig(lastSyncTimeKey)
	if err != nil {
		if apperrors.IsNotFound(err) {
			return time.Time{}, nil
		}
		return time.Time{}, err
	}
	return time.Parse(time.RFC3339, value)
}

func (m *SyncManagerImpl) acquire(key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.inFlight[key] {
		return false
	}
	m.inFlight[key] = true
	return true
}

func (m *SyncManagerImpl) release(key string) {
	m.mu.Lock()
	delete(m.inFlight, key)
	m.mu.Unlock()
}

// applyRecord reconciles one cloud record into the local store.
func (m *SyncManagerImpl) applyRecord(record remote.RawRecord, ns remote.Namespace, result *SyncResult) error {
	remoteID := record.RemoteID()
	if remoteID == "" {
		return apperrors.New(apperrors.ErrInvalidInput, "record carries no remote id")
	}

	entry := m.normalizeRecord(record)
	entry.RemoteID = remoteID
	if ns.IsGroup() {
		entry.GroupID = ns.ID
	}

	if entry.IsFolder {
		m.materializeFolder(entry)
	}

	existing, err := m.db.FindByRemoteID(remoteID)
	if err != nil {
		if !apperrors.IsNotFound(err) {
			return err
		}
		localID, insertErr := m.db.InsertFile(entry)
		if insertErr != nil {
			return insertErr
		}
		entry.LocalID = localID
		result.Inserted++
		return nil
	}

	// The wire format has no local ids; parentPath carries the
	// hierarchy. Keep the row's existing local parent link so a pull
	// never flattens a tree the user already arranged.
	entry.LocalID = existing.LocalID
	entry.ParentLocalID = existing.ParentLocalID
	if err := m.db.UpdateFile(entry); err != nil {
		return err
	}
	result.Updated++
	return nil
}

// materializeFolder ensures a pulled folder has its directory on disk.
// Failures are logged; a missing directory never fails the record.
func (m *SyncManagerImpl) materializeFolder(entry *models.FileEntry) {
	if m.contentRoot == "" || entry.ContentPath == "" {
		return
	}
	dir := filepath.Join(m.contentRoot, filepath.FromSlash(entry.ContentPath))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		m.logger.WarnWithError("Failed to materialize folder directory", err)
	}
}

// normalizeRecord turns a schemaless cloud record into a FileEntry,
// substituting safe defaults for missing fields so one malformed
// document cannot poison a pass.
func (m *SyncManagerImpl) normalizeRecord(record remote.RawRecord) *models.FileEntry {
	entry := &models.FileEntry{
		Name:          asString(record["name"]),
		ContentPath:   asString(record["path"]),
		Description:   asString(record["description"]),
		ParentPath:    asString(record["parentPath"]),
		IsFolder:      asBool(record["isFolder"]),
		MimeType:      asString(record["mimeType"]),
		SizeBytes:     asInt64(record["size"]),
		RemoteBlobURL: asString(record["blobUrl"]),
		RemoteBlobID:  asString(record["blobId"]),
		OwnerUserID:   asString(record["userId"]),
		GroupID:       asString(record["groupId"]),
	}
	if entry.IsFolder && entry.MimeType == "" {
		entry.MimeType = models.FolderMimeType
	}

	now := time.Now()
	entry.CreatedAt = normalizeTimestamp(m.logger, record["createdAt"], now)
	entry.ModifiedAt = normalizeTimestamp(m.logger, record["modifiedAt"], entry.CreatedAt)
	return entry
}

// normalizeTimestamp accepts the timestamp shapes the store is known to
// emit: native time values, RFC3339 strings, and seconds/nanos objects.
// Anything else is logged and replaced with the fallback.
func normalizeTimestamp(log *logger.Logger, value interface{}, fallback time.Time) time.Time {
	switch v := value.(type) {
	case nil:
		return fallback
	case time.Time:
		return v
	case string:
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			return t
		}
		if t, err := time.Parse(time.RFC3339Nano, v); err == nil {
			return t
		}
	case map[string]interface{}:
		if seconds, ok := asInt64Checked(v["seconds"]); ok {
			return time.Unix(seconds, asInt64(v["nanos"]))
		}
	}
	log.WarnWithError("Unrecognized timestamp shape in cloud record",
		fmt.Errorf("timestamp value of type %T", value))
	return fallback
}

func asString(value interface{}) string {
	s, _ := value.(string)
	return s
}

func asBool(value interface{}) bool {
	b, _ := value.(bool)
	return b
}

func asInt64(value interface{}) int64 {
	n, _ := asInt64Checked(value)
	return n
}

// asInt64Checked converts the numeric shapes JSON decoding produces.
func asInt64Checked(value interface{}) (int64, bool) {
	switch v := value.(type) {
	case int64:
		return v, true
	case int:
		return int64(v), true
	case float64:
		return int64(v), true
	case json.Number:
		if n, err := v.Int64(); err == nil {
			return n, true
		}
	}
	return 0, false
}
