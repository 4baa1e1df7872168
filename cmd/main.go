package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"collab-drive/internal/auth"
	"collab-drive/internal/blob"
	"collab-drive/internal/config"
	"collab-drive/internal/manager"
	"collab-drive/internal/nav"
	"collab-drive/internal/remote"
	"collab-drive/internal/storage"
	"collab-drive/pkg/logger"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// run wires the engine together and performs one pull pass for the
// user's namespace and each of their groups, then prints the root
// listing.
func run() error {
	cfg := config.LoadFromEnv()
	log := logger.NewWithComponent("main")

	if cfg.RemoteBaseURL == "" {
		return fmt.Errorf("COLLAB_REMOTE_URL must be set")
	}
	if cfg.UserID == "" {
		return fmt.Errorf("COLLAB_USER_ID must be set")
	}

	if err := os.MkdirAll(filepath.Dir(cfg.DBPath), 0o700); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}

	db, err := storage.NewSQLiteDatabase(cfg.DBPath)
	if err != nil {
		return err
	}
	defer db.Close()

	rc, err := remote.NewHTTPClient(cfg.RemoteBaseURL, cfg.RemoteToken)
	if err != nil {
		return err
	}

	bs, err := blob.NewS3Store(blob.Config{
		Region:    cfg.AWSRegion,
		Bucket:    cfg.S3Bucket,
		AccessKey: cfg.S3AccessKey,
		SecretKey: cfg.S3SecretKey,
	})
	if err != nil {
		return err
	}

	identity := &auth.StaticIdentity{UserID: cfg.UserID}
	files := manager.NewFileManager(db, rc, bs, identity)
	files.OnStatus(func(message string) { log.Info(message) })
	files.SetMaxUploadSize(cfg.MaxUploadSize)
	syncer := manager.NewSyncManager(db, rc, cfg.ContentRoot)
	groups := manager.NewGroupManager(db, rc, identity)
	notes := manager.NewNoteManager(db, rc, identity)
	notes.OnStatus(func(message string) { log.Info(message) })

	dispatcher := manager.NewDispatcher(cfg.Workers)
	defer dispatcher.Close()

	ctx := context.Background()

	// The pull runs on a short delay after startup; the local store
	// serves listings in the meantime.
	time.Sleep(cfg.SyncDelay)

	if result, err := syncer.SyncFromCloud(ctx, remote.UserNamespace(cfg.UserID)); err != nil {
		log.WarnWithError("Pull sync failed", err)
	} else {
		log.InfoWithFields("Pull sync complete", map[string]interface{}{
			"inserted": result.Inserted,
			"updated":  result.Updated,
			"failed":   result.Failed,
		})
	}

	if result, err := notes.SyncFromCloud(ctx); err != nil {
		log.WarnWithError("Note pull sync failed", err)
	} else {
		log.InfoWithFields("Note pull sync complete", map[string]interface{}{
			"inserted": result.Inserted,
			"updated":  result.Updated,
			"failed":   result.Failed,
		})
	}

	memberOf, err := groups.ListGroups(ctx)
	if err != nil {
		log.WarnWithError("Group listing failed", err)
	}
	for _, group := range memberOf {
		ns := remote.GroupNamespace(group.ID)
		dispatcher.Submit(func() {
			if _, err := syncer.SyncFromCloud(ctx, ns); err != nil {
				log.WarnWithError("Group pull sync failed", err)
			}
		})
	}
	dispatcher.Close()

	entries, err := files.ListCurrent(nav.Root(), "")
	if err != nil {
		return err
	}
	for _, entry := range entries {
		kind := "file"
		if entry.IsFolder {
			kind = "folder"
		}
		marker := ""
		if entry.IsPendingSync() {
			marker = " (sync pending)"
		}
		fmt.Printf("%-6s  %s%s\n", kind, entry.Name, marker)
	}

	allNotes, err := notes.ListNotes()
	if err != nil {
		log.WarnWithError("Note listing failed", err)
		return nil
	}
	for _, note := range allNotes {
		marker := ""
		if note.IsPendingSync() {
			marker = " (sync pending)"
		}
		fmt.Printf("%-6s  %s%s\n", "note", note.Title, marker)
	}
	return nil
}
