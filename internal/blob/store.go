// Package blob uploads raw file content to durable cloud storage and
// hands back a stable URL plus a blob identifier the metadata layer can
// reference.
package blob

import (
	"context"
	"fmt"
	"io"
	"mime"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"

	apperrors "collab-drive/pkg/errors"
	"collab-drive/pkg/logger"
)

// UploadResult is what a successful upload yields: a durable URL for
// display/download and the provider-side identifier of the blob.
type UploadResult struct {
	SecureURL string
	BlobID    string
}

// ProgressFunc receives upload progress in the closed interval [0,100].
type ProgressFunc func(percent int)

// Store defines the blob storage contract consumed by the engine.
type Store interface {
	// Upload pushes the content at localPath into the owner's provider
	// folder. folderPath is the logical display path of the containing
	// folder; groupID, when non-empty, namespaces the content under the
	// group instead of the owner alone.
	Upload(ctx context.Context, localPath, ownerID, folderPath, groupID string, onProgress ProgressFunc) (*UploadResult, error)

	// Delete is a deliberate stub: real deletion needs a privileged
	// backend call, so it logs the request and reports success.
	Delete(ctx context.Context, blobID string) error

	// OptimizedURL returns a short-lived download URL for a blob, or
	// empty when the store has not been initialized.
	OptimizedURL(ctx context.Context, blobID string) (string, error)
}

// S3Store implements Store on top of S3-compatible object storage.
type S3Store struct {
	client    *s3.Client
	presigner *s3.PresignClient
	uploader  *manager.Uploader
	bucket    string
	region    string
	logger    *logger.Logger
}

// Config carries the credentials and bucket settings for an S3Store.
type Config struct {
	Bucket    string
	Region    string
	AccessKey string
	SecretKey string
}

// NewS3Store creates a store bound to one bucket.
func NewS3Store(cfg Config) (*S3Store, error) {
	if cfg.Bucket == "" {
		return nil, apperrors.New(apperrors.ErrInvalidInput, "bucket name cannot be empty")
	}
	if cfg.Region == "" {
		return nil, apperrors.New(apperrors.ErrInvalidInput, "region cannot be empty")
	}

	awsCfg := aws.Config{
		Credentials: credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		Region:      cfg.Region,
		// SDK retries with exponential backoff; the engine itself never
		// retries, so transport-level retry is the only one in play.
		RetryMode:        aws.RetryModeStandard,
		RetryMaxAttempts: 3,
	}

	client := s3.NewFromConfig(awsCfg)
	uploader := manager.NewUploader(client, func(u *manager.Uploader) {
		u.Concurrency = 1
	})

	return &S3Store{
		client:    client,
		presigner: s3.NewPresignClient(client),
		uploader:  uploader,
		bucket:    cfg.Bucket,
		region:    cfg.Region,
		logger:    logger.NewWithComponent("blob"),
	}, nil
}

// Upload pushes local content into the provider folder derived from the
// owner, group and logical folder path, reporting progress along the way.
func (s *S3Store) Upload(ctx context.Context, localPath, ownerID, folderPath, groupID string, onProgress ProgressFunc) (*UploadResult, error) {
	if localPath == "" {
		return nil, apperrors.New(apperrors.ErrInvalidInput, "local path cannot be empty")
	}
	if ownerID == "" {
		return nil, apperrors.New(apperrors.ErrInvalidInput, "owner id cannot be empty")
	}

	file, err := os.Open(localPath)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrTransportFault, "failed to open content")
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrTransportFault, "failed to stat content")
	}
	if info.IsDir() {
		return nil, apperrors.New(apperrors.ErrInvalidInput, "content path is a directory")
	}

	key := objectKey(ownerID, folderPath, groupID, filepath.Base(localPath))

	var reader io.Reader = file
	if onProgress != nil {
		onProgress(0)
		reader = &progressReader{
			reader:     file,
			totalBytes: info.Size(),
			onProgress: onProgress,
		}
	}

	_, err = s.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        reader,
		ContentType: aws.String(contentTypeFor(localPath)),
	})
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrTransportFault, "blob upload failed")
	}

	if onProgress != nil {
		onProgress(100)
	}

	return &UploadResult{
		SecureURL: fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", s.bucket, s.region, key),
		BlobID:    key,
	}, nil
}

// Delete logs the request and reports success. Removing blobs for real
// requires a trusted backend holding privileged credentials.
func (s *S3Store) Delete(ctx context.Context, blobID string) error {
	s.logger.InfoWithFields("Blob deletion requested (stub)", map[string]interface{}{
		"blob_id": blobID,
	})
	return nil
}

// OptimizedURL presigns a short-lived GET for the blob. A nil or
// uninitialized store yields an empty URL rather than an error.
func (s *S3Store) OptimizedURL(ctx context.Context, blobID string) (string, error) {
	if s == nil || s.presigner == nil {
		return "", nil
	}
	if blobID == "" {
		return "", apperrors.New(apperrors.ErrInvalidInput, "blob id cannot be empty")
	}

	req, err := s.presigner.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(blobID),
	}, func(opts *s3.PresignOptions) {
		opts.Expires = 1 * time.Hour
	})
	if err != nil {
		return "", apperrors.Wrap(err, apperrors.ErrTransportFault, "failed to presign blob URL")
	}
	return req.URL, nil
}

// objectKey builds the provider-side object key. The logical folder
// path is flattened ("/" becomes "_") and namespaced under the owner,
// with an extra groups/{groupID} prefix for shared content.
func objectKey(ownerID, folderPath, groupID, fileName string) string {
	folder := "collab/" + ownerID
	if groupID != "" {
		folder = "collab/groups/" + groupID + "/" + ownerID
	}
	if folderPath != "" && folderPath != "/" {
		folder += strings.ReplaceAll(folderPath, "/", "_")
	}
	return fmt.Sprintf("%s/%s-%s", folder, uuid.New().String(), fileName)
}

// contentTypeFor guesses the mime type from the file extension.
func contentTypeFor(path string) string {
	if ct := mime.TypeByExtension(filepath.Ext(path)); ct != "" {
		return ct
	}
	return "application/octet-stream"
}

// progressReader wraps an io.Reader to report percentage progress.
type progressReader struct {
	reader     io.Reader
	totalBytes int64
	bytesRead  int64
	lastSent   int
	onProgress ProgressFunc
}

// Read implements io.Reader, emitting progress as whole percentages.
func (pr *progressReader) Read(p []byte) (int, error) {
	n, err := pr.reader.Read(p)
	if n > 0 && pr.totalBytes > 0 {
		pr.bytesRead += int64(n)
		percent := int(pr.bytesRead * 100 / pr.totalBytes)
		if percent > 100 {
			percent = 100
		}
		if percent != pr.lastSent {
			pr.lastSent = percent
			pr.onProgress(percent)
		}
	}
	return n, err
}
