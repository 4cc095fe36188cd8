package deletion

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"media-janitor/core/storage"
	"media-janitor/feature/deletion/models"

	"github.com/minio/minio-go/v7"
	"go.uber.org/zap"
)

// Archiver exports deletion history to S3-compatible storage before an
// admin bulk-clear, so audit data survives the clear.
type Archiver struct {
	client storage.Client
	bucket string
	logger *zap.Logger

	// now is injectable for tests.
	now func() time.Time
}

// NewArchiver creates an archiver, or nil when storage is unconfigured.
func NewArchiver(client storage.Client, bucket string, logger *zap.Logger) *Archiver {
	if client == nil {
		return nil
	}
	return &Archiver{client: client, bucket: bucket, logger: logger, now: time.Now}
}

// Archive uploads the records as one JSON object and returns its name.
func (a *Archiver) Archive(ctx context.Context, records []models.HistoryRecord) (string, error) {
	exists, err := a.client.BucketExists(ctx, a.bucket)
	if err != nil {
		return "", fmt.Errorf("check archive bucket: %w", err)
	}
	if !exists {
		if err := a.client.MakeBucket(ctx, a.bucket, minio.MakeBucketOptions{}); err != nil {
			return "", fmt.Errorf("create archive bucket: %w", err)
		}
	}

	data, err := json.Marshal(records)
	if err != nil {
		return "", fmt.Errorf("encode history archive: %w", err)
	}

	objectName := fmt.Sprintf("history/%s.json", a.now().UTC().Format("20060102T150405Z"))
	_, err = a.client.PutObject(ctx, a.bucket, objectName, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: "application/json",
	})
	if err != nil {
		return "", fmt.Errorf("upload history archive: %w", err)
	}

	a.logger.Info("Archived deletion history",
		zap.String("object", objectName),
		zap.Int("records", len(records)),
	)
	return objectName, nil
}
