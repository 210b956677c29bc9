package services

import (
	"bytes"
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"time"

	"go.uber.org/zap"
)

// Dumper schreibt einen Datenbank-Dump nach w.
type Dumper interface {
	Dump(ctx context.Context, w io.Writer) error
}

// BackupService lädt gzip-komprimierte Dumps in den Bucket und rotiert alte Backups.
type BackupService struct {
	dumper Dumper
	target ExportTarget
	prefix string
	keep   int
	logger *zap.Logger
	now    func() time.Time
}

func NewBackupService(dumper Dumper, target ExportTarget, prefix string, keep int, logger *zap.Logger) *BackupService {
	return &BackupService{dumper: dumper, target: target, prefix: prefix, keep: keep, logger: logger, now: time.Now}
}

// Backup liefert den Link des hochgeladenen Dumps.
func (b *BackupService) Backup(ctx context.Context) (string, error) {
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	if err := b.dumper.Dump(ctx, gz); err != nil {
		return "", fmt.Errorf("create dump: %w", err)
	}
	if err := gz.Close(); err != nil {
		return "", err
	}

	key := fmt.Sprintf("%sbackup-%s.sql.gz", b.prefix, b.now().UTC().Format("2006-01-02T15-04-05Z"))
	link, err := b.target.Put(ctx, key, buf.Bytes(), "application/gzip", nil)
	if err != nil {
		return "", fmt.Errorf("upload backup: %w", err)
	}
	b.logger.Info("Backup uploaded", zap.String("key", key), zap.Int("bytes", buf.Len()))

	if err := rotateObjects(ctx, b.target, b.prefix+"backup-", b.keep, b.logger); err != nil {
		return link, fmt.Errorf("rotate backups: %w", err)
	}
	return link, nil
}
