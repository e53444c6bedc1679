package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/poiesic/docflow/storage"
)

const defaultCleanupBatch = 100

// AttachmentCleanupSource deletes expired attachments and their staged bytes.
// It has nothing to enqueue.
type AttachmentCleanupSource struct {
	attachments storage.AttachmentRepository
	staging     storage.StagingStore
	batch       int
	sourceConfig
}

var _ Source = (*AttachmentCleanupSource)(nil)

func NewAttachmentCleanupSource(attachments storage.AttachmentRepository, staging storage.StagingStore, opts ...SourceOption) *AttachmentCleanupSource {
	return &AttachmentCleanupSource{
		attachments:  attachments,
		staging:      staging,
		batch:        defaultCleanupBatch,
		sourceConfig: newSourceConfig("attachments", opts),
	}
}

func (s *AttachmentCleanupSource) Name() string { return "attachments" }

func (s *AttachmentCleanupSource) CleanupStale(ctx context.Context, now time.Time) (int, error) {
	deleted := 0
	for {
		expired, err := s.attachments.ListExpiredAttachments(ctx, now, s.batch)
		if err != nil {
			return deleted, err
		}
		for _, att := range expired {
			if att.StagingKey != "" {
				if err := s.staging.DeleteStagedFile(ctx, att.StagingKey); err != nil {
					s.logger.Warn("failed to delete attachment bytes", "attachment_id", att.ID, "err", err)
				}
			}
			if err := s.attachments.DeleteAttachment(ctx, att.ID); err != nil {
				return deleted, fmt.Errorf("failed to delete attachment %s: %w", att.ID, err)
			}
			deleted++
		}
		if len(expired) < s.batch {
			break
		}
		if err := ctx.Err(); err != nil {
			return deleted, err
		}
	}
	if deleted > 0 {
		s.logger.Info("expired attachments removed", "count", deleted)
	}
	return deleted, nil
}

func (s *AttachmentCleanupSource) EnqueueDue(ctx context.Context, now time.Time, limit int) (SourceReport, error) {
	return SourceReport{}, nil
}
