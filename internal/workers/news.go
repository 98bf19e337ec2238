package workers

import (
	"context"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/sitecms/sitecms/internal/models"
	"github.com/sitecms/sitecms/internal/tasks"
)

func cutoff(payload tasks.TaskPayload) time.Time {
	if payload.RunAt.IsZero() {
		return time.Now().UTC()
	}
	return payload.RunAt.UTC()
}

// HandlePublishScheduledNews publishes drafts whose publish_at has passed
func HandlePublishScheduledNews(ctx context.Context, t *asynq.Task, db *gorm.DB, logger zerolog.Logger) error {
	payload, err := tasks.ParseTaskPayload(t)
	if err != nil {
		return fmt.Errorf("failed to parse payload: %w: %w", err, asynq.SkipRetry)
	}
	now := cutoff(payload)

	result := db.WithContext(ctx).Model(&models.News{}).
		Where("is_published = ? AND publish_at IS NOT NULL AND publish_at <= ?", false, now).
		Updates(map[string]any{
			"is_published": true,
			"published_at": gorm.Expr("COALESCE(published_at, publish_at)"),
		})
	if result.Error != nil {
		return fmt.Errorf("failed to publish scheduled news: %w", result.Error)
	}

	if result.RowsAffected > 0 {
		logger.Info().
			Int64("published", result.RowsAffected).
			Time("cutoff", now).
			Msg("Published scheduled news")
		recordSystemActivity(ctx, db, logger, "publish", fmt.Sprintf("Published %d scheduled article(s)", result.RowsAffected))
	}
	return nil
}

// HandleExpireAnnouncements unpublishes announcements past their expires_at
func HandleExpireAnnouncements(ctx context.Context, t *asynq.Task, db *gorm.DB, logger zerolog.Logger) error {
	payload, err := tasks.ParseTaskPayload(t)
	if err != nil {
		return fmt.Errorf("failed to parse payload: %w: %w", err, asynq.SkipRetry)
	}
	now := cutoff(payload)

	result := db.WithContext(ctx).Model(&models.News{}).
		Where("is_published = ? AND category = ? AND expires_at IS NOT NULL AND expires_at <= ?",
			true, models.NewsCategoryAnnouncement, now).
		Update("is_published", false)
	if result.Error != nil {
		return fmt.Errorf("failed to expire announcements: %w", result.Error)
	}

	if result.RowsAffected > 0 {
		logger.Info().
			Int64("expired", result.RowsAffected).
			Time("cutoff", now).
			Msg("Expired announcements")
		recordSystemActivity(ctx, db, logger, "expire", fmt.Sprintf("Unpublished %d expired announcement(s)", result.RowsAffected))
	}
	return nil
}

// HandlePruneRevokedTokens drops revocations for tokens that have expired on their own
func HandlePruneRevokedTokens(ctx context.Context, t *asynq.Task, db *gorm.DB, logger zerolog.Logger) error {
	payload, err := tasks.ParseTaskPayload(t)
	if err != nil {
		return fmt.Errorf("failed to parse payload: %w: %w", err, asynq.SkipRetry)
	}

	result := db.WithContext(ctx).Where("expires_at <= ?", cutoff(payload)).Delete(&models.RevokedToken{})
	if result.Error != nil {
		return fmt.Errorf("failed to prune revoked tokens: %w", result.Error)
	}
	if result.RowsAffected > 0 {
		logger.Debug().Int64("pruned", result.RowsAffected).Msg("Pruned revoked tokens")
	}
	return nil
}

func recordSystemActivity(ctx context.Context, db *gorm.DB, logger zerolog.Logger, action, description string) {
	entry := models.ActivityLog{
		Action:      action,
		EntityType:  "news",
		Description: description,
	}
	if err := db.WithContext(ctx).Create(&entry).Error; err != nil {
		logger.Warn().Err(err).Str("action", action).Msg("Failed to record activity")
	}
}
