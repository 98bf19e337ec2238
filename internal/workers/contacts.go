package workers

import (
	"context"
	"errors"
	"fmt"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/sitecms/sitecms/internal/models"
	"github.com/sitecms/sitecms/internal/tasks"
)

func loadContact(ctx context.Context, db *gorm.DB, t *asynq.Task) (*models.Contact, tasks.TaskPayload, error) {
	payload, err := tasks.ParseTaskPayload(t)
	if err != nil {
		return nil, payload, fmt.Errorf("failed to parse payload: %w: %w", err, asynq.SkipRetry)
	}

	var contact models.Contact
	if err := db.WithContext(ctx).Where("id = ?", payload.ContactID).First(&contact).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			// Deleted before the task ran
			return nil, payload, fmt.Errorf("contact %s not found: %w", payload.ContactID, asynq.SkipRetry)
		}
		return nil, payload, fmt.Errorf("failed to load contact: %w", err)
	}
	return &contact, payload, nil
}

// HandleContactReceived records a notification for a new public contact message
func HandleContactReceived(ctx context.Context, t *asynq.Task, db *gorm.DB, logger zerolog.Logger) error {
	contact, _, err := loadContact(ctx, db, t)
	if err != nil {
		return err
	}

	logger.Info().
		Str("contact_id", contact.ID).
		Str("from", contact.Email).
		Str("subject", contact.Subject).
		Msg("New contact message")

	entry := models.ActivityLog{
		Action:      "notify",
		EntityType:  "contacts",
		EntityID:    contact.ID,
		Description: "New message from " + contact.Name,
	}
	if err := db.WithContext(ctx).Create(&entry).Error; err != nil {
		return fmt.Errorf("failed to record notification: %w", err)
	}
	return nil
}

// HandleContactReplied records delivery of a reply written in the dashboard
func HandleContactReplied(ctx context.Context, t *asynq.Task, db *gorm.DB, logger zerolog.Logger) error {
	contact, payload, err := loadContact(ctx, db, t)
	if err != nil {
		return err
	}
	if !contact.IsReplied {
		logger.Warn().Str("contact_id", contact.ID).Msg("Reply task for contact without reply - skipping")
		return nil
	}

	logger.Info().
		Str("contact_id", contact.ID).
		Str("to", contact.Email).
		Str("actor_id", payload.ActorID).
		Msg("Contact reply sent")

	entry := models.ActivityLog{
		UserID:      payload.ActorID,
		Action:      "reply_sent",
		EntityType:  "contacts",
		EntityID:    contact.ID,
		Description: "Reply delivered to " + contact.Email,
	}
	if err := db.WithContext(ctx).Create(&entry).Error; err != nil {
		return fmt.Errorf("failed to record reply delivery: %w", err)
	}
	return nil
}
