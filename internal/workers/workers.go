// Package workers holds the asynq task handlers and the periodic scheduler
package workers

import (
	"context"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/sitecms/sitecms/internal/tasks"
)

// Register binds every task handler to mux
func Register(mux *asynq.ServeMux, db *gorm.DB, logger zerolog.Logger) {
	handlers := map[string]func(context.Context, *asynq.Task, *gorm.DB, zerolog.Logger) error{
		tasks.TypePublishScheduledNews: HandlePublishScheduledNews,
		tasks.TypeExpireAnnouncements:  HandleExpireAnnouncements,
		tasks.TypePruneRevokedTokens:   HandlePruneRevokedTokens,
		tasks.TypeContactReceived:      HandleContactReceived,
		tasks.TypeContactReplied:       HandleContactReplied,
	}
	for taskType, handle := range handlers {
		log := logger.With().Str("task_type", taskType).Logger()
		mux.HandleFunc(taskType, func(ctx context.Context, t *asynq.Task) error {
			return handle(ctx, t, db, log)
		})
	}
}
