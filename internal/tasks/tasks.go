package tasks

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
)

// Task type constants
const (
	// Content publishing (enqueued by the scheduler)
	TypePublishScheduledNews = "news:publish_scheduled"
	TypeExpireAnnouncements  = "news:expire_announcements"

	// Housekeeping
	TypePruneRevokedTokens = "auth:prune_revoked_tokens"

	// Contact form events (enqueued by the API)
	TypeContactReceived = "contact:received"
	TypeContactReplied  = "contact:replied"
)

// Queue names
const (
	QueueCritical = "critical"
	QueueDefault  = "default"
	QueueLow      = "low"
)

// TaskPayload is the common payload for all tasks
type TaskPayload struct {
	ContactID string    `json:"contact_id,omitempty"`
	ActorID   string    `json:"actor_id,omitempty"`
	RunAt     time.Time `json:"run_at,omitempty"`
}

func newTask(taskType string, payload TaskPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal payload: %w", err)
	}
	return asynq.NewTask(taskType, data), nil
}

// NewPublishScheduledNewsTask creates a task that publishes articles whose publish_at has passed
func NewPublishScheduledNewsTask(runAt time.Time) (*asynq.Task, error) {
	return newTask(TypePublishScheduledNews, TaskPayload{RunAt: runAt})
}

// NewExpireAnnouncementsTask creates a task that unpublishes announcements past expires_at
func NewExpireAnnouncementsTask(runAt time.Time) (*asynq.Task, error) {
	return newTask(TypeExpireAnnouncements, TaskPayload{RunAt: runAt})
}

// NewPruneRevokedTokensTask creates a task that drops revocations of tokens that expired anyway
func NewPruneRevokedTokensTask(runAt time.Time) (*asynq.Task, error) {
	return newTask(TypePruneRevokedTokens, TaskPayload{RunAt: runAt})
}

// NewContactReceivedTask creates a task for a new public contact submission
func NewContactReceivedTask(contactID string) (*asynq.Task, error) {
	return newTask(TypeContactReceived, TaskPayload{ContactID: contactID})
}

// NewContactRepliedTask creates a task for a reply sent by a dashboard user
func NewContactRepliedTask(contactID, actorID string) (*asynq.Task, error) {
	return newTask(TypeContactReplied, TaskPayload{ContactID: contactID, ActorID: actorID})
}

// ParseTaskPayload parses task payload from Asynq task
func ParseTaskPayload(task *asynq.Task) (TaskPayload, error) {
	var payload TaskPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return payload, fmt.Errorf("failed to unmarshal payload: %w", err)
	}
	return payload, nil
}
