// Package queue bridges the document workflow to the asynq-backed automated
// verification pipeline.
package queue

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"

	docservice "onramp/internal/document/service"
)

const (
	// AIVerifyTask is scheduled for each upload eligible for automated
	// verification.
	AIVerifyTask = "document:ai-verify"

	// VerificationQueue keeps verification jobs off the default queue.
	VerificationQueue = "verification"
)

// AIVerifyPayload is serialized into the task so the worker can fetch the
// artifact and report back without touching the document store first.
type AIVerifyPayload struct {
	DocumentID    string `json:"document_id"`
	ApplicationID string `json:"application_id"`
	Type          string `json:"type"`
	MIMEType      string `json:"mime_type"`
	StorageRef    string `json:"storage_ref"`
}

// Queue enqueues verification jobs. Implements the document workflow's
// Dispatcher contract.
type Queue struct {
	client   *asynq.Client
	maxRetry int
}

func New(client *asynq.Client, maxRetry int) *Queue {
	if maxRetry <= 0 {
		maxRetry = 5
	}
	return &Queue{client: client, maxRetry: maxRetry}
}

// Dispatch enqueues one verification job.
func (q *Queue) Dispatch(ctx context.Context, req docservice.DispatchRequest) error {
	data, err := json.Marshal(AIVerifyPayload{
		DocumentID:    req.DocumentID.String(),
		ApplicationID: req.ApplicationID.String(),
		Type:          string(req.Type),
		MIMEType:      req.MIMEType,
		StorageRef:    req.StorageRef,
	})
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	task := asynq.NewTask(AIVerifyTask, data)
	if _, err := q.client.EnqueueContext(ctx, task,
		asynq.MaxRetry(q.maxRetry), asynq.Queue(VerificationQueue)); err != nil {
		return fmt.Errorf("enqueue verification task: %w", err)
	}
	return nil
}
