// Package worker runs the automated verification tasks.
package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"

	docservice "onramp/internal/document/service"
	"onramp/internal/verification/ai"
	"onramp/internal/verification/queue"
	id "onramp/pkg/domain"
)

// ResultApplier feeds verdicts back into the document workflow.
type ResultApplier interface {
	ApplyAIResult(ctx context.Context, result docservice.AIResult) error
}

// Processor is plugged into the asynq worker loop. Each task calls the
// verifier and applies the verdict. Verifier failures are returned so asynq
// retries with backoff; a document that moved on in the meantime is handled
// by the workflow's stale-verdict guard.
type Processor struct {
	verifier ai.Verifier
	applier  ResultApplier
	log      *slog.Logger
}

func NewProcessor(verifier ai.Verifier, applier ResultApplier, log *slog.Logger) *Processor {
	if log == nil {
		log = slog.Default()
	}
	return &Processor{verifier: verifier, applier: applier, log: log}
}

// Handler registers the verification task handler.
func (p *Processor) Handler() *asynq.ServeMux {
	mux := asynq.NewServeMux()
	mux.HandleFunc(queue.AIVerifyTask, p.handleVerify)
	return mux
}

func (p *Processor) handleVerify(ctx context.Context, task *asynq.Task) error {
	var payload queue.AIVerifyPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		// A malformed payload never gets better; skip the retries.
		return fmt.Errorf("decode payload: %v: %w", err, asynq.SkipRetry)
	}
	docID, err := id.ParseDocumentID(payload.DocumentID)
	if err != nil {
		return fmt.Errorf("bad document id %q: %w", payload.DocumentID, asynq.SkipRetry)
	}

	result, err := p.verifier.Verify(ctx, ai.VerifyRequest{
		DocumentID:    payload.DocumentID,
		ApplicationID: payload.ApplicationID,
		Type:          payload.Type,
		MIMEType:      payload.MIMEType,
		StorageRef:    payload.StorageRef,
	})
	if err != nil {
		p.log.Warn("verification call failed, task will retry",
			"document_id", payload.DocumentID, "error", err)
		return err
	}

	if err := p.applier.ApplyAIResult(ctx, docservice.AIResult{
		DocumentID:           docID,
		Verified:             result.Verified,
		RequiresManualReview: result.RequiresManualReview,
		Confidence:           result.Confidence,
		Notes:                result.Notes,
	}); err != nil {
		return err
	}
	p.log.Info("verification verdict applied",
		"document_id", payload.DocumentID, "verified", result.Verified,
		"manual_review", result.RequiresManualReview)
	return nil
}
