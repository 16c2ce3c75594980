package queue

import (
	"context"
	"encoding/json"

	"mealcard/internal/verify"
)

// MsgAttempt marks messages carrying a verification attempt body.
const MsgAttempt = "attempt"

// AuditPublisher adapts a Queue to the engine's audit hook, encoding
// attempts as JSON message bodies.
type AuditPublisher struct {
	q Queue
}

// NewAuditPublisher wraps a queue.
func NewAuditPublisher(q Queue) *AuditPublisher {
	return &AuditPublisher{q: q}
}

// PublishAttempt enqueues one attempt for the audit worker.
func (p *AuditPublisher) PublishAttempt(ctx context.Context, a verify.Attempt) error {
	body, err := json.Marshal(a)
	if err != nil {
		return err
	}
	return p.q.Publish(ctx, Message{Type: MsgAttempt, Body: body})
}

// DecodeAttempt parses an attempt message body.
func DecodeAttempt(body []byte) (verify.Attempt, error) {
	var a verify.Attempt
	err := json.Unmarshal(body, &a)
	return a, err
}
