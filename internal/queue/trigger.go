// Package queue provides the SQS producer that wakes the delivery subsystem
// when a processing run has written new notification queue entries. The
// durable handoff is the notification_queue table; the SQS message is only a
// nudge so delivery drains promptly instead of waiting for its next poll.
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/google/uuid"

	"signalpipe/internal/types"
)

// SQSSender abstracts the SQS SendMessage operation for testability.
// Production code uses the *sqs.Client from aws-sdk-go-v2.
type SQSSender interface {
	SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
}

// WakeupMessage is the payload sent to the delivery queue after a run.
type WakeupMessage struct {
	TraceID        string    `json:"trace_id"`
	EntriesCreated int       `json:"entries_created"`
	CreatedAt      time.Time `json:"created_at"`
}

// DeliveryTrigger publishes WakeupMessages to the delivery SQS queue.
type DeliveryTrigger struct {
	client   SQSSender
	queueURL string
	clock    types.Clock
	logger   types.Logger
}

// NewDeliveryTrigger creates a DeliveryTrigger targeting the given queue URL.
func NewDeliveryTrigger(client SQSSender, queueURL string, clock types.Clock, logger types.Logger) *DeliveryTrigger {
	if clock == nil {
		clock = types.RealClock{}
	}
	return &DeliveryTrigger{
		client:   client,
		queueURL: queueURL,
		clock:    clock,
		logger:   logger,
	}
}

// AnnouncePending serializes a WakeupMessage and sends it to the delivery
// queue.
func (t *DeliveryTrigger) AnnouncePending(ctx context.Context, entriesCreated int) error {
	msg := WakeupMessage{
		TraceID:        uuid.New().String(),
		EntriesCreated: entriesCreated,
		CreatedAt:      t.clock.Now(),
	}

	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("queue: failed to marshal wakeup message: %w", err)
	}

	_, err = t.client.SendMessage(ctx, &sqs.SendMessageInput{
		QueueUrl:    aws.String(t.queueURL),
		MessageBody: aws.String(string(body)),
	})
	if err != nil {
		return types.NewAppError(types.ErrCodeUpstreamQueue,
			fmt.Sprintf("failed to send wakeup to %s", t.queueURL), err)
	}

	t.logger.Info("delivery wakeup sent",
		"queue_url", t.queueURL,
		"trace_id", msg.TraceID,
		"entries_created", entriesCreated,
	)
	return nil
}
