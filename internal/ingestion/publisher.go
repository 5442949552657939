package ingestion

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"rewardengine/internal/event"

	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog"
)

// OutboundPublisher publishes processed events to NATS for downstream consumers.
// Subjects follow the pattern: reward.ledger.events.{event_type}
type OutboundPublisher struct {
	js        jetstream.JetStream
	inputChan <-chan PublishableEvent
	logger    zerolog.Logger
}

// PublishableEvent is a processed event ready for outbound publishing.
type PublishableEvent struct {
	Sequence       int64           `json:"sequence"`
	EventType      string          `json:"event_type"`
	IdempotencyKey string          `json:"idempotency_key"`
	Partition      string          `json:"partition"`
	At             event.Point     `json:"at"`
	Rejected       bool            `json:"rejected,omitempty"`
	Reason         string          `json:"reason,omitempty"`
	Payload        json.RawMessage `json:"payload"`
	Receipts       json.RawMessage `json:"receipts,omitempty"`
	StateHash      string          `json:"state_hash"`
}

// NewPublishableEvent flattens a logged envelope.
func NewPublishableEvent(env *event.EventEnvelope) PublishableEvent {
	return PublishableEvent{
		Sequence:       env.Sequence,
		EventType:      env.EventType.String(),
		IdempotencyKey: env.IdempotencyKey,
		Partition:      env.Partition,
		At:             env.At,
		Rejected:       env.Rejected,
		Reason:         env.Reason,
		Payload:        env.Payload,
		Receipts:       env.Outcome,
		StateHash:      hex.EncodeToString(env.StateHash[:]),
	}
}

func NewOutboundPublisher(js jetstream.JetStream, inputChan <-chan PublishableEvent, logger zerolog.Logger) *OutboundPublisher {
	return &OutboundPublisher{
		js:        js,
		inputChan: inputChan,
		logger:    logger,
	}
}

// Run starts the outbound publisher loop.
func (op *OutboundPublisher) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case evt, ok := <-op.inputChan:
			if !ok {
				return nil
			}

			if err := op.publish(ctx, evt); err != nil {
				// Non-fatal: downstream consumers can query the event log directly
				op.logger.Warn().Err(err).Int64("seq", evt.Sequence).Msg("outbound publish failed")
			}
		}
	}
}

// OutboundSubject is where an event type is published.
func OutboundSubject(eventType string) string {
	return "reward.ledger.events." + eventType
}

func (op *OutboundPublisher) publish(ctx context.Context, evt PublishableEvent) error {
	data, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	// The global sequence makes republishing after a restart a no-op.
	_, err = op.js.Publish(ctx, OutboundSubject(evt.EventType), data,
		jetstream.WithMsgID(fmt.Sprintf("seq-%d", evt.Sequence)))
	return err
}

// EnsureOutboundStream creates the outbound events stream.
func EnsureOutboundStream(ctx context.Context, js jetstream.JetStream, logger zerolog.Logger) error {
	_, err := js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:       "REWARD_LEDGER_EVENTS",
		Subjects:   []string{"reward.ledger.events.>"},
		Storage:    jetstream.FileStorage,
		Retention:  jetstream.LimitsPolicy,
		MaxAge:     72 * time.Hour,
		Duplicates: 10 * time.Minute,
		Replicas:   1,
	})
	if err != nil {
		return fmt.Errorf("create outbound stream: %w", err)
	}
	logger.Info().Str("stream", "REWARD_LEDGER_EVENTS").Msg("ensured outbound stream")
	return nil
}
