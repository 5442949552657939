package ingestion

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"rewardengine/internal/coordinator"

	sdkmath "cosmossdk.io/math"
	"github.com/google/uuid"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog"
)

const payoutStream = "REWARD_PAYOUTS"

// PayoutInstruction is the message a token executor consumes to move claimed
// rewards on chain.
type PayoutInstruction struct {
	TransferID string      `json:"transfer_id,omitempty"`
	Account    uuid.UUID   `json:"account"`
	Amount     sdkmath.Int `json:"amount"`
}

// JetStreamTransfer hands payouts to the token executor through a JetStream
// stream. A payout succeeds once the stream acknowledged it; the transfer id
// is the message id, so a redelivered claim is stored only once.
type JetStreamTransfer struct {
	js     jetstream.JetStream
	logger zerolog.Logger
}

var _ coordinator.TokenTransfer = (*JetStreamTransfer)(nil)

func NewJetStreamTransfer(js jetstream.JetStream, logger zerolog.Logger) *JetStreamTransfer {
	return &JetStreamTransfer{js: js, logger: logger}
}

// PayoutSubject is where payouts for one account are published.
func PayoutSubject(account uuid.UUID) string {
	return "reward.payouts." + account.String()
}

func (t *JetStreamTransfer) Payout(ctx context.Context, account uuid.UUID, amount sdkmath.Int) error {
	msg := PayoutInstruction{
		TransferID: coordinator.TransferID(ctx),
		Account:    account,
		Amount:     amount,
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal payout: %w", err)
	}

	var opts []jetstream.PublishOpt
	if msg.TransferID != "" {
		opts = append(opts, jetstream.WithMsgID(msg.TransferID))
	}
	ack, err := t.js.Publish(ctx, PayoutSubject(account), data, opts...)
	if err != nil {
		return fmt.Errorf("publish payout for %s: %w", account, err)
	}
	if ack.Duplicate {
		t.logger.Debug().Str("transfer_id", msg.TransferID).Msg("payout already queued")
	}
	return nil
}

// EnsurePayoutStream creates the payout stream. Work-queue retention keeps
// each instruction until the executor acknowledges it.
func EnsurePayoutStream(ctx context.Context, js jetstream.JetStream, logger zerolog.Logger) error {
	_, err := js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:       payoutStream,
		Subjects:   []string{"reward.payouts.>"},
		Storage:    jetstream.FileStorage,
		Retention:  jetstream.WorkQueuePolicy,
		Duplicates: 24 * time.Hour,
		Replicas:   1,
	})
	if err != nil {
		return fmt.Errorf("create payout stream: %w", err)
	}
	logger.Info().Str("stream", payoutStream).Msg("ensured payout stream")
	return nil
}
