package ingestion

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog"
)

// OutboundPublisher republishes applied events for downstream consumers
// (indexers, dashboards, settlement keepers). Publishing happens after the
// core applied the event; a lost publish is recoverable from the event log.
type OutboundPublisher struct {
	js        jetstream.JetStream
	inputChan <-chan PublishableEvent
	log       zerolog.Logger
}

// PublishableEvent is one applied event ready for outbound publishing.
type PublishableEvent struct {
	Sequence       int64  `json:"sequence"`
	EventType      string `json:"event_type"`
	IdempotencyKey string `json:"idempotency_key"`
	MarketToken    string `json:"market_token,omitempty"`
	Report         any    `json:"report,omitempty"`
	StateHash      []byte `json:"state_hash"`
	TimestampUs    int64  `json:"timestamp_us"`
}

func NewOutboundPublisher(js jetstream.JetStream, inputChan <-chan PublishableEvent, log zerolog.Logger) *OutboundPublisher {
	return &OutboundPublisher{
		js:        js,
		inputChan: inputChan,
		log:       log.With().Str("component", "publisher").Logger(),
	}
}

// Run drains the input channel until it closes or ctx is cancelled.
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
				op.log.Warn().Err(err).Int64("sequence", evt.Sequence).Msg("outbound publish failed")
			}
		}
	}
}

// publish sends to perp.core.events.{event_type}[.{market_token}].
func (op *OutboundPublisher) publish(ctx context.Context, evt PublishableEvent) error {
	data, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	subject := fmt.Sprintf("perp.core.events.%s", evt.EventType)
	if evt.MarketToken != "" {
		subject = fmt.Sprintf("%s.%s", subject, evt.MarketToken)
	}

	_, err = op.js.Publish(ctx, subject, data)
	return err
}

// EnsureOutboundStream creates the outbound events stream.
func EnsureOutboundStream(ctx context.Context, js jetstream.JetStream) error {
	_, err := js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:      "PERP_CORE_EVENTS",
		Subjects:  []string{"perp.core.events.>"},
		Storage:   jetstream.FileStorage,
		Retention: jetstream.LimitsPolicy,
		MaxAge:    72 * time.Hour,
		Replicas:  1,
	})
	if err != nil {
		return fmt.Errorf("create outbound stream: %w", err)
	}
	return nil
}
