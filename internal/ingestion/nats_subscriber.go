package ingestion

import (
	"context"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog"
)

// NATSSubscriber feeds JetStream messages into the engine loop via
// eventChan. Each event family has its own subject so producers scale
// independently.
type NATSSubscriber struct {
	js        jetstream.JetStream
	eventChan chan<- RawEvent
	consumers []jetstream.ConsumeContext
	log       zerolog.Logger
}

// RawEvent is a parsed-but-untyped message, ready for the shell to
// validate and convert into a typed command before it reaches the core.
type RawEvent struct {
	Subject   string
	Data      []byte
	Timestamp time.Time
	AckFunc   func() // ACK after the core accepted (or deduped) the event
	NakFunc   func() // NAK on transient failure, message is redelivered
}

// SubjectConfig maps one NATS subject to an event type.
type SubjectConfig struct {
	Subject      string
	EventType    string
	ConsumerName string
	StreamName   string
}

// DefaultSubjects returns the standard subject layout.
func DefaultSubjects() []SubjectConfig {
	return []SubjectConfig{
		{Subject: "perp.prices.>", EventType: "PriceUpdate", ConsumerName: "core-prices", StreamName: "PERP_PRICES"},
		{Subject: "perp.liquidity.deposit.>", EventType: "Deposit", ConsumerName: "core-deposits", StreamName: "PERP_LIQUIDITY"},
		{Subject: "perp.liquidity.withdraw.>", EventType: "Withdrawal", ConsumerName: "core-withdrawals", StreamName: "PERP_LIQUIDITY"},
		{Subject: "perp.liquidity.shift.>", EventType: "Shift", ConsumerName: "core-shifts", StreamName: "PERP_LIQUIDITY"},
		{Subject: "perp.swaps.>", EventType: "Swap", ConsumerName: "core-swaps", StreamName: "PERP_SWAPS"},
		{Subject: "perp.orders.increase.>", EventType: "OrderIncrease", ConsumerName: "core-order-increase", StreamName: "PERP_ORDERS"},
		{Subject: "perp.orders.decrease.>", EventType: "OrderDecrease", ConsumerName: "core-order-decrease", StreamName: "PERP_ORDERS"},
		{Subject: "perp.admin.market.>", EventType: "MarketCreate", ConsumerName: "core-admin-market", StreamName: "PERP_ADMIN"},
		{Subject: "perp.admin.config.>", EventType: "ConfigUpdate", ConsumerName: "core-admin-config", StreamName: "PERP_ADMIN"},
	}
}

func NewNATSSubscriber(js jetstream.JetStream, eventChan chan<- RawEvent, log zerolog.Logger) *NATSSubscriber {
	return &NATSSubscriber{
		js:        js,
		eventChan: eventChan,
		log:       log.With().Str("component", "nats").Logger(),
	}
}

// Subscribe creates JetStream consumers for all configured subjects.
// Consumers use explicit ACK, max_deliver=5, ack_wait=30s.
func (ns *NATSSubscriber) Subscribe(ctx context.Context, subjects []SubjectConfig) error {
	for _, cfg := range subjects {
		consumer, err := ns.js.CreateOrUpdateConsumer(ctx, cfg.StreamName, jetstream.ConsumerConfig{
			Durable:       cfg.ConsumerName,
			FilterSubject: cfg.Subject,
			AckPolicy:     jetstream.AckExplicitPolicy,
			AckWait:       30 * time.Second,
			MaxDeliver:    5,
			DeliverPolicy: jetstream.DeliverAllPolicy,
		})
		if err != nil {
			return fmt.Errorf("create consumer %s: %w", cfg.ConsumerName, err)
		}

		consumerContext, err := consumer.Consume(func(msg jetstream.Msg) {
			raw := RawEvent{
				Subject:   msg.Subject(),
				Data:      msg.Data(),
				Timestamp: time.Now(),
				AckFunc:   func() { msg.Ack() },
				NakFunc:   func() { msg.Nak() },
			}

			select {
			case ns.eventChan <- raw:
			case <-ctx.Done():
				msg.Nak()
			}
		})
		if err != nil {
			return fmt.Errorf("consume %s: %w", cfg.ConsumerName, err)
		}

		ns.consumers = append(ns.consumers, consumerContext)
		ns.log.Info().Str("subject", cfg.Subject).Str("consumer", cfg.ConsumerName).Msg("subscribed")
	}

	return nil
}

// EnsureStreams creates the required JetStream streams if they don't exist.
// Streams use file storage with limits retention and a 72h ceiling.
func EnsureStreams(ctx context.Context, js jetstream.JetStream) error {
	streams := []jetstream.StreamConfig{
		{Name: "PERP_PRICES", Subjects: []string{"perp.prices.>"}},
		{Name: "PERP_LIQUIDITY", Subjects: []string{"perp.liquidity.>"}},
		{Name: "PERP_SWAPS", Subjects: []string{"perp.swaps.>"}},
		{Name: "PERP_ORDERS", Subjects: []string{"perp.orders.>"}},
		{Name: "PERP_ADMIN", Subjects: []string{"perp.admin.>"}},
	}

	for _, cfg := range streams {
		cfg.Storage = jetstream.FileStorage
		cfg.Retention = jetstream.LimitsPolicy
		cfg.MaxAge = 72 * time.Hour
		cfg.Replicas = 1
		if _, err := js.CreateOrUpdateStream(ctx, cfg); err != nil {
			return fmt.Errorf("create stream %s: %w", cfg.Name, err)
		}
	}

	return nil
}

// Stop gracefully stops all consumers.
func (ns *NATSSubscriber) Stop() {
	for _, cc := range ns.consumers {
		cc.Stop()
	}
	ns.log.Info().Msg("subscribers stopped")
}

// ConnectNATS establishes a NATS connection and returns a JetStream context.
func ConnectNATS(url string, log zerolog.Logger) (*nats.Conn, jetstream.JetStream, error) {
	nc, err := nats.Connect(url,
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			log.Warn().Err(err).Msg("nats disconnected")
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			log.Info().Msg("nats reconnected")
		}),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("nats connect: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, nil, fmt.Errorf("jetstream: %w", err)
	}

	return nc, js, nil
}
