package event

import (
	"fmt"

	"PerpCore/internal/market"
)

// MarketCreated registers a new market. Idempotency key derives from the
// market token, so a replayed create is a no-op.
type MarketCreated struct {
	Meta      market.MarketMeta
	Config    market.MarketConfig
	Sequence  int64
	Timestamp int64
}

func (m *MarketCreated) IdempotencyKey() string {
	return fmt.Sprintf("market-create:%s", m.Meta.MarketToken)
}

func (m *MarketCreated) EventType() EventType {
	return EventTypeMarketCreate
}

func (m *MarketCreated) MarketToken() string {
	return string(m.Meta.MarketToken)
}

func (m *MarketCreated) SourceSequence() int64 {
	return m.Sequence
}

func (m *MarketCreated) EventTimestamp() int64 {
	return m.Timestamp
}

// ConfigUpdated replaces a market's configuration and flags. Version is the
// admin's monotonic revision for the market; it doubles as the idempotency
// key so a replayed update applies once.
type ConfigUpdated struct {
	Market  market.Token
	Version int64

	Config market.MarketConfig

	Enabled            bool
	ADLEnabledForLong  bool
	ADLEnabledForShort bool

	Sequence  int64
	Timestamp int64
}

func (c *ConfigUpdated) IdempotencyKey() string {
	return fmt.Sprintf("config:%s:%d", c.Market, c.Version)
}

func (c *ConfigUpdated) EventType() EventType {
	return EventTypeConfigUpdate
}

func (c *ConfigUpdated) MarketToken() string {
	return string(c.Market)
}

func (c *ConfigUpdated) SourceSequence() int64 {
	return c.Sequence
}

func (c *ConfigUpdated) EventTimestamp() int64 {
	return c.Timestamp
}
