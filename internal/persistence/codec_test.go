package persistence

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"PerpCore/internal/action"
	"PerpCore/internal/event"
	"PerpCore/internal/fixed"
	"PerpCore/internal/market"
)

func TestCodecRoundTrip(t *testing.T) {
	owner := uuid.New()
	cases := []event.Event{
		&event.PriceUpdate{
			PriceSequence: 42,
			UpdatedAt:     1_700_000_000,
			Prices: []event.TokenPrice{
				{Token: "ETH", Min: fixed.FromU64(1999), Max: fixed.FromU64(2001)},
			},
			Timestamp: 1_700_000_000_000_000,
		},
		&event.DepositRequested{
			RequestID: uuid.New(),
			Params: action.DepositParams{
				MarketToken:        "GM-ETH",
				InitialLongAmount:  5,
				InitialShortAmount: 10_000,
				Owner:              owner,
			},
			Sequence:  3,
			Timestamp: 1_700_000_000_000_000,
		},
		&event.SwapRequested{
			RequestID: uuid.New(),
			Owner:     owner,
			Params: action.SwapParams{
				TokenIn:  "USDC",
				AmountIn: 500,
				Path:     []market.Token{"GM-ETH", "GM-SOL"},
			},
			Sequence:  4,
			Timestamp: 1_700_000_000_000_000,
		},
		&event.OrderDecreased{
			RequestID: uuid.New(),
			Owner:     owner,
			Params: action.DecreaseParams{
				MarketToken:     "GM-ETH",
				CollateralToken: "USDC",
				IsLong:          true,
				SizeDeltaUSD:    fixed.FromU64(1_000),
				IsLiquidation:   true,
			},
			Sequence:  5,
			Timestamp: 1_700_000_000_000_000,
		},
	}

	for _, evt := range cases {
		t.Run(evt.EventType().String(), func(t *testing.T) {
			data, err := EncodeEvent(evt)
			require.NoError(t, err)

			decoded, err := DecodeEvent(evt.EventType().String(), data)
			require.NoError(t, err)

			assert.Equal(t, evt.IdempotencyKey(), decoded.IdempotencyKey())
			assert.Equal(t, evt.EventType(), decoded.EventType())
			assert.Equal(t, evt.SourceSequence(), decoded.SourceSequence())
			assert.Equal(t, evt.MarketToken(), decoded.MarketToken())
			assert.Equal(t, evt, decoded)
		})
	}
}

func TestDecodeUnknownType(t *testing.T) {
	_, err := DecodeEvent("Bogus", []byte(`{}`))
	require.Error(t, err)
}
