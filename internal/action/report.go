package action

import (
	"encoding/binary"

	"PerpCore/internal/fixed"
	"PerpCore/internal/market"
)

// Fees is the tagged, additive fee taxonomy every report carries. Each kind
// stays a distinct field; downstream accounting reconciles ClaimableFee,
// receiver payouts and funding claims from the breakdown.
type Fees struct {
	PoolFeeAmount         fixed.U128
	ReceiverFeeAmount     fixed.U128
	BorrowingFeeAmount    fixed.U128
	FundingFeeAmount      fixed.U128
	ClaimableFundingLong  fixed.U128
	ClaimableFundingShort fixed.U128
	LiquidationFeeAmount  fixed.U128
	PositiveImpactRebate  fixed.U128
}

// TransferOut is the typed record of every token amount an action sends out
// of the market. Amounts are token atomic units.
type TransferOut struct {
	FinalOutput              uint64
	SecondaryOutput          uint64
	LongToken                uint64
	ShortToken               uint64
	ClaimableForHoldingLong  uint64
	ClaimableForHoldingShort uint64
	ClaimableForUserLong     uint64
	ClaimableForUserShort    uint64
}

// SwapReport is the outcome of a single- or multi-hop swap.
type SwapReport struct {
	MarketToken market.Token
	TokenIn     market.Token
	TokenOut    market.Token
	AmountIn    fixed.U128
	AmountOut   fixed.U128

	Fees              Fees
	PriceImpactValue  fixed.I128
	PriceImpactAmount fixed.I128
	PriceImpactDiff   fixed.U128

	TransferOut TransferOut
}

// DepositReport is the outcome of a deposit.
type DepositReport struct {
	MarketToken       market.Token
	Nonce             uint64
	LongTokenAmount   fixed.U128
	ShortTokenAmount  fixed.U128
	MintedTokenAmount fixed.U128

	Fees              Fees
	PriceImpactValue  fixed.I128
	PriceImpactAmount fixed.I128

	LongSwapReports  []SwapReport
	ShortSwapReports []SwapReport
}

// WithdrawalReport is the outcome of a withdrawal.
type WithdrawalReport struct {
	MarketToken       market.Token
	Nonce             uint64
	BurnedTokenAmount fixed.U128
	LongTokenAmount   fixed.U128
	ShortTokenAmount  fixed.U128

	Fees        Fees
	TransferOut TransferOut
}

// ShiftReport is the outcome of a shift between sibling markets.
type ShiftReport struct {
	FromMarketToken market.Token
	ToMarketToken   market.Token
	Nonce           uint64

	Withdrawal WithdrawalReport
	Deposit    DepositReport
}

// PnlAmounts carries a decrease's final (capped) and uncapped PnL.
type PnlAmounts struct {
	Final    fixed.I128
	Uncapped fixed.I128
}

// IncreaseReport is the outcome of an increase-position.
type IncreaseReport struct {
	MarketToken market.Token
	Nonce       uint64
	IsLong      bool

	SizeDeltaUSD      fixed.U128
	SizeDeltaInTokens fixed.U128
	ExecutionPrice    fixed.U128
	CollateralDelta   fixed.U128

	Fees              Fees
	PriceImpactValue  fixed.I128
	PriceImpactAmount fixed.I128

	TransferOut TransferOut
}

// DecreaseReport is the outcome of a decrease-position (including the
// liquidation and ADL variants).
type DecreaseReport struct {
	MarketToken   market.Token
	Nonce         uint64
	IsLong        bool
	IsLiquidation bool

	SizeDeltaUSD      fixed.U128
	SizeDeltaInTokens fixed.U128
	ExecutionPrice    fixed.U128

	Fees              Fees
	PriceImpactValue  fixed.I128
	PriceImpactAmount fixed.I128
	PriceImpactDiff   fixed.U128

	Pnl PnlAmounts

	OutputAmount               fixed.U128
	SecondaryOutputAmount      fixed.U128
	IsOutputTokenLong          bool
	IsSecondaryOutputTokenLong bool

	ShouldRemovePosition bool

	// SwapFailure is non-nil when the in-action merge swap could not run
	// and the outputs were paid unmerged. Classify with errors.Is.
	SwapFailure error

	SwapReport *SwapReport // decrease-swap leg, when taken

	TransferOut TransferOut
}

// Canonical binary encoding. Field order is fixed once emitted; downstream
// consumers depend on the bit-exact layout.

type canonicalBuf struct {
	b []byte
}

func newCanonicalBuf(capacity int) *canonicalBuf {
	return &canonicalBuf{b: make([]byte, 0, capacity)}
}

func (c *canonicalBuf) token(t market.Token) {
	c.b = append(c.b, byte(len(t)))
	c.b = append(c.b, []byte(t)...)
}

func (c *canonicalBuf) u64(v uint64) {
	c.b = binary.LittleEndian.AppendUint64(c.b, v)
}

func (c *canonicalBuf) u128(v fixed.U128) {
	c.b = binary.LittleEndian.AppendUint64(c.b, v.Lo)
	c.b = binary.LittleEndian.AppendUint64(c.b, v.Hi)
}

func (c *canonicalBuf) i128(v fixed.I128) {
	if v.Neg {
		c.b = append(c.b, 1)
	} else {
		c.b = append(c.b, 0)
	}
	c.u128(v.Mag)
}

func (c *canonicalBuf) bool(v bool) {
	if v {
		c.b = append(c.b, 1)
	} else {
		c.b = append(c.b, 0)
	}
}

func (c *canonicalBuf) fees(f Fees) {
	c.u128(f.PoolFeeAmount)
	c.u128(f.ReceiverFeeAmount)
	c.u128(f.BorrowingFeeAmount)
	c.u128(f.FundingFeeAmount)
	c.u128(f.ClaimableFundingLong)
	c.u128(f.ClaimableFundingShort)
	c.u128(f.LiquidationFeeAmount)
	c.u128(f.PositiveImpactRebate)
}

func (c *canonicalBuf) transferOut(t TransferOut) {
	c.u64(t.FinalOutput)
	c.u64(t.SecondaryOutput)
	c.u64(t.LongToken)
	c.u64(t.ShortToken)
	c.u64(t.ClaimableForHoldingLong)
	c.u64(t.ClaimableForHoldingShort)
	c.u64(t.ClaimableForUserLong)
	c.u64(t.ClaimableForUserShort)
}

// CanonicalBytes returns deterministic serialization for hashing.
func (r *SwapReport) CanonicalBytes() []byte {
	c := newCanonicalBuf(320)
	c.token(r.MarketToken)
	c.token(r.TokenIn)
	c.token(r.TokenOut)
	c.u128(r.AmountIn)
	c.u128(r.AmountOut)
	c.fees(r.Fees)
	c.i128(r.PriceImpactValue)
	c.i128(r.PriceImpactAmount)
	c.u128(r.PriceImpactDiff)
	c.transferOut(r.TransferOut)
	return c.b
}

// CanonicalBytes returns deterministic serialization for hashing.
func (r *DepositReport) CanonicalBytes() []byte {
	c := newCanonicalBuf(384)
	c.token(r.MarketToken)
	c.u64(r.Nonce)
	c.u128(r.LongTokenAmount)
	c.u128(r.ShortTokenAmount)
	c.u128(r.MintedTokenAmount)
	c.fees(r.Fees)
	c.i128(r.PriceImpactValue)
	c.i128(r.PriceImpactAmount)
	for _, s := range r.LongSwapReports {
		c.b = append(c.b, s.CanonicalBytes()...)
	}
	for _, s := range r.ShortSwapReports {
		c.b = append(c.b, s.CanonicalBytes()...)
	}
	return c.b
}

// CanonicalBytes returns deterministic serialization for hashing.
func (r *WithdrawalReport) CanonicalBytes() []byte {
	c := newCanonicalBuf(320)
	c.token(r.MarketToken)
	c.u64(r.Nonce)
	c.u128(r.BurnedTokenAmount)
	c.u128(r.LongTokenAmount)
	c.u128(r.ShortTokenAmount)
	c.fees(r.Fees)
	c.transferOut(r.TransferOut)
	return c.b
}

// CanonicalBytes returns deterministic serialization for hashing.
func (r *ShiftReport) CanonicalBytes() []byte {
	c := newCanonicalBuf(768)
	c.token(r.FromMarketToken)
	c.token(r.ToMarketToken)
	c.u64(r.Nonce)
	c.b = append(c.b, r.Withdrawal.CanonicalBytes()...)
	c.b = append(c.b, r.Deposit.CanonicalBytes()...)
	return c.b
}

// CanonicalBytes returns deterministic serialization for hashing.
func (r *IncreaseReport) CanonicalBytes() []byte {
	c := newCanonicalBuf(384)
	c.token(r.MarketToken)
	c.u64(r.Nonce)
	c.bool(r.IsLong)
	c.u128(r.SizeDeltaUSD)
	c.u128(r.SizeDeltaInTokens)
	c.u128(r.ExecutionPrice)
	c.u128(r.CollateralDelta)
	c.fees(r.Fees)
	c.i128(r.PriceImpactValue)
	c.i128(r.PriceImpactAmount)
	c.transferOut(r.TransferOut)
	return c.b
}

// CanonicalBytes returns deterministic serialization for hashing.
func (r *DecreaseReport) CanonicalBytes() []byte {
	c := newCanonicalBuf(512)
	c.token(r.MarketToken)
	c.u64(r.Nonce)
	c.bool(r.IsLong)
	c.bool(r.IsLiquidation)
	c.u128(r.SizeDeltaUSD)
	c.u128(r.SizeDeltaInTokens)
	c.u128(r.ExecutionPrice)
	c.fees(r.Fees)
	c.i128(r.PriceImpactValue)
	c.i128(r.PriceImpactAmount)
	c.u128(r.PriceImpactDiff)
	c.i128(r.Pnl.Final)
	c.i128(r.Pnl.Uncapped)
	c.u128(r.OutputAmount)
	c.u128(r.SecondaryOutputAmount)
	c.bool(r.IsOutputTokenLong)
	c.bool(r.IsSecondaryOutputTokenLong)
	c.bool(r.ShouldRemovePosition)
	c.bool(r.SwapFailure != nil)
	if r.SwapReport != nil {
		c.bool(true)
		c.b = append(c.b, r.SwapReport.CanonicalBytes()...)
	} else {
		c.bool(false)
	}
	c.transferOut(r.TransferOut)
	return c.b
}
