package action

import (
	"fmt"

	"PerpCore/internal/fixed"
	"PerpCore/internal/market"
	"PerpCore/internal/oracle"
)

// WithdrawParams is the input contract of a withdrawal.
type WithdrawParams struct {
	MarketToken       market.Token
	MarketTokenAmount uint64
	MinLongAmount     uint64
	MinShortAmount    uint64
}

// Withdraw burns liquidity tokens for a pro-rata share of both pool sides.
// Execute consumes the builder.
type Withdraw struct {
	markets *SwapMarkets
	prices  oracle.Provider
	params  WithdrawParams
	done    bool
}

// NewWithdraw builds a withdrawal over the given overlays.
func NewWithdraw(markets *SwapMarkets, prices oracle.Provider, params WithdrawParams) (*Withdraw, error) {
	if params.MarketTokenAmount == 0 {
		return nil, market.ErrEmptyWithdrawal
	}
	return &Withdraw{markets: markets, prices: prices, params: params}, nil
}

// Execute runs the withdrawal and commits.
func (w *Withdraw) Execute() (*WithdrawalReport, error) {
	if w.done {
		return nil, ErrAlreadyCommitted
	}
	w.done = true

	target, err := w.markets.Get(w.params.MarketToken)
	if err != nil {
		return nil, err
	}
	prices, err := oracle.MarketPrices(w.prices, target.Meta())
	if err != nil {
		return nil, err
	}
	report, err := executeWithdrawal(target, prices, fixed.FromU64(w.params.MarketTokenAmount), true)
	if err != nil {
		return nil, err
	}
	if report.LongTokenAmount.Cmp(fixed.FromU64(w.params.MinLongAmount)) < 0 ||
		report.ShortTokenAmount.Cmp(fixed.FromU64(w.params.MinShortAmount)) < 0 {
		return nil, fmt.Errorf("withdrawal output below minimum: %w", market.ErrOutputAmountBelowMin)
	}

	long64, err := report.LongTokenAmount.U64()
	if err != nil {
		return nil, err
	}
	short64, err := report.ShortTokenAmount.U64()
	if err != nil {
		return nil, err
	}
	if err := target.RecordTransferredOut(true, long64); err != nil {
		return nil, err
	}
	if err := target.RecordTransferredOut(false, short64); err != nil {
		return nil, err
	}
	report.TransferOut.LongToken = long64
	report.TransferOut.ShortToken = short64
	if err := target.ValidateBalances(fixed.Zero, fixed.Zero); err != nil {
		return nil, err
	}

	if err := w.markets.Commit(); err != nil {
		return nil, err
	}
	report.Nonce = target.Base().NextWithdrawalNonce()
	return report, nil
}

// executeWithdrawal burns liquidity on the overlay and debits both primary
// pool sides. When chargeFees is false the fee split is skipped, the shift
// contract.
func executeWithdrawal(target *RevertibleMarket, prices market.Prices, burn fixed.U128, chargeFees bool) (*WithdrawalReport, error) {
	if burn.IsZero() {
		return nil, market.ErrEmptyWithdrawal
	}
	poolValue, err := market.PoolValue(target, prices, false)
	if err != nil {
		return nil, err
	}
	if poolValue.IsZero() {
		return nil, market.ErrInvalidPoolValue
	}

	burnValue, err := market.MarketTokenAmountToUSD(target, prices, burn)
	if err != nil {
		return nil, err
	}

	// Split the burned value pro-rata over the two sides' USD values.
	longValue, err := market.PoolValueForSide(target, prices, true, false)
	if err != nil {
		return nil, err
	}
	longShare, err := fixed.MulDiv(burnValue, longValue, poolValue)
	if err != nil {
		return nil, err
	}
	shortShare, err := fixed.Sub(burnValue, longShare)
	if err != nil {
		return nil, err
	}
	longAmount, err := market.TokenAmount(longShare, prices.LongTokenPrice.Max)
	if err != nil {
		return nil, err
	}
	shortAmount, err := market.TokenAmount(shortShare, prices.ShortTokenPrice.Max)
	if err != nil {
		return nil, err
	}

	report := &WithdrawalReport{
		MarketToken:       target.Meta().MarketToken,
		BurnedTokenAmount: burn,
	}

	cfg := target.Config()
	primary, err := target.PoolMut(market.PoolPrimary)
	if err != nil {
		return nil, err
	}
	claimable, err := target.PoolMut(market.PoolClaimableFee)
	if err != nil {
		return nil, err
	}
	for _, side := range []struct {
		isLong bool
		amount fixed.U128
	}{{true, longAmount}, {false, shortAmount}} {
		out := side.amount
		debit := side.amount
		if chargeFees && !side.amount.IsZero() {
			fees, err := market.ApplySwapFee(cfg.SwapFee, side.amount, false)
			if err != nil {
				return nil, err
			}
			// Pool fee stays in the primary pool; the receiver share moves
			// to the claimable bucket.
			out = fees.AmountAfterFees
			debit, err = fixed.Add(fees.AmountAfterFees, fees.ReceiverFeeAmount)
			if err != nil {
				return nil, err
			}
			if err := claimable.ApplyDelta(side.isLong, fixed.NewI128(false, fees.ReceiverFeeAmount)); err != nil {
				return nil, err
			}
			report.Fees.PoolFeeAmount, err = fixed.Add(report.Fees.PoolFeeAmount, fees.PoolFeeAmount)
			if err != nil {
				return nil, err
			}
			report.Fees.ReceiverFeeAmount, err = fixed.Add(report.Fees.ReceiverFeeAmount, fees.ReceiverFeeAmount)
			if err != nil {
				return nil, err
			}
		}
		if err := primary.ApplyDelta(side.isLong, fixed.NewI128(true, debit)); err != nil {
			return nil, fmt.Errorf("withdrawal exceeds pool on %s side: %w", sideLabel(side.isLong), market.ErrInsufficientReserve)
		}
		if side.isLong {
			report.LongTokenAmount = out
		} else {
			report.ShortTokenAmount = out
		}
	}

	for _, isLong := range []bool{true, false} {
		if err := market.ValidateReserve(target, prices, isLong); err != nil {
			return nil, err
		}
		if err := market.ValidateMaxPnlFactor(target, prices, isLong,
			cfg.MaxPnlFactorForWithdrawal.Get(isLong), market.ErrPnlFactorExceededForWithdrawal); err != nil {
			return nil, err
		}
	}

	if err := target.BurnLiquidity(burn); err != nil {
		return nil, err
	}
	return report, nil
}

func sideLabel(isLong bool) string {
	if isLong {
		return "long"
	}
	return "short"
}
