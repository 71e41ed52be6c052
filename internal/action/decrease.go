package action

import (
	"fmt"

	"PerpCore/internal/fixed"
	"PerpCore/internal/market"
	"PerpCore/internal/oracle"
	"PerpCore/internal/position"
)

// DecreaseSwapType selects the optional in-action swap between the
// collateral token and the PnL token.
type DecreaseSwapType uint8

const (
	DecreaseSwapNone DecreaseSwapType = iota
	DecreaseSwapPnlTokenToCollateralToken
	DecreaseSwapCollateralTokenToPnlToken
)

// DecreaseParams is the input contract of a decrease-position order,
// covering the market-decrease, liquidation and ADL variants.
type DecreaseParams struct {
	MarketToken     market.Token
	CollateralToken market.Token
	IsLong          bool

	SizeDeltaUSD               fixed.U128
	CollateralWithdrawalAmount uint64

	// AcceptablePrice bounds the execution price; zero disables the check.
	AcceptablePrice fixed.U128

	SwapType DecreaseSwapType

	IsLiquidation       bool
	IsAdl               bool
	AllowInsolventClose bool
	CapSizeDeltaAllowed bool
}

// Decrease shrinks, closes, liquidates or auto-deleverages a position.
// Execute consumes the builder; the position is written back only after the
// overlay commits.
type Decrease struct {
	markets *SwapMarkets
	prices  oracle.Provider
	pos     *position.Position
	params  DecreaseParams
	now     int64
	done    bool
}

// NewDecrease builds a decrease over the given overlays.
func NewDecrease(markets *SwapMarkets, prices oracle.Provider, pos *position.Position, params DecreaseParams, now int64) (*Decrease, error) {
	if params.SizeDeltaUSD.IsZero() && params.CollateralWithdrawalAmount == 0 && !params.IsLiquidation {
		return nil, market.ErrEmptyOrder
	}
	if pos.Key.CollateralToken != params.CollateralToken || pos.Key.IsLong != params.IsLong ||
		pos.Key.MarketToken != params.MarketToken {
		return nil, fmt.Errorf("position key %s does not match order: %w", pos.Key, market.ErrInvalidCollateralToken)
	}
	return &Decrease{markets: markets, prices: prices, pos: pos, params: params, now: now}, nil
}

// decreaseState carries the in-flight amounts between the steps of one
// decrease execution.
type decreaseState struct {
	target     *RevertibleMarket
	prices     market.Prices
	scratch    position.Position
	collIsLong bool
	pnlIsLong  bool

	sizeDeltaUSD      fixed.U128
	sizeDeltaInTokens fixed.U128
	executionPrice    fixed.U128

	collateral   fixed.U128
	output       fixed.U128
	secondary    fixed.U128
	outputIsLong bool
}

// Execute runs the decrease and commits the overlay.
func (d *Decrease) Execute() (*DecreaseReport, error) {
	if d.done {
		return nil, ErrAlreadyCommitted
	}
	d.done = true

	target, err := d.markets.Get(d.params.MarketToken)
	if err != nil {
		return nil, err
	}
	meta := target.Meta()
	cfg := target.Config()
	if !meta.HasCollateral(d.params.CollateralToken) {
		return nil, fmt.Errorf("token %s not traded in %s: %w",
			d.params.CollateralToken, meta.MarketToken, market.ErrInvalidCollateralToken)
	}
	prices, err := oracle.MarketPrices(d.prices, meta)
	if err != nil {
		return nil, err
	}

	st := &decreaseState{
		target:       target,
		prices:       prices,
		scratch:      *d.pos,
		collIsLong:   meta.IsLongToken(d.params.CollateralToken),
		pnlIsLong:    d.params.IsLong,
		outputIsLong: meta.IsLongToken(d.params.CollateralToken),
	}
	if st.scratch.SizeInUSD.IsZero() {
		return nil, market.ErrPositionNotFound
	}
	st.collateral = st.scratch.CollateralAmount

	if err := d.resolveSizeDelta(st); err != nil {
		return nil, err
	}
	if d.params.IsAdl {
		exceeded, err := market.PnlFactorExceeded(target, prices, d.params.IsLong,
			cfg.MaxPnlFactorForAdl.Get(d.params.IsLong))
		if err != nil {
			return nil, err
		}
		if !exceeded {
			return nil, market.ErrPnlFactorNotExceededForAdl
		}
	}

	if _, err := market.UpdateBorrowingState(target, prices, d.now); err != nil {
		return nil, err
	}
	if _, err := market.UpdateFundingState(target, prices, d.now); err != nil {
		return nil, err
	}

	settled, err := settlePositionFees(target, &st.scratch, prices, st.collIsLong)
	if err != nil {
		return nil, err
	}

	report := &DecreaseReport{
		MarketToken:   meta.MarketToken,
		IsLong:        d.params.IsLong,
		IsLiquidation: d.params.IsLiquidation,
		SizeDeltaUSD:  st.sizeDeltaUSD,
	}
	report.Fees.BorrowingFeeAmount = settled.Borrowing
	report.Fees.FundingFeeAmount = settled.Funding
	report.Fees.ClaimableFundingLong = settled.ClaimableLong
	report.Fees.ClaimableFundingShort = settled.ClaimableShort

	var impact fixed.I128
	if !st.sizeDeltaUSD.IsZero() {
		impact, err = d.applyImpactAndPrice(st, report)
		if err != nil {
			return nil, err
		}
		if err := d.settlePnl(st, report); err != nil {
			return nil, err
		}
	}

	if err := d.processCollateral(st, report, settled, impact.Sign() > 0); err != nil {
		return nil, err
	}
	if err := d.updatePosition(st, report); err != nil {
		return nil, err
	}
	if err := d.decreaseSwap(st, report); err != nil {
		return nil, err
	}
	if err := d.validateAfter(st); err != nil {
		return nil, err
	}
	if err := d.payOut(st, report); err != nil {
		return nil, err
	}

	if err := d.markets.Commit(); err != nil {
		return nil, err
	}
	*d.pos = st.scratch
	report.Nonce = target.Base().NextOrderNonce()
	return report, nil
}

// resolveSizeDelta caps or rejects oversized deltas; liquidations always
// close the whole position.
func (d *Decrease) resolveSizeDelta(st *decreaseState) error {
	size := d.params.SizeDeltaUSD
	if d.params.IsLiquidation {
		size = st.scratch.SizeInUSD
	}
	if size.Cmp(st.scratch.SizeInUSD) > 0 {
		if !d.params.CapSizeDeltaAllowed {
			return fmt.Errorf("size delta %v exceeds position %v: %w",
				size, st.scratch.SizeInUSD, market.ErrInvalidOrderSize)
		}
		size = st.scratch.SizeInUSD
	}
	st.sizeDeltaUSD = size
	if size.IsZero() {
		return nil
	}

	if size.Cmp(st.scratch.SizeInUSD) == 0 {
		st.sizeDeltaInTokens = st.scratch.SizeInTokens
		return nil
	}
	var err error
	if d.params.IsLong {
		st.sizeDeltaInTokens, err = fixed.MulDivCeil(st.scratch.SizeInTokens, size, st.scratch.SizeInUSD)
	} else {
		st.sizeDeltaInTokens, err = fixed.MulDiv(st.scratch.SizeInTokens, size, st.scratch.SizeInUSD)
	}
	return err
}

// applyImpactAndPrice prices the closing skew change, settles the impact
// amount against the position impact pool and derives the execution price.
// Positive impact beyond the pool (or the liquidation cap) becomes the
// price impact diff, owed to the user as claimable collateral.
func (d *Decrease) applyImpactAndPrice(st *decreaseState, report *DecreaseReport) (fixed.I128, error) {
	cfg := st.target.Config()
	longOI, shortOI, err := market.OpenInterestValues(st.target)
	if err != nil {
		return fixed.I128{}, err
	}
	var deltaLong, deltaShort fixed.I128
	if d.params.IsLong {
		deltaLong = fixed.NewI128(true, st.sizeDeltaUSD)
	} else {
		deltaShort = fixed.NewI128(true, st.sizeDeltaUSD)
	}
	impact, err := market.PriceImpact(longOI, shortOI, deltaLong, deltaShort, cfg.PositionImpact)
	if err != nil {
		return fixed.I128{}, err
	}
	report.PriceImpactValue = impact

	diffUSD := fixed.Zero
	executed := impact
	var executedAmount fixed.I128
	if impact.Sign() > 0 {
		if d.params.IsLiquidation && !cfg.MaxPositionImpactFactorForLiquidations.IsZero() {
			maxImpact, err := fixed.ApplyFactor(st.sizeDeltaUSD, cfg.MaxPositionImpactFactorForLiquidations)
			if err != nil {
				return fixed.I128{}, err
			}
			if executed.Mag.Cmp(maxImpact) > 0 {
				diffUSD, _ = fixed.Sub(executed.Mag, maxImpact)
				executed = fixed.NewI128(false, maxImpact)
			}
		}
		amount, err := market.ImpactAmount(executed, st.prices.IndexTokenPrice.Max)
		if err != nil {
			return fixed.I128{}, err
		}
		impactPool, err := st.target.Pool(market.PoolPositionImpact)
		if err != nil {
			return fixed.I128{}, err
		}
		capped, residual, err := market.CapPositiveImpactAmount(amount, impactPool.Amount(true), st.prices.IndexTokenPrice.Max)
		if err != nil {
			return fixed.I128{}, err
		}
		diffUSD, err = fixed.Add(diffUSD, residual)
		if err != nil {
			return fixed.I128{}, err
		}
		executedAmount = capped
		value, err := market.TokenValue(capped.Mag, st.prices.IndexTokenPrice.Max)
		if err != nil {
			return fixed.I128{}, err
		}
		executed = fixed.NewI128(false, value)
	} else {
		executedAmount, err = market.ImpactAmount(impact, st.prices.IndexTokenPrice.Min)
		if err != nil {
			return fixed.I128{}, err
		}
	}
	report.PriceImpactAmount = executedAmount
	report.PriceImpactDiff = diffUSD

	impactPool, err := st.target.PoolMut(market.PoolPositionImpact)
	if err != nil {
		return fixed.I128{}, err
	}
	if err := impactPool.ApplyDelta(true, executedAmount.Negated()); err != nil {
		return fixed.I128{}, err
	}

	// Close price adjusted by the executed impact per token.
	closePrice := st.prices.IndexTokenPrice.Max
	if d.params.IsLong {
		closePrice = st.prices.IndexTokenPrice.Min
	}
	adjust := fixed.Zero
	if !executed.IsZero() {
		adjust, err = fixed.Div(executed.Mag, st.sizeDeltaInTokens)
		if err != nil {
			return fixed.I128{}, err
		}
	}
	signedAdjust := fixed.NewI128(executed.Neg, adjust)
	if !d.params.IsLong {
		signedAdjust = signedAdjust.Negated()
	}
	st.executionPrice, err = fixed.AddSigned(closePrice, signedAdjust)
	if err != nil {
		return fixed.I128{}, err
	}
	report.ExecutionPrice = st.executionPrice
	report.SizeDeltaInTokens = st.sizeDeltaInTokens

	if !d.params.AcceptablePrice.IsZero() && !d.params.IsLiquidation && !d.params.IsAdl {
		crossed := st.executionPrice.Cmp(d.params.AcceptablePrice) < 0
		if !d.params.IsLong {
			crossed = st.executionPrice.Cmp(d.params.AcceptablePrice) > 0
		}
		if crossed {
			return fixed.I128{}, fmt.Errorf("execution price %v vs acceptable %v: %w",
				st.executionPrice, d.params.AcceptablePrice, market.ErrAcceptablePriceExceeded)
		}
	}
	return impact, nil
}

// settlePnl realizes the closed slice's PnL at the execution price and caps
// a profit by the trader pnl-factor ceiling.
func (d *Decrease) settlePnl(st *decreaseState, report *DecreaseReport) error {
	value, err := market.TokenValue(st.sizeDeltaInTokens, st.executionPrice)
	if err != nil {
		return err
	}
	diff, valueGE := fixed.DiffAbs(value, st.sizeDeltaUSD)
	var pnl fixed.I128
	if d.params.IsLong {
		pnl = fixed.NewI128(!valueGE, diff)
	} else {
		pnl = fixed.NewI128(valueGE, diff)
	}
	report.Pnl.Uncapped = pnl

	if pnl.Sign() > 0 {
		totalPnl, err := market.Pnl(st.target, st.prices, d.params.IsLong, true)
		if err != nil {
			return err
		}
		poolValue, err := market.PoolValueForSide(st.target, st.prices, st.pnlIsLong, false)
		if err != nil {
			return err
		}
		maxPnl, err := fixed.ApplyFactor(poolValue, st.target.Config().MaxPnlFactorForTrader.Get(d.params.IsLong))
		if err != nil {
			return err
		}
		if totalPnl.Sign() > 0 && totalPnl.Mag.Cmp(maxPnl) > 0 {
			capped, err := fixed.MulDiv(pnl.Mag, maxPnl, totalPnl.Mag)
			if err != nil {
				return err
			}
			pnl = fixed.NewI128(false, capped)
		}
	}
	report.Pnl.Final = pnl
	return nil
}

// processCollateral applies the withdrawal, the realized PnL and every fee
// against the position's collateral and the pool.
func (d *Decrease) processCollateral(st *decreaseState, report *DecreaseReport, settled settledFees, positiveImpact bool) error {
	cfg := st.target.Config()
	collPrice := st.prices.CollateralPrice(st.collIsLong)
	canBeInsolvent := d.params.IsLiquidation || d.params.AllowInsolventClose

	if d.params.CollateralWithdrawalAmount > 0 && !d.params.IsLiquidation {
		w := fixed.Min(fixed.FromU64(d.params.CollateralWithdrawalAmount), st.collateral)
		st.collateral, _ = fixed.Sub(st.collateral, w)
		var err error
		st.output, err = fixed.Add(st.output, w)
		if err != nil {
			return err
		}
	}

	pnl := report.Pnl.Final
	if pnl.Sign() > 0 {
		tokens, err := market.TokenAmount(pnl.Mag, st.prices.CollateralPrice(st.pnlIsLong).Max)
		if err != nil {
			return err
		}
		primary, err := st.target.PoolMut(market.PoolPrimary)
		if err != nil {
			return err
		}
		if err := primary.ApplyDelta(st.pnlIsLong, fixed.NewI128(true, tokens)); err != nil {
			return fmt.Errorf("profit %v exceeds pool: %w", tokens, market.ErrInsufficientReserve)
		}
		meta := st.target.Meta()
		if meta.PnlToken(d.params.IsLong) == d.params.CollateralToken {
			st.output, err = fixed.Add(st.output, tokens)
		} else {
			st.secondary, err = fixed.Add(st.secondary, tokens)
		}
		if err != nil {
			return err
		}
	}

	// Deductions drain collateral first, then staged output. Shortfalls are
	// tolerated only on liquidation or an explicit insolvent close.
	deduct := func(amount fixed.U128) (fixed.U128, error) {
		paid := fixed.Min(amount, st.collateral)
		st.collateral, _ = fixed.Sub(st.collateral, paid)
		if paid.Cmp(amount) < 0 {
			remaining, _ := fixed.Sub(amount, paid)
			fromOutput := fixed.Min(remaining, st.output)
			st.output, _ = fixed.Sub(st.output, fromOutput)
			paid, _ = fixed.Add(paid, fromOutput)
		}
		if paid.Cmp(amount) < 0 && !canBeInsolvent {
			return paid, fmt.Errorf("costs exceed collateral: %w", market.ErrInsufficientCollateral)
		}
		return paid, nil
	}

	if pnl.Sign() < 0 {
		lossTokens, err := market.TokenAmountCeil(pnl.Mag, collPrice.Min)
		if err != nil {
			return err
		}
		paid, err := deduct(lossTokens)
		if err != nil {
			return err
		}
		primary, err := st.target.PoolMut(market.PoolPrimary)
		if err != nil {
			return err
		}
		if err := primary.ApplyDelta(st.collIsLong, fixed.NewI128(false, paid)); err != nil {
			return err
		}
	}

	var poolShare, receiverShare fixed.U128
	if d.params.IsLiquidation {
		liqFees, err := market.ApplyLiquidationFee(cfg, st.sizeDeltaUSD, collPrice.Min)
		if err != nil {
			return err
		}
		total, err := liqFees.Total()
		if err != nil {
			return err
		}
		report.Fees.LiquidationFeeAmount = total
		poolShare, receiverShare = liqFees.PoolFeeAmount, liqFees.ReceiverFeeAmount
	} else {
		orderFees, err := market.ApplyOrderFee(cfg.OrderFee, st.sizeDeltaUSD, collPrice.Min, positiveImpact)
		if err != nil {
			return err
		}
		report.Fees.PoolFeeAmount = orderFees.PoolFeeAmount
		report.Fees.ReceiverFeeAmount = orderFees.ReceiverFeeAmount
		poolShare, receiverShare = orderFees.PoolFeeAmount, orderFees.ReceiverFeeAmount
	}

	// Borrowing, then funding, then the order or liquidation fee; pools are
	// credited with what was actually paid.
	poolBound, err := fixed.Add(settled.Borrowing, poolShare)
	if err != nil {
		return err
	}
	paidPool, err := deduct(poolBound)
	if err != nil {
		return err
	}
	if _, err := deduct(settled.Funding); err != nil {
		return err
	}
	paidReceiver, err := deduct(receiverShare)
	if err != nil {
		return err
	}
	return creditOrderFees(st.target, st.collIsLong, paidPool, fixed.Zero, paidReceiver)
}

// updatePosition writes the size and collateral changes back to the scratch
// position and mirrors them on the open-interest and collateral-sum pools.
func (d *Decrease) updatePosition(st *decreaseState, report *DecreaseReport) error {
	var err error
	if !st.sizeDeltaUSD.IsZero() {
		if err := applyPositionSizeDeltas(st.target, d.params.IsLong, st.collIsLong,
			fixed.NewI128(true, st.sizeDeltaUSD),
			fixed.NewI128(true, st.sizeDeltaInTokens)); err != nil {
			return err
		}
		st.scratch.SizeInUSD, err = fixed.Sub(st.scratch.SizeInUSD, st.sizeDeltaUSD)
		if err != nil {
			return err
		}
		st.scratch.SizeInTokens, err = fixed.Sub(st.scratch.SizeInTokens, st.sizeDeltaInTokens)
		if err != nil {
			return err
		}
	}

	report.ShouldRemovePosition = st.scratch.SizeInUSD.IsZero()
	if report.ShouldRemovePosition && !st.collateral.IsZero() {
		if d.params.IsLiquidation {
			// A liquidated position's residual collateral is escrowed for
			// the holding account rather than paid out.
			residual, err := st.collateral.U64()
			if err != nil {
				return err
			}
			if st.collIsLong {
				report.TransferOut.ClaimableForHoldingLong = residual
			} else {
				report.TransferOut.ClaimableForHoldingShort = residual
			}
		} else {
			st.output, err = fixed.Add(st.output, st.collateral)
			if err != nil {
				return err
			}
		}
		st.collateral = fixed.Zero
	}

	// Mirror the net collateral change on the collateral-sum pool.
	oldAmount := st.scratch.CollateralAmount
	newAmount := st.collateral
	diff, newGE := fixed.DiffAbs(newAmount, oldAmount)
	if !diff.IsZero() {
		sum, err := st.target.PoolMut(collateralSumKind(d.params.IsLong))
		if err != nil {
			return err
		}
		if err := sum.ApplyDelta(st.collIsLong, fixed.NewI128(!newGE, diff)); err != nil {
			return err
		}
	}
	st.scratch.CollateralAmount = newAmount
	st.scratch.UpdatedAt = d.now

	if report.ShouldRemovePosition {
		st.scratch.ClearSnapshots()
		return st.scratch.Transition(position.StateRemoved)
	}
	return st.scratch.Transition(position.StateOpen)
}

// decreaseSwap folds the secondary (PnL-token) output into the collateral
// token or the other way round, reusing the single-hop swap primitive on the
// same overlay and price snapshot.
func (d *Decrease) decreaseSwap(st *decreaseState, report *DecreaseReport) error {
	if d.params.SwapType == DecreaseSwapNone {
		return nil
	}
	meta := st.target.Meta()
	if meta.IsPure() || meta.PnlToken(d.params.IsLong) == d.params.CollateralToken {
		return nil
	}

	// A failed merge swap must not poison the overlay; the pools it touched
	// are restored and the outputs stay unmerged.
	saved := st.target.pools

	switch d.params.SwapType {
	case DecreaseSwapPnlTokenToCollateralToken:
		if st.secondary.IsZero() {
			return nil
		}
		rep, err := swapExactIn(st.target, st.prices, st.pnlIsLong, st.secondary)
		if err != nil {
			st.target.pools = saved
			report.SwapFailure = fmt.Errorf("pnl token swap: %v: %w", err, market.ErrSecondaryTokensNotMerged)
			return nil
		}
		report.SwapReport = &rep
		var addErr error
		st.output, addErr = fixed.Add(st.output, rep.AmountOut)
		if addErr != nil {
			return addErr
		}
		st.secondary = fixed.Zero

	case DecreaseSwapCollateralTokenToPnlToken:
		if st.output.IsZero() {
			return nil
		}
		rep, err := swapExactIn(st.target, st.prices, st.collIsLong, st.output)
		if err != nil {
			st.target.pools = saved
			report.SwapFailure = fmt.Errorf("collateral token swap: %v: %w", err, market.ErrSecondaryTokensNotMerged)
			return nil
		}
		report.SwapReport = &rep
		merged, err := fixed.Add(st.secondary, rep.AmountOut)
		if err != nil {
			return err
		}
		st.output = merged
		st.secondary = fixed.Zero
		st.outputIsLong = st.pnlIsLong

	default:
		return fmt.Errorf("decrease swap type %d: %w", d.params.SwapType, market.ErrInvalidFeature)
	}
	return nil
}

// validateAfter runs the post-conditions the surviving state must satisfy.
func (d *Decrease) validateAfter(st *decreaseState) error {
	cfg := st.target.Config()
	if !st.scratch.SizeInUSD.IsZero() {
		if err := st.scratch.Validate(); err != nil {
			return err
		}
		if err := validateRemainingPosition(st.target, st.prices, &st.scratch, st.collIsLong); err != nil {
			return err
		}
	}
	if err := market.ValidateReserve(st.target, st.prices, st.pnlIsLong); err != nil {
		return err
	}

	switch {
	case d.params.IsLiquidation:
		// Liquidations may run while the market pnl factor is breached.
	case d.params.IsAdl:
		min := cfg.MinPnlFactorAfterAdl.Get(d.params.IsLong)
		if !min.IsZero() {
			factor, err := market.PnlFactor(st.target, st.prices, d.params.IsLong, true)
			if err != nil {
				return err
			}
			if factor.Sign() < 0 || factor.Mag.Cmp(min) < 0 {
				return market.ErrMinPnlFactorAfterAdl
			}
		}
	default:
		if err := market.ValidateMaxPnlFactor(st.target, st.prices, d.params.IsLong,
			cfg.MaxPnlFactorForTrader.Get(d.params.IsLong), market.ErrPnlFactorExceededForTrader); err != nil {
			return err
		}
	}
	return nil
}

// payOut records the transfers leaving the market and the claimable amounts
// staying escrowed in the vault.
func (d *Decrease) payOut(st *decreaseState, report *DecreaseReport) error {
	report.OutputAmount = st.output
	report.SecondaryOutputAmount = st.secondary
	report.IsOutputTokenLong = st.outputIsLong
	report.IsSecondaryOutputTokenLong = st.pnlIsLong

	if !report.PriceImpactDiff.IsZero() {
		diffTokens, err := market.TokenAmount(report.PriceImpactDiff,
			st.prices.CollateralPrice(st.collIsLong).Min)
		if err != nil {
			return err
		}
		diff64, err := diffTokens.U64()
		if err != nil {
			return err
		}
		report.Fees.PositiveImpactRebate = diffTokens
		if st.collIsLong {
			report.TransferOut.ClaimableForUserLong = diff64
		} else {
			report.TransferOut.ClaimableForUserShort = diff64
		}
	}

	if !st.output.IsZero() {
		out64, err := st.output.U64()
		if err != nil {
			return err
		}
		if err := st.target.RecordTransferredOut(st.outputIsLong, out64); err != nil {
			return err
		}
		report.TransferOut.FinalOutput = out64
	}
	if !st.secondary.IsZero() {
		sec64, err := st.secondary.U64()
		if err != nil {
			return err
		}
		if err := st.target.RecordTransferredOut(st.pnlIsLong, sec64); err != nil {
			return err
		}
		report.TransferOut.SecondaryOutput = sec64
	}
	return st.target.ValidateBalances(fixed.Zero, fixed.Zero)
}
