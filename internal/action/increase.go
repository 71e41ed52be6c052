package action

import (
	"fmt"

	"PerpCore/internal/fixed"
	"PerpCore/internal/market"
	"PerpCore/internal/oracle"
	"PerpCore/internal/position"
)

// IncreaseParams is the input contract of an increase-position order.
type IncreaseParams struct {
	MarketToken     market.Token
	CollateralToken market.Token
	IsLong          bool

	CollateralDeltaAmount uint64
	SizeDeltaUSD          fixed.U128

	// AcceptablePrice bounds the execution price; zero disables the check.
	AcceptablePrice fixed.U128
}

// Increase opens or grows a position. Execute consumes the builder; the
// position is written back only after the overlay commits.
type Increase struct {
	markets *SwapMarkets
	prices  oracle.Provider
	pos     *position.Position
	params  IncreaseParams
	now     int64
	done    bool
}

// NewIncrease builds an increase over the given overlays.
func NewIncrease(markets *SwapMarkets, prices oracle.Provider, pos *position.Position, params IncreaseParams, now int64) (*Increase, error) {
	if params.SizeDeltaUSD.IsZero() && params.CollateralDeltaAmount == 0 {
		return nil, market.ErrEmptyOrder
	}
	if pos.Key.CollateralToken != params.CollateralToken || pos.Key.IsLong != params.IsLong ||
		pos.Key.MarketToken != params.MarketToken {
		return nil, fmt.Errorf("position key %s does not match order: %w", pos.Key, market.ErrInvalidCollateralToken)
	}
	return &Increase{markets: markets, prices: prices, pos: pos, params: params, now: now}, nil
}

// Execute runs the increase and commits the overlay.
func (i *Increase) Execute() (*IncreaseReport, error) {
	if i.done {
		return nil, ErrAlreadyCommitted
	}
	i.done = true

	target, err := i.markets.Get(i.params.MarketToken)
	if err != nil {
		return nil, err
	}
	meta := target.Meta()
	cfg := target.Config()
	if !meta.HasCollateral(i.params.CollateralToken) {
		return nil, fmt.Errorf("token %s not traded in %s: %w",
			i.params.CollateralToken, meta.MarketToken, market.ErrInvalidCollateralToken)
	}
	collIsLong := meta.IsLongToken(i.params.CollateralToken)
	prices, err := oracle.MarketPrices(i.prices, meta)
	if err != nil {
		return nil, err
	}

	// Accumulators advance before anything settles against them.
	if _, err := market.UpdateBorrowingState(target, prices, i.now); err != nil {
		return nil, err
	}
	if _, err := market.UpdateFundingState(target, prices, i.now); err != nil {
		return nil, err
	}

	if i.params.CollateralDeltaAmount > 0 {
		if err := target.RecordTransferredIn(collIsLong, i.params.CollateralDeltaAmount); err != nil {
			return nil, err
		}
	}

	scratch := *i.pos
	settled, err := settlePositionFees(target, &scratch, prices, collIsLong)
	if err != nil {
		return nil, err
	}

	report := &IncreaseReport{
		MarketToken:     meta.MarketToken,
		IsLong:          i.params.IsLong,
		SizeDeltaUSD:    i.params.SizeDeltaUSD,
		CollateralDelta: fixed.FromU64(i.params.CollateralDeltaAmount),
	}
	report.Fees.BorrowingFeeAmount = settled.Borrowing
	report.Fees.FundingFeeAmount = settled.Funding
	report.Fees.ClaimableFundingLong = settled.ClaimableLong
	report.Fees.ClaimableFundingShort = settled.ClaimableShort

	var (
		impact            fixed.I128
		impactAmount      fixed.I128
		sizeDeltaInTokens fixed.U128
		executionPrice    fixed.U128
	)
	if !i.params.SizeDeltaUSD.IsZero() {
		impact, impactAmount, err = i.positionImpact(target, prices)
		if err != nil {
			return nil, err
		}
		report.PriceImpactValue = impact
		report.PriceImpactAmount = impactAmount

		sizeDeltaInTokens, executionPrice, err = i.sizeDeltaInTokens(prices, impactAmount)
		if err != nil {
			return nil, err
		}
		report.SizeDeltaInTokens = sizeDeltaInTokens
		report.ExecutionPrice = executionPrice

		if !i.params.AcceptablePrice.IsZero() {
			crossed := executionPrice.Cmp(i.params.AcceptablePrice) > 0
			if !i.params.IsLong {
				crossed = executionPrice.Cmp(i.params.AcceptablePrice) < 0
			}
			if crossed {
				return nil, fmt.Errorf("execution price %v vs acceptable %v: %w",
					executionPrice, i.params.AcceptablePrice, market.ErrAcceptablePriceExceeded)
			}
		}

		// The executed impact comes out of (or goes into) the position
		// impact pool, held in index tokens.
		impactPool, err := target.PoolMut(market.PoolPositionImpact)
		if err != nil {
			return nil, err
		}
		if err := impactPool.ApplyDelta(true, impactAmount.Negated()); err != nil {
			return nil, err
		}
	}

	collPrice := prices.CollateralPrice(collIsLong)
	orderFees, err := market.ApplyOrderFee(cfg.OrderFee, i.params.SizeDeltaUSD, collPrice.Min, impact.Sign() > 0)
	if err != nil {
		return nil, err
	}
	report.Fees.PoolFeeAmount = orderFees.PoolFeeAmount
	report.Fees.ReceiverFeeAmount = orderFees.ReceiverFeeAmount

	// Charge everything from collateral in one pass.
	charge, err := settled.Total()
	if err != nil {
		return nil, err
	}
	orderTotal, err := orderFees.Total()
	if err != nil {
		return nil, err
	}
	charge, err = fixed.Add(charge, orderTotal)
	if err != nil {
		return nil, err
	}
	collateral, err := fixed.Add(scratch.CollateralAmount, fixed.FromU64(i.params.CollateralDeltaAmount))
	if err != nil {
		return nil, err
	}
	collateral, err = fixed.Sub(collateral, charge)
	if err != nil {
		return nil, fmt.Errorf("fees %v exceed collateral: %w", charge, market.ErrInsufficientCollateral)
	}

	// Pool and receiver fee shares, plus the borrowing fee, are pool
	// revenue; funding stays in the vault backing the other side's claims.
	if err := creditOrderFees(target, collIsLong, orderFees.PoolFeeAmount, settled.Borrowing, orderFees.ReceiverFeeAmount); err != nil {
		return nil, err
	}

	collateralSum, err := target.PoolMut(collateralSumKind(i.params.IsLong))
	if err != nil {
		return nil, err
	}
	net := fixed.NewI128(false, fixed.FromU64(i.params.CollateralDeltaAmount))
	net, err = fixed.AddI(net, fixed.NewI128(true, charge))
	if err != nil {
		return nil, err
	}
	if err := collateralSum.ApplyDelta(collIsLong, net); err != nil {
		return nil, err
	}

	if !i.params.SizeDeltaUSD.IsZero() {
		if err := applyPositionSizeDeltas(target, i.params.IsLong, collIsLong,
			fixed.NewI128(false, i.params.SizeDeltaUSD),
			fixed.NewI128(false, sizeDeltaInTokens)); err != nil {
			return nil, err
		}
	}

	scratch.SizeInUSD, err = fixed.Add(scratch.SizeInUSD, i.params.SizeDeltaUSD)
	if err != nil {
		return nil, err
	}
	scratch.SizeInTokens, err = fixed.Add(scratch.SizeInTokens, sizeDeltaInTokens)
	if err != nil {
		return nil, err
	}
	scratch.CollateralAmount = collateral
	scratch.IncreasedAt = i.now
	scratch.UpdatedAt = i.now
	if err := scratch.Transition(position.StateOpen); err != nil {
		return nil, err
	}
	if err := scratch.Validate(); err != nil {
		return nil, err
	}

	if !i.params.SizeDeltaUSD.IsZero() {
		if err := market.ValidateReserve(target, prices, i.params.IsLong); err != nil {
			return nil, err
		}
		if err := market.ValidateOpenInterestReserve(target, prices, i.params.IsLong); err != nil {
			return nil, err
		}
		if err := market.ValidateOpenInterestCap(target, i.params.IsLong); err != nil {
			return nil, err
		}
	}
	if err := validateRemainingPosition(target, prices, &scratch, collIsLong); err != nil {
		return nil, err
	}
	if err := target.ValidateBalances(fixed.Zero, fixed.Zero); err != nil {
		return nil, err
	}

	if err := i.markets.Commit(); err != nil {
		return nil, err
	}
	*i.pos = scratch
	report.Nonce = target.Base().NextOrderNonce()
	return report, nil
}

// positionImpact prices the order's skew change and converts it to index
// tokens; positive impact is capped by the position impact pool.
func (i *Increase) positionImpact(target *RevertibleMarket, prices market.Prices) (fixed.I128, fixed.I128, error) {
	longOI, shortOI, err := market.OpenInterestValues(target)
	if err != nil {
		return fixed.I128{}, fixed.I128{}, err
	}
	var deltaLong, deltaShort fixed.I128
	if i.params.IsLong {
		deltaLong = fixed.NewI128(false, i.params.SizeDeltaUSD)
	} else {
		deltaShort = fixed.NewI128(false, i.params.SizeDeltaUSD)
	}
	impact, err := market.PriceImpact(longOI, shortOI, deltaLong, deltaShort, target.Config().PositionImpact)
	if err != nil {
		return fixed.I128{}, fixed.I128{}, err
	}

	if impact.Sign() > 0 {
		amount, err := market.ImpactAmount(impact, prices.IndexTokenPrice.Max)
		if err != nil {
			return fixed.I128{}, fixed.I128{}, err
		}
		impactPool, err := target.Pool(market.PoolPositionImpact)
		if err != nil {
			return fixed.I128{}, fixed.I128{}, err
		}
		capped, _, err := market.CapPositiveImpactAmount(amount, impactPool.Amount(true), prices.IndexTokenPrice.Max)
		if err != nil {
			return fixed.I128{}, fixed.I128{}, err
		}
		return impact, capped, nil
	}
	amount, err := market.ImpactAmount(impact, prices.IndexTokenPrice.Min)
	if err != nil {
		return fixed.I128{}, fixed.I128{}, err
	}
	return impact, amount, nil
}

// sizeDeltaInTokens converts the USD size delta at the index price, rounded
// against the trader, then folds in the impact amount. The execution price
// is whatever price the resulting token delta implies.
func (i *Increase) sizeDeltaInTokens(prices market.Prices, impactAmount fixed.I128) (fixed.U128, fixed.U128, error) {
	var base fixed.U128
	var err error
	if i.params.IsLong {
		base, err = market.TokenAmount(i.params.SizeDeltaUSD, prices.IndexTokenPrice.Max)
	} else {
		base, err = market.TokenAmountCeil(i.params.SizeDeltaUSD, prices.IndexTokenPrice.Min)
	}
	if err != nil {
		return fixed.Zero, fixed.Zero, err
	}

	adjust := impactAmount
	if !i.params.IsLong {
		adjust = adjust.Negated()
	}
	tokens, err := fixed.AddSigned(base, adjust)
	if err != nil {
		return fixed.Zero, fixed.Zero, fmt.Errorf("price impact consumes size delta: %w", market.ErrInsufficientTokenAmount)
	}
	if tokens.IsZero() {
		return fixed.Zero, fixed.Zero, fmt.Errorf("zero size delta in tokens: %w", market.ErrEmptyOrder)
	}

	var price fixed.U128
	if i.params.IsLong {
		price, err = fixed.DivCeil(i.params.SizeDeltaUSD, tokens)
	} else {
		price, err = fixed.Div(i.params.SizeDeltaUSD, tokens)
	}
	if err != nil {
		return fixed.Zero, fixed.Zero, err
	}
	return tokens, price, nil
}

// creditOrderFees routes the pool-bound fee shares into the primary pool and
// the receiver share into the claimable-fee pool, all in the collateral token.
func creditOrderFees(target *RevertibleMarket, collIsLong bool, poolFee, borrowingFee, receiverFee fixed.U128) error {
	poolCredit, err := fixed.Add(poolFee, borrowingFee)
	if err != nil {
		return err
	}
	if !poolCredit.IsZero() {
		primary, err := target.PoolMut(market.PoolPrimary)
		if err != nil {
			return err
		}
		if err := primary.ApplyDelta(collIsLong, fixed.NewI128(false, poolCredit)); err != nil {
			return err
		}
	}
	if !receiverFee.IsZero() {
		claimable, err := target.PoolMut(market.PoolClaimableFee)
		if err != nil {
			return err
		}
		if err := claimable.ApplyDelta(collIsLong, fixed.NewI128(false, receiverFee)); err != nil {
			return err
		}
	}
	return nil
}
