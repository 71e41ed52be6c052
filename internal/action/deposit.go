package action

import (
	"fmt"

	"github.com/google/uuid"

	"PerpCore/internal/fixed"
	"PerpCore/internal/market"
	"PerpCore/internal/oracle"
)

// DepositParams is the input contract of a deposit.
type DepositParams struct {
	MarketToken market.Token

	// Initial tokens may differ from the market's collateral pair when a
	// swap path converts them; an empty token means the market's own.
	InitialLongToken  market.Token
	InitialShortToken market.Token

	InitialLongAmount  uint64
	InitialShortAmount uint64
	MinMarketToken     uint64

	// Swap paths must terminate in the target market's long and short token.
	LongSwapPath  []market.Token
	ShortSwapPath []market.Token

	Owner         uuid.UUID
	OwnerIsKeeper bool
}

// Deposit mints liquidity tokens against a two-sided (or pure) contribution.
// Execute consumes the builder.
type Deposit struct {
	markets *SwapMarkets
	prices  oracle.Provider
	params  DepositParams
	now     int64
	done    bool
}

// NewDeposit builds a deposit over the given overlays; the target market
// must be among them.
func NewDeposit(markets *SwapMarkets, prices oracle.Provider, params DepositParams, now int64) (*Deposit, error) {
	if params.InitialLongAmount == 0 && params.InitialShortAmount == 0 {
		return nil, market.ErrEmptyDeposit
	}
	return &Deposit{markets: markets, prices: prices, params: params, now: now}, nil
}

// Execute runs the deposit and commits every traversed overlay.
func (d *Deposit) Execute() (*DepositReport, error) {
	if d.done {
		return nil, ErrAlreadyCommitted
	}
	d.done = true

	target, err := d.markets.Get(d.params.MarketToken)
	if err != nil {
		return nil, err
	}
	prices, err := oracle.MarketPrices(d.prices, target.Meta())
	if err != nil {
		return nil, err
	}

	// Pending position impact belongs to existing holders; distribute
	// before valuing the pool.
	if _, err := market.DistributePositionImpact(target, d.now); err != nil {
		return nil, err
	}

	longAmount, longSwaps, err := d.sideAmount(target, true)
	if err != nil {
		return nil, err
	}
	shortAmount, shortSwaps, err := d.sideAmount(target, false)
	if err != nil {
		return nil, err
	}

	report, err := executeDepositAmounts(target, prices, longAmount, shortAmount,
		fixed.FromU64(d.params.MinMarketToken), true, d.params.OwnerIsKeeper)
	if err != nil {
		return nil, err
	}
	report.LongSwapReports = longSwaps
	report.ShortSwapReports = shortSwaps

	if err := d.markets.Commit(); err != nil {
		return nil, err
	}
	report.Nonce = target.Base().NextDepositNonce()
	return report, nil
}

// executeDepositAmounts runs the deposit core on amounts already resolved
// into the target market's own tokens. The shift contract passes
// chargeFees=false.
func executeDepositAmounts(target *RevertibleMarket, prices market.Prices, longAmount, shortAmount, minMinted fixed.U128, chargeFees, ownerIsKeeper bool) (*DepositReport, error) {
	if longAmount.IsZero() && shortAmount.IsZero() {
		return nil, market.ErrEmptyDeposit
	}
	meta := target.Meta()
	cfg := target.Config()

	report := &DepositReport{
		MarketToken:      meta.MarketToken,
		LongTokenAmount:  longAmount,
		ShortTokenAmount: shortAmount,
	}

	// First-deposit authorization gate.
	if target.Supply().IsZero() && cfg.MinTokensForFirstDeposit > 0 && !ownerIsKeeper {
		return nil, market.ErrInvalidOwnerForFirstDeposit
	}

	// Price impact over the combined contribution.
	longValue, shortValue, err := market.SwapImpactValues(target, prices)
	if err != nil {
		return nil, err
	}
	deltaLongValue, err := market.TokenValue(longAmount, prices.LongTokenPrice.Mid())
	if err != nil {
		return nil, err
	}
	deltaShortValue, err := market.TokenValue(shortAmount, prices.ShortTokenPrice.Mid())
	if err != nil {
		return nil, err
	}
	impact, err := market.PriceImpact(longValue, shortValue,
		fixed.NewI128(false, deltaLongValue), fixed.NewI128(false, deltaShortValue), cfg.SwapImpact)
	if err != nil {
		return nil, err
	}
	report.PriceImpactValue = impact

	positive := impact.Sign() > 0
	longCredit, usdLong, err := depositCreditSide(target, prices, true, longAmount, positive, chargeFees, report)
	if err != nil {
		return nil, err
	}
	shortCredit, usdShort, err := depositCreditSide(target, prices, false, shortAmount, positive, chargeFees, report)
	if err != nil {
		return nil, err
	}

	// The impact is settled in the long token when the long side
	// contributes, otherwise in the short token.
	impactIsLong := !longAmount.IsZero()
	impactAmount, err := applyDepositImpact(target, prices, impact, impactIsLong)
	if err != nil {
		return nil, err
	}
	report.PriceImpactAmount = impactAmount

	usd, err := fixed.Add(usdLong, usdShort)
	if err != nil {
		return nil, err
	}
	if !impactAmount.IsZero() {
		price := prices.CollateralPrice(impactIsLong).Min
		impactValue, err := market.TokenValue(impactAmount.Mag, price)
		if err != nil {
			return nil, err
		}
		usd, err = fixed.AddSigned(usd, fixed.NewI128(impactAmount.Neg, impactValue))
		if err != nil {
			return nil, err
		}
	}

	// Pool value and supply before crediting the contribution price the
	// minted tokens.
	poolValue, err := market.PoolValue(target, prices, true)
	if err != nil {
		return nil, err
	}
	supply := target.Supply()

	primary, err := target.PoolMut(market.PoolPrimary)
	if err != nil {
		return nil, err
	}
	if err := primary.ApplyDeltaLong(fixed.NewI128(false, longCredit)); err != nil {
		return nil, err
	}
	if err := primary.ApplyDeltaShort(fixed.NewI128(false, shortCredit)); err != nil {
		return nil, err
	}
	// Impact tokens move between the primary and swap-impact pools with the
	// contribution in place.
	if !impactAmount.IsZero() {
		if err := primary.ApplyDelta(impactIsLong, impactAmount); err != nil {
			return nil, fmt.Errorf("price impact exceeds deposit: %w", market.ErrInsufficientTokenAmount)
		}
	}

	minted, err := market.USDToMarketTokenAmount(usd, poolValue, supply)
	if err != nil {
		return nil, err
	}
	if minted.Cmp(minMinted) < 0 {
		return nil, fmt.Errorf("minted %v below minimum %v: %w", minted, minMinted, market.ErrInsufficientOutputAmount)
	}
	if supply.IsZero() {
		floor := fixed.FromU64(cfg.MinTokensForFirstDeposit)
		if minted.Cmp(floor) < 0 {
			return nil, fmt.Errorf("first deposit mints %v, need %v: %w", minted, floor, market.ErrInsufficientOutputAmount)
		}
	}
	report.MintedTokenAmount = minted

	for _, isLong := range []bool{true, false} {
		if err := market.ValidatePoolAmount(target, isLong); err != nil {
			return nil, err
		}
		if err := market.ValidatePoolValueForDeposit(target, prices, isLong); err != nil {
			return nil, err
		}
		if err := market.ValidateMaxPnlFactor(target, prices, isLong,
			cfg.MaxPnlFactorForDeposit.Get(isLong), market.ErrPnlFactorExceededForDeposit); err != nil {
			return nil, err
		}
	}
	if err := target.ValidateBalances(fixed.Zero, fixed.Zero); err != nil {
		return nil, err
	}
	if err := target.MintLiquidity(minted); err != nil {
		return nil, err
	}
	return report, nil
}

// sideAmount resolves one side's contribution into the target market's own
// token, running the swap path when one is given.
func (d *Deposit) sideAmount(target *RevertibleMarket, isLong bool) (fixed.U128, []SwapReport, error) {
	meta := target.Meta()
	amount := d.params.InitialLongAmount
	token := d.params.InitialLongToken
	path := d.params.LongSwapPath
	want := meta.LongToken
	if !isLong {
		amount = d.params.InitialShortAmount
		token = d.params.InitialShortToken
		path = d.params.ShortSwapPath
		want = meta.ShortToken
	}
	if amount == 0 {
		return fixed.Zero, nil, nil
	}
	if token == "" {
		token = want
	}

	if len(path) == 0 {
		if token != want {
			return fixed.Zero, nil, fmt.Errorf("initial token %s needs a swap path to %s: %w", token, want, market.ErrInvalidSwapPath)
		}
		if err := target.RecordTransferredIn(meta.IsLongToken(want), amount); err != nil {
			return fixed.Zero, nil, err
		}
		return fixed.FromU64(amount), nil, nil
	}

	first, err := d.markets.Get(path[0])
	if err != nil {
		return fixed.Zero, nil, err
	}
	firstMeta := first.Meta()
	if !firstMeta.HasCollateral(token) {
		return fixed.Zero, nil, fmt.Errorf("token %s not traded in %s: %w", token, firstMeta.MarketToken, market.ErrInvalidSwapPath)
	}
	if err := first.RecordTransferredIn(firstMeta.IsLongToken(token), amount); err != nil {
		return fixed.Zero, nil, err
	}

	reports, tokenOut, amountOut, err := swapAlongPath(d.markets, d.prices, path, token, fixed.FromU64(amount))
	if err != nil {
		return fixed.Zero, nil, err
	}
	if tokenOut != want {
		return fixed.Zero, nil, fmt.Errorf("swap path ends in %s, deposit needs %s: %w", tokenOut, want, market.ErrSameOutputTokenRequired)
	}

	// Move the output from the last path market into the target.
	last, err := d.markets.Get(path[len(path)-1])
	if err != nil {
		return fixed.Zero, nil, err
	}
	if last != target {
		out64, err := amountOut.U64()
		if err != nil {
			return fixed.Zero, nil, err
		}
		if err := last.RecordTransferredOut(last.Meta().IsLongToken(tokenOut), out64); err != nil {
			return fixed.Zero, nil, err
		}
		if err := last.ValidateBalances(fixed.Zero, fixed.Zero); err != nil {
			return fixed.Zero, nil, err
		}
		if err := target.RecordTransferredIn(meta.IsLongToken(tokenOut), out64); err != nil {
			return fixed.Zero, nil, err
		}
	}
	return amountOut, reports, nil
}

// depositCreditSide runs the fee split for one side and returns (primary
// pool credit, after-fee USD value).
func depositCreditSide(target *RevertibleMarket, prices market.Prices, isLong bool, amount fixed.U128, positiveImpact, chargeFees bool, report *DepositReport) (fixed.U128, fixed.U128, error) {
	if amount.IsZero() {
		return fixed.Zero, fixed.Zero, nil
	}
	if !chargeFees {
		usd, err := market.TokenValue(amount, prices.CollateralPrice(isLong).Min)
		if err != nil {
			return fixed.Zero, fixed.Zero, err
		}
		return amount, usd, nil
	}
	fees, err := market.ApplySwapFee(target.Config().SwapFee, amount, positiveImpact)
	if err != nil {
		return fixed.Zero, fixed.Zero, err
	}
	claimable, err := target.PoolMut(market.PoolClaimableFee)
	if err != nil {
		return fixed.Zero, fixed.Zero, err
	}
	if err := claimable.ApplyDelta(isLong, fixed.NewI128(false, fees.ReceiverFeeAmount)); err != nil {
		return fixed.Zero, fixed.Zero, err
	}
	report.Fees.PoolFeeAmount, err = fixed.Add(report.Fees.PoolFeeAmount, fees.PoolFeeAmount)
	if err != nil {
		return fixed.Zero, fixed.Zero, err
	}
	report.Fees.ReceiverFeeAmount, err = fixed.Add(report.Fees.ReceiverFeeAmount, fees.ReceiverFeeAmount)
	if err != nil {
		return fixed.Zero, fixed.Zero, err
	}

	credit, err := fixed.Add(fees.AmountAfterFees, fees.PoolFeeAmount)
	if err != nil {
		return fixed.Zero, fixed.Zero, err
	}
	usd, err := market.TokenValue(fees.AmountAfterFees, prices.CollateralPrice(isLong).Min)
	if err != nil {
		return fixed.Zero, fixed.Zero, err
	}
	return credit, usd, nil
}

// applyDepositImpact settles the deposit's price impact against the
// swap-impact pool in the chosen token.
func applyDepositImpact(target *RevertibleMarket, prices market.Prices, impact fixed.I128, isLong bool) (fixed.I128, error) {
	if impact.IsZero() {
		return fixed.I128{}, nil
	}
	price := prices.CollateralPrice(isLong)
	swapImpact, err := target.PoolMut(market.PoolSwapImpact)
	if err != nil {
		return fixed.I128{}, err
	}
	if impact.Sign() > 0 {
		amount, err := market.ImpactAmount(impact, price.Max)
		if err != nil {
			return fixed.I128{}, err
		}
		capped, _, err := market.CapPositiveImpactAmount(amount, swapImpact.Amount(isLong), price.Max)
		if err != nil {
			return fixed.I128{}, err
		}
		if err := swapImpact.ApplyDelta(isLong, capped.Negated()); err != nil {
			return fixed.I128{}, err
		}
		return capped, nil
	}
	amount, err := market.ImpactAmount(impact, price.Min)
	if err != nil {
		return fixed.I128{}, err
	}
	if err := swapImpact.ApplyDelta(isLong, fixed.NewI128(false, amount.Mag)); err != nil {
		return fixed.I128{}, err
	}
	return amount, nil
}
