package action

import (
	"fmt"

	"PerpCore/internal/fixed"
	"PerpCore/internal/market"
	"PerpCore/internal/oracle"
)

// swapExactIn executes one hop on the overlay: fee split, swap price impact
// against the primary pool skew, and the primary pool delta. The returned
// report has no transfer-out record; the caller owns token movement.
func swapExactIn(r *RevertibleMarket, prices market.Prices, inIsLong bool, amountIn fixed.U128) (SwapReport, error) {
	if amountIn.IsZero() {
		return SwapReport{}, market.ErrEmptyOrder
	}
	meta := r.Meta()
	if meta.IsPure() {
		return SwapReport{}, fmt.Errorf("pure market cannot swap: %w", market.ErrInvalidSwapPath)
	}
	cfg := r.Config()
	priceIn := prices.CollateralPrice(inIsLong)
	priceOut := prices.CollateralPrice(!inIsLong)

	longValue, shortValue, err := market.SwapImpactValues(r, prices)
	if err != nil {
		return SwapReport{}, err
	}
	deltaValue, err := market.TokenValue(amountIn, priceIn.Mid())
	if err != nil {
		return SwapReport{}, err
	}
	deltaLong, deltaShort := fixed.NewI128(false, deltaValue), fixed.NewI128(true, deltaValue)
	if !inIsLong {
		deltaLong, deltaShort = deltaShort, deltaLong
	}
	impact, err := market.PriceImpact(longValue, shortValue, deltaLong, deltaShort, cfg.SwapImpact)
	if err != nil {
		return SwapReport{}, err
	}

	fees, err := market.ApplySwapFee(cfg.SwapFee, amountIn, impact.Sign() > 0)
	if err != nil {
		return SwapReport{}, err
	}
	claimable, err := r.PoolMut(market.PoolClaimableFee)
	if err != nil {
		return SwapReport{}, err
	}
	if err := claimable.ApplyDelta(inIsLong, fixed.NewI128(false, fees.ReceiverFeeAmount)); err != nil {
		return SwapReport{}, err
	}

	baseIn := fees.AmountAfterFees
	swapImpact, err := r.PoolMut(market.PoolSwapImpact)
	if err != nil {
		return SwapReport{}, err
	}

	var (
		impactAmount  fixed.I128
		impactDiff    fixed.U128
		positiveBonus fixed.U128
	)
	switch {
	case impact.Sign() > 0:
		// Paid out of the swap-impact pool in the output token, up to what
		// the pool holds.
		amount, err := market.ImpactAmount(impact, priceOut.Max)
		if err != nil {
			return SwapReport{}, err
		}
		impactAmount, impactDiff, err = market.CapPositiveImpactAmount(amount, swapImpact.Amount(!inIsLong), priceOut.Max)
		if err != nil {
			return SwapReport{}, err
		}
		if err := swapImpact.ApplyDelta(!inIsLong, impactAmount.Negated()); err != nil {
			return SwapReport{}, err
		}
		positiveBonus = impactAmount.Mag
	case impact.Sign() < 0:
		// Charged from the input amount and parked in the swap-impact pool.
		impactAmount, err = market.ImpactAmount(impact, priceIn.Min)
		if err != nil {
			return SwapReport{}, err
		}
		reduced, err := fixed.Sub(baseIn, impactAmount.Mag)
		if err != nil {
			return SwapReport{}, fmt.Errorf("price impact exceeds swap input: %w", market.ErrInsufficientTokenAmount)
		}
		baseIn = reduced
		if err := swapImpact.ApplyDelta(inIsLong, fixed.NewI128(false, impactAmount.Mag)); err != nil {
			return SwapReport{}, err
		}
	}

	outValue, err := market.TokenValue(baseIn, priceIn.Min)
	if err != nil {
		return SwapReport{}, err
	}
	baseOut, err := market.TokenAmount(outValue, priceOut.Max)
	if err != nil {
		return SwapReport{}, err
	}
	amountOut, err := fixed.Add(baseOut, positiveBonus)
	if err != nil {
		return SwapReport{}, err
	}

	primary, err := r.PoolMut(market.PoolPrimary)
	if err != nil {
		return SwapReport{}, err
	}
	credit, err := fixed.Add(baseIn, fees.PoolFeeAmount)
	if err != nil {
		return SwapReport{}, err
	}
	if err := primary.ApplyDelta(inIsLong, fixed.NewI128(false, credit)); err != nil {
		return SwapReport{}, err
	}
	if err := primary.ApplyDelta(!inIsLong, fixed.NewI128(true, baseOut)); err != nil {
		return SwapReport{}, fmt.Errorf("swap output drains pool: %w", market.ErrInsufficientTokenAmount)
	}

	for _, isLong := range []bool{true, false} {
		if err := market.ValidatePoolAmount(r, isLong); err != nil {
			return SwapReport{}, err
		}
	}
	if err := market.ValidateReserve(r, prices, !inIsLong); err != nil {
		return SwapReport{}, err
	}

	tokenIn, tokenOut := meta.LongToken, meta.ShortToken
	if !inIsLong {
		tokenIn, tokenOut = tokenOut, tokenIn
	}
	return SwapReport{
		MarketToken: meta.MarketToken,
		TokenIn:     tokenIn,
		TokenOut:    tokenOut,
		AmountIn:    amountIn,
		AmountOut:   amountOut,
		Fees: Fees{
			PoolFeeAmount:     fees.PoolFeeAmount,
			ReceiverFeeAmount: fees.ReceiverFeeAmount,
		},
		PriceImpactValue:  impact,
		PriceImpactAmount: impactAmount,
		PriceImpactDiff:   impactDiff,
	}, nil
}

// SwapParams is the input contract of a swap action.
type SwapParams struct {
	TokenIn         market.Token
	AmountIn        uint64
	MinOutputAmount uint64
	// Path is the ordered list of market tokens the amount threads through.
	Path []market.Token
}

// Swap is a single- or multi-hop swap builder. Execute consumes it.
type Swap struct {
	markets *SwapMarkets
	prices  oracle.Provider
	params  SwapParams
	done    bool
}

// NewSwap builds a swap over the given overlays.
func NewSwap(markets *SwapMarkets, prices oracle.Provider, params SwapParams) (*Swap, error) {
	if params.AmountIn == 0 {
		return nil, market.ErrEmptyOrder
	}
	if len(params.Path) == 0 {
		return nil, fmt.Errorf("empty swap path: %w", market.ErrInvalidSwapPath)
	}
	return &Swap{markets: markets, prices: prices, params: params}, nil
}

// Execute threads the input through the path and commits every traversed
// overlay. The final hop's output stays recorded in the last market; the
// report's transfer-out names it for the host to pay.
func (s *Swap) Execute() (*SwapReport, error) {
	if s.done {
		return nil, ErrAlreadyCommitted
	}
	s.done = true

	first, err := s.markets.Get(s.params.Path[0])
	if err != nil {
		return nil, err
	}
	firstMeta := first.Meta()
	if !firstMeta.HasCollateral(s.params.TokenIn) {
		return nil, fmt.Errorf("token %s not traded in %s: %w", s.params.TokenIn, firstMeta.MarketToken, market.ErrInvalidSwapPath)
	}
	if err := first.RecordTransferredIn(firstMeta.IsLongToken(s.params.TokenIn), s.params.AmountIn); err != nil {
		return nil, err
	}

	reports, tokenOut, amountOut, err := swapAlongPath(s.markets, s.prices, s.params.Path, s.params.TokenIn, fixed.FromU64(s.params.AmountIn))
	if err != nil {
		return nil, err
	}
	if amountOut.Cmp(fixed.FromU64(s.params.MinOutputAmount)) < 0 {
		return nil, fmt.Errorf("output %v below minimum %d: %w", amountOut, s.params.MinOutputAmount, market.ErrOutputAmountBelowMin)
	}

	// The last market pays the final output out.
	last, err := s.markets.Get(s.params.Path[len(s.params.Path)-1])
	if err != nil {
		return nil, err
	}
	out64, err := amountOut.U64()
	if err != nil {
		return nil, err
	}
	if err := last.RecordTransferredOut(last.Meta().IsLongToken(tokenOut), out64); err != nil {
		return nil, err
	}
	if err := last.ValidateBalances(fixed.Zero, fixed.Zero); err != nil {
		return nil, err
	}

	report := reports[len(reports)-1]
	report.AmountIn = fixed.FromU64(s.params.AmountIn)
	report.TokenIn = s.params.TokenIn
	report.TransferOut.FinalOutput = out64
	if err := s.markets.Commit(); err != nil {
		return nil, err
	}
	return &report, nil
}

// swapAlongPath threads an amount through an ordered list of markets.
// Transfers between adjacent overlays are recorded on each boundary; the
// first hop's input and the last hop's output are the caller's business.
func swapAlongPath(s *SwapMarkets, provider oracle.Provider, path []market.Token, tokenIn market.Token, amountIn fixed.U128) ([]SwapReport, market.Token, fixed.U128, error) {
	seen := make(map[market.Token]bool, len(path))
	reports := make([]SwapReport, 0, len(path))

	for i, marketToken := range path {
		if seen[marketToken] {
			return nil, "", fixed.Zero, fmt.Errorf("market %s repeated in path: %w", marketToken, market.ErrInvalidSwapPath)
		}
		seen[marketToken] = true

		r, err := s.Get(marketToken)
		if err != nil {
			return nil, "", fixed.Zero, err
		}
		meta := r.Meta()
		if !meta.HasCollateral(tokenIn) {
			return nil, "", fixed.Zero, fmt.Errorf("token %s not traded in %s: %w", tokenIn, marketToken, market.ErrInvalidSwapPath)
		}
		inIsLong := meta.IsLongToken(tokenIn)

		if i > 0 {
			in64, err := amountIn.U64()
			if err != nil {
				return nil, "", fixed.Zero, err
			}
			if err := r.RecordTransferredIn(inIsLong, in64); err != nil {
				return nil, "", fixed.Zero, err
			}
		}

		prices, err := oracle.MarketPrices(provider, meta)
		if err != nil {
			return nil, "", fixed.Zero, err
		}
		report, err := swapExactIn(r, prices, inIsLong, amountIn)
		if err != nil {
			return nil, "", fixed.Zero, err
		}
		reports = append(reports, report)

		tokenIn = report.TokenOut
		amountIn = report.AmountOut

		if i < len(path)-1 {
			out64, err := amountIn.U64()
			if err != nil {
				return nil, "", fixed.Zero, err
			}
			if err := r.RecordTransferredOut(!inIsLong, out64); err != nil {
				return nil, "", fixed.Zero, err
			}
			if err := r.ValidateBalances(fixed.Zero, fixed.Zero); err != nil {
				return nil, "", fixed.Zero, err
			}
		}
	}
	return reports, tokenIn, amountIn, nil
}
