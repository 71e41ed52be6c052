package market

import "errors"

// Error taxonomy for the engine. Arithmetic errors come from internal/fixed;
// everything here is either a precondition, a resource limit, a state error,
// or a configuration error. Callers classify with errors.Is.
var (
	// Preconditions.
	ErrEmptyDeposit            = errors.New("market: empty deposit")
	ErrEmptyWithdrawal         = errors.New("market: empty withdrawal")
	ErrEmptyShift              = errors.New("market: empty shift")
	ErrEmptyOrder              = errors.New("market: empty order")
	ErrInvalidPoolValue        = errors.New("market: invalid pool value")
	ErrInvalidPrices           = errors.New("market: invalid prices")
	ErrInvalidSwapPath         = errors.New("market: invalid swap path")
	ErrSameOutputTokenRequired = errors.New("market: same output token required")
	ErrInvalidCollateralToken  = errors.New("market: invalid collateral token")
	ErrInvalidMarkets          = errors.New("market: invalid markets for shift")
	ErrInvalidOrderSize        = errors.New("market: order size exceeds position size")
	ErrMarketDisabled          = errors.New("market: market disabled")

	// Resource limits.
	ErrInsufficientReserve                = errors.New("market: insufficient reserve")
	ErrInsufficientReserveForOpenInterest = errors.New("market: insufficient reserve for open interest")
	ErrInsufficientCollateral             = errors.New("market: insufficient collateral")
	ErrInsufficientTokenAmount            = errors.New("market: insufficient token amount")
	ErrInsufficientOutputAmount           = errors.New("market: insufficient output amount")
	ErrPnlFactorExceededForDeposit        = errors.New("market: pnl factor exceeded for deposit")
	ErrPnlFactorExceededForWithdrawal     = errors.New("market: pnl factor exceeded for withdrawal")
	ErrPnlFactorExceededForTrader         = errors.New("market: pnl factor exceeded for trader")
	ErrPnlFactorExceededForAdl            = errors.New("market: pnl factor exceeded for adl")
	ErrPnlFactorNotExceededForAdl         = errors.New("market: pnl factor not exceeded, adl not allowed")
	ErrMinPnlFactorAfterAdl               = errors.New("market: pnl factor below minimum after adl")
	ErrPoolAmountExceeded                 = errors.New("market: max pool amount exceeded")
	ErrPoolValueExceededForDeposit        = errors.New("market: max pool value for deposit exceeded")
	ErrOpenInterestExceeded               = errors.New("market: max open interest exceeded")
	ErrMinPositionSize                    = errors.New("market: position size below minimum")
	ErrMinCollateral                      = errors.New("market: collateral below minimum")
	ErrAcceptablePriceExceeded            = errors.New("market: acceptable price exceeded")
	ErrOutputAmountBelowMin               = errors.New("market: output amount below minimum")
	ErrInvalidOwnerForFirstDeposit        = errors.New("market: invalid owner for first deposit")

	// State errors.
	ErrPositionNotFound         = errors.New("market: position not found")
	ErrPositionNotRemovable     = errors.New("market: position not removable")
	ErrOracleTimestampsTooSmall = errors.New("market: oracle timestamps are smaller than required")
	ErrOracleTimestampsTooLarge = errors.New("market: oracle timestamps are larger than required")
	ErrSecondaryTokensNotMerged = errors.New("market: secondary tokens not merged")

	// Configuration errors.
	ErrUnknownPoolKind  = errors.New("market: unknown pool kind")
	ErrUnknownClockKind = errors.New("market: unknown clock kind")
	ErrInvalidFeature   = errors.New("market: invalid feature")
)
