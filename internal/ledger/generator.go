package ledger

import (
	"fmt"

	"github.com/google/uuid"

	"PerpCore/internal/action"
	"PerpCore/internal/event"
	"PerpCore/internal/fixed"
	"PerpCore/internal/market"
)

// JournalGenerator turns action reports into balanced journal batches. It
// records the token flows crossing the engine boundary (transfers in and
// out, liquidity token mint and burn) plus the in-vault reclassifications
// an action pins down (receiver fees, holding escrow, claimable funding).
// Flows between sibling vaults inside a multi-hop swap stay internal; the
// per-market balances carry them.
type JournalGenerator struct {
	assets  *AssetRegistry
	tracker *BalanceTracker
}

func NewJournalGenerator(assets *AssetRegistry, tracker *BalanceTracker) *JournalGenerator {
	return &JournalGenerator{
		assets:  assets,
		tracker: tracker,
	}
}

// batchBuilder accumulates entries for one event. Zero amounts are skipped
// so reports with unused transfer fields do not produce noise entries.
type batchBuilder struct {
	gen   *JournalGenerator
	batch *Batch
	err   error
}

func (jg *JournalGenerator) begin(eventRef string, sequence, timestamp int64) *batchBuilder {
	batchID := uuid.New()
	return &batchBuilder{
		gen: jg,
		batch: &Batch{
			BatchID:   batchID,
			EventRef:  eventRef,
			Sequence:  sequence,
			Timestamp: timestamp,
		},
	}
}

func (b *batchBuilder) add(debit, credit AccountKey, asset AssetID, amount uint64, jt JournalType) {
	if b.err != nil || amount == 0 {
		return
	}
	if amount > uint64(1<<63-1) {
		b.err = fmt.Errorf("journal amount %d overflows int64", amount)
		return
	}
	b.batch.Journals = append(b.batch.Journals, Journal{
		JournalID:     uuid.New(),
		BatchID:       b.batch.BatchID,
		EventRef:      b.batch.EventRef,
		Sequence:      b.batch.Sequence,
		DebitAccount:  debit,
		CreditAccount: credit,
		AssetID:       asset,
		Amount:        int64(amount),
		JournalType:   jt,
		Timestamp:     b.batch.Timestamp,
	})
}

func (b *batchBuilder) addU128(debit, credit AccountKey, asset AssetID, amount fixed.U128, jt JournalType) {
	if b.err != nil {
		return
	}
	v, err := amount.U64()
	if err != nil {
		b.err = err
		return
	}
	b.add(debit, credit, asset, v, jt)
}

func (b *batchBuilder) finish() (*Batch, error) {
	if b.err != nil {
		return nil, b.err
	}
	if len(b.batch.Journals) == 0 {
		// Nothing moved; the event still produces an envelope, just no batch.
		return nil, nil
	}
	if err := b.batch.Validate(); err != nil {
		return nil, err
	}
	return b.batch, nil
}

// ForDeposit journals the paid-in tokens and the liquidity token mint.
func (jg *JournalGenerator) ForDeposit(evt *event.DepositRequested, meta market.MarketMeta, report *action.DepositReport, sequence int64) (*Batch, error) {
	b := jg.begin(evt.IdempotencyKey(), sequence, evt.Timestamp)

	longToken := evt.Params.InitialLongToken
	if longToken == "" {
		longToken = meta.LongToken
	}
	shortToken := evt.Params.InitialShortToken
	if shortToken == "" {
		shortToken = meta.ShortToken
	}

	longAsset := jg.assets.GetOrRegister(longToken)
	shortAsset := jg.assets.GetOrRegister(shortToken)
	marketAsset := jg.assets.GetOrRegister(meta.MarketToken)

	vaultLong := NewMarketAccountKey(meta.MarketToken, SubTypeVault, longAsset)
	vaultShort := NewMarketAccountKey(meta.MarketToken, SubTypeVault, shortAsset)

	b.add(vaultLong, NewExternalAccountKey(SubTypeExternalIn, longAsset), longAsset, evt.Params.InitialLongAmount, JournalTypeTransferIn)
	b.add(vaultShort, NewExternalAccountKey(SubTypeExternalIn, shortAsset), shortAsset, evt.Params.InitialShortAmount, JournalTypeTransferIn)

	b.addU128(
		NewUserAccountKey(evt.Params.Owner, SubTypeLiquidity, marketAsset),
		NewMarketAccountKey(meta.MarketToken, SubTypeLiquiditySupply, marketAsset),
		marketAsset, report.MintedTokenAmount, JournalTypeLiquidityMint)

	return b.finish()
}

// ForWithdrawal journals the liquidity token burn and the paid-out tokens.
func (jg *JournalGenerator) ForWithdrawal(evt *event.WithdrawalRequested, meta market.MarketMeta, report *action.WithdrawalReport, sequence int64) (*Batch, error) {
	b := jg.begin(evt.IdempotencyKey(), sequence, evt.Timestamp)

	longAsset := jg.assets.GetOrRegister(meta.LongToken)
	shortAsset := jg.assets.GetOrRegister(meta.ShortToken)
	marketAsset := jg.assets.GetOrRegister(meta.MarketToken)

	b.addU128(
		NewMarketAccountKey(meta.MarketToken, SubTypeLiquiditySupply, marketAsset),
		NewUserAccountKey(evt.Owner, SubTypeLiquidity, marketAsset),
		marketAsset, report.BurnedTokenAmount, JournalTypeLiquidityBurn)

	b.add(
		NewExternalAccountKey(SubTypeExternalOut, longAsset),
		NewMarketAccountKey(meta.MarketToken, SubTypeVault, longAsset),
		longAsset, report.TransferOut.LongToken, JournalTypeTransferOut)
	b.add(
		NewExternalAccountKey(SubTypeExternalOut, shortAsset),
		NewMarketAccountKey(meta.MarketToken, SubTypeVault, shortAsset),
		shortAsset, report.TransferOut.ShortToken, JournalTypeTransferOut)

	return b.finish()
}

// ForShift journals the burn on the source market, the vault-to-vault moves
// and the mint on the target market.
func (jg *JournalGenerator) ForShift(evt *event.ShiftRequested, fromMeta, toMeta market.MarketMeta, report *action.ShiftReport, sequence int64) (*Batch, error) {
	b := jg.begin(evt.IdempotencyKey(), sequence, evt.Timestamp)

	longAsset := jg.assets.GetOrRegister(fromMeta.LongToken)
	shortAsset := jg.assets.GetOrRegister(fromMeta.ShortToken)
	fromAsset := jg.assets.GetOrRegister(fromMeta.MarketToken)
	toAsset := jg.assets.GetOrRegister(toMeta.MarketToken)

	b.addU128(
		NewMarketAccountKey(fromMeta.MarketToken, SubTypeLiquiditySupply, fromAsset),
		NewUserAccountKey(evt.Owner, SubTypeLiquidity, fromAsset),
		fromAsset, report.Withdrawal.BurnedTokenAmount, JournalTypeLiquidityBurn)

	b.addU128(
		NewMarketAccountKey(toMeta.MarketToken, SubTypeVault, longAsset),
		NewMarketAccountKey(fromMeta.MarketToken, SubTypeVault, longAsset),
		longAsset, report.Withdrawal.LongTokenAmount, JournalTypeLiquidityShift)
	b.addU128(
		NewMarketAccountKey(toMeta.MarketToken, SubTypeVault, shortAsset),
		NewMarketAccountKey(fromMeta.MarketToken, SubTypeVault, shortAsset),
		shortAsset, report.Withdrawal.ShortTokenAmount, JournalTypeLiquidityShift)

	b.addU128(
		NewUserAccountKey(evt.Owner, SubTypeLiquidity, toAsset),
		NewMarketAccountKey(toMeta.MarketToken, SubTypeLiquiditySupply, toAsset),
		toAsset, report.Deposit.MintedTokenAmount, JournalTypeLiquidityMint)

	return b.finish()
}

// ForSwap journals the input into the first vault and the output out of the
// last. The receiver fee is attributable only on a single-hop swap, where
// the reported fees belong to the sole traversed market.
func (jg *JournalGenerator) ForSwap(evt *event.SwapRequested, report *action.SwapReport, sequence int64) (*Batch, error) {
	b := jg.begin(evt.IdempotencyKey(), sequence, evt.Timestamp)

	inAsset := jg.assets.GetOrRegister(report.TokenIn)
	outAsset := jg.assets.GetOrRegister(report.TokenOut)

	firstMarket := evt.Params.Path[0]
	lastMarket := report.MarketToken

	b.addU128(
		NewMarketAccountKey(firstMarket, SubTypeVault, inAsset),
		NewExternalAccountKey(SubTypeExternalIn, inAsset),
		inAsset, report.AmountIn, JournalTypeTransferIn)

	b.add(
		NewExternalAccountKey(SubTypeExternalOut, outAsset),
		NewMarketAccountKey(lastMarket, SubTypeVault, outAsset),
		outAsset, report.TransferOut.FinalOutput, JournalTypeTransferOut)

	if len(evt.Params.Path) == 1 {
		b.addU128(
			NewMarketAccountKey(lastMarket, SubTypeFeeReceiver, inAsset),
			NewMarketAccountKey(lastMarket, SubTypeVault, inAsset),
			inAsset, report.Fees.ReceiverFeeAmount, JournalTypeFeeReceiver)
	}

	return b.finish()
}

// ForIncrease journals the collateral paid in plus the fee and funding
// reclassifications settled against the position.
func (jg *JournalGenerator) ForIncrease(evt *event.OrderIncreased, meta market.MarketMeta, report *action.IncreaseReport, sequence int64) (*Batch, error) {
	b := jg.begin(evt.IdempotencyKey(), sequence, evt.Timestamp)

	collAsset := jg.assets.GetOrRegister(evt.Params.CollateralToken)
	vaultColl := NewMarketAccountKey(meta.MarketToken, SubTypeVault, collAsset)

	b.add(vaultColl, NewExternalAccountKey(SubTypeExternalIn, collAsset), collAsset, evt.Params.CollateralDeltaAmount, JournalTypeTransferIn)

	b.addU128(
		NewMarketAccountKey(meta.MarketToken, SubTypeFeeReceiver, collAsset),
		vaultColl, collAsset, report.Fees.ReceiverFeeAmount, JournalTypeFeeReceiver)

	jg.claimableFunding(b, meta, report.Fees)

	return b.finish()
}

// ForDecrease journals the outputs paid out plus escrow and fee
// reclassifications.
func (jg *JournalGenerator) ForDecrease(evt *event.OrderDecreased, meta market.MarketMeta, report *action.DecreaseReport, sequence int64) (*Batch, error) {
	b := jg.begin(evt.IdempotencyKey(), sequence, evt.Timestamp)

	longAsset := jg.assets.GetOrRegister(meta.LongToken)
	shortAsset := jg.assets.GetOrRegister(meta.ShortToken)
	collAsset := jg.assets.GetOrRegister(evt.Params.CollateralToken)

	outAsset := shortAsset
	if report.IsOutputTokenLong {
		outAsset = longAsset
	}
	secondaryAsset := shortAsset
	if report.IsSecondaryOutputTokenLong {
		secondaryAsset = longAsset
	}

	b.add(
		NewExternalAccountKey(SubTypeExternalOut, outAsset),
		NewMarketAccountKey(meta.MarketToken, SubTypeVault, outAsset),
		outAsset, report.TransferOut.FinalOutput, JournalTypeTransferOut)
	b.add(
		NewExternalAccountKey(SubTypeExternalOut, secondaryAsset),
		NewMarketAccountKey(meta.MarketToken, SubTypeVault, secondaryAsset),
		secondaryAsset, report.TransferOut.SecondaryOutput, JournalTypeTransferOut)

	b.add(
		NewMarketAccountKey(meta.MarketToken, SubTypeHolding, longAsset),
		NewMarketAccountKey(meta.MarketToken, SubTypeVault, longAsset),
		longAsset, report.TransferOut.ClaimableForHoldingLong, JournalTypeHoldingEscrow)
	b.add(
		NewMarketAccountKey(meta.MarketToken, SubTypeHolding, shortAsset),
		NewMarketAccountKey(meta.MarketToken, SubTypeVault, shortAsset),
		shortAsset, report.TransferOut.ClaimableForHoldingShort, JournalTypeHoldingEscrow)

	b.add(
		NewMarketAccountKey(meta.MarketToken, SubTypeClaimableImpact, longAsset),
		NewMarketAccountKey(meta.MarketToken, SubTypeVault, longAsset),
		longAsset, report.TransferOut.ClaimableForUserLong, JournalTypeImpactRefund)
	b.add(
		NewMarketAccountKey(meta.MarketToken, SubTypeClaimableImpact, shortAsset),
		NewMarketAccountKey(meta.MarketToken, SubTypeVault, shortAsset),
		shortAsset, report.TransferOut.ClaimableForUserShort, JournalTypeImpactRefund)

	b.addU128(
		NewMarketAccountKey(meta.MarketToken, SubTypeFeeReceiver, collAsset),
		NewMarketAccountKey(meta.MarketToken, SubTypeVault, collAsset),
		collAsset, report.Fees.ReceiverFeeAmount, JournalTypeFeeReceiver)

	jg.claimableFunding(b, meta, report.Fees)

	return b.finish()
}

func (jg *JournalGenerator) claimableFunding(b *batchBuilder, meta market.MarketMeta, fees action.Fees) {
	longAsset := jg.assets.GetOrRegister(meta.LongToken)
	shortAsset := jg.assets.GetOrRegister(meta.ShortToken)

	b.addU128(
		NewMarketAccountKey(meta.MarketToken, SubTypeClaimableFunding, longAsset),
		NewMarketAccountKey(meta.MarketToken, SubTypeVault, longAsset),
		longAsset, fees.ClaimableFundingLong, JournalTypeClaimableFunding)
	b.addU128(
		NewMarketAccountKey(meta.MarketToken, SubTypeClaimableFunding, shortAsset),
		NewMarketAccountKey(meta.MarketToken, SubTypeVault, shortAsset),
		shortAsset, fees.ClaimableFundingShort, JournalTypeClaimableFunding)
}
