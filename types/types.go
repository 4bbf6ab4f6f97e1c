package types

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/metuDein/aaveflashbot/dex"
)

// Opportunity is a cross-venue price difference that cleared the spread and
// profit thresholds. It is consumed by exactly one trade attempt.
type Opportunity struct {
	ID         string
	Amount     *big.Int
	BaseToken  common.Address
	QuoteToken common.Address

	// BuyVenue yields the smaller output for Amount, SellVenue the larger.
	BuyVenue   dex.Venue
	SellVenue  dex.Venue
	BuyOutput  *big.Int
	SellOutput *big.Int

	Spread     *big.Int
	Profit     *big.Int
	DetectedAt time.Time
}

// TradeOutcome is the result of one submitted trade.
type TradeOutcome struct {
	TxHash      common.Hash
	BlockNumber uint64
	// Profit is nil when the receipt carried no profit event
	Profit        *big.Int
	ProfitToken   common.Address
	GasUsed       uint64
	FailureReason string
}

// Succeeded reports whether the trade was mined without a failure.
func (o *TradeOutcome) Succeeded() bool {
	return o != nil && o.FailureReason == ""
}

// BotState is the process-wide identity and trading parameters, fixed at
// startup.
type BotState struct {
	Signer     common.Address
	TargetGwei float64
	Notional   *big.Int
	MinProfit  *big.Int
	StartedAt  time.Time
}
