package dex

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// Caller performs read-only contract calls.
type Caller interface {
	Call(ctx context.Context, to common.Address, data []byte) ([]byte, error)
}

// Venue is an exchange the bot can quote against and route a swap leg
// through.
type Venue interface {
	// Name identifies the venue in logs and notifications
	Name() string

	// Router is the contract the encoded swap calldata targets
	Router() common.Address

	// Quote returns the expected output of swapping amountIn of tokenIn
	Quote(ctx context.Context, amountIn *big.Int, tokenIn, tokenOut common.Address) (*big.Int, error)

	// EncodeSwap builds the router calldata for a single swap leg
	EncodeSwap(params SwapParams) ([]byte, error)
}

// SwapParams describes one swap leg executed by the settlement contract.
// A zero AmountIn asks the contract to use the output of the previous leg.
type SwapParams struct {
	TokenIn      common.Address
	TokenOut     common.Address
	Recipient    common.Address
	AmountIn     *big.Int
	AmountOutMin *big.Int
	Deadline     *big.Int
}

func valueOrZero(v *big.Int) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return v
}

// Normalize fills nil amounts with zero so the params can be ABI encoded.
func (p SwapParams) Normalize() SwapParams {
	p.AmountIn = valueOrZero(p.AmountIn)
	p.AmountOutMin = valueOrZero(p.AmountOutMin)
	p.Deadline = valueOrZero(p.Deadline)
	return p
}
