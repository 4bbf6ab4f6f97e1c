package uniswap

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"github.com/metuDein/aaveflashbot/dex"
)

// Sepolia deployments
var (
	SepoliaRouter = common.HexToAddress("0x3fC91A3afd70395Cd496C647d5a6CC9D4B2b7FAD")
	SepoliaQuoter = common.HexToAddress("0xb27308f9F90D607463bb33eA1BeBb41C27CE5AB6")
)

// DefaultFeeTier is the 0.3% pool.
const DefaultFeeTier = 3000

const quoterABIJson = `[{"inputs":[{"internalType":"address","name":"tokenIn","type":"address"},{"internalType":"address","name":"tokenOut","type":"address"},{"internalType":"uint24","name":"fee","type":"uint24"},{"internalType":"uint256","name":"amountIn","type":"uint256"},{"internalType":"uint160","name":"sqrtPriceLimitX96","type":"uint160"}],"name":"quoteExactInputSingle","outputs":[{"internalType":"uint256","name":"amountOut","type":"uint256"}],"stateMutability":"nonpayable","type":"function"}]`

const routerABIJson = `[{"inputs":[{"components":[{"internalType":"address","name":"tokenIn","type":"address"},{"internalType":"address","name":"tokenOut","type":"address"},{"internalType":"uint24","name":"fee","type":"uint24"},{"internalType":"address","name":"recipient","type":"address"},{"internalType":"uint256","name":"deadline","type":"uint256"},{"internalType":"uint256","name":"amountIn","type":"uint256"},{"internalType":"uint256","name":"amountOutMinimum","type":"uint256"},{"internalType":"uint160","name":"sqrtPriceLimitX96","type":"uint160"}],"internalType":"struct ISwapRouter.ExactInputSingleParams","name":"params","type":"tuple"}],"name":"exactInputSingle","outputs":[{"internalType":"uint256","name":"amountOut","type":"uint256"}],"stateMutability":"payable","type":"function"}]`

// ExactInputSingleParams mirrors the router's tuple argument.
type ExactInputSingleParams struct {
	TokenIn           common.Address
	TokenOut          common.Address
	Fee               *big.Int
	Recipient         common.Address
	Deadline          *big.Int
	AmountIn          *big.Int
	AmountOutMinimum  *big.Int
	SqrtPriceLimitX96 *big.Int
}

// V3 quotes through the QuoterV1 contract and swaps through a single pool
// of a fixed fee tier.
type V3 struct {
	caller    dex.Caller
	router    common.Address
	quoter    common.Address
	fee       *big.Int
	quoterABI abi.ABI
	routerABI abi.ABI
}

var _ dex.Venue = (*V3)(nil)

// NewV3 creates a Uniswap V3 venue. A zero fee tier selects DefaultFeeTier.
func NewV3(caller dex.Caller, router, quoter common.Address, feeTier uint32) (*V3, error) {
	quoterABI, err := abi.JSON(strings.NewReader(quoterABIJson))
	if err != nil {
		return nil, fmt.Errorf("failed to parse quoter ABI: %w", err)
	}
	routerABI, err := abi.JSON(strings.NewReader(routerABIJson))
	if err != nil {
		return nil, fmt.Errorf("failed to parse router ABI: %w", err)
	}
	if feeTier == 0 {
		feeTier = DefaultFeeTier
	}

	return &V3{
		caller:    caller,
		router:    router,
		quoter:    quoter,
		fee:       new(big.Int).SetUint64(uint64(feeTier)),
		quoterABI: quoterABI,
		routerABI: routerABI,
	}, nil
}

func (v *V3) Name() string {
	return "uniswap"
}

func (v *V3) Router() common.Address {
	return v.router
}

// Quote simulates quoteExactInputSingle with no price limit.
func (v *V3) Quote(ctx context.Context, amountIn *big.Int, tokenIn, tokenOut common.Address) (*big.Int, error) {
	data, err := v.quoterABI.Pack("quoteExactInputSingle", tokenIn, tokenOut, v.fee, amountIn, new(big.Int))
	if err != nil {
		return nil, fmt.Errorf("failed to pack quoteExactInputSingle: %w", err)
	}

	out, err := v.caller.Call(ctx, v.quoter, data)
	if err != nil {
		return nil, fmt.Errorf("uniswap quote failed: %w", err)
	}

	values, err := v.quoterABI.Unpack("quoteExactInputSingle", out)
	if err != nil {
		return nil, fmt.Errorf("failed to unpack quoteExactInputSingle: %w", err)
	}
	amountOut, ok := values[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("unexpected quote result type %T", values[0])
	}
	return amountOut, nil
}

// EncodeSwap encodes exactInputSingle for the configured fee tier.
func (v *V3) EncodeSwap(params dex.SwapParams) ([]byte, error) {
	p := params.Normalize()
	data, err := v.routerABI.Pack("exactInputSingle", ExactInputSingleParams{
		TokenIn:           p.TokenIn,
		TokenOut:          p.TokenOut,
		Fee:               v.fee,
		Recipient:         p.Recipient,
		Deadline:          p.Deadline,
		AmountIn:          p.AmountIn,
		AmountOutMinimum:  p.AmountOutMin,
		SqrtPriceLimitX96: new(big.Int),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to pack exactInputSingle: %w", err)
	}
	return data, nil
}
