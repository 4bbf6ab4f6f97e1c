package sushiswap

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"github.com/metuDein/aaveflashbot/dex"
)

// SepoliaRouter is the Sushiswap V2 router on Sepolia.
var SepoliaRouter = common.HexToAddress("0x1b02dA8Cb0d097eB8D57A175b88c7D8b47997506")

// RouterABI covers the quote and swap entry points of a V2 router.
const RouterABI = `[
	{"inputs":[{"internalType":"uint256","name":"amountIn","type":"uint256"},{"internalType":"address[]","name":"path","type":"address[]"}],"name":"getAmountsOut","outputs":[{"internalType":"uint256[]","name":"amounts","type":"uint256[]"}],"stateMutability":"view","type":"function"},
	{"inputs":[{"internalType":"uint256","name":"amountIn","type":"uint256"},{"internalType":"uint256","name":"amountOutMin","type":"uint256"},{"internalType":"address[]","name":"path","type":"address[]"},{"internalType":"address","name":"to","type":"address"},{"internalType":"uint256","name":"deadline","type":"uint256"}],"name":"swapExactTokensForTokens","outputs":[{"internalType":"uint256[]","name":"amounts","type":"uint256[]"}],"stateMutability":"nonpayable","type":"function"}
]`

// SushiswapV2 quotes and encodes swaps through a V2 router.
type SushiswapV2 struct {
	caller     dex.Caller
	routerAddr common.Address
	routerABI  abi.ABI
}

var _ dex.Venue = (*SushiswapV2)(nil)

// NewSushiswapV2 creates a venue bound to the given router.
func NewSushiswapV2(caller dex.Caller, router common.Address) (*SushiswapV2, error) {
	parsedABI, err := abi.JSON(strings.NewReader(RouterABI))
	if err != nil {
		return nil, fmt.Errorf("failed to parse router ABI: %w", err)
	}

	return &SushiswapV2{
		caller:     caller,
		routerAddr: router,
		routerABI:  parsedABI,
	}, nil
}

// Name returns the exchange name
func (s *SushiswapV2) Name() string {
	return "sushiswap"
}

func (s *SushiswapV2) Router() common.Address {
	return s.routerAddr
}

// Quote asks the router for getAmountsOut over the direct pair and returns
// the last hop's output.
func (s *SushiswapV2) Quote(ctx context.Context, amountIn *big.Int, tokenIn, tokenOut common.Address) (*big.Int, error) {
	data, err := s.routerABI.Pack("getAmountsOut", amountIn, []common.Address{tokenIn, tokenOut})
	if err != nil {
		return nil, fmt.Errorf("failed to pack getAmountsOut: %w", err)
	}

	out, err := s.caller.Call(ctx, s.routerAddr, data)
	if err != nil {
		return nil, fmt.Errorf("sushiswap quote failed: %w", err)
	}

	values, err := s.routerABI.Unpack("getAmountsOut", out)
	if err != nil {
		return nil, fmt.Errorf("failed to unpack getAmountsOut: %w", err)
	}
	amounts, ok := values[0].([]*big.Int)
	if !ok || len(amounts) < 2 {
		return nil, fmt.Errorf("unexpected getAmountsOut result")
	}

	return amounts[len(amounts)-1], nil
}

// EncodeSwap encodes swapExactTokensForTokens for a direct pair.
func (s *SushiswapV2) EncodeSwap(params dex.SwapParams) ([]byte, error) {
	p := params.Normalize()
	data, err := s.routerABI.Pack("swapExactTokensForTokens",
		p.AmountIn,
		p.AmountOutMin,
		[]common.Address{p.TokenIn, p.TokenOut},
		p.Recipient,
		p.Deadline,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to pack swapExactTokensForTokens: %w", err)
	}
	return data, nil
}
