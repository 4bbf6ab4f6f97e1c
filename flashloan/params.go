package flashloan

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

// ArbitrageParams is the payload the settlement contract decodes from the
// flash loan params: it runs swaps[i] against routers[i] in order and
// reverts unless it ends with at least MinProfit above the repayment.
type ArbitrageParams struct {
	Notional  *big.Int
	MinProfit *big.Int
	Routers   []common.Address
	Swaps     [][]byte
}

var arbitrageArgs abi.Arguments

func init() {
	uint256Type, _ := abi.NewType("uint256", "", nil)
	addressesType, _ := abi.NewType("address[]", "", nil)
	bytesArrayType, _ := abi.NewType("bytes[]", "", nil)
	arbitrageArgs = abi.Arguments{
		{Name: "notional", Type: uint256Type},
		{Name: "minProfit", Type: uint256Type},
		{Name: "routers", Type: addressesType},
		{Name: "swaps", Type: bytesArrayType},
	}
}

// Encode packs the params as abi.encode(uint256,uint256,address[],bytes[]).
func (p *ArbitrageParams) Encode() ([]byte, error) {
	if len(p.Routers) != len(p.Swaps) {
		return nil, fmt.Errorf("routers and swaps length mismatch: %d != %d", len(p.Routers), len(p.Swaps))
	}
	if p.Notional == nil || p.MinProfit == nil {
		return nil, fmt.Errorf("notional and min profit are required")
	}
	return arbitrageArgs.Pack(p.Notional, p.MinProfit, p.Routers, p.Swaps)
}

// DecodeArbitrageParams reverses Encode.
func DecodeArbitrageParams(data []byte) (*ArbitrageParams, error) {
	values, err := arbitrageArgs.Unpack(data)
	if err != nil {
		return nil, fmt.Errorf("failed to unpack arbitrage params: %w", err)
	}

	var p ArbitrageParams
	if err := arbitrageArgs.Copy(&p, values); err != nil {
		return nil, fmt.Errorf("failed to copy arbitrage params: %w", err)
	}
	return &p, nil
}
