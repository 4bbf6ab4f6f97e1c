package flashloan

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
)

// ProfitEventTopic is topic0 of ArbitrageProfit(address indexed token, uint256 profit).
var ProfitEventTopic = crypto.Keccak256Hash([]byte("ArbitrageProfit(address,uint256)"))

// ParseProfit scans receipt logs for the first ArbitrageProfit event emitted
// by emitter. Logs from other contracts are ignored.
func ParseProfit(logs []*types.Log, emitter common.Address) (common.Address, *big.Int, bool) {
	for _, lg := range logs {
		if lg == nil || lg.Address != emitter {
			continue
		}
		if len(lg.Topics) < 2 || lg.Topics[0] != ProfitEventTopic {
			continue
		}
		if len(lg.Data) < 32 {
			continue
		}
		token := common.BytesToAddress(lg.Topics[1].Bytes())
		profit := new(big.Int).SetBytes(lg.Data[:32])
		return token, profit, true
	}
	return common.Address{}, nil, false
}
