package flashloan

import (
	"github.com/ethereum/go-ethereum/common"
)

// ProviderConfig contains configuration for flash loan providers
type ProviderConfig struct {
	PoolAddress common.Address
	FeeBps      uint32 // Premium in basis points (9 = 0.09%)
}
