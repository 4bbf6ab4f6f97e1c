package aave

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/metuDein/aaveflashbot/flashloan"
	mathutil "github.com/metuDein/aaveflashbot/utils/math"
)

// SepoliaPool is the Aave V3 pool on Sepolia.
var SepoliaPool = common.HexToAddress("0x6Ae43d3271ff6888e7Fc43Fd7321a503ff738951")

// DefaultFeeBps is the V3 flash loan premium.
const DefaultFeeBps = 9

// AaveV3 pool ABI for single-asset flash loans
const aaveV3ABI = `[
	{
		"inputs": [
			{
				"internalType": "address",
				"name": "receiverAddress",
				"type": "address"
			},
			{
				"internalType": "address",
				"name": "asset",
				"type": "address"
			},
			{
				"internalType": "uint256",
				"name": "amount",
				"type": "uint256"
			},
			{
				"internalType": "bytes",
				"name": "params",
				"type": "bytes"
			},
			{
				"internalType": "uint16",
				"name": "referralCode",
				"type": "uint16"
			}
		],
		"name": "flashLoanSimple",
		"outputs": [],
		"stateMutability": "nonpayable",
		"type": "function"
	}
]`

// Submitter signs and sends a contract call.
type Submitter interface {
	Submit(ctx context.Context, to common.Address, data []byte) (*types.Transaction, error)
}

// AaveProvider implements the flash loan Provider interface for Aave V3
type AaveProvider struct {
	submitter Submitter
	config    flashloan.ProviderConfig
	logger    *zap.Logger
	abi       abi.ABI
	metrics   struct {
		loanCount  prometheus.Counter
		loanVolume prometheus.Counter
		latency    prometheus.Histogram
		errors     prometheus.Counter
	}
}

var _ flashloan.Provider = (*AaveProvider)(nil)

// NewAaveProvider creates a new Aave flash loan provider
func NewAaveProvider(submitter Submitter, config flashloan.ProviderConfig, logger *zap.Logger) (*AaveProvider, error) {
	if submitter == nil {
		return nil, fmt.Errorf("submitter cannot be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger cannot be nil")
	}
	if config.PoolAddress == (common.Address{}) {
		return nil, fmt.Errorf("pool address cannot be empty")
	}

	// Parse ABI
	parsedABI, err := abi.JSON(strings.NewReader(aaveV3ABI))
	if err != nil {
		return nil, fmt.Errorf("failed to parse ABI: %w", err)
	}

	provider := &AaveProvider{
		submitter: submitter,
		config:    config,
		logger:    logger.Named("aave"),
		abi:       parsedABI,
	}

	provider.metrics.loanCount = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "flashloan_aave_loans_total",
		Help: "Total number of Aave flash loans submitted",
	})
	provider.metrics.loanVolume = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "flashloan_aave_volume_base_units",
		Help: "Total borrowed amount in token base units",
	})
	provider.metrics.latency = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "flashloan_aave_latency_seconds",
		Help:    "Latency of Aave flash loan submission",
		Buckets: prometheus.ExponentialBuckets(0.01, 2, 10),
	})
	provider.metrics.errors = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "flashloan_aave_errors_total",
		Help: "Total number of Aave flash loan errors",
	})

	return provider, nil
}

func (p *AaveProvider) Collectors() []prometheus.Collector {
	return []prometheus.Collector{
		p.metrics.loanCount,
		p.metrics.loanVolume,
		p.metrics.latency,
		p.metrics.errors,
	}
}

func (p *AaveProvider) String() string {
	return "aave-v3"
}

// LoanFee calculates the premium for a flash loan
func (p *AaveProvider) LoanFee(amount *big.Int) *big.Int {
	return mathutil.MulBps(amount, p.config.FeeBps)
}

// EncodeFlashLoan packs the flashLoanSimple call.
func (p *AaveProvider) EncodeFlashLoan(params flashloan.FlashLoanParams) ([]byte, error) {
	if params.Amount == nil || params.Amount.Sign() <= 0 {
		return nil, fmt.Errorf("invalid loan amount")
	}
	if params.Receiver == (common.Address{}) {
		return nil, fmt.Errorf("receiver cannot be empty")
	}

	data := params.Data
	if data == nil {
		data = []byte{}
	}
	return p.abi.Pack("flashLoanSimple",
		params.Receiver,
		params.Token,
		params.Amount,
		data,
		params.ReferralCode,
	)
}

// ExecuteFlashLoan submits flashLoanSimple to the pool
func (p *AaveProvider) ExecuteFlashLoan(ctx context.Context, params flashloan.FlashLoanParams) (*types.Transaction, error) {
	start := time.Now()
	defer func() {
		p.metrics.latency.Observe(time.Since(start).Seconds())
	}()

	callData, err := p.EncodeFlashLoan(params)
	if err != nil {
		p.metrics.errors.Inc()
		return nil, fmt.Errorf("failed to pack flash loan data: %w", err)
	}

	tx, err := p.submitter.Submit(ctx, p.config.PoolAddress, callData)
	if err != nil {
		p.metrics.errors.Inc()
		return nil, fmt.Errorf("failed to submit flash loan: %w", err)
	}

	p.metrics.loanCount.Inc()
	volume, _ := new(big.Float).SetInt(params.Amount).Float64()
	p.metrics.loanVolume.Add(volume)

	p.logger.Info("Flash loan submitted",
		zap.String("tx", tx.Hash().Hex()),
		zap.String("token", params.Token.Hex()),
		zap.String("amount", params.Amount.String()),
		zap.String("fee", p.LoanFee(params.Amount).String()),
	)
	return tx, nil
}
