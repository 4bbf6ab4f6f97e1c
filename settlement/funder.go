package settlement

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/core/types"
	"go.uber.org/zap"

	mathutil "github.com/metuDein/aaveflashbot/utils/math"
)

// Notifier receives operator messages.
type Notifier interface {
	Notify(msg string)
}

type FunderConfig struct {
	Token      common.Address
	Symbol     string
	Decimals   uint8
	MinBalance *big.Int
	TopUp      *big.Int
	// Timeout bounds each node call and each confirmation wait
	Timeout time.Duration
}

// Funder keeps the settlement contract's fee balance above a minimum.
type Funder struct {
	contract *Contract
	chain    Chain
	notifier Notifier
	cfg      FunderConfig
	logger   *zap.Logger
}

func NewFunder(contract *Contract, chain Chain, notifier Notifier, cfg FunderConfig, logger *zap.Logger) *Funder {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 3 * time.Minute
	}
	return &Funder{
		contract: contract,
		chain:    chain,
		notifier: notifier,
		cfg:      cfg,
		logger:   logger.Named("funder"),
	}
}

// EnsureFunded tops the contract up when its balance is below the minimum.
// It reports whether any transaction was sent. Calling it again once the
// balance is sufficient sends nothing. Every node call is bounded by the
// funder timeout.
func (f *Funder) EnsureFunded(ctx context.Context) (bool, error) {
	balance, err := f.readBalance(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to read contract balance: %w", err)
	}

	f.logger.Debug("Settlement contract balance",
		zap.String("balance", balance.String()),
		zap.String("minimum", f.cfg.MinBalance.String()),
	)
	if balance.Cmp(f.cfg.MinBalance) >= 0 {
		return false, nil
	}

	f.notifier.Notify(fmt.Sprintf("⚠️ Contract needs %s for fees - funding...", f.cfg.Symbol))

	allowance, err := f.readAllowance(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to read allowance: %w", err)
	}

	if allowance.Cmp(f.cfg.TopUp) < 0 {
		tx, err := f.send(ctx, func(ctx context.Context) (*types.Transaction, error) {
			return f.chain.Approve(ctx, f.cfg.Token, f.contract.Address(), math.MaxBig256)
		})
		if err != nil {
			return true, fmt.Errorf("approve failed: %w", err)
		}
		if err := f.await(ctx, tx, "approve"); err != nil {
			return true, err
		}
	}

	tx, err := f.send(ctx, func(ctx context.Context) (*types.Transaction, error) {
		return f.contract.Fund(ctx, f.cfg.Token, f.cfg.TopUp)
	})
	if err != nil {
		return true, fmt.Errorf("fundContract failed: %w", err)
	}
	if err := f.await(ctx, tx, "fundContract"); err != nil {
		return true, err
	}

	f.notifier.Notify(fmt.Sprintf("✅ Contract funded with %s %s",
		mathutil.FormatUnits(f.cfg.TopUp, f.cfg.Decimals), f.cfg.Symbol))
	return true, nil
}

func (f *Funder) readBalance(ctx context.Context) (*big.Int, error) {
	ctx, cancel := context.WithTimeout(ctx, f.cfg.Timeout)
	defer cancel()
	return f.contract.Balance(ctx, f.cfg.Token)
}

func (f *Funder) readAllowance(ctx context.Context) (*big.Int, error) {
	ctx, cancel := context.WithTimeout(ctx, f.cfg.Timeout)
	defer cancel()
	return f.chain.Allowance(ctx, f.cfg.Token, f.chain.Address(), f.contract.Address())
}

func (f *Funder) send(ctx context.Context, submit func(context.Context) (*types.Transaction, error)) (*types.Transaction, error) {
	ctx, cancel := context.WithTimeout(ctx, f.cfg.Timeout)
	defer cancel()
	return submit(ctx)
}

func (f *Funder) await(ctx context.Context, tx *types.Transaction, step string) error {
	ctx, cancel := context.WithTimeout(ctx, f.cfg.Timeout)
	defer cancel()

	receipt, err := f.chain.WaitMined(ctx, tx)
	if err != nil {
		return fmt.Errorf("%s transaction %s: %w", step, tx.Hash().Hex(), err)
	}
	f.logger.Info("Funding step confirmed",
		zap.String("step", step),
		zap.String("tx", tx.Hash().Hex()),
		zap.Uint64("block", receipt.BlockNumber.Uint64()),
	)
	return nil
}
