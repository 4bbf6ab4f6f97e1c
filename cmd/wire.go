package cmd

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/metuDein/aaveflashbot/chain"
	"github.com/metuDein/aaveflashbot/config"
	"github.com/metuDein/aaveflashbot/coordinator"
	"github.com/metuDein/aaveflashbot/dex/sushiswap"
	"github.com/metuDein/aaveflashbot/dex/uniswap"
	"github.com/metuDein/aaveflashbot/flashloan"
	"github.com/metuDein/aaveflashbot/flashloan/aave"
	"github.com/metuDein/aaveflashbot/gas"
	"github.com/metuDein/aaveflashbot/notify"
	"github.com/metuDein/aaveflashbot/settlement"
	"github.com/metuDein/aaveflashbot/strategies/arbitrage"
	"github.com/metuDein/aaveflashbot/types"
)

// components is the fully wired bot.
type components struct {
	eth         *ethclient.Client
	client      *chain.Client
	notifier    *notify.Notifier
	funder      *settlement.Funder
	monitor     *gas.Monitor
	evaluator   *arbitrage.Evaluator
	manager     *flashloan.FlashLoanManager
	coordinator *coordinator.Coordinator
	state       types.BotState
	collectors  []prometheus.Collector
}

func (c *components) Close() {
	if c.eth != nil {
		c.eth.Close()
	}
}

func newNotifier(cfg *config.Config, logger *zap.Logger) (*notify.Notifier, error) {
	var senders []notify.Sender
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender(cfg.Notify.TelegramToken, cfg.Notify.TelegramChatID))
	} else {
		logger.Warn("Telegram credentials not set, notifications are logged only")
	}

	return notify.New(senders, notify.Config{
		QueueSize:         cfg.Notify.QueueSize,
		RequestsPerSecond: cfg.Notify.RateLimit.RequestsPerSecond,
		Burst:             cfg.Notify.RateLimit.BurstSize,
		SendTimeout:       cfg.Notify.RateLimit.WaitTimeout,
		DedupWindow:       cfg.Notify.DedupWindow,
		DedupSize:         cfg.Notify.DedupSize,
	}, logger)
}

// dialChain connects to the node and checks it serves the configured chain.
func dialChain(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*ethclient.Client, *chain.Client, error) {
	ctx, cancel := context.WithTimeout(ctx, cfg.NetworkTimeout)
	defer cancel()

	eth, err := ethclient.DialContext(ctx, cfg.RPCEndpoint)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to Ethereum node: %w", err)
	}

	chainID, err := eth.ChainID(ctx)
	if err != nil {
		eth.Close()
		return nil, nil, fmt.Errorf("failed to read chain ID: %w", err)
	}
	if cfg.ChainID != 0 && chainID.Uint64() != cfg.ChainID {
		eth.Close()
		return nil, nil, fmt.Errorf("node serves chain %s, expected %d", chainID, cfg.ChainID)
	}

	key, err := crypto.HexToECDSA(strings.TrimPrefix(cfg.PrivateKey, "0x"))
	if err != nil {
		eth.Close()
		return nil, nil, fmt.Errorf("invalid private key: %w", err)
	}

	limiter := rate.NewLimiter(rate.Limit(cfg.RPCRateLimit.RequestsPerSecond), cfg.RPCRateLimit.BurstSize)
	return eth, chain.NewClient(eth, key, chainID, limiter, cfg.RPCRateLimit.WaitTimeout, logger), nil
}

func newFunder(cfg *config.Config, client *chain.Client, notifier settlement.Notifier, amounts *config.TradeAmounts, logger *zap.Logger) (*settlement.Funder, error) {
	contract, err := settlement.NewContract(common.HexToAddress(cfg.FlashArbitrageContract), client)
	if err != nil {
		return nil, err
	}
	return settlement.NewFunder(contract, client, notifier, settlement.FunderConfig{
		Token:      common.HexToAddress(cfg.Tokens.Base),
		Symbol:     cfg.Tokens.BaseSymbol,
		Decimals:   cfg.Tokens.BaseDecimals,
		MinBalance: amounts.MinBalance,
		TopUp:      amounts.TopUp,
		Timeout:    cfg.ConfirmTimeout,
	}, logger), nil
}

func newEvaluator(cfg *config.Config, client *chain.Client, amounts *config.TradeAmounts, logger *zap.Logger) (*arbitrage.Evaluator, error) {
	uni, err := uniswap.NewV3(client,
		common.HexToAddress(cfg.Venues.UniswapRouter),
		common.HexToAddress(cfg.Venues.UniswapQuoter),
		cfg.Venues.UniswapFeeTier,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create uniswap venue: %w", err)
	}
	sushi, err := sushiswap.NewSushiswapV2(client, common.HexToAddress(cfg.Venues.SushiswapRouter))
	if err != nil {
		return nil, fmt.Errorf("failed to create sushiswap venue: %w", err)
	}

	return arbitrage.NewEvaluator(uni, sushi, arbitrage.Config{
		BaseToken:       common.HexToAddress(cfg.Tokens.Base),
		QuoteToken:      common.HexToAddress(cfg.Tokens.Quote),
		BaseDecimals:    cfg.Tokens.BaseDecimals,
		MinSpreadBps:    cfg.Trading.MinSpreadBps,
		FlashLoanFeeBps: cfg.Trading.FlashLoanFeeBps,
		MinProfit:       amounts.MinProfit,
		QuoteTimeout:    cfg.QuoteTimeout,
	}, logger), nil
}

// buildComponents wires every component from cfg. The caller owns the
// notifier and must Close the returned components.
func buildComponents(ctx context.Context, cfg *config.Config, notifier *notify.Notifier, logger *zap.Logger) (*components, error) {
	amounts, err := cfg.Amounts()
	if err != nil {
		return nil, err
	}

	eth, client, err := dialChain(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	c := &components{eth: eth, client: client, notifier: notifier}

	if c.funder, err = newFunder(cfg, client, notifier, amounts, logger); err != nil {
		c.Close()
		return nil, err
	}
	if c.evaluator, err = newEvaluator(cfg, client, amounts, logger); err != nil {
		c.Close()
		return nil, err
	}

	c.monitor = gas.NewMonitor(client, notifier, gas.MonitorConfig{
		PollInterval: cfg.Gas.PollInterval,
		Window:       cfg.Gas.Window,
		FallbackGwei: cfg.Gas.FallbackGwei,
		NotifyEvery:  cfg.Gas.NotifyEvery,
	}, logger)

	provider, err := aave.NewAaveProvider(client, flashloan.ProviderConfig{
		PoolAddress: common.HexToAddress(cfg.AavePool),
		FeeBps:      cfg.Trading.FlashLoanFeeBps,
	}, logger)
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("failed to create aave provider: %w", err)
	}

	c.manager = flashloan.NewFlashLoanManager(provider, client, flashloan.ManagerConfig{
		Receiver:       common.HexToAddress(cfg.FlashArbitrageContract),
		MinProfit:      amounts.MinProfit,
		ReferralCode:   cfg.ReferralCode,
		SwapDeadline:   cfg.Venues.SwapDeadline,
		ConfirmTimeout: cfg.ConfirmTimeout,
	}, logger)

	c.coordinator, err = coordinator.New(c.funder, c.monitor, c.evaluator, c.manager, notifier, coordinator.Config{
		TargetGwei:    cfg.Gas.TargetGwei,
		MaxWait:       cfg.Gas.MaxWait,
		Notional:      amounts.Notional,
		BaseToken:     common.HexToAddress(cfg.Tokens.Base),
		BaseSymbol:    cfg.Tokens.BaseSymbol,
		BaseDecimals:  cfg.Tokens.BaseDecimals,
		QuoteSymbol:   cfg.Tokens.QuoteSymbol,
		QuoteDecimals: cfg.Tokens.QuoteDecimals,
		TxURL:         cfg.TxURL,
	}, logger)
	if err != nil {
		c.Close()
		return nil, err
	}

	c.state = types.BotState{
		Signer:     client.Address(),
		TargetGwei: cfg.Gas.TargetGwei,
		Notional:   new(big.Int).Set(amounts.Notional),
		MinProfit:  new(big.Int).Set(amounts.MinProfit),
	}

	c.collectors = append(c.collectors, notifier.Collectors()...)
	c.collectors = append(c.collectors, c.monitor.Collectors()...)
	c.collectors = append(c.collectors, c.evaluator.Collectors()...)
	c.collectors = append(c.collectors, provider.Collectors()...)
	c.collectors = append(c.collectors, c.manager.Collectors()...)
	c.collectors = append(c.collectors, c.coordinator.Collectors()...)

	return c, nil
}
