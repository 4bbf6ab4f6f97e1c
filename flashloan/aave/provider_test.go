package aave

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/metuDein/aaveflashbot/flashloan"
)

type mockSubmitter struct {
	to   common.Address
	data []byte
	err  error
}

func (m *mockSubmitter) Submit(ctx context.Context, to common.Address, data []byte) (*types.Transaction, error) {
	if m.err != nil {
		return nil, m.err
	}
	m.to, m.data = to, data
	return types.NewTx(&types.DynamicFeeTx{To: &to, Data: data}), nil
}

func TestAaveProvider(t *testing.T) {
	logger := zaptest.NewLogger(t)
	submitter := &mockSubmitter{}

	provider, err := NewAaveProvider(submitter, flashloan.ProviderConfig{
		PoolAddress: SepoliaPool,
		FeeBps:      DefaultFeeBps,
	}, logger)
	require.NoError(t, err)
	require.NotNil(t, provider)

	receiver := common.HexToAddress("0x1111111111111111111111111111111111111111")
	token := common.HexToAddress("0xFF34B3d4Aee8ddCd6F9AFFFB6Fe49bD371b8a357")

	t.Run("LoanFee", func(t *testing.T) {
		amount, _ := new(big.Int).SetString("10000000000000000000", 10) // 10 DAI

		fee := provider.LoanFee(amount)
		// Fee should be 0.09% of 10 DAI
		assert.Equal(t, "9000000000000000", fee.String())
	})

	t.Run("ExecuteFlashLoan", func(t *testing.T) {
		tx, err := provider.ExecuteFlashLoan(context.Background(), flashloan.FlashLoanParams{
			Receiver: receiver,
			Token:    token,
			Amount:   big.NewInt(1000),
			Data:     []byte{0xca, 0xfe},
		})
		require.NoError(t, err)
		require.NotNil(t, tx)
		assert.Equal(t, SepoliaPool, submitter.to)

		method, err := provider.abi.MethodById(submitter.data[:4])
		require.NoError(t, err)
		assert.Equal(t, "flashLoanSimple", method.Name)

		args := make(map[string]interface{})
		require.NoError(t, method.Inputs.UnpackIntoMap(args, submitter.data[4:]))
		assert.Equal(t, receiver, args["receiverAddress"])
		assert.Equal(t, token, args["asset"])
		assert.Equal(t, int64(1000), args["amount"].(*big.Int).Int64())
		assert.Equal(t, []byte{0xca, 0xfe}, args["params"])
		assert.Equal(t, uint16(0), args["referralCode"])

		assert.Equal(t, 1.0, testutil.ToFloat64(provider.metrics.loanCount))
	})

	t.Run("InvalidAmount", func(t *testing.T) {
		_, err := provider.ExecuteFlashLoan(context.Background(), flashloan.FlashLoanParams{
			Receiver: receiver,
			Token:    token,
			Amount:   big.NewInt(0),
		})
		assert.Error(t, err)
	})

	t.Run("SubmitError", func(t *testing.T) {
		failing, err := NewAaveProvider(&mockSubmitter{err: errors.New("nonce too low")}, flashloan.ProviderConfig{PoolAddress: SepoliaPool}, logger)
		require.NoError(t, err)

		_, err = failing.ExecuteFlashLoan(context.Background(), flashloan.FlashLoanParams{
			Receiver: receiver,
			Token:    token,
			Amount:   big.NewInt(1),
		})
		assert.ErrorContains(t, err, "nonce too low")
		assert.Equal(t, 1.0, testutil.ToFloat64(failing.metrics.errors))
	})

	t.Run("MissingPool", func(t *testing.T) {
		_, err := NewAaveProvider(submitter, flashloan.ProviderConfig{}, logger)
		assert.Error(t, err)
	})
}
