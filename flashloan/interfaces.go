package flashloan

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// Provider defines the interface for flash loan providers
type Provider interface {
	// ExecuteFlashLoan submits the borrow call. The receiver performs the
	// trade and repayment inside the same transaction.
	ExecuteFlashLoan(ctx context.Context, params FlashLoanParams) (*types.Transaction, error)

	// LoanFee is the premium charged on amount
	LoanFee(amount *big.Int) *big.Int

	String() string
}

// Confirmer waits for a transaction to be mined.
type Confirmer interface {
	WaitMined(ctx context.Context, tx *types.Transaction) (*types.Receipt, error)
}

// FlashLoanParams contains parameters for executing a flash loan
type FlashLoanParams struct {
	Receiver     common.Address // Contract that receives the loan and runs the swaps
	Token        common.Address // Token to borrow
	Amount       *big.Int       // Amount to borrow
	Data         []byte         // Opaque params forwarded to the receiver
	ReferralCode uint16
}
