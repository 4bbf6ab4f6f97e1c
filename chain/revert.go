package chain

import (
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/rpc"
)

const revertPrefix = "execution reverted: "

// RevertError is a contract call or transaction that reverted.
type RevertError struct {
	Reason string
	TxHash common.Hash
	Err    error
}

func (e *RevertError) Error() string {
	msg := "execution reverted"
	if e.TxHash != (common.Hash{}) {
		msg = fmt.Sprintf("transaction %s reverted", e.TxHash.Hex())
	}
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	return msg
}

func (e *RevertError) Unwrap() error {
	return e.Err
}

// RevertReason extracts a human-readable revert reason from err. It looks at
// a wrapped *RevertError, then at JSON-RPC error data carrying an
// Error(string) payload, then at the node's error message.
func RevertReason(err error) (string, bool) {
	if err == nil {
		return "", false
	}

	var rerr *RevertError
	if errors.As(err, &rerr) && rerr.Reason != "" {
		return rerr.Reason, true
	}

	var derr rpc.DataError
	if errors.As(err, &derr) {
		if reason, ok := decodeRevertData(derr.ErrorData()); ok {
			return reason, true
		}
	}

	msg := err.Error()
	if i := strings.Index(msg, revertPrefix); i >= 0 {
		reason := strings.TrimSpace(msg[i+len(revertPrefix):])
		if reason != "" {
			return reason, true
		}
	}
	return "", false
}

func decodeRevertData(data interface{}) (string, bool) {
	var raw []byte
	switch v := data.(type) {
	case string:
		b, err := hexutil.Decode(v)
		if err != nil {
			return "", false
		}
		raw = b
	case []byte:
		raw = v
	default:
		return "", false
	}

	reason, err := abi.UnpackRevert(raw)
	if err != nil {
		return "", false
	}
	return reason, true
}

// wrapRevert converts node errors that carry revert information into a
// *RevertError and returns other errors unchanged.
func wrapRevert(err error, hash common.Hash) error {
	reason, ok := RevertReason(err)
	if !ok {
		return err
	}
	var rerr *RevertError
	if errors.As(err, &rerr) {
		return err
	}
	return &RevertError{Reason: reason, TxHash: hash, Err: err}
}
