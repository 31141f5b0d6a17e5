package ledger

import (
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

type dataError interface {
	error
	ErrorData() interface{}
}

// DecodeRevertData turns revert return data into a readable reason.
func DecodeRevertData(data []byte) string {
	if len(data) == 0 {
		return ""
	}
	if reason, err := abi.UnpackRevert(data); err == nil {
		return reason
	}
	if len(data) >= 4 {
		return fmt.Sprintf("custom error %s", common.Bytes2Hex(data[:4]))
	}
	return ""
}

// RevertReason extracts the decoded reason from an RPC error carrying revert data.
func RevertReason(err error) string {
	var de dataError
	if !errors.As(err, &de) {
		return ""
	}
	switch v := de.ErrorData().(type) {
	case string:
		return DecodeRevertData(common.FromHex(v))
	case []byte:
		return DecodeRevertData(v)
	default:
		return ""
	}
}

type revertError struct {
	cause  error
	reason string
}

func (e *revertError) Error() string { return fmt.Sprintf("%v: %s", e.cause, e.reason) }

func (e *revertError) Unwrap() error { return e.cause }

func withRevertReason(err error) error {
	reason := RevertReason(err)
	if reason == "" || strings.Contains(err.Error(), reason) {
		return err
	}
	return &revertError{cause: err, reason: reason}
}
