package token

import (
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/rpc"
)

const revertedPrefix = "execution reverted"

// RevertError is a call or transaction the contract rejected.
type RevertError struct {
	Method string
	Reason string
	Err    error
}

func (e *RevertError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("%s reverted: %s", e.Method, e.Reason)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s reverted: %v", e.Method, e.Err)
	}
	return e.Method + " reverted"
}

func (e *RevertError) Unwrap() error {
	return e.Err
}

// RevertReason extracts the Error(string) message carried by err. The second result is
// false when err holds no decodable reason.
func RevertReason(err error) (string, bool) {
	if err == nil {
		return "", false
	}

	var revertErr *RevertError
	if errors.As(err, &revertErr) && revertErr.Reason != "" {
		return revertErr.Reason, true
	}

	var dataErr rpc.DataError
	if errors.As(err, &dataErr) {
		if reason, ok := unpackRevertData(dataErr.ErrorData()); ok {
			return reason, true
		}
	}

	message := err.Error()
	if idx := strings.Index(message, revertedPrefix+": "); idx >= 0 {
		return message[idx+len(revertedPrefix)+2:], true
	}

	return "", false
}

// IsRevert reports whether err comes from the EVM rejecting a call, with or without a reason.
func IsRevert(err error) bool {
	if err == nil {
		return false
	}

	var revertErr *RevertError
	if errors.As(err, &revertErr) {
		return true
	}

	return strings.Contains(err.Error(), revertedPrefix)
}

func unpackRevertData(data any) (string, bool) {
	var raw []byte
	switch value := data.(type) {
	case string:
		raw = common.FromHex(value)
	case []byte:
		raw = value
	default:
		return "", false
	}

	reason, err := abi.UnpackRevert(raw)
	if err != nil {
		return "", false
	}
	return reason, true
}

func newRevertError(method string, err error) error {
	if !IsRevert(err) {
		return err
	}

	reason, _ := RevertReason(err)
	return &RevertError{Method: method, Reason: reason, Err: err}
}
