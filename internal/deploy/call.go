package deploy

import (
	"errors"
	"fmt"
	"math/big"
	"strconv"
	"strings"

	"github.com/compose-network/soulbound-harness/internal/proxy"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

var ErrUnsupportedArgument = errors.New("unsupported argument type")

// ParseCall turns a method name and its textual arguments into a call on contract. Only the
// scalar types the token exposes are accepted: address, bool, string and (u)int widths that
// fit *big.Int.
func ParseCall(contract abi.ABI, method string, raw []string) (*proxy.Call, error) {
	m, ok := contract.Methods[method]
	if !ok {
		return nil, fmt.Errorf("method %s not found in ABI", method)
	}
	if len(raw) != len(m.Inputs) {
		return nil, fmt.Errorf("method %s takes %d argument(s), got %d", method, len(m.Inputs), len(raw))
	}

	args := make([]any, 0, len(raw))
	for i, input := range m.Inputs {
		value, err := parseArgument(input.Type, raw[i])
		if err != nil {
			return nil, fmt.Errorf("argument %d of %s: %w", i, method, err)
		}
		args = append(args, value)
	}

	return &proxy.Call{Method: method, Args: args}, nil
}

func parseArgument(typ abi.Type, raw string) (any, error) {
	switch typ.T {
	case abi.AddressTy:
		if !common.IsHexAddress(raw) {
			return nil, fmt.Errorf("invalid address %q", raw)
		}
		return common.HexToAddress(raw), nil
	case abi.BoolTy:
		return strconv.ParseBool(raw)
	case abi.StringTy:
		return raw, nil
	case abi.UintTy, abi.IntTy:
		if typ.Size <= 64 {
			break
		}
		value, ok := new(big.Int).SetString(strings.TrimSpace(raw), 0)
		if !ok {
			return nil, fmt.Errorf("invalid integer %q", raw)
		}
		if typ.T == abi.UintTy && value.Sign() < 0 {
			return nil, fmt.Errorf("negative value %q for %s", raw, typ.String())
		}
		return value, nil
	}

	return nil, fmt.Errorf("%w: %s", ErrUnsupportedArgument, typ.String())
}
