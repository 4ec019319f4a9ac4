// Package chaintest provides a funded simulated chain and tiny hand-assembled contracts
// for tests that exercise the RPC paths without compiled Solidity.
package chaintest

import (
	"context"
	"encoding/binary"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/compose-network/soulbound-harness/internal/chain"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient/simulated"
	"github.com/ethereum/go-ethereum/params"
	"github.com/stretchr/testify/require"
)

// ChainID is the chain id of the simulated backend.
const ChainID = 1337

// anvil's first development keys
var devKeys = []string{
	"0xac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80",
	"0x59c6995e998f97a5a0044966f0945389dc9e86dae88c7a8412f4603b6b78690d",
	"0x5de4111afa1a4b94908f83103eb1f1706367c2e68ca870fc3fb9a804cdab365a",
}

// Accounts returns three funded development signers: owner, first user, second user.
func Accounts(t testing.TB) []chain.Account {
	t.Helper()

	accounts, err := chain.ParseAccounts(devKeys)
	require.NoError(t, err)
	return accounts
}

// Keys returns the private keys behind Accounts.
func Keys() []string {
	return append([]string(nil), devKeys...)
}

// NewBackend starts a simulated chain funding every account with 100 ether. Extra genesis
// entries (contracts, storage) can be passed in alloc.
func NewBackend(t testing.TB, accounts []chain.Account, alloc types.GenesisAlloc) *simulated.Backend {
	t.Helper()

	genesis := types.GenesisAlloc{}
	for address, account := range alloc {
		genesis[address] = account
	}
	for _, account := range accounts {
		genesis[account.Address] = types.Account{Balance: new(big.Int).Mul(big.NewInt(100), big.NewInt(params.Ether))}
	}

	backend := simulated.NewBackend(genesis)
	t.Cleanup(func() { _ = backend.Close() })

	return backend
}

// AutoCommit mines a block every interval until the test ends, standing in for a node with
// a block time.
func AutoCommit(t testing.TB, backend *simulated.Backend, interval time.Duration) {
	t.Helper()

	var (
		stop = make(chan struct{})
		wg   sync.WaitGroup
	)

	wg.Add(1)
	go func() {
		defer wg.Done()

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				backend.Commit()
			}
		}
	}()

	t.Cleanup(func() {
		close(stop)
		wg.Wait()
	})
}

// Deploy sends initCode from account, mines it and returns the contract address.
func Deploy(t testing.TB, backend *simulated.Backend, account chain.Account, initCode []byte) common.Address {
	t.Helper()

	ctx := context.Background()
	opts, err := chain.Transactor(ctx, big.NewInt(ChainID), account, 0)
	require.NoError(t, err)

	address, tx, _, err := bind.DeployContract(opts, abi.ABI{}, initCode, backend.Client())
	require.NoError(t, err)
	backend.Commit()

	receipt, err := backend.Client().TransactionReceipt(ctx, tx.Hash())
	require.NoError(t, err)
	require.Equal(t, types.ReceiptStatusSuccessful, receipt.Status)

	return address
}

// InitCode wraps runtime in constructor code that returns it unchanged.
func InitCode(runtime []byte) []byte {
	// PUSH2 len DUP1 PUSH1 12 PUSH1 0 CODECOPY PUSH1 0 RETURN
	header := []byte{0x61, 0, 0, 0x80, 0x60, 0x0c, 0x60, 0x00, 0x39, 0x60, 0x00, 0xf3}
	binary.BigEndian.PutUint16(header[1:3], uint16(len(runtime)))
	return append(header, runtime...)
}

// ReturningRuntime answers every call with output.
func ReturningRuntime(output []byte) []byte {
	return constantRuntime(output, 0xf3)
}

// RevertingRuntime rejects every call with data as revert payload.
func RevertingRuntime(data []byte) []byte {
	return constantRuntime(data, 0xfd)
}

// StopRuntime accepts every call and returns nothing.
func StopRuntime() []byte {
	return []byte{0x00}
}

// PUSH2 len PUSH1 14 PUSH1 0 CODECOPY PUSH2 len PUSH1 0 RETURN|REVERT <payload>
func constantRuntime(payload []byte, terminator byte) []byte {
	code := []byte{0x61, 0, 0, 0x60, 0x0e, 0x60, 0x00, 0x39, 0x61, 0, 0, 0x60, 0x00, terminator}
	binary.BigEndian.PutUint16(code[1:3], uint16(len(payload)))
	binary.BigEndian.PutUint16(code[9:11], uint16(len(payload)))
	return append(code, payload...)
}

// ErrorData encodes reason the way Solidity's require does: Error(string).
func ErrorData(t testing.TB, reason string) []byte {
	t.Helper()

	stringType, err := abi.NewType("string", "", nil)
	require.NoError(t, err)

	encoded, err := abi.Arguments{{Type: stringType}}.Pack(reason)
	require.NoError(t, err)

	return append(common.FromHex("0x08c379a0"), encoded...)
}

// Encode ABI-encodes values of the given Solidity types.
func Encode(t testing.TB, typeNames []string, values ...any) []byte {
	t.Helper()

	args := make(abi.Arguments, 0, len(typeNames))
	for _, name := range typeNames {
		typ, err := abi.NewType(name, "", nil)
		require.NoError(t, err)
		args = append(args, abi.Argument{Type: typ})
	}

	encoded, err := args.Pack(values...)
	require.NoError(t, err)
	return encoded
}

// ProxyInitCode stands in for ERC1967Proxy: its constructor stores the first constructor
// argument (the implementation) in slot, and every later call stores the first calldata
// argument there, which is what upgradeTo and upgradeToAndCall carry. It never delegates.
func ProxyInitCode(slot common.Hash) []byte {
	// PUSH1 4 CALLDATALOAD PUSH32 slot SSTORE STOP
	runtime := append([]byte{0x60, 0x04, 0x35, 0x7f}, slot.Bytes()...)
	runtime = append(runtime, 0x55, 0x00)

	const headerLen = 58
	code := []byte{0x60, 0x20, 0x61, 0, 0, 0x60, 0x00, 0x39, 0x60, 0x00, 0x51, 0x7f}
	binary.BigEndian.PutUint16(code[3:5], uint16(headerLen+len(runtime)))
	code = append(code, slot.Bytes()...)
	code = append(code, 0x55, 0x61, 0, 0, 0x80, 0x61, 0, 0, 0x60, 0x00, 0x39, 0x60, 0x00, 0xf3)
	binary.BigEndian.PutUint16(code[46:48], uint16(len(runtime)))
	binary.BigEndian.PutUint16(code[50:52], headerLen)

	return append(code, runtime...)
}
