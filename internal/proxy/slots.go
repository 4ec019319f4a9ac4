package proxy

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// StorageReader reads raw contract storage; chain.Client satisfies it.
type StorageReader interface {
	StorageAt(ctx context.Context, account common.Address, key common.Hash, blockNumber *big.Int) ([]byte, error)
}

var (
	// ImplementationSlot is keccak256("eip1967.proxy.implementation") - 1.
	ImplementationSlot = common.HexToHash("0x360894a13ba1a3210667c828492db98dca3e2076cc3735a920a3ca505d382bbc")
	// AdminSlot is keccak256("eip1967.proxy.admin") - 1.
	AdminSlot = common.HexToHash("0xb53127684a568b3173ae13b9f8a6016e243e63b6e8ee1178d6a717850b5d6103")

	ErrNoImplementation = errors.New("proxy has no implementation")
)

// ImplementationAddress reads the logic contract a proxy currently delegates to.
func ImplementationAddress(ctx context.Context, client StorageReader, proxy common.Address) (common.Address, error) {
	address, err := readAddressSlot(ctx, client, proxy, ImplementationSlot)
	if err != nil {
		return common.Address{}, err
	}
	if address == (common.Address{}) {
		return common.Address{}, fmt.Errorf("%w: %s", ErrNoImplementation, proxy.Hex())
	}

	return address, nil
}

// AdminAddress reads the EIP-1967 admin slot. UUPS proxies leave it empty, so the zero
// address is a valid answer.
func AdminAddress(ctx context.Context, client StorageReader, proxy common.Address) (common.Address, error) {
	return readAddressSlot(ctx, client, proxy, AdminSlot)
}

func readAddressSlot(ctx context.Context, client StorageReader, proxy common.Address, slot common.Hash) (common.Address, error) {
	value, err := client.StorageAt(ctx, proxy, slot, nil)
	if err != nil {
		return common.Address{}, fmt.Errorf("failed to read slot %s of %s: %w", slot.Hex(), proxy.Hex(), err)
	}

	return common.BytesToAddress(value), nil
}
