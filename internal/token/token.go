package token

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/compose-network/soulbound-harness/internal/chain"
	"github.com/compose-network/soulbound-harness/internal/logger"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// ErrMethodNotFound is returned when the bound ABI has no such function, e.g. calling
// sayHi2 through a V1 binding.
var ErrMethodNotFound = errors.New("method not found in contract ABI")

// Token is the soulbound NFT as the behaviour suite sees it. Transactions return once
// mined and fail with a *RevertError when the contract rejects them.
type Token interface {
	Address() common.Address

	Initialize(ctx context.Context, from chain.Account) error
	AddAdmin(ctx context.Context, from chain.Account, admin common.Address) error
	DisableAdmin(ctx context.Context, from chain.Account, admin common.Address) error
	Mint(ctx context.Context, from chain.Account, to common.Address, uri string) error
	Burn(ctx context.Context, from chain.Account, tokenID *big.Int) error
	TransferFrom(ctx context.Context, from chain.Account, src, dst common.Address, tokenID *big.Int) error

	Owner(ctx context.Context) (common.Address, error)
	Admins(ctx context.Context, account common.Address) (bool, error)
	TokenURI(ctx context.Context, tokenID *big.Int) (string, error)
	OwnerOf(ctx context.Context, tokenID *big.Int) (common.Address, error)
	SayHi2(ctx context.Context) (string, error)
}

// Contract binds Token to a deployed proxy.
type Contract struct {
	address  common.Address
	abi      abi.ABI
	bound    *bind.BoundContract
	client   chain.Client
	chainID  *big.Int
	gasLimit uint64
	waiter   *chain.Waiter
	logger   *slog.Logger
}

var _ Token = (*Contract)(nil)

type Options struct {
	ChainID      *big.Int
	GasLimit     uint64
	PollInterval time.Duration
}

// NewV1 binds the V1 interface at address.
func NewV1(address common.Address, client chain.Client, opts Options) (*Contract, error) {
	return newContract(address, V1ABI, client, opts)
}

// NewV2 binds the upgraded interface at address.
func NewV2(address common.Address, client chain.Client, opts Options) (*Contract, error) {
	return newContract(address, V2ABI, client, opts)
}

func newContract(address common.Address, rawABI string, client chain.Client, opts Options) (*Contract, error) {
	parsed, err := parseABI(rawABI)
	if err != nil {
		return nil, err
	}

	return &Contract{
		address:  address,
		abi:      parsed,
		bound:    bind.NewBoundContract(address, parsed, client, client, client),
		client:   client,
		chainID:  opts.ChainID,
		gasLimit: opts.GasLimit,
		waiter:   chain.NewWaiter(client, opts.PollInterval),
		logger:   logger.Named("token").With("address", address.Hex()),
	}, nil
}

func (c *Contract) Address() common.Address {
	return c.address
}

func (c *Contract) Initialize(ctx context.Context, from chain.Account) error {
	return c.transact(ctx, from, methodInitialize)
}

func (c *Contract) AddAdmin(ctx context.Context, from chain.Account, admin common.Address) error {
	return c.transact(ctx, from, methodAddAdmin, admin)
}

func (c *Contract) DisableAdmin(ctx context.Context, from chain.Account, admin common.Address) error {
	return c.transact(ctx, from, methodDisableAdmin, admin)
}

func (c *Contract) Mint(ctx context.Context, from chain.Account, to common.Address, uri string) error {
	return c.transact(ctx, from, methodMint, to, uri)
}

func (c *Contract) Burn(ctx context.Context, from chain.Account, tokenID *big.Int) error {
	return c.transact(ctx, from, methodBurn, tokenID)
}

func (c *Contract) TransferFrom(ctx context.Context, from chain.Account, src, dst common.Address, tokenID *big.Int) error {
	return c.transact(ctx, from, methodTransferFrom, src, dst, tokenID)
}

func (c *Contract) Owner(ctx context.Context) (common.Address, error) {
	out, err := c.call(ctx, methodOwner)
	if err != nil {
		return common.Address{}, err
	}
	return *abi.ConvertType(out[0], new(common.Address)).(*common.Address), nil
}

func (c *Contract) Admins(ctx context.Context, account common.Address) (bool, error) {
	out, err := c.call(ctx, methodAdmins, account)
	if err != nil {
		return false, err
	}
	return *abi.ConvertType(out[0], new(bool)).(*bool), nil
}

func (c *Contract) TokenURI(ctx context.Context, tokenID *big.Int) (string, error) {
	out, err := c.call(ctx, methodTokenURI, tokenID)
	if err != nil {
		return "", err
	}
	return *abi.ConvertType(out[0], new(string)).(*string), nil
}

func (c *Contract) OwnerOf(ctx context.Context, tokenID *big.Int) (common.Address, error) {
	out, err := c.call(ctx, methodOwnerOf, tokenID)
	if err != nil {
		return common.Address{}, err
	}
	return *abi.ConvertType(out[0], new(common.Address)).(*common.Address), nil
}

func (c *Contract) SayHi2(ctx context.Context) (string, error) {
	out, err := c.call(ctx, methodSayHi2)
	if err != nil {
		return "", err
	}
	return *abi.ConvertType(out[0], new(string)).(*string), nil
}

func (c *Contract) method(name string) error {
	if _, ok := c.abi.Methods[name]; !ok {
		return fmt.Errorf("%w: %s", ErrMethodNotFound, name)
	}
	return nil
}

func (c *Contract) call(ctx context.Context, method string, args ...any) ([]any, error) {
	if err := c.method(method); err != nil {
		return nil, err
	}

	var out []any
	if err := c.bound.Call(&bind.CallOpts{Context: ctx}, &out, method, args...); err != nil {
		return nil, newRevertError(method, err)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%s returned no values", method)
	}

	return out, nil
}

// transact simulates the call first so a rejection surfaces with its revert reason
// instead of as a gas estimation failure, then sends it and waits for it to be mined.
func (c *Contract) transact(ctx context.Context, from chain.Account, method string, args ...any) error {
	if err := c.method(method); err != nil {
		return err
	}

	data, err := c.abi.Pack(method, args...)
	if err != nil {
		return fmt.Errorf("failed to pack %s: %w", method, err)
	}

	msg := ethereum.CallMsg{From: from.Address, To: &c.address, Data: data}
	if _, err := c.client.CallContract(ctx, msg, nil); err != nil {
		return newRevertError(method, err)
	}

	opts, err := chain.Transactor(ctx, c.chainID, from, c.gasLimit)
	if err != nil {
		return err
	}

	tx, err := c.bound.RawTransact(opts, data)
	if err != nil {
		return newRevertError(method, fmt.Errorf("failed to send %s: %w", method, err))
	}

	c.logger.
		With("method", method).
		With("from", from.Address.Hex()).
		With("tx_hash", tx.Hash().Hex()).
		Debug("transaction sent")

	receipt, err := c.waiter.Wait(ctx, tx, 1)
	if err != nil {
		if errors.Is(err, chain.ErrTransactionFailed) {
			return c.replay(ctx, method, msg, receipt, err)
		}
		return err
	}

	return nil
}

// replay re-runs a failed transaction against its parent block to recover the reason.
func (c *Contract) replay(ctx context.Context, method string, msg ethereum.CallMsg, receipt *types.Receipt, cause error) error {
	var block *big.Int
	if receipt != nil && receipt.BlockNumber != nil && receipt.BlockNumber.Sign() > 0 {
		block = new(big.Int).Sub(receipt.BlockNumber, big.NewInt(1))
	}

	if _, err := c.client.CallContract(ctx, msg, block); err != nil && IsRevert(err) {
		reason, _ := RevertReason(err)
		return &RevertError{Method: method, Reason: reason, Err: errors.Join(cause, err)}
	}

	return &RevertError{Method: method, Err: cause}
}
