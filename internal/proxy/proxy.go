package proxy

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"time"

	"github.com/compose-network/soulbound-harness/configs"
	"github.com/compose-network/soulbound-harness/internal/chain"
	"github.com/compose-network/soulbound-harness/internal/contracts"
	"github.com/compose-network/soulbound-harness/internal/logger"
	"github.com/compose-network/soulbound-harness/internal/token"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

var (
	ErrUnsupportedKind = errors.New("unsupported proxy kind")
	ErrNotUUPS         = errors.New("implementation is not UUPS compatible")
	ErrNotDeployable   = errors.New("artifact has no creation bytecode")
	ErrUpgradeMismatch = errors.New("proxy does not point at the new implementation")
)

const uupsABI = `[
{"inputs":[],"name":"proxiableUUID","outputs":[{"internalType":"bytes32","name":"","type":"bytes32"}],"stateMutability":"view","type":"function"},
{"inputs":[{"internalType":"address","name":"newImplementation","type":"address"}],"name":"upgradeTo","outputs":[],"stateMutability":"nonpayable","type":"function"},
{"inputs":[{"internalType":"address","name":"newImplementation","type":"address"},{"internalType":"bytes","name":"data","type":"bytes"}],"name":"upgradeToAndCall","outputs":[],"stateMutability":"payable","type":"function"}
]`

var parsedUUPS = mustParse(uupsABI)

type (
	// Deployment is a proxy and the implementation it was initialised with.
	Deployment struct {
		Proxy            common.Address
		Implementation   common.Address
		ProxyTx          *types.Transaction
		ImplementationTx *types.Transaction
	}

	// Upgrade is the outcome of pointing a proxy at a new implementation.
	Upgrade struct {
		Proxy            common.Address
		Implementation   common.Address
		ImplementationTx *types.Transaction
		UpgradeTx        *types.Transaction
	}

	// Call is a function invoked on the new implementation during an upgrade.
	Call struct {
		Method string
		Args   []any
	}

	Options struct {
		ChainID      *big.Int
		GasLimit     uint64
		PollInterval time.Duration
	}

	// Deployer deploys and upgrades UUPS proxies from one signer
	Deployer struct {
		client   chain.Client
		account  chain.Account
		chainID  *big.Int
		gasLimit uint64
		waiter   *chain.Waiter
		logger   *slog.Logger
	}
)

// NewDeployer creates a deployer signing with account
func NewDeployer(client chain.Client, account chain.Account, opts Options) *Deployer {
	return &Deployer{
		client:   client,
		account:  account,
		chainID:  opts.ChainID,
		gasLimit: opts.GasLimit,
		waiter:   chain.NewWaiter(client, opts.PollInterval),
		logger:   logger.Named("proxy_deployer").With("deployer", account.Address.Hex()),
	}
}

// Deploy deploys impl, then an ERC1967 proxy pointing at it whose constructor calls
// initializer(args...). Both transactions are mined when it returns.
func (d *Deployer) Deploy(ctx context.Context, kind string, impl, proxy contracts.Artifact, initializer string, args ...any) (*Deployment, error) {
	if kind != configs.KindUUPS {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedKind, kind)
	}

	initData, err := impl.ABI.Pack(initializer, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s.%s: %w", impl.Name, initializer, err)
	}

	implAddress, implTx, err := d.deployContract(ctx, impl)
	if err != nil {
		return nil, fmt.Errorf("failed to deploy implementation %s: %w", impl.Name, err)
	}

	if err := CheckUUPS(ctx, d.client, implAddress); err != nil {
		return nil, err
	}

	proxyAddress, proxyTx, err := d.deployContract(ctx, proxy, implAddress, initData)
	if err != nil {
		return nil, fmt.Errorf("failed to deploy proxy %s: %w", proxy.Name, err)
	}

	d.logger.
		With("proxy", proxyAddress.Hex()).
		With("implementation", implAddress.Hex()).
		Info("proxy deployed")

	return &Deployment{
		Proxy:            proxyAddress,
		Implementation:   implAddress,
		ProxyTx:          proxyTx,
		ImplementationTx: implTx,
	}, nil
}

// Upgrade deploys newImpl and points proxyAddress at it, optionally calling into the new
// implementation in the same transaction.
func (d *Deployer) Upgrade(ctx context.Context, proxyAddress common.Address, newImpl contracts.Artifact, call *Call) (*Upgrade, error) {
	current, err := ImplementationAddress(ctx, d.client, proxyAddress)
	if err != nil {
		return nil, err
	}

	implAddress, implTx, err := d.deployContract(ctx, newImpl)
	if err != nil {
		return nil, fmt.Errorf("failed to deploy implementation %s: %w", newImpl.Name, err)
	}

	if err := CheckUUPS(ctx, d.client, implAddress); err != nil {
		return nil, err
	}

	method := "upgradeTo"
	params := []any{implAddress}
	if call != nil {
		callData, err := newImpl.ABI.Pack(call.Method, call.Args...)
		if err != nil {
			return nil, fmt.Errorf("failed to encode %s.%s: %w", newImpl.Name, call.Method, err)
		}
		method = "upgradeToAndCall"
		params = append(params, callData)
	}

	data, err := parsedUUPS.Pack(method, params...)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s: %w", method, err)
	}

	msg := ethereum.CallMsg{From: d.account.Address, To: &proxyAddress, Data: data}
	if _, err := d.client.CallContract(ctx, msg, nil); err != nil {
		reason, _ := token.RevertReason(err)
		return nil, &token.RevertError{Method: method, Reason: reason, Err: err}
	}

	opts, err := chain.Transactor(ctx, d.chainID, d.account, d.gasLimit)
	if err != nil {
		return nil, err
	}

	bound := bind.NewBoundContract(proxyAddress, parsedUUPS, d.client, d.client, d.client)
	tx, err := bound.RawTransact(opts, data)
	if err != nil {
		return nil, fmt.Errorf("failed to send %s: %w", method, err)
	}

	if _, err := d.waiter.Wait(ctx, tx, 1); err != nil {
		return nil, fmt.Errorf("%s failed: %w", method, err)
	}

	got, err := ImplementationAddress(ctx, d.client, proxyAddress)
	if err != nil {
		return nil, err
	}
	if got != implAddress {
		return nil, fmt.Errorf("%w: expected %s, slot holds %s", ErrUpgradeMismatch, implAddress.Hex(), got.Hex())
	}

	d.logger.
		With("proxy", proxyAddress.Hex()).
		With("from", current.Hex()).
		With("to", implAddress.Hex()).
		Info("proxy upgraded")

	return &Upgrade{
		Proxy:            proxyAddress,
		Implementation:   implAddress,
		ImplementationTx: implTx,
		UpgradeTx:        tx,
	}, nil
}

// CheckUUPS fails unless impl has code and answers proxiableUUID() with the EIP-1967
// implementation slot.
func CheckUUPS(ctx context.Context, client chain.Client, impl common.Address) error {
	code, err := client.CodeAt(ctx, impl, nil)
	if err != nil {
		return fmt.Errorf("failed to get code of %s: %w", impl.Hex(), err)
	}
	if len(code) == 0 {
		return fmt.Errorf("%w: no code at %s", ErrNotUUPS, impl.Hex())
	}

	data, err := parsedUUPS.Pack("proxiableUUID")
	if err != nil {
		return err
	}

	out, err := client.CallContract(ctx, ethereum.CallMsg{To: &impl, Data: data}, nil)
	if err != nil {
		return fmt.Errorf("%w: proxiableUUID() failed on %s: %v", ErrNotUUPS, impl.Hex(), err)
	}

	if !bytes.Equal(out, ImplementationSlot.Bytes()) {
		return fmt.Errorf("%w: proxiableUUID() of %s returned 0x%x", ErrNotUUPS, impl.Hex(), out)
	}

	return nil
}

func (d *Deployer) deployContract(ctx context.Context, artifact contracts.Artifact, constructorArgs ...any) (common.Address, *types.Transaction, error) {
	if !artifact.Deployable() {
		return common.Address{}, nil, fmt.Errorf("%w: %s", ErrNotDeployable, artifact.Name)
	}

	opts, err := chain.Transactor(ctx, d.chainID, d.account, d.gasLimit)
	if err != nil {
		return common.Address{}, nil, err
	}

	address, tx, _, err := bind.DeployContract(opts, artifact.ABI, artifact.Bytecode, d.client, constructorArgs...)
	if err != nil {
		return common.Address{}, nil, fmt.Errorf("failed to deploy contract: %w", err)
	}

	d.logger.
		With("contract", artifact.Name).
		With("address", address.Hex()).
		With("tx_hash", tx.Hash().Hex()).
		Info("contract deployment transaction sent")

	if _, err := d.waiter.Wait(ctx, tx, 1); err != nil {
		return common.Address{}, nil, err
	}

	return address, tx, nil
}

func mustParse(raw string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(raw))
	if err != nil {
		panic(err)
	}
	return parsed
}
