package deploy

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/compose-network/soulbound-harness/configs"
	"github.com/compose-network/soulbound-harness/internal/chain"
	"github.com/compose-network/soulbound-harness/internal/contracts"
	"github.com/compose-network/soulbound-harness/internal/explorer"
	"github.com/compose-network/soulbound-harness/internal/logger"
	"github.com/compose-network/soulbound-harness/internal/output"
	"github.com/compose-network/soulbound-harness/internal/proxy"
	"github.com/ethereum/go-ethereum/common"
)

var ErrVerificationDisabled = errors.New("verification is not configured")

// Service runs deployments of the token proxy against one network
type Service struct {
	cfg       configs.Config
	name      configs.NetworkName
	network   configs.Network
	client    chain.Client
	artifacts *contracts.Set
	explorer  explorer.Explorer
	store     *output.Store
	now       func() time.Time
	logger    *slog.Logger
}

// NewService wires a service for the selected network. api may be nil, in which case
// verification is skipped.
func NewService(cfg configs.Config, client chain.Client, artifacts *contracts.Set, api explorer.Explorer) (*Service, error) {
	name, network, err := cfg.Selected()
	if err != nil {
		return nil, err
	}

	return &Service{
		cfg:       cfg,
		name:      name,
		network:   network,
		client:    client,
		artifacts: artifacts,
		explorer:  api,
		store:     output.NewStore(cfg.Deployment.RecordsDir),
		now:       time.Now,
		logger:    logger.Named("deploy").With("network", string(name)),
	}, nil
}

// Deploy puts the token behind a fresh UUPS proxy, waits for the proxy deployment to be
// buried, verifies it and writes the address module and the deployment record.
func (s *Service) Deploy(ctx context.Context) (*output.Record, error) {
	settings := s.cfg.Deployment

	impl, err := s.artifacts.Get(settings.Contract)
	if err != nil {
		return nil, err
	}
	proxyArtifact, err := s.artifacts.Get(settings.ProxyContract)
	if err != nil {
		return nil, err
	}

	chainID, deployer, err := s.signer(ctx)
	if err != nil {
		return nil, err
	}

	deployment, err := s.proxyDeployer(chainID, deployer).Deploy(ctx, settings.Kind, impl, proxyArtifact, settings.Initializer)
	if err != nil {
		return nil, err
	}

	confirmations := s.cfg.Confirmations(s.network)
	s.logger.With("confirmations", confirmations).Info("waiting for block confirmations")
	receipt, err := chain.NewWaiter(s.client, settings.PollInterval).Wait(ctx, deployment.ProxyTx, confirmations)
	if err != nil {
		return nil, fmt.Errorf("failed to wait for proxy deployment: %w", err)
	}

	s.logger.Info(fmt.Sprintf("Contract NFT token deployed to %s on %s", deployment.Proxy.Hex(), s.name))

	verified, err := s.verify(ctx, deployment.Proxy, impl)
	if err != nil {
		return nil, err
	}

	if err := output.WriteAddressModule(settings.OutputFile, settings.ExportName, deployment.Proxy); err != nil {
		return nil, err
	}

	record := output.Record{
		Network:        string(s.name),
		ChainID:        chainID.Int64(),
		Contract:       impl.Name,
		Kind:           settings.Kind,
		Proxy:          deployment.Proxy,
		Implementation: deployment.Implementation,
		Deployer:       deployer.Address,
		TxHash:         deployment.ProxyTx.Hash(),
		Block:          receipt.BlockNumber.Uint64(),
		Confirmations:  confirmations,
		Verified:       verified,
		DeployedAt:     s.now().UTC(),
		ABI:            output.SingleQuotedString(output.CompactJSON(impl.RawABI)),
	}

	if _, err := s.store.Save(record); err != nil {
		return nil, err
	}

	return &record, nil
}

// Upgrade points the recorded proxy of the network at a fresh deployment of the upgrade
// contract. call, when set, runs on the new implementation in the upgrade transaction.
func (s *Service) Upgrade(ctx context.Context, call *proxy.Call) (*output.Record, error) {
	previous, err := s.store.Load(string(s.name))
	if err != nil {
		return nil, err
	}

	newImpl, err := s.artifacts.Get(s.cfg.Deployment.UpgradeContract)
	if err != nil {
		return nil, err
	}

	chainID, deployer, err := s.signer(ctx)
	if err != nil {
		return nil, err
	}

	upgrade, err := s.proxyDeployer(chainID, deployer).Upgrade(ctx, previous.Proxy, newImpl, call)
	if err != nil {
		return nil, err
	}

	confirmations := s.cfg.Confirmations(s.network)
	receipt, err := chain.NewWaiter(s.client, s.cfg.Deployment.PollInterval).Wait(ctx, upgrade.UpgradeTx, confirmations)
	if err != nil {
		return nil, fmt.Errorf("failed to wait for upgrade: %w", err)
	}

	s.logger.
		With("proxy", upgrade.Proxy.Hex()).
		With("implementation", upgrade.Implementation.Hex()).
		Info(fmt.Sprintf("Contract NFT token upgraded to %s on %s", newImpl.Name, s.name))

	verified, err := s.verify(ctx, upgrade.Proxy, newImpl)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	record := previous
	record.Upgrades = append(append([]output.Upgrade(nil), previous.Upgrades...), output.Upgrade{
		Contract:       previous.Contract,
		Implementation: previous.Implementation,
		TxHash:         previous.TxHash,
		UpgradedAt:     now,
	})
	record.Contract = newImpl.Name
	record.Implementation = upgrade.Implementation
	record.TxHash = upgrade.UpgradeTx.Hash()
	record.Block = receipt.BlockNumber.Uint64()
	record.Confirmations = confirmations
	record.Verified = verified
	record.DeployedAt = now
	record.ABI = output.SingleQuotedString(output.CompactJSON(newImpl.RawABI))

	if _, err := s.store.Save(record); err != nil {
		return nil, err
	}

	return &record, nil
}

// Verify verifies the proxy at address, or the recorded proxy of the network when address is nil.
func (s *Service) Verify(ctx context.Context, address *common.Address) error {
	if s.explorer == nil {
		return ErrVerificationDisabled
	}

	contractName := s.cfg.Deployment.Contract
	if address == nil {
		record, err := s.store.Load(string(s.name))
		if err != nil {
			return err
		}
		address = &record.Proxy
		contractName = record.Contract
	}

	artifact, err := s.artifacts.Get(contractName)
	if err != nil {
		return err
	}

	return explorer.NewVerifier(s.explorer, s.client, s.cfg.Etherscan.BrowserURL).Verify(ctx, *address, artifact)
}

// Implementation returns the implementation behind the proxy at address, or behind the
// recorded proxy when address is nil.
func (s *Service) Implementation(ctx context.Context, address *common.Address) (common.Address, error) {
	if address == nil {
		record, err := s.store.Load(string(s.name))
		if err != nil {
			return common.Address{}, err
		}
		address = &record.Proxy
	}

	return proxy.ImplementationAddress(ctx, s.client, *address)
}

func (s *Service) verify(ctx context.Context, proxyAddress common.Address, artifact contracts.Artifact) (bool, error) {
	if !s.cfg.Deployment.Verify || s.explorer == nil {
		s.logger.Warn("contract verification skipped: disabled or no explorer API key")
		return false, nil
	}

	s.logger.Info("Verifying contract on Polygonscan...")
	if err := explorer.NewVerifier(s.explorer, s.client, s.cfg.Etherscan.BrowserURL).Verify(ctx, proxyAddress, artifact); err != nil {
		return false, err
	}

	return true, nil
}

func (s *Service) signer(ctx context.Context) (*big.Int, chain.Account, error) {
	chainID, err := chain.CheckChainID(ctx, s.client, s.network.ChainID)
	if err != nil {
		return nil, chain.Account{}, err
	}

	keys := s.network.SignerKeys()
	if len(keys) == 0 {
		return nil, chain.Account{}, fmt.Errorf("networks.%s.accounts has no signer", s.name)
	}

	deployer, err := chain.ParseAccount(keys[0])
	if err != nil {
		return nil, chain.Account{}, fmt.Errorf("networks.%s.accounts[0]: %w", s.name, err)
	}

	return chainID, deployer, nil
}

func (s *Service) proxyDeployer(chainID *big.Int, deployer chain.Account) *proxy.Deployer {
	return proxy.NewDeployer(s.client, deployer, proxy.Options{
		ChainID:      chainID,
		GasLimit:     s.cfg.Deployment.GasLimit,
		PollInterval: s.cfg.Deployment.PollInterval,
	})
}
