package check

import (
	"context"
	"fmt"
	"math/big"

	"github.com/compose-network/soulbound-harness/configs"
	"github.com/compose-network/soulbound-harness/internal/chain"
	"github.com/compose-network/soulbound-harness/internal/contracts"
	"github.com/compose-network/soulbound-harness/internal/proxy"
	"github.com/compose-network/soulbound-harness/internal/token"
	"github.com/ethereum/go-ethereum/common"
)

// NetworkFixture deploys real proxies on the configured chain. The first account deploys
// and owns every proxy.
type NetworkFixture struct {
	client   chain.Client
	accounts []chain.Account
	settings configs.Deployment

	implementation contracts.Artifact
	upgrade        contracts.Artifact
	proxy          contracts.Artifact

	tokenOptions token.Options
	deployer     *proxy.Deployer
}

var _ Fixture = (*NetworkFixture)(nil)

func NewNetworkFixture(ctx context.Context, cfg configs.Config, client chain.Client, artifacts *contracts.Set) (*NetworkFixture, error) {
	name, network, err := cfg.Selected()
	if err != nil {
		return nil, err
	}

	chainID, err := chain.CheckChainID(ctx, client, network.ChainID)
	if err != nil {
		return nil, err
	}

	accounts, err := chain.ParseAccounts(network.SignerKeys())
	if err != nil {
		return nil, fmt.Errorf("networks.%s.accounts: %w", name, err)
	}
	if len(accounts) < 3 {
		return nil, fmt.Errorf("%w, got %d", ErrNotEnoughAccounts, len(accounts))
	}

	settings := cfg.Deployment
	f := &NetworkFixture{
		client:   client,
		accounts: accounts,
		settings: settings,
		tokenOptions: token.Options{
			ChainID:      chainID,
			GasLimit:     settings.GasLimit,
			PollInterval: settings.PollInterval,
		},
	}

	if f.implementation, err = artifacts.Get(settings.Contract); err != nil {
		return nil, err
	}
	if f.upgrade, err = artifacts.Get(settings.UpgradeContract); err != nil {
		return nil, err
	}
	if f.proxy, err = artifacts.Get(settings.ProxyContract); err != nil {
		return nil, err
	}

	f.deployer = proxy.NewDeployer(client, accounts[0], proxy.Options{
		ChainID:      new(big.Int).Set(chainID),
		GasLimit:     settings.GasLimit,
		PollInterval: settings.PollInterval,
	})

	return f, nil
}

func (f *NetworkFixture) Accounts() []chain.Account {
	return f.accounts
}

func (f *NetworkFixture) DeployV1(ctx context.Context) (token.Token, error) {
	deployment, err := f.deployer.Deploy(ctx, f.settings.Kind, f.implementation, f.proxy, f.settings.Initializer)
	if err != nil {
		return nil, err
	}

	return token.NewV1(deployment.Proxy, f.client, f.tokenOptions)
}

func (f *NetworkFixture) UpgradeToV2(ctx context.Context, proxyAddress common.Address) (token.Token, error) {
	upgrade, err := f.deployer.Upgrade(ctx, proxyAddress, f.upgrade, nil)
	if err != nil {
		return nil, err
	}

	return token.NewV2(upgrade.Proxy, f.client, f.tokenOptions)
}
