package proxy

import (
	"context"
	"math/big"
	"strings"
	"testing"
	"time"

	"github.com/compose-network/soulbound-harness/configs"
	"github.com/compose-network/soulbound-harness/internal/chain"
	"github.com/compose-network/soulbound-harness/internal/chain/chaintest"
	"github.com/compose-network/soulbound-harness/internal/contracts"
	"github.com/compose-network/soulbound-harness/internal/token"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient/simulated"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

type ProxySuite struct {
	suite.Suite

	backend  *simulated.Backend
	accounts []chain.Account
	deployer *Deployer

	v1, v2, plain, erc1967 contracts.Artifact
}

func TestProxySuite(t *testing.T) {
	suite.Run(t, new(ProxySuite))
}

func (s *ProxySuite) SetupTest() {
	t := s.T()

	s.accounts = chaintest.Accounts(t)
	s.backend = chaintest.NewBackend(t, s.accounts, nil)
	chaintest.AutoCommit(t, s.backend, 20*time.Millisecond)

	s.deployer = NewDeployer(s.backend.Client(), s.accounts[0], Options{
		ChainID:      big.NewInt(chaintest.ChainID),
		PollInterval: 10 * time.Millisecond,
	})

	uups := chaintest.InitCode(chaintest.ReturningRuntime(ImplementationSlot.Bytes()))
	s.v1 = s.artifact(contracts.ContractNameTestTokenV1, token.V1ABI, uups)
	s.v2 = s.artifact(contracts.ContractNameTestTokenV2, token.V2ABI, uups)
	s.plain = s.artifact("Plain", token.V1ABI, chaintest.InitCode(chaintest.StopRuntime()))
	s.erc1967 = s.artifact(contracts.ContractNameERC1967Proxy, chaintest.ERC1967ProxyABI, chaintest.ProxyInitCode(ImplementationSlot))
}

func (s *ProxySuite) artifact(name, rawABI string, bytecode []byte) contracts.Artifact {
	parsed, err := abi.JSON(strings.NewReader(rawABI))
	s.Require().NoError(err)

	return contracts.Artifact{Name: name, SourceName: "contracts/" + name + ".sol", ABI: parsed, RawABI: rawABI, Bytecode: bytecode}
}

func (s *ProxySuite) ctx() context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	s.T().Cleanup(cancel)
	return ctx
}

// =============================================================================
// Deploy
// =============================================================================

func (s *ProxySuite) TestDeploy() {
	s.Run("proxy points at the implementation", func() {
		ctx := s.ctx()
		deployment, err := s.deployer.Deploy(ctx, configs.KindUUPS, s.v1, s.erc1967, "initialize")
		s.Require().NoError(err)

		s.NotEqual(common.Address{}, deployment.Proxy)
		s.NotEqual(deployment.Proxy, deployment.Implementation)
		s.NotNil(deployment.ProxyTx)
		s.NotNil(deployment.ImplementationTx)

		impl, err := ImplementationAddress(ctx, s.backend.Client(), deployment.Proxy)
		s.Require().NoError(err)
		s.Equal(deployment.Implementation, impl)

		admin, err := AdminAddress(ctx, s.backend.Client(), deployment.Proxy)
		s.Require().NoError(err)
		s.Equal(common.Address{}, admin)
	})

	s.Run("only uups is supported", func() {
		_, err := s.deployer.Deploy(s.ctx(), "transparent", s.v1, s.erc1967, "initialize")
		s.ErrorIs(err, ErrUnsupportedKind)
	})

	s.Run("initializer must exist", func() {
		_, err := s.deployer.Deploy(s.ctx(), configs.KindUUPS, s.v1, s.erc1967, "reInitialize")
		s.ErrorContains(err, "failed to encode TestTokenV1.reInitialize")
	})

	s.Run("implementation must be UUPS", func() {
		_, err := s.deployer.Deploy(s.ctx(), configs.KindUUPS, s.plain, s.erc1967, "initialize")
		s.ErrorIs(err, ErrNotUUPS)
	})

	s.Run("artifact must carry bytecode", func() {
		empty := s.v1
		empty.Bytecode = nil
		_, err := s.deployer.Deploy(s.ctx(), configs.KindUUPS, empty, s.erc1967, "initialize")
		s.ErrorIs(err, ErrNotDeployable)
	})
}

// =============================================================================
// Upgrade
// =============================================================================

func (s *ProxySuite) TestUpgrade() {
	s.Run("upgradeTo moves the implementation slot", func() {
		ctx := s.ctx()
		deployment, err := s.deployer.Deploy(ctx, configs.KindUUPS, s.v1, s.erc1967, "initialize")
		s.Require().NoError(err)

		upgrade, err := s.deployer.Upgrade(ctx, deployment.Proxy, s.v2, nil)
		s.Require().NoError(err)
		s.NotEqual(deployment.Implementation, upgrade.Implementation)

		impl, err := ImplementationAddress(ctx, s.backend.Client(), deployment.Proxy)
		s.Require().NoError(err)
		s.Equal(upgrade.Implementation, impl)

		tx, _, err := s.backend.Client().TransactionByHash(ctx, upgrade.UpgradeTx.Hash())
		s.Require().NoError(err)
		s.Equal(parsedUUPS.Methods["upgradeTo"].ID, tx.Data()[:4])
	})

	s.Run("upgradeToAndCall carries the call", func() {
		ctx := s.ctx()
		deployment, err := s.deployer.Deploy(ctx, configs.KindUUPS, s.v1, s.erc1967, "initialize")
		s.Require().NoError(err)

		upgrade, err := s.deployer.Upgrade(ctx, deployment.Proxy, s.v2, &Call{Method: "initialize"})
		s.Require().NoError(err)

		tx, _, err := s.backend.Client().TransactionByHash(ctx, upgrade.UpgradeTx.Hash())
		s.Require().NoError(err)
		s.Equal(parsedUUPS.Methods["upgradeToAndCall"].ID, tx.Data()[:4])
	})

	s.Run("proxy without implementation", func() {
		_, err := s.deployer.Upgrade(s.ctx(), s.accounts[2].Address, s.v2, nil)
		s.ErrorIs(err, ErrNoImplementation)
	})

	s.Run("new implementation must be UUPS", func() {
		ctx := s.ctx()
		deployment, err := s.deployer.Deploy(ctx, configs.KindUUPS, s.v1, s.erc1967, "initialize")
		s.Require().NoError(err)

		_, err = s.deployer.Upgrade(ctx, deployment.Proxy, s.plain, nil)
		s.ErrorIs(err, ErrNotUUPS)
	})
}

func TestImplementationAddressFromGenesisStorage(t *testing.T) {
	accounts := chaintest.Accounts(t)
	proxyAddress := common.HexToAddress("0x00000000000000000000000000000000000000aa")
	implAddress := common.HexToAddress("0x00000000000000000000000000000000000000bb")

	backend := chaintest.NewBackend(t, accounts, types.GenesisAlloc{
		proxyAddress: {
			Code:    []byte{0x00},
			Balance: big.NewInt(0),
			Storage: map[common.Hash]common.Hash{
				ImplementationSlot: common.BytesToHash(implAddress.Bytes()),
				AdminSlot:          common.BytesToHash(accounts[0].Address.Bytes()),
			},
		},
	})
	ctx := context.Background()

	impl, err := ImplementationAddress(ctx, backend.Client(), proxyAddress)
	require.NoError(t, err)
	assert.Equal(t, implAddress, impl)

	admin, err := AdminAddress(ctx, backend.Client(), proxyAddress)
	require.NoError(t, err)
	assert.Equal(t, accounts[0].Address, admin)

	_, err = ImplementationAddress(ctx, backend.Client(), implAddress)
	assert.ErrorIs(t, err, ErrNoImplementation)
}

func TestCheckUUPSWithoutCode(t *testing.T) {
	accounts := chaintest.Accounts(t)
	backend := chaintest.NewBackend(t, accounts, nil)

	err := CheckUUPS(context.Background(), backend.Client(), accounts[1].Address)
	assert.ErrorIs(t, err, ErrNotUUPS)
	assert.ErrorContains(t, err, "no code at")
}
