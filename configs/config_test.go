package configs

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfigMirrorsMumbaiSetup(t *testing.T) {
	cfg, err := DefaultConfig()
	require.NoError(t, err)

	assert.Equal(t, NetworkNameMumbai, cfg.Network)
	mumbai := cfg.Networks[NetworkNameMumbai]
	assert.Equal(t, "https://polygon-mumbai.g.alchemy.com/v2/${ALCHEMY_KEY}", mumbai.URL)
	assert.Equal(t, int64(80001), mumbai.ChainID)
	assert.Equal(t, []string{"${PRIVATE_KEY}"}, mumbai.Accounts)
	assert.Nil(t, mumbai.Confirmations)

	assert.Equal(t, "0.8.17", cfg.Solidity.Version)
	assert.Equal(t, "${POLYGONSCAN_KEY}", cfg.Etherscan.APIKey)
	assert.Equal(t, 3*time.Second, cfg.Etherscan.PollInterval)
	assert.Equal(t, 6, cfg.Deployment.Confirmations)
	assert.Equal(t, 2*time.Second, cfg.Deployment.PollInterval)
	assert.Equal(t, "TestTokenV1", cfg.Deployment.Contract)
	assert.Equal(t, KindUUPS, cfg.Deployment.Kind)
	assert.Equal(t, "NFT_address", cfg.Deployment.ExportName)
	assert.Equal(t, time.Second, cfg.Devnet.BlockTime)

	localhost := cfg.Networks[NetworkNameLocalhost]
	require.NotNil(t, localhost.Confirmations)
	assert.Equal(t, 1, *localhost.Confirmations)
	assert.Len(t, localhost.SignerKeys(), 3)
}

func TestExpandEnv(t *testing.T) {
	t.Setenv("ALCHEMY_KEY", "alchemy-secret")
	t.Setenv("PRIVATE_KEY", "0xabc")
	t.Setenv("POLYGONSCAN_KEY", "scan-secret")

	cfg := MustDefaultConfig()
	cfg.Networks = cloneNetworks(cfg.Networks)
	cfg.ExpandEnv()

	mumbai := cfg.Networks[NetworkNameMumbai]
	assert.Equal(t, "https://polygon-mumbai.g.alchemy.com/v2/alchemy-secret", mumbai.URL)
	assert.Equal(t, []string{"0xabc"}, mumbai.Accounts)
	assert.Equal(t, "scan-secret", cfg.Etherscan.APIKey)
}

func TestExpandEnvDefaultsToEmptyString(t *testing.T) {
	t.Setenv("PRIVATE_KEY", "")
	os.Unsetenv("PRIVATE_KEY")

	cfg := MustDefaultConfig()
	cfg.Networks = cloneNetworks(cfg.Networks)
	cfg.ExpandEnv()

	mumbai := cfg.Networks[NetworkNameMumbai]
	assert.Equal(t, []string{""}, mumbai.Accounts)
	assert.Empty(t, mumbai.SignerKeys())
}

func TestSelected(t *testing.T) {
	cfg := Config{Networks: map[NetworkName]Network{"mumbai": {URL: "http://x"}}}

	_, _, err := cfg.Selected()
	assert.ErrorContains(t, err, "network is required")

	cfg.Network = "sepolia"
	_, _, err = cfg.Selected()
	assert.ErrorContains(t, err, `network "sepolia" is not configured`)

	cfg.Network = "mumbai"
	name, network, err := cfg.Selected()
	require.NoError(t, err)
	assert.Equal(t, NetworkNameMumbai, name)
	assert.Equal(t, "http://x", network.URL)
}

func TestConfirmations(t *testing.T) {
	cfg := Config{}
	assert.Equal(t, DefaultConfirmations, cfg.Confirmations(Network{}))

	cfg.Deployment.Confirmations = 3
	assert.Equal(t, 3, cfg.Confirmations(Network{}))

	zero := 0
	assert.Equal(t, 0, cfg.Confirmations(Network{Confirmations: &zero}))
}

func TestValidateDeploy(t *testing.T) {
	cfg := validConfig()
	require.NoError(t, cfg.ValidateDeploy())

	cfg.Networks[NetworkNameLocalhost] = Network{}
	cfg.Deployment.Kind = "transparent"
	cfg.Deployment.OutputFile = ""

	err := cfg.ValidateDeploy()
	require.Error(t, err)
	assert.ErrorContains(t, err, "networks.localhost.url is required")
	assert.ErrorContains(t, err, "networks.localhost.chain-id is required")
	assert.ErrorContains(t, err, "networks.localhost.accounts needs at least 1 non-empty key(s), got 0")
	assert.ErrorContains(t, err, "deployment.kind must be 'uups', got 'transparent'")
	assert.ErrorContains(t, err, "deployment.output-file is required")
}

func TestValidateCheckNeedsThreeSigners(t *testing.T) {
	cfg := validConfig()
	network := cfg.Networks[NetworkNameLocalhost]
	network.Accounts = network.Accounts[:2]
	cfg.Networks[NetworkNameLocalhost] = network

	err := cfg.ValidateCheck()
	assert.ErrorContains(t, err, "needs at least 3 non-empty key(s), got 2")
}

func TestValidateVerify(t *testing.T) {
	cfg := validConfig()
	require.NoError(t, cfg.ValidateVerify())

	cfg.Etherscan.APIKey = ""
	cfg.Etherscan.MaxAttempts = 0
	err := cfg.ValidateVerify()
	assert.ErrorContains(t, err, "etherscan.api-key is required")
	assert.ErrorContains(t, err, "etherscan.max-attempts must be greater than 0")
}

func TestSolidityValidate(t *testing.T) {
	s := MustDefaultConfig().Solidity
	require.NoError(t, s.Validate())

	s.Runner = "remote"
	assert.ErrorContains(t, s.Validate(), "solidity.runner must be either 'local' or 'docker'")

	s.Runner = RunnerDocker
	s.Image = ""
	assert.ErrorContains(t, s.Validate(), "solidity.image is required for the docker runner")
}

func TestDevnetValidate(t *testing.T) {
	d := MustDefaultConfig().Devnet
	require.NoError(t, d.Validate())

	d.Port = 70000
	assert.ErrorContains(t, d.Validate(), "devnet.port must be a valid TCP port, got 70000")
}

func TestLoadLayersConfigFileOverDefaults(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	t.Setenv("SEPOLIA_KEY", "0x01")

	content := []byte(`network: sepolia
networks:
  sepolia:
    url: https://rpc.sepolia.example
    chain-id: 11155111
    accounts: ["${SEPOLIA_KEY}"]
deployment:
  confirmations: 2
`)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), content, 0644))

	cfg, err := Load(viper.New())
	require.NoError(t, err)

	assert.Equal(t, NetworkName("sepolia"), cfg.Network)
	assert.Equal(t, []string{"0x01"}, cfg.Networks["sepolia"].Accounts)
	assert.Contains(t, cfg.Networks, NetworkNameMumbai)
	assert.Equal(t, 2, cfg.Deployment.Confirmations)
	assert.Equal(t, "TestTokenV1", cfg.Deployment.Contract)
}

func TestLoadDotEnvKeepsExistingVariables(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(path, []byte("ALCHEMY_KEY=from-file\nPOLYGONSCAN_KEY=scan\n"), 0644))

	t.Setenv("ALCHEMY_KEY", "from-env")
	t.Setenv("POLYGONSCAN_KEY", "")
	os.Unsetenv("POLYGONSCAN_KEY")

	require.NoError(t, LoadDotEnv(path))
	assert.Equal(t, "from-env", os.Getenv("ALCHEMY_KEY"))
	assert.Equal(t, "scan", os.Getenv("POLYGONSCAN_KEY"))

	assert.NoError(t, LoadDotEnv(filepath.Join(dir, "missing.env")))
}

func validConfig() Config {
	cfg := MustDefaultConfig()
	cfg.Networks = cloneNetworks(cfg.Networks)
	cfg.Network = NetworkNameLocalhost
	cfg.Etherscan.APIKey = "key"
	return cfg
}

func cloneNetworks(in map[NetworkName]Network) map[NetworkName]Network {
	out := make(map[NetworkName]Network, len(in))
	for name, network := range in {
		network.Accounts = append([]string(nil), network.Accounts...)
		out[name] = network
	}
	return out
}
