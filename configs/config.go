package configs

import (
	"errors"
	"fmt"
	"os"
	"time"
)

var Values Config

type (
	NetworkName string

	Config struct {
		Network    NetworkName             `mapstructure:"network"`
		Networks   map[NetworkName]Network `mapstructure:"networks"`
		Solidity   Solidity                `mapstructure:"solidity"`
		Etherscan  Etherscan               `mapstructure:"etherscan"`
		Deployment Deployment              `mapstructure:"deployment"`
		Devnet     Devnet                  `mapstructure:"devnet"`
		Log        Log                     `mapstructure:"log"`
	}

	Network struct {
		URL           string   `mapstructure:"url"`
		ChainID       int64    `mapstructure:"chain-id"`
		Accounts      []string `mapstructure:"accounts"`
		Confirmations *int     `mapstructure:"confirmations"`
	}

	Solidity struct {
		Version        string    `mapstructure:"version"`
		Runner         string    `mapstructure:"runner"`
		Image          string    `mapstructure:"image"`
		Optimizer      Optimizer `mapstructure:"optimizer"`
		SourcesDir     string    `mapstructure:"sources-dir"`
		NodeModulesDir string    `mapstructure:"node-modules-dir"`
		ArtifactsDir   string    `mapstructure:"artifacts-dir"`
	}

	Optimizer struct {
		Enabled bool `mapstructure:"enabled"`
		Runs    int  `mapstructure:"runs"`
	}

	Etherscan struct {
		APIURL       string        `mapstructure:"api-url"`
		APIKey       string        `mapstructure:"api-key"`
		BrowserURL   string        `mapstructure:"browser-url"`
		PollInterval time.Duration `mapstructure:"poll-interval"`
		MaxAttempts  int           `mapstructure:"max-attempts"`
	}

	Deployment struct {
		Contract        string        `mapstructure:"contract"`
		UpgradeContract string        `mapstructure:"upgrade-contract"`
		ProxyContract   string        `mapstructure:"proxy-contract"`
		Initializer     string        `mapstructure:"initializer"`
		Kind            string        `mapstructure:"kind"`
		Confirmations   int           `mapstructure:"confirmations"`
		PollInterval    time.Duration `mapstructure:"poll-interval"`
		GasLimit        uint64        `mapstructure:"gas-limit"`
		OutputFile      string        `mapstructure:"output-file"`
		ExportName      string        `mapstructure:"export-name"`
		RecordsDir      string        `mapstructure:"records-dir"`
		Verify          bool          `mapstructure:"verify"`
	}

	Devnet struct {
		Image         string        `mapstructure:"image"`
		ContainerName string        `mapstructure:"container-name"`
		ChainID       int64         `mapstructure:"chain-id"`
		Port          int           `mapstructure:"port"`
		BlockTime     time.Duration `mapstructure:"block-time"`
	}

	Log struct {
		Level  string `mapstructure:"level"`
		Format string `mapstructure:"format"`
	}
)

const (
	NetworkNameMumbai    NetworkName = "mumbai"
	NetworkNameLocalhost NetworkName = "localhost"

	KindUUPS = "uups"

	RunnerLocal  = "local"
	RunnerDocker = "docker"

	// DefaultConfirmations is how many blocks a proxy deployment waits for before it is reported.
	DefaultConfirmations = 6
)

// ExpandEnv substitutes ${VAR} references in secrets and endpoints. Unset variables
// become empty strings.
func (c *Config) ExpandEnv() {
	for name, network := range c.Networks {
		network.URL = os.ExpandEnv(network.URL)
		accounts := make([]string, 0, len(network.Accounts))
		for _, account := range network.Accounts {
			accounts = append(accounts, os.ExpandEnv(account))
		}
		network.Accounts = accounts
		c.Networks[name] = network
	}

	c.Etherscan.APIURL = os.ExpandEnv(c.Etherscan.APIURL)
	c.Etherscan.APIKey = os.ExpandEnv(c.Etherscan.APIKey)
}

// Selected returns the network chosen with --network (or the network key).
func (c *Config) Selected() (NetworkName, Network, error) {
	if c.Network == "" {
		return "", Network{}, errors.New("network is required")
	}

	network, ok := c.Networks[c.Network]
	if !ok {
		return "", Network{}, fmt.Errorf("network %q is not configured", c.Network)
	}

	return c.Network, network, nil
}

// Confirmations returns the number of blocks to wait for on the network, falling back to the
// deployment default.
func (c *Config) Confirmations(network Network) int {
	if network.Confirmations != nil {
		return *network.Confirmations
	}
	if c.Deployment.Confirmations > 0 {
		return c.Deployment.Confirmations
	}

	return DefaultConfirmations
}

// SignerKeys returns the non-empty account keys of the network, in configured order.
func (n Network) SignerKeys() []string {
	keys := make([]string, 0, len(n.Accounts))
	for _, account := range n.Accounts {
		if account != "" {
			keys = append(keys, account)
		}
	}
	return keys
}

func (c *Config) ValidateDeploy() error {
	var errs []error

	name, network, err := c.Selected()
	if err != nil {
		errs = append(errs, err)
	} else {
		errs = append(errs, network.validate(name, 1)...)
	}

	errs = append(errs, c.Deployment.validate()...)
	if c.Solidity.ArtifactsDir == "" {
		errs = append(errs, errors.New("solidity.artifacts-dir is required"))
	}

	if len(errs) > 0 {
		return fmt.Errorf("deploy configuration validation failed: %w", errors.Join(errs...))
	}

	return nil
}

func (c *Config) ValidateVerify() error {
	var errs []error

	name, network, err := c.Selected()
	if err != nil {
		errs = append(errs, err)
	} else {
		errs = append(errs, network.validate(name, 0)...)
	}

	if c.Etherscan.APIURL == "" {
		errs = append(errs, errors.New("etherscan.api-url is required"))
	}
	if c.Etherscan.APIKey == "" {
		errs = append(errs, errors.New("etherscan.api-key is required"))
	}
	if c.Etherscan.MaxAttempts <= 0 {
		errs = append(errs, errors.New("etherscan.max-attempts must be greater than 0"))
	}
	if c.Solidity.ArtifactsDir == "" {
		errs = append(errs, errors.New("solidity.artifacts-dir is required"))
	}

	if len(errs) > 0 {
		return fmt.Errorf("verify configuration validation failed: %w", errors.Join(errs...))
	}

	return nil
}

// ValidateCheck requires the three signers the behaviour suite plays: owner and two users.
func (c *Config) ValidateCheck() error {
	var errs []error

	name, network, err := c.Selected()
	if err != nil {
		errs = append(errs, err)
	} else {
		errs = append(errs, network.validate(name, 3)...)
	}

	errs = append(errs, c.Deployment.validate()...)
	if c.Deployment.UpgradeContract == "" {
		errs = append(errs, errors.New("deployment.upgrade-contract is required"))
	}

	if len(errs) > 0 {
		return fmt.Errorf("check configuration validation failed: %w", errors.Join(errs...))
	}

	return nil
}

func (n Network) validate(name NetworkName, minAccounts int) []error {
	var errs []error

	if n.URL == "" {
		errs = append(errs, fmt.Errorf("networks.%s.url is required", name))
	}
	if n.ChainID == 0 {
		errs = append(errs, fmt.Errorf("networks.%s.chain-id is required", name))
	}
	if got := len(n.SignerKeys()); got < minAccounts {
		errs = append(errs, fmt.Errorf("networks.%s.accounts needs at least %d non-empty key(s), got %d", name, minAccounts, got))
	}
	if n.Confirmations != nil && *n.Confirmations < 0 {
		errs = append(errs, fmt.Errorf("networks.%s.confirmations must not be negative", name))
	}

	return errs
}

func (d Deployment) validate() []error {
	var errs []error

	if d.Contract == "" {
		errs = append(errs, errors.New("deployment.contract is required"))
	}
	if d.ProxyContract == "" {
		errs = append(errs, errors.New("deployment.proxy-contract is required"))
	}
	if d.Initializer == "" {
		errs = append(errs, errors.New("deployment.initializer is required"))
	}
	if d.Kind != KindUUPS {
		errs = append(errs, fmt.Errorf("deployment.kind must be '%s', got '%s'", KindUUPS, d.Kind))
	}
	if d.Confirmations < 0 {
		errs = append(errs, errors.New("deployment.confirmations must not be negative"))
	}
	if d.PollInterval < 0 {
		errs = append(errs, errors.New("deployment.poll-interval must not be negative"))
	}
	if d.OutputFile == "" {
		errs = append(errs, errors.New("deployment.output-file is required"))
	}
	if d.ExportName == "" {
		errs = append(errs, errors.New("deployment.export-name is required"))
	}
	if d.RecordsDir == "" {
		errs = append(errs, errors.New("deployment.records-dir is required"))
	}

	return errs
}

func (s *Solidity) Validate() error {
	var errs []error

	if s.Version == "" {
		errs = append(errs, errors.New("solidity.version is required"))
	}
	if s.Runner != RunnerLocal && s.Runner != RunnerDocker {
		errs = append(errs, fmt.Errorf("solidity.runner must be either '%s' or '%s'", RunnerLocal, RunnerDocker))
	}
	if s.Runner == RunnerDocker && s.Image == "" {
		errs = append(errs, errors.New("solidity.image is required for the docker runner"))
	}
	if s.SourcesDir == "" {
		errs = append(errs, errors.New("solidity.sources-dir is required"))
	}
	if s.ArtifactsDir == "" {
		errs = append(errs, errors.New("solidity.artifacts-dir is required"))
	}
	if s.Optimizer.Enabled && s.Optimizer.Runs <= 0 {
		errs = append(errs, errors.New("solidity.optimizer.runs must be greater than 0"))
	}

	if len(errs) > 0 {
		return fmt.Errorf("solidity configuration validation failed: %w", errors.Join(errs...))
	}

	return nil
}

func (d *Devnet) Validate() error {
	var errs []error

	if d.Image == "" {
		errs = append(errs, errors.New("devnet.image is required"))
	}
	if d.ContainerName == "" {
		errs = append(errs, errors.New("devnet.container-name is required"))
	}
	if d.ChainID == 0 {
		errs = append(errs, errors.New("devnet.chain-id is required"))
	}
	if d.Port <= 0 || d.Port > 65535 {
		errs = append(errs, fmt.Errorf("devnet.port must be a valid TCP port, got %d", d.Port))
	}
	if d.BlockTime < 0 {
		errs = append(errs, errors.New("devnet.block-time must not be negative"))
	}

	if len(errs) > 0 {
		return fmt.Errorf("devnet configuration validation failed: %w", errors.Join(errs...))
	}

	return nil
}
