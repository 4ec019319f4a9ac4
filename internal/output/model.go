package output

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
	"gopkg.in/yaml.v3"
)

type (
	// Record is what a deployment leaves behind for later commands.
	Record struct {
		Network        string         `yaml:"network"`
		ChainID        int64          `yaml:"chain-id"`
		Contract       string         `yaml:"contract"`
		Kind           string         `yaml:"kind"`
		Proxy          common.Address `yaml:"proxy"`
		Implementation common.Address `yaml:"implementation"`
		Deployer       common.Address `yaml:"deployer"`
		TxHash         common.Hash    `yaml:"tx-hash"`
		Block          uint64         `yaml:"block"`
		Confirmations  int            `yaml:"confirmations"`
		Verified       bool           `yaml:"verified"`
		DeployedAt     time.Time      `yaml:"deployed-at"`
		// Upgrades lists earlier implementations, oldest first.
		Upgrades []Upgrade          `yaml:"upgrades,omitempty"`
		ABI      SingleQuotedString `yaml:"abi"`
	}

	Upgrade struct {
		Contract       string         `yaml:"contract"`
		Implementation common.Address `yaml:"implementation"`
		TxHash         common.Hash    `yaml:"tx-hash"`
		UpgradedAt     time.Time      `yaml:"upgraded-at"`
	}

	SingleQuotedString string
)

func (s SingleQuotedString) MarshalYAML() (any, error) {
	node := &yaml.Node{
		Kind:  yaml.ScalarNode,
		Style: yaml.SingleQuotedStyle,
		Value: string(s),
	}
	return node, nil
}
