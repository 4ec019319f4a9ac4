package contracts

import "github.com/ethereum/go-ethereum/accounts/abi"

type (
	// Artifact is a compiled contract in Hardhat's artifact layout.
	Artifact struct {
		Name             string
		SourceName       string
		ABI              abi.ABI
		RawABI           string
		Bytecode         []byte
		DeployedBytecode []byte

		path string
	}

	// BuildInfo is the compiler run an artifact came from. Input is the complete solc
	// standard-JSON input, which block explorers need to reproduce the bytecode.
	BuildInfo struct {
		ID              string
		SolcVersion     string
		SolcLongVersion string
		Input           []byte
	}
)

const (
	ContractNameTestTokenV1  = "TestTokenV1"
	ContractNameTestTokenV2  = "TestTokenV2"
	ContractNameERC1967Proxy = "ERC1967Proxy"

	buildInfoDir = "build-info"
)

// FullyQualifiedName returns source:Name, which disambiguates contracts sharing a name.
func (a Artifact) FullyQualifiedName() string {
	return a.SourceName + ":" + a.Name
}

// Deployable reports whether the artifact carries creation bytecode (interfaces and
// abstract contracts do not).
func (a Artifact) Deployable() bool {
	return len(a.Bytecode) > 0
}
