package chaintest

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/stretchr/testify/require"
)

// BuildInfoID names the build-info file WriteArtifact links every artifact to.
const BuildInfoID = "0123456789abcdef0123456789abcdef"

// SolcLongVersion is the compiler recorded in the build info.
const SolcLongVersion = "0.8.17+commit.8df45f5f"

// ERC1967ProxyABI is the constructor-only ABI of OpenZeppelin's ERC1967Proxy.
const ERC1967ProxyABI = `[{"inputs":[{"internalType":"address","name":"_logic","type":"address"},{"internalType":"bytes","name":"_data","type":"bytes"}],"stateMutability":"payable","type":"constructor"}]`

// WriteArtifact lays out a Hardhat artifact for name under dir, together with its debug file
// and a shared build-info, so it loads and verifies like a compiled contract.
func WriteArtifact(t testing.TB, dir, name, rawABI string, bytecode []byte) {
	t.Helper()

	sourceName := "contracts/" + name + ".sol"
	contractDir := filepath.Join(dir, filepath.FromSlash(sourceName))
	require.NoError(t, os.MkdirAll(contractDir, 0755))

	artifact := map[string]any{
		"_format":          "hh-sol-artifact-1",
		"contractName":     name,
		"sourceName":       sourceName,
		"abi":              json.RawMessage(rawABI),
		"bytecode":         hexutil.Encode(bytecode),
		"deployedBytecode": "0x",
	}
	writeJSON(t, filepath.Join(contractDir, name+".json"), artifact)

	writeJSON(t, filepath.Join(contractDir, name+".dbg.json"), map[string]any{
		"_format":   "hh-sol-dbg-1",
		"buildInfo": "../../build-info/" + BuildInfoID + ".json",
	})

	buildInfoPath := filepath.Join(dir, "build-info", BuildInfoID+".json")
	if _, err := os.Stat(buildInfoPath); err == nil {
		return
	}
	require.NoError(t, os.MkdirAll(filepath.Dir(buildInfoPath), 0755))
	writeJSON(t, buildInfoPath, map[string]any{
		"_format":         "hh-sol-build-info-1",
		"id":              BuildInfoID,
		"solcVersion":     "0.8.17",
		"solcLongVersion": SolcLongVersion,
		"input":           map[string]any{"language": "Solidity", "sources": map[string]any{}},
	})
}

func writeJSON(t testing.TB, path string, value any) {
	t.Helper()

	data, err := json.Marshal(value)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, data, 0644))
}
