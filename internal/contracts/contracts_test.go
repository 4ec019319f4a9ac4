package contracts

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/compose-network/soulbound-harness/configs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	tokenABI = `[{"inputs":[],"name":"initialize","outputs":[],"stateMutability":"nonpayable","type":"function"},{"inputs":[],"name":"owner","outputs":[{"internalType":"address","name":"","type":"address"}],"stateMutability":"view","type":"function"}]`
	proxyABI = `[{"inputs":[{"internalType":"address","name":"_logic","type":"address"},{"internalType":"bytes","name":"_data","type":"bytes"}],"stateMutability":"payable","type":"constructor"}]`

	longVersion = "0.8.17+commit.8df45f5f.Linux.g++"
)

type fakeRunner struct {
	version string
	output  func(input standardInput) any
	input   standardInput
}

func (r *fakeRunner) Version(context.Context) (string, error) {
	return r.version, nil
}

func (r *fakeRunner) Compile(_ context.Context, input []byte) ([]byte, error) {
	if err := json.Unmarshal(input, &r.input); err != nil {
		return nil, err
	}
	return json.Marshal(r.output(r.input))
}

func compiled(abiJSON, bytecode string) map[string]any {
	return map[string]any{
		"abi": json.RawMessage(abiJSON),
		"evm": map[string]any{
			"bytecode":         map[string]any{"object": bytecode},
			"deployedBytecode": map[string]any{"object": bytecode + "00"},
		},
	}
}

func successfulOutput(standardInput) any {
	return map[string]any{
		"errors": []map[string]any{
			{"severity": "warning", "message": "SPDX license identifier not provided", "formattedMessage": "Warning: SPDX license identifier not provided"},
		},
		"sources": map[string]any{
			"contracts/TestTokenV1.sol":                            map[string]any{"id": 0},
			"@openzeppelin/contracts/proxy/ERC1967/ERC1967Proxy.sol": map[string]any{"id": 1},
		},
		"contracts": map[string]any{
			"contracts/TestTokenV1.sol": map[string]any{
				"TestTokenV1": compiled(tokenABI, "6080"),
			},
			"@openzeppelin/contracts/proxy/ERC1967/ERC1967Proxy.sol": map[string]any{
				"ERC1967Proxy": compiled(proxyABI, "6060"),
			},
		},
	}
}

func project(t *testing.T) (string, configs.Solidity) {
	t.Helper()

	root := t.TempDir()
	writeFile(t, filepath.Join(root, "contracts", "TestTokenV1.sol"), "pragma solidity 0.8.17;\nimport \"@openzeppelin/contracts/proxy/ERC1967/ERC1967Proxy.sol\";\n")
	writeFile(t, filepath.Join(root, "node_modules", "@openzeppelin", "contracts", "proxy", "ERC1967", "ERC1967Proxy.sol"), "// proxy\n")
	writeFile(t, filepath.Join(root, "contracts", "README.md"), "not a source")

	settings := configs.MustDefaultConfig().Solidity
	return root, settings
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
}

func TestCompileWritesHardhatLayout(t *testing.T) {
	root, settings := project(t)
	runner := &fakeRunner{version: longVersion, output: successfulOutput}

	set, err := NewCompiler(runner, settings, root).Compile(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{"contracts/TestTokenV1.sol"}, keys(runner.input.Sources))
	assert.False(t, runner.input.Settings.Optimizer.Enabled)

	assert.Equal(t, []string{
		"@openzeppelin/contracts/proxy/ERC1967/ERC1967Proxy.sol:ERC1967Proxy",
		"contracts/TestTokenV1.sol:TestTokenV1",
	}, set.Names())

	token, err := set.Get(ContractNameTestTokenV1)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x60, 0x80}, token.Bytecode)
	assert.True(t, token.Deployable())
	assert.Contains(t, token.ABI.Methods, "initialize")

	info, err := token.BuildInfo()
	require.NoError(t, err)
	assert.Equal(t, "0.8.17", info.SolcVersion)
	assert.Equal(t, longVersion, info.SolcLongVersion)
	assert.Len(t, info.ID, 32)

	var input standardInput
	require.NoError(t, json.Unmarshal(info.Input, &input))
	assert.Equal(t, "// proxy\n", input.Sources["@openzeppelin/contracts/proxy/ERC1967/ERC1967Proxy.sol"].Content)
	assert.Contains(t, input.Sources, "contracts/TestTokenV1.sol")
}

func TestCompileRejectsVersionMismatch(t *testing.T) {
	root, settings := project(t)
	runner := &fakeRunner{version: "0.8.20+commit.a1b79de6.Linux.g++", output: successfulOutput}

	_, err := NewCompiler(runner, settings, root).Compile(context.Background())
	require.ErrorIs(t, err, ErrVersionMismatch)
	assert.ErrorContains(t, err, "configured 0.8.17")
}

func TestCompileFailsOnErrorDiagnostics(t *testing.T) {
	root, settings := project(t)
	runner := &fakeRunner{version: longVersion, output: func(standardInput) any {
		return map[string]any{
			"errors": []map[string]any{
				{"severity": "error", "formattedMessage": "ParserError: Expected ';' but got '}'"},
				{"severity": "error", "message": "DeclarationError: Undeclared identifier."},
			},
		}
	}}

	_, err := NewCompiler(runner, settings, root).Compile(context.Background())
	require.ErrorIs(t, err, ErrCompilation)
	assert.ErrorContains(t, err, "ParserError: Expected ';' but got '}'")
	assert.ErrorContains(t, err, "DeclarationError: Undeclared identifier.")

	_, statErr := os.Stat(filepath.Join(root, settings.ArtifactsDir))
	assert.True(t, errors.Is(statErr, os.ErrNotExist))
}

func TestCompileFailsOnUnresolvableImport(t *testing.T) {
	root, settings := project(t)
	runner := &fakeRunner{version: longVersion, output: func(in standardInput) any {
		out := successfulOutput(in).(map[string]any)
		out["sources"].(map[string]any)["@missing/Lib.sol"] = map[string]any{"id": 2}
		return out
	}}

	_, err := NewCompiler(runner, settings, root).Compile(context.Background())
	assert.ErrorContains(t, err, "imported source @missing/Lib.sol not found")
}

func TestCompileWithoutSources(t *testing.T) {
	root := t.TempDir()
	settings := configs.MustDefaultConfig().Solidity
	require.NoError(t, os.MkdirAll(filepath.Join(root, settings.SourcesDir), 0755))

	_, err := NewCompiler(&fakeRunner{version: longVersion}, settings, root).Compile(context.Background())
	assert.ErrorContains(t, err, "no Solidity sources found")
}

func TestGetAmbiguousName(t *testing.T) {
	dir := t.TempDir()
	writeArtifact(t, dir, "contracts/a/Token.sol", "Token")
	writeArtifact(t, dir, "contracts/b/Token.sol", "Token")
	writeFile(t, filepath.Join(dir, "build-info", "abc.json"), `{"_format":"hh-sol-build-info-1"}`)

	set, err := LoadArtifacts(dir)
	require.NoError(t, err)

	_, err = set.Get("Token")
	require.ErrorIs(t, err, ErrAmbiguous)
	assert.ErrorContains(t, err, "contracts/a/Token.sol:Token, contracts/b/Token.sol:Token")

	artifact, err := set.Get("contracts/b/Token.sol:Token")
	require.NoError(t, err)
	assert.Equal(t, "contracts/b/Token.sol", artifact.SourceName)

	_, err = set.Get("Missing")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = set.Get("contracts/c/Token.sol:Token")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestBuildInfoWithoutDebugFile(t *testing.T) {
	dir := t.TempDir()
	writeArtifact(t, dir, "contracts/Token.sol", "Token")

	set, err := LoadArtifacts(dir)
	require.NoError(t, err)
	artifact, err := set.Get("Token")
	require.NoError(t, err)

	_, err = artifact.BuildInfo()
	assert.ErrorContains(t, err, "failed to read debug file for Token")
}

func TestLoadArtifactsMissingDir(t *testing.T) {
	_, err := LoadArtifacts(filepath.Join(t.TempDir(), "artifacts"))
	assert.ErrorContains(t, err, "artifacts directory not found")
}

func TestParseVersion(t *testing.T) {
	version, err := parseVersion("solc, the solidity compiler commandline interface\nVersion: 0.8.17+commit.8df45f5f.Linux.g++\n")
	require.NoError(t, err)
	assert.Equal(t, longVersion, version)

	_, err = parseVersion("solc 0.8.17")
	assert.ErrorIs(t, err, errNoVersion)
}

func writeArtifact(t *testing.T, dir, sourceName, name string) {
	t.Helper()
	content, err := json.Marshal(artifactFile{
		Format:       artifactFormat,
		ContractName: name,
		SourceName:   sourceName,
		ABI:          json.RawMessage(tokenABI),
		Bytecode:     "0x6080",
	})
	require.NoError(t, err)
	writeFile(t, filepath.Join(dir, filepath.FromSlash(sourceName), name+".json"), string(content))
}

func keys[V any](m map[string]V) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}
