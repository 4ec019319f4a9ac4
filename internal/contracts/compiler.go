package contracts

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/compose-network/soulbound-harness/configs"
	fsjson "github.com/compose-network/soulbound-harness/internal/infra/filesystem/json"
	"github.com/compose-network/soulbound-harness/internal/logger"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
)

var (
	ErrVersionMismatch = errors.New("solc version mismatch")
	ErrCompilation     = errors.New("compilation failed")
)

type (
	// Compiler compiles the Solidity sources of a project into a Hardhat artifacts tree
	Compiler struct {
		runner   Runner
		settings configs.Solidity
		rootDir  string
		writer   *fsjson.Writer
		logger   *slog.Logger
	}

	standardInput struct {
		Language string                 `json:"language"`
		Sources  map[string]inputSource `json:"sources"`
		Settings inputSettings          `json:"settings"`
	}

	inputSource struct {
		Content string `json:"content"`
	}

	inputSettings struct {
		Optimizer       optimizerSettings              `json:"optimizer"`
		OutputSelection map[string]map[string][]string `json:"outputSelection"`
	}

	optimizerSettings struct {
		Enabled bool `json:"enabled"`
		Runs    int  `json:"runs"`
	}

	standardOutput struct {
		Errors    []diagnostic                               `json:"errors"`
		Sources   map[string]json.RawMessage                 `json:"sources"`
		Contracts map[string]map[string]compiledContractJSON `json:"contracts"`
	}

	diagnostic struct {
		Severity         string `json:"severity"`
		Message          string `json:"message"`
		FormattedMessage string `json:"formattedMessage"`
	}

	compiledContractJSON struct {
		ABI json.RawMessage `json:"abi"`
		EVM struct {
			Bytecode struct {
				Object string `json:"object"`
			} `json:"bytecode"`
			DeployedBytecode struct {
				Object string `json:"object"`
			} `json:"deployedBytecode"`
		} `json:"evm"`
	}
)

// NewCompiler creates a compiler for the project rooted at rootDir
func NewCompiler(runner Runner, settings configs.Solidity, rootDir string) *Compiler {
	return &Compiler{
		runner:   runner,
		settings: settings,
		rootDir:  rootDir,
		writer:   fsjson.NewWriter(),
		logger:   logger.Named("contracts_compiler"),
	}
}

// Compile compiles every source under the sources directory and persists artifacts, debug
// files and the build info
func (c *Compiler) Compile(ctx context.Context) (*Set, error) {
	c.logger.
		With("sources_dir", c.settings.SourcesDir).
		With("version", c.settings.Version).
		Info("starting contract compilation")

	longVersion, err := c.runner.Version(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get solc version: %w", err)
	}
	shortVersion, _, _ := strings.Cut(longVersion, "+")
	if shortVersion != c.settings.Version {
		return nil, fmt.Errorf("%w: configured %s, solc reports %s", ErrVersionMismatch, c.settings.Version, longVersion)
	}

	input, err := c.buildInput()
	if err != nil {
		return nil, err
	}
	c.logger.With("sources", len(input.Sources)).Info("compiler input prepared")

	inputJSON, err := json.Marshal(input)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal compiler input: %w", err)
	}

	rawOutput, err := c.runner.Compile(ctx, inputJSON)
	if err != nil {
		return nil, err
	}

	var output standardOutput
	if err := json.Unmarshal(rawOutput, &output); err != nil {
		return nil, fmt.Errorf("failed to parse compiler output: %w", err)
	}

	if err := checkDiagnostics(output.Errors, c.logger); err != nil {
		return nil, err
	}

	if err := c.addImportedSources(&input, output); err != nil {
		return nil, err
	}

	inputJSON, err = json.Marshal(input)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal compiler input: %w", err)
	}

	if err := c.writeOutput(shortVersion, longVersion, inputJSON, rawOutput, output); err != nil {
		return nil, err
	}

	c.logger.Info("contracts compiled successfully")

	return LoadArtifacts(c.artifactsDir())
}

func (c *Compiler) artifactsDir() string {
	return filepath.Join(c.rootDir, c.settings.ArtifactsDir)
}

func (c *Compiler) buildInput() (standardInput, error) {
	input := standardInput{
		Language: "Solidity",
		Sources:  make(map[string]inputSource),
		Settings: inputSettings{
			Optimizer: optimizerSettings{
				Enabled: c.settings.Optimizer.Enabled,
				Runs:    c.settings.Optimizer.Runs,
			},
			OutputSelection: map[string]map[string][]string{
				"*": {
					"*": {"abi", "evm.bytecode", "evm.deployedBytecode", "evm.methodIdentifiers", "metadata"},
					"":  {"ast"},
				},
			},
		},
	}

	sourcesDir := filepath.Join(c.rootDir, c.settings.SourcesDir)
	err := filepath.WalkDir(sourcesDir, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if entry.IsDir() || filepath.Ext(path) != ".sol" {
			return nil
		}

		content, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("failed to read source: %w", err)
		}

		rel, err := filepath.Rel(c.rootDir, path)
		if err != nil {
			return err
		}

		input.Sources[filepath.ToSlash(rel)] = inputSource{Content: string(content)}
		return nil
	})
	if err != nil {
		return standardInput{}, fmt.Errorf("failed to collect sources from %s: %w", sourcesDir, err)
	}

	if len(input.Sources) == 0 {
		return standardInput{}, fmt.Errorf("no Solidity sources found in %s", sourcesDir)
	}

	return input, nil
}

func checkDiagnostics(diagnostics []diagnostic, log *slog.Logger) error {
	var errs []error
	for _, d := range diagnostics {
		message := strings.TrimSpace(d.FormattedMessage)
		if message == "" {
			message = d.Message
		}

		if d.Severity == "error" {
			errs = append(errs, errors.New(message))
			continue
		}
		log.With("severity", d.Severity).Warn(message)
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrCompilation, errors.Join(errs...))
	}

	return nil
}

// addImportedSources inlines every source solc resolved from disk so the input alone
// reproduces the build.
func (c *Compiler) addImportedSources(input *standardInput, output standardOutput) error {
	for name := range output.Sources {
		if _, ok := input.Sources[name]; ok {
			continue
		}

		content, err := c.readImport(name)
		if err != nil {
			return err
		}
		input.Sources[name] = inputSource{Content: string(content)}
	}

	return nil
}

func (c *Compiler) readImport(name string) ([]byte, error) {
	candidates := []string{filepath.Join(c.rootDir, filepath.FromSlash(name))}
	if c.settings.NodeModulesDir != "" {
		candidates = append(candidates, filepath.Join(c.rootDir, c.settings.NodeModulesDir, filepath.FromSlash(name)))
	}

	for _, candidate := range candidates {
		content, err := os.ReadFile(candidate)
		if err == nil {
			return content, nil
		}
		if !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to read imported source %s: %w", name, err)
		}
	}

	return nil, fmt.Errorf("imported source %s not found under %s", name, strings.Join(candidates, ", "))
}

func (c *Compiler) writeOutput(shortVersion, longVersion string, input, rawOutput []byte, output standardOutput) error {
	id := buildInfoID(longVersion, input)
	artifactsDir := c.artifactsDir()
	buildInfoPath := filepath.Join(artifactsDir, buildInfoDir, id+".json")

	if err := c.writer.WriteJSON(buildInfoPath, buildInfoFile{
		Format:          buildInfoFormat,
		ID:              id,
		SolcVersion:     shortVersion,
		SolcLongVersion: longVersion,
		Input:           input,
		Output:          rawOutput,
	}); err != nil {
		return fmt.Errorf("failed to write build info: %w", err)
	}

	sourceNames := make([]string, 0, len(output.Contracts))
	for sourceName := range output.Contracts {
		sourceNames = append(sourceNames, sourceName)
	}
	sort.Strings(sourceNames)

	for _, sourceName := range sourceNames {
		for contractName, compiled := range output.Contracts[sourceName] {
			dir := filepath.Join(artifactsDir, filepath.FromSlash(sourceName))
			artifactPath := filepath.Join(dir, contractName+".json")

			if err := c.writer.WriteJSON(artifactPath, artifactFile{
				Format:           artifactFormat,
				ContractName:     contractName,
				SourceName:       sourceName,
				ABI:              compiled.ABI,
				Bytecode:         hexObject(compiled.EVM.Bytecode.Object),
				DeployedBytecode: hexObject(compiled.EVM.DeployedBytecode.Object),
			}); err != nil {
				return fmt.Errorf("failed to write artifact for %s: %w", contractName, err)
			}

			rel, err := filepath.Rel(dir, buildInfoPath)
			if err != nil {
				return err
			}
			if err := c.writer.WriteJSON(filepath.Join(dir, contractName+".dbg.json"), debugFile{
				Format:    debugFormat,
				BuildInfo: filepath.ToSlash(rel),
			}); err != nil {
				return fmt.Errorf("failed to write debug file for %s: %w", contractName, err)
			}

			c.logger.With("contract", sourceName+":"+contractName).Debug("artifact written")
		}
	}

	return nil
}

func buildInfoID(longVersion string, input []byte) string {
	hash := crypto.Keccak256([]byte(longVersion), input)
	return strings.TrimPrefix(hexutil.Encode(hash[:16]), "0x")
}

func hexObject(object string) string {
	if object == "" {
		return "0x"
	}
	return "0x" + strings.TrimPrefix(object, "0x")
}
