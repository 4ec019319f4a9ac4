package contracts

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	fsjson "github.com/compose-network/soulbound-harness/internal/infra/filesystem/json"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

var (
	ErrNotFound  = errors.New("artifact not found")
	ErrAmbiguous = errors.New("artifact name is ambiguous")
)

type (
	// Set indexes the artifacts of one artifacts directory.
	Set struct {
		byName map[string][]Artifact
		byFQN  map[string]Artifact
	}

	artifactFile struct {
		Format           string          `json:"_format"`
		ContractName     string          `json:"contractName"`
		SourceName       string          `json:"sourceName"`
		ABI              json.RawMessage `json:"abi"`
		Bytecode         string          `json:"bytecode"`
		DeployedBytecode string          `json:"deployedBytecode"`
	}

	debugFile struct {
		Format    string `json:"_format"`
		BuildInfo string `json:"buildInfo"`
	}

	buildInfoFile struct {
		Format          string          `json:"_format"`
		ID              string          `json:"id"`
		SolcVersion     string          `json:"solcVersion"`
		SolcLongVersion string          `json:"solcLongVersion"`
		Input           json.RawMessage `json:"input"`
		Output          json.RawMessage `json:"output,omitempty"`
	}
)

const (
	artifactFormat  = "hh-sol-artifact-1"
	debugFormat     = "hh-sol-dbg-1"
	buildInfoFormat = "hh-sol-build-info-1"
)

// LoadArtifacts walks dir (a Hardhat artifacts tree) and parses every contract artifact.
func LoadArtifacts(dir string) (*Set, error) {
	if _, err := os.Stat(dir); err != nil {
		return nil, fmt.Errorf("artifacts directory not found. Directory: '%s': %w", dir, err)
	}

	set := &Set{
		byName: make(map[string][]Artifact),
		byFQN:  make(map[string]Artifact),
	}

	reader := fsjson.NewReader()
	err := filepath.WalkDir(dir, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if entry.IsDir() {
			if path != dir && entry.Name() == buildInfoDir {
				return filepath.SkipDir
			}
			return nil
		}
		if filepath.Ext(path) != ".json" || strings.HasSuffix(path, ".dbg.json") {
			return nil
		}

		var file artifactFile
		if err := reader.ReadJSON(path, &file); err != nil {
			return fmt.Errorf("failed to read artifact %s: %w", path, err)
		}
		if file.Format != artifactFormat || file.ContractName == "" {
			return nil
		}

		artifact, err := parseArtifact(path, file)
		if err != nil {
			return err
		}

		set.add(artifact)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load artifacts: %w", err)
	}

	return set, nil
}

func parseArtifact(path string, file artifactFile) (Artifact, error) {
	parsedABI, err := abi.JSON(strings.NewReader(string(file.ABI)))
	if err != nil {
		return Artifact{}, fmt.Errorf("failed to parse ABI for %s: %w", file.ContractName, err)
	}

	return Artifact{
		Name:             file.ContractName,
		SourceName:       file.SourceName,
		ABI:              parsedABI,
		RawABI:           string(file.ABI),
		Bytecode:         common.FromHex(file.Bytecode),
		DeployedBytecode: common.FromHex(file.DeployedBytecode),
		path:             path,
	}, nil
}

func (s *Set) add(artifact Artifact) {
	s.byName[artifact.Name] = append(s.byName[artifact.Name], artifact)
	s.byFQN[artifact.FullyQualifiedName()] = artifact
}

// Get looks an artifact up by contract name or by fully qualified name.
func (s *Set) Get(name string) (Artifact, error) {
	if strings.Contains(name, ":") {
		artifact, ok := s.byFQN[name]
		if !ok {
			return Artifact{}, fmt.Errorf("%w: %s", ErrNotFound, name)
		}
		return artifact, nil
	}

	candidates := s.byName[name]
	switch len(candidates) {
	case 0:
		return Artifact{}, fmt.Errorf("%w: %s", ErrNotFound, name)
	case 1:
		return candidates[0], nil
	default:
		names := make([]string, 0, len(candidates))
		for _, candidate := range candidates {
			names = append(names, candidate.FullyQualifiedName())
		}
		sort.Strings(names)
		return Artifact{}, fmt.Errorf("%w: %s matches %s", ErrAmbiguous, name, strings.Join(names, ", "))
	}
}

// Names returns the fully qualified names of every loaded artifact, sorted.
func (s *Set) Names() []string {
	names := make([]string, 0, len(s.byFQN))
	for name := range s.byFQN {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// BuildInfo follows the artifact's debug file to the compiler run that produced it.
func (a Artifact) BuildInfo() (*BuildInfo, error) {
	if a.path == "" {
		return nil, fmt.Errorf("artifact %s was not loaded from disk", a.Name)
	}

	reader := fsjson.NewReader()
	dbgPath := strings.TrimSuffix(a.path, ".json") + ".dbg.json"

	var dbg debugFile
	if err := reader.ReadJSON(dbgPath, &dbg); err != nil {
		return nil, fmt.Errorf("failed to read debug file for %s: %w", a.Name, err)
	}
	if dbg.BuildInfo == "" {
		return nil, fmt.Errorf("debug file %s has no build info reference", dbgPath)
	}

	buildInfoPath := filepath.Join(filepath.Dir(dbgPath), filepath.FromSlash(dbg.BuildInfo))

	var file buildInfoFile
	if err := reader.ReadJSON(buildInfoPath, &file); err != nil {
		return nil, fmt.Errorf("failed to read build info for %s: %w", a.Name, err)
	}
	if len(file.Input) == 0 {
		return nil, fmt.Errorf("build info %s has no compiler input", buildInfoPath)
	}

	return &BuildInfo{
		ID:              file.ID,
		SolcVersion:     file.SolcVersion,
		SolcLongVersion: file.SolcLongVersion,
		Input:           file.Input,
	}, nil
}
