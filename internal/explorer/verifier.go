package explorer

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/compose-network/soulbound-harness/internal/contracts"
	"github.com/compose-network/soulbound-harness/internal/logger"
	"github.com/compose-network/soulbound-harness/internal/proxy"
	"github.com/ethereum/go-ethereum/common"
)

// Explorer is the verification API the Verifier drives.
type Explorer interface {
	VerifySource(ctx context.Context, req SourceRequest) error
	VerifyProxy(ctx context.Context, proxy, expectedImplementation common.Address) error
}

// Verifier publishes the source behind a proxy and links the proxy to it.
type Verifier struct {
	explorer   Explorer
	storage    proxy.StorageReader
	browserURL string
	logger     *slog.Logger
}

func NewVerifier(explorer Explorer, storage proxy.StorageReader, browserURL string) *Verifier {
	return &Verifier{
		explorer:   explorer,
		storage:    storage,
		browserURL: strings.TrimSuffix(browserURL, "/"),
		logger:     logger.Named("verifier"),
	}
}

// Verify resolves the implementation behind proxyAddress, verifies it as artifact and then
// marks proxyAddress as a proxy for it.
func (v *Verifier) Verify(ctx context.Context, proxyAddress common.Address, artifact contracts.Artifact) error {
	implementation, err := proxy.ImplementationAddress(ctx, v.storage, proxyAddress)
	if err != nil {
		return fmt.Errorf("failed to resolve implementation: %w", err)
	}

	buildInfo, err := artifact.BuildInfo()
	if err != nil {
		return fmt.Errorf("failed to load build info: %w", err)
	}

	err = v.explorer.VerifySource(ctx, SourceRequest{
		Address:         implementation,
		ContractName:    artifact.FullyQualifiedName(),
		CompilerVersion: CompilerVersion(buildInfo.SolcLongVersion),
		StandardJSON:    buildInfo.Input,
	})
	if err != nil {
		return fmt.Errorf("failed to verify implementation %s: %w", implementation.Hex(), err)
	}

	if err := v.explorer.VerifyProxy(ctx, proxyAddress, implementation); err != nil {
		return fmt.Errorf("failed to link proxy %s: %w", proxyAddress.Hex(), err)
	}

	log := v.logger.With("proxy", proxyAddress.Hex()).With("implementation", implementation.Hex())
	if v.browserURL != "" {
		log = log.With("url", v.browserURL+"/address/"+proxyAddress.Hex()+"#code")
	}
	log.Info("contract verified")

	return nil
}

// CompilerVersion formats a solc long version the way explorers expect it:
// 0.8.17+commit.8df45f5f.Linux.g++ becomes v0.8.17+commit.8df45f5f.
func CompilerVersion(longVersion string) string {
	version, build, found := strings.Cut(longVersion, "+")
	if found {
		if commit, ok := strings.CutPrefix(build, "commit."); ok {
			hash, _, _ := strings.Cut(commit, ".")
			version += "+commit." + hash
		}
	}

	return "v" + strings.TrimPrefix(version, "v")
}
