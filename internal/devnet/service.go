package devnet

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/compose-network/soulbound-harness/configs"
	"github.com/compose-network/soulbound-harness/internal/chain"
	"github.com/compose-network/soulbound-harness/internal/docker"
	"github.com/compose-network/soulbound-harness/internal/logger"
)

const (
	anvilPort    = "8545"
	labelProject = "com.compose-network.soulbound-harness"

	rpcAttempts = 30
	rpcInterval = time.Second
)

// Engine is the container surface the devnet needs; *docker.Client implements it.
type Engine interface {
	EnsureImage(ctx context.Context, image string) error
	FindContainer(ctx context.Context, name string) (string, bool, error)
	StartDetached(ctx context.Context, opts docker.DetachedOptions) (string, error)
	Remove(ctx context.Context, containerID string) error
}

var _ Engine = (*docker.Client)(nil)

// Service runs a single anvil node in a named container.
type Service struct {
	engine      Engine
	cfg         configs.Devnet
	waitForRPC  func(ctx context.Context, url string, attempts int, interval time.Duration) error
	rpcAttempts int
	rpcInterval time.Duration
	logger      *slog.Logger
}

func NewService(engine Engine, cfg configs.Devnet) *Service {
	return &Service{
		engine:      engine,
		cfg:         cfg,
		waitForRPC:  chain.WaitForRPC,
		rpcAttempts: rpcAttempts,
		rpcInterval: rpcInterval,
		logger:      logger.Named("devnet").With("container", cfg.ContainerName),
	}
}

// URL is the RPC endpoint of the devnet on the host.
func (s *Service) URL() string {
	return fmt.Sprintf("http://127.0.0.1:%d", s.cfg.Port)
}

// Up starts the devnet, reusing a running container of the same name, and returns once it
// answers RPC. A stopped container of that name is replaced.
func (s *Service) Up(ctx context.Context) (string, error) {
	id, running, err := s.engine.FindContainer(ctx, s.cfg.ContainerName)
	if err != nil {
		return "", err
	}

	switch {
	case running:
		s.logger.With("id", id).Info("devnet already running")
	default:
		if id != "" {
			s.logger.With("id", id).Info("removing stopped devnet container")
			if err := s.engine.Remove(ctx, id); err != nil {
				return "", err
			}
		}

		if err := s.engine.EnsureImage(ctx, s.cfg.Image); err != nil {
			return "", err
		}

		id, err = s.engine.StartDetached(ctx, docker.DetachedOptions{
			Name:       s.cfg.ContainerName,
			Image:      s.cfg.Image,
			Entrypoint: []string{"anvil"},
			Cmd:        s.anvilArgs(),
			Labels:     map[string]string{labelProject: "devnet"},
			Ports:      map[string]string{anvilPort + "/tcp": strconv.Itoa(s.cfg.Port)},
		})
		if err != nil {
			return "", err
		}
	}

	if err := s.waitForRPC(ctx, s.URL(), s.rpcAttempts, s.rpcInterval); err != nil {
		return "", fmt.Errorf("devnet did not become ready: %w", err)
	}

	s.logger.With("url", s.URL()).With("chain_id", s.cfg.ChainID).Info("devnet is ready")

	return id, nil
}

// Down removes the devnet container. It is not an error when none exists.
func (s *Service) Down(ctx context.Context) error {
	id, _, err := s.engine.FindContainer(ctx, s.cfg.ContainerName)
	if err != nil {
		return err
	}
	if id == "" {
		s.logger.Info("devnet not found, nothing to remove")
		return nil
	}

	if err := s.engine.Remove(ctx, id); err != nil {
		return err
	}

	s.logger.With("id", id).Info("devnet removed")
	return nil
}

func (s *Service) anvilArgs() []string {
	args := []string{
		"--host", "0.0.0.0",
		"--port", anvilPort,
		"--chain-id", strconv.FormatInt(s.cfg.ChainID, 10),
	}

	// without a block time anvil mines on every transaction
	if s.cfg.BlockTime > 0 {
		args = append(args, "--block-time", strconv.FormatFloat(s.cfg.BlockTime.Seconds(), 'f', -1, 64))
	}

	return args
}
