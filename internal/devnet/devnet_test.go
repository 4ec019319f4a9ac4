package devnet

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/compose-network/soulbound-harness/configs"
	"github.com/compose-network/soulbound-harness/internal/chain"
	"github.com/compose-network/soulbound-harness/internal/docker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m,
		goleak.IgnoreTopFunction("net/http.(*persistConn).readLoop"),
		goleak.IgnoreTopFunction("net/http.(*persistConn).writeLoop"),
		goleak.IgnoreTopFunction("internal/poll.runtime_pollWait"),
	)
}

type fakeEngine struct {
	id       string
	running  bool
	started  []docker.DetachedOptions
	ensured  []string
	removed  []string
	startErr error
}

func (f *fakeEngine) EnsureImage(_ context.Context, image string) error {
	f.ensured = append(f.ensured, image)
	return nil
}

func (f *fakeEngine) FindContainer(context.Context, string) (string, bool, error) {
	return f.id, f.running, nil
}

func (f *fakeEngine) StartDetached(_ context.Context, opts docker.DetachedOptions) (string, error) {
	if f.startErr != nil {
		return "", f.startErr
	}
	f.started = append(f.started, opts)
	f.id, f.running = "new-container", true
	return f.id, nil
}

func (f *fakeEngine) Remove(_ context.Context, containerID string) error {
	f.removed = append(f.removed, containerID)
	f.id, f.running = "", false
	return nil
}

// newRPC answers eth_blockNumber after failing the first unavailable requests.
func newRPC(t *testing.T, unavailable int32) *httptest.Server {
	t.Helper()

	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) <= unavailable {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}

		var req struct {
			ID     json.RawMessage `json:"id"`
			Method string          `json:"method"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"jsonrpc": "2.0", "id": req.ID, "result": "0x2a"})
	}))
	t.Cleanup(server.Close)

	return server
}

func newService(t *testing.T, engine Engine, rpcURL string) *Service {
	t.Helper()

	cfg := configs.MustDefaultConfig().Devnet
	service := NewService(engine, cfg)
	service.rpcAttempts = 5
	service.rpcInterval = 10 * time.Millisecond
	service.waitForRPC = func(ctx context.Context, _ string, attempts int, interval time.Duration) error {
		return chain.WaitForRPC(ctx, rpcURL, attempts, interval)
	}
	return service
}

func TestUpStartsAnvil(t *testing.T) {
	engine := &fakeEngine{}
	server := newRPC(t, 2)

	id, err := newService(t, engine, server.URL).Up(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "new-container", id)

	assert.Equal(t, []string{"ghcr.io/foundry-rs/foundry:latest"}, engine.ensured)
	require.Len(t, engine.started, 1)

	opts := engine.started[0]
	assert.Equal(t, "sbt-devnet", opts.Name)
	assert.Equal(t, []string{"anvil"}, opts.Entrypoint)
	assert.Equal(t, []string{"--host", "0.0.0.0", "--port", "8545", "--chain-id", "31337", "--block-time", "1"}, opts.Cmd)
	assert.Equal(t, map[string]string{"8545/tcp": "8545"}, opts.Ports)
}

func TestUpReusesRunningContainer(t *testing.T) {
	engine := &fakeEngine{id: "existing", running: true}
	server := newRPC(t, 0)

	id, err := newService(t, engine, server.URL).Up(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "existing", id)
	assert.Empty(t, engine.started)
	assert.Empty(t, engine.ensured)
}

func TestUpReplacesStoppedContainer(t *testing.T) {
	engine := &fakeEngine{id: "stopped"}
	server := newRPC(t, 0)

	_, err := newService(t, engine, server.URL).Up(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"stopped"}, engine.removed)
	assert.Len(t, engine.started, 1)
}

func TestUpFailsWhenRPCNeverAnswers(t *testing.T) {
	engine := &fakeEngine{}
	server := newRPC(t, 100)

	_, err := newService(t, engine, server.URL).Up(context.Background())
	assert.ErrorContains(t, err, "devnet did not become ready")
}

func TestUpPropagatesStartError(t *testing.T) {
	engine := &fakeEngine{startErr: errors.New("port is already allocated")}

	_, err := newService(t, engine, "http://127.0.0.1:1").Up(context.Background())
	assert.ErrorContains(t, err, "port is already allocated")
}

func TestDown(t *testing.T) {
	engine := &fakeEngine{id: "existing", running: true}
	service := newService(t, engine, "")

	require.NoError(t, service.Down(context.Background()))
	assert.Equal(t, []string{"existing"}, engine.removed)

	require.NoError(t, service.Down(context.Background()))
	assert.Len(t, engine.removed, 1)
}

func TestAnvilArgsWithoutBlockTime(t *testing.T) {
	cfg := configs.MustDefaultConfig().Devnet
	cfg.BlockTime = 0
	cfg.ChainID = 1337

	service := NewService(&fakeEngine{}, cfg)
	assert.Equal(t, []string{"--host", "0.0.0.0", "--port", "8545", "--chain-id", "1337"}, service.anvilArgs())
	assert.Equal(t, "http://127.0.0.1:8545", service.URL())
}
