package docker

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/containerd/errdefs"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/client"
	"github.com/docker/go-connections/nat"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeAPI struct {
	images     map[string]bool
	pullOutput string
	pulled     []string
	containers []container.Summary
	removed    []string
	removeErr  error
}

func (f *fakeAPI) ImageInspect(_ context.Context, imageID string, _ ...client.ImageInspectOption) (image.InspectResponse, error) {
	if f.images[imageID] {
		return image.InspectResponse{ID: imageID}, nil
	}
	return image.InspectResponse{}, errdefs.ErrNotFound
}

func (f *fakeAPI) ImagePull(_ context.Context, ref string, _ image.PullOptions) (io.ReadCloser, error) {
	f.pulled = append(f.pulled, ref)
	return io.NopCloser(strings.NewReader(f.pullOutput)), nil
}

func (f *fakeAPI) ContainerList(context.Context, container.ListOptions) ([]container.Summary, error) {
	return f.containers, nil
}

func (f *fakeAPI) ContainerRemove(_ context.Context, containerID string, _ container.RemoveOptions) error {
	f.removed = append(f.removed, containerID)
	return f.removeErr
}

func (f *fakeAPI) Close() error { return nil }

func TestEnsureImagePullsOnlyMissingImages(t *testing.T) {
	api := &fakeAPI{
		images:     map[string]bool{"ethereum/solc:0.8.17": true},
		pullOutput: `{"status":"Pulling from foundry-rs/foundry"}` + "\n" + `{"status":"Download complete"}`,
	}
	c := NewWithAPI(api)
	ctx := context.Background()

	require.NoError(t, c.EnsureImage(ctx, "ethereum/solc:0.8.17"))
	assert.Empty(t, api.pulled)

	require.NoError(t, c.EnsureImage(ctx, "ghcr.io/foundry-rs/foundry:latest"))
	assert.Equal(t, []string{"ghcr.io/foundry-rs/foundry:latest"}, api.pulled)
}

func TestPullImageSurfacesStreamErrors(t *testing.T) {
	api := &fakeAPI{pullOutput: `{"error":"manifest unknown","errorDetail":{"message":"manifest unknown"}}`}

	err := NewWithAPI(api).PullImage(context.Background(), "ethereum/solc:9.9.9")
	assert.EqualError(t, err, "pull failed: manifest unknown")
}

func TestFindContainer(t *testing.T) {
	api := &fakeAPI{containers: []container.Summary{
		{ID: "abc", Names: []string{"/other"}, State: "running"},
		{ID: "def", Names: []string{"/sbt-devnet"}, State: "exited"},
	}}
	c := NewWithAPI(api)

	id, running, err := c.FindContainer(context.Background(), "sbt-devnet")
	require.NoError(t, err)
	assert.Equal(t, "def", id)
	assert.False(t, running)

	id, _, err = c.FindContainer(context.Background(), "missing")
	require.NoError(t, err)
	assert.Empty(t, id)
}

func TestRemoveIgnoresMissingContainers(t *testing.T) {
	api := &fakeAPI{removeErr: errdefs.ErrNotFound}
	require.NoError(t, NewWithAPI(api).Remove(context.Background(), "gone"))

	api.removeErr = errors.New("daemon unavailable")
	assert.ErrorContains(t, NewWithAPI(api).Remove(context.Background(), "x"), "daemon unavailable")
}

func TestRunNeedsEngineClient(t *testing.T) {
	c := NewWithAPI(&fakeAPI{})

	_, err := c.Run(context.Background(), RunOptions{Image: "ethereum/solc:0.8.17"})
	assert.ErrorIs(t, err, errNoEngine)

	_, err = c.StartDetached(context.Background(), DetachedOptions{Name: "sbt-devnet"})
	assert.ErrorIs(t, err, errNoEngine)
}

func TestPortBindings(t *testing.T) {
	exposed, bindings, err := portBindings(map[string]string{"8545/tcp": "18545"})
	require.NoError(t, err)

	port := nat.Port("8545/tcp")
	assert.Contains(t, exposed, port)
	assert.Equal(t, []nat.PortBinding{{HostIP: "127.0.0.1", HostPort: "18545"}}, bindings[port])

	_, _, err = portBindings(map[string]string{"not-a-port/tcp": "1"})
	assert.Error(t, err)
}
