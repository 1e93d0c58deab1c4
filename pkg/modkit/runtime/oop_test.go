package runtime

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/modcrafter77/hyperspot/pkg/config"
	"github.com/modcrafter77/hyperspot/pkg/modkit/directory"
)

// fakeDirectory records directory calls for the OoP bootstrap test.
type fakeDirectory struct {
	mu         sync.Mutex
	registered []directory.RegisterInstanceInfo
	heartbeats int
}

func (f *fakeDirectory) ResolveService(ctx context.Context, serviceName string) (directory.Endpoint, error) {
	return directory.Endpoint{}, nil
}

func (f *fakeDirectory) ListInstances(ctx context.Context, module string) ([]directory.ServiceInstanceInfo, error) {
	return nil, nil
}

func (f *fakeDirectory) RegisterInstance(ctx context.Context, info directory.RegisterInstanceInfo) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.registered = append(f.registered, info)
	return nil
}

func (f *fakeDirectory) SendHeartbeat(ctx context.Context, module, instanceID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.heartbeats++
	return nil
}

func (f *fakeDirectory) heartbeatCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.heartbeats
}

func TestRunOutOfProcess(t *testing.T) {
	dir := &fakeDirectory{}
	stop := make(chan struct{})

	done := make(chan error, 1)
	go func() {
		done <- RunOutOfProcess(OopRunOptions{
			ModuleName:        "file_parser",
			Directory:         dir,
			Version:           "0.1.0",
			HeartbeatInterval: 10 * time.Millisecond,
			Run: RunOptions{
				Provider: config.MapProvider{},
				Shutdown: FromChannel(stop),
			},
		})
	}()

	// Registration happens before the lifecycle starts; heartbeats follow.
	require.Eventually(t, func() bool {
		return dir.heartbeatCount() >= 2
	}, 2*time.Second, 10*time.Millisecond)

	close(stop)

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("OoP runtime did not shut down")
	}

	dir.mu.Lock()
	defer dir.mu.Unlock()
	require.Len(t, dir.registered, 1)
	assert.Equal(t, "file_parser", dir.registered[0].Module)
	assert.NotEmpty(t, dir.registered[0].InstanceID)
	assert.Equal(t, "0.1.0", dir.registered[0].Version)
}
