package runtime

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/modcrafter77/hyperspot/pkg/logger"
)

// LocalProcessBackend spawns module instances as child processes of this
// process and tracks their handles.
type LocalProcessBackend struct {
	mu        sync.RWMutex
	instances map[string]*localInstance
}

type localInstance struct {
	handle InstanceHandle
	cmd    *exec.Cmd
}

// NewLocalProcessBackend creates an empty backend.
func NewLocalProcessBackend() *LocalProcessBackend {
	return &LocalProcessBackend{instances: make(map[string]*localInstance)}
}

// SpawnInstance starts a child process for the module and returns its handle.
func (b *LocalProcessBackend) SpawnInstance(ctx context.Context, cfg *OopModuleConfig) (InstanceHandle, error) {
	if cfg.Backend != BackendLocalProcess {
		return InstanceHandle{}, fmt.Errorf(
			"local process backend can only spawn %q instances, got %q",
			BackendLocalProcess, cfg.Backend)
	}
	if cfg.Binary == "" {
		return InstanceHandle{}, fmt.Errorf("binary path must be set for the local process backend")
	}

	instanceID := uuid.NewString()

	cmd := exec.Command(cfg.Binary, cfg.Args...)
	cmd.Env = os.Environ()
	for k, v := range cfg.Env {
		cmd.Env = append(cmd.Env, k+"="+v)
	}

	if err := cmd.Start(); err != nil {
		return InstanceHandle{}, fmt.Errorf("failed to spawn process %q: %w", cfg.Binary, err)
	}

	handle := InstanceHandle{
		Module:     cfg.Name,
		InstanceID: instanceID,
		Backend:    BackendLocalProcess,
		PID:        cmd.Process.Pid,
		CreatedAt:  time.Now(),
	}

	b.mu.Lock()
	b.instances[instanceID] = &localInstance{handle: handle, cmd: cmd}
	b.mu.Unlock()

	// Reap the child when it exits on its own.
	go func() { _ = cmd.Wait() }()

	return handle, nil
}

// StopInstance best-effort kills the child. Already-exited children are not
// errors; unknown handles are a no-op.
func (b *LocalProcessBackend) StopInstance(ctx context.Context, handle InstanceHandle) error {
	b.mu.Lock()
	local, ok := b.instances[handle.InstanceID]
	delete(b.instances, handle.InstanceID)
	b.mu.Unlock()

	if !ok {
		logger.Log.Debug("StopInstance called for unknown instance, ignoring",
			"module", handle.Module, "instance_id", handle.InstanceID)
		return nil
	}

	logger.Log.Debug("Stopping local process instance",
		"module", handle.Module, "instance_id", handle.InstanceID, "pid", local.handle.PID)

	if local.cmd.Process != nil {
		if err := local.cmd.Process.Kill(); err != nil {
			logger.Log.Warn("Failed to kill local process instance",
				"module", handle.Module, "instance_id", handle.InstanceID, "error", err)
		}
	}

	return nil
}

// ListInstances returns the handles of this module's tracked children.
func (b *LocalProcessBackend) ListInstances(ctx context.Context, module string) ([]InstanceHandle, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	var out []InstanceHandle
	for _, inst := range b.instances {
		if inst.handle.Module == module {
			out = append(out, inst.handle)
		}
	}
	return out, nil
}
