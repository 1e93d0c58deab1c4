package runtime

import (
	"context"
	"time"
)

// BackendKind identifies how out-of-process instances are hosted.
type BackendKind string

const (
	BackendLocalProcess BackendKind = "local_process"
	BackendStatic       BackendKind = "static"
	BackendMock         BackendKind = "mock"
)

// OopModuleConfig describes how to spawn one out-of-process module instance.
type OopModuleConfig struct {
	Name    string
	Binary  string
	Args    []string
	Env     map[string]string
	Backend BackendKind
	Version string
}

// InstanceHandle identifies a spawned instance. Handles are value types and
// safe to copy.
type InstanceHandle struct {
	Module     string
	InstanceID string
	Backend    BackendKind
	PID        int
	CreatedAt  time.Time
}

// Backend spawns, stops and lists out-of-process module instances.
type Backend interface {
	SpawnInstance(ctx context.Context, cfg *OopModuleConfig) (InstanceHandle, error)
	StopInstance(ctx context.Context, handle InstanceHandle) error
	ListInstances(ctx context.Context, module string) ([]InstanceHandle, error)
}
