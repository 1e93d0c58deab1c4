package directory

import (
	"context"
	"fmt"
	"time"
)

// ServiceInstanceInfo describes one instance to directory consumers.
type ServiceInstanceInfo struct {
	Module     string
	InstanceID string
	Endpoint   Endpoint
	Version    string
}

// RegisterInstanceInfo is the payload for registering a new instance.
type RegisterInstanceInfo struct {
	Module          string
	InstanceID      string
	ControlEndpoint *Endpoint
	Services        map[string]Endpoint
	Version         string
}

// API is the directory facade exposed to in-process callers and, through the
// gRPC mirror in modules/directory, to remote peers.
type API interface {
	// ResolveService resolves a service name to a live endpoint.
	ResolveService(ctx context.Context, serviceName string) (Endpoint, error)

	// ListInstances lists the instances of a module.
	ListInstances(ctx context.Context, module string) ([]ServiceInstanceInfo, error)

	// RegisterInstance registers a new module instance.
	RegisterInstance(ctx context.Context, info RegisterInstanceInfo) error

	// SendHeartbeat marks an instance alive.
	SendHeartbeat(ctx context.Context, module, instanceID string) error
}

// LocalAPI implements API directly over a Manager.
type LocalAPI struct {
	mgr *Manager
}

// NewLocalAPI wraps a manager as a directory API.
func NewLocalAPI(mgr *Manager) *LocalAPI {
	return &LocalAPI{mgr: mgr}
}

// ResolveService picks a live endpoint for the service via round-robin.
func (a *LocalAPI) ResolveService(ctx context.Context, serviceName string) (Endpoint, error) {
	if _, _, ep, ok := a.mgr.PickServiceRoundRobin(serviceName); ok {
		return ep, nil
	}
	return Endpoint{}, fmt.Errorf("service not found or no healthy instances: %s", serviceName)
}

// ListInstances lists the instances of a module, each with one of its service
// endpoints. Which endpoint is reported for an instance with several services
// is not defined.
func (a *LocalAPI) ListInstances(ctx context.Context, module string) ([]ServiceInstanceInfo, error) {
	var result []ServiceInstanceInfo

	for _, inst := range a.mgr.InstancesOf(module) {
		info := ServiceInstanceInfo{
			Module:     module,
			InstanceID: inst.InstanceID,
			Version:    inst.Version,
		}
		for _, ep := range inst.Services {
			info.Endpoint = ep
			break
		}
		result = append(result, info)
	}

	return result, nil
}

// RegisterInstance registers (or replaces) an instance in the directory.
func (a *LocalAPI) RegisterInstance(ctx context.Context, info RegisterInstanceInfo) error {
	inst := NewInstance(info.Module, info.InstanceID)
	if info.ControlEndpoint != nil {
		inst = inst.WithControl(*info.ControlEndpoint)
	}
	if info.Version != "" {
		inst = inst.WithVersion(info.Version)
	}
	for name, ep := range info.Services {
		inst = inst.WithService(name, ep)
	}

	a.mgr.Register(inst)
	return nil
}

// SendHeartbeat records a heartbeat for an instance.
func (a *LocalAPI) SendHeartbeat(ctx context.Context, module, instanceID string) error {
	a.mgr.UpdateHeartbeat(module, instanceID, time.Now())
	return nil
}
