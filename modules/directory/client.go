package directorysvc

import (
	"context"
	"fmt"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/modcrafter77/hyperspot/pkg/logger"
	"github.com/modcrafter77/hyperspot/pkg/modkit/directory"
)

// Client is the gRPC client of the directory facade; it implements
// directory.API and is what out-of-process modules use to reach the host.
type Client struct {
	conn    *grpc.ClientConn
	timeout time.Duration
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithRPCTimeout bounds each directory call.
func WithRPCTimeout(d time.Duration) ClientOption {
	return func(c *Client) { c.timeout = d }
}

// Dial connects to a remote directory facade. The target follows gRPC target
// syntax (host:port, unix://path).
func Dial(target string, opts ...ClientOption) (*Client, error) {
	conn, err := grpc.NewClient(target,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(grpc.CallContentSubtype(CodecName)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create directory client for %q: %w", target, err)
	}

	c := &Client{
		conn:    conn,
		timeout: 10 * time.Second,
	}
	for _, opt := range opts {
		opt(c)
	}

	logger.Log.Debug("Directory gRPC client created", "target", target)
	return c, nil
}

// Close tears down the connection.
func (c *Client) Close() error {
	return c.conn.Close()
}

func (c *Client) invoke(ctx context.Context, method string, req, resp any) error {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}
	return c.conn.Invoke(ctx, "/"+ServiceName+"/"+method, req, resp)
}

// ResolveService resolves a service name to a live endpoint.
func (c *Client) ResolveService(ctx context.Context, serviceName string) (directory.Endpoint, error) {
	resp := &ResolveServiceResponse{}
	err := c.invoke(ctx, "ResolveService", &ResolveServiceRequest{ServiceName: serviceName}, resp)
	if err != nil {
		return directory.Endpoint{}, err
	}
	return directory.FromURI(resp.EndpointURI), nil
}

// ListInstances lists the instances of a module.
func (c *Client) ListInstances(ctx context.Context, module string) ([]directory.ServiceInstanceInfo, error) {
	resp := &ListInstancesResponse{}
	if err := c.invoke(ctx, "ListInstances", &ListInstancesRequest{Module: module}, resp); err != nil {
		return nil, err
	}

	infos := make([]directory.ServiceInstanceInfo, 0, len(resp.Instances))
	for _, inst := range resp.Instances {
		infos = append(infos, directory.ServiceInstanceInfo{
			Module:     inst.Module,
			InstanceID: inst.InstanceID,
			Endpoint:   directory.FromURI(inst.EndpointURI),
			Version:    inst.Version,
		})
	}
	return infos, nil
}

// RegisterInstance registers a new module instance.
func (c *Client) RegisterInstance(ctx context.Context, info directory.RegisterInstanceInfo) error {
	req := &RegisterInstanceRequest{
		Module:     info.Module,
		InstanceID: info.InstanceID,
		Version:    info.Version,
	}
	if info.ControlEndpoint != nil {
		req.ControlEndpoint = info.ControlEndpoint.URI
	}
	if len(info.Services) > 0 {
		req.Services = make(map[string]string, len(info.Services))
		for name, ep := range info.Services {
			req.Services[name] = ep.URI
		}
	}

	return c.invoke(ctx, "RegisterInstance", req, &RegisterInstanceResponse{})
}

// SendHeartbeat marks an instance alive.
func (c *Client) SendHeartbeat(ctx context.Context, module, instanceID string) error {
	req := &HeartbeatRequest{Module: module, InstanceID: instanceID}
	return c.invoke(ctx, "Heartbeat", req, &HeartbeatResponse{})
}
