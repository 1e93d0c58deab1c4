package directorysvc

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/modcrafter77/hyperspot/pkg/modkit/directory"
)

// ServiceName is the fully-qualified gRPC service name of the facade.
const ServiceName = "hyperspot.directory.v1.DirectoryService"

// Wire messages of the directory facade.

type ResolveServiceRequest struct {
	ServiceName string `json:"service_name"`
}

type ResolveServiceResponse struct {
	EndpointURI string `json:"endpoint_uri"`
}

type ListInstancesRequest struct {
	Module string `json:"module"`
}

type InstanceInfo struct {
	Module      string `json:"module"`
	InstanceID  string `json:"instance_id"`
	EndpointURI string `json:"endpoint_uri"`
	Version     string `json:"version,omitempty"`
}

type ListInstancesResponse struct {
	Instances []InstanceInfo `json:"instances"`
}

type RegisterInstanceRequest struct {
	Module          string            `json:"module"`
	InstanceID      string            `json:"instance_id"`
	ControlEndpoint string            `json:"control_endpoint,omitempty"`
	Services        map[string]string `json:"services,omitempty"`
	Version         string            `json:"version,omitempty"`
}

type RegisterInstanceResponse struct{}

type HeartbeatRequest struct {
	Module     string `json:"module"`
	InstanceID string `json:"instance_id"`
}

type HeartbeatResponse struct{}

// server adapts a directory.API to the gRPC facade.
type server struct {
	api directory.API
}

func newServer(api directory.API) *server {
	return &server{api: api}
}

func (s *server) ResolveService(ctx context.Context, req *ResolveServiceRequest) (*ResolveServiceResponse, error) {
	ep, err := s.api.ResolveService(ctx, req.ServiceName)
	if err != nil {
		return nil, status.Error(codes.NotFound, err.Error())
	}
	return &ResolveServiceResponse{EndpointURI: ep.URI}, nil
}

func (s *server) ListInstances(ctx context.Context, req *ListInstancesRequest) (*ListInstancesResponse, error) {
	infos, err := s.api.ListInstances(ctx, req.Module)
	if err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}

	resp := &ListInstancesResponse{}
	for _, info := range infos {
		resp.Instances = append(resp.Instances, InstanceInfo{
			Module:      info.Module,
			InstanceID:  info.InstanceID,
			EndpointURI: info.Endpoint.URI,
			Version:     info.Version,
		})
	}
	return resp, nil
}

func (s *server) RegisterInstance(ctx context.Context, req *RegisterInstanceRequest) (*RegisterInstanceResponse, error) {
	if req.Module == "" || req.InstanceID == "" {
		return nil, status.Error(codes.InvalidArgument, "module and instance_id are required")
	}

	info := directory.RegisterInstanceInfo{
		Module:     req.Module,
		InstanceID: req.InstanceID,
		Version:    req.Version,
	}
	if req.ControlEndpoint != "" {
		ep := directory.FromURI(req.ControlEndpoint)
		info.ControlEndpoint = &ep
	}
	if len(req.Services) > 0 {
		info.Services = make(map[string]directory.Endpoint, len(req.Services))
		for name, uri := range req.Services {
			info.Services[name] = directory.FromURI(uri)
		}
	}

	if err := s.api.RegisterInstance(ctx, info); err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	return &RegisterInstanceResponse{}, nil
}

func (s *server) Heartbeat(ctx context.Context, req *HeartbeatRequest) (*HeartbeatResponse, error) {
	if err := s.api.SendHeartbeat(ctx, req.Module, req.InstanceID); err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	return &HeartbeatResponse{}, nil
}

// serviceDesc is the hand-written service descriptor; the facade has no
// generated stubs because its wire format is framework-internal JSON.
var serviceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*directoryService)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "ResolveService", Handler: resolveServiceHandler},
		{MethodName: "ListInstances", Handler: listInstancesHandler},
		{MethodName: "RegisterInstance", Handler: registerInstanceHandler},
		{MethodName: "Heartbeat", Handler: heartbeatHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "hyperspot/directory/v1/directory.json",
}

// directoryService is the handler contract backing the descriptor.
type directoryService interface {
	ResolveService(ctx context.Context, req *ResolveServiceRequest) (*ResolveServiceResponse, error)
	ListInstances(ctx context.Context, req *ListInstancesRequest) (*ListInstancesResponse, error)
	RegisterInstance(ctx context.Context, req *RegisterInstanceRequest) (*RegisterInstanceResponse, error)
	Heartbeat(ctx context.Context, req *HeartbeatRequest) (*HeartbeatResponse, error)
}

func resolveServiceHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(ResolveServiceRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(directoryService).ResolveService(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + ServiceName + "/ResolveService"}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(directoryService).ResolveService(ctx, req.(*ResolveServiceRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func listInstancesHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(ListInstancesRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(directoryService).ListInstances(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + ServiceName + "/ListInstances"}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(directoryService).ListInstances(ctx, req.(*ListInstancesRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func registerInstanceHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(RegisterInstanceRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(directoryService).RegisterInstance(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + ServiceName + "/RegisterInstance"}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(directoryService).RegisterInstance(ctx, req.(*RegisterInstanceRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func heartbeatHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(HeartbeatRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(directoryService).Heartbeat(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + ServiceName + "/Heartbeat"}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(directoryService).Heartbeat(ctx, req.(*HeartbeatRequest))
	}
	return interceptor(ctx, in, info, handler)
}
