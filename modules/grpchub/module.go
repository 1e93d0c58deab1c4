// Package grpchub hosts the single gRPC server of the process. Modules with
// the grpc capability contribute installers during the registration phase;
// the hub consumes them exactly once when it serves.
package grpchub

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/keepalive"
	"google.golang.org/grpc/reflection"

	"github.com/modcrafter77/hyperspot/pkg/logger"
	"github.com/modcrafter77/hyperspot/pkg/modkit/contracts"
	"github.com/modcrafter77/hyperspot/pkg/modkit/lifecycle"
	"github.com/modcrafter77/hyperspot/pkg/modkit/modctx"
)

// ModuleName is the registry name of the hub.
const ModuleName = "grpc_hub"

// DefaultListenAddr is used when the module config leaves listen_addr unset.
const DefaultListenAddr = "127.0.0.1:50051"

// Config is the grpc_hub module configuration.
type Config struct {
	ListenAddr  string        `koanf:"listen_addr"`
	Reflection  bool          `koanf:"reflection"`
	StopTimeout time.Duration `koanf:"stop_timeout"`

	MaxRecvMsgSize int `koanf:"max_recv_msg_size"`
	MaxSendMsgSize int `koanf:"max_send_msg_size"`

	KeepAlive KeepAliveConfig `koanf:"keepalive"`
}

// KeepAliveConfig tunes server keepalive behavior.
type KeepAliveConfig struct {
	MaxConnectionIdle     time.Duration `koanf:"max_connection_idle"`
	MaxConnectionAge      time.Duration `koanf:"max_connection_age"`
	MaxConnectionAgeGrace time.Duration `koanf:"max_connection_age_grace"`
	Time                  time.Duration `koanf:"time"`
	Timeout               time.Duration `koanf:"timeout"`
}

// DefaultConfig returns the hub defaults.
func DefaultConfig() Config {
	return Config{
		ListenAddr:     DefaultListenAddr,
		Reflection:     true,
		StopTimeout:    30 * time.Second,
		MaxRecvMsgSize: 16 << 20,
		MaxSendMsgSize: 16 << 20,
		KeepAlive: KeepAliveConfig{
			MaxConnectionIdle:     15 * time.Minute,
			MaxConnectionAge:      30 * time.Minute,
			MaxConnectionAgeGrace: 5 * time.Minute,
			Time:                  5 * time.Minute,
			Timeout:               20 * time.Second,
		},
	}
}

// Hub is the gRPC hub module. Capabilities: system, stateful, grpc_hub.
type Hub struct {
	mu     sync.RWMutex
	cfg    Config
	spec   ListenSpec
	store  *contracts.InstallerStore
	health *health.Server

	wrapper *lifecycle.Wrapper
}

// New creates the hub with default configuration.
func New() *Hub {
	return &Hub{
		cfg:  DefaultConfig(),
		spec: ListenSpec{Kind: ListenTCP, Addr: DefaultListenAddr},
	}
}

// WireSystem stores the installer hand-off slot. Called before init.
func (h *Hub) WireSystem(sys *contracts.SystemContext) {
	h.mu.Lock()
	h.store = sys.GrpcInstallers
	h.mu.Unlock()
}

// Init resolves the listen configuration.
func (h *Hub) Init(ctx context.Context, mctx *modctx.Context) error {
	cfg := DefaultConfig()
	if err := mctx.Config(&cfg); err != nil {
		return err
	}

	spec, err := ParseListenSpec(cfg.ListenAddr)
	if err != nil {
		return fmt.Errorf("grpc_hub: %w", err)
	}

	h.mu.Lock()
	h.cfg = cfg
	h.spec = spec
	h.mu.Unlock()

	h.wrapper = lifecycle.NewWrapper(ModuleName, h.serve,
		lifecycle.WithReadyGate(),
		lifecycle.WithStopTimeout(cfg.StopTimeout),
	)

	logger.Log.Info("gRPC hub initialized", "listen_addr", cfg.ListenAddr)
	return nil
}

func (h *Hub) config() Config {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.cfg
}

func (h *Hub) listenSpec() ListenSpec {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.spec
}

func (h *Hub) installerStore() *contracts.InstallerStore {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.store
}

// Start brings the server up; it returns only after the listener is bound.
func (h *Hub) Start(ctx context.Context) error {
	if h.wrapper == nil {
		return errors.New("grpc_hub started before init")
	}
	return h.wrapper.Start(ctx)
}

// Stop performs a graceful shutdown within the stop timeout.
func (h *Hub) Stop(ctx context.Context) error {
	if h.wrapper == nil {
		return nil
	}
	return h.wrapper.Stop(ctx)
}

// serve is the lifecycle runnable: take the installers once, build the route
// table, bind the listener, signal readiness only after a successful bind,
// then serve until cancellation.
func (h *Hub) serve(ctx context.Context, ready *lifecycle.ReadySignal) error {
	store := h.installerStore()
	if store == nil {
		return errors.New("installer store not wired into grpc_hub")
	}

	installers, err := store.Take()
	if err != nil {
		return err
	}

	if err := checkDuplicates(installers); err != nil {
		return err
	}

	if len(installers) == 0 {
		// Nothing to serve; stay idle but ready so dependents can start.
		ready.Notify()
		<-ctx.Done()
		return ctx.Err()
	}

	server := h.buildServer(installers)

	lis, err := h.listenSpec().Listen()
	if err != nil {
		return fmt.Errorf("grpc_hub failed to bind %q: %w", h.listenSpec().Addr, err)
	}

	logger.Log.Info("gRPC server listening",
		"addr", lis.Addr().String(),
		"services", len(installers),
	)

	// Readiness fires strictly after a successful bind so that dependents
	// and directory consumers observe a live endpoint.
	ready.Notify()

	errCh := make(chan error, 1)
	go func() { errCh <- server.Serve(lis) }()

	select {
	case <-ctx.Done():
		h.health.Shutdown()
		server.GracefulStop()
		return ctx.Err()
	case err := <-errCh:
		return err
	}
}

func (h *Hub) buildServer(installers []contracts.GrpcInstaller) *grpc.Server {
	cfg := h.config()

	kaParams := keepalive.ServerParameters{
		MaxConnectionIdle:     cfg.KeepAlive.MaxConnectionIdle,
		MaxConnectionAge:      cfg.KeepAlive.MaxConnectionAge,
		MaxConnectionAgeGrace: cfg.KeepAlive.MaxConnectionAgeGrace,
		Time:                  cfg.KeepAlive.Time,
		Timeout:               cfg.KeepAlive.Timeout,
	}

	kaPolicy := keepalive.EnforcementPolicy{
		MinTime:             5 * time.Second,
		PermitWithoutStream: true,
	}

	server := grpc.NewServer(
		grpc.MaxRecvMsgSize(cfg.MaxRecvMsgSize),
		grpc.MaxSendMsgSize(cfg.MaxSendMsgSize),
		grpc.KeepaliveParams(kaParams),
		grpc.KeepaliveEnforcementPolicy(kaPolicy),
	)

	h.health = health.NewServer()
	grpc_health_v1.RegisterHealthServer(server, h.health)

	for _, installer := range installers {
		installer.Register(server)
		h.health.SetServingStatus(installer.ServiceName, grpc_health_v1.HealthCheckResponse_SERVING)
	}

	if cfg.Reflection {
		reflection.Register(server)
	}

	return server
}

func checkDuplicates(installers []contracts.GrpcInstaller) error {
	seen := make(map[string]bool, len(installers))
	for _, installer := range installers {
		if seen[installer.ServiceName] {
			return fmt.Errorf("duplicate gRPC service detected: %s", installer.ServiceName)
		}
		seen[installer.ServiceName] = true
	}
	return nil
}
