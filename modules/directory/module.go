// Package directorysvc is the directory service module: it publishes the
// in-process directory API into the client hub, mirrors it as a gRPC facade
// on the shared hub, and runs the stale-instance evictor.
package directorysvc

import (
	"context"
	"errors"
	"sync"
	"time"

	"google.golang.org/grpc"

	"github.com/modcrafter77/hyperspot/pkg/logger"
	"github.com/modcrafter77/hyperspot/pkg/modkit/client"
	"github.com/modcrafter77/hyperspot/pkg/modkit/contracts"
	"github.com/modcrafter77/hyperspot/pkg/modkit/directory"
	"github.com/modcrafter77/hyperspot/pkg/modkit/lifecycle"
	"github.com/modcrafter77/hyperspot/pkg/modkit/modctx"
)

// ModuleName is the registry name of the directory service.
const ModuleName = "directory_service"

// Config is the directory_service module configuration.
type Config struct {
	HeartbeatTTL   time.Duration `koanf:"heartbeat_ttl"`
	HeartbeatGrace time.Duration `koanf:"heartbeat_grace"`
	EvictInterval  time.Duration `koanf:"evict_interval"`
}

// DefaultConfig returns the directory defaults.
func DefaultConfig() Config {
	return Config{
		HeartbeatTTL:   directory.DefaultHeartbeatTTL,
		HeartbeatGrace: directory.DefaultHeartbeatGrace,
		EvictInterval:  5 * time.Second,
	}
}

// Service is the directory module. Capabilities: system, grpc, stateful.
type Service struct {
	mu  sync.RWMutex
	cfg Config
	mgr *directory.Manager
	api directory.API

	wrapper *lifecycle.Wrapper
}

// New creates the module.
func New() *Service {
	return &Service{cfg: DefaultConfig()}
}

// WireSystem receives the shared instance manager.
func (s *Service) WireSystem(sys *contracts.SystemContext) {
	s.mu.Lock()
	s.mgr = sys.Manager
	s.mu.Unlock()
}

func (s *Service) manager() *directory.Manager {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.mgr
}

func (s *Service) config() Config {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg
}

// API returns the in-process directory API (nil before init).
func (s *Service) API() directory.API {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.api
}

// Init applies the heartbeat policy and publishes the directory API into the
// client hub for other modules to consume.
func (s *Service) Init(ctx context.Context, mctx *modctx.Context) error {
	cfg := DefaultConfig()
	if err := mctx.Config(&cfg); err != nil {
		return err
	}

	mgr := s.manager()
	if mgr == nil {
		return errors.New("directory_service initialized without system wiring")
	}
	mgr.WithHeartbeatPolicy(cfg.HeartbeatTTL, cfg.HeartbeatGrace)

	api := directory.NewLocalAPI(mgr)

	s.mu.Lock()
	s.cfg = cfg
	s.api = api
	s.mu.Unlock()

	client.Register[directory.API](mctx.Hub(), api)

	s.wrapper = lifecycle.NewWrapper(ModuleName, s.evictLoop)

	logger.Log.Info("Directory service initialized",
		"heartbeat_ttl", cfg.HeartbeatTTL,
		"heartbeat_grace", cfg.HeartbeatGrace,
	)
	return nil
}

// GrpcServices exposes the directory facade on the shared gRPC hub.
func (s *Service) GrpcServices(ctx context.Context, mctx *modctx.Context) ([]contracts.GrpcInstaller, error) {
	api := s.API()
	if api == nil {
		return nil, errors.New("directory_service gRPC registration before init")
	}

	srv := newServer(api)
	return []contracts.GrpcInstaller{
		{
			ServiceName: ServiceName,
			Register: func(gs *grpc.Server) {
				gs.RegisterService(&serviceDesc, srv)
			},
		},
	}, nil
}

// Start launches the stale-instance evictor.
func (s *Service) Start(ctx context.Context) error {
	if s.wrapper == nil {
		return errors.New("directory_service started before init")
	}
	return s.wrapper.Start(ctx)
}

// Stop terminates the evictor.
func (s *Service) Stop(ctx context.Context) error {
	if s.wrapper == nil {
		return nil
	}
	return s.wrapper.Stop(ctx)
}

// evictLoop applies the two-stage decay on a fixed interval.
func (s *Service) evictLoop(ctx context.Context, _ *lifecycle.ReadySignal) error {
	interval := s.config().EvictInterval
	if interval <= 0 {
		interval = 5 * time.Second
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.manager().EvictStale(time.Now())
		}
	}
}
