// Package contracts defines the capability interfaces a module may implement
// and the wiring types the runtime shares with system modules.
package contracts

import (
	"context"

	"github.com/go-chi/chi/v5"
	"google.golang.org/grpc"

	"github.com/modcrafter77/hyperspot/pkg/db"
	"github.com/modcrafter77/hyperspot/pkg/modkit/api"
	"github.com/modcrafter77/hyperspot/pkg/modkit/directory"
	"github.com/modcrafter77/hyperspot/pkg/modkit/modctx"
)

// Module is the core capability every module implements. Init performs
// dependency wiring and may publish into the client hub; it must not start
// background work or open listening sockets.
type Module interface {
	Init(ctx context.Context, mctx *modctx.Context) error
}

// SystemModule receives runtime internals before init. Only modules declared
// with the system capability are wired; ordinary modules never see these
// handles. The call must be side-effect-free beyond storing them.
type SystemModule interface {
	WireSystem(sys *SystemContext)
}

// SystemContext carries the runtime internals handed to system modules.
type SystemContext struct {
	// Manager is the process-wide service instance directory.
	Manager *directory.Manager

	// GrpcInstallers is the installer hand-off slot consumed by the gRPC hub.
	GrpcInstallers *InstallerStore
}

// DBModule runs schema migrations. Called after system wiring and before
// init, with a resolved handle; a declared capability without a configured
// database is logged and skipped.
type DBModule interface {
	Migrate(ctx context.Context, handle *db.Handle) error
}

// RestfulModule contributes routes during the REST composition phase.
// Registration is pure wiring; the router is not served yet.
type RestfulModule interface {
	RegisterRest(ctx context.Context, mctx *modctx.Context, r chi.Router, reg api.Registry) (chi.Router, error)
}

// RestHostModule owns the HTTP router and the OpenAPI registry. At most one
// per process. Neither hook starts the server.
type RestHostModule interface {
	// RestPrepare attaches cross-cutting middleware and health endpoints to
	// the empty router.
	RestPrepare(ctx context.Context, mctx *modctx.Context, r chi.Router) (chi.Router, error)

	// RestFinalize attaches /openapi.json, the docs page and the full
	// middleware stack, and persists the final router for the serve phase.
	RestFinalize(ctx context.Context, mctx *modctx.Context, r chi.Router) (chi.Router, error)

	// Registry exposes the host's OpenAPI registry to registering modules.
	Registry() api.Registry
}

// StatefulModule has start/stop lifecycle hooks. Start returns once the
// module is accepting work; Stop must make progress even on error.
type StatefulModule interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}

// GrpcInstaller contributes one gRPC service to the hub's server. Service
// names must be unique across the process.
type GrpcInstaller struct {
	ServiceName string
	Register    func(*grpc.Server)
}

// GrpcServiceModule exposes gRPC services on the shared hub. Called during
// the registration phase, before any server exists.
type GrpcServiceModule interface {
	GrpcServices(ctx context.Context, mctx *modctx.Context) ([]GrpcInstaller, error)
}
