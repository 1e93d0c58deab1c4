package runtime

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/modcrafter77/hyperspot/pkg/logger"
	"github.com/modcrafter77/hyperspot/pkg/modkit/directory"
)

// OopRunOptions configures an out-of-process module bootstrap: the process
// registers itself with a remote directory, heartbeats in the background and
// then runs the normal module lifecycle.
type OopRunOptions struct {
	// ModuleName is the logical module name (e.g. "file_parser").
	ModuleName string

	// InstanceID defaults to a random UUID when empty.
	InstanceID string

	// Directory is the (usually remote) directory facade.
	Directory directory.API

	// ControlEndpoint optionally advertises this process's control address.
	ControlEndpoint *directory.Endpoint

	// Version is reported to the directory.
	Version string

	// HeartbeatInterval defaults to 5 seconds.
	HeartbeatInterval time.Duration

	// Run holds the in-process runtime options for this module host.
	Run RunOptions
}

// RunOutOfProcess registers this process with the directory, starts the
// heartbeat loop and drives the module lifecycle until shutdown.
func RunOutOfProcess(opts OopRunOptions) error {
	instanceID := opts.InstanceID
	if instanceID == "" {
		instanceID = uuid.NewString()
	}

	interval := opts.HeartbeatInterval
	if interval <= 0 {
		interval = 5 * time.Second
	}

	logger.Log.Info("OoP module bootstrap starting",
		"module", opts.ModuleName,
		"instance_id", instanceID,
	)

	cancelCtx, cancel := shutdownContext(opts.Run.Shutdown)
	defer cancel()

	if opts.Directory != nil {
		info := directory.RegisterInstanceInfo{
			Module:          opts.ModuleName,
			InstanceID:      instanceID,
			ControlEndpoint: opts.ControlEndpoint,
			Version:         opts.Version,
		}
		if err := opts.Directory.RegisterInstance(cancelCtx, info); err != nil {
			return err
		}
		logger.Log.Info("Module instance registered with directory")

		go heartbeatLoop(cancelCtx, opts.Directory, opts.ModuleName, instanceID, interval)
	}

	host, err := BuildHost(opts.Run, cancelCtx)
	if err != nil {
		return err
	}

	err = host.Run(context.Background())
	if err != nil {
		logger.Log.Error("Module runtime failed", "error", err)
	}
	return err
}

// heartbeatLoop sends heartbeats on a fixed interval until the context fires.
func heartbeatLoop(ctx context.Context, dir directory.API, module, instanceID string, interval time.Duration) {
	logger.Log.Info("Starting heartbeat loop", "interval", interval)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := dir.SendHeartbeat(ctx, module, instanceID); err != nil {
				logger.Log.Warn("Failed to send heartbeat, will retry", "error", err)
			}
		}
	}
}
