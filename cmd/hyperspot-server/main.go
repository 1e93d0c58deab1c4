package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/modcrafter77/hyperspot/modules/apiingress"
	directorysvc "github.com/modcrafter77/hyperspot/modules/directory"
	"github.com/modcrafter77/hyperspot/modules/grpchub"
	"github.com/modcrafter77/hyperspot/pkg/config"
	"github.com/modcrafter77/hyperspot/pkg/db"
	"github.com/modcrafter77/hyperspot/pkg/logger"
	"github.com/modcrafter77/hyperspot/pkg/metrics"
	"github.com/modcrafter77/hyperspot/pkg/modkit/registry"
	"github.com/modcrafter77/hyperspot/pkg/modkit/runtime"
	"github.com/modcrafter77/hyperspot/pkg/telemetry"
)

// registrars lists every module linked into this server binary.
func registrars() []registry.Registrar {
	return []registry.Registrar{
		func(b *registry.Builder) {
			b.Register(registry.Registration{
				Name:   apiingress.ModuleName,
				Core:   apiingress.New(),
				System: true,
			})
		},
		func(b *registry.Builder) {
			b.Register(registry.Registration{
				Name:    grpchub.ModuleName,
				Core:    grpchub.New(),
				System:  true,
				GrpcHub: true,
			})
		},
		func(b *registry.Builder) {
			b.Register(registry.Registration{
				Name:   directorysvc.ModuleName,
				Core:   directorysvc.New(),
				System: true,
			})
		},
	}
}

func main() {
	var (
		configPath  = flag.String("config", "", "path to configuration file")
		printConfig = flag.Bool("print-config", false, "print effective configuration (YAML) and exit")
		checkOnly   = flag.Bool("check", false, "validate configuration and module registry, then exit")
		verbose     = flag.Bool("verbose", false, "force debug logging")
	)
	flag.Parse()

	var (
		cfg *config.Config
		err error
	)
	if *configPath != "" {
		cfg, err = config.LoadFromFile(*configPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		logger.Init("error")
		logger.Fatal("Failed to load config", "error", err)
	}

	logCfg := logger.Config{
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		Output:     cfg.Log.Output,
		FilePath:   cfg.Log.FilePath,
		MaxSize:    cfg.Log.MaxSize,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAge:     cfg.Log.MaxAge,
		Compress:   cfg.Log.Compress,
	}
	if *verbose {
		logCfg.Level = "debug"
	}
	logger.InitWithConfig(logCfg)

	if *printConfig {
		out, err := yaml.Marshal(cfg)
		if err != nil {
			logger.Fatal("Failed to render config", "error", err)
		}
		fmt.Print(string(out))
		return
	}

	logger.Log.Info("HyperSpot Server starting",
		"version", cfg.App.Version,
		"environment", cfg.App.Environment,
	)

	if *checkOnly {
		if err := checkRegistry(); err != nil {
			logger.Fatal("Registry check failed", "error", err)
		}
		logger.Log.Info("Configuration and registry are valid")
		return
	}

	ctx := context.Background()

	tp, err := telemetry.Init(ctx, telemetry.Config{
		Enabled:     cfg.Tracing.Enabled,
		Endpoint:    cfg.Tracing.Endpoint,
		ServiceName: cfg.Tracing.ServiceName,
		Version:     cfg.App.Version,
		Environment: cfg.App.Environment,
		SampleRate:  cfg.Tracing.SampleRate,
	})
	if err != nil {
		logger.Fatal("Failed to initialize telemetry", "error", err)
	}
	defer func() {
		if err := tp.Shutdown(context.Background()); err != nil {
			logger.Log.Warn("Telemetry shutdown failed", "error", err)
		}
	}()

	if cfg.Metrics.Enabled {
		metrics.InitMetrics(cfg.Metrics.Namespace, cfg.Metrics.Subsystem)
		metrics.Default().ServiceInfo.
			WithLabelValues(cfg.App.Version, cfg.App.Environment).Set(1)
	}

	dbm := db.NewManager(cfg.Database, cfg.Server.HomeDir)
	defer dbm.Close()

	err = runtime.Run(runtime.RunOptions{
		Registrars: registrars(),
		Provider:   config.NewAppProvider(cfg),
		DB:         dbm,
		Shutdown:   runtime.Signals(),
	})
	if err != nil {
		logger.Log.Error("Runtime failed", "error", err)
		os.Exit(1)
	}

	logger.Log.Info("HyperSpot Server stopped")
}

// checkRegistry builds the module registry without running any phase.
func checkRegistry() error {
	b := registry.NewBuilder()
	for _, r := range registrars() {
		r(b)
	}
	_, err := b.Build()
	return err
}
