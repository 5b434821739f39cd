// Command longhornd runs the synchronous-mirror control plane and data
// plane described by spec.md: it loads a YAML topology, brings up any
// volumes it declares, exports each as a ublk device, and serves the
// JSON-over-TCP control surface the rest of the cluster drives it with.
package main

import (
	"flag"
	"fmt"
	"net"
	"os"
	"os/signal"
	"runtime"
	"runtime/pprof"
	"syscall"

	mirror "github.com/longhorn-io/go-longhorn-bdev"
	"github.com/longhorn-io/go-longhorn-bdev/internal/logging"
	"github.com/longhorn-io/go-longhorn-bdev/internal/registry"
	"github.com/longhorn-io/go-longhorn-bdev/internal/rpcsrv"
)

func main() {
	var (
		configPath = flag.String("config", "", "path to the daemon's YAML config file")
		verbose    = flag.Bool("v", false, "verbose (debug-level) logging")
	)
	flag.Parse()

	logConfig := logging.DefaultConfig()
	if *verbose {
		logConfig.Level = logging.LevelDebug
	}
	logger := logging.NewLogger(logConfig)
	logging.SetDefault(logger)

	cfg := mirror.DefaultConfig()
	if *configPath != "" {
		loaded, err := mirror.LoadConfig(*configPath)
		if err != nil {
			logger.Error("failed to load config", "path", *configPath, "error", err)
			os.Exit(1)
		}
		cfg = loaded
	}
	logConfig.Level = logLevelFromString(cfg.LogLevel)
	logConfig.Format = cfg.LogFormat
	logger = logging.NewLogger(logConfig)
	logging.SetDefault(logger)

	if err := os.MkdirAll(cfg.BaseDir, 0o755); err != nil {
		logger.Error("failed to create base directory", "dir", cfg.BaseDir, "error", err)
		os.Exit(1)
	}
	defaultBaseDirForCompare = cfg.BaseDir

	reg := registry.New()
	registry.SetDefault(reg)
	d := &daemon{reg: reg, baseDir: cfg.BaseDir}

	frontends := bringUpConfiguredVolumes(d, cfg, logger)
	defer func() {
		for name, fe := range frontends {
			logger.Info("closing volume export", "volume", name)
			if err := fe.Close(); err != nil {
				logger.Error("error closing volume export", "volume", name, "error", err)
			}
		}
	}()

	donorAddr := fmt.Sprintf("0.0.0.0:%d", cfg.RebuildPortMin)
	donor, err := serveDonor(cfg.BaseDir, donorAddr)
	if err != nil {
		logger.Error("failed to start rebuild donor listener", "error", err)
		os.Exit(1)
	}
	defer donor.Close()
	logger.Info("rebuild donor listening", "address", donorAddr)

	server := rpcsrv.New()
	d.register(server)

	ln, err := net.Listen("tcp", cfg.ListenAddress)
	if err != nil {
		logger.Error("failed to listen on control address", "address", cfg.ListenAddress, "error", err)
		os.Exit(1)
	}
	defer ln.Close()
	logger.Info("control surface listening", "address", cfg.ListenAddress)

	go func() {
		if err := server.Serve(ln); err != nil {
			logger.Warn("control surface listener stopped", "error", err)
		}
	}()

	stackDumpCh := make(chan os.Signal, 1)
	signal.Notify(stackDumpCh, syscall.SIGUSR1)
	go func() {
		for range stackDumpCh {
			buf := make([]byte, 1<<20)
			n := runtime.Stack(buf, true)
			fmt.Fprintf(os.Stderr, "\n=== GOROUTINE STACK DUMP ===\n%s\n", buf[:n])
			pprof.Lookup("goroutine").WriteTo(os.Stderr, 2)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	logger.Info("received shutdown signal, draining volume exports")
}

// bringUpConfiguredVolumes attaches every volume cfg.Volumes declares at
// startup, registering it and exporting it over ublk, best-effort: a volume
// that fails to come up is logged and skipped rather than aborting the
// whole daemon.
func bringUpConfiguredVolumes(d *daemon, cfg mirror.Config, logger *logging.Logger) map[string]*mirror.Frontend {
	frontends := make(map[string]*mirror.Frontend)
	for _, vc := range cfg.Volumes {
		v := mirror.NewVolume(vc.Name, len(vc.Replicas), cfg.BaseDir, nil)
		if err := d.reg.Register(v); err != nil {
			logger.Error("failed to register configured volume", "volume", vc.Name, "error", err)
			continue
		}

		ok := true
		for _, rc := range vc.Replicas {
			var err error
			if rc.Address != "" {
				err = v.AddRemoteReplica(rc.Address, rc.NVMfPort, rc.ControlPort, rc.LVS, vc.Name, "")
			} else {
				err = v.AddLocalReplica(rc.LVS, vc.Name, vc.Size, vc.BlockSize)
			}
			if err != nil {
				logger.Error("failed to attach configured replica", "volume", vc.Name, "lvs", rc.LVS, "error", err)
				ok = false
				break
			}
		}
		if !ok || v.State() != mirror.Online {
			logger.Warn("configured volume did not reach Online", "volume", vc.Name, "state", v.State())
			continue
		}
		_ = d.reg.Promote(vc.Name)

		fe, err := mirror.Export(v, mirror.ExportConfig{})
		if err != nil {
			logger.Error("failed to export configured volume", "volume", vc.Name, "error", err)
			continue
		}
		frontends[vc.Name] = fe
		logger.Info("exported configured volume", "volume", vc.Name, "dev_id", fe.DevID())
	}
	return frontends
}

func logLevelFromString(s string) logging.LogLevel {
	switch s {
	case "debug":
		return logging.LevelDebug
	case "warn":
		return logging.LevelWarn
	case "error":
		return logging.LevelError
	default:
		return logging.LevelInfo
	}
}
