// Command dnsden runs the caching, ad-blocking recursive DNS forwarder:
// the UDP receiver, a fixed-size worker pool, the periodic sweeper, and
// the HTTP admin control plane, all sharing one resolvercore.Context.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"strconv"
	"syscall"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"

	"github.com/jroosing/dnsden/internal/auditlog"
	"github.com/jroosing/dnsden/internal/config"
	"github.com/jroosing/dnsden/internal/configstore"
	"github.com/jroosing/dnsden/internal/controlplane"
	"github.com/jroosing/dnsden/internal/logging"
	"github.com/jroosing/dnsden/internal/receiver"
	"github.com/jroosing/dnsden/internal/resolvercore"
	"github.com/jroosing/dnsden/internal/sweeper"
	"github.com/jroosing/dnsden/internal/worker"
	"github.com/jroosing/dnsden/internal/workqueue"
)

// defaultUpstreamIP seeds a fresh ConfigStore that has never recorded an
// upstream resolver.
const defaultUpstreamIP = "1.1.1.1"

// auditDBFileName is the SQLite audit log file, kept alongside the flat
// ConfigStore files under the data directory.
const auditDBFileName = "audit.db"

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
}

type cliFlags struct {
	configPath string
	dataDir    string
	debug      bool
	jsonLogs   bool
}

func parseFlags() cliFlags {
	var f cliFlags
	flag.StringVar(&f.configPath, "config", "", "Path to YAML config file (overrides DNSDEN_CONFIG)")
	flag.StringVar(&f.dataDir, "data-dir", "", "Override the data directory (ConfigStore + audit log)")
	flag.BoolVar(&f.debug, "debug", false, "Enable debug logging")
	flag.BoolVar(&f.jsonLogs, "json-logs", false, "Force JSON structured logging")
	flag.Parse()
	return f
}

func run() error {
	flags := parseFlags()

	cfg, err := config.Load(config.ResolveConfigPath(flags.configPath))
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if flags.dataDir != "" {
		cfg.DataDir = flags.dataDir
	}
	if flags.debug {
		cfg.Logging.Level = "DEBUG"
	}
	if flags.jsonLogs {
		cfg.Logging.Structured = true
		cfg.Logging.Format = "json"
	}

	logger := logging.Configure(logging.Config{
		Level:      cfg.Logging.Level,
		Structured: cfg.Logging.Structured,
		Format:     cfg.Logging.Format,
	})

	configs, err := configstore.New(cfg.DataDir)
	if err != nil {
		return fmt.Errorf("opening config store: %w", err)
	}

	upstreamIP, ok, err := configs.UpstreamIP()
	if err != nil {
		return fmt.Errorf("reading upstream address: %w", err)
	}
	if !ok {
		upstreamIP = defaultUpstreamIP
	}

	core := resolvercore.New(upstreamIP)

	if err := core.Cache.LoadBlocklists(configs); err != nil {
		logger.Warn("failed to load blocklists at startup", "error", err)
	}
	if err := core.Cache.ReloadLocalOverrides(configs); err != nil {
		logger.Warn("failed to load local overrides at startup", "error", err)
	}

	threads, err := resolveThreadCount(configs)
	if err != nil {
		return fmt.Errorf("resolving worker count: %w", err)
	}

	audit, err := auditlog.Open(auditDBPath(cfg.DataDir))
	if err != nil {
		return fmt.Errorf("opening audit log: %w", err)
	}
	defer audit.Close()

	dnsAddr := net.JoinHostPort(cfg.DNS.Host, strconv.Itoa(cfg.DNS.Port))
	conn, err := receiver.Listen(dnsAddr)
	if err != nil {
		return fmt.Errorf("binding DNS listener: %w", err)
	}
	recv := receiver.New(logger, workqueue.New(core.Counters), conn)

	queue := recv.Queue
	workers := make([]*worker.Worker, threads)
	for i := range workers {
		workers[i] = worker.New(queue, core, recv, logger)
	}

	sw := sweeper.New(core, configs, logger)

	adminAddr := net.JoinHostPort(cfg.Admin.Host, strconv.Itoa(cfg.Admin.Port))
	ctrl := controlplane.New(adminAddr, cfg.Admin.APIKey, core, configs, audit, logger, nil)

	logger.Info("dnsden starting",
		"dns_addr", dnsAddr,
		"admin_addr", adminAddr,
		"upstream", upstreamIP,
		"threads", threads,
		"data_dir", cfg.DataDir,
	)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	errCh := make(chan error, 2)
	go func() { errCh <- recv.Run(ctx) }()

	for _, w := range workers {
		go w.Run()
	}
	go sw.Run(ctx)

	go func() {
		serveErr := ctrl.ListenAndServe()
		if serveErr == nil || errors.Is(serveErr, net.ErrClosed) {
			return
		}
		logger.Error("control plane server error", "error", serveErr)
		errCh <- serveErr
	}()

	var runErr error
	select {
	case <-ctx.Done():
	case runErr = <-errCh:
		if runErr != nil {
			cancel()
		}
	}

	logger.Info("dnsden shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	if err := ctrl.Shutdown(shutdownCtx); err != nil {
		logger.Warn("control plane shutdown error", "error", err)
	}
	shutdownCancel()

	sw.Stop()
	_ = recv.Close()
	queue.Close()

	if runErr != nil {
		return fmt.Errorf("dnsden exited with error: %w", runErr)
	}
	return nil
}

// resolveThreadCount reads the persisted THREADS setting, falling back
// to one worker per logical CPU the first time the store is used.
func resolveThreadCount(configs *configstore.Store) (int, error) {
	threads, ok, err := configs.Threads()
	if err != nil {
		return 0, err
	}
	if ok && threads > 0 {
		return threads, nil
	}

	n, err := cpu.Counts(true)
	if err != nil || n <= 0 {
		n = runtime.NumCPU()
	}
	if err := configs.SetThreads(n); err != nil {
		return 0, fmt.Errorf("persisting default thread count: %w", err)
	}
	return n, nil
}

func auditDBPath(dataDir string) string {
	return filepath.Join(dataDir, auditDBFileName)
}
