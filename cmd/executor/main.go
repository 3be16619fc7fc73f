// Command executor runs one executor process: dial the driver, register,
// then serve the executor endpoint and the cooperative task runner until
// StopExecutor arrives or the driver connection dies. Missing required
// options exit 1 before anything is dialed.
package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/skewsched/coredriver/internal/config"
	"github.com/skewsched/coredriver/internal/coretypes"
	"github.com/skewsched/coredriver/internal/executorbackend"
	"github.com/skewsched/coredriver/internal/message"
	"github.com/skewsched/coredriver/pkg/log"
	"github.com/skewsched/coredriver/rpc"
	"github.com/skewsched/coredriver/rpc/wire"
)

var (
	cfgFile  string
	logLevel string
	logFile  string
)

func main() {
	var cfg config.ExecutorConfig

	cmd := &cobra.Command{
		Use:          "executor",
		Short:        "Run one executor process",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if cfgFile != "" {
				fileCfg := cfg
				if err := config.LoadTOML(cfgFile, &fileCfg); err != nil {
					return err
				}
				applyUnsetFromFile(cmd, &cfg, fileCfg)
			}
			if missing, ok := cfg.Validate(); !ok {
				fmt.Fprintf(os.Stderr, "missing required option --%s\n", missing)
				os.Exit(1)
			}
			if err := log.InitLogger(logLevel, logFile); err != nil {
				return err
			}
			return runExecutor(cfg)
		},
	}

	fs := cmd.Flags()
	fs.StringVar(&cfg.DriverURL, "driver-url", "", "driver endpoint to register with (required)")
	fs.StringVar(&cfg.ExecutorID, "executor-id", "", "this executor's identity (required)")
	fs.StringVar(&cfg.Hostname, "hostname", "", "host this executor runs on (required)")
	fs.IntVar(&cfg.Cores, "cores", 0, "total task slots this executor offers (required)")
	fs.StringVar(&cfg.AppID, "app-id", "", "owning application id (required)")
	fs.StringVar(&cfg.WorkerURL, "worker-url", "", "optional worker supervisor endpoint")
	fs.StringSliceVar(&cfg.UserClassPath, "user-class-path", nil, "extra task classpath entries; repeatable")
	fs.IntVar(&cfg.Port, "port", 0, "port the executor endpoint listens on; 0 picks one")
	fs.StringVar(&cfgFile, "config", "", "path to a TOML config file")
	fs.StringVar(&logLevel, "log-level", "info", "log level")
	fs.StringVar(&logFile, "log-file", "", "log file path; empty logs to stderr")

	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// applyUnsetFromFile fills any option the user did not pass on the command
// line from the TOML file, keeping flag-over-file precedence.
func applyUnsetFromFile(cmd *cobra.Command, cfg *config.ExecutorConfig, file config.ExecutorConfig) {
	fs := cmd.Flags()
	if !fs.Changed("driver-url") {
		cfg.DriverURL = file.DriverURL
	}
	if !fs.Changed("executor-id") {
		cfg.ExecutorID = file.ExecutorID
	}
	if !fs.Changed("hostname") {
		cfg.Hostname = file.Hostname
	}
	if !fs.Changed("cores") {
		cfg.Cores = file.Cores
	}
	if !fs.Changed("app-id") {
		cfg.AppID = file.AppID
	}
	if !fs.Changed("worker-url") {
		cfg.WorkerURL = file.WorkerURL
	}
	if !fs.Changed("user-class-path") {
		cfg.UserClassPath = file.UserClassPath
	}
	if !fs.Changed("port") {
		cfg.Port = file.Port
	}
}

func runExecutor(cfg config.ExecutorConfig) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	listenAddr := net.JoinHostPort(cfg.Hostname, strconv.Itoa(cfg.Port))
	lis, err := net.Listen("tcp", listenAddr)
	if err != nil {
		return err
	}
	advertised := lis.Addr().String()

	dialCtx, dialCancel := context.WithTimeout(ctx, 30*time.Second)
	driverClient, err := rpc.DialDriver(dialCtx, cfg.DriverURL)
	dialCancel()
	if err != nil {
		log.L().Error("failed to reach driver", zap.Error(err))
		os.Exit(1)
	}
	defer driverClient.Close()

	executorID := coretypes.ExecutorID(cfg.ExecutorID)
	backend := executorbackend.New(executorID, driverClient, cancel)
	runner := executorbackend.NewRunner(executorID, backend, driverClient, nil)
	backend.SetUnlockHook(runner.Wake)

	server := rpc.NewExecutorServer(backend, wire.GobTaskCodec{})

	// Connecting -> Registered: the registration exchange must succeed
	// before the task executor exists; a rejection is fatal.
	regCtx, regCancel := context.WithTimeout(ctx, 30*time.Second)
	err = driverClient.Register(regCtx, message.RegisterExecutor{
		ExecutorID: executorID,
		Address:    advertised,
		Host:       cfg.Hostname,
		TotalCores: cfg.Cores,
		LogURLs:    logURLs(logFile),
	})
	regCancel()
	if err != nil {
		log.L().Error("executor registration failed", zap.Error(err))
		os.Exit(1)
	}
	backend.SetRegistered(runner)
	backend.SetRunning()

	go runner.Run(ctx, cfg.Cores)
	go handleSignals(server)
	go func() {
		err := <-server.Fatal()
		log.L().Error("executor hit a fatal backend error", zap.Error(err))
		os.Exit(1)
	}()

	log.L().Info("executor serving",
		zap.String("executor_id", cfg.ExecutorID),
		zap.String("addr", advertised),
		zap.String("app_id", cfg.AppID))
	return server.Serve(ctx, lis)
}

func logURLs(logFile string) map[string]string {
	if logFile == "" {
		return nil
	}
	return map[string]string{"log": "file://" + logFile}
}

func handleSignals(server *rpc.ExecutorServer) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	log.L().Info("shutting down on signal", zap.String("signal", sig.String()))
	server.Stop()
}
