// Command driver runs the scheduling coordinator process: the
// DriverEndpoint, its gRPC surface, and (optionally) an etcd-backed leader
// election in front of both. The task scheduler and cluster manager are
// external collaborators; this binary wires logging placeholders so the
// coordinator can be brought up and probed standalone, and embedding
// applications replace them programmatically.
package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.etcd.io/etcd/clientv3"
	"go.uber.org/zap"

	"github.com/skewsched/coredriver/internal/config"
	"github.com/skewsched/coredriver/internal/coretypes"
	"github.com/skewsched/coredriver/internal/driver"
	"github.com/skewsched/coredriver/internal/election"
	"github.com/skewsched/coredriver/pkg/log"
	"github.com/skewsched/coredriver/rpc"
	"github.com/skewsched/coredriver/rpc/wire"
)

var (
	cfgFile  string
	logLevel string
	logFile  string

	etcdEndpoints []string
	driverName    string
)

func main() {
	cfg := config.DefaultDriverConfig()

	cmd := &cobra.Command{
		Use:          "driver",
		Short:        "Run the driver scheduling coordinator",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if cfgFile != "" {
				// Flags beat the file: snapshot the parsed flag values, load
				// the file, then restore every flag the user set explicitly.
				fromFlags := cfg
				if err := config.LoadTOML(cfgFile, &cfg); err != nil {
					return err
				}
				fs := cmd.Flags()
				if fs.Changed("listen-addr") {
					cfg.ListenAddr = fromFlags.ListenAddr
				}
				if fs.Changed("min-registered-ratio") {
					cfg.MinRegisteredResourcesRatio = fromFlags.MinRegisteredResourcesRatio
				}
				if fs.Changed("max-registered-wait") {
					cfg.MaxRegisteredResourcesWaitingTime = fromFlags.MaxRegisteredResourcesWaitingTime
				}
				if fs.Changed("revive-interval") {
					cfg.ReviveInterval = fromFlags.ReviveInterval
				}
				if fs.Changed("frame-size") {
					cfg.MaxFrameSize = fromFlags.MaxFrameSize
				}
				if fs.Changed("frame-reserved") {
					cfg.Reserved = fromFlags.Reserved
				}
				if fs.Changed("cpus-per-task") {
					cfg.CPUsPerTask = fromFlags.CPUsPerTask
				}
				if fs.Changed("expected-executors") {
					cfg.ExpectedExecutors = fromFlags.ExpectedExecutors
				}
			}
			cfg = cfg.Adjust()

			if err := log.InitLogger(logLevel, logFile); err != nil {
				return err
			}
			return runDriver(cfg)
		},
	}

	fs := cmd.Flags()
	fs.StringVar(&cfgFile, "config", "", "path to a TOML config file")
	fs.StringVar(&cfg.ListenAddr, "listen-addr", "127.0.0.1:10240", "address the driver service listens on")
	fs.Float64Var(&cfg.MinRegisteredResourcesRatio, "min-registered-ratio", cfg.MinRegisteredResourcesRatio, "fraction of expected executors required before the readiness gate opens")
	fs.DurationVar(&cfg.MaxRegisteredResourcesWaitingTime, "max-registered-wait", cfg.MaxRegisteredResourcesWaitingTime, "wall-clock fallback for the readiness gate")
	fs.DurationVar(&cfg.ReviveInterval, "revive-interval", cfg.ReviveInterval, "period of the self-addressed ReviveOffers timer")
	fs.Int64Var(&cfg.MaxFrameSize, "frame-size", cfg.MaxFrameSize, "max transport frame size in bytes; 0 disables the dispatch check")
	fs.Int64Var(&cfg.Reserved, "frame-reserved", cfg.Reserved, "fixed transport overhead subtracted from the frame size")
	fs.IntVar(&cfg.CPUsPerTask, "cpus-per-task", cfg.CPUsPerTask, "cores charged per launched task")
	fs.IntVar(&cfg.ExpectedExecutors, "expected-executors", cfg.ExpectedExecutors, "executor count the readiness ratio is computed against")
	fs.StringVar(&logLevel, "log-level", "info", "log level")
	fs.StringVar(&logFile, "log-file", "", "log file path; empty logs to stderr")
	fs.StringSliceVar(&etcdEndpoints, "etcd-endpoints", nil, "etcd endpoints for driver leader election; empty runs without election")
	fs.StringVar(&driverName, "name", "driver-1", "this driver's campaign identity")

	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func runDriver(cfg config.DriverConfig) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if len(etcdEndpoints) > 0 {
		leaderCtx, resign, err := campaign(ctx)
		if err != nil {
			return err
		}
		defer resign()
		ctx = leaderCtx
	}

	clients := rpc.NewClientManager()
	defer clients.Close()

	endpoint := driver.New(cfg, loggingScheduler{}, wire.GobTaskCodec{}, clients, loggingClusterManager{})
	if err := endpoint.Start(ctx); err != nil {
		return err
	}
	defer func() {
		if err := endpoint.Stop(); err != nil {
			log.L().Warn("driver endpoint stop failed", zap.Error(err))
		}
	}()

	server := rpc.NewDriverServer(endpoint, clients)
	lis, err := net.Listen("tcp", cfg.ListenAddr)
	if err != nil {
		return err
	}

	go handleSignals(cancel, server)

	log.L().Info("driver serving", zap.String("addr", cfg.ListenAddr))
	return server.Serve(lis)
}

func campaign(ctx context.Context) (context.Context, context.CancelFunc, error) {
	etcdCli, err := clientv3.New(clientv3.Config{
		Endpoints:   etcdEndpoints,
		DialTimeout: 5 * time.Second,
	})
	if err != nil {
		return nil, nil, err
	}
	elec, err := election.NewDriverElection(ctx, etcdCli, nil, election.Config{
		CreateSessionTimeout: 10 * time.Second,
		TTL:                  15 * time.Second,
		KeyPrefix:            "/coredriver/leader",
	})
	if err != nil {
		return nil, nil, err
	}
	log.L().Info("campaigning for driver leadership", zap.String("name", driverName))
	return elec.Campaign(ctx, driverName)
}

func handleSignals(cancel context.CancelFunc, server *rpc.DriverServer) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	log.L().Info("shutting down on signal", zap.String("signal", sig.String()))
	server.Stop()
	cancel()
}

// loggingScheduler stands in for the external task scheduler when the
// coordinator runs standalone: offers are observed and declined.
type loggingScheduler struct{}

func (loggingScheduler) ResourceOffers(offers []driver.Offer) []coretypes.TaskDescription {
	log.L().Debug("declining resource offers without an attached scheduler",
		zap.Int("offers", len(offers)))
	return nil
}

func (loggingScheduler) StatusUpdate(taskID coretypes.TaskID, state coretypes.TaskState, data []byte) {
	log.L().Info("task status",
		zap.Int64("task_id", int64(taskID)), zap.Stringer("state", state))
}

func (loggingScheduler) ExecutorLost(executorID coretypes.ExecutorID, reason string) {
	log.L().Warn("executor lost",
		zap.String("executor_id", string(executorID)), zap.String("reason", reason))
}

func (loggingScheduler) AbortTaskSet(taskSetID coretypes.TaskSetID, reason string) {
	log.L().Error("task set aborted",
		zap.String("task_set", string(taskSetID)), zap.String("reason", reason))
}

// loggingClusterManager stands in for cluster-manager-specific provisioning.
type loggingClusterManager struct{}

func (loggingClusterManager) DoRequestTotalExecutors(ctx context.Context, total int) error {
	log.L().Info("cluster manager asked for executor total", zap.Int("total", total))
	return nil
}

func (loggingClusterManager) DoKillExecutors(ctx context.Context, ids []coretypes.ExecutorID) error {
	log.L().Info("cluster manager asked to kill executors", zap.Int("count", len(ids)))
	return nil
}
