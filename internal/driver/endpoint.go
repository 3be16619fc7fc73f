package driver

import (
	"context"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/skewsched/coredriver/internal/config"
	"github.com/skewsched/coredriver/internal/coretypes"
	"github.com/skewsched/coredriver/internal/message"
	"github.com/skewsched/coredriver/internal/registry"
	"github.com/skewsched/coredriver/internal/skewtune"
	"github.com/skewsched/coredriver/pkg/log"
	"github.com/skewsched/coredriver/pkg/notifier"
)

// Endpoint is the single-consumer actor described by SPEC_FULL.md §4.3: all
// handler methods are driven from one goroutine draining mailbox, so
// handlers never need their own locking beyond what Registry already
// provides for the fields read from other goroutines (the executor
// allocation API).
type Endpoint struct {
	cfg config.DriverConfig

	registry  *registry.Registry
	scheduler TaskScheduler
	codec     TaskCodec
	transport ExecutorTransport
	cluster   ClusterManager

	mailbox chan message.Envelope
	closeCh chan struct{}

	lifecycle *notifier.Notifier[LifecycleEvent]

	skewMu   sync.Mutex
	skewSets map[coretypes.TaskSetID]*skewtune.Master

	// clk drives the revive timer and the readiness gate's wall-clock
	// fallback; tests substitute a mock before Start.
	clk        clock.Clock
	createTime time.Time

	group *errgroup.Group
	gctx  context.Context
}

// New returns a Endpoint in its initial state. The revive timer and mailbox
// loop are started by Start.
func New(
	cfg config.DriverConfig,
	scheduler TaskScheduler,
	codec TaskCodec,
	transport ExecutorTransport,
	cluster ClusterManager,
) *Endpoint {
	clk := clock.New()
	return &Endpoint{
		cfg:        cfg,
		registry:   registry.New(),
		scheduler:  scheduler,
		codec:      codec,
		transport:  transport,
		cluster:    cluster,
		mailbox:    make(chan message.Envelope, 1024),
		closeCh:    make(chan struct{}),
		lifecycle:  notifier.NewNotifier[LifecycleEvent](),
		skewSets:   make(map[coretypes.TaskSetID]*skewtune.Master),
		clk:        clk,
		createTime: clk.Now(),
	}
}

// Lifecycle returns a receiver subscribed to ExecutorAdded/ExecutorRemoved
// events.
func (e *Endpoint) Lifecycle() *notifier.Receiver[LifecycleEvent] {
	return e.lifecycle.NewReceiver()
}

// Start launches the revive timer and the mailbox-draining loop, both
// coordinated by one errgroup so Stop can cancel them deterministically
// (SPEC_FULL.md §4.3's ADD note on shutdown coordination).
func (e *Endpoint) Start(ctx context.Context) error {
	group, gctx := errgroup.WithContext(ctx)
	e.group = group
	e.gctx = gctx

	group.Go(func() error {
		return e.runReviveTimer(gctx)
	})
	group.Go(func() error {
		return e.runMailbox(gctx)
	})
	return nil
}

// Stop cancels the revive timer and mailbox loop, waits for them to exit,
// and closes the lifecycle bus.
func (e *Endpoint) Stop() error {
	select {
	case <-e.closeCh:
		return nil
	default:
		close(e.closeCh)
	}
	var err error
	if e.group != nil {
		err = e.group.Wait()
	}
	e.lifecycle.Close()
	return err
}

func (e *Endpoint) runReviveTimer(ctx context.Context) error {
	ticker := e.clk.Ticker(e.cfg.ReviveInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-e.closeCh:
			return nil
		case <-ticker.C:
			e.Post(message.ReviveOffers{})
		}
	}
}

// Post enqueues an envelope into the endpoint's mailbox, preserving
// per-sender FIFO order (SPEC_FULL.md §5).
func (e *Endpoint) Post(env message.Envelope) {
	select {
	case e.mailbox <- env:
	case <-e.closeCh:
	}
}

func (e *Endpoint) runMailbox(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-e.closeCh:
			return nil
		case env := <-e.mailbox:
			e.dispatch(ctx, env)
		}
	}
}

// dispatch realizes the exhaustive switch over Kind() that SPEC_FULL.md
// §4.1 requires of every tagged-union consumer.
func (e *Endpoint) dispatch(ctx context.Context, env message.Envelope) {
	switch m := env.(type) {
	case message.RegisterExecutor:
		e.handleRegisterExecutor(ctx, m)
	case message.StatusUpdate:
		e.handleStatusUpdate(ctx, m)
	case message.ReviveOffers:
		e.makeOffers(ctx, nil)
	case message.KillTask:
		e.handleKillTask(ctx, m)
	case message.StopDriver:
		e.handleStopAll(ctx, true)
	case message.StopExecutors:
		e.handleStopAll(ctx, false)
	case message.RemoveExecutor:
		e.handleRemoveExecutor(ctx, m.ExecutorID, m.Reason)
	case message.OnDisconnected:
		e.handleOnDisconnected(ctx, m.RemoteAddress)
	case message.RegisterNewTask:
		e.handleRegisterNewTask(m)
	case message.ReportBlockStatuses:
		e.handleReportBlockStatuses(m)
	case message.ReportTaskFinished:
		e.handleReportTaskFinished(m)
	case message.ReportTaskComputeSpeed:
		e.handleReportTaskComputeSpeed(m)
	case message.ReportBlockDownloadSpeed:
		e.handleReportBlockDownloadSpeed(m)
	case message.TransferRemovedFetch:
		e.handleTransferRemovedFetch(ctx, m)
	case message.RegisterClusterManager:
		log.L().Info("driver: cluster manager registered", zap.String("addr", m.Address))
	case message.RequestExecutors:
		if err := e.requestTotalExecutors(ctx, m.Total); err != nil {
			log.L().Warn("driver: RequestExecutors failed", zap.Error(err))
		}
	case message.KillExecutors:
		if err := e.killExecutors(ctx, m.ExecutorIDs); err != nil {
			log.L().Warn("driver: KillExecutors failed", zap.Error(err))
		}
	case message.RetrieveSparkProps:
		// Property sourcing belongs to the configuration layer outside the
		// coordinator; acknowledged here so the union stays exhaustive.
		log.L().Debug("driver: RetrieveSparkProps received")
	default:
		log.L().Warn("driver: dropping envelope of unknown kind", zap.String("kind", string(env.Kind())))
	}
}

func (e *Endpoint) addressByExecutor(id coretypes.ExecutorID) (string, bool) {
	data, ok := e.registry.Get(id)
	if !ok {
		return "", false
	}
	return data.EndpointRef, true
}
