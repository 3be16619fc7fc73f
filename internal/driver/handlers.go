package driver

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/skewsched/coredriver/internal/coretypes"
	"github.com/skewsched/coredriver/internal/message"
	"github.com/skewsched/coredriver/internal/registry"
	derrors "github.com/skewsched/coredriver/pkg/errors"
	"github.com/skewsched/coredriver/pkg/log"
)

// handleRegisterExecutor implements SPEC_FULL.md §4.3's RegisterExecutor
// handler.
func (e *Endpoint) handleRegisterExecutor(ctx context.Context, m message.RegisterExecutor) {
	err := e.registry.Insert(&registry.ExecutorData{
		ExecutorID:  m.ExecutorID,
		EndpointRef: m.Address,
		Host:        m.Host,
		TotalCores:  m.TotalCores,
		FreeCores:   m.TotalCores,
		LogURLs:     m.LogURLs,
	})
	if err != nil {
		log.L().Warn("driver: duplicate executor registration", zap.String("executor_id", string(m.ExecutorID)))
		_ = e.transport.SendToExecutor(ctx, m.ExecutorID, message.RegisterExecutorFailed{
			Reason: derrors.ErrDuplicateExecutor.GenWithStackByArgs(m.ExecutorID).Error(),
		})
		return
	}

	e.registry.AdjustPendingExecutors(-1)

	if err := e.transport.SendToExecutor(ctx, m.ExecutorID, message.RegisteredExecutor{}); err != nil {
		log.L().Warn("driver: failed to ack RegisteredExecutor", zap.Error(err))
	}

	e.lifecycle.Notify(LifecycleEvent{
		Kind:       ExecutorAdded,
		ExecutorID: m.ExecutorID,
		Timestamp:  time.Now().Unix(),
		ExecutorData: &registry.ExecutorData{
			ExecutorID: m.ExecutorID, EndpointRef: m.Address, Host: m.Host, TotalCores: m.TotalCores, FreeCores: m.TotalCores, LogURLs: m.LogURLs,
		},
	})

	e.makeOffers(ctx, nil)
}

// handleStatusUpdate implements SPEC_FULL.md §4.3's StatusUpdate handler.
func (e *Endpoint) handleStatusUpdate(ctx context.Context, m message.StatusUpdate) {
	if !e.registry.Exists(m.ExecutorID) {
		log.L().Warn("driver: StatusUpdate from unknown executor", zap.String("executor_id", string(m.ExecutorID)))
		return
	}

	e.scheduler.StatusUpdate(m.TaskID, m.State, m.Data)

	if !m.State.IsTerminal() {
		return
	}

	if err := e.registry.AdjustFreeCores(m.ExecutorID, e.cfg.CPUsPerTask); err != nil {
		log.L().Warn("driver: failed to restore free cores", zap.Error(err))
		return
	}

	e.makeOffers(ctx, &m.ExecutorID)
}

// handleKillTask implements SPEC_FULL.md §4.3's KillTask handler: forward to
// the named executor's endpoint if registered, else log and drop.
func (e *Endpoint) handleKillTask(ctx context.Context, m message.KillTask) {
	e.killTaskOnExecutor(ctx, m.ExecutorID, m.TaskID, m.Interrupt)
}

// killTaskOnExecutor forwards a kill to a registered executor's endpoint.
func (e *Endpoint) killTaskOnExecutor(ctx context.Context, executorID coretypes.ExecutorID, taskID coretypes.TaskID, interrupt bool) {
	if !e.registry.Exists(executorID) {
		log.L().Warn("driver: KillTask for unknown executor", zap.String("executor_id", string(executorID)))
		return
	}
	if err := e.transport.SendToExecutor(ctx, executorID, message.KillTask{TaskID: taskID, Interrupt: interrupt}); err != nil {
		log.L().Warn("driver: failed to send KillTask", zap.Error(err))
	}
}

// handleStopAll implements SPEC_FULL.md §4.3's StopDriver/StopExecutors
// handlers: broadcast StopExecutor to every executor.
func (e *Endpoint) handleStopAll(ctx context.Context, tearDown bool) {
	if err := e.transport.BroadcastToAllExecutors(ctx, message.StopExecutor{}); err != nil {
		log.L().Warn("driver: broadcast StopExecutor failed", zap.Error(err))
	}
	if tearDown {
		go func() {
			_ = e.Stop()
		}()
	}
}

// handleRemoveExecutor implements SPEC_FULL.md §4.3's RemoveExecutor
// handler.
func (e *Endpoint) handleRemoveExecutor(ctx context.Context, id coretypes.ExecutorID, reason string) {
	data, err := e.registry.Remove(id)
	if err != nil {
		log.L().Warn("driver: RemoveExecutor for unknown executor", zap.String("executor_id", string(id)))
		return
	}

	e.lifecycle.Notify(LifecycleEvent{
		Kind:       ExecutorRemoved,
		ExecutorID: id,
		Timestamp:  time.Now().Unix(),
		Reason:     reason,
	})

	e.scheduler.ExecutorLost(id, reason)
	_ = data

	e.skewMu.Lock()
	for _, m := range e.skewSets {
		m.PurgeExecutor(id)
	}
	e.skewMu.Unlock()
}

// removeExecutorSync is the synchronous, error-returning twin of
// handleRemoveExecutor used by SchedulerBackend.RemoveExecutor's ask-retry
// path (SPEC_FULL.md §4.6: "a request-reply ask for acknowledgment").
func (e *Endpoint) removeExecutorSync(ctx context.Context, id coretypes.ExecutorID, reason string) (struct{}, error) {
	data, err := e.registry.Remove(id)
	if err != nil {
		return struct{}{}, err
	}

	e.lifecycle.Notify(LifecycleEvent{
		Kind:       ExecutorRemoved,
		ExecutorID: id,
		Timestamp:  time.Now().Unix(),
		Reason:     reason,
	})

	e.scheduler.ExecutorLost(id, reason)
	_ = data

	e.skewMu.Lock()
	for _, m := range e.skewSets {
		m.PurgeExecutor(id)
	}
	e.skewMu.Unlock()

	return struct{}{}, nil
}

// handleOnDisconnected implements SPEC_FULL.md §4.3's onDisconnected
// handler: resolve the executor by its RPC address, then removeExecutor.
func (e *Endpoint) handleOnDisconnected(ctx context.Context, remoteAddress string) {
	for _, offer := range e.registry.SnapshotOffers() {
		data, ok := e.registry.Get(offer.ExecutorID)
		if ok && data.EndpointRef == remoteAddress {
			e.handleRemoveExecutor(ctx, offer.ExecutorID, "remote RPC client disassociated")
			return
		}
	}
	log.L().Warn("driver: onDisconnected for unknown remote address", zap.String("addr", remoteAddress))
}
