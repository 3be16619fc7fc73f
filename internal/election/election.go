// Package election provides the etcd-backed leader election a
// highly-available deployment runs in front of the driver: exactly one
// driver process holds the lease and serves the scheduler at a time, and a
// standby that wins a later campaign starts from a clean slate — no
// scheduler state is carried across driver restarts.
package election

import (
	"context"
	"time"

	"github.com/pingcap/errors"
	"go.etcd.io/etcd/clientv3"
	"go.etcd.io/etcd/clientv3/concurrency"
	"go.etcd.io/etcd/mvcc"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	derrors "github.com/skewsched/coredriver/pkg/errors"
	"github.com/skewsched/coredriver/pkg/log"
)

// Config parameterizes a DriverElection.
type Config struct {
	CreateSessionTimeout time.Duration
	TTL                  time.Duration
	KeyPrefix            string
}

// DriverElection campaigns for driver leadership on an etcd prefix. The
// winner's context stays live for as long as both the caller's context and
// the etcd session do; losing the session demotes the leader.
type DriverElection struct {
	etcdClient *clientv3.Client
	election   *concurrency.Election
	session    *concurrency.Session
	rl         *rate.Limiter
}

// NewDriverElection creates the etcd session and election handle. Pass a
// nil session to have one created with cfg.TTL.
func NewDriverElection(
	ctx context.Context,
	etcdClient *clientv3.Client,
	session *concurrency.Session,
	cfg Config,
) (*DriverElection, error) {
	ctx, cancel := context.WithTimeout(ctx, cfg.CreateSessionTimeout)
	defer cancel()

	sess := session
	if sess == nil {
		var err error
		sess, err = concurrency.NewSession(
			etcdClient,
			concurrency.WithContext(ctx),
			concurrency.WithTTL(int(cfg.TTL.Seconds())))
		if err != nil {
			return nil, derrors.ErrEtcdCreateSessionFail.Wrap(err).GenWithStackByArgs()
		}
	}

	return &DriverElection{
		etcdClient: etcdClient,
		election:   concurrency.NewElection(sess, cfg.KeyPrefix),
		session:    sess,
		rl:         rate.NewLimiter(rate.Every(time.Second), 1 /* burst */),
	}, nil
}

// Campaign blocks until this driver becomes leader, the context expires, or
// an unrecoverable etcd error occurs. A compacted-revision error restarts
// the campaign after the rate limiter admits another attempt.
func (e *DriverElection) Campaign(ctx context.Context, driverID string) (context.Context, context.CancelFunc, error) {
	for {
		select {
		case <-ctx.Done():
			return nil, nil, derrors.ErrElectionCampaignFail.Wrap(ctx.Err()).GenWithStackByArgs()
		default:
		}

		// rl.Wait can return an unnamed "exceeds limiter's burst" error when
		// ctx is canceled mid-wait; wrap it so the caller sees the campaign
		// failure, not the limiter internals.
		if err := e.rl.Wait(ctx); err != nil {
			return nil, nil, derrors.ErrElectionCampaignFail.Wrap(err).GenWithStackByArgs()
		}

		leaderCtx, resign, err := e.doCampaign(ctx, driverID)
		if err != nil {
			if errors.Cause(err) != mvcc.ErrCompacted {
				return nil, nil, derrors.ErrElectionCampaignFail.Wrap(err).GenWithStackByArgs()
			}
			log.L().Warn("driver leadership campaign failed, retrying", zap.Error(err))
			continue
		}
		return leaderCtx, resign, nil
	}
}

func (e *DriverElection) doCampaign(ctx context.Context, driverID string) (context.Context, context.CancelFunc, error) {
	if err := e.election.Campaign(ctx, driverID); err != nil {
		return nil, nil, errors.Trace(err)
	}

	leaderCtx := &sessionBoundCtx{Context: ctx, sess: e.session}
	resign := func() {
		resignCtx, cancel := context.WithCancel(ctx)
		defer cancel()
		if err := e.election.Resign(resignCtx); err != nil {
			log.L().Warn("failed to resign driver leadership", zap.Error(err))
		}
	}
	return leaderCtx, resign, nil
}

// sessionBoundCtx is done when either the parent context or the etcd
// session ends, so a leader whose lease lapses observes demotion through
// ordinary context cancellation.
type sessionBoundCtx struct {
	context.Context
	sess *concurrency.Session
}

func (c *sessionBoundCtx) Done() <-chan struct{} {
	doneCh := make(chan struct{})
	go func() {
		select {
		case <-c.Context.Done():
		case <-c.sess.Done():
		}
		close(doneCh)
	}()
	return doneCh
}
