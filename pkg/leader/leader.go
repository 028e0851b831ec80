// Package leader implements the cluster-wide writer election described in
// spec.md §4.5: a coordination/v1 Lease, contended every 5s, renewed every
// 10s against its 15s duration while held, and surfaced to the rest of the
// process as a single lock-free boolean.
//
// This is deliberately NOT built on client-go's tools/leaderelection
// package: that package's renew/release/lease-transfer state machine does
// not match the create-if-absent / steal-if-stale-by-more-than-duration
// algorithm spec.md spells out, and the spec explicitly calls for an
// atomic boolean gate rather than a callback-driven elector.
package leader

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	coordinationv1 "k8s.io/api/coordination/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"

	"github.com/mariusmagureanu/vingress/pkg/log"
	"github.com/mariusmagureanu/vingress/pkg/metrics"
)

var leaderLog = log.Logger.WithName("leader")

// LeaseName is the constant name of the cluster-wide election lock object.
const LeaseName = "vingress-leader-lock"

const (
	leaseDuration = 15 * time.Second
	pollInterval  = 5 * time.Second
	renewInterval = 10 * time.Second
)

// Gate is a lock-free boolean, atomically flipped by Run, that gates the
// Status Publisher's side effects. No other subsystem consults it.
type Gate struct {
	client    kubernetes.Interface
	namespace string
	identity  string

	isLeader atomic.Bool
	now      func() time.Time
}

// New returns a Gate contending for LeaseName in namespace under the given
// replica identity (spec.md requires POD_NAME for this).
func New(client kubernetes.Interface, namespace, identity string) *Gate {
	return &Gate{client: client, namespace: namespace, identity: identity, now: time.Now}
}

// IsLeader reports whether this replica currently holds the lease.
func (g *Gate) IsLeader() bool {
	return g.isLeader.Load()
}

func (g *Gate) setLeader(v bool) {
	g.isLeader.Store(v)
	if v {
		metrics.IsLeader.Set(1)
	} else {
		metrics.IsLeader.Set(0)
	}
}

// Run contends for leadership until ctx is cancelled. While not leading it
// polls every 5s; once leading it renews every 10s (renewInterval, inside
// the 15s leaseDuration) and drops back to contention the moment a
// renewal fails.
func (g *Gate) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			g.setLeader(false)
			return
		default:
		}

		acquired, err := g.tryAcquire(ctx)
		if err != nil {
			leaderLog.Error(err, "leader election attempt failed")
			if !sleepOrDone(ctx, pollInterval) {
				return
			}
			continue
		}

		if !acquired {
			g.setLeader(false)
			leaderLog.V(1).Info("waiting for leadership")
			if !sleepOrDone(ctx, pollInterval) {
				return
			}
			continue
		}

		g.setLeader(true)
		leaderLog.Info("acquired leadership", "identity", g.identity)
		g.holdUntilRenewalFails(ctx)
		g.setLeader(false)
		leaderLog.Info("lost leadership, returning to contention", "identity", g.identity)
	}
}

// holdUntilRenewalFails renews the lease every renewInterval until ctx is
// cancelled or a renewal fails.
func (g *Gate) holdUntilRenewalFails(ctx context.Context) {
	for {
		if !sleepOrDone(ctx, renewInterval) {
			return
		}
		if err := g.renew(ctx); err != nil {
			leaderLog.Error(err, "failed to renew lease")
			return
		}
		leaderLog.V(1).Info("renewed lease", "identity", g.identity)
	}
}

func sleepOrDone(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

// tryAcquire implements spec.md §4.5: create the lease if absent; if
// present and stale (now - renewTime > leaseDuration), steal it; otherwise
// report no acquisition.
func (g *Gate) tryAcquire(ctx context.Context) (bool, error) {
	leases := g.client.CoordinationV1().Leases(g.namespace)

	existing, err := leases.Get(ctx, LeaseName, metav1.GetOptions{})
	if apierrors.IsNotFound(err) {
		return g.create(ctx)
	}
	if err != nil {
		return false, fmt.Errorf("getting lease: %w", err)
	}

	if existing.Spec.RenewTime == nil {
		return true, g.update(ctx, existing)
	}

	age := g.now().Sub(existing.Spec.RenewTime.Time)
	if age > leaseDuration {
		return true, g.update(ctx, existing)
	}
	return false, nil
}

func (g *Gate) create(ctx context.Context) (bool, error) {
	durSeconds := int32(leaseDuration.Seconds())
	now := metav1.NewMicroTime(g.now())
	lease := &coordinationv1.Lease{
		ObjectMeta: metav1.ObjectMeta{Name: LeaseName, Namespace: g.namespace},
		Spec: coordinationv1.LeaseSpec{
			HolderIdentity:       &g.identity,
			LeaseDurationSeconds: &durSeconds,
			RenewTime:            &now,
		},
	}
	_, err := g.client.CoordinationV1().Leases(g.namespace).Create(ctx, lease, metav1.CreateOptions{})
	if apierrors.IsAlreadyExists(err) {
		// lost the create race to another replica; not an error, just not us.
		return false, nil
	}
	return err == nil, err
}

func (g *Gate) update(ctx context.Context, existing *coordinationv1.Lease) error {
	durSeconds := int32(leaseDuration.Seconds())
	now := metav1.NewMicroTime(g.now())
	updated := existing.DeepCopy()
	updated.Spec.HolderIdentity = &g.identity
	updated.Spec.LeaseDurationSeconds = &durSeconds
	updated.Spec.RenewTime = &now

	_, err := g.client.CoordinationV1().Leases(g.namespace).Update(ctx, updated, metav1.UpdateOptions{})
	return err
}

// renew patches the lease's renewTime, keeping this replica's identity, as
// long as it is still the holder of record.
func (g *Gate) renew(ctx context.Context) error {
	leases := g.client.CoordinationV1().Leases(g.namespace)
	existing, err := leases.Get(ctx, LeaseName, metav1.GetOptions{})
	if err != nil {
		return fmt.Errorf("getting lease for renewal: %w", err)
	}
	if existing.Spec.HolderIdentity == nil || *existing.Spec.HolderIdentity != g.identity {
		return fmt.Errorf("lease %s is held by %v, not %s", LeaseName, existing.Spec.HolderIdentity, g.identity)
	}
	return g.update(ctx, existing)
}
