// Package ingress is the reconciliation engine: it folds observed
// Ingress objects into a per-Ingress backend map, and on every settled
// event re-renders the cache process's configuration and reloads it.
package ingress

import (
	"context"
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	networkingv1 "k8s.io/api/networking/v1"
	"k8s.io/client-go/tools/cache"

	"github.com/mariusmagureanu/vingress/pkg/backend"
	"github.com/mariusmagureanu/vingress/pkg/k8swatch"
	"github.com/mariusmagureanu/vingress/pkg/log"
	"github.com/mariusmagureanu/vingress/pkg/metrics"
	"github.com/mariusmagureanu/vingress/pkg/state"
	"github.com/mariusmagureanu/vingress/pkg/vcl"
)

// Reloader is the subset of *varnish.Supervisor the reconciler drives.
// Kept as an interface so tests can stand in a fake rather than shelling
// out to the real reload tool.
type Reloader interface {
	Reload(ctx context.Context) error
}

var recLog = log.Logger.WithName("ingress")

// FatalError wraps a render or reload failure. spec.md §7 treats both as
// fatal: the caller is expected to exit the process non-zero on receipt.
type FatalError struct {
	Err error
}

func (e *FatalError) Error() string { return e.Err.Error() }
func (e *FatalError) Unwrap() error { return e.Err }

// Reconciler owns the per-Ingress backend map and drives the renderer
// and supervisor whenever it settles.
type Reconciler struct {
	class      string
	state      *state.Config
	supervisor Reloader

	byIngress map[string][]backend.Backend
}

// New returns a Reconciler filtering Ingresses by ingressClassName
// (case-insensitive) equal to class.
func New(class string, st *state.Config, sup Reloader) *Reconciler {
	return &Reconciler{class: class, state: st, supervisor: sup, byIngress: map[string][]backend.Backend{}}
}

// Run drives informer through k8swatch.Run, translating its taxonomy
// into reconcile steps. It returns (only) on a fatal render/reload
// failure, a malformed informer, or ctx cancellation.
func (r *Reconciler) Run(ctx context.Context, informer cache.SharedIndexInformer) error {
	var fatal error
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	err := k8swatch.Run(ctx, informer, func(evt k8swatch.Event, obj interface{}) {
		if fatal != nil {
			return
		}
		switch evt {
		case k8swatch.Init:
			// marker, no-op.
		case k8swatch.InitApply:
			r.stash(obj.(*networkingv1.Ingress))
		case k8swatch.InitDone:
			if err := r.reconcile(ctx); err != nil {
				fatal = err
			}
		case k8swatch.Apply:
			r.stash(obj.(*networkingv1.Ingress))
			if err := r.reconcile(ctx); err != nil {
				fatal = err
			}
		case k8swatch.Delete:
			ing := obj.(*networkingv1.Ingress)
			delete(r.byIngress, ingressKey(ing))
			if err := r.reconcile(ctx); err != nil {
				fatal = err
			}
		}
		if fatal != nil {
			// stop the watch so Run returns the fatal error to its caller.
			cancel()
		}
	})
	if fatal != nil {
		return fatal
	}
	return err
}

func ingressKey(ing *networkingv1.Ingress) string {
	ns := ing.Namespace
	if ns == "" {
		ns = "default"
	}
	return ns + "/" + backend.Name(ing)
}

// stash parses ing and, on success, replaces its entry in the
// per-Ingress map. A PortMissing failure drops only this Ingress; it is
// logged and the map is left as it was. This re-checks
// spec.ingressClassName in software per spec.md §4.1's dual filter; the
// informer is expected to already be scoped by the kubernetes.io/ingress
// label selector.
func (r *Reconciler) stash(ing *networkingv1.Ingress) {
	if !backend.IsVarnishClass(ing, r.class) {
		recLog.V(1).Info("skipping ingress outside configured class", "ingress", ingressKey(ing))
		return
	}

	backends, err := backend.FromIngress(ing)
	if err != nil {
		var portMissing *backend.PortMissing
		if errors.As(err, &portMissing) {
			recLog.Error(err, "dropping ingress with missing backend port", "ingress", ingressKey(ing))
			return
		}
		recLog.Error(err, "dropping malformed ingress", "ingress", ingressKey(ing))
		return
	}

	r.byIngress[ingressKey(ing)] = backends
}

// reconcile rebuilds the global backend list from the per-Ingress map,
// writes it into Config State, renders, and reloads. Either failure is
// fatal per spec.md §4.1.
func (r *Reconciler) reconcile(ctx context.Context) error {
	flat := backend.Fold(r.byIngress)
	r.state.SetBackends(flat)
	metrics.BackendsTotal.Set(float64(len(flat)))

	snap := r.state.Snapshot()
	data := vcl.TemplateData{Backends: snap.Backends, Snippet: snap.Snippet, RecvSnippet: snap.RecvSnippet}

	renderTimer := prometheus.NewTimer(metrics.RenderDuration)
	err := vcl.Render(r.state.Template, data, r.state.VCLFile)
	renderTimer.ObserveDuration()
	if err != nil {
		return &FatalError{Err: fmt.Errorf("rendering configuration: %w", err)}
	}

	if err := r.supervisor.Reload(ctx); err != nil {
		metrics.ReloadsTotal.WithLabelValues("failure").Inc()
		return &FatalError{Err: fmt.Errorf("reloading cache process: %w", err)}
	}
	metrics.ReloadsTotal.WithLabelValues("success").Inc()
	recLog.Info("reconciled backends", "count", len(flat))
	return nil
}
