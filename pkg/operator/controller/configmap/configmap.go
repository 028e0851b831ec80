// Package configmap watches a single named ConfigMap and folds its
// snippet/recv-snippet keys into Config State, triggering a render and
// reload on every settled change. Unlike the Ingress reconciler, this
// watcher never exits the process on error (spec.md §4.4): a malformed
// or missing key is a warning, not a fatal condition.
package configmap

import (
	"context"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/prometheus/client_golang/prometheus"
	corev1 "k8s.io/api/core/v1"
	"k8s.io/client-go/tools/cache"

	"github.com/mariusmagureanu/vingress/pkg/k8swatch"
	"github.com/mariusmagureanu/vingress/pkg/log"
	"github.com/mariusmagureanu/vingress/pkg/metrics"
	"github.com/mariusmagureanu/vingress/pkg/state"
	"github.com/mariusmagureanu/vingress/pkg/vcl"
)

var cmLog = log.Logger.WithName("configmap")

const (
	snippetKey     = "snippet"
	recvSnippetKey = "vcl_recv_snippet"
)

// Reloader is the subset of *varnish.Supervisor the watcher drives.
type Reloader interface {
	Reload(ctx context.Context) error
}

// Watcher holds the last-seen data map purely for diff logging; Config
// State is the source of truth for what gets rendered.
type Watcher struct {
	name       string
	state      *state.Config
	supervisor Reloader

	lastData map[string]string
}

// New returns a Watcher for the ConfigMap named name.
func New(name string, st *state.Config, sup Reloader) *Watcher {
	return &Watcher{name: name, state: st, supervisor: sup}
}

// Run drives informer through k8swatch.Run. InitApply and InitDone are
// folded into the initial apply like the Ingress reconciler does, so the
// first render reflects the ConfigMap's state at startup without a
// redundant extra reload.
func (w *Watcher) Run(ctx context.Context, informer cache.SharedIndexInformer) error {
	var pendingInitial *corev1.ConfigMap

	return k8swatch.Run(ctx, informer, func(evt k8swatch.Event, obj interface{}) {
		switch evt {
		case k8swatch.Init:
			// marker, no-op.
		case k8swatch.InitApply:
			if cm, ok := obj.(*corev1.ConfigMap); ok && cm.Name == w.name {
				pendingInitial = cm
			}
		case k8swatch.InitDone:
			if pendingInitial != nil {
				w.apply(ctx, pendingInitial)
			}
		case k8swatch.Apply:
			cm := obj.(*corev1.ConfigMap)
			if cm.Name != w.name {
				return
			}
			w.apply(ctx, cm)
		case k8swatch.Delete:
			cm := obj.(*corev1.ConfigMap)
			if cm.Name != w.name {
				return
			}
			w.lastData = nil
			w.state.ClearSnippets()
			w.renderAndReload(ctx, "deleting")
		}
	})
}

func (w *Watcher) apply(ctx context.Context, cm *corev1.ConfigMap) {
	snippet, hasSnippet := cm.Data[snippetKey]
	recvSnippet, hasRecvSnippet := cm.Data[recvSnippetKey]

	if !hasSnippet {
		cmLog.Info("configmap missing snippet key", "configmap", w.name)
	}
	if !hasRecvSnippet {
		cmLog.Info("configmap missing vcl_recv_snippet key", "configmap", w.name)
	}
	if !hasSnippet && !hasRecvSnippet {
		return
	}

	if diff := cmp.Diff(w.lastData, cm.Data, cmpopts.EquateEmpty()); diff != "" {
		cmLog.V(1).Info("configmap data changed", "configmap", w.name, "diff", diff)
	}
	w.lastData = cm.Data

	w.state.SetSnippets(snippet, hasSnippet, recvSnippet, hasRecvSnippet)
	w.renderAndReload(ctx, "reconciling")
}

// renderAndReload re-renders the VCL configuration from current Config
// State and reloads the cache process, used by both apply (snippet keys
// changed) and the Delete path (snippets cleared outright). verb only
// shapes the log lines so callers read distinctly.
func (w *Watcher) renderAndReload(ctx context.Context, verb string) {
	snap := w.state.Snapshot()
	data := vcl.TemplateData{Backends: snap.Backends, Snippet: snap.Snippet, RecvSnippet: snap.RecvSnippet}

	renderTimer := prometheus.NewTimer(metrics.RenderDuration)
	err := vcl.Render(w.state.Template, data, w.state.VCLFile)
	renderTimer.ObserveDuration()
	if err != nil {
		cmLog.Error(err, "rendering configuration after configmap change", "configmap", w.name)
		return
	}
	if err := w.supervisor.Reload(ctx); err != nil {
		metrics.ReloadsTotal.WithLabelValues("failure").Inc()
		cmLog.Error(err, "reloading cache process after configmap change", "configmap", w.name)
		return
	}
	metrics.ReloadsTotal.WithLabelValues("success").Inc()
	cmLog.Info("reconciled snippets from configmap", "configmap", w.name, "action", verb)
}
