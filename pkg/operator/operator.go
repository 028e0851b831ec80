// Package operator is the scaffolding that wires every subsystem
// together: given a clientset, it builds the informers, constructs the
// reconciler, the configmap watcher, the leader gate, and the status
// publisher, and joins their run loops. This mirrors the teacher's
// Operator{scaffolding}/New()/Start(ctx) shape, generalised from a
// multi-controller-runtime manager down to the four watchers plus
// supervisor spec.md §2 names.
package operator

import (
	"context"
	"fmt"
	"time"

	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/fields"
	"k8s.io/client-go/informers"
	"k8s.io/client-go/kubernetes"

	"github.com/mariusmagureanu/vingress/pkg/leader"
	"github.com/mariusmagureanu/vingress/pkg/log"
	"github.com/mariusmagureanu/vingress/pkg/metrics"
	"github.com/mariusmagureanu/vingress/pkg/operator/config"
	configmapcontroller "github.com/mariusmagureanu/vingress/pkg/operator/controller/configmap"
	ingresscontroller "github.com/mariusmagureanu/vingress/pkg/operator/controller/ingress"
	servicecontroller "github.com/mariusmagureanu/vingress/pkg/operator/controller/service"
	"github.com/mariusmagureanu/vingress/pkg/state"
	"github.com/mariusmagureanu/vingress/pkg/varnish"
	"github.com/mariusmagureanu/vingress/pkg/varnishlog"
)

var opLog = log.Logger.WithName("operator")

// serviceSelector is spec.md §4.6's fixed label selector for the
// controller's own Service.
const serviceSelector = "app=varnish-ingress-controller"

// configMapName is the single ConfigMap spec.md §4.4 watches.
const configMapName = "varnish-config"

// resyncPeriod matches the teacher's 24h full-resync cadence for
// informers backed by a watch (not a poll) cluster API.
const resyncPeriod = 24 * time.Hour

// Operator is the scaffolding wiring every subsystem together.
type Operator struct {
	cfg    *config.Config
	client kubernetes.Interface

	state      *state.Config
	supervisor *varnish.Supervisor
	gate       *leader.Gate
}

// New builds (but does not start) an Operator from resolved config and a
// Kubernetes clientset.
func New(cfg *config.Config, client kubernetes.Interface) *Operator {
	st := state.New(cfg.VCLFile, cfg.Template, cfg.WorkFolder)
	st.SetSnippets(cfg.VCLSnippet, true, cfg.VCLRecvSnippet, true)

	sup := varnish.New(varnish.Config{
		HTTPPort:   cfg.HTTPPort,
		VCLPath:    cfg.VCLFile,
		WorkDir:    cfg.WorkFolder,
		DefaultTTL: cfg.DefaultTTL,
		Params:     cfg.Params,
		Storage:    cfg.Storage,
	})

	gate := leader.New(client, cfg.Namespace, cfg.PodName)

	return &Operator{cfg: cfg, client: client, state: st, supervisor: sup, gate: gate}
}

// Start launches the cache process, then joins the four watchers plus
// the log-tail and varnishstat side channels. Per spec.md §4.1 and
// §4.3, a fatal error from the Ingress Reconciler or a cache-process
// crash terminates Start with a non-zero-worthy error; the process
// supervisor above this one is expected to restart it.
func (o *Operator) Start(ctx context.Context) error {
	if err := o.supervisor.Start(ctx); err != nil {
		return fmt.Errorf("starting cache process: %w", err)
	}

	errCh := make(chan error, 6)

	go func() { errCh <- fmt.Errorf("cache process exited: %w", <-o.supervisor.Wait()) }()
	go o.gate.Run(ctx)
	go func() { errCh <- o.runIngressReconciler(ctx) }()
	go func() { errCh <- o.runConfigMapWatcher(ctx) }()
	go func() { errCh <- o.runServicePublisher(ctx) }()
	go func() {
		if err := o.supervisor.TailLog(ctx, func(rec varnishlog.Record) {
			opLog.V(2).Info("transaction", "method", rec.Method, "url", rec.URL, "status", rec.RespStatus)
		}); err != nil {
			opLog.Error(err, "log tail ended")
		}
	}()
	go metrics.PollVarnishstat(ctx, o.cfg.WorkFolder)

	select {
	case <-ctx.Done():
		return nil
	case err := <-errCh:
		return err
	}
}

func (o *Operator) runIngressReconciler(ctx context.Context) error {
	factory := informers.NewSharedInformerFactoryWithOptions(o.client, resyncPeriod,
		informers.WithTweakListOptions(func(opts *metav1.ListOptions) {
			opts.LabelSelector = fmt.Sprintf("kubernetes.io/ingress=%s", o.cfg.IngressClass)
		}),
	)
	informer := factory.Networking().V1().Ingresses().Informer()
	r := ingresscontroller.New(o.cfg.IngressClass, o.state, o.supervisor)

	if err := r.Run(ctx, informer); err != nil {
		return fmt.Errorf("ingress reconciler: %w", err)
	}
	return nil
}

func (o *Operator) runConfigMapWatcher(ctx context.Context) error {
	factory := informers.NewSharedInformerFactoryWithOptions(o.client, resyncPeriod,
		informers.WithNamespace(o.cfg.Namespace),
		informers.WithTweakListOptions(func(opts *metav1.ListOptions) {
			opts.FieldSelector = fields.OneTermEqualSelector("metadata.name", configMapName).String()
		}),
	)
	informer := factory.Core().V1().ConfigMaps().Informer()
	w := configmapcontroller.New(configMapName, o.state, o.supervisor)

	if err := w.Run(ctx, informer); err != nil {
		return fmt.Errorf("configmap watcher: %w", err)
	}
	return nil
}

func (o *Operator) runServicePublisher(ctx context.Context) error {
	factory := informers.NewSharedInformerFactoryWithOptions(o.client, resyncPeriod,
		informers.WithNamespace(o.cfg.Namespace),
		informers.WithTweakListOptions(func(opts *metav1.ListOptions) {
			opts.LabelSelector = serviceSelector
		}),
	)
	informer := factory.Core().V1().Services().Informer()
	p := servicecontroller.New(o.client, o.cfg.IngressClass, o.gate)

	if err := p.Run(ctx, informer); err != nil {
		return fmt.Errorf("service publisher: %w", err)
	}
	return nil
}
