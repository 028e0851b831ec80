// Package service watches the controller's own Service object, translates
// its shape into a load-balancer address list, and publishes that list
// onto every Ingress of the configured class via a status merge-patch.
// This is the only writer that consults the Leader Gate: all other
// watchers run identically on every replica (spec.md §4.5).
package service

import (
	"context"
	"encoding/json"
	"strings"

	corev1 "k8s.io/api/core/v1"
	networkingv1 "k8s.io/api/networking/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/types"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/tools/cache"

	"github.com/mariusmagureanu/vingress/pkg/address"
	"github.com/mariusmagureanu/vingress/pkg/ingress/translate"
	"github.com/mariusmagureanu/vingress/pkg/k8swatch"
	"github.com/mariusmagureanu/vingress/pkg/log"
)

var svcLog = log.Logger.WithName("service")

// fieldManager names the apply/patch actor, mirroring spec.md §4.6.
const fieldManager = "update-status"

// LeaderGate is the subset of *leader.Gate the publisher consults. Read
// once per patch batch; a transition mid-batch may cause the remainder
// to be skipped, which spec.md §5 calls acceptable.
type LeaderGate interface {
	IsLeader() bool
}

// Publisher patches status onto every Ingress of class whenever the
// controller's own Service settles, gated by leader.
type Publisher struct {
	client kubernetes.Interface
	class  string
	gate   LeaderGate
}

// New returns a Publisher filtering Ingresses by spec.ingressClassName
// equal to class. spec.md §4.6 documents the source's case-exact
// comparison here but recommends the reconciler's case-insensitive rule
// for consistency; this implementation follows that recommendation (see
// the Open Question decision recorded alongside it).
func New(client kubernetes.Interface, class string, gate LeaderGate) *Publisher {
	return &Publisher{client: client, class: class, gate: gate}
}

// Run drives informer through k8swatch.Run. InitApply and Apply events
// for the watched Service trigger a publish attempt; Init and InitDone
// carry no object and are ignored, as are Delete events, since the spec names translation errors
// and per-Ingress patch failures as drop-and-log, not a defined action
// for the Service's own removal.
func (p *Publisher) Run(ctx context.Context, informer cache.SharedIndexInformer) error {
	return k8swatch.Run(ctx, informer, func(evt k8swatch.Event, obj interface{}) {
		switch evt {
		case k8swatch.InitApply, k8swatch.Apply:
			p.handle(ctx, obj.(*corev1.Service))
		}
	})
}

func (p *Publisher) handle(ctx context.Context, svc *corev1.Service) {
	addrs, err := translate.Service(svc)
	if err != nil {
		svcLog.Error(err, "dropping service translation", "service", svc.Name)
		return
	}

	if !p.gate.IsLeader() {
		svcLog.V(1).Info("skipping status publication, not leader")
		return
	}

	p.publish(ctx, addrs)
}

func (p *Publisher) publish(ctx context.Context, addrs []address.Address) {
	ingresses, err := p.client.NetworkingV1().Ingresses(metav1.NamespaceAll).List(ctx, metav1.ListOptions{})
	if err != nil {
		svcLog.Error(err, "listing ingresses for status publication")
		return
	}

	patch, err := statusPatch(addrs)
	if err != nil {
		svcLog.Error(err, "building status patch")
		return
	}

	for i := range ingresses.Items {
		ing := &ingresses.Items[i]
		if !belongsToClass(ing, p.class) {
			continue
		}
		_, err := p.client.NetworkingV1().Ingresses(ing.Namespace).Patch(
			ctx, ing.Name, types.MergePatchType, patch, metav1.PatchOptions{FieldManager: fieldManager}, "status",
		)
		if err != nil {
			svcLog.Error(err, "patching ingress status", "ingress", ing.Namespace+"/"+ing.Name)
			continue
		}
		svcLog.V(1).Info("patched ingress status", "ingress", ing.Namespace+"/"+ing.Name)
	}
}

func belongsToClass(ing *networkingv1.Ingress, class string) bool {
	if ing.Spec.IngressClassName == nil {
		return false
	}
	return strings.EqualFold(*ing.Spec.IngressClassName, class)
}

func statusPatch(addrs []address.Address) ([]byte, error) {
	lbIngress := make([]corev1.LoadBalancerIngress, 0, len(addrs))
	for _, a := range addrs {
		lbIngress = append(lbIngress, corev1.LoadBalancerIngress{IP: a.IP, Hostname: a.Hostname})
	}
	return json.Marshal(map[string]interface{}{
		"status": map[string]interface{}{
			"loadBalancer": map[string]interface{}{
				"ingress": lbIngress,
			},
		},
	})
}
