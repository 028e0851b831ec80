package service

import (
	"context"
	"testing"

	corev1 "k8s.io/api/core/v1"
	networkingv1 "k8s.io/api/networking/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes/fake"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mariusmagureanu/vingress/pkg/address"
)

func classPtr(c string) *string { return &c }

type fixedGate struct{ leader bool }

func (g fixedGate) IsLeader() bool { return g.leader }

func TestHandle_SkipsWhenNotLeader(t *testing.T) {
	client := fake.NewSimpleClientset(&networkingv1.Ingress{
		ObjectMeta: metav1.ObjectMeta{Name: "web", Namespace: "prod"},
		Spec:       networkingv1.IngressSpec{IngressClassName: classPtr("varnish")},
	})
	p := New(client, "varnish", fixedGate{leader: false})

	svc := &corev1.Service{Spec: corev1.ServiceSpec{Type: corev1.ServiceTypeClusterIP, ClusterIP: "10.0.0.9"}}
	p.handle(context.Background(), svc)

	ing, err := client.NetworkingV1().Ingresses("prod").Get(context.Background(), "web", metav1.GetOptions{})
	require.NoError(t, err)
	assert.Empty(t, ing.Status.LoadBalancer.Ingress)
}

func TestHandle_PublishesToMatchingClassOnly(t *testing.T) {
	client := fake.NewSimpleClientset(
		&networkingv1.Ingress{
			ObjectMeta: metav1.ObjectMeta{Name: "web", Namespace: "prod"},
			Spec:       networkingv1.IngressSpec{IngressClassName: classPtr("varnish")},
		},
		&networkingv1.Ingress{
			ObjectMeta: metav1.ObjectMeta{Name: "other", Namespace: "prod"},
			Spec:       networkingv1.IngressSpec{IngressClassName: classPtr("nginx")},
		},
	)
	p := New(client, "varnish", fixedGate{leader: true})

	svc := &corev1.Service{Spec: corev1.ServiceSpec{Type: corev1.ServiceTypeClusterIP, ClusterIP: "10.0.0.9"}}
	p.handle(context.Background(), svc)

	web, err := client.NetworkingV1().Ingresses("prod").Get(context.Background(), "web", metav1.GetOptions{})
	require.NoError(t, err)
	require.Len(t, web.Status.LoadBalancer.Ingress, 1)
	assert.Equal(t, "10.0.0.9", web.Status.LoadBalancer.Ingress[0].IP)

	other, err := client.NetworkingV1().Ingresses("prod").Get(context.Background(), "other", metav1.GetOptions{})
	require.NoError(t, err)
	assert.Empty(t, other.Status.LoadBalancer.Ingress)
}

func TestHandle_DropsTranslationErrorWithoutAffectingLeader(t *testing.T) {
	client := fake.NewSimpleClientset(&networkingv1.Ingress{
		ObjectMeta: metav1.ObjectMeta{Name: "web", Namespace: "prod"},
		Spec:       networkingv1.IngressSpec{IngressClassName: classPtr("varnish")},
	})
	p := New(client, "varnish", fixedGate{leader: true})

	svc := &corev1.Service{}
	p.handle(context.Background(), svc)

	ing, err := client.NetworkingV1().Ingresses("prod").Get(context.Background(), "web", metav1.GetOptions{})
	require.NoError(t, err)
	assert.Empty(t, ing.Status.LoadBalancer.Ingress)
}

func TestStatusPatch_MarshalsIPAndHostname(t *testing.T) {
	patch, err := statusPatch([]address.Address{{IP: "1.1.1.1"}, {Hostname: "h"}})
	require.NoError(t, err)
	assert.Contains(t, string(patch), "1.1.1.1")
	assert.Contains(t, string(patch), `"hostname":"h"`)
}
