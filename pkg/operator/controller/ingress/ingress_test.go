package ingress

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	networkingv1 "k8s.io/api/networking/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/tools/cache"
	fcache "k8s.io/client-go/tools/cache/testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mariusmagureanu/vingress/pkg/state"
)

const testTemplate = `{{range .backend}}{{.Name}} {{.Host}}{{.Path}} {{.Port}}
{{end}}`

type countingReloader struct {
	count int
}

func (r *countingReloader) Reload(ctx context.Context) error {
	r.count++
	return nil
}

func ingressClassName(class string) *string { return &class }

func webIngress(namespace, name, host, svc string, port int32) *networkingv1.Ingress {
	pt := networkingv1.PathTypePrefix
	return &networkingv1.Ingress{
		ObjectMeta: metav1.ObjectMeta{Namespace: namespace, Name: name},
		Spec: networkingv1.IngressSpec{
			IngressClassName: ingressClassName("varnish"),
			Rules: []networkingv1.IngressRule{{
				Host: host,
				IngressRuleValue: networkingv1.IngressRuleValue{
					HTTP: &networkingv1.HTTPIngressRuleValue{
						Paths: []networkingv1.HTTPIngressPath{{
							Path:     "/",
							PathType: &pt,
							Backend: networkingv1.IngressBackend{
								Service: &networkingv1.IngressServiceBackend{
									Name: svc,
									Port: networkingv1.ServiceBackendPort{Number: port},
								},
							},
						}},
					},
				},
			}},
		},
	}
}

func newTestState(t *testing.T) *state.Config {
	dir := t.TempDir()
	tmplPath := filepath.Join(dir, "vcl.tmpl")
	require.NoError(t, os.WriteFile(tmplPath, []byte(testTemplate), 0o644))
	return state.New(filepath.Join(dir, "default.vcl"), tmplPath, dir)
}

// Scenario A from spec.md §8.
func TestReconcile_ScenarioA_SingleIngressOneBackend(t *testing.T) {
	st := newTestState(t)
	reloader := &countingReloader{}
	r := New("varnish", st, reloader)

	ing := webIngress("prod", "web", "a.example.com", "api", 80)
	r.stash(ing)
	require.NoError(t, r.reconcile(context.Background()))

	snap := st.Snapshot()
	require.Len(t, snap.Backends, 1)
	assert.Equal(t, "prod-web-api", snap.Backends[0].Name)
	assert.Equal(t, "a.example.com", snap.Backends[0].Host)
	assert.Equal(t, "/", snap.Backends[0].Path)
	assert.EqualValues(t, 80, snap.Backends[0].Port)
	assert.Equal(t, 1, reloader.count)
}

// Scenario B from spec.md §8: Init, InitApply(ing1), InitApply(ing2),
// InitDone fuses into exactly one reload.
func TestRun_ScenarioB_StartupFusing(t *testing.T) {
	st := newTestState(t)
	reloader := &countingReloader{}
	r := New("varnish", st, reloader)

	source := fcache.NewFakeControllerSource()
	source.Add(webIngress("default", "ing1", "a.example.com", "svc-a", 80))
	source.Add(webIngress("default", "ing2", "b.example.com", "svc-b", 81))

	informer := cache.NewSharedIndexInformer(source, &networkingv1.Ingress{}, 0, cache.Indexers{})
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- r.Run(ctx, informer) }()

	require.Eventually(t, func() bool { return reloader.count >= 1 }, time.Second, 10*time.Millisecond)

	cancel()
	<-done

	assert.Equal(t, 1, reloader.count)
	snap := st.Snapshot()
	require.Len(t, snap.Backends, 2)
	assert.Equal(t, "default-ing1-svc-a", snap.Backends[0].Name)
	assert.Equal(t, "default-ing2-svc-b", snap.Backends[1].Name)
}

// Scenario C from spec.md §8: delete ing1 from Scenario B's state leaves
// only ing2's backend, with exactly one more reload.
func TestReconcile_ScenarioC_Delete(t *testing.T) {
	st := newTestState(t)
	reloader := &countingReloader{}
	r := New("varnish", st, reloader)

	r.stash(webIngress("default", "ing1", "a.example.com", "svc-a", 80))
	r.stash(webIngress("default", "ing2", "b.example.com", "svc-b", 81))
	require.NoError(t, r.reconcile(context.Background()))
	require.Equal(t, 1, reloader.count)

	delete(r.byIngress, "default/ing1")
	require.NoError(t, r.reconcile(context.Background()))

	snap := st.Snapshot()
	require.Len(t, snap.Backends, 1)
	assert.Equal(t, "default-ing2-svc-b", snap.Backends[0].Name)
	assert.Equal(t, 2, reloader.count)
}

func TestStash_SkipsOtherIngressClass(t *testing.T) {
	st := newTestState(t)
	r := New("varnish", st, &countingReloader{})

	ing := webIngress("default", "other", "c.example.com", "svc-c", 80)
	ing.Spec.IngressClassName = ingressClassName("nginx")
	r.stash(ing)

	assert.Empty(t, r.byIngress)
}

func TestStash_DropsPortMissingIngress(t *testing.T) {
	st := newTestState(t)
	r := New("varnish", st, &countingReloader{})

	ing := &networkingv1.Ingress{
		ObjectMeta: metav1.ObjectMeta{Namespace: "default", Name: "bad"},
		Spec: networkingv1.IngressSpec{
			IngressClassName: ingressClassName("varnish"),
			Rules: []networkingv1.IngressRule{{
				IngressRuleValue: networkingv1.IngressRuleValue{
					HTTP: &networkingv1.HTTPIngressRuleValue{
						Paths: []networkingv1.HTTPIngressPath{{
							Backend: networkingv1.IngressBackend{
								Service: &networkingv1.IngressServiceBackend{Name: "svc", Port: networkingv1.ServiceBackendPort{}},
							},
						}},
					},
				},
			}},
		},
	}
	r.stash(ing)
	assert.Empty(t, r.byIngress)
}
