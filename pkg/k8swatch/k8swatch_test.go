package k8swatch

import (
	"context"
	"sync"
	"testing"
	"time"

	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/tools/cache"
	fcache "k8s.io/client-go/tools/cache/testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestRun_FusesInitialListIntoOneInitDone exercises Scenario B's event
// shape at the watcher-adapter layer: two pre-existing objects surface
// as InitApply, never Apply, and exactly one InitDone follows.
func TestRun_FusesInitialListIntoOneInitDone(t *testing.T) {
	source := fcache.NewFakeControllerSource()
	source.Add(&corev1.ConfigMap{ObjectMeta: metav1.ObjectMeta{Name: "one"}})
	source.Add(&corev1.ConfigMap{ObjectMeta: metav1.ObjectMeta{Name: "two"}})

	informer := cache.NewSharedIndexInformer(source, &corev1.ConfigMap{}, 0, cache.Indexers{})

	var mu sync.Mutex
	var events []Event
	record := func(evt Event, _ interface{}) {
		mu.Lock()
		defer mu.Unlock()
		events = append(events, evt)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	done := make(chan struct{})
	go func() {
		_ = Run(ctx, informer, record)
		close(done)
	}()

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		for _, e := range events {
			if e == InitDone {
				return true
			}
		}
		return false
	}, time.Second, 10*time.Millisecond)

	source.Add(&corev1.ConfigMap{ObjectMeta: metav1.ObjectMeta{Name: "three"}})

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		count := 0
		for _, e := range events {
			if e == Apply {
				count++
			}
		}
		return count == 1
	}, time.Second, 10*time.Millisecond)

	cancel()
	<-done

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, Init, events[0])

	initApplyCount, initDoneCount, initDoneIdx := 0, 0, -1
	for i, e := range events {
		if e == InitApply {
			initApplyCount++
		}
		if e == InitDone {
			initDoneCount++
			if initDoneIdx == -1 {
				initDoneIdx = i
			}
		}
	}
	assert.Equal(t, 2, initApplyCount)
	assert.Equal(t, 1, initDoneCount)
	assert.NotEqual(t, -1, initDoneIdx)
	for i, e := range events {
		if e == InitApply {
			assert.Less(t, i, initDoneIdx, "InitApply must precede InitDone")
		}
	}
}

func TestRun_DeleteUnwrapsTombstone(t *testing.T) {
	source := fcache.NewFakeControllerSource()
	cm := &corev1.ConfigMap{ObjectMeta: metav1.ObjectMeta{Name: "gone"}}
	source.Add(cm)

	informer := cache.NewSharedIndexInformer(source, &corev1.ConfigMap{}, 0, cache.Indexers{})

	var mu sync.Mutex
	var deleted []interface{}
	record := func(evt Event, obj interface{}) {
		if evt == Delete {
			mu.Lock()
			deleted = append(deleted, obj)
			mu.Unlock()
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	done := make(chan struct{})
	go func() {
		_ = Run(ctx, informer, record)
		close(done)
	}()

	require.Eventually(t, func() bool {
		return informer.HasSynced()
	}, time.Second, 10*time.Millisecond)

	source.Delete(cm)

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(deleted) == 1
	}, time.Second, 10*time.Millisecond)

	cancel()
	<-done
}
