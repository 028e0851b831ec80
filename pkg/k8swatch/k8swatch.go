// Package k8swatch adapts client-go's SharedIndexInformer callback shape
// onto the five-event taxonomy spec.md §4.1 describes: Init, InitApply,
// InitDone, Apply, Delete. client-go guarantees every Add for a
// pre-existing object is delivered to handlers before HasSynced becomes
// true, which is exactly the property the taxonomy needs to fuse the
// initial list into one InitDone instead of replaying it as N Applies.
package k8swatch

import (
	"context"
	"sync"

	"k8s.io/client-go/tools/cache"

	"github.com/mariusmagureanu/vingress/pkg/log"
)

var watchLog = log.Logger.WithName("k8swatch")

// Event distinguishes the phase of an observed change.
type Event int

const (
	// Init is emitted exactly once, before the informer starts.
	Init Event = iota
	// InitApply carries an object observed as part of the initial list.
	// Handlers MUST NOT trigger render/reload for this event.
	InitApply
	// InitDone is emitted exactly once after the initial list has been
	// fully delivered as InitApply events.
	InitDone
	// Apply carries an object added or updated after the initial sync.
	Apply
	// Delete carries an object removed from the watched collection.
	Delete
)

// Handler receives taxonomy events. obj is nil for Init and InitDone.
type Handler func(evt Event, obj interface{})

// Run drives informer to completion of ctx, translating its Add/Update/
// Delete callbacks into the Init/InitApply/InitDone/Apply/Delete
// taxonomy and invoking handle for each. It blocks until ctx is
// cancelled.
func Run(ctx context.Context, informer cache.SharedIndexInformer, handle Handler) error {
	handle(Init, nil)

	var synced sync.Once
	emitInitDoneOnce := func() {
		synced.Do(func() {
			handle(InitDone, nil)
		})
	}

	_, err := informer.AddEventHandler(cache.ResourceEventHandlerFuncs{
		AddFunc: func(obj interface{}) {
			if informer.HasSynced() {
				handle(Apply, obj)
				return
			}
			handle(InitApply, obj)
		},
		UpdateFunc: func(_, newObj interface{}) {
			handle(Apply, newObj)
		},
		DeleteFunc: func(obj interface{}) {
			if tombstone, ok := obj.(cache.DeletedFinalStateUnknown); ok {
				obj = tombstone.Obj
			}
			handle(Delete, obj)
		},
	})
	if err != nil {
		return err
	}

	stopCh := ctx.Done()
	go informer.Run(stopCh)

	if !cache.WaitForCacheSync(stopCh, informer.HasSynced) {
		watchLog.Info("informer stopped before initial sync completed")
		return ctx.Err()
	}
	emitInitDoneOnce()

	<-stopCh
	return ctx.Err()
}
