package store

import (
	"strings"
	"sync"

	v1alpha1 "github.com/klubi/stratus/pkg/apis/v1alpha1"
)

// watchBuffer is the per-watcher channel capacity. Events beyond it are dropped.
const watchBuffer = 64

type watcher struct {
	prefix string
	ch     chan v1alpha1.WatchEvent
}

// watchHub fans store mutations out to prefix subscribers. Every backend
// embeds one; watch state is always process-local.
type watchHub struct {
	mu       sync.RWMutex
	watchers []*watcher
}

func (h *watchHub) Watch(prefix string) (<-chan v1alpha1.WatchEvent, func()) {
	w := &watcher{
		prefix: prefix,
		ch:     make(chan v1alpha1.WatchEvent, watchBuffer),
	}

	h.mu.Lock()
	h.watchers = append(h.watchers, w)
	h.mu.Unlock()

	cancel := func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		for i, existing := range h.watchers {
			if existing == w {
				h.watchers = append(h.watchers[:i], h.watchers[i+1:]...)
				close(w.ch)
				return
			}
		}
	}

	return w.ch, cancel
}

// notify sends evt to every watcher whose prefix matches.
func (h *watchHub) notify(evtType v1alpha1.EventType, key string, obj interface{}) {
	evt := v1alpha1.WatchEvent{
		Type:   evtType,
		Kind:   kindFromKey(key),
		Key:    key,
		Object: obj,
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, w := range h.watchers {
		if strings.HasPrefix(evt.Key, w.prefix) {
			select {
			case w.ch <- evt:
			default:
				// Drop event if the watcher is not consuming fast enough.
			}
		}
	}
}

// closeAll closes every watcher channel.
func (h *watchHub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, w := range h.watchers {
		close(w.ch)
	}
	h.watchers = nil
}
