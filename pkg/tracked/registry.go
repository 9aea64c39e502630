/*
Copyright The CloudNativePG Contributors

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package tracked implements the process-local tracked-resources registry:
// the only cross-task mutable state the controllers share, and the thing
// that guarantees no cluster resource with a lifetime shorter than the
// process outlives it.
package tracked

import (
	"sort"
	"sync"

	"github.com/vsbackup/vsbackup/pkg/management/log"
)

// Kind orders resources within a drain: pod before PVC before secret,
// because pod deletion releases volume mounts and allows PVC removal
// without force.
type Kind int

const (
	// KindPod is drained first
	KindPod Kind = iota
	// KindPVC is drained second
	KindPVC
	// KindSecret is drained last
	KindSecret
)

func (k Kind) String() string {
	switch k {
	case KindPod:
		return "Pod"
	case KindPVC:
		return "PersistentVolumeClaim"
	case KindSecret:
		return "Secret"
	default:
		return "Unknown"
	}
}

// Key identifies one tracked resource
type Key struct {
	Kind      Kind
	Namespace string
	Name      string
}

// Cleanup deletes the tracked resource. It must treat 404 as success.
type Cleanup func() error

// Registry is the tracked-resources registry. The zero value is ready to use.
type Registry struct {
	mu    sync.Mutex
	items map[Key]Cleanup
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{items: make(map[Key]Cleanup)}
}

// Register records a resource and its cleanup callback. It must be called
// before the creating API call is made, or a crash between the create and
// the registration would leak the resource.
func (r *Registry) Register(key Key, cleanup Cleanup) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.items == nil {
		r.items = make(map[Key]Cleanup)
	}
	r.items[key] = cleanup
}

// Deregister removes a resource from the registry. Callers must only do
// this after observing a 404 on delete, or explicitly skipping cleanup.
func (r *Registry) Deregister(key Key) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.items, key)
}

// Len reports how many resources are currently tracked
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.items)
}

// snapshot copies the registry contents under the mutex, returning them
// sorted by Kind so the caller can drain pod -> PVC -> secret while
// operating outside the lock.
func (r *Registry) snapshot() []Key {
	r.mu.Lock()
	defer r.mu.Unlock()
	keys := make([]Key, 0, len(r.items))
	for k := range r.items {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].Kind != keys[j].Kind {
			return keys[i].Kind < keys[j].Kind
		}
		if keys[i].Namespace != keys[j].Namespace {
			return keys[i].Namespace < keys[j].Namespace
		}
		return keys[i].Name < keys[j].Name
	})
	return keys
}

// Cleanup runs the cleanup for a single tracked resource, deregistering it
// on success. A key that is not tracked is a no-op: the resource was
// already reclaimed or never created.
func (r *Registry) Cleanup(key Key) error {
	r.mu.Lock()
	cleanup, ok := r.items[key]
	r.mu.Unlock()
	if !ok {
		return nil
	}

	if err := cleanup(); err != nil {
		return err
	}

	r.Deregister(key)
	return nil
}

// Drain deletes every tracked resource, pod first then PVC then secret,
// deregistering each as its cleanup succeeds. Individual failures are
// logged and do not stop the drain.
func (r *Registry) Drain() {
	for _, key := range r.snapshot() {
		r.mu.Lock()
		cleanup, ok := r.items[key]
		r.mu.Unlock()
		if !ok {
			continue
		}

		if err := cleanup(); err != nil {
			log.Error(err, "failed to clean up tracked resource",
				"kind", key.Kind.String(), "namespace", key.Namespace, "name", key.Name)
			continue
		}

		r.Deregister(key)
	}
}
