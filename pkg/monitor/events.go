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

package monitor

import (
	"context"
	"fmt"
	"time"

	corev1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	"k8s.io/apimachinery/pkg/watch"

	"github.com/vsbackup/vsbackup/pkg/management/log"
)

// runEventStream watches events for the pod, reconnecting on the watch's
// natural ~60s timeout and on 410 Gone by resuming from the latest known
// resourceVersion returned by the list envelope, never from an individual
// event: watches re-deliver their buffer on reconnect.
func (m *Monitor) runEventStream(ctx context.Context) {
	resourceVersion := ""

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		list, err := m.Client.ListPodEvents(ctx, m.Namespace, m.PodName)
		if err != nil {
			if apierrors.IsNotFound(err) {
				return
			}
			log.Error(err, "error listing pod events", "pod", m.PodName)
			continue
		}
		for _, event := range list.Items {
			m.emitEvent(&event) //nolint:gosec // event is used within the loop iteration only
		}
		resourceVersion = list.ResourceVersion

		watcher, err := m.Client.WatchEvents(ctx, m.Namespace, m.PodName, resourceVersion)
		if err != nil {
			log.Error(err, "error watching pod events", "pod", m.PodName)
			return
		}

		m.drainWatch(ctx, watcher)
		watcher.Stop()

		select {
		case <-ctx.Done():
			return
		default:
		}
	}
}

// drainWatch consumes events from an open watch until it closes (natural
// timeout, 410 Gone, or context cancellation), then returns so the caller
// can reconnect.
func (m *Monitor) drainWatch(ctx context.Context, watcher watch.Interface) {
	timeout := time.NewTimer(eventWatchTimeout)
	defer timeout.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timeout.C:
			return
		case e, ok := <-watcher.ResultChan():
			if !ok {
				return
			}
			if e.Type == watch.Error {
				return
			}
			event, ok := e.Object.(*corev1.Event)
			if !ok {
				continue
			}
			m.emitEvent(event)
		}
	}
}

// emitEvent prints the event unless its UID has already been emitted for
// this pod, and remembers it (bounded at maxRememberedEventUIDs) so
// reconnection-caused redelivery never produces a duplicate.
func (m *Monitor) emitEvent(event *corev1.Event) {
	uid := string(event.UID)

	m.mu.Lock()
	if m.seenIndex[uid] {
		m.mu.Unlock()
		return
	}
	m.seenIndex[uid] = true
	m.seenUIDs = append(m.seenUIDs, uid)
	if len(m.seenUIDs) > maxRememberedEventUIDs {
		oldest := m.seenUIDs[0]
		m.seenUIDs = m.seenUIDs[1:]
		delete(m.seenIndex, oldest)
	}
	m.mu.Unlock()

	log.Info(fmt.Sprintf("[EVENT] %s %s: %s", event.Type, event.Reason, event.Message))
}
