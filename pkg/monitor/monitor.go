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

// Package monitor implements the dual concurrent pod monitor: one stream
// follows container logs, the other watches pod events, and both run
// until the pod reaches a terminal phase or the caller cancels.
package monitor

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	corev1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"

	"github.com/vsbackup/vsbackup/pkg/cluster"
	"github.com/vsbackup/vsbackup/pkg/management/log"
	"github.com/vsbackup/vsbackup/pkg/podlogs"
)

// eventWatchTimeout mirrors the ~60s natural timeout of a cluster event
// watch
const eventWatchTimeout = 60 * time.Second

// maxRememberedEventUIDs bounds the dedup set per pod
const maxRememberedEventUIDs = 200

// Monitor watches a single pod's logs and events until it reaches a
// terminal phase
type Monitor struct {
	Client    *cluster.Client
	Namespace string
	PodName   string

	mu        sync.Mutex
	seenUIDs  []string
	seenIndex map[string]bool
}

// New creates a Monitor for the given pod
func New(client *cluster.Client, namespace, podName string) *Monitor {
	return &Monitor{
		Client:    client,
		Namespace: namespace,
		PodName:   podName,
		seenIndex: make(map[string]bool),
	}
}

// WatchUntilTerminal blocks until the pod reaches phase Succeeded or Failed,
// or ctx is cancelled. The log stream and the event stream run
// concurrently and are both joined before returning.
func (m *Monitor) WatchUntilTerminal(ctx context.Context) (corev1.PodPhase, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		m.runLogStream(ctx)
	}()
	go func() {
		defer wg.Done()
		m.runEventStream(ctx)
	}()

	phase, err := m.pollUntilTerminal(ctx)
	cancel()
	wg.Wait()
	return phase, err
}

func (m *Monitor) pollUntilTerminal(ctx context.Context) (corev1.PodPhase, error) {
	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()

	for {
		pod, err := m.Client.GetPod(ctx, m.Namespace, m.PodName)
		if err == nil && isTerminal(pod.Status.Phase) {
			return pod.Status.Phase, nil
		}
		if err != nil && !apierrors.IsNotFound(err) {
			log.Error(err, "error polling pod phase", "pod", m.PodName)
		}

		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-ticker.C:
		}
	}
}

func isTerminal(phase corev1.PodPhase) bool {
	return phase == corev1.PodSucceeded || phase == corev1.PodFailed
}

// runLogStream gates on the container having started (state.running.startedAt
// non-zero), then follows logs for the pod's lifetime, prefixing every line
// with [podName]. Following logs before the container starts returns 400,
// hence the gate.
func (m *Monitor) runLogStream(ctx context.Context) {
	prefix := fmt.Sprintf("[%s] ", m.PodName)
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		pod, err := m.Client.GetPod(ctx, m.Namespace, m.PodName)
		if err != nil {
			if apierrors.IsNotFound(err) {
				return
			}
			continue
		}

		if !containerStarted(pod) && !isTerminal(pod.Status.Phase) {
			continue
		}

		writer := podlogs.Writer{Pod: *pod, Client: m.Client.Kube}
		err = writer.Single(ctx, &prefixWriter{prefix: prefix}, &corev1.PodLogOptions{Follow: true})
		if err != nil && !isSwallowableLogError(err) {
			log.Error(err, "error following pod logs", "pod", m.PodName)
		}
		return
	}
}

func containerStarted(pod *corev1.Pod) bool {
	for _, cs := range pod.Status.ContainerStatuses {
		if cs.State.Running != nil && !cs.State.Running.StartedAt.IsZero() {
			return true
		}
		if cs.State.Terminated != nil {
			return true
		}
	}
	return false
}

// isSwallowableLogError absorbs the 400/"bad request" a log follow can
// return when the container has not actually started yet, despite our
// gate (a race between the phase check and the log API). Any other error is
// logged as an error and ends the log stream; it does not fail the watch.
func isSwallowableLogError(err error) bool {
	if err == nil {
		return false
	}
	if apierrors.IsBadRequest(err) {
		return true
	}
	return strings.Contains(err.Error(), "bad request")
}

type prefixWriter struct {
	prefix string
}

func (p *prefixWriter) Write(data []byte) (int, error) {
	lines := strings.SplitAfter(string(data), "\n")
	for _, line := range lines {
		if line == "" {
			continue
		}
		log.Info(p.prefix + strings.TrimRight(line, "\n"))
	}
	return len(data), nil
}
