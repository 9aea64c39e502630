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

package hooks

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	corev1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"

	"github.com/vsbackup/vsbackup/pkg/cluster"
	"github.com/vsbackup/vsbackup/pkg/config"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

// anyPod returns a pod of the requested name with the given containers, so
// every hook target resolves without a cluster.
func anyPod(containers ...string) func(context.Context, string, string) (*corev1.Pod, error) {
	return func(_ context.Context, namespace, name string) (*corev1.Pod, error) {
		pod := &corev1.Pod{ObjectMeta: metav1.ObjectMeta{Namespace: namespace, Name: name}}
		for _, c := range containers {
			pod.Spec.Containers = append(pod.Spec.Containers, corev1.Container{Name: c})
		}
		return pod, nil
	}
}

var _ = Describe("Executor", func() {
	It("runs hooks sequentially by default, in order", func() {
		var order []string
		var mu sync.Mutex

		x := &Executor{Namespace: "ns"}
		x.getPodFn = anyPod("main")
		x.execFn = func(_ context.Context, _, pod, _ string, _ []string) (*cluster.ExecResult, error) {
			mu.Lock()
			order = append(order, pod)
			mu.Unlock()
			return &cluster.ExecResult{ExitCode: 0}, nil
		}

		hooksList := []config.Hook{
			{Pod: "a", Command: []string{"true"}},
			{Pod: "b", Command: []string{"true"}},
			{Pod: "c", Command: []string{"true"}},
		}
		_, err := x.Run(context.Background(), hooksList)
		Expect(err).ToNot(HaveOccurred())
		Expect(order).To(Equal([]string{"a", "b", "c"}))
	})

	It("aborts the sequence on a non-zero exit", func() {
		var ran []string
		x := &Executor{Namespace: "ns"}
		x.getPodFn = anyPod("main")
		x.execFn = func(_ context.Context, _, pod, _ string, _ []string) (*cluster.ExecResult, error) {
			ran = append(ran, pod)
			if pod == "b" {
				return &cluster.ExecResult{ExitCode: 1, Stderr: "boom"}, nil
			}
			return &cluster.ExecResult{ExitCode: 0}, nil
		}

		hooksList := []config.Hook{
			{Pod: "a", Command: []string{"true"}},
			{Pod: "b", Command: []string{"false"}},
			{Pod: "c", Command: []string{"true"}},
		}
		_, err := x.Run(context.Background(), hooksList)
		Expect(err).To(HaveOccurred())
		Expect(ran).To(Equal([]string{"a", "b"}))

		var hookErr *HookError
		Expect(errors.As(err, &hookErr)).To(BeTrue())
		Expect(hookErr.Result.ExitCode).To(Equal(1))
	})

	It("runs a contiguous run of parallel hooks concurrently", func() {
		var running int32
		var maxConcurrent int32

		x := &Executor{Namespace: "ns"}
		x.getPodFn = anyPod("main")
		x.execFn = func(_ context.Context, _, _, _ string, _ []string) (*cluster.ExecResult, error) {
			n := atomic.AddInt32(&running, 1)
			if n > maxConcurrent {
				atomic.StoreInt32(&maxConcurrent, n)
			}
			time.Sleep(20 * time.Millisecond)
			atomic.AddInt32(&running, -1)
			return &cluster.ExecResult{ExitCode: 0}, nil
		}

		hooksList := []config.Hook{
			{Pod: "a", Command: []string{"true"}, Parallel: true},
			{Pod: "b", Command: []string{"true"}, Parallel: true},
			{Pod: "c", Command: []string{"true"}, Parallel: true},
		}
		_, err := x.Run(context.Background(), hooksList)
		Expect(err).ToNot(HaveOccurred())
		Expect(maxConcurrent).To(BeNumerically(">", 1))
	})
})

var _ = Describe("container selection", func() {
	It("defaults to the pod's first container when none is configured", func() {
		var execContainer string
		x := &Executor{Namespace: "ns"}
		x.getPodFn = anyPod("app", "sidecar")
		x.execFn = func(_ context.Context, _, _, container string, _ []string) (*cluster.ExecResult, error) {
			execContainer = container
			return &cluster.ExecResult{ExitCode: 0}, nil
		}

		_, err := x.Run(context.Background(), []config.Hook{
			{Pod: "db-0", Command: []string{"sync"}},
		})
		Expect(err).ToNot(HaveOccurred())
		Expect(execContainer).To(Equal("app"))
	})

	It("honors an explicit container", func() {
		var execContainer string
		x := &Executor{Namespace: "ns"}
		x.getPodFn = anyPod("app", "sidecar")
		x.execFn = func(_ context.Context, _, _, container string, _ []string) (*cluster.ExecResult, error) {
			execContainer = container
			return &cluster.ExecResult{ExitCode: 0}, nil
		}

		_, err := x.Run(context.Background(), []config.Hook{
			{Pod: "db-0", Container: "sidecar", Command: []string{"sync"}},
		})
		Expect(err).ToNot(HaveOccurred())
		Expect(execContainer).To(Equal("sidecar"))
	})

	It("treats a missing target pod as a hard error", func() {
		x := &Executor{Namespace: "ns"}
		x.getPodFn = func(_ context.Context, _, name string) (*corev1.Pod, error) {
			return nil, apierrors.NewNotFound(corev1.Resource("pods"), name)
		}
		x.execFn = func(_ context.Context, _, _, _ string, _ []string) (*cluster.ExecResult, error) {
			Fail("exec must not be attempted for a missing pod")
			return nil, nil
		}

		_, err := x.Run(context.Background(), []config.Hook{
			{Pod: "gone", Command: []string{"sync"}},
		})
		Expect(err).To(HaveOccurred())
		Expect(err.Error()).To(ContainSubstring("gone"))
	})
})
