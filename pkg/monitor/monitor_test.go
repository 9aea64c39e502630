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
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("isTerminal", func() {
	It("treats Succeeded and Failed as terminal", func() {
		Expect(isTerminal(corev1.PodSucceeded)).To(BeTrue())
		Expect(isTerminal(corev1.PodFailed)).To(BeTrue())
	})

	It("treats Running and Pending as non-terminal", func() {
		Expect(isTerminal(corev1.PodRunning)).To(BeFalse())
		Expect(isTerminal(corev1.PodPending)).To(BeFalse())
	})
})

var _ = Describe("containerStarted", func() {
	It("is false before any container has a startedAt", func() {
		pod := &corev1.Pod{Status: corev1.PodStatus{
			ContainerStatuses: []corev1.ContainerStatus{{Name: "c"}},
		}}
		Expect(containerStarted(pod)).To(BeFalse())
	})

	It("is true once a container reports running with a startedAt", func() {
		pod := &corev1.Pod{Status: corev1.PodStatus{
			ContainerStatuses: []corev1.ContainerStatus{{
				Name: "c",
				State: corev1.ContainerState{
					Running: &corev1.ContainerStateRunning{StartedAt: metav1.Now()},
				},
			}},
		}}
		Expect(containerStarted(pod)).To(BeTrue())
	})
})
