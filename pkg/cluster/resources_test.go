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

package cluster

import (
	"context"

	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes/fake"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("idempotent deletes", func() {
	It("treats deleting a missing pod as success", func() {
		c := &Client{Kube: fake.NewSimpleClientset()}
		Expect(c.DeletePod(context.Background(), "ns", "missing")).To(Succeed())
	})

	It("treats deleting a missing secret as success", func() {
		c := &Client{Kube: fake.NewSimpleClientset()}
		Expect(c.DeleteSecret(context.Background(), "ns", "missing")).To(Succeed())
	})

	It("returns the existing pod on a 409 create race", func() {
		existing := &corev1.Pod{ObjectMeta: metav1.ObjectMeta{Name: "p", Namespace: "ns"}}
		c := &Client{Kube: fake.NewSimpleClientset(existing)}

		got, err := c.CreatePod(context.Background(), "ns", &corev1.Pod{
			ObjectMeta: metav1.ObjectMeta{Name: "p", Namespace: "ns"},
		})
		Expect(err).ToNot(HaveOccurred())
		Expect(got.Name).To(Equal("p"))
	})
})
