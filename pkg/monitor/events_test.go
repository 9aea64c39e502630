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
	"fmt"

	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/types"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("event dedup", func() {
	It("emits each UID at most once", func() {
		m := New(nil, "ns", "pod")

		seenBefore := len(m.seenUIDs)
		m.emitEvent(&corev1.Event{ObjectMeta: metav1.ObjectMeta{UID: types.UID("a")}})
		m.emitEvent(&corev1.Event{ObjectMeta: metav1.ObjectMeta{UID: types.UID("a")}})
		m.emitEvent(&corev1.Event{ObjectMeta: metav1.ObjectMeta{UID: types.UID("b")}})

		Expect(len(m.seenUIDs) - seenBefore).To(Equal(2))
	})

	It("caps the remembered UID set", func() {
		m := New(nil, "ns", "pod")
		for i := 0; i < maxRememberedEventUIDs+50; i++ {
			uid := types.UID(fmt.Sprintf("uid-%d", i))
			m.emitEvent(&corev1.Event{ObjectMeta: metav1.ObjectMeta{UID: uid}})
		}
		Expect(len(m.seenUIDs)).To(BeNumerically("<=", maxRememberedEventUIDs))
	})
})
