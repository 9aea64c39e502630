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

package tracked

import (
	"errors"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Registry", func() {
	It("starts empty", func() {
		r := NewRegistry()
		Expect(r.Len()).To(Equal(0))
	})

	It("drains every resource regardless of order registered", func() {
		r := NewRegistry()
		var order []string

		r.Register(Key{Kind: KindSecret, Namespace: "ns", Name: "s"}, func() error {
			order = append(order, "secret")
			return nil
		})
		r.Register(Key{Kind: KindPod, Namespace: "ns", Name: "p"}, func() error {
			order = append(order, "pod")
			return nil
		})
		r.Register(Key{Kind: KindPVC, Namespace: "ns", Name: "c"}, func() error {
			order = append(order, "pvc")
			return nil
		})

		r.Drain()

		Expect(order).To(Equal([]string{"pod", "pvc", "secret"}))
		Expect(r.Len()).To(Equal(0))
	})

	It("keeps draining other resources when one cleanup fails", func() {
		r := NewRegistry()
		r.Register(Key{Kind: KindPod, Namespace: "ns", Name: "bad"}, func() error {
			return errors.New("boom")
		})
		called := false
		r.Register(Key{Kind: KindPVC, Namespace: "ns", Name: "good"}, func() error {
			called = true
			return nil
		})

		r.Drain()

		Expect(called).To(BeTrue())
		// the failed cleanup stays tracked; it was never observed to succeed
		Expect(r.Len()).To(Equal(1))
	})

	It("is a no-op to deregister an unknown key", func() {
		r := NewRegistry()
		Expect(func() { r.Deregister(Key{Kind: KindPod, Name: "missing"}) }).ToNot(Panic())
	})
})
