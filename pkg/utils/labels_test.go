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

package utils

import (
	"strings"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("SnapshotSelector", func() {
	It("matches both the release and the source PVC", func() {
		Expect(SnapshotSelector("rel", "app-data")).To(Equal(
			"vsbackup.io/release=rel,vsbackup.io/source-pvc=app-data"))
	})
})

var _ = Describe("TruncateLabelValue", func() {
	It("leaves short values alone", func() {
		Expect(TruncateLabelValue("short")).To(Equal("short"))
	})

	It("cuts values at the cluster's limit", func() {
		long := strings.Repeat("x", 100)
		Expect(TruncateLabelValue(long)).To(HaveLen(63))
	})
})
