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

package metrics

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("NewMetrics", func() {
	It("registers every counter", func() {
		m := NewMetrics()

		m.SnapshotsTotal.WithLabelValues("succeeded").Inc()
		m.BackupsTotal.WithLabelValues("failed").Inc()
		m.SnapshotRetriesTotal.Inc()
		m.CleanupErrorsTotal.Inc()

		families, err := m.Registry.Gather()
		Expect(err).ToNot(HaveOccurred())

		names := make([]string, 0, len(families))
		for _, f := range families {
			names = append(names, f.GetName())
		}
		Expect(names).To(ContainElements(
			"vsbackup_snapshots_total",
			"vsbackup_backups_total",
			"vsbackup_snapshot_readiness_polls_total",
			"vsbackup_cleanup_errors_total",
		))
	})

	It("keeps registries independent between runs", func() {
		first := NewMetrics()
		second := NewMetrics()
		first.CleanupErrorsTotal.Inc()

		families, err := second.Registry.Gather()
		Expect(err).ToNot(HaveOccurred())
		for _, f := range families {
			for _, m := range f.GetMetric() {
				Expect(m.GetCounter().GetValue()).To(BeZero())
			}
		}
	})
})
