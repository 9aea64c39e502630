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

package retention

import (
	"fmt"
	"math/rand"
	"time"

	"github.com/vsbackup/vsbackup/pkg/config"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

type testItem struct {
	name string
	ts   time.Time
}

func (t testItem) RetentionTimestamp() time.Time { return t.ts }

var _ = Describe("Select", func() {
	It("keeps nothing when every tier is zero", func() {
		items := []testItem{
			{"a", time.Now()},
			{"b", time.Now().Add(-time.Hour)},
		}
		Expect(Select(items, config.Retention{})).To(BeEmpty())
	})

	It("keeps the newest item per hourly bucket up to the count", func() {
		base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
		var items []testItem
		// every 15 minutes for 48 hours
		for i := 0; i < 48*4; i++ {
			items = append(items, testItem{
				name: fmt.Sprintf("item-%d", i),
				ts:   base.Add(time.Duration(i) * 15 * time.Minute),
			})
		}

		kept := Select(items, config.Retention{Hourly: 6, Daily: 2})

		// six hourly keeps, all in the newest day, plus the previous day's
		// newest item; the newest day's daily keep coincides with an hourly
		// keep, so the kept set is the union of the buckets
		Expect(kept).To(HaveLen(7))

		dayBuckets := map[string]bool{}
		for _, item := range kept {
			// every kept item is the newest of its bucket, i.e. at :45
			Expect(item.ts.Minute()).To(Equal(45))
			dayBuckets[dayKey(item.ts)] = true
		}
		Expect(dayBuckets).To(HaveLen(2))
	})

	It("is idempotent", func() {
		base := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
		var items []testItem
		for i := 0; i < 200; i++ {
			items = append(items, testItem{ts: base.Add(time.Duration(i) * time.Hour)})
		}
		policy := config.Retention{Hourly: 5, Daily: 3, Weekly: 2, Monthly: 1}

		first := Select(items, policy)
		second := Select(first, policy)
		Expect(len(second)).To(Equal(len(first)))
	})

	It("keeps one item for any permutation of equal timestamps", func() {
		ts := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
		var items []testItem
		for i := 0; i < 10; i++ {
			items = append(items, testItem{name: fmt.Sprintf("same-%d", i), ts: ts})
		}
		policy := config.Retention{Hourly: 1}

		want := Select(items, policy)

		shuffled := make([]testItem, len(items))
		copy(shuffled, items)
		rand.Shuffle(len(shuffled), func(i, j int) { shuffled[i], shuffled[j] = shuffled[j], shuffled[i] })
		got := Select(shuffled, policy)

		Expect(len(got)).To(Equal(len(want)))
		Expect(len(got)).To(Equal(1))
	})
})

var _ = Describe("Complement", func() {
	It("returns items not present in the kept set", func() {
		a := testItem{name: "a", ts: time.Now()}
		b := testItem{name: "b", ts: time.Now()}
		c := testItem{name: "c", ts: time.Now()}
		all := []testItem{a, b, c}
		keep := []testItem{b}

		got := Complement(all, keep, func(t testItem) string { return t.name })
		Expect(got).To(ConsistOf(a, c))
	})
})
