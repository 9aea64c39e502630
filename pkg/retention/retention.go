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

// Package retention implements the tiered hourly/daily/weekly/monthly
// time-bucket keep policy shared by the snapshot controller and the
// repository prune step. It is pure: no I/O, no wall-clock reads beyond the
// timestamps it is given.
package retention

import (
	"fmt"
	"sort"
	"time"

	"github.com/thoas/go-funk"

	"github.com/vsbackup/vsbackup/pkg/config"
)

// Item is anything the retention engine can select over
type Item interface {
	// RetentionTimestamp returns the UTC point in time this item represents
	RetentionTimestamp() time.Time
}

// Select returns the subset of items to keep under the given policy. Within
// a bucket the newest item is kept, so the kept timestamps and their count
// do not depend on input order. Among items that share one timestamp, the
// one that comes first in the input is kept, so which of them is returned
// does depend on input order.
func Select[T Item](items []T, policy config.Retention) []T {
	if len(items) == 0 {
		return nil
	}

	sorted := make([]T, len(items))
	copy(sorted, items)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].RetentionTimestamp().After(sorted[j].RetentionTimestamp())
	})

	keep := make(map[int]bool)

	tiers := []struct {
		count int
		key   func(time.Time) string
	}{
		{policy.Hourly, hourKey},
		{policy.Daily, dayKey},
		{policy.Weekly, weekKey},
		{policy.Monthly, monthKey},
	}

	for _, tier := range tiers {
		if tier.count <= 0 {
			continue
		}
		seenBuckets := make(map[string]bool)
		for i, item := range sorted {
			if len(seenBuckets) >= tier.count {
				break
			}
			bucket := tier.key(item.RetentionTimestamp().UTC())
			if seenBuckets[bucket] {
				continue
			}
			seenBuckets[bucket] = true
			keep[i] = true
		}
	}

	result := make([]T, 0, len(keep))
	for i, item := range sorted {
		if keep[i] {
			result = append(result, item)
		}
	}
	return result
}

// Complement returns the items in all that are not present (by identity via
// the provided key function) in keep, i.e. the set to delete.
func Complement[T Item](all, keep []T, key func(T) string) []T {
	keptKeys := funk.Map(keep, func(t T) string { return key(t) }).([]string)
	return funk.Filter(all, func(t T) bool {
		return !funk.ContainsString(keptKeys, key(t))
	}).([]T)
}

func hourKey(t time.Time) string {
	return t.Format("2006-01-02T15")
}

func dayKey(t time.Time) string {
	return t.Format("2006-01-02")
}

func weekKey(t time.Time) string {
	year, week := t.ISOWeek()
	return fmt.Sprintf("%04d-W%02d", year, week)
}

func monthKey(t time.Time) string {
	return t.Format("2006-01")
}
