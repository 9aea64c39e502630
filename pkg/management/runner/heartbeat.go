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

package runner

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/vsbackup/vsbackup/pkg/management/log"
)

const heartbeatInterval = 60 * time.Second

// procSample is one point-in-time reading of the child's resource usage
type procSample struct {
	cpuTicks     uint64
	readBytes    uint64
	writeBytes   uint64
	rssBytes     uint64
	networkBytes uint64
}

// heartbeat prints a resource-usage line every minute while the child
// process runs, reporting deltas against the previous sample. Everything
// here is best-effort: a missing /proc entry just skips that field.
func heartbeat(pid int, stop <-chan struct{}) {
	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()

	prev := sampleProc(pid)
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
		}

		cur := sampleProc(pid)
		log.Info("backup in progress",
			"cpuSeconds", float64(cur.cpuTicks-prev.cpuTicks)/float64(clockTicksPerSecond),
			"readBytes", cur.readBytes-prev.readBytes,
			"writeBytes", cur.writeBytes-prev.writeBytes,
			"rssBytes", cur.rssBytes,
			"networkBytes", cur.networkBytes-prev.networkBytes,
		)
		prev = cur
	}
}

// clockTicksPerSecond is the kernel's USER_HZ; 100 on every platform the
// runner image targets.
const clockTicksPerSecond = 100

func sampleProc(pid int) procSample {
	var s procSample

	if data, err := os.ReadFile(fmt.Sprintf("/proc/%d/stat", pid)); err == nil {
		s.cpuTicks = parseStatCPUTicks(string(data))
	}
	if data, err := os.ReadFile(fmt.Sprintf("/proc/%d/io", pid)); err == nil {
		s.readBytes, s.writeBytes = parseIOBytes(string(data))
	}
	if data, err := os.ReadFile(fmt.Sprintf("/proc/%d/statm", pid)); err == nil {
		s.rssBytes = parseStatmRSSBytes(string(data))
	}
	if data, err := os.ReadFile("/proc/net/dev"); err == nil {
		s.networkBytes = parseNetDevBytes(string(data))
	}

	return s
}

// parseStatCPUTicks returns utime+stime from a /proc/<pid>/stat line. The
// comm field may contain spaces, so fields are counted from the closing
// parenthesis.
func parseStatCPUTicks(stat string) uint64 {
	end := strings.LastIndex(stat, ")")
	if end < 0 || end+2 > len(stat) {
		return 0
	}
	fields := strings.Fields(stat[end+2:])
	// after comm: state is field 0, utime is field 11, stime is field 12
	if len(fields) < 13 {
		return 0
	}
	utime, _ := strconv.ParseUint(fields[11], 10, 64)
	stime, _ := strconv.ParseUint(fields[12], 10, 64)
	return utime + stime
}

func parseIOBytes(io string) (readBytes, writeBytes uint64) {
	for _, line := range strings.Split(io, "\n") {
		if value, found := strings.CutPrefix(line, "read_bytes: "); found {
			readBytes, _ = strconv.ParseUint(strings.TrimSpace(value), 10, 64)
		}
		if value, found := strings.CutPrefix(line, "write_bytes: "); found {
			writeBytes, _ = strconv.ParseUint(strings.TrimSpace(value), 10, 64)
		}
	}
	return readBytes, writeBytes
}

func parseStatmRSSBytes(statm string) uint64 {
	fields := strings.Fields(statm)
	if len(fields) < 2 {
		return 0
	}
	pages, _ := strconv.ParseUint(fields[1], 10, 64)
	return pages * uint64(os.Getpagesize())
}

// parseNetDevBytes sums received+transmitted bytes across every interface
// except loopback, giving a best-effort whole-pod network figure.
func parseNetDevBytes(netdev string) uint64 {
	var total uint64
	for _, line := range strings.Split(netdev, "\n") {
		name, counters, found := strings.Cut(line, ":")
		if !found || strings.TrimSpace(name) == "lo" {
			continue
		}
		fields := strings.Fields(counters)
		if len(fields) < 9 {
			continue
		}
		rx, _ := strconv.ParseUint(fields[0], 10, 64)
		tx, _ := strconv.ParseUint(fields[8], 10, 64)
		total += rx + tx
	}
	return total
}
