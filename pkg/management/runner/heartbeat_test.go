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
	"os"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("parseStatCPUTicks", func() {
	It("sums utime and stime counting fields from the comm parenthesis", func() {
		stat := "12345 (borg create) S 1 12345 12345 0 -1 4194560 " +
			"1000 0 0 0 150 50 0 0 20 0 4 0 100000 100000000 5000 " +
			"18446744073709551615 1 1 0 0 0 0 0 0 0 0 0 0 17 3 0 0 0 0 0"
		Expect(parseStatCPUTicks(stat)).To(Equal(uint64(200)))
	})

	It("survives a comm containing spaces and parentheses", func() {
		stat := "1 (weird (name)) R 0 0 0 0 -1 0 0 0 0 0 7 3 0 0 20 0 1 0 0 0 0"
		Expect(parseStatCPUTicks(stat)).To(Equal(uint64(10)))
	})

	It("returns zero on a truncated line", func() {
		Expect(parseStatCPUTicks("1 (x) R 0")).To(Equal(uint64(0)))
	})
})

var _ = Describe("parseIOBytes", func() {
	It("extracts read_bytes and write_bytes", func() {
		io := "rchar: 100\nwchar: 200\nsyscr: 10\nsyscw: 20\n" +
			"read_bytes: 4096\nwrite_bytes: 8192\ncancelled_write_bytes: 0\n"
		read, write := parseIOBytes(io)
		Expect(read).To(Equal(uint64(4096)))
		Expect(write).To(Equal(uint64(8192)))
	})
})

var _ = Describe("parseStatmRSSBytes", func() {
	It("multiplies resident pages by the page size", func() {
		Expect(parseStatmRSSBytes("1000 250 100 10 0 200 0")).
			To(Equal(uint64(250) * uint64(os.Getpagesize())))
	})
})

var _ = Describe("parseNetDevBytes", func() {
	It("sums rx and tx across interfaces, skipping loopback", func() {
		netdev := `Inter-|   Receive                                                |  Transmit
 face |bytes    packets errs drop fifo frame compressed multicast|bytes    packets errs drop fifo colls carrier compressed
    lo: 9999999    100    0    0    0     0          0         0  9999999    100    0    0    0    0    0          0
  eth0:    1000     10    0    0    0     0          0         0     2000     20    0    0    0    0    0          0
`
		Expect(parseNetDevBytes(netdev)).To(Equal(uint64(3000)))
	})
})
