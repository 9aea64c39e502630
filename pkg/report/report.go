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

// Package report renders the per-spec status table and the one-line summary
// both controllers print as the final lines of their output.
package report

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/cheynewallace/tabby"
	"github.com/logrusorgru/aurora/v3"
)

// Outcome classifies how one spec ended
type Outcome string

const (
	// OutcomeSucceeded marks a spec that completed
	OutcomeSucceeded Outcome = "succeeded"
	// OutcomeFailed marks a spec that was attempted and failed
	OutcomeFailed Outcome = "failed"
	// OutcomeSkipped marks a spec that was never attempted (no source
	// snapshot, or the run was cancelled before its turn)
	OutcomeSkipped Outcome = "skipped"
)

// Row is the status of one spec in the run
type Row struct {
	Name     string
	Outcome  Outcome
	Duration time.Duration
	Error    error
}

// Report accumulates per-spec rows over a controller run
type Report struct {
	rows []Row
}

// Add records the outcome of one spec
func (r *Report) Add(row Row) {
	r.rows = append(r.rows, row)
}

// Failed counts the rows that did not succeed
func (r *Report) Failed() int {
	n := 0
	for _, row := range r.rows {
		if row.Outcome != OutcomeSucceeded {
			n++
		}
	}
	return n
}

// Succeeded counts the rows that succeeded
func (r *Report) Succeeded() int {
	return len(r.rows) - r.Failed()
}

// ExitCode maps the run outcome onto the process exit-code contract:
// 0 on full success, 1 when at least one spec failed.
func (r *Report) ExitCode() int {
	if r.Failed() > 0 {
		return 1
	}
	return 0
}

// Print writes the status table followed by the summary line to w. Colors
// are applied only when w is a character device.
func (r *Report) Print(w io.Writer) {
	au := aurora.NewAurora(isTerminal(w))

	t := tabby.NewCustom(newTabWriter(w))
	t.AddHeader("SPEC", "OUTCOME", "DURATION", "ERROR")
	for _, row := range r.rows {
		errMsg := ""
		if row.Error != nil {
			errMsg = row.Error.Error()
		}
		t.AddLine(row.Name, colorize(au, row.Outcome), formatDuration(row.Duration), errMsg)
	}
	t.Print()

	fmt.Fprintf(w, "\n%d succeeded, %d failed\n", r.Succeeded(), r.Failed())
}

func colorize(au aurora.Aurora, outcome Outcome) string {
	switch outcome {
	case OutcomeSucceeded:
		return au.Green(string(outcome)).String()
	case OutcomeFailed:
		return au.Red(string(outcome)).String()
	default:
		return au.Yellow(string(outcome)).String()
	}
}

func formatDuration(d time.Duration) string {
	if d == 0 {
		return "-"
	}
	return d.Round(time.Second).String()
}

func newTabWriter(w io.Writer) *tabwriter.Writer {
	return tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	info, err := f.Stat()
	if err != nil {
		return false
	}
	return info.Mode()&os.ModeCharDevice != 0
}
