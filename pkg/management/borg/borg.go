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

// Package borg encodes the contract of the repository tool: the commands
// the runner issues, the exit-code classification, and the archive naming
// scheme that scopes pruning per application.
package borg

import (
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/vsbackup/vsbackup/pkg/config"
)

const (
	// BinaryName is the repository tool executable
	BinaryName = "borg"

	// invalidRepoExitCode is returned by create against an endpoint that
	// has never been initialized; paired with invalidRepoMarker on stderr
	invalidRepoExitCode = 2

	invalidRepoMarker = "is not a valid repository"
	lockedRepoMarker  = "Failed to create/acquire the lock"
)

// LockState is the outcome of the pre-flight lock probe
type LockState string

const (
	// LockStateUnlocked means the probe acquired and released the lock
	LockStateUnlocked LockState = "unlocked"
	// LockStateLocked means another writer holds the lock
	LockStateLocked LockState = "locked"
	// LockStateTimeout means the probe did not finish in time
	LockStateTimeout LockState = "timeout"
	// LockStateError covers every other probe failure
	LockStateError LockState = "error"
)

// IsUninitializedRepo reports whether a create failure means the endpoint
// has never been initialized, which the runner answers with init-and-retry.
func IsUninitializedRepo(exitCode int, stderr string) bool {
	return exitCode == invalidRepoExitCode && strings.Contains(stderr, invalidRepoMarker)
}

// IsLockedRepo reports whether a failure means another writer holds the
// repository lock.
func IsLockedRepo(exitCode int, stderr string) bool {
	return exitCode == invalidRepoExitCode && strings.Contains(stderr, lockedRepoMarker)
}

// ClassifyLockProbe maps a with-lock probe outcome onto a LockState
func ClassifyLockProbe(err error, exitCode int, output string, deadlineExceeded bool) LockState {
	switch {
	case deadlineExceeded:
		return LockStateTimeout
	case err == nil && exitCode == 0:
		return LockStateUnlocked
	case IsLockedRepo(exitCode, output):
		return LockStateLocked
	default:
		return LockStateError
	}
}

// CreateCommand builds the archive-create invocation. Flags default to
// --stats when the caller passes none.
func CreateCommand(repo, archiveName, dataPath string, flags []string) []string {
	if len(flags) == 0 {
		flags = []string{"--stats"}
	}
	args := append([]string{"create"}, flags...)
	return append(args, fmt.Sprintf("%s::%s", repo, archiveName), dataPath)
}

// InitCommand builds the repository initialization invocation used when a
// create hits an uninitialized endpoint.
func InitCommand(repo string) []string {
	return []string{"init", "--encryption", "repokey-blake2", repo}
}

// PruneCommand builds the prune invocation. The --glob-archives argument is
// always present so applications sharing one repository never prune each
// other's archives; only non-zero tiers contribute a --keep flag.
func PruneCommand(repo, archivePrefix string, retention config.Retention) []string {
	args := []string{"prune", "--glob-archives", archivePrefix + "-*"}
	if retention.Hourly > 0 {
		args = append(args, "--keep-hourly", fmt.Sprintf("%d", retention.Hourly))
	}
	if retention.Daily > 0 {
		args = append(args, "--keep-daily", fmt.Sprintf("%d", retention.Daily))
	}
	if retention.Weekly > 0 {
		args = append(args, "--keep-weekly", fmt.Sprintf("%d", retention.Weekly))
	}
	if retention.Monthly > 0 {
		args = append(args, "--keep-monthly", fmt.Sprintf("%d", retention.Monthly))
	}
	return append(args, repo)
}

// WithLockProbeCommand builds the pre-flight probe: acquire the lock with
// zero wait around a trivial command, proving the repository is writable.
func WithLockProbeCommand(repo string) []string {
	return []string{"with-lock", "--lock-wait", "0", repo, "true"}
}

// BreakLockCommand builds the invocation that clears a stale lease after
// the runner was stopped by a termination signal.
func BreakLockCommand(repo string) []string {
	return []string{"break-lock", repo}
}

// ExitCode extracts the process exit code from an exec error, or 0 on nil
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode()
	}
	return -1
}

// TimestampFormat is the archive timestamp layout: UTC, zero-padded,
// hyphen-separated.
const TimestampFormat = "2006-01-02-15-04-05"

// ArchiveName builds "{prefix}-{timestamp}" for the given moment in UTC
func ArchiveName(prefix string, t time.Time) string {
	return prefix + "-" + t.UTC().Format(TimestampFormat)
}

// ParseArchiveTimestamp extracts the timestamp from a name produced by
// ArchiveName with the given prefix.
func ParseArchiveTimestamp(prefix, name string) (time.Time, error) {
	suffix, found := strings.CutPrefix(name, prefix+"-")
	if !found {
		return time.Time{}, fmt.Errorf("archive %q does not carry prefix %q", name, prefix)
	}
	return time.ParseInLocation(TimestampFormat, suffix, time.UTC)
}
