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
	"os/exec"

	"github.com/vsbackup/vsbackup/pkg/management/execlog"
)

// copyCacheIn seeds the pod-local cache from the cache volume before the
// repository tool starts. The cache volume must be mounted by at most one
// runner pod at a time, which the controller's sequential loop and the
// ReadWriteOncePod access mode both enforce.
func copyCacheIn(from, to string) error {
	if err := os.MkdirAll(to, 0o700); err != nil {
		return fmt.Errorf("cannot create local cache directory: %w", err)
	}
	return runRsync("cache-in", "-a", "--delete", from+"/", to+"/")
}

// copyCacheOut writes the local cache back to the cache volume after a
// normal run, with transfer statistics.
func copyCacheOut(from, to string) error {
	return runRsync("cache-out", "-a", "--delete", "--stats", from+"/", to+"/")
}

// copyCacheOutVerbose is the termination-path variant: per-file output so
// an interrupted transfer leaves a trace of how far it got.
func copyCacheOutVerbose(from, to string) error {
	return runRsync("cache-out", "-av", "--delete", from+"/", to+"/")
}

func runRsync(name string, args ...string) error {
	cmd := exec.Command("rsync", args...)
	if err := execlog.RunStreaming(cmd, name); err != nil {
		return fmt.Errorf("rsync %s failed: %w", name, err)
	}
	return nil
}
