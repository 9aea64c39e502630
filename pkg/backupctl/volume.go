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

package backupctl

import (
	"context"
	"fmt"
	"time"

	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/runtime/schema"

	"github.com/vsbackup/vsbackup/pkg/management/log"
)

const (
	longhornDriverName = "driver.longhorn.io"
	longhornNamespace  = "longhorn-system"

	// csiWorkloadGrace is the settle delay after the volume CR reports
	// healthy, covering the window between CR state and actual mountability
	csiWorkloadGrace = 15 * time.Second

	volumeReadyTimeout = 2 * time.Minute
	volumePollInterval = 5 * time.Second
)

var longhornVolumeResource = schema.GroupVersionResource{
	Group:    "longhorn.io",
	Version:  "v1beta2",
	Resource: "volumes",
}

// waitVolumeReady applies the extra readiness gate some CSI drivers need
// beyond a Bound claim. Today that is Longhorn, whose volume CR reports an
// engine state independent of the claim: the CR is polled until it is
// attached and healthy, followed by a fixed workload grace delay. Every
// other driver, and a claim that has no bound volume yet, skips the gate.
func (c *Controller) waitVolumeReady(ctx context.Context, cloneName string) error {
	pvc, err := c.Client.GetPVC(ctx, c.Config.Namespace, cloneName)
	if err != nil {
		return fmt.Errorf("cannot read clone %q: %w", cloneName, err)
	}
	if pvc.Spec.VolumeName == "" {
		return nil
	}

	pv, err := c.Client.GetPV(ctx, pvc.Spec.VolumeName)
	if err != nil {
		return fmt.Errorf("cannot read volume %q: %w", pvc.Spec.VolumeName, err)
	}
	if pv.Spec.CSI == nil || pv.Spec.CSI.Driver != longhornDriverName {
		return nil
	}

	waitCtx, cancel := context.WithTimeout(ctx, volumeReadyTimeout)
	defer cancel()

	poll := time.NewTicker(volumePollInterval)
	defer poll.Stop()

	for {
		healthy, err := c.probeLonghornVolume(waitCtx, pv.Name)
		if err != nil {
			return err
		}
		if healthy {
			log.Info("volume healthy, waiting workload grace delay",
				"volume", pv.Name, "delay", csiWorkloadGrace.String())
			select {
			case <-time.After(csiWorkloadGrace):
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		select {
		case <-waitCtx.Done():
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("volume %q not ready within %s", pv.Name, volumeReadyTimeout)
		case <-poll.C:
		}
	}
}

func (c *Controller) probeLonghornVolume(ctx context.Context, volumeName string) (bool, error) {
	volume, err := c.Client.Dynamic.Resource(longhornVolumeResource).
		Namespace(longhornNamespace).
		Get(ctx, volumeName, metav1.GetOptions{})
	if err != nil {
		// a missing CR means this cluster names its volumes differently;
		// not a failure: the volume counts as healthy and only the
		// workload grace delay applies
		if apierrors.IsNotFound(err) {
			return true, nil
		}
		return false, fmt.Errorf("cannot read volume resource %q: %w", volumeName, err)
	}

	state, _, _ := unstructured.NestedString(volume.Object, "status", "state")
	robustness, _, _ := unstructured.NestedString(volume.Object, "status", "robustness")
	log.Debug("volume state", "volume", volumeName, "state", state, "robustness", robustness)

	return state == "attached" && robustness == "healthy", nil
}
