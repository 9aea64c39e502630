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
	"strings"
	"time"

	corev1 "k8s.io/api/core/v1"
	storagev1 "k8s.io/api/storage/v1"

	"github.com/vsbackup/vsbackup/pkg/management/log"
)

const (
	// cloneEventScanInterval is how often the PVC's events are scanned for
	// a provisioning failure while waiting for the clone
	cloneEventScanInterval = 10 * time.Second

	clonePollInterval = 2 * time.Second

	// DefaultCloneBindTimeout applies when a spec does not set its own
	DefaultCloneBindTimeout = 5 * time.Minute

	waitForFirstConsumerReason = "WaitForFirstConsumer"
)

// failureKeywords are scanned for in PVC event messages and reasons; a
// match means provisioning has failed and waiting out the timeout would
// only delay the diagnosis.
var failureKeywords = []string{
	"ProvisioningFailed",
	"not found",
	"failed",
	"cannot",
	"unable",
}

// eventIndicatesFailure reports whether one PVC event describes a
// provisioning failure.
func eventIndicatesFailure(event *corev1.Event) bool {
	if event.Type == corev1.EventTypeNormal {
		return false
	}
	for _, keyword := range failureKeywords {
		if strings.Contains(event.Reason, keyword) || strings.Contains(event.Message, keyword) {
			return true
		}
	}
	return false
}

// waitCloneReady blocks until the clone can back a runner pod. The
// readiness predicate depends on the storage class's binding mode: with
// immediate binding the claim must report Bound, while with
// WaitForFirstConsumer a Bound transition cannot happen before the
// consumer pod exists, so the WaitForFirstConsumer event is accepted as
// readiness instead. In both modes the claim's events are scanned
// periodically so a provisioning failure surfaces immediately.
func (c *Controller) waitCloneReady(
	ctx context.Context,
	cloneName string,
	storageClass *storagev1.StorageClass,
	timeout time.Duration,
) error {
	if timeout == 0 {
		timeout = DefaultCloneBindTimeout
	}
	waitCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	waitForConsumerMode := storageClass.VolumeBindingMode != nil &&
		*storageClass.VolumeBindingMode == storagev1.VolumeBindingWaitForFirstConsumer

	poll := time.NewTicker(clonePollInterval)
	defer poll.Stop()
	eventScan := time.NewTicker(cloneEventScanInterval)
	defer eventScan.Stop()

	for {
		select {
		case <-waitCtx.Done():
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("clone %q did not become ready within %s", cloneName, timeout)

		case <-eventScan.C:
			if err := c.scanCloneEvents(waitCtx, cloneName); err != nil {
				return err
			}

		case <-poll.C:
			ready, err := c.probeClone(waitCtx, cloneName, waitForConsumerMode)
			if err != nil {
				log.Warning("cannot probe clone readiness", "pvc", cloneName, "err", err.Error())
				continue
			}
			if ready {
				return nil
			}
		}
	}
}

func (c *Controller) probeClone(ctx context.Context, cloneName string, waitForConsumerMode bool) (bool, error) {
	pvc, err := c.Client.GetPVC(ctx, c.Config.Namespace, cloneName)
	if err != nil {
		return false, err
	}
	if pvc.Status.Phase == corev1.ClaimBound {
		return true, nil
	}

	if !waitForConsumerMode {
		return false, nil
	}

	list, err := c.Client.ListPVCEvents(ctx, c.Config.Namespace, cloneName)
	if err != nil {
		return false, err
	}
	for i := range list.Items {
		if list.Items[i].Reason == waitForFirstConsumerReason {
			return true, nil
		}
	}
	return false, nil
}

// scanCloneEvents fails fast with the event message when the claim's
// events describe a provisioning failure.
func (c *Controller) scanCloneEvents(ctx context.Context, cloneName string) error {
	list, err := c.Client.ListPVCEvents(ctx, c.Config.Namespace, cloneName)
	if err != nil {
		log.Warning("cannot scan clone events", "pvc", cloneName, "err", err.Error())
		return nil
	}
	for i := range list.Items {
		if eventIndicatesFailure(&list.Items[i]) {
			return fmt.Errorf("clone %q provisioning failed: %s: %s",
				cloneName, list.Items[i].Reason, list.Items[i].Message)
		}
	}
	return nil
}
