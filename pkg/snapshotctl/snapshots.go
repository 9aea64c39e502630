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

package snapshotctl

import (
	"time"

	snapshotv1 "github.com/kubernetes-csi/external-snapshotter/client/v7/apis/volumesnapshot/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"

	"github.com/vsbackup/vsbackup/pkg/management/borg"
	"github.com/vsbackup/vsbackup/pkg/utils"
)

// SnapshotName builds "{prefix}-{timestamp}": the prefix defaults to the
// source PVC name, so the snapshot name encodes its origin and moment.
func SnapshotName(prefix string, t time.Time) string {
	return prefix + "-" + t.UTC().Format(borg.TimestampFormat)
}

// newVolumeSnapshot assembles the snapshot object for one spec. The labels
// scope later listing for retention to this release and source PVC.
func newVolumeSnapshot(name, namespace, releaseName, sourcePVC, snapshotClass string) *snapshotv1.VolumeSnapshot {
	snap := &snapshotv1.VolumeSnapshot{
		ObjectMeta: metav1.ObjectMeta{
			Name:      name,
			Namespace: namespace,
			Labels: map[string]string{
				utils.ReleaseLabelName:   releaseName,
				utils.SourcePVCLabelName: sourcePVC,
			},
		},
		Spec: snapshotv1.VolumeSnapshotSpec{
			Source: snapshotv1.VolumeSnapshotSource{
				PersistentVolumeClaimName: &sourcePVC,
			},
		},
	}
	if snapshotClass != "" {
		snap.Spec.VolumeSnapshotClassName = &snapshotClass
	}
	return snap
}

// isSnapshotReady reports readyToUse as the cluster sees it
func isSnapshotReady(snap *snapshotv1.VolumeSnapshot) bool {
	return snap.Status != nil && snap.Status.ReadyToUse != nil && *snap.Status.ReadyToUse
}

// retentionItem adapts a VolumeSnapshot for the retention engine. The
// timestamp is parsed from the name when possible, because the name is the
// moment the data was frozen; the object's creation timestamp is only a
// fallback for snapshots created outside this controller.
type retentionItem struct {
	snapshot  *snapshotv1.VolumeSnapshot
	timestamp time.Time
}

func (r retentionItem) RetentionTimestamp() time.Time {
	return r.timestamp
}

func newRetentionItem(prefix string, snap *snapshotv1.VolumeSnapshot) retentionItem {
	ts, err := borg.ParseArchiveTimestamp(prefix, snap.Name)
	if err != nil {
		ts = snap.CreationTimestamp.Time.UTC()
	}
	return retentionItem{snapshot: snap, timestamp: ts}
}
