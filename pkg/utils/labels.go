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

// Package utils holds the label vocabulary shared by every resource the
// controllers create.
package utils

import "fmt"

const (
	// ReleaseLabelName marks every resource created for one release
	ReleaseLabelName = "vsbackup.io/release"

	// SourcePVCLabelName records which PVC a snapshot was taken from
	SourcePVCLabelName = "vsbackup.io/source-pvc"

	// BackupNameLabelName records which backup spec a clone or runner
	// resource belongs to
	BackupNameLabelName = "vsbackup.io/backup-name"

	// maxLabelValueLength is the cluster-enforced cap on a label value;
	// anything longer is rejected with a 422 at create time
	maxLabelValueLength = 63
)

// SnapshotSelector builds the label selector matching the snapshots this
// release took from the given PVC.
func SnapshotSelector(releaseName, sourcePVC string) string {
	return fmt.Sprintf("%s=%s,%s=%s",
		ReleaseLabelName, releaseName,
		SourcePVCLabelName, sourcePVC)
}

// TruncateLabelValue shortens a value to the cluster's label-value limit
func TruncateLabelValue(value string) string {
	if len(value) <= maxLabelValueLength {
		return value
	}
	return value[:maxLabelValueLength]
}
