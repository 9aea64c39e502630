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
	"fmt"
	"path/filepath"
	"time"

	corev1 "k8s.io/api/core/v1"
	"k8s.io/apimachinery/pkg/api/resource"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/utils/ptr"

	snapshotv1 "github.com/kubernetes-csi/external-snapshotter/client/v7/apis/volumesnapshot/v1"

	"github.com/vsbackup/vsbackup/pkg/config"
	"github.com/vsbackup/vsbackup/pkg/management/borg"
	"github.com/vsbackup/vsbackup/pkg/management/runner"
	"github.com/vsbackup/vsbackup/pkg/utils"
)

const (
	snapshotAPIGroup = "snapshot.storage.k8s.io"

	dataVolumeName   = "data"
	cacheVolumeName  = "cache"
	configVolumeName = "runner-config"

	runnerConfigFileName = "config.yaml"
)

// CloneName builds "{releaseName}-clone-{backupName}-{epochMs}"
func CloneName(releaseName, backupName string, t time.Time) string {
	return fmt.Sprintf("%s-clone-%s-%d", releaseName, backupName, t.UnixMilli())
}

// RunnerPodName builds "{releaseName}-backup-runner-{backupName}-{ts}"
func RunnerPodName(releaseName, backupName string, t time.Time) string {
	return fmt.Sprintf("%s-backup-runner-%s-%s",
		releaseName, backupName, t.UTC().Format(borg.TimestampFormat))
}

// ConfigSecretName derives the ephemeral secret name from its pod's name
func ConfigSecretName(podName string) string {
	return podName + "-config"
}

// newClonePVC assembles the clone claim: same requested size as the
// snapshot's restore size, data-sourced from the snapshot. Label values
// are truncated so no value can trip the cluster's 63-character cap.
func newClonePVC(
	name, namespace, releaseName string,
	spec config.BackupSpec,
	snapshot *snapshotv1.VolumeSnapshot,
) *corev1.PersistentVolumeClaim {
	pvc := &corev1.PersistentVolumeClaim{
		ObjectMeta: metav1.ObjectMeta{
			Name:      name,
			Namespace: namespace,
			Labels: map[string]string{
				utils.ReleaseLabelName:    utils.TruncateLabelValue(releaseName),
				utils.BackupNameLabelName: utils.TruncateLabelValue(spec.Name),
			},
		},
		Spec: corev1.PersistentVolumeClaimSpec{
			AccessModes:      []corev1.PersistentVolumeAccessMode{corev1.ReadWriteOnce},
			StorageClassName: &spec.CloneStorageClass,
			DataSource: &corev1.TypedLocalObjectReference{
				APIGroup: ptr.To(snapshotAPIGroup),
				Kind:     "VolumeSnapshot",
				Name:     snapshot.Name,
			},
		},
	}

	if snapshot.Status != nil && snapshot.Status.RestoreSize != nil {
		pvc.Spec.Resources.Requests = corev1.ResourceList{
			corev1.ResourceStorage: *snapshot.Status.RestoreSize,
		}
	} else {
		pvc.Spec.Resources.Requests = corev1.ResourceList{
			corev1.ResourceStorage: resource.MustParse("1Gi"),
		}
	}

	return pvc
}

// newRunnerSecret mints the ephemeral configuration secret for one runner
// pod.
func newRunnerSecret(
	name, namespace, releaseName string,
	payload []byte,
	backupName string,
) *corev1.Secret {
	return &corev1.Secret{
		ObjectMeta: metav1.ObjectMeta{
			Name:      name,
			Namespace: namespace,
			Labels: map[string]string{
				utils.ReleaseLabelName:    utils.TruncateLabelValue(releaseName),
				utils.BackupNameLabelName: utils.TruncateLabelValue(backupName),
			},
		},
		Data: map[string][]byte{
			runnerConfigFileName: payload,
		},
	}
}

// newRunnerPod assembles the per-volume runner pod: the clone mounted at
// the data path, the cache volume at the cache path, and the configuration
// secret as a file. The pod is bounded by the spec's timeout and never
// restarted; outcome classification reads its single terminal state.
func newRunnerPod(
	podName, namespace, releaseName string,
	cfg *config.AppConfig,
	spec config.BackupSpec,
	clonePVCName, secretName string,
) *corev1.Pod {
	var securityContext *corev1.SecurityContext
	if cfg.Backup.IsPrivileged() {
		securityContext = &corev1.SecurityContext{
			Privileged: ptr.To(true),
		}
	}

	return &corev1.Pod{
		ObjectMeta: metav1.ObjectMeta{
			Name:      podName,
			Namespace: namespace,
			Labels: map[string]string{
				utils.ReleaseLabelName:    utils.TruncateLabelValue(releaseName),
				utils.BackupNameLabelName: utils.TruncateLabelValue(spec.Name),
			},
		},
		Spec: corev1.PodSpec{
			RestartPolicy:         corev1.RestartPolicyNever,
			ActiveDeadlineSeconds: ptr.To(int64(spec.Timeout.Seconds())),
			Containers: []corev1.Container{
				{
					Name:            "backup-runner",
					Image:           cfg.Backup.PodImage,
					Command:         []string{"/manager", "backup-runner"},
					Args:            []string{"--config", runner.ConfigMountPath},
					SecurityContext: securityContext,
					VolumeMounts: []corev1.VolumeMount{
						{Name: dataVolumeName, MountPath: runner.DataMountPath, ReadOnly: true},
						{Name: cacheVolumeName, MountPath: runner.CacheMountPath},
						{
							Name:      configVolumeName,
							MountPath: filepath.Dir(runner.ConfigMountPath),
							ReadOnly:  true,
						},
					},
				},
			},
			Volumes: []corev1.Volume{
				{
					Name: dataVolumeName,
					VolumeSource: corev1.VolumeSource{
						PersistentVolumeClaim: &corev1.PersistentVolumeClaimVolumeSource{
							ClaimName: clonePVCName,
						},
					},
				},
				{
					Name: cacheVolumeName,
					VolumeSource: corev1.VolumeSource{
						PersistentVolumeClaim: &corev1.PersistentVolumeClaimVolumeSource{
							ClaimName: cfg.Backup.Cache.PVCName,
						},
					},
				},
				{
					Name: configVolumeName,
					VolumeSource: corev1.VolumeSource{
						Secret: &corev1.SecretVolumeSource{
							SecretName: secretName,
							Items: []corev1.KeyToPath{
								{Key: runnerConfigFileName, Path: filepath.Base(runner.ConfigMountPath)},
							},
						},
					},
				},
			},
		},
	}
}
