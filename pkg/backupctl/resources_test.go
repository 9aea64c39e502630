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
	"time"

	snapshotv1 "github.com/kubernetes-csi/external-snapshotter/client/v7/apis/volumesnapshot/v1"
	corev1 "k8s.io/api/core/v1"
	"k8s.io/apimachinery/pkg/api/resource"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/utils/ptr"

	"github.com/vsbackup/vsbackup/pkg/config"
	"github.com/vsbackup/vsbackup/pkg/management/runner"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

func testAppConfig() *config.AppConfig {
	return &config.AppConfig{
		ReleaseName: "rel",
		AppName:     "test",
		Namespace:   "apps",
		Backup: config.BackupSection{
			Specs: []config.BackupSpec{{
				Name:              "data",
				PVC:               "app-data",
				CloneStorageClass: "fast",
				Timeout:           time.Hour,
				CloneBindTimeout:  5 * time.Minute,
			}},
			Cache:    config.CacheConfig{PVCName: "backup-cache", CacheTheCache: true},
			Repo:     config.RepoConfig{Endpoint: "ssh://u@h/./r", Passphrase: "p", SSHKey: "k"},
			PodImage: "registry.local/backup-runner:latest",
		},
	}
}

var _ = Describe("resource naming", func() {
	It("builds the clone name from release, backup name and epoch millis", func() {
		ts := time.UnixMilli(1700000000000)
		Expect(CloneName("rel", "data", ts)).To(Equal("rel-clone-data-1700000000000"))
	})

	It("builds the runner pod name with the archive timestamp layout", func() {
		ts := time.Date(2024, 3, 7, 9, 5, 1, 0, time.UTC)
		Expect(RunnerPodName("rel", "data", ts)).To(Equal("rel-backup-runner-data-2024-03-07-09-05-01"))
	})

	It("derives the secret name from the pod name", func() {
		Expect(ConfigSecretName("rel-backup-runner-data-x")).
			To(Equal("rel-backup-runner-data-x-config"))
	})
})

var _ = Describe("newClonePVC", func() {
	snapshot := &snapshotv1.VolumeSnapshot{
		ObjectMeta: metav1.ObjectMeta{Name: "app-data-2024-03-07-09-00-00", Namespace: "apps"},
		Status: &snapshotv1.VolumeSnapshotStatus{
			RestoreSize: ptr.To(resource.MustParse("10Gi")),
		},
	}

	It("data-sources the claim from the snapshot", func() {
		cfg := testAppConfig()
		pvc := newClonePVC("rel-clone-data-1", "apps", "rel", cfg.Backup.Specs[0], snapshot)

		Expect(pvc.Spec.DataSource.Kind).To(Equal("VolumeSnapshot"))
		Expect(pvc.Spec.DataSource.Name).To(Equal(snapshot.Name))
		Expect(*pvc.Spec.StorageClassName).To(Equal("fast"))
		Expect(pvc.Spec.Resources.Requests.Storage().String()).To(Equal("10Gi"))
	})

	It("keeps every label value within the cluster limit", func() {
		cfg := testAppConfig()
		longName := "a-very-long-backup-spec-name-that-would-overflow-a-kubernetes-label-value"
		spec := cfg.Backup.Specs[0]
		spec.Name = longName

		pvc := newClonePVC("rel-clone-x-1", "apps", "rel", spec, snapshot)
		for _, v := range pvc.Labels {
			Expect(len(v)).To(BeNumerically("<=", 63))
		}
	})
})

var _ = Describe("newRunnerPod", func() {
	It("mounts the clone, the cache and the secret at the runner's fixed paths", func() {
		cfg := testAppConfig()
		pod := newRunnerPod("rel-backup-runner-data-x", "apps", "rel",
			cfg, cfg.Backup.Specs[0], "rel-clone-data-1", "rel-backup-runner-data-x-config")

		Expect(pod.Spec.Containers).To(HaveLen(1))
		container := pod.Spec.Containers[0]

		mounts := map[string]string{}
		for _, m := range container.VolumeMounts {
			mounts[m.Name] = m.MountPath
		}
		Expect(mounts).To(HaveKeyWithValue("data", runner.DataMountPath))
		Expect(mounts).To(HaveKeyWithValue("cache", runner.CacheMountPath))

		Expect(*pod.Spec.ActiveDeadlineSeconds).To(Equal(int64(3600)))
		Expect(pod.Spec.RestartPolicy).To(Equal(corev1.RestartPolicyNever))
		Expect(*container.SecurityContext.Privileged).To(BeTrue())
	})

	It("omits the security context when privileged is disabled", func() {
		cfg := testAppConfig()
		cfg.Backup.Privileged = ptr.To(false)
		pod := newRunnerPod("p", "apps", "rel", cfg, cfg.Backup.Specs[0], "c", "s")
		Expect(pod.Spec.Containers[0].SecurityContext).To(BeNil())
	})
})
