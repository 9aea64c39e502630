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

package cluster

import (
	"context"

	snapshotv1 "github.com/kubernetes-csi/external-snapshotter/client/v7/apis/volumesnapshot/v1"
	corev1 "k8s.io/api/core/v1"
	storagev1 "k8s.io/api/storage/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
)

// IgnoreNotFound turns a 404 into a nil error: every delete in this façade
// is idempotent.
func IgnoreNotFound(err error) error {
	if apierrors.IsNotFound(err) {
		return nil
	}
	return err
}

// IgnoreAlreadyExists turns a 409-on-create into a nil error: the
// resource being there already is what the create was for.
func IgnoreAlreadyExists(err error) error {
	if apierrors.IsAlreadyExists(err) {
		return nil
	}
	return err
}

// CreateVolumeSnapshot creates a VolumeSnapshot object
func (c *Client) CreateVolumeSnapshot(
	ctx context.Context,
	namespace string,
	snap *snapshotv1.VolumeSnapshot,
) (*snapshotv1.VolumeSnapshot, error) {
	created, err := c.Snapshot.SnapshotV1().VolumeSnapshots(namespace).Create(ctx, snap, metav1.CreateOptions{})
	if apierrors.IsAlreadyExists(err) {
		return c.Snapshot.SnapshotV1().VolumeSnapshots(namespace).Get(ctx, snap.Name, metav1.GetOptions{})
	}
	return created, err
}

// GetVolumeSnapshot reads a VolumeSnapshot by name
func (c *Client) GetVolumeSnapshot(ctx context.Context, namespace, name string) (*snapshotv1.VolumeSnapshot, error) {
	return c.Snapshot.SnapshotV1().VolumeSnapshots(namespace).Get(ctx, name, metav1.GetOptions{})
}

// ListVolumeSnapshots lists VolumeSnapshots matching the given label selector
func (c *Client) ListVolumeSnapshots(
	ctx context.Context,
	namespace, labelSelector string,
) (*snapshotv1.VolumeSnapshotList, error) {
	return c.Snapshot.SnapshotV1().VolumeSnapshots(namespace).List(ctx, metav1.ListOptions{
		LabelSelector: labelSelector,
	})
}

// DeleteVolumeSnapshot deletes a VolumeSnapshot; 404 is success
func (c *Client) DeleteVolumeSnapshot(ctx context.Context, namespace, name string) error {
	err := c.Snapshot.SnapshotV1().VolumeSnapshots(namespace).Delete(ctx, name, metav1.DeleteOptions{})
	return IgnoreNotFound(err)
}

// CreatePVC creates a PersistentVolumeClaim
func (c *Client) CreatePVC(ctx context.Context, namespace string, pvc *corev1.PersistentVolumeClaim) (
	*corev1.PersistentVolumeClaim, error,
) {
	created, err := c.Kube.CoreV1().PersistentVolumeClaims(namespace).Create(ctx, pvc, metav1.CreateOptions{})
	if apierrors.IsAlreadyExists(err) {
		return c.Kube.CoreV1().PersistentVolumeClaims(namespace).Get(ctx, pvc.Name, metav1.GetOptions{})
	}
	return created, err
}

// GetPVC reads a PersistentVolumeClaim by name
func (c *Client) GetPVC(ctx context.Context, namespace, name string) (*corev1.PersistentVolumeClaim, error) {
	return c.Kube.CoreV1().PersistentVolumeClaims(namespace).Get(ctx, name, metav1.GetOptions{})
}

// DeletePVC deletes a PersistentVolumeClaim; 404 is success
func (c *Client) DeletePVC(ctx context.Context, namespace, name string) error {
	err := c.Kube.CoreV1().PersistentVolumeClaims(namespace).Delete(ctx, name, metav1.DeleteOptions{})
	return IgnoreNotFound(err)
}

// GetPV reads a PersistentVolume by name
func (c *Client) GetPV(ctx context.Context, name string) (*corev1.PersistentVolume, error) {
	return c.Kube.CoreV1().PersistentVolumes().Get(ctx, name, metav1.GetOptions{})
}

// GetStorageClass reads a StorageClass by name
func (c *Client) GetStorageClass(ctx context.Context, name string) (*storagev1.StorageClass, error) {
	return c.Kube.StorageV1().StorageClasses().Get(ctx, name, metav1.GetOptions{})
}

// CreatePod creates a Pod
func (c *Client) CreatePod(ctx context.Context, namespace string, pod *corev1.Pod) (*corev1.Pod, error) {
	created, err := c.Kube.CoreV1().Pods(namespace).Create(ctx, pod, metav1.CreateOptions{})
	if apierrors.IsAlreadyExists(err) {
		return c.Kube.CoreV1().Pods(namespace).Get(ctx, pod.Name, metav1.GetOptions{})
	}
	return created, err
}

// GetPod reads a Pod by name
func (c *Client) GetPod(ctx context.Context, namespace, name string) (*corev1.Pod, error) {
	return c.Kube.CoreV1().Pods(namespace).Get(ctx, name, metav1.GetOptions{})
}

// DeletePod deletes a Pod; 404 is success
func (c *Client) DeletePod(ctx context.Context, namespace, name string) error {
	err := c.Kube.CoreV1().Pods(namespace).Delete(ctx, name, metav1.DeleteOptions{})
	return IgnoreNotFound(err)
}

// CreateSecret creates a Secret
func (c *Client) CreateSecret(ctx context.Context, namespace string, secret *corev1.Secret) (*corev1.Secret, error) {
	created, err := c.Kube.CoreV1().Secrets(namespace).Create(ctx, secret, metav1.CreateOptions{})
	if apierrors.IsAlreadyExists(err) {
		return c.Kube.CoreV1().Secrets(namespace).Get(ctx, secret.Name, metav1.GetOptions{})
	}
	return created, err
}

// DeleteSecret deletes a Secret; 404 is success
func (c *Client) DeleteSecret(ctx context.Context, namespace, name string) error {
	err := c.Kube.CoreV1().Secrets(namespace).Delete(ctx, name, metav1.DeleteOptions{})
	return IgnoreNotFound(err)
}

// ListPodEvents lists the events currently recorded for the named pod,
// returning the list so callers can read its ResourceVersion for a
// subsequent watch.
func (c *Client) ListPodEvents(ctx context.Context, namespace, podName string) (*corev1.EventList, error) {
	return c.Kube.CoreV1().Events(namespace).List(ctx, metav1.ListOptions{
		FieldSelector: "involvedObject.name=" + podName,
	})
}

// ListPVCEvents lists the events currently recorded for the named PVC
func (c *Client) ListPVCEvents(ctx context.Context, namespace, pvcName string) (*corev1.EventList, error) {
	return c.Kube.CoreV1().Events(namespace).List(ctx, metav1.ListOptions{
		FieldSelector: "involvedObject.name=" + pvcName,
	})
}
