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
	"io"

	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/watch"
)

// StreamLogs opens a (possibly follow-mode) log stream for one container of
// a pod and returns the ReadCloser; the caller is responsible for copying
// and closing it.
func (c *Client) StreamLogs(
	ctx context.Context,
	namespace, podName string,
	opts *corev1.PodLogOptions,
) (io.ReadCloser, error) {
	return c.Kube.CoreV1().Pods(namespace).GetLogs(podName, opts).Stream(ctx)
}

// WatchEvents opens a field-selected watch on events for the given object,
// optionally resuming from a known resourceVersion.
func (c *Client) WatchEvents(
	ctx context.Context,
	namespace, involvedObjectName, resourceVersion string,
) (watch.Interface, error) {
	opts := metav1.ListOptions{
		FieldSelector:   "involvedObject.name=" + involvedObjectName,
		ResourceVersion: resourceVersion,
	}
	return c.Kube.CoreV1().Events(namespace).Watch(ctx, opts)
}
