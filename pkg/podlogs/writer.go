/*
Copyright © contributors to CloudNativePG, established as
CloudNativePG a Series of LF Projects, LLC.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.

SPDX-License-Identifier: Apache-2.0
*/

// Package podlogs streams the logs of a pod's containers into arbitrary
// writers. It is the log-stream half of the pod monitor.
package podlogs

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	corev1 "k8s.io/api/core/v1"
	"k8s.io/client-go/kubernetes"
)

// Writer streams the logs of a single pod
type Writer struct {
	Pod    corev1.Pod
	Client kubernetes.Interface
}

// Single copies every container's logs for the pod into w, in container
// order. Used when there is exactly one container of interest.
func (w Writer) Single(ctx context.Context, out io.Writer, options *corev1.PodLogOptions) error {
	if w.Pod.Name == "" {
		return nil
	}

	containers := w.Pod.Spec.Containers
	if options != nil && options.Container != "" {
		containers = []corev1.Container{{Name: options.Container}}
	}

	for _, container := range containers {
		opts := options.DeepCopy()
		opts.Container = container.Name

		if err := w.streamOne(ctx, out, opts); err != nil {
			return err
		}
	}
	return nil
}

// Multiple streams each container's logs into a writer obtained from the
// creator, named via namer(container).
func (w Writer) Multiple(
	ctx context.Context,
	options *corev1.PodLogOptions,
	creator interface {
		Create(name string) (io.Writer, error)
	},
	namer func(container string) string,
) error {
	for _, container := range w.Pod.Spec.Containers {
		out, err := creator.Create(namer(container.Name))
		if err != nil {
			return err
		}

		opts := options.DeepCopy()
		opts.Container = container.Name

		if err := w.streamOne(ctx, out, opts); err != nil {
			return err
		}
	}
	return nil
}

func (w Writer) streamOne(ctx context.Context, out io.Writer, options *corev1.PodLogOptions) error {
	if options.Previous {
		if _, err := fmt.Fprintln(out, `"====== Beginning of Previous Log ====="`); err != nil {
			return err
		}
		if err := w.copyStream(ctx, out, options); err != nil {
			return err
		}
		if _, err := fmt.Fprintln(out, `"====== End of Previous Log ====="`); err != nil {
			return err
		}

		currentOpts := options.DeepCopy()
		currentOpts.Previous = false
		return w.copyStream(ctx, out, currentOpts)
	}

	return w.copyStream(ctx, out, options)
}

func (w Writer) copyStream(ctx context.Context, out io.Writer, options *corev1.PodLogOptions) error {
	stream, err := w.Client.CoreV1().Pods(w.Pod.Namespace).GetLogs(w.Pod.Name, options).Stream(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = stream.Close() }()

	// each container's output ends on a line boundary, so whatever is written
	// next (a marker or the next container) starts on a line of its own
	reader := bufio.NewReader(stream)
	for {
		line, err := reader.ReadString('\n')
		if line != "" && !strings.HasSuffix(line, "\n") {
			line += "\n"
		}
		if _, werr := io.WriteString(out, line); werr != nil {
			return werr
		}
		if err == io.EOF {
			return nil
		} else if err != nil {
			return err
		}
	}
}
