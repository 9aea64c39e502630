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
	"bytes"
	"context"

	corev1 "k8s.io/api/core/v1"
	"k8s.io/client-go/kubernetes/scheme"
	"k8s.io/client-go/tools/remotecommand"
	utilexec "k8s.io/client-go/util/exec"
)

// ExecResult carries the outcome of a pod exec
type ExecResult struct {
	ExitCode int
	Stdout   string
	Stderr   string
}

// Exec runs command inside a container of the target pod and returns its
// captured stdout/stderr and exit code
func (c *Client) Exec(
	ctx context.Context,
	namespace, podName, container string,
	command []string,
) (*ExecResult, error) {
	req := c.Kube.CoreV1().RESTClient().
		Post().
		Resource("pods").
		Name(podName).
		Namespace(namespace).
		SubResource("exec").
		VersionedParams(&corev1.PodExecOptions{
			Container: container,
			Command:   command,
			Stdin:     false,
			Stdout:    true,
			Stderr:    true,
			TTY:       false,
		}, scheme.ParameterCodec)

	executor, err := remotecommand.NewSPDYExecutor(c.Config, "POST", req.URL())
	if err != nil {
		return nil, err
	}

	var stdout, stderr bytes.Buffer
	streamErr := executor.StreamWithContext(ctx, remotecommand.StreamOptions{
		Stdout: &stdout,
		Stderr: &stderr,
	})

	result := &ExecResult{Stdout: stdout.String(), Stderr: stderr.String()}

	if streamErr == nil {
		return result, nil
	}

	if exitErr, ok := streamErr.(utilexec.ExitError); ok {
		result.ExitCode = exitErr.ExitStatus()
		return result, nil
	}

	return result, streamErr
}
