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

// Package hooks executes the application-level pre/post hook lists:
// sequential by default, optionally parallel, each hook an exec into a
// target pod.
package hooks

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/shlex"
	corev1 "k8s.io/api/core/v1"

	"github.com/vsbackup/vsbackup/pkg/cluster"
	"github.com/vsbackup/vsbackup/pkg/config"
	"github.com/vsbackup/vsbackup/pkg/management/log"
)

// Result is the outcome of running one hook
type Result struct {
	Hook     config.Hook
	ExitCode int
	Stdout   string
	Stderr   string
}

// HookError wraps a non-zero hook exit with the result for the caller to
// inspect; it aborts the rest of the sequence
type HookError struct {
	Result Result
}

func (e *HookError) Error() string {
	return fmt.Sprintf("hook in pod %s exited %d: %s", e.Result.Hook.Pod, e.Result.ExitCode, e.Result.Stderr)
}

// Executor runs hook lists against the cluster
type Executor struct {
	Client    *cluster.Client
	Namespace string

	// execFn is a test seam overriding Client.Exec; nil means use Client.Exec.
	execFn func(ctx context.Context, namespace, pod, container string, command []string) (*cluster.ExecResult, error)
	// getPodFn is a test seam overriding Client.GetPod; nil means use Client.GetPod.
	getPodFn func(ctx context.Context, namespace, name string) (*corev1.Pod, error)
}

// Run executes hooks according to each hook's Parallel flag: hooks marked
// parallel within the list run concurrently with each other, joined before
// the next sequential hook runs; all others run strictly in order.
func (x *Executor) Run(ctx context.Context, list []config.Hook) ([]Result, error) {
	results := make([]Result, len(list))

	i := 0
	for i < len(list) {
		if !list[i].Parallel {
			res, err := x.runOne(ctx, list[i])
			results[i] = res
			if err != nil {
				return results, err
			}
			i++
			continue
		}

		// collect the contiguous run of parallel hooks starting at i
		j := i
		for j < len(list) && list[j].Parallel {
			j++
		}

		if err := x.runParallel(ctx, list[i:j], results[i:j]); err != nil {
			return results, err
		}
		i = j
	}

	return results, nil
}

func (x *Executor) runParallel(ctx context.Context, hooks []config.Hook, out []Result) error {
	var wg sync.WaitGroup
	errs := make([]error, len(hooks))
	wg.Add(len(hooks))
	for i, hook := range hooks {
		go func(i int, hook config.Hook) {
			defer wg.Done()
			res, err := x.runOne(ctx, hook)
			out[i] = res
			errs[i] = err
		}(i, hook)
	}
	wg.Wait()

	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}

func (x *Executor) runOne(ctx context.Context, hook config.Hook) (Result, error) {
	command := hook.Command
	if len(command) == 1 {
		if split, err := shlex.Split(command[0]); err == nil && len(split) > 1 {
			command = split
		}
	}

	container, err := x.resolveContainer(ctx, hook)
	if err != nil {
		return Result{Hook: hook}, err
	}

	log.Info("running hook", "pod", hook.Pod, "container", container, "command", command)

	exec := x.execFn
	if exec == nil {
		exec = x.Client.Exec
	}
	execResult, err := exec(ctx, x.Namespace, hook.Pod, container, command)
	if err != nil {
		return Result{Hook: hook}, fmt.Errorf("hook exec in pod %s failed: %w", hook.Pod, err)
	}

	result := Result{
		Hook:     hook,
		ExitCode: execResult.ExitCode,
		Stdout:   execResult.Stdout,
		Stderr:   execResult.Stderr,
	}

	if execResult.ExitCode != 0 {
		return result, &HookError{Result: result}
	}

	return result, nil
}

// resolveContainer locates the hook's target pod and selects the container
// to exec into: the explicit one, or the pod's first container. A missing
// pod is a hard error.
func (x *Executor) resolveContainer(ctx context.Context, hook config.Hook) (string, error) {
	getPod := x.getPodFn
	if getPod == nil {
		getPod = x.Client.GetPod
	}
	pod, err := getPod(ctx, x.Namespace, hook.Pod)
	if err != nil {
		return "", fmt.Errorf("hook target pod %q: %w", hook.Pod, err)
	}

	if hook.Container != "" {
		return hook.Container, nil
	}
	if len(pod.Spec.Containers) == 0 {
		return "", fmt.Errorf("hook target pod %q has no containers", hook.Pod)
	}
	return pod.Spec.Containers[0].Name, nil
}
