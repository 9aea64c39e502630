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

// Package backupctl implements the backup controller: clone volumes are
// provisioned from the newest ready snapshots in parallel, then drained
// one at a time through an ephemeral runner pod that writes the archive,
// because the repository accepts a single writer. Every transient resource
// is registered before creation and reclaimed on any exit path.
package backupctl

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	snapshotv1 "github.com/kubernetes-csi/external-snapshotter/client/v7/apis/volumesnapshot/v1"
	corev1 "k8s.io/api/core/v1"
	storagev1 "k8s.io/api/storage/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"

	"github.com/vsbackup/vsbackup/pkg/cluster"
	"github.com/vsbackup/vsbackup/pkg/config"
	"github.com/vsbackup/vsbackup/pkg/hooks"
	"github.com/vsbackup/vsbackup/pkg/management/borg"
	"github.com/vsbackup/vsbackup/pkg/management/log"
	"github.com/vsbackup/vsbackup/pkg/metrics"
	"github.com/vsbackup/vsbackup/pkg/monitor"
	"github.com/vsbackup/vsbackup/pkg/report"
	"github.com/vsbackup/vsbackup/pkg/tracked"
)

// deleteConfirmTimeout bounds how long a teardown waits to observe the 404
// that proves a resource is gone before deregistering it.
const deleteConfirmTimeout = 60 * time.Second

// Controller runs one backup pass over every configured spec
type Controller struct {
	Client   *cluster.Client
	Config   *config.AppConfig
	Registry *tracked.Registry
	Metrics  *metrics.Metrics

	hooks *hooks.Executor
}

// specRun carries one backup spec through both phases
type specRun struct {
	spec         config.BackupSpec
	storageClass *storagev1.StorageClass
	snapshot     *snapshotv1.VolumeSnapshot
	cloneName    string
	preHooksOK   bool
	postHooksRun bool
	startedAt    time.Time
	attempted    bool
	err          error
}

// NewController prepares a backup controller run
func NewController(
	client *cluster.Client,
	cfg *config.AppConfig,
	registry *tracked.Registry,
	m *metrics.Metrics,
) *Controller {
	return &Controller{
		Client:   client,
		Config:   cfg,
		Registry: registry,
		Metrics:  m,
		hooks:    &hooks.Executor{Client: client, Namespace: cfg.Namespace},
	}
}

// Run executes one full backup pass: guards, parallel clone provisioning,
// then the sequential per-volume transfer loop. Whatever happens, the
// tracked-resources registry is drained and outstanding post-hooks run
// before Run returns.
func (c *Controller) Run(ctx context.Context) (*report.Report, error) {
	if err := c.Config.ValidateForBackup(); err != nil {
		return nil, err
	}

	runs, err := c.prepare(ctx)
	if err != nil {
		return nil, err
	}

	defer c.finalize(runs)

	// phase 1 submits every clone create concurrently; the workers are
	// joined here, before the first spec's readiness wait
	c.provisionClones(ctx, runs).Wait()

	for _, run := range runs {
		if run.err != nil {
			continue
		}
		if ctx.Err() != nil {
			run.err = ctx.Err()
			continue
		}
		run.attempted = true
		run.err = c.backupOne(ctx, run)
		c.runPostHooks(context.WithoutCancel(ctx), run)
	}

	result := &report.Report{}
	for _, run := range runs {
		outcome := report.OutcomeSucceeded
		switch {
		case run.err != nil && run.attempted:
			outcome = report.OutcomeFailed
		case run.err != nil:
			outcome = report.OutcomeSkipped
		}
		if c.Metrics != nil {
			c.Metrics.BackupsTotal.WithLabelValues(string(outcome)).Inc()
		}

		duration := time.Duration(0)
		if run.attempted {
			duration = time.Since(run.startedAt)
		}
		result.Add(report.Row{
			Name:     run.spec.Name,
			Outcome:  outcome,
			Duration: duration,
			Error:    run.err,
		})
	}

	return result, nil
}

// prepare applies the startup guards: every clone storage class must exist
// (one read each), and each spec needs at least one ready snapshot of its
// PVC. A missing storage class is fatal; a missing snapshot only fails its
// spec.
func (c *Controller) prepare(ctx context.Context) ([]*specRun, error) {
	classes := make(map[string]*storagev1.StorageClass)
	runs := make([]*specRun, 0, len(c.Config.Backup.Specs))

	for _, spec := range c.Config.Backup.Specs {
		class, ok := classes[spec.CloneStorageClass]
		if !ok {
			var err error
			class, err = c.Client.GetStorageClass(ctx, spec.CloneStorageClass)
			if err != nil {
				return nil, fmt.Errorf("clone storage class %q: %w", spec.CloneStorageClass, err)
			}
			classes[spec.CloneStorageClass] = class
		}

		run := &specRun{spec: spec, storageClass: class, startedAt: time.Now()}
		runs = append(runs, run)

		snapshot, err := c.newestReadySnapshot(ctx, spec.PVC)
		if err != nil {
			run.err = provisioningErr(err)
			continue
		}
		run.snapshot = snapshot
	}

	return runs, nil
}

// newestReadySnapshot selects the most recent readyToUse snapshot whose
// source PVC matches.
func (c *Controller) newestReadySnapshot(ctx context.Context, pvc string) (*snapshotv1.VolumeSnapshot, error) {
	list, err := c.Client.ListVolumeSnapshots(ctx, c.Config.Namespace, "")
	if err != nil {
		return nil, fmt.Errorf("cannot list snapshots: %w", err)
	}

	var candidates []*snapshotv1.VolumeSnapshot
	for i := range list.Items {
		snap := &list.Items[i]
		if snap.Spec.Source.PersistentVolumeClaimName == nil ||
			*snap.Spec.Source.PersistentVolumeClaimName != pvc {
			continue
		}
		if snap.Status == nil || snap.Status.ReadyToUse == nil || !*snap.Status.ReadyToUse {
			continue
		}
		candidates = append(candidates, snap)
	}

	if len(candidates) == 0 {
		return nil, fmt.Errorf("no ready snapshot found for pvc %q", pvc)
	}

	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].CreationTimestamp.After(candidates[j].CreationTimestamp.Time)
	})
	return candidates[0], nil
}

// provisionClones submits every clone create concurrently, one worker per
// spec. Each clone is registered in the tracked registry before its create
// call; a failed create fails its spec only.
func (c *Controller) provisionClones(ctx context.Context, runs []*specRun) *sync.WaitGroup {
	usedNames := make(map[string]bool)
	var wg sync.WaitGroup

	for _, run := range runs {
		if run.err != nil {
			continue
		}

		name := CloneName(c.Config.ReleaseName, run.spec.Name, time.Now())
		if usedNames[name] {
			name = fmt.Sprintf("%s-%s", name, uuid.NewString()[:8])
		}
		usedNames[name] = true
		run.cloneName = name

		c.registerPVC(name)
		pvc := newClonePVC(name, c.Config.Namespace, c.Config.ReleaseName, run.spec, run.snapshot)

		wg.Add(1)
		go func(run *specRun, pvc *corev1.PersistentVolumeClaim) {
			defer wg.Done()
			if _, err := c.Client.CreatePVC(ctx, c.Config.Namespace, pvc); err != nil {
				run.err = provisioningErr(fmt.Errorf("cannot create clone %q: %w", pvc.Name, err))
				return
			}
			log.Info("clone requested", "pvc", pvc.Name, "snapshot", run.snapshot.Name)
		}(run, pvc)
	}

	return &wg
}

// backupOne is the sequential per-spec path: pre-hooks, clone readiness,
// volume readiness, secret, runner pod, monitor, teardown.
func (c *Controller) backupOne(ctx context.Context, run *specRun) error {
	if _, err := c.hooks.Run(ctx, run.spec.PreHooks); err != nil {
		return executionErr(fmt.Errorf("pre-hooks failed: %w", err))
	}
	run.preHooksOK = true

	if err := c.waitCloneReady(ctx, run.cloneName, run.storageClass, run.spec.CloneBindTimeout); err != nil {
		c.teardownClone(run)
		return provisioningErr(err)
	}

	if err := c.waitVolumeReady(ctx, run.cloneName); err != nil {
		c.teardownClone(run)
		return provisioningErr(err)
	}

	podName := RunnerPodName(c.Config.ReleaseName, run.spec.Name, time.Now())
	secretName := ConfigSecretName(podName)

	err := c.runPod(ctx, run, podName, secretName)

	// teardown order: pod releases the mounts, then the clone, then the
	// secret
	c.teardownPod(podName)
	c.teardownClone(run)
	c.teardownSecret(secretName)

	return err
}

// runPod mints the ephemeral secret, spawns the runner pod, and watches it
// to a terminal phase. Secret and pod are registered before creation.
func (c *Controller) runPod(ctx context.Context, run *specRun, podName, secretName string) error {
	payload, err := c.runnerPayload(run.spec)
	if err != nil {
		return err
	}

	c.registerSecret(secretName)
	secret := newRunnerSecret(secretName, c.Config.Namespace, c.Config.ReleaseName, payload, run.spec.Name)
	if _, err := c.Client.CreateSecret(ctx, c.Config.Namespace, secret); err != nil {
		return fmt.Errorf("cannot create runner secret %q: %w", secretName, err)
	}

	c.registerPod(podName)
	pod := newRunnerPod(podName, c.Config.Namespace, c.Config.ReleaseName,
		c.Config, run.spec, run.cloneName, secretName)
	if _, err := c.Client.CreatePod(ctx, c.Config.Namespace, pod); err != nil {
		return fmt.Errorf("cannot create runner pod %q: %w", podName, err)
	}
	log.Info("runner pod created", "pod", podName, "backup", run.spec.Name)

	phase, err := monitor.New(c.Client, c.Config.Namespace, podName).WatchUntilTerminal(ctx)
	if err != nil {
		return fmt.Errorf("runner pod %q: %w", podName, err)
	}

	return executionErr(c.classifyOutcome(ctx, podName, phase))
}

// classifyOutcome maps the terminal pod state onto the per-spec result:
// container exit 0 is success, anything else fails the spec without
// changing loop policy.
func (c *Controller) classifyOutcome(ctx context.Context, podName string, phase corev1.PodPhase) error {
	if phase == corev1.PodSucceeded {
		return nil
	}

	exitCode := -1
	if pod, err := c.Client.GetPod(ctx, c.Config.Namespace, podName); err == nil {
		for _, cs := range pod.Status.ContainerStatuses {
			if cs.State.Terminated != nil {
				exitCode = int(cs.State.Terminated.ExitCode)
			}
		}
	}
	return fmt.Errorf("runner pod %q failed with exit code %d", podName, exitCode)
}

// runnerPayload builds the secret payload for one spec
func (c *Controller) runnerPayload(spec config.BackupSpec) ([]byte, error) {
	cfg := borg.RunnerConfig{
		Repo:           c.Config.Backup.Repo.Endpoint,
		Passphrase:     c.Config.Backup.Repo.Passphrase,
		SSHKey:         c.Config.Backup.Repo.SSHKey,
		ArchivePrefix:  c.Config.ArchivePrefix(spec),
		TimeoutSeconds: int(spec.Timeout.Seconds()),
		BorgFlags:      spec.BorgFlags,
		Retention:      c.Config.Backup.Retention,
		CacheTheCache:  c.Config.Backup.Cache.CacheTheCache,
	}
	payload, err := cfg.Marshal()
	if err != nil {
		return nil, fmt.Errorf("cannot serialize runner configuration: %w", err)
	}
	return payload, nil
}

// runPostHooks runs a spec's post-hooks exactly once, provided its
// pre-hooks completed.
func (c *Controller) runPostHooks(ctx context.Context, run *specRun) {
	if !run.preHooksOK || run.postHooksRun {
		return
	}
	run.postHooksRun = true
	if _, err := c.hooks.Run(ctx, run.spec.PostHooks); err != nil {
		log.Error(err, "post-hooks failed", "backup", run.spec.Name)
		if run.err == nil {
			run.err = fmt.Errorf("post-hooks failed: %w", err)
		}
	}
}

// finalize is the unconditional exit path: outstanding post-hooks first,
// then a full drain of whatever is still tracked.
func (c *Controller) finalize(runs []*specRun) {
	ctx := context.Background()
	for _, run := range runs {
		c.runPostHooks(ctx, run)
	}

	if c.Registry.Len() > 0 {
		log.Info("draining tracked resources", "count", c.Registry.Len())
		c.Registry.Drain()
	}
}

func (c *Controller) registerPod(name string) {
	key := tracked.Key{Kind: tracked.KindPod, Namespace: c.Config.Namespace, Name: name}
	c.Registry.Register(key, func() error {
		return c.deleteAndConfirm(
			func(ctx context.Context) error { return c.Client.DeletePod(ctx, c.Config.Namespace, name) },
			func(ctx context.Context) error {
				_, err := c.Client.GetPod(ctx, c.Config.Namespace, name)
				return err
			})
	})
}

func (c *Controller) registerPVC(name string) {
	key := tracked.Key{Kind: tracked.KindPVC, Namespace: c.Config.Namespace, Name: name}
	c.Registry.Register(key, func() error {
		return c.deleteAndConfirm(
			func(ctx context.Context) error { return c.Client.DeletePVC(ctx, c.Config.Namespace, name) },
			func(ctx context.Context) error {
				_, err := c.Client.GetPVC(ctx, c.Config.Namespace, name)
				return err
			})
	})
}

func (c *Controller) registerSecret(name string) {
	key := tracked.Key{Kind: tracked.KindSecret, Namespace: c.Config.Namespace, Name: name}
	c.Registry.Register(key, func() error {
		return c.deleteAndConfirm(
			func(ctx context.Context) error { return c.Client.DeleteSecret(ctx, c.Config.Namespace, name) },
			func(ctx context.Context) error {
				// secrets have no deletion grace period; the delete's 404
				// handling already confirms absence
				return apierrors.NewNotFound(corev1.Resource("secrets"), name)
			})
	})
}

// deleteAndConfirm issues the idempotent delete and then polls until a
// read returns 404, proving the resource is gone.
func (c *Controller) deleteAndConfirm(
	del func(context.Context) error,
	get func(context.Context) error,
) error {
	ctx, cancel := context.WithTimeout(context.Background(), deleteConfirmTimeout)
	defer cancel()

	if err := del(ctx); err != nil {
		return err
	}

	for {
		err := get(ctx)
		if apierrors.IsNotFound(err) {
			return nil
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("resource still present after %s", deleteConfirmTimeout)
		case <-time.After(2 * time.Second):
		}
	}
}

// teardownPod, teardownClone and teardownSecret reclaim one resource via
// its registered cleanup and deregister it on confirmed absence.

func (c *Controller) teardownPod(name string) {
	c.teardown(tracked.Key{Kind: tracked.KindPod, Namespace: c.Config.Namespace, Name: name})
}

func (c *Controller) teardownClone(run *specRun) {
	if run.cloneName == "" {
		return
	}
	c.teardown(tracked.Key{Kind: tracked.KindPVC, Namespace: c.Config.Namespace, Name: run.cloneName})
	run.cloneName = ""
}

func (c *Controller) teardownSecret(name string) {
	c.teardown(tracked.Key{Kind: tracked.KindSecret, Namespace: c.Config.Namespace, Name: name})
}

func (c *Controller) teardown(key tracked.Key) {
	if err := c.Registry.Cleanup(key); err != nil {
		if c.Metrics != nil {
			c.Metrics.CleanupErrorsTotal.Inc()
		}
		log.Error(err, "cannot tear down resource",
			"kind", key.Kind.String(), "name", key.Name)
	}
}
