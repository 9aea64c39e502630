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

// Package snapshotctl implements the snapshot controller: pre-hooks,
// parallel snapshot creation with readiness polling, post-hooks, and
// retention pruning of older snapshots.
package snapshotctl

import (
	"context"
	"fmt"
	"sync"
	"time"

	"k8s.io/apimachinery/pkg/util/wait"

	"github.com/vsbackup/vsbackup/pkg/cluster"
	"github.com/vsbackup/vsbackup/pkg/config"
	"github.com/vsbackup/vsbackup/pkg/hooks"
	"github.com/vsbackup/vsbackup/pkg/management/log"
	"github.com/vsbackup/vsbackup/pkg/metrics"
	"github.com/vsbackup/vsbackup/pkg/report"
	"github.com/vsbackup/vsbackup/pkg/retention"
	"github.com/vsbackup/vsbackup/pkg/utils"
)

// DefaultReadyTimeout bounds how long one snapshot may take to report
// readyToUse before its spec is marked failed.
const DefaultReadyTimeout = 10 * time.Minute

// Controller runs one snapshot pass over every configured spec
type Controller struct {
	Client       *cluster.Client
	Config       *config.AppConfig
	Metrics      *metrics.Metrics
	ReadyTimeout time.Duration

	hooks *hooks.Executor
}

// specState carries one spec through the run
type specState struct {
	spec         config.SnapshotSpec
	preHooksOK   bool
	snapshotName string
	startedAt    time.Time
	err          error
}

// NewController prepares a snapshot controller run
func NewController(client *cluster.Client, cfg *config.AppConfig, m *metrics.Metrics) *Controller {
	return &Controller{
		Client:       client,
		Config:       cfg,
		Metrics:      m,
		ReadyTimeout: DefaultReadyTimeout,
		hooks:        &hooks.Executor{Client: client, Namespace: cfg.Namespace},
	}
}

// Run executes one full snapshot pass and returns the per-spec report.
// Post-hooks for every spec whose pre-hooks completed are run even when
// ctx is cancelled mid-creation.
func (c *Controller) Run(ctx context.Context) *report.Report {
	states := make([]*specState, len(c.Config.Snapshot))
	for i, spec := range c.Config.Snapshot {
		states[i] = &specState{spec: spec, startedAt: time.Now()}
	}

	c.runPreHooks(ctx, states)
	c.createSnapshots(ctx, states)
	c.runPostHooks(context.WithoutCancel(ctx), states)

	if ctx.Err() == nil {
		c.pruneSnapshots(ctx, states)
	}

	result := &report.Report{}
	for _, st := range states {
		outcome := report.OutcomeSucceeded
		if st.err != nil {
			outcome = report.OutcomeFailed
		}
		if c.Metrics != nil {
			c.Metrics.SnapshotsTotal.WithLabelValues(string(outcome)).Inc()
		}
		result.Add(report.Row{
			Name:     st.spec.PVC,
			Outcome:  outcome,
			Duration: time.Since(st.startedAt),
			Error:    st.err,
		})
	}
	return result
}

// runPreHooks executes each spec's pre-hook list sequentially, in spec
// order. A failing pre-hook fails its spec and suppresses both its
// snapshot and its post-hooks.
func (c *Controller) runPreHooks(ctx context.Context, states []*specState) {
	for _, st := range states {
		if ctx.Err() != nil {
			st.err = ctx.Err()
			continue
		}
		if _, err := c.hooks.Run(ctx, st.spec.PreHooks); err != nil {
			st.err = fmt.Errorf("pre-hooks failed: %w", err)
			continue
		}
		st.preHooksOK = true
	}
}

// createSnapshots issues one creation task per spec concurrently and joins
// them all; a failing spec never cancels its peers.
func (c *Controller) createSnapshots(ctx context.Context, states []*specState) {
	var wg sync.WaitGroup
	for _, st := range states {
		if !st.preHooksOK {
			continue
		}
		wg.Add(1)
		go func(st *specState) {
			defer wg.Done()
			st.err = c.createOne(ctx, st)
		}(st)
	}
	wg.Wait()
}

func (c *Controller) createOne(ctx context.Context, st *specState) error {
	prefix := c.Config.SnapshotArchivePrefix(st.spec)
	name := SnapshotName(prefix, time.Now())
	st.snapshotName = name

	snap := newVolumeSnapshot(name, c.Config.Namespace, c.Config.ReleaseName, st.spec.PVC, st.spec.SnapshotClass)
	if _, err := c.Client.CreateVolumeSnapshot(ctx, c.Config.Namespace, snap); err != nil {
		return fmt.Errorf("cannot create snapshot %q: %w", name, err)
	}
	log.Info("snapshot requested", "snapshot", name, "pvc", st.spec.PVC)

	return c.waitSnapshotReady(ctx, name)
}

// waitSnapshotReady polls with bounded backoff until the snapshot reports
// readyToUse or the controller's deadline expires.
func (c *Controller) waitSnapshotReady(ctx context.Context, name string) error {
	deadline := c.ReadyTimeout
	if deadline == 0 {
		deadline = DefaultReadyTimeout
	}
	waitCtx, cancel := context.WithTimeout(ctx, deadline)
	defer cancel()

	backoff := wait.Backoff{
		Duration: time.Second,
		Factor:   1.5,
		Jitter:   0.1,
		Steps:    30,
		Cap:      30 * time.Second,
	}

	err := wait.ExponentialBackoffWithContext(waitCtx, backoff, func(ctx context.Context) (bool, error) {
		if c.Metrics != nil {
			c.Metrics.SnapshotRetriesTotal.Inc()
		}
		snap, err := c.Client.GetVolumeSnapshot(ctx, c.Config.Namespace, name)
		if err != nil {
			log.Warning("cannot read snapshot while waiting for readiness",
				"snapshot", name, "err", err.Error())
			return false, nil
		}
		return isSnapshotReady(snap), nil
	})
	if err != nil {
		return fmt.Errorf("snapshot %q did not become ready within %s: %w", name, deadline, err)
	}

	log.Info("snapshot ready", "snapshot", name)
	return nil
}

// runPostHooks executes post-hooks sequentially in spec order for every
// spec whose pre-hooks completed, regardless of snapshot outcome. Failures
// are recorded only when the spec has no earlier error to report.
func (c *Controller) runPostHooks(ctx context.Context, states []*specState) {
	for _, st := range states {
		if !st.preHooksOK {
			continue
		}
		if _, err := c.hooks.Run(ctx, st.spec.PostHooks); err != nil {
			log.Error(err, "post-hooks failed", "pvc", st.spec.PVC)
			if st.err == nil {
				st.err = fmt.Errorf("post-hooks failed: %w", err)
			}
		}
	}
}

// pruneSnapshots applies the retention policy per spec and deletes the
// complement. Deletion failures are warnings; they never mask a successful
// snapshot.
func (c *Controller) pruneSnapshots(ctx context.Context, states []*specState) {
	for _, st := range states {
		prefix := c.Config.SnapshotArchivePrefix(st.spec)

		list, err := c.Client.ListVolumeSnapshots(ctx, c.Config.Namespace,
			utils.SnapshotSelector(c.Config.ReleaseName, st.spec.PVC))
		if err != nil {
			log.Warning("cannot list snapshots for retention",
				"pvc", st.spec.PVC, "err", err.Error())
			continue
		}

		items := make([]retentionItem, 0, len(list.Items))
		for i := range list.Items {
			items = append(items, newRetentionItem(prefix, &list.Items[i]))
		}

		keep := retention.Select(items, st.spec.Retention)
		drop := retention.Complement(items, keep, func(it retentionItem) string {
			return it.snapshot.Name
		})

		for _, it := range drop {
			if err := c.Client.DeleteVolumeSnapshot(ctx, c.Config.Namespace, it.snapshot.Name); err != nil {
				log.Warning("cannot delete expired snapshot",
					"snapshot", it.snapshot.Name, "err", err.Error())
				continue
			}
			log.Info("expired snapshot deleted", "snapshot", it.snapshot.Name)
		}
	}
}
