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

// Package runner is the single-volume worker the backup controller spawns
// inside each runner pod. It reads its configuration from the mounted
// secret, writes one archive into the repository, prunes by the configured
// retention, and checkpoints the write when the pod is terminated.
package runner

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/vsbackup/vsbackup/pkg/concurrency"
	"github.com/vsbackup/vsbackup/pkg/management/borg"
	"github.com/vsbackup/vsbackup/pkg/management/execlog"
	"github.com/vsbackup/vsbackup/pkg/management/log"
)

const (
	// DataMountPath is where the controller mounts the clone volume
	DataMountPath = "/data"
	// CacheMountPath is where the controller mounts the cache volume
	CacheMountPath = "/cache"
	// ConfigMountPath is where the controller mounts the runner secret
	ConfigMountPath = "/etc/backup-runner/config.yaml"

	// localCachePath is the pod-local ephemeral cache used when
	// cache-the-cache is enabled
	localCachePath = "/var/tmp/borg-cache"

	sshKeyPath = "/var/tmp/backup-runner-ssh-key"

	// checkpointGrace is how long the child gets to write its checkpoint
	// after SIGINT before it is killed
	checkpointGrace = 10 * time.Second

	lockProbeTimeout = 30 * time.Second

	// SignalExitCode is the exit code reported after a signal-driven stop
	SignalExitCode = 143
)

// Runner executes one repository write for one clone volume
type Runner struct {
	cfg *Config

	childMu sync.Mutex
	child   *os.Process
}

// Config carries everything the runner needs, resolved from the mounted
// secret plus the fixed mount layout.
type Config struct {
	Secret   *borg.RunnerConfig
	DataPath string
	// CacheDir is the effective repository cache directory the tool is
	// pointed at: the cache mount, or the local copy when cache-the-cache
	// is on
	CacheDir string
}

// New loads the mounted secret and prepares a Runner
func New(configPath string) (*Runner, error) {
	secret, err := borg.LoadRunnerConfig(configPath)
	if err != nil {
		return nil, err
	}

	cacheDir := CacheMountPath
	if secret.CacheTheCache {
		cacheDir = localCachePath
	}

	return &Runner{
		cfg: &Config{
			Secret:   secret,
			DataPath: DataMountPath,
			CacheDir: cacheDir,
		},
	}, nil
}

// Run performs the full backup sequence and returns the process exit code.
// It installs its own SIGTERM/SIGINT handling: the runner is PID 1 in its
// pod and must forward termination to the repository child itself.
func (r *Runner) Run(ctx context.Context) int {
	signalCh := make(chan os.Signal, 1)
	signal.Notify(signalCh, syscall.SIGTERM, syscall.SIGINT)
	defer signal.Stop(signalCh)

	terminated := concurrency.NewExecuted()
	go func() {
		select {
		case sig := <-signalCh:
			log.Info("termination signal received, checkpointing", "signal", sig.String())
			terminated.Broadcast()
			r.stopChild()
		case <-ctx.Done():
		}
	}()

	if err := r.writeSSHKey(); err != nil {
		log.Error(err, "cannot prepare SSH key")
		return 1
	}

	if r.cfg.Secret.CacheTheCache {
		if err := copyCacheIn(CacheMountPath, localCachePath); err != nil {
			log.Error(err, "cache copy-in failed, aborting backup")
			return 1
		}
	}

	r.probeLock(ctx)

	archiveName := borg.ArchiveName(r.cfg.Secret.ArchivePrefix, time.Now())
	createErr := r.createArchive(ctx, archiveName)

	if terminated.IsDone() {
		_ = r.runBorg(context.Background(), borg.BreakLockCommand(r.cfg.Secret.Repo))
		if r.cfg.Secret.CacheTheCache {
			if err := copyCacheOutVerbose(localCachePath, CacheMountPath); err != nil {
				log.Error(err, "cache copy-out failed during termination")
			}
		}
		return SignalExitCode
	}

	if createErr != nil {
		log.Error(createErr, "archive create failed", "archive", archiveName)
		return 1
	}

	if !r.cfg.Secret.Retention.IsZero() {
		if err := r.prune(ctx); err != nil {
			log.Error(err, "prune failed", "archivePrefix", r.cfg.Secret.ArchivePrefix)
			return 1
		}
	}

	if r.cfg.Secret.CacheTheCache {
		if err := copyCacheOut(localCachePath, CacheMountPath); err != nil {
			log.Error(err, "cache copy-out failed")
			return 1
		}
	}

	log.Info("backup completed", "archive", archiveName)
	return 0
}

// writeSSHKey materializes the key with owner-only permissions; env points
// the repository tool at it.
func (r *Runner) writeSSHKey() error {
	key := r.cfg.Secret.SSHKey
	if !strings.HasSuffix(key, "\n") {
		key += "\n"
	}
	if err := os.WriteFile(sshKeyPath, []byte(key), 0o600); err != nil {
		return fmt.Errorf("cannot write SSH key: %w", err)
	}
	return nil
}

func (r *Runner) env() []string {
	return append(os.Environ(),
		"BORG_PASSPHRASE="+r.cfg.Secret.Passphrase,
		"BORG_CACHE_DIR="+r.cfg.CacheDir,
		"BORG_RSH=ssh -i "+sshKeyPath+
			" -o StrictHostKeyChecking=no -o UserKnownHostsFile=/dev/null -o IdentitiesOnly=yes",
	)
}

// probeLock logs the repository lock state before the real write; the
// outcome never aborts the run, the create will contend on its own.
func (r *Runner) probeLock(ctx context.Context) {
	probeCtx, cancel := context.WithTimeout(ctx, lockProbeTimeout)
	defer cancel()

	cmd := exec.CommandContext(probeCtx, borg.BinaryName, borg.WithLockProbeCommand(r.cfg.Secret.Repo)...)
	cmd.Env = r.env()
	out, err := cmd.CombinedOutput()

	state := borg.ClassifyLockProbe(err, borg.ExitCode(err), string(out), probeCtx.Err() != nil)
	log.Info("repository lock state", "state", string(state))
}

// createArchive runs the archive create, initializing the repository and
// retrying exactly once when the endpoint has never been initialized.
func (r *Runner) createArchive(ctx context.Context, archiveName string) error {
	args := borg.CreateCommand(r.cfg.Secret.Repo, archiveName, r.cfg.DataPath, r.cfg.Secret.BorgFlags)

	stderr, err := r.runCreateChild(ctx, args)
	if err == nil {
		return nil
	}

	if !borg.IsUninitializedRepo(borg.ExitCode(err), stderr) {
		return err
	}

	log.Info("repository not initialized, initializing", "repo", r.cfg.Secret.Repo)
	if initErr := r.runBorg(ctx, borg.InitCommand(r.cfg.Secret.Repo)); initErr != nil {
		return fmt.Errorf("repository init failed: %w", initErr)
	}

	_, err = r.runCreateChild(ctx, args)
	return err
}

// runCreateChild starts the create as a child whose PID is retained for
// signal forwarding, streams its output, heartbeats while it runs, and
// returns the tail of stderr for exit classification.
func (r *Runner) runCreateChild(ctx context.Context, args []string) (string, error) {
	cmd := exec.CommandContext(ctx, borg.BinaryName, args...)
	cmd.Env = r.env()

	var stderrTail []string
	hbStop := make(chan struct{})

	err := execlog.RunStreamingNoWait(cmd, borg.BinaryName,
		func(c *exec.Cmd) {
			r.setChild(c.Process)
			go heartbeat(c.Process.Pid, hbStop)
		},
		nil,
		func(line string) {
			stderrTail = append(stderrTail, line)
			if len(stderrTail) > 20 {
				stderrTail = stderrTail[1:]
			}
		})

	close(hbStop)
	r.setChild(nil)
	return strings.Join(stderrTail, "\n"), err
}

func (r *Runner) prune(ctx context.Context) error {
	return r.runBorg(ctx, borg.PruneCommand(r.cfg.Secret.Repo, r.cfg.Secret.ArchivePrefix, r.cfg.Secret.Retention))
}

func (r *Runner) runBorg(ctx context.Context, args []string) error {
	cmd := exec.CommandContext(ctx, borg.BinaryName, args...)
	cmd.Env = r.env()
	return execlog.RunStreaming(cmd, borg.BinaryName)
}

func (r *Runner) setChild(p *os.Process) {
	r.childMu.Lock()
	defer r.childMu.Unlock()
	r.child = p
}

// stopChild forwards SIGINT so the repository tool writes a checkpoint,
// waits up to checkpointGrace, then kills it.
func (r *Runner) stopChild() {
	r.childMu.Lock()
	child := r.child
	r.childMu.Unlock()
	if child == nil {
		return
	}

	if err := child.Signal(syscall.SIGINT); err != nil {
		return
	}

	deadline := time.Now().Add(checkpointGrace)
	for time.Now().Before(deadline) {
		// signal 0 probes liveness without delivering anything
		if err := child.Signal(syscall.Signal(0)); err != nil {
			return
		}
		time.Sleep(250 * time.Millisecond)
	}

	log.Warning("child did not checkpoint in time, killing", "pid", child.Pid)
	_ = child.Kill()
}
