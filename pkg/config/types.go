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

// Package config loads and validates the per-application configuration
// bundle that both controllers are started with.
package config

import "time"

// Retention describes a tiered keep-policy: any count may be zero
type Retention struct {
	Hourly  int `yaml:"hourly"`
	Daily   int `yaml:"daily"`
	Weekly  int `yaml:"weekly"`
	Monthly int `yaml:"monthly"`
}

// IsZero reports whether every tier is zero. The runner skips its
// repository prune under such a policy.
func (r Retention) IsZero() bool {
	return r.Hourly == 0 && r.Daily == 0 && r.Weekly == 0 && r.Monthly == 0
}

// Hook is a single pre/post command run inside a target pod
type Hook struct {
	Pod       string   `yaml:"pod"`
	Container string   `yaml:"container,omitempty"`
	Command   []string `yaml:"command"`
	Parallel  bool     `yaml:"parallel,omitempty"`
}

// SnapshotSpec configures one volume the snapshot controller manages
type SnapshotSpec struct {
	PVC           string   `yaml:"pvc"`
	SnapshotClass string   `yaml:"snapshotClass"`
	ArchivePrefix string   `yaml:"archivePrefix,omitempty"`
	Retention     Retention `yaml:"retention"`
	PreHooks      []Hook   `yaml:"preHooks,omitempty"`
	PostHooks     []Hook   `yaml:"postHooks,omitempty"`
}

// BackupSpec configures one volume the backup controller materializes and
// ships to the repository
type BackupSpec struct {
	Name              string        `yaml:"name"`
	PVC               string        `yaml:"pvc"`
	CloneStorageClass string        `yaml:"cloneStorageClass"`
	ArchivePrefix     string        `yaml:"archivePrefix,omitempty"`
	Timeout           time.Duration `yaml:"timeout"`
	CloneBindTimeout  time.Duration `yaml:"cloneBindTimeout"`
	BorgFlags         []string      `yaml:"borgFlags,omitempty"`
	PreHooks          []Hook        `yaml:"preHooks,omitempty"`
	PostHooks         []Hook        `yaml:"postHooks,omitempty"`
}

// CacheConfig configures the shared rsync-accelerated repository cache
type CacheConfig struct {
	PVCName      string `yaml:"pvcName"`
	CacheTheCache bool  `yaml:"cacheTheCache"`
}

// RepoConfig is the repository endpoint the backup runner writes to
type RepoConfig struct {
	Endpoint   string `yaml:"endpoint"`
	Passphrase string `yaml:"passphrase"`
	SSHKey     string `yaml:"sshKey"`
}

// BackupSection is the "backup" block of the configuration bundle
type BackupSection struct {
	Specs      []BackupSpec `yaml:"specs"`
	Cache      CacheConfig  `yaml:"cache"`
	Repo       RepoConfig   `yaml:"repo"`
	PodImage   string       `yaml:"podImage"`
	Privileged *bool        `yaml:"privileged,omitempty"`
	Retention  Retention    `yaml:"retention"`
}

// IsPrivileged returns the effective privileged default (true) unless
// explicitly overridden
func (b BackupSection) IsPrivileged() bool {
	if b.Privileged == nil {
		return true
	}
	return *b.Privileged
}

// AppConfig is the full configuration bundle for one managed application
type AppConfig struct {
	ReleaseName string         `yaml:"releaseName"`
	AppName     string         `yaml:"appName"`
	Namespace   string         `yaml:"namespace"`
	Schedule    string         `yaml:"schedule"`
	Snapshot    []SnapshotSpec `yaml:"snapshot"`
	Backup      BackupSection  `yaml:"backup"`
}

// ArchivePrefix returns the effective archive-name prefix for a backup spec:
// the explicit override, or "{appName}-{backupName}" by default.
func (c AppConfig) ArchivePrefix(spec BackupSpec) string {
	if spec.ArchivePrefix != "" {
		return spec.ArchivePrefix
	}
	return c.AppName + "-" + spec.Name
}

// SnapshotArchivePrefix returns the effective prefix used to name and scope
// retention of volume snapshots for a SnapshotSpec.
func (c AppConfig) SnapshotArchivePrefix(spec SnapshotSpec) string {
	if spec.ArchivePrefix != "" {
		return spec.ArchivePrefix
	}
	return spec.PVC
}
