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

package config

import (
	"fmt"
	"os"

	"github.com/robfig/cron/v3"
	"github.com/thoas/go-funk"
	"gopkg.in/yaml.v3"
)

// ConfigError marks a problem detected while loading or validating the
// configuration bundle: these are fatal at startup, never per-spec.
type ConfigError struct {
	Msg string
}

func (e *ConfigError) Error() string {
	return e.Msg
}

func configErrorf(format string, args ...interface{}) error {
	return &ConfigError{Msg: fmt.Sprintf(format, args...)}
}

// Load reads and validates an AppConfig bundle from a YAML file
func Load(path string) (*AppConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, configErrorf("cannot read configuration file %q: %v", path, err)
	}

	var cfg AppConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, configErrorf("cannot parse configuration file %q: %v", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks the fields required regardless of which controller reads
// this bundle
func (c *AppConfig) Validate() error {
	if c.ReleaseName == "" {
		return configErrorf("releaseName is required")
	}
	if c.AppName == "" {
		return configErrorf("appName is required")
	}
	if c.Namespace == "" {
		return configErrorf("namespace is required")
	}
	if c.Schedule != "" {
		if _, err := cron.ParseStandard(c.Schedule); err != nil {
			return configErrorf("invalid schedule %q: %v", c.Schedule, err)
		}
	}

	if err := c.validateNoDuplicatePVCs(); err != nil {
		return err
	}

	return nil
}

// validateNoDuplicatePVCs rejects a bundle where two specs of the same
// controller run target the same source PVC: the second spec would race
// the first for snapshots of the same data. A PVC appearing in both the
// snapshot and the backup section is the normal pipeline and stays legal.
func (c *AppConfig) validateNoDuplicatePVCs() error {
	snapSeen := make(map[string]bool)
	for _, s := range c.Snapshot {
		if snapSeen[s.PVC] {
			return configErrorf("pvc %q is targeted by two snapshot specs", s.PVC)
		}
		snapSeen[s.PVC] = true
	}
	backupSeen := make(map[string]string)
	for _, b := range c.Backup.Specs {
		if owner, ok := backupSeen[b.PVC]; ok {
			return configErrorf("pvc %q is targeted by both backup specs %q and %q", b.PVC, owner, b.Name)
		}
		backupSeen[b.PVC] = b.Name
	}
	return nil
}

// ValidateForBackup applies the extra guards the backup controller requires
// beyond the common validation
func (c *AppConfig) ValidateForBackup() error {
	if c.Backup.Cache.PVCName == "" {
		return configErrorf("backup.cache.pvcName is required")
	}
	if len(c.Backup.Specs) == 0 {
		return configErrorf("backup.specs must not be empty")
	}
	if c.Backup.Repo.Endpoint == "" {
		return configErrorf("backup.repo.endpoint is required")
	}
	if c.Backup.Repo.Passphrase == "" {
		return configErrorf("backup.repo.passphrase is required")
	}
	if c.Backup.Repo.SSHKey == "" {
		return configErrorf("backup.repo.sshKey is required")
	}

	names := funk.Map(c.Backup.Specs, func(b BackupSpec) string { return b.Name }).([]string)
	if len(funk.UniqString(names)) != len(names) {
		return configErrorf("backup.specs contains duplicate names")
	}

	for _, b := range c.Backup.Specs {
		if b.Name == "" {
			return configErrorf("every backup spec needs a name")
		}
		if b.PVC == "" {
			return configErrorf("backup %q: pvc is required", b.Name)
		}
		if b.CloneStorageClass == "" {
			return configErrorf("backup %q: cloneStorageClass is required", b.Name)
		}
		if b.Timeout <= 0 {
			return configErrorf("backup %q: timeout must be positive", b.Name)
		}
	}

	return nil
}

// ValidateForSnapshot applies the extra guards the snapshot controller
// requires
func (c *AppConfig) ValidateForSnapshot() error {
	if len(c.Snapshot) == 0 {
		return configErrorf("snapshot list must not be empty")
	}
	return nil
}
