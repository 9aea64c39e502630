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

package borg

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/vsbackup/vsbackup/pkg/config"
)

// RunnerConfig is the payload the backup controller mints into the
// ephemeral per-volume secret and the runner reads back at startup.
type RunnerConfig struct {
	Repo           string           `yaml:"repo"`
	Passphrase     string           `yaml:"passphrase"`
	SSHKey         string           `yaml:"sshKey"`
	ArchivePrefix  string           `yaml:"archivePrefix"`
	TimeoutSeconds int              `yaml:"timeoutSeconds"`
	BorgFlags      []string         `yaml:"borgFlags,omitempty"`
	Retention      config.Retention `yaml:"retention"`
	CacheTheCache  bool             `yaml:"cacheTheCache"`
}

// Validate checks the fields the runner cannot work without
func (c *RunnerConfig) Validate() error {
	if c.Repo == "" {
		return fmt.Errorf("runner configuration: repo is required")
	}
	if c.Passphrase == "" {
		return fmt.Errorf("runner configuration: passphrase is required")
	}
	if c.SSHKey == "" {
		return fmt.Errorf("runner configuration: sshKey is required")
	}
	if c.ArchivePrefix == "" {
		return fmt.Errorf("runner configuration: archivePrefix is required")
	}
	return nil
}

// Marshal serializes the payload for the secret value
func (c *RunnerConfig) Marshal() ([]byte, error) {
	return yaml.Marshal(c)
}

// LoadRunnerConfig reads and validates the payload from the mounted secret
func LoadRunnerConfig(path string) (*RunnerConfig, error) {
	data, err := os.ReadFile(path) // #nosec G304 -- fixed mount path
	if err != nil {
		return nil, fmt.Errorf("cannot read runner configuration %q: %w", path, err)
	}

	var cfg RunnerConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("cannot parse runner configuration %q: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}
