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
	"time"

	"gopkg.in/yaml.v3"
)

// backupSpecAlias avoids infinite recursion when UnmarshalYAML delegates to
// the default decoding of every field but Timeout/CloneBindTimeout.
type backupSpecAlias struct {
	Name              string   `yaml:"name"`
	PVC               string   `yaml:"pvc"`
	CloneStorageClass string   `yaml:"cloneStorageClass"`
	ArchivePrefix     string   `yaml:"archivePrefix,omitempty"`
	Timeout           string   `yaml:"timeout"`
	CloneBindTimeout  string   `yaml:"cloneBindTimeout"`
	BorgFlags         []string `yaml:"borgFlags,omitempty"`
	PreHooks          []Hook   `yaml:"preHooks,omitempty"`
	PostHooks         []Hook   `yaml:"postHooks,omitempty"`
}

// UnmarshalYAML accepts human-readable durations ("5m", "30s") for the two
// timeout fields, the way the rest of the bundle is written by operators.
func (b *BackupSpec) UnmarshalYAML(value *yaml.Node) error {
	var alias backupSpecAlias
	if err := value.Decode(&alias); err != nil {
		return err
	}

	timeout, err := parseDuration(alias.Timeout)
	if err != nil {
		return fmt.Errorf("backup %q: invalid timeout: %w", alias.Name, err)
	}
	cloneBindTimeout, err := parseDuration(alias.CloneBindTimeout)
	if err != nil {
		return fmt.Errorf("backup %q: invalid cloneBindTimeout: %w", alias.Name, err)
	}

	*b = BackupSpec{
		Name:              alias.Name,
		PVC:               alias.PVC,
		CloneStorageClass: alias.CloneStorageClass,
		ArchivePrefix:     alias.ArchivePrefix,
		Timeout:           timeout,
		CloneBindTimeout:  cloneBindTimeout,
		BorgFlags:         alias.BorgFlags,
		PreHooks:          alias.PreHooks,
		PostHooks:         alias.PostHooks,
	}
	return nil
}

func parseDuration(s string) (time.Duration, error) {
	if s == "" {
		return 0, nil
	}
	return time.ParseDuration(s)
}
