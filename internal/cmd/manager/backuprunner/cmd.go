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

// Package backuprunner implements the backup-runner subcommand, executed
// inside the per-volume runner pod.
package backuprunner

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/vsbackup/vsbackup/pkg/management/log"
	"github.com/vsbackup/vsbackup/pkg/management/runner"
)

// NewCmd creates the backup-runner command
func NewCmd() *cobra.Command {
	var configPath string
	var testMode bool

	cmd := &cobra.Command{
		Use:           "backup-runner",
		Short:         "Write one clone volume into the backup repository",
		SilenceErrors: true,
		SilenceUsage:  true,
		RunE: func(cobraCmd *cobra.Command, _ []string) error {
			contextLog := log.WithName("backup-runner")
			ctx := log.IntoContext(cobraCmd.Context(), contextLog)

			// signal handling stays inside the runner: it is PID 1 in its
			// pod and must forward SIGINT to the repository child itself,
			// so the context must not be cancelled by the signal
			r, err := runner.New(configPath)
			if err != nil {
				return err
			}

			if testMode {
				contextLog.Info("configuration valid, exiting (test mode)")
				return nil
			}

			os.Exit(r.Run(ctx))
			return nil
		},
	}

	cmd.Flags().StringVar(&configPath, "config", runner.ConfigMountPath,
		"path of the mounted runner configuration")
	cmd.Flags().BoolVar(&testMode, "test", false,
		"validate the configuration and exit without writing to the repository")

	return cmd
}
