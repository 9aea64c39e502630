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

// Package backupcontroller implements the backup-controller subcommand
package backupcontroller

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/vsbackup/vsbackup/pkg/backupctl"
	"github.com/vsbackup/vsbackup/pkg/cluster"
	"github.com/vsbackup/vsbackup/pkg/config"
	"github.com/vsbackup/vsbackup/pkg/management/log"
	"github.com/vsbackup/vsbackup/pkg/metrics"
	"github.com/vsbackup/vsbackup/pkg/tracked"
)

const signalExitCode = 143

// NewCmd creates the backup-controller command
func NewCmd() *cobra.Command {
	var configPath string
	var kubeconfigPath string
	var metricsAddr string
	var testMode bool

	cmd := &cobra.Command{
		Use:           "backup-controller",
		Short:         "Materialize the latest snapshots into clone volumes and ship them to the repository",
		SilenceErrors: true,
		SilenceUsage:  true,
		RunE: func(cobraCmd *cobra.Command, _ []string) error {
			contextLog := log.WithName("backup-controller")
			ctx := log.IntoContext(cobraCmd.Context(), contextLog)

			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			if err := cfg.ValidateForBackup(); err != nil {
				return err
			}

			if testMode {
				contextLog.Info("configuration valid, exiting (test mode)")
				return nil
			}

			client, err := cluster.NewClient(kubeconfigPath)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(ctx,
				syscall.SIGTERM, syscall.SIGINT, syscall.SIGHUP)
			defer stop()

			m := metrics.NewMetrics()
			m.Serve(ctx, metricsAddr)

			controller := backupctl.NewController(client, cfg, tracked.NewRegistry(), m)
			result, err := controller.Run(ctx)
			if err != nil {
				return err
			}
			result.Print(os.Stdout)

			if ctx.Err() != nil {
				os.Exit(signalExitCode)
			}
			os.Exit(result.ExitCode())
			return nil
		},
	}

	cmd.Flags().StringVar(&configPath, "config", "",
		"path of the application configuration bundle")
	cmd.Flags().StringVar(&kubeconfigPath, "kubeconfig", "",
		"path of the kubeconfig to use when not running in-cluster")
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "",
		"address to expose Prometheus metrics on for the duration of the run")
	cmd.Flags().BoolVar(&testMode, "test", false,
		"validate the configuration and exit without touching the cluster")
	_ = cmd.MarkFlagRequired("config")

	return cmd
}
