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

/*
The manager command is the single entrypoint: the scheduled controllers
and the in-pod backup runner are all subcommands of this binary.
*/
package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/vsbackup/vsbackup/internal/cmd/manager/backupcontroller"
	"github.com/vsbackup/vsbackup/internal/cmd/manager/backuprunner"
	"github.com/vsbackup/vsbackup/internal/cmd/manager/snapshotcontroller"
	"github.com/vsbackup/vsbackup/pkg/management/log"

	_ "k8s.io/client-go/plugin/pkg/client/auth"
)

func main() {
	logFlags := &log.Flags{}

	cmd := &cobra.Command{
		Use:          "manager [cmd]",
		SilenceUsage: true,
		PersistentPreRun: func(_ *cobra.Command, _ []string) {
			logFlags.ConfigureLogging()
		},
	}

	logFlags.AddFlags(cmd.PersistentFlags())

	cmd.AddCommand(snapshotcontroller.NewCmd())
	cmd.AddCommand(backupcontroller.NewCmd())
	cmd.AddCommand(backuprunner.NewCmd())

	if err := cmd.Execute(); err != nil {
		log.Error(err, "command failed")
		os.Exit(1)
	}
}
