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

package log

import (
	"github.com/spf13/pflag"
	"k8s.io/klog/v2"
	ctrl "sigs.k8s.io/controller-runtime"
)

// Flags binds the logging configuration to a command's flag set
type Flags struct {
	logLevel       string
	logDestination string
}

// AddFlags registers the logging flags
func (f *Flags) AddFlags(flags *pflag.FlagSet) {
	flags.StringVar(&f.logLevel, "log-level", DefaultLevel,
		"the desired log level, one of error, warning, info, debug and trace")
	flags.StringVar(&f.logDestination, "log-destination", "",
		"where the log stream will be written (defaults to stderr)")
}

// ConfigureLogging builds the process logger from the flags and installs
// it everywhere a log line can originate: this package, the
// controller-runtime machinery, and the client-go libraries logging
// through klog.
func (f *Flags) ConfigureLogging() {
	logger := NewZapLogger(f.logLevel, f.logDestination)
	if !LevelValid(f.logLevel) {
		logger.Info("Invalid log level, defaulting",
			"level", f.logLevel, "default", DefaultLevel)
	}

	ctrl.SetLogger(logger)
	klog.SetLogger(logger)
	SetLogger(logger)
}
