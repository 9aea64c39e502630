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

// Package execlog runs external commands streaming their output into the
// structured logger line by line, instead of buffering it all in memory.
package execlog

import (
	"bufio"
	"io"
	"os/exec"

	"github.com/go-logr/logr"

	"github.com/vsbackup/vsbackup/pkg/management/log"
)

// LogWriter is an io.Writer that forwards each write as a log line
type LogWriter struct {
	Logger logr.Logger
}

// Write implements io.Writer. A nil or empty payload is a no-op: exec.Cmd
// may invoke Write with the trailing empty chunk.
func (w LogWriter) Write(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	w.Logger.Info(string(p))
	return len(p), nil
}

// RunStreaming executes cmd, piping stdout/stderr line-by-line into the
// process logger prefixed with commandName, and waits for completion.
func RunStreaming(cmd *exec.Cmd, commandName string) error {
	return RunStreamingNoWait(cmd, commandName, nil, nil, nil)
}

// RunStreamingNoWait is like RunStreaming but invokes onStart with the
// started process (useful to capture the PID for signal forwarding) and
// onStdout/onStderr for each line in addition to logging it.
func RunStreamingNoWait(
	cmd *exec.Cmd,
	commandName string,
	onStart func(*exec.Cmd),
	onStdout, onStderr func(string),
) error {
	contextLogger := log.WithName(commandName)

	stdoutPipe, err := cmd.StdoutPipe()
	if err != nil {
		return err
	}
	stderrPipe, err := cmd.StderrPipe()
	if err != nil {
		return err
	}

	if err := cmd.Start(); err != nil {
		return err
	}
	if onStart != nil {
		onStart(cmd)
	}

	done := make(chan struct{}, 2)
	go streamLines(stdoutPipe, contextLogger.WithValues("pipe", "stdout"), onStdout, done)
	go streamLines(stderrPipe, contextLogger.WithValues("pipe", "stderr"), onStderr, done)
	<-done
	<-done

	return cmd.Wait()
}

func streamLines(r io.Reader, logger logr.Logger, onLine func(string), done chan<- struct{}) {
	defer func() { done <- struct{}{} }()
	scanner := bufio.NewScanner(r)
	buf := make([]byte, 0, 64*1024)
	scanner.Buffer(buf, 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		logger.Info(line)
		if onLine != nil {
			onLine(line)
		}
	}
}
