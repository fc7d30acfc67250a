/*
 * MIT License
 *
 * Copyright (c) 2020 Nicolas JUHEL
 *
 * Permission is hereby granted, free of charge, to any person obtaining a copy
 * of this software and associated documentation files (the "Software"), to deal
 * in the Software without restriction, including without limitation the rights
 * to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
 * copies of the Software, and to permit persons to whom the Software is
 * furnished to do so, subject to the following conditions:
 *
 * The above copyright notice and this permission notice shall be included in all
 * copies or substantial portions of the Software.
 *
 * THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
 * IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
 * FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
 * AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
 * LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
 * OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
 * SOFTWARE.
 *
 *
 */

// Command dracond is the server's entry point: parse flags, load
// server.conf, bind the acceptor, and run until a termination signal
// arrives.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

func main() {
	cmd := newRootCommand()
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	var (
		confPath   string
		pluginsDir string
		workers    int
		runAsUser  string
		runAsGroup string
		pidFile    string
	)

	cmd := &cobra.Command{
		Use:   "dracond",
		Short: "dracond runs the plugin-oriented HTTP/1.1 application server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), options{
				confPath:   confPath,
				pluginsDir: pluginsDir,
				workers:    workers,
				runAsUser:  runAsUser,
				runAsGroup: runAsGroup,
				pidFile:    pidFile,
			})
		},
	}

	flags := cmd.Flags()
	flags.StringVarP(&confPath, "conf", "c", "/etc/dracond", "directory containing server.conf")
	flags.StringVarP(&pluginsDir, "plugins-dir", "d", "", "directory plugins may read their own configuration from")
	flags.IntVarP(&workers, "workers", "w", 0, "number of reactor goroutines (0 = runtime.NumCPU)")
	flags.StringVarP(&runAsUser, "user", "u", "", "drop privileges to this user after binding listeners")
	flags.StringVarP(&runAsGroup, "group", "g", "", "drop privileges to this group after binding listeners")
	flags.StringVar(&pidFile, "pid", "", "write the process id to this file")

	ctx, cancel := signalContext()
	cmd.SetContext(ctx)
	cmd.PersistentPostRun = func(*cobra.Command, []string) { cancel() }

	return cmd
}

// signalContext returns a context cancelled on SIGINT/SIGTERM, the
// graceful-shutdown trigger. SIGPIPE is ignored outright, matching a
// server that expects peers to close connections at any time. SIGSEGV and
// SIGFPE are not intercepted: those are synchronous faults the Go runtime
// itself turns into a fatal crash report, and os/signal explicitly
// disclaims reliable delivery for them.
func signalContext() (context.Context, context.CancelFunc) {
	signal.Ignore(syscall.SIGPIPE)

	ctx, cancel := context.WithCancel(context.Background())

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-quit
		cancel()
	}()

	return ctx, cancel
}
