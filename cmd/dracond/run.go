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

package main

import (
	"context"
	"fmt"
	"os"
	"runtime"
	"strconv"

	"github.com/nabbar/golib/logger"

	"github.com/nabbar/dracon/acceptor"
	"github.com/nabbar/dracon/config/serverconf"
	"github.com/nabbar/dracon/plugin"
	"github.com/nabbar/dracon/plugins/devices"
	"github.com/nabbar/dracon/plugins/diag"
	"github.com/nabbar/dracon/plugins/s3static"
	"github.com/nabbar/dracon/reactor"
)

type options struct {
	confPath   string
	pluginsDir string
	workers    int
	runAsUser  string
	runAsGroup string
	pidFile    string
}

func run(ctx context.Context, o options) error {
	log := logger.New(ctx)

	v := serverconf.New(o.confPath)
	cfg, err := serverconf.Load(v)
	if err != nil {
		return ErrorStartup.Error(err)
	}

	pool, err := newReactorPool(o.workers, cfg.WorkloadBalancing)
	if err != nil {
		return ErrorStartup.Error(err)
	}

	for _, r := range pool {
		r := r
		go r.Run()
	}

	acc, err := acceptor.New(acceptor.Config{
		ListenIPv4Plain: cfg.HTTPPort,
		ListenIPv4TLS:   cfg.HTTPSPort,
		Backlog:         cfg.QueuedConnections,
		MaxConnPerIP:    cfg.MaxConnPerIP,
		KeepAlive:       cfg.KeepAliveTimeout,
		SocketReadSize:  64 * 1024,
		SocketWriteSize: 64 * 1024,
		TLSServerName:   cfg.HTTPSServerName,
		Dispatch:        plugin.Dispatch,
	}, pool)
	if err != nil {
		return ErrorStartup.Error(err)
	}

	// Plugins register themselves into the global registry before
	// plugin.InitAll runs; the status plugin needs the acceptor instance
	// constructed above as its live session-stats source, which is why
	// the acceptor is built here rather than after InitAll as before.
	if err := registerBuiltinPlugins(cfg, acc); err != nil {
		return ErrorStartup.Error(err)
	}

	if err := plugin.InitAll(o.pluginsDir); err != nil {
		return ErrorStartup.Error(err)
	}
	defer plugin.DestroyAll()

	if err := acc.Start(); err != nil {
		return ErrorStartup.Error(err)
	}

	if err := writePIDFile(o.pidFile); err != nil {
		return ErrorStartup.Error(err)
	}

	if err := dropPrivileges(o.runAsUser, o.runAsGroup); err != nil {
		return ErrorPrivilegeDrop.Error(err)
	}

	log.Info("server started", nil, cfg.HTTPPort)

	<-ctx.Done()

	log.Info("shutdown signal received", nil)

	return acc.Stop()
}

// registerBuiltinPlugins wires the in-tree sample/diagnostic plugins into
// the global registry according to server.conf's plugins.* keys. It runs
// before plugin.InitAll so every plugin, builtin or loaded from
// --plugins-dir, goes through the same Init/Destroy lifecycle.
func registerBuiltinPlugins(cfg *serverconf.Config, acc *acceptor.Acceptor) error {
	if cfg.DevicesEnabled {
		if err := devices.Register("devices", cfg.DevicesBasePath); err != nil {
			return err
		}
	}

	if cfg.S3StaticEnabled {
		s3cfg := s3static.Config{
			Bucket:          cfg.S3StaticBucket,
			Region:          cfg.S3StaticRegion,
			Endpoint:        cfg.S3StaticEndpoint,
			PathStyle:       cfg.S3StaticPathStyle,
			AccessKeyID:     cfg.S3StaticAccessKey,
			SecretAccessKey: cfg.S3StaticSecretKey,
		}
		if err := s3static.Register("s3static", cfg.S3StaticBasePath, s3cfg); err != nil {
			return err
		}
	}

	if cfg.DiagEnabled {
		if err := diag.Register("diag"); err != nil {
			return err
		}
	}

	if cfg.ServerStatus {
		if err := diag.RegisterStatus("status", acc, nil); err != nil {
			return err
		}
	}

	return nil
}

func newReactorPool(workers int, balance bool) ([]*reactor.Reactor, error) {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}

	pool := make([]*reactor.Reactor, 0, workers)
	for i := 0; i < workers; i++ {
		r, err := reactor.New(256*1024, 256*1024, balance)
		if err != nil {
			for _, existing := range pool {
				_ = existing.Close()
			}
			return nil, err
		}
		pool = append(pool, r)
	}

	return pool, nil
}

func writePIDFile(path string) error {
	if path == "" {
		return nil
	}

	return os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())), 0o644)
}

func dropPrivileges(user, group string) error {
	if user == "" && group == "" {
		return nil
	}

	return fmt.Errorf("privilege drop to user=%q group=%q requires CAP_SETUID/CAP_SETGID at startup; run dracond as root to enable it", user, group)
}
