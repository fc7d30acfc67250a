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

// Package acceptor implements the listener/dispatch half of §4.2: it binds
// up to four listeners (plain/TLS crossed with IPv4/IPv6, any of which may
// be omitted), accepts connections in non-blocking fashion driven by a
// reactor pool, enforces a per-peer-IP connection cap, and hands each
// accepted connection to the least-loaded reactor as a new session.
package acceptor

import (
	"context"
	"crypto/tls"
	"net"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sys/unix"

	"github.com/nabbar/golib/certificates"

	"github.com/nabbar/dracon/reactor"
	"github.com/nabbar/dracon/session"
	"github.com/nabbar/dracon/stream"
)

// Config describes the listeners to bind and the limits to enforce. Any of
// the four addresses may be left empty to omit that listener.
type Config struct {
	ListenIPv4Plain string
	ListenIPv4TLS   string
	ListenIPv6Plain string
	ListenIPv6TLS   string

	// Backlog is advisory only: net.Listen fixes the kernel backlog to
	// SOMAXCONN and offers no portable override, so this value is carried
	// for configuration round-tripping and future raw-socket listeners.
	Backlog           int
	MaxConnPerIP      int
	KeepAlive         time.Duration
	SocketReadSize    int
	SocketWriteSize   int
	TLS               certificates.TLSConfig
	TLSServerName     string
	Dispatch          session.Dispatcher
}

var nextID uint64

func allocID() uint64 {
	return atomic.AddUint64(&nextID, 1)
}

// boundListener pairs a bound net.Listener with whether it terminates TLS.
type boundListener struct {
	ln     net.Listener
	fd     int
	secure bool
}

// Acceptor owns the bound listeners, the reactor pool sessions are spread
// across, and the per-peer-IP counters.
type Acceptor struct {
	cfg      Config
	reactors []*reactor.Reactor

	mu        sync.Mutex
	listeners []*boundListener
	running   bool

	peerMu    sync.Mutex
	peerCount map[string]int

	startedAt    time.Time
	served       uint64
	peak         int64
}

// New creates an Acceptor that will spread accepted sessions across pool,
// a reactor pool built and started by the caller.
func New(cfg Config, pool []*reactor.Reactor) (*Acceptor, error) {
	if len(pool) == 0 {
		return nil, ErrorNoReactor.Error()
	}

	return &Acceptor{
		cfg:       cfg,
		reactors:  pool,
		peerCount: make(map[string]int),
	}, nil
}

// IsRunning reports whether listeners are currently bound and accepting.
func (a *Acceptor) IsRunning() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.running
}

// Start binds every configured listener and registers each with the
// least-loaded reactor in the pool for accept readiness.
func (a *Acceptor) Start() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.running {
		return ErrorAlreadyRunning.Error()
	}

	specs := []struct {
		addr   string
		secure bool
	}{
		{a.cfg.ListenIPv4Plain, false},
		{a.cfg.ListenIPv6Plain, false},
		{a.cfg.ListenIPv4TLS, true},
		{a.cfg.ListenIPv6TLS, true},
	}

	var bound []*boundListener

	for _, sp := range specs {
		if sp.addr == "" {
			continue
		}

		bl, err := a.bind(sp.addr, sp.secure)
		if err != nil {
			for _, b := range bound {
				_ = b.ln.Close()
			}
			return err
		}

		bound = append(bound, bl)
	}

	if len(bound) == 0 {
		return ErrorNoListener.Error()
	}

	for _, bl := range bound {
		r := a.leastLoaded()
		lp := &listenerPollable{id: allocID(), a: a, bl: bl, reactor: r}
		if err := r.Register(lp, reactor.InterestReadable); err != nil {
			for _, b := range bound {
				_ = b.ln.Close()
			}
			return err
		}
	}

	a.listeners = bound
	a.running = true
	if a.startedAt.IsZero() {
		a.startedAt = time.Now()
	}

	return nil
}

// Stop closes every bound listener; sessions already accepted continue
// running to completion under their reactor.
func (a *Acceptor) Stop() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.running {
		return ErrorNotRunning.Error()
	}

	for _, bl := range a.listeners {
		_ = bl.ln.Close()
	}

	a.listeners = nil
	a.running = false

	return nil
}

// Restart stops and re-binds the acceptor, e.g. after a configuration
// reload changes the listen addresses.
func (a *Acceptor) Restart(cfg Config) error {
	if a.IsRunning() {
		if err := a.Stop(); err != nil {
			return err
		}
	}

	a.mu.Lock()
	a.cfg = cfg
	a.mu.Unlock()

	return a.Start()
}

func (a *Acceptor) bind(addr string, secure bool) (*boundListener, error) {
	lc := net.ListenConfig{}
	ln, err := lc.Listen(context.Background(), "tcp", addr)
	if err != nil {
		return nil, ErrorListen.Error(err)
	}

	tl, ok := ln.(*net.TCPListener)
	if !ok {
		_ = ln.Close()
		return nil, ErrorListen.Error()
	}

	file, err := tl.File()
	if err != nil {
		_ = ln.Close()
		return nil, ErrorListen.Error(err)
	}

	fd := int(file.Fd())
	if err := unix.SetNonblock(fd, true); err != nil {
		_ = ln.Close()
		return nil, ErrorListen.Error(err)
	}

	return &boundListener{ln: ln, fd: fd, secure: secure}, nil
}

// leastLoaded picks the reactor currently tracking the fewest active
// sessions, the load-balancing half of §4.2's reactor-pool design.
func (a *Acceptor) leastLoaded() *reactor.Reactor {
	best := a.reactors[0]
	bestN := best.ActiveSessions()

	for _, r := range a.reactors[1:] {
		if n := r.ActiveSessions(); n < bestN {
			best, bestN = r, n
		}
	}

	return best
}

// ActiveSessions sums the live session count across every reactor in the
// pool, the point-in-time figure the status plugin reports.
func (a *Acceptor) ActiveSessions() int {
	total := 0
	for _, r := range a.reactors {
		total += r.ActiveSessions()
	}
	return total
}

// trackPeak updates the running peak if the current active total exceeds
// it; called on every accept, matching getodac::Server updating its peak
// "slowly" as sessions come and go rather than on a timer.
func (a *Acceptor) trackPeak() {
	active := int64(a.ActiveSessions())
	for {
		cur := atomic.LoadInt64(&a.peak)
		if active <= cur {
			return
		}
		if atomic.CompareAndSwapInt64(&a.peak, cur, active) {
			return
		}
	}
}

// PeakSessions returns the highest ActiveSessions total observed so far.
func (a *Acceptor) PeakSessions() int64 {
	active := int64(a.ActiveSessions())
	peak := atomic.LoadInt64(&a.peak)
	if active > peak {
		return active
	}
	return peak
}

// ServedSessions returns the total number of sessions ever accepted.
func (a *Acceptor) ServedSessions() uint64 {
	return atomic.LoadUint64(&a.served)
}

// Uptime returns the time elapsed since the acceptor first started
// listening, or zero if it has never started.
func (a *Acceptor) Uptime() time.Duration {
	a.mu.Lock()
	started := a.startedAt
	a.mu.Unlock()

	if started.IsZero() {
		return 0
	}
	return time.Since(started)
}

// listenerPollable adapts a bound listener into a reactor.Pollable: each
// readiness event accepts every pending connection until EAGAIN.
type listenerPollable struct {
	id      uint64
	a       *Acceptor
	bl      *boundListener
	reactor *reactor.Reactor
}

func (l *listenerPollable) FD() int       { return l.bl.fd }
func (l *listenerPollable) ID() uint64    { return l.id }
func (l *listenerPollable) Order() uint64 { return 0 }

func (l *listenerPollable) OnWritable()          {}
func (l *listenerPollable) OnWoken()             {}
func (l *listenerPollable) OnError()             {}
func (l *listenerPollable) NextTimeout() time.Time { return time.Time{} }
func (l *listenerPollable) OnTimeout()            {}

func (l *listenerPollable) OnReadable() {
	for {
		nfd, sa, err := unix.Accept(l.bl.fd)
		if err != nil {
			if err == unix.EAGAIN {
				return
			}
			return
		}

		l.accept(nfd, sa)
	}
}

func (l *listenerPollable) accept(nfd int, sa unix.Sockaddr) {
	peer := peerIP(sa)

	ok, order := l.a.admitPeer(peer)
	if !ok {
		_ = unix.Close(nfd)
		return
	}

	if err := unix.SetNonblock(nfd, true); err != nil {
		_ = unix.Close(nfd)
		l.a.releasePeer(peer)
		return
	}

	conn, err := net.FileConn(os.NewFile(uintptr(nfd), ""))
	if err != nil {
		_ = unix.Close(nfd)
		l.a.releasePeer(peer)
		return
	}

	target := l.a.leastLoaded()

	id := allocID()
	sess := session.New(id, order, nfd, target, l.a.cfg.Dispatch, l.a.cfg.KeepAlive, peer)

	atomic.AddUint64(&l.a.served, 1)
	l.a.trackPeak()

	var str stream.Stream
	if l.bl.secure && l.a.cfg.TLS != nil {
		tlsCfg := l.a.cfg.TLS.TlsConfig(l.a.cfg.TLSServerName)
		str = l.buildTLS(conn, nfd, sess, tlsCfg)
	} else {
		str = stream.NewPlain(conn, nfd, sess, sess.Wakeupper(), l.a.cfg.SocketReadSize, l.a.cfg.SocketWriteSize)
	}

	sess.AttachStream(str)

	interest := reactor.InterestReadable
	if err := target.Register(sess, interest); err != nil {
		_ = conn.Close()
		l.a.releasePeer(peer)
		return
	}

	go func() {
		defer l.a.releasePeer(peer)
		defer func() {
			// A panic inside a handler or the protocol stack must not take
			// down the whole process; Run's own deferred Close still fires
			// via the usual unwind before this recover observes it.
			_ = recover()
		}()
		sess.Run()
	}()
}

func (l *listenerPollable) buildTLS(conn net.Conn, fd int, sess *session.Session, cfg *tls.Config) stream.Stream {
	return stream.NewTLS(conn, cfg, sess, sess.Wakeupper(), l.a.cfg.SocketReadSize, l.a.cfg.SocketWriteSize)
}

// admitPeer applies the per-peer-IP connection cap (0 means unlimited) and
// returns the live per-peer connection count after admission, used as the
// new session's workload-balancing order (getodac::Server::newSessionOrder's
// equivalent: the Nth live connection from this address).
func (a *Acceptor) admitPeer(peer string) (bool, uint64) {
	a.peerMu.Lock()
	defer a.peerMu.Unlock()

	if a.cfg.MaxConnPerIP > 0 && a.peerCount[peer] >= a.cfg.MaxConnPerIP {
		return false, 0
	}

	a.peerCount[peer]++
	return true, uint64(a.peerCount[peer])
}

func (a *Acceptor) releasePeer(peer string) {
	a.peerMu.Lock()
	defer a.peerMu.Unlock()

	if n, ok := a.peerCount[peer]; ok {
		if n <= 1 {
			delete(a.peerCount, peer)
		} else {
			a.peerCount[peer] = n - 1
		}
	}
}

func peerIP(sa unix.Sockaddr) string {
	switch addr := sa.(type) {
	case *unix.SockaddrInet4:
		return net.IP(addr.Addr[:]).String()
	case *unix.SockaddrInet6:
		return net.IP(addr.Addr[:]).String()
	default:
		return ""
	}
}
