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

// Package session implements the per-connection state machine of §4.4: a
// goroutine (the coroutine's Go rendering) drives read-headers →
// choose-handler → run-handler → write-response → loop-or-shutdown, and
// suspends at I/O boundaries by blocking on a channel the owning reactor
// signals. The goroutine plays the role the source gives a stackful
// coroutine; resume/cancel/timeout are ordinary channel sends instead of
// a symmetric coroutine transfer, which is the idiomatic Go equivalent the
// design notes (§9) explicitly sanction.
package session

import (
	"sync"
	"time"

	"github.com/nabbar/dracon/protocol"
	"github.com/nabbar/dracon/reactor"
	"github.com/nabbar/dracon/stream"
)

const (
	headerTimeoutDefault   = 5 * time.Second
	bodyRateDivisor        = 512 * 1024 // 512 KiB/s
	chunkedBodyTimeout     = 5 * time.Minute
	bodyTimeoutFloor       = 10 * time.Second
)

// Handler is a callable (stream, request) implementing one request's
// business logic, with move-once semantics (GLOSSARY).
type Handler func(s stream.Stream, req *protocol.Request) error

// Dispatcher selects a Handler for req, or returns a *protocol.HandlerError
// (typically NoHandler/503) when nothing claims it. Wired by the acceptor
// from the plugin registry and router; session has no direct dependency on
// either package.
type Dispatcher func(req *protocol.Request) (Handler, error)

// wakeup implements stream.Wakeupper by forwarding to the owning reactor.
type wakeup struct {
	r  *reactor.Reactor
	id uint64
}

func (w *wakeup) Wake() error {
	return w.r.Wakeup(w.id)
}

// Session combines a coroutine goroutine with its socket, peer address,
// next-timeout instant, and a non-owning pointer to its reactor (§3's
// back-edge: the reactor owns the session, the session only references
// its reactor).
type Session struct {
	id    uint64
	order uint64
	fd    int
	r     *reactor.Reactor

	mu         sync.Mutex
	str        stream.Stream
	nextDeadline time.Time
	wroteAny   bool

	readableCh chan struct{}
	writableCh chan struct{}
	wakeCh     chan struct{}
	cancelCh   chan struct{}
	timeoutCh  chan struct{}
	closeOnce  sync.Once

	dispatch Dispatcher
	keepAliveTimeout time.Duration
	peerAddr   string
}

// New constructs a Session bound to fd, without a stream yet: a stream
// implementation (plain or TLS) needs the Session itself as its
// stream.Suspender, so construction is two-phase - New, then AttachStream
// once the caller has built the stream around this Session. order is the
// caller's (the acceptor's) per-peer-IP monotonic index, used for
// workload-balancing dispatch.
func New(id, order uint64, fd int, r *reactor.Reactor, dispatch Dispatcher, keepAlive time.Duration, peerAddr string) *Session {
	s := &Session{
		id:               id,
		order:            order,
		fd:               fd,
		r:                r,
		dispatch:         dispatch,
		keepAliveTimeout: keepAlive,
		peerAddr:         peerAddr,
		readableCh:       make(chan struct{}, 1),
		writableCh:       make(chan struct{}, 1),
		wakeCh:           make(chan struct{}, 1),
		cancelCh:         make(chan struct{}),
		timeoutCh:        make(chan struct{}),
	}

	s.setDeadline(headerTimeoutDefault)

	return s
}

// AttachStream binds the stream built around this Session as its
// stream.Suspender. Must be called once, before Run.
func (s *Session) AttachStream(str stream.Stream) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.str = str
}

// PeerAddress returns the remote address captured at accept time.
func (s *Session) PeerAddress() string {
	return s.peerAddr
}

// --- reactor.Pollable ---

func (s *Session) FD() int        { return s.fd }
func (s *Session) ID() uint64     { return s.id }
func (s *Session) Order() uint64  { return s.order }

func (s *Session) OnReadable() { nonBlockingSend(s.readableCh) }
func (s *Session) OnWritable() { nonBlockingSend(s.writableCh) }
func (s *Session) OnError()    { s.Cancel() }
func (s *Session) OnWoken()    { nonBlockingSend(s.wakeCh) }

func (s *Session) NextTimeout() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.nextDeadline
}

func (s *Session) OnTimeout() {
	select {
	case <-s.timeoutCh:
	default:
		close(s.timeoutCh)
	}

	s.r.DeleteLater(s)
}

// Cancel drives the coroutine to completion with OperationCancelled,
// matching the destructor semantics of §4.4/§5.
func (s *Session) Cancel() {
	s.closeOnce.Do(func() {
		close(s.cancelCh)
	})

	s.r.DeleteLater(s)
}

func nonBlockingSend(ch chan struct{}) {
	select {
	case ch <- struct{}{}:
	default:
	}
}

// --- stream.Suspender ---

func (s *Session) AwaitReadable() error { return s.await(s.readableCh) }

// AwaitWritable arms EPOLLOUT for the duration of the wait: the initial
// registration only asks for readable, so a write that doesn't fit in one
// syscall would otherwise block forever with the reactor never telling it
// the socket drained. Interest drops back to readable-only once writable
// fires, since level-triggered EPOLLOUT would otherwise keep firing on
// every loop iteration for as long as the socket send buffer has room.
func (s *Session) AwaitWritable() error {
	if err := s.r.UpdateInterest(s, reactor.InterestReadable|reactor.InterestWritable); err != nil {
		return err
	}

	err := s.await(s.writableCh)

	_ = s.r.UpdateInterest(s, reactor.InterestReadable)

	return err
}

func (s *Session) AwaitWake() error { return s.await(s.wakeCh) }

func (s *Session) await(ready chan struct{}) error {
	select {
	case <-ready:
		return nil
	case <-s.cancelCh:
		return ErrorCancelled.Error()
	case <-s.timeoutCh:
		return ErrorTimedOut.Error()
	}
}

func (s *Session) setDeadline(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if d <= 0 {
		s.nextDeadline = time.Time{}
		return
	}

	s.nextDeadline = time.Now().Add(d)
}

// Wakeupper returns a handle signallable from any goroutine to resume this
// session; the handle carries the numeric ID only (GLOSSARY), never a
// reference to the Session itself.
func (s *Session) Wakeupper() stream.Wakeupper {
	return &wakeup{r: s.r, id: s.id}
}

// Run executes the state machine described in §4.4 until the connection is
// shut down or the coroutine is cancelled/timed out. It must be launched as
// its own goroutine per session.
func (s *Session) Run() {
	defer func() {
		_ = s.str.Close()
	}()

	for {
		s.setDeadline(headerTimeoutDefault)
		s.wroteAny = false

		req := protocol.NewRequest()

		if err := s.str.Read(req); err != nil {
			s.emitBestEffortError(err)
			return
		}

		if req.ContentLength != 0 {
			s.setDeadline(bodyTimeoutForRequest(req))
		}

		handler, derr := s.dispatch(req)
		if derr != nil {
			s.emitBestEffortError(derr)
			return
		}
		if handler == nil {
			// A Dispatcher claiming success (nil error) must also claim a
			// handler; treat a nil/nil pair as no-handler rather than call
			// through a nil func and crash the goroutine.
			s.emitBestEffortError(protocol.NewKindError(protocol.KindNoHandler, nil))
			return
		}

		err := handler(s.trackingStream(), req)
		if err != nil {
			s.emitBestEffortError(err)
			return
		}

		ka := s.keepAliveTimeout
		if !req.KeepAlive || ka <= 0 {
			return
		}

		s.setDeadline(ka)
	}
}

// bodyTimeoutForRequest implements §4.4's post-headers deadline: 10s plus
// one second per 512 KiB of known content length, or 5 minutes for chunked
// bodies of unknown length.
func bodyTimeoutForRequest(req *protocol.Request) time.Duration {
	if req.IsChunked() {
		return chunkedBodyTimeout
	}

	extra := time.Duration(req.ContentLength/bodyRateDivisor) * time.Second
	return bodyTimeoutFloor + extra
}

// trackingStream wraps s.str so the first successful write flips wroteAny,
// needed by the error-to-response mapping ("writing-permissible is tracked
// by a flag flipped on the first successful write", §4.4).
func (s *Session) trackingStream() stream.Stream {
	return &trackedStream{Stream: s.str, s: s}
}

type trackedStream struct {
	stream.Stream
	s *Session
}

func (t *trackedStream) Write(buf []byte) error {
	if err := t.Stream.Write(buf); err != nil {
		return err
	}
	t.s.wroteAny = true
	return nil
}

func (t *trackedStream) WriteVectored(bufs [][]byte) error {
	if err := t.Stream.WriteVectored(bufs); err != nil {
		return err
	}
	t.s.wroteAny = true
	return nil
}

// emitBestEffortError maps err to a Response and attempts one write if
// nothing has been sent yet for this response, per §4.4 and §7.
func (s *Session) emitBestEffortError(err error) {
	if s.wroteAny {
		return
	}

	he := protocol.FromError(err)
	resp := protocol.FromHandlerError(he)
	_ = s.str.Write(resp.Bytes(0))
}
