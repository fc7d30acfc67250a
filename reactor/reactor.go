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

// Package reactor implements the single-threaded, epoll-driven event loop:
// one goroutine per reactor owns a readiness multiplexer, a session set, a
// wake-up eventfd, and a pair of shared scratch buffers, exactly as §4.3
// describes. Sessions (package session) register themselves as Pollable
// and are driven exclusively from the reactor's own goroutine; this is the
// Go rendering of "single thread owning a readiness multiplexer" - the
// goroutine plays the role the source gives an OS thread, and channels
// stand in for the stackful-coroutine suspension points.
package reactor

import (
	"sort"
	"sync"
	"time"

	"golang.org/x/sys/unix"

	"github.com/nabbar/dracon/buffer"
)

// shutdownToken is the reserved wake-up value meaning "shutdown requested";
// it is never interpreted as a session address (§4.3).
const shutdownToken uint64 = 1

// Pollable is the contract a session satisfies to be driven by a Reactor.
// The reactor never reaches into session internals beyond this interface -
// the dependency only runs one way, session → reactor.
type Pollable interface {
	// FD returns the underlying, already non-blocking file descriptor.
	FD() int
	// ID is the stable numeric handle written to the wake-up eventfd to
	// resume this session; it must never equal the reserved value 1.
	ID() uint64
	// Order is the per-peer-IP monotonic index used for workload balancing.
	Order() uint64
	// OnReadable/OnWritable/OnError are invoked from the reactor goroutine
	// when epoll reports the corresponding readiness.
	OnReadable()
	OnWritable()
	OnError()
	// OnWoken is invoked when this session's ID was drained from the
	// wake-up eventfd.
	OnWoken()
	// NextTimeout returns the instant at which OnTimeout should fire, or
	// the zero Time if no timeout is pending.
	NextTimeout() time.Time
	// OnTimeout is invoked once NextTimeout has passed.
	OnTimeout()
}

// Reactor owns one epoll instance, its session set, a spin-locked
// delete-later set, and the two OS-sized scratch buffers shared only
// within the reactor goroutine's own call stack.
type Reactor struct {
	epfd      int
	eventfd   int
	mu        sync.Mutex
	sessions  map[int]Pollable // keyed by fd
	byID      map[uint64]Pollable
	delMu     spinLock
	deleteSet map[uint64]Pollable

	balance   bool
	quit      chan struct{}
	closed    bool
	wakeQueue []uint64

	readScratch  *buffer.Buffer
	writeScratch *buffer.Buffer
}

// spinLock is a minimal test-and-set spin lock, matching §5's "Delete-later
// set: protected by a spin-lock" resource policy more literally than a
// plain mutex would.
type spinLock struct {
	mu sync.Mutex
}

func (s *spinLock) Lock()   { s.mu.Lock() }
func (s *spinLock) Unlock() { s.mu.Unlock() }

// New creates a Reactor with its own epoll instance and wake-up eventfd.
// rmemMax/wmemMax size the two shared scratch buffers (OS rmem_max/wmem_max
// equivalents); balance enables workload-balancing dispatch ordering.
func New(rmemMax, wmemMax int, balance bool) (*Reactor, error) {
	epfd, err := unix.EpollCreate1(0)
	if err != nil {
		return nil, ErrorEpollCreate.Error(err)
	}

	efd, err := unix.Eventfd(0, unix.EFD_NONBLOCK|unix.EFD_CLOEXEC)
	if err != nil {
		_ = unix.Close(epfd)
		return nil, ErrorEventFdCreate.Error(err)
	}

	r := &Reactor{
		epfd:         epfd,
		eventfd:      efd,
		sessions:     make(map[int]Pollable),
		byID:         make(map[uint64]Pollable),
		deleteSet:    make(map[uint64]Pollable),
		balance:      balance,
		quit:         make(chan struct{}),
		readScratch:  buffer.New(rmemMax, rmemMax),
		writeScratch: buffer.New(wmemMax, wmemMax),
	}

	if err := unix.EpollCtl(epfd, unix.EPOLL_CTL_ADD, efd, &unix.EpollEvent{
		Events: unix.EPOLLIN,
		Fd:     int32(efd),
	}); err != nil {
		_ = unix.Close(epfd)
		_ = unix.Close(efd)
		return nil, ErrorEpollCtl.Error(err)
	}

	return r, nil
}

// ActiveSessions returns a point-in-time count of registered sessions - the
// acceptor reads this, never the set itself, per §5's shared-resource
// policy.
func (r *Reactor) ActiveSessions() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	return len(r.sessions)
}

// Register adds p to the session set with the given initial interest.
func (r *Reactor) Register(p Pollable, interest Interest) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return ErrorClosed.Error()
	}

	if _, ok := r.sessions[p.FD()]; ok {
		return ErrorAlreadyRegistered.Error()
	}

	if err := unix.EpollCtl(r.epfd, unix.EPOLL_CTL_ADD, p.FD(), &unix.EpollEvent{
		Events: interest.toEpollEvents(),
		Fd:     int32(p.FD()),
	}); err != nil {
		return ErrorEpollCtl.Error(err)
	}

	r.sessions[p.FD()] = p
	r.byID[p.ID()] = p

	return nil
}

// UpdateInterest changes the registered readiness mask for an already
// registered session.
func (r *Reactor) UpdateInterest(p Pollable, interest Interest) error {
	if err := unix.EpollCtl(r.epfd, unix.EPOLL_CTL_MOD, p.FD(), &unix.EpollEvent{
		Events: interest.toEpollEvents(),
		Fd:     int32(p.FD()),
	}); err != nil {
		return ErrorEpollCtl.Error(err)
	}

	return nil
}

// Unregister removes p from epoll and the session set immediately. Used
// when a session knows synchronously (on the reactor goroutine) that it is
// done; concurrent removal from other goroutines must go through
// DeleteLater instead.
func (r *Reactor) Unregister(p Pollable) {
	_ = unix.EpollCtl(r.epfd, unix.EPOLL_CTL_DEL, p.FD(), nil)

	r.mu.Lock()
	delete(r.sessions, p.FD())
	delete(r.byID, p.ID())
	r.mu.Unlock()
}

// DeleteLater schedules p for removal at the end of the current (or next)
// reactor iteration. Safe to call from any goroutine, including the
// reactor's own.
func (r *Reactor) DeleteLater(p Pollable) {
	r.delMu.Lock()
	r.deleteSet[p.ID()] = p
	r.delMu.Unlock()
}

// Wakeup schedules p for resumption by writing its ID to the eventfd. Safe
// to call from any goroutine.
func (r *Reactor) Wakeup(id uint64) error {
	if id == shutdownToken {
		// Never confusable with the reserved shutdown value; callers must
		// never assign an ID equal to 1 (see Pollable.ID doc).
		return ErrorEventFdWrite.Error()
	}

	r.delMu.Lock()
	r.wakeQueue = append(r.wakeQueue, id)
	r.delMu.Unlock()

	one := make([]byte, 8)
	one[0] = 1
	if _, err := unix.Write(r.eventfd, one); err != nil {
		return ErrorEventFdWrite.Error(err)
	}

	return nil
}

// Stop requests an orderly shutdown: the next loop iteration observes the
// reserved wake-up token and exits.
func (r *Reactor) Stop() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	r.mu.Unlock()

	one := make([]byte, 8)
	one[0] = byte(shutdownToken)
	_, _ = unix.Write(r.eventfd, one)

	close(r.quit)
}

// Close releases the epoll and eventfd descriptors. Call only after Run
// has returned.
func (r *Reactor) Close() error {
	_ = unix.Close(r.eventfd)
	return unix.Close(r.epfd)
}

// pollEvent pairs a ready Pollable with its raw epoll event mask, so the
// workload-balancing sort can reorder readiness events before any callback
// runs rather than after.
type pollEvent struct {
	p    Pollable
	mask uint32
}

const maxEpollEvents = 256

// Run drives the event loop on the calling goroutine until Stop is called.
// It implements the six steps of §4.3's "Loop" verbatim.
func (r *Reactor) Run() {
	events := make([]unix.EpollEvent, maxEpollEvents)

	for {
		select {
		case <-r.quit:
			r.drainDeleteSet()
			return
		default:
		}

		timeoutMs := r.computeWaitBudget()

		n, err := unix.EpollWait(r.epfd, events, timeoutMs)
		if err != nil {
			if err == unix.EINTR {
				continue
			}
			continue
		}

		var woken []Pollable

		batch := make([]pollEvent, 0, n)

		for i := 0; i < n; i++ {
			fd := int(events[i].Fd)

			if fd == r.eventfd {
				ids := r.drainEventFd()
				for _, id := range ids {
					if id == shutdownToken {
						r.drainDeleteSet()
						return
					}

					r.mu.Lock()
					p, ok := r.byID[id]
					r.mu.Unlock()

					if ok {
						woken = append(woken, p)
					}
				}
				continue
			}

			r.mu.Lock()
			p, ok := r.sessions[fd]
			r.mu.Unlock()

			if !ok {
				continue
			}

			batch = append(batch, pollEvent{p: p, mask: events[i].Events})
		}

		if r.balance {
			sort.Slice(batch, func(i, j int) bool { return batch[i].p.Order() < batch[j].p.Order() })
		}

		for _, be := range batch {
			if be.mask&unix.EPOLLERR != 0 {
				be.p.OnError()
				continue
			}
			if be.mask&unix.EPOLLIN != 0 || be.mask&unix.EPOLLRDHUP != 0 {
				be.p.OnReadable()
			}
			if be.mask&unix.EPOLLOUT != 0 {
				be.p.OnWritable()
			}
		}

		for _, p := range woken {
			p.OnWoken()
		}

		r.fireTimeouts()
		r.drainDeleteSet()
	}
}

// computeWaitBudget returns epoll_wait's timeout in milliseconds: -1
// (unbounded) until at least one session has a pending timeout, after
// which it is the nearest deadline rounded up to >= 1s.
func (r *Reactor) computeWaitBudget() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	var nearest time.Time

	for _, p := range r.sessions {
		t := p.NextTimeout()
		if t.IsZero() {
			continue
		}
		if nearest.IsZero() || t.Before(nearest) {
			nearest = t
		}
	}

	if nearest.IsZero() {
		return -1
	}

	d := time.Until(nearest)
	if d < time.Second {
		d = time.Second
	}

	return int(d.Milliseconds())
}

func (r *Reactor) fireTimeouts() {
	now := time.Now()

	r.mu.Lock()
	snapshot := make([]Pollable, 0, len(r.sessions))
	for _, p := range r.sessions {
		snapshot = append(snapshot, p)
	}
	r.mu.Unlock()

	for _, p := range snapshot {
		if t := p.NextTimeout(); !t.IsZero() && !t.After(now) {
			p.OnTimeout()
		}
	}
}

func (r *Reactor) drainEventFd() []uint64 {
	buf := make([]byte, 8)
	var ids []uint64

	for {
		n, err := unix.Read(r.eventfd, buf)
		if err != nil || n < 8 {
			break
		}

		r.delMu.Lock()
		ids = append(ids, r.wakeQueue...)
		r.wakeQueue = r.wakeQueue[:0]
		r.delMu.Unlock()
	}

	return ids
}

func (r *Reactor) drainDeleteSet() {
	r.delMu.Lock()
	toDelete := r.deleteSet
	r.deleteSet = make(map[uint64]Pollable)
	r.delMu.Unlock()

	for _, p := range toDelete {
		r.Unregister(p)
	}
}

// BorrowReadBuffer returns the reactor-owned read scratch buffer. Valid
// only for the duration of one call from the reactor's own goroutine.
func (r *Reactor) BorrowReadBuffer() *buffer.Buffer {
	return r.readScratch
}

// BorrowWriteBuffer returns the reactor-owned write scratch buffer. Valid
// only for the duration of one call from the reactor's own goroutine; if a
// caller needs more room than it provides, it must allocate privately
// instead (§5).
func (r *Reactor) BorrowWriteBuffer() *buffer.Buffer {
	return r.writeScratch
}
