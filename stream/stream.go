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

// Package stream defines the read/write/yield contract presented to
// handlers (§4.2) and its two implementations: a non-blocking plain-socket
// stream driven by the owning reactor, and a TLS stream whose blocking
// handshake/read/write calls run directly on the session's own goroutine -
// a deliberate, documented divergence from the plain variant, since Go's
// crypto/tls stack has no non-blocking partial-read mode compatible with
// raw epoll readiness.
package stream

import (
	"net"
	"time"

	"github.com/nabbar/dracon/protocol"
)

// Wakeupper is a stable, thread-safe handle that schedules a yielded
// session for resumption on its reactor (§4.2, GLOSSARY).
type Wakeupper interface {
	Wake() error
}

// Stream is the contract handlers and the session loop use to read
// requests, write responses, and cooperatively suspend.
type Stream interface {
	// Read drives the decoder until headers complete, or until body
	// completion if a body callback was installed on req. Suspends at I/O
	// boundaries per §5.
	Read(req *protocol.Request) error

	// Write writes buf in full, yielding as needed.
	Write(buf []byte) error

	// WriteVectored writes the concatenation of bufs in full, yielding as
	// needed; a single coalesced chunk for the TLS variant per §4.2.
	WriteVectored(bufs [][]byte) error

	// Yield cooperatively returns to the reactor and resumes later,
	// returning an error if the session was cancelled or timed out while
	// suspended.
	Yield() error

	// Wakeupper returns a handle signallable from any goroutine to resume
	// a yielded session.
	Wakeupper() Wakeupper

	KeepAlive() time.Duration
	SetKeepAlive(d time.Duration)

	SessionTimeout() time.Duration
	SetSessionTimeout(d time.Duration)

	SocketReadSize() int
	SetSocketReadSize(n int)

	SocketWriteSize() int
	SetSocketWriteSize(n int)

	PeerAddress() net.Addr
	IsSecuredConnection() bool

	Close() error
}
