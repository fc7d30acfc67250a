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

package stream

import (
	"net"
	"time"

	"golang.org/x/sys/unix"

	"github.com/nabbar/dracon/buffer"
	"github.com/nabbar/dracon/protocol"
)

// Suspender is the narrow slice of Session that Stream needs in order to
// cooperatively suspend: block the calling goroutine until the reactor
// reports the fd readable/writable, or until something resumed this
// session via a wake-up. Implemented by package session; this keeps
// stream's only dependency on the reactor's *behaviour*, never its types.
type Suspender interface {
	AwaitReadable() error
	AwaitWritable() error
	AwaitWake() error
}

// PlainStream is the non-blocking-socket variant of Stream. read_some and
// write_some are unix.Read/unix.Write on an already non-blocking fd;
// EAGAIN maps to (0, nil) which triggers AwaitReadable/AwaitWritable.
type PlainStream struct {
	conn net.Conn
	fd   int
	susp Suspender
	buf  *buffer.Buffer
	wake Wakeupper

	keepAlive  time.Duration
	sessTout   time.Duration
	readSize   int
	writeSize  int
}

// NewPlain wraps an already-accepted, already-non-blocking connection.
func NewPlain(conn net.Conn, fd int, susp Suspender, wake Wakeupper, readSize, writeSize int) *PlainStream {
	return &PlainStream{
		conn:      conn,
		fd:        fd,
		susp:      susp,
		wake:      wake,
		buf:       buffer.New(readSize, 0),
		readSize:  readSize,
		writeSize: writeSize,
	}
}

func (p *PlainStream) Read(req *protocol.Request) error {
	dec := protocol.NewDecoder(req)

	for req.State != protocol.HeadersCompleted && req.State != protocol.Completed {
		slot, err := p.buf.FillSlot(p.readSize)
		if err != nil {
			return err
		}

		n, rerr := unix.Read(p.fd, slot)
		if rerr == unix.EAGAIN {
			if err := p.susp.AwaitReadable(); err != nil {
				return err
			}
			continue
		}
		if rerr != nil {
			return protocol.ErrorIoError.Error(rerr)
		}
		if n == 0 {
			return protocol.ErrorIoError.Error()
		}

		p.buf.Filled(n)

		if _, derr := dec.Feed(p.buf.Bytes()); derr != nil {
			return derr
		}
		p.buf.Advance(p.buf.Len())

		if req.PendingContinue() {
			if err := p.Write(protocol.Continue100()); err != nil {
				return err
			}
			req.MarkContinueWritten()

			if _, derr := dec.Feed(nil); derr != nil {
				return derr
			}
		}
	}

	return nil
}

func (p *PlainStream) Write(buf []byte) error {
	return p.WriteVectored([][]byte{buf})
}

func (p *PlainStream) WriteVectored(bufs [][]byte) error {
	var payload []byte
	for _, b := range bufs {
		payload = append(payload, b...)
	}

	for len(payload) > 0 {
		n, werr := unix.Write(p.fd, payload)
		if werr == unix.EAGAIN {
			if err := p.susp.AwaitWritable(); err != nil {
				return err
			}
			continue
		}
		if werr != nil {
			return protocol.ErrorIoError.Error(werr)
		}

		payload = payload[n:]
	}

	return nil
}

func (p *PlainStream) Yield() error {
	return p.susp.AwaitWake()
}

func (p *PlainStream) Wakeupper() Wakeupper {
	return p.wake
}

func (p *PlainStream) KeepAlive() time.Duration        { return p.keepAlive }
func (p *PlainStream) SetKeepAlive(d time.Duration)     { p.keepAlive = d }
func (p *PlainStream) SessionTimeout() time.Duration    { return p.sessTout }
func (p *PlainStream) SetSessionTimeout(d time.Duration) { p.sessTout = d }
func (p *PlainStream) SocketReadSize() int              { return p.readSize }
func (p *PlainStream) SetSocketReadSize(n int)           { p.readSize = n }
func (p *PlainStream) SocketWriteSize() int             { return p.writeSize }
func (p *PlainStream) SetSocketWriteSize(n int)          { p.writeSize = n }
func (p *PlainStream) PeerAddress() net.Addr            { return p.conn.RemoteAddr() }
func (p *PlainStream) IsSecuredConnection() bool        { return false }
func (p *PlainStream) Close() error                     { return p.conn.Close() }
