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

package reactor

import "golang.org/x/sys/unix"

// Interest is the readiness mask a session registers with the reactor:
// readable, writable, peer-closed, edge-triggered, error, matching §4.3's
// registration contract one-for-one.
type Interest uint32

const (
	InterestReadable Interest = 1 << iota
	InterestWritable
	InterestPeerClosed
	InterestEdgeTriggered
	InterestError
)

func (i Interest) toEpollEvents() uint32 {
	var ev uint32

	if i&InterestReadable != 0 {
		ev |= unix.EPOLLIN
	}
	if i&InterestWritable != 0 {
		ev |= unix.EPOLLOUT
	}
	if i&InterestPeerClosed != 0 {
		ev |= unix.EPOLLRDHUP
	}
	if i&InterestEdgeTriggered != 0 {
		ev |= unix.EPOLLET
	}
	if i&InterestError != 0 {
		ev |= unix.EPOLLERR
	}

	return ev
}
