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

package protocol

import (
	"bytes"
	"fmt"
)

// ChunkedEncoder frames successive writes as HTTP/1.1 chunked transfer
// encoding: each write of N>0 bytes becomes hex(N)\r\n, payload, \r\n; a
// vectored write coalesces its pieces into one chunk.
type ChunkedEncoder struct {
	ended bool
}

// Encode frames one or more byte slices as a single chunk. An empty call
// (no slices, or all empty) writes nothing - callers use End to terminate.
func (c *ChunkedEncoder) Encode(parts ...[]byte) []byte {
	total := 0
	for _, p := range parts {
		total += len(p)
	}

	if total == 0 {
		return nil
	}

	buf := &bytes.Buffer{}
	fmt.Fprintf(buf, "%x\r\n", total)
	for _, p := range parts {
		buf.Write(p)
	}
	buf.WriteString("\r\n")

	return buf.Bytes()
}

// End emits the terminating 0\r\n\r\n chunk exactly once; subsequent calls
// are no-ops and return nil.
func (c *ChunkedEncoder) End() []byte {
	if c.ended {
		return nil
	}

	c.ended = true
	return []byte("0\r\n\r\n")
}

// ChunkedDecoder reverses ChunkedEncoder: fed the raw wire bytes of one or
// more chunks (possibly split across arbitrary boundaries), it reassembles
// the original payload and reports when the terminating chunk was seen.
type ChunkedDecoder struct {
	pending    []byte
	size       int64
	sizeKnown  bool
	inTrailer  bool
	done       bool
}

// Feed consumes as much of p as forms complete chunk framing, appending
// decoded payload bytes to out, and returns the updated out slice along
// with the count of bytes of p consumed.
func (d *ChunkedDecoder) Feed(p []byte, out []byte) ([]byte, int, error) {
	d.pending = append(d.pending, p...)
	consumedTotal := 0

	for {
		if d.done {
			break
		}

		if !d.sizeKnown {
			idx := bytes.Index(d.pending, []byte("\r\n"))
			if idx < 0 {
				break
			}

			line := d.pending[:idx]
			if semi := bytes.IndexByte(line, ';'); semi >= 0 {
				line = line[:semi]
			}

			var size int64
			if _, err := fmt.Sscanf(string(line), "%x", &size); err != nil {
				return out, consumedTotal, ErrorBadMessage.Error()
			}

			d.size = size
			d.sizeKnown = true
			d.pending = d.pending[idx+2:]

			if size == 0 {
				d.inTrailer = true
			}
		}

		if d.inTrailer {
			idx := bytes.Index(d.pending, []byte("\r\n"))
			if idx < 0 {
				break
			}

			d.pending = d.pending[idx+2:]
			d.done = true
			break
		}

		need := int(d.size) + 2 // payload + trailing CRLF
		if len(d.pending) < need {
			break
		}

		out = append(out, d.pending[:d.size]...)
		d.pending = d.pending[need:]
		d.sizeKnown = false
	}

	_ = consumedTotal // bytes of p consumed are implicitly all of p; pending holds the remainder
	return out, len(p), nil
}

// Done reports whether the terminating 0-length chunk has been seen.
func (d *ChunkedDecoder) Done() bool {
	return d.done
}
