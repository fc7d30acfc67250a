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
	"strconv"
	"strings"
)

var knownMethods = map[string]bool{
	"GET": true, "HEAD": true, "POST": true, "PUT": true,
	"PATCH": true, "DELETE": true, "OPTIONS": true,
}

// Decoder is an incremental HTTP/1.1 parser bound to one Request. Fed
// arbitrary-sized byte slices via Feed, it advances the bound Request's
// state deterministically and reports how many bytes it consumed. The same
// byte stream sliced into any pieces yields an identical Request - Feed
// keeps no information outside of pending/req that depends on slicing.
type Decoder struct {
	req     *Request
	pending []byte
	chunked ChunkedDecoder
	body    bytes.Buffer
}

// NewDecoder binds a fresh Decoder to req (typically just-reset).
func NewDecoder(req *Request) *Decoder {
	return &Decoder{req: req}
}

// Feed advances parsing with p and returns the number of bytes consumed.
// It never returns more bytes consumed than len(p). A BadMessage error
// aborts parsing; callers must terminate the session.
func (d *Decoder) Feed(p []byte) (int, error) {
	d.pending = append(d.pending, p...)
	consumed := 0

	for {
		switch d.req.State {
		case Uninitialized, ProcessingUrl:
			n, ok, err := d.feedRequestLine()
			consumed += n
			if err != nil {
				return consumed, err
			}
			if !ok {
				return len(p), nil
			}
		case ProcessingHeader:
			n, ok, err := d.feedHeaders()
			consumed += n
			if err != nil {
				return consumed, err
			}
			if !ok {
				return len(p), nil
			}
		case HeadersCompleted:
			if !d.beginBody() {
				// Holding at 100-continue: the caller must write Continue100
				// and call Request.MarkContinueWritten before the body can
				// be read, so give control back here rather than spin.
				return len(p), nil
			}
		case ProcessingBody:
			n, done, err := d.feedBody()
			consumed += n
			if err != nil {
				return consumed, err
			}
			if !done {
				return len(p), nil
			}
		case Completed:
			return len(p), nil
		}
	}
}

func (d *Decoder) feedRequestLine() (int, bool, error) {
	idx := bytes.Index(d.pending, []byte("\r\n"))
	if idx < 0 {
		return 0, false, nil
	}

	line := string(d.pending[:idx])
	d.pending = d.pending[idx+2:]

	parts := strings.SplitN(line, " ", 3)
	if len(parts) != 3 {
		return 0, false, ErrorBadMessage.Error()
	}

	method, url, proto := parts[0], parts[1], parts[2]
	if !knownMethods[method] {
		return 0, false, ErrorBadMessage.Error()
	}

	if proto != "HTTP/1.1" && proto != "HTTP/1.0" {
		return 0, false, ErrorBadMessage.Error()
	}

	d.req.Method = method
	d.req.URL = url
	d.req.Proto = proto
	d.req.State = ProcessingHeader

	return idx + 2, true, nil
}

func (d *Decoder) feedHeaders() (int, bool, error) {
	total := 0

	for {
		idx := bytes.Index(d.pending, []byte("\r\n"))
		if idx < 0 {
			return total, false, nil
		}

		line := d.pending[:idx]
		d.pending = d.pending[idx+2:]
		total += idx + 2

		if len(line) == 0 {
			d.deriveKeepAlive()
			if err := d.deriveContentLength(); err != nil {
				return total, false, err
			}
			if err := d.deriveExpect(); err != nil {
				return total, false, err
			}

			d.req.State = HeadersCompleted
			return total, true, nil
		}

		colon := bytes.IndexByte(line, ':')
		if colon < 0 {
			return total, false, ErrorBadMessage.Error()
		}

		key := strings.TrimSpace(string(line[:colon]))
		value := strings.TrimSpace(string(line[colon+1:]))
		if key == "" {
			return total, false, ErrorBadMessage.Error()
		}

		d.req.Header[key] = value
	}
}

func (d *Decoder) deriveKeepAlive() {
	conn := strings.ToLower(d.req.Header["Connection"])

	switch d.req.Proto {
	case "HTTP/1.1":
		d.req.KeepAlive = conn != "close"
	default:
		d.req.KeepAlive = conn == "keep-alive"
	}
}

// deriveContentLength implements the spec's strict parse: leading
// whitespace, a leading '+', or any non-fully-numeric string is rejected.
func (d *Decoder) deriveContentLength() error {
	if te := strings.ToLower(d.req.Header["Transfer-Encoding"]); strings.Contains(te, "chunked") {
		d.req.ContentLength = ChunkedLength
		return nil
	}

	cl, ok := d.req.Header["Content-Length"]
	if !ok {
		d.req.ContentLength = 0
		return nil
	}

	n, err := parseContentLength(cl)
	if err != nil {
		return err
	}

	d.req.ContentLength = n
	return nil
}

// deriveExpect reads the Expect header: only "100-continue" is supported,
// matching the sole value HTTP/1.1 defines; anything else cannot be
// satisfied and fails the request with 417 before any body is read.
func (d *Decoder) deriveExpect() error {
	expect, ok := d.req.Header["Expect"]
	if !ok {
		return nil
	}

	if !strings.EqualFold(strings.TrimSpace(expect), "100-continue") {
		return NewKindError(KindExpectationFailed, nil)
	}

	d.req.expect100 = true
	return nil
}

func parseContentLength(s string) (int64, error) {
	if s == "" {
		return 0, ErrorBadMessage.Error()
	}

	if s[0] == ' ' || s[0] == '\t' || s[0] == '+' {
		return 0, ErrorBadMessage.Error()
	}

	for _, r := range s {
		if r < '0' || r > '9' {
			return 0, ErrorBadMessage.Error()
		}
	}

	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, ErrorBadMessage.Error()
	}

	return n, nil
}

// beginBody transitions past HeadersCompleted, returning false (state left
// unchanged) when a pending "Expect: 100-continue" still needs the caller
// to write the interim response first.
func (d *Decoder) beginBody() bool {
	if d.req.ContentLength == 0 {
		d.req.State = Completed
		if d.req.consumer != nil {
			_ = d.req.consumer(nil)
		}
		return true
	}

	if d.req.PendingContinue() {
		return false
	}

	if d.req.consumer == nil {
		// No callback installed: buffer the body into req.Body instead of
		// discarding it, so handlers that never call SetBodyConsumer still
		// see the payload once State reaches Completed.
		d.req.maxBodySize = DefaultMaxBodySize
		d.req.consumer = d.req.appendBody
	}

	d.req.State = ProcessingBody
	return true
}

func (d *Decoder) feedBody() (int, bool, error) {
	if d.req.IsChunked() {
		return d.feedChunkedBody()
	}

	return d.feedFixedBody()
}

func (d *Decoder) feedFixedBody() (int, bool, error) {
	remaining := d.req.ContentLength - d.req.bodySize
	if remaining <= 0 {
		d.req.State = Completed
		return 0, true, nil
	}

	take := int64(len(d.pending))
	if take > remaining {
		take = remaining
	}

	if take == 0 {
		return 0, false, nil
	}

	chunk := d.pending[:take]
	d.pending = d.pending[take:]
	d.req.bodySize += take

	if d.req.maxBodySize > 0 && d.req.bodySize > d.req.maxBodySize {
		return int(take), false, ErrorTooLarge.Error()
	}

	if d.req.consumer != nil {
		if err := d.req.consumer(chunk); err != nil {
			return int(take), false, err
		}
	}

	if d.req.bodySize >= d.req.ContentLength {
		d.req.State = Completed
		if d.req.consumer != nil {
			_ = d.req.consumer(nil)
		}
		return int(take), true, nil
	}

	return int(take), false, nil
}

func (d *Decoder) feedChunkedBody() (int, bool, error) {
	before := len(d.pending)

	var out []byte
	out, consumed, err := d.chunked.Feed(d.pending, out)
	d.pending = d.pending[consumed:]

	if err != nil {
		return before - len(d.pending), false, err
	}

	if len(out) > 0 {
		d.req.bodySize += int64(len(out))
		if d.req.maxBodySize > 0 && d.req.bodySize > d.req.maxBodySize {
			return consumed, false, ErrorTooLarge.Error()
		}

		if d.req.consumer != nil {
			if err := d.req.consumer(out); err != nil {
				return consumed, false, err
			}
		}
	}

	if d.chunked.Done() {
		d.req.State = Completed
		if d.req.consumer != nil {
			_ = d.req.consumer(nil)
		}
		return consumed, true, nil
	}

	return consumed, false, nil
}
