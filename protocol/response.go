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
	"sort"
	"strconv"
)

// KeepAliveInherit means "use the session's own keep-alive duration" rather
// than overriding it for this one response.
const KeepAliveInherit = -1

// Response is the mutable record built by handlers (or synthesized from a
// HandlerError) and consumed by the stream write operator.
type Response struct {
	Status    int
	Header    map[string]string
	Body      []byte
	Length    int64 // ChunkedLength means "chunked"; ignored if Body is set
	KeepAlive int   // seconds, or KeepAliveInherit
}

// NewResponse returns a Response defaulting to 500, matching "default 500
// if unset" in the data model.
func NewResponse() *Response {
	return &Response{
		Status:    500,
		Header:    make(map[string]string),
		KeepAlive: KeepAliveInherit,
	}
}

// SetHeader stores a header value, case-sensitive key, last value wins.
func (r *Response) SetHeader(key, value string) {
	if r.Header == nil {
		r.Header = make(map[string]string)
	}

	r.Header[key] = value
}

// Bytes serializes r into wire bytes: status line, header lines, a framing
// line, a Keep-Alive/Connection pair, a blank line, then the body.
func (r *Response) Bytes(keepAliveSeconds int) []byte {
	status := NormalizeStatus(r.Status)

	buf := &bytes.Buffer{}
	fmt.Fprintf(buf, "HTTP/1.1 %d %s\r\n", status, StatusText(status))

	keys := make([]string, 0, len(r.Header))
	for k := range r.Header {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		fmt.Fprintf(buf, "%s: %s\r\n", k, r.Header[k])
	}

	chunked := r.Length == ChunkedLength && r.Body == nil
	if chunked {
		buf.WriteString("Transfer-Encoding: chunked\r\n")
	} else {
		length := r.Length
		if r.Body != nil {
			length = int64(len(r.Body))
		} else if length < 0 {
			length = 0
		}
		fmt.Fprintf(buf, "Content-Length: %d\r\n", length)
	}

	ka := keepAliveSeconds
	if r.KeepAlive != KeepAliveInherit {
		ka = r.KeepAlive
	}

	if ka > 0 {
		fmt.Fprintf(buf, "Keep-Alive: timeout=%d\r\n", ka)
		buf.WriteString("Connection: keep-alive\r\n")
	} else {
		buf.WriteString("Connection: close\r\n")
	}

	buf.WriteString("\r\n")

	if r.Body != nil {
		buf.Write(r.Body)
	}

	return buf.Bytes()
}

// FromHandlerError synthesizes a best-effort Response from a HandlerError,
// per §4.4's error-to-response mapping: cases (a) and (d→500) get an empty
// body, cases (b) and (c) keep their supplied body/headers.
func FromHandlerError(he *HandlerError) *Response {
	resp := NewResponse()
	resp.Status = he.StatusCode()

	if he.Closes() {
		resp.KeepAlive = 0
	}

	if he.Body != nil {
		resp.Body = he.Body
		resp.Length = int64(len(he.Body))
	}

	for k, v := range he.Headers {
		resp.SetHeader(k, v)
	}

	if he.Kind == KindMethodNotAllowed && he.Allow != "" {
		resp.SetHeader("Allow", he.Allow)
	}

	return resp
}

// Continue100 is the bare 100-continue preamble written immediately after
// the handler accepts a body whose declared length fits its bound.
func Continue100() []byte {
	return []byte("HTTP/1.1 100 Continue\r\n\r\n")
}

// FormatContentLength renders n as a decimal Content-Length value.
func FormatContentLength(n int64) string {
	return strconv.FormatInt(n, 10)
}
