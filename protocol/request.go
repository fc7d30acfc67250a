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

// Package protocol implements the incremental HTTP/1.1 parser and the
// response serializer: pure functions over byte buffers and a Request
// object, with no socket or reactor awareness of their own.
package protocol

// ParseState is the monotonic lifecycle of one Request as bytes arrive.
// The value never regresses once advanced.
type ParseState uint8

const (
	Uninitialized ParseState = iota
	ProcessingUrl
	ProcessingHeader
	HeadersCompleted
	ProcessingBody
	Completed
)

// ChunkedLength is the Content-Length sentinel meaning "use
// Transfer-Encoding: chunked" instead of a known byte count.
const ChunkedLength int64 = -1

// BodyConsumer receives successive body chunks as they arrive. Called with
// a nil slice once the body is fully delivered.
type BodyConsumer func(chunk []byte) error

// DefaultMaxBodySize bounds the body Decoder buffers into Request.Body when
// no explicit consumer has been installed via SetBodyConsumer.
const DefaultMaxBodySize = 10 * 1024 * 1024

// Request is the mutable record produced by Decoder. A fresh Request is
// created at the start of each keep-alive iteration on a connection.
type Request struct {
	Method        string
	URL           string
	Proto         string
	Header        map[string]string
	State         ParseState
	KeepAlive     bool
	ContentLength int64 // ChunkedLength means "chunked"

	// Body accumulates the request body when no consumer was installed via
	// SetBodyConsumer; handlers that want the whole body in memory can read
	// it directly once State reaches Completed.
	Body []byte

	maxBodySize     int64
	bodySize        int64
	consumer        BodyConsumer
	expect100       bool
	continueWritten bool
}

// NewRequest returns a freshly zeroed Request ready for a Decoder.
func NewRequest() *Request {
	return &Request{
		Header: make(map[string]string),
		State:  Uninitialized,
	}
}

// Reset restores r to its pristine state so it can be reused for the next
// iteration of a keep-alive connection without reallocating the header map.
func (r *Request) Reset() {
	for k := range r.Header {
		delete(r.Header, k)
	}

	r.Method = ""
	r.URL = ""
	r.Proto = ""
	r.State = Uninitialized
	r.KeepAlive = false
	r.ContentLength = 0
	r.Body = nil
	r.maxBodySize = 0
	r.bodySize = 0
	r.consumer = nil
	r.expect100 = false
	r.continueWritten = false
}

// appendBody is the default BodyConsumer installed by Decoder when the
// caller never calls SetBodyConsumer, buffering the body into Body.
func (r *Request) appendBody(chunk []byte) error {
	if chunk == nil {
		return nil
	}
	r.Body = append(r.Body, chunk...)
	return nil
}

// HeaderValue returns the last value stored for key (case-sensitive, last
// value wins on repeated headers per the data model).
func (r *Request) HeaderValue(key string) (string, bool) {
	v, ok := r.Header[key]
	return v, ok
}

// SetBodyConsumer installs the callback that will receive body bytes as
// they are decoded, bounding total delivered bytes at maxBody. Must be
// called once HeadersCompleted is reached and before body bytes are fed in.
func (r *Request) SetBodyConsumer(maxBody int64, fn BodyConsumer) {
	r.maxBodySize = maxBody
	r.consumer = fn
}

// IsChunked reports whether the request body uses chunked transfer framing.
func (r *Request) IsChunked() bool {
	return r.ContentLength == ChunkedLength
}

// PendingContinue reports whether the client sent "Expect: 100-continue"
// and is now waiting on the wire for the interim response before it sends
// the body. A Stream.Read implementation must write Continue100() and call
// MarkContinueWritten once it has done so, or the decoder will never
// advance past HeadersCompleted.
func (r *Request) PendingContinue() bool {
	return r.expect100 && !r.continueWritten
}

// MarkContinueWritten records that the 100 Continue preamble has been sent,
// letting the decoder proceed into the body.
func (r *Request) MarkContinueWritten() {
	r.continueWritten = true
}
