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
	"fmt"

	"github.com/nabbar/golib/errors"
)

const (
	ErrorBadMessage errors.CodeError = iota + errors.MinPkgProtocol
	ErrorTooLarge
	ErrorExpectationFailed
	ErrorNoHandler
	ErrorMethodNotAllowed
	ErrorTimedOut
	ErrorIoError
	ErrorCancelled
	ErrorUnknown
)

var isCodeError = false

func IsCodeError() bool {
	return isCodeError
}

func init() {
	isCodeError = errors.ExistInMapMessage(ErrorBadMessage)
	errors.RegisterIdFctMessage(ErrorBadMessage, getMessage)
}

func getMessage(code errors.CodeError) (message string) {
	switch code {
	case errors.UNK_ERROR:
		return ""
	case ErrorBadMessage:
		return "malformed HTTP/1.1 message"
	case ErrorTooLarge:
		return "header or body exceeds handler limits"
	case ErrorExpectationFailed:
		return "expectation on Expect/Content-Length cannot be satisfied"
	case ErrorNoHandler:
		return "no plugin claimed this request"
	case ErrorMethodNotAllowed:
		return "method not allowed for this route"
	case ErrorTimedOut:
		return "reactor deadline expired"
	case ErrorIoError:
		return "socket or TLS read/write failed"
	case ErrorCancelled:
		return "session was cancelled"
	case ErrorUnknown:
		return "unknown error"
	}

	return ""
}

// Kind classifies a HandlerError the way §7 of the design notes does, so the
// session loop can derive a response without inspecting arbitrary Go errors.
type Kind uint8

const (
	KindBadMessage Kind = iota
	KindTooLarge
	KindExpectationFailed
	KindNoHandler
	KindMethodNotAllowed
	KindTimedOut
	KindIoError
	KindCancelled
	KindHandlerStatus
	KindUnknown
)

// defaultStatus is the status code implied by a Kind when the handler did
// not supply one explicitly (the HandlerStatus kind always carries its own).
var defaultStatus = map[Kind]int{
	KindBadMessage:        400,
	KindTooLarge:          413,
	KindExpectationFailed: 417,
	KindNoHandler:         503,
	KindMethodNotAllowed:  405,
	KindTimedOut:          0,
	KindIoError:           0,
	KindCancelled:         0,
	KindUnknown:           500,
}

// HandlerError is the sum type described in design note "exceptions as
// control flow": a handler signals failure as an integer status, a full
// Response, a Kind, or any other error, and the session loop always ends up
// holding one of these.
type HandlerError struct {
	Kind    Kind
	Status  int
	Body    []byte
	Headers map[string]string
	Allow   string
	Parent  error
}

func (h *HandlerError) Error() string {
	if h.Parent != nil {
		return fmt.Sprintf("protocol: %s: %v", h.kindName(), h.Parent)
	}

	return fmt.Sprintf("protocol: %s", h.kindName())
}

func (h *HandlerError) kindName() string {
	switch h.Kind {
	case KindBadMessage:
		return "bad message"
	case KindTooLarge:
		return "too large"
	case KindExpectationFailed:
		return "expectation failed"
	case KindNoHandler:
		return "no handler"
	case KindMethodNotAllowed:
		return "method not allowed"
	case KindTimedOut:
		return "timed out"
	case KindIoError:
		return "io error"
	case KindCancelled:
		return "cancelled"
	case KindHandlerStatus:
		return "handler status"
	default:
		return "unknown"
	}
}

// StatusCode resolves the wire status this error should produce, falling
// back to the Kind's default and finally to 500.
func (h *HandlerError) StatusCode() int {
	if h.Status != 0 {
		return h.Status
	}

	if s, ok := defaultStatus[h.Kind]; ok && s != 0 {
		return s
	}

	return 500
}

// Closes reports whether the connection must be closed after this error is
// written, per §7: true for every kind except a bare HandlerStatus that the
// caller wants to keep alive (callers may still force close elsewhere).
func (h *HandlerError) Closes() bool {
	switch h.Kind {
	case KindTimedOut, KindIoError, KindCancelled, KindNoHandler, KindBadMessage:
		return true
	default:
		return false
	}
}

func NewKindError(kind Kind, parent error) *HandlerError {
	return &HandlerError{Kind: kind, Parent: parent}
}

func NewStatusError(status int, body []byte, headers map[string]string) *HandlerError {
	return &HandlerError{Kind: KindHandlerStatus, Status: status, Body: body, Headers: headers}
}

func NewMethodNotAllowed(allow string) *HandlerError {
	return &HandlerError{Kind: KindMethodNotAllowed, Allow: allow}
}

// FromError coerces an arbitrary error into a HandlerError, classifying it
// as Unknown (→500) unless it already is one.
func FromError(err error) *HandlerError {
	if err == nil {
		return nil
	}

	if he, ok := err.(*HandlerError); ok {
		return he
	}

	return &HandlerError{Kind: KindUnknown, Parent: err}
}
