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

import "github.com/nabbar/golib/errors"

const (
	ErrorYieldCancelled errors.CodeError = iota + errors.MinPkgStream
	ErrorYieldTimedOut
	ErrorHandshakeTimeout
	ErrorShutdownTimeout
	ErrorWriteTooLarge
)

var isCodeError = false

func IsCodeError() bool {
	return isCodeError
}

func init() {
	isCodeError = errors.ExistInMapMessage(ErrorYieldCancelled)
	errors.RegisterIdFctMessage(ErrorYieldCancelled, getMessage)
}

func getMessage(code errors.CodeError) (message string) {
	switch code {
	case errors.UNK_ERROR:
		return ""
	case ErrorYieldCancelled:
		return "session was cancelled while yielded"
	case ErrorYieldTimedOut:
		return "session timed out while yielded"
	case ErrorHandshakeTimeout:
		return "TLS handshake exceeded its deadline"
	case ErrorShutdownTimeout:
		return "TLS shutdown exceeded its deadline"
	case ErrorWriteTooLarge:
		return "write exceeds the reactor's shared scratch buffer and no private buffer was allowed"
	}

	return ""
}
