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

package acceptor

import "github.com/nabbar/golib/errors"

const (
	ErrorNoListener errors.CodeError = iota + errors.MinPkgAcceptor
	ErrorListen
	ErrorAlreadyRunning
	ErrorNotRunning
	ErrorPeerLimitExceeded
	ErrorNoReactor
)

var isCodeError = false

func IsCodeError() bool {
	return isCodeError
}

func init() {
	isCodeError = errors.ExistInMapMessage(ErrorNoListener)
	errors.RegisterIdFctMessage(ErrorNoListener, getMessage)
}

func getMessage(code errors.CodeError) (message string) {
	switch code {
	case errors.UNK_ERROR:
		return ""
	case ErrorNoListener:
		return "no listener configured: at least one of plain/TLS, IPv4/IPv6 is required"
	case ErrorListen:
		return "failed to bind listener"
	case ErrorAlreadyRunning:
		return "acceptor is already running"
	case ErrorNotRunning:
		return "acceptor is not running"
	case ErrorPeerLimitExceeded:
		return "peer address exceeded the per-IP connection limit"
	case ErrorNoReactor:
		return "no reactor pool configured"
	}

	return ""
}
