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

// Package diag holds the reference diagnostic plugins exercised by the
// server's end-to-end test scenarios: bare-minimum response framing
// (/test0), request echo (/echoTest), a TLS-only gate (/secureOnly), a
// large-body round trip (/testPPP), and the built-in /server_status plugin.
package diag

import (
	"bytes"
	"sort"

	liberr "github.com/nabbar/golib/errors"

	"github.com/nabbar/dracon/plugin"
	"github.com/nabbar/dracon/protocol"
	"github.com/nabbar/dracon/router"
	"github.com/nabbar/dracon/session"
	"github.com/nabbar/dracon/stream"
)

// order mirrors the reference test plugin's own plugin_order(): diagnostics
// run only after every real plugin has had a chance to claim the request.
const order uint32 = 9999999

// Plugin serves the fixed set of diagnostic routes described in spec
// scenarios 1, 2, 3 and 6.
type Plugin struct {
	routes *router.Router
	refBuf []byte
}

// New builds the diagnostics Plugin; the 50 MiB reference payload is
// generated lazily in Init so constructing a Plugin never allocates it.
func New() *Plugin {
	p := &Plugin{routes: router.New("")}

	p.routes.Add("/test0").Handle("GET", p.test0Factory)
	p.routes.Add("/echoTest").Handle("GET", p.echoTestFactory)
	p.routes.Add("/secureOnly").Handle("GET", p.secureOnlyFactory)

	ppp := p.routes.Add("/testPPP")
	ppp.Handle("POST", p.testPPPFactory)
	ppp.Handle("PUT", p.testPPPFactory)
	ppp.Handle("PATCH", p.testPPPFactory)

	return p
}

// Register installs the diagnostics Plugin under name.
func Register(name string) error {
	return plugin.Register(name, New())
}

func (p *Plugin) Order() uint32 { return order }

func (p *Plugin) Init(_ string) bool {
	p.refBuf = buildRefPayload()
	return true
}

func (p *Plugin) Destroy() { p.refBuf = nil }

// CreateSession matches req against the fixed diagnostic routes, returning
// nil (not an error) for anything else so other plugins get a chance first.
func (p *Plugin) CreateSession(req *protocol.Request) (session.Handler, error) {
	factory, pr, err := p.routes.Lookup(req.URL, req.Method)
	if err != nil {
		if ce, ok := err.(liberr.Error); ok && ce.IsCode(router.ErrorNoRoute) {
			return nil, nil
		}
		return nil, err
	}

	out, err := (*factory)(pr)
	if err != nil {
		return nil, err
	}

	h, ok := out.(session.Handler)
	if !ok {
		return nil, protocol.NewKindError(protocol.KindUnknown, nil)
	}

	return h, nil
}

func keepAliveSeconds(s stream.Stream, req *protocol.Request) int {
	if !req.KeepAlive {
		return 0
	}
	return int(s.KeepAlive().Seconds())
}

// test0Factory answers scenario 1: the bare minimum 200 with no body.
func (p *Plugin) test0Factory(_ *router.ParsedRoute) (interface{}, error) {
	var h session.Handler = func(s stream.Stream, req *protocol.Request) error {
		resp := protocol.NewResponse()
		resp.Status = 200
		return s.Write(resp.Bytes(keepAliveSeconds(s, req)))
	}
	return h, nil
}

// echoTestFactory answers scenario 2: the request's Content-Length, every
// header, and the body, rendered back as a chunked text/plain body.
func (p *Plugin) echoTestFactory(_ *router.ParsedRoute) (interface{}, error) {
	var h session.Handler = func(s stream.Stream, req *protocol.Request) error {
		var body bytes.Buffer
		body.WriteString("~~~~ ContentLength: ")
		body.WriteString(protocol.FormatContentLength(req.ContentLength))
		body.WriteString("\n~~~~ Headers:\n")

		keys := make([]string, 0, len(req.Header))
		for k := range req.Header {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			body.WriteString(k)
			body.WriteString(" : ")
			body.WriteString(req.Header[k])
			body.WriteString("\n")
		}

		body.WriteString("~~~~ Body:\n")
		body.Write(req.Body)

		resp := protocol.NewResponse()
		resp.Status = 200
		resp.Length = protocol.ChunkedLength
		resp.SetHeader("Content-Type", "text/plain")

		enc := &protocol.ChunkedEncoder{}
		out := resp.Bytes(keepAliveSeconds(s, req))
		out = append(out, enc.Encode(body.Bytes())...)
		out = append(out, enc.End()...)

		return s.Write(out)
	}
	return h, nil
}

// secureOnlyFactory answers scenario 3: a plaintext request is rejected
// with 403 and a fixed pair of diagnostic headers.
func (p *Plugin) secureOnlyFactory(_ *router.ParsedRoute) (interface{}, error) {
	var h session.Handler = func(s stream.Stream, req *protocol.Request) error {
		if !s.IsSecuredConnection() {
			return protocol.NewStatusError(
				403,
				[]byte("Only secured connections allowed"),
				map[string]string{"ErrorKey1": "Value1", "ErrorKey2": "Value2"},
			)
		}

		resp := protocol.NewResponse()
		resp.Status = 200
		return s.Write(resp.Bytes(keepAliveSeconds(s, req)))
	}
	return h, nil
}

// testPPPFactory answers scenario 6: a POST/PUT/PATCH body equal to the
// server's own reference payload is echoed back verbatim.
func (p *Plugin) testPPPFactory(_ *router.ParsedRoute) (interface{}, error) {
	var h session.Handler = func(s stream.Stream, req *protocol.Request) error {
		if int64(len(req.Body)) != int64(len(p.refBuf)) {
			return ErrorBodySize.Error()
		}
		if !bytes.Equal(req.Body, p.refBuf) {
			return ErrorBodyMismatch.Error()
		}

		resp := protocol.NewResponse()
		resp.Status = 200
		resp.Body = req.Body

		return s.Write(resp.Bytes(keepAliveSeconds(s, req)))
	}
	return h, nil
}
