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

package s3static

import (
	"context"

	liberr "github.com/nabbar/golib/errors"

	"github.com/nabbar/dracon/plugin"
	"github.com/nabbar/dracon/protocol"
	"github.com/nabbar/dracon/router"
	"github.com/nabbar/dracon/session"
	"github.com/nabbar/dracon/stream"
)

// order places s3static behind devices, ahead of the built-in status
// plugin, matching the precedence an operator would expect between a
// resource API and a static-asset fallback.
const order uint32 = 2000

// Plugin serves GET requests under basePath/{key} from one S3 bucket.
type Plugin struct {
	cfg    Config
	routes *router.Router
	store  *Store
}

// New builds an s3static Plugin mounted at basePath, deferring bucket
// connectivity to Init.
func New(basePath string, cfg Config) *Plugin {
	p := &Plugin{cfg: cfg, routes: router.New("")}
	p.routes.Add(basePath + "/{key}").Handle("GET", p.getFactory)
	return p
}

// Register installs p under name in the plugin registry.
func Register(name, basePath string, cfg Config) error {
	return plugin.Register(name, New(basePath, cfg))
}

func (p *Plugin) Order() uint32 { return order }

// Init opens the S3 client via the standard SDK credential chain. confDir
// is unused: S3 credentials come from the environment/IMDS/static keys in
// Config, not from a local file the way the devices plugin's sqlite path
// does.
func (p *Plugin) Init(_ string) bool {
	st, err := NewStore(context.Background(), p.cfg)
	if err != nil {
		return false
	}
	p.store = st
	return true
}

func (p *Plugin) Destroy() {}

// CreateSession matches req against the plugin's single route, returning
// nil (not an error) for anything outside basePath.
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
		return nil, ErrorUpstream.Error()
	}

	return h, nil
}

func keepAliveSeconds(s stream.Stream, req *protocol.Request) int {
	if !req.KeepAlive {
		return 0
	}
	return int(s.KeepAlive().Seconds())
}

func (p *Plugin) getFactory(pr *router.ParsedRoute) (interface{}, error) {
	key := pr.Captures["key"]

	var h session.Handler = func(s stream.Stream, req *protocol.Request) error {
		body, contentType, err := p.store.Get(context.Background(), key)
		if err != nil {
			return err
		}

		resp := protocol.NewResponse()
		resp.Status = 200
		resp.Body = body
		resp.SetHeader("Content-Type", contentType)

		return s.Write(resp.Bytes(keepAliveSeconds(s, req)))
	}

	return h, nil
}
