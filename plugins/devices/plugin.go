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

package devices

import (
	"encoding/json"
	"path/filepath"

	liberr "github.com/nabbar/golib/errors"

	"github.com/nabbar/dracon/plugin"
	"github.com/nabbar/dracon/protocol"
	"github.com/nabbar/dracon/router"
	"github.com/nabbar/dracon/session"
	"github.com/nabbar/dracon/stream"
)

// order places devices ahead of the built-in status plugin but behind
// anything a deployment wants to run first.
const order uint32 = 1000

// Plugin is the devices resource plugin: a RESTful CRUD surface over a
// sqlite-backed inventory, registered with the process-global registry.
type Plugin struct {
	routes *router.Router
	store  *Store
}

// New builds a devices Plugin mounted at basePath, routing through rt.
func New(basePath string) *Plugin {
	p := &Plugin{routes: router.New("")}
	router.RegisterCRUD(p.routes, basePath, router.CRUDHandlers{
		List:   p.listFactory,
		Create: p.createFactory,
		Get:    p.getFactory,
		Update: p.updateFactory,
		Delete: p.deleteFactory,
	})
	return p
}

// Register installs p under name in the plugin registry; call from an
// importer's init() once a base path is decided.
func Register(name, basePath string) error {
	return plugin.Register(name, New(basePath))
}

func (p *Plugin) Order() uint32 { return order }

// Init opens the sqlite store under confDir/devices.db, per the Initializer
// capability interface detected by the registry.
func (p *Plugin) Init(confDir string) bool {
	st, err := NewStore(filepath.Join(confDir, "devices.db"))
	if err != nil {
		return false
	}
	p.store = st
	return true
}

// Destroy is a no-op: the underlying *gorm.DB has no explicit close
// requirement for sqlite beyond process exit.
func (p *Plugin) Destroy() {}

// CreateSession matches req against the devices route table, returning nil
// (not an error) when the request belongs to some other plugin entirely.
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
		return nil, ErrorStorage.Error()
	}

	return h, nil
}

func keepAliveSeconds(s stream.Stream, req *protocol.Request) int {
	if !req.KeepAlive {
		return 0
	}
	return int(s.KeepAlive().Seconds())
}

func writeJSON(s stream.Stream, req *protocol.Request, status int, v interface{}) error {
	body, err := json.Marshal(v)
	if err != nil {
		return err
	}

	resp := protocol.NewResponse()
	resp.Status = status
	resp.Body = body
	resp.SetHeader("Content-Type", "application/json")

	return s.Write(resp.Bytes(keepAliveSeconds(s, req)))
}

func (p *Plugin) listFactory(_ *router.ParsedRoute) (interface{}, error) {
	var h session.Handler = func(s stream.Stream, req *protocol.Request) error {
		list, err := p.store.List()
		if err != nil {
			return err
		}
		return writeJSON(s, req, 200, list)
	}
	return h, nil
}

func (p *Plugin) getFactory(pr *router.ParsedRoute) (interface{}, error) {
	id := pr.Captures["id"]

	var h session.Handler = func(s stream.Stream, req *protocol.Request) error {
		d, err := p.store.Get(id)
		if err != nil {
			return err
		}
		return writeJSON(s, req, 200, d)
	}
	return h, nil
}

func (p *Plugin) createFactory(_ *router.ParsedRoute) (interface{}, error) {
	var h session.Handler = func(s stream.Stream, req *protocol.Request) error {
		var d Device
		if err := decodeBody(req.Body, &d); err != nil {
			return err
		}
		if err := p.store.Create(&d); err != nil {
			return err
		}
		return writeJSON(s, req, 201, d)
	}
	return h, nil
}

func (p *Plugin) updateFactory(pr *router.ParsedRoute) (interface{}, error) {
	id := pr.Captures["id"]

	var h session.Handler = func(s stream.Stream, req *protocol.Request) error {
		var d Device
		if err := decodeBody(req.Body, &d); err != nil {
			return err
		}
		if err := p.store.Update(id, &d); err != nil {
			return err
		}
		return writeJSON(s, req, 200, d)
	}
	return h, nil
}

func (p *Plugin) deleteFactory(pr *router.ParsedRoute) (interface{}, error) {
	id := pr.Captures["id"]

	var h session.Handler = func(s stream.Stream, req *protocol.Request) error {
		if err := p.store.Delete(id); err != nil {
			return err
		}
		resp := protocol.NewResponse()
		resp.Status = 204
		return s.Write(resp.Bytes(keepAliveSeconds(s, req)))
	}
	return h, nil
}
