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

// Package plugin implements compile-time plugin registration in place of
// the dlopen-based loading named in the original design: every plugin
// package calls Register from its own init(), and the process-global
// registry sorts the result by declared order once, at startup.
package plugin

import (
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/nabbar/dracon/protocol"
	"github.com/nabbar/dracon/session"
)

// StatusOrder is the order value reserved for the built-in server-status
// plugin, placing it after any ordinary plugin that doesn't request a
// higher value explicitly.
const StatusOrder uint32 = ^uint32(0) / 2

// Initializer is implemented by plugins that need the configuration
// directory path before serving traffic; returning false aborts startup.
type Initializer interface {
	Init(confDir string) bool
}

// Destroyer is implemented by plugins holding resources (file handles,
// pooled connections) that must be released on shutdown.
type Destroyer interface {
	Destroy()
}

// Plugin is the minimal contract every plugin must satisfy: a stable
// ordering value and a dispatcher from request to session handler.
// Init and Destroy are optional, detected via the Initializer and
// Destroyer interfaces at registration and shutdown time respectively.
type Plugin interface {
	Order() uint32
	CreateSession(req *protocol.Request) (session.Handler, error)
}

// entry pairs a registered Plugin with the identity assigned to it.
type entry struct {
	id   uuid.UUID
	name string
	p    Plugin
}

var (
	mu       sync.Mutex
	entries  []entry
	byName   = map[string]bool{}
	sorted   bool
)

// Register adds p to the process-global registry under name, typically
// called from the plugin package's own init(). Registering two plugins
// under the same name fails with ErrorAlreadyRegistered.
func Register(name string, p Plugin) error {
	mu.Lock()
	defer mu.Unlock()

	if p == nil {
		return ErrorNilPlugin.Error()
	}
	if byName[name] {
		return ErrorAlreadyRegistered.Error()
	}

	byName[name] = true
	entries = append(entries, entry{id: uuid.New(), name: name, p: p})
	sorted = false

	return nil
}

// InitAll calls Init(confDir) on every registered plugin implementing
// Initializer, in ascending Order with registration order breaking ties.
// A plugin returning false from Init fails startup with ErrorInitFailed.
func InitAll(confDir string) error {
	mu.Lock()
	ordered := orderedLocked()
	mu.Unlock()

	for _, e := range ordered {
		if init, ok := e.p.(Initializer); ok {
			if !init.Init(confDir) {
				return ErrorInitFailed.Error()
			}
		}
	}

	return nil
}

// DestroyAll calls Destroy() on every registered plugin implementing
// Destroyer, in reverse startup order.
func DestroyAll() {
	mu.Lock()
	ordered := orderedLocked()
	mu.Unlock()

	for i := len(ordered) - 1; i >= 0; i-- {
		if d, ok := ordered[i].p.(Destroyer); ok {
			d.Destroy()
		}
	}
}

// Dispatch walks the registry in Order and returns the first non-nil
// session.Handler produced by CreateSession, implementing session.Dispatcher.
// When no plugin claims req, it returns a KindNoHandler HandlerError (503)
// rather than a nil Handler, so the session loop never calls through a nil
// function value.
func Dispatch(req *protocol.Request) (session.Handler, error) {
	mu.Lock()
	ordered := orderedLocked()
	mu.Unlock()

	for _, e := range ordered {
		h, err := e.p.CreateSession(req)
		if err != nil {
			return nil, err
		}
		if h != nil {
			return h, nil
		}
	}

	return nil, protocol.NewKindError(protocol.KindNoHandler, nil)
}

// Count returns the number of registered plugins, for diagnostics.
func Count() int {
	mu.Lock()
	defer mu.Unlock()
	return len(entries)
}

func orderedLocked() []entry {
	if !sorted {
		sort.SliceStable(entries, func(i, j int) bool {
			return entries[i].p.Order() < entries[j].p.Order()
		})
		sorted = true
	}

	out := make([]entry, len(entries))
	copy(out, entries)
	return out
}
