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

// Package router implements the RESTful, path-template router described in
// §4.5: literal/brace-capture segments, query parsing, the pre-computed
// Allow list, and an OPTIONS/CORS convenience.
package router

import (
	"sort"
	"strings"

	"github.com/nabbar/dracon/protocol"
)

// segment is one path component of a Route template.
type segment struct {
	literal string
	capture string // non-empty for a {name} segment
}

func (s segment) isCapture() bool { return s.capture != "" }

// HandlerFactory builds a protocol-level Handler once a route has matched
// and its ParsedRoute is known. Defined generically (func(*ParsedRoute)
// (interface{}, error)) so this package has no dependency on session or
// plugin - callers supply whatever concrete handler signature they use.
type HandlerFactory func(pr *ParsedRoute) (interface{}, error)

// Route is a URL template mapped to per-method handler factories.
type Route struct {
	segments []segment
	handlers map[string]HandlerFactory
	allow    string // pre-computed comma-joined method list, excluding OPTIONS
}

// NewRoute parses template (e.g. "/v1/devices/{id}") into segments.
func NewRoute(template string) *Route {
	return &Route{
		segments: splitSegments(template),
		handlers: make(map[string]HandlerFactory),
	}
}

// Handle registers fn for method, recomputing the Allow list.
func (r *Route) Handle(method string, fn HandlerFactory) *Route {
	r.handlers[strings.ToUpper(method)] = fn
	r.recomputeAllow()
	return r
}

func (r *Route) recomputeAllow() {
	methods := make([]string, 0, len(r.handlers))
	for m := range r.handlers {
		if m != "OPTIONS" {
			methods = append(methods, m)
		}
	}
	sort.Strings(methods)
	r.allow = strings.Join(methods, ", ")
}

func splitSegments(template string) []segment {
	parts := strings.Split(strings.Trim(template, "/"), "/")
	segs := make([]segment, 0, len(parts))

	for _, p := range parts {
		if p == "" {
			continue
		}
		if strings.HasPrefix(p, "{") && strings.HasSuffix(p, "}") {
			segs = append(segs, segment{capture: p[1 : len(p)-1]})
		} else {
			segs = append(segs, segment{literal: p})
		}
	}

	return segs
}

// ParsedRoute is the output of a successful match: capture map, ordered
// query pairs, and the pre-computed allow list.
type ParsedRoute struct {
	Captures map[string]string
	Query    []QueryPair
	Allow    string
}

// QueryPair is one k=v component of a query string, order-preserved.
type QueryPair struct {
	Key, Value string
}

// Router holds an optional base path and a linear list of routes.
type Router struct {
	base   []segment
	routes []*Route
}

// New creates a Router with an optional base path, split into literal
// segments (base paths carry no captures).
func New(basePath string) *Router {
	return &Router{base: splitSegments(basePath)}
}

// Add registers route with the router, returning it for chaining .Handle.
func (rt *Router) Add(template string) *Route {
	r := NewRoute(template)
	rt.routes = append(rt.routes, r)
	return r
}

// Lookup performs the 8-step match described in §4.5: splits url into path
// and query, strips the base path, linearly scans routes for a segment-count
// and literal match, populates captures, parses the query string, and
// resolves the method's handler factory (or 405 with Allow).
func (rt *Router) Lookup(url, method string) (*HandlerFactory, *ParsedRoute, error) {
	path, query := splitPathQuery(url)
	pathSegs := splitRawSegments(path)

	rest, ok := stripBase(pathSegs, rt.base)
	if !ok {
		return nil, nil, ErrorNoRoute.Error()
	}

	for _, route := range rt.routes {
		captures, ok := matchSegments(route.segments, rest)
		if !ok {
			continue
		}

		qp, err := parseQuery(query)
		if err != nil {
			return nil, nil, err
		}

		pr := &ParsedRoute{Captures: captures, Query: qp, Allow: route.allow}

		fn, ok := route.handlers[strings.ToUpper(method)]
		if !ok {
			return nil, pr, protocol.NewMethodNotAllowed(route.allow)
		}

		return &fn, pr, nil
	}

	return nil, nil, ErrorNoRoute.Error()
}

func splitPathQuery(url string) (path, query string) {
	if idx := strings.IndexByte(url, '?'); idx >= 0 {
		return url[:idx], url[idx+1:]
	}
	return url, ""
}

// splitRawSegments splits by '/' and drops empty components, so that
// leading/trailing/duplicate slashes never affect matching (§8).
func splitRawSegments(path string) []string {
	raw := strings.Split(path, "/")
	out := make([]string, 0, len(raw))
	for _, p := range raw {
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func stripBase(path []string, base []segment) ([]string, bool) {
	if len(base) > len(path) {
		return nil, false
	}

	for i, b := range base {
		if b.isCapture() || path[i] != b.literal {
			return nil, false
		}
	}

	return path[len(base):], true
}

func matchSegments(segs []segment, parts []string) (map[string]string, bool) {
	if len(segs) != len(parts) {
		return nil, false
	}

	captures := make(map[string]string)

	for i, seg := range segs {
		if seg.isCapture() {
			decoded, err := Unescape(parts[i])
			if err != nil {
				return nil, false
			}
			captures[seg.capture] = decoded
		} else if seg.literal != parts[i] {
			return nil, false
		}
	}

	return captures, true
}

// parseQuery parses "k=v&k=v", URL-decoding both halves; more than one '='
// in a pair fails with a malformed-query error (surfaced as 400 by callers).
func parseQuery(query string) ([]QueryPair, error) {
	if query == "" {
		return nil, nil
	}

	var out []QueryPair

	for _, pair := range strings.Split(query, "&") {
		if pair == "" {
			continue
		}

		parts := strings.Split(pair, "=")
		if len(parts) > 2 {
			return nil, ErrorMalformedQuery.Error()
		}

		k, err := Unescape(parts[0])
		if err != nil {
			return nil, err
		}

		var v string
		if len(parts) == 2 {
			v, err = Unescape(parts[1])
			if err != nil {
				return nil, err
			}
		}

		out = append(out, QueryPair{Key: k, Value: v})
	}

	return out, nil
}
