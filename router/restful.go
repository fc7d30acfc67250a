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

package router

import "strings"

// CRUDHandlers is one plugin's resource handlers for a collection mounted
// at basePath/{id}. A nil entry leaves the corresponding method
// unregistered, so the Allow list and 405 responses reflect only the
// operations the plugin actually implements.
type CRUDHandlers struct {
	List   HandlerFactory // GET basePath
	Create HandlerFactory // POST basePath
	Get    HandlerFactory // GET basePath/{id}
	Update HandlerFactory // PUT basePath/{id}
	Delete HandlerFactory // DELETE basePath/{id}
}

// RegisterCRUD wires the standard collection/item route pair for a
// resource, mirroring the create/read/update/delete surface a plugin
// exposes over its own storage (e.g. the devices inventory).
func RegisterCRUD(rt *Router, basePath string, h CRUDHandlers) {
	basePath = strings.TrimRight(basePath, "/")
	itemPath := basePath + "/{id}"

	collection := rt.Add(basePath)
	if h.List != nil {
		collection.Handle("GET", h.List)
	}
	if h.Create != nil {
		collection.Handle("POST", h.Create)
	}

	item := rt.Add(itemPath)
	if h.Get != nil {
		item.Handle("GET", h.Get)
	}
	if h.Update != nil {
		item.Handle("PUT", h.Update)
	}
	if h.Delete != nil {
		item.Handle("DELETE", h.Delete)
	}
}

// CORSPreflight computes the response headers for an OPTIONS request
// against a matched route: Allow plus an echo of Access-Control-Request-
// Headers, so a browser preflight succeeds for whatever headers the
// actual request intends to send.
func CORSPreflight(pr *ParsedRoute, requestedHeaders string) map[string]string {
	headers := map[string]string{
		"Allow":                        pr.Allow,
		"Access-Control-Allow-Methods": pr.Allow,
	}

	if requestedHeaders != "" {
		headers["Access-Control-Allow-Headers"] = requestedHeaders
	}

	return headers
}
