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

// Package lru wraps hashicorp/golang-lru with the narrow, string-keyed
// shape this server needs: a bounded peer-rejection counter window and a
// compiled-route-segment cache, both exercising the same eviction policy
// (§8's "LRU order" testable property is verified directly against this
// package).
package lru

import (
	lruc "github.com/hashicorp/golang-lru"
)

// Cache is a bounded, thread-safe LRU of at most N entries; the
// least-recently-used entry is evicted first on overflow.
type Cache struct {
	c *lruc.Cache
}

// New creates a Cache bounded at size entries.
func New(size int) (*Cache, error) {
	if size <= 0 {
		return nil, ErrorInvalidSize.Error()
	}

	c, err := lruc.New(size)
	if err != nil {
		return nil, ErrorInvalidSize.Error(err)
	}

	return &Cache{c: c}, nil
}

// Put inserts or updates key, marking it most-recently-used.
func (c *Cache) Put(key, value interface{}) {
	c.c.Add(key, value)
}

// Value returns the value stored for key, marking it most-recently-used on
// a hit, matching the "value" accessor named in §8.
func (c *Cache) Value(key interface{}) (interface{}, bool) {
	return c.c.Get(key)
}

// Reference is an alias for Value used where the caller only wants to bump
// recency without caring about the returned value (§8 names both "value"
// and "reference" as the operations that affect LRU order).
func (c *Cache) Reference(key interface{}) bool {
	_, ok := c.c.Get(key)
	return ok
}

// Len returns the number of entries currently cached.
func (c *Cache) Len() int {
	return c.c.Len()
}

// Remove evicts key if present.
func (c *Cache) Remove(key interface{}) {
	c.c.Remove(key)
}
