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

import (
	"sync"

	libkvd "github.com/nabbar/golib/database/kvdriver"
	libkvt "github.com/nabbar/golib/database/kvtypes"

	"github.com/nabbar/dracon/lru"
)

// SegmentCache memoizes the outcome of splitSegments for a raw path
// template, storage mediated by a kvdriver.KVDriver (an in-memory map
// behind the storage-agnostic Get/Set/Del/List contract) with eviction
// governed by an lru.Cache. High-cardinality template sets (a plugin
// registering many routes at startup, or a proxy rewriting paths on the
// fly) never grow the backing map unbounded.
type SegmentCache struct {
	mu    sync.Mutex
	drv   libkvt.KVDriver[string, []segment]
	store map[string][]segment
	evict *lru.Cache
}

// NewSegmentCache bounds the cache at size compiled templates.
func NewSegmentCache(size int) (*SegmentCache, error) {
	evict, err := lru.New(size)
	if err != nil {
		return nil, err
	}

	c := &SegmentCache{store: make(map[string][]segment), evict: evict}
	c.drv = libkvd.New[string, []segment](
		nil,
		func(key string) ([]segment, error) {
			c.mu.Lock()
			defer c.mu.Unlock()
			return c.store[key], nil
		},
		func(key string, model []segment) error {
			c.mu.Lock()
			defer c.mu.Unlock()
			c.store[key] = model
			return nil
		},
		func(key string) error {
			c.mu.Lock()
			defer c.mu.Unlock()
			delete(c.store, key)
			return nil
		},
		func() ([]string, error) {
			c.mu.Lock()
			defer c.mu.Unlock()
			keys := make([]string, 0, len(c.store))
			for k := range c.store {
				keys = append(keys, k)
			}
			return keys, nil
		},
		nil,
	)

	return c, nil
}

// Compile returns the segment slice for template, compiling and caching it
// on first use; repeated lookups for the same template are an LRU hit and
// never re-run splitSegments. The kvdriver-backed map is the source of
// truth for a key still resident; the LRU index alone decides how long it
// stays resident.
func (c *SegmentCache) Compile(template string) []segment {
	if v, ok := c.evict.Value(template); ok {
		if segs, ok := v.([]segment); ok {
			return segs
		}
	}

	segs := splitSegments(template)
	_ = c.drv.Set(template, segs)
	c.evict.Put(template, segs)

	return segs
}

// Keys lists the templates currently resident in the backing store, via
// the kvdriver List contract.
func (c *SegmentCache) Keys() ([]string, error) {
	return c.drv.List()
}
