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

// Package buffer provides the cursor-based scratch buffer shared by the
// reactor and consumed by the protocol decoder. It owns a single backing
// store with a read cursor and a write-end cursor; Commit compacts
// unconsumed bytes to the front instead of copying on every parse step.
package buffer

import "sync"

// Buffer is a growable byte store with two cursors: Current marks the start
// of unconsumed data, End marks the end of valid data. Parsing advances
// Current; filling from a socket advances End. Commit moves the
// current..end suffix to offset zero, freeing room ahead of End.
type Buffer struct {
	mu      sync.Mutex
	store   []byte
	current int
	end     int
	max     int
}

// New allocates a Buffer with the given initial capacity and an optional
// hard ceiling (max <= 0 means unbounded growth).
func New(capacity, max int) *Buffer {
	if capacity <= 0 {
		capacity = 4096
	}

	return &Buffer{
		store: make([]byte, capacity),
		max:   max,
	}
}

// Len returns the number of unconsumed bytes (end - current).
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.end - b.current
}

// Cap returns the total backing store capacity.
func (b *Buffer) Cap() int {
	b.mu.Lock()
	defer b.mu.Unlock()

	return len(b.store)
}

// Bytes returns the unconsumed slice current..end. The slice aliases the
// internal store and is only valid until the next mutating call.
func (b *Buffer) Bytes() []byte {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.store[b.current:b.end]
}

// Advance consumes n bytes from the front of the unconsumed region. It
// never moves Current past End.
func (b *Buffer) Advance(n int) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.current += n
	if b.current > b.end {
		b.current = b.end
	}
}

// Commit compacts the unconsumed suffix current..end to the front of the
// backing store, preserving its bytes exactly, and resets Current to 0.
func (b *Buffer) Commit() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.commitLocked()
}

func (b *Buffer) commitLocked() {
	if b.current == 0 {
		return
	}

	n := copy(b.store, b.store[b.current:b.end])
	b.current = 0
	b.end = n
}

// Reset discards all unconsumed data and rewinds both cursors to zero.
func (b *Buffer) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.current = 0
	b.end = 0
}

// FillSlot returns a slice suitable as the destination of one read(2)-style
// call: the free region after End. It grows the backing store (doubling,
// bounded by max when max > 0) if the free region is too small to be
// useful, compacting first via Commit semantics.
func (b *Buffer) FillSlot(want int) ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.commitLocked()

	if want <= 0 {
		want = len(b.store) - b.end
		if want <= 0 {
			want = 4096
		}
	}

	if free := len(b.store) - b.end; free < want {
		newCap := len(b.store) * 2
		for newCap-b.end < want {
			newCap *= 2
		}

		if b.max > 0 && newCap > b.max {
			newCap = b.max
		}

		if newCap-b.end < want {
			return nil, ErrorBufferFull.Error()
		}

		grown := make([]byte, newCap)
		copy(grown, b.store[:b.end])
		b.store = grown
	}

	return b.store[b.end : b.end+want], nil
}

// Filled records that n bytes were written into the slice previously
// returned by FillSlot, advancing End.
func (b *Buffer) Filled(n int) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.end += n
	if b.end > len(b.store) {
		b.end = len(b.store)
	}
}

// Append copies p directly onto the end of the unconsumed region, growing
// as FillSlot would.
func (b *Buffer) Append(p []byte) error {
	slot, err := b.FillSlot(len(p))
	if err != nil {
		return err
	}

	n := copy(slot, p)
	b.Filled(n)

	return nil
}
