// Package buffer pools the part-sized byte slices used by write streams.
package buffer

import (
	"sync"
	"sync/atomic"
)

const (
	// DefaultMinClass is the smallest pooled size class.
	DefaultMinClass = 64 * 1024
	// DefaultMaxClass is the largest pooled size class.
	DefaultMaxClass = 64 * 1024 * 1024
)

// BytePool hands out byte slices from power-of-two size classes.
// Requests above the largest class are allocated directly.
type BytePool struct {
	classes []int
	pools   []*sync.Pool

	gets   atomic.Int64
	puts   atomic.Int64
	misses atomic.Int64
}

// NewBytePool creates a pool with classes doubling from minClass up to maxClass.
func NewBytePool(minClass, maxClass int) *BytePool {
	if minClass <= 0 {
		minClass = DefaultMinClass
	}
	if maxClass < minClass {
		maxClass = minClass
	}

	p := &BytePool{}
	for size := minClass; size <= maxClass; size *= 2 {
		size := size
		p.classes = append(p.classes, size)
		p.pools = append(p.pools, &sync.Pool{
			New: func() interface{} {
				return make([]byte, size)
			},
		})
	}
	return p
}

// Get returns a slice of length size. Its capacity is the size class.
func (p *BytePool) Get(size int) []byte {
	p.gets.Add(1)
	for i, class := range p.classes {
		if class >= size {
			buf := p.pools[i].Get().([]byte)
			return buf[:size]
		}
	}
	p.misses.Add(1)
	return make([]byte, size)
}

// Put returns buf to its size class. Slices whose capacity is not a class are dropped.
func (p *BytePool) Put(buf []byte) {
	if buf == nil {
		return
	}
	for i, class := range p.classes {
		if cap(buf) == class {
			buf = buf[:class]
			clear(buf)
			p.puts.Add(1)
			// nolint:staticcheck // SA6002: sync.Pool.Put requires interface{}, slice allocation is expected
			p.pools[i].Put(buf)
			return
		}
	}
}

// PoolStats reports pool usage.
type PoolStats struct {
	Classes []int `json:"classes"`
	Gets    int64 `json:"gets"`
	Puts    int64 `json:"puts"`
	Misses  int64 `json:"misses"`
}

// Stats returns a snapshot of pool usage.
func (p *BytePool) Stats() PoolStats {
	classes := make([]int, len(p.classes))
	copy(classes, p.classes)
	return PoolStats{
		Classes: classes,
		Gets:    p.gets.Load(),
		Puts:    p.puts.Load(),
		Misses:  p.misses.Load(),
	}
}

var defaultBytePool = NewBytePool(DefaultMinClass, DefaultMaxClass)

// Default returns the process-wide pool.
func Default() *BytePool {
	return defaultBytePool
}
