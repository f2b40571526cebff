package buffer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewBytePool_Classes(t *testing.T) {
	p := NewBytePool(1024, 8192)
	assert.Equal(t, []int{1024, 2048, 4096, 8192}, p.Stats().Classes)

	p = NewBytePool(0, 0)
	assert.Equal(t, []int{DefaultMinClass}, p.Stats().Classes)
}

func TestBytePool_GetRoundsUpToClass(t *testing.T) {
	p := NewBytePool(1024, 8192)

	buf := p.Get(3000)
	assert.Len(t, buf, 3000)
	assert.Equal(t, 4096, cap(buf))

	big := p.Get(10000)
	assert.Len(t, big, 10000)

	stats := p.Stats()
	assert.Equal(t, int64(2), stats.Gets)
	assert.Equal(t, int64(1), stats.Misses)
}

func TestBytePool_PutClears(t *testing.T) {
	p := NewBytePool(1024, 1024)

	buf := p.Get(10)
	copy(buf, "secret")
	p.Put(buf)
	assert.Equal(t, int64(1), p.Stats().Puts)

	again := p.Get(1024)
	require.Len(t, again, 1024)
	for _, b := range again {
		if b != 0 {
			t.Fatal("pooled buffer was not cleared")
		}
	}
}

func TestBytePool_PutIgnoresForeignSlices(t *testing.T) {
	p := NewBytePool(1024, 2048)
	p.Put(make([]byte, 100))
	p.Put(nil)
	assert.Zero(t, p.Stats().Puts)
}

func TestDefault(t *testing.T) {
	buf := Default().Get(5 * 1024 * 1024)
	assert.Equal(t, 8*1024*1024, cap(buf))
	Default().Put(buf)
}
