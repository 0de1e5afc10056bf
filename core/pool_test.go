package core

import (
	"bytes"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBufferPool(t *testing.T) {
	t.Run("Get and Put", func(t *testing.T) {
		pool := NewBufferPool(0)
		require.Equal(t, 0, pool.Len())

		buf := pool.Get()
		require.NotNil(t, buf, "Get() should not return a nil buffer")

		buf.WriteString("hello world")
		assert.Equal(t, "hello world", buf.String())

		pool.Put(buf)
		require.Equal(t, 1, pool.Len(), "Put should return the buffer to the free list")

		buf2 := pool.Get()
		assert.Equal(t, 0, buf2.Len(), "Reused buffer should be reset (length 0)")
		assert.Same(t, buf, buf2)

		hits, misses, created := pool.GetMetrics()
		assert.Equal(t, uint64(1), hits)
		assert.Equal(t, uint64(1), misses)
		assert.Equal(t, uint64(1), created)
	})

	t.Run("With Initial Capacity", func(t *testing.T) {
		pool := NewBufferPool(128)
		buf := pool.Get()
		assert.GreaterOrEqual(t, buf.Cap(), 128)
	})

	t.Run("Bounded free list", func(t *testing.T) {
		pool := NewBufferPool(0)
		bufs := make([]*bytes.Buffer, 0, maxPooledBuffers+10)
		for i := 0; i < maxPooledBuffers+10; i++ {
			bufs = append(bufs, pool.Get())
		}
		for _, b := range bufs {
			pool.Put(b)
		}
		assert.Equal(t, maxPooledBuffers, pool.Len())
	})

	t.Run("Concurrent access", func(t *testing.T) {
		pool := NewBufferPool(16)
		var wg sync.WaitGroup
		for i := 0; i < 8; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for j := 0; j < 100; j++ {
					b := pool.Get()
					b.WriteString("x")
					pool.Put(b)
				}
			}()
		}
		wg.Wait()
		assert.LessOrEqual(t, pool.Len(), 8)
	})
}
