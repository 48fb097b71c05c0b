package streaming

import (
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenBuffer_DeliversEveryFragmentInOrder(t *testing.T) {
	for _, n := range []int{0, 1, 7, 10, 23, 100} {
		for _, size := range []int{1, 2, 3, 10, 64} {
			t.Run(fmt.Sprintf("n=%d/batch=%d", n, size), func(t *testing.T) {
				var fragments []string
				for i := 0; i < n; i++ {
					fragments = append(fragments, fmt.Sprintf("f%d ", i))
				}

				var flushed []string
				batches := 0
				buf := NewTokenBuffer(size, func(batch []string) {
					assert.LessOrEqual(t, len(batch), size)
					flushed = append(flushed, batch...)
					batches++
				})
				for _, f := range fragments {
					buf.Add(f)
				}
				buf.Flush()

				assert.Equal(t, strings.Join(fragments, ""), strings.Join(flushed, ""))
				assert.Equal(t, 0, buf.Len())
				assert.Equal(t, (n+size-1)/size, batches)
			})
		}
	}
}

func TestTokenBuffer_FlushesAtBatchSize(t *testing.T) {
	var got [][]string
	buf := NewTokenBuffer(3, func(batch []string) { got = append(got, batch) })

	buf.Add("a")
	buf.Add("b")
	assert.Empty(t, got)
	assert.Equal(t, 2, buf.Len())

	buf.Add("c")
	require.Len(t, got, 1)
	assert.Equal(t, []string{"a", "b", "c"}, got[0])

	buf.Flush()
	assert.Len(t, got, 1, "empty flush delivers nothing")
}

func TestTokenBuffer_Clear(t *testing.T) {
	calls := 0
	buf := NewTokenBuffer(10, func([]string) { calls++ })
	buf.Add("a")
	buf.Clear()
	buf.Flush()
	assert.Equal(t, 0, calls)
}

func TestTokenBuffer_DefaultSize(t *testing.T) {
	var got []string
	buf := NewTokenBuffer(0, func(b []string) { got = b })
	for i := 0; i < DefaultBatchSize; i++ {
		buf.Add("x")
	}
	assert.Len(t, got, DefaultBatchSize)
}

func TestTokenBuffer_ConcurrentAdds(t *testing.T) {
	var mu sync.Mutex
	total := 0
	buf := NewTokenBuffer(4, func(b []string) {
		mu.Lock()
		total += len(b)
		mu.Unlock()
	})

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				buf.Add("x")
			}
		}()
	}
	wg.Wait()
	buf.Flush()

	assert.Equal(t, 400, total)
}
