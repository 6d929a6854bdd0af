package state

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestConcurrentSet(t *testing.T) {
	s := NewConcurrentSet[VertexId]()
	wg := sync.WaitGroup{}
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				s.Insert(VertexId(i % 50))
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 50, s.Len())
	assert.True(t, s.Contains(49))
	assert.False(t, s.Contains(50))
	sorted := s.Sorted()
	assert.Len(t, sorted, 50)
	assert.IsNonDecreasing(t, sorted)
	assert.False(t, s.Insert(3))
	assert.True(t, s.Insert(77))
}
