package registry_test

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opsgraph/opsgraph/pkg/opsgraph/registry"
)

func TestRegistry_RegisterAndGet(t *testing.T) {
	r := registry.New[string, int]()

	_, ok := r.Get("a")
	assert.False(t, ok)

	r.Register("a", 1)
	r.Register("b", 2)

	v, ok := r.Get("a")
	require.True(t, ok)
	assert.Equal(t, 1, v)
	assert.Equal(t, 2, r.Len())
	assert.ElementsMatch(t, []string{"a", "b"}, r.Keys())
}

func TestRegistry_RegisterOverwrites(t *testing.T) {
	r := registry.New[string, int]()
	r.Register("a", 1)
	r.Register("a", 9)

	v, _ := r.Get("a")
	assert.Equal(t, 9, v)
	assert.Equal(t, 1, r.Len())
}

func TestRegistry_ConcurrentAccess(t *testing.T) {
	r := registry.New[int, int]()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		i := i
		wg.Add(2)
		go func() {
			defer wg.Done()
			r.Register(i, i)
		}()
		go func() {
			defer wg.Done()
			r.Get(i)
		}()
	}
	wg.Wait()

	assert.Equal(t, 50, r.Len())
}
