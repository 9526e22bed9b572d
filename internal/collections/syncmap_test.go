package collections

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIdentityMapPutGetRemove(t *testing.T) {
	m := NewIdentityMap[string, int]()

	_, ok := m.Get("a")
	assert.False(t, ok)

	m.Put("a", 1)
	m.Put("b", 2)
	assert.Equal(t, 2, m.Size())

	v, ok := m.Get("a")
	assert.True(t, ok)
	assert.Equal(t, 1, v)

	m.Remove("a")
	_, ok = m.Get("a")
	assert.False(t, ok)
	assert.Equal(t, 1, m.Size())

	assert.ElementsMatch(t, []int{2}, m.Values())
}
