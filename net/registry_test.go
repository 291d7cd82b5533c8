package net

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRegistry_Empty(t *testing.T) {
	reg := newRegistry()
	assert.Equal(t, 0, reg.Size())
	assert.Nil(t, reg.Get("a"))
	assert.Empty(t, reg.All())
	assert.Empty(t, reg.Identities())
}

func TestRegistry_PutReplace(t *testing.T) {
	ctx := NewTestContext()
	first := WrapConnection(ctx, newFakeHandle())
	second := WrapConnection(ctx, newFakeHandle())

	reg := newRegistry()
	assert.Nil(t, reg.Put("a", first))
	assert.Equal(t, first, reg.Put("a", second))
	assert.Equal(t, 1, reg.Size())
	assert.Equal(t, second, reg.Get("a"))
}

func TestRegistry_RemoveIf(t *testing.T) {
	ctx := NewTestContext()
	first := WrapConnection(ctx, newFakeHandle())
	second := WrapConnection(ctx, newFakeHandle())

	reg := newRegistry()
	reg.Put("a", second)
	assert.False(t, reg.RemoveIf("a", first))
	assert.False(t, reg.RemoveIf("b", second))
	assert.True(t, reg.RemoveIf("a", second))
	assert.Equal(t, 0, reg.Size())
}

func TestRegistry_Sorted(t *testing.T) {
	ctx := NewTestContext()

	reg := newRegistry()
	for _, id := range []string{"c:1", "a:1", "b:1"} {
		reg.Put(id, WrapConnection(ctx, newFakeHandle()))
	}

	assert.Equal(t, []string{"a:1", "b:1", "c:1"}, reg.Identities())
	assert.Equal(t, 3, len(reg.All()))
}
