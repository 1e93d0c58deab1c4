package client

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type greeter interface {
	Greet() string
}

type greeterImpl struct{ msg string }

func (g *greeterImpl) Greet() string { return g.msg }

type counter interface {
	Count() int
}

type counterImpl struct{ n int }

func (c *counterImpl) Count() int { return c.n }

func TestRegisterAndGet(t *testing.T) {
	h := NewHub()

	Register[greeter](h, &greeterImpl{msg: "hello"})

	g, ok := Get[greeter](h)
	require.True(t, ok)
	assert.Equal(t, "hello", g.Greet())
}

func TestGetMissing(t *testing.T) {
	h := NewHub()

	_, ok := Get[greeter](h)
	assert.False(t, ok)
}

func TestTypeIdentityPreserved(t *testing.T) {
	h := NewHub()

	Register[greeter](h, &greeterImpl{msg: "hi"})
	Register[counter](h, &counterImpl{n: 7})

	g, ok := Get[greeter](h)
	require.True(t, ok)
	assert.Equal(t, "hi", g.Greet())

	c, ok := Get[counter](h)
	require.True(t, ok)
	assert.Equal(t, 7, c.Count())
}

func TestLastWriterWinsGlobal(t *testing.T) {
	h := NewHub()

	Register[greeter](h, &greeterImpl{msg: "first"})
	Register[greeter](h, &greeterImpl{msg: "second"})

	g, ok := Get[greeter](h)
	require.True(t, ok)
	assert.Equal(t, "second", g.Greet())
}

func TestScopedEntriesDistinct(t *testing.T) {
	h := NewHub()

	RegisterScoped[greeter](h, "tenant-a", &greeterImpl{msg: "a"})
	RegisterScoped[greeter](h, "tenant-b", &greeterImpl{msg: "b"})

	a, ok := GetScoped[greeter](h, "tenant-a")
	require.True(t, ok)
	assert.Equal(t, "a", a.Greet())

	b, ok := GetScoped[greeter](h, "tenant-b")
	require.True(t, ok)
	assert.Equal(t, "b", b.Greet())

	_, ok = Get[greeter](h)
	assert.False(t, ok, "global scope not populated by scoped registration")
}

func TestConcurrentAccess(t *testing.T) {
	h := NewHub()
	Register[greeter](h, &greeterImpl{msg: "base"})

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			Register[counter](h, &counterImpl{n: 1})
		}()
		go func() {
			defer wg.Done()
			_, _ = Get[greeter](h)
		}()
	}
	wg.Wait()

	assert.Equal(t, 2, h.Len())
}
