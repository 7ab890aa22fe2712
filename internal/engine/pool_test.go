package engine

import (
	"testing"

	"github.com/stretchr/testify/require"
)

type poolItem struct {
	id      int
	cleared bool
}

func (p *poolItem) clear() { p.cleared = true }

func TestContextPoolAcquireReleaseLIFO(t *testing.T) {
	next := 0
	pool := newContextPool(4, func() *poolItem {
		next++
		return &poolItem{id: next}
	})

	a := pool.acquire()
	b := pool.acquire()
	require.Equal(t, 1, a.id)
	require.Equal(t, 2, b.id)

	pool.release(a)
	pool.release(b)
	require.True(t, a.cleared)
	require.True(t, b.cleared)

	// LIFO: b was released last, so it comes back first.
	got := pool.acquire()
	require.Same(t, b, got)
	got2 := pool.acquire()
	require.Same(t, a, got2)
}

func TestContextPoolReleaseIsIdempotent(t *testing.T) {
	pool := newContextPool(4, func() *poolItem { return &poolItem{} })
	item := pool.acquire()

	pool.release(item)
	require.Equal(t, 1, pool.size())

	pool.release(item) // double release must not duplicate the entry
	require.Equal(t, 1, pool.size())
}

func TestContextPoolReleaseBeyondMaxDropsSilently(t *testing.T) {
	pool := newContextPool(1, func() *poolItem { return &poolItem{} })
	a := pool.acquire()
	b := pool.acquire()

	pool.release(a)
	require.Equal(t, 1, pool.size())

	pool.release(b) // pool already full: b is cleared but not retained
	require.Equal(t, 1, pool.size())
	require.True(t, b.cleared)
}

func TestContextPoolZeroMaxStillClearsOnRelease(t *testing.T) {
	pool := newContextPool(0, func() *poolItem { return &poolItem{} })
	item := pool.acquire()
	pool.release(item)

	require.True(t, item.cleared)
	require.Equal(t, 0, pool.size())
}
