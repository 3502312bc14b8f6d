package runner

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueue_Cycle(t *testing.T) {
	ctx := context.Background()
	q := newQueue([]int{1, 2})

	a, err := q.alloc(ctx)
	require.NoError(t, err)
	b, err := q.alloc(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, []int{1, 2}, []int{a, b})

	require.NoError(t, q.enque(ctx, a))
	require.NoError(t, q.enque(ctx, b))
	got, err := q.deque(ctx)
	require.NoError(t, err)
	assert.Equal(t, a, got, "deque is first in, first out")

	q.release(got)
	again, err := q.alloc(ctx)
	require.NoError(t, err)
	assert.Equal(t, a, again)
}

func TestQueue_AllocBlocksWhileEverySlotIsOwned(t *testing.T) {
	q := newQueue([]int{7})
	_, err := q.alloc(context.Background())
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err = q.alloc(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	ctx2, cancel2 := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel2()
	_, err = q.deque(ctx2)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
