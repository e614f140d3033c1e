package session

import (
	"context"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHandoff_FIFOAndDrainAfterClose(t *testing.T) {
	tests := []struct {
		name string
		size int
	}{
		{name: "bounded", size: 16},
		{name: "unbounded", size: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			q := newHandoff(tt.size)
			for i := 0; i < 10; i++ {
				require.NoError(t, q.Put(ctx, []byte(strconv.Itoa(i))))
			}
			assert.Equal(t, 10, q.Len())
			q.Close()

			for i := 0; i < 10; i++ {
				frame, ok, err := q.Get(ctx)
				require.NoError(t, err)
				require.True(t, ok)
				assert.Equal(t, strconv.Itoa(i), string(frame))
			}

			frame, ok, err := q.Get(ctx)
			require.NoError(t, err)
			assert.False(t, ok)
			assert.Nil(t, frame)
		})
	}
}

func TestBoundedQueue_Backpressure(t *testing.T) {
	q := newHandoff(1)
	ctx := context.Background()
	require.NoError(t, q.Put(ctx, []byte("a")))

	put := make(chan error, 1)
	go func() { put <- q.Put(ctx, []byte("b")) }()

	select {
	case <-put:
		t.Fatal("Put on a full queue should block")
	case <-time.After(50 * time.Millisecond):
	}

	frame, ok, err := q.Get(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "a", string(frame))

	select {
	case err := <-put:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Put did not resume after Get")
	}

	frame, _, err = q.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, "b", string(frame))
}

func TestBoundedQueue_PutHonoursContext(t *testing.T) {
	q := newHandoff(1)
	require.NoError(t, q.Put(context.Background(), []byte("a")))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, q.Put(ctx, []byte("b")), context.DeadlineExceeded)
}

func TestHandoff_GetHonoursContext(t *testing.T) {
	for _, size := range []int{0, 4} {
		q := newHandoff(size)
		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		_, ok, err := q.Get(ctx)
		cancel()
		assert.ErrorIs(t, err, context.DeadlineExceeded)
		assert.False(t, ok)
	}
}

func TestUnboundedQueue_WakesWaitingConsumer(t *testing.T) {
	q := newUnboundedQueue()
	ctx := context.Background()

	got := make(chan string, 1)
	go func() {
		frame, ok, err := q.Get(ctx)
		if err == nil && ok {
			got <- string(frame)
		}
	}()

	time.Sleep(20 * time.Millisecond)
	require.NoError(t, q.Put(ctx, []byte("late")))

	select {
	case frame := <-got:
		assert.Equal(t, "late", frame)
	case <-time.After(time.Second):
		t.Fatal("consumer was not woken")
	}
}

func TestUnboundedQueue_PutAfterClose(t *testing.T) {
	q := newUnboundedQueue()
	q.Close()
	assert.ErrorIs(t, q.Put(context.Background(), []byte("x")), errQueueClosed)
}
