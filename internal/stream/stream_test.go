package stream

import (
	"context"
	"errors"
	"io"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOfPreservesOrder(t *testing.T) {
	got, err := Collect(context.Background(), Of(1, 2, 3))
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2, 3}, got)
}

func TestEmptyEndsImmediately(t *testing.T) {
	s := Empty[string]()
	_, err := s.Next(context.Background())
	assert.ErrorIs(t, err, io.EOF)
}

func TestProducerErrorSurfacesAfterDrain(t *testing.T) {
	boom := errors.New("upstream broke")
	s, w := New[string]()
	go func() {
		w.Send(context.Background(), "partial")
		w.Close(boom)
	}()

	v, err := s.Next(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "partial", v)

	_, err = s.Next(context.Background())
	assert.ErrorIs(t, err, boom)
}

func TestNextHonorsCancellation(t *testing.T) {
	s, _ := New[int]()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := s.Next(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestSendStopsOnCancelledConsumer(t *testing.T) {
	_, w := New[int]()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.False(t, w.Send(ctx, 1))
}

func TestOfAbandonedWithoutDraining(t *testing.T) {
	before := runtime.NumGoroutine()
	for i := 0; i < 50; i++ {
		s := Of(1, 2, 3)
		_, err := s.Next(context.Background())
		require.NoError(t, err)
	}
	// Pre-buffered construction: abandoning the stream leaves no producer
	// goroutine behind.
	assert.LessOrEqual(t, runtime.NumGoroutine(), before+1)
}

func TestMapTransformsInOrder(t *testing.T) {
	src := Of("a", "b", "c")
	out := Map(context.Background(), src, func(s string) (string, error) {
		return s + "!", nil
	})
	got, err := Collect(context.Background(), out)
	require.NoError(t, err)
	assert.Equal(t, []string{"a!", "b!", "c!"}, got)
}

func TestMapStopsAtFirstError(t *testing.T) {
	boom := errors.New("bad element")
	src := Of(1, 2, 3)
	out := Map(context.Background(), src, func(n int) (int, error) {
		if n == 2 {
			return 0, boom
		}
		return n * 10, nil
	})
	got, err := Collect(context.Background(), out)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, []int{10}, got)
}

func TestMapPropagatesSourceError(t *testing.T) {
	boom := errors.New("source broke")
	src, w := New[int]()
	go func() {
		w.Send(context.Background(), 1)
		w.Close(boom)
	}()
	out := Map(context.Background(), src, func(n int) (int, error) { return n, nil })
	got, err := Collect(context.Background(), out)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, []int{1}, got)
}
