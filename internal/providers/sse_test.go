package providers

import (
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSSEReaderSplitsEvents(t *testing.T) {
	body := "data: a\n\ndata: b\ndata: c\n\nevent: ping\n\ndata: d"
	r := newSSEReader(strings.NewReader(body))

	ev, err := r.Next()
	require.NoError(t, err)
	assert.Equal(t, "a", string(ev))

	// Multiple data lines in one event are newline-joined.
	ev, err = r.Next()
	require.NoError(t, err)
	assert.Equal(t, "b\nc", string(ev))

	// The data-less ping event is skipped; the trailing partial event is
	// flushed at EOF.
	ev, err = r.Next()
	require.NoError(t, err)
	assert.Equal(t, "d", string(ev))

	_, err = r.Next()
	assert.Equal(t, io.EOF, err)
}

func TestSSEReaderCRLF(t *testing.T) {
	body := "data: one\r\n\r\ndata: two\r\n\r\n"
	r := newSSEReader(strings.NewReader(body))

	ev, err := r.Next()
	require.NoError(t, err)
	assert.Equal(t, "one", string(ev))

	ev, err = r.Next()
	require.NoError(t, err)
	assert.Equal(t, "two", string(ev))

	_, err = r.Next()
	assert.Equal(t, io.EOF, err)
}

func TestSSEReaderEmptyBody(t *testing.T) {
	r := newSSEReader(strings.NewReader(""))
	_, err := r.Next()
	assert.Equal(t, io.EOF, err)
}

func TestNextSSEEventFlush(t *testing.T) {
	event, rest, ok := nextSSEEvent([]byte("data: x\n\nrest"), false)
	require.True(t, ok)
	assert.Equal(t, "data: x", string(event))
	assert.Equal(t, "rest", string(rest))

	_, _, ok = nextSSEEvent([]byte("data: partial"), false)
	assert.False(t, ok)

	event, _, ok = nextSSEEvent([]byte("data: partial"), true)
	require.True(t, ok)
	assert.Equal(t, "data: partial", string(event))

	_, _, ok = nextSSEEvent([]byte("  \n"), true)
	assert.False(t, ok)
}
