package notify

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryChannel(t *testing.T) {
	t.Parallel()
	ch := NewMemory()

	buf := make([]byte, 8)
	_, err := ch.ReadTimeout(buf, 10*time.Millisecond)
	assert.ErrorIs(t, err, ErrTimeout)

	_, err = ch.Write([]byte("1.3.6.1 2\n"))
	require.NoError(t, err)

	n, err := ch.ReadTimeout(buf, time.Second)
	require.NoError(t, err)
	assert.Equal(t, "1.3.6.1 ", string(buf[:n]))

	n, err = ch.ReadTimeout(buf, time.Second)
	require.NoError(t, err)
	assert.Equal(t, "2\n", string(buf[:n]))

	require.NoError(t, ch.Close())
	require.NoError(t, ch.Close())
	_, err = ch.ReadTimeout(buf, time.Second)
	assert.ErrorIs(t, err, ErrClosed)
	_, err = ch.Write([]byte("x"))
	assert.ErrorIs(t, err, ErrClosed)
}
