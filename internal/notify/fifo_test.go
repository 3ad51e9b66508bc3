//go:build linux || darwin

package notify

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFIFO(t *testing.T) {
	path := filepath.Join(t.TempDir(), "inform")
	fifo, err := OpenFIFO(path)
	require.NoError(t, err)
	defer fifo.Close()

	fi, err := os.Stat(path)
	require.NoError(t, err)
	assert.NotZero(t, fi.Mode()&os.ModeNamedPipe)

	buf := make([]byte, 256)
	_, err = fifo.ReadTimeout(buf, 20*time.Millisecond)
	assert.ErrorIs(t, err, ErrTimeout)

	w, err := os.OpenFile(path, os.O_WRONLY, 0)
	require.NoError(t, err)
	_, err = w.WriteString("1.3.6.1.4.1.1718.3.2.3.1.11.1.1.1 1")
	require.NoError(t, err)
	require.NoError(t, w.Close())

	n, err := fifo.ReadTimeout(buf, time.Second)
	require.NoError(t, err)
	assert.Equal(t, "1.3.6.1.4.1.1718.3.2.3.1.11.1.1.1 1", string(buf[:n]))

	// the writer going away is not an end of stream
	_, err = fifo.ReadTimeout(buf, 20*time.Millisecond)
	assert.ErrorIs(t, err, ErrTimeout)
}

func TestOpenFIFORejectsRegularFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "inform")
	require.NoError(t, os.WriteFile(path, nil, 0644))
	_, err := OpenFIFO(path)
	assert.Error(t, err)
}
