//go:build linux || darwin

package notify

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sys/unix"
)

// DefaultFIFOPath is where the SNMP engine's variation module writes.
func DefaultFIFOPath() string {
	return filepath.Join(os.TempDir(), "inform")
}

// FIFO reads notifications from a named pipe.
type FIFO struct {
	path string
	file *os.File
	once sync.Once
}

// OpenFIFO creates the named pipe at path if needed and opens it. The pipe
// is opened read-write so that a writer closing its end never turns into
// an endless stream of EOFs.
func OpenFIFO(path string) (*FIFO, error) {
	if path == "" {
		path = DefaultFIFOPath()
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		if err := unix.Mkfifo(path, 0666); err != nil {
			return nil, fmt.Errorf("failed to create fifo %s: %w", path, err)
		}
		log.Debug().Str("path", path).Msg("created notification fifo")
	}
	fi, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("failed to stat fifo %s: %w", path, err)
	}
	if fi.Mode()&os.ModeNamedPipe == 0 {
		return nil, fmt.Errorf("%s exists and is not a named pipe", path)
	}
	f, err := os.OpenFile(path, os.O_RDWR|unix.O_NONBLOCK, os.ModeNamedPipe)
	if err != nil {
		return nil, fmt.Errorf("failed to open fifo %s: %w", path, err)
	}
	return &FIFO{path: path, file: f}, nil
}

func (f *FIFO) Path() string {
	return f.path
}

func (f *FIFO) ReadTimeout(p []byte, d time.Duration) (int, error) {
	if err := f.file.SetReadDeadline(time.Now().Add(d)); err != nil {
		return 0, fmt.Errorf("failed to set read deadline: %w", err)
	}
	n, err := f.file.Read(p)
	switch {
	case errors.Is(err, os.ErrDeadlineExceeded):
		return n, ErrTimeout
	case errors.Is(err, os.ErrClosed):
		return n, ErrClosed
	}
	return n, err
}

func (f *FIFO) Close() error {
	var err error
	f.once.Do(func() {
		err = f.file.Close()
	})
	return err
}
