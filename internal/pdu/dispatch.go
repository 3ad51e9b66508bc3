package pdu

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/OpenCHAMI/pdusim/internal/notify"
	"github.com/cznic/mathutil"
	"github.com/rs/zerolog/log"
)

const (
	DEFAULT_READ_TIMEOUT = 10 * time.Second
	MAX_CHUNK            = 256

	// a held back tail longer than this is parsed as is
	maxPending = 4 * MAX_CHUNK
)

// Router receives parsed messages.
type Router interface {
	Dispatch(msg Message) bool
}

type DispatchOptions struct {
	// Timeout bounds each wait on the channel, and therefore how long Stop
	// can take to be noticed.
	Timeout time.Duration
	// Chunk is the largest read, clamped to 1..MAX_CHUNK.
	Chunk int
}

// Dispatcher is the loop that reads the notification channel and hands
// every message to a Router.
type Dispatcher struct {
	ch      notify.Channel
	router  Router
	timeout time.Duration
	chunk   int

	// unterminated tail of the last full read
	pending []byte

	stopped atomic.Bool
	once    sync.Once
}

func NewDispatcher(ch notify.Channel, router Router, opts DispatchOptions) *Dispatcher {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DEFAULT_READ_TIMEOUT
	}
	chunk := MAX_CHUNK
	if opts.Chunk != 0 {
		chunk = mathutil.Clamp(opts.Chunk, 1, MAX_CHUNK)
	}
	return &Dispatcher{ch: ch, router: router, timeout: timeout, chunk: chunk}
}

// Run loops until Stop is called, ctx is done or the channel is closed,
// then closes the channel. Both are checked between waits only.
func (d *Dispatcher) Run(ctx context.Context) error {
	defer d.close()
	buf := make([]byte, d.chunk)
	log.Info().Dur("timeout", d.timeout).Int("chunk", d.chunk).Msg("dispatch loop started")
	for !d.stopped.Load() {
		if err := ctx.Err(); err != nil {
			log.Info().Msg("dispatch loop cancelled")
			return nil
		}
		n, err := d.ch.ReadTimeout(buf, d.timeout)
		switch {
		case errors.Is(err, notify.ErrTimeout):
			d.flush()
			continue
		case errors.Is(err, notify.ErrClosed):
			d.flush()
			log.Info().Msg("notification channel closed")
			return nil
		case err != nil:
			log.Warn().Err(err).Msg("error reading notification channel")
			continue
		}
		if n == 0 {
			continue
		}
		d.deliver(d.split(buf[:n], n == len(buf)))
	}
	d.flush()
	log.Info().Msg("dispatch loop exits")
	return nil
}

// split joins data to the held back tail and returns the part that is
// ready to parse. After a full read the last line may continue in the next
// one, so an unterminated tail is held back.
func (d *Dispatcher) split(data []byte, full bool) []byte {
	joined := append(d.pending, data...)
	d.pending = nil
	if !full || joined[len(joined)-1] == '\n' {
		return joined
	}
	i := bytes.LastIndexByte(joined, '\n')
	if len(joined)-i-1 > maxPending {
		log.Warn().Int("size", len(joined)-i-1).Msg("unterminated message is too long")
		return joined
	}
	d.pending = append([]byte{}, joined[i+1:]...)
	return joined[:i+1]
}

// flush parses whatever tail is still held back.
func (d *Dispatcher) flush() {
	if len(d.pending) == 0 {
		return
	}
	tail := d.pending
	d.pending = nil
	d.deliver(tail)
}

func (d *Dispatcher) deliver(chunk []byte) {
	for _, msg := range ParseMessages(chunk) {
		log.Info().Str("msg_id", msg.ID.String()).Msgf("got new message %s", msg)
		d.router.Dispatch(msg)
	}
}

// Stop asks the loop to exit after the current wait.
func (d *Dispatcher) Stop() {
	d.stopped.Store(true)
}

func (d *Dispatcher) close() {
	d.once.Do(func() {
		if err := d.ch.Close(); err != nil {
			log.Warn().Err(err).Msg("failed to close notification channel")
		}
	})
}
