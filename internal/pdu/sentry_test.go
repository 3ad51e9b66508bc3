package pdu

import (
	"bytes"
	"errors"
	"testing"

	"github.com/OpenCHAMI/pdusim/internal/driver"
	"github.com/OpenCHAMI/pdusim/internal/oidstore"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func sentryAction(outlet int) string {
	return oidstore.Join(DEFAULT_SENTRY_ACTION_OID, outlet)
}

func sentryState(outlet int) string {
	return oidstore.Join(DEFAULT_SENTRY_STATE_OID, outlet)
}

func newTestSentry(t *testing.T) (*SentryDevice, *memStore, *mockDriver) {
	deps, store, drv := testDeps()
	d := NewSentryDevice(SentryConfig{}, deps)
	t.Cleanup(d.Stop)
	for outlet := 1; outlet <= SENTRY_MAX_OUTLETS; outlet++ {
		store.set(sentryAction(outlet), "0")
		store.set(sentryState(outlet), StateIdleOff.Code())
	}
	return d, store, drv
}

func TestSentrySameActionTwiceDrivesOnce(t *testing.T) {
	t.Parallel()
	d, store, drv := newTestSentry(t)
	drv.On("PowerOn", "ds1", "vm1").Return(nil).Once()

	msg, err := ParseMessage(sentryAction(1) + " 1")
	require.NoError(t, err)
	store.set(sentryAction(1), "1")
	assert.True(t, d.HandleMessage(msg))
	store.set(sentryAction(1), "1")
	assert.True(t, d.HandleMessage(msg))
	drain(t, d.queue)

	drv.AssertNumberOfCalls(t, "PowerOn", 1)
	assert.Equal(t, StateOn.Code(), store.get(sentryState(1)))
	assert.Equal(t, ActionOn, d.LastAction(1))
}

func TestSentryTransitions(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name   string
		action Action
		method string
		state  State
	}{
		{name: "on", action: ActionOn, method: "PowerOn", state: StateOn},
		{name: "off", action: ActionOff, method: "PowerOff", state: StateOff},
		{name: "reboot", action: ActionReboot, method: "Reboot", state: StateOn},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			d, store, drv := newTestSentry(t)
			if tt.action == ActionOff {
				store.set(sentryState(2), StateOn.Code())
			}
			store.set(sentryAction(2), tt.action.Code())
			drv.On(tt.method, "ds1", "vm2").Return(nil).Once()

			require.NoError(t, d.HandleOutlet(2, tt.action))
			drv.AssertExpectations(t)
			assert.Equal(t, tt.state.Code(), store.get(sentryState(2)))
			assert.Equal(t, "0", store.get(sentryAction(2)))
			assert.Equal(t, tt.action, d.LastAction(2))
		})
	}
}

func TestSentryDriverFailure(t *testing.T) {
	t.Parallel()
	d, store, drv := newTestSentry(t)
	store.set(sentryAction(1), "1")
	drv.On("PowerOn", "ds1", "vm1").Return(&driver.StatusError{Op: "power.on", Code: 1}).Once()

	err := d.HandleOutlet(1, ActionOn)
	var statusErr *driver.StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, ActionNone, d.LastAction(1))
	assert.Equal(t, "1", store.get(sentryAction(1)), "action stays unacknowledged")

	assert.Equal(t, StateIdleOff.Code(), store.get(sentryState(1)))

	drv.On("PowerOn", "ds1", "vm1").Return(nil).Once()
	require.NoError(t, d.HandleOutlet(1, ActionOn))
	drv.AssertNumberOfCalls(t, "PowerOn", 2)
	assert.Equal(t, ActionOn, d.LastAction(1))
	assert.Equal(t, "0", store.get(sentryAction(1)))
}

func TestSentryFailedRebootStaysInReboot(t *testing.T) {
	t.Parallel()
	d, store, drv := newTestSentry(t)
	store.set(sentryState(1), StateOn.Code())
	drv.On("Reboot", "ds1", "vm1").Return(errors.New("power on failed"))

	assert.Error(t, d.HandleOutlet(1, ActionReboot))
	assert.Equal(t, StateReboot.Code(), store.get(sentryState(1)))
	assert.Equal(t, ActionNone, d.LastAction(1))
}

func TestSentryDirectoryMissResetsAction(t *testing.T) {
	t.Parallel()
	d, store, drv := newTestSentry(t)

	store.set(sentryAction(9), "1")
	require.NoError(t, d.HandleOutlet(9, ActionOn))
	assert.Equal(t, "0", store.get(sentryAction(9)))

	// bound to a VM without a datastore
	store.set(sentryAction(3), "2")
	require.NoError(t, d.HandleOutlet(3, ActionOff))
	assert.Equal(t, "0", store.get(sentryAction(3)))

	drv.AssertNotCalled(t, "PowerOn", mock.Anything, mock.Anything)
	drv.AssertNotCalled(t, "PowerOff", mock.Anything, mock.Anything)
}

func TestSentryNoneAndUnknownActions(t *testing.T) {
	t.Parallel()
	d, store, drv := newTestSentry(t)

	require.NoError(t, d.HandleOutlet(1, ActionNone))
	store.set(sentryAction(1), "7")
	require.NoError(t, d.HandleOutlet(1, Action(7)))
	assert.Equal(t, "0", store.get(sentryAction(1)))
	assert.Empty(t, drv.Calls)
}

func TestSentryHandleMessageFilters(t *testing.T) {
	t.Parallel()
	d, store, _ := newTestSentry(t)
	before := store.writeCount()

	for _, line := range []string{
		"1.2.3.4 7",
		sentryAction(17) + " 1",
		sentryAction(0) + " 1",
		sentryAction(1) + " on",
		sentryState(1) + " 1",
	} {
		msg, err := ParseMessage(line)
		require.NoError(t, err)
		assert.False(t, d.HandleMessage(msg), line)
	}
	drain(t, d.queue)
	assert.Equal(t, before, store.writeCount())
}

func TestSentryStatus(t *testing.T) {
	t.Parallel()
	d, store, _ := newTestSentry(t)
	store.set(sentryState(2), StateOn.Code())

	s := d.Status()
	assert.Equal(t, VENDOR_SENTRY, s.Vendor)
	require.Len(t, s.Outlets, SENTRY_MAX_OUTLETS)
	assert.Equal(t, "on", s.Outlets[1].State)
	assert.Equal(t, "vm2", s.Outlets[1].Node)
	assert.Equal(t, "none", s.Outlets[1].LastAction)
}

func TestStoreMissingIsFatal(t *testing.T) {
	t.Parallel()
	deps, store, _ := testDeps()
	var fatal error
	deps.Fatal = func(err error) { fatal = err }
	d := NewSentryDevice(SentryConfig{}, deps)
	defer d.Stop()

	store.missing = true
	err := d.HandleOutlet(1, ActionOn)
	assert.ErrorIs(t, err, oidstore.ErrStoreMissing)
	assert.ErrorIs(t, fatal, oidstore.ErrStoreMissing)
}

// Not parallel: swaps the global logger.
func TestSentryUnreadableStateIsLogged(t *testing.T) {
	var buf bytes.Buffer
	saved := log.Logger
	log.Logger = zerolog.New(&buf)
	t.Cleanup(func() { log.Logger = saved })

	d, store, _ := newTestSentry(t)
	store.set(sentryState(5), "garbage")
	state, err := d.state(5)
	require.NoError(t, err)
	assert.Equal(t, State(-1), state)
	assert.Contains(t, buf.String(), "unreadable outlet state")
	assert.Contains(t, buf.String(), `"outlet":5`)
}
