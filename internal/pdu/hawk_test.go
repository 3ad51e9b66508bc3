package pdu

import (
	"errors"
	"testing"
	"time"

	"github.com/OpenCHAMI/pdusim/internal/oidstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func hawkOn(pdu, outlet int) string {
	return oidstore.Join(DEFAULT_HAWK_ON_OID, ToPDU(pdu), outlet)
}

func hawkPassword(pdu, outlet int) string {
	return oidstore.Join(DEFAULT_HAWK_PASSWORD_OID, ToPDU(pdu), outlet)
}

func newTestHawk(t *testing.T, pdu int, expiry time.Duration) (*HawkDevice, *memStore, *mockDriver) {
	deps, store, drv := testDeps()
	d := NewHawkDevice(pdu, HawkConfig{PasswordExpiry: expiry, CancelGrace: 50 * time.Millisecond}, deps)
	t.Cleanup(d.Stop)
	for outlet := 1; outlet <= HAWK_MAX_OUTLETS; outlet++ {
		store.set(hawkOn(pdu, outlet), "0")
	}
	require.NoError(t, d.Setup())
	return d, store, drv
}

func TestToPDUAndToIndex(t *testing.T) {
	t.Parallel()
	for index, id := range []int{1, 4, 7, 10, 13, 16} {
		assert.Equal(t, id, ToPDU(index+1))
		got, err := ToIndex(id)
		require.NoError(t, err)
		assert.Equal(t, index, got)
	}
	for _, id := range []int{-2, 0, 2, 3, 5, 15, 17, 19} {
		_, err := ToIndex(id)
		assert.ErrorIs(t, err, ErrInvalidPDUID, "id %d", id)
	}
}

func TestHawkSetup(t *testing.T) {
	t.Parallel()
	_, store, _ := newTestHawk(t, 2, time.Minute)
	for _, outlet := range []int{1, 24} {
		assert.Equal(t, "mode=error,value=0", store.get(hawkOn(2, outlet)))
		assert.Equal(t, DEFAULT_PASSWORD, store.get(hawkPassword(2, outlet)))
	}
}

func TestHawkPasswordHandshake(t *testing.T) {
	t.Parallel()
	d, store, _ := newTestHawk(t, 1, time.Minute)

	store.set(hawkPassword(1, 1), "A01")
	require.NoError(t, d.HandlePassword(1, "A01"))
	mode, err := d.Mode(1)
	require.NoError(t, err)
	assert.Equal(t, oidstore.MODE_NORMAL, mode)
	assert.Equal(t, DEFAULT_PASSWORD, store.get(hawkPassword(1, 1)))
	assert.True(t, d.timerPending(1))

	store.set(hawkPassword(1, 1), "WRONG")
	require.NoError(t, d.HandlePassword(1, "WRONG"))
	mode, err = d.Mode(1)
	require.NoError(t, err)
	assert.Equal(t, oidstore.MODE_ERROR, mode)
	assert.Equal(t, DEFAULT_PASSWORD, store.get(hawkPassword(1, 1)))
}

func TestHawkPasswordFieldMismatch(t *testing.T) {
	t.Parallel()
	d, store, _ := newTestHawk(t, 1, time.Minute)

	store.set(hawkPassword(1, 1), "STALE")
	require.NoError(t, d.HandlePassword(1, "A01"))
	mode, err := d.Mode(1)
	require.NoError(t, err)
	assert.Equal(t, oidstore.MODE_ERROR, mode)
	assert.False(t, d.timerPending(1))
	assert.Equal(t, DEFAULT_PASSWORD, store.get(hawkPassword(1, 1)))
}

func TestHawkPasswordUnsetIsRejected(t *testing.T) {
	t.Parallel()
	d, _, _ := newTestHawk(t, 1, time.Minute)
	require.NoError(t, d.HandlePassword(2, "anything"))
	mode, err := d.Mode(2)
	require.NoError(t, err)
	assert.Equal(t, oidstore.MODE_ERROR, mode)
}

func TestHawkPasswordExpires(t *testing.T) {
	t.Parallel()
	d, _, _ := newTestHawk(t, 1, 20*time.Millisecond)

	require.NoError(t, d.HandlePassword(1, "A01"))
	assert.Eventually(t, func() bool {
		mode, err := d.Mode(1)
		return err == nil && mode == oidstore.MODE_ERROR
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, 1, d.Expirations())
	assert.False(t, d.timerPending(1))
}

func TestHawkPasswordRearmFiresOnce(t *testing.T) {
	t.Parallel()
	d, _, _ := newTestHawk(t, 1, 80*time.Millisecond)

	require.NoError(t, d.HandlePassword(1, "A01"))
	time.Sleep(30 * time.Millisecond)
	require.NoError(t, d.HandlePassword(1, "A01"))
	mode, err := d.Mode(1)
	require.NoError(t, err)
	assert.Equal(t, oidstore.MODE_NORMAL, mode)

	assert.Eventually(t, func() bool { return d.Expirations() == 1 }, time.Second, 5*time.Millisecond)
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, 1, d.Expirations())
}

func TestHawkPasswordWaitsForFiringTimer(t *testing.T) {
	t.Parallel()
	d, store, _ := newTestHawk(t, 1, time.Minute)
	d.grace = time.Second

	started := make(chan struct{})
	release := make(chan struct{})
	old := armTimer(0, func() {
		close(started)
		<-release
		d.expire(1)
	})
	d.mu.Lock()
	d.timers[0] = old
	d.mu.Unlock()
	select {
	case <-started:
	case <-time.After(time.Second):
		require.FailNow(t, "timer did not fire")
	}
	go func() {
		time.Sleep(20 * time.Millisecond)
		close(release)
	}()

	store.set(hawkPassword(1, 1), "A01")
	require.NoError(t, d.HandlePassword(1, "A01"))
	mode, err := d.Mode(1)
	require.NoError(t, err)
	assert.Equal(t, oidstore.MODE_NORMAL, mode)
	assert.Equal(t, 1, d.Expirations())
	assert.True(t, d.timerPending(1))
}

func TestHawkOutletIdempotence(t *testing.T) {
	t.Parallel()
	d, _, drv := newTestHawk(t, 2, time.Minute)
	drv.On("PowerOn", "ds2", "vm21").Return(nil).Once()

	require.NoError(t, d.HandleOutlet(1, ActionOn))
	require.NoError(t, d.HandleOutlet(1, ActionOn))
	drv.AssertNumberOfCalls(t, "PowerOn", 1)
	assert.Equal(t, ActionOn, d.LastAction(1))
}

func TestHawkDriverFailureKeepsLastAction(t *testing.T) {
	t.Parallel()
	d, store, drv := newTestHawk(t, 2, time.Minute)
	drv.On("PowerOff", "ds2", "vm21").Return(errors.New("status 1")).Once()
	drv.On("PowerOff", "ds2", "vm21").Return(nil).Once()

	before := store.get(hawkPassword(2, 1))
	assert.Error(t, d.HandleOutlet(1, ActionOff))
	assert.Equal(t, ActionNone, d.LastAction(1))

	require.NoError(t, d.HandleOutlet(1, ActionOff))
	drv.AssertNumberOfCalls(t, "PowerOff", 2)
	assert.Equal(t, ActionOff, d.LastAction(1))
	assert.Equal(t, before, store.get(hawkPassword(2, 1)))
}

func TestHawkDirectoryMissResetsValue(t *testing.T) {
	t.Parallel()
	d, store, drv := newTestHawk(t, 1, time.Minute)
	store.set(hawkOn(1, 5), "mode=normal,value=1")

	require.NoError(t, d.HandleOutlet(5, ActionOn))
	assert.Equal(t, "mode=normal,value=0", store.get(hawkOn(1, 5)))
	drv.AssertNotCalled(t, "PowerOn", mock.Anything, mock.Anything)
}

func TestHawkHandleMessage(t *testing.T) {
	t.Parallel()
	d, store, drv := newTestHawk(t, 1, time.Minute)
	drv.On("Reboot", "ds1", "vm1").Return(nil).Once()

	store.set(hawkPassword(1, 1), "A01")
	for _, line := range []string{hawkPassword(1, 1) + " A01", hawkOn(1, 1) + " 3"} {
		msg, err := ParseMessage(line)
		require.NoError(t, err)
		assert.True(t, d.HandleMessage(msg))
	}
	for _, line := range []string{hawkOn(2, 1) + " 1", hawkOn(1, 25) + " 1", "1.2.3.4 7"} {
		msg, err := ParseMessage(line)
		require.NoError(t, err)
		assert.False(t, d.HandleMessage(msg))
	}
	drain(t, d.queue)

	drv.AssertExpectations(t)
	assert.Equal(t, ActionReboot, d.LastAction(1))
	mode, err := d.Mode(1)
	require.NoError(t, err)
	assert.Equal(t, oidstore.MODE_NORMAL, mode)

	s := d.Status()
	assert.Equal(t, VENDOR_HAWK, s.Vendor)
	require.Len(t, s.Outlets, HAWK_MAX_OUTLETS)
	assert.True(t, s.Outlets[0].TimerPending)
	assert.Equal(t, "reboot", s.Outlets[0].LastAction)
	assert.Equal(t, oidstore.MODE_ERROR, s.Outlets[1].Mode)
}
