package pdu

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseMessage(t *testing.T) {
	t.Parallel()
	msg, err := ParseMessage("1.3.6.1.4.1.3711.24.1.1.7.2.3.1.5.4.12 2")
	require.NoError(t, err)
	assert.Equal(t, "1.3.6.1.4.1.3711.24.1.1.7.2.3.1.5.4.12", msg.OID)
	assert.Equal(t, "2", msg.Value)
	assert.NotEmpty(t, msg.ID.String())

	outlet, err := msg.Outlet()
	require.NoError(t, err)
	assert.Equal(t, 12, outlet)
	id, err := msg.VendorPDU()
	require.NoError(t, err)
	assert.Equal(t, 4, id)

	_, err = ParseMessage("1.3.6.1")
	assert.Error(t, err)

	bad, err := ParseMessage("1.3.x 2")
	require.NoError(t, err)
	_, err = bad.Outlet()
	assert.Error(t, err)
}

func TestParseMessages(t *testing.T) {
	t.Parallel()
	msgs := ParseMessages([]byte("1.3.6.1.1 1\n\nlonely\n1.3.6.1.2 2"))
	require.Len(t, msgs, 2)
	assert.Equal(t, "1.3.6.1.1 1", msgs[0].String())
	assert.Equal(t, "1.3.6.1.2 2", msgs[1].String())
	assert.NotEqual(t, msgs[0].ID, msgs[1].ID)
}

func TestActionAndStateNames(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "reboot", ActionReboot.String())
	assert.Equal(t, "unknown", ActionUnknown.String())
	assert.Equal(t, "action(9)", Action(9).String())
	assert.Equal(t, "lockedOn", StateLockedOn.String())
	assert.Equal(t, "eventShutdown", StateEventShutdown.String())
	assert.Equal(t, ActionOn.String(), StateOn.String())
	assert.Equal(t, "5", StateOn.Code())

	a, err := ParseAction("mode=normal,value=2")
	require.NoError(t, err)
	assert.Equal(t, ActionOff, a)
	_, err = ParseAction("on")
	assert.Error(t, err)
}
