package cmd

import (
	"encoding/base64"
	"testing"
	"time"

	"github.com/OpenCHAMI/pdusim/internal/pdu"
	"github.com/OpenCHAMI/pdusim/pkg/secrets"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseCredentials(t *testing.T) {
	t.Parallel()
	encoded := base64.StdEncoding.EncodeToString([]byte(`{"username": "root", "password": "pw"}`))
	tests := []struct {
		name    string
		value   string
		format  string
		want    secrets.Credentials
		wantErr bool
	}{
		{name: "basic", value: "root:pa:ss", format: "basic", want: secrets.Credentials{Username: "root", Password: "pa:ss"}},
		{name: "basic missing password", value: "root", format: "basic", wantErr: true},
		{name: "json", value: `{"username": "root", "password": "pw"}`, format: "json", want: secrets.Credentials{Username: "root", Password: "pw"}},
		{name: "json missing field", value: `{"username": "root"}`, format: "json", wantErr: true},
		{name: "base64", value: encoded, format: "base64", want: secrets.Credentials{Username: "root", Password: "pw"}},
		{name: "bad base64", value: "%%%", format: "base64", wantErr: true},
		{name: "unknown format", value: "x", format: "xml", wantErr: true},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := parseCredentials(tt.value, tt.format)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseOutlet(t *testing.T) {
	t.Parallel()
	unit, port, err := parseOutlet("4", "12")
	require.NoError(t, err)
	assert.Equal(t, 4, unit)
	assert.Equal(t, 12, port)

	_, _, err = parseOutlet("four", "12")
	assert.Error(t, err)
}

func TestAddFlagBindsViperKey(t *testing.T) {
	cmd := &cobra.Command{Use: "test"}
	addFlag("test.timeout", cmd, "test-timeout", "", 3*time.Second, "")
	addFlag("test.hosts", cmd, "test-hosts", "", map[string]string{}, "")

	require.NoError(t, cmd.Flags().Parse([]string{"--test-timeout", "7s", "--test-hosts", "vm1=10.0.0.1:623"}))
	assert.Equal(t, 7*time.Second, viper.GetDuration("test.timeout"))
	assert.Equal(t, map[string]string{"vm1": "10.0.0.1:623"}, viper.GetStringMapString("test.hosts"))
}

func TestConfigFromDefaults(t *testing.T) {
	SetDefaults()

	opts := dispatchOptions()
	assert.Equal(t, pdu.DEFAULT_READ_TIMEOUT, opts.Timeout)
	assert.Equal(t, pdu.MAX_CHUNK, opts.Chunk)

	cfg := bridgeConfig()
	assert.Equal(t, pdu.DEFAULT_HAWK_ON_OID, cfg.Hawk.OnOID)
	assert.Equal(t, pdu.DEFAULT_PASSWORD_EXPIRY, cfg.Hawk.PasswordExpiry)

	viper.Set("notify.chunk", 100000)
	defer viper.Set("notify.chunk", pdu.MAX_CHUNK)
	assert.Equal(t, pdu.MAX_CHUNK, dispatchOptions().Chunk)
}
