package cmd

import (
	"github.com/OpenCHAMI/pdusim/internal/driver"
	"github.com/OpenCHAMI/pdusim/internal/oidstore"
	"github.com/OpenCHAMI/pdusim/internal/pdu"
	"github.com/OpenCHAMI/pdusim/internal/util"
	"github.com/OpenCHAMI/pdusim/pkg/secrets"
	"github.com/cznic/mathutil"
	"github.com/spf13/afero"
	"github.com/spf13/viper"
)

func oidParams() oidstore.Params {
	return oidstore.Params{
		Backend:  viper.GetString("oid.backend"),
		Database: viper.GetString("oid.database"),
		Table:    viper.GetString("oid.table"),
		SimFile:  viper.GetString("oid.simfile"),
	}
}

func bridgeConfig() pdu.Config {
	return pdu.Config{
		Vendor: viper.GetString("pdu.vendor"),
		Sentry: pdu.SentryConfig{
			ActionOID: viper.GetString("sentry.action-oid"),
			StateOID:  viper.GetString("sentry.state-oid"),
		},
		Hawk: pdu.HawkConfig{
			OnOID:          viper.GetString("hawk.on-oid"),
			PasswordOID:    viper.GetString("hawk.password-oid"),
			PasswordExpiry: viper.GetDuration("hawk.password-expiry"),
			CancelGrace:    viper.GetDuration("hawk.cancel-grace"),
		},
	}
}

func dispatchOptions() pdu.DispatchOptions {
	return pdu.DispatchOptions{
		Timeout: viper.GetDuration("notify.timeout"),
		Chunk:   mathutil.Clamp(viper.GetInt("notify.chunk"), 1, pdu.MAX_CHUNK),
	}
}

func driverConfig() driver.Config {
	return driver.Config{
		Type:            viper.GetString("driver.type"),
		ESXiHost:        viper.GetString("driver.esxi.host"),
		RedfishEndpoint: viper.GetString("driver.redfish.endpoint"),
		RedfishInsecure: viper.GetBool("driver.redfish.insecure"),
		BMCHosts:        viper.GetStringMapString("driver.bmc.hosts"),
		BMCDrivers:      viper.GetStringSlice("driver.bmc.drivers"),
		Timeout:         viper.GetDuration("driver.timeout"),
		RebootPause:     viper.GetDuration("driver.reboot-pause"),
	}
}

// secretStore builds the credential store from the secrets file and the
// optional --username and --password overrides.
func secretStore() secrets.SecretStore {
	var username, password *string
	if viper.IsSet("driver.username") {
		u := viper.GetString("driver.username")
		username = &u
	}
	if viper.IsSet("driver.password") {
		p := viper.GetString("driver.password")
		password = &p
	}
	return util.BuildSecretStore(afero.NewOsFs(), viper.GetString("secrets.file"), username, password)
}
