package driver

import (
	"context"
	"fmt"
	"time"

	"github.com/OpenCHAMI/pdusim/pkg/secrets"
	bmclib "github.com/bmc-toolbox/bmclib/v2"
	"github.com/go-logr/logr"
	"github.com/go-logr/zerologr"
	"github.com/jacobweinstock/registrar"
	"github.com/rs/zerolog/log"
)

const IPMI_PORT = 623

// BMC drives VMs through a virtual BMC per VM (IPMI or Redfish through
// bmclib).
type BMC struct {
	hosts   map[string]string
	drivers []string
	store   secrets.SecretStore
	timeout time.Duration
	logger  logr.Logger
}

func NewBMC(hosts map[string]string, drivers []string, store secrets.SecretStore, timeout time.Duration) *BMC {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if len(drivers) == 0 {
		drivers = []string{"ipmitool", "gofish"}
	}
	return &BMC{
		hosts:   hosts,
		drivers: drivers,
		store:   store,
		timeout: timeout,
		logger:  zerologr.New(&log.Logger),
	}
}

// Host returns the virtual BMC address of vm.
func (b *BMC) Host(vm string) (string, error) {
	host, ok := b.hosts[vm]
	if !ok || host == "" {
		return "", fmt.Errorf("no BMC configured for %s", vm)
	}
	return host, nil
}

func (b *BMC) client(host string) (*bmclib.Client, error) {
	creds, err := secrets.GetCredentials(b.store, host)
	if err != nil {
		return nil, err
	}
	client := bmclib.NewClient(host, creds.Username, creds.Password,
		bmclib.WithLogger(b.logger),
		bmclib.WithRedfishUseBasicAuth(true),
		bmclib.WithIpmitoolPort(fmt.Sprint(IPMI_PORT)),
	)
	ds := registrar.Drivers{}
	for _, driver := range b.drivers {
		ds = append(ds, client.Registry.Using(driver)...)
	}
	client.Registry.Drivers = ds
	return client, nil
}

func (b *BMC) setPower(ctx context.Context, datastore, vm, state string) error {
	host, err := b.Host(vm)
	if err != nil {
		return err
	}
	client, err := b.client(host)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()
	if err := client.Open(ctx); err != nil {
		return fmt.Errorf("failed to open BMC client for %s: %w", host, err)
	}
	defer client.Close(ctx)

	ok, err := client.SetPowerState(ctx, state)
	if err != nil {
		return fmt.Errorf("failed to set power %s on %s: %w", state, host, err)
	}
	if !ok {
		return &StatusError{Op: "power." + state, Code: 1}
	}
	log.Info().Str("datastore", datastore).Str("vm", vm).Str("bmc", host).Str("state", state).Msg("set power state")
	return nil
}

func (b *BMC) PowerOn(ctx context.Context, datastore string, vm string) error {
	return b.setPower(ctx, datastore, vm, "on")
}

func (b *BMC) PowerOff(ctx context.Context, datastore string, vm string) error {
	return b.setPower(ctx, datastore, vm, "off")
}

func (b *BMC) Reboot(ctx context.Context, datastore string, vm string) error {
	return b.setPower(ctx, datastore, vm, "cycle")
}
