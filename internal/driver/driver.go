// Package driver powers virtual machines on and off on behalf of the
// simulated outlets.
package driver

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/OpenCHAMI/pdusim/pkg/secrets"
)

const (
	TYPE_ESXI    = "esxi"
	TYPE_REDFISH = "redfish"
	TYPE_BMC     = "bmc"
)

// Driver changes the power state of the VM vm stored on datastore. A nil
// error means the hypervisor reported success.
type Driver interface {
	PowerOn(ctx context.Context, datastore string, vm string) error
	PowerOff(ctx context.Context, datastore string, vm string) error
	Reboot(ctx context.Context, datastore string, vm string) error
}

// StatusError is a non-zero status reported by the hypervisor.
type StatusError struct {
	Op     string
	Code   int
	Output string
}

func (e *StatusError) Error() string {
	if e.Output == "" {
		return fmt.Sprintf("%s failed with status %d", e.Op, e.Code)
	}
	return fmt.Sprintf("%s failed with status %d: %s", e.Op, e.Code, strings.TrimSpace(e.Output))
}

type Config struct {
	Type            string
	ESXiHost        string
	RedfishEndpoint string
	RedfishInsecure bool
	// BMCHosts maps a VM name to the address of its virtual BMC.
	BMCHosts    map[string]string
	BMCDrivers  []string
	Timeout     time.Duration
	RebootPause time.Duration
}

// New builds the driver selected by cfg.Type. Credentials are looked up in
// store by host, endpoint or BMC address.
func New(cfg Config, store secrets.SecretStore) (Driver, error) {
	switch strings.ToLower(cfg.Type) {
	case TYPE_ESXI, "":
		if cfg.ESXiHost == "" {
			return nil, fmt.Errorf("no ESXi host configured")
		}
		creds, err := secrets.GetCredentials(store, cfg.ESXiHost)
		if err != nil {
			return nil, fmt.Errorf("failed to get ESXi credentials: %w", err)
		}
		runner := NewSSHRunner(cfg.ESXiHost, creds, cfg.Timeout)
		return NewESXi(runner, cfg.RebootPause), nil
	case TYPE_REDFISH:
		if cfg.RedfishEndpoint == "" {
			return nil, fmt.Errorf("no redfish endpoint configured")
		}
		creds, err := secrets.GetCredentials(store, cfg.RedfishEndpoint)
		if err != nil {
			return nil, fmt.Errorf("failed to get redfish credentials: %w", err)
		}
		return NewRedfish(cfg.RedfishEndpoint, creds, cfg.RedfishInsecure), nil
	case TYPE_BMC:
		return NewBMC(cfg.BMCHosts, cfg.BMCDrivers, store, cfg.Timeout), nil
	default:
		return nil, fmt.Errorf("unsupported driver type: %s", cfg.Type)
	}
}
