package driver

import (
	"context"
	"fmt"

	"github.com/OpenCHAMI/pdusim/pkg/secrets"
	"github.com/rs/zerolog/log"
	"github.com/stmcginnis/gofish"
	"github.com/stmcginnis/gofish/redfish"
)

// Redfish drives VMs exposed as ComputerSystems by a virtual Redfish
// service, one system per VM, found by name or id.
type Redfish struct {
	endpoint string
	creds    secrets.Credentials
	insecure bool
}

func NewRedfish(endpoint string, creds secrets.Credentials, insecure bool) *Redfish {
	return &Redfish{endpoint: endpoint, creds: creds, insecure: insecure}
}

// withSystem opens a session, resolves vm to its ComputerSystem and runs fn.
// The datastore is not meaningful to a Redfish service and only logged.
func (r *Redfish) withSystem(ctx context.Context, datastore, vm string, fn func(*redfish.ComputerSystem) error) error {
	client, err := gofish.ConnectContext(ctx, gofish.ClientConfig{
		Endpoint:  r.endpoint,
		Username:  r.creds.Username,
		Password:  r.creds.Password,
		Insecure:  r.insecure,
		BasicAuth: true,
	})
	if err != nil {
		return fmt.Errorf("failed to connect to %s: %w", r.endpoint, err)
	}
	defer client.Logout()

	systems, err := client.GetService().Systems()
	if err != nil {
		return fmt.Errorf("failed to list systems: %w", err)
	}
	for _, sys := range systems {
		if sys.Name == vm || sys.ID == vm {
			log.Debug().Str("datastore", datastore).Str("vm", vm).Str("system", sys.ID).Msg("resolved system")
			return fn(sys)
		}
	}
	return fmt.Errorf("no system named %s at %s", vm, r.endpoint)
}

func (r *Redfish) reset(ctx context.Context, datastore, vm string, want redfish.PowerState, resetType redfish.ResetType) error {
	return r.withSystem(ctx, datastore, vm, func(sys *redfish.ComputerSystem) error {
		if want != "" && sys.PowerState == want {
			log.Info().Str("vm", vm).Msgf("already %s", want)
			return nil
		}
		if err := sys.Reset(resetType); err != nil {
			return fmt.Errorf("failed to reset %s (%s): %w", vm, resetType, err)
		}
		log.Info().Str("datastore", datastore).Str("vm", vm).Str("reset_type", string(resetType)).Msg("reset system")
		return nil
	})
}

func (r *Redfish) PowerOn(ctx context.Context, datastore string, vm string) error {
	return r.reset(ctx, datastore, vm, redfish.OnPowerState, redfish.OnResetType)
}

func (r *Redfish) PowerOff(ctx context.Context, datastore string, vm string) error {
	return r.reset(ctx, datastore, vm, redfish.OffPowerState, redfish.ForceOffResetType)
}

// Reboot restarts a running system in place and powers on one that is off.
func (r *Redfish) Reboot(ctx context.Context, datastore string, vm string) error {
	return r.withSystem(ctx, datastore, vm, func(sys *redfish.ComputerSystem) error {
		resetType := redfish.ForceRestartResetType
		if sys.PowerState == redfish.OffPowerState {
			resetType = redfish.OnResetType
		}
		if err := sys.Reset(resetType); err != nil {
			return fmt.Errorf("failed to reset %s (%s): %w", vm, resetType, err)
		}
		log.Info().Str("datastore", datastore).Str("vm", vm).Str("reset_type", string(resetType)).Msg("reset system")
		return nil
	})
}
