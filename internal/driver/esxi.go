package driver

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

// Runner executes a shell command on the hypervisor and returns its exit
// status and combined output.
type Runner interface {
	Run(ctx context.Context, cmd string) (int, string, error)
}

var vimName = regexp.MustCompile(`^[A-Za-z0-9._-]+$`)

// ESXi drives VMs through vim-cmd on an ESXi host.
type ESXi struct {
	runner Runner
	pause  time.Duration
}

func NewESXi(runner Runner, rebootPause time.Duration) *ESXi {
	return &ESXi{runner: runner, pause: rebootPause}
}

// BuildCommand resolves the VM id from its name and datastore and applies
// the vmsvc/power action to it.
func BuildCommand(datastore, vm, action string) (string, error) {
	if !vimName.MatchString(datastore) || !vimName.MatchString(vm) {
		return "", fmt.Errorf("invalid datastore or vm name: %q/%q", datastore, vm)
	}
	return fmt.Sprintf("vim-cmd vmsvc/getallvms | grep -w %s | grep -w %s | awk '{print $1}' | xargs vim-cmd vmsvc/power.%s",
		vm, datastore, action), nil
}

func (e *ESXi) run(ctx context.Context, datastore, vm, action string) (string, error) {
	cmd, err := BuildCommand(datastore, vm, action)
	if err != nil {
		return "", err
	}
	log.Debug().Str("cmd", cmd).Msg("executing command")
	status, out, err := e.runner.Run(ctx, cmd)
	if err != nil {
		return out, fmt.Errorf("failed to run power.%s for %s/%s: %w", action, datastore, vm, err)
	}
	if status != 0 {
		return out, &StatusError{Op: "power." + action, Code: status, Output: out}
	}
	return out, nil
}

func (e *ESXi) setPower(ctx context.Context, datastore, vm, want string) error {
	state, err := e.run(ctx, datastore, vm, "getstate")
	if err != nil {
		return err
	}
	if strings.Contains(strings.ToLower(state), "powered "+want) {
		log.Info().Str("vm", vm).Msgf("already powered %s", want)
		return nil
	}
	out, err := e.run(ctx, datastore, vm, want)
	if err != nil {
		return err
	}
	log.Info().Str("datastore", datastore).Str("vm", vm).Msg(strings.TrimSpace(out))
	return nil
}

func (e *ESXi) PowerOn(ctx context.Context, datastore string, vm string) error {
	log.Info().Str("datastore", datastore).Str("vm", vm).Msg("powering on")
	return e.setPower(ctx, datastore, vm, "on")
}

func (e *ESXi) PowerOff(ctx context.Context, datastore string, vm string) error {
	log.Info().Str("datastore", datastore).Str("vm", vm).Msg("powering off")
	return e.setPower(ctx, datastore, vm, "off")
}

// Reboot powers the VM off, waits for the reboot pause and powers it back
// on.
func (e *ESXi) Reboot(ctx context.Context, datastore string, vm string) error {
	log.Info().Str("datastore", datastore).Str("vm", vm).Msg("rebooting")
	if err := e.PowerOff(ctx, datastore, vm); err != nil {
		return err
	}
	if err := sleep(ctx, e.pause); err != nil {
		return err
	}
	return e.PowerOn(ctx, datastore, vm)
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
