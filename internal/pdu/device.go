// Package pdu implements the outlet control bridge: it turns OID write
// notifications into serialized, per-unit outlet transitions that drive VM
// power and maintain the simulated outlet fields.
package pdu

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/OpenCHAMI/pdusim/internal/driver"
	"github.com/OpenCHAMI/pdusim/internal/nodedir"
	"github.com/OpenCHAMI/pdusim/internal/oidstore"
	"github.com/OpenCHAMI/pdusim/internal/password"
	"github.com/rs/zerolog/log"
)

// Device is one simulated PDU unit.
type Device interface {
	// PDU is the 1-based slot of the unit.
	PDU() int
	// Matches reports whether oid is a field this unit reacts to.
	Matches(oid string) bool
	// HandleMessage enqueues the work for msg and reports whether it did.
	HandleMessage(msg Message) bool
	// HandleOutlet applies action to outlet. It runs on the unit's worker.
	HandleOutlet(outlet int, action Action) error
	// Setup puts the unit's fields into their start-up values.
	Setup() error
	Status() UnitStatus
	Stop()
}

// Deps are the collaborators shared by every unit.
type Deps struct {
	Store     oidstore.Store
	Directory nodedir.Directory
	Driver    driver.Driver
	Passwords password.Store
	// Fatal is called when the OID store's backing file disappears.
	Fatal func(error)
	// DriverTimeout bounds a single driver call; zero means no bound.
	DriverTimeout time.Duration
}

func (d Deps) validate() error {
	switch {
	case d.Store == nil:
		return fmt.Errorf("no oid store")
	case d.Directory == nil:
		return fmt.Errorf("no node directory")
	case d.Driver == nil:
		return fmt.Errorf("no power driver")
	}
	return nil
}

type OutletStatus struct {
	Outlet       int    `json:"outlet"`
	Node         string `json:"node,omitempty"`
	LastAction   string `json:"last_action"`
	State        string `json:"state,omitempty"`
	Mode         string `json:"mode,omitempty"`
	TimerPending bool   `json:"timer_pending"`
}

type UnitStatus struct {
	PDU         int            `json:"pdu"`
	Vendor      string         `json:"vendor"`
	MaxOutlets  int            `json:"max_outlets"`
	Backlog     int            `json:"backlog"`
	Expirations int            `json:"expirations,omitempty"`
	Outlets     []OutletStatus `json:"outlets"`
}

// unit holds what both vendor variants share: the slot, the worker queue,
// the collaborators and the last applied action of every outlet.
type unit struct {
	pdu        int
	maxOutlets int
	deps       Deps
	queue      *Queue
	ctx        context.Context
	cancel     context.CancelFunc

	mu         sync.Mutex
	lastAction []Action
}

func newUnit(name string, pdu int, maxOutlets int, deps Deps) *unit {
	ctx, cancel := context.WithCancel(context.Background())
	return &unit{
		pdu:        pdu,
		maxOutlets: maxOutlets,
		deps:       deps,
		queue:      NewQueue(fmt.Sprintf("%s-%d", name, pdu)),
		ctx:        ctx,
		cancel:     cancel,
		lastAction: make([]Action, maxOutlets),
	}
}

func (u *unit) PDU() int {
	return u.pdu
}

func (u *unit) validOutlet(outlet int) bool {
	return outlet >= 1 && outlet <= u.maxOutlets
}

func (u *unit) LastAction(outlet int) Action {
	if !u.validOutlet(outlet) {
		return ActionNone
	}
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.lastAction[outlet-1]
}

func (u *unit) setLastAction(outlet int, action Action) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.lastAction[outlet-1] = action
}

// storeErr hands a missing backing store to the fatal handler.
func (u *unit) storeErr(err error) error {
	if err != nil && errors.Is(err, oidstore.ErrStoreMissing) && u.deps.Fatal != nil {
		u.deps.Fatal(err)
	}
	return err
}

func (u *unit) getField(offset string, outlet int) (string, error) {
	v, err := u.deps.Store.QueryValue(oidstore.Join(offset, outlet))
	return v, u.storeErr(err)
}

func (u *unit) setField(offset string, outlet int, value string) error {
	return u.storeErr(u.deps.Store.UpdateValue(oidstore.Join(offset, outlet), value))
}

// setMode rewrites the mode of a compound field, leaving it alone when it
// is empty or already in that mode.
func (u *unit) setMode(offset string, outlet int, mode string) error {
	raw, err := u.getField(offset, outlet)
	if err != nil {
		return err
	}
	updated, changed := oidstore.WithMode(raw, mode)
	if !changed {
		return nil
	}
	return u.setField(offset, outlet, updated)
}

func (u *unit) getMode(offset string, outlet int) (string, error) {
	raw, err := u.getField(offset, outlet)
	if err != nil {
		return "", err
	}
	return oidstore.Mode(raw), nil
}

// resolve finds the VM and datastore bound to outlet.
func (u *unit) resolve(outlet int) (vm string, datastore string, err error) {
	vm, ok := u.deps.Directory.GetNodeName(u.pdu, outlet)
	if !ok {
		return "", "", fmt.Errorf("no virtual node found for outlet %d/%d", outlet, u.pdu)
	}
	datastore, ok = u.deps.Directory.GetNodeDatastore(vm)
	if !ok {
		return vm, "", fmt.Errorf("no datastore found for virtual node %s", vm)
	}
	return vm, datastore, nil
}

func (u *unit) drive(action Action, datastore, vm string) error {
	ctx := u.ctx
	if u.deps.DriverTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, u.deps.DriverTimeout)
		defer cancel()
	}
	switch action {
	case ActionOn:
		return u.deps.Driver.PowerOn(ctx, datastore, vm)
	case ActionOff:
		return u.deps.Driver.PowerOff(ctx, datastore, vm)
	case ActionReboot:
		return u.deps.Driver.Reboot(ctx, datastore, vm)
	}
	return fmt.Errorf("unsupported action %s", action)
}

func (u *unit) outletStatus(outlet int) OutletStatus {
	s := OutletStatus{Outlet: outlet, LastAction: u.LastAction(outlet).String()}
	if vm, ok := u.deps.Directory.GetNodeName(u.pdu, outlet); ok {
		s.Node = vm
	}
	return s
}

func (u *unit) stop() {
	u.cancel()
	u.queue.Stop()
	log.Debug().Int("pdu", u.pdu).Msg("unit stopped")
}
