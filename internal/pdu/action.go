package pdu

import (
	"fmt"

	"github.com/OpenCHAMI/pdusim/internal/oidstore"
)

// Action is the code written to an outlet's control field.
type Action int

const (
	ActionNone Action = iota
	ActionOn
	ActionOff
	ActionReboot
	// ActionUnknown is only defined by vHawk.
	ActionUnknown
)

var actionNames = []string{"none", "on", "off", "reboot", "unknown"}

func (a Action) String() string {
	if a < 0 || int(a) >= len(actionNames) {
		return fmt.Sprintf("action(%d)", int(a))
	}
	return actionNames[a]
}

// Code is the value stored in an action field.
func (a Action) Code() string {
	return fmt.Sprint(int(a))
}

// ParseAction reads an action code from a plain or compound field value.
func ParseAction(raw string) (Action, error) {
	v, err := oidstore.ExtractValue(raw)
	if err != nil {
		return ActionNone, fmt.Errorf("invalid action %q: %w", raw, err)
	}
	return Action(v), nil
}

// State is the vSentry outlet state code.
type State int

const (
	StateIdleOff State = iota
	StateIdleOn
	StateWakeOff
	StateWakeOn
	StateOff
	StateOn
	StateLockedOff
	StateLockedOn
	StateReboot
	StateShutdown
	StatePendOn
	StatePendOff
	StateMinimumOff
	StateMinimumOn
	StateEventOff
	StateEventOn
	StateEventReboot
	StateEventShutdown
)

var stateNames = []string{
	"idleOff", "idleOn", "wakeOff", "wakeOn", "off", "on",
	"lockedOff", "lockedOn", "reboot", "shutdown", "pendOn", "pendOff",
	"minimumOff", "minimumOn", "eventOff", "eventOn", "eventReboot", "eventShutdown",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return fmt.Sprintf("state(%d)", int(s))
	}
	return stateNames[s]
}

// Code is the value stored in the state field.
func (s State) Code() string {
	return fmt.Sprint(int(s))
}
