package pdu

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/OpenCHAMI/pdusim/internal/oidstore"
	"github.com/rs/zerolog/log"
)

const (
	SENTRY_MAX_OUTLETS = 16

	DEFAULT_SENTRY_ACTION_OID = "1.3.6.1.4.1.1718.3.2.3.1.11.1.1"
	DEFAULT_SENTRY_STATE_OID  = "1.3.6.1.4.1.1718.3.2.3.1.10.1.1"
)

type SentryConfig struct {
	ActionOID string
	StateOID  string
}

func (c SentryConfig) withDefaults() SentryConfig {
	if c.ActionOID == "" {
		c.ActionOID = DEFAULT_SENTRY_ACTION_OID
	}
	if c.StateOID == "" {
		c.StateOID = DEFAULT_SENTRY_STATE_OID
	}
	return c
}

// SentryDevice is the single-unit vSentry: 16 outlets, each with an action
// field and a state field.
type SentryDevice struct {
	*unit
	actionOID string
	stateOID  string
}

func NewSentryDevice(cfg SentryConfig, deps Deps) *SentryDevice {
	cfg = cfg.withDefaults()
	return &SentryDevice{
		unit:      newUnit(VENDOR_SENTRY, 1, SENTRY_MAX_OUTLETS, deps),
		actionOID: cfg.ActionOID,
		stateOID:  cfg.StateOID,
	}
}

func (d *SentryDevice) Matches(oid string) bool {
	return strings.HasPrefix(oid, d.actionOID+".")
}

func (d *SentryDevice) HandleMessage(msg Message) bool {
	logger := log.With().Str("msg_id", msg.ID.String()).Str("oid", msg.OID).Logger()
	if !d.Matches(msg.OID) {
		logger.Warn().Msgf("%s is not handled now", msg)
		return false
	}
	outlet, err := msg.Outlet()
	if err != nil || !d.validOutlet(outlet) {
		logger.Warn().Err(err).Msgf("invalid outlet in %s", msg)
		return false
	}
	action, err := ParseAction(msg.Value)
	if err != nil {
		logger.Warn().Err(err).Msg("dropping message")
		return false
	}
	logger.Info().Int("outlet", outlet).Str("value", msg.Value).Msg("got new message")
	d.queue.Enqueue("handle outlet "+strconv.Itoa(outlet), func() error {
		return d.HandleOutlet(outlet, action)
	})
	return true
}

func (d *SentryDevice) resetAction(outlet int) error {
	return d.setField(d.actionOID, outlet, ActionNone.Code())
}

func (d *SentryDevice) state(outlet int) (State, error) {
	raw, err := d.getField(d.stateOID, outlet)
	if err != nil {
		return -1, err
	}
	v, err := oidstore.ExtractValue(raw)
	if err != nil {
		log.Warn().Err(err).Int("pdu", d.pdu).Int("outlet", outlet).Str("raw", raw).Msg("unreadable outlet state")
		return -1, nil
	}
	return State(v), nil
}

func (d *SentryDevice) HandleOutlet(outlet int, action Action) error {
	logger := log.With().Int("pdu", d.pdu).Int("outlet", outlet).Str("action", action.String()).Logger()
	logger.Info().Msg("handle outlet")

	vm, datastore, err := d.resolve(outlet)
	if err != nil {
		logger.Error().Err(err).Msg("resetting action")
		return d.resetAction(outlet)
	}

	state, err := d.state(outlet)
	if err != nil {
		return err
	}
	if action == ActionNone || action.String() == state.String() {
		logger.Warn().Str("state", state.String()).Msg("no need to execute the action")
		return nil
	}

	switch action {
	case ActionOn:
		if err := d.setField(d.stateOID, outlet, StateOn.Code()); err != nil {
			return err
		}
		err = d.drive(action, datastore, vm)
	case ActionOff:
		if err := d.setField(d.stateOID, outlet, StateOff.Code()); err != nil {
			return err
		}
		err = d.drive(action, datastore, vm)
	case ActionReboot:
		if err := d.setField(d.stateOID, outlet, StateReboot.Code()); err != nil {
			return err
		}
		// a failed reboot stays visible as state "reboot"
		if err = d.drive(action, datastore, vm); err == nil {
			err = d.setField(d.stateOID, outlet, StateOn.Code())
		}
	default:
		logger.Error().Msg("unknown action, resetting")
		return d.resetAction(outlet)
	}
	if err != nil {
		if action != ActionReboot && state >= 0 {
			// a failed on/off keeps the previous state so the command can be retried
			if rerr := d.setField(d.stateOID, outlet, state.Code()); rerr != nil {
				logger.Error().Err(rerr).Msg("failed to restore outlet state")
			}
		}
		return fmt.Errorf("failed to %s virtual node %s: %w", action, vm, err)
	}

	d.setLastAction(outlet, action)
	return d.resetAction(outlet)
}

// Setup leaves the fields as the OID store holds them.
func (d *SentryDevice) Setup() error {
	return nil
}

func (d *SentryDevice) Status() UnitStatus {
	s := UnitStatus{
		PDU:        d.pdu,
		Vendor:     VENDOR_SENTRY,
		MaxOutlets: d.maxOutlets,
		Backlog:    d.queue.Len(),
		Outlets:    make([]OutletStatus, 0, d.maxOutlets),
	}
	for outlet := 1; outlet <= d.maxOutlets; outlet++ {
		o := d.outletStatus(outlet)
		if state, err := d.state(outlet); err != nil {
			log.Warn().Err(err).Int("outlet", outlet).Msg("failed to read outlet state")
		} else if state >= 0 {
			o.State = state.String()
		}
		s.Outlets = append(s.Outlets, o)
	}
	return s
}

func (d *SentryDevice) Stop() {
	d.stop()
}
