package pdu

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/OpenCHAMI/pdusim/internal/oidstore"
	"github.com/rs/zerolog/log"
)

const (
	HAWK_UNITS       = 6
	HAWK_MAX_OUTLETS = 24

	DEFAULT_HAWK_ON_OID       = "1.3.6.1.4.1.3711.24.1.1.7.2.3.1.5"
	DEFAULT_HAWK_PASSWORD_OID = "1.3.6.1.4.1.3711.24.1.1.7.2.3.1.6"

	// DEFAULT_PASSWORD is what the password field holds between writes.
	DEFAULT_PASSWORD = "******"

	DEFAULT_PASSWORD_EXPIRY = 300 * time.Second
	DEFAULT_CANCEL_GRACE    = 500 * time.Millisecond
)

type HawkConfig struct {
	OnOID          string
	PasswordOID    string
	PasswordExpiry time.Duration
	CancelGrace    time.Duration
}

func (c HawkConfig) withDefaults() HawkConfig {
	if c.OnOID == "" {
		c.OnOID = DEFAULT_HAWK_ON_OID
	}
	if c.PasswordOID == "" {
		c.PasswordOID = DEFAULT_HAWK_PASSWORD_OID
	}
	if c.PasswordExpiry <= 0 {
		c.PasswordExpiry = DEFAULT_PASSWORD_EXPIRY
	}
	if c.CancelGrace <= 0 {
		c.CancelGrace = DEFAULT_CANCEL_GRACE
	}
	return c
}

// ToPDU converts a 1-based unit slot into the PDU id used in vHawk OIDs.
func ToPDU(index int) int {
	return index*3 - 2
}

// HawkDevice is one unit of the six-unit vHawk. Every outlet has an on/off
// field carrying a mode, and a password field. A correct password puts the
// outlet in mode normal until the password expires.
type HawkDevice struct {
	*unit
	onOffset       string
	passwordOffset string
	expiry         time.Duration
	grace          time.Duration

	// guarded by unit.mu
	timers      []*pendingTimer
	expirations int
}

// NewHawkDevice builds the unit in slot pdu (1..6).
func NewHawkDevice(pdu int, cfg HawkConfig, deps Deps) *HawkDevice {
	cfg = cfg.withDefaults()
	return &HawkDevice{
		unit:           newUnit(VENDOR_HAWK, pdu, HAWK_MAX_OUTLETS, deps),
		onOffset:       oidstore.Join(cfg.OnOID, ToPDU(pdu)),
		passwordOffset: oidstore.Join(cfg.PasswordOID, ToPDU(pdu)),
		expiry:         cfg.PasswordExpiry,
		grace:          cfg.CancelGrace,
		timers:         make([]*pendingTimer, HAWK_MAX_OUTLETS),
	}
}

func (d *HawkDevice) Matches(oid string) bool {
	return strings.HasPrefix(oid, d.onOffset+".") || strings.HasPrefix(oid, d.passwordOffset+".")
}

func (d *HawkDevice) HandleMessage(msg Message) bool {
	logger := log.With().Str("msg_id", msg.ID.String()).Str("oid", msg.OID).Int("pdu", d.pdu).Logger()
	if !d.Matches(msg.OID) {
		logger.Warn().Msgf("%s is not handled now", msg)
		return false
	}
	outlet, err := msg.Outlet()
	if err != nil || !d.validOutlet(outlet) {
		logger.Warn().Err(err).Msgf("invalid outlet in %s", msg)
		return false
	}
	logger.Info().Int("outlet", outlet).Msg("handle message")

	if strings.HasPrefix(msg.OID, d.onOffset+".") {
		action, err := ParseAction(msg.Value)
		if err != nil {
			logger.Warn().Err(err).Msg("dropping message")
			return false
		}
		d.queue.Enqueue("handle_outlet-"+strconv.Itoa(outlet), func() error {
			return d.HandleOutlet(outlet, action)
		})
		return true
	}
	password := msg.Value
	d.queue.Enqueue("handle_password-"+strconv.Itoa(outlet), func() error {
		return d.HandlePassword(outlet, password)
	})
	return true
}

// Setup puts every outlet in mode error and clears every password field.
func (d *HawkDevice) Setup() error {
	for outlet := 1; outlet <= d.maxOutlets; outlet++ {
		if err := d.setMode(d.onOffset, outlet, oidstore.MODE_ERROR); err != nil {
			return fmt.Errorf("failed to set mode of outlet %d/%d: %w", outlet, d.pdu, err)
		}
		if err := d.setField(d.passwordOffset, outlet, DEFAULT_PASSWORD); err != nil {
			return fmt.Errorf("failed to reset password of outlet %d/%d: %w", outlet, d.pdu, err)
		}
	}
	return nil
}

func (d *HawkDevice) resetAction(outlet int) error {
	raw, err := d.getField(d.onOffset, outlet)
	if err != nil {
		return err
	}
	return d.setField(d.onOffset, outlet, oidstore.WithValue(raw, ActionNone.Code()))
}

func (d *HawkDevice) HandleOutlet(outlet int, action Action) error {
	logger := log.With().Int("pdu", d.pdu).Int("outlet", outlet).Str("action", action.String()).Logger()

	raw, err := d.getField(d.onOffset, outlet)
	if err != nil {
		return err
	}
	if inOID, err := ParseAction(raw); err == nil {
		logger.Debug().Str("action_in_oid", inOID.String()).Msg("handle outlet")
	}

	vm, datastore, err := d.resolve(outlet)
	if err != nil {
		logger.Error().Err(err).Msg("resetting action")
		return d.resetAction(outlet)
	}

	last := d.LastAction(outlet)
	logger.Info().Str("last_action", last.String()).Msg("handle outlet")
	if last == action {
		logger.Warn().Msg("no need to execute the action")
		return nil
	}

	switch action {
	case ActionOn, ActionOff, ActionReboot:
	default:
		logger.Error().Msg("unknown action")
		return nil
	}
	if err := d.drive(action, datastore, vm); err != nil {
		return fmt.Errorf("failed to %s virtual node %s: %w", action, vm, err)
	}
	d.setLastAction(outlet, action)
	return nil
}

// HandlePassword runs the confirmation handshake for one password write.
func (d *HawkDevice) HandlePassword(outlet int, password string) error {
	logger := log.With().Int("pdu", d.pdu).Int("outlet", outlet).Logger()
	logger.Info().Msg("handle password")

	stored, err := d.getField(d.passwordOffset, outlet)
	if err != nil {
		return err
	}
	if err := d.setField(d.passwordOffset, outlet, DEFAULT_PASSWORD); err != nil {
		return err
	}

	if stored != DEFAULT_PASSWORD && stored != password {
		logger.Error().Msg("password write did not complete, field and message disagree")
		return d.setMode(d.onOffset, outlet, oidstore.MODE_ERROR)
	}

	expected := ""
	if d.deps.Passwords != nil {
		expected = d.deps.Passwords.Get(d.pdu, outlet)
	}
	if expected != password {
		logger.Error().Msg("invalid password")
		return d.setMode(d.onOffset, outlet, oidstore.MODE_ERROR)
	}

	// the old timer must be gone before the mode flips, or its expiry
	// could land after the accepted password
	d.mu.Lock()
	old := d.timers[outlet-1]
	d.mu.Unlock()
	if old != nil && old.Active() {
		logger.Info().Msg("timer is running, cancelling it")
		if !old.Cancel(d.grace) {
			logger.Error().Msg("timer is still alive")
			return nil
		}
		logger.Debug().Msg("timer is stopped")
	}
	if err := d.setMode(d.onOffset, outlet, oidstore.MODE_NORMAL); err != nil {
		return err
	}

	t := armTimer(d.expiry, func() { d.expire(outlet) })
	d.mu.Lock()
	d.timers[outlet-1] = t
	d.mu.Unlock()
	logger.Info().Dur("expiry", d.expiry).Msg("password timer started")
	return nil
}

func (d *HawkDevice) expire(outlet int) {
	log.Info().Int("pdu", d.pdu).Int("outlet", outlet).Msg("password expired")
	d.mu.Lock()
	d.expirations++
	d.mu.Unlock()
	if err := d.setMode(d.onOffset, outlet, oidstore.MODE_ERROR); err != nil {
		log.Error().Err(err).Int("pdu", d.pdu).Int("outlet", outlet).Msg("failed to revert outlet mode")
	}
}

// Expirations counts the password timers that fired.
func (d *HawkDevice) Expirations() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.expirations
}

func (d *HawkDevice) timerPending(outlet int) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	t := d.timers[outlet-1]
	return t != nil && t.Active()
}

// Mode returns the mode of outlet's on/off field.
func (d *HawkDevice) Mode(outlet int) (string, error) {
	return d.getMode(d.onOffset, outlet)
}

func (d *HawkDevice) Status() UnitStatus {
	s := UnitStatus{
		PDU:         d.pdu,
		Vendor:      VENDOR_HAWK,
		MaxOutlets:  d.maxOutlets,
		Backlog:     d.queue.Len(),
		Expirations: d.Expirations(),
		Outlets:     make([]OutletStatus, 0, d.maxOutlets),
	}
	for outlet := 1; outlet <= d.maxOutlets; outlet++ {
		o := d.outletStatus(outlet)
		o.TimerPending = d.timerPending(outlet)
		if mode, err := d.Mode(outlet); err != nil {
			log.Warn().Err(err).Int("outlet", outlet).Msg("failed to read outlet mode")
		} else {
			o.Mode = mode
		}
		s.Outlets = append(s.Outlets, o)
	}
	return s
}

// Stop cancels the password timers and stops the worker.
func (d *HawkDevice) Stop() {
	d.mu.Lock()
	timers := append([]*pendingTimer{}, d.timers...)
	d.mu.Unlock()
	for _, t := range timers {
		if t != nil {
			t.Cancel(d.grace)
		}
	}
	d.stop()
}
