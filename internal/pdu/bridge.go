package pdu

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/OpenCHAMI/pdusim/internal/notify"
	"github.com/OpenCHAMI/pdusim/internal/oidstore"
	"github.com/rs/zerolog/log"
)

const (
	VENDOR_SENTRY = "sentry"
	VENDOR_HAWK   = "hawk"
)

var (
	ErrUnknownVendor = errors.New("unknown pdu vendor")
	ErrInvalidPDUID  = errors.New("invalid vendor pdu id")
)

type Config struct {
	Vendor string
	Sentry SentryConfig
	Hawk   HawkConfig
}

// Bridge owns the units of one simulated vendor and routes notifications
// to them.
type Bridge struct {
	vendor  string
	devices []Device

	mu         sync.Mutex
	dispatcher *Dispatcher
	stopped    bool
	once       sync.Once
}

// NewBridge creates the units for cfg.Vendor and starts their workers.
func NewBridge(cfg Config, deps Deps) (*Bridge, error) {
	if err := deps.validate(); err != nil {
		return nil, err
	}
	if deps.Fatal == nil {
		deps.Fatal = func(err error) {
			log.Fatal().Err(err).Msg("oid store is gone")
		}
	}

	b := &Bridge{vendor: strings.ToLower(cfg.Vendor)}
	switch b.vendor {
	case VENDOR_SENTRY:
		b.devices = []Device{NewSentryDevice(cfg.Sentry, deps)}
	case VENDOR_HAWK:
		for pdu := 1; pdu <= HAWK_UNITS; pdu++ {
			b.devices = append(b.devices, NewHawkDevice(pdu, cfg.Hawk, deps))
		}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownVendor, cfg.Vendor)
	}
	log.Info().Str("vendor", b.vendor).Int("units", len(b.devices)).Msg("created pdu units")
	return b, nil
}

func (b *Bridge) Vendor() string {
	return b.vendor
}

func (b *Bridge) Devices() []Device {
	return b.devices
}

// Device returns the unit in slot pdu (1-based).
func (b *Bridge) Device(pdu int) (Device, bool) {
	if pdu < 1 || pdu > len(b.devices) {
		return nil, false
	}
	return b.devices[pdu-1], true
}

// Setup initializes the fields of every unit.
func (b *Bridge) Setup() error {
	for _, d := range b.devices {
		if err := d.Setup(); err != nil {
			return err
		}
	}
	return nil
}

// ToIndex converts a vHawk PDU id (1, 4, 7, 10, 13 or 16) into a zero-based
// unit index.
func ToIndex(pduID int) (int, error) {
	if pduID < 1 || pduID > ToPDU(HAWK_UNITS) || pduID%3 != 1 {
		return -1, fmt.Errorf("%w: %d", ErrInvalidPDUID, pduID)
	}
	return pduID/3 + pduID%3 - 1, nil
}

// Route picks the unit that owns msg.
func (b *Bridge) Route(msg Message) (Device, error) {
	if b.vendor != VENDOR_HAWK {
		return b.devices[0], nil
	}
	id, err := msg.VendorPDU()
	if err != nil {
		return nil, err
	}
	index, err := ToIndex(id)
	if err != nil {
		return nil, err
	}
	return b.devices[index], nil
}

func (b *Bridge) matches(oid string) bool {
	for _, d := range b.devices {
		if d.Matches(oid) {
			return true
		}
	}
	return false
}

// Dispatch hands msg to its unit. Messages for OIDs no unit watches are
// logged and dropped.
func (b *Bridge) Dispatch(msg Message) bool {
	logger := log.With().Str("msg_id", msg.ID.String()).Logger()
	if !b.matches(msg.OID) {
		logger.Warn().Msgf("%s is not handled now", msg)
		return false
	}
	device, err := b.Route(msg)
	if err != nil {
		logger.Error().Err(err).Msgf("failed to route %s", msg)
		return false
	}
	logger.Debug().Int("pdu", device.PDU()).Msg("assigned message")
	return device.HandleMessage(msg)
}

// Run reads ch until ctx is done or Stop is called.
func (b *Bridge) Run(ctx context.Context, ch notify.Channel, opts DispatchOptions) error {
	d := NewDispatcher(ch, b, opts)
	b.mu.Lock()
	if b.stopped {
		b.mu.Unlock()
		log.Info().Str("vendor", b.vendor).Msg("bridge already stopped, not running")
		if err := ch.Close(); err != nil {
			log.Warn().Err(err).Msg("failed to close notification channel")
		}
		return nil
	}
	if b.dispatcher != nil {
		b.mu.Unlock()
		return fmt.Errorf("bridge is already running")
	}
	b.dispatcher = d
	b.mu.Unlock()
	return d.Run(ctx)
}

// Stop ends the dispatch loop and every unit worker. It is safe to call
// more than once.
func (b *Bridge) Stop() {
	b.once.Do(func() {
		b.mu.Lock()
		b.stopped = true
		d := b.dispatcher
		b.mu.Unlock()
		if d != nil {
			d.Stop()
		}
		for _, device := range b.devices {
			device.Stop()
		}
		log.Info().Str("vendor", b.vendor).Msg("bridge stopped")
	})
}

// Status reports every unit.
func (b *Bridge) Status() []UnitStatus {
	out := make([]UnitStatus, 0, len(b.devices))
	for _, d := range b.devices {
		out = append(out, d.Status())
	}
	return out
}

// SeedRecords returns the OID rows a fresh store needs for cfg.Vendor.
func SeedRecords(cfg Config) ([]oidstore.Record, error) {
	records := []oidstore.Record{}
	switch strings.ToLower(cfg.Vendor) {
	case VENDOR_SENTRY:
		c := cfg.Sentry.withDefaults()
		for outlet := 1; outlet <= SENTRY_MAX_OUTLETS; outlet++ {
			records = append(records,
				oidstore.Record{OID: oidstore.Join(c.ActionOID, outlet), Tag: "2", Value: ActionNone.Code(), MaxAccess: "read-write"},
				oidstore.Record{OID: oidstore.Join(c.StateOID, outlet), Tag: "2", Value: StateIdleOn.Code(), MaxAccess: "read-only"},
			)
		}
	case VENDOR_HAWK:
		c := cfg.Hawk.withDefaults()
		for pdu := 1; pdu <= HAWK_UNITS; pdu++ {
			for outlet := 1; outlet <= HAWK_MAX_OUTLETS; outlet++ {
				records = append(records,
					oidstore.Record{OID: oidstore.Join(c.OnOID, ToPDU(pdu), outlet), Tag: "2", Value: oidstore.FormatCompound(oidstore.MODE_ERROR, ActionNone.Code()), MaxAccess: "read-write"},
					oidstore.Record{OID: oidstore.Join(c.PasswordOID, ToPDU(pdu), outlet), Tag: "4", Value: DEFAULT_PASSWORD, MaxAccess: "read-write"},
				)
			}
		}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownVendor, cfg.Vendor)
	}
	return records, nil
}
