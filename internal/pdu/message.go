package pdu

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// Message is one "<oid> <value>" notification posted by the SNMP engine.
type Message struct {
	OID   string
	Value string
	// ID correlates the log lines of one notification.
	ID uuid.UUID
}

func ParseMessage(line string) (Message, error) {
	tokens := strings.Fields(line)
	if len(tokens) < 2 {
		return Message{}, fmt.Errorf("expected \"<oid> <value>\" but got %q", line)
	}
	return Message{OID: tokens[0], Value: tokens[1], ID: uuid.New()}, nil
}

// ParseMessages splits one read from the notification channel into
// messages. Blank lines are skipped and malformed ones logged and dropped.
func ParseMessages(chunk []byte) []Message {
	messages := []Message{}
	for _, line := range strings.Split(string(chunk), "\n") {
		if strings.TrimSpace(line) == "" {
			continue
		}
		msg, err := ParseMessage(line)
		if err != nil {
			log.Warn().Err(err).Msg("dropping malformed message")
			continue
		}
		messages = append(messages, msg)
	}
	return messages
}

// component returns the n-th dotted OID component counted from the end,
// starting at 1 for the last one.
func (m Message) component(n int) (int, error) {
	parts := strings.Split(m.OID, ".")
	if n < 1 || n > len(parts) {
		return 0, fmt.Errorf("oid %s has no component %d from the end", m.OID, n)
	}
	v, err := strconv.Atoi(parts[len(parts)-n])
	if err != nil {
		return 0, fmt.Errorf("invalid component in oid %s: %w", m.OID, err)
	}
	return v, nil
}

// Outlet is the last OID component.
func (m Message) Outlet() (int, error) {
	return m.component(1)
}

// VendorPDU is the second-to-last OID component, which multi-unit vendors
// use to address a unit.
func (m Message) VendorPDU() (int, error) {
	return m.component(2)
}

func (m Message) String() string {
	return m.OID + " " + m.Value
}
