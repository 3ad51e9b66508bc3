package oidstore

import (
	"fmt"
	"strconv"
	"strings"
)

// Fields holding a compound value look like `mode=<m>,value=<v>`. The SNMP
// engine reads the mode before accepting a write and reports only the value
// part to managers.

const (
	MODE_NORMAL = "normal"
	MODE_ERROR  = "error"
)

// splitRun splits s on the longest run (3, 2 or 1) of sep found in s.
func splitRun(s string, sep string) []string {
	for n := 3; n > 0; n-- {
		run := strings.Repeat(sep, n)
		if strings.Contains(s, run) {
			return strings.Split(s, run)
		}
	}
	return []string{s}
}

// ParseCompound decodes a compound field. ok is false when raw is not a
// well formed list of key=value pairs, e.g. a bare integer.
func ParseCompound(raw string) (fields map[string]string, ok bool) {
	fields = map[string]string{}
	for _, pair := range splitRun(raw, ",") {
		kv := splitRun(pair, "=")
		if len(kv) != 2 {
			return nil, false
		}
		fields[kv[0]] = kv[1]
	}
	return fields, true
}

// FormatCompound encodes a mode and value.
func FormatCompound(mode, value string) string {
	return fmt.Sprintf("mode=%s,value=%s", mode, value)
}

// Mode returns the mode stored in raw, or "" if there is none.
func Mode(raw string) string {
	if raw == "" {
		return ""
	}
	fields, ok := ParseCompound(raw)
	if !ok {
		return ""
	}
	return fields["mode"]
}

// WithMode returns raw rewritten to carry mode. changed is false when no
// write is needed: raw is empty or already in that mode.
func WithMode(raw, mode string) (updated string, changed bool) {
	if raw == "" {
		return raw, false
	}
	fields, ok := ParseCompound(raw)
	if ok {
		if m, found := fields["mode"]; found && m == mode {
			return raw, false
		}
		if v, found := fields["value"]; found {
			return FormatCompound(mode, v), true
		}
	}
	return FormatCompound(mode, raw), true
}

// WithValue replaces the value part of raw and keeps its mode, if any.
func WithValue(raw, value string) string {
	fields, ok := ParseCompound(raw)
	if ok {
		if m, found := fields["mode"]; found {
			return FormatCompound(m, value)
		}
	}
	return value
}

// ExtractValue returns the integer value of a plain or compound field.
func ExtractValue(raw string) (int, error) {
	fields, ok := ParseCompound(raw)
	if ok {
		v, found := fields["value"]
		if !found {
			return 0, fmt.Errorf("no value in field %q", raw)
		}
		return strconv.Atoi(strings.TrimSpace(v))
	}
	return strconv.Atoi(strings.TrimSpace(raw))
}
