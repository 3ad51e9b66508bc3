package oidstore

import (
	"bufio"
	"bytes"
	"fmt"
	"strings"
	"sync"

	"github.com/spf13/afero"
)

type snmprecEntry struct {
	tag   string
	value string
}

// SnmprecStore serves OIDs from an snmprec data file (`oid|tag|value` per
// line). Writes land in an in-memory overlay and are flushed back into the
// file so that the SNMP engine sees them on its next read.
type SnmprecStore struct {
	mu      sync.Mutex
	fs      afero.Fs
	path    string
	overlay map[string]snmprecEntry
}

// NewSnmprecStore opens the snmprec file at path on fs (the OS filesystem
// when fs is nil).
func NewSnmprecStore(fs afero.Fs, path string) (*SnmprecStore, error) {
	if fs == nil {
		fs = afero.NewOsFs()
	}
	exists, err := afero.Exists(fs, path)
	if err != nil {
		return nil, fmt.Errorf("failed to stat snmprec file: %w", err)
	}
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrStoreMissing, path)
	}
	return &SnmprecStore{
		fs:      fs,
		path:    path,
		overlay: map[string]snmprecEntry{},
	}, nil
}

func (s *SnmprecStore) read() ([]string, error) {
	b, err := afero.ReadFile(s.fs, s.path)
	if err != nil {
		exists, _ := afero.Exists(s.fs, s.path)
		if !exists {
			return nil, fmt.Errorf("%w: %s", ErrStoreMissing, s.path)
		}
		return nil, fmt.Errorf("failed to read snmprec file: %w", err)
	}
	lines := []string{}
	scanner := bufio.NewScanner(bytes.NewReader(b))
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	return lines, scanner.Err()
}

// lookup must be called with s.mu held.
func (s *SnmprecStore) lookup(oid string) (snmprecEntry, bool, error) {
	if e, ok := s.overlay[oid]; ok {
		return e, true, nil
	}
	lines, err := s.read()
	if err != nil {
		return snmprecEntry{}, false, err
	}
	for _, line := range lines {
		record := strings.SplitN(line, "|", 3)
		if len(record) == 3 && record[0] == oid {
			return snmprecEntry{tag: record[1], value: record[2]}, true, nil
		}
	}
	return snmprecEntry{}, false, nil
}

// flush rewrites the file with the overlay applied. Must be called with
// s.mu held.
func (s *SnmprecStore) flush() error {
	lines, err := s.read()
	if err != nil {
		return err
	}
	seen := map[string]bool{}
	var buf bytes.Buffer
	for _, line := range lines {
		record := strings.SplitN(line, "|", 3)
		if len(record) == 3 {
			if e, ok := s.overlay[record[0]]; ok {
				line = strings.Join([]string{record[0], e.tag, e.value}, "|")
				seen[record[0]] = true
			}
		}
		buf.WriteString(line)
		buf.WriteByte('\n')
	}
	for oid, e := range s.overlay {
		if !seen[oid] {
			buf.WriteString(strings.Join([]string{oid, e.tag, e.value}, "|"))
			buf.WriteByte('\n')
		}
	}
	tmp := s.path + ".new"
	if err := afero.WriteFile(s.fs, tmp, buf.Bytes(), 0644); err != nil {
		return fmt.Errorf("failed to write snmprec file: %w", err)
	}
	if err := s.fs.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("failed to replace snmprec file: %w", err)
	}
	return nil
}

func (s *SnmprecStore) QueryValue(oid string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, _, err := s.lookup(oid)
	return e.value, err
}

func (s *SnmprecStore) UpdateValue(oid string, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, _, err := s.lookup(oid)
	if err != nil {
		return err
	}
	e.value = value
	s.overlay[oid] = e
	return s.flush()
}

func (s *SnmprecStore) QueryTag(oid string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, _, err := s.lookup(oid)
	return e.tag, err
}

func (s *SnmprecStore) UpdateTag(oid string, tag string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, _, err := s.lookup(oid)
	if err != nil {
		return err
	}
	e.tag = tag
	s.overlay[oid] = e
	return s.flush()
}

func (s *SnmprecStore) Close() error {
	return nil
}
