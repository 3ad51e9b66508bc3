// Package password keeps the per-outlet passwords used by the vHawk
// confirmation handshake.
//
// The file holds one entry per line in the form
//
//	<timestamp>:<pdu>:<port>:<password>
//
// Blank lines and lines starting with '#' are kept as they are.
package password

import (
	"bufio"
	"bytes"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/afero"
)

// Store is what the handshake needs: the expected password of an outlet, or
// "" when none is set.
type Store interface {
	Get(pdu int, port int) string
}

type Entry struct {
	Updated  time.Time `json:"updated"`
	PDU      int       `json:"pdu"`
	Port     int       `json:"port"`
	Password string    `json:"password"`
}

type FileStore struct {
	mu   sync.Mutex
	fs   afero.Fs
	path string
}

func NewFileStore(fs afero.Fs, path string) *FileStore {
	if fs == nil {
		fs = afero.NewOsFs()
	}
	return &FileStore{fs: fs, path: path}
}

func isComment(line string) bool {
	return strings.TrimSpace(line) == "" || strings.HasPrefix(line, "#")
}

func parseEntry(line string) (Entry, error) {
	fields := strings.SplitN(line, ":", 4)
	if len(fields) != 4 {
		return Entry{}, fmt.Errorf("malformed password entry %q", line)
	}
	var (
		e   Entry
		err error
	)
	if e.PDU, err = strconv.Atoi(fields[1]); err != nil {
		return Entry{}, fmt.Errorf("invalid pdu in password entry: %w", err)
	}
	if e.Port, err = strconv.Atoi(fields[2]); err != nil {
		return Entry{}, fmt.Errorf("invalid port in password entry: %w", err)
	}
	if ts, err := strconv.ParseFloat(fields[0], 64); err == nil {
		sec := int64(ts)
		e.Updated = time.Unix(sec, int64((ts-float64(sec))*1e9))
	}
	e.Password = fields[3]
	return e, nil
}

func formatEntry(e Entry) string {
	ts := float64(e.Updated.UnixNano()) / 1e9
	return fmt.Sprintf("%s:%d:%d:%s", strconv.FormatFloat(ts, 'f', 6, 64), e.PDU, e.Port, e.Password)
}

func (s *FileStore) lines() ([]string, error) {
	b, err := afero.ReadFile(s.fs, s.path)
	if err != nil {
		return nil, err
	}
	lines := []string{}
	scanner := bufio.NewScanner(bytes.NewReader(b))
	for scanner.Scan() {
		lines = append(lines, strings.TrimRight(scanner.Text(), "\r"))
	}
	return lines, scanner.Err()
}

// Get returns the password of pdu/port. Any problem reading the file is
// logged and reported as "no password".
func (s *FileStore) Get(pdu int, port int) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	lines, err := s.lines()
	if err != nil {
		log.Error().Err(err).Str("path", s.path).Msg("failed to read password file")
		return ""
	}
	for _, line := range lines {
		if isComment(line) {
			continue
		}
		e, err := parseEntry(line)
		if err != nil {
			log.Error().Err(err).Msg("failed to parse password file")
			return ""
		}
		if e.PDU == pdu && e.Port == port {
			log.Debug().Int("pdu", pdu).Int("port", port).Msg("found password")
			return e.Password
		}
	}
	log.Warn().Int("pdu", pdu).Int("port", port).Msg("no password set")
	return ""
}

// Set adds or replaces the password of pdu/port, keeping every other line.
func (s *FileStore) Set(pdu int, port int, password string) error {
	if strings.ContainsAny(password, "\n") {
		return fmt.Errorf("password must be a single line")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	lines, err := s.lines()
	if err != nil {
		exists, _ := afero.Exists(s.fs, s.path)
		if exists {
			return fmt.Errorf("failed to read password file: %w", err)
		}
		lines = []string{}
	}

	entry := formatEntry(Entry{Updated: time.Now(), PDU: pdu, Port: port, Password: password})
	var buf bytes.Buffer
	matched := false
	for _, line := range lines {
		if !isComment(line) {
			if e, err := parseEntry(line); err == nil && e.PDU == pdu && e.Port == port {
				line = entry
				matched = true
			}
		}
		buf.WriteString(line)
		buf.WriteByte('\n')
	}
	if !matched {
		buf.WriteString(entry)
		buf.WriteByte('\n')
	}
	if err := afero.WriteFile(s.fs, s.path, buf.Bytes(), 0600); err != nil {
		return fmt.Errorf("failed to write password file: %w", err)
	}
	log.Info().Int("pdu", pdu).Int("port", port).Bool("updated", matched).Msg("stored password")
	return nil
}

// List returns all entries ordered by pdu and port.
func (s *FileStore) List() ([]Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	lines, err := s.lines()
	if err != nil {
		return nil, fmt.Errorf("failed to read password file: %w", err)
	}
	entries := []Entry{}
	for _, line := range lines {
		if isComment(line) {
			continue
		}
		e, err := parseEntry(line)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].PDU != entries[j].PDU {
			return entries[i].PDU < entries[j].PDU
		}
		return entries[i].Port < entries[j].Port
	})
	return entries, nil
}
