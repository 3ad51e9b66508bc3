// Package nodedir resolves which virtual machine is plugged into a given
// PDU outlet, and on which datastore that machine lives.
package nodedir

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/OpenCHAMI/pdusim/internal/format"
	"github.com/rs/zerolog/log"
	"github.com/spf13/afero"
	"golang.org/x/exp/maps"
)

// Directory is the read-only view the outlet state machines consume.
type Directory interface {
	GetNodeName(pdu int, port int) (string, bool)
	GetNodeDatastore(node string) (string, bool)
}

// Binding ties one VM to the outlet that controls it.
type Binding struct {
	Datastore string `json:"datastore" yaml:"datastore"`
	Node      string `json:"node" yaml:"node"`
	PDU       int    `json:"control_pdu" yaml:"control_pdu"`
	Port      int    `json:"control_port" yaml:"control_port"`
}

// On disk the mapping file is keyed by datastore, then by VM name, with the
// controlling outlet written as "<pdu>.<port>":
//
//	datastore1:
//	  vm-compute-1: "1.2"
type fileLayout map[string]map[string]string

// MappingFile is a Directory backed by a JSON or YAML mapping file.
type MappingFile struct {
	mu       sync.RWMutex
	fs       afero.Fs
	path     string
	bindings []Binding
}

// ParsePort splits "<pdu>.<port>".
func ParsePort(s string) (pdu int, port int, err error) {
	parts := strings.Split(strings.TrimSpace(s), ".")
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("expected <pdu>.<port> but got %q", s)
	}
	if pdu, err = strconv.Atoi(parts[0]); err != nil {
		return 0, 0, fmt.Errorf("invalid pdu in %q: %w", s, err)
	}
	if port, err = strconv.Atoi(parts[1]); err != nil {
		return 0, 0, fmt.Errorf("invalid port in %q: %w", s, err)
	}
	return pdu, port, nil
}

// Load reads the mapping file at path. A missing file yields an empty
// directory, which is filled by Update.
func Load(fs afero.Fs, path string) (*MappingFile, error) {
	if fs == nil {
		fs = afero.NewOsFs()
	}
	m := &MappingFile{fs: fs, path: path}

	exists, err := afero.Exists(fs, path)
	if err != nil {
		return nil, fmt.Errorf("failed to stat mapping file: %w", err)
	}
	if !exists {
		log.Warn().Str("path", path).Msg("mapping file not found; starting with no VM bindings")
		return m, nil
	}

	b, err := afero.ReadFile(fs, path)
	if err != nil {
		return nil, fmt.Errorf("failed to read mapping file: %w", err)
	}
	layout := fileLayout{}
	if err := format.Unmarshal(b, &layout, format.FromFileExt(path, format.FORMAT_YAML)); err != nil {
		return nil, err
	}

	for _, ds := range sortedKeys(layout) {
		nodes := layout[ds]
		for _, node := range sortedKeys(nodes) {
			pdu, port, err := ParsePort(nodes[node])
			if err != nil {
				log.Error().Err(err).Str("datastore", ds).Str("node", node).Msg("skipping bad mapping entry")
				continue
			}
			m.bindings = append(m.bindings, Binding{Datastore: ds, Node: node, PDU: pdu, Port: port})
		}
	}
	return m, nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := maps.Keys(m)
	sort.Strings(keys)
	return keys
}

func (m *MappingFile) GetNodeName(pdu int, port int) (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, b := range m.bindings {
		if b.PDU == pdu && b.Port == port {
			return b.Node, true
		}
	}
	return "", false
}

func (m *MappingFile) GetNodeDatastore(node string) (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, b := range m.bindings {
		if b.Node == node {
			return b.Datastore, true
		}
	}
	return "", false
}

// List returns a copy of every binding.
func (m *MappingFile) List() []Binding {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Binding, len(m.bindings))
	copy(out, m.bindings)
	return out
}

// Update binds node on datastore to pdu/port, replacing any previous
// binding of that node, and saves the file.
func (m *MappingFile) Update(datastore, node string, pdu, port int) error {
	if datastore == "" || node == "" {
		return fmt.Errorf("datastore and node are required")
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	found := false
	for i := range m.bindings {
		if m.bindings[i].Datastore == datastore && m.bindings[i].Node == node {
			m.bindings[i].PDU = pdu
			m.bindings[i].Port = port
			found = true
		}
	}
	if !found {
		m.bindings = append(m.bindings, Binding{Datastore: datastore, Node: node, PDU: pdu, Port: port})
	}
	log.Info().Str("datastore", datastore).Str("node", node).Int("pdu", pdu).Int("port", port).Msg("updated node binding")
	return m.save()
}

// Delete removes node from datastore, or the whole datastore when node is
// empty, and saves the file.
func (m *MappingFile) Delete(datastore, node string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	kept := m.bindings[:0]
	removed := 0
	for _, b := range m.bindings {
		if b.Datastore == datastore && (node == "" || b.Node == node) {
			removed++
			continue
		}
		kept = append(kept, b)
	}
	m.bindings = kept
	if removed == 0 {
		return fmt.Errorf("no binding found for %s/%s", datastore, node)
	}
	return m.save()
}

// save must be called with m.mu held.
func (m *MappingFile) save() error {
	layout := fileLayout{}
	for _, b := range m.bindings {
		if layout[b.Datastore] == nil {
			layout[b.Datastore] = map[string]string{}
		}
		layout[b.Datastore][b.Node] = fmt.Sprintf("%d.%d", b.PDU, b.Port)
	}
	data, err := format.Marshal(layout, format.FromFileExt(m.path, format.FORMAT_YAML))
	if err != nil {
		return err
	}
	if err := afero.WriteFile(m.fs, m.path, data, 0644); err != nil {
		return fmt.Errorf("failed to write mapping file: %w", err)
	}
	return nil
}
