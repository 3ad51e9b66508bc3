package pdu

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/OpenCHAMI/pdusim/internal/oidstore"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type memStore struct {
	mu      sync.Mutex
	values  map[string]string
	writes  int
	missing bool
}

func newMemStore() *memStore {
	return &memStore{values: map[string]string{}}
}

func (s *memStore) QueryValue(oid string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.missing {
		return "", oidstore.ErrStoreMissing
	}
	return s.values[oid], nil
}

func (s *memStore) UpdateValue(oid string, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.missing {
		return oidstore.ErrStoreMissing
	}
	s.values[oid] = value
	s.writes++
	return nil
}

func (s *memStore) QueryTag(oid string) (string, error) { return "", nil }

func (s *memStore) UpdateTag(oid string, tag string) error { return nil }

func (s *memStore) Close() error { return nil }

func (s *memStore) get(oid string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.values[oid]
}

func (s *memStore) set(oid, value string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[oid] = value
}

func (s *memStore) writeCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writes
}

type binding struct {
	pdu, port int
}

type fakeDirectory struct {
	nodes      map[binding]string
	datastores map[string]string
}

func (d *fakeDirectory) GetNodeName(pdu int, port int) (string, bool) {
	vm, ok := d.nodes[binding{pdu, port}]
	return vm, ok
}

func (d *fakeDirectory) GetNodeDatastore(node string) (string, bool) {
	ds, ok := d.datastores[node]
	return ds, ok
}

type mockDriver struct {
	mock.Mock
}

func (m *mockDriver) PowerOn(ctx context.Context, datastore string, vm string) error {
	return m.Called(datastore, vm).Error(0)
}

func (m *mockDriver) PowerOff(ctx context.Context, datastore string, vm string) error {
	return m.Called(datastore, vm).Error(0)
}

func (m *mockDriver) Reboot(ctx context.Context, datastore string, vm string) error {
	return m.Called(datastore, vm).Error(0)
}

type fakePasswords map[binding]string

func (p fakePasswords) Get(pdu int, port int) string {
	return p[binding{pdu, port}]
}

func testDeps() (Deps, *memStore, *mockDriver) {
	store := newMemStore()
	drv := &mockDriver{}
	deps := Deps{
		Store: store,
		Directory: &fakeDirectory{
			nodes: map[binding]string{
				{1, 1}: "vm1",
				{1, 2}: "vm2",
				{1, 3}: "orphan",
				{2, 1}: "vm21",
			},
			datastores: map[string]string{"vm1": "ds1", "vm2": "ds1", "vm21": "ds2"},
		},
		Driver:    drv,
		Passwords: fakePasswords{{1, 1}: "A01", {2, 1}: "B21"},
		Fatal:     func(error) {},
	}
	return deps, store, drv
}

// drain waits until every task enqueued on q before the call has run.
func drain(t *testing.T, q *Queue) {
	t.Helper()
	done := make(chan struct{})
	q.Enqueue("drain", func() error {
		close(done)
		return nil
	})
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		require.FailNow(t, "queue did not drain")
	}
}
