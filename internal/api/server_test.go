package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/OpenCHAMI/pdusim/internal/pdu"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticSource []pdu.UnitStatus

func (s staticSource) Status() []pdu.UnitStatus { return s }

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	source := staticSource{
		{
			PDU: 1, Vendor: pdu.VENDOR_HAWK, MaxOutlets: 2, Backlog: 1, Expirations: 3,
			Outlets: []pdu.OutletStatus{
				{Outlet: 1, Node: "vm1", LastAction: "on", Mode: "normal", TimerPending: true},
				{Outlet: 2, LastAction: "none", Mode: "error"},
			},
		},
		{
			PDU: 2, Vendor: pdu.VENDOR_HAWK, MaxOutlets: 1,
			Outlets: []pdu.OutletStatus{{Outlet: 1, LastAction: "none", Mode: "error"}},
		},
	}
	srv := httptest.NewServer(NewServer(source, 3000).Router())
	t.Cleanup(srv.Close)
	return srv
}

func get(t *testing.T, url string, v any) int {
	t.Helper()
	res, err := http.Get(url)
	require.NoError(t, err)
	defer res.Body.Close()
	if v != nil && res.StatusCode == http.StatusOK {
		require.NoError(t, json.NewDecoder(res.Body).Decode(v))
	}
	return res.StatusCode
}

func TestListUnits(t *testing.T) {
	t.Parallel()
	srv := newTestServer(t)

	var units []Unit
	require.Equal(t, http.StatusOK, get(t, srv.URL+"/pdus", &units))
	require.Len(t, units, 2)
	assert.Equal(t, "x3000m0p1", units[0].Xname)
	assert.Equal(t, "x3000m0p4", units[1].Xname)
	assert.Equal(t, 3, units[0].Expirations)
	require.Len(t, units[0].Outlets, 2)
	assert.Equal(t, "x3000m0p1v2", units[0].Outlets[1].Xname)
}

func TestGetOutlet(t *testing.T) {
	t.Parallel()
	srv := newTestServer(t)

	var outlet Outlet
	require.Equal(t, http.StatusOK, get(t, srv.URL+"/pdus/1/outlets/1", &outlet))
	assert.Equal(t, "vm1", outlet.Node)
	assert.Equal(t, "on", outlet.LastAction)
	assert.True(t, outlet.TimerPending)
	assert.Equal(t, "x3000m0p1v1", outlet.Xname)

	var unit Unit
	require.Equal(t, http.StatusOK, get(t, srv.URL+"/pdus/2/", &unit))
	assert.Equal(t, 2, unit.PDU)
}

func TestNotFound(t *testing.T) {
	t.Parallel()
	srv := newTestServer(t)

	tests := []struct {
		path string
		code int
	}{
		{path: "/pdus/9", code: http.StatusNotFound},
		{path: "/pdus/one", code: http.StatusBadRequest},
		{path: "/pdus/1/outlets/30", code: http.StatusNotFound},
		{path: "/pdus/1/outlets/x", code: http.StatusBadRequest},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.path, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.code, get(t, srv.URL+tt.path, nil))
		})
	}
}
