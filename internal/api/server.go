// Package api serves a read-only view of the simulated PDUs over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/Cray-HPE/hms-xname/xnames"
	"github.com/OpenCHAMI/pdusim/internal/pdu"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"
)

const DEFAULT_CABINET = 3000

// StatusSource is satisfied by *pdu.Bridge.
type StatusSource interface {
	Status() []pdu.UnitStatus
}

type Outlet struct {
	pdu.OutletStatus
	Xname string `json:"xname"`
}

type Unit struct {
	pdu.UnitStatus
	Xname   string   `json:"xname"`
	Outlets []Outlet `json:"outlets"`
}

type Server struct {
	source  StatusSource
	cabinet int
}

func NewServer(source StatusSource, cabinet int) *Server {
	if cabinet < 0 {
		cabinet = DEFAULT_CABINET
	}
	return &Server{source: source, cabinet: cabinet}
}

// Router builds the chi router with the same middleware stack as the
// daemon mode of the CLI.
func (s *Server) Router() http.Handler {
	router := chi.NewRouter()
	router.Use(
		middleware.RequestID,
		middleware.RealIP,
		requestLogger,
		middleware.Recoverer,
		middleware.StripSlashes,
		middleware.Timeout(60*time.Second),
	)
	router.Get("/pdus", s.listUnits)
	router.Get("/pdus/{pdu}", s.getUnit)
	router.Get("/pdus/{pdu}/outlets/{outlet}", s.getOutlet)
	return router
}

// ListenAndServe blocks until ctx is done.
func (s *Server) ListenAndServe(ctx context.Context, endpoint string) error {
	srv := &http.Server{
		Addr:              endpoint,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdown); err != nil {
			log.Warn().Err(err).Msg("failed to shut down status server")
		}
	}()
	log.Info().Str("endpoint", endpoint).Msg("status server listening")
	err := srv.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		log.Debug().
			Str("request_id", middleware.GetReqID(r.Context())).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("elapsed", time.Since(start)).
			Msg("status request")
	})
}

// unitXname labels a unit as a cabinet PDU. vHawk units keep their vendor
// PDU id so the labels line up with the OIDs.
func (s *Server) unitXname(status pdu.UnitStatus) xnames.CabinetPDU {
	id := status.PDU
	if status.Vendor == pdu.VENDOR_HAWK {
		id = pdu.ToPDU(status.PDU)
	}
	return xnames.CabinetPDU{
		Cabinet:              s.cabinet,
		CabinetPDUController: 0,
		CabinetPDU:           id,
	}
}

func (s *Server) unit(status pdu.UnitStatus) Unit {
	parent := s.unitXname(status)
	out := Unit{
		UnitStatus: status,
		Xname:      parent.String(),
		Outlets:    make([]Outlet, 0, len(status.Outlets)),
	}
	for _, o := range status.Outlets {
		out.Outlets = append(out.Outlets, Outlet{
			OutletStatus: o,
			Xname: xnames.CabinetPDUPowerConnector{
				Cabinet:                  parent.Cabinet,
				CabinetPDUController:     parent.CabinetPDUController,
				CabinetPDU:               parent.CabinetPDU,
				CabinetPDUPowerConnector: o.Outlet,
			}.String(),
		})
	}
	return out
}

func (s *Server) listUnits(w http.ResponseWriter, r *http.Request) {
	units := []Unit{}
	for _, status := range s.source.Status() {
		units = append(units, s.unit(status))
	}
	writeJSON(w, http.StatusOK, units)
}

func (s *Server) lookupUnit(w http.ResponseWriter, r *http.Request) (Unit, bool) {
	id, err := strconv.Atoi(chi.URLParam(r, "pdu"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "pdu must be an integer")
		return Unit{}, false
	}
	for _, status := range s.source.Status() {
		if status.PDU == id {
			return s.unit(status), true
		}
	}
	writeError(w, http.StatusNotFound, "no such pdu")
	return Unit{}, false
}

func (s *Server) getUnit(w http.ResponseWriter, r *http.Request) {
	if unit, ok := s.lookupUnit(w, r); ok {
		writeJSON(w, http.StatusOK, unit)
	}
}

func (s *Server) getOutlet(w http.ResponseWriter, r *http.Request) {
	unit, ok := s.lookupUnit(w, r)
	if !ok {
		return
	}
	outlet, err := strconv.Atoi(chi.URLParam(r, "outlet"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "outlet must be an integer")
		return
	}
	for _, o := range unit.Outlets {
		if o.Outlet == outlet {
			writeJSON(w, http.StatusOK, o)
			return
		}
	}
	writeError(w, http.StatusNotFound, "no such outlet")
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("failed to encode response")
	}
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}
